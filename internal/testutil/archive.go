package testutil

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// ArchiveEntry is one member of a test archive. Entries are written in
// order, so duplicates and odd orderings can be expressed directly.
type ArchiveEntry struct {
	Name string
	Data []byte
}

// ZipBytes builds a zip archive in memory from the given entries.
func ZipBytes(t *testing.T, entries []ArchiveEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("creating zip entry %q: %v", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("writing zip entry %q: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

// TarBytes builds an uncompressed tar archive in memory.
func TarBytes(t *testing.T, entries []ArchiveEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name: e.Name,
			Mode: 0644,
			Size: int64(len(e.Data)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing tar header %q: %v", e.Name, err)
		}
		if _, err := tw.Write(e.Data); err != nil {
			t.Fatalf("writing tar entry %q: %v", e.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	return buf.Bytes()
}

// TarGzBytes builds a gzip-compressed tar archive in memory.
func TarGzBytes(t *testing.T, entries []ArchiveEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(TarBytes(t, entries)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("closing gzip: %v", err)
	}
	return buf.Bytes()
}

// TarBz2Bytes builds a bzip2-compressed tar archive by shelling out to the
// bzip2 binary, since the standard library only decompresses. Tests calling
// this skip when the binary is unavailable.
func TarBz2Bytes(t *testing.T, entries []ArchiveEntry) []byte {
	t.Helper()

	if _, err := exec.LookPath("bzip2"); err != nil {
		t.Skip("bzip2 binary not available")
	}

	cmd := exec.Command("bzip2", "-c")
	cmd.Stdin = bytes.NewReader(TarBytes(t, entries))
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("bzip2: %v", err)
	}

	// Sanity check that the output decompresses back.
	if _, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(out))); err != nil {
		t.Fatalf("bzip2 output does not decompress: %v", err)
	}
	return out
}

// WriteArchive writes data to a file named name inside a temp dir and
// returns the full path. The archive format is inferred by readers from the
// file name, so the name matters.
func WriteArchive(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing archive %q: %v", name, err)
	}
	return path
}
