package crawler

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"filesdb-go/internal/model"
)

// ignoredFiles are packaging metadata files that carry no project content.
var ignoredFiles = map[string]bool{
	"PKG-INFO":    true,
	"MANIFEST.in": true,
	"setup.cfg":   true,
}

// FileSink receives one eligible archive member with its digests already
// computed. A sink error aborts introspection and propagates to the caller
// unchanged; it is how storage failures surface through the introspector.
type FileSink func(f model.File) error

// Introspect enumerates the logical files inside the archive at archivePath
// and feeds each one to sink. The container mode is inferred from the
// filename suffix: .whl and .egg are flat zips whose member paths are used
// as-is; .zip is a source distribution where everything must live under one
// top-level directory named after the project; anything else is treated as
// a (possibly compressed) tarball with the same sdist layout rules.
//
// The returned status is StatusSuccess only if at least one member reached
// the sink. Container decode errors yield StatusBadArchive, sdist layout
// violations StatusWrongStructure, and an archive whose members were all
// filtered out StatusNoFiles. Only sink errors are returned as an error.
func Introspect(archivePath, project string, sink FileSink) (model.IndexStatus, error) {
	name := path.Base(strings.ReplaceAll(archivePath, `\`, "/"))
	switch {
	case strings.HasSuffix(name, ".whl") || strings.HasSuffix(name, ".egg"):
		return introspectFlatZip(archivePath, sink)
	case strings.HasSuffix(name, ".zip"):
		return introspectSdistZip(archivePath, project, sink)
	default:
		return introspectTarball(archivePath, project, sink)
	}
}

// normalizeName case-folds and maps hyphens to underscores, the equivalence
// used when matching an sdist's top-level directory against the project.
func normalizeName(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "-", "_")
}

func hasTopLevel(member, project string) bool {
	return strings.HasPrefix(normalizeName(member), normalizeName(project))
}

// uniqueMembers returns the deduplicated members of a zip archive keyed by
// name, plus the names in sorted order so filtering decisions are
// deterministic even when the archive contains exact-name collisions.
func uniqueMembers(r *zip.Reader) (map[string]*zip.File, []string) {
	members := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		members[f.Name] = f
	}
	names := make([]string, 0, len(members))
	for n := range members {
		names = append(names, n)
	}
	sort.Strings(names)
	return members, names
}

func introspectFlatZip(archivePath string, sink FileSink) (model.IndexStatus, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return model.StatusBadArchive, nil
	}
	defer zr.Close()

	members, names := uniqueMembers(&zr.Reader)
	inserted := 0
	for _, member := range names {
		if strings.Contains(member, ".dist-info/") ||
			strings.HasPrefix(member, "EGG-INFO") ||
			strings.HasSuffix(member, ".dist-info") ||
			ignoredFiles[member] {
			continue
		}
		status, err := digestZipMember(members[member], member, sink)
		if status != "" || err != nil {
			return status, err
		}
		inserted++
	}

	if inserted == 0 {
		return model.StatusNoFiles, nil
	}
	return model.StatusSuccess, nil
}

func introspectSdistZip(archivePath, project string, sink FileSink) (model.IndexStatus, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return model.StatusBadArchive, nil
	}
	defer zr.Close()

	members, names := uniqueMembers(&zr.Reader)
	inserted := 0
	for _, member := range names {
		if strings.HasSuffix(member, "/") { // directory entry
			continue
		}
		if !hasTopLevel(member, project) {
			return model.StatusWrongStructure, nil
		}
		if strings.Contains(member, ".egg-info/") ||
			strings.HasSuffix(member, ".egg-info") ||
			ignoredFiles[member] {
			continue
		}
		idx := strings.Index(member, "/")
		if idx < 0 {
			return model.StatusWrongStructure, nil
		}
		stripped := member[idx+1:]
		if ignoredFiles[stripped] {
			continue
		}
		status, err := digestZipMember(members[member], stripped, sink)
		if status != "" || err != nil {
			return status, err
		}
		inserted++
	}

	if inserted == 0 {
		return model.StatusNoFiles, nil
	}
	return model.StatusSuccess, nil
}

// digestZipMember streams one zip member through the hasher and hands the
// result to sink under recordName. Returns a non-empty status for archive
// read failures, or the sink's error verbatim.
func digestZipMember(f *zip.File, recordName string, sink FileSink) (model.IndexStatus, error) {
	rc, err := f.Open()
	if err != nil {
		return model.StatusBadArchive, nil
	}
	defer rc.Close()

	size, sha1hex, sha256hex, err := DigestReader(rc)
	if err != nil {
		return model.StatusBadArchive, nil
	}
	if err := sink(model.File{
		Name:      recordName,
		SizeBytes: size,
		SHA1:      sha1hex,
		SHA256:    sha256hex,
	}); err != nil {
		return "", err
	}
	return "", nil
}

func introspectTarball(archivePath, project string, sink FileSink) (model.IndexStatus, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	decompressed, err := decompress(f)
	if err != nil {
		return model.StatusBadArchive, nil
	}

	tr := tar.NewReader(decompressed)
	inserted := 0
	seen := make(map[string]bool)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.StatusBadArchive, nil
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		member := hdr.Name
		if seen[member] {
			continue
		}
		seen[member] = true

		if !hasTopLevel(member, project) {
			return model.StatusWrongStructure, nil
		}
		if strings.Contains(member, ".egg-info/") ||
			strings.HasSuffix(member, ".egg-info") ||
			member == "PKG-INFO" ||
			ignoredFiles[member] {
			continue
		}
		idx := strings.Index(member, "/")
		if idx < 0 {
			return model.StatusWrongStructure, nil
		}
		stripped := member[idx+1:]
		if ignoredFiles[stripped] {
			continue
		}

		size, sha1hex, sha256hex, err := DigestReader(tr)
		if err != nil {
			return model.StatusBadArchive, nil
		}
		if err := sink(model.File{
			Name:      stripped,
			SizeBytes: size,
			SHA1:      sha1hex,
			SHA256:    sha256hex,
		}); err != nil {
			return "", err
		}
		inserted++
	}

	if inserted == 0 {
		return model.StatusNoFiles, nil
	}
	return model.StatusSuccess, nil
}

// Compression magic numbers for transparent tarball decompression.
var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
)

// decompress sniffs the stream's leading bytes and wraps it in the matching
// decompressor. Unrecognized streams are assumed to be plain tar; genuinely
// corrupt input then fails at the tar layer.
func decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(3)
	if err != nil {
		// Shorter than any magic number; let the tar reader reject it.
		return br, nil
	}
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return gzip.NewReader(br)
	case bytes.HasPrefix(head, bzip2Magic):
		return bzip2.NewReader(br), nil
	default:
		return br, nil
	}
}
