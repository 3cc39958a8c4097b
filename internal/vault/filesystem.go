package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filesdb-go/internal/crawler"
)

// FileSystemVault is a filesystem-based implementation of the ArtifactVault
// interface. Artifacts are stored content-addressed under the vault root:
//
//	<root>/
//	  artifacts/
//	    <checksum>     (raw archive bytes, named by SHA-256)
type FileSystemVault struct {
	name        string
	root        string
	artifactDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	artifactDir := filepath.Join(root, "artifacts")

	if err := os.MkdirAll(artifactDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	return &FileSystemVault{
		name:        name,
		root:        root,
		artifactDir: artifactDir,
	}, nil
}

// PutArtifact stores an artifact identified by its checksum.
// The operation is idempotent: storing the same checksum multiple times is safe.
func (v *FileSystemVault) PutArtifact(checksum string, r io.Reader, size int64) error {
	destPath := filepath.Join(v.artifactDir, checksum)

	// If the artifact already exists, skip (idempotent)
	if _, err := os.Stat(destPath); err == nil {
		// Consume the reader to maintain expected behavior
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read artifact: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	return v.writeFile(destPath, r, size)
}

// GetArtifact retrieves an artifact by checksum and writes it to w.
func (v *FileSystemVault) GetArtifact(checksum string, w io.Writer) error {
	srcPath := filepath.Join(v.artifactDir, checksum)

	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("artifact not found: %s", checksum)
		}
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}

	info, err = os.Stat(v.artifactDir)
	if err != nil {
		return fmt.Errorf("vault directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path is not a directory: %s", v.artifactDir)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements crawler.ArtifactVault
var _ crawler.ArtifactVault = (*FileSystemVault)(nil)
