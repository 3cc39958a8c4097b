package crawler

import "io"

// ArtifactVault mirrors raw downloaded artifacts into content-addressed
// storage keyed by the SHA-256 the index reported for the artifact. The
// mirror is best-effort: indexing proceeds whether or not the put succeeds.
type ArtifactVault interface {
	// PutArtifact stores an artifact under its checksum. Idempotent:
	// storing the same checksum twice is safe. size is the number of bytes
	// that will be read from r.
	PutArtifact(checksum string, r io.Reader, size int64) error

	// GetArtifact retrieves an artifact by checksum and writes it to w.
	GetArtifact(checksum string, w io.Writer) error

	// ValidateSetup verifies that the vault is accessible and configured.
	ValidateSetup() error
}
