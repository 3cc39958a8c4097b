package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"filesdb-go/internal/crawler"
)

// MemoryVault is an in-memory implementation of the ArtifactVault interface.
// It keeps all artifacts in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name      string
	artifacts map[string][]byte // checksum -> raw bytes
	mu        sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:      name,
		artifacts: make(map[string][]byte),
	}
}

// PutArtifact stores an artifact identified by its checksum.
func (m *MemoryVault) PutArtifact(checksum string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotent: storing the same checksum multiple times is safe
	m.artifacts[checksum] = data
	return nil
}

// GetArtifact retrieves an artifact by checksum.
func (m *MemoryVault) GetArtifact(checksum string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.artifacts[checksum]
	if !ok {
		return fmt.Errorf("artifact not found: %s", checksum)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// Len returns the number of stored artifacts.
func (m *MemoryVault) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.artifacts)
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements crawler.ArtifactVault
var _ crawler.ArtifactVault = (*MemoryVault)(nil)
