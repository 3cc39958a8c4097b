package vault

import (
	"context"
	"fmt"

	"filesdb-go/internal/config"
	"filesdb-go/internal/crawler"
)

// NewVaultFromConfig creates an ArtifactVault implementation based on the
// vault config type. A "none" (or empty) type disables artifact mirroring.
func NewVaultFromConfig(cfg config.VaultConfig) (crawler.ArtifactVault, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem vault requires root to be set")
		}
		return NewFileSystemVault(cfg.Name, cfg.Root)
	case "s3":
		return NewS3Vault(context.Background(), cfg.Name, S3Options{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
