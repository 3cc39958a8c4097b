package vault

import (
	"testing"

	"filesdb-go/internal/config"
)

func TestNewVaultFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.VaultConfig
		wantErr bool
		wantNil bool
	}{
		{
			name:    "disabled vault",
			cfg:     config.VaultConfig{Type: "none"},
			wantErr: false,
			wantNil: true,
		},
		{
			name:    "empty type disables vault",
			cfg:     config.VaultConfig{},
			wantErr: false,
			wantNil: true,
		},
		{
			name: "memory vault",
			cfg: config.VaultConfig{
				Type: "memory",
				Name: "test-memory",
			},
			wantErr: false,
			wantNil: false,
		},
		{
			name: "filesystem vault without root",
			cfg: config.VaultConfig{
				Type: "filesystem",
				Name: "test-fs",
			},
			wantErr: true,
			wantNil: true,
		},
		{
			name: "s3 vault without bucket",
			cfg: config.VaultConfig{
				Type: "s3",
				Name: "test-s3",
			},
			wantErr: true,
			wantNil: true,
		},
		{
			name: "unknown vault type",
			cfg: config.VaultConfig{
				Type: "unknown",
				Name: "test-unknown",
			},
			wantErr: true,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewVaultFromConfig(tt.cfg)

			if (err != nil) != tt.wantErr {
				t.Errorf("NewVaultFromConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if (got == nil) != tt.wantNil {
				t.Errorf("NewVaultFromConfig() returned nil = %v, wantNil %v", got == nil, tt.wantNil)
			}

			if !tt.wantErr && got != nil {
				if err := got.ValidateSetup(); err != nil {
					t.Errorf("ValidateSetup() error = %v", err)
				}
			}
		})
	}

	t.Run("filesystem vault with root", func(t *testing.T) {
		got, err := NewVaultFromConfig(config.VaultConfig{
			Type: "filesystem",
			Name: "test-fs",
			Root: t.TempDir(),
		})
		if err != nil {
			t.Fatalf("NewVaultFromConfig() error = %v", err)
		}
		if got == nil {
			t.Fatal("NewVaultFromConfig() returned nil vault")
		}
		if err := got.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}
