package testutil

import (
	"droplock/internal/archive"
	"droplock/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() archive.Vault {
	return vault.NewMemoryVault("test-vault")
}
