package testutil

import (
	"droplock/internal/archive"
	"droplock/internal/encryption"
)

// TestPassphrase unlocks encryptors returned by NewTestEncryptor.
const TestPassphrase = "test-passphrase"

// NewTestEncryptor returns a configured, deterministic encryptor.
func NewTestEncryptor() archive.Encryptor {
	return encryption.NewConfiguredTestEncryptor(TestPassphrase)
}
