package archive

import "io"

// Vault stores named snapshot objects. Names are slash-separated paths
// such as "snapshots/20260301T090000Z.db.age". All operations stream so a
// large store never has to fit in memory.
type Vault interface {
	// Put stores the object, replacing any previous object of that name.
	// size is the number of bytes that will be read from r.
	Put(name string, r io.Reader, size int64) error

	// Get writes the named object to w. Returns droplock.ErrNotFound if
	// it does not exist.
	Get(name string, w io.Writer) error

	// List returns the names starting with prefix, sorted.
	List(prefix string) ([]string, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}

// Encryptor seals snapshots with a public key and unlocks the private key
// for restores. Encryption never needs the passphrase.
type Encryptor interface {
	// Setup generates a key pair, stores the public key in plaintext and
	// the private key encrypted with passphrase.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a DecryptionContext.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for one
// restore. The unlocked key is never written to disk.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// Source produces a consistent copy of the live store at dest.
type Source interface {
	BackupTo(dest string) error
}
