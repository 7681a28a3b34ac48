package encryption

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"droplock/internal/archive"
)

// testHeader marks output of TestEncryptor so sealed snapshots are
// distinguishable from plain SQLite files.
var testHeader = []byte("DLSNAP\x00\x00")

// TestEncryptor is a deterministic stand-in for age in tests. Encrypt
// prepends testHeader; Unlock checks the passphrase given to Setup.
type TestEncryptor struct {
	mu         sync.Mutex
	configured bool
	passphrase string
}

var _ archive.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor returns an encryptor that still needs Setup.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

// NewConfiguredTestEncryptor returns an encryptor already set up with
// passphrase.
func NewConfiguredTestEncryptor(passphrase string) *TestEncryptor {
	return &TestEncryptor{configured: true, passphrase: passphrase}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.configured {
		return fmt.Errorf("test keys already exist")
	}
	e.configured = true
	e.passphrase = passphrase
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if !e.IsConfigured() {
		return fmt.Errorf("test keys not configured")
	}
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (archive.DecryptionContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.configured {
		return nil, fmt.Errorf("test keys not configured")
	}
	if passphrase != e.passphrase {
		return nil, fmt.Errorf("wrong passphrase")
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.configured
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ archive.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
