package archive

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"droplock/internal/droplock"
)

const (
	snapshotPrefix = "snapshots/"
	snapshotSuffix = ".db.age"

	// snapshotTimeFormat sorts lexically in time order.
	snapshotTimeFormat = "20060102T150405Z"
)

// Archiver pushes encrypted snapshots of the store into a vault and
// restores them.
type Archiver struct {
	source    Source
	vault     Vault
	encryptor Encryptor
	clock     droplock.Clock
	logger    droplock.Logger
}

func NewArchiver(source Source, vault Vault, encryptor Encryptor, clock droplock.Clock, logger droplock.Logger) *Archiver {
	return &Archiver{
		source:    source,
		vault:     vault,
		encryptor: encryptor,
		clock:     clock,
		logger:    logger,
	}
}

// Keygen creates the archive key pair. It refuses to replace existing keys.
func (a *Archiver) Keygen(passphrase string) error {
	if a.encryptor.IsConfigured() {
		return fmt.Errorf("%w: archive keys already exist", droplock.ErrConflict)
	}
	if len(passphrase) < droplock.MinPasswordLength {
		return fmt.Errorf("%w: passphrase must be at least %d characters", droplock.ErrValidation, droplock.MinPasswordLength)
	}
	if err := a.encryptor.Setup(passphrase); err != nil {
		return fmt.Errorf("generating archive keys: %w", err)
	}
	a.logger.Info("archive keys generated")
	return nil
}

// Push snapshots the store, encrypts it and stores it in the vault under a
// name derived from the current UTC time. Returns the snapshot name.
func (a *Archiver) Push() (string, error) {
	if !a.encryptor.IsConfigured() {
		return "", fmt.Errorf("archive keys not configured: run 'droplock archive keygen'")
	}

	tmpDir, err := os.MkdirTemp("", "droplock-archive-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	plainPath := filepath.Join(tmpDir, "snapshot.db")
	if err := a.source.BackupTo(plainPath); err != nil {
		return "", fmt.Errorf("copying store: %w", err)
	}

	sealedPath := filepath.Join(tmpDir, "snapshot.db.age")
	if err := a.encryptFile(plainPath, sealedPath); err != nil {
		return "", err
	}

	sealed, err := os.Open(sealedPath)
	if err != nil {
		return "", fmt.Errorf("opening sealed snapshot: %w", err)
	}
	defer sealed.Close()
	info, err := sealed.Stat()
	if err != nil {
		return "", fmt.Errorf("stat sealed snapshot: %w", err)
	}

	name := a.clock.Now().UTC().Format(snapshotTimeFormat)
	if err := a.vault.Put(snapshotPrefix+name+snapshotSuffix, sealed, info.Size()); err != nil {
		return "", fmt.Errorf("storing snapshot: %w", err)
	}

	a.logger.Info("snapshot archived", "name", name, "bytes", info.Size())
	return name, nil
}

func (a *Archiver) encryptFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating sealed snapshot: %w", err)
	}
	if err := a.encryptor.Encrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing sealed snapshot: %w", err)
	}
	return nil
}

// List returns the stored snapshot names, oldest first.
func (a *Archiver) List() ([]string, error) {
	objects, err := a.vault.List(snapshotPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing vault: %w", err)
	}
	var names []string
	for _, obj := range objects {
		name := strings.TrimPrefix(obj, snapshotPrefix)
		if !strings.HasSuffix(name, snapshotSuffix) || strings.Contains(name, "/") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, snapshotSuffix))
	}
	sort.Strings(names)
	return names, nil
}

// Restore decrypts the named snapshot into a new file at dest. dest must
// not exist.
func (a *Archiver) Restore(name, passphrase, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("%w: %s already exists", droplock.ErrConflict, dest)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking destination: %w", err)
	}

	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking archive key: %w", err)
	}

	var sealed bytes.Buffer
	if err := a.vault.Get(snapshotPrefix+name+snapshotSuffix, &sealed); err != nil {
		return fmt.Errorf("fetching snapshot %s: %w", name, err)
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	if err := dc.Decrypt(&sealed, out); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dest, err)
	}

	a.logger.Info("snapshot restored", "name", name, "dest", dest)
	return nil
}
