package archive_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"droplock/internal/archive"
	"droplock/internal/database"
	"droplock/internal/droplock"
	"droplock/internal/encryption"
	"droplock/internal/testutil"
)

func newArchiver(t *testing.T) (*archive.Archiver, *database.SQLiteDatabase, archive.Vault, *testutil.StubClock) {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	vault := testutil.NewTestVault()
	clock := testutil.FixedClock()
	a := archive.NewArchiver(db, vault, testutil.NewTestEncryptor(), clock, droplock.NewNopLogger())
	return a, db, vault, clock
}

func TestArchiver_PushListRestore(t *testing.T) {
	a, db, vault, clock := newArchiver(t)
	testutil.SeedLocker(t, db, "S1", "L1", clock.Now())

	first, err := a.Push()
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if first != "20260301T090000Z" {
		t.Errorf("Push() name = %q, want UTC timestamp", first)
	}
	objects, _ := vault.List("")
	if len(objects) != 1 || objects[0] != "snapshots/20260301T090000Z.db.age" {
		t.Errorf("vault objects = %v", objects)
	}

	clock.Advance(time.Hour)
	second, err := a.Push()
	if err != nil {
		t.Fatalf("second Push() error = %v", err)
	}

	names, err := a.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if want := []string{first, second}; !reflect.DeepEqual(names, want) {
		t.Errorf("List() = %v, want %v", names, want)
	}

	dest := filepath.Join(t.TempDir(), "restored.db")
	if err := a.Restore(first, testutil.TestPassphrase, dest); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	restored, err := database.NewSQLiteDatabase(dest)
	if err != nil {
		t.Fatalf("opening restored db: %v", err)
	}
	defer restored.Close()
	l, err := restored.GetLocker("S1", "L1")
	if err != nil || l == nil {
		t.Fatalf("restored GetLocker() = %v, %v", l, err)
	}
	if l.State != droplock.StateAvailable {
		t.Errorf("restored state = %s", l.State)
	}
}

func TestArchiver_RestoreErrors(t *testing.T) {
	a, _, _, _ := newArchiver(t)
	name, err := a.Push()
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	t.Run("existing destination", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "exists.db")
		os.WriteFile(dest, []byte("keep"), 0600)
		if err := a.Restore(name, testutil.TestPassphrase, dest); !errors.Is(err, droplock.ErrConflict) {
			t.Errorf("Restore() error = %v, want ErrConflict", err)
		}
		if data, _ := os.ReadFile(dest); string(data) != "keep" {
			t.Error("existing destination was overwritten")
		}
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.db")
		if err := a.Restore(name, "nope", dest); err == nil {
			t.Error("Restore() with wrong passphrase expected error")
		}
		if _, err := os.Stat(dest); err == nil {
			t.Error("destination created despite failure")
		}
	})

	t.Run("unknown snapshot", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.db")
		if err := a.Restore("19990101T000000Z", testutil.TestPassphrase, dest); !errors.Is(err, droplock.ErrNotFound) {
			t.Errorf("Restore() error = %v, want ErrNotFound", err)
		}
	})
}

func TestArchiver_ListIgnoresForeignObjects(t *testing.T) {
	a, _, vault, _ := newArchiver(t)
	vault.Put("snapshots/notes.txt", strings.NewReader("x"), 1)
	vault.Put("snapshots/nested/20260101T000000Z.db.age", strings.NewReader("x"), 1)
	vault.Put("other/20260101T000000Z.db.age", strings.NewReader("x"), 1)

	names, err := a.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 0 {
		t.Errorf("List() = %v, want none", names)
	}
}

func TestArchiver_Keygen(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	enc := encryption.NewTestEncryptor()
	a := archive.NewArchiver(db, testutil.NewTestVault(), enc, testutil.FixedClock(), droplock.NewNopLogger())

	if _, err := a.Push(); err == nil {
		t.Error("Push() without keys expected error")
	}
	if err := a.Keygen("123"); !errors.Is(err, droplock.ErrValidation) {
		t.Errorf("Keygen(short) error = %v, want ErrValidation", err)
	}
	if err := a.Keygen("long-enough"); err != nil {
		t.Fatalf("Keygen() error = %v", err)
	}
	if err := a.Keygen("long-enough"); !errors.Is(err, droplock.ErrConflict) {
		t.Errorf("second Keygen() error = %v, want ErrConflict", err)
	}
	if _, err := a.Push(); err != nil {
		t.Errorf("Push() after Keygen error = %v", err)
	}
}
