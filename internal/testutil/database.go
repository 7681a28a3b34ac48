package testutil

import (
	"testing"
	"time"

	"droplock/internal/database"
	"droplock/internal/droplock"
)

// NewTestDatabase creates a migrated in-memory store that is closed when
// the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// SeedProfile writes an active profile. sectorID is ignored for superAdmins.
func SeedProfile(t *testing.T, db droplock.Database, uid string, role droplock.Role, sectorID string) *droplock.Profile {
	t.Helper()

	if role == droplock.RoleSuperAdmin {
		sectorID = ""
	}
	p := &droplock.Profile{
		UID:         uid,
		Role:        role,
		Status:      droplock.ProfileActive,
		SectorID:    sectorID,
		Email:       uid + "@example.com",
		DisplayName: uid,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := db.PutProfile(p); err != nil {
		t.Fatalf("seeding profile %s: %v", uid, err)
	}
	return p
}

// SeedLocker creates a locker at the given time.
func SeedLocker(t *testing.T, db droplock.Database, sectorID, lockerID string, at time.Time) {
	t.Helper()

	if err := db.CreateLocker(sectorID, lockerID, at); err != nil {
		t.Fatalf("seeding locker %s/%s: %v", sectorID, lockerID, err)
	}
}
