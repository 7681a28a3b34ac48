package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	tables := []string{
		"profiles", "sectors", "sector_members", "lockers", "locker_events",
		"booking_events", "admin_commands", "alerts", "locker_signals",
		"accounts", "session_tokens", "schema_migrations",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestCheck(t *testing.T) {
	t.Run("fresh database needs migration", func(t *testing.T) {
		db := openTestDB(t)

		err := Check(db)
		if !errors.Is(err, ErrNeedsMigration) {
			t.Errorf("Check() error = %v, want ErrNeedsMigration", err)
		}
	})

	t.Run("migrated database passes", func(t *testing.T) {
		db := openTestDB(t)
		if err := Up(db); err != nil {
			t.Fatalf("Up() error = %v", err)
		}
		if err := Check(db); err != nil {
			t.Errorf("Check() error = %v", err)
		}
	})
}

func TestUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := Up(db); err != nil {
		t.Fatalf("first Up() error = %v", err)
	}
	if err := Up(db); err != nil {
		t.Errorf("second Up() error = %v", err)
	}
	if err := Check(db); err != nil {
		t.Errorf("Check() after double Up() error = %v", err)
	}
}

func TestGetStatus(t *testing.T) {
	db := openTestDB(t)

	st, err := GetStatus(db)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if st.Current != 0 || st.Pending() == 0 {
		t.Errorf("GetStatus() = %+v, want pending migrations", st)
	}

	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	st, err = GetStatus(db)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if st.Pending() != 0 || st.Current != st.Latest {
		t.Errorf("GetStatus() = %+v, want up to date", st)
	}
}

func TestSchema_AlertStatusConstraint(t *testing.T) {
	db := openTestDB(t)
	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	_, err := db.Exec(`INSERT INTO alerts (id, type, sector_id, locker_id, severity, status, created_at)
		VALUES ('a1', 'TAMPER', 'S1', 'L1', 'HIGH', 'REOPENED', 0)`)
	if err == nil {
		t.Error("expected CHECK constraint violation for unknown status, insert succeeded")
	}
}

func TestSchema_SessionTokenForeignKey(t *testing.T) {
	db := openTestDB(t)
	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	_, err := db.Exec(`INSERT INTO session_tokens (token_hash, uid, created_at, expires_at)
		VALUES ('h1', 'no-such-account', 0, 0)`)
	if err == nil {
		t.Error("expected foreign key violation, insert succeeded")
	}
}

func TestSchema_AccountEmailUnique(t *testing.T) {
	db := openTestDB(t)
	if err := Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	insert := `INSERT INTO accounts (uid, email, password_hash, created_at, updated_at) VALUES (?, 'a@example.com', 'x', 0, 0)`
	if _, err := db.Exec(insert, "u1"); err != nil {
		t.Fatalf("first insert error = %v", err)
	}
	if _, err := db.Exec(insert, "u2"); err == nil {
		t.Error("expected unique constraint violation for duplicate email, insert succeeded")
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enabling foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
