package app

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"droplock/internal/config"
	"droplock/internal/droplock"
	"droplock/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.Signals = config.SignalsConfig{Type: "memory"}
	cfg.Archive.Encryption.Type = "test"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*DropLockApp, *testutil.StubClock) {
	t.Helper()
	clock := testutil.FixedClock()
	sessionPath := filepath.Join(cfg.BaseDir, "session.toml")
	a, err := NewDropLockAppWithDeps(cfg, sessionPath, "test", Deps{
		Clock:  clock,
		IDGen:  testutil.NewStubIDGenerator(),
		Stderr: io.Discard,
	})
	if err != nil {
		t.Fatalf("NewDropLockAppWithDeps() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, clock
}

func TestNewDropLockApp_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"log level", func(c *config.Config) { c.LogLevel = "loud" }},
		{"session ttl", func(c *config.Config) { c.SessionTTL = "soon" }},
		{"transitions", func(c *config.Config) { c.Transitions = "lenient" }},
		{"database type", func(c *config.Config) { c.Database.Type = "postgres" }},
		{"signals type", func(c *config.Config) { c.Signals.Type = "redis" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(cfg)
			if _, err := NewDropLockAppWithDeps(cfg, filepath.Join(cfg.BaseDir, "s.toml"), "test", Deps{Stderr: io.Discard}); err == nil {
				t.Error("NewDropLockAppWithDeps() expected error")
			}
		})
	}
}

func TestNewDropLockApp_UnmigratedStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database = config.DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(cfg.BaseDir, "db")}

	if _, err := NewDropLockAppWithDeps(cfg, filepath.Join(cfg.BaseDir, "s.toml"), "test", Deps{Stderr: io.Discard}); err == nil {
		t.Fatal("expected error for unmigrated store")
	}
	if err := MigrateDatabase(cfg); err != nil {
		t.Fatalf("MigrateDatabase() error = %v", err)
	}
	a, err := NewDropLockAppWithDeps(cfg, filepath.Join(cfg.BaseDir, "s.toml"), "test", Deps{Stderr: io.Discard})
	if err != nil {
		t.Fatalf("NewDropLockAppWithDeps() after migrate error = %v", err)
	}
	a.Close()
}

func TestDropLockApp_SessionLifecycle(t *testing.T) {
	a, clock := newTestApp(t, testConfig(t))

	if _, err := a.Actor(); !errors.Is(err, droplock.ErrUnauthorized) {
		t.Fatalf("Actor() before login error = %v, want ErrUnauthorized", err)
	}

	uid, err := a.Bootstrap("owner@example.com", "secret-pass", "")
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	if _, err := a.Login("owner@example.com", "wrong-pass"); !errors.Is(err, droplock.ErrUnauthorized) {
		t.Errorf("Login(wrong password) error = %v, want ErrUnauthorized", err)
	}

	profile, err := a.Login("Owner@Example.com", "secret-pass")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if profile.UID != uid || profile.Role != droplock.RoleSuperAdmin {
		t.Errorf("Login() profile = %+v", profile)
	}

	actor, err := a.Actor()
	if err != nil || actor != uid {
		t.Fatalf("Actor() = %q, %v, want %q", actor, err, uid)
	}
	me, err := a.Whoami()
	if err != nil || me.Email != "owner@example.com" {
		t.Errorf("Whoami() = %+v, %v", me, err)
	}

	if err := a.Logout(); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := a.Actor(); !errors.Is(err, droplock.ErrUnauthorized) {
		t.Errorf("Actor() after logout error = %v, want ErrUnauthorized", err)
	}
	if err := a.Logout(); err != nil {
		t.Errorf("second Logout() error = %v", err)
	}

	if _, err := a.Login("owner@example.com", "secret-pass"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	clock.Advance(13 * time.Hour)
	if _, err := a.Actor(); !errors.Is(err, droplock.ErrUnauthorized) {
		t.Errorf("Actor() after expiry error = %v, want ErrUnauthorized", err)
	}
	if s, _ := LoadSession(a.sessionPath); s != nil {
		t.Error("expired session file not cleared")
	}
}

func TestDropLockApp_LoginRefusesDevices(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))
	owner, err := a.Bootstrap("owner@example.com", "secret-pass", "")
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	_, err = a.Provisioner().ProvisionDevice(owner, droplock.AccountRequest{
		Email: "dev@example.com", TempPassword: "device-pass", SectorID: "S1", DisplayName: "L1 board",
	})
	if err != nil {
		t.Fatalf("ProvisionDevice() error = %v", err)
	}

	if _, err := a.Login("dev@example.com", "device-pass"); !errors.Is(err, droplock.ErrUnauthorized) {
		t.Errorf("Login(device) error = %v, want ErrUnauthorized", err)
	}
	if s, _ := LoadSession(a.sessionPath); s != nil {
		t.Error("device session was saved")
	}
}

func TestDropLockApp_Lockers(t *testing.T) {
	a, clock := newTestApp(t, testConfig(t))
	owner, err := a.Bootstrap("owner@example.com", "secret-pass", "")
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	for _, id := range []string{"L1", "L2"} {
		if err := a.Service().CreateLocker(owner, "S1", id); err != nil {
			t.Fatalf("CreateLocker(%s) error = %v", id, err)
		}
	}
	if err := a.Devices().Tamper("S1", "L2", true, clock.Now()); err != nil {
		t.Fatalf("Tamper() error = %v", err)
	}

	all, cfg, err := a.Lockers(owner, "S1", droplock.LockerFilter{})
	if err != nil {
		t.Fatalf("Lockers() error = %v", err)
	}
	if len(all) != 2 || cfg.HeartbeatTimeoutSec != droplock.DefaultHeartbeatTimeoutSec {
		t.Errorf("Lockers() = %d views, cfg %+v", len(all), cfg)
	}

	tampered, _, err := a.Lockers(owner, "S1", droplock.LockerFilter{Tampered: true})
	if err != nil {
		t.Fatalf("Lockers(tampered) error = %v", err)
	}
	if len(tampered) != 1 || tampered[0].LockerID != "L2" {
		t.Errorf("Lockers(tampered) = %v", tampered)
	}

	alerts, err := a.Service().ListAlerts(owner, "")
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(alerts) != 1 || alerts[0].Type != droplock.AlertTamper || alerts[0].LockerID != "L2" {
		t.Errorf("alerts after listing = %+v, want one TAMPER for L2", alerts)
	}
}

func TestDropLockApp_Location(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))
	if got := a.Location(""); got != time.UTC {
		t.Errorf("Location(\"\") = %v, want UTC", got)
	}
	if got := a.Location("Not/AZone"); got != time.UTC {
		t.Errorf("Location(invalid) = %v, want UTC", got)
	}
}

func TestDropLockApp_Archiver(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))

	arch, err := a.Archiver(context.Background())
	if err != nil {
		t.Fatalf("Archiver() error = %v", err)
	}
	if err := arch.Keygen("archive-pass"); err != nil {
		t.Fatalf("Keygen() error = %v", err)
	}
	name, err := arch.Push()
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	names, err := arch.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 1 || names[0] != name {
		t.Errorf("List() = %v, want [%s]", names, name)
	}

	dest := filepath.Join(t.TempDir(), "restored.db")
	if err := arch.Restore(name, "archive-pass", dest); err != nil {
		t.Errorf("Restore() error = %v", err)
	}
}
