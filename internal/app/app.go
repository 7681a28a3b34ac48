package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"droplock/internal/archive"
	"droplock/internal/config"
	"droplock/internal/database"
	"droplock/internal/droplock"
	"droplock/internal/encryption"
	"droplock/internal/identity"
	"droplock/internal/ingest"
	"droplock/internal/notify"
	"droplock/internal/vault"
)

// DropLockApp is the application layer between the CLI and the domain
// services. It constructs all dependencies from config, resolves the
// signed-in operator from the session file and closes resources on Close.
type DropLockApp struct {
	cfg         *config.Config
	db          *database.SQLiteDatabase
	identity    *identity.LocalProvider
	mailer      *notify.SMTPMailer
	service     *droplock.AdminService
	provisioner *droplock.Provisioner
	devices     *droplock.DeviceReports
	clock       droplock.Clock
	logger      droplock.Logger
	logFile     *os.File
	sessionPath string
}

// Deps overrides the process-wide collaborators. Zero fields use the
// real clock, UUIDs and os.Stderr.
type Deps struct {
	Clock  droplock.Clock
	IDGen  droplock.IDGenerator
	Stderr io.Writer
}

// NewDropLockApp creates a fully wired DropLockApp from the given config.
// operation identifies the CLI command being run (e.g. "SetState").
// The caller must call Close when done.
func NewDropLockApp(cfg *config.Config, sessionPath, operation string) (*DropLockApp, error) {
	return NewDropLockAppWithDeps(cfg, sessionPath, operation, Deps{})
}

// NewDropLockAppWithDeps is NewDropLockApp with injected collaborators.
func NewDropLockAppWithDeps(cfg *config.Config, sessionPath, operation string, deps Deps) (*DropLockApp, error) {
	if deps.Clock == nil {
		deps.Clock = droplock.RealClock{}
	}
	if deps.IDGen == nil {
		deps.IDGen = droplock.UUIDGenerator{}
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	ttl, err := cfg.SessionTTLDuration()
	if err != nil {
		return nil, err
	}
	transitions, err := droplock.NewTransitionValidator(cfg.Transitions)
	if err != nil {
		return nil, err
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	db.SetTimeout(cfg.StoreTimeout())

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date (run `droplock db migrate`): %w", err)
	}

	signals, err := newSignalMemory(cfg.Signals, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	runID := deps.Clock.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, runID, level, deps.Stderr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}
	logger.Debug("starting", "operation", operation)

	idp := identity.NewLocalProvider(db, deps.Clock, deps.IDGen, ttl)
	mailer := notify.NewSMTPMailer(cfg.EmailSettingsPath, logger, deps.Clock)
	recipient := AlertRecipientFromEnv(cfg.AlertRecipient)

	alerts := droplock.NewAlertService(db, mailer, logger, deps.Clock, deps.IDGen, recipient)
	svc := droplock.NewAdminService(db, alerts, signals, logger, deps.Clock, deps.IDGen)
	svc.SetTransitionValidator(transitions)

	return &DropLockApp{
		cfg:         cfg,
		db:          db,
		identity:    idp,
		mailer:      mailer,
		service:     svc,
		provisioner: droplock.NewProvisioner(db, idp, logger, deps.Clock),
		devices:     droplock.NewDeviceReports(db, logger),
		clock:       deps.Clock,
		logger:      logger,
		logFile:     logFile,
		sessionPath: sessionPath,
	}, nil
}

func newSignalMemory(cfg config.SignalsConfig, db *database.SQLiteDatabase) (droplock.SignalMemory, error) {
	switch cfg.Type {
	case "memory":
		return droplock.NewMemorySignals(), nil
	case "", "sqlite":
		return db.Signals(), nil
	default:
		return nil, fmt.Errorf("unknown signals type: %s", cfg.Type)
	}
}

// MigrateDatabase applies pending migrations to the configured store.
func MigrateDatabase(cfg *config.Config) error {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// Service returns the admin service.
func (a *DropLockApp) Service() *droplock.AdminService { return a.service }

// Provisioner returns the account provisioning service.
func (a *DropLockApp) Provisioner() *droplock.Provisioner { return a.provisioner }

// Devices returns the device report recorder.
func (a *DropLockApp) Devices() *droplock.DeviceReports { return a.devices }

// MailEnabled reports whether SMTP settings were loaded.
func (a *DropLockApp) MailEnabled() bool { return a.mailer.Enabled() }

// Login signs in and stores the session. Accounts without an active
// console profile (devices, disabled admins) are refused and their
// token revoked.
func (a *DropLockApp) Login(email, password string) (*droplock.Profile, error) {
	if n, err := a.identity.PurgeExpiredSessions(); err != nil {
		a.logger.Warn("purging expired sessions", "error", err)
	} else if n > 0 {
		a.logger.Debug("purged expired sessions", "count", n)
	}

	res, err := a.identity.SignIn(email, password)
	if err != nil {
		return nil, err
	}

	profile, err := a.service.Gate().AssertConsoleAccess(res.UID)
	if err != nil {
		if rerr := a.identity.RevokeToken(res.IDToken); rerr != nil {
			a.logger.Warn("revoking refused token", "uid", res.UID, "error", rerr)
		}
		return nil, err
	}

	session := &Session{Token: res.IDToken, UID: res.UID, Email: res.Email, ExpiresAt: res.ExpiresAt}
	if err := SaveSession(a.sessionPath, session); err != nil {
		return nil, err
	}
	a.logger.Info("signed in", "uid", res.UID)
	return profile, nil
}

// Logout revokes the stored token and removes the session file.
func (a *DropLockApp) Logout() error {
	session, err := LoadSession(a.sessionPath)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	if err := a.identity.RevokeToken(session.Token); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	a.logger.Info("signed out", "uid", session.UID)
	return ClearSession(a.sessionPath)
}

// Actor returns the uid of the signed-in operator. A missing, expired or
// revoked session is ErrUnauthorized; a stale session file is removed.
func (a *DropLockApp) Actor() (string, error) {
	session, err := LoadSession(a.sessionPath)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", fmt.Errorf("%w: not logged in", droplock.ErrUnauthorized)
	}

	claims, err := a.identity.VerifyToken(session.Token)
	if err != nil {
		if errors.Is(err, droplock.ErrUnauthorized) {
			if cerr := ClearSession(a.sessionPath); cerr != nil {
				a.logger.Warn("clearing stale session", "error", cerr)
			}
			return "", fmt.Errorf("%w: session expired, log in again", droplock.ErrUnauthorized)
		}
		return "", err
	}
	return claims.UID, nil
}

// Whoami returns the signed-in operator's profile.
func (a *DropLockApp) Whoami() (*droplock.Profile, error) {
	uid, err := a.Actor()
	if err != nil {
		return nil, err
	}
	return a.service.Gate().AssertConsoleAccess(uid)
}

// Bootstrap creates the first superAdmin.
func (a *DropLockApp) Bootstrap(email, password, displayName string) (string, error) {
	return a.provisioner.BootstrapOwner(email, password, displayName)
}

// Lockers renders the sector like the dashboard, so the same
// reconciliation pass runs, and returns the views narrowed by filter
// with the sector config used to derive them.
func (a *DropLockApp) Lockers(actorUID, sectorID string, filter droplock.LockerFilter) ([]*droplock.LockerView, droplock.SectorConfig, error) {
	d, err := a.service.Dashboard(actorUID, sectorID)
	if err != nil {
		return nil, droplock.SectorConfig{}, err
	}
	return filter.Apply(d.Views), d.Config, nil
}

// Location resolves a sector timezone. Unknown names fall back to UTC.
func (a *DropLockApp) Location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		a.logger.Warn("unknown sector timezone", "timezone", tz, "error", err)
		return time.UTC
	}
	return loc
}

// Ingest runs the MQTT device bridge until ctx is cancelled.
func (a *DropLockApp) Ingest(ctx context.Context) error {
	bridge := ingest.NewBridge(a.cfg.MQTT, a.devices, a.logger, a.clock)
	return bridge.Run(ctx)
}

// Archiver builds the snapshot archiver for the configured vault and keys.
func (a *DropLockApp) Archiver(ctx context.Context) (*archive.Archiver, error) {
	v, err := vault.NewVaultFromConfig(ctx, a.cfg.Archive.Vault)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Archive.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	return archive.NewArchiver(a.db, v, enc, a.clock, a.logger), nil
}

// Close closes the database and the log file.
func (a *DropLockApp) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
