package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"droplock/internal/database/migrations"
	"droplock/internal/droplock"
	"droplock/internal/identity"
)

// DefaultTimeout bounds every store round trip.
const DefaultTimeout = 5 * time.Second

// SQLiteDatabase implements droplock.Database and identity.AccountStore on
// SQLite. Every method is one short transaction-or-statement with its own
// timeout; failures of the driver are reported as droplock.ErrTransport.
type SQLiteDatabase struct {
	db      *sql.DB
	path    string
	timeout time.Duration
}

var (
	_ droplock.Database     = (*SQLiteDatabase)(nil)
	_ identity.AccountStore = (*SQLiteDatabase)(nil)
)

// NewSQLiteDatabase opens the store at path. path can be a file path or
// ":memory:". The schema is not touched; see Migrate and CheckMigrations.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path, timeout: DefaultTimeout}, nil
}

// OpenConnection opens and configures a SQLite connection. File databases
// take the write lock at BEGIN so the check-then-write transactions are
// serialized across processes.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_txlock=immediate&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and shared, and
	// serializes writers within the process.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	return db, nil
}

// SetTimeout changes the per-call timeout.
func (s *SQLiteDatabase) SetTimeout(d time.Duration) {
	s.timeout = d
}

// DB exposes the underlying handle for migrations and schema tools.
func (s *SQLiteDatabase) DB() *sql.DB { return s.db }

// Path returns the path the database was opened with.
func (s *SQLiteDatabase) Path() string { return s.path }

// Migrate applies pending schema migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.Up(s.db)
}

// CheckMigrations returns an error unless the schema is current.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.Check(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

func (s *SQLiteDatabase) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// Profile operations

const profileColumns = "uid, role, status, sector_id, email, display_name, created_at"

func scanProfile(row scanner) (*droplock.Profile, error) {
	var (
		p         droplock.Profile
		role      string
		status    string
		sectorID  sql.NullString
		createdAt int64
	)
	if err := row.Scan(&p.UID, &role, &status, &sectorID, &p.Email, &p.DisplayName, &createdAt); err != nil {
		return nil, err
	}
	p.Role = droplock.Role(role)
	p.Status = droplock.ProfileStatus(status)
	p.SectorID = sectorID.String
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}

// GetProfile returns the profile for uid, or nil.
func (s *SQLiteDatabase) GetProfile(uid string) (*droplock.Profile, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	row := s.db.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM profiles WHERE uid = ?", uid)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, droplock.TransportError("getting profile", err)
	}
	return p, nil
}

// PutProfile creates or overwrites a profile.
func (s *SQLiteDatabase) PutProfile(p *droplock.Profile) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			role = excluded.role,
			status = excluded.status,
			sector_id = excluded.sector_id,
			email = excluded.email,
			display_name = excluded.display_name,
			created_at = excluded.created_at`,
		p.UID, string(p.Role), string(p.Status), nullString(p.SectorID), p.Email, p.DisplayName, toMillis(p.CreatedAt))
	if err != nil {
		return droplock.TransportError("putting profile", err)
	}
	return nil
}

// UpdateProfileStatus changes a profile's status.
func (s *SQLiteDatabase) UpdateProfileStatus(uid string, status droplock.ProfileStatus) error {
	ctx, cancel := s.ctx()
	defer cancel()

	res, err := s.db.ExecContext(ctx, "UPDATE profiles SET status = ? WHERE uid = ?", string(status), uid)
	if err != nil {
		return droplock.TransportError("updating profile status", err)
	}
	return requireAffected(res, "profile "+uid)
}

// ListProfiles returns every profile ordered by email.
func (s *SQLiteDatabase) ListProfiles() ([]*droplock.Profile, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT "+profileColumns+" FROM profiles ORDER BY email, uid")
	if err != nil {
		return nil, droplock.TransportError("listing profiles", err)
	}
	defer rows.Close()

	var out []*droplock.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, droplock.TransportError("scanning profile", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, droplock.TransportError("listing profiles", err)
	}
	return out, nil
}

// Sector operations

// LoadAllSectors returns every sector keyed by id.
func (s *SQLiteDatabase) LoadAllSectors() (map[string]*droplock.Sector, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	sectors, err := s.querySectors(ctx, "SELECT id, heartbeat_timeout_sec, open_pulse_ms, timezone FROM sectors")
	if err != nil {
		return nil, err
	}
	if err := s.loadMembers(ctx, sectors, "SELECT sector_id, uid, role FROM sector_members ORDER BY uid"); err != nil {
		return nil, err
	}
	return sectors, nil
}

// GetSector returns one sector with its members, or nil.
func (s *SQLiteDatabase) GetSector(sectorID string) (*droplock.Sector, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	sectors, err := s.querySectors(ctx, "SELECT id, heartbeat_timeout_sec, open_pulse_ms, timezone FROM sectors WHERE id = ?", sectorID)
	if err != nil {
		return nil, err
	}
	if len(sectors) == 0 {
		return nil, nil
	}
	if err := s.loadMembers(ctx, sectors, "SELECT sector_id, uid, role FROM sector_members WHERE sector_id = ? ORDER BY uid", sectorID); err != nil {
		return nil, err
	}
	return sectors[sectorID], nil
}

func (s *SQLiteDatabase) querySectors(ctx context.Context, query string, args ...any) (map[string]*droplock.Sector, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, droplock.TransportError("loading sectors", err)
	}
	defer rows.Close()

	sectors := make(map[string]*droplock.Sector)
	for rows.Next() {
		var sec droplock.Sector
		if err := rows.Scan(&sec.ID, &sec.Config.HeartbeatTimeoutSec, &sec.Config.OpenPulseMs, &sec.Config.Timezone); err != nil {
			return nil, droplock.TransportError("scanning sector", err)
		}
		sectors[sec.ID] = &sec
	}
	if err := rows.Err(); err != nil {
		return nil, droplock.TransportError("loading sectors", err)
	}
	return sectors, nil
}

func (s *SQLiteDatabase) loadMembers(ctx context.Context, sectors map[string]*droplock.Sector, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return droplock.TransportError("loading sector members", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sectorID, uid, role string
		if err := rows.Scan(&sectorID, &uid, &role); err != nil {
			return droplock.TransportError("scanning sector member", err)
		}
		sec, ok := sectors[sectorID]
		if !ok {
			continue
		}
		switch droplock.Role(role) {
		case droplock.RoleAdmin:
			sec.AdminUIDs = append(sec.AdminUIDs, uid)
		case droplock.RoleDevice:
			sec.DeviceUIDs = append(sec.DeviceUIDs, uid)
		}
	}
	if err := rows.Err(); err != nil {
		return droplock.TransportError("loading sector members", err)
	}
	return nil
}

// CreateSector creates a sector. Returns ErrConflict if it exists.
func (s *SQLiteDatabase) CreateSector(sectorID string, cfg droplock.SectorConfig) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sectors (id, heartbeat_timeout_sec, open_pulse_ms, timezone) VALUES (?, ?, ?, ?)",
		sectorID, cfg.HeartbeatTimeoutSec, cfg.OpenPulseMs, cfg.Timezone)
	if isConstraintError(err) {
		return fmt.Errorf("%w: sector %s already exists", droplock.ErrConflict, sectorID)
	}
	if err != nil {
		return droplock.TransportError("creating sector", err)
	}
	return nil
}

// UpdateSectorConfig merges the non-nil fields into the sector config.
func (s *SQLiteDatabase) UpdateSectorConfig(sectorID string, update droplock.SectorConfigUpdate) error {
	ctx, cancel := s.ctx()
	defer cancel()

	// Fields absent from the update keep their stored value; a sector
	// that does not exist yet starts from the defaults.
	initial := update.Apply(droplock.DefaultSectorConfig())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sectors (id, heartbeat_timeout_sec, open_pulse_ms, timezone) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			heartbeat_timeout_sec = COALESCE(?, heartbeat_timeout_sec),
			open_pulse_ms = COALESCE(?, open_pulse_ms),
			timezone = COALESCE(?, timezone)`,
		sectorID, initial.HeartbeatTimeoutSec, initial.OpenPulseMs, initial.Timezone,
		nullInt(update.HeartbeatTimeoutSec), nullInt(update.OpenPulseMs), nullStringPtr(update.Timezone))
	if err != nil {
		return droplock.TransportError("updating sector config", err)
	}
	return nil
}

// AddSectorMember adds uid to the sector's admin or device set.
func (s *SQLiteDatabase) AddSectorMember(sectorID, uid string, role droplock.Role) error {
	if role != droplock.RoleAdmin && role != droplock.RoleDevice {
		return fmt.Errorf("%w: role %s cannot be a sector member", droplock.ErrValidation, role)
	}

	ctx, cancel := s.ctx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return droplock.TransportError("starting transaction", err)
	}
	defer tx.Rollback()

	if err := ensureSector(ctx, tx, sectorID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO sector_members (sector_id, uid, role) VALUES (?, ?, ?)",
		sectorID, uid, string(role)); err != nil {
		return droplock.TransportError("adding sector member", err)
	}
	if err := tx.Commit(); err != nil {
		return droplock.TransportError("committing transaction", err)
	}
	return nil
}

func ensureSector(ctx context.Context, tx *sql.Tx, sectorID string) error {
	cfg := droplock.DefaultSectorConfig()
	_, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO sectors (id, heartbeat_timeout_sec, open_pulse_ms, timezone) VALUES (?, ?, ?, ?)",
		sectorID, cfg.HeartbeatTimeoutSec, cfg.OpenPulseMs, cfg.Timezone)
	if err != nil {
		return droplock.TransportError("ensuring sector", err)
	}
	return nil
}

// Locker operations

const lockerColumns = "sector_id, locker_id, state, active_booking_id, last_changed_at, last_heartbeat_at, tamper_flag, tamper_last_at"

func scanLocker(row scanner) (*droplock.Locker, error) {
	var (
		l           droplock.Locker
		state       string
		bookingID   sql.NullString
		changedAt   int64
		heartbeatAt sql.NullInt64
		tamperAt    sql.NullInt64
	)
	if err := row.Scan(&l.SectorID, &l.LockerID, &state, &bookingID, &changedAt, &heartbeatAt, &l.Tamper.Flag, &tamperAt); err != nil {
		return nil, err
	}
	l.State = droplock.LockerState(state)
	l.ActiveBookingID = bookingID.String
	l.LastChangedAt = fromMillis(changedAt)
	l.LastHeartbeatAt = fromNullMillis(heartbeatAt)
	l.Tamper.LastAt = fromNullMillis(tamperAt)
	return &l, nil
}

// GetLocker returns one locker, or nil.
func (s *SQLiteDatabase) GetLocker(sectorID, lockerID string) (*droplock.Locker, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	row := s.db.QueryRowContext(ctx, "SELECT "+lockerColumns+" FROM lockers WHERE sector_id = ? AND locker_id = ?", sectorID, lockerID)
	l, err := scanLocker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, droplock.TransportError("getting locker", err)
	}
	return l, nil
}

// LoadLockers returns a sector's lockers ordered by locker id.
func (s *SQLiteDatabase) LoadLockers(sectorID string) ([]*droplock.Locker, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT "+lockerColumns+" FROM lockers WHERE sector_id = ? ORDER BY locker_id", sectorID)
	if err != nil {
		return nil, droplock.TransportError("loading lockers", err)
	}
	defer rows.Close()

	var out []*droplock.Locker
	for rows.Next() {
		l, err := scanLocker(rows)
		if err != nil {
			return nil, droplock.TransportError("scanning locker", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, droplock.TransportError("loading lockers", err)
	}
	return out, nil
}

// SetLockerState overwrites the state and lastChangedAt.
func (s *SQLiteDatabase) SetLockerState(sectorID, lockerID string, state droplock.LockerState, at time.Time) error {
	ctx, cancel := s.ctx()
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		"UPDATE lockers SET state = ?, last_changed_at = ? WHERE sector_id = ? AND locker_id = ?",
		string(state), toMillis(at), sectorID, lockerID)
	if err != nil {
		return droplock.TransportError("setting locker state", err)
	}
	return requireAffected(res, "locker "+sectorID+"/"+lockerID)
}

// CreateLocker inserts an AVAILABLE locker, registering its sector if needed.
func (s *SQLiteDatabase) CreateLocker(sectorID, lockerID string, at time.Time) error {
	ctx, cancel := s.ctx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return droplock.TransportError("starting transaction", err)
	}
	defer tx.Rollback()

	if err := ensureSector(ctx, tx, sectorID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO lockers (sector_id, locker_id, state, last_changed_at, tamper_flag) VALUES (?, ?, ?, ?, 0)",
		sectorID, lockerID, string(droplock.StateAvailable), toMillis(at))
	if isConstraintError(err) {
		return fmt.Errorf("%w: locker %s/%s already exists", droplock.ErrConflict, sectorID, lockerID)
	}
	if err != nil {
		return droplock.TransportError("creating locker", err)
	}
	if err := tx.Commit(); err != nil {
		return droplock.TransportError("committing transaction", err)
	}
	return nil
}

// DeleteLocker checks the booking and deletes inside one transaction, so
// a booking assigned concurrently cannot slip between the two.
func (s *SQLiteDatabase) DeleteLocker(sectorID, lockerID string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return droplock.TransportError("starting transaction", err)
	}
	defer tx.Rollback()

	var bookingID sql.NullString
	err = tx.QueryRowContext(ctx,
		"SELECT active_booking_id FROM lockers WHERE sector_id = ? AND locker_id = ?",
		sectorID, lockerID).Scan(&bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: locker %s/%s", droplock.ErrNotFound, sectorID, lockerID)
	}
	if err != nil {
		return droplock.TransportError("checking locker", err)
	}
	if bookingID.String != "" {
		return fmt.Errorf("%w: locker %s/%s has active booking %s", droplock.ErrConflict, sectorID, lockerID, bookingID.String)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM lockers WHERE sector_id = ? AND locker_id = ?", sectorID, lockerID); err != nil {
		return droplock.TransportError("deleting locker", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM locker_signals WHERE sector_id = ? AND locker_id = ?", sectorID, lockerID); err != nil {
		return droplock.TransportError("deleting locker signal", err)
	}
	if err := tx.Commit(); err != nil {
		return droplock.TransportError("committing transaction", err)
	}
	return nil
}

// SetActiveBooking assigns or, with an empty id, clears the booking.
func (s *SQLiteDatabase) SetActiveBooking(sectorID, lockerID, bookingID string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		"UPDATE lockers SET active_booking_id = ? WHERE sector_id = ? AND locker_id = ?",
		nullString(bookingID), sectorID, lockerID)
	if err != nil {
		return droplock.TransportError("setting active booking", err)
	}
	return requireAffected(res, "locker "+sectorID+"/"+lockerID)
}

// RecordHeartbeat stores a device liveness timestamp.
func (s *SQLiteDatabase) RecordHeartbeat(sectorID, lockerID string, at time.Time) error {
	ctx, cancel := s.ctx()
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		"UPDATE lockers SET last_heartbeat_at = ? WHERE sector_id = ? AND locker_id = ?",
		toMillis(at), sectorID, lockerID)
	if err != nil {
		return droplock.TransportError("recording heartbeat", err)
	}
	return requireAffected(res, "locker "+sectorID+"/"+lockerID)
}

// RecordTamper stores the device tamper flag and its time.
func (s *SQLiteDatabase) RecordTamper(sectorID, lockerID string, flag bool, at time.Time) error {
	ctx, cancel := s.ctx()
	defer cancel()

	query := "UPDATE lockers SET tamper_flag = 0 WHERE sector_id = ? AND locker_id = ?"
	args := []any{sectorID, lockerID}
	if flag {
		query = "UPDATE lockers SET tamper_flag = 1, tamper_last_at = ? WHERE sector_id = ? AND locker_id = ?"
		args = append([]any{toMillis(at)}, args...)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return droplock.TransportError("recording tamper", err)
	}
	return requireAffected(res, "locker "+sectorID+"/"+lockerID)
}

// AppendLockerEvent appends a locker audit event.
func (s *SQLiteDatabase) AppendLockerEvent(e *droplock.LockerEvent) error {
	before, err := encodeMap(e.Before)
	if err != nil {
		return fmt.Errorf("encoding before: %w", err)
	}
	after, err := encodeMap(e.After)
	if err != nil {
		return fmt.Errorf("encoding after: %w", err)
	}

	ctx, cancel := s.ctx()
	defer cancel()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO locker_events (id, sector_id, locker_id, type, actor_uid, before_json, after_json, ts) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.SectorID, e.LockerID, e.Type, e.ActorUID, before, after, toMillis(e.Timestamp))
	if err != nil {
		return droplock.TransportError("appending locker event", err)
	}
	return nil
}

// ListLockerEvents returns a locker's events, oldest first.
func (s *SQLiteDatabase) ListLockerEvents(sectorID, lockerID string) ([]*droplock.LockerEvent, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sector_id, locker_id, type, actor_uid, before_json, after_json, ts
		FROM locker_events WHERE sector_id = ? AND locker_id = ?
		ORDER BY ts, rowid`, sectorID, lockerID)
	if err != nil {
		return nil, droplock.TransportError("listing locker events", err)
	}
	defer rows.Close()

	var out []*droplock.LockerEvent
	for rows.Next() {
		var (
			e             droplock.LockerEvent
			before, after sql.NullString
			ts            int64
		)
		if err := rows.Scan(&e.ID, &e.SectorID, &e.LockerID, &e.Type, &e.ActorUID, &before, &after, &ts); err != nil {
			return nil, droplock.TransportError("scanning locker event", err)
		}
		if e.Before, err = decodeMap(before); err != nil {
			return nil, err
		}
		if e.After, err = decodeMap(after); err != nil {
			return nil, err
		}
		e.Timestamp = fromMillis(ts)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, droplock.TransportError("listing locker events", err)
	}
	return out, nil
}

// Booking audit operations

// AppendBookingEvent appends a booking audit event.
func (s *SQLiteDatabase) AppendBookingEvent(e *droplock.BookingEvent) error {
	data, err := encodeMap(e.Data)
	if err != nil {
		return fmt.Errorf("encoding booking data: %w", err)
	}
	if data == nil {
		data = "{}"
	}

	ctx, cancel := s.ctx()
	defer cancel()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO booking_events (id, booking_id, type, ts, actor_uid, data_json) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, e.BookingID, e.Type, toMillis(e.TS), e.ActorUID, data)
	if err != nil {
		return droplock.TransportError("appending booking event", err)
	}
	return nil
}

// ListBookingEvents returns a booking's events, oldest first.
func (s *SQLiteDatabase) ListBookingEvents(bookingID string) ([]*droplock.BookingEvent, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, booking_id, type, ts, actor_uid, data_json
		FROM booking_events WHERE booking_id = ?
		ORDER BY ts, rowid`, bookingID)
	if err != nil {
		return nil, droplock.TransportError("listing booking events", err)
	}
	defer rows.Close()

	var out []*droplock.BookingEvent
	for rows.Next() {
		var (
			e    droplock.BookingEvent
			data sql.NullString
			ts   int64
		)
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Type, &ts, &e.ActorUID, &data); err != nil {
			return nil, droplock.TransportError("scanning booking event", err)
		}
		if e.Data, err = decodeMap(data); err != nil {
			return nil, err
		}
		e.TS = fromMillis(ts)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, droplock.TransportError("listing booking events", err)
	}
	return out, nil
}

// Command operations

// AppendAdminCommand records an issued device command.
func (s *SQLiteDatabase) AppendAdminCommand(c *droplock.AdminCommand) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO admin_commands (id, sector_id, locker_id, cmd, actor_uid, ts) VALUES (?, ?, ?, ?, ?, ?)",
		c.ID, c.SectorID, c.LockerID, c.Cmd, c.ActorUID, toMillis(c.TS))
	if err != nil {
		return droplock.TransportError("appending admin command", err)
	}
	return nil
}

// ListAdminCommands returns a locker's commands, oldest first.
func (s *SQLiteDatabase) ListAdminCommands(sectorID, lockerID string) ([]*droplock.AdminCommand, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sector_id, locker_id, cmd, actor_uid, ts
		FROM admin_commands WHERE sector_id = ? AND locker_id = ?
		ORDER BY ts, rowid`, sectorID, lockerID)
	if err != nil {
		return nil, droplock.TransportError("listing admin commands", err)
	}
	defer rows.Close()

	var out []*droplock.AdminCommand
	for rows.Next() {
		var (
			c  droplock.AdminCommand
			ts int64
		)
		if err := rows.Scan(&c.ID, &c.SectorID, &c.LockerID, &c.Cmd, &c.ActorUID, &ts); err != nil {
			return nil, droplock.TransportError("scanning admin command", err)
		}
		c.TS = fromMillis(ts)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, droplock.TransportError("listing admin commands", err)
	}
	return out, nil
}

// Alert operations

const alertColumns = "id, type, sector_id, locker_id, severity, status, created_at, acked_by_uid, actor_uid, booking_id"

func scanAlert(row scanner) (*droplock.Alert, error) {
	var (
		a                          droplock.Alert
		alertType, severity, state string
		createdAt                  int64
		ackedBy, actor, booking    sql.NullString
	)
	if err := row.Scan(&a.ID, &alertType, &a.SectorID, &a.LockerID, &severity, &state, &createdAt, &ackedBy, &actor, &booking); err != nil {
		return nil, err
	}
	a.Type = droplock.AlertType(alertType)
	a.Severity = droplock.Severity(severity)
	a.Status = droplock.AlertStatus(state)
	a.CreatedAt = fromMillis(createdAt)
	a.AckedByUID = ackedBy.String
	a.ActorUID = actor.String
	a.BookingID = booking.String
	return &a, nil
}

func (s *SQLiteDatabase) queryAlerts(ctx context.Context, query string, args ...any) ([]*droplock.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, droplock.TransportError("listing alerts", err)
	}
	defer rows.Close()

	var out []*droplock.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, droplock.TransportError("scanning alert", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, droplock.TransportError("listing alerts", err)
	}
	return out, nil
}

// ListAlerts returns every alert, newest first.
func (s *SQLiteDatabase) ListAlerts() ([]*droplock.Alert, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.queryAlerts(ctx, "SELECT "+alertColumns+" FROM alerts ORDER BY created_at DESC, rowid DESC")
}

// GetAlert returns one alert, or nil.
func (s *SQLiteDatabase) GetAlert(alertID string) (*droplock.Alert, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	row := s.db.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = ?", alertID)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, droplock.TransportError("getting alert", err)
	}
	return a, nil
}

// ListOpenAlertsForLocker returns OPEN or ACKED alerts of one type for a locker.
func (s *SQLiteDatabase) ListOpenAlertsForLocker(sectorID, lockerID string, alertType droplock.AlertType) ([]*droplock.Alert, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.queryAlerts(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE sector_id = ? AND locker_id = ? AND type = ? AND status IN ('OPEN', 'ACKED')
		ORDER BY created_at DESC, rowid DESC`,
		sectorID, lockerID, string(alertType))
}

// InsertAlertIfNoneOpen runs the dedup check and the insert in one
// transaction.
func (s *SQLiteDatabase) InsertAlertIfNoneOpen(a *droplock.Alert) (bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, droplock.TransportError("starting transaction", err)
	}
	defer tx.Rollback()

	var live int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alerts
		WHERE sector_id = ? AND locker_id = ? AND type = ? AND status IN ('OPEN', 'ACKED')`,
		a.SectorID, a.LockerID, string(a.Type)).Scan(&live)
	if err != nil {
		return false, droplock.TransportError("checking open alerts", err)
	}
	if live > 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO alerts ("+alertColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		a.ID, string(a.Type), a.SectorID, a.LockerID, string(a.Severity), string(a.Status),
		toMillis(a.CreatedAt), nullString(a.AckedByUID), nullString(a.ActorUID), nullString(a.BookingID))
	if err != nil {
		return false, droplock.TransportError("inserting alert", err)
	}
	if err := tx.Commit(); err != nil {
		return false, droplock.TransportError("committing transaction", err)
	}
	return true, nil
}

// UpdateAlertStatus sets an alert's status and, when given, the acking uid.
func (s *SQLiteDatabase) UpdateAlertStatus(alertID string, status droplock.AlertStatus, ackedByUID string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	query := "UPDATE alerts SET status = ? WHERE id = ?"
	args := []any{string(status), alertID}
	if ackedByUID != "" {
		query = "UPDATE alerts SET status = ?, acked_by_uid = ? WHERE id = ?"
		args = []any{string(status), ackedByUID, alertID}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return droplock.TransportError("updating alert status", err)
	}
	return requireAffected(res, "alert "+alertID)
}

// Helpers

type scanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullStringPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func encodeMap(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeMap(v sql.NullString) (map[string]any, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(v.String), &m); err != nil {
		return nil, fmt.Errorf("decoding event payload: %w", err)
	}
	return m, nil
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return droplock.TransportError("reading affected rows", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", droplock.ErrNotFound, what)
	}
	return nil
}

func isConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
