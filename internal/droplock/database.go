package droplock

import "time"

// Database is the typed view of the shared locker store. Reads of absent
// records return (nil, nil) or an empty slice; writes against absent
// lockers return ErrNotFound. Each call is one remote round trip with a
// short fixed timeout; failures are wrapped with ErrTransport.
type Database interface {
	// Profile operations

	// GetProfile returns the profile for uid, or nil.
	GetProfile(uid string) (*Profile, error)

	// PutProfile creates or overwrites a profile.
	PutProfile(profile *Profile) error

	// UpdateProfileStatus changes a profile's status. Returns ErrNotFound
	// if the profile does not exist.
	UpdateProfileStatus(uid string, status ProfileStatus) error

	// ListProfiles returns every profile ordered by email.
	ListProfiles() ([]*Profile, error)

	// Sector operations

	// LoadAllSectors returns every sector keyed by id.
	LoadAllSectors() (map[string]*Sector, error)

	// GetSector returns one sector, or nil.
	GetSector(sectorID string) (*Sector, error)

	// CreateSector creates a sector with the given config. Returns
	// ErrConflict if it already exists.
	CreateSector(sectorID string, cfg SectorConfig) error

	// UpdateSectorConfig merges the supplied fields into the sector's
	// config, creating the sector with defaults first if needed.
	UpdateSectorConfig(sectorID string, update SectorConfigUpdate) error

	// AddSectorMember registers uid under the sector's adminUids or
	// deviceUids set, depending on role.
	AddSectorMember(sectorID string, uid string, role Role) error

	// Locker operations

	// GetLocker returns one locker, or nil.
	GetLocker(sectorID, lockerID string) (*Locker, error)

	// LoadLockers returns the lockers of a sector ordered by locker id.
	LoadLockers(sectorID string) ([]*Locker, error)

	// SetLockerState overwrites state and lastChangedAt without
	// checking the previous state.
	SetLockerState(sectorID, lockerID string, state LockerState, at time.Time) error

	// CreateLocker writes a default AVAILABLE record. Returns ErrConflict
	// if a record already exists at that key.
	CreateLocker(sectorID, lockerID string, at time.Time) error

	// DeleteLocker removes a locker. Returns ErrNotFound if absent and
	// ErrConflict if it has an active booking. The check and the delete
	// are atomic.
	DeleteLocker(sectorID, lockerID string) error

	// SetActiveBooking assigns or (with an empty id) clears the booking.
	SetActiveBooking(sectorID, lockerID, bookingID string) error

	// RecordHeartbeat stores a device liveness timestamp.
	RecordHeartbeat(sectorID, lockerID string, at time.Time) error

	// RecordTamper stores the device tamper flag.
	RecordTamper(sectorID, lockerID string, flag bool, at time.Time) error

	// AppendLockerEvent appends an audit event. event.ID must be set.
	AppendLockerEvent(event *LockerEvent) error

	// ListLockerEvents returns a locker's events, oldest first.
	ListLockerEvents(sectorID, lockerID string) ([]*LockerEvent, error)

	// Booking audit operations

	// AppendBookingEvent appends a booking event. event.ID must be set.
	AppendBookingEvent(event *BookingEvent) error

	// ListBookingEvents returns a booking's events, oldest first.
	ListBookingEvents(bookingID string) ([]*BookingEvent, error)

	// Command operations

	// AppendAdminCommand appends a one-shot command. cmd.ID must be set.
	AppendAdminCommand(cmd *AdminCommand) error

	// ListAdminCommands returns the commands issued for a locker, oldest first.
	ListAdminCommands(sectorID, lockerID string) ([]*AdminCommand, error)

	// Alert operations

	// ListAlerts returns every alert, newest first.
	ListAlerts() ([]*Alert, error)

	// GetAlert returns one alert, or nil.
	GetAlert(alertID string) (*Alert, error)

	// ListOpenAlertsForLocker returns the OPEN or ACKED alerts of one
	// type for a locker.
	ListOpenAlertsForLocker(sectorID, lockerID string, alertType AlertType) ([]*Alert, error)

	// InsertAlertIfNoneOpen inserts alert unless an OPEN or ACKED alert of
	// the same (sector, locker, type) exists. Returns whether it inserted.
	InsertAlertIfNoneOpen(alert *Alert) (bool, error)

	// UpdateAlertStatus sets the status, and ackedByUid when non-empty.
	UpdateAlertStatus(alertID string, status AlertStatus, ackedByUID string) error

	// Close closes the database connection.
	Close() error
}
