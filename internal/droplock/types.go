package droplock

import (
	"fmt"
	"time"
)

// Role is the kind of account a profile belongs to.
type Role string

const (
	RoleSuperAdmin Role = "superAdmin"
	RoleAdmin      Role = "admin"
	RoleDevice     Role = "device"
)

// ProfileStatus controls whether a profile may act at all.
type ProfileStatus string

const (
	ProfileActive   ProfileStatus = "active"
	ProfileDisabled ProfileStatus = "disabled"
)

// ParseProfileStatus accepts only "active" and "disabled".
func ParseProfileStatus(s string) (ProfileStatus, error) {
	switch ProfileStatus(s) {
	case ProfileActive, ProfileDisabled:
		return ProfileStatus(s), nil
	default:
		return "", fmt.Errorf("%w: status must be active or disabled, got %q", ErrValidation, s)
	}
}

// Profile links an identity-provider account to a console role.
// SectorID is required for admins and devices and empty for superAdmins.
type Profile struct {
	UID         string
	Role        Role
	Status      ProfileStatus
	SectorID    string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

const (
	DefaultHeartbeatTimeoutSec = 120
	DefaultOpenPulseMs         = 500
	DefaultTimezone            = "UTC"

	MinHeartbeatTimeoutSec = 10
	MinOpenPulseMs         = 50
)

// SectorConfig holds the per-sector device settings.
type SectorConfig struct {
	HeartbeatTimeoutSec int
	OpenPulseMs         int
	Timezone            string
}

// DefaultSectorConfig returns the settings a sector gets when none are stored.
func DefaultSectorConfig() SectorConfig {
	return SectorConfig{
		HeartbeatTimeoutSec: DefaultHeartbeatTimeoutSec,
		OpenPulseMs:         DefaultOpenPulseMs,
		Timezone:            DefaultTimezone,
	}
}

// SectorConfigUpdate is a partial config. Nil fields are left untouched.
type SectorConfigUpdate struct {
	HeartbeatTimeoutSec *int
	OpenPulseMs         *int
	Timezone            *string
}

// Empty reports whether the update carries no fields.
func (u SectorConfigUpdate) Empty() bool {
	return u.HeartbeatTimeoutSec == nil && u.OpenPulseMs == nil && u.Timezone == nil
}

// Validate checks the supplied fields against their lower bounds.
func (u SectorConfigUpdate) Validate() error {
	if u.HeartbeatTimeoutSec != nil && *u.HeartbeatTimeoutSec < MinHeartbeatTimeoutSec {
		return fmt.Errorf("%w: heartbeatTimeoutSec must be >= %d", ErrValidation, MinHeartbeatTimeoutSec)
	}
	if u.OpenPulseMs != nil && *u.OpenPulseMs < MinOpenPulseMs {
		return fmt.Errorf("%w: openPulseMs must be >= %d", ErrValidation, MinOpenPulseMs)
	}
	if u.Timezone != nil {
		if *u.Timezone == "" {
			return fmt.Errorf("%w: timezone must not be empty", ErrValidation)
		}
		if _, err := time.LoadLocation(*u.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrValidation, *u.Timezone)
		}
	}
	return nil
}

// Apply merges the update into cfg.
func (u SectorConfigUpdate) Apply(cfg SectorConfig) SectorConfig {
	if u.HeartbeatTimeoutSec != nil {
		cfg.HeartbeatTimeoutSec = *u.HeartbeatTimeoutSec
	}
	if u.OpenPulseMs != nil {
		cfg.OpenPulseMs = *u.OpenPulseMs
	}
	if u.Timezone != nil {
		cfg.Timezone = *u.Timezone
	}
	return cfg
}

// Sector is a site grouping of lockers sharing one configuration.
type Sector struct {
	ID         string
	Config     SectorConfig
	AdminUIDs  []string
	DeviceUIDs []string
}

// LockerState is the rental state of a physical locker.
type LockerState string

const (
	StateAvailable   LockerState = "AVAILABLE"
	StateReserved    LockerState = "RESERVED"
	StateOccupied    LockerState = "OCCUPIED"
	StateMaintenance LockerState = "MAINTENANCE"

	// StateUnknown is only produced by view derivation for records
	// that carry no state.
	StateUnknown LockerState = "UNKNOWN"
)

// LockerStates lists the states an operator may assign.
var LockerStates = []LockerState{StateAvailable, StateReserved, StateOccupied, StateMaintenance}

// ParseLockerState validates an operator-supplied state name.
func ParseLockerState(s string) (LockerState, error) {
	for _, st := range LockerStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown locker state %q", ErrValidation, s)
}

// Tamper is the interference signal reported by a locker.
type Tamper struct {
	Flag   bool
	LastAt *time.Time
}

// Locker is the stored record for one physical locker.
type Locker struct {
	SectorID        string
	LockerID        string
	State           LockerState
	ActiveBookingID string
	LastChangedAt   time.Time
	LastHeartbeatAt *time.Time
	Tamper          Tamper
}

// Snapshot renders the locker as a plain map for audit events.
func (l *Locker) Snapshot() map[string]any {
	if l == nil {
		return nil
	}
	snap := map[string]any{
		"state":           string(l.State),
		"activeBookingId": nilIfEmpty(l.ActiveBookingID),
		"lastChangedAt":   l.LastChangedAt.UnixMilli(),
		"lastHeartbeatAt": millisOrNil(l.LastHeartbeatAt),
		"tamper": map[string]any{
			"flag":   l.Tamper.Flag,
			"lastAt": millisOrNil(l.Tamper.LastAt),
		},
	}
	return snap
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func millisOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

// Locker event types.
const (
	EventSetState       = "SET_STATE"
	EventMaintenanceOn  = "MAINTENANCE_ON"
	EventMaintenanceOff = "MAINTENANCE_OFF"
	EventAdminOpen      = "ADMIN_OPEN"
	EventForcedOpen     = "FORCED_OPEN"
	EventCreateLocker   = "CREATE_LOCKER"
	EventDeleteLocker   = "DELETE_LOCKER"
	EventBookingSet     = "BOOKING_ASSIGNED"
	EventBookingCleared = "BOOKING_CLEARED"
)

// LockerEvent is an append-only audit record for one locker.
type LockerEvent struct {
	ID        string
	SectorID  string
	LockerID  string
	Type      string
	ActorUID  string
	Before    map[string]any
	After     map[string]any
	Timestamp time.Time
}

// Booking event types.
const (
	BookingStatusChanged = "STATUS_CHANGED"
	BookingUnlockGranted = "UNLOCK_GRANTED"
)

// BookingEvent is an append-only audit record keyed by booking.
type BookingEvent struct {
	ID        string
	BookingID string
	Type      string
	TS        time.Time
	ActorUID  string
	Data      map[string]any
}

// CommandOpen is the only command a locker currently understands.
const CommandOpen = "OPEN"

// AdminCommand is a one-shot instruction consumed by the physical locker.
type AdminCommand struct {
	ID       string
	SectorID string
	LockerID string
	Cmd      string
	ActorUID string
	TS       time.Time
}

// AlertType names the condition an alert was raised for.
type AlertType string

const (
	AlertTamper     AlertType = "TAMPER"
	AlertOffline    AlertType = "OFFLINE"
	AlertFailedOpen AlertType = "FAILED_OPEN"
)

// Severity ranks alerts for triage.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// AlertStatus is the lifecycle position of an alert.
// OPEN -> ACKED -> CLOSED, with OPEN -> CLOSED also allowed.
type AlertStatus string

const (
	AlertOpen   AlertStatus = "OPEN"
	AlertAcked  AlertStatus = "ACKED"
	AlertClosed AlertStatus = "CLOSED"
)

// ParseAlertStatus validates an alert status name.
func ParseAlertStatus(s string) (AlertStatus, error) {
	switch AlertStatus(s) {
	case AlertOpen, AlertAcked, AlertClosed:
		return AlertStatus(s), nil
	default:
		return "", fmt.Errorf("%w: unknown alert status %q", ErrValidation, s)
	}
}

// Live reports whether the status still occupies the dedup slot.
func (s AlertStatus) Live() bool {
	return s == AlertOpen || s == AlertAcked
}

// Alert is a safety or operational alert raised against a locker.
type Alert struct {
	ID         string
	Type       AlertType
	SectorID   string
	LockerID   string
	Severity   Severity
	Status     AlertStatus
	CreatedAt  time.Time
	AckedByUID string
	ActorUID   string
	BookingID  string
}
