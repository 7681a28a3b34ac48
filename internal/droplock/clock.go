package droplock

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies "now" for offline derivation, audit timestamps and
// alert creation. Tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator mints ids for events, commands and alerts.
type IDGenerator interface {
	New() string
}

// UUIDGenerator mints random v4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
