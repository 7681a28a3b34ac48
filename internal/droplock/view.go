package droplock

import (
	"math"
	"time"
)

// LockerView is a locker record enriched with derived state. It is
// rebuilt on every read and never persisted.
type LockerView struct {
	LockerID        string
	SectorID        string
	State           LockerState
	ActiveBookingID string
	TamperFlag      bool
	TamperLastAt    *time.Time
	LastHeartbeatAt *time.Time
	IsOffline       bool
	Raw             Locker
}

// IsOffline reports whether the last heartbeat is older than the timeout.
// A locker that never reported a heartbeat is not offline. The boundary
// is strict: exactly timeoutSec seconds of silence is still online.
func IsOffline(lastHeartbeatAt *time.Time, timeoutSec int, now time.Time) bool {
	if lastHeartbeatAt == nil || lastHeartbeatAt.IsZero() {
		return false
	}
	timeout := time.Duration(max(1, timeoutSec)) * time.Second
	return now.Sub(*lastHeartbeatAt) > timeout
}

// BuildLockerView derives the view for one locker. raw may be nil or
// partially filled; missing fields fall back to safe defaults.
func BuildLockerView(lockerID, sectorID string, raw *Locker, heartbeatTimeoutSec int, now time.Time) *LockerView {
	var rec Locker
	if raw != nil {
		rec = *raw
	}

	state := rec.State
	if state == "" {
		state = StateUnknown
	}

	return &LockerView{
		LockerID:        lockerID,
		SectorID:        sectorID,
		State:           state,
		ActiveBookingID: rec.ActiveBookingID,
		TamperFlag:      rec.Tamper.Flag,
		TamperLastAt:    rec.Tamper.LastAt,
		LastHeartbeatAt: rec.LastHeartbeatAt,
		IsOffline:       IsOffline(rec.LastHeartbeatAt, heartbeatTimeoutSec, now),
		Raw:             rec,
	}
}

// SectorMetrics are the dashboard counters for one sector. State buckets
// are exclusive; Offline and Tampered count independently of state.
type SectorMetrics struct {
	Total       int
	Available   int
	Occupied    int
	Maintenance int
	Offline     int
	Tampered    int
}

// ComputeSectorMetrics counts views in a single pass.
func ComputeSectorMetrics(views []*LockerView) SectorMetrics {
	m := SectorMetrics{Total: len(views)}
	for _, v := range views {
		switch v.State {
		case StateAvailable:
			m.Available++
		case StateOccupied:
			m.Occupied++
		case StateMaintenance:
			m.Maintenance++
		}
		if v.IsOffline {
			m.Offline++
		}
		if v.TamperFlag {
			m.Tampered++
		}
	}
	return m
}

// OnlinePercent is the share of lockers not offline, rounded to one
// decimal. An empty sector reports 0.
func (m SectorMetrics) OnlinePercent() float64 {
	if m.Total == 0 {
		return 0
	}
	pct := float64(m.Total-m.Offline) / float64(m.Total) * 100
	return math.Round(pct*10) / 10
}

// LockerFilter narrows a list of views. Set flags are ANDed together.
type LockerFilter struct {
	Booked      bool
	Maintenance bool
	Tampered    bool
	Offline     bool
}

// Apply returns the views that satisfy every set flag, in input order.
func (f LockerFilter) Apply(views []*LockerView) []*LockerView {
	out := make([]*LockerView, 0, len(views))
	for _, v := range views {
		if f.Booked && v.ActiveBookingID == "" {
			continue
		}
		if f.Maintenance && v.State != StateMaintenance {
			continue
		}
		if f.Tampered && !v.TamperFlag {
			continue
		}
		if f.Offline && !v.IsOffline {
			continue
		}
		out = append(out, v)
	}
	return out
}
