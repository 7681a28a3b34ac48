package droplock

import (
	"testing"
	"time"
)

func TestIsOffline(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	t.Run("never reported is online for any timeout", func(t *testing.T) {
		for _, timeout := range []int{0, 1, 10, 120, 86400} {
			if IsOffline(nil, timeout, now) {
				t.Errorf("IsOffline(nil, %d) = true, want false", timeout)
			}
			zero := time.Time{}
			if IsOffline(&zero, timeout, now) {
				t.Errorf("IsOffline(zero, %d) = true, want false", timeout)
			}
		}
	})

	t.Run("boundary is strictly greater than", func(t *testing.T) {
		for _, timeout := range []int{1, 2, 10, 120, 3600} {
			limit := time.Duration(timeout) * time.Second
			if !IsOffline(at(limit+time.Millisecond), timeout, now) {
				t.Errorf("T=%d: heartbeat T s + 1 ms ago should be offline", timeout)
			}
			if IsOffline(at(limit-time.Millisecond), timeout, now) {
				t.Errorf("T=%d: heartbeat T s - 1 ms ago should be online", timeout)
			}
			if IsOffline(at(limit), timeout, now) {
				t.Errorf("T=%d: heartbeat exactly T s ago should be online", timeout)
			}
		}
	})

	t.Run("timeout floor of one second", func(t *testing.T) {
		if IsOffline(at(500*time.Millisecond), 0, now) {
			t.Error("timeout 0 should behave as 1 s")
		}
		if !IsOffline(at(1001*time.Millisecond), -5, now) {
			t.Error("negative timeout should behave as 1 s")
		}
	})
}

func TestBuildLockerView(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("missing record falls back to defaults", func(t *testing.T) {
		v := BuildLockerView("L1", "S1", nil, 120, now)
		if v.State != StateUnknown {
			t.Errorf("State = %q, want UNKNOWN", v.State)
		}
		if v.TamperFlag || v.IsOffline || v.ActiveBookingID != "" {
			t.Errorf("view = %+v, want all clear", v)
		}
		if v.LockerID != "L1" || v.SectorID != "S1" {
			t.Errorf("ids = %s/%s", v.SectorID, v.LockerID)
		}
	})

	t.Run("copies and derives fields", func(t *testing.T) {
		hb := now.Add(-5 * time.Minute)
		raw := &Locker{
			State:           StateOccupied,
			ActiveBookingID: "B1",
			LastHeartbeatAt: &hb,
			Tamper:          Tamper{Flag: true, LastAt: &hb},
		}
		v := BuildLockerView("L1", "S1", raw, 120, now)
		if v.State != StateOccupied || v.ActiveBookingID != "B1" || !v.TamperFlag {
			t.Errorf("view = %+v", v)
		}
		if !v.IsOffline {
			t.Error("IsOffline = false, want true after 5 min with 120 s timeout")
		}
	})
}

func TestComputeSectorMetrics(t *testing.T) {
	views := []*LockerView{
		{State: StateAvailable},
		{State: StateAvailable, IsOffline: true},
		{State: StateOccupied, TamperFlag: true, IsOffline: true},
		{State: StateMaintenance, TamperFlag: true},
		{State: StateReserved},
		{State: StateUnknown},
	}

	got := ComputeSectorMetrics(views)
	want := SectorMetrics{Total: 6, Available: 2, Occupied: 1, Maintenance: 1, Offline: 2, Tampered: 2}
	if got != want {
		t.Errorf("ComputeSectorMetrics() = %+v, want %+v", got, want)
	}
	if pct := got.OnlinePercent(); pct != 66.7 {
		t.Errorf("OnlinePercent() = %v, want 66.7", pct)
	}
	if pct := (SectorMetrics{}).OnlinePercent(); pct != 0 {
		t.Errorf("empty OnlinePercent() = %v, want 0", pct)
	}
}

func TestLockerFilter_Apply(t *testing.T) {
	views := []*LockerView{
		{LockerID: "L1", State: StateAvailable},
		{LockerID: "L2", State: StateOccupied, ActiveBookingID: "B2", IsOffline: true},
		{LockerID: "L3", State: StateMaintenance, TamperFlag: true},
		{LockerID: "L4", State: StateOccupied, ActiveBookingID: "B4", TamperFlag: true, IsOffline: true},
	}

	tests := []struct {
		name   string
		filter LockerFilter
		want   []string
	}{
		{"no flags", LockerFilter{}, []string{"L1", "L2", "L3", "L4"}},
		{"booked", LockerFilter{Booked: true}, []string{"L2", "L4"}},
		{"maintenance", LockerFilter{Maintenance: true}, []string{"L3"}},
		{"tampered and offline", LockerFilter{Tampered: true, Offline: true}, []string{"L4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Apply(views)
			if len(got) != len(tt.want) {
				t.Fatalf("Apply() returned %d views, want %d", len(got), len(tt.want))
			}
			for i, v := range got {
				if v.LockerID != tt.want[i] {
					t.Errorf("Apply()[%d] = %s, want %s", i, v.LockerID, tt.want[i])
				}
			}
		})
	}
}
