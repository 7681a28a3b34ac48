package ingest

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"droplock/internal/config"
	"droplock/internal/droplock"
	"droplock/internal/testutil"
)

type recordedCall struct {
	kind     string
	sectorID string
	lockerID string
	flag     bool
	at       time.Time
}

type fakeReporter struct {
	mu    sync.Mutex
	calls []recordedCall
	block chan struct{}
}

func (f *fakeReporter) Heartbeat(sectorID, lockerID string, at time.Time) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{kind: "heartbeat", sectorID: sectorID, lockerID: lockerID, at: at})
	return nil
}

func (f *fakeReporter) Tamper(sectorID, lockerID string, flag bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{kind: "tamper", sectorID: sectorID, lockerID: lockerID, flag: flag, at: at})
	return nil
}

func newTestBridge(r Reporter, clock droplock.Clock) *Bridge {
	cfg := config.MQTTConfig{Broker: "tcp://127.0.0.1:1", ClientID: "test", TopicPrefix: "dl"}
	return NewBridge(cfg, r, droplock.NewNopLogger(), clock)
}

func TestBridge_Topics(t *testing.T) {
	b := newTestBridge(&fakeReporter{}, testutil.FixedClock())
	want := []string{"dl/+/+/heartbeat", "dl/+/+/tamper"}
	if got := b.Topics(); !reflect.DeepEqual(got, want) {
		t.Errorf("Topics() = %v, want %v", got, want)
	}
}

func TestBridge_HandleMessage(t *testing.T) {
	clock := testutil.FixedClock()
	stamp := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	tests := []struct {
		name    string
		topic   string
		payload string
		want    recordedCall
	}{
		{
			name:    "heartbeat without ts",
			topic:   "dl/S1/L1/heartbeat",
			payload: `{}`,
			want:    recordedCall{kind: "heartbeat", sectorID: "S1", lockerID: "L1", at: clock.Now()},
		},
		{
			name:    "heartbeat empty body",
			topic:   "dl/S1/L1/heartbeat",
			payload: ``,
			want:    recordedCall{kind: "heartbeat", sectorID: "S1", lockerID: "L1", at: clock.Now()},
		},
		{
			name:    "heartbeat rfc3339",
			topic:   "dl/S1/L2/heartbeat",
			payload: `{"ts":"2026-02-03T04:05:06Z"}`,
			want:    recordedCall{kind: "heartbeat", sectorID: "S1", lockerID: "L2", at: stamp},
		},
		{
			name:    "tamper raised with millis",
			topic:   "dl/S2/L9/tamper",
			payload: `{"flag":true,"ts":1770091506000}`,
			want:    recordedCall{kind: "tamper", sectorID: "S2", lockerID: "L9", flag: true, at: time.UnixMilli(1770091506000)},
		},
		{
			name:    "tamper cleared",
			topic:   "dl/S2/L9/tamper",
			payload: `{"flag":false}`,
			want:    recordedCall{kind: "tamper", sectorID: "S2", lockerID: "L9", at: clock.Now()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeReporter{}
			b := newTestBridge(r, clock)
			if err := b.HandleMessage(tt.topic, []byte(tt.payload)); err != nil {
				t.Fatalf("HandleMessage() error = %v", err)
			}
			if len(r.calls) != 1 {
				t.Fatalf("calls = %d, want 1", len(r.calls))
			}
			got := r.calls[0]
			if got.kind != tt.want.kind || got.sectorID != tt.want.sectorID || got.lockerID != tt.want.lockerID || got.flag != tt.want.flag || !got.at.Equal(tt.want.at) {
				t.Errorf("call = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBridge_HandleMessageRejects(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"foreign prefix", "other/S1/L1/heartbeat", `{}`},
		{"short topic", "dl/S1/heartbeat", `{}`},
		{"empty sector", "dl//L1/heartbeat", `{}`},
		{"unknown kind", "dl/S1/L1/door", `{}`},
		{"bad json", "dl/S1/L1/heartbeat", `{`},
		{"bad ts", "dl/S1/L1/heartbeat", `{"ts":"yesterday"}`},
		{"bool ts", "dl/S1/L1/heartbeat", `{"ts":true}`},
		{"tamper without flag", "dl/S1/L1/tamper", `{"ts":"2026-02-03T04:05:06Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeReporter{}
			b := newTestBridge(r, testutil.FixedClock())
			err := b.HandleMessage(tt.topic, []byte(tt.payload))
			if !errors.Is(err, droplock.ErrValidation) {
				t.Errorf("HandleMessage() error = %v, want ErrValidation", err)
			}
			if len(r.calls) != 0 {
				t.Errorf("reporter called %d times", len(r.calls))
			}
		})
	}
}

func TestBridge_WriteTimeout(t *testing.T) {
	r := &fakeReporter{block: make(chan struct{})}
	defer close(r.block)
	b := newTestBridge(r, testutil.FixedClock())
	b.timeout = 10 * time.Millisecond

	err := b.HandleMessage("dl/S1/L1/heartbeat", []byte(`{}`))
	if !errors.Is(err, droplock.ErrTransport) {
		t.Errorf("HandleMessage() error = %v, want ErrTransport", err)
	}
}

func TestBridge_DeviceReports(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	clock := testutil.FixedClock()
	testutil.SeedLocker(t, db, "S1", "L1", clock.Now())
	b := newTestBridge(droplock.NewDeviceReports(db, droplock.NewNopLogger()), clock)

	if err := b.HandleMessage("dl/S1/L1/heartbeat", []byte(`{}`)); err != nil {
		t.Fatalf("heartbeat error = %v", err)
	}
	if err := b.HandleMessage("dl/S1/L1/tamper", []byte(`{"flag":true}`)); err != nil {
		t.Fatalf("tamper error = %v", err)
	}

	l, err := db.GetLocker("S1", "L1")
	if err != nil || l == nil {
		t.Fatalf("GetLocker() = %v, %v", l, err)
	}
	if l.LastHeartbeatAt == nil || !l.LastHeartbeatAt.Equal(clock.Now()) {
		t.Errorf("LastHeartbeatAt = %v, want %v", l.LastHeartbeatAt, clock.Now())
	}
	if !l.Tamper.Flag {
		t.Error("Tamper.Flag = false, want true")
	}

	err = b.HandleMessage("dl/S1/NOPE/heartbeat", []byte(`{}`))
	if !IsUnknownLocker(err) {
		t.Errorf("unknown locker error = %v, want ErrNotFound", err)
	}
}
