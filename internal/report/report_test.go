package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"droplock/internal/droplock"
)

func sampleViews() []*droplock.LockerView {
	hb := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tamperAt := hb.Add(-time.Minute)
	return []*droplock.LockerView{
		{LockerID: "L1", SectorID: "S1", State: droplock.StateAvailable},
		{LockerID: "L2", SectorID: "S1", State: droplock.StateOccupied, ActiveBookingID: "B7", LastHeartbeatAt: &hb},
		{LockerID: "L3", SectorID: "S1", State: droplock.StateMaintenance, TamperFlag: true, TamperLastAt: &tamperAt, LastHeartbeatAt: &hb, IsOffline: true},
	}
}

func TestWriteLockersCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLockersCSV(&buf, sampleViews()); err != nil {
		t.Fatalf("WriteLockersCSV() error = %v", err)
	}
	want := "lockerId,state,bookingId,tamper,offline,lastHeartbeatAt\n" +
		"L1,AVAILABLE,,false,false,\n" +
		"L2,OCCUPIED,B7,false,false,1772355600000\n" +
		"L3,MAINTENANCE,,true,true,1772355600000\n"
	if buf.String() != want {
		t.Errorf("WriteLockersCSV() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteLockersYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLockersYAML(&buf, sampleViews()); err != nil {
		t.Fatalf("WriteLockersYAML() error = %v", err)
	}

	var doc lockerDocument
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not valid yaml: %v\n%s", err, buf.String())
	}
	if len(doc.Lockers) != 3 {
		t.Fatalf("lockers = %d, want 3", len(doc.Lockers))
	}
	l3 := doc.Lockers[2]
	if !l3.Tamper || !l3.Offline || l3.TamperLastAt == nil || *l3.TamperLastAt != 1772355540000 {
		t.Errorf("L3 record = %+v", l3)
	}
	if strings.Contains(buf.String(), "bookingId: \"\"") {
		t.Error("empty bookingId should be omitted")
	}
}

func TestRenderer_Lockers(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, nil)
	r.Lockers(sampleViews())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "LOCKER") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[3], "OFFLINE") || !strings.Contains(lines[3], "TAMPER") {
		t.Errorf("offline tampered row = %q", lines[3])
	}
	if !strings.Contains(lines[2], "2026-03-01T09:00:00") {
		t.Errorf("heartbeat not rendered: %q", lines[2])
	}
	// Columns line up: STATE starts at the same offset on every line.
	col := strings.Index(lines[0], "STATE")
	for _, line := range lines[1:] {
		if line[col-2:col] != "  " || line[col] == ' ' {
			t.Errorf("misaligned row %q", line)
		}
	}
}

func TestRenderer_EmptyLists(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, nil)
	r.Lockers(nil)
	r.Alerts(nil)
	if got := buf.String(); got != "No lockers match filters\nNo alerts\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRenderer_Metrics(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, nil)
	r.Metrics(droplock.ComputeSectorMetrics(sampleViews()))

	out := buf.String()
	for _, want := range []string{"Total Lockers: 3", "Available: 1", "Offline: 1", "System status: 66.7% online | 1 tampered lockers"} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %q:\n%s", want, out)
		}
	}
}

func TestRenderer_Alerts(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, time.UTC)
	r.Alerts([]*droplock.Alert{{
		ID: "a1", Type: droplock.AlertTamper, SectorID: "S1", LockerID: "L3",
		Severity: droplock.SeverityHigh, Status: droplock.AlertOpen,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}})
	out := buf.String()
	for _, want := range []string{"a1", "TAMPER", "S1/L3", "HIGH", "OPEN", "2026-03-01T09:00:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("alerts missing %q:\n%s", want, out)
		}
	}
}

func TestFormatTS(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, time.FixedZone("X", 3600))
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if got := r.FormatTS(&at); got != "2026-03-01T10:00:00" {
		t.Errorf("FormatTS() = %q", got)
	}
	if got := r.FormatTS(nil); got != "-" {
		t.Errorf("FormatTS(nil) = %q", got)
	}
}
