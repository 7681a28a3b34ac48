package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"droplock/internal/droplock"
)

var csvHeader = []string{"lockerId", "state", "bookingId", "tamper", "offline", "lastHeartbeatAt"}

// WriteLockersCSV writes one row per view. lastHeartbeatAt is epoch
// milliseconds, empty when the locker never reported.
func WriteLockersCSV(w io.Writer, views []*droplock.LockerView) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, v := range views {
		record := []string{
			v.LockerID,
			string(v.State),
			v.ActiveBookingID,
			strconv.FormatBool(v.TamperFlag),
			strconv.FormatBool(v.IsOffline),
			"",
		}
		if v.LastHeartbeatAt != nil {
			record[5] = strconv.FormatInt(v.LastHeartbeatAt.UnixMilli(), 10)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv row for %s: %w", v.LockerID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

type lockerRecord struct {
	LockerID        string `yaml:"lockerId"`
	SectorID        string `yaml:"sectorId"`
	State           string `yaml:"state"`
	BookingID       string `yaml:"bookingId,omitempty"`
	Tamper          bool   `yaml:"tamper"`
	TamperLastAt    *int64 `yaml:"tamperLastAt,omitempty"`
	Offline         bool   `yaml:"offline"`
	LastHeartbeatAt *int64 `yaml:"lastHeartbeatAt,omitempty"`
}

type lockerDocument struct {
	Lockers []lockerRecord `yaml:"lockers"`
}

// WriteLockersYAML writes the views as a single YAML document with a
// top-level lockers list.
func WriteLockersYAML(w io.Writer, views []*droplock.LockerView) error {
	doc := lockerDocument{Lockers: make([]lockerRecord, 0, len(views))}
	for _, v := range views {
		doc.Lockers = append(doc.Lockers, lockerRecord{
			LockerID:        v.LockerID,
			SectorID:        v.SectorID,
			State:           string(v.State),
			BookingID:       v.ActiveBookingID,
			Tamper:          v.TamperFlag,
			TamperLastAt:    millis(v.TamperLastAt),
			Offline:         v.IsOffline,
			LastHeartbeatAt: millis(v.LastHeartbeatAt),
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}

func millis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
