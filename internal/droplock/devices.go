package droplock

import (
	"fmt"
	"time"
)

// DeviceReports records signals sent by field lockers. Reports for
// lockers that were never created are rejected with ErrNotFound so a
// misconfigured device cannot conjure records.
type DeviceReports struct {
	database Database
	logger   Logger
}

func NewDeviceReports(database Database, logger Logger) *DeviceReports {
	return &DeviceReports{database: database, logger: logger}
}

// Heartbeat stores a liveness timestamp.
func (d *DeviceReports) Heartbeat(sectorID, lockerID string, at time.Time) error {
	if err := d.requireLocker(sectorID, lockerID); err != nil {
		return err
	}
	if err := d.database.RecordHeartbeat(sectorID, lockerID, at); err != nil {
		return fmt.Errorf("recording heartbeat: %w", err)
	}
	d.logger.Debug("heartbeat", lockerAttrs(sectorID, lockerID, "at", at.UnixMilli())...)
	return nil
}

// Tamper stores the tamper flag. A raised flag also stamps tamper.lastAt.
func (d *DeviceReports) Tamper(sectorID, lockerID string, flag bool, at time.Time) error {
	if err := d.requireLocker(sectorID, lockerID); err != nil {
		return err
	}
	if err := d.database.RecordTamper(sectorID, lockerID, flag, at); err != nil {
		return fmt.Errorf("recording tamper: %w", err)
	}
	if flag {
		d.logger.Warn("tamper reported", lockerAttrs(sectorID, lockerID)...)
	}
	return nil
}

func (d *DeviceReports) requireLocker(sectorID, lockerID string) error {
	locker, err := d.database.GetLocker(sectorID, lockerID)
	if err != nil {
		return fmt.Errorf("loading locker: %w", err)
	}
	if locker == nil {
		return fmt.Errorf("%w: locker %s/%s", ErrNotFound, sectorID, lockerID)
	}
	return nil
}
