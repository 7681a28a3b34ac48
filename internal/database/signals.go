package database

import (
	"database/sql"
	"errors"

	"droplock/internal/droplock"
)

// Signals returns a SignalMemory persisted in the locker_signals table, so
// rising-edge state survives between console invocations.
func (s *SQLiteDatabase) Signals() droplock.SignalMemory {
	return &sqliteSignals{s: s}
}

type sqliteSignals struct {
	s *SQLiteDatabase
}

// Load returns the remembered signal for a locker, zero if none.
func (m *sqliteSignals) Load(key droplock.SignalKey) (droplock.Signal, error) {
	ctx, cancel := m.s.ctx()
	defer cancel()

	var sig droplock.Signal
	err := m.s.db.QueryRowContext(ctx,
		"SELECT tamper, offline FROM locker_signals WHERE sector_id = ? AND locker_id = ?",
		key.SectorID, key.LockerID).Scan(&sig.Tamper, &sig.Offline)
	if errors.Is(err, sql.ErrNoRows) {
		return droplock.Signal{}, nil
	}
	if err != nil {
		return droplock.Signal{}, droplock.TransportError("loading signal", err)
	}
	return sig, nil
}

// Store remembers the latest signal for a locker.
func (m *sqliteSignals) Store(key droplock.SignalKey, sig droplock.Signal) error {
	ctx, cancel := m.s.ctx()
	defer cancel()

	_, err := m.s.db.ExecContext(ctx, `
		INSERT INTO locker_signals (sector_id, locker_id, tamper, offline) VALUES (?, ?, ?, ?)
		ON CONFLICT (sector_id, locker_id) DO UPDATE SET tamper = excluded.tamper, offline = excluded.offline`,
		key.SectorID, key.LockerID, sig.Tamper, sig.Offline)
	if err != nil {
		return droplock.TransportError("storing signal", err)
	}
	return nil
}
