package droplock

import "fmt"

// AuditLog appends the locker, booking and command records that follow
// every privileged action. All three are append-only and never retried.
type AuditLog struct {
	database Database
	clock    Clock
	idgen    IDGenerator
}

func NewAuditLog(database Database, clock Clock, idgen IDGenerator) *AuditLog {
	return &AuditLog{database: database, clock: clock, idgen: idgen}
}

// AppendLockerEvent records an audit event and returns its id.
func (a *AuditLog) AppendLockerEvent(sectorID, lockerID, eventType, actorUID string, before, after map[string]any) (string, error) {
	event := &LockerEvent{
		ID:        a.idgen.New(),
		SectorID:  sectorID,
		LockerID:  lockerID,
		Type:      eventType,
		ActorUID:  actorUID,
		Before:    before,
		After:     after,
		Timestamp: a.clock.Now(),
	}
	if err := a.database.AppendLockerEvent(event); err != nil {
		return "", fmt.Errorf("appending %s event: %w", eventType, err)
	}
	return event.ID, nil
}

// AppendBookingEvent records a booking event.
func (a *AuditLog) AppendBookingEvent(bookingID, eventType, actorUID string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	event := &BookingEvent{
		ID:        a.idgen.New(),
		BookingID: bookingID,
		Type:      eventType,
		TS:        a.clock.Now(),
		ActorUID:  actorUID,
		Data:      data,
	}
	if err := a.database.AppendBookingEvent(event); err != nil {
		return fmt.Errorf("appending booking event: %w", err)
	}
	return nil
}

// PushAdminOpenCommand records an OPEN command for the locker to consume.
// Success means the command is stored, not that the door opened.
func (a *AuditLog) PushAdminOpenCommand(sectorID, lockerID, actorUID string) (string, error) {
	cmd := &AdminCommand{
		ID:       a.idgen.New(),
		SectorID: sectorID,
		LockerID: lockerID,
		Cmd:      CommandOpen,
		ActorUID: actorUID,
		TS:       a.clock.Now(),
	}
	if err := a.database.AppendAdminCommand(cmd); err != nil {
		return "", fmt.Errorf("pushing open command: %w", err)
	}
	return cmd.ID, nil
}
