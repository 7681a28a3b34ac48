package droplock

import (
	"fmt"
	"sort"
	"strings"
)

// AdminService is the orchestration layer behind every console
// interaction: it gates the actor, performs the write and fans out the
// audit, booking and alert side effects.
type AdminService struct {
	database    Database
	gate        *Gate
	audit       *AuditLog
	alerts      *AlertService
	reconciler  *Reconciler
	logger      Logger
	clock       Clock
	transitions TransitionValidator
}

// NewAdminService creates an AdminService. signals backs the reconciler's
// rising-edge detection.
func NewAdminService(database Database, alerts *AlertService, signals SignalMemory, logger Logger, clock Clock, idgen IDGenerator) *AdminService {
	return &AdminService{
		database:    database,
		gate:        NewGate(database, logger),
		audit:       NewAuditLog(database, clock, idgen),
		alerts:      alerts,
		reconciler:  NewReconciler(alerts, signals, logger),
		logger:      logger,
		clock:       clock,
		transitions: PermissiveTransitions{},
	}
}

// SetTransitionValidator installs a guard for locker state changes and
// alert status updates.
func (s *AdminService) SetTransitionValidator(v TransitionValidator) {
	s.transitions = v
	s.alerts.SetTransitionValidator(v)
}

// Gate exposes the authorization gate.
func (s *AdminService) Gate() *Gate { return s.gate }

// Audit exposes the audit log.
func (s *AdminService) Audit() *AuditLog { return s.audit }

// Sector views and dashboard

// sectorViews loads the sector's lockers and derives their views at the
// current time. A sector without stored config uses the defaults.
func (s *AdminService) sectorViews(sectorID string) ([]*LockerView, SectorConfig, error) {
	cfg := DefaultSectorConfig()
	sector, err := s.database.GetSector(sectorID)
	if err != nil {
		return nil, cfg, fmt.Errorf("loading sector: %w", err)
	}
	if sector != nil {
		cfg = sector.Config
	}

	lockers, err := s.database.LoadLockers(sectorID)
	if err != nil {
		return nil, cfg, fmt.Errorf("loading lockers: %w", err)
	}

	now := s.clock.Now()
	views := make([]*LockerView, 0, len(lockers))
	for _, l := range lockers {
		views = append(views, BuildLockerView(l.LockerID, sectorID, l, cfg.HeartbeatTimeoutSec, now))
	}
	return views, cfg, nil
}

// Dashboard is one rendered sector page.
type Dashboard struct {
	SectorID  string
	Config    SectorConfig
	Views     []*LockerView
	Metrics   SectorMetrics
	NewAlerts []string
}

// Dashboard derives the sector's views, runs a reconciliation pass over
// them and computes the metrics. Every sector page render goes through
// here.
func (s *AdminService) Dashboard(actorUID, sectorID string) (*Dashboard, error) {
	if _, err := s.gate.AssertCanAdmin(actorUID, sectorID); err != nil {
		return nil, err
	}

	views, cfg, err := s.sectorViews(sectorID)
	if err != nil {
		return nil, err
	}

	created, err := s.reconciler.Reconcile(actorUID, views)
	if err != nil {
		return nil, fmt.Errorf("reconciling alerts: %w", err)
	}

	return &Dashboard{
		SectorID:  sectorID,
		Config:    cfg,
		Views:     views,
		Metrics:   ComputeSectorMetrics(views),
		NewAlerts: created,
	}, nil
}

// Sectors

// ListSectors returns the sectors visible to the actor, ordered by id.
// Admins only see their own sector.
func (s *AdminService) ListSectors(actorUID string) ([]*Sector, error) {
	profile, err := s.gate.AssertConsoleAccess(actorUID)
	if err != nil {
		return nil, err
	}

	all, err := s.database.LoadAllSectors()
	if err != nil {
		return nil, fmt.Errorf("loading sectors: %w", err)
	}

	var sectors []*Sector
	for id, sector := range all {
		if profile.Role == RoleAdmin && id != profile.SectorID {
			continue
		}
		sectors = append(sectors, sector)
	}
	sort.Slice(sectors, func(i, j int) bool { return sectors[i].ID < sectors[j].ID })
	return sectors, nil
}

// GetSector returns one sector. Returns ErrNotFound if absent.
func (s *AdminService) GetSector(actorUID, sectorID string) (*Sector, error) {
	if _, err := s.gate.AssertCanAdmin(actorUID, sectorID); err != nil {
		return nil, err
	}
	sector, err := s.database.GetSector(sectorID)
	if err != nil {
		return nil, fmt.Errorf("loading sector: %w", err)
	}
	if sector == nil {
		return nil, fmt.Errorf("%w: sector %s", ErrNotFound, sectorID)
	}
	return sector, nil
}

// CreateSector registers a new sector with the default config.
func (s *AdminService) CreateSector(actorUID, sectorID string) error {
	if _, err := s.gate.AssertSuperAdmin(actorUID); err != nil {
		return err
	}
	if err := validateKey("sector id", sectorID); err != nil {
		return err
	}
	if err := s.database.CreateSector(sectorID, DefaultSectorConfig()); err != nil {
		return fmt.Errorf("creating sector: %w", err)
	}
	s.logger.Info("sector created", "sector", sectorID)
	return nil
}

// UpdateSectorConfig merges the supplied fields into the sector config.
// Only superAdmins may change sector config.
func (s *AdminService) UpdateSectorConfig(actorUID, sectorID string, update SectorConfigUpdate) error {
	if _, err := s.gate.AssertSuperAdmin(actorUID); err != nil {
		return err
	}
	if update.Empty() {
		return fmt.Errorf("%w: no config fields supplied", ErrValidation)
	}
	if err := update.Validate(); err != nil {
		return err
	}
	if err := s.database.UpdateSectorConfig(sectorID, update); err != nil {
		return fmt.Errorf("updating sector config: %w", err)
	}
	s.logger.Info("sector config updated", "sector", sectorID)
	return nil
}

// Locker actions

// AdminSetState overrides a locker's state and records the change. A
// booked locker also gets a STATUS_CHANGED booking event.
func (s *AdminService) AdminSetState(actorUID, sectorID, lockerID string, state LockerState) error {
	if _, err := s.gate.AssertCanAdmin(actorUID, sectorID); err != nil {
		return err
	}
	if _, err := ParseLockerState(string(state)); err != nil {
		return err
	}

	locker, err := s.requireLocker(sectorID, lockerID)
	if err != nil {
		return err
	}
	if err := s.transitions.ValidateLockerTransition(locker, state); err != nil {
		return err
	}

	before := locker.State
	if err := s.database.SetLockerState(sectorID, lockerID, state, s.clock.Now()); err != nil {
		return fmt.Errorf("setting locker state: %w", err)
	}

	eventType := EventSetState
	switch {
	case state == StateMaintenance:
		eventType = EventMaintenanceOn
	case before == StateMaintenance:
		eventType = EventMaintenanceOff
	}
	if _, err := s.audit.AppendLockerEvent(sectorID, lockerID, eventType, actorUID,
		map[string]any{"state": string(before)},
		map[string]any{"state": string(state)},
	); err != nil {
		return err
	}

	if locker.ActiveBookingID != "" {
		err := s.audit.AppendBookingEvent(locker.ActiveBookingID, BookingStatusChanged, actorUID, map[string]any{
			"source":   "ADMIN_DASHBOARD",
			"lockerId": lockerID,
			"sectorId": sectorID,
			"before":   string(before),
			"after":    string(state),
		})
		if err != nil {
			return err
		}
	}

	s.logger.Info("locker state set", lockerAttrs(sectorID, lockerID, "from", string(before), "to", string(state))...)
	return nil
}

// AdminRequestOpen pushes an OPEN command and audits it. Opening a booked
// locker is a forced open: it grants the unlock on the booking and raises
// a FAILED_OPEN alert. Returns the command id.
func (s *AdminService) AdminRequestOpen(actorUID, sectorID, lockerID, reason string) (string, error) {
	if _, err := s.gate.AssertCanAdmin(actorUID, sectorID); err != nil {
		return "", err
	}

	locker, err := s.requireLocker(sectorID, lockerID)
	if err != nil {
		return "", err
	}

	cmdID, err := s.audit.PushAdminOpenCommand(sectorID, lockerID, actorUID)
	if err != nil {
		return "", err
	}
	if _, err := s.audit.AppendLockerEvent(sectorID, lockerID, EventAdminOpen, actorUID,
		map[string]any{"state": string(locker.State)},
		map[string]any{"cmdId": cmdID},
	); err != nil {
		return cmdID, err
	}

	bookingID := locker.ActiveBookingID
	if bookingID == "" {
		s.logger.Info("open command issued", lockerAttrs(sectorID, lockerID, "cmd", cmdID)...)
		return cmdID, nil
	}

	err = s.audit.AppendBookingEvent(bookingID, BookingUnlockGranted, actorUID, map[string]any{
		"source":      "ADMIN_DASHBOARD",
		"cmdId":       cmdID,
		"lockerId":    lockerID,
		"sectorId":    sectorID,
		"forced":      true,
		"reason":      reason,
		"lockerState": string(locker.State),
	})
	if err != nil {
		return cmdID, err
	}

	alertID, created, err := s.alerts.CreateAlert(NewAlert{
		Type:      AlertFailedOpen,
		SectorID:  sectorID,
		LockerID:  lockerID,
		Severity:  SeverityHigh,
		ActorUID:  actorUID,
		BookingID: bookingID,
	})
	if err != nil {
		return cmdID, err
	}
	if created {
		s.alerts.MaybeSendEmail(Notification{
			Recipient: s.alerts.Recipient(actorUID),
			Type:      AlertFailedOpen,
			SectorID:  sectorID,
			LockerID:  lockerID,
			ActorUID:  actorUID,
			BookingID: bookingID,
		})

		after, err := s.database.GetLocker(sectorID, lockerID)
		if err != nil {
			return cmdID, fmt.Errorf("reloading locker: %w", err)
		}
		if _, err := s.audit.AppendLockerEvent(sectorID, lockerID, EventForcedOpen, actorUID, locker.Snapshot(), after.Snapshot()); err != nil {
			return cmdID, err
		}
	}

	s.logger.Warn("forced open on booked locker", lockerAttrs(sectorID, lockerID, "cmd", cmdID, "booking", bookingID, "alert", alertID)...)
	return cmdID, nil
}

// CreateLocker adds a locker in the default AVAILABLE state.
func (s *AdminService) CreateLocker(actorUID, sectorID, lockerID string) error {
	if _, err := s.gate.AssertSuperAdmin(actorUID); err != nil {
		return err
	}
	if err := validateKey("sector id", sectorID); err != nil {
		return err
	}
	if err := validateKey("locker id", lockerID); err != nil {
		return err
	}

	if err := s.database.CreateLocker(sectorID, lockerID, s.clock.Now()); err != nil {
		return fmt.Errorf("creating locker: %w", err)
	}
	after, err := s.database.GetLocker(sectorID, lockerID)
	if err != nil {
		return fmt.Errorf("reloading locker: %w", err)
	}
	if _, err := s.audit.AppendLockerEvent(sectorID, lockerID, EventCreateLocker, actorUID, nil, after.Snapshot()); err != nil {
		return err
	}

	s.logger.Info("locker created", lockerAttrs(sectorID, lockerID)...)
	return nil
}

// DeleteLocker removes a locker that has no active booking.
func (s *AdminService) DeleteLocker(actorUID, sectorID, lockerID string) error {
	if _, err := s.gate.AssertSuperAdmin(actorUID); err != nil {
		return err
	}

	before, err := s.database.GetLocker(sectorID, lockerID)
	if err != nil {
		return fmt.Errorf("loading locker: %w", err)
	}
	if err := s.database.DeleteLocker(sectorID, lockerID); err != nil {
		return fmt.Errorf("deleting locker: %w", err)
	}
	if _, err := s.audit.AppendLockerEvent(sectorID, lockerID, EventDeleteLocker, actorUID, before.Snapshot(), nil); err != nil {
		return err
	}

	s.logger.Info("locker deleted", lockerAttrs(sectorID, lockerID)...)
	return nil
}

// SetActiveBooking assigns bookingID to the locker, or clears the booking
// when bookingID is empty.
func (s *AdminService) SetActiveBooking(actorUID, sectorID, lockerID, bookingID string) error {
	if _, err := s.gate.AssertCanAdmin(actorUID, sectorID); err != nil {
		return err
	}

	locker, err := s.requireLocker(sectorID, lockerID)
	if err != nil {
		return err
	}
	if err := s.database.SetActiveBooking(sectorID, lockerID, bookingID); err != nil {
		return fmt.Errorf("setting active booking: %w", err)
	}

	eventType := EventBookingSet
	if bookingID == "" {
		eventType = EventBookingCleared
	}
	_, err = s.audit.AppendLockerEvent(sectorID, lockerID, eventType, actorUID,
		map[string]any{"activeBookingId": nilIfEmpty(locker.ActiveBookingID)},
		map[string]any{"activeBookingId": nilIfEmpty(bookingID)},
	)
	return err
}

// LockerEvents returns the audit trail of one locker, oldest first.
func (s *AdminService) LockerEvents(actorUID, sectorID, lockerID string) ([]*LockerEvent, error) {
	if _, err := s.gate.AssertCanAdmin(actorUID, sectorID); err != nil {
		return nil, err
	}
	events, err := s.database.ListLockerEvents(sectorID, lockerID)
	if err != nil {
		return nil, fmt.Errorf("listing locker events: %w", err)
	}
	return events, nil
}

// LockerCommands returns the commands issued to one locker, oldest first.
func (s *AdminService) LockerCommands(actorUID, sectorID, lockerID string) ([]*AdminCommand, error) {
	if _, err := s.gate.AssertCanAdmin(actorUID, sectorID); err != nil {
		return nil, err
	}
	cmds, err := s.database.ListAdminCommands(sectorID, lockerID)
	if err != nil {
		return nil, fmt.Errorf("listing admin commands: %w", err)
	}
	return cmds, nil
}

// BookingLog returns a booking's events. Admins only see events raised in
// their own sector.
func (s *AdminService) BookingLog(actorUID, bookingID string) ([]*BookingEvent, error) {
	profile, err := s.gate.AssertConsoleAccess(actorUID)
	if err != nil {
		return nil, err
	}
	events, err := s.database.ListBookingEvents(bookingID)
	if err != nil {
		return nil, fmt.Errorf("listing booking events: %w", err)
	}
	if profile.Role == RoleSuperAdmin {
		return events, nil
	}

	var out []*BookingEvent
	for _, e := range events {
		if sector, _ := e.Data["sectorId"].(string); sector == profile.SectorID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Alerts

// ListAlerts returns alerts newest first, optionally restricted to one
// status. Admins only see their own sector.
func (s *AdminService) ListAlerts(actorUID string, status AlertStatus) ([]*Alert, error) {
	profile, err := s.gate.AssertConsoleAccess(actorUID)
	if err != nil {
		return nil, err
	}
	if status != "" {
		if _, err := ParseAlertStatus(string(status)); err != nil {
			return nil, err
		}
	}

	alerts, err := s.alerts.ListAlerts()
	if err != nil {
		return nil, err
	}

	out := make([]*Alert, 0, len(alerts))
	for _, a := range alerts {
		if profile.Role == RoleAdmin && a.SectorID != profile.SectorID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// AckAlert marks an alert ACKED by the actor.
func (s *AdminService) AckAlert(actorUID, alertID string) error {
	if _, err := s.gate.AssertSuperAdmin(actorUID); err != nil {
		return err
	}
	return s.alerts.UpdateStatus(alertID, AlertAcked, actorUID)
}

// CloseAlert marks an alert CLOSED.
func (s *AdminService) CloseAlert(actorUID, alertID string) error {
	if _, err := s.gate.AssertSuperAdmin(actorUID); err != nil {
		return err
	}
	return s.alerts.UpdateStatus(alertID, AlertClosed, actorUID)
}

func (s *AdminService) requireLocker(sectorID, lockerID string) (*Locker, error) {
	locker, err := s.database.GetLocker(sectorID, lockerID)
	if err != nil {
		return nil, fmt.Errorf("loading locker: %w", err)
	}
	if locker == nil {
		return nil, fmt.Errorf("%w: locker %s/%s", ErrNotFound, sectorID, lockerID)
	}
	return locker, nil
}

// validateKey rejects ids that cannot be used as path segments.
func validateKey(what, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s is required", ErrValidation, what)
	}
	if strings.ContainsAny(id, "/.#$[] \t\n") {
		return fmt.Errorf("%w: %s %q contains reserved characters", ErrValidation, what, id)
	}
	return nil
}
