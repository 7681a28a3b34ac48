package droplock

import (
	"fmt"
	"strings"
)

// AlertService owns the /alerts records: dedup-guarded creation, status
// updates and the notification that follows a newly created alert.
type AlertService struct {
	database          Database
	gate              *Gate
	mailer            Mailer
	logger            Logger
	clock             Clock
	idgen             IDGenerator
	transitions       TransitionValidator
	recipientOverride string
}

// NewAlertService creates an AlertService. recipientOverride, when set,
// receives every notification instead of the acting admin's email.
func NewAlertService(database Database, mailer Mailer, logger Logger, clock Clock, idgen IDGenerator, recipientOverride string) *AlertService {
	return &AlertService{
		database:          database,
		gate:              NewGate(database, logger),
		mailer:            mailer,
		logger:            logger,
		clock:             clock,
		idgen:             idgen,
		transitions:       PermissiveTransitions{},
		recipientOverride: recipientOverride,
	}
}

// SetTransitionValidator replaces the status-transition hook.
func (s *AlertService) SetTransitionValidator(v TransitionValidator) {
	s.transitions = v
}

// ListAlerts returns every alert, newest first.
func (s *AlertService) ListAlerts() ([]*Alert, error) {
	alerts, err := s.database.ListAlerts()
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	return alerts, nil
}

// ListOpenAlertsForLocker returns the alerts that occupy the dedup slot
// for (sector, locker, type).
func (s *AlertService) ListOpenAlertsForLocker(sectorID, lockerID string, alertType AlertType) ([]*Alert, error) {
	alerts, err := s.database.ListOpenAlertsForLocker(sectorID, lockerID, alertType)
	if err != nil {
		return nil, fmt.Errorf("listing open alerts: %w", err)
	}
	return alerts, nil
}

// NewAlert describes an alert to raise.
type NewAlert struct {
	Type      AlertType
	SectorID  string
	LockerID  string
	Severity  Severity
	ActorUID  string
	BookingID string
}

// CreateAlert raises an OPEN alert unless one of the same type is already
// OPEN or ACKED for the locker. It returns the new id and true, or ""
// and false when the slot was taken; the latter is not an error.
func (s *AlertService) CreateAlert(req NewAlert) (string, bool, error) {
	alert := &Alert{
		ID:        s.idgen.New(),
		Type:      req.Type,
		SectorID:  req.SectorID,
		LockerID:  req.LockerID,
		Severity:  req.Severity,
		Status:    AlertOpen,
		CreatedAt: s.clock.Now(),
		ActorUID:  req.ActorUID,
		BookingID: req.BookingID,
	}

	created, err := s.database.InsertAlertIfNoneOpen(alert)
	if err != nil {
		return "", false, fmt.Errorf("creating alert: %w", err)
	}
	if !created {
		s.logger.Debug("alert already open", "type", string(req.Type), "sector", req.SectorID, "locker", req.LockerID)
		return "", false, nil
	}

	s.logger.Info("alert created", "id", alert.ID, "type", string(req.Type), "sector", req.SectorID, "locker", req.LockerID)
	return alert.ID, true, nil
}

// UpdateStatus moves an alert to status. When status is ACKED and an
// actor is given, the actor is recorded as ackedByUid.
func (s *AlertService) UpdateStatus(alertID string, status AlertStatus, actorUID string) error {
	if _, err := ParseAlertStatus(string(status)); err != nil {
		return err
	}

	alert, err := s.database.GetAlert(alertID)
	if err != nil {
		return fmt.Errorf("loading alert: %w", err)
	}
	if alert == nil {
		return fmt.Errorf("%w: alert %s", ErrNotFound, alertID)
	}

	if err := s.transitions.ValidateAlertTransition(alert, status); err != nil {
		return err
	}

	ackedBy := ""
	if status == AlertAcked {
		ackedBy = actorUID
	}
	if err := s.database.UpdateAlertStatus(alertID, status, ackedBy); err != nil {
		return fmt.Errorf("updating alert status: %w", err)
	}

	s.logger.Info("alert status updated", "id", alertID, "from", string(alert.Status), "to", string(status))
	return nil
}

// Recipient resolves who is notified for alerts raised by actorUID.
func (s *AlertService) Recipient(actorUID string) string {
	if s.recipientOverride != "" {
		return s.recipientOverride
	}
	profile, err := s.gate.GetProfile(actorUID)
	if err != nil {
		s.logger.Warn("resolving alert recipient", "uid", actorUID, "error", err)
		return ""
	}
	if profile == nil {
		return ""
	}
	return profile.Email
}

// Notification is the context of an alert email.
type Notification struct {
	Recipient string
	Type      AlertType
	SectorID  string
	LockerID  string
	ActorUID  string
	BookingID string
}

// MaybeSendEmail sends the alert email when a recipient is known. It
// never fails; mail problems stay inside the Mailer.
func (s *AlertService) MaybeSendEmail(n Notification) {
	if n.Recipient == "" {
		s.logger.Warn("no recipient provided; skipping email notification", "type", string(n.Type))
		return
	}
	subject, body := formatAlertEmail(n, s.clock.Now().UnixMilli())
	s.mailer.SendAlertEmail(n.Recipient, subject, body)
}

func formatAlertEmail(n Notification, tsMillis int64) (string, string) {
	subject := fmt.Sprintf("[DropLock Alert] %s - %s/%s", n.Type, n.SectorID, n.LockerID)

	var b strings.Builder
	fmt.Fprintf(&b, "Alert Type: %s\n", n.Type)
	fmt.Fprintf(&b, "Sector: %s\n", n.SectorID)
	fmt.Fprintf(&b, "Locker: %s\n", n.LockerID)
	fmt.Fprintf(&b, "Timestamp: %d\n", tsMillis)
	fmt.Fprintf(&b, "Actor: %s\n", orNA(n.ActorUID))
	fmt.Fprintf(&b, "Booking ID: %s\n", orNA(n.BookingID))
	return subject, b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
