package droplock

import "fmt"

// Reconciler turns rising edges of the tamper and offline signals into
// alerts. One pass runs per sector page render.
type Reconciler struct {
	alerts  *AlertService
	signals SignalMemory
	logger  Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(alerts *AlertService, signals SignalMemory, logger Logger) *Reconciler {
	return &Reconciler{alerts: alerts, signals: signals, logger: logger}
}

// Reconcile compares each view against its remembered signal, raises a
// TAMPER (HIGH) or OFFLINE (MEDIUM) alert on each false-to-true edge and
// then remembers the current signal. It returns the ids of the alerts it
// created. A failure to read or write the store aborts the pass.
func (r *Reconciler) Reconcile(actorUID string, views []*LockerView) ([]string, error) {
	var created []string
	recipient := ""
	recipientResolved := false

	notify := func(alertType AlertType, v *LockerView) {
		if !recipientResolved {
			recipient = r.alerts.Recipient(actorUID)
			recipientResolved = true
		}
		r.alerts.MaybeSendEmail(Notification{
			Recipient: recipient,
			Type:      alertType,
			SectorID:  v.SectorID,
			LockerID:  v.LockerID,
			ActorUID:  actorUID,
			BookingID: v.ActiveBookingID,
		})
	}

	for _, v := range views {
		key := SignalKey{SectorID: v.SectorID, LockerID: v.LockerID}
		prev, err := r.signals.Load(key)
		if err != nil {
			return created, fmt.Errorf("loading signal %s: %w", key, err)
		}

		if v.TamperFlag && !prev.Tamper {
			id, ok, err := r.alerts.CreateAlert(NewAlert{
				Type:      AlertTamper,
				SectorID:  v.SectorID,
				LockerID:  v.LockerID,
				BookingID: v.ActiveBookingID,
				Severity:  SeverityHigh,
				ActorUID:  actorUID,
			})
			if err != nil {
				return created, err
			}
			if ok {
				created = append(created, id)
				notify(AlertTamper, v)
			}
		}

		if v.IsOffline && !prev.Offline {
			id, ok, err := r.alerts.CreateAlert(NewAlert{
				Type:      AlertOffline,
				SectorID:  v.SectorID,
				LockerID:  v.LockerID,
				BookingID: v.ActiveBookingID,
				Severity:  SeverityMedium,
				ActorUID:  actorUID,
			})
			if err != nil {
				return created, err
			}
			if ok {
				created = append(created, id)
				notify(AlertOffline, v)
			}
		}

		if err := r.signals.Store(key, Signal{Tamper: v.TamperFlag, Offline: v.IsOffline}); err != nil {
			return created, fmt.Errorf("storing signal %s: %w", key, err)
		}
	}

	if len(created) > 0 {
		r.logger.Info("reconciliation raised alerts", "count", len(created))
	}
	return created, nil
}
