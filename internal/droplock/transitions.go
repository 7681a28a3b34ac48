package droplock

import "fmt"

// TransitionValidator decides whether a manual state change is allowed.
// Locker state changes and alert status updates consult it before writing.
type TransitionValidator interface {
	ValidateLockerTransition(locker *Locker, to LockerState) error
	ValidateAlertTransition(alert *Alert, to AlertStatus) error
}

// PermissiveTransitions allows every transition. The console is a manual
// override tool, so this is the default.
type PermissiveTransitions struct{}

func (PermissiveTransitions) ValidateLockerTransition(*Locker, LockerState) error { return nil }
func (PermissiveTransitions) ValidateAlertTransition(*Alert, AlertStatus) error   { return nil }

// StrictTransitions enforces the alert lifecycle and refuses to free a
// locker that still holds a booking.
type StrictTransitions struct{}

func (StrictTransitions) ValidateLockerTransition(locker *Locker, to LockerState) error {
	if locker.ActiveBookingID != "" && to == StateAvailable {
		return fmt.Errorf("%w: locker %s/%s has active booking %s", ErrValidation, locker.SectorID, locker.LockerID, locker.ActiveBookingID)
	}
	return nil
}

func (StrictTransitions) ValidateAlertTransition(alert *Alert, to AlertStatus) error {
	allowed := map[AlertStatus][]AlertStatus{
		AlertOpen:  {AlertAcked, AlertClosed},
		AlertAcked: {AlertClosed},
	}
	for _, next := range allowed[alert.Status] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: alert %s cannot move from %s to %s", ErrValidation, alert.ID, alert.Status, to)
}

// NewTransitionValidator returns the validator for a config name.
func NewTransitionValidator(name string) (TransitionValidator, error) {
	switch name {
	case "", "permissive":
		return PermissiveTransitions{}, nil
	case "strict":
		return StrictTransitions{}, nil
	default:
		return nil, fmt.Errorf("unknown transitions mode: %q", name)
	}
}
