package droplock_test

import (
	"testing"

	"droplock/internal/database"
	"droplock/internal/droplock"
	"droplock/internal/testutil"
)

// env wires the console services over a migrated in-memory store.
type env struct {
	db       *database.SQLiteDatabase
	clock    *testutil.StubClock
	mailer   *testutil.RecordingMailer
	identity *testutil.FakeIdentityProvider
	signals  *droplock.MemorySignals
	alerts   *droplock.AlertService
	svc      *droplock.AdminService
	prov     *droplock.Provisioner
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := testutil.NewTestDatabase(t)
	clock := testutil.FixedClock()
	idgen := testutil.NewStubIDGenerator()
	mailer := testutil.NewRecordingMailer()
	ident := testutil.NewFakeIdentityProvider()
	logger := droplock.NewNopLogger()
	signals := droplock.NewMemorySignals()

	alerts := droplock.NewAlertService(db, mailer, logger, clock, idgen, "")
	return &env{
		db:       db,
		clock:    clock,
		mailer:   mailer,
		identity: ident,
		signals:  signals,
		alerts:   alerts,
		svc:      droplock.NewAdminService(db, alerts, signals, logger, clock, idgen),
		prov:     droplock.NewProvisioner(db, ident, logger, clock),
	}
}

// alertsOf returns the stored alerts of one type for a locker.
func (e *env) alertsOf(t *testing.T, sectorID, lockerID string, alertType droplock.AlertType) []*droplock.Alert {
	t.Helper()

	all, err := e.db.ListAlerts()
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	var out []*droplock.Alert
	for _, a := range all {
		if a.SectorID == sectorID && a.LockerID == lockerID && a.Type == alertType {
			out = append(out, a)
		}
	}
	return out
}
