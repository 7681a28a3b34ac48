package droplock

import "fmt"

// Gate loads actor profiles and enforces role and sector predicates.
// Every mutating operation passes through one of its Assert methods
// before any write; the store itself has no second enforcement layer.
type Gate struct {
	database Database
	logger   Logger
}

// NewGate creates a Gate over the given profile store.
func NewGate(database Database, logger Logger) *Gate {
	return &Gate{database: database, logger: logger}
}

// GetProfile loads a profile by uid. An absent profile is logged and
// returned as nil, not as an error.
func (g *Gate) GetProfile(uid string) (*Profile, error) {
	profile, err := g.database.GetProfile(uid)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	if profile == nil {
		g.logger.Warn("no profile found", "uid", uid)
	}
	return profile, nil
}

// AssertCanAdmin passes for an active superAdmin, or for an active admin
// whose sector matches sectorID. An empty sectorID means "no sector given".
func (g *Gate) AssertCanAdmin(uid string, sectorID string) (*Profile, error) {
	profile, err := g.GetProfile(uid)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: invalid admin uid", ErrUnauthorized)
	}
	if profile.Status != ProfileActive {
		return nil, fmt.Errorf("%w: inactive profile", ErrUnauthorized)
	}

	switch profile.Role {
	case RoleSuperAdmin:
		return profile, nil
	case RoleAdmin:
		if sectorID == "" {
			return nil, fmt.Errorf("%w: sector id is required for admins", ErrUnauthorized)
		}
		if profile.SectorID != sectorID {
			return nil, fmt.Errorf("%w: admin not assigned to sector %s", ErrUnauthorized, sectorID)
		}
		return profile, nil
	default:
		return nil, fmt.Errorf("%w: not an admin", ErrUnauthorized)
	}
}

// AssertSuperAdmin passes only for an active superAdmin.
func (g *Gate) AssertSuperAdmin(uid string) (*Profile, error) {
	profile, err := g.GetProfile(uid)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: no profile", ErrUnauthorized)
	}
	if profile.Status != ProfileActive {
		return nil, fmt.Errorf("%w: profile disabled", ErrUnauthorized)
	}
	if profile.Role != RoleSuperAdmin {
		return nil, fmt.Errorf("%w: superAdmin required", ErrUnauthorized)
	}
	return profile, nil
}

// AssertConsoleAccess passes for any active admin or superAdmin, scoping
// admins to their own sector. Used by read-only views.
func (g *Gate) AssertConsoleAccess(uid string) (*Profile, error) {
	profile, err := g.GetProfile(uid)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: invalid admin uid", ErrUnauthorized)
	}
	return g.AssertCanAdmin(uid, profile.SectorID)
}
