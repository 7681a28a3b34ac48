package droplock

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

const (
	tempPasswordLength   = 14
	tempPasswordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789@#_-"

	// MinPasswordLength is the shortest password the identity provider accepts.
	MinPasswordLength = 6
)

// Provisioner creates and maintains console accounts. Creating an account
// is three sequential writes (identity account, profile, sector
// membership) with no rollback: a failure after the first leaves an
// orphaned account, which is logged with its uid.
type Provisioner struct {
	database Database
	identity IdentityProvider
	gate     *Gate
	logger   Logger
	clock    Clock
}

func NewProvisioner(database Database, identity IdentityProvider, logger Logger, clock Clock) *Provisioner {
	return &Provisioner{
		database: database,
		identity: identity,
		gate:     NewGate(database, logger),
		logger:   logger,
		clock:    clock,
	}
}

// AccountRequest describes a sector-scoped account to create.
type AccountRequest struct {
	Email        string
	TempPassword string
	SectorID     string
	DisplayName  string
}

func (r AccountRequest) validate() error {
	if !strings.Contains(r.Email, "@") {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, r.Email)
	}
	if len(r.TempPassword) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	return validateKey("sector id", r.SectorID)
}

// ProvisionAdmin creates an admin for a sector and returns the new uid.
func (p *Provisioner) ProvisionAdmin(actorUID string, req AccountRequest) (string, error) {
	return p.provision(actorUID, req, RoleAdmin)
}

// ProvisionDevice creates the account a field locker signs in with.
func (p *Provisioner) ProvisionDevice(actorUID string, req AccountRequest) (string, error) {
	return p.provision(actorUID, req, RoleDevice)
}

func (p *Provisioner) provision(actorUID string, req AccountRequest, role Role) (string, error) {
	if _, err := p.gate.AssertSuperAdmin(actorUID); err != nil {
		return "", err
	}
	if err := req.validate(); err != nil {
		return "", err
	}

	uid, err := p.identity.CreateAccount(req.Email, req.TempPassword)
	if err != nil {
		return "", fmt.Errorf("creating account: %w", err)
	}

	profile := &Profile{
		UID:         uid,
		Role:        role,
		Status:      ProfileActive,
		SectorID:    req.SectorID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		CreatedAt:   p.clock.Now(),
	}
	if err := p.database.PutProfile(profile); err != nil {
		p.logger.Error("account left without profile", "uid", uid, "email", req.Email, "error", err)
		return "", fmt.Errorf("writing profile: %w", err)
	}
	if err := p.database.AddSectorMember(req.SectorID, uid, role); err != nil {
		p.logger.Error("profile left without sector membership", "uid", uid, "sector", req.SectorID, "error", err)
		return "", fmt.Errorf("registering sector member: %w", err)
	}

	p.logger.Info("account provisioned", "uid", uid, "role", string(role), "sector", req.SectorID)
	return uid, nil
}

// SetAdminStatus enables or disables a profile. status must be "active"
// or "disabled".
func (p *Provisioner) SetAdminStatus(actorUID, uid, status string) error {
	if _, err := p.gate.AssertSuperAdmin(actorUID); err != nil {
		return err
	}
	st, err := ParseProfileStatus(status)
	if err != nil {
		return err
	}
	if err := p.database.UpdateProfileStatus(uid, st); err != nil {
		return fmt.Errorf("updating profile status: %w", err)
	}
	p.logger.Info("profile status changed", "uid", uid, "status", status)
	return nil
}

// ResetAdminPassword sets a fresh temporary password and returns it. The
// plaintext is not stored anywhere.
func (p *Provisioner) ResetAdminPassword(actorUID, uid string) (string, error) {
	if _, err := p.gate.AssertSuperAdmin(actorUID); err != nil {
		return "", err
	}
	temp, err := GenerateTempPassword()
	if err != nil {
		return "", err
	}
	if err := p.identity.UpdatePassword(uid, temp); err != nil {
		return "", fmt.Errorf("updating password: %w", err)
	}
	p.logger.Info("password reset", "uid", uid)
	return temp, nil
}

// ListAdminProfiles returns the admin profiles ordered by email.
func (p *Provisioner) ListAdminProfiles(actorUID string) ([]*Profile, error) {
	if _, err := p.gate.AssertSuperAdmin(actorUID); err != nil {
		return nil, err
	}
	profiles, err := p.database.ListProfiles()
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	var admins []*Profile
	for _, pr := range profiles {
		if pr.Role == RoleAdmin {
			admins = append(admins, pr)
		}
	}
	sort.SliceStable(admins, func(i, j int) bool { return admins[i].Email < admins[j].Email })
	return admins, nil
}

// BootstrapOwner creates the first superAdmin. It refuses once any
// superAdmin profile exists.
func (p *Provisioner) BootstrapOwner(email, password, displayName string) (string, error) {
	profiles, err := p.database.ListProfiles()
	if err != nil {
		return "", fmt.Errorf("listing profiles: %w", err)
	}
	for _, pr := range profiles {
		if pr.Role == RoleSuperAdmin {
			return "", fmt.Errorf("%w: an owner already exists", ErrConflict)
		}
	}
	if !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: invalid email %q", ErrValidation, email)
	}
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	if displayName == "" {
		displayName = "DropLock Owner"
	}

	uid, err := p.identity.CreateAccount(email, password)
	if err != nil {
		return "", fmt.Errorf("creating account: %w", err)
	}
	profile := &Profile{
		UID:         uid,
		Role:        RoleSuperAdmin,
		Status:      ProfileActive,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   p.clock.Now(),
	}
	if err := p.database.PutProfile(profile); err != nil {
		p.logger.Error("account left without profile", "uid", uid, "email", email, "error", err)
		return "", fmt.Errorf("writing profile: %w", err)
	}

	p.logger.Info("owner bootstrapped", "uid", uid)
	return uid, nil
}

// GenerateTempPassword returns a random 14-character password drawn from
// letters, digits and "@#_-".
func GenerateTempPassword() (string, error) {
	limit := big.NewInt(int64(len(tempPasswordAlphabet)))
	buf := make([]byte, tempPasswordLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		buf[i] = tempPasswordAlphabet[n.Int64()]
	}
	return string(buf), nil
}
