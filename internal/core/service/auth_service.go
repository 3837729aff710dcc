package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
	"github.com/swiftportal/payments-portal/internal/pkg/validation"
)

const (
	externalIDAttempts = 3
	dummySecret        = "timing-equalisation-placeholder"
)

// AuthDeps are the collaborators of AuthService. Guard and Audit are optional.
type AuthDeps struct {
	Identities ports.IdentityRepository
	Roles      ports.RoleRepository
	Lockout    *LockoutEngine
	Hasher     ports.SecretHasher
	Cipher     ports.FieldCipher
	Tokens     ports.TokenManager
	Validator  ports.InputValidator
	Guard      ports.AttemptGuard
	Audit      ports.AuditRecorder
}

// AuthConfig tunes the orchestrator.
type AuthConfig struct {
	// ExposeRemainingAttempts adds the remaining attempt count to
	// invalid-credential verdicts.
	ExposeRemainingAttempts bool
	// OperationTimeout bounds every use case; zero keeps the caller's deadline.
	OperationTimeout time.Duration
}

// AuthService implements registration, login, token verification and
// profile reads.
type AuthService struct {
	identities ports.IdentityRepository
	roles      ports.RoleRepository
	lockout    *LockoutEngine
	hasher     ports.SecretHasher
	cipher     ports.FieldCipher
	tokens     ports.TokenManager
	validator  ports.InputValidator
	guard      ports.AttemptGuard
	audit      ports.AuditRecorder
	cfg        AuthConfig
	now        func() time.Time
	log        zerolog.Logger

	dummyMu   sync.Mutex
	dummyHash string
}

var _ ports.AuthService = (*AuthService)(nil)

func NewAuthService(deps AuthDeps, cfg AuthConfig, log zerolog.Logger) *AuthService {
	if deps.Audit == nil {
		deps.Audit = noopRecorder{}
	}
	return &AuthService{
		identities: deps.Identities,
		roles:      deps.Roles,
		lockout:    deps.Lockout,
		hasher:     deps.Hasher,
		cipher:     deps.Cipher,
		tokens:     deps.Tokens,
		validator:  deps.Validator,
		guard:      deps.Guard,
		audit:      deps.Audit,
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}
}

func (s *AuthService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

// RegisterCustomer validates, hashes, encrypts and persists a new customer.
func (s *AuthService) RegisterCustomer(ctx context.Context, in ports.RegisterCustomerInput) (*ports.IdentitySummary, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.validator.ValidateRegistration(in); err != nil {
		return nil, err
	}
	username := validation.NormalizeUsername(in.Username)

	taken, err := s.identities.UsernameTaken(ctx, domain.KindCustomer, username)
	if err != nil {
		return nil, transient("register", err)
	}
	if taken {
		return nil, &domain.ConflictError{Field: "username"}
	}

	role, err := s.roles.FindByName(ctx, domain.RoleCustomer)
	if err != nil {
		return nil, transient("register: load customer role", err)
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, transient("register", err)
	}

	nationalID := strings.TrimSpace(in.NationalID)
	account := strings.TrimSpace(in.AccountNumber)
	nationalCipher, err := s.cipher.Encrypt([]byte(nationalID))
	if err != nil {
		return nil, fmt.Errorf("register: encrypt national id: %w", err)
	}
	accountCipher, err := s.cipher.Encrypt([]byte(account))
	if err != nil {
		return nil, fmt.Errorf("register: encrypt account number: %w", err)
	}

	now := s.now().UTC()
	customer := &domain.Customer{
		Identity: domain.Identity{
			Kind:        domain.KindCustomer,
			DisplayName: strings.TrimSpace(in.FullName),
			Username:    username,
			SecretHash:  hash,
			RoleID:      role.ID,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		NationalIDCipher:    nationalCipher,
		NationalIDIndex:     s.cipher.BlindIndex(nationalID),
		AccountNumberCipher: accountCipher,
		AccountNumberIndex:  s.cipher.BlindIndex(account),
	}

	created, err := s.createWithExternalID(ctx, customer)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("identity_id", created.ID).
		Str("external_id", created.ExternalID).
		Str("username", created.Username).
		Str("request_id", in.RequestID).
		Msg("customer registered")
	s.audit.Record(domain.AuthEvent{
		Type:       domain.EventCustomerRegistered,
		Kind:       domain.KindCustomer,
		IdentityID: created.ID,
		Username:   created.Username,
		RequestID:  in.RequestID,
		OccurredAt: now,
	})
	return summarize(&created.Identity, role), nil
}

// createWithExternalID allocates the next sequential external id and retries
// when a concurrent registration took it first.
func (s *AuthService) createWithExternalID(ctx context.Context, c *domain.Customer) (*domain.Customer, error) {
	for i := 0; i < externalIDAttempts; i++ {
		last, err := s.identities.LastExternalID(ctx, domain.KindCustomer)
		if err != nil {
			return nil, transient("register: last external id", err)
		}
		next, err := domain.NextExternalID(domain.KindCustomer, last)
		if err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
		c.ExternalID = next

		created, err := s.identities.CreateCustomer(ctx, c)
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) && conflict.Field == "external_id" {
			s.log.Debug().Str("external_id", next).Msg("external id taken, reallocating")
			continue
		}
		if err != nil {
			return nil, transient("register", err)
		}
		return created, nil
	}
	return nil, fmt.Errorf("register: external id allocation failed after %d attempts: %w", externalIDAttempts, domain.ErrTransient)
}

// LoginCustomer authenticates with username, account number and password.
func (s *AuthService) LoginCustomer(ctx context.Context, in ports.CustomerLoginInput) (*ports.LoginResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	username := validation.NormalizeUsername(in.Username)
	account := strings.TrimSpace(in.AccountNumber)
	if username == "" || account == "" || in.Password == "" {
		return invalidCredentials(nil), nil
	}

	customer, err := s.identities.FindCustomerByUsername(ctx, username)
	if errors.Is(err, domain.ErrIdentityNotFound) {
		return s.unknownIdentity(ctx, domain.KindCustomer, username, in.Password)
	}
	if err != nil {
		return nil, transient("customer login", err)
	}

	secondFactor := func() (bool, error) {
		stored, err := s.cipher.Decrypt(customer.AccountNumberCipher)
		if err != nil {
			s.log.Error().Err(err).Str("identity_id", customer.ID).Msg("stored account number failed to decrypt")
			return false, fmt.Errorf("customer login: %w", err)
		}
		return subtle.ConstantTimeCompare(stored, []byte(account)) == 1, nil
	}
	return s.authenticate(ctx, &customer.Identity, in.Password, secondFactor, s.attemptFingerprint(in.AttemptKey, in.Password, account))
}

// LoginEmployee authenticates with username or employee id plus password.
func (s *AuthService) LoginEmployee(ctx context.Context, in ports.EmployeeLoginInput) (*ports.LoginResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	login, _ := validation.NormalizeEmployeeLogin(in.Login)
	if login == "" || in.Password == "" {
		return invalidCredentials(nil), nil
	}

	employee, err := s.identities.FindEmployeeByLogin(ctx, login)
	if errors.Is(err, domain.ErrIdentityNotFound) {
		return s.unknownIdentity(ctx, domain.KindEmployee, login, in.Password)
	}
	if err != nil {
		return nil, transient("employee login", err)
	}
	return s.authenticate(ctx, employee, in.Password, nil, s.attemptFingerprint(in.AttemptKey, in.Password))
}

// attemptFingerprint scopes a client attempt key to the submitted
// credentials, so reusing the key with a different guess is a new attempt.
// The credentials enter the key only as a keyed HMAC.
func (s *AuthService) attemptFingerprint(attemptKey string, credentials ...string) string {
	if attemptKey == "" {
		return ""
	}
	return attemptKey + ":" + s.cipher.BlindIndex(strings.Join(credentials, "\x00"))
}

// unknownIdentity burns one hash verification so a missing username costs as
// much as a wrong password.
func (s *AuthService) unknownIdentity(ctx context.Context, kind domain.AccountKind, username, password string) (*ports.LoginResult, error) {
	if dummy := s.dummy(ctx); dummy != "" {
		if _, err := s.hasher.Verify(ctx, password, dummy); err != nil && errors.Is(err, domain.ErrTransient) {
			return nil, err
		}
	}

	s.log.Info().Str("username", username).Str("kind", string(kind)).Msg("login failed: unknown identity")
	s.audit.Record(domain.AuthEvent{
		Type:       domain.EventLoginFailed,
		Kind:       kind,
		Username:   username,
		Reason:     "unknown_identity",
		OccurredAt: s.now().UTC(),
	})
	return invalidCredentials(nil), nil
}

// dummy returns the hash used for unknown identities, computing it on first
// use. It is built outside the caller's deadline and retried until it exists.
func (s *AuthService) dummy(ctx context.Context) string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()
	if s.dummyHash == "" {
		h, err := s.hasher.Hash(context.WithoutCancel(ctx), dummySecret)
		if err != nil {
			s.log.Warn().Err(err).Msg("dummy hash unavailable")
			return ""
		}
		s.dummyHash = h
	}
	return s.dummyHash
}

// authenticate runs the login state machine for a resolved identity.
// secondFactor is nil for employees.
func (s *AuthService) authenticate(ctx context.Context, ident *domain.Identity, password string, secondFactor func() (bool, error), attemptKey string) (*ports.LoginResult, error) {
	ref := ident.Ref()

	remaining, err := s.lockout.Check(ctx, ref, ident.Lockout)
	if err != nil {
		return nil, transient("login", err)
	}
	if remaining > 0 {
		s.event(ident, domain.EventLoginRejected, "locked")
		return &ports.LoginResult{Verdict: domain.LoginVerdict{Outcome: domain.OutcomeLocked, LockRemaining: remaining}}, nil
	}

	factorOK := true
	if secondFactor != nil {
		if factorOK, err = secondFactor(); err != nil {
			return nil, err
		}
	}
	// The password is verified even after a second-factor mismatch so both
	// failures take the same time and consume the same single tick.
	passwordOK, err := s.hasher.Verify(ctx, password, ident.SecretHash)
	if err != nil {
		return nil, transient("login", err)
	}
	if !factorOK || !passwordOK {
		reason := "bad_password"
		if !factorOK {
			reason = "bad_second_factor"
		}
		return s.recordFailure(ctx, ident, attemptKey, reason)
	}

	if !ident.IsActive {
		s.event(ident, domain.EventLoginRejected, "deactivated")
		return &ports.LoginResult{Verdict: domain.LoginVerdict{Outcome: domain.OutcomeDeactivated}}, nil
	}

	tr, err := s.lockout.Record(ctx, ref, true)
	if err != nil {
		return nil, transient("login", err)
	}
	if tr.Rejected {
		// Locked by concurrent failures between Check and Record.
		s.event(ident, domain.EventLoginRejected, "locked")
		return &ports.LoginResult{Verdict: domain.LoginVerdict{Outcome: domain.OutcomeLocked, LockRemaining: tr.LockRemaining}}, nil
	}

	fresh, role, err := s.identities.GetIdentityWithRole(ctx, ref)
	if err != nil {
		return nil, transient("login: load role", err)
	}

	claims := domain.TokenClaims{
		SubjectID:   fresh.ID,
		Username:    fresh.Username,
		ExternalID:  fresh.ExternalID,
		RoleName:    role.Name,
		AccountKind: fresh.Kind,
	}
	if fresh.Kind == domain.KindEmployee {
		claims.Permissions = role.PermissionStrings()
	}
	token, expiresAt, err := s.tokens.Issue(claims)
	if err != nil {
		return nil, fmt.Errorf("login: issue token: %w", err)
	}

	s.log.Info().Str("identity_id", fresh.ID).Str("username", fresh.Username).Str("kind", string(fresh.Kind)).Msg("login succeeded")
	s.event(fresh, domain.EventLoginSucceeded, "")
	return &ports.LoginResult{
		Verdict:   domain.LoginVerdict{Outcome: domain.OutcomeSuccess},
		Token:     token,
		ExpiresAt: expiresAt,
		Identity:  summarize(fresh, role),
	}, nil
}

// recordFailure consumes one lockout tick unless the same attempt (key and
// credentials) was already recorded, in which case the stored state is
// reported unchanged.
func (s *AuthService) recordFailure(ctx context.Context, ident *domain.Identity, attemptKey, reason string) (*ports.LoginResult, error) {
	ref := ident.Ref()

	guardKey := ""
	if s.guard != nil && attemptKey != "" {
		guardKey = ref.String() + ":" + attemptKey
		first, err := s.guard.MarkFirst(ctx, guardKey)
		if err != nil {
			return nil, transient("login: attempt guard", err)
		}
		if !first {
			return s.replayedFailure(ctx, ref)
		}
	}

	tr, err := s.lockout.Record(ctx, ref, false)
	if err != nil {
		if guardKey != "" {
			if rerr := s.guard.Release(context.WithoutCancel(ctx), guardKey); rerr != nil {
				s.log.Warn().Err(rerr).Str("identity_id", ident.ID).Msg("attempt guard release failed")
			}
		}
		return nil, transient("login", err)
	}

	switch {
	case tr.Rejected:
		s.event(ident, domain.EventLoginRejected, "locked")
		return &ports.LoginResult{Verdict: domain.LoginVerdict{Outcome: domain.OutcomeLocked, LockRemaining: tr.LockRemaining}}, nil
	case tr.JustLocked:
		s.event(ident, domain.EventLoginFailed, reason)
		s.event(ident, domain.EventAccountLocked, "")
		return &ports.LoginResult{Verdict: domain.LoginVerdict{
			Outcome:       domain.OutcomeLocked,
			LockRemaining: tr.LockRemaining,
			JustLocked:    true,
		}}, nil
	}

	s.log.Info().
		Str("identity_id", ident.ID).
		Str("username", ident.Username).
		Uint("remaining_attempts", tr.RemainingAttempts).
		Msg("login failed")
	s.event(ident, domain.EventLoginFailed, reason)
	return invalidCredentials(s.exposed(tr.RemainingAttempts)), nil
}

func (s *AuthService) replayedFailure(ctx context.Context, ref domain.IdentityRef) (*ports.LoginResult, error) {
	state, err := s.lockout.Current(ctx, ref)
	if err != nil {
		return nil, transient("login", err)
	}
	now := s.now()
	if state.LockedAt(now) {
		return &ports.LoginResult{Verdict: domain.LoginVerdict{Outcome: domain.OutcomeLocked, LockRemaining: state.Remaining(now)}}, nil
	}
	limit := s.lockout.Policy().MaxAttempts
	var left uint
	if state.FailedAttempts < limit {
		left = limit - state.FailedAttempts
	}
	return invalidCredentials(s.exposed(left)), nil
}

func (s *AuthService) exposed(remaining uint) *uint {
	if !s.cfg.ExposeRemainingAttempts {
		return nil
	}
	return &remaining
}

func (s *AuthService) event(ident *domain.Identity, typ domain.AuthEventType, reason string) {
	s.audit.Record(domain.AuthEvent{
		Type:       typ,
		Kind:       ident.Kind,
		IdentityID: ident.ID,
		Username:   ident.Username,
		Reason:     reason,
		OccurredAt: s.now().UTC(),
	})
}

// VerifyToken checks a bearer token and returns its claims.
func (s *AuthService) VerifyToken(_ context.Context, token string) (*domain.TokenClaims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}
	return s.tokens.Verify(token)
}

// CustomerProfile returns the customer's profile with the account number masked.
func (s *AuthService) CustomerProfile(ctx context.Context, id string) (*ports.CustomerProfile, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	customer, err := s.identities.FindCustomerByID(ctx, id)
	if err != nil {
		return nil, transient("customer profile", err)
	}
	_, role, err := s.identities.GetIdentityWithRole(ctx, customer.Ref())
	if err != nil {
		return nil, transient("customer profile", err)
	}
	account, err := s.cipher.Decrypt(customer.AccountNumberCipher)
	if err != nil {
		s.log.Error().Err(err).Str("identity_id", customer.ID).Msg("stored account number failed to decrypt")
		return nil, fmt.Errorf("customer profile: %w", err)
	}

	summary := summarize(&customer.Identity, role)
	summary.Permissions = nil
	return &ports.CustomerProfile{
		IdentitySummary:     *summary,
		MaskedAccountNumber: domain.MaskAccountNumber(string(account)),
		IsActive:            customer.IsActive,
	}, nil
}

// EmployeeProfile returns the employee's profile including permissions.
func (s *AuthService) EmployeeProfile(ctx context.Context, id string) (*ports.EmployeeProfile, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ident, role, err := s.identities.GetIdentityWithRole(ctx, domain.IdentityRef{Kind: domain.KindEmployee, ID: id})
	if err != nil {
		return nil, transient("employee profile", err)
	}
	return &ports.EmployeeProfile{IdentitySummary: *summarize(ident, role), IsActive: ident.IsActive}, nil
}

func summarize(ident *domain.Identity, role *domain.Role) *ports.IdentitySummary {
	sum := &ports.IdentitySummary{
		ID:          ident.ID,
		Kind:        ident.Kind,
		ExternalID:  ident.ExternalID,
		DisplayName: ident.DisplayName,
		Username:    ident.Username,
		LastLoginAt: ident.LastLoginAt,
		CreatedAt:   ident.CreatedAt,
	}
	if role != nil {
		sum.Role = role.Name
		sum.Permissions = role.PermissionStrings()
	}
	return sum
}

func invalidCredentials(remaining *uint) *ports.LoginResult {
	return &ports.LoginResult{Verdict: domain.LoginVerdict{
		Outcome:           domain.OutcomeInvalidCredentials,
		RemainingAttempts: remaining,
	}}
}

// transient wraps err with op and marks context expiry as a transient failure.
func transient(op string, err error) error {
	if !errors.Is(err, domain.ErrTransient) &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
