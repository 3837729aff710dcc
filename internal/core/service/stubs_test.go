package service

import (
	"context"
	"encoding/hex"
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

// stubStore is an in-memory credential, role and lockout store.
type stubStore struct {
	mu        sync.Mutex
	customers map[string]*domain.Customer
	employees map[string]*domain.Identity
	roles     map[string]*domain.Role
	order     []string
	seq       int

	externalIDConflicts int
	swapConflicts       int
	findErr             error
	composedReads       int
}

func newStubStore() *stubStore {
	s := &stubStore{
		customers: make(map[string]*domain.Customer),
		employees: make(map[string]*domain.Identity),
		roles:     make(map[string]*domain.Role),
	}
	for _, r := range domain.DefaultRoles() {
		r := r
		r.ID = "role-" + string(r.Name)
		s.roles[r.ID] = &r
	}
	return s
}

func cloneState(st domain.LockoutState) domain.LockoutState {
	if st.LockedUntil != nil {
		until := *st.LockedUntil
		st.LockedUntil = &until
	}
	return st
}

func cloneIdentity(i *domain.Identity) *domain.Identity {
	c := *i
	c.Lockout = cloneState(i.Lockout)
	if i.LastLoginAt != nil {
		at := *i.LastLoginAt
		c.LastLoginAt = &at
	}
	return &c
}

func cloneCustomer(c *domain.Customer) *domain.Customer {
	out := *c
	out.Identity = *cloneIdentity(&c.Identity)
	return &out
}

func (s *stubStore) identity(ref domain.IdentityRef) *domain.Identity {
	if ref.Kind == domain.KindEmployee {
		return s.employees[ref.ID]
	}
	if c, ok := s.customers[ref.ID]; ok {
		return &c.Identity
	}
	return nil
}

func (s *stubStore) FindCustomerByUsername(_ context.Context, username string) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, c := range s.customers {
		if c.Username == username {
			return cloneCustomer(c), nil
		}
	}
	return nil, domain.ErrIdentityNotFound
}

func (s *stubStore) FindEmployeeByLogin(_ context.Context, login string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.employees {
		if e.Username == login || e.ExternalID == login {
			return cloneIdentity(e), nil
		}
	}
	return nil, domain.ErrIdentityNotFound
}

func (s *stubStore) FindCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	return cloneCustomer(c), nil
}

func (s *stubStore) GetIdentityWithRole(_ context.Context, ref domain.IdentityRef) (*domain.Identity, *domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.composedReads++
	ident := s.identity(ref)
	if ident == nil {
		return nil, nil, domain.ErrIdentityNotFound
	}
	out := cloneIdentity(ident)
	out.SecretHash = ""
	role, ok := s.roles[ident.RoleID]
	if !ok {
		return out, nil, domain.ErrRoleNotFound
	}
	r := *role
	return out, &r, nil
}

func (s *stubStore) UsernameTaken(_ context.Context, kind domain.AccountKind, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind == domain.KindEmployee {
		for _, e := range s.employees {
			if e.Username == username {
				return true, nil
			}
		}
		return false, nil
	}
	for _, c := range s.customers {
		if c.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) LastExternalID(_ context.Context, kind domain.AccountKind) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		if c, ok := s.customers[s.order[i]]; ok && kind == domain.KindCustomer {
			return c.ExternalID, nil
		}
	}
	return "", nil
}

func (s *stubStore) CreateCustomer(_ context.Context, c *domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.externalIDConflicts > 0 {
		s.externalIDConflicts--
		return nil, &domain.ConflictError{Field: "external_id"}
	}
	for _, existing := range s.customers {
		switch {
		case existing.Username == c.Username:
			return nil, &domain.ConflictError{Field: "username"}
		case existing.ExternalID == c.ExternalID:
			return nil, &domain.ConflictError{Field: "external_id"}
		case existing.AccountNumberIndex == c.AccountNumberIndex:
			return nil, &domain.ConflictError{Field: "account_number"}
		case existing.NationalIDIndex == c.NationalIDIndex:
			return nil, &domain.ConflictError{Field: "id_number"}
		}
	}
	s.seq++
	stored := cloneCustomer(c)
	stored.ID = fmt.Sprintf("c%d", s.seq)
	s.customers[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	return cloneCustomer(stored), nil
}

func (s *stubStore) UpsertEmployee(_ context.Context, e *domain.Identity) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := cloneIdentity(e)
	if stored.ID == "" {
		s.seq++
		stored.ID = fmt.Sprintf("e%d", s.seq)
	}
	stored.Kind = domain.KindEmployee
	s.employees[stored.ID] = stored
	return cloneIdentity(stored), nil
}

func (s *stubStore) LoadLockout(_ context.Context, ref domain.IdentityRef) (domain.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident := s.identity(ref)
	if ident == nil {
		return domain.LockoutState{}, domain.ErrIdentityNotFound
	}
	return cloneState(ident.Lockout), nil
}

func (s *stubStore) SwapLockout(_ context.Context, ref domain.IdentityRef, expected int64, next domain.LockoutState, lastLogin *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident := s.identity(ref)
	if ident == nil {
		return domain.ErrIdentityNotFound
	}
	if s.swapConflicts > 0 {
		s.swapConflicts--
		ident.Lockout.Version++
		return domain.ErrLockoutConflict
	}
	if ident.Lockout.Version != expected {
		return domain.ErrLockoutConflict
	}
	next = cloneState(next)
	next.Version = expected + 1
	ident.Lockout = next
	if lastLogin != nil {
		at := *lastLogin
		ident.LastLoginAt = &at
	}
	return nil
}

func (s *stubStore) lockoutOf(ref domain.IdentityRef) domain.LockoutState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.identity(ref).Lockout)
}

// stubRoles serves the roles held by a stubStore.
type stubRoles struct{ store *stubStore }

func (r stubRoles) FindByName(_ context.Context, name domain.RoleName) (*domain.Role, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, role := range r.store.roles {
		if role.Name == name {
			c := *role
			return &c, nil
		}
	}
	return nil, domain.ErrRoleNotFound
}

func (r stubRoles) FindByID(_ context.Context, id string) (*domain.Role, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	role, ok := r.store.roles[id]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	c := *role
	return &c, nil
}

func (r stubRoles) Upsert(_ context.Context, role *domain.Role) (*domain.Role, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *role
	if c.ID == "" {
		c.ID = "role-" + string(c.Name)
	}
	r.store.roles[c.ID] = &c
	return &c, nil
}

// stubHasher is a fast, transparent stand-in for bcrypt that counts calls.
type stubHasher struct {
	mu          sync.Mutex
	hashCalls   int
	verifyCalls int
	// honourCtx makes Hash fail like bcrypt does when ctx is already done.
	honourCtx bool
}

func (h *stubHasher) Hash(ctx context.Context, secret string) (string, error) {
	h.mu.Lock()
	h.hashCalls++
	h.mu.Unlock()
	if h.honourCtx && ctx.Err() != nil {
		return "", fmt.Errorf("hash secret: %w: %w", domain.ErrTransient, ctx.Err())
	}
	return "hashed:" + secret, nil
}

func (h *stubHasher) Verify(_ context.Context, secret, hash string) (bool, error) {
	h.mu.Lock()
	h.verifyCalls++
	h.mu.Unlock()
	return hash == "hashed:"+secret, nil
}

func (h *stubHasher) verifies() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifyCalls
}

// stubCipher hex-encodes with a marker prefix.
type stubCipher struct{}

func (stubCipher) Encrypt(p []byte) (string, error) { return "enc:" + hex.EncodeToString(p), nil }

func (stubCipher) Decrypt(blob string) ([]byte, error) {
	raw, ok := strings.CutPrefix(blob, "enc:")
	if !ok {
		return nil, domain.ErrIntegrity
	}
	out, err := hex.DecodeString(raw)
	if err != nil {
		return nil, domain.ErrIntegrity
	}
	return out, nil
}

func (stubCipher) BlindIndex(p string) string { return "idx:" + p }

// stubTokens remembers issued claims by token string.
type stubTokens struct {
	mu     sync.Mutex
	issued map[string]domain.TokenClaims
}

func newStubTokens() *stubTokens {
	return &stubTokens{issued: make(map[string]domain.TokenClaims)}
}

func (t *stubTokens) Issue(c domain.TokenClaims) (string, time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tok := fmt.Sprintf("tok-%s-%d", c.SubjectID, len(t.issued))
	c.ExpiresAt = time.Now().Add(time.Hour)
	t.issued[tok] = c
	return tok, c.ExpiresAt, nil
}

func (t *stubTokens) Verify(tok string) (*domain.TokenClaims, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tok == "expired" {
		return nil, domain.ErrTokenExpired
	}
	c, ok := t.issued[tok]
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	return &c, nil
}

// stubGuard is an in-memory attempt guard.
type stubGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *stubGuard) MarkFirst(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = make(map[string]bool)
	}
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *stubGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}

// stubAudit collects recorded events.
type stubAudit struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func (a *stubAudit) Record(e domain.AuthEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *stubAudit) count(t domain.AuthEventType) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// fixture wires an AuthService over stubs with a controllable clock.
type fixture struct {
	store  *stubStore
	hasher *stubHasher
	tokens *stubTokens
	guard  *stubGuard
	audit  *stubAudit
	engine *LockoutEngine
	svc    *AuthService
	now    time.Time
}

func newFixture() *fixture {
	f := &fixture{
		store:  newStubStore(),
		hasher: &stubHasher{},
		tokens: newStubTokens(),
		guard:  &stubGuard{},
		audit:  &stubAudit{},
		now:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.engine = NewLockoutEngine(f.store, domain.DefaultLockoutPolicy(), zerolog.Nop())
	f.engine.now = clock

	f.svc = NewAuthService(AuthDeps{
		Identities: f.store,
		Roles:      stubRoles{store: f.store},
		Lockout:    f.engine,
		Hasher:     f.hasher,
		Cipher:     stubCipher{},
		Tokens:     f.tokens,
		Validator:  validation.New(),
		Guard:      f.guard,
		Audit:      f.audit,
	}, AuthConfig{ExposeRemainingAttempts: true}, zerolog.Nop())
	f.svc.now = clock
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func aliceInput() ports.RegisterCustomerInput {
	return ports.RegisterCustomerInput{
		FullName:      "Alice Smith",
		NationalID:    "1234567890123",
		AccountNumber: "1234567890",
		Username:      "alice01",
		Password:      "SecurePass123!",
	}
}

func (f *fixture) seedEmployee(active bool) *domain.Identity {
	e, err := f.store.UpsertEmployee(context.Background(), &domain.Identity{
		ExternalID:  "EMP0001",
		DisplayName: "Jordan Doe",
		Username:    "jdoe.ops",
		SecretHash:  "hashed:StaffPass123!",
		RoleID:      "role-employee",
		IsActive:    active,
	})
	if err != nil {
		panic(err)
	}
	return e
}

var errStoreDown = errors.New("store unavailable")
