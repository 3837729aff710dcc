package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
)

func registerAlice(t *testing.T, f *fixture) *ports.IdentitySummary {
	t.Helper()
	sum, err := f.svc.RegisterCustomer(context.Background(), aliceInput())
	if err != nil {
		t.Fatalf("RegisterCustomer returned error: %v", err)
	}
	return sum
}

func aliceLogin(password string) ports.CustomerLoginInput {
	return ports.CustomerLoginInput{Username: "alice01", AccountNumber: "1234567890", Password: password}
}

func TestAuthService_RegisterCustomer_PersistsCiphertext(t *testing.T) {
	f := newFixture()
	sum := registerAlice(t, f)

	if sum.ExternalID != "CUST0001" {
		t.Fatalf("expected CUST0001, got %s", sum.ExternalID)
	}
	if sum.Role != domain.RoleCustomer {
		t.Fatalf("unexpected role: %s", sum.Role)
	}

	stored := f.store.customers[sum.ID]
	if stored.SecretHash == "SecurePass123!" {
		t.Fatalf("expected password to be hashed")
	}
	if stored.NationalIDCipher == "" || strings.Contains(stored.NationalIDCipher, "1234567890123") {
		t.Fatalf("national id stored in clear: %q", stored.NationalIDCipher)
	}
	if stored.AccountNumberCipher == "" || strings.Contains(stored.AccountNumberCipher, "1234567890") {
		t.Fatalf("account number stored in clear: %q", stored.AccountNumberCipher)
	}
	if stored.Lockout.FailedAttempts != 0 || stored.Lockout.LockedUntil != nil {
		t.Fatalf("expected fresh lockout state, got %+v", stored.Lockout)
	}
	if f.audit.count(domain.EventCustomerRegistered) != 1 {
		t.Fatalf("expected registration audit event")
	}

	profile, err := f.svc.CustomerProfile(context.Background(), sum.ID)
	if err != nil {
		t.Fatalf("CustomerProfile returned error: %v", err)
	}
	if profile.MaskedAccountNumber != "****7890" {
		t.Fatalf("expected ****7890, got %s", profile.MaskedAccountNumber)
	}
}

func TestAuthService_RegisterCustomer_SequentialExternalIDs(t *testing.T) {
	f := newFixture()
	registerAlice(t, f)

	in := aliceInput()
	in.Username = "bob_02"
	in.NationalID = "9876543210987"
	in.AccountNumber = "99887766554"
	sum, err := f.svc.RegisterCustomer(context.Background(), in)
	if err != nil {
		t.Fatalf("RegisterCustomer returned error: %v", err)
	}
	if sum.ExternalID != "CUST0002" {
		t.Fatalf("expected CUST0002, got %s", sum.ExternalID)
	}
}

func TestAuthService_RegisterCustomer_Validation(t *testing.T) {
	f := newFixture()
	in := aliceInput()
	in.Password = "weak"
	in.NationalID = "123"

	_, err := f.svc.RegisterCustomer(context.Background(), in)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Feedback) == 0 {
		t.Fatalf("expected password feedback")
	}
	if f.hasher.hashCalls != 0 {
		t.Fatalf("hasher must not run for invalid input")
	}
}

func TestAuthService_RegisterCustomer_DuplicateUsername(t *testing.T) {
	f := newFixture()
	registerAlice(t, f)

	in := aliceInput()
	in.Username = "ALICE01"
	_, err := f.svc.RegisterCustomer(context.Background(), in)
	var ce *domain.ConflictError
	if !errors.As(err, &ce) || ce.Field != "username" {
		t.Fatalf("expected username conflict, got %v", err)
	}
}

func TestAuthService_RegisterCustomer_DuplicateAccountNumber(t *testing.T) {
	f := newFixture()
	registerAlice(t, f)

	in := aliceInput()
	in.Username = "other_user"
	in.NationalID = "5555555555555"
	_, err := f.svc.RegisterCustomer(context.Background(), in)
	var ce *domain.ConflictError
	if !errors.As(err, &ce) || ce.Field != "account_number" {
		t.Fatalf("expected account_number conflict, got %v", err)
	}
}

func TestAuthService_RegisterCustomer_RetriesExternalIDConflict(t *testing.T) {
	f := newFixture()
	f.store.externalIDConflicts = 2

	sum := registerAlice(t, f)
	if sum.ExternalID != "CUST0001" {
		t.Fatalf("unexpected external id %s", sum.ExternalID)
	}
}

func TestAuthService_RegisterCustomer_ExternalIDExhausted(t *testing.T) {
	f := newFixture()
	f.store.externalIDConflicts = externalIDAttempts

	_, err := f.svc.RegisterCustomer(context.Background(), aliceInput())
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestAuthService_LoginCustomer_Success(t *testing.T) {
	f := newFixture()
	sum := registerAlice(t, f)

	res, err := f.svc.LoginCustomer(context.Background(), aliceLogin("SecurePass123!"))
	if err != nil {
		t.Fatalf("LoginCustomer returned error: %v", err)
	}
	if res.Verdict.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected success, got %s", res.Verdict.Outcome)
	}
	if res.Token == "" || res.Identity == nil || res.Identity.ID != sum.ID {
		t.Fatalf("unexpected result: %+v", res)
	}

	claims, err := f.svc.VerifyToken(context.Background(), "Bearer "+res.Token)
	if err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
	if claims.AccountKind != domain.KindCustomer || claims.RoleName != domain.RoleCustomer {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Permissions) != 0 {
		t.Fatalf("customer tokens carry no permissions, got %v", claims.Permissions)
	}
	if f.store.customers[sum.ID].LastLoginAt == nil {
		t.Fatalf("expected last login to be recorded")
	}
}

func TestAuthService_LoginCustomer_CountdownThenLock(t *testing.T) {
	f := newFixture()
	registerAlice(t, f)
	ctx := context.Background()

	for _, want := range []uint{4, 3, 2, 1} {
		res, err := f.svc.LoginCustomer(ctx, aliceLogin("WrongPass123!"))
		if err != nil {
			t.Fatalf("LoginCustomer returned error: %v", err)
		}
		if res.Verdict.Outcome != domain.OutcomeInvalidCredentials {
			t.Fatalf("expected invalid credentials, got %s", res.Verdict.Outcome)
		}
		if res.Verdict.RemainingAttempts == nil || *res.Verdict.RemainingAttempts != want {
			t.Fatalf("expected %d remaining attempts, got %v", want, res.Verdict.RemainingAttempts)
		}
	}

	res, err := f.svc.LoginCustomer(ctx, aliceLogin("WrongPass123!"))
	if err != nil {
		t.Fatalf("LoginCustomer returned error: %v", err)
	}
	if res.Verdict.Outcome != domain.OutcomeLocked || !res.Verdict.JustLocked {
		t.Fatalf("expected fresh lock, got %+v", res.Verdict)
	}
	if res.Verdict.LockRemaining != 30*time.Minute {
		t.Fatalf("expected 30m lock, got %s", res.Verdict.LockRemaining)
	}
	var locked *domain.LockedError
	if !errors.As(res.Verdict.Err(), &locked) {
		t.Fatalf("expected LockedError from verdict")
	}
	if f.audit.count(domain.EventAccountLocked) != 1 {
		t.Fatalf("expected one account_locked event")
	}
}

func TestAuthService_LoginCustomer_LockedSkipsHasher(t *testing.T) {
	f := newFixture()
	sum := registerAlice(t, f)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := f.svc.LoginCustomer(ctx, aliceLogin("WrongPass123!")); err != nil {
			t.Fatalf("LoginCustomer returned error: %v", err)
		}
	}

	f.advance(10 * time.Minute)
	before := f.hasher.verifies()
	res, err := f.svc.LoginCustomer(ctx, aliceLogin("SecurePass123!"))
	if err != nil {
		t.Fatalf("LoginCustomer returned error: %v", err)
	}
	if res.Verdict.Outcome != domain.OutcomeLocked {
		t.Fatalf("expected locked, got %s", res.Verdict.Outcome)
	}
	if res.Verdict.LockRemaining != 20*time.Minute {
		t.Fatalf("expected 20m remaining, got %s", res.Verdict.LockRemaining)
	}
	if f.hasher.verifies() != before {
		t.Fatalf("hasher consulted while locked")
	}
	if got := f.store.lockoutOf(domain.IdentityRef{Kind: domain.KindCustomer, ID: sum.ID}).FailedAttempts; got != 5 {
		t.Fatalf("locked attempt must not be consumed, failed=%d", got)
	}
}

func TestAuthService_LoginCustomer_SucceedsAfterWindow(t *testing.T) {
	f := newFixture()
	sum := registerAlice(t, f)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := f.svc.LoginCustomer(ctx, aliceLogin("WrongPass123!")); err != nil {
			t.Fatalf("LoginCustomer returned error: %v", err)
		}
	}

	f.advance(31 * time.Minute)
	res, err := f.svc.LoginCustomer(ctx, aliceLogin("SecurePass123!"))
	if err != nil {
		t.Fatalf("LoginCustomer returned error: %v", err)
	}
	if res.Verdict.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected success after lock window, got %s", res.Verdict.Outcome)
	}
	st := f.store.lockoutOf(domain.IdentityRef{Kind: domain.KindCustomer, ID: sum.ID})
	if st.FailedAttempts != 0 || st.LockedUntil != nil {
		t.Fatalf("expected counter reset, got %+v", st)
	}
}

func TestAuthService_LoginCustomer_AccountMismatchIndistinguishable(t *testing.T) {
	f := newFixture()
	registerAlice(t, f)
	ctx := context.Background()

	badPassword, err := f.svc.LoginCustomer(ctx, aliceLogin("WrongPass123!"))
	if err != nil {
		t.Fatalf("LoginCustomer returned error: %v", err)
	}
	in := aliceLogin("SecurePass123!")
	in.AccountNumber = "0000000000"
	badAccount, err := f.svc.LoginCustomer(ctx, in)
	if err != nil {
		t.Fatalf("LoginCustomer returned error: %v", err)
	}

	if badAccount.Verdict.Outcome != badPassword.Verdict.Outcome {
		t.Fatalf("outcomes differ: %s vs %s", badAccount.Verdict.Outcome, badPassword.Verdict.Outcome)
	}
	if badAccount.Verdict.Err().Error() != badPassword.Verdict.Err().Error() {
		t.Fatalf("messages differ")
	}
	if *badAccount.Verdict.RemainingAttempts != 3 {
		t.Fatalf("account mismatch must consume exactly one attempt, remaining=%d", *badAccount.Verdict.RemainingAttempts)
	}
}

func TestAuthService_LoginCustomer_RetriedAttemptCountsOnce(t *testing.T) {
	f := newFixture()
	sum := registerAlice(t, f)
	ctx := context.Background()

	in := aliceLogin("WrongPass123!")
	in.AttemptKey = "req-1"
	for i := 0; i < 3; i++ {
		res, err := f.svc.LoginCustomer(ctx, in)
		if err != nil {
			t.Fatalf("LoginCustomer returned error: %v", err)
		}
		if *res.Verdict.RemainingAttempts != 4 {
			t.Fatalf("retry %d: expected 4 remaining, got %d", i, *res.Verdict.RemainingAttempts)
		}
	}
	if got := f.store.lockoutOf(domain.IdentityRef{Kind: domain.KindCustomer, ID: sum.ID}).FailedAttempts; got != 1 {
		t.Fatalf("expected a single recorded failure, got %d", got)
	}
}

func TestAuthService_LoginCustomer_ReusedAttemptKeyStillLocks(t *testing.T) {
	f := newFixture()
	sum := registerAlice(t, f)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		in := aliceLogin(fmt.Sprintf("WrongPass%d!", i))
		in.AttemptKey = "fixed"
		res, err := f.svc.LoginCustomer(ctx, in)
		if err != nil {
			t.Fatalf("attempt %d: LoginCustomer returned error: %v", i, err)
		}
		if i < 5 {
			if res.Verdict.Outcome != domain.OutcomeInvalidCredentials || *res.Verdict.RemainingAttempts != uint(5-i) {
				t.Fatalf("attempt %d: unexpected verdict %+v", i, res.Verdict)
			}
			continue
		}
		if res.Verdict.Outcome != domain.OutcomeLocked || !res.Verdict.JustLocked {
			t.Fatalf("expected the fifth distinct guess to lock, got %+v", res.Verdict)
		}
	}
	if got := f.store.lockoutOf(domain.IdentityRef{Kind: domain.KindCustomer, ID: sum.ID}).FailedAttempts; got != 5 {
		t.Fatalf("expected 5 recorded failures, got %d", got)
	}

	verifies := f.hasher.verifies()
	in := aliceLogin("SecurePass123!")
	in.AttemptKey = "fixed"
	res, err := f.svc.LoginCustomer(ctx, in)
	if err != nil {
		t.Fatalf("LoginCustomer returned error: %v", err)
	}
	if res.Verdict.Outcome != domain.OutcomeLocked {
		t.Fatalf("correct password under a reused key must stay locked, got %+v", res.Verdict)
	}
	if f.hasher.verifies() != verifies {
		t.Fatalf("hasher consulted while locked")
	}
}

func TestAuthService_LoginEmployee_ReusedAttemptKeyCountsEachGuess(t *testing.T) {
	f := newFixture()
	emp := f.seedEmployee(true)

	for i := 1; i <= 3; i++ {
		res, err := f.svc.LoginEmployee(context.Background(), ports.EmployeeLoginInput{
			Login:      "jdoe.ops",
			Password:   fmt.Sprintf("Guess%d!", i),
			AttemptKey: "fixed",
		})
		if err != nil {
			t.Fatalf("LoginEmployee returned error: %v", err)
		}
		if *res.Verdict.RemainingAttempts != uint(5-i) {
			t.Fatalf("guess %d: expected %d remaining, got %d", i, 5-i, *res.Verdict.RemainingAttempts)
		}
	}
	if got := f.store.lockoutOf(emp.Ref()).FailedAttempts; got != 3 {
		t.Fatalf("expected 3 recorded failures, got %d", got)
	}
}

func TestAuthService_UnknownUser_DummyHashSurvivesCancelledFirstCall(t *testing.T) {
	f := newFixture()
	f.hasher.honourCtx = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = f.svc.LoginCustomer(ctx, aliceLogin("SecurePass123!"))

	if _, err := f.svc.LoginCustomer(context.Background(), aliceLogin("SecurePass123!")); err != nil {
		t.Fatalf("LoginCustomer returned error: %v", err)
	}
	if f.svc.dummyHash == "" {
		t.Fatalf("dummy hash was never computed")
	}
	if f.hasher.verifies() != 2 {
		t.Fatalf("expected every unknown-user login to verify against the dummy hash, got %d", f.hasher.verifies())
	}
}

func TestAuthService_LoginCustomer_UnknownUser(t *testing.T) {
	f := newFixture()

	res, err := f.svc.LoginCustomer(context.Background(), aliceLogin("SecurePass123!"))
	if err != nil {
		t.Fatalf("LoginCustomer returned error: %v", err)
	}
	if res.Verdict.Outcome != domain.OutcomeInvalidCredentials || res.Verdict.RemainingAttempts != nil {
		t.Fatalf("unexpected verdict: %+v", res.Verdict)
	}
	if f.hasher.verifies() != 1 {
		t.Fatalf("expected a dummy verification, got %d", f.hasher.verifies())
	}
}

func TestAuthService_LoginCustomer_MissingFields(t *testing.T) {
	f := newFixture()
	res, err := f.svc.LoginCustomer(context.Background(), ports.CustomerLoginInput{Username: "alice01"})
	if err != nil {
		t.Fatalf("LoginCustomer returned error: %v", err)
	}
	if res.Verdict.Outcome != domain.OutcomeInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %s", res.Verdict.Outcome)
	}
}

func TestAuthService_LoginCustomer_Deactivated(t *testing.T) {
	f := newFixture()
	sum := registerAlice(t, f)
	f.store.customers[sum.ID].IsActive = false

	res, err := f.svc.LoginCustomer(context.Background(), aliceLogin("SecurePass123!"))
	if err != nil {
		t.Fatalf("LoginCustomer returned error: %v", err)
	}
	if res.Verdict.Outcome != domain.OutcomeDeactivated {
		t.Fatalf("expected deactivated, got %s", res.Verdict.Outcome)
	}
	if !errors.Is(res.Verdict.Err(), domain.ErrDeactivated) {
		t.Fatalf("expected ErrDeactivated")
	}
	if res.Token != "" {
		t.Fatalf("no token for a deactivated account")
	}
}

func TestAuthService_LoginCustomer_StoreFailureIsError(t *testing.T) {
	f := newFixture()
	f.store.findErr = errStoreDown

	_, err := f.svc.LoginCustomer(context.Background(), aliceLogin("SecurePass123!"))
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestAuthService_LoginCustomer_TamperedAccountCipher(t *testing.T) {
	f := newFixture()
	sum := registerAlice(t, f)
	f.store.customers[sum.ID].AccountNumberCipher = "garbage"

	_, err := f.svc.LoginCustomer(context.Background(), aliceLogin("SecurePass123!"))
	if !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

func TestAuthService_LoginEmployee_ByUsernameOrID(t *testing.T) {
	f := newFixture()
	f.seedEmployee(true)

	for _, login := range []string{"jdoe.ops", "JDoe.Ops", "emp0001", "EMP0001"} {
		res, err := f.svc.LoginEmployee(context.Background(), ports.EmployeeLoginInput{Login: login, Password: "StaffPass123!"})
		if err != nil {
			t.Fatalf("%s: LoginEmployee returned error: %v", login, err)
		}
		if res.Verdict.Outcome != domain.OutcomeSuccess {
			t.Fatalf("%s: expected success, got %s", login, res.Verdict.Outcome)
		}
		claims, err := f.svc.VerifyToken(context.Background(), res.Token)
		if err != nil {
			t.Fatalf("VerifyToken returned error: %v", err)
		}
		if claims.AccountKind != domain.KindEmployee || claims.ExternalID != "EMP0001" {
			t.Fatalf("unexpected claims: %+v", claims)
		}
		found := false
		for _, p := range claims.Permissions {
			if p == string(domain.PermVerifyTransactions) {
				found = true
			}
		}
		if !found {
			t.Fatalf("employee token must carry permissions, got %v", claims.Permissions)
		}
	}
}

func TestAuthService_LoginEmployee_WrongPassword(t *testing.T) {
	f := newFixture()
	f.seedEmployee(true)

	res, err := f.svc.LoginEmployee(context.Background(), ports.EmployeeLoginInput{Login: "jdoe.ops", Password: "nope"})
	if err != nil {
		t.Fatalf("LoginEmployee returned error: %v", err)
	}
	if res.Verdict.Outcome != domain.OutcomeInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %s", res.Verdict.Outcome)
	}
}

func TestAuthService_HidesRemainingAttemptsWhenDisabled(t *testing.T) {
	f := newFixture()
	f.svc.cfg.ExposeRemainingAttempts = false
	registerAlice(t, f)

	res, err := f.svc.LoginCustomer(context.Background(), aliceLogin("WrongPass123!"))
	if err != nil {
		t.Fatalf("LoginCustomer returned error: %v", err)
	}
	if res.Verdict.RemainingAttempts != nil {
		t.Fatalf("remaining attempts must be hidden")
	}
}

func TestAuthService_VerifyToken(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.VerifyToken(context.Background(), ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := f.svc.VerifyToken(context.Background(), "expired"); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if _, err := f.svc.VerifyToken(context.Background(), "forged"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestAuthService_EmployeeProfile(t *testing.T) {
	f := newFixture()
	e := f.seedEmployee(true)

	p, err := f.svc.EmployeeProfile(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("EmployeeProfile returned error: %v", err)
	}
	if p.Role != domain.RoleEmployee || len(p.Permissions) != 3 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if _, err := f.svc.EmployeeProfile(context.Background(), "missing"); !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}
