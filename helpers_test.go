package authkit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vitaforge/authkit/password"
	"github.com/vitaforge/authkit/token"
)

var testSessionKey = []byte("0123456789abcdef0123456789abcdef")

// fastParams keeps argon2 at the floor so the suite stays quick.
func fastParams() password.Params {
	return password.Params{
		Memory:      16 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// fakeClock is a settable time source shared by a test and its engine.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeStore is an in-memory AccountStore whose compound operations
// hold the lock across their read-modify-write.
type fakeStore struct {
	mu       sync.Mutex
	byID     map[string]*Account
	byEmail  map[string]string
	byOrigin map[string]string

	failCreate error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:     make(map[string]*Account),
		byEmail:  make(map[string]string),
		byOrigin: make(map[string]string),
	}
}

func storeOriginKey(provider, providerUserID string) string {
	return provider + "\x00" + providerUserID
}

func (s *fakeStore) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	if _, exists := s.byEmail[account.Email]; exists {
		return ErrDuplicateEmail
	}
	cp := *account
	s.byID[cp.ID] = &cp
	s.byEmail[cp.Email] = cp.ID
	if cp.Provider != "" {
		s.byOrigin[storeOriginKey(cp.Provider, cp.ProviderUserID)] = cp.ID
	}
	return nil
}

func (s *fakeStore) get(id string) (*Account, error) {
	account, ok := s.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *fakeStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return s.get(id)
}

func (s *fakeStore) GetByProvider(_ context.Context, provider, providerUserID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byOrigin[storeOriginKey(provider, providerUserID)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return s.get(id)
}

func (s *fakeStore) mutate(id string, fn func(*Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	fn(account)
	return nil
}

func (s *fakeStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return s.mutate(id, func(a *Account) { a.PasswordHash = hash })
}

func (s *fakeStore) UpdateProfile(_ context.Context, id string, update ProfileUpdate) error {
	return s.mutate(id, func(a *Account) {
		if update.Name != nil {
			a.Name = *update.Name
		}
		if update.Preferences != nil {
			a.Preferences = update.Preferences
		}
	})
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	delete(s.byEmail, account.Email)
	if account.Provider != "" {
		delete(s.byOrigin, storeOriginKey(account.Provider, account.ProviderUserID))
	}
	delete(s.byID, id)
	return nil
}

func (s *fakeStore) RecordLoginFailure(_ context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return LockoutState{}, ErrAccountNotFound
	}
	if !account.LockedUntil.IsZero() && !now.Before(account.LockedUntil) {
		account.FailedLogins = 0
		account.LockedUntil = time.Time{}
	}
	account.FailedLogins++
	if account.FailedLogins >= threshold {
		account.LockedUntil = now.Add(lockFor)
	}
	return LockoutState{Attempts: account.FailedLogins, LockedUntil: account.LockedUntil}, nil
}

func (s *fakeStore) RecordLoginSuccess(_ context.Context, id string, now time.Time) error {
	return s.mutate(id, func(a *Account) {
		a.FailedLogins = 0
		a.LockedUntil = time.Time{}
		a.LastLoginAt = now
	})
}

func (s *fakeStore) ResetLockout(_ context.Context, id string) error {
	return s.mutate(id, func(a *Account) {
		a.FailedLogins = 0
		a.LockedUntil = time.Time{}
	})
}

func (s *fakeStore) SetVerificationToken(_ context.Context, id string, hash token.Hash, expires time.Time) error {
	return s.mutate(id, func(a *Account) {
		a.VerificationTokenHash = &hash
		a.VerificationExpiresAt = expires
	})
}

func (s *fakeStore) ConsumeVerificationToken(_ context.Context, hash token.Hash, now time.Time) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.byID {
		if account.VerificationTokenHash == nil ||
			!token.Equal(*account.VerificationTokenHash, hash) ||
			now.After(account.VerificationExpiresAt) {
			continue
		}
		account.EmailVerified = true
		account.VerificationTokenHash = nil
		account.VerificationExpiresAt = time.Time{}
		cp := *account
		return &cp, nil
	}
	return nil, ErrTokenInvalidOrExpired
}

func (s *fakeStore) SetResetToken(_ context.Context, id string, hash token.Hash, expires time.Time) error {
	return s.mutate(id, func(a *Account) {
		a.ResetTokenHash = &hash
		a.ResetExpiresAt = expires
	})
}

func (s *fakeStore) ClearResetToken(_ context.Context, id string) error {
	return s.mutate(id, func(a *Account) {
		a.ResetTokenHash = nil
		a.ResetExpiresAt = time.Time{}
	})
}

func (s *fakeStore) ConsumeResetToken(_ context.Context, hash token.Hash, now time.Time) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.byID {
		if account.ResetTokenHash == nil ||
			!token.Equal(*account.ResetTokenHash, hash) ||
			now.After(account.ResetExpiresAt) {
			continue
		}
		account.ResetTokenHash = nil
		account.ResetExpiresAt = time.Time{}
		cp := *account
		return &cp, nil
	}
	return nil, ErrTokenInvalidOrExpired
}

func (s *fakeStore) SaveTwoFactorSetup(_ context.Context, id string, secret []byte, codeHashes [][32]byte) error {
	return s.mutate(id, func(a *Account) {
		a.TOTPSecret = secret
		a.BackupCodeHashes = codeHashes
		a.TwoFactorPending = true
	})
}

func (s *fakeStore) EnableTwoFactor(_ context.Context, id string) error {
	return s.mutate(id, func(a *Account) {
		a.TwoFactorPending = false
		a.TwoFactorEnabled = true
	})
}

func (s *fakeStore) DisableTwoFactor(_ context.Context, id string) error {
	return s.mutate(id, func(a *Account) {
		a.TwoFactorPending = false
		a.TwoFactorEnabled = false
		a.TOTPSecret = nil
		a.BackupCodeHashes = nil
	})
}

func (s *fakeStore) ReplaceBackupCodes(_ context.Context, id string, codeHashes [][32]byte) error {
	return s.mutate(id, func(a *Account) { a.BackupCodeHashes = codeHashes })
}

func (s *fakeStore) ConsumeBackupCode(_ context.Context, id string, codeHash [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return false, ErrAccountNotFound
	}
	for i, h := range account.BackupCodeHashes {
		if h == codeHash {
			account.BackupCodeHashes = append(account.BackupCodeHashes[:i], account.BackupCodeHashes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) LinkProvider(_ context.Context, id, provider, providerUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.Provider = provider
	account.ProviderUserID = providerUserID
	s.byOrigin[storeOriginKey(provider, providerUserID)] = id
	return nil
}

// snapshot returns a copy of the stored record for assertions.
func (s *fakeStore) snapshot(t *testing.T, email string) *Account {
	t.Helper()
	account, err := s.GetByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("account %s: %v", email, err)
	}
	return account
}

var errNotifierDown = errors.New("smtp down")

// fakeNotifier records every delivery and can be told to fail.
type fakeNotifier struct {
	mu                 sync.Mutex
	verificationTokens map[string]string
	resetTokens        map[string]string
	welcomes           int

	failReset        bool
	failVerification bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		verificationTokens: make(map[string]string),
		resetTokens:        make(map[string]string),
	}
}

func (n *fakeNotifier) SendVerificationEmail(_ context.Context, account Profile, rawToken string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failVerification {
		return errNotifierDown
	}
	n.verificationTokens[account.Email] = rawToken
	return nil
}

func (n *fakeNotifier) SendPasswordResetEmail(_ context.Context, account Profile, rawToken string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failReset {
		return errNotifierDown
	}
	n.resetTokens[account.Email] = rawToken
	return nil
}

func (n *fakeNotifier) SendWelcomeEmail(context.Context, Profile) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcomes++
	return nil
}

func (n *fakeNotifier) verificationToken(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verificationTokens[email]
}

func (n *fakeNotifier) resetToken(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resetTokens[email]
}

// fakeResources serves canned content for export and tracks deletion.
type fakeResources struct {
	mu      sync.Mutex
	items   map[string][]Resource
	deleted map[string]bool
}

func newFakeResources() *fakeResources {
	return &fakeResources{
		items:   make(map[string][]Resource),
		deleted: make(map[string]bool),
	}
}

func (r *fakeResources) ListByAccount(_ context.Context, accountID string) ([]Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Resource(nil), r.items[accountID]...), nil
}

func (r *fakeResources) DeleteAllByAccount(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, accountID)
	r.deleted[accountID] = true
	return nil
}

type testEnv struct {
	engine    *Engine
	store     *fakeStore
	notifier  *fakeNotifier
	resources *fakeResources
	clock     *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:     newFakeStore(),
		notifier:  newFakeNotifier(),
		resources: newFakeResources(),
		clock:     newFakeClock(),
	}

	cfg := defaultConfig()
	cfg.Password.Params = fastParams()
	cfg.Session.Key = testSessionKey
	cfg.Reset.EnumerationDelay = time.Millisecond

	engine, err := New().
		WithConfig(cfg).
		WithStore(env.store).
		WithNotifier(env.notifier).
		WithResources(env.resources).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	env.engine = engine
	return env
}

// register creates and verifies an account, returning its profile.
func (env *testEnv) register(t *testing.T, name, email, pass string) Profile {
	t.Helper()
	ctx := context.Background()

	if _, err := env.engine.Register(ctx, RegisterInput{Name: name, Email: email, Password: pass}); err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	profile, err := env.engine.VerifyEmail(ctx, env.notifier.verificationToken(email))
	if err != nil {
		t.Fatalf("verify %s: %v", email, err)
	}
	return profile
}

// login expects a clean single-factor success and returns the session
// token.
func (env *testEnv) login(t *testing.T, email, pass string) string {
	t.Helper()
	result, err := env.engine.Login(context.Background(), email, pass)
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	if result.TwoFactorRequired {
		t.Fatalf("login %s: unexpected two-factor challenge", email)
	}
	return result.SessionToken
}

// enableTwoFactor walks the full setup flow and returns the backup
// codes together with the shared secret for minting codes in tests.
func (env *testEnv) enableTwoFactor(t *testing.T, accountID string) (*TwoFactorSetup, []byte) {
	t.Helper()
	ctx := context.Background()

	setup, err := env.engine.BeginTwoFactorSetup(ctx, accountID)
	if err != nil {
		t.Fatalf("begin two-factor setup: %v", err)
	}
	account, err := env.store.GetByID(ctx, accountID)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if err := env.engine.ConfirmTwoFactorSetup(ctx, accountID, totpCodeAt(account.TOTPSecret, env.clock.Now())); err != nil {
		t.Fatalf("confirm two-factor setup: %v", err)
	}
	return setup, account.TOTPSecret
}

// totpCodeAt computes the code an authenticator would show at t.
func totpCodeAt(secret []byte, t time.Time) string {
	return hotpCode(secret, t.Unix()/totpPeriod)
}
