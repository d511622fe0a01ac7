package authkit

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vitaforge/authkit/internal/audit"
	"github.com/vitaforge/authkit/password"
	"github.com/vitaforge/authkit/session"
)

// Engine is the account security core. Assemble one through New and
// the Builder; the zero value is not usable. All methods are safe for
// concurrent use.
type Engine struct {
	config     Config
	store      AccountStore
	notifier   Notifier
	resources  ResourceStore
	hasher     *password.Hasher
	sessions   *session.Issuer
	totp       *totpManager
	challenges challengeStore
	audit      *audit.Dispatcher
	metrics    *Metrics

	// clock is swapped in tests; production engines use time.Now.
	clock func() time.Time
}

// Close flushes and stops the audit pipeline. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because
// the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

// Login authenticates an email/password pair.
//
// A locked account is reported as ErrAccountLocked before the password
// is checked, so lock probes learn nothing about the credential. A
// wrong password on an unlocked account counts one failed attempt; the
// attempt that reaches the lockout threshold still reports
// ErrInvalidCredentials, and only later calls see the lock.
//
// When the account has two-factor enabled, a correct password does not
// finish the login: the result carries a challenge ID for
// CompleteTwoFactorLogin and the failure counters stay untouched until
// the second factor clears.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := e.clock()
	email = normalizeEmail(email)

	account, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", email, ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if account.Locked(now) {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, account.ID, email, ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	if !account.HasLocalPassword() {
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, email, ErrNoLocalPassword, nil)
		return nil, ErrNoLocalPassword
	}

	ok, err := e.hasher.Verify(plaintext, account.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.recordFailedLogin(ctx, account, email, now)
	}

	e.maybeRehash(ctx, account, plaintext)

	if account.TwoFactorEnabled {
		return e.openTwoFactorChallenge(ctx, account, now)
	}

	return e.finishLogin(ctx, account, now)
}

// recordFailedLogin applies one atomic failure and reports
// ErrInvalidCredentials regardless of whether this attempt tripped the
// lock.
func (e *Engine) recordFailedLogin(ctx context.Context, account *Account, email string, now time.Time) error {
	state, err := e.store.RecordLoginFailure(ctx, account.ID, e.config.Lockout.Threshold, e.config.Lockout.Window, now)
	if err != nil {
		return err
	}

	e.metricInc(MetricLoginFailure)
	if now.Before(state.LockedUntil) {
		e.metricInc(MetricLockoutTripped)
		e.emitAudit(ctx, auditEventLockoutTripped, false, account.ID, email, ErrInvalidCredentials, map[string]string{
			"attempts": itoa(state.Attempts),
		})
	} else {
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, email, ErrInvalidCredentials, map[string]string{
			"attempts": itoa(state.Attempts),
		})
	}
	return ErrInvalidCredentials
}

// maybeRehash upgrades the stored hash when the configured cost rose
// since the password was last hashed. Best effort: a failure here must
// not fail the login.
func (e *Engine) maybeRehash(ctx context.Context, account *Account, plaintext string) {
	needs, err := e.hasher.NeedsRehash(account.PasswordHash)
	if err != nil || !needs {
		return
	}
	rehashed, err := e.hasher.Hash(plaintext)
	if err != nil {
		log.Printf("authkit: rehash on login failed: %v", err)
		return
	}
	if err := e.store.UpdatePasswordHash(ctx, account.ID, rehashed); err != nil {
		log.Printf("authkit: storing rehashed password failed: %v", err)
		return
	}
	e.metricInc(MetricPasswordRehashed)
}

func (e *Engine) openTwoFactorChallenge(ctx context.Context, account *Account, now time.Time) (*LoginResult, error) {
	challengeID := uuid.NewString()
	record := &loginChallenge{
		AccountID: account.ID,
		ExpiresAt: now.Add(e.config.TwoFactor.ChallengeTTL).Unix(),
	}
	if err := e.challenges.Save(ctx, challengeID, record, e.config.TwoFactor.ChallengeTTL); err != nil {
		return nil, ErrStoreUnavailable
	}

	e.metricInc(MetricTwoFactorRequired)
	e.emitAudit(ctx, auditEventTwoFactorRequired, true, account.ID, account.Email, nil, nil)
	return &LoginResult{TwoFactorRequired: true, ChallengeID: challengeID}, nil
}

// CompleteTwoFactorLogin finishes a login that Login left pending. The
// code may be a 6-digit authenticator code or a backup code; backup
// codes are consumed on use. Wrong codes count against the challenge's
// attempt cap, and exceeding it voids the challenge.
func (e *Engine) CompleteTwoFactorLogin(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := e.clock()

	record, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		switch {
		case errors.Is(err, errChallengeNotFound), errors.Is(err, errChallengeExpired):
			e.metricInc(MetricTwoFactorChallengeExpired)
			return nil, ErrTwoFactorChallengeExpired
		case errors.Is(err, errChallengeBackend):
			return nil, ErrStoreUnavailable
		}
		return nil, err
	}

	account, err := e.store.GetByID(ctx, record.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.TwoFactorEnabled {
		_, _ = e.challenges.Delete(ctx, challengeID)
		return nil, ErrTwoFactorNotEnabled
	}

	ok, usedBackup, err := e.checkSecondFactor(ctx, account, code, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		exceeded, ferr := e.challenges.RecordFailure(ctx, challengeID, e.config.TwoFactor.ChallengeAttempts)
		if ferr != nil && !errors.Is(ferr, errChallengeExpired) && !errors.Is(ferr, errChallengeNotFound) {
			return nil, ErrStoreUnavailable
		}
		if exceeded {
			e.emitAudit(ctx, auditEventTwoFactorFailure, false, account.ID, account.Email, ErrTwoFactorAttemptsExceeded, nil)
			return nil, ErrTwoFactorAttemptsExceeded
		}
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, account.ID, account.Email, ErrTwoFactorCodeInvalid, nil)
		return nil, ErrTwoFactorCodeInvalid
	}

	if _, err := e.challenges.Delete(ctx, challengeID); err != nil {
		return nil, ErrStoreUnavailable
	}

	e.metricInc(MetricTwoFactorSuccess)
	if usedBackup {
		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, auditEventBackupCodeUsed, true, account.ID, account.Email, nil, map[string]string{
			"remaining": itoa(len(account.BackupCodeHashes) - 1),
		})
	}
	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, account.ID, account.Email, nil, nil)
	return e.finishLogin(ctx, account, now)
}

// checkSecondFactor tries the submitted code first as a TOTP code,
// then as a backup code. Backup consumption is atomic in the store.
func (e *Engine) checkSecondFactor(ctx context.Context, account *Account, code string, now time.Time) (ok, usedBackup bool, err error) {
	ok, err = e.totp.VerifyCode(account.TOTPSecret, code, now)
	if err != nil {
		return false, false, err
	}
	if ok {
		return true, false, nil
	}

	canonical := canonicalizeBackupCode(code)
	if len(canonical) != backupCodeLength {
		return false, false, nil
	}
	consumed, err := e.store.ConsumeBackupCode(ctx, account.ID, hashBackupCode(account.ID, canonical))
	if err != nil {
		return false, false, err
	}
	if !consumed {
		e.metricInc(MetricBackupCodeFailed)
		return false, false, nil
	}
	return true, true, nil
}

// finishLogin is the single point where a fully authenticated login
// clears the failure counters and mints a session.
func (e *Engine) finishLogin(ctx context.Context, account *Account, now time.Time) (*LoginResult, error) {
	if err := e.store.RecordLoginSuccess(ctx, account.ID, now); err != nil {
		return nil, err
	}

	token, err := e.sessions.Issue(account.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, account.Email, nil, nil)
	return &LoginResult{SessionToken: token}, nil
}

// Authenticate resolves a session token to the account profile it was
// issued for. Any verification failure, including expiry, is reported
// as ErrUnauthenticated.
func (e *Engine) Authenticate(ctx context.Context, sessionToken string) (Profile, error) {
	if e == nil {
		return Profile{}, ErrEngineNotReady
	}

	accountID, err := e.sessions.Verify(sessionToken)
	if err != nil {
		e.metricInc(MetricSessionRejected)
		return Profile{}, ErrUnauthenticated
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricSessionRejected)
			return Profile{}, ErrUnauthenticated
		}
		return Profile{}, err
	}
	return account.Profile(), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// sleepEnumerationDelay blocks for a random slice of the configured
// bound, so negative lookups do not return measurably faster than the
// real work they skipped.
func (e *Engine) sleepEnumerationDelay(ctx context.Context) {
	bound := e.config.Reset.EnumerationDelay
	if bound <= 0 {
		return
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(bound)))
	if err != nil {
		return
	}
	select {
	case <-time.After(time.Duration(n.Int64())):
	case <-ctx.Done():
	}
}

func itoa(n int) string { return strconv.Itoa(n) }
