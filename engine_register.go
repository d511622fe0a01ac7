package authkit

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/vitaforge/authkit/token"
)

// Register creates an unverified account and sends the verification
// email. The raw verification token exists only inside the outbound
// mail; the store keeps its hash.
//
// A failure to send the mail does not undo the registration: the
// account exists and the user can ask for a fresh token with
// ResendVerificationEmail.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (Profile, error) {
	if e == nil {
		return Profile{}, ErrEngineNotReady
	}
	now := e.clock()

	email := normalizeEmail(input.Email)
	if !isPlausibleEmail(email) {
		return Profile{}, ErrInvalidEmail
	}
	if len(input.Password) < e.config.Password.MinLength {
		return Profile{}, ErrPasswordPolicy
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return Profile{}, err
	}

	rawToken, tokenHash, err := token.New()
	if err != nil {
		return Profile{}, err
	}

	account := &Account{
		ID:                    uuid.NewString(),
		Email:                 email,
		Name:                  strings.TrimSpace(input.Name),
		PasswordHash:          hash,
		VerificationTokenHash: &tokenHash,
		VerificationExpiresAt: now.Add(e.config.Verification.TokenTTL),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := e.store.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegister, false, "", email, err, nil)
		}
		return Profile{}, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegister, true, account.ID, email, nil, nil)

	e.sendVerification(ctx, account.Profile(), rawToken)
	return account.Profile(), nil
}

// VerifyEmail consumes a verification token. The consume is a single
// conditional store operation, so a token can succeed exactly once no
// matter how many requests race on it.
func (e *Engine) VerifyEmail(ctx context.Context, rawToken string) (Profile, error) {
	if e == nil {
		return Profile{}, ErrEngineNotReady
	}
	now := e.clock()

	hash, err := token.HashCandidate(rawToken)
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		return Profile{}, ErrTokenInvalidOrExpired
	}

	account, err := e.store.ConsumeVerificationToken(ctx, hash, now)
	if err != nil {
		if errors.Is(err, ErrTokenInvalidOrExpired) {
			e.metricInc(MetricEmailVerificationFailure)
			e.emitAudit(ctx, auditEventEmailVerified, false, "", "", err, nil)
		}
		return Profile{}, err
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerified, true, account.ID, account.Email, nil, nil)

	if e.notifier != nil {
		if err := e.notifier.SendWelcomeEmail(ctx, account.Profile()); err != nil {
			log.Printf("authkit: welcome email failed: %v", err)
		}
	}
	return account.Profile(), nil
}

// ResendVerificationEmail mints a fresh verification token for an
// unverified account, invalidating the previous one. Verified accounts
// are a silent no-op. Unknown emails report ErrAccountNotFound after
// the anti-enumeration delay.
func (e *Engine) ResendVerificationEmail(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	now := e.clock()
	email = normalizeEmail(email)

	account, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.sleepEnumerationDelay(ctx)
		}
		return err
	}
	if account.EmailVerified {
		return nil
	}

	rawToken, tokenHash, err := token.New()
	if err != nil {
		return err
	}
	if err := e.store.SetVerificationToken(ctx, account.ID, tokenHash, now.Add(e.config.Verification.TokenTTL)); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventVerificationResent, true, account.ID, email, nil, nil)
	e.sendVerification(ctx, account.Profile(), rawToken)
	return nil
}

func (e *Engine) sendVerification(ctx context.Context, profile Profile, rawToken string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.SendVerificationEmail(ctx, profile, rawToken); err != nil {
		log.Printf("authkit: verification email failed: %v", err)
		return
	}
	e.metricInc(MetricEmailVerificationSent)
}

// isPlausibleEmail is a shape check, not RFC validation: the real
// proof of ownership is the verification token round trip.
func isPlausibleEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}
