package authkit

import (
	"context"
	"errors"
	"log"

	"github.com/vitaforge/authkit/token"
)

// RequestPasswordReset mints a short-lived reset token for the account
// behind email and hands the raw token to the notifier. Requesting
// again replaces any earlier token.
//
// An unknown email reports ErrAccountNotFound, after a randomized delay
// so the negative path does not return measurably faster. If the
// notifier fails, the stored token is rolled back and the request
// reports success anyway: the caller learns nothing and no orphaned
// token stays live.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	now := e.clock()
	email = normalizeEmail(email)

	account, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.sleepEnumerationDelay(ctx)
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", email, err, nil)
		}
		return err
	}
	if !account.HasLocalPassword() {
		return ErrNoLocalPassword
	}

	rawToken, tokenHash, err := token.New()
	if err != nil {
		return err
	}
	if err := e.store.SetResetToken(ctx, account.ID, tokenHash, now.Add(e.config.Reset.TokenTTL)); err != nil {
		return err
	}

	if e.notifier != nil {
		if err := e.notifier.SendPasswordResetEmail(ctx, account.Profile(), rawToken); err != nil {
			log.Printf("authkit: reset email failed: %v", err)
			if cerr := e.store.ClearResetToken(ctx, account.ID); cerr != nil {
				log.Printf("authkit: reset token rollback failed: %v", cerr)
			}
			return nil
		}
	}

	e.metricInc(MetricPasswordResetRequested)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, account.ID, email, nil, nil)
	return nil
}

// ResetPassword consumes a reset token and installs a new password.
// The consume is a single conditional store operation, so concurrent
// submissions of the same token succeed at most once. A successful
// reset also clears any active lockout, since the actor just proved
// control of the mailbox.
func (e *Engine) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	now := e.clock()

	if len(newPassword) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}

	hash, err := token.HashCandidate(rawToken)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return ErrTokenInvalidOrExpired
	}

	account, err := e.store.ConsumeResetToken(ctx, hash, now)
	if err != nil {
		if errors.Is(err, ErrTokenInvalidOrExpired) {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", err, nil)
		}
		return err
	}

	encoded, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.store.UpdatePasswordHash(ctx, account.ID, encoded); err != nil {
		return err
	}
	if err := e.store.ResetLockout(ctx, account.ID); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, account.ID, account.Email, nil, nil)
	return nil
}

// UpdatePassword changes the password of an authenticated account. The
// current password must verify first; this is a deliberate re-proof
// even though the caller already holds a session.
func (e *Engine) UpdatePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.HasLocalPassword() {
		return ErrNoLocalPassword
	}

	ok, err := e.hasher.Verify(currentPassword, account.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.emitAudit(ctx, auditEventPasswordChanged, false, account.ID, account.Email, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if len(newPassword) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}

	encoded, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.store.UpdatePasswordHash(ctx, account.ID, encoded); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChanged, true, account.ID, account.Email, nil, nil)
	return nil
}
