package authkit

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// HandleProviderAssertion turns a verified external-provider identity
// into a local login. Resolution order:
//
//  1. an account already linked to (provider, provider user id) logs
//     straight in;
//  2. otherwise an existing account with the asserted email gets the
//     provider linked to it;
//  3. otherwise a new federation-only account is created, with no
//     local password and the email considered verified, since the
//     provider vouched for it.
//
// A malformed assertion is rejected wholesale; provider detail never
// leaks into the returned error. Two-factor enforcement is not
// bypassed: a 2FA-enabled account still gets a pending challenge.
func (e *Engine) HandleProviderAssertion(ctx context.Context, assertion ProviderAssertion) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := e.clock()

	provider := strings.TrimSpace(assertion.Provider)
	providerUserID := strings.TrimSpace(assertion.ProviderUserID)
	email := normalizeEmail(assertion.Email)
	if provider == "" || providerUserID == "" || !isPlausibleEmail(email) {
		e.emitAudit(ctx, auditEventFederatedLogin, false, "", email, ErrFederationRejected, map[string]string{
			"provider": provider,
		})
		return nil, ErrFederationRejected
	}

	account, err := e.store.GetByProvider(ctx, provider, providerUserID)
	switch {
	case err == nil:
		return e.finishFederatedLogin(ctx, account, provider)
	case !errors.Is(err, ErrAccountNotFound):
		return nil, err
	}

	account, err = e.store.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := e.store.LinkProvider(ctx, account.ID, provider, providerUserID); err != nil {
			return nil, err
		}
		e.metricInc(MetricFederatedAccountLinked)
		e.emitAudit(ctx, auditEventProviderLinked, true, account.ID, email, nil, map[string]string{
			"provider": provider,
		})
		return e.finishFederatedLogin(ctx, account, provider)
	case !errors.Is(err, ErrAccountNotFound):
		return nil, err
	}

	account = &Account{
		ID:             uuid.NewString(),
		Email:          email,
		Name:           strings.TrimSpace(assertion.Name),
		Provider:       provider,
		ProviderUserID: providerUserID,
		EmailVerified:  true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.Create(ctx, account); err != nil {
		return nil, err
	}

	e.metricInc(MetricFederatedAccountCreated)
	e.emitAudit(ctx, auditEventFederatedLogin, true, account.ID, email, nil, map[string]string{
		"provider": provider,
		"created":  "true",
	})
	return e.finishFederatedLogin(ctx, account, provider)
}

func (e *Engine) finishFederatedLogin(ctx context.Context, account *Account, provider string) (*LoginResult, error) {
	now := e.clock()

	if account.Locked(now) {
		e.metricInc(MetricLoginLocked)
		return nil, ErrAccountLocked
	}
	if account.TwoFactorEnabled {
		return e.openTwoFactorChallenge(ctx, account, now)
	}

	result, err := e.finishLogin(ctx, account, now)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricFederatedLoginSuccess)
	e.emitAudit(ctx, auditEventFederatedLogin, true, account.ID, account.Email, nil, map[string]string{
		"provider": provider,
	})
	return result, nil
}
