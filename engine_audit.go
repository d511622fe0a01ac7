package authkit

import (
	"context"
	"errors"
	"io"

	"github.com/vitaforge/authkit/internal/audit"
)

// AuditEvent is one entry in the security event stream.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher. Emit
// must not block; slow sinks should buffer internally.
type AuditSink = audit.Sink

// NewJSONAuditSink writes one JSON object per event to w.
func NewJSONAuditSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}

const (
	auditEventRegister             = "register"
	auditEventEmailVerified        = "email_verified"
	auditEventVerificationResent   = "verification_resent"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginLocked          = "login_locked"
	auditEventLockoutTripped       = "lockout_tripped"
	auditEventTwoFactorRequired    = "two_factor_required"
	auditEventTwoFactorSuccess     = "two_factor_success"
	auditEventTwoFactorFailure     = "two_factor_failure"
	auditEventTwoFactorSetup       = "two_factor_setup"
	auditEventTwoFactorEnabled     = "two_factor_enabled"
	auditEventTwoFactorDisabled    = "two_factor_disabled"
	auditEventBackupCodeUsed       = "backup_code_used"
	auditEventBackupCodesRegen     = "backup_codes_regenerated"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventPasswordChanged      = "password_changed"
	auditEventFederatedLogin       = "federated_login"
	auditEventProviderLinked       = "provider_linked"
	auditEventAccountDeleted       = "account_deleted"
	auditEventAccountExported      = "account_exported"
	auditEventProfileUpdated       = "profile_updated"
)

// auditErrorCode maps an engine error to the stable string recorded in
// audit events. Raw error text never enters the event stream.
func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrDuplicateEmail):
		return "duplicate_email"
	case errors.Is(err, ErrTokenInvalidOrExpired):
		return "token_invalid_or_expired"
	case errors.Is(err, ErrTwoFactorRequired):
		return "two_factor_required"
	case errors.Is(err, ErrTwoFactorCodeInvalid):
		return "two_factor_code_invalid"
	case errors.Is(err, ErrTwoFactorChallengeExpired):
		return "two_factor_challenge_expired"
	case errors.Is(err, ErrTwoFactorAttemptsExceeded):
		return "two_factor_attempts_exceeded"
	case errors.Is(err, ErrTwoFactorEnabled):
		return "two_factor_already_enabled"
	case errors.Is(err, ErrTwoFactorNotEnabled):
		return "two_factor_not_enabled"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrFederationRejected):
		return "federation_rejected"
	case errors.Is(err, ErrPasswordPolicy):
		return "password_policy"
	case errors.Is(err, ErrNoLocalPassword):
		return "no_local_password"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal_error"
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	email string,
	err error,
	metadata map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := audit.Event{
		Timestamp: e.clock().UTC(),
		EventType: eventType,
		AccountID: accountID,
		Email:     email,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Error:     auditErrorCode(err),
		Metadata:  metadata,
	}

	e.audit.Emit(ctx, event)
}
