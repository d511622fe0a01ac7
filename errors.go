package authkit

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong
	// password. The two cases are intentionally indistinguishable to
	// prevent account enumeration through the login path.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while an account is inside its
	// lockout window. It never increments the failure counter.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountNotFound is returned when an operation targets an
	// account that does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateEmail is returned by registration when the normalized
	// email is already taken.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrTokenInvalidOrExpired is returned for verification and reset
	// tokens that are unknown, already consumed, or past their expiry.
	ErrTokenInvalidOrExpired = errors.New("token invalid or expired")
	// ErrTwoFactorRequired signals that password authentication
	// succeeded but a second factor is needed to finish the login.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrTwoFactorCodeInvalid is returned for a TOTP or backup code
	// that does not verify.
	ErrTwoFactorCodeInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorChallengeExpired is returned when the pending login
	// challenge is gone or past its window; the caller must log in again.
	ErrTwoFactorChallengeExpired = errors.New("two-factor challenge expired")
	// ErrTwoFactorAttemptsExceeded is returned when too many wrong codes
	// were supplied against one pending login challenge.
	ErrTwoFactorAttemptsExceeded = errors.New("two-factor attempts exceeded")
	// ErrTwoFactorEnabled is returned by setup when 2FA is already on.
	ErrTwoFactorEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorNotEnabled is returned by operations that need 2FA
	// to be active or pending when it is not.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrUnauthenticated is the single external failure for session
	// tokens that are tampered, malformed, or expired.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrFederationRejected is returned for malformed provider
	// assertions. Provider error detail never reaches the end user.
	ErrFederationRejected = errors.New("federated sign-in rejected")
	// ErrPasswordPolicy is returned when a new password fails hashing
	// policy checks.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrInvalidEmail is returned by registration for an address that
	// cannot plausibly receive mail.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrNoLocalPassword is returned for password operations against a
	// federation-only account that has no local credential.
	ErrNoLocalPassword = errors.New("account has no local password")
	// ErrStoreUnavailable wraps credential store failures.
	ErrStoreUnavailable = errors.New("account store unavailable")
	// ErrEngineNotReady is returned when the engine is missing a
	// required dependency.
	ErrEngineNotReady = errors.New("engine not initialized")
)
