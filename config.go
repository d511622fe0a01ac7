package authkit

import (
	"errors"
	"fmt"
	"time"

	"github.com/vitaforge/authkit/internal/audit"
	"github.com/vitaforge/authkit/password"
	"github.com/vitaforge/authkit/session"
)

// Config groups every tunable of the engine. Zero values are replaced
// by defaults during Build; the session signing key is the only field
// with no usable default.
type Config struct {
	Password     PasswordConfig
	Lockout      LockoutConfig
	Verification VerificationConfig
	Reset        ResetConfig
	Session      SessionConfig
	TwoFactor    TwoFactorConfig
	Audit        AuditConfig
}

// PasswordConfig controls hashing cost and the minimum length policy.
type PasswordConfig struct {
	Params    password.Params
	MinLength int
}

// LockoutConfig controls the brute-force guard.
type LockoutConfig struct {
	// Threshold is the number of consecutive failures that trips a lock.
	Threshold int
	// Window is how long a tripped lock holds.
	Window time.Duration
}

// VerificationConfig controls email-verification tokens.
type VerificationConfig struct {
	TokenTTL time.Duration
}

// ResetConfig controls password-reset tokens.
type ResetConfig struct {
	TokenTTL time.Duration
	// EnumerationDelay is the upper bound of the random sleep applied to
	// reset requests for unknown emails, so response timing does not
	// cleanly separate known from unknown addresses.
	EnumerationDelay time.Duration
}

// SessionConfig is passed through to the session issuer.
type SessionConfig = session.Config

// TwoFactorConfig controls TOTP verification and login challenges.
type TwoFactorConfig struct {
	Issuer string
	// Skew is the number of 30s steps accepted either side of now.
	Skew uint
	// BackupCodes is how many codes a setup or regeneration mints.
	BackupCodes int
	// ChallengeTTL bounds how long a password-verified login may wait
	// for its second factor.
	ChallengeTTL time.Duration
	// ChallengeAttempts caps wrong codes per challenge.
	ChallengeAttempts int
}

// AuditConfig controls the async audit pipeline.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

func defaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Params:    password.DefaultParams(),
			MinLength: 8,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Window:    2 * time.Hour,
		},
		Verification: VerificationConfig{
			TokenTTL: 24 * time.Hour,
		},
		Reset: ResetConfig{
			TokenTTL:         10 * time.Minute,
			EnumerationDelay: 150 * time.Millisecond,
		},
		Session: SessionConfig{
			TTL:           7 * 24 * time.Hour,
			SigningMethod: session.MethodHS256,
			Issuer:        "authkit",
			Leeway:        30 * time.Second,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:            "authkit",
			Skew:              2,
			BackupCodes:       10,
			ChallengeTTL:      5 * time.Minute,
			ChallengeAttempts: 5,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

// applyDefaults fills zero-valued fields in from defaultConfig. Session
// key material is left alone: its absence is a validation error, not a
// defaultable gap.
func (c *Config) applyDefaults() {
	d := defaultConfig()
	if c.Password.Params == (password.Params{}) {
		c.Password.Params = d.Password.Params
	}
	if c.Password.MinLength <= 0 {
		c.Password.MinLength = d.Password.MinLength
	}
	if c.Lockout.Threshold <= 0 {
		c.Lockout.Threshold = d.Lockout.Threshold
	}
	if c.Lockout.Window <= 0 {
		c.Lockout.Window = d.Lockout.Window
	}
	if c.Verification.TokenTTL <= 0 {
		c.Verification.TokenTTL = d.Verification.TokenTTL
	}
	if c.Reset.TokenTTL <= 0 {
		c.Reset.TokenTTL = d.Reset.TokenTTL
	}
	if c.Reset.EnumerationDelay <= 0 {
		c.Reset.EnumerationDelay = d.Reset.EnumerationDelay
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = d.Session.TTL
	}
	if c.Session.SigningMethod == "" {
		c.Session.SigningMethod = d.Session.SigningMethod
	}
	if c.Session.Issuer == "" {
		c.Session.Issuer = d.Session.Issuer
	}
	if c.Session.Leeway <= 0 {
		c.Session.Leeway = d.Session.Leeway
	}
	if c.TwoFactor.Issuer == "" {
		c.TwoFactor.Issuer = d.TwoFactor.Issuer
	}
	if c.TwoFactor.Skew == 0 {
		c.TwoFactor.Skew = d.TwoFactor.Skew
	}
	if c.TwoFactor.BackupCodes <= 0 {
		c.TwoFactor.BackupCodes = d.TwoFactor.BackupCodes
	}
	if c.TwoFactor.ChallengeTTL <= 0 {
		c.TwoFactor.ChallengeTTL = d.TwoFactor.ChallengeTTL
	}
	if c.TwoFactor.ChallengeAttempts <= 0 {
		c.TwoFactor.ChallengeAttempts = d.TwoFactor.ChallengeAttempts
	}
	if c.Audit.BufferSize <= 0 {
		c.Audit.BufferSize = d.Audit.BufferSize
	}
}

func (c *Config) validate() error {
	if c.Lockout.Threshold < 2 {
		return errors.New("authkit: lockout threshold must be at least 2")
	}
	if c.TwoFactor.Skew > 4 {
		return fmt.Errorf("authkit: totp skew %d is too permissive", c.TwoFactor.Skew)
	}
	if c.Reset.TokenTTL > c.Verification.TokenTTL {
		return errors.New("authkit: reset token ttl exceeds verification token ttl")
	}
	return nil
}

func (c *AuditConfig) dispatcherConfig() audit.Config {
	return audit.Config{
		Enabled:    c.Enabled,
		BufferSize: c.BufferSize,
		DropIfFull: c.DropIfFull,
	}
}
