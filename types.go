package authkit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vitaforge/authkit/token"
)

// Account is the durable identity record owned by the credential store.
// Secret-bearing fields (PasswordHash, token hashes, TOTPSecret,
// BackupCodeHashes) are confidential: they never appear in a Profile
// projection, an export snapshot, or an audit event.
type Account struct {
	ID    string
	Email string // normalized, unique
	Name  string

	// PasswordHash is empty for federation-only accounts.
	PasswordHash   string
	Provider       string
	ProviderUserID string

	EmailVerified         bool
	VerificationTokenHash *token.Hash
	VerificationExpiresAt time.Time

	ResetTokenHash *token.Hash
	ResetExpiresAt time.Time

	FailedLogins int
	LockedUntil  time.Time // zero value means no lock

	TwoFactorEnabled bool
	TwoFactorPending bool
	TOTPSecret       []byte
	BackupCodeHashes [][32]byte

	Preferences map[string]string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt time.Time
}

// Locked reports whether the account is inside its lockout window.
// Derived on read from LockedUntil, never stored redundantly.
func (a *Account) Locked(now time.Time) bool {
	return now.Before(a.LockedUntil)
}

// HasLocalPassword reports whether the account carries a local
// credential, as opposed to being federation-only.
func (a *Account) HasLocalPassword() bool {
	return a.PasswordHash != ""
}

// Profile is the public projection of an Account. It carries no
// confidential fields and is safe to return to callers.
type Profile struct {
	ID               string            `json:"id"`
	Email            string            `json:"email"`
	Name             string            `json:"name"`
	EmailVerified    bool              `json:"email_verified"`
	TwoFactorEnabled bool              `json:"two_factor_enabled"`
	Provider         string            `json:"provider,omitempty"`
	Preferences      map[string]string `json:"preferences,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	LastLoginAt      time.Time         `json:"last_login_at,omitzero"`
}

// Profile builds the public projection of the account.
func (a *Account) Profile() Profile {
	prefs := make(map[string]string, len(a.Preferences))
	for k, v := range a.Preferences {
		prefs[k] = v
	}
	return Profile{
		ID:               a.ID,
		Email:            a.Email,
		Name:             a.Name,
		EmailVerified:    a.EmailVerified,
		TwoFactorEnabled: a.TwoFactorEnabled,
		Provider:         a.Provider,
		Preferences:      prefs,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
		LastLoginAt:      a.LastLoginAt,
	}
}

// LockoutState is the result of an atomic failed-login update.
type LockoutState struct {
	Attempts    int
	LockedUntil time.Time
}

// ProfileUpdate mutates the non-credential fields of an account.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Name        *string
	Preferences map[string]string
}

// AccountStore is the contract a persistence layer must satisfy.
//
// The compound operations (RecordLoginFailure, the Consume* methods)
// must be atomic: a conditional read-modify-write inside the store, not
// a fetch followed by a write at the caller. This is what prevents lost
// lockout increments and double-spent tokens under concurrent requests.
//
// Lookups for missing records return ErrAccountNotFound; Create returns
// ErrDuplicateEmail for a taken normalized email.
type AccountStore interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByProvider(ctx context.Context, provider, providerUserID string) (*Account, error)

	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) error
	Delete(ctx context.Context, id string) error

	// RecordLoginFailure applies one failed attempt: a fresh cycle starts
	// at attempts=1 when a previous lock has expired, otherwise the
	// counter increments; reaching threshold sets LockedUntil=now+lockFor.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (LockoutState, error)
	// RecordLoginSuccess zeroes the failure counter, clears the lock, and
	// stamps LastLoginAt.
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error
	// ResetLockout clears the failure counter and lock without touching
	// LastLoginAt, for use after an out-of-band credential reset.
	ResetLockout(ctx context.Context, id string) error

	SetVerificationToken(ctx context.Context, id string, hash token.Hash, expires time.Time) error
	// ConsumeVerificationToken atomically finds the account holding an
	// unexpired matching token, marks it verified, and clears the token
	// fields. A miss returns ErrTokenInvalidOrExpired.
	ConsumeVerificationToken(ctx context.Context, hash token.Hash, now time.Time) (*Account, error)

	SetResetToken(ctx context.Context, id string, hash token.Hash, expires time.Time) error
	ClearResetToken(ctx context.Context, id string) error
	// ConsumeResetToken atomically finds the account holding an unexpired
	// matching reset token and clears the token fields. A miss returns
	// ErrTokenInvalidOrExpired.
	ConsumeResetToken(ctx context.Context, hash token.Hash, now time.Time) (*Account, error)

	// SaveTwoFactorSetup stores a pending secret and backup code hashes
	// without enabling two-factor.
	SaveTwoFactorSetup(ctx context.Context, id string, secret []byte, codeHashes [][32]byte) error
	// EnableTwoFactor flips a pending setup to enabled.
	EnableTwoFactor(ctx context.Context, id string) error
	// DisableTwoFactor discards the secret and all backup codes.
	DisableTwoFactor(ctx context.Context, id string) error
	ReplaceBackupCodes(ctx context.Context, id string, codeHashes [][32]byte) error
	// ConsumeBackupCode atomically removes a matching code hash. It
	// reports false without mutation when no hash matches.
	ConsumeBackupCode(ctx context.Context, id string, codeHash [32]byte) (bool, error)

	LinkProvider(ctx context.Context, id, provider, providerUserID string) error
}

// Notifier is the outbound-mail collaborator. Sends are fire-and-forget
// from the engine's point of view except where an operation documents a
// rollback on failure.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, account Profile, rawToken string) error
	SendPasswordResetEmail(ctx context.Context, account Profile, rawToken string) error
	SendWelcomeEmail(ctx context.Context, account Profile) error
}

// Resource is a unit of user-generated content (a resume, a cover
// letter) owned by the resource collaborator.
type Resource struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ResourceStore is the collaborator owning user-generated content,
// consulted during export and account deletion.
type ResourceStore interface {
	ListByAccount(ctx context.Context, accountID string) ([]Resource, error)
	DeleteAllByAccount(ctx context.Context, accountID string) error
}

// LoginResult is returned by Engine.Login. Either SessionToken is set,
// or TwoFactorRequired is true and ChallengeID must be handed back to
// Engine.CompleteTwoFactorLogin together with a code.
type LoginResult struct {
	SessionToken      string
	TwoFactorRequired bool
	ChallengeID       string
}

// TwoFactorSetup is returned by Engine.BeginTwoFactorSetup. The secret
// and codes are shown to the user once and never retrievable again.
type TwoFactorSetup struct {
	SecretBase32    string
	ProvisioningURI string
	BackupCodes     []string
}

// RegisterInput is the input for Engine.Register.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// ProviderAssertion is the pre-verified identity statement handed to
// the federation adapter after the external provider handshake.
type ProviderAssertion struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
}

// ExportSnapshot is the read-only aggregate returned by
// Engine.ExportAccountData. It contains no confidential fields.
type ExportSnapshot struct {
	ExportedAt time.Time  `json:"exported_at"`
	Account    Profile    `json:"account"`
	Resources  []Resource `json:"resources"`
}
