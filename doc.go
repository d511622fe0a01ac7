// Package authkit is an embeddable account security engine: adaptive
// password hashing, brute-force lockout, email verification and
// password reset over single-use opaque tokens, TOTP two-factor with
// backup codes, signed session tokens, and federated sign-in.
//
// Persistence is pluggable through the AccountStore interface; the
// engine owns policy and the store owns atomicity. Build an engine
// with the Builder:
//
//	engine, err := authkit.New().
//		WithStore(store).
//		WithNotifier(mailer).
//		WithSessionKey(key).
//		Build()
//
// All engine methods are safe for concurrent use.
package authkit
