// Package session issues and verifies the signed bearer tokens that
// represent an authenticated account. A token binds only the account
// identifier with an expiry; it carries no credentials or other
// sensitive claims.
package session
