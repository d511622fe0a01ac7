// Package password implements one-way password hashing and verification
// for authkit using argon2id with PHC-encoded output.
//
// Verification never returns an error for a wrong password; errors are
// reserved for malformed or unsupported hash encodings.
package password
