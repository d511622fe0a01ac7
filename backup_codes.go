package authkit

import (
	"crypto/rand"
	"crypto/sha256"
	"math/big"
	"strings"
)

// Backup code alphabet excludes the ambiguous glyphs 0/O/1/I.
const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const backupCodeLength = 10

// generateBackupCodes mints n single-use codes and their storage
// hashes. The plaintext codes are returned once for display; only the
// hashes persist.
func generateBackupCodes(accountID string, n int) ([]string, [][32]byte, error) {
	codes := make([]string, 0, n)
	hashes := make([][32]byte, 0, n)
	for i := 0; i < n; i++ {
		code, err := randomBackupCode()
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, formatBackupCode(code))
		hashes = append(hashes, hashBackupCode(accountID, code))
	}
	return codes, hashes, nil
}

func randomBackupCode() (string, error) {
	var b strings.Builder
	b.Grow(backupCodeLength)
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < backupCodeLength; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

// hashBackupCode binds the hash to the owning account so identical
// codes on different accounts do not collide at rest.
func hashBackupCode(accountID, canonical string) [32]byte {
	h := sha256.New()
	h.Write([]byte(accountID))
	h.Write([]byte{0x00})
	h.Write([]byte(canonical))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// formatBackupCode inserts a dash at the midpoint for display, e.g.
// "ABCDE-FGHJK".
func formatBackupCode(canonical string) string {
	mid := len(canonical) / 2
	return canonical[:mid] + "-" + canonical[mid:]
}

// canonicalizeBackupCode reverses user-facing formatting: uppercases
// and strips dashes and spaces.
func canonicalizeBackupCode(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range strings.ToUpper(strings.TrimSpace(input)) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
