package authkit

import (
	"strings"
	"testing"
)

func TestGenerateBackupCodes(t *testing.T) {
	codes, hashes, err := generateBackupCodes("acc-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(codes) != 10 || len(hashes) != 10 {
		t.Fatalf("got %d codes, %d hashes", len(codes), len(hashes))
	}

	seen := make(map[string]bool)
	for i, code := range codes {
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true

		canonical := canonicalizeBackupCode(code)
		if len(canonical) != backupCodeLength {
			t.Fatalf("code %q canonicalizes to %d chars", code, len(canonical))
		}
		for _, r := range canonical {
			if !strings.ContainsRune(backupCodeAlphabet, r) {
				t.Fatalf("code %q uses %q outside the alphabet", code, r)
			}
		}
		if hashBackupCode("acc-1", canonical) != hashes[i] {
			t.Fatalf("hash %d does not match its code", i)
		}
	}
}

func TestBackupCodeHashBoundToAccount(t *testing.T) {
	// the same plaintext on two accounts must not collide at rest
	if hashBackupCode("acc-1", "ABCDEFGHJK") == hashBackupCode("acc-2", "ABCDEFGHJK") {
		t.Fatal("hash not bound to the account")
	}
}

func TestCanonicalizeBackupCode(t *testing.T) {
	cases := map[string]string{
		"abcde-fghjk":    "ABCDEFGHJK",
		" ABCDE FGHJK ":  "ABCDEFGHJK",
		"ABCDEFGHJK":     "ABCDEFGHJK",
		"ab-cd-ef-gh-jk": "ABCDEFGHJK",
	}
	for input, want := range cases {
		if got := canonicalizeBackupCode(input); got != want {
			t.Fatalf("canonicalize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFormatBackupCode(t *testing.T) {
	if got := formatBackupCode("ABCDEFGHJK"); got != "ABCDE-FGHJK" {
		t.Fatalf("format = %q", got)
	}
}
