package validation

import (
	"fmt"
	"strings"
)

const (
	// zBase32Alphabet is the alphabet used by pkarr/pubky public keys
	zBase32Alphabet = "ybndrfg8ejkmcpqxot1uwisza345h769"
	// pubkeyLength is the length of a z-base32 encoded ed25519 public key
	pubkeyLength = 52
	pubkeyPrefix = "pk:"
)

// ValidatePubkey validates a z-base32 encoded identity public key.
// An optional "pk:" prefix is accepted.
func ValidatePubkey(pubkey string) error {
	if pubkey == "" {
		return fmt.Errorf("pubkey cannot be empty")
	}

	normalized := NormalizePubkey(pubkey)
	if len(normalized) != pubkeyLength {
		return fmt.Errorf("invalid pubkey length: expected %d characters (without %s), got %d", pubkeyLength, pubkeyPrefix, len(normalized))
	}

	for i, r := range normalized {
		if !strings.ContainsRune(zBase32Alphabet, r) {
			return fmt.Errorf("invalid z-base32 character %q at position %d", r, i)
		}
	}

	return nil
}

// NormalizePubkey strips the "pk:" prefix and lowercases the key
func NormalizePubkey(pubkey string) string {
	pubkey = strings.TrimSpace(pubkey)
	pubkey = strings.TrimPrefix(pubkey, pubkeyPrefix)
	return strings.ToLower(pubkey)
}

// ValidateAndNormalizePubkey validates a pubkey and returns its normalized form
func ValidateAndNormalizePubkey(pubkey string) (string, error) {
	if err := ValidatePubkey(pubkey); err != nil {
		return "", err
	}
	return NormalizePubkey(pubkey), nil
}
