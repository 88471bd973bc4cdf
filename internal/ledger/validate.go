package ledger

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ValidAccountID reports whether s is a well-formed account id: base58 text
// decoding to a 32-byte ed25519 public key that is a valid curve point.
// Owners failing this check mark the whole snapshot as malformed.
func ValidAccountID(s string) bool {
	if s == "" {
		return false
	}
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}
