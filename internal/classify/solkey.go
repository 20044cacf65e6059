package classify

import (
	"filippo.io/edwards25519"

	"github.com/mr-tron/base58"
)

// ValidMint reports whether s is a plausible pump.fun mint address: a base58
// string decoding to 32 bytes that form a valid ed25519 point. Mints are
// keypair-generated public keys, so they sit on the curve; bonding-curve PDAs
// do not. This is stricter than requiring the field's presence: a 32-byte
// value that is not a point encoding is rejected as malformed.
func ValidMint(s string) bool {
	if s == "" {
		return false
	}
	decoded, err := base58.Decode(s)
	if err != nil || len(decoded) != 32 {
		return false
	}
	return isOnCurve(decoded)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
