package dedup

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// KeyLength is the fixed width of every key.
const KeyLength = 16

// Key returns the content key for a raw terminal capture: 16 lowercase hex
// characters of the xxhash64 of the normalized text.
func Key(raw string) string {
	return HashHex(Normalize(raw))
}

// HashHex renders the xxhash64 of s as zero-padded lowercase hex. It does
// not normalize; callers that want cosmetic-noise tolerance use Key.
func HashHex(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}
