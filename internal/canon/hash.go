package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefix for input hashes. The version suffix allows the hashing
// scheme to change without silently matching old artifact hashes.
const domainInputs = "worldloom/inputs/v1"

// HashOf computes the content hash of the given parts, in order.
//
// Each part is canonically marshaled and fed into a single SHA-256 with a
// domain prefix and null separators, so ("ab","c") and ("a","bc") hash
// differently. Used for the regeneration hash guard: the artifact stores the
// hash of the inputs it was generated from, and regeneration is skipped when
// the recomputed hash matches.
func HashOf(parts ...any) (string, error) {
	h := sha256.New()
	h.Write([]byte(domainInputs))
	for i, p := range parts {
		h.Write([]byte{0x00})
		data, err := Marshal(p)
		if err != nil {
			return "", fmt.Errorf("hash part %d: %w", i, err)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
