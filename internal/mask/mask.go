// Package mask derives short pseudonymous handles for chat participants.
//
// A handle only hides a real identifier from casual display. It is reversible
// in part (it is a prefix of the identifier's encoding) and must not be
// treated as an anonymity guarantee.
package mask

import (
	"encoding/base64"
	"strings"
)

const (
	Tag       = "u_"
	bodyLen   = 4
	HandleLen = len(Tag) + bodyLen

	// three input bytes encode to exactly four characters
	minInput = 3
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func encode(id string) string {
	b := []byte(id)
	for len(b) < minInput {
		b = append(b, '.')
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Handle maps an identifier to a fixed-length handle. Equal inputs always
// produce equal handles; distinct inputs may collide.
func Handle(id string) string {
	return Tag + encode(id)[:bodyLen]
}

// Pair returns handles for the two sides of a thread, guaranteed distinct
// from each other. The finder always gets Handle(finderID); on a collision
// the claimant's handle is taken from the tail of the encoding instead, and
// as a last resort its final character is rotated.
func Pair(finderID, claimantID string) (finder, claimant string) {
	finder = Handle(finderID)
	claimant = Handle(claimantID)
	if finder != claimant {
		return finder, claimant
	}

	enc := encode(claimantID)
	claimant = Tag + enc[len(enc)-bodyLen:]
	if finder != claimant {
		return finder, claimant
	}

	last := claimant[len(claimant)-1]
	next := alphabet[(strings.IndexByte(alphabet, last)+1)%len(alphabet)]
	return finder, claimant[:len(claimant)-1] + string(next)
}
