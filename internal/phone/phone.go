// internal/phone/phone.go
package phone

import (
	"strings"

	"github.com/kanbanflow/campaign-engine/internal/model"
)

// DefaultCountryPrefix is assumed for bare local numbers (10-11 digits).
const DefaultCountryPrefix = "55"

// Normalize strips everything but digits and returns a dial-ready
// "+<prefix><digits>" form. Inputs with fewer than 10 digits are rejected.
// Longer inputs must already carry the country prefix; numbers that look
// foreign are rejected rather than guessed at.
func Normalize(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	digits := b.String()

	switch n := len(digits); {
	case n < 10:
		return "", false
	case n <= 11:
		return "+" + DefaultCountryPrefix + digits, true
	case n <= 15:
		if strings.HasPrefix(digits, DefaultCountryPrefix) {
			return "+" + digits, true
		}
		return "", false
	default:
		return "", false
	}
}

// ExtractUniquePhones resolves a lead's contacts into canonical phones:
// the client phone first, then each person's phone in order, skipping
// normalization failures and duplicates while preserving first-seen order.
func ExtractUniquePhones(lead model.Lead) []string {
	seen := make(map[string]struct{})
	var out []string

	push := func(raw string) {
		if raw == "" {
			return
		}
		norm, ok := Normalize(raw)
		if !ok {
			return
		}
		if _, dup := seen[norm]; dup {
			return
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}

	push(lead.ClientPhone)
	for _, p := range lead.People {
		push(p.Phone)
	}
	return out
}
