package directive

import (
	"strings"

	"github.com/dkessler/parley/pkg/models"
)

// Normalize folds an identifier for name matching: lower-cased with
// whitespace, hyphens, and underscores removed.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '\t', '-', '_':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchMember resolves an addressee identifier against a team by normalized
// comparison with each member's id, name, and display name. Returns nil when
// nothing matches.
func MatchMember(team *models.Team, raw string) *models.Member {
	want := Normalize(raw)
	if want == "" {
		return nil
	}
	for i := range team.Members {
		m := &team.Members[i]
		if Normalize(m.ID) == want || Normalize(m.Name) == want || Normalize(m.DisplayName) == want {
			return m
		}
	}
	return nil
}

// ResolveAddressees matches parsed addressees against the team. Unresolved
// identifiers are returned separately; they never abort resolution of the
// others.
func ResolveAddressees(team *models.Team, addrs []Addressee) (resolved []models.ResolvedAddressee, unresolved []string) {
	for _, a := range addrs {
		m := MatchMember(team, a.Name)
		if m == nil {
			unresolved = append(unresolved, a.Name)
			continue
		}
		resolved = append(resolved, models.ResolvedAddressee{
			Raw:        a.Name,
			MemberID:   m.ID,
			MemberName: m.Name,
			Intent:     a.Intent,
		})
	}
	return resolved, unresolved
}
