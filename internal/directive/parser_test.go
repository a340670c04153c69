package directive

import (
	"testing"

	"github.com/dkessler/parley/pkg/models"
)

func TestParseSingleAddressee(t *testing.T) {
	res := Parse("Review this [NEXT: sarah]")

	if len(res.Addressees) != 1 {
		t.Fatalf("expected 1 addressee, got %d", len(res.Addressees))
	}
	if res.Addressees[0].Name != "sarah" {
		t.Errorf("expected sarah, got %q", res.Addressees[0].Name)
	}
	if res.Addressees[0].Intent != models.IntentReply {
		t.Errorf("expected default P2 intent, got %s", res.Addressees[0].Intent)
	}
	if res.CleanContent != "Review this" {
		t.Errorf("expected clean content %q, got %q", "Review this", res.CleanContent)
	}
	if len(res.Raw) != 1 || res.Raw[0] != "[NEXT: sarah]" {
		t.Errorf("expected raw directive preserved, got %v", res.Raw)
	}
}

func TestParseNoDirective(t *testing.T) {
	text := "Nothing to route here."
	res := Parse(text)

	if len(res.Addressees) != 0 {
		t.Errorf("expected no addressees, got %v", res.Addressees)
	}
	if res.CleanContent != text {
		t.Errorf("expected content unmodified, got %q", res.CleanContent)
	}
}

func TestParseIntentSuffixes(t *testing.T) {
	res := Parse("Urgent [NEXT: sarah:p1, bob:P3, jo]")

	if len(res.Addressees) != 3 {
		t.Fatalf("expected 3 addressees, got %d", len(res.Addressees))
	}
	want := []struct {
		name   string
		intent models.Intent
	}{
		{"sarah", models.IntentInterrupt},
		{"bob", models.IntentExtend},
		{"jo", models.IntentReply},
	}
	for i, w := range want {
		if res.Addressees[i].Name != w.name || res.Addressees[i].Intent != w.intent {
			t.Errorf("addressee %d: expected %s/%s, got %s/%s",
				i, w.name, w.intent, res.Addressees[i].Name, res.Addressees[i].Intent)
		}
	}
}

func TestParseMalformedEntryDropped(t *testing.T) {
	res := Parse("Split the work [NEXT: bob, c,d]")

	if len(res.Addressees) != 1 {
		t.Fatalf("expected 1 addressee, got %v", res.Addressees)
	}
	if res.Addressees[0].Name != "bob" {
		t.Errorf("expected bob to survive, got %q", res.Addressees[0].Name)
	}
}

func TestParseMultipleDirectives(t *testing.T) {
	res := Parse("[NEXT: sarah] middle text [NEXT: bob]")

	if len(res.Addressees) != 2 {
		t.Fatalf("expected 2 addressees, got %d", len(res.Addressees))
	}
	if res.CleanContent != "middle text" {
		t.Errorf("expected %q, got %q", "middle text", res.CleanContent)
	}
	if len(res.Raw) != 2 {
		t.Errorf("expected 2 raw directives, got %v", res.Raw)
	}
}

func TestParseCaseInsensitiveMarker(t *testing.T) {
	res := Parse("done [next: sarah]")
	if len(res.Addressees) != 1 || res.Addressees[0].Name != "sarah" {
		t.Errorf("expected lowercase marker to parse, got %v", res.Addressees)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Sarah", "sarah"},
		{"sarah-chen", "sarahchen"},
		{"Sarah_Chen", "sarahchen"},
		{" Sarah Chen ", "sarahchen"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestResolveAddressees(t *testing.T) {
	team := &models.Team{
		Members: []models.Member{
			{ID: "m1", Name: "sarah", DisplayName: "Sarah Chen", Kind: models.MemberKindAI},
			{ID: "m2", Name: "bob", DisplayName: "Bob", Kind: models.MemberKindHuman},
		},
	}

	addrs := []Addressee{
		{Name: "Sarah-Chen", Intent: models.IntentReply},
		{Name: "m2", Intent: models.IntentExtend},
		{Name: "ghost", Intent: models.IntentReply},
	}

	resolved, unresolved := ResolveAddressees(team, addrs)
	if len(resolved) != 2 {
		t.Fatalf("expected 2 resolved, got %d", len(resolved))
	}
	if resolved[0].MemberID != "m1" || resolved[0].Raw != "Sarah-Chen" {
		t.Errorf("unexpected first resolution: %+v", resolved[0])
	}
	if resolved[1].MemberID != "m2" || resolved[1].Intent != models.IntentExtend {
		t.Errorf("unexpected second resolution: %+v", resolved[1])
	}
	if len(unresolved) != 1 || unresolved[0] != "ghost" {
		t.Errorf("expected ghost unresolved, got %v", unresolved)
	}
}
