package prompt

import (
	"strings"
	"testing"

	"github.com/dkessler/parley/pkg/models"
)

func testInput(historyLen int) Input {
	member := &models.Member{ID: "m1", Name: "sarah", DisplayName: "Sarah"}
	team := &models.Team{Name: "review-crew", Task: "Review the billing changes."}

	var history []models.ConversationMessage
	for i := 0; i < historyLen; i++ {
		history = append(history, models.ConversationMessage{
			ID:      "h",
			Content: strings.Repeat("history text ", 10),
			Speaker: models.SpeakerRef{Name: "bob", DisplayName: "Bob"},
		})
	}
	latest := &models.ConversationMessage{
		Content: "Please take a look at the diff.",
		Speaker: models.SpeakerRef{Name: "alex", DisplayName: "Alex"},
	}
	return Input{Member: member, Team: team, History: history, Latest: latest}
}

func TestBuildIncludesSections(t *testing.T) {
	b := &Builder{}
	out := b.Build(testInput(2))

	for _, want := range []string{"Sarah", "review-crew", "Review the billing changes.", "Please take a look", "[NEXT: name]"} {
		if !strings.Contains(out.Prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, out.Prompt)
		}
	}
	if out.System != "" {
		t.Error("expected no separate system string by default")
	}
}

func TestBuildFitsBudgetByDroppingHistory(t *testing.T) {
	b := &Builder{ByteBudget: 900}
	out := b.Build(testInput(20))

	if len(out.Prompt) > 900 {
		t.Errorf("prompt exceeds budget: %d bytes", len(out.Prompt))
	}
	// The latest message always survives.
	if !strings.Contains(out.Prompt, "Please take a look") {
		t.Error("latest message dropped")
	}
}

func TestBuildDropsOldestHistoryFirst(t *testing.T) {
	in := testInput(0)
	in.History = []models.ConversationMessage{
		{Content: "OLDEST_MARKER " + strings.Repeat("x", 200), Speaker: models.SpeakerRef{Name: "bob"}},
		{Content: "NEWEST_MARKER", Speaker: models.SpeakerRef{Name: "bob"}},
	}

	b := &Builder{ByteBudget: 500}
	out := b.Build(in)

	if strings.Contains(out.Prompt, "OLDEST_MARKER") {
		t.Error("expected oldest history entry to be dropped first")
	}
	if !strings.Contains(out.Prompt, "NEWEST_MARKER") {
		t.Error("expected newer history entry to survive")
	}
}

func TestBuildSplitSystem(t *testing.T) {
	in := testInput(0)
	in.SystemInstructions = "Always answer in one sentence."

	b := &Builder{SplitSystem: true}
	out := b.Build(in)

	if out.System != "Always answer in one sentence." {
		t.Errorf("expected system string, got %q", out.System)
	}
	if strings.Contains(out.Prompt, "one sentence") {
		t.Error("instructions should not be embedded when split")
	}
}

func TestBuildEmbeddedInstructions(t *testing.T) {
	in := testInput(0)
	in.SystemInstructions = "Always answer in one sentence."

	out := (&Builder{}).Build(in)
	if !strings.Contains(out.Prompt, "one sentence") {
		t.Error("expected instructions embedded in prompt")
	}
}
