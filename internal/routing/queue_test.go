package routing

import (
	"testing"

	"github.com/dkessler/parley/pkg/models"
)

func item(target string, intent models.Intent) *models.RoutingItem {
	return &models.RoutingItem{TargetMemberID: target, Intent: intent}
}

func TestPriorityOrdering(t *testing.T) {
	// Branch cap raised so the whole batch is admitted at its original
	// intent; demotion has its own test.
	q := New(Options{MaxBranchSize: 5})

	res := q.Enqueue([]*models.RoutingItem{
		item("a", models.IntentExtend),
		item("b", models.IntentInterrupt),
		item("c", models.IntentReply),
		item("d", models.IntentInterrupt),
		item("e", models.IntentReply),
	}, "msg-1")
	if len(res.Enqueued) != 5 {
		t.Fatalf("expected 5 enqueued, got %d (skipped %v)", len(res.Enqueued), res.Skipped)
	}

	var gotTargets []string
	var gotIntents []models.Intent
	for {
		next := q.SelectNext()
		if next == nil {
			break
		}
		gotTargets = append(gotTargets, next.TargetMemberID)
		gotIntents = append(gotIntents, next.Intent)
	}

	wantTargets := []string{"b", "d", "c", "e", "a"}
	wantIntents := []models.Intent{
		models.IntentInterrupt, models.IntentInterrupt,
		models.IntentReply, models.IntentReply,
		models.IntentExtend,
	}
	if len(gotTargets) != len(wantTargets) {
		t.Fatalf("expected %d selections, got %v", len(wantTargets), gotTargets)
	}
	for i := range wantTargets {
		if gotTargets[i] != wantTargets[i] {
			t.Errorf("selection %d: expected %s, got %s (full order %v)", i, wantTargets[i], gotTargets[i], gotTargets)
		}
		if gotIntents[i] != wantIntents[i] {
			t.Errorf("selection %d: expected intent %s, got %s", i, wantIntents[i], gotIntents[i])
		}
	}
}

func TestSelectNextEmpty(t *testing.T) {
	q := New(Options{})
	if q.SelectNext() != nil {
		t.Error("expected nil from empty queue")
	}
}

func TestDuplicateSuppression(t *testing.T) {
	q := New(Options{})

	first := q.Enqueue([]*models.RoutingItem{item("a", models.IntentReply)}, "m")
	if len(first.Enqueued) != 1 {
		t.Fatalf("expected first enqueue to succeed, got %v", first)
	}

	second := q.Enqueue([]*models.RoutingItem{item("a", models.IntentReply)}, "m")
	if len(second.Enqueued) != 0 {
		t.Fatal("expected duplicate to be rejected")
	}
	if len(second.Skipped) != 1 || second.Skipped[0].Reason != SkipDuplicate {
		t.Errorf("expected duplicate skip reason, got %v", second.Skipped)
	}
	if q.Size() != 1 {
		t.Errorf("expected 1 pending item, got %d", q.Size())
	}
}

func TestAdjacentDuplicateSuppression(t *testing.T) {
	q := New(Options{})

	// a then a again with a different intent: the tail already targets a.
	res := q.Enqueue([]*models.RoutingItem{
		item("a", models.IntentReply),
		item("a", models.IntentExtend),
	}, "m")
	if len(res.Enqueued) != 1 {
		t.Fatalf("expected 1 enqueued, got %d", len(res.Enqueued))
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Reason != SkipAdjacentDuplicate {
		t.Errorf("expected adjacent_duplicate skip, got %v", res.Skipped)
	}

	// a, b, a is not adjacent: all three admitted.
	q2 := New(Options{})
	res2 := q2.Enqueue([]*models.RoutingItem{
		item("a", models.IntentReply),
		item("b", models.IntentReply),
		item("a", models.IntentExtend),
	}, "m")
	if len(res2.Enqueued) != 3 {
		t.Errorf("expected 3 enqueued, got %d (skipped %v)", len(res2.Enqueued), res2.Skipped)
	}
}

func TestBranchDemotion(t *testing.T) {
	q := New(Options{MaxBranchSize: 2})

	var demotions []ProtectionEvent
	q.SetProtectionObserver(func(ev ProtectionEvent) {
		if ev.Reason == ProtectionBranchDemotion {
			demotions = append(demotions, ev)
		}
	})

	res := q.Enqueue([]*models.RoutingItem{
		item("a", models.IntentInterrupt),
		item("b", models.IntentInterrupt),
		item("c", models.IntentInterrupt),
	}, "m")
	if len(res.Enqueued) != 3 {
		t.Fatalf("expected all 3 enqueued, got %d (skipped %v)", len(res.Enqueued), res.Skipped)
	}

	stats := q.GetStats()
	if stats.ByIntent[models.IntentInterrupt] != 2 {
		t.Errorf("expected 2 P1 items, got %d", stats.ByIntent[models.IntentInterrupt])
	}
	if stats.ByIntent[models.IntentExtend] != 1 {
		t.Errorf("expected 1 demoted P3 item, got %d", stats.ByIntent[models.IntentExtend])
	}
	if len(demotions) != 1 {
		t.Errorf("expected 1 demotion event, got %d", len(demotions))
	}
}

func TestQueueOverflow(t *testing.T) {
	q := New(Options{MaxQueueSize: 2})

	res := q.Enqueue([]*models.RoutingItem{
		item("a", models.IntentReply),
		item("b", models.IntentReply),
		item("c", models.IntentReply),
	}, "m")
	if len(res.Enqueued) != 2 {
		t.Fatalf("expected 2 enqueued, got %d", len(res.Enqueued))
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Reason != SkipQueueOverflow {
		t.Errorf("expected queue_overflow skip, got %v", res.Skipped)
	}
	if res.Skipped[0].Item.TargetMemberID != "c" {
		t.Errorf("expected c skipped, got %s", res.Skipped[0].Item.TargetMemberID)
	}
}

func TestLocalFirstScheduling(t *testing.T) {
	q := New(Options{MaxLocalSeq: 3})

	// Branch "old" is globally older than branch "local".
	q.Enqueue([]*models.RoutingItem{item("x", models.IntentReply)}, "old")
	q.Enqueue([]*models.RoutingItem{item("a", models.IntentReply)}, "local")

	q.MarkCompleted("local")

	next := q.SelectNext()
	if next == nil || next.ParentMessageID != "local" {
		t.Fatalf("expected local branch preferred, got %+v", next)
	}
}

func TestAntiStarvation(t *testing.T) {
	q := New(Options{MaxLocalSeq: 2})

	q.Enqueue([]*models.RoutingItem{item("x", models.IntentReply)}, "starved")
	q.Enqueue([]*models.RoutingItem{
		item("a", models.IntentReply),
		item("b", models.IntentReply),
		item("c", models.IntentReply),
	}, "busy")

	q.MarkCompleted("busy")

	first := q.SelectNext()
	second := q.SelectNext()
	if first.ParentMessageID != "busy" || second.ParentMessageID != "busy" {
		t.Fatalf("expected two local selections first, got %s then %s",
			first.ParentMessageID, second.ParentMessageID)
	}
	q.MarkCompleted("busy")

	// Two consecutive local picks exhaust MaxLocalSeq; the globally-oldest
	// pending item now chooses the branch.
	third := q.SelectNext()
	if third.ParentMessageID != "starved" {
		t.Errorf("expected starved branch after local run, got %s (target %s)",
			third.ParentMessageID, third.TargetMemberID)
	}
}

func TestInterruptPreemptsLocalBranch(t *testing.T) {
	q := New(Options{})

	q.Enqueue([]*models.RoutingItem{item("a", models.IntentReply)}, "local")
	q.Enqueue([]*models.RoutingItem{item("b", models.IntentInterrupt)}, "other")
	q.MarkCompleted("local")

	next := q.SelectNext()
	if next.Intent != models.IntentInterrupt {
		t.Errorf("expected P1 to preempt local branch, got %+v", next)
	}
}

func TestStateObserver(t *testing.T) {
	q := New(Options{})

	var snapshots []Stats
	q.SetStateObserver(func(s Stats) { snapshots = append(snapshots, s) })

	q.Enqueue([]*models.RoutingItem{item("a", models.IntentReply)}, "m")
	q.SelectNext()

	if len(snapshots) != 2 {
		t.Fatalf("expected 2 state snapshots, got %d", len(snapshots))
	}
	if snapshots[0].Pending != 1 || snapshots[0].Empty {
		t.Errorf("unexpected snapshot after enqueue: %+v", snapshots[0])
	}
	if snapshots[1].Pending != 0 || !snapshots[1].Empty {
		t.Errorf("unexpected snapshot after selection: %+v", snapshots[1])
	}
}
