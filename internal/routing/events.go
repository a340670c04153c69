package routing

import "github.com/dkessler/parley/pkg/models"

// ProtectionBranchDemotion is the protection-event reason for a branch
// overflow demotion. Rejection events reuse the SkipReason values.
const ProtectionBranchDemotion = "branch_demotion"

// Stats is a point-in-time snapshot of the queue, emitted to observers after
// every successful enqueue and selection.
type Stats struct {
	// Pending is the number of items waiting.
	Pending int
	// ByIntent counts pending items per priority class.
	ByIntent map[models.Intent]int
	// Empty is true when nothing is pending.
	Empty bool
}

// ProtectionEvent describes a queue-protection action: an item rejected at
// admission or demoted by branch overflow.
type ProtectionEvent struct {
	// Reason is a SkipReason value or ProtectionBranchDemotion.
	Reason string
	// TargetMemberID is the member the item targeted.
	TargetMemberID string
	// ParentMessageID is the item's branch.
	ParentMessageID string
	// Intent is the item's intent after any demotion.
	Intent models.Intent
}
