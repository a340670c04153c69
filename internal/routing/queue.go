// Package routing implements the priority/fairness queue that decides which
// member acts next.
package routing

import (
	"sync"
	"time"

	"github.com/dkessler/parley/pkg/models"
)

// SkipReason explains why an item was not admitted to the queue.
type SkipReason string

const (
	// SkipQueueOverflow indicates the queue was at capacity.
	SkipQueueOverflow SkipReason = "queue_overflow"
	// SkipDuplicate indicates an identical item was already pending.
	SkipDuplicate SkipReason = "duplicate"
	// SkipAdjacentDuplicate indicates the queue tail already targets the
	// same member.
	SkipAdjacentDuplicate SkipReason = "adjacent_duplicate"
)

// Options bounds the queue's memory and fairness behavior.
type Options struct {
	// MaxQueueSize is the hard cap on pending items.
	MaxQueueSize int
	// MaxBranchSize caps how many pending items a single branch may hold
	// before new items are demoted to P3_EXTEND.
	MaxBranchSize int
	// MaxLocalSeq is how many consecutive local-first selections are allowed
	// before the globally-oldest item must be considered.
	MaxLocalSeq int
}

// DefaultOptions returns the queue limits used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxQueueSize:  24,
		MaxBranchSize: 4,
		MaxLocalSeq:   3,
	}
}

// Skipped pairs a rejected item with the reason it was rejected.
type Skipped struct {
	Item   *models.RoutingItem
	Reason SkipReason
}

// EnqueueResult partitions a batch into admitted and rejected items so
// callers can surface diagnostics.
type EnqueueResult struct {
	Enqueued []*models.RoutingItem
	Skipped  []Skipped
}

// Queue schedules pending routing items. All methods are safe for concurrent
// use, though the coordinator's drive loop accesses the queue sequentially.
type Queue struct {
	opts  Options
	items []*models.RoutingItem
	// seq is the monotonically increasing enqueue sequence.
	seq uint64
	// lastBranch is the branch of the most recently completed delivery.
	lastBranch string
	// localRun counts consecutive local-first selections.
	localRun int

	onState      func(Stats)
	onProtection func(ProtectionEvent)

	mu sync.Mutex
}

// New creates a queue with the given limits. Zero or negative limits fall
// back to the defaults.
func New(opts Options) *Queue {
	def := DefaultOptions()
	if opts.MaxQueueSize <= 0 {
		opts.MaxQueueSize = def.MaxQueueSize
	}
	if opts.MaxBranchSize <= 0 {
		opts.MaxBranchSize = def.MaxBranchSize
	}
	if opts.MaxLocalSeq <= 0 {
		opts.MaxLocalSeq = def.MaxLocalSeq
	}
	return &Queue{opts: opts}
}

// SetStateObserver registers a callback invoked with a queue-state snapshot
// after every successful enqueue and selection.
func (q *Queue) SetStateObserver(fn func(Stats)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onState = fn
}

// SetProtectionObserver registers a callback invoked whenever an item is
// rejected or demoted.
func (q *Queue) SetProtectionObserver(fn func(ProtectionEvent)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onProtection = fn
}

// Enqueue admits a batch of items against the given parent message. Each
// item is checked in order: capacity first, then duplicate suppression,
// adjacent-duplicate suppression, and branch-overflow demotion.
func (q *Queue) Enqueue(items []*models.RoutingItem, parentMessageID string) EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	var res EnqueueResult
	for _, item := range items {
		item.ParentMessageID = parentMessageID
		if !item.Intent.Valid() {
			item.Intent = models.IntentReply
		}

		if reason, ok := q.rejectLocked(item); ok {
			res.Skipped = append(res.Skipped, Skipped{Item: item, Reason: reason})
			q.notifyProtectionLocked(ProtectionEvent{
				Reason:          string(reason),
				TargetMemberID:  item.TargetMemberID,
				ParentMessageID: item.ParentMessageID,
				Intent:          item.Intent,
			})
			continue
		}

		// Branch overflow demotes rather than rejects: the item still
		// enqueues, but at the lowest priority.
		if q.branchSizeLocked(item.ParentMessageID) >= q.opts.MaxBranchSize && item.Intent != models.IntentExtend {
			item.Intent = models.IntentExtend
			q.notifyProtectionLocked(ProtectionEvent{
				Reason:          ProtectionBranchDemotion,
				TargetMemberID:  item.TargetMemberID,
				ParentMessageID: item.ParentMessageID,
				Intent:          item.Intent,
			})
		}

		q.seq++
		item.Seq = q.seq
		item.EnqueuedAt = time.Now()
		q.items = append(q.items, item)
		res.Enqueued = append(res.Enqueued, item)
		q.notifyStateLocked()
	}
	return res
}

// rejectLocked applies the admission checks that drop an item outright.
func (q *Queue) rejectLocked(item *models.RoutingItem) (SkipReason, bool) {
	if len(q.items) >= q.opts.MaxQueueSize {
		return SkipQueueOverflow, true
	}
	for _, pending := range q.items {
		if pending.ParentMessageID == item.ParentMessageID &&
			pending.TargetMemberID == item.TargetMemberID &&
			pending.Intent == item.Intent {
			return SkipDuplicate, true
		}
	}
	// Immediately repeated delivery to one member is never meaningful,
	// whatever the intent.
	if n := len(q.items); n > 0 && q.items[n-1].TargetMemberID == item.TargetMemberID {
		return SkipAdjacentDuplicate, true
	}
	return "", false
}

// SelectNext removes and returns the item that should execute next, or nil
// if the queue is empty.
//
// Selection order:
//  1. Any pending P1_INTERRUPT preempts everything, oldest first.
//  2. Otherwise local-first: items from the last completed branch are
//     preferred for up to MaxLocalSeq consecutive picks, after which the
//     globally-oldest pending item chooses the branch instead.
//  3. Within the chosen branch, P2_REPLY before P3_EXTEND, oldest first.
func (q *Queue) SelectNext() *models.RoutingItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	if idx := q.oldestInterruptLocked(); idx >= 0 {
		return q.takeLocked(idx)
	}

	branch := ""
	if q.lastBranch != "" && q.localRun < q.opts.MaxLocalSeq && q.branchSizeLocked(q.lastBranch) > 0 {
		branch = q.lastBranch
		q.localRun++
	} else {
		// Anti-starvation: the globally-oldest item picks the branch.
		branch = q.globallyOldestLocked().ParentMessageID
		q.localRun = 0
	}

	return q.takeLocked(q.bestInBranchLocked(branch))
}

// oldestInterruptLocked returns the index of the oldest P1 item, or -1.
func (q *Queue) oldestInterruptLocked() int {
	best := -1
	for i, item := range q.items {
		if item.Intent != models.IntentInterrupt {
			continue
		}
		if best < 0 || item.Seq < q.items[best].Seq {
			best = i
		}
	}
	return best
}

// globallyOldestLocked returns the pending item with the lowest sequence.
// Caller must ensure the queue is non-empty.
func (q *Queue) globallyOldestLocked() *models.RoutingItem {
	best := q.items[0]
	for _, item := range q.items[1:] {
		if item.Seq < best.Seq {
			best = item
		}
	}
	return best
}

// bestInBranchLocked returns the index of the branch's best item by
// (priority rank, enqueue sequence).
func (q *Queue) bestInBranchLocked(branch string) int {
	best := -1
	for i, item := range q.items {
		if item.ParentMessageID != branch {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := q.items[best]
		if item.Intent.Rank() < b.Intent.Rank() ||
			(item.Intent.Rank() == b.Intent.Rank() && item.Seq < b.Seq) {
			best = i
		}
	}
	return best
}

// takeLocked removes and returns the item at index i, emitting a state
// snapshot. Removal is atomic with selection under q.mu.
func (q *Queue) takeLocked(i int) *models.RoutingItem {
	item := q.items[i]
	q.items = append(q.items[:i], q.items[i+1:]...)
	q.notifyStateLocked()
	return item
}

// MarkCompleted records which branch just finished executing, feeding the
// local-first heuristic. Completing a different branch resets the local run.
func (q *Queue) MarkCompleted(parentMessageID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lastBranch != parentMessageID {
		q.lastBranch = parentMessageID
		q.localRun = 0
	}
}

// branchSizeLocked counts pending items sharing the given parent.
func (q *Queue) branchSizeLocked(parentMessageID string) int {
	n := 0
	for _, item := range q.items {
		if item.ParentMessageID == parentMessageID {
			n++
		}
	}
	return n
}

// Size returns the number of pending items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// GetStats returns the current queue-state snapshot.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statsLocked()
}

func (q *Queue) statsLocked() Stats {
	s := Stats{
		Pending:  len(q.items),
		ByIntent: make(map[models.Intent]int),
		Empty:    len(q.items) == 0,
	}
	for _, item := range q.items {
		s.ByIntent[item.Intent]++
	}
	return s
}

func (q *Queue) notifyStateLocked() {
	if q.onState != nil {
		q.onState(q.statsLocked())
	}
}

func (q *Queue) notifyProtectionLocked(ev ProtectionEvent) {
	if q.onProtection != nil {
		q.onProtection(ev)
	}
}
