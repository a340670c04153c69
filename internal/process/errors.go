package process

import "errors"

var (
	// ErrSendCancelled is the distinguished cancellation error returned by a
	// send aborted through CancelSend. Callers treat it as a clean stop, not
	// a failure.
	ErrSendCancelled = errors.New("send cancelled")

	// ErrSendInFlight is returned when a send is attempted while another is
	// still outstanding on the same worker.
	ErrSendInFlight = errors.New("send already in flight")

	// ErrNotStarted is returned when an operation requires a started worker.
	ErrNotStarted = errors.New("worker not started")

	// ErrMaxTimeout is returned when the absolute timeout ceiling was
	// reached with no resolution. The worker is force-stopped first.
	ErrMaxTimeout = errors.New("max timeout exceeded")
)
