// Package session owns the in-memory state of one collaboration session with a
// remote email-drafting workflow and the rules for merging user edits, save
// results and server snapshots into it.
//
// Nothing in this package performs I/O. Callers run the network calls and
// report back through the Begin*/Finish* pairs; every mutation happens
// synchronously inside those calls, so a caller that serializes them on one
// goroutine never observes a torn State.
package session

import (
	"fmt"
	"time"

	"github.com/csheth/mailpilot/internal/workflow"
)

// Failure is the structured form of the last error shown to the user.
type Failure struct {
	Op      workflow.Op
	Kind    workflow.ErrorKind
	Message string
	At      time.Time
}

// Headline is a short label suitable for an inline banner.
func (f *Failure) Headline() string {
	if f == nil {
		return ""
	}
	switch f.Kind {
	case workflow.ParseError:
		return fmt.Sprintf("Bad response from server during %s", f.Op)
	case workflow.ServerError:
		return fmt.Sprintf("Server rejected %s", f.Op)
	default:
		return fmt.Sprintf("Network problem during %s", f.Op)
	}
}

// State is the single mutable object of a session.
type State struct {
	WorkflowID     string
	LocalDraft     string
	LastSavedDraft string
	Snapshot       *workflow.Snapshot
	Saving         bool
	Busy           bool
	LastError      *Failure

	timing Timing
	now    func() time.Time

	describing     bool
	initialApplied bool
	saveInFlight   bool
	savingSeq      uint64
	draftEpoch     uint64
	pendingStartID string
	closed         bool
}

// Option customizes a State.
type Option func(*State)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *State) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty session with no workflow identity yet.
func New(timing Timing, opts ...Option) *State {
	s := &State{timing: timing, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timing returns the schedule the session was created with.
func (s *State) Timing() Timing {
	return s.timing
}

// Establish sets the workflow identity. It succeeds at most once per session.
func (s *State) Establish(workflowID string) bool {
	if s.closed || s.WorkflowID != "" || workflowID == "" {
		return false
	}
	s.WorkflowID = workflowID
	return true
}

// Active reports whether the session has an identity and has not been closed.
func (s *State) Active() bool {
	return !s.closed && s.WorkflowID != ""
}

// Close tears the session down. Every later call becomes a no-op.
func (s *State) Close() {
	s.closed = true
	s.describing = false
	s.saveInFlight = false
}

// Closed reports whether Close has been called.
func (s *State) Closed() bool {
	return s.closed
}

// Status returns the last known workflow status.
func (s *State) Status() workflow.Status {
	if s.Snapshot == nil {
		return workflow.StatusUnknown
	}
	return s.Snapshot.Status
}

// ComposeVisible reports whether the compose box should be offered.
func (s *State) ComposeVisible() bool {
	if !s.Active() {
		return false
	}
	return s.Snapshot == nil || !s.Snapshot.Status.Terminal()
}

// RestartOffered reports whether the "start a new session" affordance replaces compose.
func (s *State) RestartOffered() bool {
	return s.Active() && s.Snapshot != nil && s.Snapshot.Status.Terminal()
}

// CanSubmit mirrors the guard applied by BeginSubmit. A stale LastError never blocks it.
func (s *State) CanSubmit() bool {
	return s.Active() &&
		!s.Busy &&
		s.LocalDraft != "" &&
		s.Snapshot != nil &&
		s.Snapshot.Status == workflow.StatusWaiting
}

// CanStart reports whether a new workflow may be started from this session.
func (s *State) CanStart() bool {
	return !s.closed && s.WorkflowID == "" && !s.Busy
}

// Dirty reports whether the local draft differs from the last confirmed save.
func (s *State) Dirty() bool {
	return s.LocalDraft != "" && s.LocalDraft != s.LastSavedDraft
}

func (s *State) recordFailure(op workflow.Op, err error) {
	s.LastError = &Failure{
		Op:      op,
		Kind:    workflow.KindOf(err),
		Message: err.Error(),
		At:      s.now(),
	}
}
