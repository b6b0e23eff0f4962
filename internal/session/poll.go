package session

import "github.com/csheth/mailpilot/internal/workflow"

// BeginDescribe claims the single describe slot. It fails when a describe is
// already outstanding; callers skip the tick rather than queueing it. The
// returned flag tells the caller whether this fetch may seed the draft.
func (s *State) BeginDescribe() (isInitial bool, ok bool) {
	if !s.Active() || s.describing {
		return false, false
	}
	s.describing = true
	return !s.initialApplied, true
}

// Describing reports whether a describe call is outstanding.
func (s *State) Describing() bool {
	return s.describing
}

// FinishDescribe releases the describe slot and applies the result. A failed
// fetch keeps the previous snapshot.
func (s *State) FinishDescribe(isInitial bool, snapshot workflow.Snapshot, err error) {
	if s.closed {
		return
	}
	s.describing = false
	if err != nil {
		s.recordFailure(workflow.OpDescribe, err)
		return
	}
	s.OnSnapshot(snapshot, isInitial)
}
