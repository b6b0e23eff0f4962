package session

import "github.com/csheth/mailpilot/internal/workflow"

// OnEdit records the latest text typed by the user. It is never debounced here;
// the autosave tick is the only debounce.
func (s *State) OnEdit(text string) {
	if !s.Active() {
		return
	}
	s.LocalDraft = text
}

// OnSnapshot applies a successful describe result. Only the first successful
// describe after the identity is known may seed the local draft, and only if
// the user has not typed anything yet.
func (s *State) OnSnapshot(snapshot workflow.Snapshot, isInitial bool) {
	if !s.Active() {
		return
	}
	s.Snapshot = &snapshot
	s.LastError = nil
	if !isInitial || s.initialApplied {
		return
	}
	s.initialApplied = true
	if s.LocalDraft == "" && snapshot.CurrentRequestDraft != "" {
		s.LocalDraft = snapshot.CurrentRequestDraft
		s.LastSavedDraft = snapshot.CurrentRequestDraft
	}
}

// BeginSubmit checks the submission guard and, when it passes, marks the
// session busy and consumes the draft. The returned text is what must be sent.
func (s *State) BeginSubmit() (string, bool) {
	if !s.CanSubmit() {
		return "", false
	}
	text := s.LocalDraft
	s.Busy = true
	s.LocalDraft = ""
	s.LastSavedDraft = ""
	s.draftEpoch++
	return text, true
}

// FinishSubmit records the outcome of a request submission. The caller is
// expected to follow up with the post-submit describe burst either way.
func (s *State) FinishSubmit(err error) {
	if s.closed {
		return
	}
	s.Busy = false
	if err != nil {
		s.recordFailure(workflow.OpRequest, err)
		return
	}
	s.LastError = nil
}

// BeginStart reserves workflowID as the identity being provisioned.
func (s *State) BeginStart(workflowID string) bool {
	if !s.CanStart() || workflowID == "" {
		return false
	}
	s.Busy = true
	s.pendingStartID = workflowID
	return true
}

// FinishStart records the outcome of a start call and establishes the identity
// on success. It reports whether the session now has an identity.
func (s *State) FinishStart(workflowID string, err error) bool {
	if s.closed || workflowID != s.pendingStartID {
		return false
	}
	s.Busy = false
	s.pendingStartID = ""
	if err != nil {
		s.recordFailure(workflow.OpStart, err)
		return false
	}
	s.LastError = nil
	return s.Establish(workflowID)
}
