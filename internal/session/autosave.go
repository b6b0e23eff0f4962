package session

import (
	"time"

	"github.com/csheth/mailpilot/internal/workflow"
)

// SaveTicket identifies one save attempt between BeginSave and FinishSave.
type SaveTicket struct {
	Seq       uint64
	Text      string
	StartedAt time.Time
	Manual    bool

	epoch uint64
}

// BeginSave claims the single save slot when the local draft has changed since
// the last confirmed save. Manual saves follow the same rules but skip the
// minimum indicator duration.
func (s *State) BeginSave(manual bool) (SaveTicket, bool) {
	if !s.Active() || s.saveInFlight || !s.Dirty() {
		return SaveTicket{}, false
	}
	s.savingSeq++
	s.saveInFlight = true
	s.Saving = true
	return SaveTicket{
		Seq:       s.savingSeq,
		Text:      s.LocalDraft,
		StartedAt: s.now(),
		Manual:    manual,
		epoch:     s.draftEpoch,
	}, true
}

// SaveInFlight reports whether a save call is outstanding. Unlike Saving it
// drops as soon as the call resolves.
func (s *State) SaveInFlight() bool {
	return s.saveInFlight
}

// FinishSave applies a save result. When the indicator must stay visible a
// little longer it returns the remaining delay and true; the caller then
// schedules ClearSaving(ticket.Seq) after that delay.
func (s *State) FinishSave(ticket SaveTicket, err error) (time.Duration, bool) {
	if s.closed || ticket.Seq != s.savingSeq {
		return 0, false
	}
	s.saveInFlight = false
	if err != nil {
		s.recordFailure(workflow.OpSaveDraft, err)
	} else {
		// A submission since BeginSave consumed the draft; the saved text is stale.
		if ticket.epoch == s.draftEpoch {
			s.LastSavedDraft = ticket.Text
		}
		s.LastError = nil
	}
	if ticket.Manual {
		s.Saving = false
		return 0, false
	}
	remaining := s.timing.MinSavingVisible - s.now().Sub(ticket.StartedAt)
	if remaining <= 0 {
		s.Saving = false
		return 0, false
	}
	return remaining, true
}

// ClearSaving hides the saving indicator for the attempt identified by seq.
// Stale or early clears are ignored.
func (s *State) ClearSaving(seq uint64) {
	if s.closed || seq != s.savingSeq || s.saveInFlight {
		return
	}
	s.Saving = false
}
