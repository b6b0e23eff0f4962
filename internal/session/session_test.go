package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csheth/mailpilot/internal/workflow"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestState(t *testing.T) (*State, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := New(DefaultTiming(), WithClock(clock.Now))
	require.True(t, s.Establish("W"))
	return s, clock
}

func waitingSnapshot(draft string) workflow.Snapshot {
	return workflow.Snapshot{Status: workflow.StatusWaiting, CurrentRequestDraft: draft}
}

func TestEstablishOnlyOnce(t *testing.T) {
	s := New(DefaultTiming())
	assert.False(t, s.Establish(""))
	assert.True(t, s.Establish("a"))
	assert.False(t, s.Establish("b"))
	assert.Equal(t, "a", s.WorkflowID)
}

func TestOperationsBeforeIdentityAreNoOps(t *testing.T) {
	s := New(DefaultTiming())
	s.OnEdit("typed")
	s.OnSnapshot(waitingSnapshot("seed"), true)
	_, described := s.BeginDescribe()
	_, saved := s.BeginSave(false)
	_, submitted := s.BeginSubmit()

	assert.Empty(t, s.LocalDraft)
	assert.Nil(t, s.Snapshot)
	assert.False(t, described)
	assert.False(t, saved)
	assert.False(t, submitted)
	assert.False(t, s.ComposeVisible())
}

func TestOnEditIsIdempotent(t *testing.T) {
	s, _ := newTestState(t)
	s.OnEdit("same")
	first := *s
	s.OnEdit("same")
	assert.Equal(t, first.LocalDraft, s.LocalDraft)
	assert.Equal(t, first.LastSavedDraft, s.LastSavedDraft)
	assert.Equal(t, first.Busy, s.Busy)
	assert.Equal(t, first.Saving, s.Saving)
}

func TestInitialSnapshotSeedsDraft(t *testing.T) {
	s, _ := newTestState(t)

	initial, ok := s.BeginDescribe()
	require.True(t, ok)
	require.True(t, initial)
	s.FinishDescribe(initial, waitingSnapshot("hello"), nil)

	assert.Equal(t, "hello", s.LocalDraft)
	assert.Equal(t, "hello", s.LastSavedDraft)
	assert.False(t, s.Dirty())

	initial, ok = s.BeginDescribe()
	require.True(t, ok)
	assert.False(t, initial)
	s.FinishDescribe(initial, waitingSnapshot("server changed it"), nil)

	assert.Equal(t, "hello", s.LocalDraft)
	assert.Equal(t, "server changed it", s.Snapshot.CurrentRequestDraft)
}

func TestInitialSnapshotDoesNotOverwriteTyping(t *testing.T) {
	s, _ := newTestState(t)
	initial, ok := s.BeginDescribe()
	require.True(t, ok)

	s.OnEdit("abc")
	s.FinishDescribe(initial, waitingSnapshot("server draft"), nil)

	assert.Equal(t, "abc", s.LocalDraft)
	assert.Empty(t, s.LastSavedDraft)
}

func TestFailedInitialFetchKeepsSeedingAvailable(t *testing.T) {
	s, _ := newTestState(t)

	initial, ok := s.BeginDescribe()
	require.True(t, ok)
	s.FinishDescribe(initial, workflow.Snapshot{}, &workflow.RemoteError{Op: workflow.OpDescribe, Kind: workflow.TransportError, Err: errors.New("down")})
	require.NotNil(t, s.LastError)
	assert.Nil(t, s.Snapshot)

	initial, ok = s.BeginDescribe()
	require.True(t, ok)
	assert.True(t, initial, "first successful fetch is still the initial one")
	s.FinishDescribe(initial, waitingSnapshot("later"), nil)
	assert.Equal(t, "later", s.LocalDraft)
	assert.Nil(t, s.LastError)
}

func TestRefreshDoesNotClobberLocalEdits(t *testing.T) {
	s, _ := newTestState(t)
	s.OnSnapshot(waitingSnapshot(""), true)
	s.OnEdit("abc")

	s.OnSnapshot(waitingSnapshot("old server draft"), false)

	assert.Equal(t, "abc", s.LocalDraft)
	assert.True(t, s.Dirty())
}

func TestDescribeFailureKeepsLastKnownGood(t *testing.T) {
	s, _ := newTestState(t)
	s.OnSnapshot(workflow.Snapshot{Status: workflow.StatusWaiting, EmailSubject: "Hi"}, true)
	s.OnEdit("draft")

	_, ok := s.BeginDescribe()
	require.True(t, ok)
	s.FinishDescribe(false, workflow.Snapshot{}, &workflow.RemoteError{Op: workflow.OpDescribe, Kind: workflow.ParseError, Err: errors.New("bad json")})

	require.NotNil(t, s.Snapshot)
	assert.Equal(t, "Hi", s.Snapshot.EmailSubject)
	assert.Equal(t, "draft", s.LocalDraft)
	require.NotNil(t, s.LastError)
	assert.Equal(t, workflow.ParseError, s.LastError.Kind)
	assert.Contains(t, s.LastError.Headline(), "Bad response")
}

func TestAtMostOneDescribeInFlight(t *testing.T) {
	s, _ := newTestState(t)

	_, first := s.BeginDescribe()
	_, second := s.BeginDescribe()
	assert.True(t, first)
	assert.False(t, second, "a second tick inside the round trip must be skipped")
	assert.True(t, s.Describing())

	s.FinishDescribe(true, waitingSnapshot(""), nil)
	_, third := s.BeginDescribe()
	assert.True(t, third)
}

func TestSubmitConsumesDraft(t *testing.T) {
	s, _ := newTestState(t)
	s.OnSnapshot(waitingSnapshot(""), true)
	s.OnEdit("send this")

	text, ok := s.BeginSubmit()
	require.True(t, ok)
	assert.Equal(t, "send this", text)
	assert.Empty(t, s.LocalDraft)
	assert.Empty(t, s.LastSavedDraft)
	assert.True(t, s.Busy)

	_, again := s.BeginSubmit()
	assert.False(t, again)

	s.FinishSubmit(nil)
	assert.False(t, s.Busy)
}

func TestSubmitGuard(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *State)
	}{
		{"no snapshot", func(s *State) { s.OnEdit("text") }},
		{"processing", func(s *State) {
			s.OnSnapshot(workflow.Snapshot{Status: workflow.StatusProcessing}, true)
			s.OnEdit("text")
		}},
		{"sent", func(s *State) {
			s.OnSnapshot(workflow.Snapshot{Status: workflow.StatusSent}, true)
			s.OnEdit("text")
		}},
		{"empty draft", func(s *State) { s.OnSnapshot(waitingSnapshot(""), true) }},
		{"busy", func(s *State) {
			s.OnSnapshot(waitingSnapshot(""), true)
			s.OnEdit("text")
			s.Busy = true
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestState(t)
			tt.setup(s)
			before := s.LocalDraft
			_, ok := s.BeginSubmit()
			assert.False(t, ok)
			assert.Equal(t, before, s.LocalDraft)
		})
	}
}

func TestStaleErrorDoesNotBlockSubmit(t *testing.T) {
	s, _ := newTestState(t)
	s.OnSnapshot(waitingSnapshot(""), true)
	s.OnEdit("go")
	s.FinishSubmit(errors.New("earlier failure"))
	require.NotNil(t, s.LastError)

	assert.True(t, s.CanSubmit())
}

func TestFailedSubmitRecordsError(t *testing.T) {
	s, _ := newTestState(t)
	s.OnSnapshot(waitingSnapshot(""), true)
	s.OnEdit("go")
	_, ok := s.BeginSubmit()
	require.True(t, ok)

	s.FinishSubmit(&workflow.RemoteError{Op: workflow.OpRequest, Kind: workflow.ServerError, StatusCode: 500})
	assert.False(t, s.Busy)
	require.NotNil(t, s.LastError)
	assert.Equal(t, workflow.OpRequest, s.LastError.Op)
	assert.Equal(t, workflow.ServerError, s.LastError.Kind)
}

func TestAutosaveSkipsUnchangedOrEmpty(t *testing.T) {
	s, _ := newTestState(t)
	_, ok := s.BeginSave(false)
	assert.False(t, ok, "empty draft")

	s.OnSnapshot(waitingSnapshot("seeded"), true)
	_, ok = s.BeginSave(false)
	assert.False(t, ok, "draft equals last save")

	s.OnEdit("changed")
	ticket, ok := s.BeginSave(false)
	require.True(t, ok)
	assert.Equal(t, "changed", ticket.Text)
	assert.True(t, s.Saving)

	_, ok = s.BeginSave(false)
	assert.False(t, ok, "one save in flight at a time")
}

func TestSaveSuccessConvergesDrafts(t *testing.T) {
	s, clock := newTestState(t)
	s.OnEdit("final text")
	s.LastError = &Failure{Op: workflow.OpDescribe}

	ticket, ok := s.BeginSave(false)
	require.True(t, ok)
	clock.Advance(3 * time.Second)
	_, pending := s.FinishSave(ticket, nil)

	assert.False(t, pending)
	assert.False(t, s.Saving)
	assert.Equal(t, "final text", s.LastSavedDraft)
	assert.Nil(t, s.LastError, "any success clears the error")
}

func TestSaveFailureKeepsLastSaved(t *testing.T) {
	s, _ := newTestState(t)
	s.OnEdit("retry me")

	ticket, ok := s.BeginSave(false)
	require.True(t, ok)
	s.FinishSave(ticket, &workflow.RemoteError{Op: workflow.OpSaveDraft, Kind: workflow.TransportError, Err: errors.New("timeout")})

	assert.Empty(t, s.LastSavedDraft)
	require.NotNil(t, s.LastError)

	retry, ok := s.BeginSave(false)
	require.True(t, ok, "next tick retries the same text")
	assert.Equal(t, "retry me", retry.Text)
}

func TestSavingIndicatorMinimumDuration(t *testing.T) {
	s, clock := newTestState(t)
	s.OnEdit("quick")

	ticket, ok := s.BeginSave(false)
	require.True(t, ok)
	clock.Advance(10 * time.Millisecond)
	delay, pending := s.FinishSave(ticket, nil)

	require.True(t, pending)
	assert.Equal(t, 1990*time.Millisecond, delay)
	assert.True(t, s.Saving, "indicator stays on until the deferred clear")

	s.ClearSaving(ticket.Seq)
	assert.False(t, s.Saving)
}

func TestManualSaveSkipsMinimumDuration(t *testing.T) {
	s, clock := newTestState(t)
	s.OnEdit("leaving")

	ticket, ok := s.BeginSave(true)
	require.True(t, ok)
	clock.Advance(10 * time.Millisecond)
	delay, pending := s.FinishSave(ticket, nil)

	assert.False(t, pending)
	assert.Zero(t, delay)
	assert.False(t, s.Saving)
	assert.Equal(t, "leaving", s.LastSavedDraft)
}

func TestStaleClearIsIgnored(t *testing.T) {
	s, clock := newTestState(t)
	s.OnEdit("one")
	first, _ := s.BeginSave(false)
	s.FinishSave(first, nil)

	s.OnEdit("two")
	second, ok := s.BeginSave(false)
	require.True(t, ok)

	s.ClearSaving(first.Seq)
	assert.True(t, s.Saving, "clear from an older attempt must not hide the current one")

	clock.Advance(5 * time.Second)
	_, pending := s.FinishSave(second, nil)
	assert.False(t, pending)
	assert.False(t, s.Saving)
}

func TestLateSaveAfterSubmitDoesNotResurrectDraft(t *testing.T) {
	s, _ := newTestState(t)
	s.OnSnapshot(waitingSnapshot(""), true)
	s.OnEdit("old text")

	ticket, ok := s.BeginSave(false)
	require.True(t, ok)
	_, ok = s.BeginSubmit()
	require.True(t, ok)

	s.FinishSave(ticket, nil)
	assert.Empty(t, s.LocalDraft)
	assert.Empty(t, s.LastSavedDraft)
}

func TestStartLifecycle(t *testing.T) {
	s := New(DefaultTiming())
	require.True(t, s.CanStart())
	require.True(t, s.BeginStart("W1"))
	assert.True(t, s.Busy)
	assert.False(t, s.BeginStart("W2"), "busy")

	assert.False(t, s.FinishStart("W1", errors.New("refused")))
	assert.Empty(t, s.WorkflowID)
	assert.True(t, s.CanStart(), "failed start leaves the session startable")
	require.NotNil(t, s.LastError)

	require.True(t, s.BeginStart("W2"))
	assert.True(t, s.FinishStart("W2", nil))
	assert.Equal(t, "W2", s.WorkflowID)
	assert.Nil(t, s.LastError)
	assert.False(t, s.CanStart())
}

func TestTerminalStatusOffersRestart(t *testing.T) {
	s, _ := newTestState(t)
	s.OnSnapshot(waitingSnapshot(""), true)
	assert.True(t, s.ComposeVisible())
	assert.False(t, s.RestartOffered())

	s.OnSnapshot(workflow.Snapshot{Status: workflow.StatusSent, EmailSubject: "Hi"}, false)
	assert.False(t, s.ComposeVisible())
	assert.True(t, s.RestartOffered())

	_, ok := s.BeginDescribe()
	assert.True(t, ok, "polling continues on terminal status")
}

func TestCloseMakesEverythingANoOp(t *testing.T) {
	s, _ := newTestState(t)
	s.OnEdit("text")
	ticket, ok := s.BeginSave(false)
	require.True(t, ok)

	s.Close()
	s.FinishSave(ticket, nil)
	s.ClearSaving(ticket.Seq)
	s.OnEdit("after")
	s.OnSnapshot(waitingSnapshot(""), false)
	_, described := s.BeginDescribe()

	assert.Equal(t, "text", s.LocalDraft)
	assert.Empty(t, s.LastSavedDraft)
	assert.Nil(t, s.Snapshot)
	assert.False(t, described)
}

func TestEndToEndScenario(t *testing.T) {
	s := New(DefaultTiming())
	require.True(t, s.BeginStart("W"))
	require.True(t, s.FinishStart("W", nil))

	initial, ok := s.BeginDescribe()
	require.True(t, ok)
	s.FinishDescribe(initial, waitingSnapshot("draft text"), nil)
	assert.Equal(t, "draft text", s.LocalDraft)

	s.OnEdit("final text")
	ticket, ok := s.BeginSave(false)
	require.True(t, ok)
	assert.Equal(t, "final text", ticket.Text)
	s.FinishSave(ticket, nil)
	assert.Equal(t, "final text", s.LastSavedDraft)

	text, ok := s.BeginSubmit()
	require.True(t, ok)
	assert.Equal(t, "final text", text)
	assert.Empty(t, s.LocalDraft)
	s.FinishSubmit(nil)

	_, ok = s.BeginDescribe()
	require.True(t, ok)
	s.FinishDescribe(false, workflow.Snapshot{Status: workflow.StatusSent, EmailSubject: "Hi"}, nil)
	assert.False(t, s.ComposeVisible())
	assert.True(t, s.RestartOffered())
}

func TestTimingValidate(t *testing.T) {
	require.NoError(t, DefaultTiming().Validate())

	bad := DefaultTiming()
	bad.PollInterval = 0
	assert.Error(t, bad.Validate())

	bad = DefaultTiming()
	bad.Burst = []time.Duration{-time.Second}
	assert.Error(t, bad.Validate())
}
