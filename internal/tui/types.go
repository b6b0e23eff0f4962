package tui

import (
	"time"

	"github.com/csheth/mailpilot/internal/session"
	"github.com/csheth/mailpilot/internal/workflow"
)

const heroTagline = "Draft email with the agent, one request at a time."

const (
	minComposerWidth         = 30
	composerHorizontalMargin = 4
	previewBodyLineLimit     = 18
)

const (
	tickPoll     = "poll"
	tickBurst    = "burst"
	tickAutosave = "autosave"
)

// Observer receives tick accounting. *metrics.Recorder satisfies it.
type Observer interface {
	TickFired(kind string)
	TickSkipped(kind string)
}

type noopObserver struct{}

func (noopObserver) TickFired(string)   {}
func (noopObserver) TickSkipped(string) {}

// Every session message carries the generation it was scheduled under.
// Messages from an older generation belong to a torn-down session.

type pollTickMsg struct {
	gen uint64
}

type burstPollMsg struct {
	gen uint64
}

type autosaveTickMsg struct {
	gen uint64
}

type savingClearMsg struct {
	gen uint64
	seq uint64
}

type describeResultMsg struct {
	gen       uint64
	isInitial bool
	snapshot  workflow.Snapshot
	err       error
}

type saveResultMsg struct {
	gen    uint64
	ticket session.SaveTicket
	err    error
}

type submitResultMsg struct {
	gen uint64
	err error
}

type startResultMsg struct {
	gen        uint64
	workflowID string
	err        error
}

type quitTimeoutMsg struct {
	gen uint64
}

// flushTimeout bounds how long quitting waits for the final manual save.
const flushTimeout = 10 * time.Second
