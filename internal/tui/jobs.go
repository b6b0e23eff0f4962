package tui

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/mailpilot/internal/workflow"
)

type callStatus string

const (
	callStatusRunning   callStatus = "running"
	callStatusSucceeded callStatus = "succeeded"
	callStatusFailed    callStatus = "failed"
)

type callSnapshot struct {
	ID          string
	Op          workflow.Op
	Status      callStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Err         string
	Duration    time.Duration
}

type callSignalMsg struct {
	Snapshot callSnapshot
}

type callResultEnvelope struct {
	Snapshot callSnapshot
	Payload  tea.Msg
}

type callRunner func(context.Context) (tea.Msg, error)

// callBus runs remote calls as commands and reports their lifecycle back to
// the model as messages.
type callBus struct {
	counter int64
	logger  *slog.Logger
	now     func() time.Time
}

func newCallBus(logger *slog.Logger, now func() time.Time) *callBus {
	return &callBus{logger: logger, now: now}
}

func (b *callBus) nextID(op workflow.Op) string {
	idx := atomic.AddInt64(&b.counter, 1)
	return fmt.Sprintf("%s-%d", op, idx)
}

func (b *callBus) Start(op workflow.Op, workflowID string, runner callRunner) tea.Cmd {
	id := b.nextID(op)
	started := b.now()
	startSnapshot := callSnapshot{ID: id, Op: op, Status: callStatusRunning, StartedAt: started}
	startCmd := func() tea.Msg {
		return callSignalMsg{Snapshot: startSnapshot}
	}

	runCmd := func() tea.Msg {
		payload, err := runner(context.Background())
		snapshot := callSnapshot{
			ID:          id,
			Op:          op,
			StartedAt:   started,
			CompletedAt: b.now(),
		}
		if err != nil {
			snapshot.Status = callStatusFailed
			snapshot.Err = err.Error()
		} else {
			snapshot.Status = callStatusSucceeded
		}
		snapshot.Duration = snapshot.CompletedAt.Sub(started)
		attrs := []any{
			slog.String("call", id),
			slog.String("workflow_id", workflowID),
			slog.String("status", string(snapshot.Status)),
			slog.Duration("duration", snapshot.Duration),
		}
		if err != nil {
			attrs = append(attrs, slog.String("kind", string(workflow.KindOf(err))), slog.String("error", err.Error()))
			b.logger.Warn("remote call finished", attrs...)
		} else {
			b.logger.Debug("remote call finished", attrs...)
		}
		return callResultEnvelope{Snapshot: snapshot, Payload: payload}
	}

	return tea.Sequence(startCmd, runCmd)
}
