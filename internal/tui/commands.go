package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/mailpilot/internal/session"
	"github.com/csheth/mailpilot/internal/workflow"
)

func describeJob(client workflow.Client, gen uint64, workflowID string, isInitial bool) callRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		snapshot, err := client.Describe(ctx, workflowID)
		return describeResultMsg{gen: gen, isInitial: isInitial, snapshot: snapshot, err: err}, err
	}
}

func saveDraftJob(client workflow.Client, gen uint64, workflowID string, ticket session.SaveTicket) callRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		err := client.SaveDraft(ctx, workflowID, ticket.Text)
		return saveResultMsg{gen: gen, ticket: ticket, err: err}, err
	}
}

func requestJob(client workflow.Client, gen uint64, workflowID, text string) callRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		err := client.Request(ctx, workflowID, text)
		return submitResultMsg{gen: gen, err: err}, err
	}
}

func startJob(client workflow.Client, gen uint64, workflowID string) callRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		err := client.Start(ctx, workflowID)
		return startResultMsg{gen: gen, workflowID: workflowID, err: err}, err
	}
}

func pollTickCmd(gen uint64, every time.Duration) tea.Cmd {
	return tea.Tick(every, func(time.Time) tea.Msg {
		return pollTickMsg{gen: gen}
	})
}

func autosaveTickCmd(gen uint64, every time.Duration) tea.Cmd {
	return tea.Tick(every, func(time.Time) tea.Msg {
		return autosaveTickMsg{gen: gen}
	})
}

func burstPollCmd(gen uint64, after time.Duration) tea.Cmd {
	return tea.Tick(after, func(time.Time) tea.Msg {
		return burstPollMsg{gen: gen}
	})
}

func savingClearCmd(gen, seq uint64, after time.Duration) tea.Cmd {
	return tea.Tick(after, func(time.Time) tea.Msg {
		return savingClearMsg{gen: gen, seq: seq}
	})
}

func quitTimeoutCmd(gen uint64) tea.Cmd {
	return tea.Tick(flushTimeout, func(time.Time) tea.Msg {
		return quitTimeoutMsg{gen: gen}
	})
}
