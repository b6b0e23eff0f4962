package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/csheth/mailpilot/internal/workflow"
)

func (m *model) View() string {
	parts := []string{m.headerView()}
	if !m.state.Active() {
		parts = append(parts, m.idleView())
	} else {
		parts = append(parts, m.emailView(), m.requestView())
		switch {
		case m.state.RestartOffered():
			parts = append(parts, m.restartView())
		case m.state.ComposeVisible():
			parts = append(parts, m.composerPanel())
		}
	}
	if banner := m.errorBanner(); banner != "" {
		parts = append(parts, banner)
	}
	if m.infoMessage != "" {
		parts = append(parts, helperStyle.Render(m.infoMessage))
	}
	parts = append(parts, m.keyLegendView())
	return joinNonEmpty(parts)
}

func (m *model) headerView() string {
	title := lipgloss.JoinHorizontal(lipgloss.Center, titleStyle.Render("mailpilot"), "  ", m.statusBadge())
	lines := []string{title, taglineStyle.Render(heroTagline)}
	if id := m.state.WorkflowID; id != "" {
		lines = append(lines, helperStyle.Render("Workflow "+id))
	}
	return strings.Join(lines, "\n")
}

func (m *model) statusBadge() string {
	if !m.state.Active() {
		return badgeBaseStyle.Copy().Background(badgeColors[workflow.StatusUnknown]).Render("NO WORKFLOW")
	}
	status := m.state.Status()
	return badgeBaseStyle.Copy().Background(badgeColors[status]).Render(strings.ToUpper(statusLabel(status)))
}

func statusLabel(status workflow.Status) string {
	switch status {
	case workflow.StatusWaiting:
		return "waiting"
	case workflow.StatusProcessing:
		return "processing"
	case workflow.StatusSent:
		return "sent"
	case workflow.StatusFailed:
		return "failed"
	case workflow.StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func (m *model) idleView() string {
	if m.state.Busy {
		return helperStyle.Render(fmt.Sprintf("%s Starting a new workflow…", m.spinner.View()))
	}
	return joinNonEmpty([]string{
		sectionHeaderStyle.Render("No workflow yet"),
		helperStyle.Render("Press ctrl+n to start a new session with the email agent."),
	})
}

func (m *model) emailView() string {
	snap := m.state.Snapshot
	header := sectionHeaderStyle.Render("Email draft")
	switch {
	case snap == nil:
		return joinNonEmpty([]string{header, helperStyle.Render("Loading workflow…")})
	case !snap.HasEmail():
		return joinNonEmpty([]string{header, helperStyle.Render("The agent has not drafted an email yet.")})
	}

	wrap := m.layout.previewWidth
	var b strings.Builder
	writeField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(fieldLabelStyle.Render(label))
		b.WriteString(" ")
		b.WriteString(value)
		b.WriteRune('\n')
	}
	writeField("To:", snap.EmailRecipient)
	writeField("Subject:", snap.EmailSubject)
	if when, ok := snap.SendTime(); ok {
		writeField("Send at:", when.Local().Format(time.RFC1123))
	}
	if body := strings.TrimSpace(snap.EmailBody); body != "" {
		b.WriteRune('\n')
		b.WriteString(clipLines(wordwrap.String(body, wrap), previewBodyLineLimit))
	}
	return joinNonEmpty([]string{header, emailBoxStyle.Render(strings.TrimRight(b.String(), "\n"))})
}

func (m *model) requestView() string {
	snap := m.state.Snapshot
	if snap == nil || strings.TrimSpace(snap.CurrentRequest) == "" {
		return ""
	}
	body := wordwrap.String(snap.CurrentRequest, m.layout.previewWidth)
	return joinNonEmpty([]string{
		sectionHeaderStyle.Render("Last request"),
		indentMultiline(body, "  "),
	})
}

func (m *model) restartView() string {
	status := statusLabel(m.state.Status())
	return restartBoxStyle.Render(fmt.Sprintf("This workflow is %s.\nPress ctrl+n to start a new session.", status))
}

func (m *model) composerPanel() string {
	parts := []string{sectionHeaderStyle.Render("Your request"), m.composer.View()}
	if m.composerLocked {
		parts = append(parts, errorStyle.Render(wordwrap.String(lockedDraftNotice, m.layout.previewWidth)))
	}
	return joinNonEmpty(append(parts, m.draftStatusLine()))
}

// draftStatusLine shows request progress, the saving indicator, or how far
// the local draft has drifted from the last confirmed save.
func (m *model) draftStatusLine() string {
	switch {
	case m.state.Busy:
		return helperStyle.Render(fmt.Sprintf("%s Sending request…", m.spinner.View()))
	case m.state.Saving:
		return helperStyle.Render(fmt.Sprintf("%s Saving draft…", m.spinner.View()))
	case m.state.LocalDraft == "":
		return ""
	case !m.state.Dirty():
		return helperStyle.Render("Draft saved.")
	}
	delta := computeDraftDelta(m.state.LastSavedDraft, m.state.LocalDraft)
	return helperStyle.Render("Unsaved changes ") +
		deltaInsertStyle.Render(fmt.Sprintf("+%d", delta.inserted)) + " " +
		deltaDeleteStyle.Render(fmt.Sprintf("-%d", delta.deleted))
}

func (m *model) errorBanner() string {
	failure := m.state.LastError
	if failure == nil {
		return ""
	}
	text := errorStyle.Copy().Bold(true).Render(failure.Headline()) + "\n" +
		errorStyle.Render(wordwrap.String(failure.Message, m.layout.previewWidth))
	return errorBannerStyle.Render(text)
}

type keyHint struct {
	Key         string
	Description string
}

func (m *model) keyHints() []keyHint {
	var hints []keyHint
	if m.state.ComposeVisible() {
		hints = append(hints, keyHint{"ctrl+r", "Send request"}, keyHint{"ctrl+s", "Save draft"})
		if m.composerLocked {
			hints = append(hints, keyHint{"ctrl+e", "Edit cleaned copy"})
		}
	}
	if m.state.CanStart() || m.state.RestartOffered() {
		hints = append(hints, keyHint{"ctrl+n", "New session"})
	}
	return append(hints, keyHint{"esc", "Save & quit"})
}

func (m *model) keyLegendView() string {
	var cells []string
	for _, hint := range m.keyHints() {
		key := keyStyle.Render(hint.Key)
		desc := keyDescStyle.Render(" " + hint.Description + "  ")
		cells = append(cells, lipgloss.JoinHorizontal(lipgloss.Top, key, desc))
	}
	legend := lipgloss.JoinHorizontal(lipgloss.Top, cells...)
	if calls := m.callStatusView(); calls != "" {
		legend = lipgloss.JoinHorizontal(lipgloss.Top, legend, calls)
	}
	return legend
}

// callStatusView names the remote calls in flight, or the last one to finish.
func (m *model) callStatusView() string {
	if len(m.running) > 0 {
		ops := make([]string, 0, len(m.running))
		for _, call := range m.running {
			ops = append(ops, string(call.Op))
		}
		sort.Strings(ops)
		return statusBarStyle.Render(strings.Join(ops, ", ") + " in flight")
	}
	if m.lastCall.ID == "" {
		return ""
	}
	return helperStyle.Render(fmt.Sprintf("last %s %s in %s", m.lastCall.Op, m.lastCall.Status, m.lastCall.Duration.Round(time.Millisecond)))
}

func joinNonEmpty(parts []string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n\n")
}
