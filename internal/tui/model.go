package tui

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/csheth/mailpilot/internal/logging"
	"github.com/csheth/mailpilot/internal/resume"
	"github.com/csheth/mailpilot/internal/session"
	"github.com/csheth/mailpilot/internal/workflow"
)

// Config wires runtime options into the TUI program.
type Config struct {
	Client     workflow.Client
	WorkflowID string
	// Endpoint keys the resume store.
	Endpoint string
	Timing   session.Timing
	Logger   *slog.Logger
	Resume   *resume.Store
	Observer Observer
	NewID    func() string
	Clock    func() time.Time
}

// New returns a tea.Model ready to be mounted into a Program.
func New(config Config) tea.Model {
	if config.Timing.PollInterval <= 0 || config.Timing.AutosaveInterval <= 0 {
		config.Timing = session.DefaultTiming()
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	if config.Observer == nil {
		config.Observer = noopObserver{}
	}
	if config.NewID == nil {
		config.NewID = workflow.NewID
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	m := &model{
		config:   config,
		logger:   config.Logger,
		bus:      newCallBus(config.Logger, config.Clock),
		composer: newComposer(),
		spinner:  spin,
		layout:   newPageLayout(),
		running:  make(map[string]callSnapshot),
	}
	m.state = m.newState()
	if id, err := workflow.NormalizeID(config.WorkflowID); err == nil {
		m.state.Establish(id)
	}
	return m
}

type model struct {
	config   Config
	logger   *slog.Logger
	state    *session.State
	gen      uint64
	bus      *callBus
	composer textarea.Model
	spinner  spinner.Model
	layout   pageLayout
	// running holds calls between their signal and their result, by call id.
	running  map[string]callSnapshot
	lastCall callSnapshot

	// composerDraft is the LocalDraft the composer was last loaded from or
	// edited into. While composerLocked the composer only displays it.
	composerDraft  string
	composerLocked bool

	infoMessage  string
	quitting     bool
	flushStarted bool
}

func (m *model) newState() *session.State {
	return session.New(m.config.Timing, session.WithClock(m.config.Clock))
}

func (m *model) Init() tea.Cmd {
	if m.state.Active() {
		return tea.Batch(textarea.Blink, m.onEstablished())
	}
	m.infoMessage = "No workflow yet. Press ctrl+n to start a new session."
	return textarea.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout.Update(msg.Width, msg.Height)
		m.composer.SetWidth(m.layout.composerWidth)
		// SetHeight blurs the textarea.
		m.composer.SetHeight(m.layout.composerHeight)
		m.syncComposer()
		return m, nil
	case spinner.TickMsg:
		if m.animating() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	case callSignalMsg:
		m.running[msg.Snapshot.ID] = msg.Snapshot
		return m, nil
	case callResultEnvelope:
		delete(m.running, msg.Snapshot.ID)
		m.lastCall = msg.Snapshot
		if msg.Payload == nil {
			return m, nil
		}
		return m.Update(msg.Payload)
	case tea.KeyMsg:
		return m.handleKey(msg)
	case pollTickMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m, tea.Batch(pollTickCmd(m.gen, m.state.Timing().PollInterval), m.describe(tickPoll))
	case burstPollMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m, m.describe(tickBurst)
	case autosaveTickMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m, tea.Batch(autosaveTickCmd(m.gen, m.state.Timing().AutosaveInterval), m.save(false))
	case savingClearMsg:
		if msg.gen == m.gen {
			m.state.ClearSaving(msg.seq)
		}
		return m, nil
	case describeResultMsg:
		return m.handleDescribeResult(msg)
	case saveResultMsg:
		return m.handleSaveResult(msg)
	case submitResultMsg:
		return m.handleSubmitResult(msg)
	case startResultMsg:
		return m.handleStartResult(msg)
	case quitTimeoutMsg:
		if msg.gen == m.gen && m.quitting {
			m.logger.Warn("gave up waiting for final save", slog.Duration("timeout", flushTimeout))
			return m, m.quit()
		}
		return m, nil
	}
	// Cursor blinks and clipboard pastes belong to the composer.
	return m, m.updateComposer(msg)
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c", "esc":
		if m.quitting {
			return m, m.quit()
		}
		m.quitting = true
		return m, tea.Batch(quitTimeoutCmd(m.gen), m.flush())
	}
	if m.quitting {
		return m, nil
	}

	switch key.String() {
	case "ctrl+r":
		return m, m.submit()
	case "ctrl+s":
		return m, m.manualSave()
	case "ctrl+n":
		return m, m.startNewSession()
	case "ctrl+e":
		if m.composerLocked {
			m.unlockComposer()
			return m, nil
		}
	}
	return m, m.updateComposer(key)
}

// updateComposer forwards msg to the textarea and reports the result to the
// session only when msg changed the text.
func (m *model) updateComposer(msg tea.Msg) tea.Cmd {
	if m.quitting || m.composerLocked || !m.state.ComposeVisible() {
		return nil
	}
	before := m.composer.Value()
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	if after := m.composer.Value(); after != before {
		m.composerDraft = after
		m.state.OnEdit(after)
	}
	return cmd
}

// unlockComposer replaces a draft the composer cannot hold with the cleaned-up
// copy it shows, on the user's request.
func (m *model) unlockComposer() {
	cleaned := normalizeForComposer(m.state.LocalDraft)
	m.state.OnEdit(cleaned)
	m.composerDraft = cleaned
	m.composerLocked = false
	m.composer.SetValue(cleaned)
}

func (m *model) clearComposer() {
	m.composer.Reset()
	m.composerDraft = ""
	m.composerLocked = false
}

func (m *model) onEstablished() tea.Cmd {
	id := m.state.WorkflowID
	m.logger.Info("session established", slog.String("workflow_id", id), slog.Uint64("generation", m.gen))
	if err := m.config.Resume.Remember(m.config.Endpoint, id); err != nil {
		m.logger.Warn("remember workflow", slog.String("workflow_id", id), slog.String("error", err.Error()))
	}
	m.composer.Focus()
	timing := m.state.Timing()
	return tea.Batch(
		m.describe(""),
		pollTickCmd(m.gen, timing.PollInterval),
		autosaveTickCmd(m.gen, timing.AutosaveInterval),
	)
}

// describe starts a describe call unless one is already outstanding. kind
// names the timer that asked for it; the establishing describe passes "".
func (m *model) describe(kind string) tea.Cmd {
	isInitial, ok := m.state.BeginDescribe()
	if !ok {
		if kind != "" && m.state.Active() {
			m.config.Observer.TickSkipped(kind)
		}
		return nil
	}
	if kind != "" {
		m.config.Observer.TickFired(kind)
	}
	id := m.state.WorkflowID
	return m.bus.Start(workflow.OpDescribe, id, describeJob(m.config.Client, m.gen, id, isInitial))
}

func (m *model) save(manual bool) tea.Cmd {
	inFlight := m.state.SaveInFlight()
	ticket, ok := m.state.BeginSave(manual)
	if !ok {
		if !manual && inFlight {
			m.config.Observer.TickSkipped(tickAutosave)
		}
		return nil
	}
	if !manual {
		m.config.Observer.TickFired(tickAutosave)
	}
	id := m.state.WorkflowID
	return tea.Batch(m.spinner.Tick, m.bus.Start(workflow.OpSaveDraft, id, saveDraftJob(m.config.Client, m.gen, id, ticket)))
}

func (m *model) manualSave() tea.Cmd {
	if cmd := m.save(true); cmd != nil {
		m.infoMessage = ""
		return cmd
	}
	switch {
	case !m.state.Active():
		m.infoMessage = "No workflow yet. Press ctrl+n to start a new session."
	case m.state.SaveInFlight():
		m.infoMessage = "A save is already in progress."
	default:
		m.infoMessage = "Nothing new to save."
	}
	return nil
}

func (m *model) submit() tea.Cmd {
	text, ok := m.state.BeginSubmit()
	if !ok {
		m.infoMessage = m.submitBlockedReason()
		return nil
	}
	m.clearComposer()
	m.infoMessage = ""
	id := m.state.WorkflowID
	m.logger.Info("submitting request", slog.String("workflow_id", id), slog.Int("length", len(text)))
	return tea.Batch(m.spinner.Tick, m.bus.Start(workflow.OpRequest, id, requestJob(m.config.Client, m.gen, id, text)))
}

func (m *model) submitBlockedReason() string {
	switch {
	case !m.state.Active():
		return "No workflow yet. Press ctrl+n to start a new session."
	case m.state.Busy:
		return "A request is already being sent."
	case m.state.LocalDraft == "":
		return "Type a request first."
	case m.state.Snapshot == nil:
		return "Waiting for the workflow status."
	default:
		return fmt.Sprintf("The agent is %s; requests are accepted while it is waiting.", statusLabel(m.state.Status()))
	}
}

func (m *model) startNewSession() tea.Cmd {
	if m.state.RestartOffered() {
		m.restart()
	}
	if !m.state.CanStart() {
		if m.state.Busy && m.state.WorkflowID == "" {
			m.infoMessage = "Already starting a workflow."
		} else {
			m.infoMessage = "The current workflow is still running."
		}
		return nil
	}
	id := m.config.NewID()
	if !m.state.BeginStart(id) {
		return nil
	}
	m.infoMessage = ""
	return tea.Batch(m.spinner.Tick, m.bus.Start(workflow.OpStart, id, startJob(m.config.Client, m.gen, id)))
}

// restart tears down the finished session and replaces it with an empty one.
func (m *model) restart() {
	previous := m.state.WorkflowID
	if err := m.config.Resume.Forget(m.config.Endpoint); err != nil {
		m.logger.Warn("forget workflow", slog.String("workflow_id", previous), slog.String("error", err.Error()))
	}
	m.teardown()
	m.state = m.newState()
	m.clearComposer()
	m.logger.Info("session restarted", slog.String("previous_workflow_id", previous), slog.Uint64("generation", m.gen))
}

func (m *model) teardown() {
	m.state.Close()
	m.gen++
}

// flush issues the final manual save before quitting. An outstanding save
// is awaited first; its result calls back into flush.
func (m *model) flush() tea.Cmd {
	if m.state.SaveInFlight() {
		m.infoMessage = "Waiting for the current save before exit…"
		return nil
	}
	m.flushStarted = true
	if cmd := m.save(true); cmd != nil {
		m.infoMessage = "Saving draft before exit…"
		return cmd
	}
	return m.quit()
}

func (m *model) quit() tea.Cmd {
	m.teardown()
	m.logger.Info("quitting", slog.String("workflow_id", m.state.WorkflowID))
	return tea.Quit
}

func (m *model) handleDescribeResult(msg describeResultMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.gen {
		return m, nil
	}
	m.state.FinishDescribe(msg.isInitial, msg.snapshot, msg.err)
	m.syncComposer()
	return m, nil
}

func (m *model) handleSaveResult(msg saveResultMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.gen {
		return m, nil
	}
	delay, pending := m.state.FinishSave(msg.ticket, msg.err)
	if m.quitting {
		if !m.flushStarted {
			return m, m.flush()
		}
		return m, m.quit()
	}
	if pending {
		return m, savingClearCmd(m.gen, msg.ticket.Seq, delay)
	}
	return m, nil
}

func (m *model) handleSubmitResult(msg submitResultMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.gen {
		return m, nil
	}
	m.state.FinishSubmit(msg.err)
	if msg.err == nil {
		m.infoMessage = "Request sent. Refreshing status…"
	}
	// A failed request may still have reached the workflow.
	return m, m.burst()
}

// burst schedules one-shot describes at each configured offset after a
// submission resolves so the new status shows up quickly.
func (m *model) burst() tea.Cmd {
	var cmds []tea.Cmd
	for _, offset := range m.state.Timing().Burst {
		if offset <= 0 {
			cmds = append(cmds, m.describe(tickBurst))
			continue
		}
		cmds = append(cmds, burstPollCmd(m.gen, offset))
	}
	return tea.Batch(cmds...)
}

func (m *model) handleStartResult(msg startResultMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.gen {
		return m, nil
	}
	if !m.state.FinishStart(msg.workflowID, msg.err) {
		if msg.err != nil {
			m.infoMessage = "Press ctrl+n to try again."
		}
		return m, nil
	}
	m.infoMessage = ""
	return m, m.onEstablished()
}

// syncComposer loads the session draft into the textarea when the session
// changed it, and hides input once the workflow is finished. A draft the
// textarea would rewrite is shown read-only so the rewrite never reaches
// the session.
func (m *model) syncComposer() {
	if !m.state.ComposeVisible() {
		m.composer.Blur()
		return
	}
	if draft := m.state.LocalDraft; draft != m.composerDraft {
		m.composerDraft = draft
		m.composerLocked = !composerCanHold(draft)
		m.composer.SetValue(normalizeForComposer(draft))
	}
	if !m.composer.Focused() {
		m.composer.Focus()
	}
}

func (m *model) animating() bool {
	return m.state.Busy || m.state.Saving || m.quitting
}

var (
	titleStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	sectionHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	errorBannerStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("9")).Padding(0, 1)
	helperStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	fieldLabelStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147"))
	emailBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(0, 1)
	restartBoxStyle    = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("#7f5af0")).Padding(0, 2)
	taglineStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb347")).Italic(true)
	statusBarStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	keyStyle           = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	keyDescStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4"))
	deltaInsertStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#a3be8c"))
	deltaDeleteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#bf616a"))

	badgeBaseStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("#0f0f0f"))
	badgeColors    = map[workflow.Status]lipgloss.Color{
		workflow.StatusWaiting:    lipgloss.Color("#8ecae6"),
		workflow.StatusProcessing: lipgloss.Color("#ffd166"),
		workflow.StatusSent:       lipgloss.Color("#a3be8c"),
		workflow.StatusFailed:     lipgloss.Color("#bf616a"),
		workflow.StatusCanceled:   lipgloss.Color("#d08770"),
		workflow.StatusUnknown:    lipgloss.Color("#8f8f8f"),
	}
)
