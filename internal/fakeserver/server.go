// Package fakeserver serves the /api/ai-agent surface from memory. It follows
// the lifecycle of the email agent workflow closely enough for local
// development and end-to-end tests.
package fakeserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/csheth/mailpilot/internal/workflow"
)

const (
	statusInitialized = "initialized"

	// DefaultProcessDelay is how long a request stays in processing.
	DefaultProcessDelay = 2 * time.Second
	defaultRecipient    = "someone@example.com"
	maxSubjectRunes     = 60
)

// record holds the data attributes of one workflow.
type record struct {
	status         string
	currentRequest string
	requestDraft   string
	responseID     string
	recipient      string
	subject        string
	body           string
	scheduledTime  *int64
	requests       int
}

func (r *record) snapshot() workflow.Snapshot {
	return workflow.Snapshot{
		Status:              workflow.Status(r.status),
		CurrentRequest:      r.currentRequest,
		CurrentRequestDraft: r.requestDraft,
		ResponseID:          r.responseID,
		EmailRecipient:      r.recipient,
		EmailSubject:        r.subject,
		EmailBody:           r.body,
		SendTimeSeconds:     r.scheduledTime,
	}
}

// Scheduler runs f after d. Tests substitute a manual scheduler.
type Scheduler func(d time.Duration, f func())

func afterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

type Option func(*Server)

func WithProcessDelay(d time.Duration) Option {
	return func(s *Server) {
		if d >= 0 {
			s.processDelay = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithScheduler(schedule Scheduler) Option {
	return func(s *Server) {
		if schedule != nil {
			s.schedule = schedule
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server is an in-memory workflow backend.
type Server struct {
	mu           sync.Mutex
	workflows    map[string]*record
	processDelay time.Duration
	logger       *slog.Logger
	schedule     Scheduler
	now          func() time.Time
}

func New(opts ...Option) *Server {
	s := &Server{
		workflows:    make(map[string]*record),
		processDelay: DefaultProcessDelay,
		logger:       slog.Default(),
		schedule:     afterFunc,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler routes the four workflow operations.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ai-agent/start", s.handleStart)
	mux.HandleFunc("GET /api/ai-agent/describe", s.handleDescribe)
	mux.HandleFunc("GET /api/ai-agent/request", s.handleRequest)
	mux.HandleFunc("GET /api/ai-agent/save_draft", s.handleSaveDraft)
	return mux
}

// ListenAndServe serves on addr until ctx is done. ready, when non-nil,
// receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	if ready != nil {
		ready(ln.Addr())
	}
	s.logger.Info("fake workflow server listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	if _, exists := s.workflows[id]; exists {
		s.mu.Unlock()
		http.Error(w, "workflow already started", http.StatusConflict)
		return
	}
	s.workflows[id] = &record{status: statusInitialized}
	s.mu.Unlock()

	s.logger.Info("workflow started", slog.String("workflow_id", id))
	s.schedule(0, func() { s.enterAgentState(id) })
	writeText(w, "workflow started")
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	rec, exists := s.workflows[id]
	var snap workflow.Snapshot
	if exists {
		snap = rec.snapshot()
	}
	s.mu.Unlock()

	if !exists {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Warn("encode describe response", slog.String("error", err.Error()))
	}
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}
	text := r.URL.Query().Get("request")
	if strings.TrimSpace(text) == "" {
		http.Error(w, "request is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	rec, exists := s.workflows[id]
	if !exists {
		s.mu.Unlock()
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}
	if rec.status != string(workflow.StatusWaiting) {
		status := rec.status
		s.mu.Unlock()
		http.Error(w, fmt.Sprintf("workflow is %s", status), http.StatusConflict)
		return
	}
	rec.status = string(workflow.StatusProcessing)
	rec.currentRequest = text
	rec.requestDraft = ""
	rec.requests++
	seq := rec.requests
	s.mu.Unlock()

	s.logger.Info("request accepted", slog.String("workflow_id", id), slog.Int("request", seq))
	s.schedule(s.processDelay, func() { s.process(id, seq, text) })
	writeText(w, "request accepted")
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(w, r)
	if !ok {
		return
	}
	draft := r.URL.Query().Get("draft")

	s.mu.Lock()
	rec, exists := s.workflows[id]
	if exists {
		rec.requestDraft = draft
	}
	s.mu.Unlock()

	if !exists {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}
	writeText(w, "draft saved")
}

func (s *Server) enterAgentState(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.workflows[id]; ok && rec.status == statusInitialized {
		rec.status = string(workflow.StatusWaiting)
	}
}

// process completes request seq for workflow id.
func (s *Server) process(id string, seq int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.workflows[id]
	if !ok || rec.requests != seq || rec.status != string(workflow.StatusProcessing) {
		return
	}
	rec.responseID = "resp_" + uuid.NewString()

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "cancel"):
		rec.status = string(workflow.StatusCanceled)
	case strings.Contains(lower, "send"):
		sendAt := s.now().Unix()
		rec.scheduledTime = &sendAt
		if !rec.hasEmail() {
			rec.compose(text)
		}
		rec.status = string(workflow.StatusSent)
	default:
		rec.compose(text)
		rec.status = string(workflow.StatusWaiting)
	}
	s.logger.Info("request processed", slog.String("workflow_id", id), slog.String("status", rec.status))
}

func (r *record) hasEmail() bool {
	return r.recipient != "" || r.subject != "" || r.body != ""
}

// compose drafts an email from the request text. A request naming an address
// changes the recipient; otherwise the previous recipient is kept.
func (r *record) compose(text string) {
	if addr := findAddress(text); addr != "" {
		r.recipient = addr
	} else if r.recipient == "" {
		r.recipient = defaultRecipient
	}
	r.subject = subjectFrom(text)
	r.body = fmt.Sprintf("Hello,\n\n%s\n\nBest regards", strings.TrimSpace(text))
}

func findAddress(text string) string {
	for _, field := range strings.Fields(text) {
		field = strings.Trim(field, " ,.;:()<>\"'")
		at := strings.Index(field, "@")
		if at > 0 && at < len(field)-1 && strings.Contains(field[at:], ".") {
			return field
		}
	}
	return ""
}

func subjectFrom(text string) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(text), "\n", 2)[0])
	runes := []rune(line)
	if len(runes) > maxSubjectRunes {
		line = strings.TrimSpace(string(runes[:maxSubjectRunes])) + "..."
	}
	if line == "" {
		return "(no subject)"
	}
	return line
}

func workflowID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("workflowId"))
	if id == "" {
		http.Error(w, "workflowId is required", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, text)
}
