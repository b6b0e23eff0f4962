package fakeserver

import (
	"context"
	"net"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csheth/mailpilot/internal/logging"
	"github.com/csheth/mailpilot/internal/workflow"
)

// manualScheduler queues scheduled work until run is called.
type manualScheduler struct {
	mu      sync.Mutex
	pending []func()
	delays  []time.Duration
}

func (m *manualScheduler) schedule(d time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, f)
	m.delays = append(m.delays, d)
}

func (m *manualScheduler) run() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, f := range pending {
		f()
	}
}

type fixture struct {
	sched  *manualScheduler
	client *workflow.HTTPClient
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	sched := &manualScheduler{}
	srv := New(
		WithLogger(logging.Nop()),
		WithScheduler(sched.schedule),
		WithProcessDelay(3*time.Second),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := workflow.NewHTTPClient(workflow.Config{Endpoint: ts.URL})
	require.NoError(t, err)
	return fixture{sched: sched, client: client}
}

func TestStartMovesFromInitializedToWaiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.client.Start(ctx, "wf-1"))
	snap, err := f.client.Describe(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusUnknown, snap.Status, "initialized is not a client status")

	f.sched.run()
	snap, err = f.client.Describe(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusWaiting, snap.Status)
	assert.False(t, snap.HasEmail())
}

func TestStartTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.client.Start(ctx, "wf-1"))
	err := f.client.Start(ctx, "wf-1")
	require.Error(t, err)
	assert.Equal(t, workflow.ServerError, workflow.KindOf(err))
}

func TestUnknownWorkflowIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.Describe(ctx, "missing")
	var remote *workflow.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 404, remote.StatusCode)

	assert.Error(t, f.client.SaveDraft(ctx, "missing", "x"))
	assert.Error(t, f.client.Request(ctx, "missing", "x"))
}

func TestRequestGeneratesEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.client.Start(ctx, "wf-1"))
	f.sched.run()

	require.NoError(t, f.client.SaveDraft(ctx, "wf-1", "Invite bob@example.com"))
	snap, err := f.client.Describe(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Invite bob@example.com", snap.CurrentRequestDraft)

	require.NoError(t, f.client.Request(ctx, "wf-1", "Invite bob@example.com to lunch on Friday"))
	snap, err = f.client.Describe(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusProcessing, snap.Status)
	assert.Equal(t, "Invite bob@example.com to lunch on Friday", snap.CurrentRequest)
	assert.Empty(t, snap.CurrentRequestDraft, "a request consumes the stored draft")
	assert.Equal(t, []time.Duration{0, 3 * time.Second}, f.sched.delays)

	f.sched.run()
	snap, err = f.client.Describe(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusWaiting, snap.Status)
	assert.Equal(t, "bob@example.com", snap.EmailRecipient)
	assert.Equal(t, "Invite bob@example.com to lunch on Friday", snap.EmailSubject)
	assert.Contains(t, snap.EmailBody, "lunch on Friday")
	assert.NotEmpty(t, snap.ResponseID)
	assert.Nil(t, snap.SendTimeSeconds)
}

func TestRequestWhileProcessingConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.client.Start(ctx, "wf-1"))
	f.sched.run()

	require.NoError(t, f.client.Request(ctx, "wf-1", "draft something"))
	err := f.client.Request(ctx, "wf-1", "again")
	var remote *workflow.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 409, remote.StatusCode)
}

func TestSendAndCancelAreTerminal(t *testing.T) {
	tests := []struct {
		name     string
		request  string
		status   workflow.Status
		sendTime bool
	}{
		{"send", "Looks good, send it", workflow.StatusSent, true},
		{"cancel", "Cancel this please", workflow.StatusCanceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.client.Start(ctx, "wf"))
			f.sched.run()

			require.NoError(t, f.client.Request(ctx, "wf", tt.request))
			f.sched.run()

			snap, err := f.client.Describe(ctx, "wf")
			require.NoError(t, err)
			assert.Equal(t, tt.status, snap.Status)
			assert.True(t, snap.Status.Terminal())
			_, scheduled := snap.SendTime()
			assert.Equal(t, tt.sendTime, scheduled)

			assert.Error(t, f.client.Request(ctx, "wf", "one more"), "terminal workflows reject requests")
		})
	}
}

func TestMissingParametersAreBadRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.client.Start(ctx, " ")
	var remote *workflow.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 400, remote.StatusCode)

	require.NoError(t, f.client.Start(ctx, "wf"))
	f.sched.run()
	err = f.client.Request(ctx, "wf", "  ")
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 400, remote.StatusCode)
}

func TestSubjectFromTruncatesLongLines(t *testing.T) {
	long := "Please write a very long subject line that keeps going well past the limit we allow"
	got := subjectFrom(long + "\nsecond line")
	assert.LessOrEqual(t, len([]rune(got)), maxSubjectRunes+3)
	assert.True(t, len(got) > 3 && got[len(got)-3:] == "...")
	assert.Equal(t, "(no subject)", subjectFrom("   "))
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	srv := New(WithLogger(logging.Nop()))
	ctx, cancel := context.WithCancel(context.Background())

	addrCh := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- srv.ListenAndServe(ctx, "127.0.0.1:0", func(a net.Addr) { addrCh <- a.String() })
	}()

	addr := <-addrCh
	client, err := workflow.NewHTTPClient(workflow.Config{Endpoint: "http://" + addr})
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background(), "wf"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
