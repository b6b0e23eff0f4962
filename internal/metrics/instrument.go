package metrics

import (
	"context"
	"time"

	"github.com/csheth/mailpilot/internal/workflow"
)

type instrumented struct {
	next workflow.Client
	rec  *Recorder
	now  func() time.Time
}

// Instrument wraps client so every call is counted and timed. With a nil
// recorder the client is returned unchanged.
func Instrument(client workflow.Client, rec *Recorder) workflow.Client {
	if rec == nil || client == nil {
		return client
	}
	return &instrumented{next: client, rec: rec, now: time.Now}
}

func (c *instrumented) observe(op workflow.Op, started time.Time, err error) {
	c.rec.ObserveCall(op, c.now().Sub(started), err)
}

func (c *instrumented) Start(ctx context.Context, id string) error {
	started := c.now()
	err := c.next.Start(ctx, id)
	c.observe(workflow.OpStart, started, err)
	return err
}

func (c *instrumented) Describe(ctx context.Context, id string) (workflow.Snapshot, error) {
	started := c.now()
	snap, err := c.next.Describe(ctx, id)
	c.observe(workflow.OpDescribe, started, err)
	return snap, err
}

func (c *instrumented) Request(ctx context.Context, id, text string) error {
	started := c.now()
	err := c.next.Request(ctx, id, text)
	c.observe(workflow.OpRequest, started, err)
	return err
}

func (c *instrumented) SaveDraft(ctx context.Context, id, text string) error {
	started := c.now()
	err := c.next.SaveDraft(ctx, id, text)
	c.observe(workflow.OpSaveDraft, started, err)
	return err
}
