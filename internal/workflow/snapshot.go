package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the server-reported lifecycle state of a workflow.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
	StatusUnknown    Status = "unknown"
)

// ParseStatus maps a wire value onto a known Status. Anything unrecognized
// becomes StatusUnknown.
func ParseStatus(raw string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusWaiting:
		return StatusWaiting
	case StatusProcessing:
		return StatusProcessing
	case StatusSent:
		return StatusSent
	case StatusFailed:
		return StatusFailed
	case StatusCanceled, "cancelled":
		return StatusCanceled
	default:
		return StatusUnknown
	}
}

// Terminal reports whether the workflow has finished and no longer accepts requests.
func (s Status) Terminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Snapshot is a point-in-time read of a workflow obtained via describe.
// Snapshots are replaced wholesale and never mutated after decoding.
type Snapshot struct {
	Status              Status
	CurrentRequest      string
	CurrentRequestDraft string
	ResponseID          string
	EmailRecipient      string
	EmailSubject        string
	EmailBody           string
	SendTimeSeconds     *int64
}

// SendTime returns the scheduled send instant, if any.
func (s Snapshot) SendTime() (time.Time, bool) {
	if s.SendTimeSeconds == nil {
		return time.Time{}, false
	}
	return time.Unix(*s.SendTimeSeconds, 0), true
}

// HasEmail reports whether the agent has produced any email content yet.
func (s Snapshot) HasEmail() bool {
	return s.EmailRecipient != "" || s.EmailSubject != "" || s.EmailBody != ""
}

type wireSnapshot struct {
	Status              *string `json:"status"`
	CurrentRequest      *string `json:"current_request"`
	CurrentRequestDraft *string `json:"current_request_draft"`
	ResponseID          *string `json:"response_id"`
	EmailRecipient      *string `json:"email_recipient"`
	EmailSubject        *string `json:"email_subject"`
	EmailBody           *string `json:"email_body"`
	SendTimeSeconds     *int64  `json:"send_time_seconds"`
}

// DecodeSnapshot parses a describe response body. The body must be a JSON object.
func DecodeSnapshot(body []byte) (Snapshot, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Snapshot{}, fmt.Errorf("describe body is not a JSON object (%d bytes)", len(trimmed))
	}
	var wire wireSnapshot
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode describe body: %w", err)
	}
	return Snapshot{
		Status:              ParseStatus(deref(wire.Status)),
		CurrentRequest:      deref(wire.CurrentRequest),
		CurrentRequestDraft: deref(wire.CurrentRequestDraft),
		ResponseID:          deref(wire.ResponseID),
		EmailRecipient:      deref(wire.EmailRecipient),
		EmailSubject:        deref(wire.EmailSubject),
		EmailBody:           deref(wire.EmailBody),
		SendTimeSeconds:     wire.SendTimeSeconds,
	}, nil
}

// MarshalJSON renders the snapshot in the describe wire format.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireSnapshot{
		Status:              ptr(string(s.Status)),
		CurrentRequest:      ptr(s.CurrentRequest),
		CurrentRequestDraft: ptr(s.CurrentRequestDraft),
		ResponseID:          ptr(s.ResponseID),
		EmailRecipient:      ptr(s.EmailRecipient),
		EmailSubject:        ptr(s.EmailSubject),
		EmailBody:           ptr(s.EmailBody),
		SendTimeSeconds:     s.SendTimeSeconds,
	})
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func ptr(value string) *string {
	return &value
}
