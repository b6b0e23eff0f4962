package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"waiting", StatusWaiting},
		{" Processing ", StatusProcessing},
		{"sent", StatusSent},
		{"failed", StatusFailed},
		{"canceled", StatusCanceled},
		{"cancelled", StatusCanceled},
		{"initialized", StatusUnknown},
		{"", StatusUnknown},
		{"exploded", StatusUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseStatus(tt.in), "ParseStatus(%q)", tt.in)
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, status := range []Status{StatusSent, StatusFailed, StatusCanceled} {
		assert.True(t, status.Terminal(), "%s should be terminal", status)
	}
	for _, status := range []Status{StatusWaiting, StatusProcessing, StatusUnknown} {
		assert.False(t, status.Terminal(), "%s should not be terminal", status)
	}
}

func TestDecodeSnapshotDefaultsMissingFields(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(`  {"status":"sent","email_subject":"Hi"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusSent, snap.Status)
	assert.Equal(t, "Hi", snap.EmailSubject)
	assert.Empty(t, snap.EmailRecipient)
	assert.Empty(t, snap.CurrentRequestDraft)
	_, scheduled := snap.SendTime()
	assert.False(t, scheduled)
	assert.True(t, snap.HasEmail())
}

func TestDecodeSnapshotRejectsNonObjects(t *testing.T) {
	for _, body := range []string{"", "null", "[]", `"waiting"`, "not json"} {
		_, err := DecodeSnapshot([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

func TestSnapshotMarshalUsesWireKeys(t *testing.T) {
	seconds := int64(42)
	raw, err := json.Marshal(Snapshot{Status: StatusWaiting, CurrentRequestDraft: "d", SendTimeSeconds: &seconds})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "waiting", fields["status"])
	assert.Equal(t, "d", fields["current_request_draft"])
	assert.Equal(t, float64(42), fields["send_time_seconds"])

	back, err := DecodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, "d", back.CurrentRequestDraft)
}

func TestIDs(t *testing.T) {
	id := NewID()
	assert.True(t, LooksGenerated(id))
	assert.NotEqual(t, id, NewID())
	assert.False(t, LooksGenerated("test"))

	got, err := NormalizeID("  abc ")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	_, err = NormalizeID("   ")
	assert.ErrorIs(t, err, ErrEmptyID)
}
