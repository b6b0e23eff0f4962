package session

import (
	"errors"
	"fmt"
	"time"
)

// Timing holds the schedule of the three timers that drive a session.
type Timing struct {
	// PollInterval is the steady describe cadence.
	PollInterval time.Duration
	// AutosaveInterval is how often the local draft is compared against the last save.
	AutosaveInterval time.Duration
	// MinSavingVisible is the shortest time the saving indicator stays on for a timed save.
	MinSavingVisible time.Duration
	// Burst lists one-shot describe offsets fired after a request submission resolves.
	Burst []time.Duration
}

// DefaultTiming returns the standard schedule: poll every 3s, autosave every 5s,
// a 2s saving indicator and a 0/1/3/6s burst after submissions.
func DefaultTiming() Timing {
	return Timing{
		PollInterval:     3 * time.Second,
		AutosaveInterval: 5 * time.Second,
		MinSavingVisible: 2 * time.Second,
		Burst:            []time.Duration{0, time.Second, 3 * time.Second, 6 * time.Second},
	}
}

// Validate checks that every interval is usable.
func (t Timing) Validate() error {
	if t.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if t.AutosaveInterval <= 0 {
		return errors.New("autosave interval must be positive")
	}
	if t.MinSavingVisible < 0 {
		return errors.New("minimum saving indicator duration cannot be negative")
	}
	for i, offset := range t.Burst {
		if offset < 0 {
			return fmt.Errorf("burst offset %d is negative (%s)", i, offset)
		}
	}
	return nil
}
