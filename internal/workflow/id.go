package workflow

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrEmptyID is returned when a workflow id is blank.
var ErrEmptyID = errors.New("workflow id is empty")

// NewID returns a fresh random workflow identity in UUID v4 form.
func NewID() string {
	return uuid.NewString()
}

// NormalizeID trims surrounding whitespace and rejects blank ids.
func NormalizeID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrEmptyID
	}
	return id, nil
}

// LooksGenerated reports whether id has the shape produced by NewID.
func LooksGenerated(id string) bool {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.Version() == 4 && parsed.Variant() == uuid.RFC4122
}
