package tui

import (
	"github.com/charmbracelet/bubbles/runeutil"
	"github.com/charmbracelet/bubbles/textarea"
)

const lockedDraftNotice = "The saved draft has tabs or control characters the editor would rewrite. " +
	"ctrl+r sends it unchanged; ctrl+e edits a cleaned-up copy."

// composerSanitizer applies the same rewrite the textarea applies to inserted
// text: tabs become four spaces, each \r becomes a newline, other control
// characters are dropped.
var composerSanitizer = runeutil.NewSanitizer()

func newComposer() textarea.Model {
	composer := textarea.New()
	composer.Placeholder = "Describe the email you want, or how to revise it…"
	composer.ShowLineNumbers = false
	// The draft belongs to the workflow; the editor must never truncate it.
	composer.CharLimit = 0
	composer.MaxHeight = 0
	composer.MaxWidth = 0
	composer.SetWidth(76)
	composer.SetHeight(4)
	return composer
}

// normalizeForComposer returns text as the composer would store it.
func normalizeForComposer(text string) string {
	return string(composerSanitizer.Sanitize([]rune(text)))
}

// composerCanHold reports whether the composer would store text unchanged.
func composerCanHold(text string) bool {
	return normalizeForComposer(text) == text
}
