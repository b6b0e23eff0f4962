package tui

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type pageLayout struct {
	windowWidth    int
	windowHeight   int
	composerWidth  int
	composerHeight int
	previewWidth   int
}

func newPageLayout() pageLayout {
	return pageLayout{
		composerWidth:  76,
		composerHeight: 4,
		previewWidth:   72,
	}
}

func (l *pageLayout) Update(width, height int) {
	l.windowWidth = width
	l.windowHeight = height
	inner := width - composerHorizontalMargin
	if inner < minComposerWidth {
		inner = minComposerWidth
	}
	l.composerWidth = inner
	// Border and padding of the email box take four columns.
	l.previewWidth = inner - 4
	switch {
	case height >= 40:
		l.composerHeight = 8
	case height >= 28:
		l.composerHeight = 5
	default:
		l.composerHeight = 3
	}
}

type draftDelta struct {
	inserted int
	deleted  int
}

// computeDraftDelta counts runes added and removed going from saved to local.
func computeDraftDelta(saved, local string) draftDelta {
	var delta draftDelta
	if saved == local {
		return delta
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(saved, local, false)
	for _, diff := range diffs {
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			delta.inserted += utf8.RuneCountInString(diff.Text)
		case diffmatchpatch.DiffDelete:
			delta.deleted += utf8.RuneCountInString(diff.Text)
		}
	}
	return delta
}

func indentMultiline(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// clipLines keeps at most limit lines and marks the cut.
func clipLines(text string, limit int) string {
	lines := strings.Split(text, "\n")
	if limit <= 0 || len(lines) <= limit {
		return text
	}
	return strings.Join(lines[:limit], "\n") + "\n…"
}
