package tuitest

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Frame is the screen as it looked right before a repaint started.
type Frame struct {
	Index int
	// ANSI holds the raw output that produced this frame since the previous one.
	ANSI  string
	Plain string
}

var (
	csiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	oscPattern = regexp.MustCompile(`\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)
)

// parseFrames replays raw terminal output on a virtual screen. bubbletea
// repaints in place: it walks the cursor up over the previous render,
// clearing only lines that changed, and skips the rest. A frame is captured
// whenever something starts erasing text written since the last capture,
// and once more at the end of the output.
func parseFrames(raw []byte) []Frame {
	vs := &virtualScreen{}
	s := string(raw)
	for i := 0; i < len(s); {
		n := 1
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == 0x1b:
			n = vs.escape(s[i:])
		case r == '\r':
			vs.col = 0
		case r == '\n':
			vs.row++
		case r == '\b':
			if vs.col > 0 {
				vs.col--
			}
		case r == utf8.RuneError && size == 1:
		case unicode.IsControl(r):
			n = size
		default:
			vs.put(r)
			n = size
		}
		vs.segment.WriteString(s[i : i+n])
		i += n
	}
	vs.capture()
	return vs.frames
}

type virtualScreen struct {
	lines    [][]rune
	row, col int
	// dirty is set by writes and cleared by capture.
	dirty   bool
	segment strings.Builder
	frames  []Frame
}

func (vs *virtualScreen) put(r rune) {
	for len(vs.lines) <= vs.row {
		vs.lines = append(vs.lines, nil)
	}
	line := vs.lines[vs.row]
	for len(line) < vs.col {
		line = append(line, ' ')
	}
	if vs.col < len(line) {
		line[vs.col] = r
	} else {
		line = append(line, r)
	}
	vs.lines[vs.row] = line
	vs.col++
	vs.dirty = true
}

func (vs *virtualScreen) capture() {
	if !vs.dirty {
		return
	}
	vs.dirty = false
	rows := make([]string, len(vs.lines))
	for i, line := range vs.lines {
		rows[i] = string(line)
	}
	plain := normalizeLines(strings.Join(rows, "\n"))
	if strings.TrimSpace(plain) == "" {
		return
	}
	vs.frames = append(vs.frames, Frame{Index: len(vs.frames), ANSI: vs.segment.String(), Plain: plain})
	vs.segment.Reset()
}

func (vs *virtualScreen) clearAll() {
	vs.lines = nil
	vs.row, vs.col = 0, 0
}

// escape applies the sequence at the start of s and returns its length.
func (vs *virtualScreen) escape(s string) int {
	if len(s) < 2 {
		return len(s)
	}
	switch s[1] {
	case '[':
		j := 2
		for j < len(s) && s[j] >= 0x20 && s[j] <= 0x3f {
			j++
		}
		if j >= len(s) {
			return len(s)
		}
		vs.csi(s[2:j], s[j])
		return j + 1
	case ']':
		if loc := oscPattern.FindStringIndex(s); loc != nil && loc[0] == 0 {
			return loc[1]
		}
		return len(s)
	default:
		return 2
	}
}

func (vs *virtualScreen) csi(params string, final byte) {
	private := strings.HasPrefix(params, "?")
	var args []int
	for _, field := range strings.Split(strings.TrimPrefix(params, "?"), ";") {
		n, _ := strconv.Atoi(field)
		args = append(args, n)
	}
	arg := func(i, def int) int {
		if i < len(args) && args[i] > 0 {
			return args[i]
		}
		return def
	}

	switch final {
	case 'A':
		vs.capture()
		vs.row = max(0, vs.row-arg(0, 1))
	case 'B':
		vs.row += arg(0, 1)
	case 'C':
		vs.col += arg(0, 1)
	case 'D':
		vs.col = max(0, vs.col-arg(0, 1))
	case 'G':
		vs.col = arg(0, 1) - 1
	case 'H', 'f':
		vs.row, vs.col = arg(0, 1)-1, arg(1, 1)-1
	case 'K':
		vs.capture()
		if vs.row >= len(vs.lines) {
			return
		}
		line := vs.lines[vs.row]
		switch args[0] {
		case 0:
			if vs.col < len(line) {
				vs.lines[vs.row] = line[:vs.col]
			}
		case 1:
			for i := 0; i < len(line) && i <= vs.col; i++ {
				line[i] = ' '
			}
		default:
			vs.lines[vs.row] = nil
		}
	case 'J':
		vs.capture()
		if args[0] == 0 && vs.row < len(vs.lines) {
			if vs.col < len(vs.lines[vs.row]) {
				vs.lines[vs.row] = vs.lines[vs.row][:vs.col]
			}
			vs.lines = vs.lines[:vs.row+1]
			return
		}
		row, col := vs.row, vs.col
		vs.clearAll()
		vs.row, vs.col = row, col
	case 'h', 'l':
		if private {
			switch args[0] {
			case 47, 1047, 1049:
				vs.capture()
				vs.clearAll()
			}
		}
	}
}

// FinalFrame returns the last captured frame. The second return value is false
// when no frames were recorded.
func (r *Recording) FinalFrame() (Frame, bool) {
	if r == nil || len(r.Frames) == 0 {
		return Frame{}, false
	}
	return r.Frames[len(r.Frames)-1], true
}

// Contains reports whether any frame shows text.
func (r *Recording) Contains(text string) bool {
	_, ok := r.FrameContaining(text)
	return ok
}

// FrameContaining returns the first frame whose plain text includes text.
func (r *Recording) FrameContaining(text string) (Frame, bool) {
	if r == nil {
		return Frame{}, false
	}
	for _, frame := range r.Frames {
		if strings.Contains(frame.Plain, text) {
			return frame, true
		}
	}
	return Frame{}, false
}

// stripANSI drops escape sequences so streamed output can be searched as text.
func stripANSI(s string) string {
	s = oscPattern.ReplaceAllString(s, "")
	s = csiPattern.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		if r == '\n' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, s)
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
