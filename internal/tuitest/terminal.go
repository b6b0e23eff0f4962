package tuitest

import (
	"bytes"
	"io"
)

// terminalQuery pairs a query the program may emit with the reply a real
// terminal would send back. Without replies bubbletea and termenv stall
// waiting on cursor position and color queries.
type terminalQuery struct {
	query []byte
	reply []byte
}

var terminalQueries = []terminalQuery{
	{[]byte("\x1b[6n"), []byte("\x1b[1;1R")},
	{[]byte("\x1b[c"), []byte("\x1b[?62;22c")},
	{[]byte("\x1b]10;?\x07"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x07")},
	{[]byte("\x1b]10;?\x1b\\"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x1b\\")},
	{[]byte("\x1b]11;?\x07"), []byte("\x1b]11;rgb:0000/0000/0000\x07")},
	{[]byte("\x1b]11;?\x1b\\"), []byte("\x1b]11;rgb:0000/0000/0000\x1b\\")},
}

const (
	responderMaxBuffer = 256
	responderTail      = 64
)

type terminalResponder struct {
	w   io.Writer
	buf []byte
}

func newTerminalResponder(w io.Writer) *terminalResponder {
	return &terminalResponder{w: w, buf: make([]byte, 0, 128)}
}

func (tr *terminalResponder) Process(chunk []byte) {
	tr.buf = append(tr.buf, chunk...)
	for tr.answerNext() {
	}
	// Keep a small tail so sequences split across reads are still seen.
	if len(tr.buf) > responderMaxBuffer {
		tr.buf = tr.buf[len(tr.buf)-responderTail:]
	}
}

// answerNext replies to the earliest pending query in the buffer.
func (tr *terminalResponder) answerNext() bool {
	first, at := -1, -1
	for i, q := range terminalQueries {
		idx := bytes.Index(tr.buf, q.query)
		if idx >= 0 && (at < 0 || idx < at) {
			first, at = i, idx
		}
	}
	if first < 0 {
		return false
	}
	q := terminalQueries[first]
	tr.buf = tr.buf[at+len(q.query):]
	_, _ = tr.w.Write(q.reply)
	return true
}
