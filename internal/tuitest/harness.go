// Package tuitest drives the mailpilot binary inside a pseudo terminal and
// records what it draws.
package tuitest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
)

const (
	defaultWidth   = 100
	defaultHeight  = 40
	defaultTimeout = 10 * time.Second
	pollEvery      = 25 * time.Millisecond
)

// Step is one scripted interaction. Fields apply in order: wait Delay, then
// wait until the screen output contains WaitFor, then write Input.
type Step struct {
	Delay   time.Duration
	WaitFor string
	Input   []byte
}

// Type returns a step that writes text as typed input.
func Type(text string) Step {
	return Step{Input: []byte(text)}
}

// Press returns a step that writes a key sequence.
func Press(key []byte) Step {
	return Step{Input: key}
}

// WaitFor returns a step that blocks until text appears in the output.
func WaitFor(text string) Step {
	return Step{WaitFor: text}
}

// Config configures how the harness spawns and drives the program.
type Config struct {
	Command          []string
	Dir              string
	Env              []string
	Width            int
	Height           int
	Steps            []Step
	Timeout          time.Duration
	AllowedExitCodes []int
	AllowInterrupt   bool
}

// Recording contains the raw terminal stream plus parsed frames.
type Recording struct {
	Raw      []byte
	Frames   []Frame
	Duration time.Duration
}

// screen collects PTY output while the script reads it concurrently.
type screen struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *screen) Write(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.buf.Write(p)
}

func (s *screen) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

func (s *screen) Contains(text string) bool {
	return strings.Contains(stripANSI(string(s.Bytes())), text)
}

// Run executes the configured command inside a PTY, replays the scripted
// steps, and captures every byte written to the terminal.
func Run(ctx context.Context, cfg Config) (*Recording, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("tuitest: command is required")
	}
	width := cfg.Width
	if width <= 0 {
		width = defaultWidth
	}
	height := cfg.Height
	if height <= 0 {
		height = defaultHeight
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.Dir
	cmd.Env = buildEnv(cfg.Env)

	allowedCodes := map[int]struct{}{0: {}}
	for _, code := range cfg.AllowedExitCodes {
		allowedCodes[code] = struct{}{}
	}

	winsize := &pty.Winsize{Rows: uint16(height), Cols: uint16(width)}
	ptmx, err := pty.StartWithSize(cmd, winsize)
	if err != nil {
		return nil, fmt.Errorf("tuitest: start program: %w", err)
	}
	defer func() { _ = ptmx.Close() }()

	out := &screen{}
	copyDone := make(chan struct{})
	go func() {
		defer close(copyDone)
		responder := newTerminalResponder(ptmx)
		buf := make([]byte, 4096)
		for {
			n, readErr := ptmx.Read(buf)
			if n > 0 {
				chunk := buf[:n]
				responder.Process(chunk)
				out.Write(chunk)
			}
			if readErr != nil {
				return
			}
		}
	}()

	start := time.Now()
	for i, step := range cfg.Steps {
		if err := runStep(ctx, ptmx, out, step); err != nil {
			return &Recording{Raw: out.Bytes(), Frames: parseFrames(out.Bytes()), Duration: time.Since(start)},
				fmt.Errorf("tuitest: step %d: %w", i, err)
		}
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case err := <-waitErr:
		if err != nil && !exitAllowed(err, allowedCodes, cfg.AllowInterrupt) {
			return nil, fmt.Errorf("tuitest: program exited with error: %w", err)
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("tuitest: timeout waiting for program exit: %w", ctx.Err())
	}

	// Closing the PTY lets the reader goroutine finish draining.
	_ = ptmx.Close()
	<-copyDone

	raw := out.Bytes()
	return &Recording{Raw: raw, Frames: parseFrames(raw), Duration: time.Since(start)}, nil
}

func runStep(ctx context.Context, ptmx *os.File, out *screen, step Step) error {
	if step.Delay > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during delay: %w", ctx.Err())
		case <-time.After(step.Delay):
		}
	}
	if step.WaitFor != "" {
		ticker := time.NewTicker(pollEvery)
		defer ticker.Stop()
		for !out.Contains(step.WaitFor) {
			select {
			case <-ctx.Done():
				return fmt.Errorf("waiting for %q: %w", step.WaitFor, ctx.Err())
			case <-ticker.C:
			}
		}
	}
	if len(step.Input) > 0 {
		if _, err := ptmx.Write(step.Input); err != nil {
			return fmt.Errorf("write input: %w", err)
		}
	}
	return nil
}

func exitAllowed(err error, allowed map[int]struct{}, allowInterrupt bool) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if _, ok := allowed[exitErr.ExitCode()]; ok {
			return true
		}
	}
	return allowInterrupt && strings.Contains(err.Error(), "signal: interrupt")
}

func buildEnv(extra []string) []string {
	env := os.Environ()
	env = append(env, extra...)
	termSet := false
	for _, entry := range env {
		if strings.HasPrefix(entry, "TERM=") {
			termSet = true
			break
		}
	}
	if !termSet {
		env = append(env, "TERM=xterm-256color")
	}
	return env
}

var (
	KeyEnter = []byte{'\r'}
	KeyEsc   = []byte{27}
	KeyCtrlC = []byte{3}
	KeyCtrlN = []byte{14}
	KeyCtrlR = []byte{18}
	KeyCtrlS = []byte{19}
)
