package stream

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// TabStatus is the command lifecycle state of one tab.
type TabStatus int

const (
	// StatusIdle means no command is in flight.
	StatusIdle TabStatus = iota
	// StatusRunning means a submitted command has not completed yet.
	StatusRunning
	// StatusSuccess means the last command completed without a known failure.
	StatusSuccess
	// StatusError means the last command reported a non-zero exit code.
	StatusError
)

func (s TabStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// CommandInfo describes one attempted shell command. It is created when a
// submitted input line is observed and finalized once when completion is
// detected; it is never mutated afterward.
type CommandInfo struct {
	// Command is the trimmed command text as typed.
	Command string
	// StartedAt is when the command line was submitted.
	StartedAt time.Time
	// EndedAt is zero until the command completes.
	EndedAt time.Time
	// ExitCode is set only when an exit indicator was seen in the output.
	ExitCode *int
	// Duration is EndedAt - StartedAt, zero until finalized.
	Duration time.Duration
}

// exitCodeRegex picks up the few exit indicators shells and wrappers actually
// echo. Exit codes are usually unavailable for a shell wrapping a nested
// agent, so this is a best-effort enhancement, not the completion signal.
var exitCodeRegex = regexp.MustCompile(`\[exit (\d+)\]|exited with code (\d+)|\bexit (\d+)\b`)

const defaultIdleResetDelay = 3 * time.Second

// LifecycleDetector drives the per-tab command lifecycle state machine
// (idle -> running -> success|error -> idle) from the echoed input and the
// output stream. Completion is inferred from shell-prompt patterns in the
// output, not from process exit codes.
//
// All methods are safe for concurrent use, though a tab's pipeline normally
// calls them from a single goroutine in chunk arrival order.
type LifecycleDetector struct {
	mu sync.Mutex

	lib            *PatternLibrary
	now            func() time.Time
	idleResetDelay time.Duration
	onTransition   func(TabStatus, *CommandInfo)

	status     TabStatus
	current    *CommandInfo
	pending    strings.Builder // input bytes not yet terminated by CR/LF
	finishedAt time.Time
}

// LifecycleOption configures a LifecycleDetector.
type LifecycleOption func(*LifecycleDetector)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) LifecycleOption {
	return func(d *LifecycleDetector) { d.now = now }
}

// WithIdleResetDelay sets how long a success/error outcome stays visible
// before the tab returns to idle.
func WithIdleResetDelay(delay time.Duration) LifecycleOption {
	return func(d *LifecycleDetector) { d.idleResetDelay = delay }
}

// NewLifecycleDetector creates a detector in the idle state.
func NewLifecycleDetector(lib *PatternLibrary, opts ...LifecycleOption) *LifecycleDetector {
	d := &LifecycleDetector{
		lib:            lib,
		now:            time.Now,
		idleResetDelay: defaultIdleResetDelay,
		status:         StatusIdle,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnTransition registers a callback fired on every status change, with a copy
// of the current command (nil if none). The callback runs synchronously under
// the detector's lock; it must not call back into the detector.
func (d *LifecycleDetector) OnTransition(fn func(TabStatus, *CommandInfo)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onTransition = fn
}

// InputChunk feeds text written by the user into the session. A carriage
// return or line feed submits the accumulated line; a non-empty trimmed line
// starts a command when no command is running. Whitespace-only lines are
// ignored so a bare Enter does not flicker the tab into running.
func (d *LifecycleDetector) InputChunk(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range text {
		if r == '\r' || r == '\n' {
			line := strings.TrimSpace(d.pending.String())
			d.pending.Reset()
			if line == "" {
				continue
			}
			d.startCommand(line)
			continue
		}
		d.pending.WriteRune(r)
	}
}

// startCommand begins a new command unless one is already running. A second
// input line arriving while running (e.g. a multi-command paste) is dropped
// rather than resetting the start timestamp of the in-flight command.
func (d *LifecycleDetector) startCommand(line string) {
	if d.status == StatusRunning {
		return
	}
	d.current = &CommandInfo{
		Command:   line,
		StartedAt: d.now(),
	}
	d.setStatus(StatusRunning)
}

// OutputChunk feeds a chunk of process output. While running, the chunk is
// ANSI-stripped and checked against the prompt-boundary patterns; the first
// match finalizes the current command.
func (d *LifecycleDetector) OutputChunk(chunk string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.status != StatusRunning || d.current == nil {
		return
	}

	clean := StripANSI(chunk)

	if d.current.ExitCode == nil {
		if m := exitCodeRegex.FindStringSubmatch(clean); m != nil {
			code := parseExitCode(m)
			d.current.ExitCode = &code
		}
	}

	tail := lastLine(clean)
	for _, p := range d.lib.PromptPatterns() {
		if p.MatchString(tail) {
			d.finishCommand()
			return
		}
	}
}

// Tick drives the delayed return to idle. The session orchestrator calls it
// periodically; tests call it with a fabricated time.
func (d *LifecycleDetector) Tick(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.status != StatusSuccess && d.status != StatusError {
		return
	}
	if now.Sub(d.finishedAt) >= d.idleResetDelay {
		d.setStatus(StatusIdle)
	}
}

// Status returns the current tab status.
func (d *LifecycleDetector) Status() TabStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Current returns a copy of the current command, or nil if no command has
// been submitted yet.
func (d *LifecycleDetector) Current() *CommandInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentCopy()
}

func (d *LifecycleDetector) currentCopy() *CommandInfo {
	if d.current == nil {
		return nil
	}
	c := *d.current
	return &c
}

func (d *LifecycleDetector) finishCommand() {
	end := d.now()
	d.current.EndedAt = end
	d.current.Duration = end.Sub(d.current.StartedAt)
	d.finishedAt = end

	// No exit code available means success: the prompt came back and
	// surfacing a speculative error on every completed command would make
	// the status useless. A known non-zero code is the exception.
	if d.current.ExitCode != nil && *d.current.ExitCode != 0 {
		d.setStatus(StatusError)
	} else {
		d.setStatus(StatusSuccess)
	}
}

func (d *LifecycleDetector) setStatus(s TabStatus) {
	if d.status == s {
		return
	}
	d.status = s
	if d.onTransition != nil {
		d.onTransition(s, d.currentCopy())
	}
}

func parseExitCode(m []string) int {
	for _, g := range m[1:] {
		if g != "" {
			n := 0
			for _, r := range g {
				n = n*10 + int(r-'0')
			}
			return n
		}
	}
	return 0
}

// lastLine returns the final line of text, which is where a waiting prompt
// appears. Trailing output that ends in a newline yields the empty line after
// it, so the last non-empty line is used instead.
func lastLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}
