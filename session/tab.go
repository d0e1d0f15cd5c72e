package session

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"tabscope/log"
	"tabscope/stream"
)

// readBufferSize is the pty read chunk size. Chunk boundaries carry no
// meaning downstream, so the value only affects syscall frequency.
const readBufferSize = 4096

// tickInterval drives the lifecycle detector's delayed idle reset.
const tickInterval = 500 * time.Millisecond

// tabHooks are the callbacks a Tab fires into its owner. All of them are
// invoked synchronously from the goroutine that fed the triggering chunk.
type tabHooks struct {
	onBlock  func(ev stream.BlockEvent)
	onStatus func(status stream.TabStatus, cmd *stream.CommandInfo)
	onRisky  func(det stream.RiskyDetection)
}

// TabOptions configures a new tab.
type TabOptions struct {
	// Title is the display name. Empty picks a generated one.
	Title string
	// Path is the project directory the tab works in.
	Path string
	// Program is the command launched in the tab's pty.
	Program string
	// BlockCapacity caps the tab's block store; zero uses the default.
	BlockCapacity int
	// IdleResetDelay overrides the success/error display delay; zero uses
	// the detector default.
	IdleResetDelay time.Duration
}

// Tab owns one terminal session and its interpretation pipeline: the
// lifecycle detector, the risky-operation detector, the semantic classifier
// and the block store. Output chunks flow through the pipeline in arrival
// order on a single goroutine.
type Tab struct {
	ID      string
	Title   string
	Path    string
	Program string
	// CreatedAt is the time the tab was created.
	CreatedAt time.Time

	lifecycle  *stream.LifecycleDetector
	classifier *stream.Classifier
	detector   *stream.RiskyDetector
	store      *stream.BlockStore

	hooks tabHooks

	riskyMu sync.Mutex
	// risky is the currently surfaced detection. While set, further
	// detections are suppressed until the user dismisses it.
	risky *stream.RiskyDetection

	// The below fields are initialized upon calling Start().

	started   bool
	ptmx      *os.File
	cmd       *exec.Cmd
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newTab(id string, opts TabOptions, lib *stream.PatternLibrary, now func() time.Time, hooks tabHooks) *Tab {
	t := &Tab{
		ID:        id,
		Title:     opts.Title,
		Path:      opts.Path,
		Program:   opts.Program,
		CreatedAt: now(),
		detector:  stream.NewRiskyDetector(lib),
		store:     stream.NewBlockStore(opts.BlockCapacity),
		hooks:     hooks,
		done:      make(chan struct{}),
	}

	lifecycleOpts := []stream.LifecycleOption{stream.WithClock(now)}
	if opts.IdleResetDelay > 0 {
		lifecycleOpts = append(lifecycleOpts, stream.WithIdleResetDelay(opts.IdleResetDelay))
	}
	t.lifecycle = stream.NewLifecycleDetector(lib, lifecycleOpts...)
	t.lifecycle.OnTransition(func(status stream.TabStatus, cmd *stream.CommandInfo) {
		if t.hooks.onStatus != nil {
			t.hooks.onStatus(status, cmd)
		}
	})

	t.classifier = stream.NewClassifier(func(ev stream.BlockEvent) {
		t.store.Apply(ev)
		if t.hooks.onBlock != nil {
			t.hooks.onBlock(ev)
		}
	}, stream.WithClassifierClock(now))

	return t
}

// Start launches the tab's program in a pty sized rows x cols and begins
// streaming its output through the pipeline.
func (t *Tab) Start(rows, cols uint16) error {
	if t.started {
		return fmt.Errorf("tab %s already started", t.ID)
	}

	cmd := exec.Command(t.Program)
	cmd.Dir = t.Path
	cmd.Env = os.Environ()

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return fmt.Errorf("failed to start %s in pty: %w", t.Program, err)
	}

	t.cmd = cmd
	t.ptmx = ptmx
	t.started = true

	t.wg.Add(2)
	go t.readLoop()
	go t.tickLoop()

	log.InfoLog.Printf("tab %s started %s in %s", t.ID, t.Program, t.Path)
	return nil
}

// Started reports whether the tab has a live pty.
func (t *Tab) Started() bool {
	return t.started
}

func (t *Tab) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, err := t.ptmx.Read(buf)
		if n > 0 {
			t.FeedOutput(string(buf[:n]))
		}
		if err != nil {
			if err != io.EOF {
				select {
				case <-t.done:
					// Expected: Close pulled the pty out from under us.
				default:
					log.WarningLog.Printf("tab %s read failed: %v", t.ID, err)
				}
			}
			t.classifier.Flush()
			return
		}
	}
}

func (t *Tab) tickLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case now := <-ticker.C:
			t.lifecycle.Tick(now)
		}
	}
}

// FeedOutput pushes one chunk of terminal output through the pipeline:
// lifecycle first (a prompt boundary finalizes the command the chunk belongs
// to), then risky scanning, then classification.
func (t *Tab) FeedOutput(chunk string) {
	t.lifecycle.OutputChunk(chunk)
	t.scanRisky(chunk)
	t.classifier.Feed(chunk)
}

// Write forwards user input to the pty and mirrors it into the lifecycle and
// risky detectors. Typed commands are scanned before the program echoes them.
func (t *Tab) Write(p []byte) (int, error) {
	t.FeedInput(string(p))
	if !t.started {
		return len(p), nil
	}
	return t.ptmx.Write(p)
}

// FeedInput runs the input half of the pipeline without touching the pty.
func (t *Tab) FeedInput(text string) {
	t.lifecycle.InputChunk(text)
	t.scanRisky(text)
}

// Tick advances time-driven state. Exposed for orchestrators that drive all
// tabs from one timer; a started tab ticks itself.
func (t *Tab) Tick(now time.Time) {
	t.lifecycle.Tick(now)
}

func (t *Tab) scanRisky(text string) {
	t.riskyMu.Lock()
	if t.risky != nil {
		t.riskyMu.Unlock()
		return
	}
	det := t.detector.DetectFirst(text)
	if det == nil {
		t.riskyMu.Unlock()
		return
	}
	t.risky = det
	t.riskyMu.Unlock()

	log.InfoLog.Printf("tab %s risky detection %q (%s)", t.ID, det.Pattern.Name, det.Pattern.Severity)
	log.Debug("tab %s matched %q", t.ID, det.Matched)
	if t.hooks.onRisky != nil {
		t.hooks.onRisky(*det)
	}
}

// Risky returns the currently surfaced detection, or nil.
func (t *Tab) Risky() *stream.RiskyDetection {
	t.riskyMu.Lock()
	defer t.riskyMu.Unlock()
	if t.risky == nil {
		return nil
	}
	det := *t.risky
	return &det
}

// Dismiss clears the surfaced detection so later output can surface a new
// one. A no-op when nothing is surfaced.
func (t *Tab) Dismiss() {
	t.riskyMu.Lock()
	defer t.riskyMu.Unlock()
	t.risky = nil
}

// Status returns the tab's lifecycle status.
func (t *Tab) Status() stream.TabStatus {
	return t.lifecycle.Status()
}

// CurrentCommand returns a copy of the tab's current command, or nil.
func (t *Tab) CurrentCommand() *stream.CommandInfo {
	return t.lifecycle.Current()
}

// Store returns the tab's block store.
func (t *Tab) Store() *stream.BlockStore {
	return t.store
}

// Resize updates the pty window size.
func (t *Tab) Resize(rows, cols uint16) error {
	if !t.started {
		return nil
	}
	if err := pty.Setsize(t.ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("failed to resize tab %s: %w", t.ID, err)
	}
	return nil
}

// Close tears the tab down: stops the timers, kills the child and closes the
// pty. In-flight classification is abandoned, not flushed to subscribers.
func (t *Tab) Close() error {
	var errs []error
	t.closeOnce.Do(func() {
		close(t.done)
		if t.started {
			if t.cmd != nil && t.cmd.Process != nil {
				if err := t.cmd.Process.Kill(); err != nil {
					errs = append(errs, fmt.Errorf("failed to kill process: %w", err))
				}
			}
			if err := t.ptmx.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close pty: %w", err))
			}
			if t.cmd != nil {
				_ = t.cmd.Wait()
			}
			t.wg.Wait()
		}
	})
	return combineErrors(errs)
}

// combineErrors combines multiple errors into a single error
func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}

	errMsg := "multiple cleanup errors occurred:"
	for _, err := range errs {
		errMsg += "\n  - " + err.Error()
	}
	return fmt.Errorf("%s", errMsg)
}
