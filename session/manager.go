package session

import (
	"fmt"
	"sync"
	"time"

	"tabscope/config"
	"tabscope/log"
	"tabscope/session/git"
	"tabscope/session/wordgen"
	"tabscope/stream"
)

// SnapshotFunc records a protective snapshot of projectPath. Replaced in
// tests; the default uses the shadow-repo engine in session/git.
type SnapshotFunc func(projectPath, name, description string) (*git.Snapshot, error)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSnapshotFunc replaces the snapshot engine.
func WithSnapshotFunc(fn SnapshotFunc) ManagerOption {
	return func(m *Manager) { m.snapshotFn = fn }
}

// WithManagerClock replaces the wall clock, for tests.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// Manager owns every tab and the shared pattern library, fans interpreted
// events out to subscribers, and triggers protective snapshots when a tab
// surfaces a dangerous operation.
type Manager struct {
	mu sync.Mutex

	cfg        *config.Config
	lib        *stream.PatternLibrary
	now        func() time.Time
	snapshotFn SnapshotFunc

	fanout fanout

	tabs  map[string]*Tab
	order []string

	// lastSnapshot gates automatic snapshots per project directory, so a
	// burst of detections cannot pile up snapshot commits.
	lastSnapshot map[string]time.Time
}

// NewManager creates a manager using the given configuration. A configured
// risky-pattern file that fails to load falls back to the built-in table.
func NewManager(cfg *config.Config, opts ...ManagerOption) *Manager {
	lib := stream.DefaultLibrary()
	if cfg.RiskyPatternsPath != "" {
		loaded, err := stream.LoadLibrary(cfg.RiskyPatternsPath)
		if err != nil {
			log.WarningLog.Printf("failed to load risky patterns from %s: %v", cfg.RiskyPatternsPath, err)
		} else {
			lib = loaded
		}
	}

	m := &Manager{
		cfg:          cfg,
		lib:          lib,
		now:          time.Now,
		tabs:         make(map[string]*Tab),
		lastSnapshot: make(map[string]time.Time),
	}
	m.snapshotFn = func(projectPath, name, description string) (*git.Snapshot, error) {
		repo, err := git.NewSnapshotRepo(projectPath)
		if err != nil {
			return nil, err
		}
		return repo.Create(name, description)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Library returns the manager's effective pattern library.
func (m *Manager) Library() *stream.PatternLibrary {
	return m.lib
}

// Subscribe registers a subscriber for all tabs, current and future.
func (m *Manager) Subscribe(s Subscriber) {
	m.fanout.subscribe(s)
}

// Open creates a new tab and registers it. The tab is not started; call
// Tab.Start to spawn its program.
func (m *Manager) Open(opts TabOptions) (*Tab, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("tab path is required")
	}
	if opts.Program == "" {
		opts.Program = m.cfg.DefaultProgram
	}
	if opts.BlockCapacity == 0 {
		opts.BlockCapacity = m.cfg.BlockCapacity
	}
	if opts.IdleResetDelay == 0 {
		opts.IdleResetDelay = m.cfg.IdleResetDelay()
	}

	id := wordgen.Generate()
	if opts.Title == "" {
		opts.Title = id
	}

	tab := newTab(id, opts, m.lib, m.now, tabHooks{
		onBlock: func(ev stream.BlockEvent) {
			m.fanout.blockEvent(id, ev)
		},
		onStatus: func(status stream.TabStatus, cmd *stream.CommandInfo) {
			m.fanout.statusChange(id, status, cmd)
		},
		onRisky: func(det stream.RiskyDetection) {
			m.fanout.riskyDetection(id, det)
			m.maybeSnapshot(id, opts.Path, det)
		},
	})

	m.mu.Lock()
	m.tabs[id] = tab
	m.order = append(m.order, id)
	m.mu.Unlock()

	log.InfoLog.Printf("opened tab %s (%s in %s)", id, opts.Program, opts.Path)
	return tab, nil
}

// Get returns the tab with the given id.
func (m *Manager) Get(id string) (*Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	return t, ok
}

// Tabs returns all tabs in open order.
func (m *Manager) Tabs() []*Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Tab, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tabs[id])
	}
	return out
}

// CloseTab closes and removes the tab with the given id.
func (m *Manager) CloseTab(id string) error {
	m.mu.Lock()
	tab, ok := m.tabs[id]
	if ok {
		delete(m.tabs, id)
		for i, other := range m.order {
			if other == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("no tab %s", id)
	}
	return tab.Close()
}

// CloseAll closes every tab, collecting errors rather than stopping at the
// first. Pending snapshot goroutines are not awaited.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	tabs := make([]*Tab, 0, len(m.order))
	for _, id := range m.order {
		tabs = append(tabs, m.tabs[id])
	}
	m.tabs = make(map[string]*Tab)
	m.order = nil
	m.mu.Unlock()

	var errs []error
	for _, t := range tabs {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close tab %s: %w", t.ID, err))
		}
	}
	return combineErrors(errs)
}

// Dismiss clears the surfaced risky detection on the given tab.
func (m *Manager) Dismiss(id string) {
	if tab, ok := m.Get(id); ok {
		tab.Dismiss()
	}
}

// Risky returns the surfaced detection on the given tab, or nil.
func (m *Manager) Risky(id string) *stream.RiskyDetection {
	if tab, ok := m.Get(id); ok {
		return tab.Risky()
	}
	return nil
}

// maybeSnapshot fires a protective snapshot for a detection, subject to the
// auto_snapshot setting and the per-project cool-down. The snapshot runs in
// its own goroutine; the result arrives via the fan-out.
func (m *Manager) maybeSnapshot(tabID, projectPath string, det stream.RiskyDetection) {
	if !m.cfg.AutoSnapshot {
		return
	}

	m.mu.Lock()
	now := m.now()
	if last, ok := m.lastSnapshot[projectPath]; ok && now.Sub(last) < m.cfg.SnapshotCooldown() {
		m.mu.Unlock()
		log.InfoLog.Printf("tab %s snapshot suppressed by cool-down", tabID)
		return
	}
	m.lastSnapshot[projectPath] = now
	m.mu.Unlock()

	name := "before " + det.Pattern.Name
	description := fmt.Sprintf("detected %q: %s", det.Matched, det.Pattern.Reason)

	go func() {
		snap, err := m.snapshotFn(projectPath, name, description)
		if err != nil {
			log.ErrorLog.Printf("tab %s snapshot failed: %v", tabID, err)
		}
		m.fanout.snapshotResult(tabID, snap, err)
	}()
}

// CreateSnapshot records a user-requested snapshot of the tab's project.
// Manual snapshots bypass the cool-down.
func (m *Manager) CreateSnapshot(tabID, name string) (*git.Snapshot, error) {
	tab, ok := m.Get(tabID)
	if !ok {
		return nil, fmt.Errorf("no tab %s", tabID)
	}
	if name == "" {
		name = "manual snapshot"
	}
	return m.snapshotFn(tab.Path, name, "")
}

// ListSnapshots returns the snapshots recorded for the tab's project,
// newest first.
func (m *Manager) ListSnapshots(tabID string) ([]git.Snapshot, error) {
	tab, ok := m.Get(tabID)
	if !ok {
		return nil, fmt.Errorf("no tab %s", tabID)
	}
	repo, err := git.NewSnapshotRepo(tab.Path)
	if err != nil {
		return nil, err
	}
	return repo.List()
}
