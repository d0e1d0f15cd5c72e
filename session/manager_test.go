package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tabscope/config"
	"tabscope/session/git"
	"tabscope/stream"
)

func testConfig() *config.Config {
	return &config.Config{
		DefaultProgram:     "bash",
		AutoSnapshot:       true,
		BlockCapacity:      100,
		IdleResetDelayMs:   3000,
		SnapshotCooldownMs: 5000,
	}
}

// recorder is a Subscriber capturing everything it receives.
type recorder struct {
	mu        sync.Mutex
	blocks    []stream.BlockEvent
	statuses  []stream.TabStatus
	riskies   []stream.RiskyDetection
	snapshots chan snapResult
}

type snapResult struct {
	tabID string
	snap  *git.Snapshot
	err   error
}

func newRecorder() *recorder {
	return &recorder{snapshots: make(chan snapResult, 8)}
}

func (r *recorder) OnBlockEvent(tabID string, ev stream.BlockEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append(r.blocks, ev)
}

func (r *recorder) OnStatusChange(tabID string, status stream.TabStatus, cmd *stream.CommandInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) OnRiskyDetection(tabID string, det stream.RiskyDetection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.riskies = append(r.riskies, det)
}

func (r *recorder) OnSnapshotResult(tabID string, snap *git.Snapshot, err error) {
	r.snapshots <- snapResult{tabID: tabID, snap: snap, err: err}
}

func (r *recorder) riskyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.riskies)
}

func (r *recorder) waitSnapshot(t *testing.T) snapResult {
	t.Helper()
	select {
	case res := <-r.snapshots:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot result")
		return snapResult{}
	}
}

// fakeSnapshots counts snapshot invocations without touching disk.
type fakeSnapshots struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeSnapshots) fn(projectPath, name, description string) (*git.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return &git.Snapshot{ID: "abc123", Name: name, Description: description}, nil
}

func (f *fakeSnapshots) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestManagerOpenDefaults(t *testing.T) {
	m := NewManager(testConfig())
	tab, err := m.Open(TabOptions{Path: t.TempDir()})
	require.NoError(t, err)

	require.NotEmpty(t, tab.ID)
	require.Equal(t, tab.ID, tab.Title)
	require.Equal(t, "bash", tab.Program)
	require.False(t, tab.Started())

	got, ok := m.Get(tab.ID)
	require.True(t, ok)
	require.Same(t, tab, got)

	_, err = m.Open(TabOptions{})
	require.Error(t, err, "path is required")
}

func TestManagerRiskyTriggersSnapshot(t *testing.T) {
	fake := &fakeSnapshots{}
	rec := newRecorder()
	m := NewManager(testConfig(), WithSnapshotFunc(fake.fn))
	m.Subscribe(rec)

	tab, err := m.Open(TabOptions{Path: t.TempDir()})
	require.NoError(t, err)

	tab.FeedInput("git reset --hard HEAD~3\n")

	res := rec.waitSnapshot(t)
	require.Equal(t, tab.ID, res.tabID)
	require.NoError(t, res.err)
	require.Equal(t, "before git-hard-reset", res.snap.Name)
	require.Contains(t, res.snap.Description, "Hard reset will discard changes")
	require.Equal(t, 1, fake.count())
	require.Equal(t, 1, rec.riskyCount())
}

func TestManagerWarningAlsoSnapshots(t *testing.T) {
	fake := &fakeSnapshots{}
	rec := newRecorder()
	m := NewManager(testConfig(), WithSnapshotFunc(fake.fn))
	m.Subscribe(rec)

	tab, err := m.Open(TabOptions{Path: t.TempDir()})
	require.NoError(t, err)

	tab.FeedInput("npm uninstall left-pad\n")

	require.Equal(t, 1, rec.riskyCount())
	res := rec.waitSnapshot(t)
	require.NoError(t, res.err)
	require.Equal(t, "before package-uninstall", res.snap.Name)
	require.Equal(t, 1, fake.count())
}

func TestManagerAutoSnapshotDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.AutoSnapshot = false
	fake := &fakeSnapshots{}
	m := NewManager(cfg, WithSnapshotFunc(fake.fn))

	tab, err := m.Open(TabOptions{Path: t.TempDir()})
	require.NoError(t, err)

	tab.FeedInput("rm -rf build\n")
	require.NotNil(t, tab.Risky())
	require.Equal(t, 0, fake.count())
}

func TestManagerDismissGate(t *testing.T) {
	rec := newRecorder()
	cfg := testConfig()
	cfg.AutoSnapshot = false
	m := NewManager(cfg)
	m.Subscribe(rec)

	tab, err := m.Open(TabOptions{Path: t.TempDir()})
	require.NoError(t, err)

	tab.FeedInput("rm -rf build\n")
	first := m.Risky(tab.ID)
	require.NotNil(t, first)
	require.Equal(t, "recursive-remove", first.Pattern.Name)

	// A second detection is suppressed while the first is surfaced.
	tab.FeedInput("git reset --hard HEAD\n")
	require.Equal(t, "recursive-remove", m.Risky(tab.ID).Pattern.Name)
	require.Equal(t, 1, rec.riskyCount())

	m.Dismiss(tab.ID)
	require.Nil(t, m.Risky(tab.ID))

	tab.FeedInput("git reset --hard HEAD\n")
	require.Equal(t, "git-hard-reset", m.Risky(tab.ID).Pattern.Name)
	require.Equal(t, 2, rec.riskyCount())
}

func TestManagerSnapshotCooldown(t *testing.T) {
	clock := struct {
		mu sync.Mutex
		t  time.Time
	}{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	now := func() time.Time {
		clock.mu.Lock()
		defer clock.mu.Unlock()
		return clock.t
	}
	advance := func(d time.Duration) {
		clock.mu.Lock()
		defer clock.mu.Unlock()
		clock.t = clock.t.Add(d)
	}

	fake := &fakeSnapshots{}
	rec := newRecorder()
	m := NewManager(testConfig(), WithSnapshotFunc(fake.fn), WithManagerClock(now))
	m.Subscribe(rec)

	tab, err := m.Open(TabOptions{Path: t.TempDir()})
	require.NoError(t, err)

	tab.FeedInput("git reset --hard HEAD\n")
	rec.waitSnapshot(t)

	// Within the cool-down: new danger detection, no new snapshot.
	tab.Dismiss()
	advance(2 * time.Second)
	tab.FeedInput("git clean -fd\n")
	require.Equal(t, 1, fake.count())

	// Past the cool-down the next detection snapshots again.
	tab.Dismiss()
	advance(10 * time.Second)
	tab.FeedInput("rm -rf dist\n")
	rec.waitSnapshot(t)
	require.Equal(t, 2, fake.count())
}

func TestManagerCloseTab(t *testing.T) {
	m := NewManager(testConfig())
	a, err := m.Open(TabOptions{Path: t.TempDir()})
	require.NoError(t, err)
	b, err := m.Open(TabOptions{Path: t.TempDir()})
	require.NoError(t, err)

	require.Len(t, m.Tabs(), 2)
	require.NoError(t, m.CloseTab(a.ID))
	require.Len(t, m.Tabs(), 1)
	require.Equal(t, b.ID, m.Tabs()[0].ID)

	require.Error(t, m.CloseTab(a.ID), "closing twice errors")
	require.NoError(t, m.CloseAll())
	require.Empty(t, m.Tabs())
}

func TestManagerBlockEventsFanOut(t *testing.T) {
	rec := newRecorder()
	m := NewManager(testConfig())
	m.Subscribe(rec)

	tab, err := m.Open(TabOptions{Path: t.TempDir()})
	require.NoError(t, err)

	tab.FeedOutput("✓ Wrote 3 files\n")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.blocks)
	require.Equal(t, stream.BlockToolOutput, rec.blocks[0].Block.Type)
	require.Equal(t, 1, tab.Store().Len())
}

// panicky always panics; the fan-out must survive it.
type panicky struct{}

func (panicky) OnBlockEvent(string, stream.BlockEvent)                         { panic("boom") }
func (panicky) OnStatusChange(string, stream.TabStatus, *stream.CommandInfo)   { panic("boom") }
func (panicky) OnRiskyDetection(string, stream.RiskyDetection)                 { panic("boom") }
func (panicky) OnSnapshotResult(string, *git.Snapshot, error)                  { panic("boom") }

func TestManagerSubscriberPanicIsolated(t *testing.T) {
	rec := newRecorder()
	m := NewManager(testConfig())
	m.Subscribe(panicky{})
	m.Subscribe(rec)

	tab, err := m.Open(TabOptions{Path: t.TempDir()})
	require.NoError(t, err)

	tab.FeedOutput("plain text line\n")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.blocks, "second subscriber still receives events")
}
