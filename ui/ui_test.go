package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tabscope/session/git"
	"tabscope/stream"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{59 * time.Second, "59.0s"},
		{95 * time.Second, "1m35s"},
		{10 * time.Minute, "10m00s"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatDuration(tt.d))
	}
}

func TestBlockListEmpty(t *testing.T) {
	l := NewBlockList()
	require.Contains(t, l.String(nil), "no output yet")
}

func TestBlockListCollapsedSummary(t *testing.T) {
	l := NewBlockList()
	blocks := []stream.StoredBlock{
		{
			Block: stream.Block{
				ID:      1,
				Type:    stream.BlockCode,
				Content: "a\nb\nc\nd\ne\nf\ng\nh\ni\nj\nk\nl",
			},
			Collapsed: true,
		},
	}

	out := l.String(blocks)
	require.Contains(t, out, "▸ 12 lines")
	require.NotContains(t, out, "\n  a", "collapsed content must not be rendered")
}

func TestBlockListExpandedContent(t *testing.T) {
	l := NewBlockList()
	blocks := []stream.StoredBlock{
		{Block: stream.Block{ID: 1, Type: stream.BlockQuestion, Content: "Should I continue?"}},
	}

	out := l.String(blocks)
	require.Contains(t, out, "question")
	require.Contains(t, out, "Should I continue?")
}

func TestBlockListPinnedMarker(t *testing.T) {
	l := NewBlockList()
	blocks := []stream.StoredBlock{
		{Block: stream.Block{ID: 1, Type: stream.BlockText, Content: "keep this", CreatedAt: time.Now()}, Pinned: true},
	}
	out := l.String(blocks)
	require.Contains(t, out, IconPinned)
	require.Contains(t, out, "just now")
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		t    time.Time
		want string
	}{
		{now, "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-48 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatRelativeTime(tt.t))
	}
}

func TestBlockListSelectionClamped(t *testing.T) {
	l := NewBlockList()
	l.MoveSelection(5, 3)
	require.Equal(t, 2, l.Selected())
	l.MoveSelection(-10, 3)
	require.Equal(t, 0, l.Selected())
	l.MoveSelection(1, 0)
	require.Equal(t, 0, l.Selected())
}

func TestStatusBar(t *testing.T) {
	bar := NewStatusBar()
	now := time.Date(2024, 6, 1, 12, 0, 10, 0, time.UTC)
	cmd := &stream.CommandInfo{
		Command:   "go test ./...",
		StartedAt: now.Add(-4 * time.Second),
	}

	out := bar.String("my-tab", stream.StatusRunning, cmd, now)
	require.Contains(t, out, "running")
	require.Contains(t, out, "my-tab")
	require.Contains(t, out, "go test ./...")
	require.Contains(t, out, "4.0s")

	cmd.Duration = 2 * time.Second
	out = bar.String("my-tab", stream.StatusError, cmd, now)
	require.Contains(t, out, "failed")
	require.Contains(t, out, "2.0s")

	out = bar.String("my-tab", stream.StatusIdle, nil, now)
	require.Contains(t, out, "idle")
}

func TestRiskyBanner(t *testing.T) {
	banner := NewRiskyBanner()

	require.Empty(t, banner.String(nil))

	det := &stream.RiskyDetection{
		Pattern: stream.RiskyPattern{
			Name:       "git-hard-reset",
			Severity:   stream.SeverityDanger,
			Reason:     "Hard reset will discard changes",
			Mitigation: "Stash or commit your work before resetting",
		},
		Matched: "git reset --hard",
	}

	out := banner.String(det)
	require.Contains(t, out, "destructive")
	require.Contains(t, out, "git reset --hard")
	require.Contains(t, out, "Hard reset will discard changes")
	require.Contains(t, out, "press d to dismiss")

	det.Pattern.Severity = stream.SeverityWarning
	require.Contains(t, banner.String(det), "caution")
}

func TestSnapshotToast(t *testing.T) {
	snap := &git.Snapshot{Name: "before git-hard-reset", FilesChanged: 3}
	out := SnapshotToast(snap, nil)
	require.Contains(t, out, "before git-hard-reset")
	require.Contains(t, out, "3 files")

	out = SnapshotToast(nil, errFake)
	require.Contains(t, out, "snapshot failed")

	require.Empty(t, SnapshotToast(nil, nil))
}

var errFake = fakeError("disk full")

type fakeError string

func (e fakeError) Error() string { return string(e) }
