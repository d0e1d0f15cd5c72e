package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"tabscope/stream"
)

// StatusBar renders the one-line tab status: a status chip, the current
// command and its duration.
type StatusBar struct {
	width int
}

func NewStatusBar() *StatusBar {
	return &StatusBar{width: 80}
}

func (s *StatusBar) SetWidth(width int) {
	if width > 0 {
		s.width = width
	}
}

// statusChip returns the colored chip for a tab status.
func statusChip(status stream.TabStatus) string {
	switch status {
	case stream.StatusRunning:
		return StatusBadge(IconRunning+" running", StatusRunning)
	case stream.StatusSuccess:
		return StatusBadge(IconSuccess+" done", StatusSuccess)
	case stream.StatusError:
		return StatusBadge(IconError+" failed", StatusError)
	default:
		return StatusBadge(IconIdle+" idle", StatusIdle)
	}
}

// String renders the bar for the given tab state. now supplies the clock so
// a running command's elapsed time updates every frame.
func (s *StatusBar) String(title string, status stream.TabStatus, cmd *stream.CommandInfo, now time.Time) string {
	out := statusChip(status)
	out += " " + TextStyles.Primary.Render(title)

	if cmd != nil && cmd.Command != "" {
		detail := cmd.Command
		switch status {
		case stream.StatusRunning:
			detail = fmt.Sprintf("%s (%s)", cmd.Command, FormatDuration(now.Sub(cmd.StartedAt)))
		case stream.StatusSuccess, stream.StatusError:
			detail = fmt.Sprintf("%s (%s)", cmd.Command, FormatDuration(cmd.Duration))
		}
		avail := s.width - lipgloss.Width(out) - 3
		if avail > 0 {
			out += "  " + TextStyles.Secondary.Render(runewidth.Truncate(detail, avail, "…"))
		}
	}

	return out
}
