package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"tabscope/stream"
)

// contentIndent is the left margin for expanded block content.
const contentIndent = "  "

// BlockList renders a tab's classified blocks. Collapsed blocks show a
// one-line summary; expanded blocks show wrapped content under the header.
type BlockList struct {
	width    int
	height   int
	selected int
}

func NewBlockList() *BlockList {
	return &BlockList{width: 80, height: 24}
}

// SetSize updates the render dimensions.
func (l *BlockList) SetSize(width, height int) {
	if width > 0 {
		l.width = width
	}
	if height > 0 {
		l.height = height
	}
}

// Selected returns the index of the selected block.
func (l *BlockList) Selected() int {
	return l.selected
}

// MoveSelection shifts the selection by delta, clamped to [0, count).
func (l *BlockList) MoveSelection(delta, count int) {
	if count == 0 {
		l.selected = 0
		return
	}
	l.selected += delta
	if l.selected < 0 {
		l.selected = 0
	}
	if l.selected >= count {
		l.selected = count - 1
	}
}

// typeBadge maps a block type to its display label and color.
func typeBadge(b stream.StoredBlock) (string, lipgloss.TerminalColor) {
	switch b.Type {
	case stream.BlockError:
		return "error", StatusError
	case stream.BlockQuestion:
		return "question", Primary
	case stream.BlockToolOutput:
		if b.Success {
			return "tool ok", StatusSuccess
		}
		return "tool out", TextSecondary
	case stream.BlockTool:
		return "tool", StatusRunning
	case stream.BlockCode:
		label := "code"
		if b.Language != "" {
			label = b.Language
		}
		return label, TextSecondary
	case stream.BlockCommand:
		return "cmd", StatusRunning
	case stream.BlockCommandOutput:
		return "output", TextSecondary
	case stream.BlockFileContent:
		return "file", TextSecondary
	case stream.BlockDiff:
		return "diff", StatusWarning
	case stream.BlockThinking:
		return "thinking", TextMuted
	default:
		return "text", TextMuted
	}
}

// headerMeta returns the header detail text for a block.
func headerMeta(b stream.StoredBlock) string {
	switch b.Type {
	case stream.BlockTool:
		return b.ToolName
	case stream.BlockFileContent:
		return b.Path
	case stream.BlockCommand:
		return b.Command
	default:
		return firstLine(b.Content)
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// String renders the given blocks.
func (l *BlockList) String(blocks []stream.StoredBlock) string {
	if len(blocks) == 0 {
		return TextStyles.Muted.Render("no output yet")
	}

	var sb strings.Builder
	for i, b := range blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(l.renderBlock(b, i == l.selected))
	}
	return sb.String()
}

func (l *BlockList) renderBlock(b stream.StoredBlock, selected bool) string {
	label, color := typeBadge(b)
	header := StatusBadge(label, color)

	if b.Pinned {
		// Pinned blocks are kept around to come back to; show their age.
		header += " " + StatusStyles.Warning.Render(IconPinned)
		if !b.CreatedAt.IsZero() {
			header += " " + TextStyles.Muted.Render(FormatRelativeTime(b.CreatedAt))
		}
	}

	meta := headerMeta(b)
	if b.Collapsed {
		meta = fmt.Sprintf("▸ %d lines", b.Lines())
	}
	if meta != "" {
		// Truncation is width-aware; block content can contain wide runes.
		avail := l.width - lipgloss.Width(header) - 1
		if avail > 0 {
			header += " " + TextStyles.Secondary.Render(runewidth.Truncate(meta, avail, "…"))
		}
	}

	line := header
	if selected {
		line = lipgloss.NewStyle().Background(BackgroundSelected).Render(line)
	}

	if b.Collapsed || b.Content == "" {
		return line
	}

	wrapped := wordwrap.String(b.Content, l.width-len(contentIndent))
	var body strings.Builder
	for _, cl := range strings.Split(wrapped, "\n") {
		body.WriteString("\n" + contentIndent + TextStyles.Primary.Render(cl))
	}
	return line + body.String()
}
