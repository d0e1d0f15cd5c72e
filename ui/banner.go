package ui

import (
	"fmt"

	"github.com/muesli/reflow/wordwrap"

	"tabscope/session/git"
	"tabscope/stream"
)

// RiskyBanner renders the surfaced risky-operation detection for a tab.
type RiskyBanner struct {
	width int
}

func NewRiskyBanner() *RiskyBanner {
	return &RiskyBanner{width: 80}
}

func (b *RiskyBanner) SetWidth(width int) {
	if width > 0 {
		b.width = width
	}
}

// String renders the banner for det. Empty when det is nil.
func (b *RiskyBanner) String(det *stream.RiskyDetection) string {
	if det == nil {
		return ""
	}

	color := StatusWarning
	label := "! caution"
	if det.Pattern.Severity == stream.SeverityDanger {
		color = StatusError
		label = IconError + " destructive"
	}

	head := StatusBadge(label, color) + " " + TextStyles.Primary.Render(det.Matched)
	body := det.Pattern.Reason
	if det.Pattern.Mitigation != "" {
		body += "\n" + TextStyles.Secondary.Render(det.Pattern.Mitigation)
	}
	body += "\n" + TextStyles.Muted.Render("press d to dismiss")

	inner := head + "\n" + wordwrap.String(body, b.width-4)
	return BannerStyle(color).Width(b.width - 2).Render(inner)
}

// SnapshotToast renders the one-line outcome of a snapshot attempt.
func SnapshotToast(snap *git.Snapshot, err error) string {
	if err != nil {
		return ToastStyle().Render(StatusStyles.Error.Render(IconError) + " snapshot failed: " + err.Error())
	}
	if snap == nil {
		return ""
	}
	msg := fmt.Sprintf("%s snapshot %q saved", IconSuccess, snap.Name)
	if snap.FilesChanged > 0 {
		msg += fmt.Sprintf(" (%d files)", snap.FilesChanged)
	}
	return ToastStyle().Render(StatusStyles.Success.Render(msg))
}
