package campaign

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// renderBody renders the part of the progress message that only changes when
// worker state changes: the per-account table and the totals.
func renderBody(snap Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** · %s\n\n", snap.Feature.Title(), snap.Owner)
	b.WriteString("| # | Account | Sent | Filtered | Status |\n")
	b.WriteString("|---|---|---:|---:|---|\n")
	for i, w := range snap.Workers {
		status := string(w.Status)
		if w.LastError != "" && (w.Status == LabelFailed || w.Status == LabelRetry) {
			status += ": " + escapeCell(w.LastError)
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
			i+1, escapeCell(w.Name), humanize.Comma(int64(w.Sent)), humanize.Comma(int64(w.Filtered)), status)
	}
	fmt.Fprintf(&b, "\n**Total:** %s sent · %s filtered · %s processed\n",
		humanize.Comma(int64(snap.Totals.Sent)),
		humanize.Comma(int64(snap.Totals.Filtered)),
		humanize.Comma(int64(snap.Totals.Processed)),
	)
	return b.String()
}

// renderFooter renders elapsed time and throughput.
func renderFooter(snap Snapshot, now time.Time, final bool) string {
	end := now
	if snap.FinishedAt != nil {
		end = *snap.FinishedAt
	}
	elapsed := end.Sub(snap.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	rate := 0.0
	if minutes := elapsed.Minutes(); minutes > 0 {
		rate = float64(snap.Totals.Sent) / minutes
	}

	state := "running"
	switch {
	case final && snap.Stopped:
		state = "stopped"
	case final:
		state = "finished"
	case snap.Stopped:
		state = "stopping"
	}
	return fmt.Sprintf("\n_%s · %s elapsed · %s sent/min_\n",
		state, elapsed.Round(time.Second), humanize.FtoaWithDigits(rate, 1))
}

func renderMessage(snap Snapshot, now time.Time, final bool) string {
	return renderBody(snap) + renderFooter(snap, now, final)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
