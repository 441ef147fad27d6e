package cmd

import (
	"fmt"
	"time"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorDim   = "\033[2m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "ACTIVE":
		return colorGreen + "●" + colorReset
	case "TERMINATED":
		return colorDim + "○" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "ACTIVE":
		return icon + " " + colorGreen + status + colorReset
	case "TERMINATED":
		return icon + " " + colorDim + status + colorReset
	default:
		return status
	}
}

// formatExpiry shows the absolute time and how far away it is.
func formatExpiry(t time.Time, now time.Time) string {
	d := t.Sub(now)
	if d <= 0 {
		return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, formatDuration(-d), colorReset)
	}
	return fmt.Sprintf("%s %s(in %s)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorCyan, formatDuration(d), colorReset)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format("Mon, 02 Jan 2006 15:04:05 MST")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
