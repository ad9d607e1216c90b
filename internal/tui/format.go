package tui

import (
	"fmt"
	"time"
)

// relativeTime renders "3 days ago" style labels for the conversation
// list.
func relativeTime(t, now time.Time) string {
	diff := now.Sub(t)
	days := int(diff.Hours() / 24)
	hours := int(diff.Hours())
	minutes := int(diff.Minutes())

	switch {
	case days > 1:
		return fmt.Sprintf("%d days ago", days)
	case days == 1:
		return "1 day ago"
	case hours > 1:
		return fmt.Sprintf("%d hours ago", hours)
	case hours == 1:
		return "1 hour ago"
	case minutes > 0:
		return fmt.Sprintf("%d min ago", minutes)
	default:
		return "just now"
	}
}

// messageTime renders a message timestamp, or "" when the server has not
// assigned one.
func messageTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("1/2/06, 3:04 PM")
}
