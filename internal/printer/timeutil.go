package printer

import (
	"fmt"
	"time"
)

// RelativeTime describes t relative to now: "3 hours ago", "in 2 days", "now".
func RelativeTime(t, now time.Time) string {
	diff := now.Sub(t)
	future := diff < 0
	if future {
		diff = -diff
	}

	var amount int
	var unit string
	switch {
	case diff < time.Second:
		return "now"
	case diff < time.Minute:
		amount, unit = int(diff/time.Second), "second"
	case diff < time.Hour:
		amount, unit = int(diff/time.Minute), "minute"
	case diff < 24*time.Hour:
		amount, unit = int(diff/time.Hour), "hour"
	default:
		amount, unit = int(diff/(24*time.Hour)), "day"
	}
	if amount != 1 {
		unit += "s"
	}

	if future {
		return fmt.Sprintf("in %d %s", amount, unit)
	}
	return fmt.Sprintf("%d %s ago", amount, unit)
}

// TimeAgo describes t relative to the current time.
func TimeAgo(t time.Time) string {
	return RelativeTime(t, time.Now())
}

// FormatTimestamp returns t in UTC as "2006-01-02 15:04:05 UTC".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
