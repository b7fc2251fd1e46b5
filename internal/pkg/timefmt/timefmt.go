// Package timefmt renders timestamps and durations as short human phrases.
package timefmt

import (
	"fmt"
	"time"
)

// DateLayout is used for timestamps older than a week.
const DateLayout = "Jan 2, 2006"

// Fixed phrases.
const (
	Never   = "Never"
	JustNow = "Just now"
)

// Relative formats t relative to the current time.
func Relative(t *time.Time) string {
	return RelativeTo(t, time.Now())
}

// RelativeTo formats t relative to now. Timestamps in the future count as
// "Just now".
func RelativeTo(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return Never
	}

	diff := now.Sub(*t)
	sec := int64(diff / time.Second)
	mins := sec / 60
	hour := mins / 60
	day := hour / 24

	switch {
	case sec < 60:
		return JustNow
	case mins < 60:
		return plural(mins, "minute") + " ago"
	case hour < 24:
		return plural(hour, "hour") + " ago"
	case day < 7:
		return plural(day, "day") + " ago"
	}

	return t.Local().Format(DateLayout)
}

// Duration formats d as "2h 30m", "5m 10s" or "42s". Non-positive durations
// format as "0s".
func Duration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}

	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60

	if hours > 0 {
		if m := minutes % 60; m > 0 {
			return fmt.Sprintf("%dh %dm", hours, m)
		}
		return fmt.Sprintf("%dh", hours)
	}

	if minutes > 0 {
		if s := seconds % 60; s > 0 {
			return fmt.Sprintf("%dm %ds", minutes, s)
		}
		return fmt.Sprintf("%dm", minutes)
	}

	return fmt.Sprintf("%ds", seconds)
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
