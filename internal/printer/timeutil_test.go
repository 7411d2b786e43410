package printer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slok/lendr/internal/printer"
)

func TestRelativeTime(t *testing.T) {
	now := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		t   time.Time
		exp string
	}{
		"The same instant is now.": {
			t:   now,
			exp: "now",
		},
		"A single unit is singular.": {
			t:   now.Add(-time.Second),
			exp: "1 second ago",
		},
		"Past minutes are counted down.": {
			t:   now.Add(-45 * time.Minute),
			exp: "45 minutes ago",
		},
		"Past hours are truncated.": {
			t:   now.Add(-(5*time.Hour + 59*time.Minute)),
			exp: "5 hours ago",
		},
		"Past days are shown in days.": {
			t:   now.Add(-7 * 24 * time.Hour),
			exp: "7 days ago",
		},
		"A loan ending tomorrow is in the future.": {
			t:   now.Add(24 * time.Hour),
			exp: "in 1 day",
		},
		"A loan ending in hours is in the future.": {
			t:   now.Add(3 * time.Hour),
			exp: "in 3 hours",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, printer.RelativeTime(test.t, now))
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 30, 11, 30, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2026-01-30 10:30:00 UTC", printer.FormatTimestamp(ts))
}
