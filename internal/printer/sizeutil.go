package printer

import "fmt"

var byteUnits = []string{"KiB", "MiB", "GiB", "TiB"}

// FormatBytes returns a human-readable binary size, "0 B" for negative sizes.
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", max(n, 0))
	}

	v := float64(n) / 1024
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", v, byteUnits[unit])
}

// FormatProgress returns the downloaded size, with the expected size and the
// completed percentage when the expected size is known.
func FormatProgress(current, expected int64) string {
	if expected <= 0 {
		return FormatBytes(current)
	}

	pct := min(current*100/expected, 100)
	return fmt.Sprintf("%s/%s (%d%%)", FormatBytes(current), FormatBytes(expected), pct)
}
