package printer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/lendr/internal/printer"
)

func TestFormatBytes(t *testing.T) {
	tests := map[string]struct {
		n   int64
		exp string
	}{
		"Negative sizes are shown as zero.": {
			n:   -1,
			exp: "0 B",
		},
		"Sizes under a KiB are shown in bytes.": {
			n:   1023,
			exp: "1023 B",
		},
		"A KiB is shown with one decimal.": {
			n:   1024,
			exp: "1.0 KiB",
		},
		"An EPUB sized file is shown in MiB.": {
			n:   3*1024*1024 + 512*1024,
			exp: "3.5 MiB",
		},
		"An audiobook sized file is shown in GiB.": {
			n:   2 * 1024 * 1024 * 1024,
			exp: "2.0 GiB",
		},
		"Sizes over the biggest unit stay in that unit.": {
			n:   2048 * 1024 * 1024 * 1024 * 1024,
			exp: "2048.0 TiB",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, printer.FormatBytes(test.n))
		})
	}
}

func TestFormatProgress(t *testing.T) {
	tests := map[string]struct {
		current  int64
		expected int64
		exp      string
	}{
		"An unknown expected size only shows the downloaded size.": {
			current: 10,
			exp:     "10 B",
		},
		"A known expected size shows the percentage.": {
			current:  512,
			expected: 2048,
			exp:      "512 B/2.0 KiB (25%)",
		},
		"The percentage never goes over 100.": {
			current:  4096,
			expected: 2048,
			exp:      "4.0 KiB/2.0 KiB (100%)",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, printer.FormatProgress(test.current, test.expected))
		})
	}
}
