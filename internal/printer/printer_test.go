package printer_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/printer"
	"github.com/slok/lendr/internal/task"
)

func booksFixture() []model.BookWithStatus {
	return []model.BookWithStatus{
		{
			Book: model.Book{
				ID:          "b0",
				AccountID:   "acc0",
				Entry:       model.FeedEntry{ID: "urn:book:0", Title: "Moby Dick", Authors: []string{"Herman Melville"}},
				ContentPath: "/books/b0.epub",
				ContentType: "application/epub+zip",
				UpdatedAt:   time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC),
			},
			Status: model.StatusLoanedDownloaded{},
		},
		{
			Book:   model.Book{ID: "b1", AccountID: "acc0", Entry: model.FeedEntry{ID: "urn:book:1", Title: "Ulysses"}},
			Status: model.StatusDownloading{CurrentBytes: 512, ExpectedBytes: 2048},
		},
	}
}

func TestTablePrinterPrintBooks(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintBooks(booksFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Herman Melville")
	assert.Contains(t, out, "loaned-downloaded")
	assert.Contains(t, out, "downloading 512 B/2.0 KiB (25%)")
}

func TestJSONPrinterPrintBooks(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintBooks(booksFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"title": "Moby Dick"`)
	assert.Contains(t, out, `"downloaded": true`)
	assert.Contains(t, out, `"updated_at": "2026-01-30T10:00:00Z"`)
	assert.Contains(t, out, `"downloaded": false`)
}

func TestTablePrinterPrintAccounts(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	accs := []model.Account{
		{ID: "acc0", Provider: model.AccountProvider{DisplayName: "City Library"}},
		{ID: "acc1", Provider: model.AccountProvider{DisplayName: "County Library"}},
	}
	err := p.PrintAccounts(accs, map[model.AccountID]model.AccountLoginState{"acc0": model.LoginStateLoggedIn{}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "logged-in")
	assert.Contains(t, lines[2], "not-logged-in")
}

func TestTablePrinterPrintTaskRecords(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintTaskRecords([]task.Record{{
		Operation: "sync",
		Subject:   "acc0",
		Failed:    true,
		Steps: []task.RecordStep{
			{Sequence: 1, Description: "Loading account", Status: task.StatusDone, Message: "Account loaded"},
			{Sequence: 2, Description: "Fetching loans", Status: task.StatusFailed, Error: "sync: server error 502"},
		},
	}})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "sync acc0 failed")
	assert.Contains(t, out, "sync: server error 502")
}

func TestStatusDescription(t *testing.T) {
	pos := 3

	tests := map[string]struct {
		status   model.BookStatus
		expected string
	}{
		"A missing status is unknown.": {
			status:   nil,
			expected: "unknown",
		},
		"A hold with a queue position shows it.": {
			status:   model.StatusHeld{Position: &pos},
			expected: "held (#3)",
		},
		"A ready hold is shown as ready.": {
			status:   model.StatusHeld{Ready: true},
			expected: "held (ready)",
		},
		"A download without an expected size shows the downloaded bytes.": {
			status:   model.StatusDownloading{CurrentBytes: 10},
			expected: "downloading 10 B",
		},
		"Other statuses use their name.": {
			status:   model.StatusRevoked{},
			expected: "revoked",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.StatusDescription(test.status))
		})
	}
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(buf.String()))
}

func TestDueDescription(t *testing.T) {
	now := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	inThreeDays := now.Add(3 * 24 * time.Hour)
	yesterday := now.Add(-24 * time.Hour)

	tests := map[string]struct {
		availability model.Availability
		expected     string
	}{
		"A loan with an end date shows when it ends.": {
			availability: model.AvailabilityLoaned{EndDate: &inThreeDays},
			expected:     "in 3 days",
		},
		"A ready hold with an end date shows when it ends.": {
			availability: model.AvailabilityHeldReady{EndDate: &inThreeDays},
			expected:     "in 3 days",
		},
		"A loan past its end date is expired.": {
			availability: model.AvailabilityLoaned{EndDate: &yesterday},
			expected:     "expired",
		},
		"A loan without an end date shows nothing.": {
			availability: model.AvailabilityLoaned{},
		},
		"Open access books show nothing.": {
			availability: model.AvailabilityOpenAccess{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.DueDescription(test.availability, now))
		})
	}
}
