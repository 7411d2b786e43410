package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/task"
)

// TablePrinter prints library information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintProfiles prints profiles in a table format, the current one is marked.
func (t *TablePrinter) PrintProfiles(profiles []model.Profile, current model.ProfileID) error {
	if len(profiles) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "CURRENT\tID\tNAME\tCREATED")
	for _, p := range profiles {
		mark := ""
		if p.ID == current {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, p.ID, p.DisplayName, TimeAgo(p.CreatedAt))
	}

	return nil
}

// PrintAccounts prints accounts with their login state in a table format.
func (t *TablePrinter) PrintAccounts(accounts []model.Account, states map[model.AccountID]model.AccountLoginState) error {
	if len(accounts) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tLIBRARY\tSTATE\tCREATED")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.ID, a.Provider.DisplayName, StateDescription(states[a.ID]), TimeAgo(a.CreatedAt))
	}

	return nil
}

// PrintBooks prints books in a table format.
func (t *TablePrinter) PrintBooks(books []model.BookWithStatus) error {
	if len(books) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	now := time.Now()
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHORS\tSTATUS\tDUE")
	for _, b := range books {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			b.Book.ID,
			b.Book.Entry.Title,
			strings.Join(b.Book.Entry.Authors, ", "),
			StatusDescription(b.Status),
			DueDescription(b.Book.Entry.Availability, now),
		)
	}

	return nil
}

// PrintProviders prints provider descriptions in a table format.
func (t *TablePrinter) PrintProviders(descriptions []model.AccountProviderDescription) error {
	if len(descriptions) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tTITLE\tPRODUCTION\tUPDATED")
	for _, d := range descriptions {
		production := "no"
		if d.IsProduction {
			production = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Title, production, FormatTimestamp(d.Updated))
	}

	return nil
}

// PrintTaskRecords prints task records with their steps.
func (t *TablePrinter) PrintTaskRecords(records []task.Record) error {
	for i, r := range records {
		if i > 0 {
			fmt.Fprintln(t.writer)
		}

		result := "succeeded"
		if r.Failed {
			result = "failed"
		}
		fmt.Fprintf(t.writer, "%s %s %s (%s)\n", r.Operation, r.Subject, result, FormatTimestamp(r.CreatedAt))

		tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
		for _, s := range r.Steps {
			msg := s.Message
			if s.Error != "" {
				msg = s.Error
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", s.Sequence, s.Status, s.Description, msg)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
