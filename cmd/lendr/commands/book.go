package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/lendr/internal/app/bookreport"
	"github.com/slok/lendr/internal/app/profilefeed"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/printer"
)

// BookListCommand lists the books of the current profile.
type BookListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	accountID string
	search    string
	sortBy    string
	filter    string
	format    string
}

// NewBookListCommand returns the book list command.
func NewBookListCommand(rootCmd *RootCommand, bookCmd *kingpin.CmdClause) *BookListCommand {
	c := &BookListCommand{rootCmd: rootCmd}

	c.Cmd = bookCmd.Command("list", "List the books of the current profile.")
	c.Cmd.Flag("account", "Only list the books of this account.").StringVar(&c.accountID)
	c.Cmd.Flag("search", "Only list the books whose title or authors contain the text.").StringVar(&c.search)
	c.Cmd.Flag("sort", "Sort order (title, author).").Default(string(profilefeed.SortByTitle)).
		EnumVar(&c.sortBy, string(profilefeed.SortByTitle), string(profilefeed.SortByAuthor))
	c.Cmd.Flag("filter", "Availability filter (all, loans, holds).").Default(string(profilefeed.FilterAll)).
		EnumVar(&c.filter, string(profilefeed.FilterAll), string(profilefeed.FilterLoans), string(profilefeed.FilterHolds))
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c BookListCommand) Name() string { return c.Cmd.FullCommand() }

func (c BookListCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	books, err := client.ProfileFeed(ctx, profilefeed.Request{
		AccountID: model.AccountID(c.accountID),
		Search:    c.search,
		SortBy:    profilefeed.SortBy(c.sortBy),
		Filter:    profilefeed.Filter(c.filter),
	}).Get(ctx)
	if err != nil {
		return fmt.Errorf("could not list books: %w", err)
	}

	return c.rootCmd.printer(c.format).PrintBooks(books)
}

// BookSyncCommand syncs the loans of the current profile accounts.
type BookSyncCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	accountID string
	format    string
}

// NewBookSyncCommand returns the book sync command.
func NewBookSyncCommand(rootCmd *RootCommand, bookCmd *kingpin.CmdClause) *BookSyncCommand {
	c := &BookSyncCommand{rootCmd: rootCmd}

	c.Cmd = bookCmd.Command("sync", "Sync the loans and holds with the libraries.")
	c.Cmd.Flag("account", "Only sync this account.").StringVar(&c.accountID)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c BookSyncCommand) Name() string { return c.Cmd.FullCommand() }

func (c BookSyncCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	ids := []model.AccountID{model.AccountID(c.accountID)}
	if c.accountID == "" {
		ids, err = syncableAccounts(ctx, client)
		if err != nil {
			return err
		}
	}

	p := c.rootCmd.printer(c.format)
	failed := 0
	for _, id := range ids {
		res, err := client.BooksSync(ctx, id).Get(ctx)
		if err != nil {
			return err
		}
		if err := printTask(p, "sync", string(id), res); err != nil {
			c.rootCmd.Logger.Errorf("Account %s: %s", id, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d accounts failed to sync", failed, len(ids))
	}

	return nil
}

// BookBorrowCommand borrows a book and downloads it.
type BookBorrowCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	bookID string
	format string
}

// NewBookBorrowCommand returns the book borrow command.
func NewBookBorrowCommand(rootCmd *RootCommand, bookCmd *kingpin.CmdClause) *BookBorrowCommand {
	c := &BookBorrowCommand{rootCmd: rootCmd}

	c.Cmd = bookCmd.Command("borrow", "Borrow a book and download its content.")
	c.Cmd.Arg("book", "ID of the book.").Required().StringVar(&c.bookID)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c BookBorrowCommand) Name() string { return c.Cmd.FullCommand() }

func (c BookBorrowCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	b, err := findBook(ctx, client, model.BookID(c.bookID))
	if err != nil {
		return err
	}

	unsubscribe := client.BookEvents().Subscribe(func(e model.BookEvent) {
		if e.BookID != b.Book.ID || e.Type != model.BookChanged {
			return
		}
		if cur, err := findBook(ctx, client, e.BookID); err == nil {
			c.rootCmd.Logger.Infof("%s: %s", cur.Book.Entry.Title, printer.StatusDescription(cur.Status))
		}
	})
	defer unsubscribe()

	res, err := client.BookBorrowWithDefaultAcquisition(ctx, b.Book.AccountID, b.Book.Entry).Get(ctx)
	if err != nil {
		return err
	}
	return printTask(c.rootCmd.printer(c.format), "borrow", c.bookID, res)
}

// BookRevokeCommand returns a loan or cancels a hold.
type BookRevokeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	bookID string
	format string
}

// NewBookRevokeCommand returns the book revoke command.
func NewBookRevokeCommand(rootCmd *RootCommand, bookCmd *kingpin.CmdClause) *BookRevokeCommand {
	c := &BookRevokeCommand{rootCmd: rootCmd}

	c.Cmd = bookCmd.Command("revoke", "Return a loan or cancel a hold.")
	c.Cmd.Arg("book", "ID of the book.").Required().StringVar(&c.bookID)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c BookRevokeCommand) Name() string { return c.Cmd.FullCommand() }

func (c BookRevokeCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	res, err := client.BookRevoke(ctx, model.BookID(c.bookID)).Get(ctx)
	if err != nil {
		return err
	}
	return printTask(c.rootCmd.printer(c.format), "revoke", c.bookID, res)
}

// BookDeleteCommand deletes the downloaded content of a book.
type BookDeleteCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	bookID string
}

// NewBookDeleteCommand returns the book delete command.
func NewBookDeleteCommand(rootCmd *RootCommand, bookCmd *kingpin.CmdClause) *BookDeleteCommand {
	c := &BookDeleteCommand{rootCmd: rootCmd}

	c.Cmd = bookCmd.Command("delete", "Delete the downloaded content of a book.")
	c.Cmd.Arg("book", "ID of the book.").Required().StringVar(&c.bookID)

	return c
}

func (c BookDeleteCommand) Name() string { return c.Cmd.FullCommand() }

func (c BookDeleteCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	if _, err := client.BookDelete(ctx, model.BookID(c.bookID)).Get(ctx); err != nil {
		return fmt.Errorf("could not delete book: %w", err)
	}

	return c.rootCmd.printer(formatTable).PrintMessage(fmt.Sprintf("Book %s deleted", c.bookID))
}

// BookReportCommand reports a problem with a book to its library.
type BookReportCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	bookID     string
	reportType string
}

// NewBookReportCommand returns the book report command.
func NewBookReportCommand(rootCmd *RootCommand, bookCmd *kingpin.CmdClause) *BookReportCommand {
	c := &BookReportCommand{rootCmd: rootCmd}

	c.Cmd = bookCmd.Command("report", "Report a problem with a book to its library.")
	c.Cmd.Arg("book", "ID of the book.").Required().StringVar(&c.bookID)
	c.Cmd.Flag("type", "Problem type URI.").Default("http://librarysimplified.org/terms/problem/wrong-genre").StringVar(&c.reportType)

	return c
}

func (c BookReportCommand) Name() string { return c.Cmd.FullCommand() }

func (c BookReportCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	b, err := findBook(ctx, client, model.BookID(c.bookID))
	if err != nil {
		return err
	}

	req := bookreport.RequestFor(b.Book.AccountID, b.Book.Entry, c.reportType)
	if _, err := client.BookReport(ctx, req).Get(ctx); err != nil {
		return fmt.Errorf("could not report book: %w", err)
	}

	return c.rootCmd.printer(formatTable).PrintMessage(fmt.Sprintf("Problem with %s reported", b.Book.Entry.Title))
}
