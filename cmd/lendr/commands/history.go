package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

// HistoryCommand shows the finished tasks of a book or an account.
type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	subject string
	format  string
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "Show the finished tasks of a book, an account or a provider.")
	c.Cmd.Arg("subject", "ID of the book, account or provider.").Required().StringVar(&c.subject)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	records, err := client.TaskHistory(ctx, c.subject).Get(ctx)
	if err != nil {
		return fmt.Errorf("could not get task history: %w", err)
	}

	return c.rootCmd.printer(c.format).PrintTaskRecords(records)
}
