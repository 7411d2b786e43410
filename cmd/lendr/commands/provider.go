package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

// ProviderListCommand lists the known library providers.
type ProviderListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewProviderListCommand returns the provider list command.
func NewProviderListCommand(rootCmd *RootCommand, providerCmd *kingpin.CmdClause) *ProviderListCommand {
	c := &ProviderListCommand{rootCmd: rootCmd}

	c.Cmd = providerCmd.Command("list", "List the libraries an account can be created for.")
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c ProviderListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ProviderListCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	if _, err := client.ProvidersRefresh(ctx).Get(ctx); err != nil {
		c.rootCmd.Logger.Warningf("Some provider sources failed: %s", err)
	}

	ds, err := client.Providers().Get(ctx)
	if err != nil {
		return err
	}
	return c.rootCmd.printer(c.format).PrintProviders(ds)
}

// ProviderRefreshCommand reloads the provider sources and updates the accounts
// whose library changed.
type ProviderRefreshCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewProviderRefreshCommand returns the provider refresh command.
func NewProviderRefreshCommand(rootCmd *RootCommand, providerCmd *kingpin.CmdClause) *ProviderRefreshCommand {
	c := &ProviderRefreshCommand{rootCmd: rootCmd}

	c.Cmd = providerCmd.Command("refresh", "Reload the libraries and update the accounts whose library changed.")

	return c
}

func (c ProviderRefreshCommand) Name() string { return c.Cmd.FullCommand() }

func (c ProviderRefreshCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	accs, err := client.ProfileAccounts(ctx).Get(ctx)
	if err != nil {
		return fmt.Errorf("could not list accounts: %w", err)
	}
	used := map[string]bool{}
	for _, a := range accs {
		used[a.Provider.ID] = true
	}

	if _, err := client.ProvidersRefresh(ctx).Get(ctx); err != nil {
		return fmt.Errorf("could not refresh providers: %w", err)
	}

	// Provider updates run in the background, resolve the used ones here so
	// the accounts are updated before exiting.
	updated := 0
	for id := range used {
		res, err := client.ProvidersUpdate(ctx, id).Get(ctx)
		if err != nil {
			return err
		}
		if res.Failed() {
			c.rootCmd.Logger.Warningf("Could not update provider %s: %s", id, res.Errors())
			continue
		}
		updated += res.Value
	}

	ds, err := client.Providers().Get(ctx)
	if err != nil {
		return err
	}

	return c.rootCmd.printer(formatTable).PrintMessage(fmt.Sprintf("%d libraries loaded, %d accounts updated", len(ds), updated))
}
