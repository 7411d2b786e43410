package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/lendr/internal/conventions"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/pkg/lib"
)

// AccountListCommand lists the accounts of the current profile.
type AccountListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewAccountListCommand returns the account list command.
func NewAccountListCommand(rootCmd *RootCommand, accountCmd *kingpin.CmdClause) *AccountListCommand {
	c := &AccountListCommand{rootCmd: rootCmd}

	c.Cmd = accountCmd.Command("list", "List the library accounts of the current profile.")
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c AccountListCommand) Name() string { return c.Cmd.FullCommand() }

func (c AccountListCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	accs, err := client.ProfileAccounts(ctx).Get(ctx)
	if err != nil {
		return fmt.Errorf("could not list accounts: %w", err)
	}

	states := map[model.AccountID]model.AccountLoginState{}
	for _, a := range accs {
		s, err := client.AccountLoginState(a.ID).Get(ctx)
		if err != nil {
			return err
		}
		states[a.ID] = s
	}

	return c.rootCmd.printer(c.format).PrintAccounts(accs, states)
}

// AccountCreateCommand creates an account in the current profile.
type AccountCreateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	providerID string
	opds       bool
	format     string
}

// NewAccountCreateCommand returns the account create command.
func NewAccountCreateCommand(rootCmd *RootCommand, accountCmd *kingpin.CmdClause) *AccountCreateCommand {
	c := &AccountCreateCommand{rootCmd: rootCmd}

	c.Cmd = accountCmd.Command("create", "Add a library account to the current profile.")
	c.Cmd.Arg("provider", "ID of the library provider, or the catalog URI with --opds.").Required().StringVar(&c.providerID)
	c.Cmd.Flag("opds", "Create the account for a bare OPDS catalog URI.").BoolVar(&c.opds)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c AccountCreateCommand) Name() string { return c.Cmd.FullCommand() }

func (c AccountCreateCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	if c.opds {
		res, err := client.ProfileAccountCreateCustomOPDS(ctx, c.providerID).Get(ctx)
		if err != nil {
			return err
		}
		return printTask(c.rootCmd.printer(c.format), "account-create", c.providerID, res)
	}

	// Descriptions only live in memory, they are loaded on every run.
	if _, err := client.ProvidersRefresh(ctx).Get(ctx); err != nil {
		c.rootCmd.Logger.Warningf("Some provider sources failed: %s", err)
	}

	res, err := client.ProfileAccountCreateOrReturnExisting(ctx, c.providerID).Get(ctx)
	if err != nil {
		return err
	}
	return printTask(c.rootCmd.printer(c.format), "account-create", c.providerID, res)
}

// AccountLoginCommand logs an account in.
type AccountLoginCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	accountID string
	username  string
	password  string
	format    string
}

// NewAccountLoginCommand returns the account login command.
func NewAccountLoginCommand(rootCmd *RootCommand, accountCmd *kingpin.CmdClause) *AccountLoginCommand {
	c := &AccountLoginCommand{rootCmd: rootCmd}

	c.Cmd = accountCmd.Command("login", "Log a library account in with its library card.")
	c.Cmd.Arg("account", "ID of the account.").Required().StringVar(&c.accountID)
	c.Cmd.Flag("username", "Library card barcode or username.").Required().StringVar(&c.username)
	c.Cmd.Flag("password", "Library card PIN or password.").Envar(conventions.EnvPrefix + "_PASSWORD").StringVar(&c.password)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c AccountLoginCommand) Name() string { return c.Cmd.FullCommand() }

func (c AccountLoginCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	acc, err := findAccount(ctx, client, model.AccountID(c.accountID))
	if err != nil {
		return err
	}

	var desc model.AuthBasic
	switch a := acc.Provider.Authentication.(type) {
	case model.AuthBasic:
		desc = a
	case nil, model.AuthAnonymous:
		return fmt.Errorf("library %s doesn't require a login", acc.Provider.DisplayName)
	default:
		return fmt.Errorf("%s authentication can't be used from the command line", a.Type())
	}

	res, err := client.ProfileAccountLogin(ctx, model.LoginBasic{
		AccountID:   acc.ID,
		Username:    c.username,
		Password:    c.password,
		Description: desc,
	}).Get(ctx)
	if err != nil {
		return err
	}
	return printTask(c.rootCmd.printer(c.format), "login", c.accountID, res)
}

// AccountLogoutCommand logs an account out.
type AccountLogoutCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	accountID string
	format    string
}

// NewAccountLogoutCommand returns the account logout command.
func NewAccountLogoutCommand(rootCmd *RootCommand, accountCmd *kingpin.CmdClause) *AccountLogoutCommand {
	c := &AccountLogoutCommand{rootCmd: rootCmd}

	c.Cmd = accountCmd.Command("logout", "Log a library account out, its books are deleted.")
	c.Cmd.Arg("account", "ID of the account.").Required().StringVar(&c.accountID)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c AccountLogoutCommand) Name() string { return c.Cmd.FullCommand() }

func (c AccountLogoutCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	res, err := client.ProfileAccountLogout(ctx, model.AccountID(c.accountID)).Get(ctx)
	if err != nil {
		return err
	}
	return printTask(c.rootCmd.printer(c.format), "logout", c.accountID, res)
}

// AccountDeleteCommand deletes the account of a provider.
type AccountDeleteCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	providerID string
	format     string
}

// NewAccountDeleteCommand returns the account delete command.
func NewAccountDeleteCommand(rootCmd *RootCommand, accountCmd *kingpin.CmdClause) *AccountDeleteCommand {
	c := &AccountDeleteCommand{rootCmd: rootCmd}

	c.Cmd = accountCmd.Command("delete", "Delete the current profile account of a library.")
	c.Cmd.Arg("provider", "ID of the library provider.").Required().StringVar(&c.providerID)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c AccountDeleteCommand) Name() string { return c.Cmd.FullCommand() }

func (c AccountDeleteCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	res, err := client.ProfileAccountDeleteByProvider(ctx, c.providerID).Get(ctx)
	if err != nil {
		return err
	}
	return printTask(c.rootCmd.printer(c.format), "account-delete", c.providerID, res)
}

func findAccount(ctx context.Context, client *lib.Client, id model.AccountID) (model.Account, error) {
	accs, err := client.ProfileAccounts(ctx).Get(ctx)
	if err != nil {
		return model.Account{}, err
	}
	for _, a := range accs {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Account{}, fmt.Errorf("account %s: %w", id, model.ErrNotFound)
}
