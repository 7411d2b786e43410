package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/lendr/internal/app/profile"
	"github.com/slok/lendr/internal/model"
)

// ProfileListCommand lists the profiles.
type ProfileListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewProfileListCommand returns the profile list command.
func NewProfileListCommand(rootCmd *RootCommand, profileCmd *kingpin.CmdClause) *ProfileListCommand {
	c := &ProfileListCommand{rootCmd: rootCmd}

	c.Cmd = profileCmd.Command("list", "List the reading profiles.")
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c ProfileListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ProfileListCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	ps, err := client.Profiles(ctx).Get(ctx)
	if err != nil {
		return fmt.Errorf("could not list profiles: %w", err)
	}
	current, err := currentProfileID(ctx, client)
	if err != nil {
		return fmt.Errorf("could not get current profile: %w", err)
	}

	return c.rootCmd.printer(c.format).PrintProfiles(ps, current)
}

// ProfileCreateCommand creates a profile.
type ProfileCreateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	name        string
	showTesting bool
	selectIt    bool
}

// NewProfileCreateCommand returns the profile create command.
func NewProfileCreateCommand(rootCmd *RootCommand, profileCmd *kingpin.CmdClause) *ProfileCreateCommand {
	c := &ProfileCreateCommand{rootCmd: rootCmd}

	c.Cmd = profileCmd.Command("create", "Create a reading profile.")
	c.Cmd.Arg("name", "Display name of the profile.").Required().StringVar(&c.name)
	c.Cmd.Flag("show-testing-libraries", "List testing libraries for the profile.").BoolVar(&c.showTesting)
	c.Cmd.Flag("select", "Select the profile once created.").BoolVar(&c.selectIt)

	return c
}

func (c ProfileCreateCommand) Name() string { return c.Cmd.FullCommand() }

func (c ProfileCreateCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	p, err := client.ProfileCreate(ctx, profile.CreateRequest{
		DisplayName: c.name,
		Preferences: model.ProfilePreferences{ShowTestingLibraries: c.showTesting},
	}).Get(ctx)
	if err != nil {
		return fmt.Errorf("could not create profile: %w", err)
	}

	if c.selectIt {
		if _, err := client.ProfileSelect(ctx, p.ID).Get(ctx); err != nil {
			return fmt.Errorf("could not select profile: %w", err)
		}
	}

	return c.rootCmd.printer(formatTable).PrintMessage(fmt.Sprintf("Profile %s created (%s)", p.DisplayName, p.ID))
}

// ProfileSelectCommand selects the current profile.
type ProfileSelectCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	profile string
}

// NewProfileSelectCommand returns the profile select command.
func NewProfileSelectCommand(rootCmd *RootCommand, profileCmd *kingpin.CmdClause) *ProfileSelectCommand {
	c := &ProfileSelectCommand{rootCmd: rootCmd}

	c.Cmd = profileCmd.Command("select", "Select the current reading profile.")
	c.Cmd.Arg("profile", "ID or display name of the profile.").Required().StringVar(&c.profile)

	return c
}

func (c ProfileSelectCommand) Name() string { return c.Cmd.FullCommand() }

func (c ProfileSelectCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	p, err := findProfile(ctx, client, strings.TrimSpace(c.profile))
	if err != nil {
		return err
	}
	if _, err := client.ProfileSelect(ctx, p.ID).Get(ctx); err != nil {
		return fmt.Errorf("could not select profile: %w", err)
	}

	return c.rootCmd.printer(formatTable).PrintMessage(fmt.Sprintf("Profile %s selected", p.DisplayName))
}

// ProfileDeleteCommand deletes a profile.
type ProfileDeleteCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	profile string
}

// NewProfileDeleteCommand returns the profile delete command.
func NewProfileDeleteCommand(rootCmd *RootCommand, profileCmd *kingpin.CmdClause) *ProfileDeleteCommand {
	c := &ProfileDeleteCommand{rootCmd: rootCmd}

	c.Cmd = profileCmd.Command("delete", "Delete a reading profile with its accounts and books.")
	c.Cmd.Arg("profile", "ID or display name of the profile.").Required().StringVar(&c.profile)

	return c
}

func (c ProfileDeleteCommand) Name() string { return c.Cmd.FullCommand() }

func (c ProfileDeleteCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient(ctx, nil)
	if err != nil {
		return err
	}
	defer c.rootCmd.close(ctx, client)

	p, err := findProfile(ctx, client, strings.TrimSpace(c.profile))
	if err != nil {
		return err
	}
	if _, err := client.ProfileDelete(ctx, p.ID).Get(ctx); err != nil {
		return fmt.Errorf("could not delete profile: %w", err)
	}

	return c.rootCmd.printer(formatTable).PrintMessage(fmt.Sprintf("Profile %s deleted", p.DisplayName))
}
