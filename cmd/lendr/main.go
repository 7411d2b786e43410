package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/slok/lendr/cmd/lendr/commands"
	"github.com/slok/lendr/internal/conventions"
	"github.com/slok/lendr/internal/log"
	loglogrus "github.com/slok/lendr/internal/log/logrus"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	// Env files only fill the variables that are not already set.
	if err := godotenv.Load(conventions.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not load %s file: %w", conventions.EnvFile, err)
	}

	app := kingpin.New("lendr", "Library books borrowing and reading tool.")
	app.Version(Version)
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	// Setup commands (registers flags).
	profileCmd := app.Command("profile", "Manage reader profiles.")
	profileListCmd := commands.NewProfileListCommand(rootCmd, profileCmd)
	profileCreateCmd := commands.NewProfileCreateCommand(rootCmd, profileCmd)
	profileSelectCmd := commands.NewProfileSelectCommand(rootCmd, profileCmd)
	profileDeleteCmd := commands.NewProfileDeleteCommand(rootCmd, profileCmd)

	accountCmd := app.Command("account", "Manage the library accounts of the current profile.")
	accountListCmd := commands.NewAccountListCommand(rootCmd, accountCmd)
	accountCreateCmd := commands.NewAccountCreateCommand(rootCmd, accountCmd)
	accountLoginCmd := commands.NewAccountLoginCommand(rootCmd, accountCmd)
	accountLogoutCmd := commands.NewAccountLogoutCommand(rootCmd, accountCmd)
	accountDeleteCmd := commands.NewAccountDeleteCommand(rootCmd, accountCmd)

	bookCmd := app.Command("book", "Manage the loans and holds of the current profile.")
	bookListCmd := commands.NewBookListCommand(rootCmd, bookCmd)
	bookSyncCmd := commands.NewBookSyncCommand(rootCmd, bookCmd)
	bookBorrowCmd := commands.NewBookBorrowCommand(rootCmd, bookCmd)
	bookRevokeCmd := commands.NewBookRevokeCommand(rootCmd, bookCmd)
	bookDeleteCmd := commands.NewBookDeleteCommand(rootCmd, bookCmd)
	bookReportCmd := commands.NewBookReportCommand(rootCmd, bookCmd)

	providerCmd := app.Command("provider", "Manage the library providers.")
	providerListCmd := commands.NewProviderListCommand(rootCmd, providerCmd)
	providerRefreshCmd := commands.NewProviderRefreshCommand(rootCmd, providerCmd)

	historyCmd := commands.NewHistoryCommand(rootCmd, app)
	serveCmd := commands.NewServeCommand(rootCmd, app)

	cmds := map[string]commands.Command{
		profileListCmd.Name():     profileListCmd,
		profileCreateCmd.Name():   profileCreateCmd,
		profileSelectCmd.Name():   profileSelectCmd,
		profileDeleteCmd.Name():   profileDeleteCmd,
		accountListCmd.Name():     accountListCmd,
		accountCreateCmd.Name():   accountCreateCmd,
		accountLoginCmd.Name():    accountLoginCmd,
		accountLogoutCmd.Name():   accountLogoutCmd,
		accountDeleteCmd.Name():   accountDeleteCmd,
		bookListCmd.Name():        bookListCmd,
		bookSyncCmd.Name():        bookSyncCmd,
		bookBorrowCmd.Name():      bookBorrowCmd,
		bookRevokeCmd.Name():      bookRevokeCmd,
		bookDeleteCmd.Name():      bookDeleteCmd,
		bookReportCmd.Name():      bookReportCmd,
		providerListCmd.Name():    providerListCmd,
		providerRefreshCmd.Name(): providerRefreshCmd,
		historyCmd.Name():         historyCmd,
		serveCmd.Name():           serveCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Printer output is not mixed with logs unless debug is enabled.
	printerCommands := map[string]bool{
		"profile list":  true,
		"account list":  true,
		"book list":     true,
		"provider list": true,
		"history":       true,
	}
	if printerCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}

	// Set logger.
	rootCmd.Logger = getLogger(*rootCmd)

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// getLogger returns the application logger.
func getLogger(config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // Stdout is kept for the printers.
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled")

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
