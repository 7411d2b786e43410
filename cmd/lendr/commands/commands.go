package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/lendr/internal/conventions"
	"github.com/slok/lendr/internal/drm/fake"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/printer"
	"github.com/slok/lendr/internal/task"
	"github.com/slok/lendr/pkg/lib"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	// DRMNone disables the DRM connector.
	DRMNone = "none"
	// DRMFake uses an in-process fake DRM connector, useful with test libraries.
	DRMFake = "fake"

	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug       bool
	NoLog       bool
	NoColor     bool
	LoggerType  string
	DataDir     string
	RegistryURI string
	DRM         string
	Workers     int

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// DefaultDataDir is the data directory used when none is configured.
func DefaultDataDir() string {
	return filepath.Join(homedir.HomeDir(), conventions.DefaultDataDir)
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)
	app.Flag("data-dir", "Directory of the book database and the downloaded books.").Default(DefaultDataDir()).StringVar(&c.DataDir)
	app.Flag("registry-uri", "Library registry the account providers are loaded from.").Default(conventions.DefaultRegistryURI).StringVar(&c.RegistryURI)
	app.Flag("drm", "DRM connector used for protected books.").Default(DRMNone).EnumVar(&c.DRM, DRMNone, DRMFake)
	app.Flag("workers", "Number of library tasks running at the same time.").Default("4").IntVar(&c.Workers)

	return c
}

// newClient returns a ready SDK client, the metrics are registered on reg when not nil.
func (r *RootCommand) newClient(ctx context.Context, reg prometheus.Registerer) (*lib.Client, error) {
	cfg := lib.Config{
		DataDir:           r.DataDir,
		Logger:            r.Logger,
		RegistryURI:       r.RegistryURI,
		Workers:           r.Workers,
		MetricsRegisterer: reg,
	}

	if r.DRM == DRMFake {
		conn, err := fake.NewConnector(fake.ConnectorConfig{Logger: r.Logger})
		if err != nil {
			return nil, fmt.Errorf("could not create fake drm connector: %w", err)
		}
		cfg.DRM = conn
	}

	client, err := lib.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not create client: %w", err)
	}
	return client, nil
}

func (r *RootCommand) printer(format string) printer.Printer {
	if format == formatJSON {
		return printer.NewJSONPrinter(r.Stdout)
	}
	return printer.NewTablePrinter(r.Stdout)
}

func (r *RootCommand) close(ctx context.Context, client *lib.Client) {
	if err := client.Close(context.WithoutCancel(ctx)); err != nil {
		r.Logger.Warningf("Could not close client: %s", err)
	}
}

func addFormatFlag(cmd *kingpin.CmdClause, format *string) {
	cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(format, formatTable, formatJSON)
}

// printTask prints the steps of a finished task and returns its error when it failed.
func printTask[A any](p printer.Printer, operation, subject string, res model.TaskResult[A]) error {
	if err := p.PrintTaskRecords([]task.Record{task.NewRecord(operation, subject, res)}); err != nil {
		return fmt.Errorf("could not print task: %w", err)
	}
	if !res.Failed() {
		return nil
	}

	if terr, ok := res.LastError(); ok {
		return fmt.Errorf("%s failed: %w", operation, terr)
	}
	return fmt.Errorf("%s failed", operation)
}

// findBook returns the book from the current profile books.
func findBook(ctx context.Context, client *lib.Client, id model.BookID) (model.BookWithStatus, error) {
	books, err := client.Books("").Get(ctx)
	if err != nil {
		return model.BookWithStatus{}, err
	}
	for _, b := range books {
		if b.Book.ID == id {
			return b, nil
		}
	}
	return model.BookWithStatus{}, fmt.Errorf("book %s: %w", id, model.ErrNotFound)
}

// findProfile finds a profile by ID or by display name.
func findProfile(ctx context.Context, client *lib.Client, idOrName string) (model.Profile, error) {
	ps, err := client.Profiles(ctx).Get(ctx)
	if err != nil {
		return model.Profile{}, err
	}
	for _, p := range ps {
		if string(p.ID) == idOrName || p.DisplayName == idOrName {
			return p, nil
		}
	}
	return model.Profile{}, fmt.Errorf("profile %s: %w", idOrName, model.ErrNotFound)
}

func currentProfileID(ctx context.Context, client *lib.Client) (model.ProfileID, error) {
	p, err := client.ProfileCurrent(ctx).Get(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNoCurrentProfile) {
			return "", nil
		}
		return "", err
	}
	return p.ID, nil
}

// syncableAccounts returns the current profile accounts that can be synced
// without asking for credentials.
func syncableAccounts(ctx context.Context, client *lib.Client) ([]model.AccountID, error) {
	accs, err := client.ProfileAccounts(ctx).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list accounts: %w", err)
	}

	var ids []model.AccountID
	for _, a := range accs {
		state, err := client.AccountLoginState(a.ID).Get(ctx)
		if err != nil {
			return nil, err
		}
		if _, ok := model.CredentialsOf(state); ok || !model.RequiresLogin(a.Provider.Authentication) {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}
