package lib

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/slok/lendr/internal/accountstate"
	"github.com/slok/lendr/internal/bookregistry"
	"github.com/slok/lendr/internal/controller"
	"github.com/slok/lendr/internal/conventions"
	"github.com/slok/lendr/internal/drm"
	"github.com/slok/lendr/internal/httpclient"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/metrics"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/provider"
	"github.com/slok/lendr/internal/storage/content"
	"github.com/slok/lendr/internal/storage/sqlite"
)

// Config configures the SDK client.
//
// All fields are optional. An empty Config{} stores everything under ~/.lendr
// and loads the providers from the public library registry.
type Config struct {
	// DataDir is the base directory for the database and the book content.
	// Default: ~/.lendr.
	DataDir string

	// DBPath is the SQLite database path.
	// Default: <DataDir>/lendr.db.
	DBPath string

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger

	// HTTPClient is the client used to talk to the libraries.
	// Default: a client with a 60s timeout.
	HTTPClient *http.Client

	// UserAgent is sent on every library request.
	UserAgent string

	// DRM is the Adobe DRM connector. Without it ACSM content can't be
	// fulfilled and logins skip the device activation.
	DRM DRMConnector

	// ProviderSources are the account provider sources merged on refresh.
	// Default: the library registry at RegistryURI plus <DataDir>/providers.yaml
	// when the file exists.
	ProviderSources []ProviderSource

	// RegistryURI is the library registry used by the default provider sources.
	// Default: the public library registry.
	RegistryURI string

	// Workers is the number of tasks running at the same time.
	// Default: 4.
	Workers int

	// MetricsRegisterer receives the SDK Prometheus metrics, metrics are
	// disabled when nil.
	MetricsRegisterer prometheus.Registerer
}

func (c *Config) defaults() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, conventions.DefaultDataDir)
	}

	if c.DBPath == "" {
		c.DBPath = conventions.DBPath(c.DataDir)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	if c.RegistryURI == "" {
		c.RegistryURI = conventions.DefaultRegistryURI
	}

	return nil
}

// Client is the SDK entry point. It embeds the library controller, every
// controller operation is available on the client.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use.
type Client struct {
	*controller.Controller

	repo   *sqlite.Repository
	logger log.Logger
}

// New creates a new SDK client backed by a SQLite database.
//
// The login states and the books of the current profile are restored before
// returning. The caller must call [Client.Close] when done.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	c, err := newClient(ctx, cfg, repo)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	return c, nil
}

func newClient(ctx context.Context, cfg Config, repo *sqlite.Repository) (*Client, error) {
	store, err := content.NewStore(content.StoreConfig{
		Dir:    conventions.BooksPath(cfg.DataDir),
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create content store: %w", err)
	}

	client, err := httpclient.NewClient(httpclient.ClientConfig{
		HTTPClient: cfg.HTTPClient,
		UserAgent:  cfg.UserAgent,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create http client: %w", err)
	}

	sources := cfg.ProviderSources
	if sources == nil {
		sources, err = defaultSources(cfg, client)
		if err != nil {
			return nil, err
		}
	}

	providers, err := provider.NewRegistry(provider.RegistryConfig{
		Sources:    sources,
		HTTPClient: client,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create provider registry: %w", err)
	}

	states, err := accountstate.NewStore(accountstate.StoreConfig{
		Repository: repo,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create login state store: %w", err)
	}

	var rec metrics.Recorder = metrics.Noop
	if cfg.MetricsRegisterer != nil {
		rec = metrics.NewPrometheus(cfg.MetricsRegisterer)
	}

	books := bookregistry.New(cfg.Logger)
	if err := restore(ctx, repo, states, books); err != nil {
		return nil, fmt.Errorf("could not restore current profile: %w", err)
	}

	ctrl, err := controller.New(controller.Config{
		Repository: repo,
		Content:    store,
		States:     states,
		Books:      books,
		Providers:  providers,
		HTTPClient: client,
		DRM:        cfg.DRM,
		Workers:    cfg.Workers,
		Metrics:    rec,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create controller: %w", err)
	}

	return &Client{
		Controller: ctrl,
		repo:       repo,
		logger:     cfg.Logger,
	}, nil
}

func defaultSources(cfg Config, client httpclient.Client) ([]provider.Source, error) {
	registry, err := provider.NewRegistrySource(provider.RegistrySourceConfig{
		URI:        cfg.RegistryURI,
		HTTPClient: client,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create registry source: %w", err)
	}
	sources := []provider.Source{registry}

	if _, err := os.Stat(conventions.ProvidersPath(cfg.DataDir)); err == nil {
		sources = append(sources, provider.NewYAMLSource(os.DirFS(cfg.DataDir), conventions.ProvidersFile))
	}

	return sources, nil
}

// restore loads the login states and the book database of the current profile.
func restore(ctx context.Context, repo *sqlite.Repository, states *accountstate.Store, books *bookregistry.Registry) error {
	p, err := repo.CurrentProfile(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNoCurrentProfile) {
			return nil
		}
		return err
	}

	accs, err := repo.ListAccounts(ctx, p.ID)
	if err != nil {
		return err
	}
	states.Load(accs)

	for _, acc := range accs {
		bs, err := repo.ListBooks(ctx, acc.ID)
		if err != nil {
			return err
		}
		for _, b := range bs {
			books.Update(model.BookWithStatus{Book: b, Status: model.StatusFromBook(b)})
		}
	}

	return nil
}

// Close stops the running tasks and releases the database connection. After
// Close returns, the client must not be used.
func (c *Client) Close(ctx context.Context) error {
	var merr *multierror.Error
	if err := c.Controller.Close(ctx); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("closing controller: %w", err))
	}
	if err := c.repo.Close(); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("closing repository: %w", err))
	}
	return merr.ErrorOrNil()
}

// DRMConnector is the Adobe DRM connector contract.
type DRMConnector = drm.Connector

// ProviderSource is a source of account provider descriptions.
type ProviderSource = provider.Source
