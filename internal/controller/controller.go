package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/slok/lendr/internal/accountstate"
	"github.com/slok/lendr/internal/app/accountcreate"
	"github.com/slok/lendr/internal/app/accountdelete"
	"github.com/slok/lendr/internal/app/accountproviderupdate"
	"github.com/slok/lendr/internal/app/bookdelete"
	"github.com/slok/lendr/internal/app/bookdismiss"
	"github.com/slok/lendr/internal/app/bookreport"
	"github.com/slok/lendr/internal/app/booksync"
	"github.com/slok/lendr/internal/app/borrow"
	"github.com/slok/lendr/internal/app/login"
	"github.com/slok/lendr/internal/app/logout"
	"github.com/slok/lendr/internal/app/profile"
	"github.com/slok/lendr/internal/app/profilefeed"
	"github.com/slok/lendr/internal/app/revoke"
	"github.com/slok/lendr/internal/bookregistry"
	"github.com/slok/lendr/internal/drm"
	"github.com/slok/lendr/internal/event"
	"github.com/slok/lendr/internal/httpclient"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/metrics"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/provider"
	"github.com/slok/lendr/internal/storage"
	"github.com/slok/lendr/internal/task"
	"github.com/slok/lendr/internal/worker"
)

// Task operation names used in metrics and the task history.
const (
	opAccountCreate  = "account-create"
	opAccountDelete  = "account-delete"
	opLogin          = "login"
	opLogout         = "logout"
	opSync           = "sync"
	opBorrow         = "borrow"
	opRevoke         = "revoke"
	opProviderUpdate = "provider-update"
)

// Config is the configuration of the controller.
type Config struct {
	Repository storage.Repository
	Content    storage.ContentRepository
	States     *accountstate.Store
	Books      *bookregistry.Registry
	Providers  *provider.Registry
	HTTPClient httpclient.Client
	// DRM is optional, without it Adobe DRM protected books can't be fulfilled.
	DRM drm.Connector
	// Workers is the number of tasks running at the same time, defaults to 4.
	Workers int
	Metrics metrics.Recorder
	Logger  log.Logger
}

func (c *Config) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Content == nil {
		return fmt.Errorf("content repository is required")
	}
	if c.States == nil {
		return fmt.Errorf("states store is required")
	}
	if c.Books == nil {
		return fmt.Errorf("book registry is required")
	}
	if c.Providers == nil {
		return fmt.Errorf("provider registry is required")
	}
	if c.HTTPClient == nil {
		return fmt.Errorf("http client is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers can't be negative")
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "controller.Controller"})
	return nil
}

// Controller is the single entry point of the library operations. Every
// operation runs as a task on a shared worker pool and returns a future.
type Controller struct {
	repo      storage.Repository
	states    *accountstate.Store
	books     *bookregistry.Registry
	providers *provider.Registry
	metrics   metrics.Recorder
	pool      *worker.Pool
	downloads *downloads
	logger    log.Logger

	profileSvc        *profile.Service
	profileFeedSvc    *profilefeed.Service
	accountCreateSvc  *accountcreate.Service
	accountDeleteSvc  *accountdelete.Service
	providerUpdateSvc *accountproviderupdate.Service
	loginSvc          *login.Service
	logoutSvc         *logout.Service
	syncSvc           *booksync.Service
	borrowSvc         *borrow.Service
	revokeSvc         *revoke.Service
	bookDeleteSvc     *bookdelete.Service
	bookDismissSvc    *bookdismiss.Service
	bookReportSvc     *bookreport.Service
	unsubscribes      []func()
}

// New creates a new controller and starts its worker pool.
func New(cfg Config) (*Controller, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Controller{
		repo:      cfg.Repository,
		states:    cfg.States,
		books:     cfg.Books,
		providers: cfg.Providers,
		metrics:   cfg.Metrics,
		downloads: newDownloads(),
		logger:    cfg.Logger,
	}
	if err := c.newServices(cfg); err != nil {
		return nil, err
	}

	pool, err := worker.NewPool(worker.PoolConfig{Workers: cfg.Workers, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}
	c.pool = pool

	c.unsubscribes = append(c.unsubscribes,
		c.providers.Events().Subscribe(c.onProviderEvent),
		c.books.Events().Subscribe(func(e model.BookEvent) {
			c.metrics.BookEvent(context.Background(), string(e.Type))
		}),
	)

	return c, nil
}

func (c *Controller) newServices(cfg Config) error {
	var err error
	repo := cfg.Repository
	logger := cfg.Logger
	errs := func(name string, err error) error {
		return fmt.Errorf("could not create %s service: %w", name, err)
	}

	if c.profileSvc, err = profile.NewService(profile.ServiceConfig{Profiles: repo, Accounts: repo, States: cfg.States, Logger: logger}); err != nil {
		return errs("profile", err)
	}
	if c.profileFeedSvc, err = profilefeed.NewService(profilefeed.ServiceConfig{Profiles: repo, Accounts: repo, Registry: cfg.Books, Logger: logger}); err != nil {
		return errs("profile feed", err)
	}
	if c.accountCreateSvc, err = accountcreate.NewService(accountcreate.ServiceConfig{
		Profiles:   repo,
		Accounts:   repo,
		States:     cfg.States,
		Providers:  cfg.Providers,
		HTTPClient: cfg.HTTPClient,
		Logger:     logger,
	}); err != nil {
		return errs("account creation", err)
	}
	if c.accountDeleteSvc, err = accountdelete.NewService(accountdelete.ServiceConfig{
		Profiles: repo,
		Accounts: repo,
		Books:    repo,
		Content:  cfg.Content,
		States:   cfg.States,
		Registry: cfg.Books,
		Logger:   logger,
	}); err != nil {
		return errs("account deletion", err)
	}
	if c.providerUpdateSvc, err = accountproviderupdate.NewService(accountproviderupdate.ServiceConfig{Profiles: repo, Accounts: repo, Providers: cfg.Providers, Logger: logger}); err != nil {
		return errs("account provider update", err)
	}
	if c.loginSvc, err = login.NewService(login.ServiceConfig{Accounts: repo, States: cfg.States, HTTPClient: cfg.HTTPClient, DRM: cfg.DRM, Logger: logger}); err != nil {
		return errs("login", err)
	}
	if c.logoutSvc, err = logout.NewService(logout.ServiceConfig{
		Accounts: repo,
		Books:    repo,
		Content:  cfg.Content,
		States:   cfg.States,
		Registry: cfg.Books,
		DRM:      cfg.DRM,
		Logger:   logger,
	}); err != nil {
		return errs("logout", err)
	}
	if c.syncSvc, err = booksync.NewService(booksync.ServiceConfig{
		Accounts:   repo,
		Books:      repo,
		Content:    cfg.Content,
		States:     cfg.States,
		Registry:   cfg.Books,
		HTTPClient: cfg.HTTPClient,
		Logger:     logger,
	}); err != nil {
		return errs("sync", err)
	}
	if c.borrowSvc, err = borrow.NewService(borrow.ServiceConfig{
		Accounts:   repo,
		Books:      repo,
		Content:    cfg.Content,
		States:     cfg.States,
		Registry:   cfg.Books,
		HTTPClient: cfg.HTTPClient,
		DRM:        cfg.DRM,
		Metrics:    cfg.Metrics,
		Logger:     logger,
	}); err != nil {
		return errs("borrow", err)
	}
	if c.revokeSvc, err = revoke.NewService(revoke.ServiceConfig{
		Accounts:   repo,
		Books:      repo,
		Content:    cfg.Content,
		States:     cfg.States,
		Registry:   cfg.Books,
		HTTPClient: cfg.HTTPClient,
		DRM:        cfg.DRM,
		Logger:     logger,
	}); err != nil {
		return errs("revoke", err)
	}
	if c.bookDeleteSvc, err = bookdelete.NewService(bookdelete.ServiceConfig{Books: repo, Content: cfg.Content, Registry: cfg.Books, Logger: logger}); err != nil {
		return errs("book deletion", err)
	}
	if c.bookDismissSvc, err = bookdismiss.NewService(bookdismiss.ServiceConfig{Books: repo, Registry: cfg.Books, Logger: logger}); err != nil {
		return errs("book dismiss", err)
	}
	if c.bookReportSvc, err = bookreport.NewService(bookreport.ServiceConfig{States: cfg.States, HTTPClient: cfg.HTTPClient, Logger: logger}); err != nil {
		return errs("book report", err)
	}

	return nil
}

// Close stops accepting operations, cancels the running downloads and waits
// for the running tasks until ctx is done.
func (c *Controller) Close(ctx context.Context) error {
	for _, unsubscribe := range c.unsubscribes {
		unsubscribe()
	}
	c.downloads.cancelAll()

	var merr *multierror.Error
	if err := c.pool.Stop(ctx); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("could not stop workers: %w", err))
	}
	return merr.ErrorOrNil()
}

// AccountEvents returns the account event stream.
func (c *Controller) AccountEvents() *event.Subject[model.AccountEvent] { return c.states.Events() }

// ProfileEvents returns the profile event stream.
func (c *Controller) ProfileEvents() *event.Subject[model.ProfileEvent] { return c.profileSvc.Events() }

// BookEvents returns the book registry event stream.
func (c *Controller) BookEvents() *event.Subject[model.BookEvent] { return c.books.Events() }

// ProviderEvents returns the account provider registry event stream.
func (c *Controller) ProviderEvents() *event.Subject[model.ProviderRegistryEvent] {
	return c.providers.Events()
}

// TaskHistory returns the recorded tasks of a book or account, every task when
// subject is empty.
func (c *Controller) TaskHistory(ctx context.Context, subject string) *worker.Future[[]task.Record] {
	return call(ctx, c, func(ctx context.Context) ([]task.Record, error) {
		return c.repo.ListTaskRecords(ctx, subject)
	})
}

// call runs fn on the pool.
func call[T any](ctx context.Context, c *Controller, fn func(ctx context.Context) (T, error)) *worker.Future[T] {
	return worker.Submit(ctx, c.pool, fn)
}

// runTask runs a recorded task on the pool, its outcome is counted and stored
// in the task history under subject.
func runTask[A any](ctx context.Context, c *Controller, operation, subject string, fn func(ctx context.Context) model.TaskResult[A]) *worker.Future[model.TaskResult[A]] {
	return worker.Submit(ctx, c.pool, func(ctx context.Context) (model.TaskResult[A], error) {
		start := time.Now()
		res := fn(ctx)
		c.taskFinished(ctx, operation, subject, res.Failed(), time.Since(start), task.NewRecord(operation, subject, res))
		return res, nil
	})
}

func (c *Controller) taskFinished(ctx context.Context, operation, subject string, failed bool, d time.Duration, rec task.Record) {
	c.metrics.TaskFinished(ctx, operation, failed, d)

	// The history outlives cancelled tasks.
	if err := c.repo.RecordTask(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.Warningf("Could not record %s task of %s: %s", operation, subject, err)
	}
}

func (c *Controller) onProviderEvent(e model.ProviderRegistryEvent) {
	updated, ok := e.(model.ProviderUpdated)
	if !ok {
		return
	}
	if _, err := c.repo.CurrentProfile(context.Background()); err != nil {
		if !errors.Is(err, model.ErrNoCurrentProfile) {
			c.logger.Warningf("Could not get the current profile: %s", err)
		}
		return
	}

	// Handlers must not block the publisher.
	go c.ProvidersUpdate(context.Background(), updated.ID)
}
