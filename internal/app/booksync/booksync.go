package booksync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slok/lendr/internal/accountstate"
	"github.com/slok/lendr/internal/bookregistry"
	"github.com/slok/lendr/internal/httpclient"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/opds"
	"github.com/slok/lendr/internal/storage"
	"github.com/slok/lendr/internal/task"
)

// ServiceConfig is the configuration for the book sync service.
type ServiceConfig struct {
	Accounts   storage.AccountRepository
	Books      storage.BookRepository
	Content    storage.ContentRepository
	States     *accountstate.Store
	Registry   *bookregistry.Registry
	HTTPClient httpclient.Client
	// MaxConcurrentSyncs is the number of accounts synced at the same time by SyncAll, defaults to 4.
	MaxConcurrentSyncs int
	Logger             log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Accounts == nil {
		return fmt.Errorf("accounts repository is required")
	}
	if c.Books == nil {
		return fmt.Errorf("books repository is required")
	}
	if c.Content == nil {
		return fmt.Errorf("content repository is required")
	}
	if c.States == nil {
		return fmt.Errorf("states store is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("book registry is required")
	}
	if c.HTTPClient == nil {
		return fmt.Errorf("http client is required")
	}
	if c.MaxConcurrentSyncs <= 0 {
		c.MaxConcurrentSyncs = 4
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.BookSync"})
	return nil
}

// Service reconciles the loans feed of accounts with the local books.
type Service struct {
	accounts    storage.AccountRepository
	books       storage.BookRepository
	content     storage.ContentRepository
	states      *accountstate.Store
	registry    *bookregistry.Registry
	client      httpclient.Client
	concurrency int
	logger      log.Logger
	now         func() time.Time
}

// NewService creates a new book sync service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		accounts:    cfg.Accounts,
		books:       cfg.Books,
		content:     cfg.Content,
		states:      cfg.States,
		registry:    cfg.Registry,
		client:      cfg.HTTPClient,
		concurrency: cfg.MaxConcurrentSyncs,
		logger:      cfg.Logger,
		now:         time.Now,
	}, nil
}

// Sync fetches the loans feed of the account and reconciles it with the local
// books. An expired session logs the account out without failing.
func (s *Service) Sync(ctx context.Context, accountID model.AccountID) (res model.TaskResult[struct{}]) {
	rec := model.NewTaskRecorder()
	logger := s.logger.WithValues(log.Kv{"account-id": accountID})
	failed := func(terr model.TaskError, err error) model.TaskResult[struct{}] {
		rec.CurrentStepFailed(terr.Error(), terr, err)
		return task.FinishFailure[model.TaskError, struct{}](rec)
	}

	defer func() {
		if r := recover(); r != nil {
			msg := "sync: unexpected error"
			rec.CurrentStepFailedAppending(msg, model.UnexpectedException{Message: msg, Err: fmt.Errorf("%v", r)}, nil)
			res = task.FinishFailure[model.TaskError, struct{}](rec)
		}
	}()

	rec.BeginNewStep("Loading account")
	acc, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		msg := "sync: could not load the account"
		return failed(model.UnexpectedException{Message: msg, Err: err}, err)
	}
	p := acc.Provider
	if !model.RequiresLogin(p.Authentication) || p.LoansURI == "" {
		rec.CurrentStepSucceeded("The provider has no loans to sync")
		return task.FinishSuccess(rec, struct{}{})
	}
	creds, ok := s.states.Credentials(accountID)
	if !ok {
		rec.CurrentStepSucceeded("The account is not logged in, nothing to sync")
		return task.FinishSuccess(rec, struct{}{})
	}
	rec.CurrentStepSucceeded("Loaded account")

	rec.BeginNewStep(fmt.Sprintf("Fetching loans feed %s", p.LoansURI))
	result := httpclient.Get(ctx, s.client, p.LoansURI, httpclient.AuthFromCredentials(creds))
	var data []byte
	switch r := result.(type) {
	case httpclient.OK:
		data, err = httpclient.ReadBody(r)
		if err != nil {
			msg := "sync: could not read the loans feed"
			return failed(model.ConnectionFailure{Message: msg, Err: err}, err)
		}
	case httpclient.Error:
		if r.Status == http.StatusUnauthorized {
			if err := s.states.Set(ctx, accountID, model.LoginStateNotLoggedIn{}); err != nil {
				logger.Errorf("Could not clear expired credentials: %s", err)
			}
			rec.CurrentStepSucceeded("The credentials have expired, logged out")
			logger.Infof("Credentials expired, account logged out")
			return task.FinishSuccess(rec, struct{}{})
		}
		return failed(httpclient.TaskErrorOf(fmt.Sprintf("sync: server error %d %s", r.Status, r.StatusText), r), nil)
	default:
		return failed(httpclient.TaskErrorOf("sync: could not connect to the server", r), nil)
	}
	rec.CurrentStepSucceeded("Fetched loans feed")

	rec.BeginNewStep("Parsing loans feed")
	feed, warnings, err := opds.ParseFeed(p.LoansURI, data)
	if err != nil {
		w, errs := opds.ParseMessages(p.LoansURI, err)
		msg := "sync: could not parse the loans feed"
		return failed(model.ServerParseError{Message: msg, Warnings: w, Errors: errs}, err)
	}
	for _, w := range warnings {
		logger.Warningf("Loans feed warning: %s", w)
	}
	rec.CurrentStepSucceeded(fmt.Sprintf("Parsed %d loans", len(feed.Entries)))

	rec.BeginNewStep("Updating books")
	remote := map[model.BookID]struct{}{}
	for _, e := range feed.Entries {
		id, err := s.upsert(ctx, accountID, e)
		if err != nil {
			msg := "sync: could not update a book"
			return failed(model.BookDatabaseFailure{Message: msg, Err: err}, err)
		}
		remote[id] = struct{}{}
	}
	rec.CurrentStepSucceeded(fmt.Sprintf("Updated %d books", len(remote)))

	rec.BeginNewStep("Removing returned books")
	local, err := s.localBooks(ctx, accountID)
	if err != nil {
		msg := "sync: could not list the local books"
		return failed(model.BookDatabaseFailure{Message: msg, Err: err}, err)
	}
	removed := 0
	for _, id := range local {
		if _, ok := remote[id]; ok {
			continue
		}
		if err := s.remove(ctx, id); err != nil {
			msg := "sync: could not remove a book"
			return failed(model.BookDatabaseFailure{Message: msg, Err: err}, err)
		}
		removed++
	}
	rec.CurrentStepSucceeded(fmt.Sprintf("Removed %d books", removed))

	logger.Infof("Synced %d loans, removed %d books", len(remote), removed)
	return task.FinishSuccess(rec, struct{}{})
}

func (s *Service) upsert(ctx context.Context, accountID model.AccountID, e model.FeedEntry) (model.BookID, error) {
	id := model.NewBookID(e.ID)
	now := s.now().UTC()

	book := model.Book{ID: id, AccountID: accountID, CreatedAt: now}
	existing, err := s.books.GetBook(ctx, id)
	switch {
	case err == nil:
		book = *existing
	case !errors.Is(err, model.ErrNotFound):
		return id, err
	}
	book.Entry = e
	book.UpdatedAt = now

	if err := s.books.CreateOrUpdateBook(ctx, book); err != nil {
		return id, err
	}

	status := model.StatusFromBook(book)
	if current, ok := s.registry.Book(id); ok && inProgress(current.Status) {
		status = current.Status
	}
	s.registry.Update(model.BookWithStatus{Book: book, Status: status})

	return id, nil
}

// inProgress statuses belong to running tasks, a sync must not override them.
func inProgress(st model.BookStatus) bool {
	switch st.(type) {
	case model.StatusRequestingDownload, model.StatusDownloading, model.StatusRequestingRevoke:
		return true
	}
	return false
}

func (s *Service) localBooks(ctx context.Context, accountID model.AccountID) ([]model.BookID, error) {
	books, err := s.books.ListBooks(ctx, accountID)
	if err != nil {
		return nil, err
	}

	set := map[model.BookID]struct{}{}
	for _, b := range books {
		set[b.ID] = struct{}{}
	}
	for _, b := range s.registry.BooksFor(accountID) {
		set[b.Book.ID] = struct{}{}
	}

	ids := make([]model.BookID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Service) remove(ctx context.Context, id model.BookID) error {
	if err := s.content.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.books.DeleteBook(ctx, id); err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}
	s.registry.Remove(id)
	return nil
}

// SyncAll syncs every account of the profile concurrently.
func (s *Service) SyncAll(ctx context.Context, profileID model.ProfileID) (map[model.AccountID]model.TaskResult[struct{}], error) {
	accounts, err := s.accounts.ListAccounts(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("could not list accounts: %w", err)
	}

	var mu sync.Mutex
	results := make(map[model.AccountID]model.TaskResult[struct{}], len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, acc := range accounts {
		g.Go(func() error {
			res := s.Sync(gctx, acc.ID)
			mu.Lock()
			results[acc.ID] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}
