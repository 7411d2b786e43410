package accountdelete

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/lendr/internal/accountstate"
	"github.com/slok/lendr/internal/bookregistry"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/storage"
	"github.com/slok/lendr/internal/task"
)

// ServiceConfig is the configuration for the account deletion service.
type ServiceConfig struct {
	Profiles storage.ProfileRepository
	Accounts storage.AccountRepository
	Books    storage.BookRepository
	Content  storage.ContentRepository
	States   *accountstate.Store
	Registry *bookregistry.Registry
	Logger   log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Profiles == nil {
		return fmt.Errorf("profiles repository is required")
	}
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
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.AccountDelete"})
	return nil
}

// Service handles the account deletion business logic.
type Service struct {
	profiles storage.ProfileRepository
	accounts storage.AccountRepository
	books    storage.BookRepository
	content  storage.ContentRepository
	states   *accountstate.Store
	registry *bookregistry.Registry
	logger   log.Logger
}

// NewService creates a new account deletion service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		profiles: cfg.Profiles,
		accounts: cfg.Accounts,
		books:    cfg.Books,
		content:  cfg.Content,
		states:   cfg.States,
		registry: cfg.Registry,
		logger:   cfg.Logger,
	}, nil
}

// DeleteByProvider deletes the account of the current profile for the provider,
// with its books. The last account of a profile can't be deleted.
func (s *Service) DeleteByProvider(ctx context.Context, providerID string) (res model.TaskResult[struct{}]) {
	rec := model.NewTaskRecorder()
	events := s.states.Events()
	logger := s.logger.WithValues(log.Kv{"provider-id": providerID})

	failure := func() model.TaskResult[struct{}] {
		res := task.FinishFailure[model.TaskError, struct{}](rec)
		msg := "Account deletion failed"
		if err, ok := res.LastError(); ok {
			msg = err.Error()
			logger.Warningf("Account deletion failed: %s", err)
		}
		events.Publish(model.AccountDeletionFailed{Message: msg, Result: res})
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			msg := "account deletion: unexpected error"
			rec.CurrentStepFailedAppending(msg, model.UnexpectedException{Message: msg, Err: fmt.Errorf("%v", r)}, nil)
			res = failure()
		}
	}()

	step := func(desc string) {
		rec.BeginNewStep(desc)
		events.Publish(model.AccountDeletionInProgress{Message: desc})
	}
	unexpected := func(msg string, err error) model.TaskResult[struct{}] {
		rec.CurrentStepFailed(msg, model.UnexpectedException{Message: msg, Err: err}, err)
		return failure()
	}

	step("Finding account")
	profile, err := s.profiles.CurrentProfile(ctx)
	if err != nil {
		return unexpected("account deletion: no current profile", err)
	}
	accs, err := s.accounts.ListAccounts(ctx, profile.ID)
	if err != nil {
		return unexpected("account deletion: could not list the accounts", err)
	}
	acc, ok := findByProvider(accs, providerID)
	if !ok {
		terr := model.UnknownProvider{Message: "account deletion: the profile has no account for the provider", ProviderID: providerID}
		rec.CurrentStepFailed(terr.Message, terr, model.ErrNotFound)
		return failure()
	}
	if len(accs) == 1 {
		terr := model.CannotDeleteLastAccount{Message: "account deletion: the last account of a profile can't be deleted"}
		rec.CurrentStepFailed(terr.Message, terr, model.ErrLastAccount)
		return failure()
	}
	rec.CurrentStepSucceeded(fmt.Sprintf("Found account %s", acc.ID))
	logger = logger.WithValues(log.Kv{"account-id": acc.ID})

	step("Deleting book content")
	if err := s.deleteContent(ctx, acc.ID); err != nil {
		msg := "account deletion: could not delete the book content"
		rec.CurrentStepFailed(msg, model.BookDatabaseFailure{Message: msg, Err: err}, err)
		return failure()
	}
	rec.CurrentStepSucceeded("Deleted book content")

	step("Deleting account")
	if err := s.accounts.DeleteAccount(ctx, acc.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
		return unexpected("account deletion: could not delete the account", err)
	}
	s.registry.Clear(acc.ID)
	s.states.Forget(acc.ID)
	rec.CurrentStepSucceeded("Deleted account")

	if profile.MostRecentAccount == acc.ID {
		s.moveMostRecent(ctx, *profile, accs, acc.ID)
	}

	events.Publish(model.AccountDeletionSucceeded{Message: "Account deleted", AccountID: acc.ID, ProviderID: providerID})
	logger.Infof("Account deleted")
	return task.FinishSuccess(rec, struct{}{})
}

func (s *Service) deleteContent(ctx context.Context, id model.AccountID) error {
	books, err := s.books.ListBooks(ctx, id)
	if err != nil {
		return fmt.Errorf("could not list books: %w", err)
	}
	for _, b := range books {
		if err := s.content.Delete(ctx, b.ID); err != nil {
			return fmt.Errorf("could not delete content of book %s: %w", b.ID, err)
		}
	}
	return nil
}

// moveMostRecent points the profile most recent account to a remaining one.
func (s *Service) moveMostRecent(ctx context.Context, p model.Profile, accs []model.Account, deleted model.AccountID) {
	for _, a := range accs {
		if a.ID != deleted {
			p.MostRecentAccount = a.ID
			break
		}
	}
	if err := s.profiles.UpdateProfile(ctx, p); err != nil {
		s.logger.Warningf("Could not update the most recent account of profile %s: %s", p.ID, err)
	}
}

func findByProvider(accs []model.Account, providerID string) (model.Account, bool) {
	for _, a := range accs {
		if a.Provider.ID == providerID {
			return a, true
		}
	}
	return model.Account{}, false
}
