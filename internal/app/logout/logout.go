package logout

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/lendr/internal/accountstate"
	"github.com/slok/lendr/internal/bookregistry"
	"github.com/slok/lendr/internal/drm"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/storage"
	"github.com/slok/lendr/internal/task"
)

// ServiceConfig is the configuration for the logout service.
type ServiceConfig struct {
	Accounts storage.AccountRepository
	Books    storage.BookRepository
	Content  storage.ContentRepository
	States   *accountstate.Store
	Registry *bookregistry.Registry
	// DRM is optional, without it activated devices are left as they are.
	DRM    drm.Connector
	Logger log.Logger
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
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Logout"})
	return nil
}

// Service handles the account logout business logic.
type Service struct {
	accounts storage.AccountRepository
	books    storage.BookRepository
	content  storage.ContentRepository
	states   *accountstate.Store
	registry *bookregistry.Registry
	drm      drm.Connector
	logger   log.Logger
}

// NewService creates a new logout service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		accounts: cfg.Accounts,
		books:    cfg.Books,
		content:  cfg.Content,
		states:   cfg.States,
		registry: cfg.Registry,
		drm:      cfg.DRM,
		logger:   cfg.Logger,
	}, nil
}

// Logout deactivates the DRM device of the account, deletes its books and
// clears its credentials.
func (s *Service) Logout(ctx context.Context, id model.AccountID) (res model.TaskResult[struct{}]) {
	rec := model.NewTaskRecorder()
	logger := s.logger.WithValues(log.Kv{"account-id": id})
	creds, _ := s.states.Credentials(id)

	failure := func() model.TaskResult[struct{}] {
		res := task.FinishFailure[model.TaskError, struct{}](rec)
		if err := s.states.Set(ctx, id, model.LoginStateLogoutFailed{Credentials: creds, Result: res}); err != nil {
			logger.Errorf("Could not set logout failed state: %s", err)
		}
		if err, ok := res.LastError(); ok {
			logger.Warningf("Logout failed: %s", err)
		}
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			msg := "logout: unexpected error"
			rec.CurrentStepFailedAppending(msg, model.UnexpectedException{Message: msg, Err: fmt.Errorf("%v", r)}, nil)
			res = failure()
		}
	}()

	rec.BeginNewStep("Loading account")
	if _, err := s.accounts.GetAccount(ctx, id); err != nil {
		msg := "logout: could not load the account"
		rec.CurrentStepFailed(msg, model.UnexpectedException{Message: msg, Err: err}, err)
		return task.FinishFailure[model.TaskError, struct{}](rec)
	}
	if err := s.states.Set(ctx, id, model.LoginStateLoggingOut{Credentials: creds, Status: "Logging out"}); err != nil {
		logger.Warningf("Could not set logging out state: %s", err)
	}
	rec.CurrentStepSucceeded("Loaded account")

	if terr := s.deactivate(ctx, creds, rec); terr != nil {
		return failure()
	}

	rec.BeginNewStep("Deleting books")
	n, err := s.deleteBooks(ctx, id)
	if err != nil {
		msg := "logout: could not delete the books"
		rec.CurrentStepFailed(msg, model.BookDatabaseFailure{Message: msg, Err: err}, err)
		return failure()
	}
	rec.CurrentStepSucceeded(fmt.Sprintf("Deleted %d books", n))

	rec.BeginNewStep("Clearing credentials")
	if err := s.states.Set(ctx, id, model.LoginStateNotLoggedIn{}); err != nil {
		msg := "logout: could not clear the credentials"
		rec.CurrentStepFailed(msg, model.UnexpectedException{Message: msg, Err: err}, err)
		return failure()
	}
	rec.CurrentStepSucceeded("Logged out")

	logger.Infof("Logged out")
	return task.FinishSuccess(rec, struct{}{})
}

func (s *Service) deactivate(ctx context.Context, creds model.AccountAuthenticationCredentials, rec *model.TaskRecorder) model.TaskError {
	if creds == nil {
		return nil
	}
	adobe := creds.Adobe()
	if adobe == nil || adobe.PostActivation == nil {
		return nil
	}

	rec.BeginNewStep("Deactivating device")
	if s.drm == nil {
		rec.CurrentStepSucceeded("No DRM support, the device is left activated")
		return nil
	}
	if err := s.drm.DeactivateDevice(ctx, *adobe); err != nil {
		terr := model.DRMFailure{Message: "logout: device deactivation failed", ErrorCode: drm.ErrorCode(err)}
		rec.CurrentStepFailed(terr.Error(), terr, err)
		return terr
	}
	rec.CurrentStepSucceeded(fmt.Sprintf("Deactivated device %s", adobe.PostActivation.DeviceID))

	return nil
}

func (s *Service) deleteBooks(ctx context.Context, id model.AccountID) (int, error) {
	books, err := s.books.ListBooks(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("could not list books: %w", err)
	}

	for _, b := range books {
		if err := s.content.Delete(ctx, b.ID); err != nil {
			return 0, fmt.Errorf("could not delete content of book %s: %w", b.ID, err)
		}
		if err := s.books.DeleteBook(ctx, b.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
			return 0, fmt.Errorf("could not delete book %s: %w", b.ID, err)
		}
	}
	s.registry.Clear(id)

	return len(books), nil
}
