package revoke

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/lendr/internal/accountstate"
	"github.com/slok/lendr/internal/bookregistry"
	"github.com/slok/lendr/internal/drm"
	"github.com/slok/lendr/internal/httpclient"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/opds"
	"github.com/slok/lendr/internal/storage"
	"github.com/slok/lendr/internal/task"
)

// ServiceConfig is the configuration for the revoke service.
type ServiceConfig struct {
	Accounts   storage.AccountRepository
	Books      storage.BookRepository
	Content    storage.ContentRepository
	States     *accountstate.Store
	Registry   *bookregistry.Registry
	HTTPClient httpclient.Client
	// DRM is optional, Adobe loans can't be returned without it.
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
	if c.HTTPClient == nil {
		return fmt.Errorf("http client is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Revoke"})
	return nil
}

// Service returns loans to the library.
type Service struct {
	accounts storage.AccountRepository
	books    storage.BookRepository
	content  storage.ContentRepository
	states   *accountstate.Store
	registry *bookregistry.Registry
	client   httpclient.Client
	drm      drm.Connector
	logger   log.Logger
	now      func() time.Time
}

// NewService creates a new revoke service.
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
		client:   cfg.HTTPClient,
		drm:      cfg.DRM,
		logger:   cfg.Logger,
		now:      time.Now,
	}, nil
}

// Revoke returns the loan of the book. A failed revoke leaves the book in the
// FailedRevoke status until it's dismissed.
func (s *Service) Revoke(ctx context.Context, id model.BookID) (res model.TaskResult[struct{}]) {
	rec := model.NewTaskRecorder()
	logger := s.logger.WithValues(log.Kv{"book-id": id})
	s.registry.UpdateStatus(id, model.StatusRequestingRevoke{})

	defer func() {
		if r := recover(); r != nil {
			msg := "revoke: unexpected error"
			rec.CurrentStepFailedAppending(msg, model.UnexpectedException{Message: msg, Err: fmt.Errorf("%v", r)}, nil)
			res = s.failure(id, rec, logger)
		}
	}()

	if err := s.revoke(ctx, id, rec, logger); err != nil {
		return s.failure(id, rec, logger)
	}

	logger.Infof("Loan revoked")
	return task.FinishSuccess(rec, struct{}{})
}

func (s *Service) failure(id model.BookID, rec *model.TaskRecorder, logger log.Logger) model.TaskResult[struct{}] {
	res := task.FinishFailure[model.TaskError, struct{}](rec)
	s.registry.UpdateStatus(id, model.StatusFailedRevoke{Result: res})
	if err, ok := res.LastError(); ok {
		logger.Warningf("Revoke failed: %s", err)
	}
	return res
}

func fail(rec *model.TaskRecorder, terr model.TaskError, err error) model.TaskError {
	rec.CurrentStepFailed(terr.Error(), terr, err)
	return terr
}

func (s *Service) revoke(ctx context.Context, id model.BookID, rec *model.TaskRecorder, logger log.Logger) model.TaskError {
	rec.BeginNewStep("Loading book")
	book, err := s.book(ctx, id)
	if err != nil {
		msg := "revoke: could not load the book"
		return fail(rec, model.BookDatabaseFailure{Message: msg, Err: err}, err)
	}
	rec.CurrentStepSucceeded("Loaded book")

	rec.BeginNewStep("Loading account")
	if _, err := s.accounts.GetAccount(ctx, book.AccountID); err != nil {
		msg := "revoke: could not load the account"
		return fail(rec, model.UnexpectedException{Message: msg, Err: err}, err)
	}
	creds, _ := s.states.Credentials(book.AccountID)
	rec.CurrentStepSucceeded("Loaded account")

	if terr := s.returnDRMLoan(ctx, &book, creds, rec); terr != nil {
		return terr
	}

	rec.BeginNewStep("Revoking loan")
	uri := model.RevokeURIOf(book.Entry.Availability)
	if uri == "" {
		return fail(rec, model.MissingInformation{Message: "revoke: the book has no revoke link"}, nil)
	}
	data, terr := s.fetch(ctx, uri, httpclient.AuthFromCredentials(creds), rec)
	if terr != nil {
		return terr
	}
	rec.CurrentStepSucceeded("Revoked loan")

	rec.BeginNewStep("Parsing revoke feed")
	entry, _, err := opds.ParseEntry(uri, data)
	if err != nil {
		w, errs := opds.ParseMessages(uri, err)
		msg := "revoke: could not parse the revoke feed"
		return fail(rec, model.ServerParseError{Message: msg, Warnings: w, Errors: errs}, err)
	}
	if entry.ID != book.Entry.ID {
		logger.Warningf("Revoke feed returned entry %q, keeping %q", entry.ID, book.Entry.ID)
		entry.ID = book.Entry.ID
	}
	rec.CurrentStepSucceeded(fmt.Sprintf("Book availability is %s", availabilityKind(entry.Availability)))

	if _, revoked := entry.Availability.(model.AvailabilityRevoked); revoked {
		return s.remove(ctx, book, rec)
	}
	return s.update(ctx, book, entry, rec)
}

// book returns the book from the database, books only known by the registry
// are still revocable.
func (s *Service) book(ctx context.Context, id model.BookID) (model.Book, error) {
	b, err := s.books.GetBook(ctx, id)
	if err == nil {
		return *b, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.Book{}, err
	}

	bws, rerr := s.registry.BookOrErr(id)
	if rerr != nil {
		return model.Book{}, rerr
	}
	return bws.Book, nil
}

func (s *Service) returnDRMLoan(ctx context.Context, book *model.Book, creds model.AccountAuthenticationCredentials, rec *model.TaskRecorder) model.TaskError {
	if book.AdobeLoanID == "" || creds == nil {
		return nil
	}
	adobe := creds.Adobe()
	if adobe == nil || adobe.PostActivation == nil {
		return nil
	}

	rec.BeginNewStep("Returning DRM loan")
	if s.drm == nil {
		return fail(rec, model.DRMNotSupported{Message: "revoke: Adobe DRM is not supported", System: "Adobe ACS"}, nil)
	}
	if err := s.drm.ReturnLoan(ctx, book.AdobeLoanID, *adobe); err != nil {
		msg := "revoke: could not return the DRM loan"
		return fail(rec, model.DRMFailure{Message: msg, ErrorCode: drm.ErrorCode(err)}, err)
	}

	// The DRM loan is gone even if the library fails later.
	book.AdobeLoanID = ""
	if err := s.books.CreateOrUpdateBook(ctx, *book); err != nil {
		msg := "revoke: could not update the book database"
		return fail(rec, model.BookDatabaseFailure{Message: msg, Err: err}, err)
	}
	rec.CurrentStepSucceeded("Returned DRM loan")

	return nil
}

func (s *Service) fetch(ctx context.Context, uri string, auth *httpclient.Auth, rec *model.TaskRecorder) ([]byte, model.TaskError) {
	msg := "revoke: could not revoke the loan"
	result := httpclient.Get(ctx, s.client, uri, auth)
	ok, isOK := result.(httpclient.OK)
	if !isOK {
		return nil, fail(rec, httpclient.TaskErrorOf(msg, result), nil)
	}

	data, err := httpclient.ReadBody(ok)
	if err != nil {
		if httpclient.IsTimeout(err) {
			return nil, fail(rec, model.Timeout{Message: msg, URI: uri}, err)
		}
		return nil, fail(rec, model.ConnectionFailure{Message: msg, Err: err}, err)
	}
	return data, nil
}

func (s *Service) remove(ctx context.Context, book model.Book, rec *model.TaskRecorder) model.TaskError {
	rec.BeginNewStep("Deleting book")
	if err := s.content.Delete(ctx, book.ID); err != nil {
		msg := "revoke: could not delete the book content"
		return fail(rec, model.BookDatabaseFailure{Message: msg, Err: err}, err)
	}
	if err := s.books.DeleteBook(ctx, book.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
		msg := "revoke: could not delete the book"
		return fail(rec, model.BookDatabaseFailure{Message: msg, Err: err}, err)
	}
	s.registry.Remove(book.ID)
	rec.CurrentStepSucceeded("Deleted book")

	return nil
}

func (s *Service) update(ctx context.Context, book model.Book, entry model.FeedEntry, rec *model.TaskRecorder) model.TaskError {
	rec.BeginNewStep("Updating book")
	book.Entry = entry
	book.UpdatedAt = s.now().UTC()

	switch entry.Availability.(type) {
	case model.AvailabilityLoaned, model.AvailabilityOpenAccess:
	default:
		// Not on loan anymore.
		if err := s.content.Delete(ctx, book.ID); err != nil {
			msg := "revoke: could not delete the book content"
			return fail(rec, model.BookDatabaseFailure{Message: msg, Err: err}, err)
		}
		book.ContentPath = ""
		book.ContentType = ""
	}

	if err := s.books.CreateOrUpdateBook(ctx, book); err != nil {
		msg := "revoke: could not update the book database"
		return fail(rec, model.BookDatabaseFailure{Message: msg, Err: err}, err)
	}
	s.registry.Update(model.BookWithStatus{Book: book, Status: model.StatusFromBook(book)})
	rec.CurrentStepSucceeded("Updated book")

	return nil
}

func availabilityKind(a model.Availability) string {
	if a == nil {
		return "unknown"
	}
	return a.Kind()
}
