package borrow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"slices"
	"time"

	"github.com/slok/lendr/internal/accountstate"
	"github.com/slok/lendr/internal/bookregistry"
	"github.com/slok/lendr/internal/drm"
	"github.com/slok/lendr/internal/httpclient"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/metrics"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/opds"
	"github.com/slok/lendr/internal/storage"
	"github.com/slok/lendr/internal/storage/content"
	"github.com/slok/lendr/internal/task"
)

// SupportedContentTypes are the publication types that can be fulfilled.
var SupportedContentTypes = []string{opds.ContentTypeEPUB, opds.ContentTypePDF, opds.ContentTypeAudiobook}

const contentTypeOctetStream = "application/octet-stream"

// ServiceConfig is the configuration for the borrow service.
type ServiceConfig struct {
	Accounts   storage.AccountRepository
	Books      storage.BookRepository
	Content    storage.ContentRepository
	States     *accountstate.Store
	Registry   *bookregistry.Registry
	HTTPClient httpclient.Client
	// DRM is optional, without it ACSM fulfillment is not supported.
	DRM     drm.Connector
	Metrics metrics.Recorder
	Logger  log.Logger
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
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Borrow"})
	return nil
}

// Service borrows books and fulfills their content.
type Service struct {
	accounts storage.AccountRepository
	books    storage.BookRepository
	content  storage.ContentRepository
	states   *accountstate.Store
	registry *bookregistry.Registry
	client   httpclient.Client
	drm      drm.Connector
	metrics  metrics.Recorder
	logger   log.Logger
	now      func() time.Time
}

// NewService creates a new borrow service.
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
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      time.Now,
	}, nil
}

// Request is a borrow request.
type Request struct {
	AccountID   model.AccountID
	Entry       model.FeedEntry
	Acquisition model.Acquisition
}

// PublishRequesting marks the book as requesting a download on the registry,
// unknown books are added.
func (s *Service) PublishRequesting(ctx context.Context, req Request) model.BookID {
	id := model.NewBookID(req.Entry.ID)
	if s.registry.UpdateStatus(id, model.StatusRequestingDownload{}) {
		return id
	}

	book := model.Book{ID: id, AccountID: req.AccountID, Entry: req.Entry}
	if b, err := s.books.GetBook(ctx, id); err == nil {
		book = *b
	}
	s.registry.Update(model.BookWithStatus{Book: book, Status: model.StatusRequestingDownload{}})
	return id
}

// BorrowWithDefaultAcquisition borrows the book using its preferred acquisition.
func (s *Service) BorrowWithDefaultAcquisition(ctx context.Context, accountID model.AccountID, entry model.FeedEntry) model.TaskResult[struct{}] {
	acq, _ := entry.PreferredAcquisition()
	return s.Borrow(ctx, Request{AccountID: accountID, Entry: entry, Acquisition: acq})
}

// Borrow borrows the book and downloads its content. Cancelling ctx aborts the
// transfer and restores the previous status of the book.
func (s *Service) Borrow(ctx context.Context, req Request) (res model.TaskResult[struct{}]) {
	id := s.PublishRequesting(ctx, req)
	b := &borrowing{
		svc:    s,
		ctx:    ctx,
		rec:    model.NewTaskRecorder(),
		req:    req,
		id:     id,
		logger: s.logger.WithValues(log.Kv{"book-id": id}),
	}

	defer func() {
		if r := recover(); r != nil {
			msg := "borrow: unexpected error"
			b.rec.CurrentStepFailedAppending(msg, model.UnexpectedException{Message: msg, Err: fmt.Errorf("%v", r)}, nil)
			res = b.failure()
		}
	}()

	if terr := b.run(); terr != nil {
		return b.failure()
	}

	b.logger.Infof("Borrowed book")
	return task.FinishSuccess(b.rec, struct{}{})
}

type borrowing struct {
	svc    *Service
	ctx    context.Context
	rec    *model.TaskRecorder
	req    Request
	id     model.BookID
	creds  model.AccountAuthenticationCredentials
	auth   *httpclient.Auth
	logger log.Logger
}

func (b *borrowing) fail(terr model.TaskError, err error) model.TaskError {
	b.rec.CurrentStepFailed(terr.Error(), terr, err)
	return terr
}

func (b *borrowing) failure() model.TaskResult[struct{}] {
	if errors.Is(b.ctx.Err(), context.Canceled) {
		msg := "borrow: download cancelled"
		b.rec.CurrentStepFailedAppending(msg, model.Cancelled{Message: msg}, context.Canceled)
		res := task.FinishFailure[model.TaskError, struct{}](b.rec)
		b.svc.registry.UpdateStatus(b.id, b.restingStatus())
		b.logger.Infof("Borrow cancelled")
		return res
	}

	res := task.FinishFailure[model.TaskError, struct{}](b.rec)
	b.svc.registry.UpdateStatus(b.id, model.StatusFailedDownload{Result: res})
	if err, ok := res.LastError(); ok {
		b.logger.Warningf("Borrow failed: %s", err)
	}
	return res
}

func (b *borrowing) restingStatus() model.BookStatus {
	book, err := b.svc.books.GetBook(context.WithoutCancel(b.ctx), b.id)
	if err != nil {
		return model.StatusFromBook(model.Book{Entry: b.req.Entry})
	}
	return model.StatusFromBook(*book)
}

func (b *borrowing) run() model.TaskError {
	b.rec.BeginNewStep("Checking acquisition")
	if terr := checkAcquisition(b.req); terr != nil {
		return b.fail(terr, nil)
	}
	b.rec.CurrentStepSucceeded("Acquisition is usable")

	b.rec.BeginNewStep("Loading account")
	if _, err := b.svc.accounts.GetAccount(b.ctx, b.req.AccountID); err != nil {
		msg := "borrow: could not load the account"
		return b.fail(model.UnexpectedException{Message: msg, Err: err}, err)
	}
	b.creds, _ = b.svc.states.Credentials(b.req.AccountID)
	b.auth = httpclient.AuthFromCredentials(b.creds)
	b.rec.CurrentStepSucceeded("Loaded account")

	entry := b.req.Entry
	if b.req.Acquisition.Relation == model.AcquisitionBorrow {
		var terr model.TaskError
		entry, terr = b.borrowEntry(b.req.Acquisition.URI)
		if terr != nil {
			return terr
		}
	}

	book, terr := b.saveEntry(entry)
	if terr != nil {
		return terr
	}

	switch entry.Availability.(type) {
	case model.AvailabilityHeld, model.AvailabilityHeldReady, model.AvailabilityHoldable, model.AvailabilityLoanable:
		b.rec.BeginNewStep("Checking loan")
		b.rec.CurrentStepSucceeded("The book is not loaned yet, nothing to fulfill")
		b.svc.registry.Update(model.BookWithStatus{Book: book, Status: model.StatusFromBook(book)})
		return nil
	}

	b.rec.BeginNewStep("Selecting fulfillment")
	acq, ok := fulfillmentAcquisition(entry, b.req.Acquisition)
	if !ok {
		msg := "borrow: the loan has no fulfillment acquisition"
		return b.fail(model.UnsupportedAcquisition{Message: msg}, nil)
	}
	b.rec.CurrentStepSucceeded(fmt.Sprintf("Fulfilling %s", acq.Type))

	var (
		stored *storedContent
		loanID string
	)
	switch acq.Type {
	case opds.ContentTypeACSM:
		stored, loanID, terr = b.fulfillACSM(acq)
	case opds.ContentTypeBearerToken:
		stored, terr = b.fulfillBearerToken(acq)
	default:
		stored, terr = b.download(acq.URI, b.auth, acq)
	}
	if terr != nil {
		return terr
	}

	b.rec.BeginNewStep("Saving book")
	book.ContentPath = stored.Path
	book.ContentType = stored.ContentType
	book.AdobeLoanID = loanID
	book.UpdatedAt = b.svc.now().UTC()
	if err := b.svc.books.CreateOrUpdateBook(b.ctx, book); err != nil {
		msg := "borrow: could not save the book"
		return b.fail(model.BookDatabaseFailure{Message: msg, Err: err}, err)
	}
	b.svc.registry.Update(model.BookWithStatus{Book: book, Status: model.StatusLoanedDownloaded{}})
	b.rec.CurrentStepSucceeded("Saved book")

	return nil
}

func checkAcquisition(req Request) model.TaskError {
	if !req.Acquisition.Borrowable() {
		return model.UnsupportedAcquisition{
			Message: "borrow: unsupported acquisition relation",
			Type:    string(req.Acquisition.Relation),
		}
	}

	switch a := req.Entry.Availability.(type) {
	case model.AvailabilityHeld:
		return model.AvailabilityInappropriate{Message: "borrow: the book is on hold and not ready", Availability: a.Kind()}
	case model.AvailabilityRevoked:
		return model.AvailabilityInappropriate{Message: "borrow: the loan has been revoked", Availability: a.Kind()}
	}
	return nil
}

func fulfillmentAcquisition(entry model.FeedEntry, requested model.Acquisition) (model.Acquisition, bool) {
	for _, rel := range []model.AcquisitionRelation{model.AcquisitionGeneric, model.AcquisitionOpenAccess} {
		for _, a := range entry.Acquisitions {
			if a.Relation == rel {
				return a, true
			}
		}
	}
	if requested.Relation != model.AcquisitionBorrow {
		return requested, true
	}
	return model.Acquisition{}, false
}

func (b *borrowing) fetch(uri string, auth *httpclient.Auth, msg string) ([]byte, model.TaskError) {
	result := httpclient.Get(b.ctx, b.svc.client, uri, auth)
	ok, isOK := result.(httpclient.OK)
	if !isOK {
		return nil, b.fail(httpclient.TaskErrorOf(msg, result), nil)
	}

	data, err := httpclient.ReadBody(ok)
	if err != nil {
		return nil, b.fail(readError(msg, uri, err), err)
	}
	return data, nil
}

func readError(msg, uri string, err error) model.TaskError {
	if httpclient.IsTimeout(err) {
		return model.Timeout{Message: msg, URI: uri}
	}
	return model.ConnectionFailure{Message: msg, Err: err}
}

func (b *borrowing) borrowEntry(uri string) (model.FeedEntry, model.TaskError) {
	b.rec.BeginNewStep(fmt.Sprintf("Borrowing %s", uri))
	data, terr := b.fetch(uri, b.auth, "borrow: could not borrow the book")
	if terr != nil {
		return model.FeedEntry{}, terr
	}
	b.rec.CurrentStepSucceeded("Borrowed")

	b.rec.BeginNewStep("Parsing borrow feed")
	entry, _, err := opds.ParseEntry(uri, data)
	if err != nil {
		_, errs := opds.ParseMessages(uri, err)
		msg := "borrow: could not parse the borrow feed"
		return model.FeedEntry{}, b.fail(model.BadBorrowFeed{Message: msg, Errors: errs}, err)
	}
	if entry.ID != b.req.Entry.ID {
		b.logger.Warningf("Borrow feed returned entry %q, keeping %q", entry.ID, b.req.Entry.ID)
		entry.ID = b.req.Entry.ID
	}
	b.rec.CurrentStepSucceeded(fmt.Sprintf("Book availability is %s", availabilityKind(entry.Availability)))

	return entry, nil
}

func availabilityKind(a model.Availability) string {
	if a == nil {
		return "unknown"
	}
	return a.Kind()
}

func (b *borrowing) saveEntry(entry model.FeedEntry) (model.Book, model.TaskError) {
	b.rec.BeginNewStep("Updating book database")
	now := b.svc.now().UTC()
	book := model.Book{ID: b.id, AccountID: b.req.AccountID, CreatedAt: now}
	existing, err := b.svc.books.GetBook(b.ctx, b.id)
	switch {
	case err == nil:
		book = *existing
	case !errors.Is(err, model.ErrNotFound):
		msg := "borrow: could not read the book database"
		return book, b.fail(model.BookDatabaseFailure{Message: msg, Err: err}, err)
	}
	book.Entry = entry
	book.UpdatedAt = now

	if err := b.svc.books.CreateOrUpdateBook(b.ctx, book); err != nil {
		msg := "borrow: could not update the book database"
		return book, b.fail(model.BookDatabaseFailure{Message: msg, Err: err}, err)
	}
	b.rec.CurrentStepSucceeded("Updated book database")

	return book, nil
}

type storedContent struct {
	*content.Stored
	ContentType string
}

func (b *borrowing) fulfillACSM(acq model.Acquisition) (*storedContent, string, model.TaskError) {
	b.rec.BeginNewStep("Downloading ACSM")
	data, terr := b.fetch(acq.URI, b.auth, "borrow: could not download the ACSM")
	if terr != nil {
		return nil, "", terr
	}
	b.rec.CurrentStepSucceeded("Downloaded ACSM")

	b.rec.BeginNewStep("Parsing ACSM")
	acsm, err := opds.ParseACSM(acq.URI, data)
	if err != nil {
		w, errs := opds.ParseMessages(acq.URI, err)
		msg := "borrow: could not parse the ACSM"
		return nil, "", b.fail(model.ServerParseError{Message: msg, Warnings: w, Errors: errs}, err)
	}
	if !slices.Contains(SupportedContentTypes, acsm.ContentType) {
		return nil, "", b.fail(model.UnacceptableContentType{
			Message:  "borrow: the ACSM content type is not supported",
			Expected: SupportedContentTypes,
			Received: acsm.ContentType,
		}, nil)
	}
	b.rec.CurrentStepSucceeded(fmt.Sprintf("ACSM delivers %s", acsm.ContentType))

	b.rec.BeginNewStep("Fulfilling ACSM")
	if b.svc.drm == nil {
		return nil, "", b.fail(model.DRMNotSupported{Message: "borrow: Adobe DRM is not supported", System: "Adobe ACS"}, nil)
	}
	var adobe *model.AdobeCredentials
	if b.creds != nil {
		adobe = b.creds.Adobe()
	}
	if adobe == nil {
		return nil, "", b.fail(model.DRMFailure{Message: "borrow: the account has no Adobe DRM credentials"}, nil)
	}
	f, err := b.svc.drm.FulfillACSM(b.ctx, data, *adobe)
	if err != nil {
		msg := "borrow: ACSM fulfillment failed"
		return nil, "", b.fail(model.DRMFailure{Message: msg, ErrorCode: drm.ErrorCode(err)}, err)
	}
	b.rec.CurrentStepSucceeded("Fulfilled ACSM")

	b.rec.BeginNewStep("Saving content")
	ct := f.ContentType
	if ct == "" {
		ct = acsm.ContentType
	}
	stored, err := b.svc.content.Put(b.ctx, b.id, bytes.NewReader(f.Data), content.PutOptions{
		ContentType:   ct,
		ExpectedBytes: int64(len(f.Data)),
	})
	if err != nil {
		msg := "borrow: could not save the content"
		return nil, "", b.fail(model.BookDatabaseFailure{Message: msg, Err: err}, err)
	}
	b.rec.CurrentStepSucceeded(fmt.Sprintf("Saved %d bytes", stored.Bytes))

	loanID := ""
	if f.Returnable {
		loanID = f.LoanID
	}
	return &storedContent{Stored: stored, ContentType: ct}, loanID, nil
}

func (b *borrowing) fulfillBearerToken(acq model.Acquisition) (*storedContent, model.TaskError) {
	b.rec.BeginNewStep("Downloading bearer token")
	data, terr := b.fetch(acq.URI, b.auth, "borrow: could not download the bearer token")
	if terr != nil {
		return nil, terr
	}
	b.rec.CurrentStepSucceeded("Downloaded bearer token")

	b.rec.BeginNewStep("Parsing bearer token")
	token, err := opds.ParseBearerToken(acq.URI, data)
	if err != nil {
		msg := "borrow: could not parse the bearer token"
		return nil, b.fail(model.UnparseableBearerToken{Message: msg, Err: err}, err)
	}
	b.rec.CurrentStepSucceeded("Parsed bearer token")

	return b.download(token.Location, &httpclient.Auth{BearerToken: token.AccessToken}, acq)
}

func (b *borrowing) download(uri string, auth *httpclient.Auth, acq model.Acquisition) (*storedContent, model.TaskError) {
	b.rec.BeginNewStep(fmt.Sprintf("Downloading %s", uri))
	msg := "borrow: could not download the book"
	result := b.svc.client.Do(b.ctx, httpclient.Request{Method: http.MethodGet, URI: uri, Auth: auth})
	ok, isOK := result.(httpclient.OK)
	if !isOK {
		return nil, b.fail(httpclient.TaskErrorOf(msg, result), nil)
	}
	defer ok.Body.Close()

	ct := mediaType(ok.ContentType)
	if ct == contentTypeOctetStream && slices.Contains(SupportedContentTypes, acq.FinalType()) {
		ct = acq.FinalType()
	}
	if !slices.Contains(SupportedContentTypes, ct) {
		return nil, b.fail(model.UnacceptableContentType{
			Message:  "borrow: the server returned an unacceptable content type",
			Expected: SupportedContentTypes,
			Received: ct,
		}, nil)
	}

	stored, err := b.svc.content.Put(b.ctx, b.id, ok.Body, content.PutOptions{
		ContentType:   ct,
		ExpectedBytes: ok.Length,
		OnProgress: func(written, total int64) {
			b.svc.registry.UpdateIfStatusIs(b.id, downloading, model.StatusDownloading{CurrentBytes: written, ExpectedBytes: total})
		},
	})
	if err != nil {
		return nil, b.fail(readError(msg, uri, err), err)
	}
	b.svc.metrics.DownloadedBytes(b.ctx, stored.Bytes)
	b.rec.CurrentStepSucceeded(fmt.Sprintf("Downloaded %d bytes", stored.Bytes))

	return &storedContent{Stored: stored, ContentType: ct}, nil
}

func downloading(s model.BookStatus) bool {
	switch s.(type) {
	case model.StatusRequestingDownload, model.StatusDownloading:
		return true
	}
	return false
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mt
}
