package bookreport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/slok/lendr/internal/accountstate"
	"github.com/slok/lendr/internal/httpclient"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
)

const contentTypeProblem = "application/problem+json"

var validate = validator.New()

// ServiceConfig is the configuration for the book report service.
type ServiceConfig struct {
	States     *accountstate.Store
	HTTPClient httpclient.Client
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.States == nil {
		return fmt.Errorf("states store is required")
	}
	if c.HTTPClient == nil {
		return fmt.Errorf("http client is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.BookReport"})
	return nil
}

// Service sends problem reports about books to the library.
type Service struct {
	states *accountstate.Store
	client httpclient.Client
	logger log.Logger
}

// NewService creates a new book report service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		states: cfg.States,
		client: cfg.HTTPClient,
		logger: cfg.Logger,
	}, nil
}

// Request is a problem report about a feed entry.
type Request struct {
	AccountID model.AccountID `validate:"required"`
	IssuesURI string          `validate:"required,http_url"`
	// Type is the problem type URI, e.g. http://librarysimplified.org/terms/problem/wrong-genre.
	Type  string `validate:"required"`
	Title string
}

// RequestFor returns the report request of the entry.
func RequestFor(accountID model.AccountID, entry model.FeedEntry, reportType string) Request {
	return Request{AccountID: accountID, IssuesURI: entry.IssuesURI, Type: reportType, Title: entry.Title}
}

type problemJSON struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// Report posts the problem report to the issues URI of the entry.
func (s *Service) Report(ctx context.Context, req Request) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("invalid report: %s: %w", err, model.ErrNotValid)
	}

	body, err := json.Marshal(problemJSON{Type: req.Type, Title: req.Title})
	if err != nil {
		return fmt.Errorf("could not encode report: %w", err)
	}

	creds, _ := s.states.Credentials(req.AccountID)
	result := s.client.Do(ctx, httpclient.Request{
		Method:      http.MethodPost,
		URI:         req.IssuesURI,
		Auth:        httpclient.AuthFromCredentials(creds),
		ContentType: contentTypeProblem,
		Body:        body,
	})
	ok, isOK := result.(httpclient.OK)
	if !isOK {
		return fmt.Errorf("could not send report: %w", httpclient.TaskErrorOf("report: could not send the report", result))
	}
	_ = ok.Body.Close()

	s.logger.Infof("Reported %q to %s", req.Type, req.IssuesURI)
	return nil
}
