package bookdismiss

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/lendr/internal/bookregistry"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/storage"
)

// ServiceConfig is the configuration for the dismiss service.
type ServiceConfig struct {
	Books    storage.BookRepository
	Registry *bookregistry.Registry
	Logger   log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Books == nil {
		return fmt.Errorf("books repository is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("book registry is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.BookDismiss"})
	return nil
}

// Service clears failure markers of books without retrying anything.
type Service struct {
	books    storage.BookRepository
	registry *bookregistry.Registry
	logger   log.Logger
}

// NewService creates a new dismiss service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		books:    cfg.Books,
		registry: cfg.Registry,
		logger:   cfg.Logger,
	}, nil
}

// DismissBorrowFailure restores the resting status of a book that failed to
// download. It returns false when the book was not in a failed download.
func (s *Service) DismissBorrowFailure(ctx context.Context, id model.BookID) bool {
	return s.dismiss(ctx, id, func(st model.BookStatus) bool {
		_, ok := st.(model.StatusFailedDownload)
		return ok
	})
}

// DismissRevokeFailure restores the resting status of a book that failed to be
// revoked. It returns false when the book was not in a failed revoke.
func (s *Service) DismissRevokeFailure(ctx context.Context, id model.BookID) bool {
	return s.dismiss(ctx, id, func(st model.BookStatus) bool {
		_, ok := st.(model.StatusFailedRevoke)
		return ok
	})
}

func (s *Service) dismiss(ctx context.Context, id model.BookID, failed func(model.BookStatus) bool) bool {
	current, ok := s.registry.Book(id)
	if !ok || !failed(current.Status) {
		return false
	}

	book := current.Book
	b, err := s.books.GetBook(ctx, id)
	switch {
	case err == nil:
		book = *b
	case !errors.Is(err, model.ErrNotFound):
		s.logger.Warningf("Could not load book %s, using the registry copy: %s", id, err)
	}

	dismissed := s.registry.UpdateIfStatusIs(id, failed, model.StatusFromBook(book))
	if dismissed {
		s.logger.Debugf("Dismissed failure of book %s", id)
	}
	return dismissed
}
