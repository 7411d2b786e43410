package bookdelete

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/lendr/internal/bookregistry"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/storage"
)

// ServiceConfig is the configuration for the book delete service.
type ServiceConfig struct {
	Books    storage.BookRepository
	Content  storage.ContentRepository
	Registry *bookregistry.Registry
	Logger   log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Books == nil {
		return fmt.Errorf("books repository is required")
	}
	if c.Content == nil {
		return fmt.Errorf("content repository is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("book registry is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.BookDelete"})
	return nil
}

// Service deletes local books.
type Service struct {
	books    storage.BookRepository
	content  storage.ContentRepository
	registry *bookregistry.Registry
	logger   log.Logger
}

// NewService creates a new book delete service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		books:    cfg.Books,
		content:  cfg.Content,
		registry: cfg.Registry,
		logger:   cfg.Logger,
	}, nil
}

// PublishRequesting marks a known book as being deleted.
func (s *Service) PublishRequesting(id model.BookID) {
	s.registry.UpdateStatus(id, model.StatusRequestingRevoke{})
}

// Delete removes the book content, the book database entry and the registry
// entry. Nothing is contacted remotely, the loan is kept by the library.
func (s *Service) Delete(ctx context.Context, id model.BookID) error {
	logger := s.logger.WithValues(log.Kv{"book-id": id})

	if err := s.content.Delete(ctx, id); err != nil {
		s.registry.UpdateStatus(id, model.StatusError{Message: "could not delete the book content"})
		return fmt.Errorf("could not delete book content: %w", err)
	}

	err := s.books.DeleteBook(ctx, id)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		s.registry.UpdateStatus(id, model.StatusError{Message: "could not delete the book from the database"})
		return fmt.Errorf("could not delete book: %w", err)
	}

	s.registry.Remove(id)
	logger.Infof("Book deleted")

	return nil
}
