package profilefeed

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/slok/lendr/internal/bookregistry"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/storage"
)

// SortBy is the ordering of a profile feed.
type SortBy string

const (
	SortByTitle  SortBy = "title"
	SortByAuthor SortBy = "author"
)

// Filter selects the books of a profile feed by availability.
type Filter string

const (
	FilterAll   Filter = "all"
	FilterLoans Filter = "loans"
	FilterHolds Filter = "holds"
)

// Request is a profile feed query.
type Request struct {
	// AccountID restricts the feed to one account, empty means every account of
	// the current profile.
	AccountID model.AccountID
	// Search matches the title and the authors ignoring case.
	Search string
	SortBy SortBy
	Filter Filter
}

// ServiceConfig is the configuration for the profile feed service.
type ServiceConfig struct {
	Profiles storage.ProfileRepository
	Accounts storage.AccountRepository
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
	if c.Registry == nil {
		return fmt.Errorf("book registry is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.ProfileFeed"})
	return nil
}

// Service builds feeds of the books known by the current profile.
type Service struct {
	profiles storage.ProfileRepository
	accounts storage.AccountRepository
	registry *bookregistry.Registry
	logger   log.Logger
}

// NewService creates a new profile feed service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		profiles: cfg.Profiles,
		accounts: cfg.Accounts,
		registry: cfg.Registry,
		logger:   cfg.Logger,
	}, nil
}

// Feed returns the registry books of the current profile matching the request.
func (s *Service) Feed(ctx context.Context, req Request) ([]model.BookWithStatus, error) {
	profile, err := s.profiles.CurrentProfile(ctx)
	if err != nil {
		return nil, err
	}
	accs, err := s.accounts.ListAccounts(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("could not list accounts: %w", err)
	}

	owned := map[model.AccountID]bool{}
	for _, a := range accs {
		if req.AccountID == "" || req.AccountID == a.ID {
			owned[a.ID] = true
		}
	}

	search := strings.ToLower(strings.TrimSpace(req.Search))
	books := []model.BookWithStatus{}
	for _, b := range s.registry.Books() {
		if !owned[b.Book.AccountID] {
			continue
		}
		if !matchesFilter(b, req.Filter) || !matchesSearch(b.Book.Entry, search) {
			continue
		}
		books = append(books, b)
	}

	slices.SortStableFunc(books, compareBy(req.SortBy))
	return books, nil
}

func matchesFilter(b model.BookWithStatus, f Filter) bool {
	switch f {
	case FilterLoans:
		switch b.Book.Entry.Availability.(type) {
		case model.AvailabilityLoaned, model.AvailabilityOpenAccess:
			return true
		}
		return false
	case FilterHolds:
		switch b.Book.Entry.Availability.(type) {
		case model.AvailabilityHeld, model.AvailabilityHeldReady:
			return true
		}
		return false
	}
	return true
}

func matchesSearch(e model.FeedEntry, search string) bool {
	if search == "" {
		return true
	}
	if strings.Contains(strings.ToLower(e.Title), search) {
		return true
	}
	for _, a := range e.Authors {
		if strings.Contains(strings.ToLower(a), search) {
			return true
		}
	}
	return false
}

func compareBy(by SortBy) func(a, b model.BookWithStatus) int {
	byTitle := func(a, b model.BookWithStatus) int {
		if c := strings.Compare(strings.ToLower(a.Book.Entry.Title), strings.ToLower(b.Book.Entry.Title)); c != 0 {
			return c
		}
		return strings.Compare(string(a.Book.ID), string(b.Book.ID))
	}
	if by != SortByAuthor {
		return byTitle
	}

	return func(a, b model.BookWithStatus) int {
		if c := strings.Compare(firstAuthor(a), firstAuthor(b)); c != 0 {
			return c
		}
		return byTitle(a, b)
	}
}

func firstAuthor(b model.BookWithStatus) string {
	if len(b.Book.Entry.Authors) == 0 {
		return ""
	}
	return strings.ToLower(b.Book.Entry.Authors[0])
}
