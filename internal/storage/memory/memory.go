package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/task"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	profiles       map[model.ProfileID]model.Profile
	currentProfile model.ProfileID
	accounts       map[model.AccountID]model.Account
	books          map[model.BookID]model.Book
	records        []task.Record
	mu             sync.RWMutex
	logger         log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		profiles: make(map[model.ProfileID]model.Profile),
		accounts: make(map[model.AccountID]model.Account),
		books:    make(map[model.BookID]model.Book),
		logger:   cfg.Logger,
	}, nil
}

// CreateProfile creates a new profile in the repository.
func (r *Repository) CreateProfile(ctx context.Context, p model.Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[p.ID]; ok {
		return fmt.Errorf("profile with id %s: %w", p.ID, model.ErrAlreadyExists)
	}
	for _, existing := range r.profiles {
		if strings.EqualFold(existing.DisplayName, p.DisplayName) {
			return fmt.Errorf("profile with name %s: %w", p.DisplayName, model.ErrAlreadyExists)
		}
	}

	r.profiles[p.ID] = p
	r.logger.Debugf("Created profile in repository: %s", p.ID)

	return nil
}

// GetProfile retrieves a profile by ID.
func (r *Repository) GetProfile(ctx context.Context, id model.ProfileID) (*model.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, model.ErrNotFound)
	}
	return &p, nil
}

// ListProfiles returns all profiles, oldest first.
func (r *Repository) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]model.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].ID < profiles[j].ID
		}
		return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
	})

	return profiles, nil
}

// UpdateProfile updates an existing profile.
func (r *Repository) UpdateProfile(ctx context.Context, p model.Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[p.ID]; !ok {
		return fmt.Errorf("profile %s: %w", p.ID, model.ErrNotFound)
	}
	for _, existing := range r.profiles {
		if existing.ID != p.ID && strings.EqualFold(existing.DisplayName, p.DisplayName) {
			return fmt.Errorf("profile with name %s: %w", p.DisplayName, model.ErrAlreadyExists)
		}
	}

	r.profiles[p.ID] = p
	r.logger.Debugf("Updated profile in repository: %s", p.ID)

	return nil
}

// DeleteProfile deletes a profile with its accounts and books.
func (r *Repository) DeleteProfile(ctx context.Context, id model.ProfileID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[id]; !ok {
		return fmt.Errorf("profile %s: %w", id, model.ErrNotFound)
	}

	for aid, a := range r.accounts {
		if a.ProfileID == id {
			r.deleteAccount(aid)
		}
	}
	delete(r.profiles, id)
	if r.currentProfile == id {
		r.currentProfile = ""
	}
	r.logger.Debugf("Deleted profile from repository: %s", id)

	return nil
}

// CurrentProfile returns the selected profile.
func (r *Repository) CurrentProfile(ctx context.Context) (*model.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.currentProfile == "" {
		return nil, model.ErrNoCurrentProfile
	}
	p, ok := r.profiles[r.currentProfile]
	if !ok {
		return nil, model.ErrNoCurrentProfile
	}
	return &p, nil
}

// SetCurrentProfile selects a profile.
func (r *Repository) SetCurrentProfile(ctx context.Context, id model.ProfileID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[id]; !ok {
		return fmt.Errorf("profile %s: %w", id, model.ErrNotFound)
	}
	r.currentProfile = id

	return nil
}

// CreateAccount creates a new account in the repository.
func (r *Repository) CreateAccount(ctx context.Context, a model.Account) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[a.ProfileID]; !ok {
		return fmt.Errorf("profile %s: %w", a.ProfileID, model.ErrNotFound)
	}
	if _, ok := r.accounts[a.ID]; ok {
		return fmt.Errorf("account with id %s: %w", a.ID, model.ErrAlreadyExists)
	}
	for _, existing := range r.accounts {
		if existing.ProfileID == a.ProfileID && existing.Provider.ID == a.Provider.ID {
			return fmt.Errorf("account with provider %s: %w", a.Provider.ID, model.ErrAlreadyExists)
		}
	}

	r.accounts[a.ID] = a
	r.logger.Debugf("Created account in repository: %s", a.ID)

	return nil
}

// GetAccount retrieves an account by ID.
func (r *Repository) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, model.ErrNotFound)
	}
	return &a, nil
}

// ListAccounts returns the accounts of a profile, oldest first.
func (r *Repository) ListAccounts(ctx context.Context, profileID model.ProfileID) ([]model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := []model.Account{}
	for _, a := range r.accounts {
		if a.ProfileID == profileID {
			accounts = append(accounts, a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})

	return accounts, nil
}

// UpdateAccountProvider replaces the provider of an account.
func (r *Repository) UpdateAccountProvider(ctx context.Context, id model.AccountID, p model.AccountProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, model.ErrNotFound)
	}
	a.Provider = p
	r.accounts[id] = a

	return nil
}

// SetAccountCredentials stores the credentials of an account.
func (r *Repository) SetAccountCredentials(ctx context.Context, id model.AccountID, creds model.AccountAuthenticationCredentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, model.ErrNotFound)
	}
	a.Credentials = creds
	r.accounts[id] = a

	return nil
}

// DeleteAccount deletes an account with its books.
func (r *Repository) DeleteAccount(ctx context.Context, id model.AccountID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[id]; !ok {
		return fmt.Errorf("account %s: %w", id, model.ErrNotFound)
	}
	r.deleteAccount(id)
	r.logger.Debugf("Deleted account from repository: %s", id)

	return nil
}

func (r *Repository) deleteAccount(id model.AccountID) {
	for bid, b := range r.books {
		if b.AccountID == id {
			delete(r.books, bid)
		}
	}
	delete(r.accounts, id)
}

// CreateOrUpdateBook upserts a book.
func (r *Repository) CreateOrUpdateBook(ctx context.Context, b model.Book) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid book: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[b.AccountID]; !ok {
		return fmt.Errorf("account %s: %w", b.AccountID, model.ErrNotFound)
	}
	if existing, ok := r.books[b.ID]; ok && !existing.CreatedAt.IsZero() {
		b.CreatedAt = existing.CreatedAt
	}
	r.books[b.ID] = b

	return nil
}

// GetBook retrieves a book by ID.
func (r *Repository) GetBook(ctx context.Context, id model.BookID) (*model.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.books[id]
	if !ok {
		return nil, fmt.Errorf("book %s: %w", id, model.ErrNotFound)
	}
	return &b, nil
}

// ListBooks returns the books of an account sorted by ID.
func (r *Repository) ListBooks(ctx context.Context, accountID model.AccountID) ([]model.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	books := []model.Book{}
	for _, b := range r.books {
		if b.AccountID == accountID {
			books = append(books, b)
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })

	return books, nil
}

// DeleteBook deletes a book.
func (r *Repository) DeleteBook(ctx context.Context, id model.BookID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.books[id]; !ok {
		return fmt.Errorf("book %s: %w", id, model.ErrNotFound)
	}
	delete(r.books, id)

	return nil
}

// RecordTask stores a finished task.
func (r *Repository) RecordTask(ctx context.Context, rec task.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	r.records = append(r.records, rec)

	return nil
}

// ListTaskRecords returns the finished tasks of a subject in execution order, all
// of them when subject is empty.
func (r *Repository) ListTaskRecords(ctx context.Context, subject string) ([]task.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := []task.Record{}
	for _, rec := range r.records {
		if subject == "" || rec.Subject == subject {
			records = append(records, rec)
		}
	}

	return records, nil
}
