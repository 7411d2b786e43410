// Package accountstate keeps the login state of every account. Readers get
// immutable snapshots, writers are serialized and persist the credentials.
package accountstate

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/slok/lendr/internal/event"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/storage"
)

// StoreConfig is the configuration of the login state store.
type StoreConfig struct {
	Repository storage.AccountRepository
	// Events is where login state changes are published, a new subject is created when missing.
	Events *event.Subject[model.AccountEvent]
	Logger log.Logger
}

func (c *StoreConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "accountstate.Store"})
	if c.Events == nil {
		c.Events = event.NewSubject[model.AccountEvent](c.Logger)
	}
	return nil
}

type states = map[model.AccountID]model.AccountLoginState

// Store is the login state store.
type Store struct {
	snapshot atomic.Pointer[states]
	mu       sync.Mutex
	repo     storage.AccountRepository
	events   *event.Subject[model.AccountEvent]
	logger   log.Logger
}

// NewStore returns a new empty store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Store{
		repo:   cfg.Repository,
		events: cfg.Events,
		logger: cfg.Logger,
	}
	s.snapshot.Store(&states{})
	return s, nil
}

// Events returns the account event stream where state changes are published.
func (s *Store) Events() *event.Subject[model.AccountEvent] { return s.events }

// Load initializes the state of the accounts from their persisted credentials
// without publishing events. Accounts already tracked are left untouched.
func (s *Store) Load(accounts []model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(*s.snapshot.Load())
	for _, a := range accounts {
		if _, ok := next[a.ID]; ok {
			continue
		}
		if a.Credentials != nil {
			next[a.ID] = model.LoginStateLoggedIn{Credentials: a.Credentials}
		} else {
			next[a.ID] = model.LoginStateNotLoggedIn{}
		}
	}
	s.snapshot.Store(&next)
}

// State returns the login state of the account, NotLoggedIn when unknown.
func (s *Store) State(id model.AccountID) model.AccountLoginState {
	if st, ok := (*s.snapshot.Load())[id]; ok {
		return st
	}
	return model.LoginStateNotLoggedIn{}
}

// Credentials returns the credentials of the account current state, if any.
func (s *Store) Credentials(id model.AccountID) (model.AccountAuthenticationCredentials, bool) {
	return model.CredentialsOf(s.State(id))
}

// Snapshot returns an immutable view of every tracked state.
func (s *Store) Snapshot() map[model.AccountID]model.AccountLoginState {
	return maps.Clone(*s.snapshot.Load())
}

// Set replaces the account state and publishes the change. LoggedIn and
// NotLoggedIn states are persisted: the credentials are stored or cleared.
func (s *Store) Set(ctx context.Context, id model.AccountID, state model.AccountLoginState) error {
	s.mu.Lock()
	next := maps.Clone(*s.snapshot.Load())
	next[id] = state
	s.snapshot.Store(&next)
	s.mu.Unlock()

	var err error
	switch v := state.(type) {
	case model.LoginStateLoggedIn:
		err = s.repo.SetAccountCredentials(ctx, id, v.Credentials)
	case model.LoginStateNotLoggedIn:
		err = s.repo.SetAccountCredentials(ctx, id, nil)
	}

	s.logger.Debugf("Account %s login state changed to %s", id, state.Name())
	s.events.Publish(model.AccountLoginStateChanged{
		Message:   fmt.Sprintf("Login state changed to %s", state.Name()),
		AccountID: id,
		State:     state,
	})

	if err != nil {
		return fmt.Errorf("could not persist credentials: %w", err)
	}
	return nil
}

// Forget stops tracking the account.
func (s *Store) Forget(id model.AccountID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(*s.snapshot.Load())
	delete(next, id)
	s.snapshot.Store(&next)
}
