package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slok/lendr/internal/accountstate"
	"github.com/slok/lendr/internal/event"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/storage"
)

// ServiceConfig is the configuration for the profile service.
type ServiceConfig struct {
	Profiles storage.ProfileRepository
	Accounts storage.AccountRepository
	States   *accountstate.Store
	Logger   log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Profiles == nil {
		return fmt.Errorf("profiles repository is required")
	}
	if c.Accounts == nil {
		return fmt.Errorf("accounts repository is required")
	}
	if c.States == nil {
		return fmt.Errorf("states store is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Profile"})
	return nil
}

// Service handles the profile lifecycle, every change is published on the
// profile event stream.
type Service struct {
	profiles storage.ProfileRepository
	accounts storage.AccountRepository
	states   *accountstate.Store
	events   *event.Subject[model.ProfileEvent]
	logger   log.Logger
}

// NewService creates a new profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		profiles: cfg.Profiles,
		accounts: cfg.Accounts,
		states:   cfg.States,
		events:   event.NewSubject[model.ProfileEvent](cfg.Logger),
		logger:   cfg.Logger,
	}, nil
}

// Events returns the profile event stream.
func (s *Service) Events() *event.Subject[model.ProfileEvent] { return s.events }

// List returns every profile.
func (s *Service) List(ctx context.Context) ([]model.Profile, error) {
	return s.profiles.ListProfiles(ctx)
}

// Current returns the selected profile.
func (s *Service) Current(ctx context.Context) (*model.Profile, error) {
	return s.profiles.CurrentProfile(ctx)
}

// CreateRequest is the request to create a profile.
type CreateRequest struct {
	DisplayName string
	Preferences model.ProfilePreferences
}

// Create creates a new profile. Display names are unique ignoring case.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Profile, error) {
	name := strings.TrimSpace(req.DisplayName)
	p := model.Profile{
		ID:          model.NewProfileID(),
		DisplayName: name,
		Preferences: req.Preferences,
		CreatedAt:   time.Now().UTC(),
	}

	err := s.profiles.CreateProfile(ctx, p)
	switch {
	case errors.Is(err, model.ErrAlreadyExists):
		s.events.Publish(model.ProfileCreationFailed{DisplayName: name, Reason: model.ProfileDisplayNameAlreadyUsed, Err: err})
		return nil, fmt.Errorf("display name %q already used: %w", name, err)
	case err != nil:
		s.events.Publish(model.ProfileCreationFailed{DisplayName: name, Reason: model.ProfileCreationGeneralError, Err: err})
		return nil, fmt.Errorf("could not create profile: %w", err)
	}

	s.events.Publish(model.ProfileCreationSucceeded{ProfileID: p.ID, DisplayName: name})
	s.logger.Infof("Profile %s created", p.ID)
	return &p, nil
}

// Delete deletes a profile with its accounts and books.
func (s *Service) Delete(ctx context.Context, id model.ProfileID) error {
	accs, err := s.accounts.ListAccounts(ctx, id)
	if err == nil {
		err = s.profiles.DeleteProfile(ctx, id)
	}
	if err != nil {
		s.events.Publish(model.ProfileDeletionFailed{ProfileID: id, Err: err})
		return fmt.Errorf("could not delete profile: %w", err)
	}

	for _, a := range accs {
		s.states.Forget(a.ID)
	}

	s.events.Publish(model.ProfileDeletionSucceeded{ProfileID: id})
	s.logger.Infof("Profile %s deleted", id)
	return nil
}

// Select makes the profile current and loads the login state of its accounts.
func (s *Service) Select(ctx context.Context, id model.ProfileID) ([]model.Account, error) {
	s.events.Publish(model.ProfileSelectionInProgress{ProfileID: id})

	if err := s.profiles.SetCurrentProfile(ctx, id); err != nil {
		return nil, fmt.Errorf("could not select profile: %w", err)
	}
	accs, err := s.accounts.ListAccounts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not list accounts: %w", err)
	}
	s.states.Load(accs)

	s.events.Publish(model.ProfileSelectionCompleted{ProfileID: id})
	s.logger.Infof("Profile %s selected", id)
	return accs, nil
}

// Update applies fn to the profile and stores the result.
func (s *Service) Update(ctx context.Context, id model.ProfileID, fn func(p *model.Profile)) (*model.Profile, error) {
	p, err := s.profiles.GetProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not get profile: %w", err)
	}

	fn(p)
	p.ID = id
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	if err := s.profiles.UpdateProfile(ctx, *p); err != nil {
		return nil, fmt.Errorf("could not update profile: %w", err)
	}

	s.events.Publish(model.ProfileUpdated{ProfileID: id})
	return p, nil
}
