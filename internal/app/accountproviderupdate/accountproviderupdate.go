package accountproviderupdate

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/provider"
	"github.com/slok/lendr/internal/storage"
	"github.com/slok/lendr/internal/task"
)

// ServiceConfig is the configuration for the account provider update service.
type ServiceConfig struct {
	Profiles  storage.ProfileRepository
	Accounts  storage.AccountRepository
	Providers *provider.Registry
	Logger    log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Profiles == nil {
		return fmt.Errorf("profiles repository is required")
	}
	if c.Accounts == nil {
		return fmt.Errorf("accounts repository is required")
	}
	if c.Providers == nil {
		return fmt.Errorf("provider registry is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.AccountProviderUpdate"})
	return nil
}

// Service keeps the providers stored on accounts in line with the registry.
type Service struct {
	profiles  storage.ProfileRepository
	accounts  storage.AccountRepository
	providers *provider.Registry
	logger    log.Logger
}

// NewService creates a new account provider update service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		profiles:  cfg.Profiles,
		accounts:  cfg.Accounts,
		providers: cfg.Providers,
		logger:    cfg.Logger,
	}, nil
}

// Update resolves the provider again and stores it on every account of the
// current profile that uses it, the number of updated accounts is returned.
// Accounts holding a newer provider than the resolved one are left untouched.
func (s *Service) Update(ctx context.Context, providerID string) model.TaskResult[int] {
	rec := model.NewTaskRecorder()
	logger := s.logger.WithValues(log.Kv{"provider-id": providerID})
	failure := func() model.TaskResult[int] {
		res := task.FinishFailure[model.TaskError, int](rec)
		if err, ok := res.LastError(); ok {
			logger.Warningf("Provider update failed: %s", err)
		}
		return res
	}

	rec.BeginNewStep("Finding accounts")
	accs, err := s.accountsUsing(ctx, providerID)
	if errors.Is(err, model.ErrNoCurrentProfile) {
		rec.CurrentStepSucceeded("No current profile")
		return task.FinishSuccess(rec, 0)
	}
	if err != nil {
		msg := "provider update: could not list the accounts"
		rec.CurrentStepFailed(msg, model.UnexpectedException{Message: msg, Err: err}, err)
		return failure()
	}
	if len(accs) == 0 {
		rec.CurrentStepSucceeded("No account uses the provider")
		return task.FinishSuccess(rec, 0)
	}
	rec.CurrentStepSucceeded(fmt.Sprintf("Found %d accounts", len(accs)))

	d, ok := s.providers.FindDescription(providerID)
	if !ok {
		terr := model.UnknownProvider{Message: "provider update: unknown provider", ProviderID: providerID}
		rec.CurrentStepFailedAppending(terr.Message, terr, nil)
		return failure()
	}
	res := s.providers.Resolve(ctx, d, nil)
	rec.AddAll(res.Steps)
	if res.Failed() {
		terr := model.UnresolvableProvider{Message: "provider update: could not resolve the provider", ProviderID: providerID, Causes: res.Errors()}
		rec.CurrentStepFailedAppending(terr.Message, terr, nil)
		return failure()
	}
	p := res.Value

	rec.BeginNewStep("Updating accounts")
	updated := 0
	for _, a := range accs {
		if p.Updated.Before(a.Provider.Updated) {
			continue
		}
		if err := s.accounts.UpdateAccountProvider(ctx, a.ID, p); err != nil {
			msg := "provider update: could not update the account"
			rec.CurrentStepFailed(msg, model.UnexpectedException{Message: msg, Err: err}, err)
			return failure()
		}
		updated++
	}
	rec.CurrentStepSucceeded(fmt.Sprintf("Updated %d accounts", updated))

	logger.Debugf("Updated %d accounts", updated)
	return task.FinishSuccess(rec, updated)
}

func (s *Service) accountsUsing(ctx context.Context, providerID string) ([]model.Account, error) {
	profile, err := s.profiles.CurrentProfile(ctx)
	if err != nil {
		return nil, err
	}
	accs, err := s.accounts.ListAccounts(ctx, profile.ID)
	if err != nil {
		return nil, err
	}

	res := []model.Account{}
	for _, a := range accs {
		if a.Provider.ID == providerID {
			res = append(res, a)
		}
	}
	return res, nil
}
