package accountcreate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/lendr/internal/accountstate"
	"github.com/slok/lendr/internal/httpclient"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/opds"
	"github.com/slok/lendr/internal/provider"
	"github.com/slok/lendr/internal/storage"
	"github.com/slok/lendr/internal/task"
)

// ServiceConfig is the configuration for the account creation service.
type ServiceConfig struct {
	Profiles   storage.ProfileRepository
	Accounts   storage.AccountRepository
	States     *accountstate.Store
	Providers  *provider.Registry
	HTTPClient httpclient.Client
	Logger     log.Logger
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
	if c.Providers == nil {
		return fmt.Errorf("provider registry is required")
	}
	if c.HTTPClient == nil {
		return fmt.Errorf("http client is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.AccountCreate"})
	return nil
}

// Service handles the account creation business logic.
type Service struct {
	profiles  storage.ProfileRepository
	accounts  storage.AccountRepository
	states    *accountstate.Store
	providers *provider.Registry
	client    httpclient.Client
	logger    log.Logger
}

// NewService creates a new account creation service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		profiles:  cfg.Profiles,
		accounts:  cfg.Accounts,
		states:    cfg.States,
		providers: cfg.Providers,
		client:    cfg.HTTPClient,
		logger:    cfg.Logger,
	}, nil
}

// creation is a single account creation run, every step is published as an
// in progress account event.
type creation struct {
	svc    *Service
	rec    *model.TaskRecorder
	logger log.Logger
}

func (s *Service) newCreation(providerID string) *creation {
	return &creation{
		svc:    s,
		rec:    model.NewTaskRecorder(),
		logger: s.logger.WithValues(log.Kv{"provider-id": providerID}),
	}
}

func (c *creation) step(desc string) {
	c.rec.BeginNewStep(desc)
	c.progress(desc)
}

func (c *creation) progress(msg string) {
	c.svc.states.Events().Publish(model.AccountCreationInProgress{Message: msg})
}

func (c *creation) failure() model.TaskResult[model.Account] {
	res := task.FinishFailure[model.TaskError, model.Account](c.rec)
	msg := "Account creation failed"
	if err, ok := res.LastError(); ok {
		msg = err.Error()
		c.logger.Warningf("Account creation failed: %s", err)
	}
	c.svc.states.Events().Publish(model.AccountCreationFailed{Message: msg, Result: task.Discard(res)})
	return res
}

func (c *creation) success(acc model.Account) model.TaskResult[model.Account] {
	c.svc.states.Events().Publish(model.AccountCreationSucceeded{
		Message:    "Account created",
		AccountID:  acc.ID,
		ProviderID: acc.Provider.ID,
	})
	c.logger.Infof("Account %s created", acc.ID)
	return task.FinishSuccess(c.rec, acc)
}

func (c *creation) recover(res *model.TaskResult[model.Account]) {
	if r := recover(); r != nil {
		msg := "account creation: unexpected error"
		c.rec.CurrentStepFailedAppending(msg, model.UnexpectedException{Message: msg, Err: fmt.Errorf("%v", r)}, nil)
		*res = c.failure()
	}
}

// Create resolves the provider and creates an account for it in the current profile.
func (s *Service) Create(ctx context.Context, providerID string) (res model.TaskResult[model.Account]) {
	c := s.newCreation(providerID)
	defer c.recover(&res)

	return c.run(ctx, providerID)
}

// CreateOrReturnExisting returns the account of the current profile for the
// provider, creating it when there is none.
func (s *Service) CreateOrReturnExisting(ctx context.Context, providerID string) (res model.TaskResult[model.Account]) {
	c := s.newCreation(providerID)
	defer c.recover(&res)

	c.step("Finding existing account")
	acc, err := c.existing(ctx, providerID)
	if err != nil {
		msg := "account creation: could not list the accounts"
		c.rec.CurrentStepFailed(msg, model.UnexpectedException{Message: msg, Err: err}, err)
		return c.failure()
	}
	if acc != nil {
		c.rec.CurrentStepSucceeded("Account already exists")
		return task.FinishSuccess(c.rec, *acc)
	}
	c.rec.CurrentStepSucceeded("No existing account")

	return c.run(ctx, providerID)
}

// CreateCustomOPDS registers a provider for a bare OPDS catalog and creates an
// account for it. The catalog URI is the provider ID.
func (s *Service) CreateCustomOPDS(ctx context.Context, catalogURI string) (res model.TaskResult[model.Account]) {
	c := s.newCreation(catalogURI)
	defer c.recover(&res)

	d, terr := c.describeCatalog(ctx, catalogURI)
	if terr != nil {
		return c.failure()
	}
	d = s.providers.UpdateDescription(d)

	return c.run(ctx, d.ID)
}

func (c *creation) run(ctx context.Context, providerID string) model.TaskResult[model.Account] {
	p, terr := c.resolve(ctx, providerID)
	if terr != nil {
		return c.failure()
	}

	acc, terr := c.create(ctx, p)
	if terr != nil {
		return c.failure()
	}

	return c.success(acc)
}

func (c *creation) resolve(ctx context.Context, providerID string) (model.AccountProvider, model.TaskError) {
	c.step("Resolving account provider")
	d, ok := c.svc.providers.FindDescription(providerID)
	if !ok {
		terr := model.UnknownProvider{Message: "account creation: unknown provider", ProviderID: providerID}
		c.rec.CurrentStepFailed(terr.Message, terr, nil)
		return model.AccountProvider{}, terr
	}
	c.rec.CurrentStepSucceeded(fmt.Sprintf("Found provider %q", d.Title))

	res := c.svc.providers.Resolve(ctx, d, func(_, msg string) { c.progress(msg) })
	c.rec.AddAll(res.Steps)
	if res.Failed() {
		terr := model.UnresolvableProvider{
			Message:    "account creation: could not resolve the provider",
			ProviderID: providerID,
			Causes:     res.Errors(),
		}
		c.rec.CurrentStepFailedAppending(terr.Message, terr, nil)
		return model.AccountProvider{}, terr
	}

	return res.Value, nil
}

func (c *creation) create(ctx context.Context, p model.AccountProvider) (model.Account, model.TaskError) {
	c.step("Creating account")
	profile, err := c.svc.profiles.CurrentProfile(ctx)
	if err != nil {
		msg := "account creation: no current profile"
		terr := model.UnexpectedException{Message: msg, Err: err}
		c.rec.CurrentStepFailed(msg, terr, err)
		return model.Account{}, terr
	}

	acc := model.Account{
		ID:        model.NewAccountID(),
		ProfileID: profile.ID,
		Provider:  p,
		CreatedAt: time.Now().UTC(),
	}
	err = c.svc.accounts.CreateAccount(ctx, acc)
	if errors.Is(err, model.ErrAlreadyExists) {
		existing, lerr := c.existing(ctx, p.ID)
		if lerr == nil && existing != nil {
			c.rec.CurrentStepSucceeded("Account already exists")
			return *existing, nil
		}
	}
	if err != nil {
		msg := "account creation: could not store the account"
		terr := model.UnexpectedException{Message: msg, Err: err}
		c.rec.CurrentStepFailed(msg, terr, err)
		return model.Account{}, terr
	}
	c.svc.states.Load([]model.Account{acc})
	c.rec.CurrentStepSucceeded(fmt.Sprintf("Created account %s", acc.ID))

	return acc, nil
}

func (c *creation) existing(ctx context.Context, providerID string) (*model.Account, error) {
	profile, err := c.svc.profiles.CurrentProfile(ctx)
	if err != nil {
		return nil, err
	}
	accs, err := c.svc.accounts.ListAccounts(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range accs {
		if a.Provider.ID == providerID {
			return &a, nil
		}
	}
	return nil, nil
}

func (c *creation) describeCatalog(ctx context.Context, catalogURI string) (model.AccountProviderDescription, model.TaskError) {
	c.step("Fetching catalog")
	if err := provider.ValidateURI(catalogURI); err != nil {
		terr := model.MissingInformation{Message: fmt.Sprintf("account creation: invalid catalog URI %q", catalogURI)}
		c.rec.CurrentStepFailed(terr.Message, terr, err)
		return model.AccountProviderDescription{}, terr
	}

	result := httpclient.Get(ctx, c.svc.client, catalogURI, nil)
	ok, isOK := result.(httpclient.OK)
	if !isOK {
		msg := "account creation: could not fetch the catalog"
		terr := httpclient.TaskErrorOf(msg, result)
		c.rec.CurrentStepFailed(msg, terr, nil)
		return model.AccountProviderDescription{}, terr
	}
	data, err := httpclient.ReadBody(ok)
	if err != nil {
		msg := "account creation: could not read the catalog"
		terr := model.ConnectionFailure{Message: msg, Err: err}
		c.rec.CurrentStepFailed(msg, terr, err)
		return model.AccountProviderDescription{}, terr
	}
	c.rec.CurrentStepSucceeded("Fetched catalog")

	c.step("Parsing catalog")
	feed, _, err := opds.ParseFeed(catalogURI, data)
	if err != nil {
		w, errs := opds.ParseMessages(catalogURI, err)
		msg := "account creation: could not parse the catalog"
		terr := model.ServerParseError{Message: msg, Warnings: w, Errors: errs}
		c.rec.CurrentStepFailed(msg, terr, err)
		return model.AccountProviderDescription{}, terr
	}

	d := model.AccountProviderDescription{
		ID:      catalogURI,
		Title:   feed.Title,
		Updated: time.Now().UTC(),
		Links:   []model.Link{{Href: catalogURI, Relation: model.RelCatalog, Type: model.TypeOPDSCatalog}},
	}
	if d.Title == "" {
		d.Title = catalogURI
	}
	if l, ok := model.LinkByRelation(feed.Links, model.RelAuthenticationDocument); ok {
		d.Links = append(d.Links, model.Link{Href: l.Href, Relation: model.RelAuthenticationDocument, Type: model.TypeAuthenticationDocument})
	}
	if err := provider.ValidateDescription(d); err != nil {
		terr := model.MissingInformation{Message: fmt.Sprintf("account creation: the catalog is not usable: %s", err)}
		c.rec.CurrentStepFailed(terr.Message, terr, err)
		return model.AccountProviderDescription{}, terr
	}
	c.rec.CurrentStepSucceeded(fmt.Sprintf("Found catalog %q", d.Title))

	return d, nil
}
