package login

import (
	"context"
	"fmt"
	"net/http"

	"github.com/slok/lendr/internal/accountstate"
	"github.com/slok/lendr/internal/drm"
	"github.com/slok/lendr/internal/httpclient"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/opds"
	"github.com/slok/lendr/internal/storage"
	"github.com/slok/lendr/internal/task"
)

// ServiceConfig is the configuration for the login service.
type ServiceConfig struct {
	Accounts   storage.AccountRepository
	States     *accountstate.Store
	HTTPClient httpclient.Client
	// DRM is optional, without it Adobe DRM accounts log in without a device activation.
	DRM    drm.Connector
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Accounts == nil {
		return fmt.Errorf("accounts repository is required")
	}
	if c.States == nil {
		return fmt.Errorf("states store is required")
	}
	if c.HTTPClient == nil {
		return fmt.Errorf("http client is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Login"})
	return nil
}

// Service handles the account login business logic.
type Service struct {
	accounts storage.AccountRepository
	states   *accountstate.Store
	client   httpclient.Client
	drm      drm.Connector
	logger   log.Logger
}

// NewService creates a new login service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		accounts: cfg.Accounts,
		states:   cfg.States,
		client:   cfg.HTTPClient,
		drm:      cfg.DRM,
		logger:   cfg.Logger,
	}, nil
}

type attempt struct {
	ctx     context.Context
	rec     *model.TaskRecorder
	account model.Account
}

func (a *attempt) fail(terr model.TaskError, err error) model.TaskError {
	a.rec.CurrentStepFailed(terr.Error(), terr, err)
	return terr
}

// Login runs the login request. Every path that isn't ignored updates the login
// state of the account exactly once.
func (s *Service) Login(ctx context.Context, req model.LoginRequest) (res model.TaskResult[struct{}]) {
	rec := model.NewTaskRecorder()
	id := req.Account()
	logger := s.logger.WithValues(log.Kv{"account-id": id})

	failed := func() model.TaskResult[struct{}] {
		res := task.FinishFailure[model.TaskError, struct{}](rec)
		if err := s.states.Set(ctx, id, model.LoginStateLoginFailed{Result: res}); err != nil {
			logger.Errorf("Could not set login failed state: %s", err)
		}
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			msg := "login: unexpected error"
			rec.CurrentStepFailedAppending(msg, model.UnexpectedException{Message: msg, Err: fmt.Errorf("%v", r)}, nil)
			res = failed()
		}
	}()

	rec.BeginNewStep("Loading account")
	acc, err := s.accounts.GetAccount(ctx, id)
	if err != nil {
		msg := "login: could not load the account"
		rec.CurrentStepFailed(msg, model.UnexpectedException{Message: msg, Err: err}, err)
		return failed()
	}
	rec.CurrentStepSucceeded("Loaded account")

	a := &attempt{ctx: ctx, rec: rec, account: *acc}

	rec.BeginNewStep("Checking the provider authentication")
	if terr := checkAuthentication(acc.Provider.Authentication, req); terr != nil {
		a.fail(terr, nil)
		return failed()
	}
	rec.CurrentStepSucceeded("Provider accepts the login request")

	var creds model.AccountAuthenticationCredentials
	switch r := req.(type) {
	case model.LoginBasic:
		creds = model.CredentialsBasic{
			Username:        r.Username,
			Password:        r.Password,
			AuthDescription: r.Description.Description,
		}

	case model.LoginOAuthInitiate:
		desc := r.Description
		if desc.AuthenticateURI == "" {
			desc = acc.Provider.Authentication.(model.AuthOAuthWithIntermediary)
		}
		rec.BeginNewStep("Initiating external authentication")
		rec.CurrentStepSucceeded("Waiting for external authentication")
		s.setState(ctx, logger, id, model.LoginStateWaitingForExternalAuthentication{
			Description: desc,
			Status:      "Waiting for authentication",
		})
		return task.FinishSuccess(rec, struct{}{})

	case model.LoginOAuthComplete, model.LoginOAuthCancel:
		waiting, ok := s.states.State(id).(model.LoginStateWaitingForExternalAuthentication)
		rec.BeginNewStep("Checking external authentication")
		if !ok {
			rec.CurrentStepSucceeded("Not waiting for external authentication, ignoring")
			return task.FinishSuccess(rec, struct{}{})
		}
		if _, cancel := r.(model.LoginOAuthCancel); cancel {
			rec.CurrentStepSucceeded("External authentication cancelled")
			s.setState(ctx, logger, id, model.LoginStateNotLoggedIn{})
			return task.FinishSuccess(rec, struct{}{})
		}
		rec.CurrentStepSucceeded("External authentication completed")
		creds = model.CredentialsOAuthWithIntermediary{
			AccessToken:     r.(model.LoginOAuthComplete).Token,
			AuthDescription: waiting.Description.Description,
		}
	}

	s.setState(ctx, logger, id, model.LoginStateLoggingIn{Status: "Logging in"})

	profile, terr := a.patronProfile(s.client, creds)
	if terr != nil {
		return failed()
	}

	adobe, terr := s.activate(a, profile)
	if terr != nil {
		return failed()
	}
	creds = model.WithAdobe(creds, adobe)

	rec.BeginNewStep("Saving credentials")
	if err := s.states.Set(ctx, id, model.LoginStateLoggedIn{Credentials: creds}); err != nil {
		msg := "login: could not save the credentials"
		a.fail(model.UnexpectedException{Message: msg, Err: err}, err)
		return failed()
	}
	rec.CurrentStepSucceeded("Logged in")

	logger.Infof("Logged in")
	return task.FinishSuccess(rec, struct{}{})
}

func (s *Service) setState(ctx context.Context, logger log.Logger, id model.AccountID, state model.AccountLoginState) {
	if err := s.states.Set(ctx, id, state); err != nil {
		logger.Errorf("Could not set %s state: %s", state.Name(), err)
	}
}

func checkAuthentication(auth model.AuthenticationDescription, req model.LoginRequest) model.TaskError {
	ok := false
	switch req.(type) {
	case model.LoginBasic:
		_, ok = auth.(model.AuthBasic)
	case model.LoginOAuthInitiate, model.LoginOAuthComplete, model.LoginOAuthCancel:
		_, ok = auth.(model.AuthOAuthWithIntermediary)
	}
	if ok {
		return nil
	}

	if auth == nil {
		return model.LoginNotRequired{Message: "login: the provider doesn't require authentication"}
	}
	return model.LoginNotRequired{Message: fmt.Sprintf("login: the provider doesn't accept %T logins, it uses %s", req, auth.Type())}
}

func (a *attempt) patronProfile(client httpclient.Client, creds model.AccountAuthenticationCredentials) (*opds.PatronProfile, model.TaskError) {
	a.rec.BeginNewStep("Fetching patron profile")
	uri := a.account.Provider.PatronSettingsURI
	if uri == "" {
		return nil, a.fail(model.MissingInformation{Message: "login: the provider has no patron settings URI"}, nil)
	}

	result := httpclient.Get(a.ctx, client, uri, httpclient.AuthFromCredentials(creds))
	var data []byte
	switch r := result.(type) {
	case httpclient.OK:
		var err error
		data, err = httpclient.ReadBody(r)
		if err != nil {
			msg := "login: could not read the patron profile"
			return nil, a.fail(model.ConnectionFailure{Message: msg, Err: err}, err)
		}
	case httpclient.Error:
		if r.Status == http.StatusUnauthorized {
			return nil, a.fail(model.CredentialsIncorrect{Message: "login: invalid credentials"}, nil)
		}
		msg := fmt.Sprintf("login server error %d %s", r.Status, r.StatusText)
		return nil, a.fail(httpclient.TaskErrorOf(msg, r), nil)
	default:
		msg := "login: could not connect to the server"
		return nil, a.fail(httpclient.TaskErrorOf(msg, r), nil)
	}
	a.rec.CurrentStepSucceeded("Fetched patron profile")

	a.rec.BeginNewStep("Parsing patron profile")
	profile, _, err := opds.ParsePatronProfile(uri, data)
	if err != nil {
		w, errs := opds.ParseMessages(uri, err)
		msg := "login: could not parse the patron profile"
		return nil, a.fail(model.ServerParseError{Message: msg, Warnings: w, Errors: errs}, err)
	}
	a.rec.CurrentStepSucceeded("Parsed patron profile")

	return &profile, nil
}

func (s *Service) activate(a *attempt, profile *opds.PatronProfile) (*model.AdobeCredentials, model.TaskError) {
	patronDRM, ok := profile.Adobe()
	if !ok {
		return nil, nil
	}

	a.rec.BeginNewStep("Reading Adobe DRM credentials")
	token, err := model.ParseAdobeClientToken(patronDRM.ClientToken)
	if err != nil {
		msg := "login: invalid Adobe client token"
		errs := []model.ParseMessage{{Source: "patron profile", Message: err.Error()}}
		return nil, a.fail(model.ServerParseError{Message: msg, Errors: errs}, err)
	}
	creds := &model.AdobeCredentials{
		VendorID:         patronDRM.Vendor,
		ClientToken:      token,
		DeviceManagerURI: patronDRM.DeviceManagerURI,
	}
	a.rec.CurrentStepSucceeded("Read Adobe DRM credentials")

	if s.drm == nil {
		s.logger.Warningf("Adobe DRM is advertised but there is no DRM connector, skipping device activation")
		return creds, nil
	}

	a.rec.BeginNewStep("Activating device")
	activations, err := s.drm.ActivateDevice(a.ctx, creds.VendorID, creds.DeviceManagerURI, token)
	if err != nil {
		msg := "login: device activation failed"
		return nil, a.fail(model.DRMFailure{Message: msg, ErrorCode: drm.ErrorCode(err)}, err)
	}
	if len(activations) == 0 {
		return nil, a.fail(model.DRMFailure{Message: "login: device activation returned no activations"}, nil)
	}

	act := activations[0]
	creds.PostActivation = &model.AdobePostActivationCredentials{DeviceID: act.DeviceID, UserID: act.UserID}
	a.rec.CurrentStepSucceeded(fmt.Sprintf("Activated device %s", act.DeviceID))

	return creds, nil
}
