package login_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/app/apptest"
	"github.com/slok/lendr/internal/app/login"
	"github.com/slok/lendr/internal/drm"
	"github.com/slok/lendr/internal/drm/drmmock"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/opds/opdstest"
	"github.com/slok/lendr/internal/task"
)

const clientToken = "NYNYPL|536818535|b54be3a5|secret"

var (
	basicRequest = model.LoginBasic{
		AccountID:   "a0",
		Username:    "user",
		Password:    "pass",
		Description: model.AuthBasic{Description: "Library card"},
	}
	adobeToken = model.AdobeClientToken{UserName: "NYNYPL|536818535|b54be3a5", Password: "secret", RawToken: clientToken}
)

func patronHandler(profile string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		bearer := r.Header.Get("Authorization") == "Bearer token"
		if !bearer && (!ok || user != "user" || pass != "pass") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.librarysimplified.user-profile+json")
		_, _ = w.Write([]byte(profile))
	}
}

func TestNewService(t *testing.T) {
	env := apptest.NewEnv(t)

	tests := map[string]struct {
		cfg    login.ServiceConfig
		expErr string
	}{
		"A complete config should be valid.": {
			cfg: login.ServiceConfig{Accounts: env.Repo, States: env.States, HTTPClient: env.Client},
		},
		"Missing accounts should fail.": {
			cfg:    login.ServiceConfig{States: env.States, HTTPClient: env.Client},
			expErr: "accounts repository is required",
		},
		"Missing states should fail.": {
			cfg:    login.ServiceConfig{Accounts: env.Repo, HTTPClient: env.Client},
			expErr: "states store is required",
		},
		"Missing HTTP client should fail.": {
			cfg:    login.ServiceConfig{Accounts: env.Repo, States: env.States},
			expErr: "http client is required",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			svc, err := login.NewService(test.cfg)
			if test.expErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), test.expErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestServiceLogin(t *testing.T) {
	tests := map[string]struct {
		provider     func(uri string) model.AccountProvider
		initialState model.AccountLoginState
		handler      http.HandlerFunc
		drm          func(m *drmmock.MockConnector)
		request      model.LoginRequest
		expCalls     int32
		expFailed    bool
		expErr       func(t *testing.T, err model.TaskError)
		expState     model.AccountLoginState
	}{
		"A basic login should store the credentials.": {
			provider: func(uri string) model.AccountProvider { return apptest.BasicProvider("lib0", uri) },
			handler:  patronHandler(opdstest.PatronProfile("")),
			request:  basicRequest,
			expCalls: 1,
			expState: model.LoginStateLoggedIn{Credentials: model.CredentialsBasic{
				Username:        "user",
				Password:        "pass",
				AuthDescription: "Library card",
			}},
		},

		"A basic login against an OAuth provider should be rejected without contacting the server.": {
			provider:  func(uri string) model.AccountProvider { return apptest.OAuthProvider("lib0", uri) },
			handler:   patronHandler(opdstest.PatronProfile("")),
			request:   basicRequest,
			expFailed: true,
			expErr: func(t *testing.T, err model.TaskError) {
				assert.IsType(t, model.LoginNotRequired{}, err)
			},
		},

		"A basic login against a provider without authentication should be rejected.": {
			provider:  func(uri string) model.AccountProvider { return apptest.OpenProvider("lib0", uri) },
			handler:   patronHandler(opdstest.PatronProfile("")),
			request:   basicRequest,
			expFailed: true,
			expErr: func(t *testing.T, err model.TaskError) {
				assert.Equal(t, model.LoginNotRequired{Message: "login: the provider doesn't require authentication"}, err)
			},
		},

		"Wrong credentials should fail with incorrect credentials.": {
			provider: func(uri string) model.AccountProvider { return apptest.BasicProvider("lib0", uri) },
			handler:  patronHandler(opdstest.PatronProfile("")),
			request: model.LoginBasic{
				AccountID: "a0",
				Username:  "user",
				Password:  "wrong",
			},
			expCalls:  1,
			expFailed: true,
			expErr: func(t *testing.T, err model.TaskError) {
				assert.Equal(t, model.CredentialsIncorrect{Message: "login: invalid credentials"}, err)
			},
		},

		"A server error should fail with the server error details.": {
			provider: func(uri string) model.AccountProvider { return apptest.BasicProvider("lib0", uri) },
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			request:   basicRequest,
			expCalls:  1,
			expFailed: true,
			expErr: func(t *testing.T, err model.TaskError) {
				serr, ok := err.(model.ServerError)
				require.True(t, ok)
				assert.Equal(t, "login server error 500 INTERNAL SERVER ERROR", serr.Message)
				assert.Equal(t, http.StatusInternalServerError, serr.Code)
			},
		},

		"An unparseable profile should fail with a parse error.": {
			provider:  func(uri string) model.AccountProvider { return apptest.BasicProvider("lib0", uri) },
			handler:   patronHandler("not json"),
			request:   basicRequest,
			expCalls:  1,
			expFailed: true,
			expErr: func(t *testing.T, err model.TaskError) {
				perr, ok := err.(model.ServerParseError)
				require.True(t, ok)
				assert.NotEmpty(t, perr.Errors)
			},
		},

		"A provider without patron settings should fail with missing information.": {
			provider: func(uri string) model.AccountProvider {
				p := apptest.BasicProvider("lib0", uri)
				p.PatronSettingsURI = ""
				return p
			},
			handler:   patronHandler(opdstest.PatronProfile("")),
			request:   basicRequest,
			expFailed: true,
			expErr: func(t *testing.T, err model.TaskError) {
				assert.IsType(t, model.MissingInformation{}, err)
			},
		},

		"A DRM profile should activate the device.": {
			provider: func(uri string) model.AccountProvider { return apptest.BasicProvider("lib0", uri) },
			handler:  patronHandler(opdstest.PatronProfile(clientToken)),
			drm: func(m *drmmock.MockConnector) {
				m.On("ActivateDevice", mock.Anything, "OmniConsumerProducts", "https://example.com/devices", adobeToken).Once().
					Return([]drm.Activation{{VendorID: "OmniConsumerProducts", DeviceID: "d0", UserID: "u0"}}, nil)
			},
			request:  basicRequest,
			expCalls: 1,
			expState: model.LoginStateLoggedIn{Credentials: model.CredentialsBasic{
				Username:        "user",
				Password:        "pass",
				AuthDescription: "Library card",
				AdobeCredential: &model.AdobeCredentials{
					VendorID:         "OmniConsumerProducts",
					ClientToken:      adobeToken,
					DeviceManagerURI: "https://example.com/devices",
					PostActivation:   &model.AdobePostActivationCredentials{DeviceID: "d0", UserID: "u0"},
				},
			}},
		},

		"A DRM activation without activations should fail.": {
			provider: func(uri string) model.AccountProvider { return apptest.BasicProvider("lib0", uri) },
			handler:  patronHandler(opdstest.PatronProfile(clientToken)),
			drm: func(m *drmmock.MockConnector) {
				m.On("ActivateDevice", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Once().Return(nil, nil)
			},
			request:   basicRequest,
			expCalls:  1,
			expFailed: true,
			expErr: func(t *testing.T, err model.TaskError) {
				derr, ok := err.(model.DRMFailure)
				require.True(t, ok)
				assert.Equal(t, "", derr.ErrorCode)
			},
		},

		"A DRM activation error should fail with its code.": {
			provider: func(uri string) model.AccountProvider { return apptest.BasicProvider("lib0", uri) },
			handler:  patronHandler(opdstest.PatronProfile(clientToken)),
			drm: func(m *drmmock.MockConnector) {
				m.On("ActivateDevice", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Once().
					Return(nil, &drm.Error{Code: "E_ACT_TOO_MANY_ACTIVATIONS"})
			},
			request:   basicRequest,
			expCalls:  1,
			expFailed: true,
			expErr: func(t *testing.T, err model.TaskError) {
				assert.Equal(t, model.DRMFailure{Message: "login: device activation failed", ErrorCode: "E_ACT_TOO_MANY_ACTIVATIONS"}, err)
			},
		},

		"A DRM profile without connector should log in without activation.": {
			provider: func(uri string) model.AccountProvider { return apptest.BasicProvider("lib0", uri) },
			handler:  patronHandler(opdstest.PatronProfile(clientToken)),
			request:  basicRequest,
			expCalls: 1,
			expState: model.LoginStateLoggedIn{Credentials: model.CredentialsBasic{
				Username:        "user",
				Password:        "pass",
				AuthDescription: "Library card",
				AdobeCredential: &model.AdobeCredentials{
					VendorID:         "OmniConsumerProducts",
					ClientToken:      adobeToken,
					DeviceManagerURI: "https://example.com/devices",
				},
			}},
		},

		"Initiating an OAuth login should wait for the external authentication.": {
			provider: func(uri string) model.AccountProvider { return apptest.OAuthProvider("lib0", uri) },
			handler:  patronHandler(opdstest.PatronProfile("")),
			request:  model.LoginOAuthInitiate{AccountID: "a0"},
			expState: model.LoginStateWaitingForExternalAuthentication{
				Description: model.AuthOAuthWithIntermediary{Description: "Clever", AuthenticateURI: "{uri}/oauth"},
				Status:      "Waiting for authentication",
			},
		},

		"Completing an OAuth login while not waiting should be ignored.": {
			provider: func(uri string) model.AccountProvider { return apptest.OAuthProvider("lib0", uri) },
			handler:  patronHandler(opdstest.PatronProfile("")),
			request:  model.LoginOAuthComplete{AccountID: "a0", Token: "token"},
			expState: model.LoginStateNotLoggedIn{},
		},

		"Cancelling an OAuth login while not waiting should be ignored.": {
			provider:     func(uri string) model.AccountProvider { return apptest.OAuthProvider("lib0", uri) },
			initialState: model.LoginStateLoggingIn{Status: "Logging in"},
			handler:      patronHandler(opdstest.PatronProfile("")),
			request:      model.LoginOAuthCancel{AccountID: "a0"},
			expState:     model.LoginStateLoggingIn{Status: "Logging in"},
		},

		"Cancelling an OAuth login while waiting should log out.": {
			provider: func(uri string) model.AccountProvider { return apptest.OAuthProvider("lib0", uri) },
			initialState: model.LoginStateWaitingForExternalAuthentication{
				Description: model.AuthOAuthWithIntermediary{Description: "Clever"},
			},
			handler:  patronHandler(opdstest.PatronProfile("")),
			request:  model.LoginOAuthCancel{AccountID: "a0"},
			expState: model.LoginStateNotLoggedIn{},
		},

		"Completing an OAuth login while waiting should use the token.": {
			provider: func(uri string) model.AccountProvider { return apptest.OAuthProvider("lib0", uri) },
			initialState: model.LoginStateWaitingForExternalAuthentication{
				Description: model.AuthOAuthWithIntermediary{Description: "Clever"},
			},
			handler:  patronHandler(opdstest.PatronProfile("")),
			request:  model.LoginOAuthComplete{AccountID: "a0", Token: "token"},
			expCalls: 1,
			expState: model.LoginStateLoggedIn{Credentials: model.CredentialsOAuthWithIntermediary{
				AccessToken:     "token",
				AuthDescription: "Clever",
			}},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				test.handler(w, r)
			}))
			defer srv.Close()

			env := apptest.NewEnv(t)
			env.AddAccount(t, "a0", test.provider(srv.URL), nil)
			if test.initialState != nil {
				require.NoError(env.States.Set(context.TODO(), "a0", test.initialState))
			}

			cfg := login.ServiceConfig{
				Accounts:   env.Repo,
				States:     env.States,
				HTTPClient: env.Client,
				Logger:     log.Noop,
			}
			if test.drm != nil {
				m := drmmock.NewMockConnector(t)
				test.drm(m)
				cfg.DRM = m
			}
			svc, err := login.NewService(cfg)
			require.NoError(err)

			res := svc.Login(context.TODO(), test.request)

			assert.Equal(test.expCalls, calls.Load())
			require.NotEmpty(res.Steps)
			last, _ := res.LastStep()
			state := env.States.State("a0")

			if test.expFailed {
				require.True(res.Failed())
				assert.Equal(task.StatusFailed, last.Status)
				test.expErr(t, apptest.LastError(res))

				failed, ok := state.(model.LoginStateLoginFailed)
				require.True(ok, "state should be login failed, got %T", state)
				assert.Equal(res, failed.Result)
				return
			}

			require.False(res.Failed(), "unexpected errors: %v", res.Errors())
			assert.Equal(task.StatusDone, last.Status)

			expState := test.expState
			if w, ok := expState.(model.LoginStateWaitingForExternalAuthentication); ok && w.Description.AuthenticateURI != "" {
				w.Description.AuthenticateURI = srv.URL + "/oauth"
				expState = w
			}
			assert.Equal(expState, state)

			if loggedIn, ok := state.(model.LoginStateLoggedIn); ok {
				acc, err := env.Repo.GetAccount(context.TODO(), "a0")
				require.NoError(err)
				assert.Equal(loggedIn.Credentials, acc.Credentials)
			}
		})
	}
}

func TestServiceLoginUnknownAccount(t *testing.T) {
	env := apptest.NewEnv(t)
	svc, err := login.NewService(login.ServiceConfig{Accounts: env.Repo, States: env.States, HTTPClient: env.Client})
	require.NoError(t, err)

	res := svc.Login(context.TODO(), basicRequest)
	require.True(t, res.Failed())

	var uerr model.UnexpectedException
	require.True(t, errors.As(apptest.LastError(res), &uerr))
	assert.ErrorIs(t, uerr, model.ErrNotFound)
}
