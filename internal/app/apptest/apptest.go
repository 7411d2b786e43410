// Package apptest has the shared fixtures of the application service tests.
package apptest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/accountstate"
	"github.com/slok/lendr/internal/bookregistry"
	"github.com/slok/lendr/internal/event"
	"github.com/slok/lendr/internal/httpclient"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/storage/content"
	"github.com/slok/lendr/internal/storage/memory"
)

// Env is a wired set of in-memory collaborators.
type Env struct {
	Repo     *memory.Repository
	States   *accountstate.Store
	Registry *bookregistry.Registry
	Content  *content.Store
	Client   httpclient.Client
	Profile  model.Profile
}

// NewEnv returns an environment with a selected profile.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	require := require.New(t)

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)

	states, err := accountstate.NewStore(accountstate.StoreConfig{Repository: repo})
	require.NoError(err)

	store, err := content.NewStore(content.StoreConfig{Dir: t.TempDir(), ProgressInterval: time.Millisecond})
	require.NoError(err)

	client, err := httpclient.NewClient(httpclient.ClientConfig{DisableRetries: true})
	require.NoError(err)

	profile := model.Profile{
		ID:          "p0",
		DisplayName: "Reader",
		CreatedAt:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(repo.CreateProfile(context.TODO(), profile))
	require.NoError(repo.SetCurrentProfile(context.TODO(), profile.ID))

	return &Env{
		Repo:     repo,
		States:   states,
		Registry: bookregistry.New(log.Noop),
		Content:  store,
		Client:   client,
		Profile:  profile,
	}
}

// AddAccount stores an account of the current profile, the account is logged
// in when creds is not nil.
func (e *Env) AddAccount(t *testing.T, id model.AccountID, p model.AccountProvider, creds model.AccountAuthenticationCredentials) model.Account {
	t.Helper()

	acc := model.Account{
		ID:          id,
		ProfileID:   e.Profile.ID,
		Provider:    p,
		Credentials: creds,
		CreatedAt:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, e.Repo.CreateAccount(context.TODO(), acc))
	e.States.Load([]model.Account{acc})
	return acc
}

// AccountEvents collects the account events published by the state store.
func (e *Env) AccountEvents(t *testing.T) func() []model.AccountEvent {
	events, unsubscribe := event.Collect(e.States.Events())
	t.Cleanup(unsubscribe)
	return events
}

// BookEvents collects the book registry events.
func (e *Env) BookEvents(t *testing.T) func() []model.BookEvent {
	events, unsubscribe := event.Collect(e.Registry.Events())
	t.Cleanup(unsubscribe)
	return events
}

// BasicProvider returns a provider with basic authentication served from baseURI.
func BasicProvider(id, baseURI string) model.AccountProvider {
	return model.AccountProvider{
		ID:                id,
		DisplayName:       "Library " + id,
		Authentication:    model.AuthBasic{Description: "Library card", Keyboard: model.KeyboardDefault},
		CatalogURI:        baseURI + "/catalog",
		LoansURI:          baseURI + "/loans",
		PatronSettingsURI: baseURI + "/patrons/me",
		Updated:           time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// OAuthProvider returns a provider with OAuth intermediary authentication served from baseURI.
func OAuthProvider(id, baseURI string) model.AccountProvider {
	p := BasicProvider(id, baseURI)
	p.Authentication = model.AuthOAuthWithIntermediary{Description: "Clever", AuthenticateURI: baseURI + "/oauth"}
	return p
}

// OpenProvider returns a provider without authentication served from baseURI.
func OpenProvider(id, baseURI string) model.AccountProvider {
	p := BasicProvider(id, baseURI)
	p.Authentication = nil
	p.LoansURI = ""
	p.PatronSettingsURI = ""
	return p
}

// LastError returns the last error of a failed result, nil when there is none.
func LastError[A any](r model.TaskResult[A]) model.TaskError {
	err, ok := r.LastError()
	if !ok {
		return nil
	}
	return err
}
