package accountstate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/accountstate"
	"github.com/slok/lendr/internal/event"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/storage/storagemock"
)

func TestNewStore(t *testing.T) {
	_, err := accountstate.NewStore(accountstate.StoreConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository is required")
}

func TestStoreSet(t *testing.T) {
	creds := model.CredentialsBasic{Username: "user", Password: "pass"}

	tests := map[string]struct {
		mock     func(m *storagemock.MockAccountRepository)
		state    model.AccountLoginState
		expState model.AccountLoginState
		expErr   bool
	}{
		"Logging in should persist the credentials.": {
			mock: func(m *storagemock.MockAccountRepository) {
				m.On("SetAccountCredentials", mock.Anything, model.AccountID("a0"), creds).Once().Return(nil)
			},
			state:    model.LoginStateLoggedIn{Credentials: creds},
			expState: model.LoginStateLoggedIn{Credentials: creds},
		},

		"Logging out should clear the credentials.": {
			mock: func(m *storagemock.MockAccountRepository) {
				m.On("SetAccountCredentials", mock.Anything, model.AccountID("a0"), nil).Once().Return(nil)
			},
			state:    model.LoginStateNotLoggedIn{},
			expState: model.LoginStateNotLoggedIn{},
		},

		"Transient states shouldn't be persisted.": {
			mock:     func(m *storagemock.MockAccountRepository) {},
			state:    model.LoginStateLoggingIn{Status: "Logging in"},
			expState: model.LoginStateLoggingIn{Status: "Logging in"},
		},

		"A persistence failure should keep the state and return an error.": {
			mock: func(m *storagemock.MockAccountRepository) {
				m.On("SetAccountCredentials", mock.Anything, model.AccountID("a0"), creds).Once().Return(errors.New("whatever"))
			},
			state:    model.LoginStateLoggedIn{Credentials: creds},
			expState: model.LoginStateLoggedIn{Credentials: creds},
			expErr:   true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			repo := storagemock.NewMockAccountRepository(t)
			test.mock(repo)

			s, err := accountstate.NewStore(accountstate.StoreConfig{Repository: repo, Logger: log.Noop})
			require.NoError(err)
			events, unsubscribe := event.Collect(s.Events())
			defer unsubscribe()

			err = s.Set(context.TODO(), "a0", test.state)
			if test.expErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
			}

			assert.Equal(test.expState, s.State("a0"))
			assert.Equal([]model.AccountEvent{model.AccountLoginStateChanged{
				Message:   "Login state changed to " + test.expState.Name(),
				AccountID: "a0",
				State:     test.expState,
			}}, events())
		})
	}
}

func TestStoreSnapshots(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo := storagemock.NewMockAccountRepository(t)
	repo.On("SetAccountCredentials", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	s, err := accountstate.NewStore(accountstate.StoreConfig{Repository: repo})
	require.NoError(err)

	creds := model.CredentialsOAuthWithIntermediary{AccessToken: "token"}
	s.Load([]model.Account{
		{ID: "a0", Credentials: creds},
		{ID: "a1"},
	})
	assert.Equal(model.LoginStateLoggedIn{Credentials: creds}, s.State("a0"))
	assert.Equal(model.LoginStateNotLoggedIn{}, s.State("a1"))
	assert.Equal(model.LoginStateNotLoggedIn{}, s.State("unknown"))

	got, ok := s.Credentials("a0")
	require.True(ok)
	assert.Equal(creds, got)

	// Snapshots taken before a change are not affected by it.
	before := s.Snapshot()
	require.NoError(s.Set(context.TODO(), "a0", model.LoginStateNotLoggedIn{}))
	assert.Equal(model.LoginStateLoggedIn{Credentials: creds}, before["a0"])
	assert.Equal(model.LoginStateNotLoggedIn{}, s.State("a0"))

	// Loading again doesn't override tracked accounts.
	s.Load([]model.Account{{ID: "a0", Credentials: creds}})
	assert.Equal(model.LoginStateNotLoggedIn{}, s.State("a0"))

	s.Forget("a0")
	assert.NotContains(s.Snapshot(), model.AccountID("a0"))
}
