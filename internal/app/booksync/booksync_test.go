package booksync_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/app/apptest"
	"github.com/slok/lendr/internal/app/booksync"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/opds/opdstest"
	"github.com/slok/lendr/internal/storage/content"
)

var creds = model.CredentialsBasic{Username: "user", Password: "pass"}

type loansServer struct {
	*httptest.Server

	mu     sync.Mutex
	status int
	body   string
	calls  atomic.Int32
}

func newLoansServer(t *testing.T) *loansServer {
	s := &loansServer{status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		s.mu.Lock()
		defer s.mu.Unlock()
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(s.body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *loansServer) serve(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.body = body
}

func newService(t *testing.T, env *apptest.Env) *booksync.Service {
	svc, err := booksync.NewService(booksync.ServiceConfig{
		Accounts:   env.Repo,
		Books:      env.Repo,
		Content:    env.Content,
		States:     env.States,
		Registry:   env.Registry,
		HTTPClient: env.Client,
	})
	require.NoError(t, err)
	return svc
}

func entries(ids ...string) []opdstest.Entry {
	res := make([]opdstest.Entry, 0, len(ids))
	for _, id := range ids {
		res = append(res, opdstest.Entry{ID: id})
	}
	return res
}

func TestServiceSync(t *testing.T) {
	tests := map[string]struct {
		provider  func(uri string) model.AccountProvider
		creds     model.AccountAuthenticationCredentials
		status    int
		body      string
		expCalls  int32
		expFailed bool
		expErr    func(t *testing.T, err model.TaskError)
		expBooks  []model.BookID
		expState  model.AccountLoginState
	}{
		"Syncing new entries should create the books.": {
			provider: func(uri string) model.AccountProvider { return apptest.BasicProvider("lib0", uri) },
			creds:    creds,
			status:   http.StatusOK,
			body:     opdstest.Feed(entries("urn:book:0", "urn:book:1", "urn:book:2")...),
			expCalls: 1,
			expBooks: []model.BookID{
				model.NewBookID("urn:book:0"),
				model.NewBookID("urn:book:1"),
				model.NewBookID("urn:book:2"),
			},
			expState: model.LoginStateLoggedIn{Credentials: creds},
		},

		"An account that is not logged in should not sync.": {
			provider: func(uri string) model.AccountProvider { return apptest.BasicProvider("lib0", uri) },
			status:   http.StatusOK,
			body:     opdstest.Feed(entries("urn:book:0")...),
			expState: model.LoginStateNotLoggedIn{},
		},

		"A provider without authentication should not sync.": {
			provider: func(uri string) model.AccountProvider { return apptest.OpenProvider("lib0", uri) },
			creds:    creds,
			status:   http.StatusOK,
			body:     opdstest.Feed(entries("urn:book:0")...),
			expState: model.LoginStateLoggedIn{Credentials: creds},
		},

		"An expired session should log out and succeed.": {
			provider: func(uri string) model.AccountProvider { return apptest.BasicProvider("lib0", uri) },
			creds:    creds,
			status:   http.StatusUnauthorized,
			expCalls: 1,
			expState: model.LoginStateNotLoggedIn{},
		},

		"A server error should fail.": {
			provider:  func(uri string) model.AccountProvider { return apptest.BasicProvider("lib0", uri) },
			creds:     creds,
			status:    http.StatusBadGateway,
			expCalls:  1,
			expFailed: true,
			expErr: func(t *testing.T, err model.TaskError) {
				serr, ok := err.(model.ServerError)
				require.True(t, ok)
				assert.Equal(t, http.StatusBadGateway, serr.Code)
			},
			expState: model.LoginStateLoggedIn{Credentials: creds},
		},

		"An unparseable feed should fail.": {
			provider:  func(uri string) model.AccountProvider { return apptest.BasicProvider("lib0", uri) },
			creds:     creds,
			status:    http.StatusOK,
			body:      "<html></html>",
			expCalls:  1,
			expFailed: true,
			expErr: func(t *testing.T, err model.TaskError) {
				assert.IsType(t, model.ServerParseError{}, err)
			},
			expState: model.LoginStateLoggedIn{Credentials: creds},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			srv := newLoansServer(t)
			srv.serve(test.status, test.body)

			env := apptest.NewEnv(t)
			env.AddAccount(t, "a0", test.provider(srv.URL), test.creds)
			events := env.BookEvents(t)

			res := newService(t, env).Sync(context.TODO(), "a0")

			assert.Equal(test.expCalls, srv.calls.Load())
			assert.Equal(test.expState, env.States.State("a0"))
			if test.expFailed {
				require.True(res.Failed())
				test.expErr(t, apptest.LastError(res))
				return
			}
			require.False(res.Failed(), "unexpected errors: %v", res.Errors())

			gotBooks := []model.BookID{}
			for _, b := range env.Registry.Books() {
				gotBooks = append(gotBooks, b.Book.ID)
			}
			expBooks := append([]model.BookID{}, test.expBooks...)
			sort.Slice(expBooks, func(i, j int) bool { return expBooks[i] < expBooks[j] })
			assert.Equal(expBooks, gotBooks)

			expEvents := []model.BookEvent{}
			for _, id := range test.expBooks {
				expEvents = append(expEvents, model.BookEvent{Type: model.BookChanged, BookID: id})
			}
			assert.Equal(expEvents, events())

			if _, ok := test.expState.(model.LoginStateNotLoggedIn); ok && test.creds != nil {
				acc, err := env.Repo.GetAccount(context.TODO(), "a0")
				require.NoError(err)
				assert.Nil(acc.Credentials)
			}
		})
	}
}

func TestServiceSyncReconciliation(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := newLoansServer(t)
	env := apptest.NewEnv(t)
	env.AddAccount(t, "a0", apptest.BasicProvider("lib0", srv.URL), creds)
	svc := newService(t, env)

	srv.serve(http.StatusOK, opdstest.Feed(entries("urn:book:a", "urn:book:b", "urn:book:c")...))
	res := svc.Sync(context.TODO(), "a0")
	require.False(res.Failed())
	require.Len(env.Registry.Books(), 3)

	// Downloaded content of a returned book is removed.
	idB := model.NewBookID("urn:book:b")
	_, err := env.Content.Put(context.TODO(), idB, strings.NewReader("content"), content.PutOptions{ContentType: "application/epub+zip"})
	require.NoError(err)

	events := env.BookEvents(t)
	srv.serve(http.StatusOK, opdstest.Feed(entries("urn:book:a")...))
	res = svc.Sync(context.TODO(), "a0")
	require.False(res.Failed())

	idA := model.NewBookID("urn:book:a")
	idC := model.NewBookID("urn:book:c")
	removed := []model.BookID{idB, idC}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })

	assert.Equal([]model.BookEvent{
		{Type: model.BookChanged, BookID: idA},
		{Type: model.BookRemoved, BookID: removed[0]},
		{Type: model.BookRemoved, BookID: removed[1]},
	}, events())

	books := env.Registry.Books()
	require.Len(books, 1)
	assert.Equal(idA, books[0].Book.ID)

	dbBooks, err := env.Repo.ListBooks(context.TODO(), "a0")
	require.NoError(err)
	require.Len(dbBooks, 1)
	assert.Equal(idA, dbBooks[0].ID)

	_, err = env.Content.Path(context.TODO(), idB)
	assert.ErrorIs(err, model.ErrNotFound)
}

func TestServiceSyncKeepsRunningStatus(t *testing.T) {
	srv := newLoansServer(t)
	srv.serve(http.StatusOK, opdstest.Feed(entries("urn:book:0")...))

	env := apptest.NewEnv(t)
	env.AddAccount(t, "a0", apptest.BasicProvider("lib0", srv.URL), creds)

	id := model.NewBookID("urn:book:0")
	env.Registry.Update(model.BookWithStatus{
		Book:   model.Book{ID: id, AccountID: "a0", Entry: model.FeedEntry{ID: "urn:book:0"}},
		Status: model.StatusDownloading{CurrentBytes: 10, ExpectedBytes: 100},
	})

	res := newService(t, env).Sync(context.TODO(), "a0")
	require.False(t, res.Failed())

	b, ok := env.Registry.Book(id)
	require.True(t, ok)
	assert.Equal(t, model.StatusDownloading{CurrentBytes: 10, ExpectedBytes: 100}, b.Status)
	assert.Equal(t, "Book urn:book:0", b.Book.Entry.Title)
}

func TestServiceSyncAll(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := newLoansServer(t)
	srv.serve(http.StatusOK, opdstest.Feed(entries("urn:book:0")...))

	env := apptest.NewEnv(t)
	env.AddAccount(t, "a0", apptest.BasicProvider("lib0", srv.URL), creds)
	env.AddAccount(t, "a1", apptest.BasicProvider("lib1", srv.URL), nil)

	results, err := newService(t, env).SyncAll(context.TODO(), env.Profile.ID)
	require.NoError(err)
	require.Len(results, 2)
	assert.False(results["a0"].Failed())
	assert.False(results["a1"].Failed())
	assert.Equal(int32(1), srv.calls.Load())
	assert.Len(env.Registry.BooksFor("a0"), 1)
}
