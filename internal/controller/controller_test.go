package controller_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/app/apptest"
	"github.com/slok/lendr/internal/app/borrow"
	"github.com/slok/lendr/internal/app/profile"
	"github.com/slok/lendr/internal/controller"
	"github.com/slok/lendr/internal/event"
	"github.com/slok/lendr/internal/metrics"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/opds"
	"github.com/slok/lendr/internal/opds/opdstest"
	"github.com/slok/lendr/internal/provider"
)

var creds = model.CredentialsBasic{Username: "user", Password: "pass"}

func newLibraryServer(t *testing.T) *httptest.Server {
	authorized := func(r *http.Request) bool {
		user, pass, ok := r.BasicAuth()
		return ok && user == "user" && pass == "pass"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/loans", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(opdstest.Feed(opdstest.Entry{ID: "urn:book:0"}, opdstest.Entry{ID: "urn:book:1"})))
	})
	mux.HandleFunc("/patrons/me", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(opdstest.PatronProfile("")))
	})
	mux.HandleFunc("/content/slow.epub", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", opds.ContentTypeEPUB)
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("0123456789"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testController struct {
	*controller.Controller
	env       *apptest.Env
	providers *provider.Registry
	metrics   *prometheus.Registry
}

func newController(t *testing.T) *testController {
	env := apptest.NewEnv(t)

	providers, err := provider.NewRegistry(provider.RegistryConfig{HTTPClient: env.Client})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	c, err := controller.New(controller.Config{
		Repository: env.Repo,
		Content:    env.Content,
		States:     env.States,
		Books:      env.Registry,
		Providers:  providers,
		HTTPClient: env.Client,
		Metrics:    metrics.NewPrometheus(reg),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.TODO()) })

	return &testController{Controller: c, env: env, providers: providers, metrics: reg}
}

func TestNew(t *testing.T) {
	_, err := controller.New(controller.Config{})
	assert.Error(t, err)
}

func TestControllerBooksSync(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := newLibraryServer(t)
	c := newController(t)
	c.env.AddAccount(t, "acc0", apptest.BasicProvider("lib0", srv.URL), creds)

	res, err := c.BooksSync(context.TODO(), "acc0").Get(context.TODO())
	require.NoError(err)
	require.False(res.Failed(), "%v", res.Errors())

	books, err := c.Books("acc0").Get(context.TODO())
	require.NoError(err)
	assert.Len(books, 2)

	history, err := c.TaskHistory(context.TODO(), "acc0").Get(context.TODO())
	require.NoError(err)
	require.Len(history, 1)
	assert.Equal("sync", history[0].Operation)
	assert.False(history[0].Failed)

	n, err := testutil.GatherAndCount(c.metrics, "lendr_task_runs_total")
	require.NoError(err)
	assert.Equal(1, n)
}

func TestControllerLoginSyncs(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := newLibraryServer(t)
	c := newController(t)
	c.env.AddAccount(t, "acc0", apptest.BasicProvider("lib0", srv.URL), nil)

	res, err := c.ProfileAccountLogin(context.TODO(), model.LoginBasic{
		AccountID:   "acc0",
		Username:    "user",
		Password:    "pass",
		Description: model.AuthBasic{Description: "Library card"},
	}).Get(context.TODO())
	require.NoError(err)
	require.False(res.Failed(), "%v", res.Errors())

	state, err := c.AccountLoginState("acc0").Get(context.TODO())
	require.NoError(err)
	assert.IsType(model.LoginStateLoggedIn{}, state)

	assert.Eventually(func() bool {
		return len(c.env.Registry.BooksFor("acc0")) == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestControllerBookDownloadCancel(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := newLibraryServer(t)
	c := newController(t)
	c.env.AddAccount(t, "acc0", apptest.BasicProvider("lib0", srv.URL), creds)

	acq := model.Acquisition{Relation: model.AcquisitionGeneric, URI: srv.URL + "/content/slow.epub", Type: opds.ContentTypeEPUB}
	entry := model.FeedEntry{ID: "urn:book:0", Title: "Slow", Acquisitions: []model.Acquisition{acq}, Availability: model.AvailabilityLoaned{}}
	id := model.NewBookID(entry.ID)

	f := c.BookBorrow(context.TODO(), borrow.Request{AccountID: "acc0", Entry: entry, Acquisition: acq})

	// Requesting is published before the task runs.
	b, ok := c.env.Registry.Book(id)
	require.True(ok)
	assert.NotNil(b.Status)

	assert.Eventually(func() bool {
		b, ok := c.env.Registry.Book(id)
		_, downloading := b.Status.(model.StatusDownloading)
		return ok && downloading
	}, 5*time.Second, 10*time.Millisecond)

	cancelled, err := c.BookDownloadCancel(id).Get(context.TODO())
	require.NoError(err)
	assert.True(cancelled)

	res, err := f.Get(context.TODO())
	require.NoError(err)
	require.True(res.Failed())
	assert.IsType(model.Cancelled{}, apptest.LastError(res))

	cancelled, err = c.BookDownloadCancel(id).Get(context.TODO())
	require.NoError(err)
	assert.False(cancelled)
}

func TestControllerProviderUpdated(t *testing.T) {
	assert := assert.New(t)

	c := newController(t)
	p := apptest.BasicProvider("lib0", "http://www.example.com")
	c.env.AddAccount(t, "acc0", p, nil)

	c.providers.UpdateDescription(model.AccountProviderDescription{
		ID:      "lib0",
		Title:   "Renamed library",
		Updated: p.Updated.Add(time.Hour),
		Links:   []model.Link{{Href: "http://www.example.com/catalog", Relation: model.RelCatalog}},
	})

	assert.Eventually(func() bool {
		acc, err := c.env.Repo.GetAccount(context.TODO(), "acc0")
		return err == nil && acc.Provider.DisplayName == "Renamed library"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestControllerProfileSelectSyncs(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := newLibraryServer(t)
	c := newController(t)

	events, unsubscribe := event.Collect(c.ProfileEvents())
	defer unsubscribe()

	p, err := c.ProfileCreate(context.TODO(), profile.CreateRequest{DisplayName: "Kid"}).Get(context.TODO())
	require.NoError(err)
	require.NoError(c.env.Repo.CreateAccount(context.TODO(), model.Account{
		ID:          "acc-kid",
		ProfileID:   p.ID,
		Provider:    apptest.BasicProvider("lib0", srv.URL),
		Credentials: creds,
	}))

	_, err = c.ProfileSelect(context.TODO(), p.ID).Get(context.TODO())
	require.NoError(err)

	current, err := c.ProfileCurrent(context.TODO()).Get(context.TODO())
	require.NoError(err)
	assert.Equal(p.ID, current.ID)

	assert.Eventually(func() bool {
		return len(c.env.Registry.BooksFor("acc-kid")) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(events(), model.ProfileEvent(model.ProfileSelectionCompleted{ProfileID: p.ID}))
}

func TestControllerAccounts(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := newLibraryServer(t)
	c := newController(t)
	c.env.AddAccount(t, "acc0", apptest.BasicProvider("lib0", srv.URL), creds)
	c.providers.UpdateDescription(model.AccountProviderDescription{
		ID:      "lib1",
		Title:   "Library lib1",
		Updated: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Links:   []model.Link{{Href: srv.URL + "/catalog", Relation: model.RelCatalog}},
	})

	res, err := c.ProfileAccountCreate(context.TODO(), "lib1").Get(context.TODO())
	require.NoError(err)
	require.False(res.Failed(), "%v", res.Errors())

	acc, err := c.ProfileAccountFindByProvider(context.TODO(), "lib1").Get(context.TODO())
	require.NoError(err)
	assert.Equal(res.Value.ID, acc.ID)

	ps, err := c.ProfileCurrentlyUsedAccountProviders(context.TODO()).Get(context.TODO())
	require.NoError(err)
	require.Len(ps, 2)
	assert.Equal("Library lib0", ps[0].DisplayName)
	assert.Equal("Library lib1", ps[1].DisplayName)

	del, err := c.ProfileAccountDeleteByProvider(context.TODO(), "lib1").Get(context.TODO())
	require.NoError(err)
	require.False(del.Failed(), "%v", del.Errors())

	_, err = c.ProfileAccountFindByProvider(context.TODO(), "lib1").Get(context.TODO())
	assert.ErrorIs(err, model.ErrNotFound)

	del, err = c.ProfileAccountDeleteByProvider(context.TODO(), "lib0").Get(context.TODO())
	require.NoError(err)
	assert.IsType(model.CannotDeleteLastAccount{}, apptest.LastError(del))
}
