package bookreport_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/app/apptest"
	"github.com/slok/lendr/internal/app/bookreport"
	"github.com/slok/lendr/internal/model"
)

const wrongGenre = "http://librarysimplified.org/terms/problem/wrong-genre"

func TestServiceReport(t *testing.T) {
	tests := map[string]struct {
		status     int
		entry      func(uri string) model.FeedEntry
		reportType string
		expBody    map[string]string
		expErr     bool
		expInvalid bool
	}{
		"Reporting a problem should post it to the issues URI.": {
			status:     http.StatusCreated,
			entry:      func(uri string) model.FeedEntry { return model.FeedEntry{ID: "urn:book:0", Title: "Book", IssuesURI: uri} },
			reportType: wrongGenre,
			expBody:    map[string]string{"type": wrongGenre, "title": "Book"},
		},

		"A server error should fail.": {
			status:     http.StatusBadRequest,
			entry:      func(uri string) model.FeedEntry { return model.FeedEntry{ID: "urn:book:0", Title: "Book", IssuesURI: uri} },
			reportType: wrongGenre,
			expBody:    map[string]string{"type": wrongGenre, "title": "Book"},
			expErr:     true,
		},

		"An entry without issues URI should fail.": {
			entry:      func(uri string) model.FeedEntry { return model.FeedEntry{ID: "urn:book:0"} },
			reportType: wrongGenre,
			expErr:     true,
			expInvalid: true,
		},

		"A report without type should fail.": {
			entry:      func(uri string) model.FeedEntry { return model.FeedEntry{ID: "urn:book:0", IssuesURI: uri} },
			expErr:     true,
			expInvalid: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			var gotBody map[string]string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(http.MethodPost, r.Method)
				assert.Equal("application/problem+json", r.Header.Get("Content-Type"))
				user, pass, _ := r.BasicAuth()
				assert.Equal("user", user)
				assert.Equal("pass", pass)
				data, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(data, &gotBody)
				w.WriteHeader(test.status)
			}))
			defer srv.Close()

			env := apptest.NewEnv(t)
			env.AddAccount(t, "acc0", apptest.BasicProvider("lib0", srv.URL), model.CredentialsBasic{Username: "user", Password: "pass"})
			svc, err := bookreport.NewService(bookreport.ServiceConfig{States: env.States, HTTPClient: env.Client})
			require.NoError(err)

			err = svc.Report(context.TODO(), bookreport.RequestFor("acc0", test.entry(srv.URL+"/issues"), test.reportType))
			if test.expErr {
				assert.Error(err)
				assert.Equal(test.expInvalid, errors.Is(err, model.ErrNotValid))
			} else {
				assert.NoError(err)
			}
			assert.Equal(test.expBody, gotBody)
		})
	}
}
