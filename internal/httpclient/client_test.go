package httpclient_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/httpclient"
)

func TestHTTPClientDo(t *testing.T) {
	tests := map[string]struct {
		handler   http.HandlerFunc
		request   func(uri string) httpclient.Request
		expResult func(t *testing.T, res httpclient.Result)
	}{
		"A successful request should return the body.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				_, _ = w.Write([]byte("hello"))
			},
			request: func(uri string) httpclient.Request { return httpclient.Request{URI: uri} },
			expResult: func(t *testing.T, res httpclient.Result) {
				ok, isOK := res.(httpclient.OK)
				require.True(t, isOK)
				defer ok.Body.Close()
				data, err := io.ReadAll(ok.Body)
				require.NoError(t, err)
				assert.Equal(t, "hello", string(data))
				assert.Equal(t, "text/plain", ok.ContentType)
			},
		},

		"Basic credentials should be sent.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				u, p, ok := r.BasicAuth()
				if !ok || u != "user" || p != "pass" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			},
			request: func(uri string) httpclient.Request {
				return httpclient.Request{URI: uri, Auth: &httpclient.Auth{Username: "user", Password: "pass"}}
			},
			expResult: func(t *testing.T, res httpclient.Result) {
				ok, isOK := res.(httpclient.OK)
				require.True(t, isOK)
				_ = ok.Body.Close()
				assert.Equal(t, http.StatusNoContent, ok.Status)
			},
		},

		"Bearer tokens should take precedence over basic credentials.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer tok" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.WriteHeader(http.StatusOK)
			},
			request: func(uri string) httpclient.Request {
				return httpclient.Request{URI: uri, Auth: &httpclient.Auth{Username: "u", BearerToken: "tok"}}
			},
			expResult: func(t *testing.T, res httpclient.Result) {
				ok, isOK := res.(httpclient.OK)
				require.True(t, isOK)
				_ = ok.Body.Close()
			},
		},

		"A 404 should return an error with the uppercased status text.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			request: func(uri string) httpclient.Request { return httpclient.Request{URI: uri} },
			expResult: func(t *testing.T, res httpclient.Result) {
				e, isErr := res.(httpclient.Error)
				require.True(t, isErr)
				assert.Equal(t, 404, e.Status)
				assert.Equal(t, "NOT FOUND", e.StatusText)
				assert.Nil(t, e.ProblemReport)
			},
		},

		"A problem report should be parsed.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"type":"http://librarysimplified.org/terms/problem/loan-limit-reached","title":"Loan limit reached.","status":400,"detail":"You have reached your loan limit."}`))
			},
			request: func(uri string) httpclient.Request { return httpclient.Request{URI: uri} },
			expResult: func(t *testing.T, res httpclient.Result) {
				e, isErr := res.(httpclient.Error)
				require.True(t, isErr)
				require.NotNil(t, e.ProblemReport)
				assert.Equal(t, "Loan limit reached.", e.ProblemReport.Title)
				assert.Equal(t, "You have reached your loan limit.", e.ProblemReport.Detail)
				assert.Equal(t, 400, e.ProblemReport.Status)
			},
		},

		"Request bodies and headers should be sent.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				data, _ := io.ReadAll(r.Body)
				if r.Method != http.MethodPost || string(data) != "body" || r.Header.Get("Content-Type") != "text/plain" || r.Header.Get("X-Test") != "1" {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				w.WriteHeader(http.StatusCreated)
			},
			request: func(uri string) httpclient.Request {
				return httpclient.Request{
					Method:      http.MethodPost,
					URI:         uri,
					ContentType: "text/plain",
					Body:        []byte("body"),
					Headers:     map[string]string{"X-Test": "1"},
				}
			},
			expResult: func(t *testing.T, res httpclient.Result) {
				ok, isOK := res.(httpclient.OK)
				require.True(t, isOK)
				_ = ok.Body.Close()
				assert.Equal(t, http.StatusCreated, ok.Status)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(test.handler)
			defer srv.Close()

			c, err := httpclient.NewClient(httpclient.ClientConfig{DisableRetries: true})
			require.NoError(t, err)

			res := c.Do(context.TODO(), test.request(srv.URL))
			test.expResult(t, res)
		})
	}
}

func TestHTTPClientRetries(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, err := httpclient.NewClient(httpclient.ClientConfig{MaxRetries: 3, RetryBackoff: time.Millisecond})
	require.NoError(err)

	res := httpclient.Get(context.TODO(), c, srv.URL, nil)
	ok, isOK := res.(httpclient.OK)
	require.True(isOK)
	_ = ok.Body.Close()
	assert.Equal(int32(3), calls.Load())
}

func TestHTTPClientNoRetryOnPost(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := httpclient.NewClient(httpclient.ClientConfig{MaxRetries: 3, RetryBackoff: time.Millisecond})
	require.NoError(err)

	res := c.Do(context.TODO(), httpclient.Request{Method: http.MethodPost, URI: srv.URL})
	_, isErr := res.(httpclient.Error)
	assert.True(isErr)
	assert.Equal(int32(1), calls.Load())
}

func TestHTTPClientException(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	uri := srv.URL
	srv.Close()

	c, err := httpclient.NewClient(httpclient.ClientConfig{DisableRetries: true})
	require.NoError(err)

	res := httpclient.Get(context.TODO(), c, uri, nil)
	ex, isEx := res.(httpclient.Exception)
	require.True(isEx)
	assert.Error(ex.Err)
	assert.Equal(uri, ex.RequestURI())
	assert.False(ex.Timeout())
}

func TestHTTPClientTimeout(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := httpclient.NewClient(httpclient.ClientConfig{
		HTTPClient:     &http.Client{Timeout: 20 * time.Millisecond},
		DisableRetries: true,
	})
	require.NoError(err)

	res := httpclient.Get(context.TODO(), c, srv.URL, nil)
	ex, isEx := res.(httpclient.Exception)
	require.True(isEx)
	assert.True(ex.Timeout())
}

func TestProgressWriter(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var updates [][2]int64
	dst := &bytes.Buffer{}
	pw := httpclient.NewProgressWriter(dst, 10, 0, func(written, total int64) {
		updates = append(updates, [2]int64{written, total})
	})

	n, err := httpclient.CopyWithContext(context.TODO(), pw, strings.NewReader("0123456789"))
	require.NoError(err)
	pw.Finish()

	assert.Equal(int64(10), n)
	assert.Equal("0123456789", dst.String())
	assert.Equal(int64(10), pw.Written())
	require.NotEmpty(updates)
	assert.Equal([2]int64{10, 10}, updates[len(updates)-1])
}

func TestCopyWithContextCancelled(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := httpclient.CopyWithContext(ctx, &bytes.Buffer{}, strings.NewReader("data"))
	assert.ErrorIs(err, context.Canceled)
	assert.Equal(int64(0), n)
}
