package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/slok/lendr/internal/model"
)

// Auth is the authentication sent with a request.
type Auth struct {
	Username string
	Password string
	// BearerToken takes precedence over basic credentials when set.
	BearerToken string
}

// AuthFromCredentials returns the request authentication for account credentials.
func AuthFromCredentials(c model.AccountAuthenticationCredentials) *Auth {
	switch v := c.(type) {
	case model.CredentialsBasic:
		return &Auth{Username: v.Username, Password: v.Password}
	case model.CredentialsOAuthWithIntermediary:
		return &Auth{BearerToken: v.AccessToken}
	}
	return nil
}

// Request is an HTTP request.
type Request struct {
	Method      string
	URI         string
	Auth        *Auth
	ContentType string
	Body        []byte
	Headers     map[string]string
}

// Result is the outcome of a request: OK, Error or Exception.
type Result interface {
	isResult()
	RequestURI() string
}

// OK is a 2xx response, the caller owns and must close the body.
type OK struct {
	URI         string
	Status      int
	ContentType string
	Headers     http.Header
	Body        io.ReadCloser
	Length      int64
}

// Error is a non 2xx response, the body has already been consumed to extract the
// problem report when present.
type Error struct {
	URI           string
	Status        int
	StatusText    string
	ContentType   string
	Headers       http.Header
	Body          []byte
	ProblemReport *model.ProblemReport
}

// Exception is a request that couldn't obtain a response.
type Exception struct {
	URI string
	Err error
}

func (OK) isResult()        {}
func (Error) isResult()     {}
func (Exception) isResult() {}

func (r OK) RequestURI() string        { return r.URI }
func (r Error) RequestURI() string     { return r.URI }
func (r Exception) RequestURI() string { return r.URI }

// Timeout returns true when the exception was caused by a timeout.
func (r Exception) Timeout() bool { return IsTimeout(r.Err) }

// IsTimeout returns true when the error is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Client is the HTTP client used by tasks.
type Client interface {
	Do(ctx context.Context, req Request) Result
}

// Get is a helper to make GET requests.
func Get(ctx context.Context, c Client, uri string, auth *Auth) Result {
	return c.Do(ctx, Request{Method: http.MethodGet, URI: uri, Auth: auth})
}
