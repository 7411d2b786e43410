package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
)

const maxErrorBody = 1 << 20

// ClientConfig is the configuration of the net/http backed client.
type ClientConfig struct {
	// HTTPClient is the underlying client, defaults to a client with a 60s timeout.
	HTTPClient *http.Client
	UserAgent  string
	// MaxRetries is the number of retries of idempotent requests on transport
	// errors and 5xx responses, defaults to 2.
	MaxRetries     uint64
	DisableRetries bool
	// RetryBackoff is the base of the exponential retry backoff, defaults to 250ms.
	RetryBackoff time.Duration
	Logger       log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.UserAgent == "" {
		c.UserAgent = "lendr"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.DisableRetries {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "httpclient.HTTPClient"})
	return nil
}

// HTTPClient is a Client implementation based on net/http.
type HTTPClient struct {
	cli        *http.Client
	userAgent  string
	maxRetries uint64
	backoff    time.Duration
	logger     log.Logger
}

// NewClient returns a new net/http backed client.
func NewClient(cfg ClientConfig) (*HTTPClient, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &HTTPClient{
		cli:        cfg.HTTPClient,
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		logger:     cfg.Logger,
	}, nil
}

// Do executes the request, retrying idempotent requests on transient failures.
func (c *HTTPClient) Do(ctx context.Context, req Request) Result {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var res Result
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res = c.do(ctx, req)
		if !idempotent(req.Method) {
			return nil
		}

		switch r := res.(type) {
		case Exception:
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Debugf("Retrying %s %s: %s", req.Method, req.URI, r.Err)
			return retry.RetryableError(r.Err)
		case Error:
			if r.Status >= http.StatusInternalServerError {
				c.logger.Debugf("Retrying %s %s: status %d", req.Method, req.URI, r.Status)
				return retry.RetryableError(fmt.Errorf("server returned %d", r.Status))
			}
		}
		return nil
	})
	if res == nil {
		return Exception{URI: req.URI, Err: err}
	}

	return res
}

func (c *HTTPClient) do(ctx context.Context, req Request) Result {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URI, body)
	if err != nil {
		return Exception{URI: req.URI, Err: fmt.Errorf("could not create request: %w", err)}
	}
	hreq.Header.Set("User-Agent", c.userAgent)
	if req.ContentType != "" {
		hreq.Header.Set("Content-Type", req.ContentType)
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}
	if req.Auth != nil {
		if req.Auth.BearerToken != "" {
			hreq.Header.Set("Authorization", "Bearer "+req.Auth.BearerToken)
		} else {
			hreq.SetBasicAuth(req.Auth.Username, req.Auth.Password)
		}
	}

	resp, err := c.cli.Do(hreq)
	if err != nil {
		return Exception{URI: req.URI, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return OK{
			URI:         req.URI,
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Headers:     resp.Header,
			Body:        resp.Body,
			Length:      resp.ContentLength,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		c.logger.Warningf("Could not read error body of %s: %s", req.URI, err)
	}

	res := Error{
		URI:         req.URI,
		Status:      resp.StatusCode,
		StatusText:  strings.ToUpper(http.StatusText(resp.StatusCode)),
		ContentType: resp.Header.Get("Content-Type"),
		Headers:     resp.Header,
		Body:        data,
	}
	if isProblemReport(res.ContentType) {
		pr, err := ParseProblemReport(data)
		if err != nil {
			c.logger.Warningf("Could not parse problem report of %s: %s", req.URI, err)
		} else {
			res.ProblemReport = pr
		}
	}

	return res
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

func isProblemReport(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/problem+json" || mt == "application/api-problem+json"
}

// ParseProblemReport parses an RFC 7807 problem report.
func ParseProblemReport(data []byte) (*model.ProblemReport, error) {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("could not decode problem report: %w", err)
	}

	pr := &model.ProblemReport{Raw: raw}
	if err := json.Unmarshal(data, pr); err != nil {
		return nil, fmt.Errorf("could not decode problem report: %w", err)
	}
	return pr, nil
}
