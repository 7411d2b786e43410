// Package api serves a small HTTP API over the library controller so the books
// of the current profile can be inspected and driven remotely.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/task"
	"github.com/slok/lendr/internal/worker"
)

// Controller is the part of the library controller used by the API.
type Controller interface {
	ProfileAccounts(ctx context.Context) *worker.Future[[]model.Account]
	AccountLoginState(id model.AccountID) *worker.Future[model.AccountLoginState]
	Books(accountID model.AccountID) *worker.Future[[]model.BookWithStatus]
	BooksSync(ctx context.Context, accountID model.AccountID) *worker.Future[model.TaskResult[struct{}]]
	BookBorrowWithDefaultAcquisition(ctx context.Context, accountID model.AccountID, entry model.FeedEntry) *worker.Future[model.TaskResult[struct{}]]
	BookDownloadCancel(id model.BookID) *worker.Future[bool]
}

// Config is the API configuration.
type Config struct {
	Controller Controller
	// Gatherer is served on /metrics, the Prometheus default gatherer when nil.
	Gatherer prometheus.Gatherer
	Logger   log.Logger
}

func (c *Config) defaults() error {
	if c.Controller == nil {
		return fmt.Errorf("controller is required")
	}

	if c.Gatherer == nil {
		c.Gatherer = prometheus.DefaultGatherer
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Handler"})

	return nil
}

type handler struct {
	ctrl   Controller
	logger log.Logger
}

// New returns the API HTTP handler.
func New(cfg Config) (http.Handler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := handler{ctrl: cfg.Controller, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts/{accountID}/sync", h.syncAccount)
	r.Get("/books", h.listBooks)
	r.Post("/books/{bookID}/borrow", h.borrowBook)
	r.Delete("/books/{bookID}/download", h.cancelDownload)

	return r, nil
}

func (h handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := h.logger.SetValuesOnCtx(r.Context(), log.Kv{"req-id": middleware.GetReqID(r.Context())})
		r = r.WithContext(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.WithCtxValues(ctx).WithValues(log.Kv{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		}).Debugf("Request handled")
	})
}

type accountResponse struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	Library    string `json:"library"`
	State      string `json:"state"`
}

func (h handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accs, err := h.ctrl.ProfileAccounts(r.Context()).Get(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	resp := make([]accountResponse, 0, len(accs))
	for _, a := range accs {
		state, _ := h.ctrl.AccountLoginState(a.ID).Get(r.Context())
		name := model.LoginStateNotLoggedIn{}.Name()
		if state != nil {
			name = state.Name()
		}
		resp = append(resp, accountResponse{
			ID:         string(a.ID),
			ProviderID: a.Provider.ID,
			Library:    a.Provider.DisplayName,
			State:      name,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type taskResponse struct {
	Failed bool         `json:"failed"`
	Steps  []stepResult `json:"steps"`
}

type stepResult struct {
	Description string `json:"description"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

func newTaskResponse[A any](res model.TaskResult[A]) taskResponse {
	rec := task.NewRecord("", "", res)
	resp := taskResponse{Failed: rec.Failed, Steps: []stepResult{}}
	for _, s := range rec.Steps {
		resp.Steps = append(resp.Steps, stepResult{
			Description: s.Description,
			Status:      string(s.Status),
			Message:     s.Message,
			Error:       s.Error,
		})
	}
	return resp
}

func (h handler) syncAccount(w http.ResponseWriter, r *http.Request) {
	id := model.AccountID(chi.URLParam(r, "accountID"))

	res, err := h.ctrl.BooksSync(r.Context(), id).Get(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Failed() {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, newTaskResponse(res))
}

type bookResponse struct {
	ID         string   `json:"id"`
	AccountID  string   `json:"account_id"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors,omitempty"`
	Status     string   `json:"status"`
	Downloaded bool     `json:"downloaded"`
}

func (h handler) listBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.ctrl.Books(model.AccountID(r.URL.Query().Get("account"))).Get(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	resp := make([]bookResponse, 0, len(books))
	for _, b := range books {
		status := "unknown"
		if b.Status != nil {
			status = b.Status.Name()
		}
		resp = append(resp, bookResponse{
			ID:         string(b.Book.ID),
			AccountID:  string(b.Book.AccountID),
			Title:      b.Book.Entry.Title,
			Authors:    b.Book.Entry.Authors,
			Status:     status,
			Downloaded: b.Book.Downloaded(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// borrowBook starts the borrow of a known book and doesn't wait for it, the
// progress is observable through the book list.
func (h handler) borrowBook(w http.ResponseWriter, r *http.Request) {
	id := model.BookID(chi.URLParam(r, "bookID"))

	books, err := h.ctrl.Books("").Get(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	for _, b := range books {
		if b.Book.ID != id {
			continue
		}
		if _, ok := b.Book.Entry.PreferredAcquisition(); !ok {
			writeError(w, http.StatusConflict, "book has no usable acquisition")
			return
		}

		h.ctrl.BookBorrowWithDefaultAcquisition(context.WithoutCancel(r.Context()), b.Book.AccountID, b.Book.Entry)
		writeJSON(w, http.StatusAccepted, map[string]string{"book_id": string(id)})
		return
	}

	writeError(w, http.StatusNotFound, "book not found")
}

func (h handler) cancelDownload(w http.ResponseWriter, r *http.Request) {
	id := model.BookID(chi.URLParam(r, "bookID"))

	cancelled, err := h.ctrl.BookDownloadCancel(id).Get(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if !cancelled {
		writeError(w, http.StatusNotFound, "book is not downloading")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrNoCurrentProfile):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, worker.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.WithCtxValues(r.Context()).Errorf("Request failed: %s", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
