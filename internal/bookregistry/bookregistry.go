// Package bookregistry is the in-memory authority of the current status of every
// known book. Every change is published on its event stream.
package bookregistry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/slok/lendr/internal/event"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
)

// Registry is a concurrent safe map from book ID to book with status.
type Registry struct {
	mu        sync.RWMutex
	books     map[model.BookID]model.BookWithStatus
	publishMu sync.Mutex
	events    *event.Subject[model.BookEvent]
	logger    log.Logger
}

// New returns a new empty registry.
func New(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.Noop
	}
	logger = logger.WithValues(log.Kv{"svc": "bookregistry.Registry"})

	return &Registry{
		books:  map[model.BookID]model.BookWithStatus{},
		events: event.NewSubject[model.BookEvent](logger),
		logger: logger,
	}
}

// Events returns the book event stream.
func (r *Registry) Events() *event.Subject[model.BookEvent] { return r.events }

// Update inserts or replaces the book and its status.
func (r *Registry) Update(b model.BookWithStatus) {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	r.mu.Lock()
	r.books[b.Book.ID] = b
	r.mu.Unlock()

	r.events.Publish(model.BookEvent{Type: model.BookChanged, BookID: b.Book.ID})
}

// UpdateStatus replaces the status of a known book, unknown books are ignored.
func (r *Registry) UpdateStatus(id model.BookID, status model.BookStatus) bool {
	return r.UpdateIfStatusIs(id, func(model.BookStatus) bool { return true }, status)
}

// UpdateIfStatusIs atomically replaces the status of a known book when pred
// accepts its current status. It returns true when the status was replaced.
func (r *Registry) UpdateIfStatusIs(id model.BookID, pred func(model.BookStatus) bool, status model.BookStatus) bool {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	r.mu.Lock()
	b, ok := r.books[id]
	if !ok || !pred(b.Status) {
		r.mu.Unlock()
		return false
	}
	b.Status = status
	r.books[id] = b
	r.mu.Unlock()

	r.events.Publish(model.BookEvent{Type: model.BookChanged, BookID: id})
	return true
}

// Book returns the book with the ID.
func (r *Registry) Book(id model.BookID) (model.BookWithStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.books[id]
	return b, ok
}

// BookOrErr returns the book with the ID or an error wrapping model.ErrNotFound.
func (r *Registry) BookOrErr(id model.BookID) (model.BookWithStatus, error) {
	b, ok := r.Book(id)
	if !ok {
		return model.BookWithStatus{}, fmt.Errorf("book %s: %w", id, model.ErrNotFound)
	}
	return b, nil
}

// Books returns a snapshot of every book sorted by ID.
func (r *Registry) Books() []model.BookWithStatus {
	return r.filter(func(model.BookWithStatus) bool { return true })
}

// BooksFor returns a snapshot of the books of the account sorted by ID.
func (r *Registry) BooksFor(accountID model.AccountID) []model.BookWithStatus {
	return r.filter(func(b model.BookWithStatus) bool { return b.Book.AccountID == accountID })
}

func (r *Registry) filter(keep func(model.BookWithStatus) bool) []model.BookWithStatus {
	r.mu.RLock()
	res := make([]model.BookWithStatus, 0, len(r.books))
	for _, b := range r.books {
		if keep(b) {
			res = append(res, b)
		}
	}
	r.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].Book.ID < res[j].Book.ID })
	return res
}

// Remove removes the book, the removal is only published when the book was present.
func (r *Registry) Remove(id model.BookID) bool {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	r.mu.Lock()
	_, ok := r.books[id]
	delete(r.books, id)
	r.mu.Unlock()

	if ok {
		r.events.Publish(model.BookEvent{Type: model.BookRemoved, BookID: id})
	}
	return ok
}

// Clear removes every book of the account.
func (r *Registry) Clear(accountID model.AccountID) {
	for _, b := range r.BooksFor(accountID) {
		r.Remove(b.Book.ID)
	}
}
