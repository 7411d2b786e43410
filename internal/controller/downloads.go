package controller

import (
	"context"
	"sync"

	"github.com/slok/lendr/internal/model"
)

// downloads is the set of running book downloads, at most one per book.
type downloads struct {
	mu      sync.Mutex
	next    uint64
	handles map[model.BookID]download
}

type download struct {
	token  uint64
	cancel context.CancelFunc
}

func newDownloads() *downloads {
	return &downloads{handles: map[model.BookID]download{}}
}

// start registers a new download for the book, a running one is cancelled and
// replaced. The returned release must be called once the download finishes.
func (d *downloads) start(ctx context.Context, id model.BookID) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	if existing, ok := d.handles[id]; ok {
		existing.cancel()
	}
	d.next++
	token := d.next
	d.handles[id] = download{token: token, cancel: cancel}
	d.mu.Unlock()

	release := func() {
		d.mu.Lock()
		if h, ok := d.handles[id]; ok && h.token == token {
			delete(d.handles, id)
		}
		d.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// cancel cancels the running download of the book, false when there is none.
func (d *downloads) cancel(id model.BookID) bool {
	d.mu.Lock()
	h, ok := d.handles[id]
	if ok {
		delete(d.handles, id)
	}
	d.mu.Unlock()

	if ok {
		h.cancel()
	}
	return ok
}

func (d *downloads) cancelAll() {
	d.mu.Lock()
	handles := d.handles
	d.handles = map[model.BookID]download{}
	d.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
}
