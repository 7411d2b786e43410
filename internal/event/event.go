package event

import (
	"sync"

	"github.com/slok/lendr/internal/log"
)

// Handler receives published events.
type Handler[T any] func(T)

// Subject is an in-memory multicast event stream. Events are delivered
// synchronously to every subscribed handler in publish order.
//
// Handlers must not publish on the same subject.
type Subject[T any] struct {
	mu        sync.RWMutex
	publishMu sync.Mutex
	nextID    int
	handlers  map[int]Handler[T]
	order     []int
	logger    log.Logger
}

// NewSubject returns a new subject.
func NewSubject[T any](logger log.Logger) *Subject[T] {
	if logger == nil {
		logger = log.Noop
	}
	return &Subject[T]{
		handlers: map[int]Handler[T]{},
		logger:   logger,
	}
}

// Subscribe registers a handler and returns the function that unsubscribes it.
func (s *Subject[T]) Subscribe(h Handler[T]) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Subject[T]) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.handlers, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Publish delivers the event to every handler subscribed at publish time.
func (s *Subject[T]) Publish(e T) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.RLock()
	handlers := make([]Handler[T], 0, len(s.order))
	for _, id := range s.order {
		handlers = append(handlers, s.handlers[id])
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		s.dispatch(h, e)
	}
}

func (s *Subject[T]) dispatch(h Handler[T], e T) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("event handler panicked: %v", r)
		}
	}()
	h(e)
}

// Subscribers returns the number of subscribed handlers.
func (s *Subject[T]) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Collect subscribes a handler that accumulates every event, useful to observe
// streams from tests and batch commands.
func Collect[T any](s *Subject[T]) (events func() []T, unsubscribe func()) {
	var mu sync.Mutex
	got := []T{}
	unsubscribe = s.Subscribe(func(e T) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	return func() []T {
		mu.Lock()
		defer mu.Unlock()
		res := make([]T, len(got))
		copy(res, got)
		return res
	}, unsubscribe
}
