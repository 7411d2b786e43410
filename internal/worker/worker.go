package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/slok/lendr/internal/log"
)

// ErrStopped is returned when submitting jobs to a stopped pool.
var ErrStopped = errors.New("worker pool stopped")

// PoolConfig is the configuration of the worker pool.
type PoolConfig struct {
	// Workers is the number of concurrent workers, defaults to 4.
	Workers int
	// QueueSize is the number of queued jobs before Submit blocks, defaults to 256.
	QueueSize int
	Logger    log.Logger
}

func (c *PoolConfig) defaults() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers can't be negative")
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "worker.Pool"})
	return nil
}

type job func(ctx context.Context)

// Pool is a bounded pool of goroutines running submitted jobs to completion.
type Pool struct {
	queue   chan job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	stopped bool
	logger  log.Logger
}

// NewPool creates and starts a new worker pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  make(chan job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: cfg.Logger,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	p.logger.Debugf("Started %d workers", cfg.Workers)

	return p, nil
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for j := range p.queue {
		j(p.ctx)
	}
	p.logger.Debugf("Worker %d stopped", id)
}

func (p *Pool) submit(ctx context.Context, j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.queue <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops accepting jobs, waits for the queued ones to finish and cancels the
// context passed to the jobs when ctx is done first.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// Submit queues fn on the pool and returns a future resolved with its outcome.
// A panic inside fn rejects the future.
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()

	err := p.submit(ctx, func(poolCtx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Errorf("job panicked: %v\n%s", r, debug.Stack())
				var zero T
				f.resolve(zero, fmt.Errorf("job panicked: %v", r))
			}
		}()

		v, err := fn(poolCtx)
		f.resolve(v, err)
	})
	if err != nil {
		var zero T
		f.resolve(zero, fmt.Errorf("could not submit job: %w", err))
	}

	return f
}

// Future is the pending outcome of a submitted job.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns an already resolved future.
func Resolved[T any](v T, err error) *Future[T] {
	f := newFuture[T]()
	f.resolve(v, err)
	return f
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.value = v
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Get waits for the future outcome.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
