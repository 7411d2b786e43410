// Package provider keeps the catalog of library descriptions and resolves them
// into usable account providers.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/slok/lendr/internal/event"
	"github.com/slok/lendr/internal/httpclient"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
)

// Source loads provider descriptions.
type Source interface {
	// Name identifies the source in events and logs.
	Name() string
	Load(ctx context.Context) (map[string]model.AccountProviderDescription, error)
}

// ResolutionProgress receives the resolution progress messages of a provider.
type ResolutionProgress func(id, message string)

// RegistryConfig is the configuration of the registry.
type RegistryConfig struct {
	// Sources are merged in order on every refresh.
	Sources []Source
	// HTTPClient is used to fetch authentication documents on resolution.
	HTTPClient httpclient.Client
	// MaxConcurrentLoads is the number of sources loaded at the same time, defaults to 4.
	MaxConcurrentLoads int
	Logger             log.Logger
}

func (c *RegistryConfig) defaults() error {
	if c.HTTPClient == nil {
		return fmt.Errorf("http client is required")
	}
	for i, s := range c.Sources {
		if s == nil {
			return fmt.Errorf("source %d is nil", i)
		}
	}
	if c.MaxConcurrentLoads <= 0 {
		c.MaxConcurrentLoads = 4
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "provider.Registry"})
	return nil
}

// Registry is the concurrent safe catalog of provider descriptions and resolved
// providers. Newer entries always win over older ones.
type Registry struct {
	sources     []Source
	maxLoads    int
	resolver    *resolver
	events      *event.Subject[model.ProviderRegistryEvent]
	refreshLock sync.Mutex
	logger      log.Logger

	mu           sync.RWMutex
	status       model.ProviderRegistryStatus
	descriptions map[string]model.AccountProviderDescription
	providers    map[string]model.AccountProvider
}

// NewRegistry returns a new empty registry, call Refresh to load the sources.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Registry{
		sources:      cfg.Sources,
		maxLoads:     cfg.MaxConcurrentLoads,
		resolver:     &resolver{client: cfg.HTTPClient, logger: cfg.Logger},
		events:       event.NewSubject[model.ProviderRegistryEvent](cfg.Logger),
		logger:       cfg.Logger,
		status:       model.ProviderRegistryIdle,
		descriptions: map[string]model.AccountProviderDescription{},
		providers:    map[string]model.AccountProvider{},
	}, nil
}

// Events returns the registry event stream.
func (r *Registry) Events() *event.Subject[model.ProviderRegistryEvent] { return r.events }

// Status returns the refresh status.
func (r *Registry) Status() model.ProviderRegistryStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Refresh loads every source concurrently and merges the results in source
// order. Failing sources are reported and skipped, the returned error
// aggregates them.
func (r *Registry) Refresh(ctx context.Context, includeTesting bool) error {
	r.refreshLock.Lock()
	defer r.refreshLock.Unlock()

	r.setStatus(model.ProviderRegistryRefreshing)
	defer r.setStatus(model.ProviderRegistryIdle)

	loaded := make([]map[string]model.AccountProviderDescription, len(r.sources))
	errs := make([]error, len(r.sources))

	var g errgroup.Group
	g.SetLimit(r.maxLoads)
	for i, s := range r.sources {
		g.Go(func() error {
			start := time.Now()
			loaded[i], errs[i] = s.Load(ctx)
			r.logger.Debugf("Source %s loaded in %s", s.Name(), time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	var merr *multierror.Error
	for i, s := range r.sources {
		if errs[i] != nil {
			err := fmt.Errorf("source %s: %w", s.Name(), errs[i])
			r.logger.Warningf("Provider source failed: %s", err)
			r.events.Publish(model.ProviderSourceFailed{Source: s.Name(), Err: errs[i]})
			merr = multierror.Append(merr, err)
			continue
		}

		ids := make([]string, 0, len(loaded[i]))
		for id := range loaded[i] {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			d := loaded[i][id]
			if !includeTesting && !d.IsProduction {
				continue
			}
			r.UpdateDescription(d)
		}
	}

	return merr.ErrorOrNil()
}

func (r *Registry) setStatus(s model.ProviderRegistryStatus) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
	r.events.Publish(model.ProviderStatusChanged{Status: s})
}

// UpdateDescription stores the description unless the registry already has a
// newer one, the stored description is returned. Updated is only published for
// new descriptions or newer versions of known ones.
func (r *Registry) UpdateDescription(d model.AccountProviderDescription) model.AccountProviderDescription {
	r.mu.Lock()
	existing, ok := r.descriptions[d.ID]
	if ok && d.Updated.Before(existing.Updated) {
		r.mu.Unlock()
		return existing
	}
	r.descriptions[d.ID] = d
	r.mu.Unlock()

	if !ok || d.Updated.After(existing.Updated) {
		r.events.Publish(model.ProviderUpdated{ID: d.ID})
	}
	return d
}

// UpdateProvider stores the resolved provider unless the registry already has a
// newer one, the stored provider is returned. Resolved providers don't publish
// events, they derive from descriptions that already did.
func (r *Registry) UpdateProvider(p model.AccountProvider) model.AccountProvider {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.providers[p.ID]
	if ok && p.Updated.Before(existing.Updated) {
		return existing
	}
	r.providers[p.ID] = p
	return p
}

// FindDescription returns the description with the ID.
func (r *Registry) FindDescription(id string) (model.AccountProviderDescription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptions[id]
	return d, ok
}

// FindProvider returns the resolved provider with the ID.
func (r *Registry) FindProvider(id string) (model.AccountProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// Descriptions returns every description sorted by title.
func (r *Registry) Descriptions() []model.AccountProviderDescription {
	r.mu.RLock()
	res := make([]model.AccountProviderDescription, 0, len(r.descriptions))
	for _, d := range r.descriptions {
		res = append(res, d)
	}
	r.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].Title != res[j].Title {
			return res[i].Title < res[j].Title
		}
		return res[i].ID < res[j].ID
	})
	return res
}

// Resolve resolves the description into a provider, a successful resolution is
// stored in the registry.
func (r *Registry) Resolve(ctx context.Context, d model.AccountProviderDescription, progress ResolutionProgress) model.TaskResult[model.AccountProvider] {
	if progress == nil {
		progress = func(string, string) {}
	}

	res := r.resolver.resolve(ctx, d, progress)
	if !res.Failed() {
		r.UpdateProvider(res.Value)
	}
	return res
}
