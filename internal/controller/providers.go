package controller

import (
	"context"
	"errors"

	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/worker"
)

// ProvidersRefresh reloads the provider sources. Testing libraries are only
// included when the current profile asks for them. Working sources are used
// even when others fail, the returned error aggregates the failed ones.
func (c *Controller) ProvidersRefresh(ctx context.Context) *worker.Future[struct{}] {
	return call(ctx, c, func(ctx context.Context) (struct{}, error) {
		includeTesting := false
		p, err := c.repo.CurrentProfile(ctx)
		switch {
		case err == nil:
			includeTesting = p.Preferences.ShowTestingLibraries
		case !errors.Is(err, model.ErrNoCurrentProfile):
			return struct{}{}, err
		}

		return struct{}{}, c.providers.Refresh(ctx, includeTesting)
	})
}

// Providers returns the known provider descriptions sorted by title.
func (c *Controller) Providers() *worker.Future[[]model.AccountProviderDescription] {
	return worker.Resolved(c.providers.Descriptions(), nil)
}

// ProvidersUpdate re-resolves the provider and updates the current profile
// accounts using it, the result is the number of updated accounts. It runs on
// its own every time the registry publishes a provider update.
func (c *Controller) ProvidersUpdate(ctx context.Context, providerID string) *worker.Future[model.TaskResult[int]] {
	return runTask(ctx, c, opProviderUpdate, providerID, func(ctx context.Context) model.TaskResult[int] {
		return c.providerUpdateSvc.Update(ctx, providerID)
	})
}
