package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/lendr/internal/app/profile"
	"github.com/slok/lendr/internal/app/profilefeed"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/task"
	"github.com/slok/lendr/internal/worker"
)

// Profiles returns every profile.
func (c *Controller) Profiles(ctx context.Context) *worker.Future[[]model.Profile] {
	return call(ctx, c, c.profileSvc.List)
}

// ProfileCurrent returns the selected profile.
func (c *Controller) ProfileCurrent(ctx context.Context) *worker.Future[*model.Profile] {
	return call(ctx, c, c.profileSvc.Current)
}

// ProfileCreate creates a profile, a display name in use fails with
// model.ErrAlreadyExists.
func (c *Controller) ProfileCreate(ctx context.Context, req profile.CreateRequest) *worker.Future[*model.Profile] {
	return call(ctx, c, func(ctx context.Context) (*model.Profile, error) {
		return c.profileSvc.Create(ctx, req)
	})
}

// ProfileDelete deletes a profile with its accounts.
func (c *Controller) ProfileDelete(ctx context.Context, id model.ProfileID) *worker.Future[struct{}] {
	return call(ctx, c, func(ctx context.Context) (struct{}, error) {
		accs, err := c.repo.ListAccounts(ctx, id)
		if err != nil {
			return struct{}{}, fmt.Errorf("could not list accounts: %w", err)
		}
		if err := c.profileSvc.Delete(ctx, id); err != nil {
			return struct{}{}, err
		}
		for _, a := range accs {
			c.books.Clear(a.ID)
		}
		return struct{}{}, nil
	})
}

// ProfileSelect selects a profile, once selected every account of the profile
// is synced in the background.
func (c *Controller) ProfileSelect(ctx context.Context, id model.ProfileID) *worker.Future[struct{}] {
	return call(ctx, c, func(ctx context.Context) (struct{}, error) {
		if _, err := c.profileSvc.Select(ctx, id); err != nil {
			return struct{}{}, err
		}

		go c.syncAll(context.WithoutCancel(ctx), id)
		return struct{}{}, nil
	})
}

func (c *Controller) syncAll(ctx context.Context, id model.ProfileID) {
	f := call(ctx, c, func(ctx context.Context) (int, error) {
		start := time.Now()
		res, err := c.syncSvc.SyncAll(ctx, id)
		if err != nil {
			return 0, err
		}
		for accountID, r := range res {
			c.taskFinished(ctx, opSync, string(accountID), r.Failed(), time.Since(start), task.NewRecord(opSync, string(accountID), r))
		}
		return len(res), nil
	})
	if _, err := f.Get(ctx); err != nil {
		c.logger.Warningf("Could not sync profile %s: %s", id, err)
	}
}

// ProfileUpdate applies fn to the profile and stores it.
func (c *Controller) ProfileUpdate(ctx context.Context, id model.ProfileID, fn func(p *model.Profile)) *worker.Future[*model.Profile] {
	return call(ctx, c, func(ctx context.Context) (*model.Profile, error) {
		return c.profileSvc.Update(ctx, id, fn)
	})
}

// ProfileFeed returns the books of the current profile matching the request.
func (c *Controller) ProfileFeed(ctx context.Context, req profilefeed.Request) *worker.Future[[]model.BookWithStatus] {
	return call(ctx, c, func(ctx context.Context) ([]model.BookWithStatus, error) {
		return c.profileFeedSvc.Feed(ctx, req)
	})
}
