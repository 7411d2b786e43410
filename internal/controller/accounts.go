package controller

import (
	"context"
	"fmt"
	"sort"

	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/worker"
)

// ProfileAccountCreate creates an account for the provider in the current profile.
func (c *Controller) ProfileAccountCreate(ctx context.Context, providerID string) *worker.Future[model.TaskResult[model.Account]] {
	return runTask(ctx, c, opAccountCreate, providerID, func(ctx context.Context) model.TaskResult[model.Account] {
		return c.accountCreateSvc.Create(ctx, providerID)
	})
}

// ProfileAccountCreateOrReturnExisting returns the current profile account for
// the provider, creating it when missing.
func (c *Controller) ProfileAccountCreateOrReturnExisting(ctx context.Context, providerID string) *worker.Future[model.TaskResult[model.Account]] {
	return runTask(ctx, c, opAccountCreate, providerID, func(ctx context.Context) model.TaskResult[model.Account] {
		return c.accountCreateSvc.CreateOrReturnExisting(ctx, providerID)
	})
}

// ProfileAccountCreateCustomOPDS creates an account for a bare OPDS catalog.
func (c *Controller) ProfileAccountCreateCustomOPDS(ctx context.Context, catalogURI string) *worker.Future[model.TaskResult[model.Account]] {
	return runTask(ctx, c, opAccountCreate, catalogURI, func(ctx context.Context) model.TaskResult[model.Account] {
		return c.accountCreateSvc.CreateCustomOPDS(ctx, catalogURI)
	})
}

// ProfileAccountDeleteByProvider deletes the current profile account for the provider.
func (c *Controller) ProfileAccountDeleteByProvider(ctx context.Context, providerID string) *worker.Future[model.TaskResult[struct{}]] {
	return runTask(ctx, c, opAccountDelete, providerID, func(ctx context.Context) model.TaskResult[struct{}] {
		return c.accountDeleteSvc.DeleteByProvider(ctx, providerID)
	})
}

// ProfileAccounts returns the accounts of the current profile.
func (c *Controller) ProfileAccounts(ctx context.Context) *worker.Future[[]model.Account] {
	return call(ctx, c, c.currentAccounts)
}

// ProfileAccountFindByProvider returns the current profile account for the
// provider, model.ErrNotFound when there is none.
func (c *Controller) ProfileAccountFindByProvider(ctx context.Context, providerID string) *worker.Future[model.Account] {
	return call(ctx, c, func(ctx context.Context) (model.Account, error) {
		accs, err := c.currentAccounts(ctx)
		if err != nil {
			return model.Account{}, err
		}
		for _, a := range accs {
			if a.Provider.ID == providerID {
				return a, nil
			}
		}
		return model.Account{}, fmt.Errorf("account for provider %s: %w", providerID, model.ErrNotFound)
	})
}

// ProfileAccountLogin logs the account in, a successful login syncs its books.
func (c *Controller) ProfileAccountLogin(ctx context.Context, req model.LoginRequest) *worker.Future[model.TaskResult[struct{}]] {
	id := req.Account()
	return runTask(ctx, c, opLogin, string(id), func(ctx context.Context) model.TaskResult[struct{}] {
		res := c.loginSvc.Login(ctx, req)
		if !res.Failed() {
			if _, ok := c.states.State(id).(model.LoginStateLoggedIn); ok {
				go c.BooksSync(context.WithoutCancel(ctx), id)
			}
		}
		return res
	})
}

// ProfileAccountLogout logs the account out and deletes its books.
func (c *Controller) ProfileAccountLogout(ctx context.Context, id model.AccountID) *worker.Future[model.TaskResult[struct{}]] {
	return runTask(ctx, c, opLogout, string(id), func(ctx context.Context) model.TaskResult[struct{}] {
		return c.logoutSvc.Logout(ctx, id)
	})
}

// ProfileCurrentlyUsedAccountProviders returns the providers of the current
// profile accounts sorted by display name.
func (c *Controller) ProfileCurrentlyUsedAccountProviders(ctx context.Context) *worker.Future[[]model.AccountProvider] {
	return call(ctx, c, func(ctx context.Context) ([]model.AccountProvider, error) {
		accs, err := c.currentAccounts(ctx)
		if err != nil {
			return nil, err
		}

		ps := make([]model.AccountProvider, 0, len(accs))
		for _, a := range accs {
			ps = append(ps, a.Provider)
		}
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].DisplayName < ps[j].DisplayName })
		return ps, nil
	})
}

// ProfileAccountForBook returns the account owning the book.
func (c *Controller) ProfileAccountForBook(ctx context.Context, id model.BookID) *worker.Future[model.Account] {
	return call(ctx, c, func(ctx context.Context) (model.Account, error) {
		b, err := c.books.BookOrErr(id)
		if err != nil {
			return model.Account{}, err
		}
		acc, err := c.repo.GetAccount(ctx, b.Book.AccountID)
		if err != nil {
			return model.Account{}, err
		}
		return *acc, nil
	})
}

// AccountLoginState returns the current login state of the account.
func (c *Controller) AccountLoginState(id model.AccountID) *worker.Future[model.AccountLoginState] {
	return worker.Resolved(c.states.State(id), nil)
}

func (c *Controller) currentAccounts(ctx context.Context) ([]model.Account, error) {
	p, err := c.repo.CurrentProfile(ctx)
	if err != nil {
		return nil, err
	}
	return c.repo.ListAccounts(ctx, p.ID)
}
