package controller

import (
	"context"

	"github.com/slok/lendr/internal/app/bookreport"
	"github.com/slok/lendr/internal/app/borrow"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/worker"
)

// BookBorrow borrows the book and downloads its content. The book is marked as
// requesting a download before the task is queued. A borrow of a book already
// downloading cancels the running download.
func (c *Controller) BookBorrow(ctx context.Context, req borrow.Request) *worker.Future[model.TaskResult[struct{}]] {
	id := c.borrowSvc.PublishRequesting(ctx, req)
	return runTask(ctx, c, opBorrow, string(id), func(ctx context.Context) model.TaskResult[struct{}] {
		ctx, release := c.downloads.start(ctx, id)
		defer release()
		return c.borrowSvc.Borrow(ctx, req)
	})
}

// BookBorrowWithDefaultAcquisition borrows the book with its preferred acquisition.
func (c *Controller) BookBorrowWithDefaultAcquisition(ctx context.Context, accountID model.AccountID, entry model.FeedEntry) *worker.Future[model.TaskResult[struct{}]] {
	acq, _ := entry.PreferredAcquisition()
	return c.BookBorrow(ctx, borrow.Request{AccountID: accountID, Entry: entry, Acquisition: acq})
}

// BookDownloadCancel cancels the running download of the book, the result is
// false when the book isn't downloading.
func (c *Controller) BookDownloadCancel(id model.BookID) *worker.Future[bool] {
	return worker.Resolved(c.downloads.cancel(id), nil)
}

// BookBorrowFailedDismiss restores the book status after a failed borrow.
func (c *Controller) BookBorrowFailedDismiss(ctx context.Context, id model.BookID) *worker.Future[bool] {
	return call(ctx, c, func(ctx context.Context) (bool, error) {
		return c.bookDismissSvc.DismissBorrowFailure(ctx, id), nil
	})
}

// BookRevokeFailedDismiss restores the book status after a failed revocation.
func (c *Controller) BookRevokeFailedDismiss(ctx context.Context, id model.BookID) *worker.Future[bool] {
	return call(ctx, c, func(ctx context.Context) (bool, error) {
		return c.bookDismissSvc.DismissRevokeFailure(ctx, id), nil
	})
}

// BookReport sends a problem report about the book.
func (c *Controller) BookReport(ctx context.Context, req bookreport.Request) *worker.Future[struct{}] {
	return call(ctx, c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.bookReportSvc.Report(ctx, req)
	})
}

// BooksSync syncs the loans of the account.
func (c *Controller) BooksSync(ctx context.Context, accountID model.AccountID) *worker.Future[model.TaskResult[struct{}]] {
	return runTask(ctx, c, opSync, string(accountID), func(ctx context.Context) model.TaskResult[struct{}] {
		return c.syncSvc.Sync(ctx, accountID)
	})
}

// BookRevoke returns the loan or hold of the book.
func (c *Controller) BookRevoke(ctx context.Context, id model.BookID) *worker.Future[model.TaskResult[struct{}]] {
	c.books.UpdateStatus(id, model.StatusRequestingRevoke{})
	return runTask(ctx, c, opRevoke, string(id), func(ctx context.Context) model.TaskResult[struct{}] {
		return c.revokeSvc.Revoke(ctx, id)
	})
}

// BookDelete deletes the book content and forgets the book, a running download
// of the book is cancelled.
func (c *Controller) BookDelete(ctx context.Context, id model.BookID) *worker.Future[struct{}] {
	c.downloads.cancel(id)
	c.bookDeleteSvc.PublishRequesting(id)
	return call(ctx, c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.bookDeleteSvc.Delete(ctx, id)
	})
}

// Books returns the registry books of the account, every book when accountID
// is empty.
func (c *Controller) Books(accountID model.AccountID) *worker.Future[[]model.BookWithStatus] {
	if accountID == "" {
		return worker.Resolved(c.books.Books(), nil)
	}
	return worker.Resolved(c.books.BooksFor(accountID), nil)
}
