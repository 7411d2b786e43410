package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/slok/lendr/internal/task"
)

// BookID is the content addressed identity of a book: the hex SHA-256 of its
// feed entry ID.
type BookID string

// NewBookID returns the book ID for a feed entry ID.
func NewBookID(entryID string) BookID {
	sum := sha256.Sum256([]byte(entryID))
	return BookID(hex.EncodeToString(sum[:]))
}

// Book is a book owned by an account.
type Book struct {
	ID        BookID
	AccountID AccountID
	Entry     FeedEntry
	// ContentPath is the local path of the fulfilled content, empty when not downloaded.
	ContentPath string
	ContentType string
	// AdobeLoanID is set when the content was fulfilled through the DRM connector.
	AdobeLoanID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Downloaded returns true when the book content is available locally.
func (b Book) Downloaded() bool { return b.ContentPath != "" }

// Validate validates the book.
func (b Book) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if b.AccountID == "" {
		return fmt.Errorf("account id is required: %w", ErrNotValid)
	}
	if b.Entry.ID == "" {
		return fmt.Errorf("entry id is required: %w", ErrNotValid)
	}
	if NewBookID(b.Entry.ID) != b.ID {
		return fmt.Errorf("id doesn't match the entry id: %w", ErrNotValid)
	}
	return nil
}

// BookStatus is the status of a book in the book registry.
type BookStatus interface {
	isBookStatus()
	// Name returns the stable name of the status.
	Name() string
}

type (
	StatusRequestingDownload struct{}
	StatusDownloading        struct {
		CurrentBytes  int64
		ExpectedBytes int64
	}
	StatusLoanedNotDownloaded struct{}
	StatusLoanedDownloaded    struct{}
	StatusRequestingRevoke    struct{}
	StatusRevoked             struct{}
	StatusFailedDownload      struct {
		Result task.Result[TaskError, struct{}]
	}
	StatusFailedRevoke struct {
		Result task.Result[TaskError, struct{}]
	}
	StatusHeld struct {
		Position *int
		Ready    bool
	}
	StatusHoldable struct{}
	StatusLoanable struct{}
	StatusError    struct {
		Message string
	}
)

func (StatusRequestingDownload) isBookStatus()  {}
func (StatusDownloading) isBookStatus()         {}
func (StatusLoanedNotDownloaded) isBookStatus() {}
func (StatusLoanedDownloaded) isBookStatus()    {}
func (StatusRequestingRevoke) isBookStatus()    {}
func (StatusRevoked) isBookStatus()             {}
func (StatusFailedDownload) isBookStatus()      {}
func (StatusFailedRevoke) isBookStatus()        {}
func (StatusHeld) isBookStatus()                {}
func (StatusHoldable) isBookStatus()            {}
func (StatusLoanable) isBookStatus()            {}
func (StatusError) isBookStatus()               {}

func (StatusRequestingDownload) Name() string  { return "requesting-download" }
func (StatusDownloading) Name() string         { return "downloading" }
func (StatusLoanedNotDownloaded) Name() string { return "loaned" }
func (StatusLoanedDownloaded) Name() string    { return "loaned-downloaded" }
func (StatusRequestingRevoke) Name() string    { return "requesting-revoke" }
func (StatusRevoked) Name() string             { return "revoked" }
func (StatusFailedDownload) Name() string      { return "failed-download" }
func (StatusFailedRevoke) Name() string        { return "failed-revoke" }
func (StatusHeld) Name() string                { return "held" }
func (StatusHoldable) Name() string            { return "holdable" }
func (StatusLoanable) Name() string            { return "loanable" }
func (StatusError) Name() string               { return "error" }

// StatusFromBook returns the resting status of a book from its entry availability
// and local content.
func StatusFromBook(b Book) BookStatus {
	switch a := b.Entry.Availability.(type) {
	case AvailabilityLoaned, AvailabilityOpenAccess:
		if b.Downloaded() {
			return StatusLoanedDownloaded{}
		}
		return StatusLoanedNotDownloaded{}
	case AvailabilityHeld:
		return StatusHeld{Position: a.Position}
	case AvailabilityHeldReady:
		return StatusHeld{Ready: true}
	case AvailabilityHoldable:
		return StatusHoldable{}
	case AvailabilityRevoked:
		return StatusRevoked{}
	case AvailabilityLoanable:
		return StatusLoanable{}
	}

	// Content on disk without a known availability is still readable.
	if b.Downloaded() {
		return StatusLoanedDownloaded{}
	}
	return StatusLoanable{}
}

// BookWithStatus is a book with its current registry status.
type BookWithStatus struct {
	Book   Book
	Status BookStatus
}

// BookEventType is the type of a book registry event.
type BookEventType string

const (
	BookChanged BookEventType = "BOOK_CHANGED"
	BookRemoved BookEventType = "BOOK_REMOVED"
)

// BookEvent is published by the book registry on every change.
type BookEvent struct {
	Type   BookEventType
	BookID BookID
}
