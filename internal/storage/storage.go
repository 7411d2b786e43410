package storage

import (
	"context"
	"io"

	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/storage/content"
	"github.com/slok/lendr/internal/task"
)

//go:generate mockery --case underscore --output storagemock --outpkg storagemock --structname MockProfileRepository --name ProfileRepository
//go:generate mockery --case underscore --output storagemock --outpkg storagemock --structname MockAccountRepository --name AccountRepository
//go:generate mockery --case underscore --output storagemock --outpkg storagemock --structname MockBookRepository --name BookRepository

// ProfileRepository is the interface for profile persistence.
type ProfileRepository interface {
	// CreateProfile returns model.ErrAlreadyExists when the display name is in use.
	CreateProfile(ctx context.Context, p model.Profile) error
	GetProfile(ctx context.Context, id model.ProfileID) (*model.Profile, error)
	ListProfiles(ctx context.Context) ([]model.Profile, error)
	UpdateProfile(ctx context.Context, p model.Profile) error
	DeleteProfile(ctx context.Context, id model.ProfileID) error
	// CurrentProfile returns model.ErrNoCurrentProfile when no profile is selected.
	CurrentProfile(ctx context.Context) (*model.Profile, error)
	SetCurrentProfile(ctx context.Context, id model.ProfileID) error
}

// AccountRepository is the interface for account persistence.
type AccountRepository interface {
	// CreateAccount returns model.ErrAlreadyExists when the profile already has an
	// account for the same provider.
	CreateAccount(ctx context.Context, a model.Account) error
	GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error)
	ListAccounts(ctx context.Context, profileID model.ProfileID) ([]model.Account, error)
	// UpdateAccountProvider replaces the resolved provider of the account.
	UpdateAccountProvider(ctx context.Context, id model.AccountID, p model.AccountProvider) error
	// SetAccountCredentials stores the login credentials, nil clears them.
	SetAccountCredentials(ctx context.Context, id model.AccountID, creds model.AccountAuthenticationCredentials) error
	DeleteAccount(ctx context.Context, id model.AccountID) error
}

// BookRepository is the interface for the book database.
type BookRepository interface {
	CreateOrUpdateBook(ctx context.Context, b model.Book) error
	GetBook(ctx context.Context, id model.BookID) (*model.Book, error)
	// ListBooks lists the books of an account.
	ListBooks(ctx context.Context, accountID model.AccountID) ([]model.Book, error)
	DeleteBook(ctx context.Context, id model.BookID) error
}

// ContentRepository is the interface for the downloaded book content.
type ContentRepository interface {
	// Put replaces the content of the book, existing content is kept when the write fails.
	Put(ctx context.Context, id model.BookID, r io.Reader, opts content.PutOptions) (*content.Stored, error)
	// Delete is idempotent.
	Delete(ctx context.Context, id model.BookID) error
	Path(ctx context.Context, id model.BookID) (string, error)
}

// Repository groups every persistence concern.
type Repository interface {
	ProfileRepository
	AccountRepository
	BookRepository
	task.History
}
