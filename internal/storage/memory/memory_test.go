package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/storage/memory"
	"github.com/slok/lendr/internal/task"
)

func profileFixture(id, name string) model.Profile {
	return model.Profile{ID: model.ProfileID(id), DisplayName: name, CreatedAt: time.Now().UTC()}
}

func accountFixture(id, profileID, providerID string) model.Account {
	return model.Account{
		ID:        model.AccountID(id),
		ProfileID: model.ProfileID(profileID),
		Provider:  model.AccountProvider{ID: providerID, DisplayName: "Library", CatalogURI: "http://www.example.com/catalog"},
		CreatedAt: time.Now().UTC(),
	}
}

func bookFixture(entryID, accountID string) model.Book {
	return model.Book{
		ID:        model.NewBookID(entryID),
		AccountID: model.AccountID(accountID),
		Entry:     model.FeedEntry{ID: entryID, Title: "A book", Availability: model.AvailabilityLoaned{}},
	}
}

func TestRepositoryCRUD(t *testing.T) {
	tests := map[string]struct {
		actions func(ctx context.Context, t *testing.T, repo *memory.Repository) error
		expErr  error
	}{
		"Creating and selecting a profile should work.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				_, err := repo.CurrentProfile(ctx)
				require.ErrorIs(t, err, model.ErrNoCurrentProfile)

				require.NoError(t, repo.CreateProfile(ctx, profileFixture("p0", "Kermit")))
				require.NoError(t, repo.SetCurrentProfile(ctx, "p0"))

				p, err := repo.CurrentProfile(ctx)
				require.NoError(t, err)
				assert.Equal(t, "Kermit", p.DisplayName)
				return nil
			},
		},

		"Creating a profile with a used display name should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				require.NoError(t, repo.CreateProfile(ctx, profileFixture("p0", "Kermit")))
				return repo.CreateProfile(ctx, profileFixture("p1", "kermit"))
			},
			expErr: model.ErrAlreadyExists,
		},

		"Creating two accounts for the same provider in a profile should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				require.NoError(t, repo.CreateProfile(ctx, profileFixture("p0", "Kermit")))
				require.NoError(t, repo.CreateAccount(ctx, accountFixture("a0", "p0", "urn:provider:0")))
				return repo.CreateAccount(ctx, accountFixture("a1", "p0", "urn:provider:0"))
			},
			expErr: model.ErrAlreadyExists,
		},

		"Creating an account on a missing profile should fail.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				return repo.CreateAccount(ctx, accountFixture("a0", "p0", "urn:provider:0"))
			},
			expErr: model.ErrNotFound,
		},

		"Account credentials should be stored and cleared.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				require.NoError(t, repo.CreateProfile(ctx, profileFixture("p0", "Kermit")))
				require.NoError(t, repo.CreateAccount(ctx, accountFixture("a0", "p0", "urn:provider:0")))

				creds := model.CredentialsBasic{Username: "abcd", Password: "1234"}
				require.NoError(t, repo.SetAccountCredentials(ctx, "a0", creds))
				a, err := repo.GetAccount(ctx, "a0")
				require.NoError(t, err)
				assert.Equal(t, creds, a.Credentials)

				require.NoError(t, repo.SetAccountCredentials(ctx, "a0", nil))
				a, err = repo.GetAccount(ctx, "a0")
				require.NoError(t, err)
				assert.Nil(t, a.Credentials)
				return nil
			},
		},

		"Deleting an account should delete its books.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				require.NoError(t, repo.CreateProfile(ctx, profileFixture("p0", "Kermit")))
				require.NoError(t, repo.CreateAccount(ctx, accountFixture("a0", "p0", "urn:provider:0")))
				require.NoError(t, repo.CreateOrUpdateBook(ctx, bookFixture("urn:book:0", "a0")))
				require.NoError(t, repo.CreateOrUpdateBook(ctx, bookFixture("urn:book:1", "a0")))

				books, err := repo.ListBooks(ctx, "a0")
				require.NoError(t, err)
				assert.Len(t, books, 2)

				require.NoError(t, repo.DeleteAccount(ctx, "a0"))
				_, err = repo.GetBook(ctx, model.NewBookID("urn:book:0"))
				return err
			},
			expErr: model.ErrNotFound,
		},

		"Upserting a book should keep its creation time.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				require.NoError(t, repo.CreateProfile(ctx, profileFixture("p0", "Kermit")))
				require.NoError(t, repo.CreateAccount(ctx, accountFixture("a0", "p0", "urn:provider:0")))

				b := bookFixture("urn:book:0", "a0")
				b.CreatedAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
				require.NoError(t, repo.CreateOrUpdateBook(ctx, b))

				b.CreatedAt = time.Now()
				b.Entry.Title = "Updated"
				require.NoError(t, repo.CreateOrUpdateBook(ctx, b))

				got, err := repo.GetBook(ctx, b.ID)
				require.NoError(t, err)
				assert.Equal(t, "Updated", got.Entry.Title)
				assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), got.CreatedAt)
				return nil
			},
		},

		"A book whose ID doesn't match its entry should be rejected.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				b := bookFixture("urn:book:0", "a0")
				b.ID = "wrong"
				return repo.CreateOrUpdateBook(ctx, b)
			},
			expErr: model.ErrNotValid,
		},

		"Deleting the current profile should unselect it.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				require.NoError(t, repo.CreateProfile(ctx, profileFixture("p0", "Kermit")))
				require.NoError(t, repo.SetCurrentProfile(ctx, "p0"))
				require.NoError(t, repo.DeleteProfile(ctx, "p0"))
				_, err := repo.CurrentProfile(ctx)
				return err
			},
			expErr: model.ErrNoCurrentProfile,
		},

		"Task records should be listed by subject in order.": {
			actions: func(ctx context.Context, t *testing.T, repo *memory.Repository) error {
				require.NoError(t, repo.RecordTask(ctx, task.Record{Operation: "borrow", Subject: "b0"}))
				require.NoError(t, repo.RecordTask(ctx, task.Record{Operation: "sync", Subject: "a0"}))
				require.NoError(t, repo.RecordTask(ctx, task.Record{Operation: "revoke", Subject: "b0", Failed: true}))

				recs, err := repo.ListTaskRecords(ctx, "b0")
				require.NoError(t, err)
				require.Len(t, recs, 2)
				assert.Equal(t, "borrow", recs[0].Operation)
				assert.Equal(t, "revoke", recs[1].Operation)
				assert.NotEmpty(t, recs[0].ID)

				all, err := repo.ListTaskRecords(ctx, "")
				require.NoError(t, err)
				assert.Len(t, all, 3)
				return nil
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: log.Noop})
			require.NoError(t, err)

			err = test.actions(context.TODO(), t, repo)
			if test.expErr != nil {
				assert.True(t, errors.Is(err, test.expErr), "expected %v, got %v", test.expErr, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
