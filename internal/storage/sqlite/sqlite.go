package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/storage/sqlite/migrations"
)

const settingCurrentProfile = "current_profile"

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository opens (creating it when missing) and migrates the database.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	version, _, err := migrator.Version(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	cfg.Logger.Debugf("SQLite repository initialized at %s (schema v%d)", cfg.DBPath, version)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// CreateProfile creates a new profile.
func (r *Repository) CreateProfile(ctx context.Context, p model.Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	prefs, err := json.Marshal(p.Preferences)
	if err != nil {
		return fmt.Errorf("could not encode preferences: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, display_name, preferences, most_recent_account, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.DisplayName, string(prefs), p.MostRecentAccount, p.CreatedAt.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: profiles.") {
			return fmt.Errorf("profile already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert profile: %w", err)
	}

	r.logger.Debugf("Created profile in repository: %s", p.ID)
	return nil
}

const profileColumns = `id, display_name, preferences, most_recent_account, created_at`

// GetProfile retrieves a profile by ID.
func (r *Repository) GetProfile(ctx context.Context, id model.ProfileID) (*model.Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query profile: %w", err)
	}
	return &p, nil
}

// ListProfiles returns all profiles, oldest first.
func (r *Repository) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("could not query profiles: %w", err)
	}
	defer rows.Close()

	profiles := []model.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return profiles, nil
}

// UpdateProfile updates an existing profile.
func (r *Repository) UpdateProfile(ctx context.Context, p model.Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	prefs, err := json.Marshal(p.Preferences)
	if err != nil {
		return fmt.Errorf("could not encode preferences: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET display_name = ?, preferences = ?, most_recent_account = ?
		WHERE id = ?
	`, p.DisplayName, string(prefs), p.MostRecentAccount, p.ID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: profiles.") {
			return fmt.Errorf("profile name already used: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not update profile: %w", err)
	}

	return checkAffected(result, fmt.Sprintf("profile %s", p.ID))
}

// DeleteProfile deletes a profile, its accounts and books are deleted in cascade.
func (r *Repository) DeleteProfile(ctx context.Context, id model.ProfileID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete profile: %w", err)
	}
	if err := checkAffected(result, fmt.Sprintf("profile %s", id)); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ? AND value = ?`, settingCurrentProfile, id)
	if err != nil {
		return fmt.Errorf("could not unset current profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Deleted profile from repository: %s", id)
	return nil
}

// CurrentProfile returns the selected profile.
func (r *Repository) CurrentProfile(ctx context.Context) (*model.Profile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT p.id, p.display_name, p.preferences, p.most_recent_account, p.created_at
		FROM settings s JOIN profiles p ON p.id = s.value
		WHERE s.key = ?
	`, settingCurrentProfile)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNoCurrentProfile
		}
		return nil, fmt.Errorf("could not query current profile: %w", err)
	}
	return &p, nil
}

// SetCurrentProfile selects a profile.
func (r *Repository) SetCurrentProfile(ctx context.Context, id model.ProfileID) error {
	if _, err := r.GetProfile(ctx, id); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, settingCurrentProfile, id)
	if err != nil {
		return fmt.Errorf("could not set current profile: %w", err)
	}
	return nil
}

// CreateAccount creates a new account.
func (r *Repository) CreateAccount(ctx context.Context, a model.Account) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}

	provider, err := encodeProvider(a.Provider)
	if err != nil {
		return err
	}
	creds, err := encodeCredentials(a.Credentials)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, profile_id, provider_id, provider, credentials, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.ProfileID, a.Provider.ID, provider, creds, a.CreatedAt.Unix())
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "UNIQUE constraint failed: accounts."):
			return fmt.Errorf("account already exists: %w", model.ErrAlreadyExists)
		case strings.Contains(err.Error(), "FOREIGN KEY constraint failed"):
			return fmt.Errorf("profile %s: %w", a.ProfileID, model.ErrNotFound)
		}
		return fmt.Errorf("could not insert account: %w", err)
	}

	r.logger.Debugf("Created account in repository: %s", a.ID)
	return nil
}

const accountColumns = `id, profile_id, provider, credentials, created_at`

// GetAccount retrieves an account by ID.
func (r *Repository) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query account: %w", err)
	}
	return &a, nil
}

// ListAccounts returns the accounts of a profile, oldest first.
func (r *Repository) ListAccounts(ctx context.Context, profileID model.ProfileID) ([]model.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE profile_id = ? ORDER BY created_at ASC, id ASC
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("could not query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return accounts, nil
}

// UpdateAccountProvider replaces the provider of an account.
func (r *Repository) UpdateAccountProvider(ctx context.Context, id model.AccountID, p model.AccountProvider) error {
	provider, err := encodeProvider(p)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `UPDATE accounts SET provider = ? WHERE id = ?`, provider, id)
	if err != nil {
		return fmt.Errorf("could not update account: %w", err)
	}
	return checkAffected(result, fmt.Sprintf("account %s", id))
}

// SetAccountCredentials stores the credentials of an account, nil clears them.
func (r *Repository) SetAccountCredentials(ctx context.Context, id model.AccountID, creds model.AccountAuthenticationCredentials) error {
	data, err := encodeCredentials(creds)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `UPDATE accounts SET credentials = ? WHERE id = ?`, data, id)
	if err != nil {
		return fmt.Errorf("could not update account credentials: %w", err)
	}
	return checkAffected(result, fmt.Sprintf("account %s", id))
}

// DeleteAccount deletes an account, its books are deleted in cascade.
func (r *Repository) DeleteAccount(ctx context.Context, id model.AccountID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete account: %w", err)
	}
	if err := checkAffected(result, fmt.Sprintf("account %s", id)); err != nil {
		return err
	}

	r.logger.Debugf("Deleted account from repository: %s", id)
	return nil
}

// CreateOrUpdateBook upserts a book keeping its original creation time.
func (r *Repository) CreateOrUpdateBook(ctx context.Context, b model.Book) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid book: %w", err)
	}

	entry, err := encodeEntry(b.Entry)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := b.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO books (id, account_id, entry, content_path, content_type, adobe_loan_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			entry = excluded.entry,
			content_path = excluded.content_path,
			content_type = excluded.content_type,
			adobe_loan_id = excluded.adobe_loan_id,
			updated_at = excluded.updated_at
	`, b.ID, b.AccountID, entry, b.ContentPath, b.ContentType, b.AdobeLoanID, createdAt.Unix(), updatedAt.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("account %s: %w", b.AccountID, model.ErrNotFound)
		}
		return fmt.Errorf("could not upsert book: %w", err)
	}

	return nil
}

const bookColumns = `id, account_id, entry, content_path, content_type, adobe_loan_id, created_at, updated_at`

// GetBook retrieves a book by ID.
func (r *Repository) GetBook(ctx context.Context, id model.BookID) (*model.Book, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	b, err := scanBook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("book %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query book: %w", err)
	}
	return &b, nil
}

// ListBooks returns the books of an account sorted by ID.
func (r *Repository) ListBooks(ctx context.Context, accountID model.AccountID) ([]model.Book, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books WHERE account_id = ? ORDER BY id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("could not query books: %w", err)
	}
	defer rows.Close()

	books := []model.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return books, nil
}

// DeleteBook deletes a book.
func (r *Repository) DeleteBook(ctx context.Context, id model.BookID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete book: %w", err)
	}
	return checkAffected(result, fmt.Sprintf("book %s", id))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (model.Profile, error) {
	var (
		p         model.Profile
		prefs     string
		createdAt int64
	)
	if err := s.Scan(&p.ID, &p.DisplayName, &prefs, &p.MostRecentAccount, &createdAt); err != nil {
		return model.Profile{}, err
	}
	if err := json.Unmarshal([]byte(prefs), &p.Preferences); err != nil {
		return model.Profile{}, fmt.Errorf("could not decode preferences: %w", err)
	}
	p.CreatedAt = timeFromUnix(createdAt)
	return p, nil
}

func scanAccount(s scanner) (model.Account, error) {
	var (
		a         model.Account
		provider  string
		creds     sql.NullString
		createdAt int64
	)
	if err := s.Scan(&a.ID, &a.ProfileID, &provider, &creds, &createdAt); err != nil {
		return model.Account{}, err
	}

	var err error
	a.Provider, err = decodeProvider(provider)
	if err != nil {
		return model.Account{}, err
	}
	if creds.Valid {
		a.Credentials, err = decodeCredentials(&creds.String)
		if err != nil {
			return model.Account{}, err
		}
	}
	a.CreatedAt = timeFromUnix(createdAt)
	return a, nil
}

func scanBook(s scanner) (model.Book, error) {
	var (
		b                    model.Book
		entry                string
		createdAt, updatedAt int64
	)
	if err := s.Scan(&b.ID, &b.AccountID, &entry, &b.ContentPath, &b.ContentType, &b.AdobeLoanID, &createdAt, &updatedAt); err != nil {
		return model.Book{}, err
	}

	var err error
	b.Entry, err = decodeEntry(entry)
	if err != nil {
		return model.Book{}, err
	}
	b.CreatedAt = timeFromUnix(createdAt)
	b.UpdatedAt = timeFromUnix(updatedAt)
	return b, nil
}

func checkAffected(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}

func timeFromUnix(unix int64) time.Time { return time.Unix(unix, 0).UTC() }
