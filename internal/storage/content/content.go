// Package content stores downloaded book content on the local filesystem.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/slok/lendr/internal/httpclient"
	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
)

// StoreConfig is the configuration of the content store.
type StoreConfig struct {
	// Dir is the directory where content files are written.
	Dir string
	// ProgressInterval is the minimum interval between progress reports, defaults to 250ms.
	ProgressInterval time.Duration
	Logger           log.Logger
}

func (c *StoreConfig) defaults() error {
	if c.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 250 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "content.Store"})
	return nil
}

// PutOptions are the options of a content write.
type PutOptions struct {
	ContentType string
	// ExpectedBytes is the announced size, 0 or negative when unknown.
	ExpectedBytes int64
	OnProgress    httpclient.ProgressFunc
}

// Stored is the result of a content write.
type Stored struct {
	Path  string
	Bytes int64
}

// Store writes each book content to a single file named after the book ID.
type Store struct {
	dir              string
	progressInterval time.Duration
	logger           log.Logger
}

// NewStore returns a new content store, the directory is created when missing.
func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create content dir: %w", err)
	}

	return &Store{
		dir:              cfg.Dir,
		progressInterval: cfg.ProgressInterval,
		logger:           cfg.Logger,
	}, nil
}

// Put writes the content of r for the book. The content is written to a
// temporary file and moved in place once complete, a failed or cancelled write
// never replaces existing content.
func (s *Store) Put(ctx context.Context, id model.BookID, r io.Reader, opts PutOptions) (*Stored, error) {
	if id == "" {
		return nil, fmt.Errorf("book id is required: %w", model.ErrNotValid)
	}

	tmp, err := os.CreateTemp(s.dir, string(id)+".*.part")
	if err != nil {
		return nil, fmt.Errorf("could not create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		// Noop once renamed.
		_ = os.Remove(tmpPath)
	}()

	pw := httpclient.NewProgressWriter(tmp, opts.ExpectedBytes, s.progressInterval, opts.OnProgress)
	n, err := httpclient.CopyWithContext(ctx, pw, r)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("could not write content: %w", err)
	}
	pw.Finish()

	path := filepath.Join(s.dir, string(id)+extensionFor(opts.ContentType))
	if err := s.removeOthers(id, path); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("could not move content in place: %w", err)
	}

	s.logger.Debugf("Stored %d bytes for book %s", n, id)
	return &Stored{Path: path, Bytes: n}, nil
}

// Delete removes every content file of the book, missing content is not an error.
func (s *Store) Delete(_ context.Context, id model.BookID) error {
	return s.removeOthers(id, "")
}

// Path returns the path of the stored content of the book.
func (s *Store) Path(_ context.Context, id model.BookID) (string, error) {
	matches, err := s.files(id)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("content of book %s: %w", id, model.ErrNotFound)
	}
	return matches[0], nil
}

func (s *Store) files(id model.BookID) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, string(id)+"*"))
	if err != nil {
		return nil, fmt.Errorf("could not list content: %w", err)
	}

	res := matches[:0]
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") {
			continue
		}
		res = append(res, m)
	}
	return res, nil
}

func (s *Store) removeOthers(id model.BookID, keep string) error {
	matches, err := s.files(id)
	if err != nil {
		return err
	}
	for _, m := range matches {
		if m == keep {
			continue
		}
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("could not remove content %s: %w", m, err)
		}
	}
	return nil
}

var knownExtensions = map[string]string{
	"application/epub+zip": ".epub",
	"application/pdf":      ".pdf",
	"audio/mpeg":           ".mp3",
}

func extensionFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if ext, ok := knownExtensions[mt]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
		return exts[0]
	}
	return ""
}
