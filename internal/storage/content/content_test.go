package content_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/lendr/internal/log"
	"github.com/slok/lendr/internal/model"
	"github.com/slok/lendr/internal/storage/content"
)

func newStore(t *testing.T) (*content.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := content.NewStore(content.StoreConfig{Dir: dir, Logger: log.Noop})
	require.NoError(t, err)
	return s, dir
}

func TestStorePut(t *testing.T) {
	id := model.NewBookID("urn:book:0")

	tests := map[string]struct {
		contentType string
		expExt      string
	}{
		"EPUB content should have an epub extension.": {
			contentType: "application/epub+zip",
			expExt:      ".epub",
		},
		"PDF content with parameters should have a pdf extension.": {
			contentType: "application/pdf; charset=binary",
			expExt:      ".pdf",
		},
		"Unknown content should have no extension.": {
			contentType: "application/x-lendr-unknown",
			expExt:      "",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			s, dir := newStore(t)

			var lastWritten, lastTotal int64
			stored, err := s.Put(context.TODO(), id, strings.NewReader("some book"), content.PutOptions{
				ContentType:   test.contentType,
				ExpectedBytes: 9,
				OnProgress:    func(w, t int64) { lastWritten, lastTotal = w, t },
			})
			require.NoError(err)

			assert.Equal(filepath.Join(dir, string(id)+test.expExt), stored.Path)
			assert.Equal(int64(9), stored.Bytes)
			assert.Equal(int64(9), lastWritten)
			assert.Equal(int64(9), lastTotal)

			data, err := os.ReadFile(stored.Path)
			require.NoError(err)
			assert.Equal("some book", string(data))

			path, err := s.Path(context.TODO(), id)
			require.NoError(err)
			assert.Equal(stored.Path, path)
		})
	}
}

func TestStoreReplaceAndDelete(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	s, dir := newStore(t)
	id := model.NewBookID("urn:book:0")

	_, err := s.Put(context.TODO(), id, strings.NewReader("pdf"), content.PutOptions{ContentType: "application/pdf"})
	require.NoError(err)
	stored, err := s.Put(context.TODO(), id, strings.NewReader("epub"), content.PutOptions{ContentType: "application/epub+zip"})
	require.NoError(err)

	entries, err := os.ReadDir(dir)
	require.NoError(err)
	require.Len(entries, 1)
	assert.Equal(filepath.Base(stored.Path), entries[0].Name())

	require.NoError(s.Delete(context.TODO(), id))
	require.NoError(s.Delete(context.TODO(), id))

	_, err = s.Path(context.TODO(), id)
	assert.ErrorIs(err, model.ErrNotFound)
}

func TestStorePutCancelledKeepsExistingContent(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	s, dir := newStore(t)
	id := model.NewBookID("urn:book:0")

	stored, err := s.Put(context.TODO(), id, strings.NewReader("original"), content.PutOptions{ContentType: "application/epub+zip"})
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, id, strings.NewReader("replacement"), content.PutOptions{ContentType: "application/epub+zip"})
	assert.ErrorIs(err, context.Canceled)

	data, err := os.ReadFile(stored.Path)
	require.NoError(err)
	assert.Equal("original", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(err)
	assert.Len(entries, 1)
}
