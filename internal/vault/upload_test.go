package vault

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stagingEntries(t *testing.T, store *Store, ns Namespace) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(store.Root(ns), stagingDirName))
	require.NoError(t, err)
	return entries
}

func TestSaveUpload(t *testing.T) {
	store := newTestStore(t)
	content := "hello upload"

	entry, err := store.SaveUpload(context.Background(), Permanent, "", "report.txt", strings.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, "report.txt", entry.Name)
	assert.Equal(t, "report.txt", entry.RelativePath)
	assert.EqualValues(t, len(content), entry.SizeBytes)

	data, err := os.ReadFile(filepath.Join(store.Root(Permanent), "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	// Staging directory has been drained.
	assert.Empty(t, stagingEntries(t, store, Permanent))
}

func TestSaveUploadIntoSubdirectory(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateDirectory(Permanent, "", "docs"))

	entry, err := store.SaveUpload(context.Background(), Permanent, "docs", "a.txt", strings.NewReader("x"), 1)
	require.NoError(t, err)
	assert.Equal(t, "docs/a.txt", entry.RelativePath)
}

func TestSaveUploadStripsClientPath(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.SaveUpload(context.Background(), Permanent, "", `C:\Users\me\photo.jpg`, strings.NewReader("img"), 3)
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", entry.Name)
}

func TestSaveUploadCollisionSuffix(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := store.SaveUpload(context.Background(), Permanent, "", "dup.txt", strings.NewReader("v"), 1)
		require.NoError(t, err)
	}

	for _, name := range []string{"dup.txt", "dup (1).txt", "dup (2).txt"} {
		assert.FileExists(t, filepath.Join(store.Root(Permanent), name))
	}
}

func TestSaveUploadSizeMismatch(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SaveUpload(context.Background(), Permanent, "", "short.txt", strings.NewReader("abc"), 99)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Mismatch leaves neither a destination file nor staging debris.
	assert.NoFileExists(t, filepath.Join(store.Root(Permanent), "short.txt"))
	assert.Empty(t, stagingEntries(t, store, Permanent))
}

func TestSaveUploadOverlongStreamCapped(t *testing.T) {
	store := newTestStore(t)

	// An endless stream declaring 10 bytes must fail after reading just
	// enough to prove the declaration wrong, not fill the staging volume.
	cr := &countingReader{r: zeroReader{}}
	_, err := store.SaveUpload(context.Background(), Permanent, "", "big.bin", cr, 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.EqualValues(t, 11, cr.n)
	assert.Empty(t, stagingEntries(t, store, Permanent))
}

func TestSaveUploadTooLarge(t *testing.T) {
	store, err := New(Config{RootDir: t.TempDir(), MaxUploadBytes: 4})
	require.NoError(t, err)
	require.NoError(t, store.EnsureRoots())

	_, err = store.SaveUpload(context.Background(), Permanent, "", "big.bin", strings.NewReader("12345"), 5)
	assert.ErrorIs(t, err, ErrTooLarge)

	// At the limit is fine.
	_, err = store.SaveUpload(context.Background(), Permanent, "", "ok.bin", strings.NewReader("1234"), 4)
	assert.NoError(t, err)
}

func TestSaveUploadCanceled(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.SaveUpload(ctx, Permanent, "", "gone.txt", strings.NewReader("data"), 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.NoFileExists(t, filepath.Join(store.Root(Permanent), "gone.txt"))
	assert.Empty(t, stagingEntries(t, store, Permanent))
}

func TestSaveUploadReadFailure(t *testing.T) {
	store := newTestStore(t)
	broken := io.MultiReader(strings.NewReader("partial"), failingReader{})

	_, err := store.SaveUpload(context.Background(), Permanent, "", "broken.txt", broken, 100)
	require.Error(t, err)
	assert.Empty(t, stagingEntries(t, store, Permanent))
}

func TestSaveUploadValidation(t *testing.T) {
	store := newTestStore(t)
	r := strings.NewReader("x")

	_, err := store.SaveUpload(context.Background(), Permanent, "", "a.txt", r, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = store.SaveUpload(context.Background(), Permanent, "", "", r, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = store.SaveUpload(context.Background(), Permanent, ".trash", "a.txt", r, 1)
	assert.ErrorIs(t, err, ErrIllegalOperation)

	_, err = store.SaveUpload(context.Background(), Permanent, "missing", "a.txt", r, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	writeFile(t, store, Permanent, "file.txt", "x")
	_, err = store.SaveUpload(context.Background(), Permanent, "file.txt", "a.txt", r, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAvailableName(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "a.txt", availableName(dir, "a.txt"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0644))
	assert.Equal(t, "a (1).txt", availableName(dir, "a.txt"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a (1).txt"), nil, 0644))
	assert.Equal(t, "a (2).txt", availableName(dir, "a.txt"))

	// Extensionless names get the suffix at the end.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), nil, 0644))
	assert.Equal(t, "README (1)", availableName(dir, "README"))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

// zeroReader never runs out of bytes.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// countingReader tracks how many bytes were drawn from the wrapped reader.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
