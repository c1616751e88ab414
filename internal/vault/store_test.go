package vault

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Skip fsync during tests.
	_ = os.Setenv("FILEBAY_TEST", "1")
	os.Exit(m.Run())
}

// newTestStore returns a store rooted in a fresh temp directory with
// both namespace trees created.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{RootDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, store.EnsureRoots())
	return store
}

func writeFile(t *testing.T, store *Store, ns Namespace, rel, content string) {
	t.Helper()
	abs := filepath.Join(store.Root(ns), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0644))
}

func TestNewStoreDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := New(Config{RootDir: tmpDir})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(tmpDir, "permanent"), store.Root(Permanent))
	assert.Equal(t, filepath.Join(tmpDir, "temporary"), store.Root(Temporary))
}

func TestNewStoreValidation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(Config{RootDir: t.TempDir(), PermanentSubdir: "same", TemporarySubdir: "same"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEnsureRootsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureRoots())
	require.NoError(t, store.EnsureRoots())

	for _, ns := range Namespaces {
		for _, dir := range []string{"", ".trash", ".uploading"} {
			info, err := os.Stat(filepath.Join(store.Root(ns), dir))
			require.NoError(t, err)
			assert.True(t, info.IsDir())
		}
	}
}

func TestListHidesReservedAndSorts(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "banana.txt", "yellow")
	writeFile(t, store, Permanent, "Apple.txt", "red fruit")
	writeFile(t, store, Permanent, "cherry.txt", "x")
	require.NoError(t, store.CreateDirectory(Permanent, "", "docs"))

	entries, err := store.List(Permanent, "", "", SortByName, Ascending)
	require.NoError(t, err)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	// Case-insensitive name order; reserved directories invisible.
	assert.Equal(t, []string{"Apple.txt", "banana.txt", "cherry.txt", "docs"}, names)

	for _, e := range entries {
		if e.IsDirectory {
			assert.Zero(t, e.SizeBytes)
		}
		assert.NotContains(t, e.RelativePath, ".trash")
	}
}

func TestListSortVariants(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "small.txt", "a")
	writeFile(t, store, Permanent, "big.txt", "aaaaaaaaaa")

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(store.Root(Permanent), "big.txt"), old, old))

	bySize, err := store.List(Permanent, "", "", SortBySize, Descending)
	require.NoError(t, err)
	assert.Equal(t, "big.txt", bySize[0].Name)

	byModified, err := store.List(Permanent, "", "", SortByModified, Ascending)
	require.NoError(t, err)
	assert.Equal(t, "big.txt", byModified[0].Name)

	desc, err := store.List(Permanent, "", "", SortByName, Descending)
	require.NoError(t, err)
	assert.Equal(t, "small.txt", desc[0].Name)
}

func TestListFilterBeforeSort(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "report-2024.pdf", "x")
	writeFile(t, store, Permanent, "REPORT-2025.pdf", "x")
	writeFile(t, store, Permanent, "notes.txt", "x")

	entries, err := store.List(Permanent, "", "report", SortByName, Ascending)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "report-2024.pdf", entries[0].Name)
	assert.Equal(t, "REPORT-2025.pdf", entries[1].Name)
}

func TestListSubdirectory(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "docs/a.txt", "x")

	entries, err := store.List(Permanent, "docs", "", SortByName, Ascending)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "docs/a.txt", entries[0].RelativePath)
}

func TestListErrors(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "plain.txt", "x")

	_, err := store.List(Permanent, "missing", "", SortByName, Ascending)
	assert.ErrorIs(t, err, ErrNotFound)

	// A file is not listable.
	_, err = store.List(Permanent, "plain.txt", "", SortByName, Ascending)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.List(Permanent, "../outside", "", SortByName, Ascending)
	assert.ErrorIs(t, err, ErrPathInvalid)

	_, err = store.List(Permanent, ".trash", "", SortByName, Ascending)
	assert.ErrorIs(t, err, ErrIllegalOperation)
}

func TestStat(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "docs/a.txt", "hello")

	entry, err := store.Stat(Permanent, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", entry.Name)
	assert.Equal(t, "docs/a.txt", entry.RelativePath)
	assert.EqualValues(t, 5, entry.SizeBytes)
	assert.False(t, entry.IsDirectory)

	_, err = store.Stat(Permanent, "docs/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenRead(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "a.txt", "content")

	rc, entry, err := store.OpenRead(Permanent, "a.txt")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	assert.EqualValues(t, 7, entry.SizeBytes)

	buf := make([]byte, 16)
	n, _ := rc.Read(buf)
	assert.Equal(t, "content", string(buf[:n]))
}

func TestOpenReadErrors(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateDirectory(Permanent, "", "docs"))

	_, _, err := store.OpenRead(Permanent, "docs")
	assert.ErrorIs(t, err, ErrIllegalOperation)

	_, _, err = store.OpenRead(Permanent, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDirectory(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateDirectory(Permanent, "", "docs"))
	// Idempotent for an existing directory.
	require.NoError(t, store.CreateDirectory(Permanent, "", "docs"))

	require.NoError(t, store.CreateDirectory(Permanent, "docs", "nested"))
	info, err := os.Stat(filepath.Join(store.Root(Permanent), "docs", "nested"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateDirectoryErrors(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "taken", "x")

	assert.ErrorIs(t, store.CreateDirectory(Permanent, "", "taken"), ErrAlreadyExists)
	assert.ErrorIs(t, store.CreateDirectory(Permanent, "", ""), ErrInvalidArgument)
	assert.ErrorIs(t, store.CreateDirectory(Permanent, "", "bad/name"), ErrInvalidArgument)
	assert.ErrorIs(t, store.CreateDirectory(Permanent, "", ".trash"), ErrIllegalOperation)
}

func TestRename(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "docs/old.txt", "content")

	require.NoError(t, store.Rename(Permanent, "docs/old.txt", "new.txt"))

	_, err := os.Stat(filepath.Join(store.Root(Permanent), "docs", "new.txt"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(store.Root(Permanent), "docs", "old.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestRenameErrors(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "foo.txt", "foo")
	writeFile(t, store, Permanent, "bar.txt", "bar")

	assert.ErrorIs(t, store.Rename(Permanent, "missing.txt", "new.txt"), ErrNotFound)
	assert.ErrorIs(t, store.Rename(Permanent, "foo.txt", "foo.txt"), ErrInvalidArgument)
	// Case-insensitive same-name check.
	assert.ErrorIs(t, store.Rename(Permanent, "foo.txt", "FOO.txt"), ErrInvalidArgument)
	assert.ErrorIs(t, store.Rename(Permanent, "foo.txt", "bar.txt"), ErrAlreadyExists)
	assert.ErrorIs(t, store.Rename(Permanent, "", "new"), ErrIllegalOperation)

	// Neither party of the failed rename was altered.
	data, err := os.ReadFile(filepath.Join(store.Root(Permanent), "foo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "foo", string(data))
	data, err = os.ReadFile(filepath.Join(store.Root(Permanent), "bar.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bar", string(data))
}

func TestMoveMany(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "a.txt", "a")
	writeFile(t, store, Permanent, "docs/b.txt", "b")
	require.NoError(t, store.CreateDirectory(Permanent, "", "dest"))

	require.NoError(t, store.MoveMany(Permanent, []string{"a.txt", "docs"}, "dest"))

	_, err := os.Stat(filepath.Join(store.Root(Permanent), "dest", "a.txt"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(store.Root(Permanent), "dest", "docs", "b.txt"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(store.Root(Permanent), "a.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestMoveManyIntoOwnDescendant(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateDirectory(Permanent, "", "x"))
	require.NoError(t, store.CreateDirectory(Permanent, "x", "sub"))

	err := store.MoveMany(Permanent, []string{"x"}, "x/sub")
	assert.ErrorIs(t, err, ErrIllegalOperation)

	// Tree unchanged.
	_, statErr := os.Stat(filepath.Join(store.Root(Permanent), "x", "sub"))
	require.NoError(t, statErr)

	// Moving into itself is equally refused.
	err = store.MoveMany(Permanent, []string{"x"}, "x")
	assert.ErrorIs(t, err, ErrIllegalOperation)
}

func TestMoveManyValidatesBeforeMoving(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "a.txt", "a")
	require.NoError(t, store.CreateDirectory(Permanent, "", "dest"))

	// Second source is missing, so nothing at all may move.
	err := store.MoveMany(Permanent, []string{"a.txt", "missing.txt"}, "dest")
	assert.ErrorIs(t, err, ErrNotFound)
	_, statErr := os.Stat(filepath.Join(store.Root(Permanent), "a.txt"))
	require.NoError(t, statErr)
}

func TestMoveManyCollisions(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "a.txt", "src")
	writeFile(t, store, Permanent, "dest/a.txt", "existing")
	writeFile(t, store, Permanent, "docs/a.txt", "dup")

	err := store.MoveMany(Permanent, []string{"a.txt"}, "dest")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Two selected sources carrying the same leaf name collide with
	// each other even when the target is free.
	require.NoError(t, store.CreateDirectory(Permanent, "", "empty"))
	err = store.MoveMany(Permanent, []string{"a.txt", "docs/a.txt"}, "empty")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMoveManyErrors(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "a.txt", "a")

	assert.ErrorIs(t, store.MoveMany(Permanent, nil, "dest"), ErrInvalidArgument)
	assert.ErrorIs(t, store.MoveMany(Permanent, []string{"a.txt"}, "missing"), ErrNotFound)
	assert.ErrorIs(t, store.MoveMany(Permanent, []string{"a.txt"}, ".trash"), ErrIllegalOperation)
	assert.ErrorIs(t, store.MoveMany(Permanent, []string{""}, ""), ErrIllegalOperation)
}

func TestNamespaceIsolation(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "only-permanent.txt", "x")

	_, err := store.Stat(Temporary, "only-permanent.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := store.List(Temporary, "", "", SortByName, Ascending)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
