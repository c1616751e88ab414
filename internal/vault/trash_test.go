package vault

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteFile(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "docs/keep.txt", "precious bytes")

	entry, err := store.Delete(Permanent, "docs/keep.txt")
	require.NoError(t, err)
	assert.Equal(t, "keep.txt", entry.Name)
	assert.Equal(t, "docs/keep.txt", entry.OriginalPath)
	assert.False(t, entry.IsDirectory)
	assert.EqualValues(t, 14, entry.SizeBytes)
	assert.NotEmpty(t, entry.ID)

	// Gone from the tree, present in the trash with its sidecar.
	assert.NoFileExists(t, filepath.Join(store.Root(Permanent), "docs", "keep.txt"))
	container := filepath.Join(store.trashDir(Permanent), entry.ID)
	assert.FileExists(t, filepath.Join(container, "keep.txt"))
	assert.FileExists(t, filepath.Join(container, trashMetadataName))
}

func TestDeleteDirectoryRecordsRecursiveSize(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "proj/a.txt", "12345")
	writeFile(t, store, Permanent, "proj/sub/b.txt", "678")

	entry, err := store.Delete(Permanent, "proj")
	require.NoError(t, err)
	assert.True(t, entry.IsDirectory)
	assert.EqualValues(t, 8, entry.SizeBytes)
}

func TestDeleteErrors(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Delete(Permanent, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Delete(Permanent, "")
	assert.ErrorIs(t, err, ErrIllegalOperation)

	_, err = store.Delete(Permanent, ".trash")
	assert.ErrorIs(t, err, ErrIllegalOperation)

	_, err = store.Delete(Permanent, "../escape")
	assert.ErrorIs(t, err, ErrPathInvalid)
}

func TestDeleteManyStopsAtFirstFailure(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "a.txt", "a")
	writeFile(t, store, Permanent, "b.txt", "b")

	_, err := store.DeleteMany(Permanent, []string{"a.txt", "missing.txt", "b.txt"})
	assert.ErrorIs(t, err, ErrNotFound)

	// a.txt was already trashed; b.txt was never reached.
	assert.NoFileExists(t, filepath.Join(store.Root(Permanent), "a.txt"))
	assert.FileExists(t, filepath.Join(store.Root(Permanent), "b.txt"))

	_, err = store.DeleteMany(Permanent, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestListTrashOrderingAndSkips(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "first.txt", "1")
	writeFile(t, store, Permanent, "second.txt", "2")

	e1, err := store.Delete(Permanent, "first.txt")
	require.NoError(t, err)
	e2, err := store.Delete(Permanent, "second.txt")
	require.NoError(t, err)

	// Age the first deletion so ordering is deterministic.
	rewriteTrashDeletedAt(t, store, e1.ID, time.Now().Add(-time.Hour))

	// A container with a corrupt sidecar must not hide the others.
	corrupt := filepath.Join(store.trashDir(Permanent), "corrupt-entry")
	require.NoError(t, os.MkdirAll(corrupt, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(corrupt, trashMetadataName), []byte("{not json"), 0644))

	// Stray files in the trash directory are ignored too.
	require.NoError(t, os.WriteFile(filepath.Join(store.trashDir(Permanent), "stray"), []byte("x"), 0644))

	list, err := store.ListTrash(Permanent)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, e2.ID, list[0].ID)
	assert.Equal(t, e1.ID, list[1].ID)
}

func TestListTrashEmpty(t *testing.T) {
	store := newTestStore(t)
	list, err := store.ListTrash(Permanent)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRestoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "docs/sub/data.bin", "exact payload bytes")

	entry, err := store.Delete(Permanent, "docs/sub/data.bin")
	require.NoError(t, err)

	// Remove the now-empty parents so restore has to recreate them.
	require.NoError(t, os.Remove(filepath.Join(store.Root(Permanent), "docs", "sub")))
	require.NoError(t, os.Remove(filepath.Join(store.Root(Permanent), "docs")))

	require.NoError(t, store.RestoreFromTrash(Permanent, []string{entry.ID}))

	data, err := os.ReadFile(filepath.Join(store.Root(Permanent), "docs", "sub", "data.bin"))
	require.NoError(t, err)
	assert.Equal(t, "exact payload bytes", string(data))

	// The container is gone and the trash is empty again.
	list, err := store.ListTrash(Permanent)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRestoreOccupiedTarget(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "a.txt", "old")

	entry, err := store.Delete(Permanent, "a.txt")
	require.NoError(t, err)

	writeFile(t, store, Permanent, "a.txt", "new occupant")

	err = store.RestoreFromTrash(Permanent, []string{entry.ID})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// The trashed copy is untouched and still restorable.
	list, listErr := store.ListTrash(Permanent)
	require.NoError(t, listErr)
	require.Len(t, list, 1)
	assert.Equal(t, entry.ID, list[0].ID)
}

func TestRestoreErrors(t *testing.T) {
	store := newTestStore(t)

	assert.ErrorIs(t, store.RestoreFromTrash(Permanent, nil), ErrInvalidArgument)
	assert.ErrorIs(t, store.RestoreFromTrash(Permanent, []string{"no-such-id"}), ErrNotFound)
	assert.ErrorIs(t, store.RestoreFromTrash(Permanent, []string{"../escape"}), ErrInvalidArgument)
}

func TestRestoreRejectsTamperedSidecarPath(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "a.txt", "x")

	entry, err := store.Delete(Permanent, "a.txt")
	require.NoError(t, err)

	// A sidecar pointing outside the namespace must be refused.
	container := filepath.Join(store.trashDir(Permanent), entry.ID)
	meta, err := readTrashMetadata(container)
	require.NoError(t, err)
	meta.OriginalPath = "../outside.txt"
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(container, trashMetadataName), data, 0644))

	err = store.RestoreFromTrash(Permanent, []string{entry.ID})
	assert.ErrorIs(t, err, ErrPathInvalid)
}

func TestPurgeTrash(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "a.txt", "x")

	entry, err := store.Delete(Permanent, "a.txt")
	require.NoError(t, err)

	require.NoError(t, store.PurgeTrash(Permanent, []string{entry.ID}))
	assert.NoDirExists(t, filepath.Join(store.trashDir(Permanent), entry.ID))

	// Purging an unknown id is a no-op.
	require.NoError(t, store.PurgeTrash(Permanent, []string{entry.ID}))

	assert.ErrorIs(t, store.PurgeTrash(Permanent, nil), ErrInvalidArgument)
	assert.ErrorIs(t, store.PurgeTrash(Permanent, []string{"a/b"}), ErrInvalidArgument)
}

func TestCleanupTrashExpiry(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "old.txt", "x")
	writeFile(t, store, Permanent, "fresh.txt", "y")

	oldEntry, err := store.Delete(Permanent, "old.txt")
	require.NoError(t, err)
	freshEntry, err := store.Delete(Permanent, "fresh.txt")
	require.NoError(t, err)

	cutoff := time.Now().Add(-24 * time.Hour)
	rewriteTrashDeletedAt(t, store, oldEntry.ID, cutoff.Add(-time.Second))
	rewriteTrashDeletedAt(t, store, freshEntry.ID, cutoff.Add(time.Second))

	purged, err := store.CleanupTrash(Permanent, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	assert.NoDirExists(t, filepath.Join(store.trashDir(Permanent), oldEntry.ID))
	assert.DirExists(t, filepath.Join(store.trashDir(Permanent), freshEntry.ID))
}

func TestCleanupTrashLeavesUnreadableEntries(t *testing.T) {
	store := newTestStore(t)
	noSidecar := filepath.Join(store.trashDir(Permanent), "orphan")
	require.NoError(t, os.MkdirAll(noSidecar, 0755))

	purged, err := store.CleanupTrash(Permanent, time.Now())
	require.NoError(t, err)
	assert.Zero(t, purged)
	assert.DirExists(t, noSidecar)
}

func TestCleanupTrashLeavesZeroDeletionTime(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "a.txt", "payload")
	entry, err := store.Delete(Permanent, "a.txt")
	require.NoError(t, err)

	// A sidecar that parses but carries no deletedAt must never look
	// expired.
	rewriteTrashDeletedAt(t, store, entry.ID, time.Time{})

	purged, err := store.CleanupTrash(Permanent, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, purged)
	assert.DirExists(t, filepath.Join(store.trashDir(Permanent), entry.ID))
}

func TestCleanupTrashLeavesIDMismatch(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "a.txt", "payload")
	entry, err := store.Delete(Permanent, "a.txt")
	require.NoError(t, err)

	container := filepath.Join(store.trashDir(Permanent), entry.ID)
	meta, err := readTrashMetadata(container)
	require.NoError(t, err)
	meta.ID = "someone-else"
	meta.DeletedAt = time.Now().Add(-48 * time.Hour).UTC()
	data, err := json.MarshalIndent(meta, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(container, trashMetadataName), data, 0644))

	purged, err := store.CleanupTrash(Permanent, time.Now())
	require.NoError(t, err)
	assert.Zero(t, purged)
	assert.DirExists(t, container)
}

func TestTrashMetadataNameCollision(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, Permanent, "metadata.json", "user file, not a sidecar")

	entry, err := store.Delete(Permanent, "metadata.json")
	require.NoError(t, err)

	container := filepath.Join(store.trashDir(Permanent), entry.ID)
	assert.FileExists(t, filepath.Join(container, "metadata.json.orig"))

	require.NoError(t, store.RestoreFromTrash(Permanent, []string{entry.ID}))
	data, err := os.ReadFile(filepath.Join(store.Root(Permanent), "metadata.json"))
	require.NoError(t, err)
	assert.Equal(t, "user file, not a sidecar", string(data))
}

// rewriteTrashDeletedAt rewrites a container's sidecar with a different
// deletion timestamp.
func rewriteTrashDeletedAt(t *testing.T, store *Store, id string, at time.Time) {
	t.Helper()
	container := filepath.Join(store.trashDir(Permanent), id)
	meta, err := readTrashMetadata(container)
	require.NoError(t, err)
	meta.DeletedAt = at.UTC()
	data, err := json.MarshalIndent(meta, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(container, trashMetadataName), data, 0644))
}
