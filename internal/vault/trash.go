package vault

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// trashMetadataName is the sidecar file written next to each trashed item.
const trashMetadataName = "metadata.json"

// Delete soft-deletes the entry at rel by moving it into the namespace's
// trash under a fresh container id, together with a metadata sidecar
// recording where it came from. Nothing is permanently removed.
func (s *Store) Delete(ns Namespace, rel string) (TrashEntry, error) {
	if err := guardReserved(rel); err != nil {
		return TrashEntry{}, err
	}
	abs, err := s.resolve(ns, rel)
	if err != nil {
		return TrashEntry{}, err
	}
	slashRel := toSlashRel(rel)
	if slashRel == "" {
		return TrashEntry{}, fmt.Errorf("cannot delete the namespace root: %w", ErrIllegalOperation)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return TrashEntry{}, fmt.Errorf("entry %q: %w", slashRel, ErrNotFound)
		}
		return TrashEntry{}, fmt.Errorf("stat entry: %w", err)
	}

	size := fi.Size()
	if fi.IsDir() {
		size = dirSize(abs)
	}

	id := uuid.New().String()
	container := filepath.Join(s.trashDir(ns), id)
	if err := os.MkdirAll(container, 0755); err != nil {
		return TrashEntry{}, fmt.Errorf("create trash container: %w", err)
	}

	leaf := path.Base(slashRel)
	payload := filepath.Join(container, payloadName(leaf))
	if err := os.Rename(abs, payload); err != nil {
		_ = os.RemoveAll(container)
		return TrashEntry{}, fmt.Errorf("move to trash: %w", err)
	}

	meta := TrashMetadata{
		ID:           id,
		OriginalPath: slashRel,
		OriginalName: leaf,
		IsDirectory:  fi.IsDir(),
		DeletedAt:    time.Now().UTC(),
		SizeBytes:    size,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err == nil {
		err = syncedWriteFile(filepath.Join(container, trashMetadataName), data, 0644)
	}
	if err != nil {
		// Without a sidecar the entry would be unreadable, so put the
		// content back where it was.
		_ = os.Rename(payload, abs)
		_ = os.RemoveAll(container)
		return TrashEntry{}, fmt.Errorf("write trash metadata: %w", err)
	}

	return TrashEntry{
		ID:           id,
		Name:         leaf,
		OriginalPath: slashRel,
		IsDirectory:  meta.IsDirectory,
		DeletedAt:    meta.DeletedAt,
		SizeBytes:    size,
	}, nil
}

// DeleteMany soft-deletes each path in order, stopping at the first
// failure. Items already moved before the failure stay in the trash.
func (s *Store) DeleteMany(ns Namespace, rels []string) ([]TrashEntry, error) {
	if len(rels) == 0 {
		return nil, fmt.Errorf("no paths given: %w", ErrInvalidArgument)
	}
	trashed := make([]TrashEntry, 0, len(rels))
	for _, rel := range rels {
		entry, err := s.Delete(ns, rel)
		if err != nil {
			return nil, err
		}
		trashed = append(trashed, entry)
	}
	return trashed, nil
}

// ListTrash enumerates the namespace's trash, newest deletions first and
// names ascending on ties. Containers whose sidecar is missing, corrupt,
// or inconsistent are skipped so one bad entry cannot hide the rest.
func (s *Store) ListTrash(ns Namespace) ([]TrashEntry, error) {
	dir := s.trashDir(ns)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read trash dir: %w", err)
	}

	list := make([]TrashEntry, 0, len(entries))
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		meta, err := readTrashMetadata(filepath.Join(dir, de.Name()))
		if err != nil {
			log.Debug().Err(err).Str("id", de.Name()).Msg("skipping unreadable trash entry")
			continue
		}
		if meta.ID != de.Name() {
			log.Warn().Str("id", de.Name()).Str("metadata_id", meta.ID).Msg("trash sidecar id mismatch, skipping entry")
			continue
		}
		list = append(list, TrashEntry{
			ID:           meta.ID,
			Name:         meta.OriginalName,
			OriginalPath: meta.OriginalPath,
			IsDirectory:  meta.IsDirectory,
			DeletedAt:    meta.DeletedAt,
			SizeBytes:    meta.SizeBytes,
		})
	}

	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].DeletedAt.Equal(list[j].DeletedAt) {
			return list[i].DeletedAt.After(list[j].DeletedAt)
		}
		return strings.ToLower(list[i].Name) < strings.ToLower(list[j].Name)
	})
	return list, nil
}

// RestoreFromTrash moves each identified entry back to its original
// relative path, recreating parent directories as needed, then removes
// the emptied container. Processing stops at the first failure.
func (s *Store) RestoreFromTrash(ns Namespace, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("no trash ids given: %w", ErrInvalidArgument)
	}
	for _, id := range ids {
		if err := s.restoreOne(ns, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) restoreOne(ns Namespace, id string) error {
	if err := validateTrashID(id); err != nil {
		return err
	}
	container := filepath.Join(s.trashDir(ns), id)
	meta, err := readTrashMetadata(container)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("trash entry %q: %w", id, ErrNotFound)
		}
		return fmt.Errorf("read trash metadata: %w", err)
	}
	if meta.ID != id {
		return fmt.Errorf("trash sidecar id mismatch for %q", id)
	}

	// The sidecar is data on disk, so its recorded path gets the same
	// scrutiny as a caller-supplied one.
	if err := guardReserved(meta.OriginalPath); err != nil {
		return err
	}
	destAbs, err := s.resolve(ns, meta.OriginalPath)
	if err != nil {
		return err
	}
	if fileExists(destAbs) {
		return fmt.Errorf("restore target %q: %w", meta.OriginalPath, ErrAlreadyExists)
	}
	if err := os.MkdirAll(filepath.Dir(destAbs), 0755); err != nil {
		return fmt.Errorf("recreate parent directories: %w", err)
	}
	payload := filepath.Join(container, payloadName(meta.OriginalName))
	if err := os.Rename(payload, destAbs); err != nil {
		return fmt.Errorf("restore from trash: %w", err)
	}
	if err := os.RemoveAll(container); err != nil {
		return fmt.Errorf("remove trash container: %w", err)
	}
	return nil
}

// PurgeTrash permanently deletes the named trash containers. Unknown ids
// are ignored, so purging is idempotent.
func (s *Store) PurgeTrash(ns Namespace, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("no trash ids given: %w", ErrInvalidArgument)
	}
	for _, id := range ids {
		if err := validateTrashID(id); err != nil {
			return err
		}
		if err := os.RemoveAll(filepath.Join(s.trashDir(ns), id)); err != nil {
			return fmt.Errorf("purge trash entry %q: %w", id, err)
		}
	}
	return nil
}

// CleanupTrash permanently deletes every trash container whose recorded
// deletion time is older than cutoff and reports how many were removed.
// Unreadable entries are left alone rather than guessed at.
func (s *Store) CleanupTrash(ns Namespace, cutoff time.Time) (int, error) {
	dir := s.trashDir(ns)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read trash dir: %w", err)
	}

	purged := 0
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		container := filepath.Join(dir, de.Name())
		meta, err := readTrashMetadata(container)
		if err != nil {
			log.Debug().Err(err).Str("id", de.Name()).Msg("skipping unreadable trash entry")
			continue
		}
		// A sidecar with a mismatched id or no deletion time is as good as
		// unreadable. Never purge on guessed data.
		if meta.ID != de.Name() {
			log.Warn().Str("id", de.Name()).Str("metadata_id", meta.ID).Msg("trash sidecar id mismatch, skipping entry")
			continue
		}
		if meta.DeletedAt.IsZero() {
			log.Warn().Str("id", de.Name()).Msg("trash sidecar has no deletion time, skipping entry")
			continue
		}
		if !meta.DeletedAt.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(container); err != nil {
			log.Warn().Err(err).Str("id", de.Name()).Msg("failed to purge expired trash entry")
			continue
		}
		purged++
	}
	if purged > 0 {
		log.Info().Int("count", purged).Str("namespace", ns.String()).Msg("purged expired trash entries")
	}
	return purged, nil
}

func (s *Store) trashDir(ns Namespace) string {
	return filepath.Join(s.Root(ns), trashDirName)
}

// payloadName returns the file name the moved content uses inside its
// trash container. An item that is itself named like the sidecar gets a
// suffixed name so the two never collide.
func payloadName(leaf string) string {
	if leaf == trashMetadataName {
		return trashMetadataName + ".orig"
	}
	return leaf
}

// validateTrashID rejects ids that could escape the trash directory.
func validateTrashID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("trash id %q: %w", id, ErrInvalidArgument)
	}
	return nil
}

func readTrashMetadata(container string) (TrashMetadata, error) {
	data, err := os.ReadFile(filepath.Join(container, trashMetadataName))
	if err != nil {
		return TrashMetadata{}, err
	}
	var meta TrashMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return TrashMetadata{}, fmt.Errorf("parse trash metadata: %w", err)
	}
	return meta, nil
}

// dirSize totals the file sizes under root. Unreadable entries count as
// zero rather than failing the walk.
func dirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}
