// Package vault implements the sandboxed two-namespace file store.
// Directory structure per namespace:
//
//	{rootDir}/{namespace-subdir}/
//	  .trash/
//	    {entry-id}/
//	      {original-leaf-name}  # moved content
//	      metadata.json         # TrashMetadata sidecar
//	  .uploading/
//	    {random}.upload         # transient staging files
//	  ...                       # user content tree
//
// Every caller-supplied path is validated by a Resolver before any
// filesystem access. Consistency is filesystem-mediated: there is no
// in-memory index or lock, so concurrent callers race exactly as the
// underlying filesystem allows.
package vault

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Config carries the resolved store settings.
type Config struct {
	RootDir         string // parent of both namespace subtrees
	PermanentSubdir string // defaults to "permanent"
	TemporarySubdir string // defaults to "temporary"
	MaxUploadBytes  int64  // 0 means unlimited
}

// Store manages the two namespace subtrees.
type Store struct {
	resolvers      map[Namespace]*Resolver
	maxUploadBytes int64
}

// New creates a store for the configured root. No filesystem access
// happens here; call EnsureRoots before serving requests.
func New(cfg Config) (*Store, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("root directory required: %w", ErrInvalidArgument)
	}
	perm := cfg.PermanentSubdir
	if perm == "" {
		perm = "permanent"
	}
	temp := cfg.TemporarySubdir
	if temp == "" {
		temp = "temporary"
	}
	if perm == temp {
		return nil, fmt.Errorf("namespace subdirectories must differ: %w", ErrInvalidArgument)
	}

	resolvers := make(map[Namespace]*Resolver, len(Namespaces))
	for ns, subdir := range map[Namespace]string{Permanent: perm, Temporary: temp} {
		r, err := NewResolver(filepath.Join(cfg.RootDir, subdir))
		if err != nil {
			return nil, err
		}
		resolvers[ns] = r
	}

	return &Store{
		resolvers:      resolvers,
		maxUploadBytes: cfg.MaxUploadBytes,
	}, nil
}

// Root returns the absolute root directory of a namespace.
func (s *Store) Root(ns Namespace) string {
	return s.resolvers[ns].Root()
}

// EnsureRoots creates both namespace roots and their reserved
// subdirectories. Safe to call repeatedly.
func (s *Store) EnsureRoots() error {
	for _, ns := range Namespaces {
		root := s.Root(ns)
		for _, dir := range []string{root, filepath.Join(root, trashDirName), filepath.Join(root, stagingDirName)} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
		}
	}
	return nil
}

func (s *Store) resolve(ns Namespace, rel string) (string, error) {
	r, ok := s.resolvers[ns]
	if !ok {
		return "", fmt.Errorf("unknown namespace: %w", ErrInvalidArgument)
	}
	return r.Resolve(rel)
}

// guardReserved rejects operations aimed at the reserved subtrees. The
// trash and staging trees are managed exclusively through their own APIs.
func guardReserved(rel string) error {
	if isReservedName(firstSegment(rel)) {
		return fmt.Errorf("reserved directory: %w", ErrIllegalOperation)
	}
	return nil
}

// List enumerates the direct children of the directory at rel. Reserved
// subdirectories are hidden. A non-empty filter keeps only entries whose
// name contains it case-insensitively; filtering happens before sorting.
func (s *Store) List(ns Namespace, rel, filter string, field SortField, dir SortDirection) ([]ResourceEntry, error) {
	if err := guardReserved(rel); err != nil {
		return nil, err
	}
	abs, err := s.resolve(ns, rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("list %q: %w", rel, ErrNotFound)
		}
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("list %q: not a directory: %w", rel, ErrNotFound)
	}

	dirents, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	base := toSlashRel(rel)
	filter = strings.ToLower(filter)
	entries := make([]ResourceEntry, 0, len(dirents))
	for _, de := range dirents {
		if isReservedName(de.Name()) {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(de.Name()), filter) {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			log.Debug().Err(err).Str("name", de.Name()).Msg("skipping unreadable entry")
			continue
		}
		entries = append(entries, entryAt(path.Join(base, fi.Name()), fi))
	}

	sortEntries(entries, field, dir)
	return entries, nil
}

// Stat returns the entry at rel.
func (s *Store) Stat(ns Namespace, rel string) (ResourceEntry, error) {
	if err := guardReserved(rel); err != nil {
		return ResourceEntry{}, err
	}
	abs, err := s.resolve(ns, rel)
	if err != nil {
		return ResourceEntry{}, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ResourceEntry{}, fmt.Errorf("stat %q: %w", rel, ErrNotFound)
		}
		return ResourceEntry{}, fmt.Errorf("stat: %w", err)
	}
	return entryAt(toSlashRel(rel), fi), nil
}

// OpenRead opens the file at rel for reading. The caller must close the
// returned stream.
func (s *Store) OpenRead(ns Namespace, rel string) (io.ReadCloser, ResourceEntry, error) {
	if err := guardReserved(rel); err != nil {
		return nil, ResourceEntry{}, err
	}
	abs, err := s.resolve(ns, rel)
	if err != nil {
		return nil, ResourceEntry{}, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ResourceEntry{}, fmt.Errorf("open %q: %w", rel, ErrNotFound)
		}
		return nil, ResourceEntry{}, fmt.Errorf("stat: %w", err)
	}
	if fi.IsDir() {
		return nil, ResourceEntry{}, fmt.Errorf("cannot read a directory: %w", ErrIllegalOperation)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, ResourceEntry{}, fmt.Errorf("open %q: %w", rel, err)
	}
	return f, entryAt(toSlashRel(rel), fi), nil
}

// CreateDirectory creates folderName (and any needed intermediate
// directories) under the directory at baseRel. Creating a directory that
// already exists is not an error; a file occupying the name is.
func (s *Store) CreateDirectory(ns Namespace, baseRel, folderName string) error {
	if err := ValidateLeafName(folderName); err != nil {
		return err
	}
	if err := guardReserved(baseRel); err != nil {
		return err
	}
	baseAbs, err := s.resolve(ns, baseRel)
	if err != nil {
		return err
	}
	abs := filepath.Join(baseAbs, folderName)
	if fi, err := os.Stat(abs); err == nil && !fi.IsDir() {
		return fmt.Errorf("create directory %q: %w", folderName, ErrAlreadyExists)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("create directory %q: %w", folderName, err)
	}
	return nil
}

// Rename changes the leaf name of the entry at rel. Renames never change
// the containing directory.
func (s *Store) Rename(ns Namespace, rel, newName string) error {
	if err := ValidateLeafName(newName); err != nil {
		return err
	}
	if err := guardReserved(rel); err != nil {
		return err
	}
	abs, err := s.resolve(ns, rel)
	if err != nil {
		return err
	}
	if abs == s.Root(ns) {
		return fmt.Errorf("cannot rename the namespace root: %w", ErrIllegalOperation)
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("rename %q: %w", rel, ErrNotFound)
		}
		return fmt.Errorf("stat: %w", err)
	}
	if strings.EqualFold(filepath.Base(abs), newName) {
		return fmt.Errorf("new name matches current name: %w", ErrInvalidArgument)
	}
	target := filepath.Join(filepath.Dir(abs), newName)
	if fileExists(target) {
		return fmt.Errorf("rename target %q: %w", newName, ErrAlreadyExists)
	}
	if err := os.Rename(abs, target); err != nil {
		return fmt.Errorf("rename %q: %w", rel, err)
	}
	return nil
}

// MoveMany moves every path in rels into the directory at targetRel.
// Validation runs for the whole batch before the first rename so a
// rejected batch leaves the tree untouched. Failures during the rename
// phase abort the remainder without rolling back completed moves.
func (s *Store) MoveMany(ns Namespace, rels []string, targetRel string) error {
	if len(rels) == 0 {
		return fmt.Errorf("empty path list: %w", ErrInvalidArgument)
	}
	if err := guardReserved(targetRel); err != nil {
		return err
	}
	targetAbs, err := s.resolve(ns, targetRel)
	if err != nil {
		return err
	}
	fi, err := os.Stat(targetAbs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("target %q: %w", targetRel, ErrNotFound)
		}
		return fmt.Errorf("stat target: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("target %q: not a directory: %w", targetRel, ErrNotFound)
	}

	type pendingMove struct {
		src string
		dst string
	}
	moves := make([]pendingMove, 0, len(rels))
	seen := make(map[string]struct{}, len(rels))
	for _, rel := range rels {
		if err := guardReserved(rel); err != nil {
			return err
		}
		srcAbs, err := s.resolve(ns, rel)
		if err != nil {
			return err
		}
		if srcAbs == s.Root(ns) {
			return fmt.Errorf("cannot move the namespace root: %w", ErrIllegalOperation)
		}
		if _, err := os.Stat(srcAbs); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("source %q: %w", rel, ErrNotFound)
			}
			return fmt.Errorf("stat source: %w", err)
		}
		if srcAbs == targetAbs || hasPathPrefix(targetAbs, srcAbs) {
			return fmt.Errorf("cannot move %q into itself: %w", rel, ErrIllegalOperation)
		}

		name := filepath.Base(srcAbs)
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate name %q in selection: %w", name, ErrAlreadyExists)
		}
		seen[key] = struct{}{}

		dst := filepath.Join(targetAbs, name)
		if fileExists(dst) {
			return fmt.Errorf("%q already exists in target: %w", name, ErrAlreadyExists)
		}
		moves = append(moves, pendingMove{src: srcAbs, dst: dst})
	}

	for _, m := range moves {
		if err := os.Rename(m.src, m.dst); err != nil {
			return fmt.Errorf("move %q: %w", filepath.Base(m.src), err)
		}
	}
	return nil
}

// toSlashRel normalizes a relative path to its canonical slash-joined
// form: forward slashes, no leading or trailing slash, dot segments
// collapsed. The namespace root normalizes to "".
func toSlashRel(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	rel = path.Clean("/" + rel)
	return strings.TrimPrefix(rel, "/")
}

// entryAt builds the listing row for the item at slashRel.
func entryAt(slashRel string, fi os.FileInfo) ResourceEntry {
	size := fi.Size()
	if fi.IsDir() {
		size = 0
	}
	name := path.Base(slashRel)
	if slashRel == "" {
		name = fi.Name()
	}
	return ResourceEntry{
		Name:         name,
		RelativePath: slashRel,
		IsDirectory:  fi.IsDir(),
		SizeBytes:    size,
		LastModified: fi.ModTime().UTC(),
	}
}

func sortEntries(entries []ResourceEntry, field SortField, dir SortDirection) {
	less := func(a, b ResourceEntry) bool {
		switch field {
		case SortBySize:
			return a.SizeBytes < b.SizeBytes
		case SortByModified:
			return a.LastModified.Before(b.LastModified)
		default:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if dir == Descending {
			return less(entries[j], entries[i])
		}
		return less(entries[i], entries[j])
	})
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// syncedWriteFile writes data to path and fsyncs before returning, so
// sidecar metadata survives a crash right after the write.
func syncedWriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		return err
	}

	// Skip fsync during tests to avoid slow test runs on platforms where
	// sync is expensive. Production code always fsyncs for durability.
	if os.Getenv("FILEBAY_TEST") == "" {
		if err := f.Sync(); err != nil {
			return err
		}
	}

	return nil
}
