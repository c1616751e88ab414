package vault

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// CleanupExpiredContent permanently deletes files in the namespace whose
// last-modified time is older than cutoff, then removes any directories
// left empty, children before parents. The trash and staging subtrees
// are not touched. Returns the number of files removed.
func (s *Store) CleanupExpiredContent(ns Namespace, cutoff time.Time) (int, error) {
	root := s.Root(ns)
	removed, err := removeExpiredFiles(root, cutoff, true)
	if err != nil {
		return removed, err
	}
	pruneEmptyDirs(root, true)
	if removed > 0 {
		log.Info().Int("count", removed).Str("namespace", ns.String()).Msg("removed expired files")
	}
	return removed, nil
}

// CleanupStaging deletes upload staging files older than cutoff, catching
// uploads that were abandoned mid-stream. The staging directory itself
// always survives.
func (s *Store) CleanupStaging(ns Namespace, cutoff time.Time) (int, error) {
	dir := filepath.Join(s.Root(ns), stagingDirName)
	removed, err := removeExpiredFiles(dir, cutoff, false)
	if err != nil {
		return removed, err
	}
	pruneEmptyDirs(dir, false)
	if removed > 0 {
		log.Info().Int("count", removed).Str("namespace", ns.String()).Msg("removed stale staging files")
	}
	return removed, nil
}

// removeExpiredFiles walks root and deletes regular files last modified
// before cutoff. Per-item failures are logged and skipped so one bad
// entry never aborts the pass.
func removeExpiredFiles(root string, cutoff time.Time, skipReserved bool) (int, error) {
	removed := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			log.Debug().Err(walkErr).Str("path", p).Msg("skipping unreadable entry during sweep")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if skipReserved && p != root && filepath.Dir(p) == root && isReservedName(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			log.Debug().Err(err).Str("path", p).Msg("skipping unreadable entry during sweep")
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("failed to remove expired file")
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweep %s: %w", root, err)
	}
	return removed, nil
}

// pruneEmptyDirs removes directories under root left empty by a sweep,
// deepest first. The root itself is never removed.
func pruneEmptyDirs(root string, skipReserved bool) {
	var dirs []string
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || !d.IsDir() || p == root {
			return nil
		}
		if skipReserved && filepath.Dir(p) == root && isReservedName(d.Name()) {
			return fs.SkipDir
		}
		dirs = append(dirs, p)
		return nil
	})

	// Reverse lexical order visits every directory after its children.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		children, err := os.ReadDir(dir)
		if err != nil || len(children) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			log.Debug().Err(err).Str("path", dir).Msg("failed to remove empty directory")
		}
	}
}
