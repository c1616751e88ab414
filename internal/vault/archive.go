package vault

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/filebay/filebay/internal/zipstream"
)

// OpenStreamsForZip resolves the selected paths and opens one archive
// entry per contained file, in selection order. Directories contribute
// their files recursively; an empty directory contributes a single
// zero-length marker entry ending in "/". Entry names are slash paths
// relative to the namespace root, deduplicated case-insensitively so a
// file selected both directly and through its parent appears once. On
// any failure partway through, every stream opened so far is closed
// before the error propagates.
func (s *Store) OpenStreamsForZip(ns Namespace, rels []string) ([]zipstream.Entry, error) {
	if len(rels) == 0 {
		return nil, fmt.Errorf("no paths given: %w", ErrInvalidArgument)
	}

	var entries []zipstream.Entry
	seen := make(map[string]bool)
	fail := func(err error) ([]zipstream.Entry, error) {
		closeEntries(entries)
		return nil, err
	}

	for _, rel := range rels {
		if err := guardReserved(rel); err != nil {
			return fail(err)
		}
		abs, err := s.resolve(ns, rel)
		if err != nil {
			return fail(err)
		}
		slashRel := toSlashRel(rel)
		if slashRel == "" {
			return fail(fmt.Errorf("cannot package the namespace root: %w", ErrIllegalOperation))
		}
		fi, err := os.Stat(abs)
		if err != nil {
			if os.IsNotExist(err) {
				return fail(fmt.Errorf("entry %q: %w", slashRel, ErrNotFound))
			}
			return fail(fmt.Errorf("stat entry: %w", err))
		}

		if !fi.IsDir() {
			if seen[strings.ToLower(slashRel)] {
				continue
			}
			f, err := os.Open(abs)
			if err != nil {
				return fail(fmt.Errorf("open %q: %w", slashRel, err))
			}
			seen[strings.ToLower(slashRel)] = true
			entries = append(entries, zipstream.Entry{
				Name:     slashRel,
				Modified: fi.ModTime().UTC(),
				Body:     f,
			})
			continue
		}

		// Reserved subtrees live directly under the namespace root, and
		// the root itself is rejected above, so the walk cannot reach
		// them.
		root := s.Root(ns)
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return fmt.Errorf("walk %q: %w", slashRel, walkErr)
			}
			relToRoot, err := filepath.Rel(root, p)
			if err != nil {
				return fmt.Errorf("relativize %q: %w", p, err)
			}
			name := filepath.ToSlash(relToRoot)

			if d.IsDir() {
				children, err := os.ReadDir(p)
				if err != nil {
					return fmt.Errorf("read dir %q: %w", name, err)
				}
				if len(children) > 0 {
					return nil
				}
				marker := name + "/"
				if seen[strings.ToLower(marker)] {
					return nil
				}
				info, err := d.Info()
				if err != nil {
					return fmt.Errorf("stat dir %q: %w", name, err)
				}
				seen[strings.ToLower(marker)] = true
				entries = append(entries, zipstream.Entry{
					Name:     marker,
					Modified: info.ModTime().UTC(),
				})
				return nil
			}

			// Only regular files are streamed.
			if !d.Type().IsRegular() {
				return nil
			}
			key := strings.ToLower(name)
			if seen[key] {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return fmt.Errorf("stat %q: %w", name, err)
			}
			f, err := os.Open(p)
			if err != nil {
				return fmt.Errorf("open %q: %w", name, err)
			}
			seen[key] = true
			entries = append(entries, zipstream.Entry{
				Name:     name,
				Modified: info.ModTime().UTC(),
				Body:     f,
			})
			return nil
		})
		if err != nil {
			return fail(err)
		}
	}
	return entries, nil
}

func closeEntries(entries []zipstream.Entry) {
	for _, e := range entries {
		if e.Body != nil {
			_ = e.Body.Close()
		}
	}
}
