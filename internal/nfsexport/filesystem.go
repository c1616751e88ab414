// Package nfsexport provides a read-only NFS v3 export of the vault so
// the managed trees can be browsed with a plain mount.
package nfsexport

import (
	"errors"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/filebay/filebay/internal/vault"
)

var errReadOnly = errors.New("read-only filesystem")

// Filesystem implements billy.Filesystem over a vault.Store. The export
// root holds one directory per namespace; everything below delegates to
// the store, so reserved subtrees stay hidden and path validation stays
// in one place. All mutating methods refuse.
type Filesystem struct {
	store  *vault.Store
	prefix string // export-relative path this view is rooted at
}

// New creates a read-only filesystem over the store.
func New(store *vault.Store) *Filesystem {
	return &Filesystem{store: store}
}

// split maps an export path to its namespace and store-relative path.
// The boolean reports whether the path names the export root itself.
func (f *Filesystem) split(name string) (vault.Namespace, string, bool, error) {
	full := path.Clean("/" + path.Join(f.prefix, strings.ReplaceAll(name, "\\", "/")))
	full = strings.TrimPrefix(full, "/")
	if full == "" || full == "." {
		return 0, "", true, nil
	}
	first := full
	rest := ""
	if i := strings.IndexByte(full, '/'); i >= 0 {
		first, rest = full[:i], full[i+1:]
	}
	ns, err := vault.ParseNamespace(first)
	if err != nil {
		return 0, "", false, os.ErrNotExist
	}
	return ns, rest, false, nil
}

// Open opens the named file for reading.
func (f *Filesystem) Open(filename string) (billy.File, error) {
	return f.OpenFile(filename, os.O_RDONLY, 0)
}

// OpenFile opens the named file. Any write flag is refused.
func (f *Filesystem) OpenFile(filename string, flag int, _ os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, errReadOnly
	}
	ns, rel, isRoot, err := f.split(filename)
	if err != nil {
		return nil, err
	}
	if isRoot {
		return nil, os.ErrInvalid
	}
	entry, err := f.store.Stat(ns, rel)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if entry.IsDirectory {
		return nil, os.ErrInvalid
	}
	return &vaultFile{
		store: f.store,
		ns:    ns,
		rel:   rel,
		name:  filename,
		size:  entry.SizeBytes,
	}, nil
}

// Create refuses; the export is read-only.
func (f *Filesystem) Create(string) (billy.File, error) {
	return nil, errReadOnly
}

// Stat returns file info for the named path.
func (f *Filesystem) Stat(filename string) (os.FileInfo, error) {
	ns, rel, isRoot, err := f.split(filename)
	if err != nil {
		return nil, err
	}
	if isRoot {
		return &fileInfo{name: "/", mode: 0555 | os.ModeDir, modTime: time.Now(), isDir: true}, nil
	}
	if rel == "" {
		return &fileInfo{name: ns.String(), mode: 0555 | os.ModeDir, modTime: time.Now(), isDir: true}, nil
	}
	entry, err := f.store.Stat(ns, rel)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return infoFromEntry(entry), nil
}

// Lstat is Stat; the export never surfaces symlinks.
func (f *Filesystem) Lstat(filename string) (os.FileInfo, error) {
	return f.Stat(filename)
}

// ReadDir lists a directory.
func (f *Filesystem) ReadDir(p string) ([]os.FileInfo, error) {
	ns, rel, isRoot, err := f.split(p)
	if err != nil {
		return nil, err
	}
	if isRoot {
		infos := make([]os.FileInfo, 0, len(vault.Namespaces))
		for _, ns := range vault.Namespaces {
			infos = append(infos, &fileInfo{name: ns.String(), mode: 0555 | os.ModeDir, modTime: time.Now(), isDir: true})
		}
		return infos, nil
	}
	entries, err := f.store.List(ns, rel, "", vault.SortByName, vault.Ascending)
	if err != nil {
		return nil, mapStoreError(err)
	}
	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, infoFromEntry(entry))
	}
	return infos, nil
}

// Join joins path elements with forward slashes.
func (f *Filesystem) Join(elem ...string) string {
	return path.Join(elem...)
}

// Chroot returns a view rooted at p.
func (f *Filesystem) Chroot(p string) (billy.Filesystem, error) {
	joined := path.Clean("/" + path.Join(f.prefix, strings.ReplaceAll(p, "\\", "/")))
	return &Filesystem{store: f.store, prefix: strings.TrimPrefix(joined, "/")}, nil
}

// Root returns the root path of this view.
func (f *Filesystem) Root() string {
	return "/" + f.prefix
}

// Rename refuses; the export is read-only.
func (f *Filesystem) Rename(string, string) error { return errReadOnly }

// Remove refuses; the export is read-only.
func (f *Filesystem) Remove(string) error { return errReadOnly }

// MkdirAll refuses; the export is read-only.
func (f *Filesystem) MkdirAll(string, os.FileMode) error { return errReadOnly }

// TempFile refuses; the export is read-only.
func (f *Filesystem) TempFile(string, string) (billy.File, error) { return nil, errReadOnly }

// Symlink refuses; the export never surfaces symlinks.
func (f *Filesystem) Symlink(string, string) error { return errReadOnly }

// Readlink refuses; the export never surfaces symlinks.
func (f *Filesystem) Readlink(string) (string, error) { return "", os.ErrInvalid }

// mapStoreError converts vault sentinels to the os errors billy callers
// expect. Invalid paths answer as missing ones.
func mapStoreError(err error) error {
	switch {
	case errors.Is(err, vault.ErrNotFound), errors.Is(err, vault.ErrPathInvalid):
		return os.ErrNotExist
	case errors.Is(err, vault.ErrIllegalOperation):
		return os.ErrPermission
	default:
		return err
	}
}

func infoFromEntry(entry vault.ResourceEntry) os.FileInfo {
	mode := os.FileMode(0444)
	if entry.IsDirectory {
		mode = 0555 | os.ModeDir
	}
	return &fileInfo{
		name:    entry.Name,
		size:    entry.SizeBytes,
		mode:    mode,
		modTime: entry.LastModified,
		isDir:   entry.IsDirectory,
	}
}

// --- vaultFile ---

// vaultFile reads one stored file. Each Read reopens the backing file
// and skips to the current position, trading per-call cost for having no
// long-lived handle an NFS client could leak.
type vaultFile struct {
	store    *vault.Store
	ns       vault.Namespace
	rel      string
	name     string
	size     int64
	position int64
	closed   bool
}

func (f *vaultFile) Name() string { return f.name }

func (f *vaultFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	if f.position >= f.size {
		return 0, io.EOF
	}
	rc, _, err := f.store.OpenRead(f.ns, f.rel)
	if err != nil {
		return 0, mapStoreError(err)
	}
	defer func() { _ = rc.Close() }()

	if f.position > 0 {
		if _, err := io.CopyN(io.Discard, rc, f.position); err != nil {
			return 0, err
		}
	}
	n, err := rc.Read(p)
	f.position += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (f *vaultFile) ReadAt(p []byte, off int64) (int, error) {
	f.position = off
	return f.Read(p)
}

func (f *vaultFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.position = offset
	case io.SeekCurrent:
		f.position += offset
	case io.SeekEnd:
		f.position = f.size + offset
	}
	return f.position, nil
}

func (f *vaultFile) Write([]byte) (int, error) { return 0, errReadOnly }

func (f *vaultFile) Truncate(int64) error { return errReadOnly }

func (f *vaultFile) Close() error {
	f.closed = true
	return nil
}

func (f *vaultFile) Lock() error   { return nil }
func (f *vaultFile) Unlock() error { return nil }

// --- fileInfo ---

type fileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

func (i *fileInfo) Name() string       { return i.name }
func (i *fileInfo) Size() int64        { return i.size }
func (i *fileInfo) Mode() os.FileMode  { return i.mode }
func (i *fileInfo) ModTime() time.Time { return i.modTime }
func (i *fileInfo) IsDir() bool        { return i.isDir }
func (i *fileInfo) Sys() interface{}   { return nil }
