package vault

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// stagingSuffix marks in-progress upload files in the staging directory.
const stagingSuffix = ".upload"

// SaveUpload writes the incoming stream to a staging file under the
// namespace's staging directory, verifies the byte count against
// declaredSize, then publishes it into the directory at destRel with a
// same-volume rename. A name collision at the destination is resolved by
// appending " (N)" before the extension. On any failure, including
// cancellation, the staging file is removed and no partial file appears
// at the destination.
func (s *Store) SaveUpload(ctx context.Context, ns Namespace, destRel, fileName string, r io.Reader, declaredSize int64) (ResourceEntry, error) {
	if declaredSize < 0 {
		return ResourceEntry{}, fmt.Errorf("negative upload size: %w", ErrInvalidArgument)
	}
	if s.maxUploadBytes > 0 && declaredSize > s.maxUploadBytes {
		return ResourceEntry{}, fmt.Errorf("upload of %d bytes exceeds limit of %d: %w", declaredSize, s.maxUploadBytes, ErrTooLarge)
	}

	// Browsers may send a full client-side path; only the leaf counts.
	name := leafName(fileName)
	if err := ValidateLeafName(name); err != nil {
		return ResourceEntry{}, err
	}

	if err := guardReserved(destRel); err != nil {
		return ResourceEntry{}, err
	}
	destDir, err := s.resolve(ns, destRel)
	if err != nil {
		return ResourceEntry{}, err
	}
	fi, err := os.Stat(destDir)
	if err != nil {
		if os.IsNotExist(err) {
			return ResourceEntry{}, fmt.Errorf("destination %q: %w", destRel, ErrNotFound)
		}
		return ResourceEntry{}, fmt.Errorf("stat destination: %w", err)
	}
	if !fi.IsDir() {
		return ResourceEntry{}, fmt.Errorf("destination %q: not a directory: %w", destRel, ErrNotFound)
	}

	staged, err := s.stage(ctx, ns, r, declaredSize)
	if err != nil {
		return ResourceEntry{}, err
	}

	// Same-volume rename: staging lives under the same namespace root as
	// the destination, so publishing is atomic.
	final := filepath.Join(destDir, availableName(destDir, name))
	if err := os.Rename(staged, final); err != nil {
		_ = os.Remove(staged)
		return ResourceEntry{}, fmt.Errorf("publish upload: %w", err)
	}

	info, err := os.Stat(final)
	if err != nil {
		return ResourceEntry{}, fmt.Errorf("stat uploaded file: %w", err)
	}
	return entryAt(path.Join(toSlashRel(destRel), filepath.Base(final)), info), nil
}

// stage copies the stream into a fresh exclusively-created staging file
// and verifies its size. The returned path lives in the namespace's
// staging directory; the caller owns it until the final rename.
func (s *Store) stage(ctx context.Context, ns Namespace, r io.Reader, declaredSize int64) (string, error) {
	stagingDir := filepath.Join(s.Root(ns), stagingDirName)
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	stagedPath := filepath.Join(stagingDir, uuid.New().String()+stagingSuffix)
	f, err := os.OpenFile(stagedPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}

	discard := func() {
		_ = f.Close()
		_ = os.Remove(stagedPath)
	}

	// Reading one byte past the declared size is enough to prove the
	// stream is over-long; anything beyond that never reaches the disk.
	written, err := copyContext(ctx, f, io.LimitReader(r, declaredSize+1))
	if err != nil {
		discard()
		return "", err
	}
	if written != declaredSize {
		discard()
		return "", fmt.Errorf("staged %d bytes, expected %d: %w", written, declaredSize, ErrInvalidArgument)
	}

	// Skip fsync during tests, matching syncedWriteFile.
	if os.Getenv("FILEBAY_TEST") == "" {
		if err := f.Sync(); err != nil {
			discard()
			return "", fmt.Errorf("sync staging file: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(stagedPath)
		return "", fmt.Errorf("close staging file: %w", err)
	}
	return stagedPath, nil
}

// copyContext copies r to w in fixed-size chunks, checking for
// cancellation between reads so an abandoned connection stops the upload.
func copyContext(ctx context.Context, w io.Writer, r io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, fmt.Errorf("upload canceled: %w", ctx.Err())
		default:
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("write: %w", werr)
			}
			if wn != n {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("read: %w", rerr)
		}
	}
}

// leafName strips any client-supplied directory components from an
// uploaded file name, handling both slash styles.
func leafName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return path.Base(name)
}

// availableName returns name, or name disambiguated with " (N)" before
// the extension when the directory already holds an entry with that name.
// The probe is a plain existence check; concurrent identical uploads can
// still race, and the filesystem decides the winner.
func availableName(dir, name string) string {
	if !fileExists(filepath.Join(dir, name)) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if !fileExists(filepath.Join(dir, candidate)) {
			return candidate
		}
	}
}
