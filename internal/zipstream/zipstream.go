// Package zipstream serializes an ordered sequence of named streams into
// a single zip archive written incrementally to an output sink, so a
// download of any size runs in constant memory.
package zipstream

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
)

// fallbackName is used when normalization leaves an entry nameless.
const fallbackName = "file"

// Entry is one item to be packaged. A nil Body marks an explicit
// directory entry, written with a trailing slash and no content.
type Entry struct {
	Name     string
	Modified time.Time
	Body     io.ReadCloser
}

// Write packages the entries into w in order. Every Body is closed
// exactly once, whether the archive completes or aborts partway. A
// failure while reading one input aborts the whole write and leaves the
// sink truncated; callers stream to destinations with no rollback
// anyway.
func Write(ctx context.Context, w io.Writer, entries []Entry) error {
	remaining := entries
	defer func() {
		for _, e := range remaining {
			if e.Body != nil {
				_ = e.Body.Close()
			}
		}
	}()

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	for len(remaining) > 0 {
		e := remaining[0]
		remaining = remaining[1:]

		err := writeEntry(ctx, zw, e)
		if e.Body != nil {
			if cerr := e.Body.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("close %s: %w", e.Name, cerr)
			}
		}
		if err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func writeEntry(ctx context.Context, zw *zip.Writer, e Entry) error {
	hdr := &zip.FileHeader{
		Name:     NormalizeName(e.Name),
		Method:   zip.Deflate,
		Modified: e.Modified,
	}

	if e.Body == nil {
		if !strings.HasSuffix(hdr.Name, "/") {
			hdr.Name += "/"
		}
		hdr.Method = zip.Store
		if _, err := zw.CreateHeader(hdr); err != nil {
			return fmt.Errorf("add directory %s: %w", hdr.Name, err)
		}
		return nil
	}

	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add entry %s: %w", hdr.Name, err)
	}
	if err := copyCancelable(ctx, fw, e.Body); err != nil {
		return fmt.Errorf("stream entry %s: %w", hdr.Name, err)
	}
	return nil
}

// NormalizeName converts an entry name to zip form: backslashes become
// forward slashes, leading slashes are stripped, and an empty result
// falls back to a literal placeholder.
func NormalizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return fallbackName
	}
	return name
}

func copyCancelable(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("archive canceled: %w", ctx.Err())
		default:
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
