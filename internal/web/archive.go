package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/filebay/filebay/internal/zipstream"
)

// handleArchive serves GET /api/files/archive: a streamed zip over the
// selected paths. Once streaming has begun an error can only truncate
// the archive; the status line is already on the wire.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("archive", rec, time.Now())
	w = rec

	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ns, err := tabParam(r.URL.Query().Get("tab"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	paths := r.URL.Query()["path"]

	entries, err := s.store.OpenStreamsForZip(ns, paths)
	if err != nil {
		s.storeError(w, err)
		return
	}

	name := fmt.Sprintf("filebay-%s.zip", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

	counting := &countingWriter{w: w}
	if err := zipstream.Write(r.Context(), counting, entries); err != nil {
		log.Debug().Err(err).Int("entries", len(entries)).Msg("archive stream aborted")
	}
	if s.m != nil {
		s.m.BytesDownloaded.Add(float64(counting.n))
	}
	if s.audit != nil {
		s.audit.LogFileOp("archive", ns.String(), "", "ok", fmt.Sprintf("%d entries", len(entries)), remoteIP(r))
	}
}

type countingWriter struct {
	w http.ResponseWriter
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
