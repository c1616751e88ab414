package web

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/filebay/filebay/internal/vault"
)

// handleList serves GET /api/files.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("list", rec, time.Now())
	w = rec

	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	ns, err := tabParam(q.Get("tab"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	field, err := vault.ParseSortField(q.Get("sort"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	dir, err := vault.ParseSortDirection(q.Get("dir"))
	if err != nil {
		s.storeError(w, err)
		return
	}

	entries, err := s.store.List(ns, q.Get("path"), q.Get("filter"), field, dir)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"tab":     ns.String(),
		"path":    q.Get("path"),
		"entries": entries,
	})
}

// handleUpload serves POST /api/files/upload (multipart form, field "file").
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("upload", rec, time.Now())
	w = rec

	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ns, err := tabParam(r.URL.Query().Get("tab"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	destRel := r.URL.Query().Get("path")

	// Cap the whole request body a little above the upload ceiling so a
	// runaway client is cut off at the transport, not after staging.
	if limit := s.cfg.MaxUploadSize.Bytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.jsonError(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	entry, err := s.store.SaveUpload(r.Context(), ns, destRel, header.Filename, file, header.Size)
	if err != nil {
		if s.audit != nil {
			s.audit.LogFileOp("upload", ns.String(), header.Filename, "failed", err.Error(), remoteIP(r))
		}
		s.storeError(w, err)
		return
	}

	if s.m != nil {
		s.m.BytesUploaded.Add(float64(entry.SizeBytes))
	}
	if s.audit != nil {
		s.audit.LogFileOp("upload", ns.String(), entry.RelativePath, "ok", "", remoteIP(r))
	}
	s.broadcast("upload", ns, entry.RelativePath)
	s.writeJSON(w, entry)
}

// handleDownload serves GET /api/files/download as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("download", rec, time.Now())
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
	s.serveFile(w, r, ns, r.URL.Query().Get("path"), true, 0)
}

// handlePreview serves GET /api/files/preview inline, subject to the
// preview size ceiling.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("preview", rec, time.Now())
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
	s.serveFile(w, r, ns, r.URL.Query().Get("path"), false, s.cfg.MaxPreviewSize.Bytes())
}

// serveFile streams one stored file. With attachment set the response
// carries a download disposition; maxSize > 0 refuses larger files.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, ns vault.Namespace, rel string, attachment bool, maxSize int64) {
	rc, entry, err := s.store.OpenRead(ns, rel)
	if err != nil {
		s.storeError(w, err)
		return
	}
	defer func() { _ = rc.Close() }()

	if maxSize > 0 && entry.SizeBytes > maxSize {
		s.jsonError(w, "file too large for preview", http.StatusRequestEntityTooLarge)
		return
	}

	contentType := mime.TypeByExtension(path.Ext(entry.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", entry.SizeBytes))
	disposition := "inline"
	if attachment {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, entry.Name))

	n, err := io.Copy(w, rc)
	if err != nil {
		// Headers are gone; all we can do is log the broken transfer.
		log.Debug().Err(err).Str("path", entry.RelativePath).Msg("download aborted")
	}
	if s.m != nil {
		s.m.BytesDownloaded.Add(float64(n))
	}
	if s.audit != nil {
		s.audit.LogFileOp("download", ns.String(), entry.RelativePath, "ok", "", remoteIP(r))
	}
}

type mkdirRequest struct {
	Tab  string `json:"tab"`
	Path string `json:"path"`
	Name string `json:"name"`
}

// handleMkdir serves POST /api/files/mkdir.
func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("mkdir", rec, time.Now())
	w = rec

	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req mkdirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ns, err := tabParam(req.Tab)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if err := s.store.CreateDirectory(ns, req.Path, req.Name); err != nil {
		s.storeError(w, err)
		return
	}
	s.broadcast("mkdir", ns, path.Join(req.Path, req.Name))
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type renameRequest struct {
	Tab     string `json:"tab"`
	Path    string `json:"path"`
	NewName string `json:"newName"`
}

// handleRename serves POST /api/files/rename.
func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("rename", rec, time.Now())
	w = rec

	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ns, err := tabParam(req.Tab)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if err := s.store.Rename(ns, req.Path, req.NewName); err != nil {
		s.storeError(w, err)
		return
	}
	s.broadcast("rename", ns, req.Path)
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type moveRequest struct {
	Tab    string   `json:"tab"`
	Paths  []string `json:"paths"`
	Target string   `json:"target"`
}

// handleMove serves POST /api/files/move.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("move", rec, time.Now())
	w = rec

	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ns, err := tabParam(req.Tab)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if err := s.store.MoveMany(ns, req.Paths, req.Target); err != nil {
		if s.audit != nil {
			s.audit.LogFileOp("move", ns.String(), req.Target, "failed", err.Error(), remoteIP(r))
		}
		s.storeError(w, err)
		return
	}
	if s.audit != nil {
		s.audit.LogFileOp("move", ns.String(), req.Target, "ok", "", remoteIP(r))
	}
	s.broadcast("move", ns, req.Target)
	s.writeJSON(w, map[string]string{"status": "ok"})
}

type deleteRequest struct {
	Tab   string   `json:"tab"`
	Paths []string `json:"paths"`
}

// handleDelete serves POST /api/files/delete. Deletion is a soft delete:
// the response lists the trash entries the items became.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("delete", rec, time.Now())
	w = rec

	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ns, err := tabParam(req.Tab)
	if err != nil {
		s.storeError(w, err)
		return
	}
	trashed, err := s.store.DeleteMany(ns, req.Paths)
	if err != nil {
		if s.audit != nil {
			s.audit.LogFileOp("delete", ns.String(), "", "failed", err.Error(), remoteIP(r))
		}
		s.storeError(w, err)
		return
	}
	if s.audit != nil {
		for _, entry := range trashed {
			s.audit.LogFileOp("delete", ns.String(), entry.OriginalPath, "ok", "", remoteIP(r))
		}
	}
	s.broadcast("delete", ns, "")
	s.writeJSON(w, map[string]interface{}{"trashed": trashed})
}
