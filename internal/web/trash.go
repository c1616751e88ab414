package web

import (
	"encoding/json"
	"net/http"
	"time"
)

// handleTrashList serves GET /api/trash.
func (s *Server) handleTrashList(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("trash_list", rec, time.Now())
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
	entries, err := s.store.ListTrash(ns)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if s.m != nil {
		s.m.TrashEntries.WithLabelValues(ns.String()).Set(float64(len(entries)))
	}
	s.writeJSON(w, map[string]interface{}{
		"tab":     ns.String(),
		"entries": entries,
	})
}

type trashIDsRequest struct {
	Tab string   `json:"tab"`
	IDs []string `json:"ids"`
}

// handleTrashRestore serves POST /api/trash/restore.
func (s *Server) handleTrashRestore(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("trash_restore", rec, time.Now())
	w = rec

	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req trashIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ns, err := tabParam(req.Tab)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if err := s.store.RestoreFromTrash(ns, req.IDs); err != nil {
		if s.audit != nil {
			s.audit.LogFileOp("restore", ns.String(), "", "failed", err.Error(), remoteIP(r))
		}
		s.storeError(w, err)
		return
	}
	if s.audit != nil {
		s.audit.LogFileOp("restore", ns.String(), "", "ok", "", remoteIP(r))
	}
	s.broadcast("restore", ns, "")
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// handleTrashPurge serves POST /api/trash/purge. Purging is permanent.
func (s *Server) handleTrashPurge(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("trash_purge", rec, time.Now())
	w = rec

	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req trashIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ns, err := tabParam(req.Tab)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if err := s.store.PurgeTrash(ns, req.IDs); err != nil {
		if s.audit != nil {
			s.audit.LogFileOp("purge", ns.String(), "", "failed", err.Error(), remoteIP(r))
		}
		s.storeError(w, err)
		return
	}
	if s.audit != nil {
		s.audit.LogFileOp("purge", ns.String(), "", "ok", "", remoteIP(r))
	}
	s.broadcast("purge", ns, "")
	s.writeJSON(w, map[string]string{"status": "ok"})
}
