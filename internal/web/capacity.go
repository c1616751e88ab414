package web

import (
	"net/http"
	"time"

	"github.com/filebay/filebay/internal/vault"
)

// handleCapacity serves GET /api/capacity. Without a tab parameter both
// namespaces are reported.
func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("capacity", rec, time.Now())
	w = rec

	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tab := r.URL.Query().Get("tab")
	namespaces := vault.Namespaces
	if tab != "" {
		ns, err := vault.ParseNamespace(tab)
		if err != nil {
			s.storeError(w, err)
			return
		}
		namespaces = []vault.Namespace{ns}
	}

	snapshots := make([]vault.CapacitySnapshot, 0, len(namespaces))
	for _, ns := range namespaces {
		snap, err := s.store.Capacity(ns)
		if err != nil {
			s.storeError(w, err)
			return
		}
		snapshots = append(snapshots, snap)
	}
	s.writeJSON(w, map[string]interface{}{"capacity": snapshots})
}
