package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/filebay/filebay/internal/share"
)

type shareCreateRequest struct {
	Tab  string `json:"tab"`
	Path string `json:"path"`
	TTL  string `json:"ttl,omitempty"` // Go duration string, empty = configured default
}

type shareCreateResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleShareCreate serves POST /api/shares.
func (s *Server) handleShareCreate(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("share_create", rec, time.Now())
	w = rec

	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.shares == nil {
		s.jsonError(w, "share links not configured", http.StatusNotImplemented)
		return
	}
	var req shareCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ns, err := tabParam(req.Tab)
	if err != nil {
		s.storeError(w, err)
		return
	}

	var ttl time.Duration
	if req.TTL != "" {
		ttl, err = time.ParseDuration(req.TTL)
		if err != nil {
			s.jsonError(w, "invalid ttl", http.StatusBadRequest)
			return
		}
	}

	// A share link for a missing entry would only ever 404; refuse early.
	entry, err := s.store.Stat(ns, req.Path)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if entry.IsDirectory {
		s.jsonError(w, "directories cannot be shared", http.StatusUnprocessableEntity)
		return
	}

	token, expiresAt, err := s.shares.Issue(ns, entry.RelativePath, ttl)
	if err != nil {
		s.storeError(w, err)
		return
	}

	if s.m != nil {
		s.m.SharesIssued.Inc()
	}
	if s.audit != nil {
		s.audit.LogShare("issued", ns.String(), entry.RelativePath, "", remoteIP(r))
	}
	s.writeJSON(w, shareCreateResponse{
		Token:     token,
		URL:       s.shareURL(token),
		ExpiresAt: expiresAt,
	})
}

// handleShareQR serves GET /api/shares/qr?token=...&size=... as a PNG.
func (s *Server) handleShareQR(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("share_qr", rec, time.Now())
	w = rec

	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.shares == nil {
		s.jsonError(w, "share links not configured", http.StatusNotImplemented)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		s.jsonError(w, "missing token", http.StatusBadRequest)
		return
	}
	// Only render QR codes for tokens this server actually issued.
	if _, _, err := s.shares.Resolve(token); err != nil {
		s.jsonError(w, "invalid share token", http.StatusNotFound)
		return
	}

	size := 256
	if v := r.URL.Query().Get("size"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 64 || parsed > 2048 {
			s.jsonError(w, "size must be between 64 and 2048", http.StatusBadRequest)
			return
		}
		size = parsed
	}

	png, err := share.QRCode(s.shareURL(token), size)
	if err != nil {
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// handleShareDownload serves GET /s/{token}: the unauthenticated share
// redemption path. Every failure maps to the same 404 so tokens cannot
// be probed for shape or expiry.
func (s *Server) handleShareDownload(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("share_download", rec, time.Now())
	w = rec

	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.shares == nil {
		s.jsonError(w, "not found", http.StatusNotFound)
		return
	}
	token := strings.TrimPrefix(r.URL.Path, "/s/")
	if token == "" || strings.Contains(token, "/") {
		s.jsonError(w, "not found", http.StatusNotFound)
		return
	}

	ns, rel, err := s.shares.Resolve(token)
	if err != nil {
		if s.audit != nil {
			s.audit.LogShare("rejected", "", "", err.Error(), remoteIP(r))
		}
		s.jsonError(w, "not found", http.StatusNotFound)
		return
	}

	if s.audit != nil {
		s.audit.LogShare("redeemed", ns.String(), rel, "", remoteIP(r))
	}
	s.serveFile(w, r, ns, rel, true, 0)
}

// shareURL builds the externally visible link for a token. Without a
// configured base URL the path alone is returned and the client prefixes
// its own origin.
func (s *Server) shareURL(token string) string {
	base := strings.TrimSuffix(s.cfg.Share.BaseURL, "/")
	return base + "/s/" + token
}
