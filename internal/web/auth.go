package web

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// sessionCookieName carries the session token for browser clients. API
// clients may send the same token as a bearer credential instead.
const sessionCookieName = "filebay_session"

const sessionIssuer = "filebay"

// sessionClaims is the payload of a session token.
type sessionClaims struct {
	jwt.RegisteredClaims
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleLogin verifies the admin password and issues a session token as
// both a cookie and a JSON body.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	defer s.instrument("login", rec, time.Now())
	w = rec

	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.Auth.PasswordHash), []byte(req.Password)); err != nil {
		if s.audit != nil {
			s.audit.LogAuth("", "password", "denied", "wrong password", remoteIP(r))
		}
		// Same answer for wrong password and empty password.
		s.jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	expiresAt := time.Now().Add(s.cfg.Auth.SessionTTL.Std())
	token, err := s.issueSession(expiresAt)
	if err != nil {
		log.Error().Err(err).Msg("failed to sign session token")
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.audit != nil {
		s.audit.LogAuth("admin", "password", "allowed", "", remoteIP(r))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.writeJSON(w, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func (s *Server) issueSession(expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.sessionSecret)
}

// verifySession parses and validates a session token.
func (s *Server) verifySession(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.sessionSecret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid session token")
	}
	return nil
}

// withAuth gates a handler behind a valid session. The token is taken
// from the session cookie or an Authorization bearer header.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractSessionToken(r)
		if token == "" {
			s.jsonError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		if err := s.verifySession(token); err != nil {
			if s.audit != nil {
				s.audit.LogAuth("", "session", "denied", err.Error(), remoteIP(r))
			}
			s.jsonError(w, "invalid or expired session", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func extractSessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if c, err := r.Cookie(sessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// remoteIP extracts the client address without the port.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
