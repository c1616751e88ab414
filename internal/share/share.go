// Package share issues and verifies signed, expiring download links so a
// single entry can be fetched without a session.
package share

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/skip2/go-qrcode"

	"github.com/filebay/filebay/internal/vault"
)

// DefaultTTL bounds share links when the manager is not configured with
// its own default.
const DefaultTTL = 24 * time.Hour

const issuerName = "filebay"

// Claims carries the shared entry's location inside a signed token.
type Claims struct {
	Tab  string `json:"tab"`
	Path string `json:"path"`
	jwt.RegisteredClaims
}

// Manager signs and verifies share tokens with an HMAC secret. Grants
// reference a path, not an inode: a renamed or trashed target makes the
// link dangle.
type Manager struct {
	secret     []byte
	defaultTTL time.Duration
}

// NewManager creates a manager. The secret must be non-empty; a
// non-positive defaultTTL falls back to DefaultTTL.
func NewManager(secret []byte, defaultTTL time.Duration) (*Manager, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("share secret must not be empty")
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Manager{secret: secret, defaultTTL: defaultTTL}, nil
}

// Issue creates a token granting download access to one entry until the
// TTL runs out. A non-positive ttl uses the manager default.
func (m *Manager) Issue(ns vault.Namespace, relPath string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	expiresAt := time.Now().Add(ttl)
	claims := Claims{
		Tab:  ns.String(),
		Path: relPath,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign share token: %w", err)
	}
	return signed, expiresAt, nil
}

// Resolve parses and validates a share token, returning the namespace
// and root-relative path it grants access to.
func (m *Manager) Resolve(tokenString string) (vault.Namespace, string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return 0, "", fmt.Errorf("parse share token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, "", fmt.Errorf("invalid share token")
	}
	ns, err := vault.ParseNamespace(claims.Tab)
	if err != nil {
		return 0, "", fmt.Errorf("share token namespace: %w", err)
	}
	return ns, claims.Path, nil
}

// QRCode renders a share URL as a PNG image, size pixels on a side.
func QRCode(url string, size int) ([]byte, error) {
	png, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}
