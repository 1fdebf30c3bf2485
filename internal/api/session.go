package api

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errExpiredToken = errors.New("bearer token expired")
)

// Session is the authentication context passed explicitly to every backend
// call. The token is opaque; when it parses as a JWT its expiry is honoured
// before any request goes out.
type Session struct {
	token     string
	expiresAt time.Time
}

// NewSession builds a session from a raw bearer token.
func NewSession(token string) (*Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, authError("", 0, errMissingToken)
	}
	s := &Session{token: token}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err == nil && claims.ExpiresAt != nil {
		s.expiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// SessionFromFile reads a token persisted by a previous login.
func SessionFromFile(path string) (*Session, error) {
	if path == "" {
		return nil, authError("", 0, errMissingToken)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, authError("", 0, fmt.Errorf("%w: no token file at %s", errMissingToken, path))
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}
	return NewSession(string(b))
}

// SessionFromRequest extracts the caller's bearer token.
func SessionFromRequest(r *http.Request) (*Session, error) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return nil, authError("", 0, errMissingToken)
	}
	return NewSession(h)
}

// ResolveSession prefers an explicit token and falls back to the token file.
func ResolveSession(token, tokenFile string) (*Session, error) {
	if strings.TrimSpace(token) != "" {
		return NewSession(token)
	}
	return SessionFromFile(tokenFile)
}

// SaveToken persists a token for later CLI invocations.
func SaveToken(path, token string) error {
	if _, err := NewSession(token); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	return os.WriteFile(path, []byte(strings.TrimSpace(token)+"\n"), 0600)
}

func (s *Session) Token() string {
	return s.token
}

// ExpiresAt is zero for opaque tokens.
func (s *Session) ExpiresAt() time.Time {
	return s.expiresAt
}

// Check reports an auth error when the token is known to be expired at now.
func (s *Session) Check(now time.Time) error {
	if s == nil || s.token == "" {
		return authError("", 0, errMissingToken)
	}
	if !s.expiresAt.IsZero() && !now.Before(s.expiresAt) {
		return authError("", 0, errExpiredToken)
	}
	return nil
}

// Digest identifies the session without exposing the token.
func (s *Session) Digest() string {
	sum := sha256.Sum256([]byte(s.token))
	return hex.EncodeToString(sum[:8])
}

func (s *Session) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.token)
}
