// Package csrf issues and checks per-session anti-forgery tokens.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
)

// HeaderName carries the token on JSON POST requests.
const HeaderName = "X-CSRF-Token"

// tokenBytes gives 256 bits of entropy.
const tokenBytes = 32

// TokenHolder is the slot a token is stored in.
type TokenHolder interface {
	CSRFToken() string
	SetCSRFToken(token string)
}

// Guard issues and validates tokens.
type Guard struct{}

// NewGuard creates a Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// IssueToken stores a fresh token on holder, invalidating the previous one.
func (g *Guard) IssueToken(holder TokenHolder) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	holder.SetCSRFToken(token)
	slog.Debug("CSRF token issued")
	return token, nil
}

// Validate reports whether provided matches the stored token exactly.
func (g *Guard) Validate(holder TokenHolder, provided string) bool {
	stored := holder.CSRFToken()
	if stored == "" || provided == "" {
		slog.Debug("CSRF token missing")
		return false
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) != 1 {
		slog.Debug("CSRF mismatch detected")
		return false
	}
	return true
}
