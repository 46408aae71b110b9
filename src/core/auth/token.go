package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"granite-vision-go/src/core/utils"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

var (
	ErrMissingAccessToken = errors.New("response has no access_token")
	ErrNotAuthenticated   = errors.New("not authenticated")
)

// TokenSource performs one token exchange
type TokenSource interface {
	AcquireToken(ctx context.Context) (string, error)
}

// TokenHolder keeps the process-wide access token. The token is replaced on
// refresh, never mutated, and concurrent refreshes share one exchange.
type TokenHolder struct {
	source TokenSource
	logger *utils.TaggedLogger

	mu    sync.RWMutex
	token string

	group singleflight.Group
}

func NewTokenHolder(source TokenSource, logger *utils.Logger) *TokenHolder {
	return &TokenHolder{
		source: source,
		logger: logger.WithTag("token"),
	}
}

// Token returns the current token, empty before the first successful acquire.
func (h *TokenHolder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// Authenticated reports whether a token is held.
func (h *TokenHolder) Authenticated() bool {
	return h.Token() != ""
}

// Acquire exchanges a fresh token. On failure the held token is cleared.
func (h *TokenHolder) Acquire(ctx context.Context) (string, error) {
	token, err := h.RefreshToken(ctx)
	if err != nil {
		h.Clear()
		return "", err
	}
	return token, nil
}

// RefreshToken exchanges a fresh token and stores it. The held token is left
// untouched when the exchange fails.
func (h *TokenHolder) RefreshToken(ctx context.Context) (string, error) {
	v, err, shared := h.group.Do("token", func() (interface{}, error) {
		token, err := h.source.AcquireToken(ctx)
		if err != nil {
			return "", err
		}
		h.mu.Lock()
		h.token = token
		h.mu.Unlock()
		return token, nil
	})
	if shared {
		h.logger.Debug("token refresh shared with a concurrent caller")
	}
	if err != nil {
		h.logger.Warn("token refresh failed: %v", err)
		return "", err
	}
	return v.(string), nil
}

// Clear drops the held token.
func (h *TokenHolder) Clear() {
	h.mu.Lock()
	h.token = ""
	h.mu.Unlock()
}

// ExpiresAt decodes the exp claim of the held token.
func (h *TokenHolder) ExpiresAt() (time.Time, bool) {
	return TokenExpiry(h.Token())
}

// TokenExpiry reads the exp claim of a JWT-shaped token without verifying the
// signature. Only for diagnostics: validity is decided by the API's 401.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
