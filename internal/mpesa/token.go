package mpesa

import (
	"context"
	"log/slog"
	"time"
)

// tokenSafetyMargin is subtracted from the provider expiry before caching.
const tokenSafetyMargin = time.Minute

type Authenticator interface {
	Authenticate(ctx context.Context) (AccessToken, error)
}

type TokenCache interface {
	// GetToken returns "" on a miss.
	GetToken(ctx context.Context, key string) (string, error)
	SetToken(ctx context.Context, key, token string, ttl time.Duration) error
}

// TokenSource hands out access tokens, reusing a cached one until shortly before it expires.
// Without a cache every call authenticates.
type TokenSource struct {
	auth  Authenticator
	cache TokenCache
	key   string
}

func NewTokenSource(auth Authenticator, cache TokenCache, key string) *TokenSource {
	return &TokenSource{auth: auth, cache: cache, key: "mpesa:token:" + key}
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if s.cache != nil {
		cached, err := s.cache.GetToken(ctx, s.key)
		if err != nil {
			slog.WarnContext(ctx, "token cache read failed", slog.Any("error", err))
		} else if cached != "" {
			return cached, nil
		}
	}

	token, err := s.auth.Authenticate(ctx)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		if ttl := time.Until(token.ExpiresAt) - tokenSafetyMargin; ttl > 0 {
			if err := s.cache.SetToken(ctx, s.key, token.Value, ttl); err != nil {
				slog.WarnContext(ctx, "token cache write failed", slog.Any("error", err))
			}
		}
	}
	return token.Value, nil
}
