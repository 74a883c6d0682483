package mpesa

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context) (AccessToken, error) {
	args := m.Called(ctx)
	return args.Get(0).(AccessToken), args.Error(1)
}

type MockTokenCache struct {
	mock.Mock
}

func (m *MockTokenCache) GetToken(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockTokenCache) SetToken(ctx context.Context, key, token string, ttl time.Duration) error {
	args := m.Called(ctx, key, token, ttl)
	return args.Error(0)
}

func TestTokenSource_NoCacheAuthenticatesEveryTime(t *testing.T) {
	auth := &MockAuthenticator{}
	ctx := context.Background()
	auth.On("Authenticate", ctx).Return(AccessToken{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil).Twice()

	source := NewTokenSource(auth, nil, "key")
	for i := 0; i < 2; i++ {
		token, err := source.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "tok", token)
	}
	auth.AssertExpectations(t)
}

func TestTokenSource_CacheHit(t *testing.T) {
	auth := &MockAuthenticator{}
	cache := &MockTokenCache{}
	ctx := context.Background()
	cache.On("GetToken", ctx, "mpesa:token:key").Return("cached", nil).Once()

	token, err := NewTokenSource(auth, cache, "key").Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cached", token)
	auth.AssertNotCalled(t, "Authenticate", mock.Anything)
}

func TestTokenSource_CacheMissStoresToken(t *testing.T) {
	auth := &MockAuthenticator{}
	cache := &MockTokenCache{}
	ctx := context.Background()
	cache.On("GetToken", ctx, "mpesa:token:key").Return("", nil).Once()
	auth.On("Authenticate", ctx).Return(AccessToken{Value: "fresh", ExpiresAt: time.Now().Add(time.Hour)}, nil).Once()
	cache.On("SetToken", ctx, "mpesa:token:key", "fresh", mock.MatchedBy(func(ttl time.Duration) bool {
		return ttl > 58*time.Minute && ttl <= 59*time.Minute
	})).Return(nil).Once()

	token, err := NewTokenSource(auth, cache, "key").Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
	auth.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestTokenSource_CacheErrorFallsBack(t *testing.T) {
	auth := &MockAuthenticator{}
	cache := &MockTokenCache{}
	ctx := context.Background()
	cache.On("GetToken", ctx, mock.Anything).Return("", errors.New("redis down")).Once()
	cache.On("SetToken", ctx, mock.Anything, "fresh", mock.Anything).Return(errors.New("redis down")).Once()
	auth.On("Authenticate", ctx).Return(AccessToken{Value: "fresh", ExpiresAt: time.Now().Add(time.Hour)}, nil).Once()

	token, err := NewTokenSource(auth, cache, "key").Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
}

func TestTokenSource_AuthError(t *testing.T) {
	auth := &MockAuthenticator{}
	ctx := context.Background()
	auth.On("Authenticate", ctx).Return(AccessToken{}, errors.New("bad credentials")).Once()

	_, err := NewTokenSource(auth, nil, "key").Token(ctx)
	assert.EqualError(t, err, "bad credentials")
}
