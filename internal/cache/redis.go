package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/transkenya/config"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	return NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}))
}

func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) GetToken(ctx context.Context, key string) (string, error) {
	token, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

func (c *RedisCache) SetToken(ctx context.Context, key, token string, ttl time.Duration) error {
	return c.client.Set(ctx, key, token, ttl).Err()
}

// AcquireSeatHold reserves a seat for owner for ttl. Re-acquiring a hold the owner already
// has succeeds. The store's uniqueness constraint stays authoritative; holds only keep
// contested seats away from the gateway.
func (c *RedisCache) AcquireSeatHold(ctx context.Context, routeFrom, routeTo string, date time.Time, seat int, owner string, ttl time.Duration) (bool, error) {
	key := seatHoldKey(routeFrom, routeTo, date, seat)
	ok, err := c.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil || ok {
		return ok, err
	}
	current, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return c.client.SetNX(ctx, key, owner, ttl).Result()
		}
		return false, err
	}
	return current == owner, nil
}

var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (c *RedisCache) ReleaseSeatHold(ctx context.Context, routeFrom, routeTo string, date time.Time, seat int, owner string) error {
	return releaseIfOwner.Run(ctx, c.client, []string{seatHoldKey(routeFrom, routeTo, date, seat)}, owner).Err()
}

func seatHoldKey(routeFrom, routeTo string, date time.Time, seat int) string {
	return fmt.Sprintf("hold:route:%s:%s:date:%s:seat:%d",
		strings.ToLower(routeFrom), strings.ToLower(routeTo), date.Format("2006-01-02"), seat)
}
