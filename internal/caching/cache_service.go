package caching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type CacheService interface {
	// OAuth state nonces for the connect flow
	SetOAuthState(ctx context.Context, state string, tenantID uuid.UUID, ttl time.Duration) error
	ConsumeOAuthState(ctx context.Context, state string) (uuid.UUID, error)

	// Access token mirror, keyed per tenant+provider. Cache misses return
	// empty string, nil.
	SetAccessToken(ctx context.Context, tenantID uuid.UUID, provider, token string, ttl time.Duration) error
	GetAccessToken(ctx context.Context, tenantID uuid.UUID, provider string) (string, error)
	DeleteAccessToken(ctx context.Context, tenantID uuid.UUID, provider string) error

	// Rate limiting
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Generic string operations
	SetString(ctx context.Context, key string, value string, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept redis://host:port style addresses as well as bare host:port
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		logrus.WithError(pingErr).WithField("addr", parsedAddr).Warn("redis ping failed on initialization")
	}

	return &redisCacheService{client: client}
}

func (r *redisCacheService) SetOAuthState(ctx context.Context, state string, tenantID uuid.UUID, ttl time.Duration) error {
	key := fmt.Sprintf("bookero:oauth_state:%s", state)
	return r.client.Set(ctx, key, tenantID.String(), ttl).Err()
}

// ConsumeOAuthState deletes the nonce as it reads it, so a state value can
// only ever be redeemed once.
func (r *redisCacheService) ConsumeOAuthState(ctx context.Context, state string) (uuid.UUID, error) {
	key := fmt.Sprintf("bookero:oauth_state:%s", state)
	val, err := r.client.GetDel(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return uuid.Nil, fmt.Errorf("state not found or already used")
		}
		return uuid.Nil, err
	}
	return uuid.Parse(val)
}

func (r *redisCacheService) SetAccessToken(ctx context.Context, tenantID uuid.UUID, provider, token string, ttl time.Duration) error {
	key := fmt.Sprintf("bookero:access_token:%s:%s", provider, tenantID.String())
	return r.client.Set(ctx, key, token, ttl).Err()
}

func (r *redisCacheService) GetAccessToken(ctx context.Context, tenantID uuid.UUID, provider string) (string, error) {
	key := fmt.Sprintf("bookero:access_token:%s:%s", provider, tenantID.String())
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil // cache miss
		}
		return "", err
	}
	return val, nil
}

func (r *redisCacheService) DeleteAccessToken(ctx context.Context, tenantID uuid.UUID, provider string) error {
	key := fmt.Sprintf("bookero:access_token:%s:%s", provider, tenantID.String())
	return r.client.Del(ctx, key).Err()
}

func (r *redisCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	cacheKey := fmt.Sprintf("bookero:ratelimit:%s", key)
	count, err := r.client.Incr(ctx, cacheKey).Result()
	if err != nil {
		return true, err
	}

	// Set expiry on first request
	if count == 1 {
		r.client.Expire(ctx, cacheKey, window)
	}

	return count > int64(limit), nil
}

func (r *redisCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCacheService) GetString(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil // cache miss
		}
		return "", err
	}
	return val, nil
}
