package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "cred:"}
}

func (c *RedisCache) key(tenantID string, provider Provider) string {
	return c.prefix + tenantID + ":" + string(provider)
}

func (c *RedisCache) Get(ctx context.Context, tenantID string, provider Provider) (Credential, error) {
	raw, err := c.client.Get(ctx, c.key(tenantID, provider)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Credential{}, errCacheMiss
		}
		return Credential{}, err
	}
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Credential{}, err
	}
	return cred, nil
}

func (c *RedisCache) Set(ctx context.Context, cred Credential, ttl time.Duration) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(cred.TenantID, cred.Provider), raw, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, tenantID string, provider Provider) error {
	return c.client.Del(ctx, c.key(tenantID, provider)).Err()
}
