package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStreamRepo appends alerts to a Redis stream consumed by the ops pager.
type RedisStreamRepo struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamRepo(client *redis.Client, stream string) *RedisStreamRepo {
	return &RedisStreamRepo{client: client, stream: stream, maxLen: 100000}
}

func (r *RedisStreamRepo) Append(ctx context.Context, a Alert) error {
	meta := "{}"
	if len(a.Metadata) > 0 {
		b, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("marshal alert metadata: %w", err)
		}
		meta = string(b)
	}

	fields := map[string]any{
		"id":         a.ID,
		"tenant_id":  a.TenantID,
		"kind":       string(a.Kind),
		"severity":   string(a.Severity),
		"event_id":   a.EventID,
		"call_id":    a.CallID,
		"message":    a.Message,
		"metadata":   meta,
		"created_at": a.CreatedAt.UnixMilli(),
	}
	if err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("append alert: %w", err)
	}
	return nil
}
