package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
)

// ErrTenantBusy means the tenant already has the maximum number of handlers running.
var ErrTenantBusy = errors.New("tenant concurrency limit reached")

// TenantLimiter bounds concurrent handler executions per tenant.
type TenantLimiter interface {
	Acquire(ctx context.Context, tenantID string) (release func(), err error)
}

// tenantSlotAcquire takes one of ARGV[1] slots on KEYS[1]. Every successful
// acquire pushes the key's expiry out by ARGV[2] ms, so counts leaked by a
// crashed process clear once the tenant goes quiet for one TTL.
var tenantSlotAcquire = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  if redis.call('PTTL', KEYS[1]) < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
  end
  return 0
end
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

var tenantSlotRelease = redis.NewScript(`
if redis.call('DECR', KEYS[1]) <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// RedisTenantLimiter shares the per-tenant cap across API replicas.
type RedisTenantLimiter struct {
	client *redis.Client
	limit  int
	ttl    time.Duration
}

func NewRedisTenantLimiter(client *redis.Client, limit int, ttl time.Duration) *RedisTenantLimiter {
	if limit <= 0 {
		limit = 1
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisTenantLimiter{client: client, limit: limit, ttl: ttl}
}

func tenantSlotKey(tenantID string) string { return "webhook:inflight:" + tenantID }

// Acquire fails open when Redis is unreachable: the cap protects downstream
// capacity, it is not a correctness guarantee.
func (l *RedisTenantLimiter) Acquire(ctx context.Context, tenantID string) (func(), error) {
	key := tenantSlotKey(tenantID)
	got, err := tenantSlotAcquire.Run(ctx, l.client, []string{key}, l.limit, l.ttl.Milliseconds()).Int()
	if err != nil {
		logger.From(ctx).WarnContext(ctx, "tenant concurrency cap unavailable", "err", err)
		return func() {}, nil
	}
	if got != 1 {
		return nil, apperr.Transient("tenant concurrency", ErrTenantBusy)
	}
	return func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := tenantSlotRelease.Run(relCtx, l.client, []string{key}).Err(); err != nil {
			logger.From(ctx).WarnContext(ctx, "release tenant concurrency cap", "err", err)
		}
	}, nil
}

type noopLimiter struct{}

func (noopLimiter) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

// InFlight bounds the number of webhook requests processed at once by this
// process. A request that cannot get a slot within maxWait gets 503 so the
// provider redelivers later.
func InFlight(max int64, maxWait time.Duration) gin.HandlerFunc {
	sem := semaphore.NewWeighted(max)
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), maxWait)
		err := sem.Acquire(ctx, 1)
		cancel()
		if err != nil {
			logger.FromGin(c).WarnContext(c.Request.Context(), "webhook in-flight limit reached", "max", max)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "busy"})
			return
		}
		defer sem.Release(1)
		c.Next()
	}
}
