package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestService_RaiseRequiresKindAndMessage(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Raise(context.Background(), Alert{Message: "x"}); err != ErrInvalidAlert {
		t.Fatalf("expected ErrInvalidAlert, got %v", err)
	}
	if err := svc.Raise(context.Background(), Alert{Kind: KindHandlerFailed}); err != ErrInvalidAlert {
		t.Fatalf("expected ErrInvalidAlert, got %v", err)
	}
}

func TestService_RaiseStampsDefaults(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0) }

	if err := svc.Raise(context.Background(), Alert{Kind: KindAmbiguousTenant, Message: "two tenants own +15550001111"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	got := repo.Alerts()
	if len(got) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(got))
	}
	if got[0].ID == "" || got[0].Severity != SeverityHigh || !got[0].CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("defaults not applied: %+v", got[0])
	}
	if repo.Count(KindAmbiguousTenant) != 1 {
		t.Fatalf("expected count 1")
	}
}

func TestRedisStreamRepo_Append(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	svc := NewService(NewRedisStreamRepo(rdb, "ops:alerts"))
	err := svc.Raise(context.Background(), Alert{
		TenantID: "t1",
		Kind:     KindNotificationFailed,
		Severity: SeverityLow,
		Message:  "sms send failed",
		Metadata: map[string]string{"channel": "sms"},
	})
	if err != nil {
		t.Fatalf("raise: %v", err)
	}

	msgs, err := rdb.XRange(context.Background(), "ops:alerts", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 stream entry, got %d", len(msgs))
	}
	if msgs[0].Values["kind"] != "notification_failed" || msgs[0].Values["tenant_id"] != "t1" {
		t.Fatalf("unexpected entry: %v", msgs[0].Values)
	}
}
