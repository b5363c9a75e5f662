package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func smsCred(tenantID string) Credential {
	return Credential{TenantID: tenantID, Provider: ProviderSMS, Fields: map[string]string{
		"account_sid": "AC1", "auth_token": "tok", "from": "+15550001111",
	}}
}

func TestGateway_CachesWithinTTL(t *testing.T) {
	src := NewMemorySource()
	src.Put(smsCred("t1"))
	cache := NewMemoryCache()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	g := NewGateway(src, cache, 10*time.Minute)
	if g.ttl != MaxTTL {
		t.Fatalf("ttl must be clamped to %s, got %s", MaxTTL, g.ttl)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := g.Get(ctx, "t1", ProviderSMS); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if src.Calls() != 1 {
		t.Fatalf("expected one source lookup, got %d", src.Calls())
	}

	src.Revoke("t1", ProviderSMS)
	now = now.Add(MaxTTL)
	_, err := g.Get(ctx, "t1", ProviderSMS)
	var nce *NotConfiguredError
	if !errors.As(err, &nce) {
		t.Fatalf("revoked credential must stop working after the ttl, got %v", err)
	}
}

func TestGateway_RejectsUnknownProvider(t *testing.T) {
	g := NewGateway(NewMemorySource(), nil, time.Minute)
	if _, err := g.Get(context.Background(), "t1", Provider("fax")); !errors.Is(err, ErrInvalidProvider) {
		t.Fatalf("expected ErrInvalidProvider, got %v", err)
	}
}

func TestRedisCache_RoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	src := NewMemorySource()
	src.Put(smsCred("t1"))
	g := NewGateway(src, NewRedisCache(client), 30*time.Second)
	ctx := context.Background()

	c, err := g.Get(ctx, "t1", ProviderSMS)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Field("auth_token") != "tok" {
		t.Fatalf("unexpected credential %+v", c)
	}
	if ttl := mr.TTL("cred:t1:sms"); ttl != 30*time.Second {
		t.Fatalf("unexpected ttl %s", ttl)
	}
	if _, err := g.Get(ctx, "t1", ProviderSMS); err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if src.Calls() != 1 {
		t.Fatalf("expected cache hit, source calls = %d", src.Calls())
	}

	mr.FastForward(31 * time.Second)
	if _, err := g.Get(ctx, "t1", ProviderSMS); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if src.Calls() != 2 {
		t.Fatalf("expected source lookup after expiry, got %d", src.Calls())
	}

	if err := g.Invalidate(ctx, "t1", ProviderSMS); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("cred:t1:sms") {
		t.Fatalf("expected key removed")
	}
}

func TestCredential_Require(t *testing.T) {
	c := Credential{TenantID: "t1", Provider: ProviderEmail, Fields: map[string]string{"host": "smtp.example.com"}}
	err := c.Require("host", "from")
	var nce *NotConfiguredError
	if !errors.As(err, &nce) || len(nce.Missing) != 1 || nce.Missing[0] != "from" {
		t.Fatalf("expected missing from, got %v", err)
	}
}

func TestPostgresSource_RevokedIsNotConfigured(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT fields\\s+FROM tenant_credentials").
		WithArgs("t1", "calendar").
		WillReturnRows(sqlmock.NewRows([]string{"fields"}))
	mock.ExpectQuery("SELECT fields\\s+FROM tenant_credentials").
		WithArgs("t1", "sms").
		WillReturnRows(sqlmock.NewRows([]string{"fields"}).AddRow([]byte(`{"account_sid":"AC1"}`)))

	s := NewPostgresSource(db, 0)
	var nce *NotConfiguredError
	if _, err := s.Get(context.Background(), "t1", ProviderCalendar); !errors.As(err, &nce) {
		t.Fatalf("expected NotConfiguredError, got %v", err)
	}
	c, err := s.Get(context.Background(), "t1", ProviderSMS)
	if err != nil || c.Field("account_sid") != "AC1" {
		t.Fatalf("unexpected %+v %v", c, err)
	}
}
