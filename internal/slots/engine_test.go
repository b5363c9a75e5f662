package slots

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voiceagent-platform/internal/apperr"
)

var scenarioAt = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	e := NewEngine(NewMemoryStore(), "US", 30)
	e.clock = func() time.Time { return scenarioAt.Add(-24 * time.Hour) }
	return e
}

func req(tenantID string, at time.Time, name, phone string) Request {
	return Request{TenantID: tenantID, ScheduledAt: at, DurationMinutes: 30, Contact: Contact{Name: name, Phone: phone}}
}

func TestClaim_SecondCallerConflicts(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	first, err := e.Claim(ctx, req("T", scenarioAt, "alice smith", "555-111-2222"))
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first.Contact.Phone != "+15551112222" || first.Contact.Name != "Alice Smith" {
		t.Fatalf("contact not normalized: %+v", first.Contact)
	}

	_, err = e.Claim(ctx, req("T", scenarioAt, "Bob", "+15553334444"))
	var ce *apperr.ConflictError
	if !errors.As(err, &ce) || ce.Code != apperr.CodeSlotUnavailable {
		t.Fatalf("expected SLOT_UNAVAILABLE conflict, got %v", err)
	}

	claims, err := e.List(ctx, "T", scenarioAt.Add(-time.Hour), scenarioAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(claims) != 1 || claims[0].ClaimID != first.ClaimID {
		t.Fatalf("expected only the first claim, got %+v", claims)
	}
}

func TestClaim_ConcurrentCallersExactlyOneWins(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	const k = 32

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.Claim(ctx, req("T", scenarioAt, "Caller", "+15551112222"))
			mu.Lock()
			defer mu.Unlock()
			var ce *apperr.ConflictError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &ce):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || conflicts != k-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", k-1, successes, conflicts)
	}
}

func TestClaim_TenantsAreIsolated(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.Claim(ctx, req("A", scenarioAt, "Ann", "+15551112222")); err != nil {
		t.Fatalf("tenant A: %v", err)
	}
	if _, err := e.Claim(ctx, req("B", scenarioAt, "Ben", "+15551112222")); err != nil {
		t.Fatalf("tenant B must not be affected by A: %v", err)
	}
	free, err := e.IsFree(ctx, "C", scenarioAt)
	if err != nil || !free {
		t.Fatalf("tenant C should see the instant free, got %v %v", free, err)
	}
}

func TestClaim_SameClaimIDIsIdempotent(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	id := DeliveryClaimID("evt_1", "call_tool_1")

	a, err := e.Claim(ctx, req("T", scenarioAt, "Ann", "+15551112222"), WithClaimID(id))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := e.Claim(ctx, req("T", scenarioAt, "Ann", "+15551112222"), WithClaimID(id))
	if err != nil {
		t.Fatalf("redelivery should return the stored claim: %v", err)
	}
	if a.ClaimID != b.ClaimID || b.ClaimID != id {
		t.Fatalf("claim ids differ: %s %s", a.ClaimID, b.ClaimID)
	}
}

func TestRelease_FreesInstant(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	c, err := e.Claim(ctx, req("T", scenarioAt, "Ann", "+15551112222"))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := e.Release(ctx, "other-tenant", c.ClaimID); !errors.Is(err, ErrClaimNotFound) {
		t.Fatalf("release across tenants must fail, got %v", err)
	}
	if _, err := e.Release(ctx, "T", c.ClaimID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := e.Claim(ctx, req("T", scenarioAt, "Bob", "+15553334444")); err != nil {
		t.Fatalf("instant should be free after release: %v", err)
	}
}

func TestAlternatives_SkipTakenInstants(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	for _, at := range []time.Time{scenarioAt, scenarioAt.Add(30 * time.Minute)} {
		if _, err := e.Claim(ctx, req("T", at, "Ann", "+15551112222")); err != nil {
			t.Fatalf("claim %s: %v", at, err)
		}
	}
	alts, err := e.Alternatives(ctx, "T", scenarioAt, 30, 3, scenarioAt.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("alternatives: %v", err)
	}
	want := []time.Time{scenarioAt.Add(time.Hour), scenarioAt.Add(90 * time.Minute), scenarioAt.Add(2 * time.Hour)}
	if len(alts) != len(want) {
		t.Fatalf("expected %d alternatives, got %v", len(want), alts)
	}
	for i := range want {
		if !alts[i].Equal(want[i]) {
			t.Fatalf("alternative %d: got %s want %s", i, alts[i], want[i])
		}
	}
}

func TestClaim_ValidatesInput(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	cases := []Request{
		{ScheduledAt: scenarioAt, Contact: Contact{Name: "A", Phone: "+15551112222"}},
		{TenantID: "T", Contact: Contact{Name: "A", Phone: "+15551112222"}},
		{TenantID: "T", ScheduledAt: scenarioAt, DurationMinutes: -5, Contact: Contact{Name: "A", Phone: "+15551112222"}},
		{TenantID: "T", ScheduledAt: scenarioAt, Contact: Contact{Name: "A"}},
		{TenantID: "T", ScheduledAt: scenarioAt, Contact: Contact{Name: "A", Phone: "12"}},
	}
	for i, r := range cases {
		_, err := e.Claim(ctx, r)
		var ve *apperr.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestNormalizeContact(t *testing.T) {
	c, err := NormalizeContact(Contact{Name: "  mary   ann  smith ", Email: " Mary@Example.COM "}, "US")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if c.Name != "Mary Ann Smith" {
		t.Fatalf("unexpected name %q", c.Name)
	}
	if c.Email != "mary@example.com" {
		t.Fatalf("unexpected email %q", c.Email)
	}
}
