package calls

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestFromProvider(t *testing.T) {
	cases := []struct {
		status, reason string
		want           CallStatus
	}{
		{"queued", "", CallStatusQueued},
		{"ringing", "", CallStatusRinging},
		{"in-progress", "", CallStatusInProgress},
		{"forwarding", "", CallStatusInProgress},
		{"ended", "customer-ended-call", CallStatusCompleted},
		{"ended", "customer-did-not-answer", CallStatusNoAnswer},
		{"ended", "customer-busy", CallStatusBusy},
		{"ended", "pipeline-error-openai-llm-failed", CallStatusFailed},
	}
	for _, tc := range cases {
		got, ok := FromProvider(tc.status, tc.reason)
		if !ok || got != tc.want {
			t.Fatalf("FromProvider(%q, %q) = %q, %v; want %q", tc.status, tc.reason, got, ok, tc.want)
		}
	}
	if _, ok := FromProvider("teleporting", ""); ok {
		t.Fatalf("unknown status must not map")
	}
}

func TestService_OutOfOrderEventsNeverRegress(t *testing.T) {
	repo := NewMemoryRepo()
	s := NewService(repo, "US")
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	if err := s.Ended(ctx, "t1", Ended{ProviderCallID: "call_1", Reason: "customer-ended-call", DurationSeconds: 95, At: t0.Add(95 * time.Second)}); err != nil {
		t.Fatalf("ended: %v", err)
	}
	if err := s.StatusChanged(ctx, "t1", "call_1", "in-progress", "", t0.Add(time.Second)); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := s.Started(ctx, "t1", Started{ProviderCallID: "call_1", AssistantID: "asst_1", From: "(555) 111-2222", To: "+15553334444", At: t0}); err != nil {
		t.Fatalf("started: %v", err)
	}

	c, err := s.Get(ctx, "t1", "call_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Status != CallStatusCompleted {
		t.Fatalf("ended call must stay completed, got %s", c.Status)
	}
	if c.DurationSeconds != 95 || c.AssistantID != "asst_1" || c.From != "+15551112222" {
		t.Fatalf("fields not merged: %+v", c)
	}
	if c.StartedAt == nil || !c.StartedAt.Equal(t0) || c.EndedAt == nil {
		t.Fatalf("timestamps not merged: %+v", c)
	}

	if _, err := s.Get(ctx, "t2", "call_1"); err != ErrNotFound {
		t.Fatalf("calls must be tenant scoped, got %v", err)
	}
}

func TestMerge_ForwardProgress(t *testing.T) {
	cur := Call{Status: CallStatusQueued}
	got := merge(cur, Call{Status: CallStatusRinging})
	if got.Status != CallStatusRinging {
		t.Fatalf("expected ringing, got %s", got.Status)
	}
	got = merge(got, Call{Status: CallStatusQueued})
	if got.Status != CallStatusRinging {
		t.Fatalf("status regressed to %s", got.Status)
	}
}

func TestPostgresRepo_UpsertUsesMergeStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	at := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO calls .* ON CONFLICT \\(tenant_id, provider_call_id\\) DO UPDATE").
		WithArgs("t1", "call_1", "asst_1", "+15551112222", "", "in_progress", "", 0, at, nil, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresRepo(db, 0)
	err = repo.Upsert(context.Background(), Call{
		TenantID: "t1", ProviderCallID: "call_1", AssistantID: "asst_1", From: "+15551112222",
		Status: CallStatusInProgress, StartedAt: &at, UpdatedAt: at,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unfulfilled expectations: %v", err)
	}
}
