package voiceprovider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/internal/retry"
)

func noSleepPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func TestCreateAssistant_NotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", WithRetryPolicy(noSleepPolicy()))
	_, err := c.CreateAssistant(context.Background(), Assistant{Name: "x"})
	if !apperr.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("create must be sent once, got %d", calls.Load())
	}
}

func TestUpdateAssistant_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/assistant/asst_1" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer key")
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var in Assistant
		_ = json.NewDecoder(r.Body).Decode(&in)
		in.ID = "asst_1"
		_ = json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", WithRetryPolicy(noSleepPolicy()))
	got, err := c.UpdateAssistant(context.Background(), "asst_1", Assistant{
		Model: &Model{Provider: "openai", Model: "gpt-4o", Messages: []Message{{Role: "system", Content: "be kind"}}},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if calls.Load() != 3 || got.ID != "asst_1" || got.SystemPrompt() != "be kind" {
		t.Fatalf("unexpected result calls=%d got=%+v", calls.Load(), got)
	}
}

func TestGetAssistant_NotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Couldn't Find Assistant"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", WithRetryPolicy(noSleepPolicy()))
	_, err := c.GetAssistant(context.Background(), "missing")
	if !errors.Is(err, ErrAssistantNotFound) || apperr.IsTransient(err) {
		t.Fatalf("expected permanent not found, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("permanent errors must not be retried, got %d calls", calls.Load())
	}
}

func TestErrorMessage(t *testing.T) {
	if got := errorMessage([]byte(`{"message":["name too long","voice invalid"]}`)); got != "name too long; voice invalid" {
		t.Fatalf("unexpected %q", got)
	}
	if got := errorMessage([]byte("plain")); got != "plain" {
		t.Fatalf("unexpected %q", got)
	}
}
