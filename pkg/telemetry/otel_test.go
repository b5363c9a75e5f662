package telemetry

import (
	"context"
	"testing"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	tel, err := Setup(context.Background(), Config{ServiceName: "svc"})
	if err != nil || tel != nil {
		t.Fatalf("expected nil telemetry and nil error, got %v %v", tel, err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil shutdown should be a no-op: %v", err)
	}
}

func TestParseHeaders(t *testing.T) {
	h := parseHeaders("authorization=Bearer abc, x-team = ops,broken")
	if h["authorization"] != "Bearer abc" || h["x-team"] != "ops" {
		t.Fatalf("unexpected headers: %v", h)
	}
	if _, ok := h["broken"]; ok {
		t.Fatalf("pair without '=' must be skipped")
	}
}
