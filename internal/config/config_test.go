package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig(env string) Config {
	return Config{
		App:     AppConfig{Env: env, Port: 8080},
		DB:      DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voiceagent"},
		Redis:   RedisConfig{Host: "localhost", Port: 6379},
		Auth:    AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
		Webhook: WebhookConfig{Secret: "whsec"},
		Voice:   VoiceProviderConfig{BaseURL: "https://api.vapi.ai", APIKey: "k"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, key := range []string{"APP_ENV", "DB_HOST", "REDIS_HOST", "JWT_SECRET", "WEBHOOK_SECRET"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in error, got %v", key, err)
		}
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig("production")
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validConfig("local")
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Webhook.MaxAttempts != 5 || c.Webhook.BaseDelay != 250*time.Millisecond || c.Webhook.MaxDelay != 4*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", c.Webhook)
	}
	if c.Webhook.ExternalTimeout != 5*time.Second || c.Webhook.DatastoreTimeout != 2*time.Second {
		t.Fatalf("unexpected timeout defaults: %+v", c.Webhook)
	}
}

func TestValidate_StaleAfterMustExceedDeliveryBudget(t *testing.T) {
	c := validConfig("dev")
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Webhook.ToolDeadline != 3*time.Second || c.Webhook.StaleAfter != 10*time.Minute {
		t.Fatalf("unexpected defaults: %+v", c.Webhook)
	}
	if got := c.Webhook.DeliveryBudget(); got != 41*time.Second {
		t.Fatalf("expected 5 attempts of 5s plus 4 capped waits, got %s", got)
	}

	c = validConfig("dev")
	c.Webhook.StaleAfter = 30 * time.Second
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "EVENT_STALE_AFTER") {
		t.Fatalf("expected EVENT_STALE_AFTER error, got %v", err)
	}
}

func TestValidate_ClampsCredentialTTL(t *testing.T) {
	c := validConfig("dev")
	c.Booking.CredentialTTL = 10 * time.Minute
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Booking.CredentialTTL != 60*time.Second {
		t.Fatalf("expected ttl clamped to 60s, got %s", c.Booking.CredentialTTL)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_NAME", "voiceagent")
	t.Setenv("DB_SSLMODE", "require")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("WEBHOOK_SECRET", "whsec")
	t.Setenv("WEBHOOK_RETRY_BASE", "100ms")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.Port != 9090 || c.HTTPAddr() != ":9090" {
		t.Fatalf("unexpected port: %d", c.App.Port)
	}
	if c.Webhook.BaseDelay != 100*time.Millisecond {
		t.Fatalf("expected env override for retry base, got %s", c.Webhook.BaseDelay)
	}
	if c.Voice.BaseURL != "https://api.vapi.ai" {
		t.Fatalf("expected default voice base url, got %q", c.Voice.BaseURL)
	}
}

func TestLoad_RejectsNonIntegerPort(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("REDIS_PORT", "6379")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "APP_PORT must be an integer") {
		t.Fatalf("expected integer parse error, got %v", err)
	}
}
