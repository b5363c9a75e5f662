package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration required by the API and migrate processes.
// Values come from the environment; local and dev runs may also read a .env file.
// Tenant-specific settings (agent prompts, credentials) live in Postgres, never here.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Webhook WebhookConfig
	Voice   VoiceProviderConfig
	Twilio  TwilioConfig
	Booking BookingConfig
	OTel    OTelConfig
}

type AppConfig struct {
	Env  string
	Port int

	// MaxInFlight bounds concurrently processed webhook requests per process.
	MaxInFlight int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type WebhookConfig struct {
	// Secret is the provider-wide HMAC key; signatures are verified before tenant resolution.
	Secret string

	MaxAttempts      int
	BaseDelay        time.Duration
	Multiplier       float64
	MaxDelay         time.Duration
	ExternalTimeout  time.Duration
	DatastoreTimeout time.Duration

	// ToolDeadline bounds a whole tool invocation, retries included.
	ToolDeadline time.Duration

	// Retention is how long idempotency records are kept for audit/replay.
	Retention time.Duration
	// StaleAfter is when an in-progress record counts as abandoned. It must
	// exceed DeliveryBudget.
	StaleAfter time.Duration

	// TenantConcurrency caps in-flight handler executions per tenant across all processes.
	TenantConcurrency int
	AlertStream       string
}

type VoiceProviderConfig struct {
	BaseURL        string
	APIKey         string
	ServerURL      string
	ModelProvider  string
	Model          string
	VerifyExternal bool
}

type TwilioConfig struct {
	BaseURL string
}

type BookingConfig struct {
	DefaultRegion          string
	DefaultDurationMinutes int
	CredentialTTL          time.Duration
	Alternatives           int
	CalendarEndpoint       string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func Load() (Config, error) {
	if env := strings.TrimSpace(os.Getenv("APP_ENV")); env == "" || env == "local" || env == "dev" {
		// Missing .env is fine; real env vars always win.
		_ = godotenv.Load()
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(v.GetString("APP_ENV"))
	c.App.Port, parseErrs = requiredInt(v, "APP_PORT", parseErrs)
	c.App.MaxInFlight = v.GetInt("APP_MAX_INFLIGHT")

	c.DB.Host = strings.TrimSpace(v.GetString("DB_HOST"))
	c.DB.Port, parseErrs = requiredInt(v, "DB_PORT", parseErrs)
	c.DB.User = strings.TrimSpace(v.GetString("DB_USER"))
	c.DB.Password = v.GetString("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(v.GetString("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(v.GetString("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(v.GetString("REDIS_HOST"))
	c.Redis.Port, parseErrs = requiredInt(v, "REDIS_PORT", parseErrs)

	c.Auth.JWTSecret = v.GetString("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(v.GetString("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(v.GetString("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = v.GetDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = v.GetDuration("JWT_REFRESH_TTL")

	c.Webhook.Secret = v.GetString("WEBHOOK_SECRET")
	c.Webhook.MaxAttempts = v.GetInt("WEBHOOK_MAX_ATTEMPTS")
	c.Webhook.BaseDelay = v.GetDuration("WEBHOOK_RETRY_BASE")
	c.Webhook.Multiplier = v.GetFloat64("WEBHOOK_RETRY_MULTIPLIER")
	c.Webhook.MaxDelay = v.GetDuration("WEBHOOK_RETRY_CAP")
	c.Webhook.ExternalTimeout = v.GetDuration("WEBHOOK_EXTERNAL_TIMEOUT")
	c.Webhook.DatastoreTimeout = v.GetDuration("WEBHOOK_DATASTORE_TIMEOUT")
	c.Webhook.ToolDeadline = v.GetDuration("WEBHOOK_TOOL_DEADLINE")
	c.Webhook.Retention = v.GetDuration("EVENT_RETENTION")
	c.Webhook.StaleAfter = v.GetDuration("EVENT_STALE_AFTER")
	c.Webhook.TenantConcurrency = v.GetInt("TENANT_CONCURRENCY")
	c.Webhook.AlertStream = strings.TrimSpace(v.GetString("ALERT_STREAM"))

	c.Voice.BaseURL = strings.TrimSpace(v.GetString("VOICE_API_BASE_URL"))
	c.Voice.APIKey = v.GetString("VOICE_API_KEY")
	c.Voice.ServerURL = strings.TrimSpace(v.GetString("VOICE_SERVER_URL"))
	c.Voice.ModelProvider = strings.TrimSpace(v.GetString("VOICE_MODEL_PROVIDER"))
	c.Voice.Model = strings.TrimSpace(v.GetString("VOICE_MODEL"))
	c.Voice.VerifyExternal = v.GetBool("SYNC_VERIFY_EXTERNAL")

	c.Twilio.BaseURL = strings.TrimSpace(v.GetString("TWILIO_API_BASE_URL"))

	c.Booking.DefaultRegion = strings.ToUpper(strings.TrimSpace(v.GetString("BOOKING_DEFAULT_REGION")))
	c.Booking.DefaultDurationMinutes = v.GetInt("BOOKING_DEFAULT_DURATION_MINUTES")
	c.Booking.CredentialTTL = v.GetDuration("CREDENTIAL_CACHE_TTL")
	c.Booking.Alternatives = v.GetInt("BOOKING_ALTERNATIVES")
	c.Booking.CalendarEndpoint = strings.TrimSpace(v.GetString("CALENDAR_API_ENDPOINT"))

	c.OTel.Endpoint = strings.TrimRight(strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")), "/")
	c.OTel.Headers = v.GetString("OTEL_EXPORTER_OTLP_HEADERS")
	c.OTel.ServiceName = strings.TrimSpace(v.GetString("OTEL_SERVICE_NAME"))
	c.OTel.ServiceVersion = strings.TrimSpace(v.GetString("OTEL_SERVICE_VERSION"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_MAX_INFLIGHT", 64)
	v.SetDefault("WEBHOOK_MAX_ATTEMPTS", 5)
	v.SetDefault("WEBHOOK_RETRY_BASE", 250*time.Millisecond)
	v.SetDefault("WEBHOOK_RETRY_MULTIPLIER", 2.0)
	v.SetDefault("WEBHOOK_RETRY_CAP", 4*time.Second)
	v.SetDefault("WEBHOOK_EXTERNAL_TIMEOUT", 5*time.Second)
	v.SetDefault("WEBHOOK_DATASTORE_TIMEOUT", 2*time.Second)
	v.SetDefault("WEBHOOK_TOOL_DEADLINE", 3*time.Second)
	v.SetDefault("EVENT_RETENTION", 30*24*time.Hour)
	v.SetDefault("EVENT_STALE_AFTER", 10*time.Minute)
	v.SetDefault("TENANT_CONCURRENCY", 20)
	v.SetDefault("ALERT_STREAM", "ops:alerts")
	v.SetDefault("VOICE_API_BASE_URL", "https://api.vapi.ai")
	v.SetDefault("VOICE_MODEL_PROVIDER", "openai")
	v.SetDefault("VOICE_MODEL", "gpt-4o")
	v.SetDefault("SYNC_VERIFY_EXTERNAL", false)
	v.SetDefault("TWILIO_API_BASE_URL", "https://api.twilio.com")
	v.SetDefault("BOOKING_DEFAULT_REGION", "US")
	v.SetDefault("BOOKING_DEFAULT_DURATION_MINUTES", 30)
	v.SetDefault("CREDENTIAL_CACHE_TTL", 60*time.Second)
	v.SetDefault("BOOKING_ALTERNATIVES", 3)
	v.SetDefault("OTEL_SERVICE_NAME", "voiceagent-api")
	v.SetDefault("OTEL_SERVICE_VERSION", "dev")
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.MaxInFlight <= 0 {
		c.App.MaxInFlight = 64
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Webhook.Secret == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET is required"))
	}
	c.Webhook.applyDefaults()
	if c.Webhook.MaxAttempts > 10 {
		errs = append(errs, fmt.Errorf("WEBHOOK_MAX_ATTEMPTS must be <= 10, got %d", c.Webhook.MaxAttempts))
	}
	if c.Webhook.MaxDelay < c.Webhook.BaseDelay {
		errs = append(errs, errors.New("WEBHOOK_RETRY_CAP must be >= WEBHOOK_RETRY_BASE"))
	}
	if c.Webhook.StaleAfter <= c.Webhook.DeliveryBudget() {
		errs = append(errs, fmt.Errorf("EVENT_STALE_AFTER must exceed the delivery retry budget of %s", c.Webhook.DeliveryBudget()))
	}

	if c.Voice.APIKey == "" && c.IsProduction() {
		errs = append(errs, errors.New("VOICE_API_KEY is required in production"))
	}
	if c.Voice.BaseURL == "" {
		errs = append(errs, errors.New("VOICE_API_BASE_URL is required"))
	}

	if c.Booking.DefaultRegion == "" {
		c.Booking.DefaultRegion = "US"
	}
	if c.Booking.DefaultDurationMinutes <= 0 {
		c.Booking.DefaultDurationMinutes = 30
	}
	// Credentials must not outlive a revocation by more than a minute.
	if c.Booking.CredentialTTL <= 0 || c.Booking.CredentialTTL > 60*time.Second {
		c.Booking.CredentialTTL = 60 * time.Second
	}
	if c.Booking.Alternatives < 0 {
		c.Booking.Alternatives = 0
	}

	return joinErrors(errs)
}

func (w *WebhookConfig) applyDefaults() {
	if w.MaxAttempts <= 0 {
		w.MaxAttempts = 5
	}
	if w.BaseDelay <= 0 {
		w.BaseDelay = 250 * time.Millisecond
	}
	if w.Multiplier < 1 {
		w.Multiplier = 2
	}
	if w.MaxDelay <= 0 {
		w.MaxDelay = 4 * time.Second
	}
	if w.ExternalTimeout <= 0 {
		w.ExternalTimeout = 5 * time.Second
	}
	if w.DatastoreTimeout <= 0 {
		w.DatastoreTimeout = 2 * time.Second
	}
	if w.ToolDeadline <= 0 {
		w.ToolDeadline = 3 * time.Second
	}
	if w.Retention <= 0 {
		w.Retention = 30 * 24 * time.Hour
	}
	if w.StaleAfter <= 0 {
		w.StaleAfter = 10 * time.Minute
	}
	if w.TenantConcurrency <= 0 {
		w.TenantConcurrency = 20
	}
	if w.AlertStream == "" {
		w.AlertStream = "ops:alerts"
	}
}

// DeliveryBudget is the longest one delivery can spend in its handler: every
// attempt timing out plus the capped backoff between them.
func (w WebhookConfig) DeliveryBudget() time.Duration {
	return time.Duration(w.MaxAttempts)*w.ExternalTimeout + time.Duration(w.MaxAttempts-1)*w.MaxDelay
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.App.Env == "local" || c.App.Env == "dev"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// PostgresURL is the URL form golang-migrate expects.
func (c Config) PostgresURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User,
		c.DB.Password,
		c.DB.Host,
		c.DB.Port,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func requiredInt(v *viper.Viper, key string, errs []error) (int, []error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, append(errs, fmt.Errorf("%s is required", key))
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, raw))
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
