package main

import (
	"database/sql"
	"net/http"
	"time"

	"voiceagent-platform/internal/agentconfig"
	"voiceagent-platform/internal/alerts"
	"voiceagent-platform/internal/booking"
	"voiceagent-platform/internal/calendar"
	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/config"
	"voiceagent-platform/internal/credentials"
	"voiceagent-platform/internal/httpapi"
	"voiceagent-platform/internal/idempotency"
	"voiceagent-platform/internal/notify"
	"voiceagent-platform/internal/retry"
	"voiceagent-platform/internal/slots"
	"voiceagent-platform/internal/telephony"
	"voiceagent-platform/internal/tenant"
	"voiceagent-platform/internal/voiceprovider"
	"voiceagent-platform/internal/webhook"

	"github.com/redis/go-redis/v9"
)

// app holds the constructed services. Everything is built once at startup;
// handlers receive what they need explicitly.
type app struct {
	pipeline   *webhook.Pipeline
	api        httpapi.Handlers
	dispatcher *notify.Dispatcher
	janitor    *idempotency.Janitor
}

func buildApp(cfg config.Config, db *sql.DB, rdb *redis.Client) (*app, error) {
	dsTimeout := cfg.Webhook.DatastoreTimeout
	extTimeout := cfg.Webhook.ExternalTimeout
	policy := retry.Policy{
		MaxAttempts: cfg.Webhook.MaxAttempts,
		BaseDelay:   cfg.Webhook.BaseDelay,
		Multiplier:  cfg.Webhook.Multiplier,
		MaxDelay:    cfg.Webhook.MaxDelay,
	}
	outbound := &http.Client{Timeout: extTimeout}

	alertSvc := alerts.NewService(alerts.NewRedisStreamRepo(rdb, cfg.Webhook.AlertStream))

	creds := credentials.NewGateway(
		credentials.NewPostgresSource(db, dsTimeout),
		credentials.NewRedisCache(rdb),
		cfg.Booking.CredentialTTL,
	)

	dispatcher := notify.NewDispatcher(map[notify.Channel]notify.Sender{
		notify.ChannelSMS:   notify.NewSMSSender(creds, telephony.NewTwilioSMSClient(cfg.Twilio.BaseURL, outbound)),
		notify.ChannelEmail: notify.NewEmailSender(creds),
	}, alertSvc, extTimeout)

	engine := slots.NewEngine(slots.NewPostgresStore(db, dsTimeout), cfg.Booking.DefaultRegion, cfg.Booking.DefaultDurationMinutes)
	mirror := calendar.NewMirror(creds, engine, cfg.Booking.CalendarEndpoint)
	bookingSvc := booking.NewService(engine, dispatcher, mirror, cfg.Booking.Alternatives)

	callSvc := calls.NewService(calls.NewPostgresRepo(db, dsTimeout), cfg.Booking.DefaultRegion)

	events := idempotency.NewPostgresStore(db, dsTimeout)
	pipeline := webhook.NewPipeline(
		webhook.NewVerifier(cfg.Webhook.Secret),
		events,
		tenant.NewResolver(tenant.NewPostgresRepo(db, dsTimeout), cfg.Booking.DefaultRegion),
		webhook.NewRouter(callSvc, bookingSvc),
		webhook.NewRedisTenantLimiter(rdb, cfg.Webhook.TenantConcurrency, 2*extTimeout*time.Duration(cfg.Webhook.MaxAttempts)),
		alertSvc,
		webhook.Options{Retry: policy, ExternalTimeout: extTimeout, DatastoreTimeout: dsTimeout},
	)

	provider := voiceprovider.NewClient(cfg.Voice.BaseURL, cfg.Voice.APIKey,
		voiceprovider.WithHTTPClient(outbound),
		voiceprovider.WithRetryPolicy(retry.Policy{
			MaxAttempts:    cfg.Webhook.MaxAttempts,
			BaseDelay:      cfg.Webhook.BaseDelay,
			Multiplier:     cfg.Webhook.Multiplier,
			MaxDelay:       cfg.Webhook.MaxDelay,
			AttemptTimeout: extTimeout,
		}),
	)
	syncEngine, err := agentconfig.NewSyncEngine(agentconfig.NewPostgresRepo(db, dsTimeout), provider, alertSvc, agentconfig.SyncOptions{
		ServerURL:      cfg.Voice.ServerURL,
		ModelProvider:  cfg.Voice.ModelProvider,
		Model:          cfg.Voice.Model,
		VerifyExternal: cfg.Voice.VerifyExternal,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		pipeline:   pipeline,
		api:        httpapi.Handlers{Agents: syncEngine, Claims: engine, Calls: callSvc},
		dispatcher: dispatcher,
		janitor:    idempotency.NewJanitor(events, alertSvc, cfg.Webhook.Retention, cfg.Webhook.StaleAfter, cfg.Webhook.StaleAfter/2),
	}, nil
}
