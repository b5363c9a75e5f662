// Package calendar mirrors committed claims into the tenant's Google Calendar.
// The local claim is authoritative; the calendar event id is recorded only
// after the calendar accepts the event.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/internal/credentials"
	"voiceagent-platform/internal/slots"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type CredentialGetter interface {
	Get(ctx context.Context, tenantID string, provider credentials.Provider) (credentials.Credential, error)
}

type ClaimRecorder interface {
	SetCalendarEventID(ctx context.Context, tenantID, claimID, calendarEventID string) error
}

type Mirror struct {
	creds    CredentialGetter
	claims   ClaimRecorder
	endpoint string
}

// NewMirror builds a mirror. An empty endpoint uses the public Calendar API.
func NewMirror(creds CredentialGetter, claims ClaimRecorder, endpoint string) *Mirror {
	return &Mirror{creds: creds, claims: claims, endpoint: strings.TrimSpace(endpoint)}
}

// ErrNotConfigured is returned when the tenant has no calendar credential. It
// is not a failure worth alerting on.
var ErrNotConfigured = errors.New("calendar: not configured")

// Publish creates the calendar event for a committed claim and records its id.
func (m *Mirror) Publish(ctx context.Context, claim slots.SlotClaim, timezone string) (string, error) {
	cred, err := m.creds.Get(ctx, claim.TenantID, credentials.ProviderCalendar)
	if err != nil {
		var nce *credentials.NotConfiguredError
		if errors.As(err, &nce) {
			return "", ErrNotConfigured
		}
		return "", err
	}
	if err := cred.Require("access_token"); err != nil {
		return "", ErrNotConfigured
	}
	calendarID := cred.Field("calendar_id")
	if calendarID == "" {
		calendarID = "primary"
	}

	svc, err := m.service(ctx, cred.Field("access_token"))
	if err != nil {
		return "", err
	}

	ev, err := svc.Events.Insert(calendarID, eventFor(claim, timezone)).Context(ctx).Do()
	if err != nil {
		return "", classify(err)
	}
	if err := m.claims.SetCalendarEventID(ctx, claim.TenantID, claim.ClaimID, ev.Id); err != nil {
		return ev.Id, fmt.Errorf("record calendar event: %w", err)
	}
	return ev.Id, nil
}

func (m *Mirror) service(ctx context.Context, accessToken string) (*gcal.Service, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})),
	}
	if m.endpoint != "" {
		opts = append(opts, option.WithEndpoint(m.endpoint))
	}
	return gcal.NewService(ctx, opts...)
}

func eventFor(c slots.SlotClaim, timezone string) *gcal.Event {
	if timezone == "" {
		timezone = "UTC"
	}
	summary := "Appointment: " + c.Contact.Name
	if c.ServiceType != "" {
		summary = fmt.Sprintf("%s (%s)", summary, c.ServiceType)
	}
	var desc []string
	if c.Contact.Phone != "" {
		desc = append(desc, "Phone: "+c.Contact.Phone)
	}
	if c.Contact.Email != "" {
		desc = append(desc, "Email: "+c.Contact.Email)
	}
	desc = append(desc, "Claim: "+c.ClaimID)

	return &gcal.Event{
		Summary:     summary,
		Description: strings.Join(desc, "\n"),
		Start:       &gcal.EventDateTime{DateTime: c.ScheduledAt.UTC().Format(time.RFC3339), TimeZone: timezone},
		End:         &gcal.EventDateTime{DateTime: c.EndsAt().UTC().Format(time.RFC3339), TimeZone: timezone},
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{"claim_id": c.ClaimID, "tenant_id": c.TenantID},
		},
	}
}

func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500 {
			return apperr.Transient("calendar insert", err)
		}
		return apperr.Permanent("calendar insert", err)
	}
	return apperr.Transient("calendar insert", err)
}
