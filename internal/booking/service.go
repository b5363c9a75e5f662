// Package booking turns voice-agent tool calls into slot claims and spoken replies.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voiceagent-platform/internal/alerts"
	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/internal/calendar"
	"voiceagent-platform/internal/notify"
	"voiceagent-platform/internal/slots"
	"voiceagent-platform/pkg/logger"
)

type SlotEngine interface {
	Claim(ctx context.Context, req slots.Request, opts ...slots.ClaimOption) (slots.SlotClaim, error)
	IsFree(ctx context.Context, tenantID string, at time.Time) (bool, error)
	Alternatives(ctx context.Context, tenantID string, after time.Time, durationMinutes, n int, until time.Time) ([]time.Time, error)
}

type Notifier interface {
	NotifyAsync(ctx context.Context, tenantID string, ch notify.Channel, msg notify.Message)
	Mirror(ctx context.Context, tenantID string, kind alerts.Kind, name string, fn func(ctx context.Context) error)
}

type CalendarPublisher interface {
	Publish(ctx context.Context, claim slots.SlotClaim, timezone string) (string, error)
}

// Invocation is the context of a single tool call.
type Invocation struct {
	TenantID    string
	Timezone    string
	ClinicName  string
	EventID     string
	CallID      string
	ToolCallID  string
	CallerPhone string
}

func (inv Invocation) location() *time.Location {
	if inv.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(inv.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Service struct {
	slots        SlotEngine
	notifier     Notifier
	calendar     CalendarPublisher
	alternatives int
	clock        func() time.Time
}

func NewService(engine SlotEngine, notifier Notifier, cal CalendarPublisher, alternatives int) *Service {
	return &Service{slots: engine, notifier: notifier, calendar: cal, alternatives: alternatives, clock: time.Now}
}

// Book claims the requested instant. A taken instant is not an error: it
// returns a conflict result with alternatives. Validation problems return an
// error result alongside the error.
func (s *Service) Book(ctx context.Context, inv Invocation, args BookAppointmentArgs) (Result, error) {
	loc := inv.location()
	at, err := s.requestedInstant(args.When, loc)
	if err != nil {
		return invalidResult(err), err
	}

	phone := args.PatientPhone
	if strings.TrimSpace(phone) == "" {
		phone = inv.CallerPhone
	}
	req := slots.Request{
		TenantID:        inv.TenantID,
		ScheduledAt:     at,
		DurationMinutes: args.DurationMinutes,
		Contact:         slots.Contact{Name: args.PatientName, Phone: phone, Email: args.PatientEmail},
		ServiceType:     args.ServiceType,
		SourceEventID:   inv.EventID,
	}
	var opts []slots.ClaimOption
	if inv.EventID != "" {
		opts = append(opts, slots.WithClaimID(slots.DeliveryClaimID(inv.EventID, inv.ToolCallID)))
	}

	claim, err := s.slots.Claim(ctx, req, opts...)
	if err != nil {
		var ce *apperr.ConflictError
		if errors.As(err, &ce) {
			return s.conflictResult(ctx, inv.TenantID, at, args.DurationMinutes, loc)
		}
		var ve *apperr.ValidationError
		if errors.As(err, &ve) {
			return invalidResult(err), err
		}
		return Result{}, err
	}

	logger.From(ctx).InfoContext(ctx, "appointment booked",
		"claim_id", claim.ClaimID,
		"scheduled_at", claim.ScheduledAt,
	)
	s.afterCommit(ctx, inv, claim, loc)

	return Result{
		Status:        StatusBooked,
		AppointmentID: claim.ClaimID,
		ScheduledAt:   claim.ScheduledAt.Format(time.RFC3339),
		Speech:        fmt.Sprintf("You're all set for %s.", spokenDateTime(claim.ScheduledAt, loc)),
	}, nil
}

func (s *Service) CheckAvailability(ctx context.Context, inv Invocation, args CheckAvailabilityArgs) (Result, error) {
	loc := inv.location()
	at, err := s.requestedInstant(args.When, loc)
	if err != nil {
		return invalidResult(err), err
	}
	free, err := s.slots.IsFree(ctx, inv.TenantID, at)
	if err != nil {
		return Result{}, err
	}
	if free {
		return Result{
			Status:      StatusAvailable,
			ScheduledAt: at.Format(time.RFC3339),
			Speech:      fmt.Sprintf("%s is available.", capitalize(spokenDateTime(at, loc))),
		}, nil
	}
	res, err := s.conflictResult(ctx, inv.TenantID, at, args.DurationMinutes, loc)
	res.Status = StatusUnavailable
	return res, err
}

func (s *Service) requestedInstant(w When, loc *time.Location) (time.Time, error) {
	at, err := w.Resolve(loc)
	if err != nil {
		return time.Time{}, err
	}
	if !at.After(s.clock()) {
		return time.Time{}, apperr.Validation("scheduledAt", "must be in the future")
	}
	return at, nil
}

func (s *Service) conflictResult(ctx context.Context, tenantID string, at time.Time, duration int, loc *time.Location) (Result, error) {
	local := at.In(loc)
	endOfDay := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	alts, err := s.slots.Alternatives(ctx, tenantID, at, duration, s.alternatives, endOfDay)
	if err != nil {
		return Result{}, err
	}

	res := Result{Status: StatusConflict, ScheduledAt: at.Format(time.RFC3339)}
	spoken := make([]string, 0, len(alts))
	for _, a := range alts {
		res.Alternatives = append(res.Alternatives, a.Format(time.RFC3339))
		spoken = append(spoken, a.In(loc).Format("3:04 PM"))
	}
	if len(spoken) == 0 {
		res.Speech = "I'm sorry, that time is already taken and there's nothing else open that day."
	} else {
		res.Speech = fmt.Sprintf("I'm sorry, that time is already taken. I have %s available.", joinOr(spoken))
	}
	return res, nil
}

func (s *Service) afterCommit(ctx context.Context, inv Invocation, claim slots.SlotClaim, loc *time.Location) {
	if s.notifier == nil {
		return
	}
	when := spokenDateTime(claim.ScheduledAt, loc)
	clinic := inv.ClinicName
	if clinic == "" {
		clinic = "the clinic"
	}
	body := fmt.Sprintf("Hi %s, your appointment at %s is confirmed for %s. Reference %s.",
		claim.Contact.Name, clinic, when, shortRef(claim.ClaimID))

	if claim.Contact.Phone != "" {
		s.notifier.NotifyAsync(ctx, inv.TenantID, notify.ChannelSMS, notify.Message{
			To: claim.Contact.Phone, Body: body, EventID: inv.EventID, CallID: inv.CallID,
		})
	}
	if claim.Contact.Email != "" {
		s.notifier.NotifyAsync(ctx, inv.TenantID, notify.ChannelEmail, notify.Message{
			To: claim.Contact.Email, Subject: "Appointment confirmed", Body: body, EventID: inv.EventID, CallID: inv.CallID,
		})
	}
	if s.calendar != nil {
		s.notifier.Mirror(ctx, inv.TenantID, alerts.KindCalendarMirrorFailed, "calendar", func(ctx context.Context) error {
			_, err := s.calendar.Publish(ctx, claim, loc.String())
			if errors.Is(err, calendar.ErrNotConfigured) {
				return nil
			}
			return err
		})
	}
}

func invalidResult(err error) Result {
	res := Result{Status: StatusError, Speech: "I'm sorry, I didn't catch the appointment details. Could you repeat the date and time?"}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		switch {
		case ve.Field == "scheduledAt" && ve.Reason == "must be in the future":
			res.Speech = "That time has already passed. What other time works for you?"
		case strings.HasPrefix(ve.Field, "contact"):
			res.Speech = "I'll need your name and a phone number or email to book that."
		}
	}
	return res
}

func spokenDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Monday, January 2 at 3:04 PM")
}

func shortRef(claimID string) string {
	if len(claimID) >= 8 {
		return strings.ToUpper(claimID[:8])
	}
	return strings.ToUpper(claimID)
}

func joinOr(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " or " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
