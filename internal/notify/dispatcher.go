// Package notify delivers best-effort side effects after a booking commits.
// Nothing here can fail or roll back the booking that triggered it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"voiceagent-platform/internal/alerts"
	"voiceagent-platform/pkg/logger"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

type Message struct {
	To      string
	Subject string
	Body    string

	// EventID and CallID are carried into alerts for correlation only.
	EventID string
	CallID  string
}

type Sender interface {
	Send(ctx context.Context, tenantID string, msg Message) error
}

type AlertRaiser interface {
	Raise(ctx context.Context, a alerts.Alert) error
}

var ErrUnknownChannel = errors.New("notify: unknown channel")

type Dispatcher struct {
	senders map[Channel]Sender
	alerts  AlertRaiser
	timeout time.Duration

	wg sync.WaitGroup
}

func NewDispatcher(senders map[Channel]Sender, raiser AlertRaiser, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{senders: senders, alerts: raiser, timeout: timeout}
}

// Notify sends synchronously within the dispatcher timeout. A failure is logged
// and raised as a low-severity alert before being returned.
func (d *Dispatcher) Notify(ctx context.Context, tenantID string, ch Channel, msg Message) error {
	sender, ok := d.senders[ch]
	if !ok {
		return d.fail(ctx, tenantID, alerts.KindNotificationFailed, string(ch), msg, ErrUnknownChannel)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := sender.Send(ctx, tenantID, msg); err != nil {
		return d.fail(ctx, tenantID, alerts.KindNotificationFailed, string(ch), msg, err)
	}
	logger.From(ctx).InfoContext(ctx, "notification sent", "tenant_id", tenantID, "channel", ch)
	return nil
}

// NotifyAsync runs Notify on a detached goroutine whose context survives the
// caller's cancellation but keeps its values.
func (d *Dispatcher) NotifyAsync(ctx context.Context, tenantID string, ch Channel, msg Message) {
	d.Go(ctx, func(ctx context.Context) {
		_ = d.Notify(ctx, tenantID, ch, msg)
	})
}

// Go runs fn detached from ctx cancellation. Wait blocks until all such work ends.
func (d *Dispatcher) Go(ctx context.Context, fn func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				logger.From(detached).ErrorContext(detached, "notification task panicked", "panic", fmt.Sprint(p))
			}
		}()
		fn(detached)
	}()
}

// Mirror runs a best-effort secondary write detached from the caller. Failures
// raise an alert of the given kind.
func (d *Dispatcher) Mirror(ctx context.Context, tenantID string, kind alerts.Kind, name string, fn func(ctx context.Context) error) {
	d.Go(ctx, func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			_ = d.fail(ctx, tenantID, kind, name, Message{}, err)
		}
	})
}

func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) fail(ctx context.Context, tenantID string, kind alerts.Kind, target string, msg Message, err error) error {
	logger.From(ctx).WarnContext(ctx, "best-effort delivery failed",
		"tenant_id", tenantID,
		"target", target,
		"event_id", msg.EventID,
		"error", err,
	)
	if d.alerts != nil {
		// The send context may already be expired; the alert must still land.
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if aerr := d.alerts.Raise(actx, alerts.Alert{
			TenantID: tenantID,
			Kind:     kind,
			Severity: alerts.SeverityLow,
			EventID:  msg.EventID,
			CallID:   msg.CallID,
			Message:  fmt.Sprintf("%s delivery failed: %v", target, err),
			Metadata: map[string]string{"target": target},
		}); aerr != nil {
			logger.From(ctx).ErrorContext(ctx, "raise alert failed", "error", aerr)
		}
	}
	return err
}
