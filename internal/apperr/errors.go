// Package apperr is the error taxonomy shared by the ingestion pipeline and the
// components it calls. Classification happens with errors.As at the pipeline
// boundary; nothing below it decides whether to retry.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CodeSlotUnavailable is the conflict code returned when an instant is already claimed.
const CodeSlotUnavailable = "SLOT_UNAVAILABLE"

// AuthenticationError means the webhook signature did not verify.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Reason
}

// ValidationError means a payload or argument is malformed. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// AmbiguousTenantError means more than one tenant matched a single resolution step.
type AmbiguousTenantError struct {
	Step       string
	Key        string
	Candidates []string
}

func (e *AmbiguousTenantError) Error() string {
	return fmt.Sprintf("ambiguous tenant: step=%s key=%s candidates=[%s]", e.Step, e.Key, strings.Join(e.Candidates, ","))
}

// ConflictError is the expected outcome when a slot is taken.
type ConflictError struct {
	Code        string
	TenantID    string
	ScheduledAt time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s tenant=%s at=%s", e.Code, e.TenantID, e.ScheduledAt.UTC().Format(time.RFC3339))
}

// TransientError wraps failures that may succeed on a later attempt.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps failures that must not be retried.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

func Permanent(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Op: op, Err: err}
}

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsTransient reports whether err should be retried. A PermanentError anywhere
// in the chain wins over a wrapped TransientError.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	var tr *TransientError
	if errors.As(err, &tr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Kind is the coarse class used for logging and acknowledgement decisions.
type Kind string

const (
	KindNone           Kind = ""
	KindAuthentication Kind = "authentication"
	KindValidation     Kind = "validation"
	KindAmbiguous      Kind = "ambiguous_tenant"
	KindConflict       Kind = "conflict"
	KindTransient      Kind = "transient"
	KindPermanent      Kind = "permanent"
)

func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		authErr  *AuthenticationError
		valErr   *ValidationError
		ambErr   *AmbiguousTenantError
		conflict *ConflictError
	)
	switch {
	case errors.As(err, &authErr):
		return KindAuthentication
	case errors.As(err, &valErr):
		return KindValidation
	case errors.As(err, &ambErr):
		return KindAmbiguous
	case errors.As(err, &conflict):
		return KindConflict
	case IsTransient(err):
		return KindTransient
	default:
		return KindPermanent
	}
}
