package booking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"voiceagent-platform/internal/apperr"
)

// Tool names the voice agent can invoke. bookClinicAppointment is kept for
// assistants configured before the rename.
const (
	ToolBookAppointment       = "bookAppointment"
	ToolBookClinicAppointment = "bookClinicAppointment"
	ToolCheckAvailability     = "checkAvailability"
)

// When is the requested instant. Either ScheduledAt, or AppointmentDate plus
// AppointmentTime read in the tenant's timezone.
type When struct {
	ScheduledAt     string `json:"scheduledAt,omitempty" jsonschema_description:"Appointment start as RFC 3339, for example 2026-03-01T09:00:00-05:00"`
	AppointmentDate string `json:"appointmentDate,omitempty" jsonschema_description:"Appointment date as YYYY-MM-DD in the clinic's local time"`
	AppointmentTime string `json:"appointmentTime,omitempty" jsonschema_description:"Appointment time as HH:MM (24h) or h:MM AM/PM in the clinic's local time"`
	DurationMinutes int    `json:"durationMinutes,omitempty" jsonschema_description:"Length of the appointment in minutes; defaults to 30"`
}

type BookAppointmentArgs struct {
	When
	PatientName  string `json:"patientName" jsonschema_description:"Full name of the patient"`
	PatientPhone string `json:"patientPhone,omitempty" jsonschema_description:"Patient phone number; the caller's number is used when omitted"`
	PatientEmail string `json:"patientEmail,omitempty" jsonschema_description:"Patient email for the confirmation"`
	ServiceType  string `json:"serviceType,omitempty" jsonschema_description:"Kind of visit, for example cleaning or consultation"`
}

type CheckAvailabilityArgs struct {
	When
}

// DecodeArgs accepts arguments as a JSON object or as a JSON string holding one.
func DecodeArgs(raw json.RawMessage, v any) error {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return apperr.Validation("arguments", "malformed string")
		}
		if strings.TrimSpace(inner) == "" {
			inner = "{}"
		}
		raw = json.RawMessage(inner)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Validation("arguments", err.Error())
	}
	return nil
}

var localTimeLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "3 PM", "3PM"}

var localDateTimeLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

// Resolve returns the requested instant in UTC.
func (w When) Resolve(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if s := strings.TrimSpace(w.ScheduledAt); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), nil
		}
		for _, layout := range localDateTimeLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, apperr.Validation("scheduledAt", fmt.Sprintf("unrecognized time %q", s))
	}

	date := strings.TrimSpace(w.AppointmentDate)
	clock := strings.ToUpper(strings.TrimSpace(w.AppointmentTime))
	if date == "" || clock == "" {
		return time.Time{}, apperr.Validation("scheduledAt", "scheduledAt or appointmentDate and appointmentTime required")
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, apperr.Validation("appointmentDate", fmt.Sprintf("unrecognized date %q", date))
	}
	for _, layout := range localTimeLayouts {
		tod, err := time.Parse(layout, clock)
		if err != nil {
			continue
		}
		t := time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), tod.Second(), 0, loc)
		return t.UTC(), nil
	}
	return time.Time{}, apperr.Validation("appointmentTime", fmt.Sprintf("unrecognized time %q", clock))
}
