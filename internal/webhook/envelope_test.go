package webhook

import (
	"errors"
	"testing"
	"time"

	"voiceagent-platform/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_EventTypes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want EventType
	}{
		{"started", `{"id":"e1","type":"call-started","call":{"id":"c1"}}`, TypeCallStarted},
		{"ended alias", `{"id":"e2","type":"end-of-call-report","call":{"id":"c1"},"endedReason":"customer-ended-call","durationSeconds":42}`, TypeCallEnded},
		{"status", `{"id":"e3","type":"status-update","call":{"id":"c1","status":"ringing"}}`, TypeStatusUpdate},
		{"tool", `{"id":"e4","type":"tool-calls","toolCallList":[{"id":"tc","function":{"name":"bookAppointment","arguments":"{}"}}]}`, TypeToolInvocation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Parse([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, ev.meta().Type)
		})
	}
}

func TestParse_NestedMessageAndFields(t *testing.T) {
	body := `{"message":{"id":"evt_9","type":"call-ended","timestamp":1772373600000,
		"call":{"id":"call_9","phoneNumber":{"number":"+15551112222"},"customer":{"number":"+15557654321"}},
		"assistant":{"id":"asst_1"},"metadata":{"tenantId":" t1 "},
		"endedReason":"customer-ended-call","durationSeconds":93.6}}`

	ev, err := Parse([]byte(body))
	require.NoError(t, err)
	ended, ok := ev.(*CallEnded)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, "evt_9", ended.EventID)
	assert.Equal(t, "t1", ended.TenantHint)
	assert.Equal(t, "+15551112222", ended.PhoneNumber)
	assert.Equal(t, "+15557654321", ended.CallerNumber)
	assert.Equal(t, 93, ended.DurationSeconds)
	assert.Equal(t, time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC), ended.OccurredAt)
}

func TestParse_ToolCallShapes(t *testing.T) {
	body := `{"id":"e","type":"tool-invocation",
		"toolCall":{"id":"a","name":"checkAvailability","arguments":{"scheduledAt":"2030-01-01T10:00:00Z"}},
		"toolCallList":[{"id":"b","function":{"name":"bookClinicAppointment","arguments":"{\"patientName\":\"Ann\"}"}},{"id":"c"}]}`

	ev, err := Parse([]byte(body))
	require.NoError(t, err)
	inv := ev.(*ToolInvocation)
	require.Len(t, inv.Calls, 2)
	assert.Equal(t, "checkAvailability", inv.Calls[0].Name)
	assert.Equal(t, "bookClinicAppointment", inv.Calls[1].Name)
	assert.JSONEq(t, `"{\"patientName\":\"Ann\"}"`, string(inv.Calls[1].Arguments))
}

func TestParse_Rejects(t *testing.T) {
	bodies := map[string]string{
		"not json":     `nope`,
		"no id":        `{"type":"call-started","call":{"id":"c"}}`,
		"unknown type": `{"id":"e","type":"transcript"}`,
		"no call id":   `{"id":"e","type":"call-started"}`,
		"no status":    `{"id":"e","type":"status-update","call":{"id":"c"}}`,
		"no tools":     `{"id":"e","type":"tool-invocation","toolCallList":[]}`,
		"bad duration": `{"id":"e","type":"call-ended","call":{"id":"c"},"durationSeconds":-1}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			var ve *apperr.ValidationError
			assert.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
		})
	}
}

func TestPeekID(t *testing.T) {
	assert.Equal(t, "evt_1", peekID([]byte(`{"id":"evt_1","type":"bogus"}`)))
	assert.Equal(t, "evt_2", peekID([]byte(`{"message":{"id":"evt_2"}}`)))
	assert.Empty(t, peekID([]byte(`[1,2]`)))
}

func TestVerifier(t *testing.T) {
	v := NewVerifier("s3cret")
	body := []byte(`{"id":"evt_1"}`)
	sig := v.Sign(body)

	require.NoError(t, v.Verify(body, sig))
	require.NoError(t, v.Verify(body, "sha256="+sig))

	var authErr *apperr.AuthenticationError
	assert.True(t, errors.As(v.Verify(body, ""), &authErr))
	assert.True(t, errors.As(v.Verify(body, "zz"), &authErr))
	assert.True(t, errors.As(v.Verify([]byte(`{"id":"evt_2"}`), sig), &authErr))
	assert.True(t, errors.As(NewVerifier("").Verify(body, sig), &authErr))
}
