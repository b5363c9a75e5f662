package webhook

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"voiceagent-platform/internal/apperr"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed envelope.schema.json
var envelopeSchemaJSON []byte

const envelopeSchemaURL = "https://schemas.voiceagent.local/webhook/envelope.json"

var (
	schemaOnce     sync.Once
	envelopeSchema *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(envelopeSchemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("parse envelope schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(envelopeSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add envelope schema: %w", err)
			return
		}
		envelopeSchema, schemaErr = c.Compile(envelopeSchemaURL)
	})
	return envelopeSchema, schemaErr
}

type envelope struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Timestamp       json.RawMessage `json:"timestamp"`
	Status          string          `json:"status"`
	EndedReason     string          `json:"endedReason"`
	DurationSeconds float64         `json:"durationSeconds"`
	Call            struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		PhoneNumber struct {
			Number string `json:"number"`
		} `json:"phoneNumber"`
		Customer struct {
			Number string `json:"number"`
			Name   string `json:"name"`
		} `json:"customer"`
	} `json:"call"`
	Assistant struct {
		ID string `json:"id"`
	} `json:"assistant"`
	Metadata struct {
		TenantID string `json:"tenantId"`
	} `json:"metadata"`
	ToolCall     *wireToolCall  `json:"toolCall"`
	ToolCallList []wireToolCall `json:"toolCallList"`
}

type wireToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Function  *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// unwrap returns the envelope body. Some deliveries nest it under "message".
func unwrap(body []byte) ([]byte, error) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, apperr.Validation("body", "not a JSON object")
	}
	if msg, ok := outer["message"]; ok {
		if _, hasType := outer["type"]; !hasType {
			trimmed := bytes.TrimSpace(msg)
			if len(trimmed) > 0 && trimmed[0] == '{' {
				return trimmed, nil
			}
		}
	}
	return body, nil
}

// peekID extracts the event id from a body that failed validation, so the
// rejection can still be recorded.
func peekID(body []byte) string {
	inner, err := unwrap(body)
	if err != nil {
		return ""
	}
	var head struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if json.Unmarshal(inner, &head) != nil {
		return ""
	}
	return head.ID
}

// Parse validates body against the envelope schema and decodes it into a typed event.
func Parse(body []byte) (Event, error) {
	inner, err := unwrap(body)
	if err != nil {
		return nil, err
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(inner))
	if err != nil {
		return nil, apperr.Validation("body", "not valid JSON")
	}
	if err := sch.Validate(inst); err != nil {
		return nil, apperr.Validation("envelope", err.Error())
	}

	var env envelope
	if err := json.Unmarshal(inner, &env); err != nil {
		return nil, apperr.Validation("envelope", err.Error())
	}

	typ, ok := normalizeType(env.Type)
	if !ok {
		return nil, apperr.Validation("type", fmt.Sprintf("unsupported event type %q", env.Type))
	}

	meta := Meta{
		EventID:      env.ID,
		Type:         typ,
		CallID:       env.Call.ID,
		AssistantID:  env.Assistant.ID,
		TenantHint:   strings.TrimSpace(env.Metadata.TenantID),
		PhoneNumber:  env.Call.PhoneNumber.Number,
		CallerNumber: env.Call.Customer.Number,
		OccurredAt:   parseTimestamp(env.Timestamp),
		Payload:      json.RawMessage(append([]byte(nil), inner...)),
	}

	switch typ {
	case TypeCallStarted:
		if meta.CallID == "" {
			return nil, apperr.Validation("call.id", "required")
		}
		return &CallStarted{Meta: meta, CallerName: env.Call.Customer.Name}, nil
	case TypeCallEnded:
		if meta.CallID == "" {
			return nil, apperr.Validation("call.id", "required")
		}
		return &CallEnded{Meta: meta, Reason: env.EndedReason, DurationSeconds: int(env.DurationSeconds)}, nil
	case TypeStatusUpdate:
		if meta.CallID == "" {
			return nil, apperr.Validation("call.id", "required")
		}
		status := env.Status
		if status == "" {
			status = env.Call.Status
		}
		if status == "" {
			return nil, apperr.Validation("status", "required")
		}
		return &StatusUpdate{Meta: meta, Status: status, EndedReason: env.EndedReason}, nil
	case TypeToolInvocation:
		calls := collectToolCalls(env)
		if len(calls) == 0 {
			return nil, apperr.Validation("toolCall", "at least one tool call required")
		}
		return &ToolInvocation{Meta: meta, Calls: calls}, nil
	}
	return nil, apperr.Validation("type", "unhandled")
}

func collectToolCalls(env envelope) []ToolCall {
	var wire []wireToolCall
	if env.ToolCall != nil {
		wire = append(wire, *env.ToolCall)
	}
	wire = append(wire, env.ToolCallList...)

	out := make([]ToolCall, 0, len(wire))
	for _, w := range wire {
		tc := ToolCall{ID: w.ID, Name: w.Name, Arguments: w.Arguments}
		if w.Function != nil {
			if tc.Name == "" {
				tc.Name = w.Function.Name
			}
			if len(tc.Arguments) == 0 {
				tc.Arguments = w.Function.Arguments
			}
		}
		if tc.Name == "" {
			continue
		}
		out = append(out, tc)
	}
	return out
}

func normalizeType(raw string) (EventType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "call-started", "call.started", "call_started":
		return TypeCallStarted, true
	case "call-ended", "call.ended", "call_ended", "end-of-call-report":
		return TypeCallEnded, true
	case "tool-invocation", "tool-calls", "tool.calls", "function-call":
		return TypeToolInvocation, true
	case "status-update", "status.update", "call.status":
		return TypeStatusUpdate, true
	}
	return "", false
}

func parseTimestamp(raw json.RawMessage) time.Time {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Provider timestamps are epoch milliseconds.
		return time.UnixMilli(n).UTC()
	}
	return time.Time{}
}
