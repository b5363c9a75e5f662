package agentconfig

import (
	"encoding/json"
	"fmt"

	"voiceagent-platform/internal/booking"
	"voiceagent-platform/internal/voiceprovider"

	"github.com/invopop/jsonschema"
)

// Tools returns the function tools every assistant is given, with parameter
// schemas reflected from the argument types the booking handler decodes.
func Tools(serverURL string) ([]voiceprovider.Tool, error) {
	specs := []struct {
		name        string
		description string
		args        any
	}{
		{booking.ToolBookAppointment, "Book an appointment for the caller at a specific time.", &booking.BookAppointmentArgs{}},
		{booking.ToolCheckAvailability, "Check whether a time is free and suggest nearby open times.", &booking.CheckAvailabilityArgs{}},
	}

	out := make([]voiceprovider.Tool, 0, len(specs))
	for _, s := range specs {
		params, err := parameterSchema(s.args)
		if err != nil {
			return nil, fmt.Errorf("schema for %s: %w", s.name, err)
		}
		t := voiceprovider.Tool{
			Type:     "function",
			Function: voiceprovider.ToolFunction{Name: s.name, Description: s.description, Parameters: params},
		}
		if serverURL != "" {
			t.Server = &voiceprovider.ToolServer{URL: serverURL}
		}
		out = append(out, t)
	}
	return out, nil
}

func parameterSchema(v any) (json.RawMessage, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	schema := r.Reflect(v)
	schema.Version = ""
	schema.ID = ""
	return json.Marshal(schema)
}
