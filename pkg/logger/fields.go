package logger

import "context"

type fieldsKey struct{}

// Fields are business identifiers added to every record logged with the context.
type Fields struct {
	TenantID  string
	EventID   string
	EventType string
	CallID    string
	Component string
}

// WithFields merges f into the context's fields; non-empty values win.
func WithFields(ctx context.Context, f Fields) context.Context {
	cur := FieldsFrom(ctx)
	if f.TenantID != "" {
		cur.TenantID = f.TenantID
	}
	if f.EventID != "" {
		cur.EventID = f.EventID
	}
	if f.EventType != "" {
		cur.EventType = f.EventType
	}
	if f.CallID != "" {
		cur.CallID = f.CallID
	}
	if f.Component != "" {
		cur.Component = f.Component
	}
	return context.WithValue(ctx, fieldsKey{}, cur)
}

func FieldsFrom(ctx context.Context) Fields {
	if f, ok := ctx.Value(fieldsKey{}).(Fields); ok {
		return f
	}
	return Fields{}
}
