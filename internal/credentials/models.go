package credentials

import (
	"errors"
	"fmt"
	"strings"
)

type Provider string

const (
	ProviderCalendar Provider = "calendar"
	ProviderSMS      Provider = "sms"
	ProviderEmail    Provider = "email"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderCalendar, ProviderSMS, ProviderEmail:
		return true
	default:
		return false
	}
}

// Credential is a tenant's secret material for one downstream provider.
// Field names are provider specific, for example account_sid and auth_token for sms.
type Credential struct {
	TenantID string            `json:"tenant_id"`
	Provider Provider          `json:"provider"`
	Fields   map[string]string `json:"fields"`
}

func (c Credential) Field(name string) string {
	return c.Fields[name]
}

// Require returns NotConfiguredError naming every missing field.
func (c Credential) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if strings.TrimSpace(c.Fields[n]) == "" {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &NotConfiguredError{TenantID: c.TenantID, Provider: c.Provider, Missing: missing}
	}
	return nil
}

// NotConfiguredError means the tenant has no usable credential for the provider.
type NotConfiguredError struct {
	TenantID string
	Provider Provider
	Missing  []string
}

func (e *NotConfiguredError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("credentials: %s not configured for tenant %s: missing %s", e.Provider, e.TenantID, strings.Join(e.Missing, ","))
	}
	return fmt.Sprintf("credentials: %s not configured for tenant %s", e.Provider, e.TenantID)
}

var (
	ErrInvalidProvider = errors.New("credentials: invalid provider")
	errCacheMiss       = errors.New("credentials: cache miss")
)
