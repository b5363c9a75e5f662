package agentconfig

import (
	"errors"
	"strings"
	"time"
)

type Role string

const (
	RoleInbound  Role = "inbound"
	RoleOutbound Role = "outbound"
)

func (r Role) Valid() bool {
	return r == RoleInbound || r == RoleOutbound
}

// AgentConfig is the tenant's local mirror of one provider assistant.
// ExternalAssistantID stays empty until the provider has confirmed a write.
type AgentConfig struct {
	TenantID            string     `json:"tenant_id"`
	Role                Role       `json:"role"`
	SystemPrompt        string     `json:"system_prompt"`
	VoiceSelector       string     `json:"voice_selector"`
	ExternalAssistantID string     `json:"external_assistant_id,omitempty"`
	LastSyncedAt        *time.Time `json:"last_synced_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Consistent reports whether the row can be synced. A sync timestamp without
// an external id means an earlier write was recorded incorrectly.
func (c AgentConfig) Consistent() bool {
	return !(c.ExternalAssistantID == "" && c.LastSyncedAt != nil)
}

// Update is the dashboard's requested change.
type Update struct {
	SystemPrompt  string `json:"system_prompt"`
	VoiceSelector string `json:"voice_selector"`
}

func (u Update) normalized() Update {
	return Update{SystemPrompt: strings.TrimSpace(u.SystemPrompt), VoiceSelector: strings.TrimSpace(u.VoiceSelector)}
}

// ParseVoice splits a selector of the form provider:voiceId. A bare id uses the
// provider's default voice catalogue.
func ParseVoice(selector string) (provider, voiceID string) {
	if p, v, ok := strings.Cut(selector, ":"); ok {
		return strings.TrimSpace(p), strings.TrimSpace(v)
	}
	return "vapi", strings.TrimSpace(selector)
}

var (
	ErrConfigNotFound     = errors.New("agentconfig: config not found")
	ErrInconsistentConfig = errors.New("agentconfig: local config inconsistent")
	ErrInvalidUpdate      = errors.New("agentconfig: invalid update")
	ErrVerifyMismatch     = errors.New("agentconfig: verification mismatch")
)
