package voiceprovider

import (
	"encoding/json"
	"errors"
)

// Assistant is the provider-side record for one tenant agent.
type Assistant struct {
	ID        string            `json:"id,omitempty"`
	Name      string            `json:"name,omitempty"`
	Model     *Model            `json:"model,omitempty"`
	Voice     *Voice            `json:"voice,omitempty"`
	ServerURL string            `json:"serverUrl,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type Model struct {
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	Messages []Message `json:"messages,omitempty"`
	Tools    []Tool    `json:"tools,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Voice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
	Server   *ToolServer  `json:"server,omitempty"`
}

type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type ToolServer struct {
	URL string `json:"url"`
}

// SystemPrompt returns the first system message content.
func (a Assistant) SystemPrompt() string {
	if a.Model == nil {
		return ""
	}
	for _, m := range a.Model.Messages {
		if m.Role == "system" {
			return m.Content
		}
	}
	return ""
}

var ErrAssistantNotFound = errors.New("voiceprovider: assistant not found")
