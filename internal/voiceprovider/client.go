// Package voiceprovider is a client for the voice provider's assistant API.
package voiceprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/internal/retry"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     retry.Policy
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		policy:     retry.Policy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, Multiplier: 2, MaxDelay: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateAssistant is sent once. A retried POST could create a second assistant.
func (c *Client) CreateAssistant(ctx context.Context, a Assistant) (Assistant, error) {
	var out Assistant
	err := c.do(ctx, http.MethodPost, "/assistant", a, &out)
	return out, err
}

func (c *Client) UpdateAssistant(ctx context.Context, id string, a Assistant) (Assistant, error) {
	a.ID = ""
	var out Assistant
	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		return c.do(ctx, http.MethodPatch, "/assistant/"+url.PathEscape(id), a, &out)
	})
	return out, err
}

func (c *Client) GetAssistant(ctx context.Context, id string) (Assistant, error) {
	var out Assistant
	err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		return c.do(ctx, http.MethodGet, "/assistant/"+url.PathEscape(id), nil, &out)
	})
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	op := strings.ToLower(method) + " " + path

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Transient(op, err)
	}
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
	if readErr != nil {
		return apperr.Transient(op, readErr)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		if out == nil || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return apperr.Permanent(op, fmt.Errorf("decode response: %w", err))
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return apperr.Permanent(op, ErrAssistantNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return apperr.Transient(op, fmt.Errorf("status=%d message=%s", resp.StatusCode, errorMessage(respBody)))
	default:
		return apperr.Permanent(op, fmt.Errorf("status=%d message=%s", resp.StatusCode, errorMessage(respBody)))
	}
}

func errorMessage(body []byte) string {
	var parsed struct {
		Message any    `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		switch m := parsed.Message.(type) {
		case string:
			if m != "" {
				return m
			}
		case []any:
			parts := make([]string, 0, len(m))
			for _, p := range m {
				parts = append(parts, fmt.Sprint(p))
			}
			return strings.Join(parts, "; ")
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(body))
}
