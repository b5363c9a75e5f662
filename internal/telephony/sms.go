package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voiceagent-platform/internal/apperr"
)

// SMSAccount is a tenant's Twilio messaging identity, taken from the credential gateway.
type SMSAccount struct {
	AccountSID string
	AuthToken  string
	From       string
}

type SMSMessage struct {
	To   string
	Body string
}

// TwilioSMSClient sends messages through the Twilio Messages API.
type TwilioSMSClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewTwilioSMSClient(baseURL string, httpClient *http.Client) *TwilioSMSClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &TwilioSMSClient{baseURL: baseURL, httpClient: httpClient}
}

// Send returns the provider message SID. 429 and 5xx are reported as transient.
func (c *TwilioSMSClient) Send(ctx context.Context, acct SMSAccount, msg SMSMessage) (string, error) {
	if acct.AccountSID == "" || acct.AuthToken == "" || acct.From == "" {
		return "", apperr.Validation("sms_account", "account sid, auth token and from are required")
	}
	if msg.To == "" || msg.Body == "" {
		return "", apperr.Validation("sms_message", "to and body are required")
	}

	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", acct.From)
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(acct.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(acct.AccountSID, acct.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Transient("twilio send", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", apperr.Transient("twilio send", fmt.Errorf("status=%d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return "", apperr.Permanent("twilio send", fmt.Errorf("status=%d code=%d message=%s", resp.StatusCode, apiErr.Code, apiErr.Message))
	}

	var out struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("twilio send: decode response: %w", err)
	}
	return out.SID, nil
}
