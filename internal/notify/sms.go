package notify

import (
	"context"

	"voiceagent-platform/internal/credentials"
	"voiceagent-platform/internal/telephony"
)

type CredentialGetter interface {
	Get(ctx context.Context, tenantID string, provider credentials.Provider) (credentials.Credential, error)
}

type smsClient interface {
	Send(ctx context.Context, acct telephony.SMSAccount, msg telephony.SMSMessage) (string, error)
}

// SMSSender sends through the tenant's own Twilio account.
type SMSSender struct {
	creds  CredentialGetter
	client smsClient
}

func NewSMSSender(creds CredentialGetter, client *telephony.TwilioSMSClient) *SMSSender {
	return &SMSSender{creds: creds, client: client}
}

func (s *SMSSender) Send(ctx context.Context, tenantID string, msg Message) error {
	cred, err := s.creds.Get(ctx, tenantID, credentials.ProviderSMS)
	if err != nil {
		return err
	}
	if err := cred.Require("account_sid", "auth_token", "from"); err != nil {
		return err
	}
	_, err = s.client.Send(ctx, telephony.SMSAccount{
		AccountSID: cred.Field("account_sid"),
		AuthToken:  cred.Field("auth_token"),
		From:       cred.Field("from"),
	}, telephony.SMSMessage{To: msg.To, Body: msg.Body})
	return err
}
