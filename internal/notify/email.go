package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/internal/credentials"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender delivers over the tenant's SMTP relay.
type EmailSender struct {
	creds    CredentialGetter
	sendMail sendMailFunc
	clock    func() time.Time
}

func NewEmailSender(creds CredentialGetter) *EmailSender {
	return &EmailSender{creds: creds, sendMail: smtp.SendMail, clock: time.Now}
}

func (s *EmailSender) Send(ctx context.Context, tenantID string, msg Message) error {
	if msg.To == "" {
		return apperr.Validation("to", "required")
	}
	cred, err := s.creds.Get(ctx, tenantID, credentials.ProviderEmail)
	if err != nil {
		return err
	}
	if err := cred.Require("host", "port", "from"); err != nil {
		return err
	}

	host := cred.Field("host")
	addr := net.JoinHostPort(host, cred.Field("port"))
	var auth smtp.Auth
	if user := cred.Field("username"); user != "" {
		auth = smtp.PlainAuth("", user, cred.Field("password"), host)
	}
	body := composeMessage(cred.Field("from"), msg, s.clock())

	// net/smtp has no context support; run it aside and stop waiting on ctx.
	done := make(chan error, 1)
	go func() { done <- s.sendMail(addr, auth, cred.Field("from"), []string{msg.To}, body) }()
	select {
	case err := <-done:
		if err != nil {
			return apperr.Transient("smtp send", err)
		}
		return nil
	case <-ctx.Done():
		return apperr.Transient("smtp send", ctx.Err())
	}
}

func composeMessage(from string, msg Message, now time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.Bytes()
}
