package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"voiceagent-platform/internal/apperr"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Vapi-Signature"

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) Verifier {
	return Verifier{secret: []byte(secret)}
}

// Verify checks header against body. It runs before any parsing of body.
func (v Verifier) Verify(body []byte, header string) error {
	if len(v.secret) == 0 {
		return &apperr.AuthenticationError{Reason: "webhook secret not configured"}
	}
	sig := strings.TrimSpace(header)
	sig = strings.TrimPrefix(sig, "sha256=")
	if sig == "" {
		return &apperr.AuthenticationError{Reason: "missing signature"}
	}
	got, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return &apperr.AuthenticationError{Reason: "malformed signature"}
	}
	if !hmac.Equal(got, v.mac(body)) {
		return &apperr.AuthenticationError{Reason: "signature mismatch"}
	}
	return nil
}

// Sign returns the header value a sender would compute for body.
func (v Verifier) Sign(body []byte) string {
	return hex.EncodeToString(v.mac(body))
}

func (v Verifier) mac(body []byte) []byte {
	m := hmac.New(sha256.New, v.secret)
	m.Write(body)
	return m.Sum(nil)
}
