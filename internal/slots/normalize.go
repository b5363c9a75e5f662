package slots

import (
	"errors"
	"strings"

	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/internal/telephony"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeContact returns the stored form of a contact: E.164 phone, title-cased
// name with collapsed whitespace and a lower-cased email. A contact needs a name
// and at least one of phone or email.
func NormalizeContact(c Contact, region string) (Contact, error) {
	out := Contact{
		Name:  cases.Title(language.Und).String(strings.Join(strings.Fields(c.Name), " ")),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
	}
	if out.Name == "" {
		return Contact{}, apperr.Validation("contact.name", "required")
	}
	if out.Email != "" && !looksLikeEmail(out.Email) {
		return Contact{}, apperr.Validation("contact.email", "malformed address")
	}

	if phone := strings.TrimSpace(c.Phone); phone != "" {
		e164, err := telephony.NormalizeE164(phone, region)
		if err != nil {
			if errors.Is(err, telephony.ErrInvalidPhone) {
				return Contact{}, apperr.Validation("contact.phone", err.Error())
			}
			return Contact{}, err
		}
		out.Phone = e164
	}
	if out.Phone == "" && out.Email == "" {
		return Contact{}, apperr.Validation("contact", "phone or email required")
	}
	return out, nil
}

func looksLikeEmail(s string) bool {
	at := strings.LastIndexByte(s, '@')
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n")
}
