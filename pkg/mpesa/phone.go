package mpesa

import (
	"strings"

	pkgerrors "github.com/urbanfoods/backend/pkg/errors"
)

// FormatPhoneNumber normalizes a Kenyan MSISDN to the canonical 254XXXXXXXXX
// form. Accepted inputs: local (0XXXXXXXXX), international (254XXXXXXXXX) and
// a bare 9-digit subscriber number. Everything else is a validation error.
func FormatPhoneNumber(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	phone := digits.String()

	switch {
	case strings.HasPrefix(phone, "0") && len(phone) == 10:
		return "254" + phone[1:], nil
	case strings.HasPrefix(phone, "254") && len(phone) == 12:
		return phone, nil
	case len(phone) == 9:
		return "254" + phone, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid phone number format")
	}
}
