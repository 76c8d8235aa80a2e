package contact

import (
	"strings"
)

// Contact is a company address-book entry. Contacts are managed elsewhere;
// this service only reads them to resolve mass-message recipients.
type Contact struct {
	ID        int
	CompanyID int
	Name      string
	Phone     string
}

// Minimum and maximum digit counts of an international phone number (E.164 allows 15).
const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
)

// NormalizePhone reduces a phone number to its digits so that "+55 (11) 9999-0000"
// and "551199990000" compare equal. It returns an empty string when the input does
// not look like a phone number.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return ""
		}
	}
	digits := b.String()
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return ""
	}
	return digits
}
