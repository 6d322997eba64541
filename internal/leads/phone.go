package leads

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Region is the default dialing region for campaign numbers.
const Region = "ES"

// NormalizePhone reduces any user-entered Spanish number to its 9-digit
// national form. It accepts "+34 600 11 22 33", "0034600112233",
// "600-112-233" and similar. Numbers that libphonenumber cannot validate are
// still accepted when they carry at least 9 digits starting with 6, 7, 8 or 9;
// the last 9 digits are kept.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPhone)
	}

	if num, err := phonenumbers.Parse(raw, Region); err == nil && phonenumbers.IsValidNumberForRegion(num, Region) {
		return phonenumbers.GetNationalSignificantNumber(num), nil
	}

	digits := onlyDigits(raw)
	if len(digits) < 9 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}
	national := digits[len(digits)-9:]
	switch national[0] {
	case '6', '7', '8', '9':
		return national, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}
}

// E164 formats a number for dialing, e.g. "+34600112233".
func E164(raw string) (string, error) {
	national, err := NormalizePhone(raw)
	if err != nil {
		return "", err
	}
	num, err := phonenumbers.Parse(national, Region)
	if err != nil {
		return "+34" + national, nil
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
