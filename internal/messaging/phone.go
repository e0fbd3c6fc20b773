package messaging

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
// A "whatsapp:" channel prefix is dropped.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), whatsAppPrefix))
	if value == "" {
		return ""
	}
	digits := strings.Join(phoneDigitsRe.FindAllString(value, -1), "")
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, "00") {
		digits = digits[2:]
	}
	return "+" + digits
}

// WhatsAppAddress returns the Twilio address for a phone number.
func WhatsAppAddress(phone string) string {
	normalized := NormalizeE164(phone)
	if normalized == "" {
		return ""
	}
	return whatsAppPrefix + normalized
}
