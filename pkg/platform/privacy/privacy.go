// Package privacy reduces personal data to forms that are safe to log.
package privacy

import (
	"fmt"
	"net"
	"strings"
	"unicode"
)

// AnonymizeIP truncates an address to its network: /24 for IPv4, /48 for IPv6.
// Returns "unknown" for empty input and "invalid" for unparseable input.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}

// MaskContact keeps the last four digits of a phone number, e.g. "******3210".
// Numbers with four digits or fewer are masked completely.
func MaskContact(contact string) string {
	var digits []rune
	for _, r := range contact {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) == 0 {
		return ""
	}
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + string(digits[len(digits)-4:])
}

// MaskIdentity keeps the last four characters of an identity number.
func MaskIdentity(identity string) string {
	if len(identity) <= 4 {
		return strings.Repeat("*", len(identity))
	}
	return strings.Repeat("*", len(identity)-4) + identity[len(identity)-4:]
}
