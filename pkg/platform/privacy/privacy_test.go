package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "ipv4 standard address", input: "192.168.1.47", expected: "192.168.1.0"},
		{name: "ipv4 localhost", input: "127.0.0.1", expected: "127.0.0.0"},
		{name: "ipv6 compressed address", input: "2001:db8:85a3::8a2e:370:7334", expected: "2001:0db8:85a3::"},
		{name: "ipv4 mapped ipv6", input: "::ffff:10.1.2.3", expected: "10.1.2.0"},
		{name: "empty", input: "", expected: "unknown"},
		{name: "garbage", input: "not-an-ip", expected: "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AnonymizeIP(tt.input))
		})
	}
}

func TestMaskContact(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain ten digits", input: "9876543210", expected: "******3210"},
		{name: "formatted with country code", input: "+91 98765-43210", expected: "********3210"},
		{name: "short number", input: "123", expected: "***"},
		{name: "no digits", input: "n/a", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskContact(tt.input))
		})
	}
}

func TestMaskIdentity(t *testing.T) {
	assert.Equal(t, "********9012", MaskIdentity("123456789012"))
	assert.Equal(t, "**", MaskIdentity("12"))
}
