// Package device turns a User-Agent header into the short description stored on audit
// entries, so reviewers can spot bursts of public submissions from one kind of client.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

const maxLen = 120

// Describe returns "Browser on OS" (e.g. "Chrome on Android"). Bots are reported as
// "bot: <name>". The result is bounded in length and never includes the raw header.
func Describe(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return ""
	}
	ua := useragent.New(userAgent)

	browser, _ := ua.Browser()
	browser = strings.TrimSpace(browser)
	if ua.Bot() {
		if browser == "" {
			browser = "unknown"
		}
		return truncate("bot: " + browser)
	}

	os := strings.TrimSpace(ua.OS())
	if ua.Mobile() {
		if platform := strings.TrimSpace(ua.Platform()); platform != "" && os == "" {
			os = platform
		}
	}
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return truncate(browser + " on " + os)
}

func truncate(s string) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
