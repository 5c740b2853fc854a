// Package sanitize masks personal data in inbound email text before it
// is persisted or sent to external inference APIs.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// Phone numbers: international or local, at least 8 digits with
	// optional spaces, dots or dashes between groups.
	phonePattern = regexp.MustCompile(`(?:\+\d{1,3}[\s.\-]?)?(?:\d[\s.\-]?){7,14}\d`)
	// Street addresses in the supported markets: "Storgata 12B",
	// "Hauptstraße 5", "12 Baker Street".
	addressPattern = regexp.MustCompile(`(?i)\b(?:[A-ZÆØÅÄÖÜß][a-zæøåäöüß]+(?:gata|gate|veien|vegen|stra(?:ß|ss)e|weg|platz|allee)\s+\d+[A-Za-z]?|\d+\s+[A-Z][a-z]+\s+(?:Street|Road|Avenue|Lane))\b`)
)

// Calendar dates overlap with the phone pattern (8+ digits with
// separators) and must survive masking so date extraction still works.
var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$|^\d{1,2}[./]\d{1,2}[./]\d{2,4}$`)

// Text replaces email addresses, phone numbers and street addresses
// with placeholder tokens. The result is safe to persist and to send to
// external inference APIs.
func Text(s string) string {
	out := emailPattern.ReplaceAllString(s, "[email]")
	out = addressPattern.ReplaceAllString(out, "[address]")
	out = phonePattern.ReplaceAllStringFunc(out, func(m string) string {
		if datePattern.MatchString(strings.TrimSpace(m)) {
			return m
		}
		return "[phone]"
	})
	return out
}

// Email masks an email address for storage, keeping the first character
// of the local part and the full domain: "jonas@example.com" becomes
// "j***@example.com". Invalid addresses are fully masked.
func Email(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return "[email]"
	}
	return addr[:1] + "***" + addr[at:]
}

// ContainsPII reports whether the text still matches any personal-data
// pattern. Used by the draft composer as a final defensive check.
func ContainsPII(s string) bool {
	return emailPattern.MatchString(s) || phonePattern.MatchString(s) || addressPattern.MatchString(s)
}

// Strip removes any remaining personal-data matches from a composed
// draft. Masking happens upstream; this is the last line of defense
// before a draft is persisted.
func Strip(s string) string {
	return Text(s)
}
