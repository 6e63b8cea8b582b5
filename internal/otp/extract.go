// Package otp extracts verification codes from mail and generates
// time-based one-time passwords from shared secrets.
package otp

import "regexp"

// keywordRe anchors a 4-8 digit code to a nearby OTP-ish keyword.
// (?s) lets the gap span line breaks in multi-line bodies.
var keywordRe = regexp.MustCompile(`(?is)(?:OTP|CODE|PIN|verification|one[\s_-]time).*?(\d{4,8})`)

// bareRe is the fallback: any standalone 4-8 digit run.
var bareRe = regexp.MustCompile(`\b(\d{4,8})\b`)

// Extract pulls a likely verification code out of subject and body.
// The subject is authoritative: a subject hit wins even when the body
// also contains digits. Returns "" when nothing matches.
func Extract(subject, body string) string {
	if code := extractOne(subject); code != "" {
		return code
	}
	return extractOne(body)
}

func extractOne(s string) string {
	if s == "" {
		return ""
	}
	if m := keywordRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := bareRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}
