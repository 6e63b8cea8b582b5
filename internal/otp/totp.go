package otp

import (
	"encoding/base32"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// ErrInvalidSecret is returned when a shared secret is not valid base32.
var ErrInvalidSecret = errors.New("secret is not a valid base32 TOTP secret")

// Period is the TOTP time-step in seconds. Standard authenticator apps
// use 30s; the window math below assumes it.
const Period = 30

// NormalizeSecret uppercases a shared secret and strips spaces and
// hyphens, the way authenticator setup pages format them.
func NormalizeSecret(secret string) string {
	s := strings.ToUpper(strings.TrimSpace(secret))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

// Code returns the 6-digit TOTP code for secret at time t.
// The secret must already be normalized.
func Code(secret string, t time.Time) (string, error) {
	if secret == "" {
		return "", ErrInvalidSecret
	}
	if _, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(secret, "=")); err != nil {
		return "", ErrInvalidSecret
	}
	code, err := totp.GenerateCode(secret, t)
	if err != nil {
		return "", ErrInvalidSecret
	}
	return code, nil
}

// Remaining reports how many seconds of the current 30s window are left
// at time t. Always in [1, Period].
func Remaining(t time.Time) int {
	rem := Period - int(t.Unix()%Period)
	return rem
}

// WindowEnd returns the instant the current window closes at time t.
func WindowEnd(t time.Time) time.Time {
	return t.Add(time.Duration(Remaining(t)) * time.Second)
}
