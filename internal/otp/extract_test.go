package otp

import "testing"

func TestExtract(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		subject string
		body    string
		want    string
	}{
		{"keyword in subject", "Your CODE is 482910", "", "482910"},
		{"bare digits in body", "Hello", "use pin 7781 now", "7781"},
		{"subject wins over body", "OTP 111222", "code 999888", "111222"},
		{"no digits anywhere", "Welcome aboard", "thanks for signing up", ""},
		{"digits too short", "Hi", "room 123", ""},
		{"digits too long", "Hi", "order 123456789", ""},
		{"keyword spans lines", "", "Your verification\ncode:\n55443", "55443"},
		{"one-time with hyphen", "", "your one-time password is 998877", "998877"},
		{"keyword beats earlier bare digits", "", "ref 4444 your code is 5555", "5555"},
		{"case insensitive", "your Otp: 2468", "", "2468"},
		{"empty everything", "", "", ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Extract(tc.subject, tc.body); got != tc.want {
				t.Errorf("Extract(%q, %q) = %q, want %q", tc.subject, tc.body, got, tc.want)
			}
		})
	}
}
