package mailbox

import "testing"

func TestNormalizeSender(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{"no-reply@accounts.google.com", "Google"},
		{"Google <no-reply@google.com>", "Google"},
		{"anything <registration@facebookmail.com>", "Facebook"},
		{"security@mail.twitter.com", "X (Twitter)"},
		{"X <verify@twitter.com>", "X (Twitter)"},
		{"noreply@telegram.org", "Telegram"},
		{"Acme Support <support@acme.io>", "Acme Support"},
		{`"Quoted Name" <q@unknown.example>`, "Quoted Name"},
		{"<bare@unknown.example>", "bare@unknown.example"},
		{"Just A Name", "Just A Name"},
		{"", "Unknown"},
		{"noreply@tm.openai.com", "Chat Gpt"},
	}

	for _, tc := range cases {
		if got := NormalizeSender(tc.raw); got != tc.want {
			t.Errorf("NormalizeSender(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestBodyText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "plain text wins",
			msg:  Message{Text: " hello ", HTML: "<p>ignored</p>"},
			want: "hello",
		},
		{
			name: "html fallback",
			msg:  Message{HTML: "<html><body><p>Your code is <b>1234</b></p><script>x()</script></body></html>"},
			want: "Your code is 1234",
		},
		{
			name: "empty",
			msg:  Message{},
			want: "",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := BodyText(tc.msg); got != tc.want {
				t.Errorf("BodyText = %q, want %q", got, tc.want)
			}
		})
	}
}
