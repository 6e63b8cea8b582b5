package otp

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeSecret(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"jbsw y3dp ehpk 3pxp", "JBSWY3DPEHPK3PXP"},
		{"JBSW-Y3DP-EHPK-3PXP", "JBSWY3DPEHPK3PXP"},
		{"  JBSWY3DPEHPK3PXP  ", "JBSWY3DPEHPK3PXP"},
	}
	for _, tc := range cases {
		if got := NormalizeSecret(tc.in); got != tc.want {
			t.Errorf("NormalizeSecret(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCode(t *testing.T) {
	t.Parallel()

	// RFC 6238 appendix B vector, SHA-1, 6 digits.
	const secret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	code, err := Code(secret, time.Unix(59, 0))
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	if code != "287082" {
		t.Errorf("code = %q, want 287082", code)
	}
}

func TestCodeInvalidSecret(t *testing.T) {
	t.Parallel()

	for _, secret := range []string{"", "not base32 at all!!", "1890"} {
		if _, err := Code(secret, time.Now()); !errors.Is(err, ErrInvalidSecret) {
			t.Errorf("Code(%q) err = %v, want ErrInvalidSecret", secret, err)
		}
	}
}

func TestRemaining(t *testing.T) {
	t.Parallel()

	cases := []struct {
		unix int64
		want int
	}{
		{0, 30},
		{1, 29},
		{29, 1},
		{30, 30},
		{59, 1},
	}
	for _, tc := range cases {
		if got := Remaining(time.Unix(tc.unix, 0)); got != tc.want {
			t.Errorf("Remaining(%d) = %d, want %d", tc.unix, got, tc.want)
		}
	}
}

func TestWindowEnd(t *testing.T) {
	t.Parallel()

	now := time.Unix(45, 0)
	if got := WindowEnd(now); got.Unix() != 60 {
		t.Errorf("WindowEnd(45) = %d, want 60", got.Unix())
	}
}
