package watcher

import (
	"testing"

	"mailpost/internal/mailbox"
)

func listing(ids ...uint64) []mailbox.Message {
	out := make([]mailbox.Message, len(ids))
	for i, id := range ids {
		out[i] = mailbox.Message{ID: id}
	}
	return out
}

func ids(msgs []mailbox.Message) []uint64 {
	out := make([]uint64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestDeltaAfter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		listing []mailbox.Message
		cursor  uint64
		want    []uint64
	}{
		{"no cursor delivers all, oldest first", listing(5, 4, 3), 0, []uint64{3, 4, 5}},
		{"cursor at head means nothing new", listing(5, 4, 3), 5, nil},
		{"cursor mid-listing", listing(5, 4, 3), 3, []uint64{4, 5}},
		{"cursor not in listing delivers all", listing(5, 4, 3), 99, []uint64{3, 4, 5}},
		{"empty listing", nil, 7, nil},
		{"single new message", listing(9), 0, []uint64{9}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ids(deltaAfter(tc.listing, tc.cursor))
			if len(got) != len(tc.want) {
				t.Fatalf("delta ids = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("delta ids = %v, want %v", got, tc.want)
				}
			}
		})
	}
}
