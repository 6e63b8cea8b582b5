package watcher

import "mailpost/internal/mailbox"

// deltaAfter computes the undelivered slice of a newest-first listing.
// It walks from the head collecting messages until it hits the cursor
// id, then returns the collected messages oldest first. A zero cursor
// means the whole listing is new.
func deltaAfter(listing []mailbox.Message, cursor uint64) []mailbox.Message {
	var fresh []mailbox.Message
	for _, m := range listing {
		if cursor != 0 && m.ID == cursor {
			break
		}
		fresh = append(fresh, m)
	}
	// reverse to chronological order
	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}
	return fresh
}
