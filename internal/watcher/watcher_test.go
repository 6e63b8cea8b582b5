package watcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"mailpost/internal/mailbox"
	"mailpost/internal/session"
	"mailpost/internal/transport"
	logx "mailpost/pkg/logx"
)

type fakeLister struct {
	mu    sync.Mutex
	boxes map[string][]mailbox.Message
	err   error
}

func (f *fakeLister) List(ctx context.Context, addr string) ([]mailbox.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.boxes[addr], nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []transport.Notification
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, n transport.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, n := range f.sent {
		out[i] = n.Text
	}
	return out
}

type fakeSuperseder struct {
	mu    sync.Mutex
	calls []int64
}

func (f *fakeSuperseder) Supersede(chatID int64) {
	f.mu.Lock()
	f.calls = append(f.calls, chatID)
	f.mu.Unlock()
}

func newTestPoller(lister *fakeLister, notifier *fakeNotifier, codes *fakeSuperseder, reg *session.Registry) *Poller {
	return NewPoller(
		lister,
		mailbox.NewGenerator("mailto.plus"),
		reg,
		notifier,
		codes,
		logx.Nop(),
		nil,
		0, 0,
	)
}

func TestPollOneDeliversOldestFirst(t *testing.T) {
	t.Parallel()

	reg := session.NewRegistry()
	sess := reg.SetAddress(1, "a@mailto.plus")

	lister := &fakeLister{boxes: map[string][]mailbox.Message{
		"a@mailto.plus": {
			{ID: 3, Subject: "third", From: "x@y.z", Text: "c"},
			{ID: 2, Subject: "second", From: "x@y.z", Text: "b"},
			{ID: 1, Subject: "first", From: "x@y.z", Text: "a"},
		},
	}}
	notifier := &fakeNotifier{}
	p := newTestPoller(lister, notifier, &fakeSuperseder{}, reg)

	p.pollOne(context.Background(), sess)

	texts := notifier.texts()
	if len(texts) != 3 {
		t.Fatalf("sent %d messages, want 3", len(texts))
	}
	for i, want := range []string{"first", "second", "third"} {
		if !strings.Contains(texts[i], want) {
			t.Errorf("message %d = %q, want subject %q", i, texts[i], want)
		}
	}
	if got := reg.Get(1).LastSeenMailID; got != 3 {
		t.Errorf("cursor = %d, want 3", got)
	}
}

func TestPollOneEmptyDelta(t *testing.T) {
	t.Parallel()

	reg := session.NewRegistry()
	reg.SetAddress(1, "a@mailto.plus")
	reg.AdvanceCursor(1, "a@mailto.plus", 3)
	sess := reg.Get(1)

	lister := &fakeLister{boxes: map[string][]mailbox.Message{
		"a@mailto.plus": {{ID: 3}, {ID: 2}},
	}}
	notifier := &fakeNotifier{}
	p := newTestPoller(lister, notifier, &fakeSuperseder{}, reg)

	p.pollOne(context.Background(), sess)

	if len(notifier.texts()) != 0 {
		t.Errorf("dispatched %d messages on empty delta", len(notifier.texts()))
	}
	if got := reg.Get(1).LastSeenMailID; got != 3 {
		t.Errorf("cursor moved to %d on empty delta", got)
	}
}

func TestPollOneUpstreamError(t *testing.T) {
	t.Parallel()

	reg := session.NewRegistry()
	sess := reg.SetAddress(1, "a@mailto.plus")

	lister := &fakeLister{err: mailbox.ErrUpstream}
	notifier := &fakeNotifier{}
	p := newTestPoller(lister, notifier, &fakeSuperseder{}, reg)

	p.pollOne(context.Background(), sess)

	if len(notifier.texts()) != 0 {
		t.Error("dispatched messages despite fetch failure")
	}
	if got := reg.Get(1).LastSeenMailID; got != 0 {
		t.Errorf("cursor = %d, want 0 after failed fetch", got)
	}
}

func TestPollOneDispatchFailureContinues(t *testing.T) {
	t.Parallel()

	reg := session.NewRegistry()
	sess := reg.SetAddress(1, "a@mailto.plus")

	lister := &fakeLister{boxes: map[string][]mailbox.Message{
		"a@mailto.plus": {{ID: 2, Subject: "s2"}, {ID: 1, Subject: "s1"}},
	}}
	notifier := &fakeNotifier{err: errors.New("send failed")}
	p := newTestPoller(lister, notifier, &fakeSuperseder{}, reg)

	p.pollOne(context.Background(), sess)

	// cursor still advances once per cycle, independent of dispatch
	if got := reg.Get(1).LastSeenMailID; got != 2 {
		t.Errorf("cursor = %d, want 2", got)
	}
}

func TestPollOneStaleAddressSkipsDispatch(t *testing.T) {
	t.Parallel()

	reg := session.NewRegistry()
	sess := reg.SetAddress(1, "old@mailto.plus")
	// The chat switched addresses after the snapshot was taken.
	reg.SetAddress(1, "new@mailto.plus")

	lister := &fakeLister{boxes: map[string][]mailbox.Message{
		"old@mailto.plus": {{ID: 5, Subject: "stale"}},
	}}
	notifier := &fakeNotifier{}
	p := newTestPoller(lister, notifier, &fakeSuperseder{}, reg)

	p.pollOne(context.Background(), sess)

	if len(notifier.texts()) != 0 {
		t.Error("delivered mail for a retired address")
	}
	if got := reg.Get(1).LastSeenMailID; got != 0 {
		t.Errorf("cursor = %d, want 0 for the fresh address", got)
	}
}

func TestPollOneRegressedListingDropsCycle(t *testing.T) {
	t.Parallel()

	reg := session.NewRegistry()
	reg.SetAddress(1, "a@mailto.plus")
	if !reg.AdvanceCursor(1, "a@mailto.plus", 10) {
		t.Fatal("seed cursor")
	}
	sess := reg.Get(1)

	// Every listed id sits below the cursor: the provider went backwards.
	lister := &fakeLister{boxes: map[string][]mailbox.Message{
		"a@mailto.plus": {
			{ID: 3, Subject: "old", From: "x@y.z", Text: "c"},
			{ID: 2, Subject: "older", From: "x@y.z", Text: "b"},
		},
	}}
	notifier := &fakeNotifier{}
	p := newTestPoller(lister, notifier, &fakeSuperseder{}, reg)

	p.pollOne(context.Background(), sess)

	if len(notifier.texts()) != 0 {
		t.Error("redelivered mail from a regressed listing")
	}
	if got := reg.Get(1).LastSeenMailID; got != 10 {
		t.Errorf("cursor = %d, want 10 (unchanged)", got)
	}
}

func TestAutoRotate(t *testing.T) {
	t.Parallel()

	reg := session.NewRegistry()
	reg.SetAddress(1, "a@mailto.plus")
	reg.ToggleAutoRotate(1)
	sess := reg.Get(1)

	lister := &fakeLister{boxes: map[string][]mailbox.Message{
		"a@mailto.plus": {{ID: 1, Subject: "mail"}},
	}}
	notifier := &fakeNotifier{}
	codes := &fakeSuperseder{}
	p := newTestPoller(lister, notifier, codes, reg)

	p.pollOne(context.Background(), sess)

	after := reg.Get(1)
	if after.ActiveAddress == "a@mailto.plus" || after.ActiveAddress == "" {
		t.Errorf("address not rotated: %q", after.ActiveAddress)
	}
	if after.LastSeenMailID != 0 {
		t.Errorf("cursor = %d, want 0 after rotation", after.LastSeenMailID)
	}
	if len(codes.calls) != 1 || codes.calls[0] != 1 {
		t.Errorf("countdown supersede calls = %v", codes.calls)
	}

	texts := notifier.texts()
	if len(texts) != 2 {
		t.Fatalf("sent %d messages, want mail + rotation notice", len(texts))
	}
	if !strings.Contains(texts[1], after.ActiveAddress) {
		t.Errorf("rotation notice %q does not name the new address", texts[1])
	}
}

func TestRotateWithPrefix(t *testing.T) {
	t.Parallel()

	reg := session.NewRegistry()
	reg.SetAddress(1, "a@mailto.plus")
	reg.SetPrefix(1, "myname99")
	reg.ToggleAutoRotate(1)
	sess := reg.Get(1)

	lister := &fakeLister{boxes: map[string][]mailbox.Message{
		"a@mailto.plus": {{ID: 1}},
	}}
	notifier := &fakeNotifier{}
	p := newTestPoller(lister, notifier, &fakeSuperseder{}, reg)

	p.pollOne(context.Background(), sess)

	if got := reg.Get(1).ActiveAddress; got != "myname99@mailto.plus" {
		t.Errorf("rotated address = %q, want prefix-derived", got)
	}
}

func TestRenderMailOTPTemplate(t *testing.T) {
	t.Parallel()

	msg := renderMail(mailbox.Message{
		ID: 1, Subject: "Your CODE is 482910", From: "Google <no-reply@google.com>",
	}, 500)
	if !strings.Contains(msg.Text, "482910") {
		t.Errorf("OTP message %q missing code", msg.Text)
	}
	if !strings.Contains(msg.Text, "Google") {
		t.Errorf("OTP message %q missing sender", msg.Text)
	}

	plain := renderMail(mailbox.Message{
		ID: 2, Subject: "Welcome", From: "x@unknown.example", Text: "hello there",
	}, 500)
	if !strings.Contains(plain.Text, "hello there") {
		t.Errorf("plain message %q missing body preview", plain.Text)
	}
}
