package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	kit "mailpost/internal/transport"
	logx "mailpost/pkg/logx"
)

type recordAdapter struct {
	mu       sync.Mutex
	sent     []string
	answered []string
}

func (r *recordAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (r *recordAdapter) Stop(ctx context.Context) error                         { return nil }

func (r *recordAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(r.sent)}, nil
}

func (r *recordAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}

func (r *recordAdapter) AnswerCallback(ctx context.Context, id, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answered = append(r.answered, id)
	return nil
}

func (r *recordAdapter) sentTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func startRouter(t *testing.T, ad kit.Adapter, cmds []Command, cbs []CallbackRoute) (*Router, chan kit.Update) {
	t.Helper()
	r := New(logx.Nop(), ad)
	r.SetRegistry(cmds, cbs)

	updates := make(chan kit.Update, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.DispatchLoop(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r, updates
}

func msgUpdate(chatID int64, text string) kit.Update {
	return kit.Update{
		Kind:    kit.UpdateMessage,
		Message: &kit.Message{ID: 1, ChatID: chatID, FromID: chatID, Text: text},
	}
}

func TestRouteCommandWithArgs(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		gotArgs []string
	)
	ad := &recordAdapter{}
	_, updates := startRouter(t, ad, []Command{{
		Name: "set",
		Handle: func(ctx context.Context, req *Request) error {
			mu.Lock()
			gotArgs = append([]string(nil), req.Args...)
			mu.Unlock()
			return nil
		},
	}}, nil)

	updates <- msgUpdate(1, "/set myname99")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotArgs) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if gotArgs[0] != "myname99" {
		t.Errorf("args = %v", gotArgs)
	}
}

func TestRouteCommandStripsBotMention(t *testing.T) {
	t.Parallel()

	called := make(chan struct{}, 1)
	ad := &recordAdapter{}
	_, updates := startRouter(t, ad, []Command{{
		Name: "generate",
		Handle: func(ctx context.Context, req *Request) error {
			called <- struct{}{}
			return nil
		},
	}}, nil)

	updates <- msgUpdate(1, "/generate@mailpostbot")
	select {
	case <-called:
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called for /cmd@bot form")
	}
}

func TestUnknownCommandHint(t *testing.T) {
	t.Parallel()

	ad := &recordAdapter{}
	_, updates := startRouter(t, ad, nil, nil)

	updates <- msgUpdate(1, "/nosuchthing")
	waitFor(t, func() bool { return len(ad.sentTexts()) == 1 })
	if !strings.Contains(ad.sentTexts()[0], "/start") {
		t.Errorf("hint = %q", ad.sentTexts()[0])
	}
}

func TestNonCommandIgnored(t *testing.T) {
	t.Parallel()

	ad := &recordAdapter{}
	_, updates := startRouter(t, ad, nil, nil)

	updates <- msgUpdate(1, "just chatting")
	time.Sleep(50 * time.Millisecond)
	if n := len(ad.sentTexts()); n != 0 {
		t.Errorf("sent %d replies to a non-command", n)
	}
}

func TestRouteCallback(t *testing.T) {
	t.Parallel()

	payloads := make(chan string, 1)
	ad := &recordAdapter{}
	_, updates := startRouter(t, ad, nil, []CallbackRoute{{
		Scope:  "code",
		Action: "claim",
		Handle: func(ctx context.Context, req *Request, payload string) error {
			payloads <- payload
			return nil
		},
	}})

	updates <- kit.Update{
		Kind:     kit.UpdateCallback,
		Callback: &kit.Callback{ID: "cb1", ChatID: 1, FromID: 1, MessageID: 2, Data: "code:claim:7"},
	}
	select {
	case p := <-payloads:
		if p != "7" {
			t.Errorf("payload = %q, want 7", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("callback handler not called")
	}
}

func TestCallbackAnsweredBeforeHandler(t *testing.T) {
	t.Parallel()

	ad := &recordAdapter{}
	entered := make(chan struct{})
	block := make(chan struct{})
	_, updates := startRouter(t, ad, nil, []CallbackRoute{{
		Scope:  "code",
		Action: "claim",
		Handle: func(ctx context.Context, req *Request, payload string) error {
			close(entered)
			<-block
			return nil
		},
	}})
	defer close(block)

	updates <- kit.Update{
		Kind:     kit.UpdateCallback,
		Callback: &kit.Callback{ID: "cb9", ChatID: 1, FromID: 1, MessageID: 2, Data: "code:claim:1"},
	}

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("callback handler not called")
	}

	// The handler is still blocked; the press must already be acknowledged.
	ad.mu.Lock()
	answered := append([]string(nil), ad.answered...)
	ad.mu.Unlock()
	if len(answered) != 1 || answered[0] != "cb9" {
		t.Fatalf("answered = %v, want [cb9] before the handler finishes", answered)
	}
}

func TestPanicInHandlerRecovered(t *testing.T) {
	t.Parallel()

	second := make(chan struct{}, 1)
	ad := &recordAdapter{}
	_, updates := startRouter(t, ad, []Command{
		{Name: "boom", Handle: func(ctx context.Context, req *Request) error { panic("kaput") }},
		{Name: "ok", Handle: func(ctx context.Context, req *Request) error {
			second <- struct{}{}
			return nil
		}},
	}, nil)

	updates <- msgUpdate(1, "/boom")
	updates <- msgUpdate(2, "/ok")
	select {
	case <-second:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher died after handler panic")
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"generate", "generate"},
		{"Auto-Rotate", "auto_rotate"},
		{"  set  ", "set"},
		{"weird!name", "weirdname"},
		{"", ""},
		{"9lives", "cmd_9lives"},
	}
	for _, tc := range cases {
		if got := sanitizeTelegramCommand(tc.in); got != tc.want {
			t.Errorf("sanitizeTelegramCommand(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFloodGate(t *testing.T) {
	t.Parallel()

	g := newFloodGate(1, 2)
	if !g.allow(1) || !g.allow(1) {
		t.Fatal("burst should be allowed")
	}
	if g.allow(1) {
		t.Error("third rapid hit should be limited")
	}
	// other chats are unaffected
	if !g.allow(2) {
		t.Error("independent chat limited")
	}
}
