package app

import (
	"context"
	"strings"
	"sync"
	"testing"

	"mailpost/internal/livecode"
	"mailpost/internal/mailbox"
	"mailpost/internal/session"
	kit "mailpost/internal/transport"
	"mailpost/internal/transport/telegram/router"
	logx "mailpost/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sends []string
	edits []string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sends)}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, id, text string) error { return nil }

func (f *fakeAdapter) lastSend() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sends) == 0 {
		return ""
	}
	return f.sends[len(f.sends)-1]
}

func (f *fakeAdapter) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

func newTestDeps(ad *fakeAdapter) commandDeps {
	return commandDeps{
		sessions:  session.NewRegistry(),
		generator: mailbox.NewGenerator("mailto.plus"),
		codes:     livecode.NewManager(ad, logx.Nop(), nil),
	}
}

func req(ad *fakeAdapter, chatID int64, args ...string) *router.Request {
	return &router.Request{
		Chat:    kit.ChatTarget{ChatID: chatID},
		Args:    args,
		Adapter: ad,
		Logger:  logx.Nop(),
	}
}

func cbReq(ad *fakeAdapter, chatID int64, messageID int) *router.Request {
	r := req(ad, chatID)
	r.Update = kit.Update{
		Kind:     kit.UpdateCallback,
		Callback: &kit.Callback{ChatID: chatID, MessageID: messageID},
	}
	return r
}

func TestBuildRegistry(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	cmds, cbs := buildRegistry(newTestDeps(ad))

	wantCmds := []string{"start", "generate", "set", "autorotate", "code"}
	if len(cmds) != len(wantCmds) {
		t.Fatalf("commands = %d, want %d", len(cmds), len(wantCmds))
	}
	for i, w := range wantCmds {
		if cmds[i].Name != w {
			t.Errorf("command[%d] = %q, want %q", i, cmds[i].Name, w)
		}
		if cmds[i].Handle == nil {
			t.Errorf("command %q has no handler", w)
		}
	}
	if len(cbs) != 3 {
		t.Fatalf("callbacks = %d, want 3", len(cbs))
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	d := newTestDeps(ad)

	if err := d.handleGenerate(context.Background(), req(ad, 1, "myname99")); err != nil {
		t.Fatalf("handleGenerate: %v", err)
	}
	if got := d.sessions.Get(1).ActiveAddress; got != "myname99@mailto.plus" {
		t.Errorf("active address = %q", got)
	}
	if !strings.Contains(ad.lastSend(), "myname99@mailto.plus") {
		t.Errorf("reply missing address: %q", ad.lastSend())
	}
}

func TestGenerateBadPrefix(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	d := newTestDeps(ad)

	if err := d.handleGenerate(context.Background(), req(ad, 1, "no")); err != nil {
		t.Fatalf("handleGenerate: %v", err)
	}
	if got := d.sessions.Get(1).ActiveAddress; got != "" {
		t.Errorf("address set despite invalid prefix: %q", got)
	}
	if !strings.Contains(ad.lastSend(), "6 to 12") {
		t.Errorf("reply did not explain the constraint: %q", ad.lastSend())
	}
}

func TestGenerateRandomWithoutPrefix(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	d := newTestDeps(ad)

	if err := d.handleGenerate(context.Background(), req(ad, 1)); err != nil {
		t.Fatalf("handleGenerate: %v", err)
	}
	addr := d.sessions.Get(1).ActiveAddress
	if !strings.HasSuffix(addr, "@mailto.plus") {
		t.Errorf("address = %q", addr)
	}
}

func TestSetPrefixThenGenerate(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	d := newTestDeps(ad)

	if err := d.handleSet(context.Background(), req(ad, 1, "MyName99")); err != nil {
		t.Fatalf("handleSet: %v", err)
	}
	if got := d.sessions.Get(1).UsernamePrefix; got != "myname99" {
		t.Errorf("stored prefix = %q, want lowercased", got)
	}

	if err := d.handleGenerate(context.Background(), req(ad, 1)); err != nil {
		t.Fatalf("handleGenerate: %v", err)
	}
	if got := d.sessions.Get(1).ActiveAddress; got != "myname99@mailto.plus" {
		t.Errorf("address = %q", got)
	}
}

func TestSetRejectsInvalidName(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	d := newTestDeps(ad)

	if err := d.handleSet(context.Background(), req(ad, 1, "bad name!")); err != nil {
		t.Fatalf("handleSet: %v", err)
	}
	if got := d.sessions.Get(1).UsernamePrefix; got != "" {
		t.Errorf("prefix saved despite invalid input: %q", got)
	}
	if !strings.Contains(ad.lastSend(), "alphanumeric") {
		t.Errorf("reply did not explain the constraint: %q", ad.lastSend())
	}
}

func TestAutoRotateToggle(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	d := newTestDeps(ad)

	if err := d.handleAutoRotate(context.Background(), req(ad, 1)); err != nil {
		t.Fatalf("handleAutoRotate: %v", err)
	}
	if !d.sessions.Get(1).AutoRotate {
		t.Error("auto-rotate not enabled")
	}
	if !strings.Contains(ad.lastSend(), "ON") {
		t.Errorf("reply = %q", ad.lastSend())
	}

	if err := d.handleAutoRotate(context.Background(), req(ad, 1)); err != nil {
		t.Fatalf("handleAutoRotate: %v", err)
	}
	if d.sessions.Get(1).AutoRotate {
		t.Error("auto-rotate not disabled on second toggle")
	}
}

func TestCodeUsageWithoutArgs(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	d := newTestDeps(ad)

	if err := d.handleCode(context.Background(), req(ad, 1)); err != nil {
		t.Fatalf("handleCode: %v", err)
	}
	if !strings.Contains(ad.lastSend(), "/code") {
		t.Errorf("usage reply = %q", ad.lastSend())
	}
}

func TestCodeRejectsInvalidSecret(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	d := newTestDeps(ad)

	if err := d.handleCode(context.Background(), req(ad, 1, "!!!not-base32!!!")); err != nil {
		t.Fatalf("handleCode: %v", err)
	}
	if !strings.Contains(ad.lastSend(), "TOTP secret") {
		t.Errorf("reply = %q", ad.lastSend())
	}
}

func TestCallbackGenerateEditsInPlace(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	d := newTestDeps(ad)

	if err := d.cbGenerate(context.Background(), cbReq(ad, 1, 42), ""); err != nil {
		t.Fatalf("cbGenerate: %v", err)
	}
	addr := d.sessions.Get(1).ActiveAddress
	if addr == "" {
		t.Fatal("no address generated")
	}
	if !strings.Contains(ad.lastEdit(), addr) {
		t.Errorf("menu message not edited with address: %q", ad.lastEdit())
	}
}

func TestCallbackListShowsActiveAddress(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	d := newTestDeps(ad)
	d.sessions.SetAddress(1, "abcdef@mailto.plus")

	if err := d.cbList(context.Background(), cbReq(ad, 1, 42), ""); err != nil {
		t.Fatalf("cbList: %v", err)
	}
	if !strings.Contains(ad.lastEdit(), "abcdef@mailto.plus") {
		t.Errorf("list missing active address: %q", ad.lastEdit())
	}
}

func TestCallbackClaimIgnoresBadPayload(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	d := newTestDeps(ad)

	if err := d.cbClaim(context.Background(), cbReq(ad, 1, 42), "not-a-number"); err != nil {
		t.Errorf("cbClaim: %v", err)
	}
	if got := ad.lastEdit(); got != "" {
		t.Errorf("unexpected edit: %q", got)
	}
}
