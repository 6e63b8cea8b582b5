package app

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"mailpost/internal/livecode"
	"mailpost/internal/mailbox"
	"mailpost/internal/otp"
	"mailpost/internal/session"
	"mailpost/internal/transport"
	"mailpost/internal/transport/telegram/router"
	"mailpost/pkg/tgui"
)

// Callback scopes/actions. The watcher attaches the same mailbox
// keyboard to rotation notices.
const (
	scopeMail      = "mail"
	actionGenerate = "generate"
	actionList     = "list"
)

type commandDeps struct {
	sessions  *session.Registry
	generator *mailbox.Generator
	codes     *livecode.Manager
}

func mailboxKeyboard() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.Btn("📧 Generate Email", tgui.Data(scopeMail, actionGenerate, ""))).
		Row(tgui.Btn("📜 My Emails", tgui.Data(scopeMail, actionList, "")))
}

func buildRegistry(d commandDeps) ([]router.Command, []router.CallbackRoute) {
	cmds := []router.Command{
		{
			Name:        "start",
			Description: "welcome and main menu",
			Handle:      d.handleStart,
		},
		{
			Name:        "generate",
			Description: "generate a new disposable email",
			Usage:       "/generate [prefix]",
			Handle:      d.handleGenerate,
		},
		{
			Name:        "set",
			Description: "set a persistent address prefix",
			Usage:       "/set <name>",
			Handle:      d.handleSet,
		},
		{
			Name:        "autorotate",
			Description: "toggle auto-rotation on new mail",
			Handle:      d.handleAutoRotate,
		},
		{
			Name:        "code",
			Description: "show a live 2FA code for a TOTP secret",
			Usage:       "/code <secret>",
			Handle:      d.handleCode,
		},
	}

	cbs := []router.CallbackRoute{
		{Scope: scopeMail, Action: actionGenerate, Handle: d.cbGenerate},
		{Scope: scopeMail, Action: actionList, Handle: d.cbList},
		{Scope: livecode.CallbackScope, Action: livecode.CallbackAction, Handle: d.cbClaim},
	}
	return cmds, cbs
}

func (d commandDeps) handleStart(ctx context.Context, req *router.Request) error {
	// Any menu navigation retires a running countdown.
	d.codes.Supersede(req.Chat.ChatID)
	d.sessions.Get(req.Chat.ChatID)

	msg := tgui.New().
		Title("👋", "Disposable Webmail Bot").
		Blank().
		Line("Generate throwaway addresses and get incoming mail right here, with OTP codes picked out for you.").
		Blank().
		KV("/generate", "new address (optional one-off prefix)").
		KV("/set", "choose a persistent address prefix").
		KV("/autorotate", "fresh address after every delivery").
		KV("/code", "live TOTP code with countdown").
		Blank().
		Line("⏰ Mail usually lands within a few seconds.").
		Inline(mailboxKeyboard()).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

// newAddress mints an address for the chat, preferring the one-shot
// prefix, then the stored prefix, then a random local part.
func (d commandDeps) newAddress(chatID int64, oneShot string) (string, error) {
	if oneShot != "" {
		return d.generator.FromPrefix(oneShot)
	}
	if p := d.sessions.Get(chatID).UsernamePrefix; p != "" {
		return d.generator.FromPrefix(p)
	}
	return d.generator.Random()
}

func renderGenerated(addr string) tgui.Message {
	return tgui.New().
		Title("〽️", "New Web Mail Generated").
		Blank().
		Code(addr).
		Blank().
		Line("⏰ Wait a few seconds for mail to arrive.").
		Inline(mailboxKeyboard()).
		Build()
}

func (d commandDeps) handleGenerate(ctx context.Context, req *router.Request) error {
	d.codes.Supersede(req.Chat.ChatID)

	oneShot := ""
	if len(req.Args) > 0 {
		oneShot = req.Args[0]
	}
	addr, err := d.newAddress(req.Chat.ChatID, oneShot)
	if err != nil {
		if errors.Is(err, mailbox.ErrInvalidPrefix) {
			_, serr := req.Adapter.SendText(ctx, req.Chat,
				"❌ The prefix must be 6 to 12 letters or digits, e.g. /generate myname99.", nil)
			return serr
		}
		return err
	}

	d.sessions.SetAddress(req.Chat.ChatID, addr)
	_, err = renderGenerated(addr).Send(ctx, req.Adapter, req.Chat)
	return err
}

func (d commandDeps) handleSet(ctx context.Context, req *router.Request) error {
	d.codes.Supersede(req.Chat.ChatID)

	if len(req.Args) != 1 {
		msg := tgui.New().
			Title("", "Usage: /set <name>").
			Blank().
			Line("The name becomes the prefix of every address you generate.").
			Line("It must be 6 to 12 letters or digits.").
			Build()
		_, err := msg.Send(ctx, req.Adapter, req.Chat)
		return err
	}

	prefix := strings.ToLower(req.Args[0])
	if err := mailbox.ValidatePrefix(prefix); err != nil {
		_, serr := req.Adapter.SendText(ctx, req.Chat,
			"❌ The name must be alphanumeric and between 6 and 12 characters.", nil)
		return serr
	}

	d.sessions.SetPrefix(req.Chat.ChatID, prefix)
	msg := tgui.New().
		Title("✅", "Prefix saved").
		Blank().
		Code(prefix).
		Blank().
		Line("Use Generate Email or /generate to mint an address with it.").
		Inline(mailboxKeyboard()).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (d commandDeps) handleAutoRotate(ctx context.Context, req *router.Request) error {
	d.codes.Supersede(req.Chat.ChatID)

	on := d.sessions.ToggleAutoRotate(req.Chat.ChatID)
	state, emoji := "OFF", "❌"
	if on {
		state, emoji = "ON", "✅"
	}
	msg := tgui.New().
		Title(emoji, "Auto-Rotate is now "+state).
		Blank().
		Line("When ON, any new mail replaces your current address with a fresh one.").
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (d commandDeps) handleCode(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		msg := tgui.New().
			Title("", "Usage: /code <secret>").
			Blank().
			Line("Paste the base32 secret from your authenticator setup page.").
			Line("Spaces and hyphens in the secret are fine.").
			Build()
		_, err := msg.Send(ctx, req.Adapter, req.Chat)
		return err
	}

	secret := strings.Join(req.Args, " ")
	if err := d.codes.Start(ctx, req.Chat.ChatID, secret); err != nil {
		if errors.Is(err, otp.ErrInvalidSecret) {
			_, serr := req.Adapter.SendText(ctx, req.Chat,
				"❌ That doesn't look like a valid TOTP secret. Paste the base32 key, e.g. /code JBSW Y3DP EHPK 3PXP.", nil)
			return serr
		}
		return err
	}
	return nil
}

func (d commandDeps) cbGenerate(ctx context.Context, req *router.Request, _ string) error {
	d.codes.Supersede(req.Chat.ChatID)

	addr, err := d.newAddress(req.Chat.ChatID, "")
	if err != nil {
		return err
	}
	d.sessions.SetAddress(req.Chat.ChatID, addr)

	// Edit the menu message in place; fall back to a fresh send when the
	// original is no longer editable.
	msg := renderGenerated(addr)
	ref := transport.MessageRef{ChatID: req.Chat.ChatID, MessageID: req.Update.Callback.MessageID}
	if err := msg.Edit(ctx, req.Adapter, ref); err != nil {
		_, serr := msg.Send(ctx, req.Adapter, req.Chat)
		return serr
	}
	return nil
}

func (d commandDeps) cbList(ctx context.Context, req *router.Request, _ string) error {
	d.codes.Supersede(req.Chat.ChatID)

	sess := d.sessions.Get(req.Chat.ChatID)
	b := tgui.New()
	if sess.ActiveAddress == "" {
		b.Title("❌", "No address yet").
			Blank().
			Line("Generate one to get started.")
	} else {
		b.Title("📜", "Your generated emails").
			Blank().
			RawLine("• " + tgui.Code(sess.ActiveAddress).String() + " (active)")
	}
	msg := b.Inline(mailboxKeyboard()).Build()

	ref := transport.MessageRef{ChatID: req.Chat.ChatID, MessageID: req.Update.Callback.MessageID}
	if err := msg.Edit(ctx, req.Adapter, ref); err != nil {
		_, serr := msg.Send(ctx, req.Adapter, req.Chat)
		return serr
	}
	return nil
}

func (d commandDeps) cbClaim(ctx context.Context, req *router.Request, payload string) error {
	gen, err := strconv.ParseUint(strings.TrimSpace(payload), 10, 64)
	if err != nil {
		return nil
	}
	d.codes.Claim(ctx, req.Chat.ChatID, gen)
	return nil
}
