package watcher

import (
	"mailpost/internal/mailbox"
	"mailpost/internal/otp"
	"mailpost/pkg/tgui"
)

// Callback data for the quick-action keyboard attached to rotation
// notices. Kept in sync with the command layer's mailbox handlers.
const (
	mailScope      = "mail"
	actionGenerate = "generate"
	actionList     = "list"
)

func mailboxKeyboard() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.Btn("📧 Generate Email", tgui.Data(mailScope, actionGenerate, ""))).
		Row(tgui.Btn("📜 My Emails", tgui.Data(mailScope, actionList, "")))
}

// renderMail builds the delivery message for one inbound mail. Mails
// with an extractable code get the compact OTP template; everything
// else gets sender, subject and a bounded body preview.
func renderMail(m mailbox.Message, previewLimit int) tgui.Message {
	sender := mailbox.NormalizeSender(m.From)
	body := mailbox.BodyText(m)

	if code := otp.Extract(m.Subject, body); code != "" {
		return tgui.New().
			Title("🚨", "New OTP Received!").
			Blank().
			KV("From", sender).
			Blank().
			Code(code).
			Build()
	}

	b := tgui.New().
		Title("📩", "New Mail Received!").
		Blank().
		KV("From", sender).
		KV("Subject", m.Subject).
		Blank()
	if body == "" {
		b.Line("(empty body)")
	} else {
		b.Pre(tgui.TruncRunes(body, previewLimit))
	}
	return b.Build()
}

func renderRotation(newAddr string) tgui.Message {
	return tgui.New().
		Title("♻️", "Auto-Generated New Email!").
		Blank().
		Line("The previous address was retired after new mail arrived.").
		Blank().
		KV("Active", newAddr).
		Inline(mailboxKeyboard()).
		Build()
}
