package livecode

import (
	"fmt"
	"strconv"

	"mailpost/pkg/tgui"
)

// CallbackScope and CallbackAction form the claim button's callback data,
// with the job generation as payload so stale claims are ignored.
const (
	CallbackScope  = "code"
	CallbackAction = "claim"
)

func claimKeyboard(gen uint64) *tgui.Inline {
	data := tgui.Data(CallbackScope, CallbackAction, strconv.FormatUint(gen, 10))
	return tgui.NewInline().Row(tgui.Btn("✅ Claim", data))
}

// urgency picks the countdown tier: calm above 15s, warning from 6 to
// 15s, critical at 5s and below.
func urgency(remaining int) string {
	switch {
	case remaining >= 16:
		return "🟢"
	case remaining >= 6:
		return "🟡"
	default:
		return "🔴"
	}
}

func renderActive(code string, remaining int, gen uint64) tgui.Message {
	return tgui.New().
		Title("🔐", "Live 2FA Code").
		Blank().
		Code(code).
		Blank().
		RawLine(fmt.Sprintf("%s Expires in %s", urgency(remaining), tgui.B(strconv.Itoa(remaining)+"s"))).
		Inline(claimKeyboard(gen)).
		Build()
}

func renderExpired(code string) tgui.Message {
	return tgui.New().
		Title("⌛", "Code Expired").
		Blank().
		RawLine("<s>" + tgui.Esc(code).String() + "</s>").
		Blank().
		Line("Send the secret again for a fresh code.").
		Build()
}

func renderClaimed(code string) tgui.Message {
	return tgui.New().
		Title("✅", "Code Claimed").
		Blank().
		Code(code).
		Blank().
		Line("Good luck!").
		Build()
}
