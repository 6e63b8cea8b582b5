package mailbox

import "strings"

// knownSenders maps either a full address or a bare domain (both lowercase)
// to a human-friendly service name. Full-address entries win over domain entries.
var knownSenders = map[string]string{
	"google.com":                    "Google",
	"registration@facebookmail.com": "Facebook",
	"meta.com":                      "Meta (Facebook)",
	"twitter.com":                   "X (Twitter)",
	"discord.com":                   "Discord",
	"amazon.com":                    "Amazon",
	"microsoft.com":                 "Microsoft",
	"apple.com":                     "Apple",
	"noreply@telegram.org":          "Telegram",
	"instagram.com":                 "Instagram",
	"tiktok.com":                    "TikTok",
	"netflix.com":                   "Netflix",
	"steamcommunity.com":            "Steam",
	"reddit.com":                    "Reddit",
	"paypal.com":                    "PayPal",
	"snapchat.com":                  "Snapchat",
	"spotify.com":                   "Spotify",
	"linkedin.com":                  "LinkedIn",
	"uber.com":                      "Uber",
	"noreply@tm.openai.com":         "Chat Gpt",
}

// NormalizeSender turns a raw From header into a display name.
//
// Resolution order: full-address entry, then domain entry, then the
// display-name portion of "Name <addr>", then the raw value with
// angle brackets stripped.
func NormalizeSender(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "Unknown"
	}

	display, addr := splitFromHeader(raw)

	if addr != "" {
		lower := strings.ToLower(addr)
		if name, ok := knownSenders[lower]; ok {
			return name
		}
		if at := strings.LastIndexByte(lower, '@'); at >= 0 && at+1 < len(lower) {
			// Walk domain suffixes so accounts.google.com matches google.com.
			domain := lower[at+1:]
			for domain != "" {
				if name, ok := knownSenders[domain]; ok {
					return name
				}
				dot := strings.IndexByte(domain, '.')
				if dot < 0 {
					break
				}
				domain = domain[dot+1:]
			}
		}
	}

	if display != "" {
		return display
	}
	if addr != "" {
		return addr
	}
	return strings.Trim(raw, "<>")
}

// splitFromHeader separates "Display Name <user@host>" into its parts.
// Either part may come back empty.
func splitFromHeader(raw string) (display, addr string) {
	open := strings.LastIndexByte(raw, '<')
	close := strings.LastIndexByte(raw, '>')
	if open >= 0 && close > open {
		addr = strings.TrimSpace(raw[open+1 : close])
		display = strings.Trim(strings.TrimSpace(raw[:open]), `"`)
		return display, addr
	}
	if strings.ContainsRune(raw, '@') {
		return "", strings.Trim(raw, "<>")
	}
	return raw, ""
}
