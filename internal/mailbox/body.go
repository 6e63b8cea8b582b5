package mailbox

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BodyText returns the best plain-text rendering of a message body.
// The provider's text field wins; HTML is stripped only as a fallback.
func BodyText(m Message) string {
	if s := strings.TrimSpace(m.Text); s != "" {
		return s
	}
	if m.HTML == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(m.HTML))
	if err != nil {
		return strings.TrimSpace(m.HTML)
	}
	doc.Find("script,style").Remove()
	return strings.TrimSpace(collapseSpace(doc.Text()))
}

// collapseSpace squashes runs of whitespace into single spaces while
// keeping line breaks, so stripped HTML stays readable in a chat message.
func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space, newline := false, false
	for _, r := range s {
		switch r {
		case '\n', '\r':
			newline = true
		case ' ', '\t', ' ':
			space = true
		default:
			if newline {
				b.WriteByte('\n')
			} else if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space, newline = false, false
			b.WriteRune(r)
		}
	}
	return b.String()
}
