package notify

import (
	"fmt"
	"strings"
	"time"

	"coursewatch/internal/seen"
)

// BuildDigestHTML renders the digest email body. Records appear in the
// order given, which is discovery order.
func BuildDigestHTML(records []seen.Record, now time.Time) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString(fmt.Sprintf("<h2>%d new free course", len(records)))
	if len(records) != 1 {
		b.WriteString("s")
	}
	b.WriteString("</h2>")
	b.WriteString(fmt.Sprintf("<p>Found by %s</p>", now.Format("Mon, 02 Jan 2006 15:04 MST")))
	b.WriteString("<ul>")
	for _, record := range records {
		title := record.Title
		if title == "" {
			title = record.Identity
		}
		if record.URL != "" {
			b.WriteString(fmt.Sprintf(`<li><a href="%s">%s</a></li>`,
				htmlEscape(record.URL), htmlEscape(title)))
		} else {
			b.WriteString(fmt.Sprintf("<li>%s</li>", htmlEscape(title)))
		}
	}
	b.WriteString("</ul>")
	b.WriteString("</body></html>")
	return b.String()
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func htmlEscape(s string) string {
	return htmlEscaper.Replace(s)
}
