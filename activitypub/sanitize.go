package activitypub

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// contentPolicy is the allow-list applied to all remote HTML before it is
// persisted: structural and inline markup survives, scripts, styles and
// event handlers do not. Safe for concurrent use.
var contentPolicy = newContentPolicy()

func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "span", "a", "em", "strong", "b", "i", "u", "s",
		"code", "pre", "blockquote", "ul", "ol", "li")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("class").OnElements("span", "a", "code")
	p.AllowURLSchemes("http", "https")
	p.RequireNoFollowOnLinks(true)
	return p
}

// SanitizeContent strips everything outside the content allow-list.
func SanitizeContent(html string) string {
	return strings.TrimSpace(contentPolicy.Sanitize(html))
}
