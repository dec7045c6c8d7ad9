package adapter

import (
	"html"
	"regexp"
	"strings"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// extractText flattens a posting's description HTML into plain text for
// storage as the raw body. RemoteOK serves descriptions with entity-encoded
// markup, so entities are unescaped first (a no-op on already-real HTML),
// then tags are stripped and whitespace collapsed.
func extractText(content string) string {
	unescaped := html.UnescapeString(content)
	plain := htmlTagRegex.ReplaceAllString(unescaped, "")
	return strings.Join(strings.Fields(plain), " ")
}
