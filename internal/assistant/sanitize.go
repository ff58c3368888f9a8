package assistant

import (
	"regexp"
	"strings"
)

var (
	// opening fence carrying a language tag, e.g. ```json or ```Go
	taggedFence = regexp.MustCompile("(?i)`{3,}[a-z][a-z0-9_+#.-]*[ \t]*\r?\n")
	// a json tag glued to content without a newline
	jsonFence = regexp.MustCompile("(?i)`{3,}json")
	bareFence = regexp.MustCompile("`{3,}")
)

// Sanitize strips markdown code fences from generated text so it renders as
// a plain chat bubble, then trims surrounding whitespace.
func Sanitize(text string) string {
	text = taggedFence.ReplaceAllString(text, "")
	text = jsonFence.ReplaceAllString(text, "")
	text = bareFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
