package texttospeech

import (
	"regexp"
	"strings"
)

var (
	markdownLink   = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	markdownSyntax = strings.NewReplacer("_", "", "*", "", "`", "")
)

// StripMarkdown reduces reply text to what should be spoken: links keep only
// their label and emphasis and code markers are removed.
func StripMarkdown(text string) string {
	text = markdownLink.ReplaceAllString(text, "$1")
	return markdownSyntax.Replace(text)
}
