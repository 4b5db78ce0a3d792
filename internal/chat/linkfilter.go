package chat

import "regexp"

const LinkPlaceholder = "[link removed]"

var linkPattern = regexp.MustCompile(`(?i)(?:https?://|www\.)[^\s]+`)

// StripLinks replaces every URL-looking run in s with LinkPlaceholder and
// reports whether anything was replaced.
func StripLinks(s string) (string, bool) {
	if !linkPattern.MatchString(s) {
		return s, false
	}
	return linkPattern.ReplaceAllString(s, LinkPlaceholder), true
}
