// Package format holds text helpers for Telegram message rendering.
package format

import "regexp"

var mdSpecials = regexp.MustCompile("([_*`\\[])")

// EscapeMarkdown escapes the characters Telegram Markdown treats as markup so
// user-managed text such as product names and usernames renders literally.
func EscapeMarkdown(text string) string {
	return mdSpecials.ReplaceAllString(text, `\$1`)
}
