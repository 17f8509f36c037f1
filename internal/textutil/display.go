package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DisplayTitle converts an identifier such as "mobile_app" or
// "copy-batch" into a human-facing title ("Mobile App", "Copy Batch").
// Returns the fallback when the input collapses to nothing.
func DisplayTitle(value, fallback string) string {
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.' || r == '/':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return fallback
	}
	return cases.Title(language.Und).String(title)
}

// StatusLabel renders a lifecycle status for table output: underscores
// become spaces, the value stays lowercase.
func StatusLabel(status string) string {
	return strings.ReplaceAll(strings.TrimSpace(status), "_", " ")
}

// Truncate shortens a string to at most max runes, appending an ellipsis
// when truncation occurred. Values of max below 4 return the bare cut.
func Truncate(value string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	if max < 4 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
