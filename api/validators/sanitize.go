package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, drops control characters other than newline
// and tab, and cuts the result to at most maxLen runes. maxLen <= 0 means no
// limit.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, strings.TrimSpace(input))

	if maxLen <= 0 {
		return cleaned
	}
	n := 0
	for i := range cleaned {
		if n == maxLen {
			return strings.TrimSpace(cleaned[:i])
		}
		n++
	}
	return cleaned
}

// SanitizeOptional is SanitizeString for optional fields; a blank result is nil.
func SanitizeOptional(input *string, maxLen int) *string {
	if input == nil {
		return nil
	}
	if value := SanitizeString(*input, maxLen); value != "" {
		return &value
	}
	return nil
}
