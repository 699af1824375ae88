package service

import (
	"strings"
	"unicode/utf8"
)

// DefaultSubject is used when a message has no usable first line.
const DefaultSubject = "No subject"

const maxSubjectRunes = 100

// ExtractSubject derives a ticket subject from free-form message text: the
// trimmed first line, truncated to 97 characters plus "..." when it exceeds
// 100. Counted in runes, message text is rarely plain ASCII.
func ExtractSubject(text string) string {
	if text == "" {
		return DefaultSubject
	}
	firstLine := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	if firstLine == "" {
		return DefaultSubject
	}
	if utf8.RuneCountInString(firstLine) > maxSubjectRunes {
		runes := []rune(firstLine)
		return string(runes[:maxSubjectRunes-3]) + "..."
	}
	return firstLine
}
