package main

import (
	"strings"
	"unicode"
)

const (
	maxNicknameLength = 20
	maxAnswerLength   = 120
	maxChatLength     = 200

	defaultNickname = "Entity"
)

// sanitizeNickname keeps letters, digits, spaces, hyphens, and underscores,
// truncates to maxNicknameLength, and falls back to the default display
// name when nothing survives.
func sanitizeNickname(raw string) string {
	cleaned := filterRunes(raw, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_'
	})
	cleaned = collapseSpaces(cleaned)
	if len([]rune(cleaned)) > maxNicknameLength {
		cleaned = string([]rune(cleaned)[:maxNicknameLength])
		cleaned = strings.TrimSpace(cleaned)
	}
	if cleaned == "" {
		return defaultNickname
	}
	return cleaned
}

// sanitizeFreeText strips control characters and truncates. An empty result
// is a validation error at the call site, never a default.
func sanitizeFreeText(raw string, limit int) string {
	cleaned := filterRunes(raw, func(r rune) bool {
		return !unicode.IsControl(r)
	})
	cleaned = collapseSpaces(cleaned)
	if len([]rune(cleaned)) > limit {
		cleaned = string([]rune(cleaned)[:limit])
		cleaned = strings.TrimSpace(cleaned)
	}
	return cleaned
}

func sanitizeAnswer(raw string) string {
	return sanitizeFreeText(raw, maxAnswerLength)
}

func sanitizeChat(raw string) string {
	return sanitizeFreeText(raw, maxChatLength)
}

func filterRunes(s string, keep func(rune) bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if keep(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
