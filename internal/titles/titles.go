// Package titles produces human-readable topic titles, by LLM when one is
// available and from topic keywords otherwise.
package titles

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// SourceLLM and SourceKeywords mark where a title came from.
	SourceLLM      = "generated"
	SourceKeywords = "fallback"

	maxTitleRunes = 100
	minTitleRunes = 5
)

// KeywordTitle builds a deterministic title from the topic's top keywords.
// It never fails: with no keywords at all it falls back to a numbered name.
func KeywordTitle(keywords []string, topicID int) string {
	kws := make([]string, 0, 3)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			kws = append(kws, kw)
		}
		if len(kws) == 3 {
			break
		}
	}
	switch len(kws) {
	case 0:
		return fmt.Sprintf("Тема %d", topicID+1)
	case 1:
		return kws[0]
	case 2:
		return kws[0] + " и " + kws[1]
	default:
		return kws[0] + ", " + kws[1] + " и " + kws[2]
	}
}

// cleanTitle normalizes raw LLM output into a single line of at most maxLen
// runes. An empty string means the output was unusable and the caller should
// fall back.
func cleanTitle(raw string, maxLen int) string {
	title := strings.ReplaceAll(raw, "\n", " ")
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.Trim(title, " \t\"'«»“”*#")
	title = strings.Join(strings.Fields(title), " ")

	runes := []rune(title)
	if len(runes) > maxLen {
		title = strings.TrimRightFunc(string(runes[:maxLen]), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		runes = []rune(title)
	}
	if len(runes) < minTitleRunes {
		return ""
	}
	return title
}
