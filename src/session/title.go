package session

import "strings"

// defaultTitleLimit bounds derived conversation titles. Discord caps thread
// names at 100 characters; staying under that keeps the mapper's rename a
// plain copy.
const defaultTitleLimit = 80

// deriveTitle picks the one-time conversation title: the agent's title hint
// when present, otherwise the first line of the first user message, bounded
// to limit runes.
func deriveTitle(hint, userText string, limit int) string {
	if limit <= 0 {
		limit = defaultTitleLimit
	}

	title := strings.TrimSpace(hint)
	if title == "" {
		title = strings.TrimSpace(userText)
		if i := strings.IndexAny(title, "\r\n"); i >= 0 {
			title = strings.TrimSpace(title[:i])
		}
	}
	if title == "" {
		return ""
	}

	runes := []rune(title)
	if len(runes) > limit {
		title = strings.TrimSpace(string(runes[:limit-1])) + "…"
	}
	return title
}
