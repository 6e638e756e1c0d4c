package analysis

import (
	"regexp"
	"strings"
)

var parenthetical = regexp.MustCompile(`[ \t]*\([^()]*\)`)

// Clean removes the markup models wrap around JSON despite being told not
// to: code fences, a json language tag and parenthetical asides.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = strings.TrimSpace(s[4:])
	}

	for {
		stripped := parenthetical.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}

	// keep only the outermost object when the model added prose around it
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}
