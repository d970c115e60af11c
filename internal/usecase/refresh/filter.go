package refresh

import (
	"strings"

	"pagefeed/internal/domain/entity"
)

// FilterItems keeps the items whose title, description or body text
// contains at least one include keyword (when any are set) and none of the
// exclude keywords. Matching is case-insensitive substring matching.
func FilterItems(items []entity.Item, include, exclude []string) []entity.Item {
	include = entity.NormalizeKeywords(include)
	exclude = entity.NormalizeKeywords(exclude)
	if len(include) == 0 && len(exclude) == 0 {
		return items
	}

	out := make([]entity.Item, 0, len(items))
	for _, it := range items {
		text := strings.ToLower(it.SearchText())
		if len(include) > 0 && !containsAny(text, include) {
			continue
		}
		if containsAny(text, exclude) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
