package music

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// ResolveRoom maps a spoken room name to one of the known player names.
// Exact matches (case-insensitive) always win before any fuzzy fallback,
// so resolving a name that is already a known player is idempotent.
func ResolveRoom(room string, names []string) (string, bool) {
	room = strings.ToLower(strings.TrimSpace(room))
	if room == "" || len(names) == 0 {
		return "", false
	}

	for _, n := range names {
		if strings.ToLower(n) == room {
			return n, true
		}
	}
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), room) {
			return n, true
		}
	}

	// "kitchen speaker" vs "the kitchen" and similar near misses.
	matches := fuzzy.Find(room, names)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0].Str, true
}
