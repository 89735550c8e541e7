package textutil

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Gateway note limits. Both providers reject larger payloads.
const (
	MaxNoteEntries = 15
	MaxNoteLength  = 256
)

// NormalizeNotes trims keys and values, drops entries with empty keys and caps the map at MaxNoteEntries
// entries (lowest keys first) with values truncated to MaxNoteLength runes. It returns nil when nothing is left.
func NormalizeNotes(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	trimmed := make(map[string]string, len(values))
	for key, value := range values {
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		if _, dup := trimmed[k]; !dup {
			keys = append(keys, k)
		}
		trimmed[k] = truncateRunes(strings.TrimSpace(value), MaxNoteLength)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	if len(keys) > MaxNoteEntries {
		keys = keys[:MaxNoteEntries]
	}
	result := make(map[string]string, len(keys))
	for _, k := range keys {
		result[k] = trimmed[k]
	}
	return result
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}
