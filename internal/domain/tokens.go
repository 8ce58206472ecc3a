package domain

import "strings"

// CountWords returns the number of whitespace-separated words in s.
// Every accounting path (prompt tokens, generation tokens, kudos)
// calls this single routine so that no two parts of the system can
// disagree on what a "token" is (§9 design notes).
func CountWords(s string) int64 {
	return int64(len(strings.Fields(s)))
}
