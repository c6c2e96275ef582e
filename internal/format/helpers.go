package format

import (
	"fmt"
	"strings"

	"hcletter/internal/match"
)

// Truncate shortens s to maxLen characters, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// BoolMark returns "✓" for true and "✗" for false.
func BoolMark(v bool) string {
	if v {
		return "✓"
	}
	return "✗"
}

// Pairs renders matches as "10-20 (95/90%)", comma separated.
func Pairs(ms []*match.Match) string {
	if len(ms) == 0 {
		return "-"
	}
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = fmt.Sprintf("%s-%s (%d/%d%%)", m.A, m.B, m.PercentA, m.PercentB)
	}
	return strings.Join(parts, ", ")
}
