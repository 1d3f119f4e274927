// Package util holds small helpers shared across packages.
package util

import "fmt"

// DefaultSnippetLen bounds provider payload snippets in log lines.
// Webhook bodies can carry whole message histories; logs only need
// enough to identify the offending payload.
const DefaultSnippetLen = 512

// Truncate shortens s for logging, annotating the original size.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// Snippet is the common payload-logging form of Truncate.
func Snippet(b []byte) string {
	return Truncate(string(b), DefaultSnippetLen)
}
