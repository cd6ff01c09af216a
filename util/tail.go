package util

import "strings"

// TailString returns the last maxBytes of a string, cut on a line boundary
// when possible. build output and git errors can run to megabytes; only the
// tail is persisted onto the deployment row, because the end of the output
// is where compilers and package managers put the actual reason.
func TailString(text string, maxBytes int) string {
	if len(text) <= maxBytes {
		return text
	}

	tail := text[len(text)-maxBytes:]

	// drop the partial first line so the tail starts at a line boundary.
	// if the tail is one giant line (no newline at all), keep it as is.
	if newlineIndex := strings.IndexByte(tail, '\n'); newlineIndex >= 0 && newlineIndex < len(tail)-1 {
		tail = tail[newlineIndex+1:]
	}

	return tail
}
