package ioutil

import (
	"fmt"
	"io"
	"strings"
)

// ErrorBodyLimit bounds how much of an upstream error body ends up in an
// error message.
const ErrorBodyLimit = 1024

// ReadLimited reads up to limit bytes from r for use in error messages.
// Surrounding whitespace is trimmed and a cut-off body is marked with
// "...". A failed read yields a description of the failure.
func ReadLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	truncated := int64(len(body)) > limit
	if truncated {
		body = body[:limit]
	}
	s := strings.TrimSpace(string(body))
	if truncated {
		s += "..."
	}
	return s
}
