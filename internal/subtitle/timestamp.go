package subtitle

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeLineEndings converts \r\n and bare \r line endings to \n. It must
// run exactly once before any block splitting, otherwise cue boundaries
// misalign on mixed-ending documents.
func NormalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// ParseTimestamp converts a subtitle timestamp string to seconds. Accepted
// shapes are HH:MM:SS.mmm, MM:SS.mmm and the SRT variant using a comma as
// the fractional separator. Any other colon count is a format error.
//
// Components that fail to parse as numbers fall back to zero rather than
// rejecting the whole timestamp; real-world subtitle files are too messy for
// strict parsing here.
func ParseTimestamp(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	parts := strings.Split(s, ":")

	switch len(parts) {
	case 2:
		return component(parts[0])*60 + component(parts[1]), nil
	case 3:
		return component(parts[0])*3600 + component(parts[1])*60 + component(parts[2]), nil
	default:
		return 0, fmt.Errorf("invalid timestamp %q: expected 2 or 3 colon-separated parts, got %d", s, len(parts))
	}
}

func component(p string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
	if err != nil {
		return 0
	}
	return v
}
