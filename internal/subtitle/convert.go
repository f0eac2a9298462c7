package subtitle

import (
	"regexp"
	"strings"
)

var blockSeparator = regexp.MustCompile(`\n\s*\n`)

// ConvertSRTToVTT converts a whole SRT document to a WebVTT document. Each
// blank-line-delimited block loses its leading numeric index line, the
// timing line has its comma fractional separators normalized to periods, and
// all remaining lines pass through verbatim. Blocks with fewer than 3
// non-empty lines are silently dropped.
func ConvertSRTToVTT(doc string) string {
	normalized := NormalizeLineEndings(doc)

	var cueBlocks []string
	for _, block := range blockSeparator.Split(normalized, -1) {
		var lines []string
		for _, line := range strings.Split(block, "\n") {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) < 3 {
			continue
		}

		// lines[0] is the SRT index, lines[1] the timing line
		var b strings.Builder
		b.WriteString(strings.ReplaceAll(lines[1], ",", "."))
		for _, line := range lines[2:] {
			b.WriteString("\n")
			b.WriteString(line)
		}
		cueBlocks = append(cueBlocks, b.String())
	}

	if len(cueBlocks) == 0 {
		return "WEBVTT\n"
	}
	return "WEBVTT\n\n" + strings.Join(cueBlocks, "\n\n") + "\n"
}
