package subtitle

import (
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/trinityhades/luna-gateway/pkg/models"
)

// timingSeparator marks a cue timing line in both WebVTT and SRT documents
const timingSeparator = " --> "

var markupTags = regexp.MustCompile(`<[^>]*>`)

// ParseCues parses a subtitle document into a cue list sorted ascending by
// start time. Format is detected by the presence of a literal WEBVTT marker
// in the normalized content; anything else is treated as SRT. Malformed
// blocks are skipped, never fatal.
func ParseCues(doc string) []models.SubtitleCue {
	normalized := NormalizeLineEndings(doc)
	if strings.Contains(normalized, "WEBVTT") {
		return parseWebVTT(normalized)
	}
	return parseSRT(normalized)
}

// ParseWebVTT parses a WebVTT document into a sorted cue list
func ParseWebVTT(doc string) []models.SubtitleCue {
	return parseWebVTT(NormalizeLineEndings(doc))
}

// ParseSRT parses an SRT document into a sorted cue list
func ParseSRT(doc string) []models.SubtitleCue {
	return parseSRT(NormalizeLineEndings(doc))
}

// parseWebVTT expects normalized line endings. A line containing the timing
// separator starts a cue; all following non-blank, non-timing lines up to
// the next blank line form the cue body.
func parseWebVTT(doc string) []models.SubtitleCue {
	lines := strings.Split(doc, "\n")
	var cues []models.SubtitleCue

	for i := 0; i < len(lines); i++ {
		if !strings.Contains(lines[i], timingSeparator) {
			continue
		}

		start, end, ok := parseTimingLine(lines[i])
		if !ok {
			continue
		}

		var textLines []string
		j := i + 1
		for ; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "" || strings.Contains(lines[j], timingSeparator) {
				break
			}
			textLines = append(textLines, lines[j])
		}
		i = j - 1

		if cue, ok := buildCue(start, end, textLines); ok {
			cues = append(cues, cue)
		}
	}

	sortCues(cues)
	return cues
}

// parseSRT expects normalized line endings. Blocks are split on blank-line
// runs; the timing line is located by scanning, not assumed to be at a fixed
// position, to tolerate leading index and blank lines.
func parseSRT(doc string) []models.SubtitleCue {
	var cues []models.SubtitleCue

	for _, block := range blockSeparator.Split(doc, -1) {
		lines := strings.Split(block, "\n")

		timingIdx := -1
		for i, line := range lines {
			if strings.Contains(line, timingSeparator) {
				timingIdx = i
				break
			}
		}
		if timingIdx < 0 {
			continue
		}

		start, end, ok := parseTimingLine(lines[timingIdx])
		if !ok {
			continue
		}

		var textLines []string
		for _, line := range lines[timingIdx+1:] {
			if strings.TrimSpace(line) != "" {
				textLines = append(textLines, line)
			}
		}

		if cue, ok := buildCue(start, end, textLines); ok {
			cues = append(cues, cue)
		}
	}

	sortCues(cues)
	return cues
}

// parseTimingLine splits "start --> end ..." into timestamps. Only the first
// whitespace-delimited token of the right side is used, tolerating trailing
// cue settings (VTT) and styling directives (SRT).
func parseTimingLine(line string) (start, end float64, ok bool) {
	parts := strings.SplitN(line, timingSeparator, 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	start, err := ParseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}

	endFields := strings.Fields(parts[1])
	if len(endFields) == 0 {
		return 0, 0, false
	}
	end, err = ParseTimestamp(endFields[0])
	if err != nil {
		return 0, 0, false
	}

	return start, end, true
}

// buildCue strips markup from the joined body text; cues whose text is empty
// after stripping are discarded
func buildCue(start, end float64, textLines []string) (models.SubtitleCue, bool) {
	text := strings.TrimSpace(markupTags.ReplaceAllString(strings.Join(textLines, "\n"), ""))
	if text == "" {
		return models.SubtitleCue{}, false
	}
	return models.SubtitleCue{
		ID:    uuid.NewString(),
		Start: start,
		End:   end,
		Text:  text,
	}, true
}

// sortCues orders cues ascending by start time. Source documents are not
// guaranteed ordered.
func sortCues(cues []models.SubtitleCue) {
	sort.SliceStable(cues, func(i, j int) bool {
		return cues[i].Start < cues[j].Start
	})
}
