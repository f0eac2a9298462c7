package source

import (
	"fmt"
	"strings"

	"github.com/trinityhades/luna-gateway/pkg/models"
)

// languageHints maps display-name fragments to ISO-639-1 codes. Best-effort
// only; upstream providers rarely carry structured language metadata.
var languageHints = []struct {
	fragment string
	code     string
}{
	{"english", "en"},
	{"spanish", "es"},
	{"español", "es"},
	{"french", "fr"},
	{"français", "fr"},
	{"german", "de"},
	{"deutsch", "de"},
	{"italian", "it"},
	{"portuguese", "pt"},
	{"russian", "ru"},
	{"japanese", "ja"},
	{"korean", "ko"},
	{"chinese", "zh"},
	{"arabic", "ar"},
	{"hindi", "hi"},
	{"indonesian", "id"},
	{"turkish", "tr"},
	{"vietnamese", "vi"},
	{"thai", "th"},
	{"polish", "pl"},
	{"dutch", "nl"},
}

// ParseSubtitleList converts the flat ordered subtitle list convention into
// tracks. Each element is either a bare HTTP(S) URL or a display name
// immediately followed by its URL; both interleavings are handled without a
// tag. Unnamed tracks get "Subtitle N" labels and the first track is marked
// default and auto-selecting.
func ParseSubtitleList(items []string) []models.SubtitleTrack {
	var tracks []models.SubtitleTrack
	pendingName := ""

	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		if !isHTTPURL(item) {
			// A display name for the URL that follows
			pendingName = item
			continue
		}

		name := pendingName
		pendingName = ""
		if name == "" {
			name = fmt.Sprintf("Subtitle %d", len(tracks)+1)
		}

		tracks = append(tracks, models.SubtitleTrack{
			Name:       name,
			Language:   DetectLanguage(name),
			Locator:    item,
			IsDefault:  len(tracks) == 0,
			AutoSelect: len(tracks) == 0,
		})
	}

	return tracks
}

// DetectLanguage guesses an ISO-639-ish code from a track display name,
// defaulting to "en"
func DetectLanguage(name string) string {
	lower := strings.ToLower(name)
	for _, hint := range languageHints {
		if strings.Contains(lower, hint.fragment) {
			return hint.code
		}
	}
	return "en"
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
