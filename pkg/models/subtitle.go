package models

// SubtitleTrack represents an externally sourced subtitle option injected
// into a playback session
type SubtitleTrack struct {
	Name       string `json:"name"`
	Language   string `json:"language"`
	Locator    string `json:"locator"`
	IsDefault  bool   `json:"is_default"`
	AutoSelect bool   `json:"auto_select"`
}

// SubtitleFormat constants
const (
	SubtitleFormatVTT = "vtt"
	SubtitleFormatSRT = "srt"
)

// SubtitleCue represents one parsed caption unit. Start and End are playback
// positions in seconds; Text has markup tags stripped and surrounding
// whitespace trimmed.
type SubtitleCue struct {
	ID    string  `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration returns the display duration of the cue in seconds
func (c SubtitleCue) Duration() float64 {
	return c.End - c.Start
}

// Contains reports whether the given playback position falls inside the
// cue's display interval
func (c SubtitleCue) Contains(t float64) bool {
	return t >= c.Start && t <= c.End
}
