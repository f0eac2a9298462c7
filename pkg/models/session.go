package models

import "time"

// SessionStatus constants
const (
	SessionStatusActive = "active"
	SessionStatusClosed = "closed"
)

// Session represents one playback session owned by the gateway. A session is
// created from a playback URL, a header set and an ordered list of subtitle
// sources, and is immutable after creation except for its status.
type Session struct {
	ID        string            `json:"id"`
	StreamURL string            `json:"stream_url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Tracks    []SubtitleTrack   `json:"tracks"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// SessionRequest is the payload for creating a playback session. Subtitles
// is the loose ordered list convention inherited from upstream metadata
// providers: each element is either a bare URL or a display name immediately
// followed by its URL.
type SessionRequest struct {
	StreamURL string            `json:"stream_url" binding:"required"`
	Headers   map[string]string `json:"headers"`
	Subtitles []string          `json:"subtitles"`
}

// PlaybackSyncState is the transient per-session subtitle synchronization
// state. Single writer (the tick handler), read by the display layer.
type PlaybackSyncState struct {
	CurrentCueID      string  `json:"current_cue_id"`
	TimeOffsetSeconds float64 `json:"time_offset_seconds"`
	SubtitlesEnabled  bool    `json:"subtitles_enabled"`
	SystemTrackActive bool    `json:"system_track_active"`
}
