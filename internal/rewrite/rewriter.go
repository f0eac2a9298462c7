// Package rewrite injects externally sourced subtitle tracks into
// multivariant HLS playlists. The rewriter is strictly line-oriented: HLS
// master playlists are line-delimited by contract and no tag spans multiple
// lines, so no full grammar parser is needed.
package rewrite

import (
	"fmt"
	"strings"

	"github.com/trinityhades/luna-gateway/internal/metrics"
	"github.com/trinityhades/luna-gateway/pkg/models"
)

const (
	streamInfTag = "#EXT-X-STREAM-INF"
	mediaTag     = "#EXT-X-MEDIA"

	// SubtitleGroupID is the alternative-media group all injected tracks
	// are declared under
	SubtitleGroupID = "subs"

	subtitlesAttr = `SUBTITLES="` + SubtitleGroupID + `"`
)

// Rewriter rewrites multivariant playlists to declare injected subtitle
// tracks as an alternative-media group wired into every variant stream
type Rewriter struct {
	scheme string
}

// New creates a Rewriter. The scheme is the custom interception scheme used
// to build synthetic per-track playlist URIs.
func New(scheme string) *Rewriter {
	return &Rewriter{scheme: scheme}
}

// IsMultivariant reports whether the playlist text declares at least one
// variant stream
func IsMultivariant(manifest string) bool {
	return strings.Contains(manifest, streamInfTag)
}

// TrackPlaylistURI returns the synthetic child-playlist URI for the track at
// the given index
func (r *Rewriter) TrackPlaylistURI(index int) string {
	return fmt.Sprintf("%s://subtitle/track%d.m3u8", r.scheme, index)
}

// Rewrite returns the playlist with one #EXT-X-MEDIA subtitle declaration
// per track inserted before the first variant stream line and a
// SUBTITLES="subs" attribute appended to every variant stream line that does
// not already declare one. Playlists without variant streams, or an empty
// track list, pass through unmodified.
//
// Input must be origin manifest text: running the rewriter twice over its
// own output duplicates the alternative-media block. Callers rewrite once
// per fetch and never cache rewritten bytes.
func (r *Rewriter) Rewrite(manifest string, tracks []models.SubtitleTrack) string {
	if len(tracks) == 0 || !IsMultivariant(manifest) {
		return manifest
	}

	lines := strings.Split(manifest, "\n")
	out := make([]string, 0, len(lines)+len(tracks)+1)
	injected := false

	for _, line := range lines {
		if strings.HasPrefix(line, streamInfTag) {
			if !injected {
				for i, track := range tracks {
					out = append(out, r.mediaLine(track, i))
				}
				out = append(out, "")
				injected = true
			}
			if !strings.Contains(line, subtitlesAttr) {
				line += "," + subtitlesAttr
			}
		}
		out = append(out, line)
	}

	metrics.ManifestRewritesTotal.Inc()
	return strings.Join(out, "\n")
}

// mediaLine renders the #EXT-X-MEDIA declaration for one track
func (r *Rewriter) mediaLine(track models.SubtitleTrack, index int) string {
	return fmt.Sprintf(
		`%s:TYPE=SUBTITLES,GROUP-ID="%s",NAME="%s",LANGUAGE="%s",DEFAULT=%s,AUTOSELECT=%s,FORCED=NO,URI="%s"`,
		mediaTag,
		SubtitleGroupID,
		track.Name,
		track.Language,
		yesNo(track.IsDefault),
		yesNo(track.AutoSelect),
		r.TrackPlaylistURI(index),
	)
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
