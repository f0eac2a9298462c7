// Package playlist builds minimal single-segment VOD playlists whose one
// segment is a whole external subtitle resource. Client-side WebVTT
// segmentation is not practical, so the entire document is declared as a
// single oversized segment.
package playlist

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/trinityhades/luna-gateway/internal/cache"
	"github.com/trinityhades/luna-gateway/internal/logging"
	"github.com/trinityhades/luna-gateway/internal/metrics"
	"github.com/trinityhades/luna-gateway/internal/subtitle"
)

// DefaultDurationSeconds is the conservative fallback used when the real
// subtitle duration cannot be determined. The playlist stays structurally
// valid for playback even with an overestimated duration.
const DefaultDurationSeconds = 3600.0

const timingSeparator = " --> "

// Generator produces synthetic HLS media playlists for subtitle resources
type Generator struct {
	client  *http.Client
	cache   *cache.Cache
	logger  *logging.Logger
	tempDir string
}

// Options control one playlist generation
type Options struct {
	// Locator is the subtitle source URL
	Locator string
	// SegmentURI overrides the emitted segment reference; defaults to
	// Locator (or the materialized VTT for SRT sources)
	SegmentURI string
	// Duration in seconds when already known; probed from the document
	// when zero
	Duration float64
}

// Playlist is a generated child playlist
type Playlist struct {
	Text       string
	SegmentURI string
	Duration   float64
	// Materialized is the temp file path of the converted VTT document
	// when the source was SRT, empty otherwise. The file is
	// session-scoped; the owner removes it on teardown.
	Materialized string
}

// NewGenerator creates a Generator. The cache is optional. Converted VTT
// files are materialized under tempDir (os.TempDir when empty).
func NewGenerator(client *http.Client, c *cache.Cache, logger *logging.Logger, tempDir string) *Generator {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Generator{
		client:  client,
		cache:   c,
		logger:  logger,
		tempDir: tempDir,
	}
}

// IsSRTLocator reports whether the locator refers to an SRT resource, by
// file extension or an explicit format=srt query parameter
func IsSRTLocator(locator string) bool {
	u, err := url.Parse(locator)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(locator), ".srt")
	}
	if strings.HasSuffix(strings.ToLower(u.Path), ".srt") {
		return true
	}
	return strings.EqualFold(u.Query().Get("format"), "srt")
}

// Generate builds the playlist for a subtitle resource. SRT sources are
// converted to WebVTT and materialized as a temp file first. When no
// duration is supplied the document is fetched and the maximum cue end
// timestamp is used, falling back to DefaultDurationSeconds.
func (g *Generator) Generate(ctx context.Context, opts Options) (*Playlist, error) {
	if IsSRTLocator(opts.Locator) {
		return g.generateFromSRT(ctx, opts)
	}

	duration := opts.Duration
	if duration <= 0 {
		duration = g.cachedDuration(ctx, opts.Locator)
	}
	if duration <= 0 {
		doc, err := g.fetchDocument(ctx, opts.Locator)
		if err != nil {
			return nil, fmt.Errorf("failed to probe subtitle duration: %w", err)
		}
		duration = g.probeDuration(ctx, opts.Locator, doc)
	}

	segmentURI := opts.SegmentURI
	if segmentURI == "" {
		segmentURI = opts.Locator
	}

	metrics.PlaylistsGeneratedTotal.WithLabelValues("probed").Inc()
	return &Playlist{
		Text:       Render(segmentURI, duration),
		SegmentURI: segmentURI,
		Duration:   duration,
	}, nil
}

func (g *Generator) generateFromSRT(ctx context.Context, opts Options) (*Playlist, error) {
	doc, err := g.fetchDocument(ctx, opts.Locator)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch SRT document: %w", err)
	}

	vtt := subtitle.ConvertSRTToVTT(doc)

	path, err := g.materialize(vtt)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize converted VTT: %w", err)
	}

	duration := opts.Duration
	if duration <= 0 {
		duration = maxEndTimestamp(vtt)
		if duration <= 0 {
			duration = DefaultDurationSeconds
		}
	}

	segmentURI := opts.SegmentURI
	if segmentURI == "" {
		segmentURI = "file://" + path
	}

	g.logger.Debugf("converted SRT %s to %s (%.1fs)", opts.Locator, path, duration)
	metrics.PlaylistsGeneratedTotal.WithLabelValues("converted").Inc()
	return &Playlist{
		Text:         Render(segmentURI, duration),
		SegmentURI:   segmentURI,
		Duration:     duration,
		Materialized: path,
	}, nil
}

// GenerateQuick builds a playlist synchronously without any network access,
// using the supplied duration (DefaultDurationSeconds when non-positive).
// Used as a fallback when the probing path fails or latency matters more
// than an exact duration.
func (g *Generator) GenerateQuick(segmentURI string, duration float64) *Playlist {
	if duration <= 0 {
		duration = DefaultDurationSeconds
	}
	metrics.PlaylistsGeneratedTotal.WithLabelValues("quick").Inc()
	return &Playlist{
		Text:       Render(segmentURI, duration),
		SegmentURI: segmentURI,
		Duration:   duration,
	}
}

// Render produces the fixed VOD playlist shape: header block, one
// EXTINF/URI pair, end-list marker. The target duration and the declared
// segment duration are both the ceiling of the computed duration.
func Render(segmentURI string, duration float64) string {
	target := int(math.Ceil(duration))
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", target)
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	fmt.Fprintf(&b, "#EXTINF:%.1f,\n", float64(target))
	b.WriteString(segmentURI + "\n")
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

// cachedDuration returns the cached duration for a locator, 0 on a miss
func (g *Generator) cachedDuration(ctx context.Context, locator string) float64 {
	if g.cache == nil {
		return 0
	}
	d, ok := g.cache.GetDuration(ctx, locator)
	if !ok {
		return 0
	}
	return d
}

// probeDuration computes the document duration and caches the result
func (g *Generator) probeDuration(ctx context.Context, locator, doc string) float64 {
	d := maxEndTimestamp(doc)
	if d <= 0 {
		return DefaultDurationSeconds
	}
	if g.cache != nil {
		g.cache.SetDuration(ctx, locator, d)
	}
	return d
}

// maxEndTimestamp scans timing lines and returns the largest end timestamp
// found, 0 when the document has none
func maxEndTimestamp(doc string) float64 {
	var max float64
	for _, line := range strings.Split(subtitle.NormalizeLineEndings(doc), "\n") {
		if !strings.Contains(line, timingSeparator) {
			continue
		}
		parts := strings.SplitN(line, timingSeparator, 2)
		fields := strings.Fields(parts[1])
		if len(fields) == 0 {
			continue
		}
		end, err := subtitle.ParseTimestamp(fields[0])
		if err != nil {
			continue
		}
		if end > max {
			max = end
		}
	}
	return max
}

func (g *Generator) materialize(vtt string) (string, error) {
	f, err := os.CreateTemp(g.tempDir, "luna-subtitle-*.vtt")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(vtt); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (g *Generator) fetchDocument(ctx context.Context, locator string) (string, error) {
	if g.cache != nil {
		if doc, ok := g.cache.GetSubtitleDocument(ctx, locator); ok {
			return doc, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, locator)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	doc := string(body)
	if g.cache != nil {
		g.cache.SetSubtitleDocument(ctx, locator, doc)
	}
	return doc, nil
}
