// Package gateway intercepts the resource loading a media player performs
// for one playback session. It resolves intercepted custom-scheme URLs back
// to origin, fetches origin bytes (honoring byte-range requests), rewrites
// top-level multivariant playlists to inject registered subtitle tracks,
// and serves synthetic subtitle child playlists without touching the
// network.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/trinityhades/luna-gateway/internal/logging"
	"github.com/trinityhades/luna-gateway/internal/metrics"
	"github.com/trinityhades/luna-gateway/internal/playlist"
	"github.com/trinityhades/luna-gateway/internal/rewrite"
	"github.com/trinityhades/luna-gateway/internal/tracing"
	"github.com/trinityhades/luna-gateway/pkg/models"
)

// MIME types returned by the gateway
const (
	MIMEPlaylist = "application/vnd.apple.mpegurl"
	MIMEWebVTT   = "text/vtt"
)

// DefaultScheme is the custom URL scheme used to trigger interception
const DefaultScheme = "luna"

// DefaultFetchTimeout bounds every passthrough fetch
const DefaultFetchTimeout = 30 * time.Second

var syntheticTrackPattern = regexp.MustCompile(`subtitle/track(\d+)\.(m3u8|vtt)$`)

// Config holds per-gateway settings
type Config struct {
	// Scheme is the custom interception scheme; DefaultScheme when empty
	Scheme string
	// FetchTimeout bounds passthrough fetches; DefaultFetchTimeout when zero
	FetchTimeout time.Duration
}

// Gateway handles intercepted resource loading for a single playback
// session. The subtitle track list and header set are fixed at construction
// and owned exclusively by this instance; concurrent in-flight requests
// share only that read-only configuration plus the URL mapping.
type Gateway struct {
	scheme    string
	tracks    []models.SubtitleTrack
	headers   map[string]string
	client    *http.Client
	mapping   *urlMapping
	rewriter  *rewrite.Rewriter
	generator *playlist.Generator
	logger    *logging.Logger

	// manifestURL is the synthetic URL of the prepared top-level manifest;
	// it is the only passthrough URL eligible for subtitle injection
	manifestURL string
}

// New creates a gateway for one playback session
func New(cfg Config, tracks []models.SubtitleTrack, headers map[string]string, generator *playlist.Generator, logger *logging.Logger) *Gateway {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Gateway{
		scheme:    scheme,
		tracks:    tracks,
		headers:   headers,
		client:    &http.Client{Timeout: timeout},
		mapping:   newURLMapping(scheme),
		rewriter:  rewrite.New(scheme),
		generator: generator,
		logger:    logger,
	}
}

// PrepareManifestURL registers the top-level manifest origin URL for
// interception and returns the synthetic URL to hand to the host player
func (g *Gateway) PrepareManifestURL(origin string) (string, error) {
	synthetic, err := g.mapping.Prepare(origin)
	if err != nil {
		return "", err
	}
	g.manifestURL = synthetic
	return synthetic, nil
}

// PrepareURL registers an additional origin URL (segment, key) for
// interception
func (g *Gateway) PrepareURL(origin string) (string, error) {
	return g.mapping.Prepare(origin)
}

// ResolveURL maps a synthetic URL back to its origin counterpart
func (g *Gateway) ResolveURL(u *url.URL) (*url.URL, error) {
	return g.mapping.Resolve(u)
}

// Tracks returns the registered subtitle track list
func (g *Gateway) Tracks() []models.SubtitleTrack {
	return g.tracks
}

// ShouldLoad reports whether the gateway intercepts the given URL. Only
// URLs bearing the custom scheme are accepted.
func (g *Gateway) ShouldLoad(u *url.URL) bool {
	return u != nil && u.Scheme == g.scheme
}

// HandleRequest drives one intercepted request to completion. Exactly one
// terminal completion method is called on req before this returns.
func (g *Gateway) HandleRequest(ctx context.Context, req LoadingRequest) {
	span, ctx := tracing.StartSpan(ctx, "gateway.request")
	defer tracing.FinishSpan(span)

	u := req.URL()
	if u == nil {
		g.fail(req, "invalid", fmt.Errorf("%w: request has no URL", ErrUnresolvableURL))
		return
	}
	tracing.SetTag(span, "request.url", u.String())
	start := time.Now()

	kind := "passthrough"
	var err error
	if m := syntheticTrackPattern.FindStringSubmatch(u.Host + u.Path); m != nil {
		kind = "synthetic"
		err = g.handleSynthetic(ctx, req, m[1], m[2])
	} else if u.Host == "subtitle" {
		// Inside the synthetic namespace but not a recognized track
		// resource: never fall through to a network fetch.
		kind = "synthetic"
		err = fmt.Errorf("%w: %s", ErrBadSyntheticPath, u)
	} else {
		err = g.handlePassthrough(ctx, req, u)
	}

	status := "ok"
	if err != nil {
		status = "error"
		tracing.LogError(span, err)
		g.fail(req, kind, err)
	}
	metrics.GatewayRequestsTotal.WithLabelValues(kind, status).Inc()
	metrics.GatewayRequestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// fail completes a request on its error path
func (g *Gateway) fail(req LoadingRequest, kind string, err error) {
	g.logger.WithError(err).Warnf("gateway %s request failed", kind)
	req.FinishLoadingWithError(err)
}

// handleSynthetic serves subtitle child playlists and materialized VTT
// documents. On success the request is completed; a returned error means
// the caller fails the request.
func (g *Gateway) handleSynthetic(ctx context.Context, req LoadingRequest, rawIndex, ext string) error {
	index, err := strconv.Atoi(rawIndex)
	if err != nil {
		return fmt.Errorf("%w: track index %q", ErrBadSyntheticPath, rawIndex)
	}
	if index < 0 || index >= len(g.tracks) {
		return fmt.Errorf("%w: track %d of %d", ErrTrackIndexOutOfRange, index, len(g.tracks))
	}

	if ext == "vtt" {
		return g.serveMaterialized(req)
	}

	track := g.tracks[index]
	opts := playlist.Options{Locator: track.Locator}
	if playlist.IsSRTLocator(track.Locator) {
		// The converted document is served through the gateway under a
		// synthetic sibling URI rather than a player-visible file path
		opts.SegmentURI = g.trackVTTURI(index)
	}

	pl, genErr := g.generator.Generate(ctx, opts)
	if genErr != nil {
		// Duration probing or conversion failed; fall back to the quick
		// variant so the playlist is still structurally valid.
		g.logger.WithTrack(index).WithError(genErr).Warn("playlist generation fell back to quick variant")
		pl = g.generator.GenerateQuick(track.Locator, 0)
	}
	if pl.Materialized != "" {
		g.mapping.Add(g.trackVTTURI(index), "file://"+pl.Materialized)
	}

	data := []byte(pl.Text)
	req.RespondWithContentInfo(ContentInfo{
		ContentType:        MIMEPlaylist,
		ContentLength:      int64(len(data)),
		ByteRangeSupported: false,
	})
	req.RespondWithData(data)
	req.FinishLoading()
	return nil
}

// serveMaterialized serves a converted VTT document from its session-scoped
// temp file
func (g *Gateway) serveMaterialized(req LoadingRequest) error {
	origin, err := g.mapping.Resolve(req.URL())
	if err != nil {
		return err
	}
	if origin.Scheme != "file" {
		return fmt.Errorf("%w: %s is not materialized", ErrBadSyntheticPath, req.URL())
	}

	data, err := os.ReadFile(strings.TrimPrefix(origin.String(), "file://"))
	if err != nil {
		return fmt.Errorf("failed to read materialized subtitle: %w", err)
	}

	req.RespondWithContentInfo(ContentInfo{
		ContentType:        MIMEWebVTT,
		ContentLength:      int64(len(data)),
		ByteRangeSupported: false,
	})
	req.RespondWithData(data)
	req.FinishLoading()
	return nil
}

// handlePassthrough fetches origin bytes for manifests, segments and keys,
// rewriting top-level multivariant manifests when subtitle tracks are
// registered
func (g *Gateway) handlePassthrough(ctx context.Context, req LoadingRequest, u *url.URL) error {
	origin, err := g.mapping.Resolve(u)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, origin.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build origin request: %w", err)
	}
	for k, v := range g.headers {
		httpReq.Header.Set(k, v)
	}
	if br, ok := req.ByteRange(); ok {
		httpReq.Header.Set("Range", formatRangeHeader(br))
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("origin fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("origin returned status %d for %s", resp.StatusCode, origin)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read origin body: %w", err)
	}
	metrics.UpstreamBytesTotal.Add(float64(len(body)))

	info := contentInfoFromResponse(resp, len(body))

	// Subtitle injection applies only to the prepared top-level manifest;
	// child playlists pass through untouched
	if u.String() == g.manifestURL && len(g.tracks) > 0 {
		text := string(body)
		if rewrite.IsMultivariant(text) {
			rewritten := g.rewriter.Rewrite(text, g.tracks)
			body = []byte(rewritten)
			info.ContentLength = int64(len(body))
			info.ContentType = MIMEPlaylist
			g.logger.Debugf("injected %d subtitle tracks into manifest %s", len(g.tracks), origin)
		}
	}

	req.RespondWithContentInfo(info)
	req.RespondWithData(body)
	req.FinishLoading()
	return nil
}

func (g *Gateway) trackVTTURI(index int) string {
	return fmt.Sprintf("%s://subtitle/track%d.vtt", g.scheme, index)
}

// Close removes session-scoped materialized subtitle files. In-flight
// requests are bounded by the fetch timeout and need no explicit cancel
// here; callers cancel their contexts on teardown.
func (g *Gateway) Close() {
	for _, path := range g.mapping.filePaths() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			g.logger.WithError(err).Warnf("failed to remove materialized subtitle %s", path)
		}
	}
}

// formatRangeHeader translates a loading-request byte range into an HTTP
// Range header value
func formatRangeHeader(br ByteRange) string {
	if br.Length < 0 {
		return fmt.Sprintf("bytes=%d-", br.Offset)
	}
	return fmt.Sprintf("bytes=%d-%d", br.Offset, br.Offset+br.Length-1)
}

// contentInfoFromResponse populates response metadata from HTTP headers.
// ContentLength reports the total resource size, so for partial responses
// the Content-Range total wins over Content-Length, which only covers the
// returned range. The actual body size is the last resort.
func contentInfoFromResponse(resp *http.Response, bodyLen int) ContentInfo {
	info := ContentInfo{
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: int64(bodyLen),
	}

	if cr := resp.Header.Get("Content-Range"); cr != "" {
		// e.g. "bytes 1000-1499/5000"
		if idx := strings.LastIndex(cr, "/"); idx >= 0 {
			if n, err := strconv.ParseInt(cr[idx+1:], 10, 64); err == nil {
				info.ContentLength = n
			}
		}
	} else if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			info.ContentLength = n
		}
	}

	info.ByteRangeSupported = resp.StatusCode == http.StatusPartialContent ||
		strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes")
	return info
}
