package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/trinityhades/luna-gateway/internal/config"
	"github.com/trinityhades/luna-gateway/internal/gateway"
	"github.com/trinityhades/luna-gateway/internal/logging"
	"github.com/trinityhades/luna-gateway/internal/middleware"
	"github.com/trinityhades/luna-gateway/internal/session"
	"github.com/trinityhades/luna-gateway/internal/source"
	"github.com/trinityhades/luna-gateway/pkg/models"
)

type API struct {
	cfg      *config.Config
	logger   *logging.Logger
	sessions *session.Manager
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// Issue a JWT for the session API
func (api *API) createToken(c *gin.Context) {
	var req struct {
		ClientID string `json:"client_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := middleware.GenerateToken(req.ClientID, api.cfg.Auth.TokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(api.cfg.Auth.TokenTTL.Seconds()),
	})
}

// Decode an upstream source payload into stream sources
func (api *API) resolveSources(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	payload, err := source.Decode(body)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"shape":   string(payload.Shape),
		"sources": payload.Sources,
	})
}

// Create session endpoint
func (api *API) createSession(c *gin.Context) {
	var req models.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := api.sessions.Create(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session":      sess.Model,
		"manifest_url": sess.ManifestURL,
		"proxy_url":    fmt.Sprintf("/proxy/%s/manifest.m3u8", sess.Model.ID),
	})
}

// Get session endpoint
func (api *API) getSession(c *gin.Context) {
	sess, ok := api.lookup(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session":      sess.Model,
		"manifest_url": sess.ManifestURL,
		"sync":         sess.Store.State(),
	})
}

// Delete session endpoint
func (api *API) deleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := api.sessions.Close(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session closed", "session_id": id})
}

// Report playback position and system subtitle selection. Returns the cue
// text active at the reported position.
func (api *API) reportPlayback(c *gin.Context) {
	sess, ok := api.lookup(c)
	if !ok {
		return
	}

	var req struct {
		Position            float64 `json:"position"`
		SystemTrackSelected bool    `json:"system_track_selected"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess.ReportPlayback(req.Position, req.SystemTrackSelected)
	text := sess.Store.Tick(sess)

	c.JSON(http.StatusOK, gin.H{
		"text": text,
		"sync": sess.Store.State(),
	})
}

// Get the currently active cue
func (api *API) getActiveCue(c *gin.Context) {
	sess, ok := api.lookup(c)
	if !ok {
		return
	}

	text := sess.Store.Tick(sess)
	c.JSON(http.StatusOK, gin.H{
		"text": text,
		"sync": sess.Store.State(),
	})
}

// Adjust the subtitle time offset by a delta; the result is clamped
func (api *API) adjustOffset(c *gin.Context) {
	sess, ok := api.lookup(c)
	if !ok {
		return
	}

	var req struct {
		Delta float64 `json:"delta"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	offset := sess.Store.AdjustOffset(req.Delta)
	c.JSON(http.StatusOK, gin.H{"offset_seconds": offset})
}

// Reset the subtitle time offset to zero
func (api *API) resetOffset(c *gin.Context) {
	sess, ok := api.lookup(c)
	if !ok {
		return
	}

	sess.Store.ResetOffset()
	c.JSON(http.StatusOK, gin.H{"offset_seconds": 0.0})
}

// Enable or disable subtitle rendering
func (api *API) setSubtitlesEnabled(c *gin.Context) {
	sess, ok := api.lookup(c)
	if !ok {
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess.Store.SetEnabled(req.Enabled)
	c.JSON(http.StatusOK, gin.H{"sync": sess.Store.State()})
}

// Load the cue list of another subtitle track
func (api *API) selectTrack(c *gin.Context) {
	sess, ok := api.lookup(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid track index"})
		return
	}

	if err := sess.SelectTrack(c.Request.Context(), index); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"track": index})
}

// Serve the rewritten top-level manifest
func (api *API) proxyManifest(c *gin.Context) {
	sess, ok := api.lookup(c)
	if !ok {
		return
	}

	api.serveIntercepted(c, sess, sess.ManifestURL)
}

// Serve any intercepted resource; the synthetic URL travels in the u query
// parameter
func (api *API) proxyLoad(c *gin.Context) {
	sess, ok := api.lookup(c)
	if !ok {
		return
	}

	raw := c.Query("u")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing u parameter"})
		return
	}

	api.serveIntercepted(c, sess, raw)
}

func (api *API) serveIntercepted(c *gin.Context, sess *session.Session, rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid URL"})
		return
	}
	if !sess.Gateway.ShouldLoad(u) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL is not handled by this session"})
		return
	}

	req := &httpLoadingRequest{
		c:     c,
		u:     u,
		proxy: newProxyRewriter(sess.Gateway, sess.Model.ID, u),
	}
	if rng, ok := parseRangeHeader(c.GetHeader("Range")); ok {
		req.rng = &rng
	}

	sess.Gateway.HandleRequest(c.Request.Context(), req)
}

// httpLoadingRequest adapts one HTTP request onto the gateway's
// resource-loading contract. Playlist responses are run through the proxy
// rewriter so the player can reach every referenced resource over HTTP.
type httpLoadingRequest struct {
	c     *gin.Context
	u     *url.URL
	rng   *gateway.ByteRange
	info  gateway.ContentInfo
	proxy *proxyRewriter

	wroteHeader bool
}

func (r *httpLoadingRequest) URL() *url.URL { return r.u }

func (r *httpLoadingRequest) ByteRange() (gateway.ByteRange, bool) {
	if r.rng == nil {
		return gateway.ByteRange{}, false
	}
	return *r.rng, true
}

func (r *httpLoadingRequest) RespondWithContentInfo(info gateway.ContentInfo) {
	r.info = info
}

func (r *httpLoadingRequest) RespondWithData(data []byte) {
	if r.proxy != nil && r.rng == nil && isPlaylistContentType(r.info.ContentType) {
		data = []byte(r.proxy.rewrite(string(data)))
		r.info.ContentLength = int64(len(data))
	}
	r.writeHeader(int64(len(data)))
	_, _ = r.c.Writer.Write(data)
}

func (r *httpLoadingRequest) FinishLoading() {
	r.writeHeader(0)
}

func (r *httpLoadingRequest) FinishLoadingWithError(err error) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true

	status := http.StatusBadGateway
	switch {
	case errors.Is(err, gateway.ErrTrackIndexOutOfRange),
		errors.Is(err, gateway.ErrBadSyntheticPath),
		errors.Is(err, gateway.ErrUnresolvableURL):
		status = http.StatusNotFound
	}
	r.c.JSON(status, gin.H{"error": err.Error()})
}

func (r *httpLoadingRequest) writeHeader(bodyLen int64) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true

	h := r.c.Writer.Header()
	if r.info.ContentType != "" {
		h.Set("Content-Type", r.info.ContentType)
	}
	if r.info.ByteRangeSupported {
		h.Set("Accept-Ranges", "bytes")
	}

	if r.rng != nil {
		// Partial response: Content-Length covers the returned bytes while
		// Content-Range carries the span plus the total resource size
		h.Set("Content-Length", strconv.FormatInt(bodyLen, 10))
		h.Set("Content-Range", formatContentRange(*r.rng, bodyLen, r.info.ContentLength))
		r.c.Status(http.StatusPartialContent)
		return
	}
	if r.info.ContentLength > 0 {
		h.Set("Content-Length", strconv.FormatInt(r.info.ContentLength, 10))
	}
	r.c.Status(http.StatusOK)
}

// formatContentRange builds a Content-Range value; the total is "*" when
// the resource size is unknown
func formatContentRange(rng gateway.ByteRange, bodyLen, total int64) string {
	end := rng.Offset
	if bodyLen > 0 {
		end = rng.Offset + bodyLen - 1
	}
	if total > 0 {
		return fmt.Sprintf("bytes %d-%d/%d", rng.Offset, end, total)
	}
	return fmt.Sprintf("bytes %d-%d/*", rng.Offset, end)
}

func isPlaylistContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "mpegurl")
}

// parseRangeHeader parses a single-range "bytes=a-b" header. Multi-range
// requests are not supported and are treated as full-resource loads.
func parseRangeHeader(value string) (gateway.ByteRange, bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(value, prefix) {
		return gateway.ByteRange{}, false
	}
	spec := strings.TrimPrefix(value, prefix)
	if strings.Contains(spec, ",") {
		return gateway.ByteRange{}, false
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 || parts[0] == "" {
		return gateway.ByteRange{}, false
	}
	offset, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return gateway.ByteRange{}, false
	}

	if parts[1] == "" {
		return gateway.ByteRange{Offset: offset, Length: -1}, true
	}
	end, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || end < offset {
		return gateway.ByteRange{}, false
	}
	return gateway.ByteRange{Offset: offset, Length: end - offset + 1}, true
}

func (api *API) lookup(c *gin.Context) (*session.Session, bool) {
	sess, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}
	return sess, true
}
