package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinityhades/luna-gateway/internal/logging"
	"github.com/trinityhades/luna-gateway/internal/playlist"
	"github.com/trinityhades/luna-gateway/pkg/models"
)

// fakeRequest records the gateway's side of the loading-request contract
type fakeRequest struct {
	u   *url.URL
	rng *ByteRange

	info     *ContentInfo
	data     []byte
	finished bool
	err      error
}

func (r *fakeRequest) URL() *url.URL { return r.u }

func (r *fakeRequest) ByteRange() (ByteRange, bool) {
	if r.rng == nil {
		return ByteRange{}, false
	}
	return *r.rng, true
}

func (r *fakeRequest) RespondWithContentInfo(info ContentInfo) { r.info = &info }
func (r *fakeRequest) RespondWithData(data []byte)             { r.data = append(r.data, data...) }
func (r *fakeRequest) FinishLoading()                          { r.finished = true }
func (r *fakeRequest) FinishLoadingWithError(err error)        { r.err = err }

func newTestGateway(t *testing.T, tracks []models.SubtitleTrack, headers map[string]string) *Gateway {
	t.Helper()
	logger := logging.NewNopLogger()
	generator := playlist.NewGenerator(nil, nil, logger, t.TempDir())
	return New(Config{}, tracks, headers, generator, logger)
}

func request(t *testing.T, g *Gateway, raw string, rng *ByteRange) *fakeRequest {
	t.Helper()
	req := &fakeRequest{u: mustParse(t, raw), rng: rng}
	g.HandleRequest(context.Background(), req)
	return req
}

func TestGateway_ShouldLoad(t *testing.T) {
	g := newTestGateway(t, nil, nil)

	assert.True(t, g.ShouldLoad(mustParse(t, "luna://cdn.example.com/master.m3u8")))
	assert.False(t, g.ShouldLoad(mustParse(t, "https://cdn.example.com/master.m3u8")))
	assert.False(t, g.ShouldLoad(nil))
}

func TestGateway_SyntheticTrackIndexOutOfRange(t *testing.T) {
	tracks := []models.SubtitleTrack{
		{Name: "English", Language: "en", Locator: "https://subs.example.com/en.vtt"},
		{Name: "French", Language: "fr", Locator: "https://subs.example.com/fr.vtt"},
	}
	g := newTestGateway(t, tracks, nil)

	// Fails locally; no network fetch is attempted for the bogus index
	req := request(t, g, "luna://subtitle/track5.m3u8", nil)
	assert.ErrorIs(t, req.err, ErrTrackIndexOutOfRange)
	assert.False(t, req.finished)
	assert.Nil(t, req.data)
}

func TestGateway_SyntheticBadPath(t *testing.T) {
	g := newTestGateway(t, []models.SubtitleTrack{{Locator: "https://subs.example.com/en.vtt"}}, nil)

	req := request(t, g, "luna://subtitle/unknown.key", nil)
	assert.ErrorIs(t, req.err, ErrBadSyntheticPath)
	assert.False(t, req.finished)
}

func TestGateway_SyntheticPlaylistForVTTTrack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("WEBVTT\n\n00:00:01.000 --> 00:01:00.000\ncue\n"))
	}))
	defer srv.Close()

	tracks := []models.SubtitleTrack{{Name: "English", Language: "en", Locator: srv.URL + "/en.vtt"}}
	g := newTestGateway(t, tracks, nil)

	req := request(t, g, "luna://subtitle/track0.m3u8", nil)
	require.NoError(t, req.err)
	assert.True(t, req.finished)

	require.NotNil(t, req.info)
	assert.Equal(t, MIMEPlaylist, req.info.ContentType)
	assert.Equal(t, int64(len(req.data)), req.info.ContentLength)

	text := string(req.data)
	assert.True(t, strings.HasPrefix(text, "#EXTM3U\n"))
	assert.Contains(t, text, "#EXT-X-TARGETDURATION:60\n")
	assert.Contains(t, text, "#EXT-X-PLAYLIST-TYPE:VOD\n")
	// The VTT source is referenced directly as the single segment
	assert.Contains(t, text, srv.URL+"/en.vtt\n")
	assert.Contains(t, text, "#EXT-X-ENDLIST\n")
}

func TestGateway_SyntheticPlaylistForSRTTrackAndMaterializedVTT(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("1\n00:00:01,000 --> 00:00:04,000\nConverted text\n"))
	}))
	defer srv.Close()

	tracks := []models.SubtitleTrack{{Name: "English", Language: "en", Locator: srv.URL + "/en.srt"}}
	g := newTestGateway(t, tracks, nil)

	plReq := request(t, g, "luna://subtitle/track0.m3u8", nil)
	require.NoError(t, plReq.err)

	// The playlist references the synthetic VTT sibling, not a file path
	assert.Contains(t, string(plReq.data), "luna://subtitle/track0.vtt\n")

	// The sibling resolves to the materialized converted document
	vttReq := request(t, g, "luna://subtitle/track0.vtt", nil)
	require.NoError(t, vttReq.err)
	assert.True(t, vttReq.finished)
	assert.Equal(t, MIMEWebVTT, vttReq.info.ContentType)

	text := string(vttReq.data)
	assert.True(t, strings.HasPrefix(text, "WEBVTT\n"))
	assert.Contains(t, text, "00:00:01.000 --> 00:00:04.000")
	assert.Contains(t, text, "Converted text")

	// Close removes the materialized file
	g.Close()
	vttReq = request(t, g, "luna://subtitle/track0.vtt", nil)
	assert.Error(t, vttReq.err)
}

func TestGateway_PassthroughRewritesMultivariantManifest(t *testing.T) {
	manifest := "#EXTM3U\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=800000\n" +
		"low/index.m3u8\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token-123", r.Header.Get("X-Auth"))
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.Write([]byte(manifest))
	}))
	defer srv.Close()

	tracks := []models.SubtitleTrack{{Name: "English", Language: "en", Locator: "https://subs.example.com/en.vtt"}}
	g := newTestGateway(t, tracks, map[string]string{"X-Auth": "token-123"})

	synthetic, err := g.PrepareManifestURL(srv.URL + "/master.m3u8")
	require.NoError(t, err)

	req := request(t, g, synthetic, nil)
	require.NoError(t, req.err)
	assert.True(t, req.finished)
	assert.Equal(t, MIMEPlaylist, req.info.ContentType)

	text := string(req.data)
	assert.Contains(t, text, `#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID="subs",NAME="English"`)
	assert.Contains(t, text, `SUBTITLES="subs"`)
	assert.Equal(t, int64(len(req.data)), req.info.ContentLength)
}

func TestGateway_PassthroughNonManifestURLNotRewritten(t *testing.T) {
	manifest := "#EXTM3U\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=800000\n" +
		"low/index.m3u8\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(manifest))
	}))
	defer srv.Close()

	tracks := []models.SubtitleTrack{{Name: "English", Locator: "https://subs.example.com/en.vtt"}}
	g := newTestGateway(t, tracks, nil)

	// Registered as an ordinary resource, not as the top-level manifest, so
	// no subtitle injection happens even for multivariant content
	synthetic, err := g.PrepareURL(srv.URL + "/other.m3u8")
	require.NoError(t, err)

	req := request(t, g, synthetic, nil)
	require.NoError(t, req.err)
	assert.Equal(t, manifest, string(req.data))
}

func TestGateway_PassthroughMediaPlaylistUntouched(t *testing.T) {
	manifest := "#EXTM3U\n#EXTINF:6.0,\nseg0.ts\n#EXT-X-ENDLIST\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(manifest))
	}))
	defer srv.Close()

	tracks := []models.SubtitleTrack{{Name: "English", Locator: "https://subs.example.com/en.vtt"}}
	g := newTestGateway(t, tracks, nil)

	synthetic, err := g.PrepareURL(srv.URL + "/media.m3u8")
	require.NoError(t, err)

	req := request(t, g, synthetic, nil)
	require.NoError(t, req.err)
	assert.Equal(t, manifest, string(req.data))
}

func TestGateway_PassthroughByteRange(t *testing.T) {
	payload := make([]byte, 5000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=1000-1499", r.Header.Get("Range"))
		w.Header().Set("Content-Range", "bytes 1000-1499/5000")
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[1000:1500])
	}))
	defer srv.Close()

	g := newTestGateway(t, nil, nil)
	synthetic, err := g.PrepareURL(srv.URL + "/seg0.ts")
	require.NoError(t, err)

	req := request(t, g, synthetic, &ByteRange{Offset: 1000, Length: 500})
	require.NoError(t, req.err)
	assert.Len(t, req.data, 500)
	assert.True(t, req.info.ByteRangeSupported)
	// Total resource size comes from the Content-Range suffix
	assert.Equal(t, int64(5000), req.info.ContentLength)
}

func TestGateway_PassthroughOpenEndedRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=2048-", r.Header.Get("Range"))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("tail"))
	}))
	defer srv.Close()

	g := newTestGateway(t, nil, nil)
	synthetic, err := g.PrepareURL(srv.URL + "/seg0.ts")
	require.NoError(t, err)

	req := request(t, g, synthetic, &ByteRange{Offset: 2048, Length: -1})
	require.NoError(t, req.err)
	assert.Equal(t, "tail", string(req.data))
	assert.True(t, req.info.ByteRangeSupported)
}

func TestGateway_PassthroughOriginError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	g := newTestGateway(t, nil, nil)
	synthetic, err := g.PrepareURL(srv.URL + "/master.m3u8")
	require.NoError(t, err)

	req := request(t, g, synthetic, nil)
	assert.Error(t, req.err)
	assert.False(t, req.finished)
}

func TestFormatRangeHeader(t *testing.T) {
	assert.Equal(t, "bytes=0-499", formatRangeHeader(ByteRange{Offset: 0, Length: 500}))
	assert.Equal(t, "bytes=1000-1499", formatRangeHeader(ByteRange{Offset: 1000, Length: 500}))
	assert.Equal(t, "bytes=2048-", formatRangeHeader(ByteRange{Offset: 2048, Length: -1}))
}
