package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinityhades/luna-gateway/internal/config"
	"github.com/trinityhades/luna-gateway/internal/logging"
	"github.com/trinityhades/luna-gateway/pkg/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Gateway: config.GatewayConfig{
			Scheme:       "luna",
			FetchTimeout: 5 * time.Second,
			TempDir:      t.TempDir(),
		},
		Subtitles: config.SubtitlesConfig{
			TickInterval: 10 * time.Millisecond,
			LoadTimeout:  5 * time.Second,
		},
	}
}

func subtitleServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("WEBVTT\n\n00:00:01.000 --> 00:00:05.000\nHello from track\n"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestManager_CreateAndGet(t *testing.T) {
	srv := subtitleServer(t)
	m := NewManager(testConfig(t), nil, logging.NewNopLogger())
	defer m.CloseAll()

	sess, err := m.Create(models.SessionRequest{
		StreamURL: "https://cdn.example.com/stream/master.m3u8",
		Headers:   map[string]string{"Referer": "https://cdn.example.com"},
		Subtitles: []string{"English", srv.URL + "/en.vtt"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.SessionStatusActive, sess.Model.Status)
	assert.Equal(t, "luna://cdn.example.com/stream/master.m3u8", sess.ManifestURL)

	require.Len(t, sess.Model.Tracks, 1)
	assert.Equal(t, "English", sess.Model.Tracks[0].Name)

	got, err := m.Get(sess.Model.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	// The default track preload lands in the store
	assert.Eventually(t, func() bool {
		return len(sess.Store.Cues()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_PlaybackSync(t *testing.T) {
	srv := subtitleServer(t)
	m := NewManager(testConfig(t), nil, logging.NewNopLogger())
	defer m.CloseAll()

	sess, err := m.Create(models.SessionRequest{
		StreamURL: "https://cdn.example.com/stream/master.m3u8",
		Subtitles: []string{srv.URL + "/en.vtt"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sess.Store.Cues()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	sess.ReportPlayback(2.5, true)
	assert.Equal(t, "Hello from track", sess.Store.Tick(sess))

	// Deselecting the system track blanks the overlay on the next tick
	sess.ReportPlayback(2.5, false)
	assert.Equal(t, "", sess.Store.Tick(sess))
}

func TestManager_SelectTrack(t *testing.T) {
	srv := subtitleServer(t)
	m := NewManager(testConfig(t), nil, logging.NewNopLogger())
	defer m.CloseAll()

	sess, err := m.Create(models.SessionRequest{
		StreamURL: "https://cdn.example.com/stream/master.m3u8",
		Subtitles: []string{"English", srv.URL + "/en.vtt", "French", srv.URL + "/fr.vtt"},
	})
	require.NoError(t, err)

	require.NoError(t, sess.SelectTrack(context.Background(), 1))

	err = sess.SelectTrack(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "out of range"))
}

func TestManager_Close(t *testing.T) {
	srv := subtitleServer(t)
	m := NewManager(testConfig(t), nil, logging.NewNopLogger())

	sess, err := m.Create(models.SessionRequest{
		StreamURL: "https://cdn.example.com/stream/master.m3u8",
		Subtitles: []string{srv.URL + "/en.vtt"},
	})
	require.NoError(t, err)

	require.NoError(t, m.Close(sess.Model.ID))
	assert.Equal(t, models.SessionStatusClosed, sess.Model.Status)
	assert.Empty(t, sess.Store.Cues())

	_, err = m.Get(sess.Model.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Closing twice reports not found
	assert.ErrorIs(t, m.Close(sess.Model.ID), ErrNotFound)
}

func TestManager_CreateRejectsUnparseableURL(t *testing.T) {
	m := NewManager(testConfig(t), nil, logging.NewNopLogger())

	_, err := m.Create(models.SessionRequest{StreamURL: "http://bad url with spaces"})
	assert.Error(t, err)
}
