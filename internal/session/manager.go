// Package session owns the lifecycle of playback sessions. Each session
// couples one interception gateway with one subtitle cue store; sessions
// are constructed explicitly and injected where needed rather than held in
// process-wide singletons.
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trinityhades/luna-gateway/internal/cache"
	"github.com/trinityhades/luna-gateway/internal/config"
	"github.com/trinityhades/luna-gateway/internal/gateway"
	"github.com/trinityhades/luna-gateway/internal/logging"
	"github.com/trinityhades/luna-gateway/internal/metrics"
	"github.com/trinityhades/luna-gateway/internal/playlist"
	"github.com/trinityhades/luna-gateway/internal/source"
	"github.com/trinityhades/luna-gateway/internal/subtitle"
	"github.com/trinityhades/luna-gateway/pkg/models"
)

// ErrNotFound is returned for unknown session IDs
var ErrNotFound = fmt.Errorf("session not found")

// Session is one active playback session. The playback position and system
// subtitle selection are reported by the client and mirrored into the cue
// store on every tick.
type Session struct {
	Model       models.Session
	Gateway     *gateway.Gateway
	Store       *subtitle.Store
	ManifestURL string

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	position       float64
	systemSelected bool
}

// Position implements subtitle.PositionSource
func (s *Session) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// SystemTrackSelected implements subtitle.PositionSource
func (s *Session) SystemTrackSelected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systemSelected
}

// ReportPlayback records the client-reported playback position and system
// subtitle selection state
func (s *Session) ReportPlayback(position float64, systemSelected bool) {
	s.mu.Lock()
	s.position = position
	s.systemSelected = systemSelected
	s.mu.Unlock()
}

// SelectTrack loads the cue list of the given subtitle track into the
// session's store. Loading is best-effort; a failure keeps the previous
// cues.
func (s *Session) SelectTrack(ctx context.Context, index int) error {
	tracks := s.Gateway.Tracks()
	if index < 0 || index >= len(tracks) {
		return fmt.Errorf("track %d out of range (%d registered)", index, len(tracks))
	}
	return s.Store.Load(ctx, tracks[index].Locator)
}

// Manager creates, looks up and tears down sessions
type Manager struct {
	cfg    *config.Config
	cache  *cache.Cache
	logger *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. The cache is optional.
func NewManager(cfg *config.Config, c *cache.Cache, logger *logging.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		cache:    c,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create builds a session from a playback URL, header set and subtitle
// source list, prepares the manifest URL for interception and starts the
// cue synchronization loop
func (m *Manager) Create(req models.SessionRequest) (*Session, error) {
	tracks := source.ParseSubtitleList(req.Subtitles)

	id := uuid.NewString()
	logger := m.logger.WithSessionID(id)

	client := &http.Client{Timeout: m.cfg.Gateway.FetchTimeout}
	generator := playlist.NewGenerator(client, m.cache, logger, m.cfg.Gateway.TempDir)
	gw := gateway.New(gateway.Config{
		Scheme:       m.cfg.Gateway.Scheme,
		FetchTimeout: m.cfg.Gateway.FetchTimeout,
	}, tracks, req.Headers, generator, logger)

	manifestURL, err := gw.PrepareManifestURL(req.StreamURL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare manifest URL: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		Model: models.Session{
			ID:        id,
			StreamURL: req.StreamURL,
			Headers:   req.Headers,
			Tracks:    tracks,
			Status:    models.SessionStatusActive,
			CreatedAt: time.Now().UTC(),
		},
		Gateway:     gw,
		Store:       subtitle.NewStore(&http.Client{Timeout: m.cfg.Subtitles.LoadTimeout}, m.cache, logger),
		ManifestURL: manifestURL,
		ctx:         ctx,
		cancel:      cancel,
	}

	// Preload the default track's cues; best-effort, never blocks session
	// creation
	if len(tracks) > 0 {
		go func() {
			if err := sess.Store.Load(ctx, tracks[0].Locator); err != nil {
				logger.WithError(err).Warn("default subtitle track preload failed")
			}
		}()
	}

	sess.Store.Attach(sess, m.cfg.Subtitles.TickInterval)

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	metrics.SessionsCreatedTotal.Inc()
	metrics.SessionsActive.Inc()
	logger.Infof("session created for %s with %d subtitle tracks", req.StreamURL, len(tracks))
	return sess, nil
}

// Get returns the session with the given ID
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Close tears down one session: stops ticks synchronously, invalidates the
// cue store so in-flight loads publish nothing, cancels outstanding work
// and removes materialized subtitle files
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	sess.Store.Detach()
	sess.Store.Invalidate()
	sess.cancel()
	sess.Gateway.Close()
	sess.Model.Status = models.SessionStatusClosed

	metrics.SessionsActive.Dec()
	m.logger.WithSessionID(id).Info("session closed")
	return nil
}

// CloseAll tears down every active session
func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Close(id)
	}
}
