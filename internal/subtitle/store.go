package subtitle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/trinityhades/luna-gateway/internal/cache"
	"github.com/trinityhades/luna-gateway/internal/logging"
	"github.com/trinityhades/luna-gateway/internal/metrics"
	"github.com/trinityhades/luna-gateway/pkg/models"
)

// Offset adjustment bounds in seconds
const (
	MinOffsetSeconds  = -10.0
	MaxOffsetSeconds  = 10.0
	OffsetStepSeconds = 0.5
)

// PositionSource reports the current playback position and whether the host
// player currently has its own subtitle track selected
type PositionSource interface {
	Position() float64
	SystemTrackSelected() bool
}

// Store owns the authoritative cue list for the active subtitle track and
// answers what should be shown at a given playback position. It mirrors the
// host player's system subtitle selection every tick and applies a bounded
// user-adjustable time offset.
type Store struct {
	client *http.Client
	cache  *cache.Cache
	logger *logging.Logger

	mu         sync.Mutex
	cues       []models.SubtitleCue
	cursor     int
	state      models.PlaybackSyncState
	generation uint64

	tickMu   sync.Mutex
	attached bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewStore creates a cue store. The cache is optional; pass nil to always
// fetch subtitle documents from origin.
func NewStore(client *http.Client, c *cache.Cache, logger *logging.Logger) *Store {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Store{
		client: client,
		cache:  c,
		logger: logger,
	}
}

// Load fetches and parses the subtitle document at locator, replacing the
// cue list wholesale on success. Any failure leaves the previous cue list
// untouched; subtitle loading is best-effort and never blocks playback.
func (s *Store) Load(ctx context.Context, locator string) error {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	doc, err := s.fetchDocument(ctx, locator)
	if err != nil {
		metrics.SubtitleLoadsTotal.WithLabelValues("error").Inc()
		s.logger.WithError(err).Warnf("subtitle load failed, keeping previous cues: %s", locator)
		return fmt.Errorf("failed to load subtitle document: %w", err)
	}

	cues := ParseCues(doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		// Store was invalidated while the load was in flight
		s.logger.Debugf("discarding stale subtitle load for %s", locator)
		return nil
	}
	s.cues = cues
	s.cursor = 0
	s.state.CurrentCueID = ""

	metrics.SubtitleLoadsTotal.WithLabelValues("ok").Inc()
	s.logger.Infof("loaded %d subtitle cues from %s", len(cues), locator)
	return nil
}

func (s *Store) fetchDocument(ctx context.Context, locator string) (string, error) {
	if s.cache != nil {
		if doc, ok := s.cache.GetSubtitleDocument(ctx, locator); ok {
			return doc, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
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
	if s.cache != nil {
		s.cache.SetSubtitleDocument(ctx, locator, doc)
	}
	return doc, nil
}

// ResolveActiveCue returns the cue containing the given playback position
// after applying the stored time offset, or false when no cue is active.
//
// A cursor remembers the last hit so that monotonically advancing playback
// resolves in O(1); any miss (including seeks in either direction) falls
// back to binary search over the sorted cue list.
func (s *Store) ResolveActiveCue(position float64) (models.SubtitleCue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	adjusted := position + s.state.TimeOffsetSeconds

	if len(s.cues) == 0 {
		s.state.CurrentCueID = ""
		return models.SubtitleCue{}, false
	}

	// Fast path: the cursor's cue or its immediate successor
	if s.cursor < len(s.cues) && s.cues[s.cursor].Contains(adjusted) {
		return s.markActive(s.cursor), true
	}
	if s.cursor+1 < len(s.cues) && s.cues[s.cursor+1].Contains(adjusted) {
		s.cursor++
		return s.markActive(s.cursor), true
	}

	idx, ok := s.searchCue(adjusted)
	if !ok {
		s.state.CurrentCueID = ""
		return models.SubtitleCue{}, false
	}
	s.cursor = idx
	return s.markActive(idx), true
}

// searchCue binary-searches for a cue containing the adjusted time. The
// insertion point bounds the candidates to cues starting at or before the
// adjusted time; the first containing cue in ascending start order wins,
// so overlapping cues resolve to the earliest-starting match.
func (s *Store) searchCue(adjusted float64) (int, bool) {
	i := sort.Search(len(s.cues), func(k int) bool {
		return s.cues[k].Start > adjusted
	})
	for j := 0; j < i; j++ {
		if s.cues[j].Contains(adjusted) {
			return j, true
		}
	}
	return 0, false
}

func (s *Store) markActive(idx int) models.SubtitleCue {
	s.state.CurrentCueID = s.cues[idx].ID
	return s.cues[idx]
}

// SyncWithSystemSelection mirrors the host player's own subtitle-track
// selection onto the overlay enabled flag. This deliberately overrides any
// prior explicit toggle; the overlay always follows the last observed
// external selection state.
func (s *Store) SyncWithSystemSelection(selected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SystemTrackActive = selected
	s.state.SubtitlesEnabled = selected
}

// SetEnabled toggles the overlay explicitly. Note that the next system
// selection sync overwrites this choice.
func (s *Store) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SubtitlesEnabled = enabled
}

// AdjustOffset shifts the time offset by delta seconds, clamped to
// [MinOffsetSeconds, MaxOffsetSeconds], and returns the new offset
func (s *Store) AdjustOffset(delta float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset := s.state.TimeOffsetSeconds + delta
	if offset < MinOffsetSeconds {
		offset = MinOffsetSeconds
	}
	if offset > MaxOffsetSeconds {
		offset = MaxOffsetSeconds
	}
	s.state.TimeOffsetSeconds = offset
	return offset
}

// ResetOffset sets the time offset back to zero
func (s *Store) ResetOffset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TimeOffsetSeconds = 0
}

// State returns a copy of the current synchronization state
func (s *Store) State() models.PlaybackSyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cues returns a copy of the loaded cue list
func (s *Store) Cues() []models.SubtitleCue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SubtitleCue, len(s.cues))
	copy(out, s.cues)
	return out
}

// Tick performs one synchronization pass against the position source:
// mirror the system selection, then resolve the active cue. Returns the
// active cue text, or the empty string when nothing should be shown.
func (s *Store) Tick(source PositionSource) string {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.SyncWithSystemSelection(source.SystemTrackSelected())
	if !s.enabled() {
		s.mu.Lock()
		s.state.CurrentCueID = ""
		s.mu.Unlock()
		return ""
	}

	cue, ok := s.ResolveActiveCue(source.Position())
	if !ok {
		return ""
	}
	return cue.Text
}

func (s *Store) enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SubtitlesEnabled
}

// Attach starts a periodic tick loop against the position source. Ticks are
// serialized; a second Attach without an intervening Detach is a no-op.
func (s *Store) Attach(source PositionSource, interval time.Duration) {
	s.tickMu.Lock()
	if s.attached {
		s.tickMu.Unlock()
		return
	}
	s.attached = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stop, done := s.stopCh, s.doneCh
	s.tickMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Tick(source)
			}
		}
	}()
}

// Detach synchronously stops the tick loop; no ticks fire after it returns
func (s *Store) Detach() {
	s.tickMu.Lock()
	if !s.attached {
		s.tickMu.Unlock()
		return
	}
	s.attached = false
	stop, done := s.stopCh, s.doneCh
	s.tickMu.Unlock()

	close(stop)
	<-done
}

// Invalidate discards the cue list and bumps the load generation so that
// any in-flight Load publishes nothing into a torn-down store
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.cues = nil
	s.cursor = 0
	s.state.CurrentCueID = ""
}
