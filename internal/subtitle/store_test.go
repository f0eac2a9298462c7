package subtitle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinityhades/luna-gateway/internal/logging"
	"github.com/trinityhades/luna-gateway/pkg/models"
)

type fakePlayer struct {
	position float64
	selected bool
}

func (f *fakePlayer) Position() float64         { return f.position }
func (f *fakePlayer) SystemTrackSelected() bool { return f.selected }

func testStore(t *testing.T, cues []models.SubtitleCue) *Store {
	t.Helper()
	s := NewStore(nil, nil, logging.NewNopLogger())
	s.mu.Lock()
	s.cues = cues
	s.mu.Unlock()
	return s
}

func testCues() []models.SubtitleCue {
	return []models.SubtitleCue{
		{ID: "a", Start: 1, End: 3, Text: "first"},
		{ID: "b", Start: 5, End: 7, Text: "second"},
		{ID: "c", Start: 10, End: 12, Text: "third"},
	}
}

func TestStore_ResolveActiveCue(t *testing.T) {
	tests := []struct {
		name     string
		position float64
		wantText string
		wantHit  bool
	}{
		{name: "before first cue", position: 0.5, wantHit: false},
		{name: "inside first cue", position: 2, wantText: "first", wantHit: true},
		{name: "at cue start", position: 5, wantText: "second", wantHit: true},
		{name: "at cue end", position: 7, wantText: "second", wantHit: true},
		{name: "in a gap", position: 4, wantHit: false},
		{name: "inside last cue", position: 11, wantText: "third", wantHit: true},
		{name: "after last cue", position: 20, wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testStore(t, testCues())
			cue, ok := s.ResolveActiveCue(tt.position)
			assert.Equal(t, tt.wantHit, ok)
			if tt.wantHit {
				assert.Equal(t, tt.wantText, cue.Text)
				assert.Equal(t, cue.ID, s.State().CurrentCueID)
			} else {
				assert.Empty(t, s.State().CurrentCueID)
			}
		})
	}
}

func TestStore_ResolveActiveCue_MonotonicAdvance(t *testing.T) {
	s := testStore(t, testCues())

	// Advancing playback hits the cursor fast path across cue boundaries
	for _, step := range []struct {
		pos  float64
		text string
	}{
		{1.5, "first"}, {2.5, "first"}, {5.5, "second"}, {6.9, "second"}, {10.1, "third"},
	} {
		cue, ok := s.ResolveActiveCue(step.pos)
		require.True(t, ok, "position %v", step.pos)
		assert.Equal(t, step.text, cue.Text)
	}
}

func TestStore_ResolveActiveCue_SeekBackward(t *testing.T) {
	s := testStore(t, testCues())

	cue, ok := s.ResolveActiveCue(11)
	require.True(t, ok)
	assert.Equal(t, "third", cue.Text)

	// Seeking backwards must fall back to search, not stick to the cursor
	cue, ok = s.ResolveActiveCue(2)
	require.True(t, ok)
	assert.Equal(t, "first", cue.Text)
}

func TestStore_ResolveActiveCue_OverlappingCues(t *testing.T) {
	s := testStore(t, []models.SubtitleCue{
		{ID: "a", Start: 0, End: 1, Text: "a"},
		{ID: "b", Start: 2, End: 3, Text: "b"},
		{ID: "long", Start: 4, End: 8, Text: "long"},
		{ID: "late", Start: 6, End: 10, Text: "late"},
	})

	// Park the cursor on an early cue so the overlap probes below cannot
	// take the fast path
	cue, ok := s.ResolveActiveCue(0.5)
	require.True(t, ok)
	assert.Equal(t, "a", cue.Text)

	// Both overlapping cues contain 7; the earliest-starting one wins
	cue, ok = s.ResolveActiveCue(7)
	require.True(t, ok)
	assert.Equal(t, "long", cue.Text)

	// Re-park, then probe a position only the later cue contains
	cue, ok = s.ResolveActiveCue(0.5)
	require.True(t, ok)
	assert.Equal(t, "a", cue.Text)

	cue, ok = s.ResolveActiveCue(9)
	require.True(t, ok)
	assert.Equal(t, "late", cue.Text)
}

func TestStore_ResolveActiveCue_NestedCuePicksOuter(t *testing.T) {
	s := testStore(t, []models.SubtitleCue{
		{ID: "a", Start: 0, End: 1, Text: "a"},
		{ID: "b", Start: 2, End: 3, Text: "b"},
		{ID: "outer", Start: 4, End: 10, Text: "outer"},
		{ID: "inner", Start: 6, End: 8, Text: "inner"},
	})

	cue, ok := s.ResolveActiveCue(0.5)
	require.True(t, ok)
	assert.Equal(t, "a", cue.Text)

	// A cue fully nested inside an earlier one never wins
	cue, ok = s.ResolveActiveCue(7)
	require.True(t, ok)
	assert.Equal(t, "outer", cue.Text)
}

func TestStore_OffsetShiftsResolution(t *testing.T) {
	s := testStore(t, testCues())

	_, ok := s.ResolveActiveCue(4)
	assert.False(t, ok)

	// +1.5s offset moves position 4 into the second cue's window
	s.AdjustOffset(1.5)
	cue, ok := s.ResolveActiveCue(4)
	require.True(t, ok)
	assert.Equal(t, "second", cue.Text)
}

func TestStore_AdjustOffsetClamps(t *testing.T) {
	s := testStore(t, nil)

	assert.Equal(t, 0.5, s.AdjustOffset(OffsetStepSeconds))
	assert.Equal(t, MaxOffsetSeconds, s.AdjustOffset(100))
	assert.Equal(t, MinOffsetSeconds, s.AdjustOffset(-100))

	s.ResetOffset()
	assert.Equal(t, 0.0, s.State().TimeOffsetSeconds)
}

func TestStore_SyncWithSystemSelectionOverridesToggle(t *testing.T) {
	s := testStore(t, nil)

	s.SetEnabled(true)
	assert.True(t, s.State().SubtitlesEnabled)

	// The mirror always wins over a prior explicit toggle
	s.SyncWithSystemSelection(false)
	assert.False(t, s.State().SubtitlesEnabled)
	assert.False(t, s.State().SystemTrackActive)

	s.SetEnabled(false)
	s.SyncWithSystemSelection(true)
	assert.True(t, s.State().SubtitlesEnabled)
	assert.True(t, s.State().SystemTrackActive)
}

func TestStore_Tick(t *testing.T) {
	s := testStore(t, testCues())
	player := &fakePlayer{position: 2, selected: true}

	assert.Equal(t, "first", s.Tick(player))

	// Deselecting the system track blanks the overlay and clears the active cue
	player.selected = false
	assert.Equal(t, "", s.Tick(player))
	assert.Empty(t, s.State().CurrentCueID)

	player.selected = true
	player.position = 6
	assert.Equal(t, "second", s.Tick(player))
}

func TestStore_AttachDetach(t *testing.T) {
	s := testStore(t, testCues())
	player := &fakePlayer{position: 2, selected: true}

	s.Attach(player, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return s.State().CurrentCueID != ""
	}, time.Second, 5*time.Millisecond)

	s.Detach()
	// Detach is synchronous; a second Detach is a no-op
	s.Detach()
}

func TestStore_Load(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("WEBVTT\n\n00:00:01.000 --> 00:00:03.000\nFetched cue\n"))
	}))
	defer srv.Close()

	s := NewStore(srv.Client(), nil, logging.NewNopLogger())
	err := s.Load(context.Background(), srv.URL+"/track.vtt")
	require.NoError(t, err)

	cues := s.Cues()
	require.Len(t, cues, 1)
	assert.Equal(t, "Fetched cue", cues[0].Text)
}

func TestStore_LoadFailureKeepsPreviousCues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := testStore(t, testCues())
	s.client = srv.Client()

	err := s.Load(context.Background(), srv.URL+"/track.vtt")
	assert.Error(t, err)
	assert.Len(t, s.Cues(), 3)
}

func TestStore_LoadDiscardedAfterInvalidate(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("WEBVTT\n\n00:00:01.000 --> 00:00:03.000\nStale\n"))
	}))
	defer srv.Close()

	s := NewStore(srv.Client(), nil, logging.NewNopLogger())

	done := make(chan error, 1)
	go func() {
		done <- s.Load(context.Background(), srv.URL+"/track.vtt")
	}()

	// Tear the store down while the fetch is blocked in flight
	time.Sleep(20 * time.Millisecond)
	s.Invalidate()
	close(release)

	require.NoError(t, <-done)
	assert.Empty(t, s.Cues())
}
