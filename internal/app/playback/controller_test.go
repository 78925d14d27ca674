package playback

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunedeck/internal/app/filter"
	"github.com/osa030/tunedeck/internal/domain/queue"
	"github.com/osa030/tunedeck/internal/domain/track"
)

type fakeEngine struct {
	mu     sync.Mutex
	uri    string
	onEnd  func()
	plays  []string
	paused bool
	stops  int
}

func (e *fakeEngine) Play(_ context.Context, uri string, _ time.Duration, onEnd func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.uri = uri
	e.onEnd = onEnd
	e.paused = false
	e.plays = append(e.plays, uri)
	return nil
}

func (e *fakeEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
	return nil
}

func (e *fakeEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	return nil
}

func (e *fakeEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.uri = ""
	e.onEnd = nil
	e.stops++
	return nil
}

func (e *fakeEngine) Progress() (string, time.Duration, time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.uri, time.Second, 3 * time.Minute
}

// endCallback returns the end callback of the track handed to the engine last.
func (e *fakeEngine) endCallback() func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onEnd
}

// finish simulates the current track running out.
func (e *fakeEngine) finish(t *testing.T) {
	t.Helper()
	onEnd := e.endCallback()
	require.NotNil(t, onEnd, "nothing is playing")
	onEnd()
}

func (e *fakeEngine) current() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.uri
}

type fakeResolver struct {
	fail map[string]bool
}

func (r *fakeResolver) ResolveStreamURL(_ context.Context, t track.Track) (string, error) {
	if r.fail[t.ID] {
		return "", errors.New("not streamable")
	}
	return "stream://" + t.ID, nil
}

type fakeModeStore struct {
	saved []queue.LoopMode
}

func (s *fakeModeStore) SaveMode(mode queue.LoopMode) error {
	s.saved = append(s.saved, mode)
	return nil
}

type fakeStation struct {
	batches  [][]track.Track
	seeds    [][]string
	excludes []map[string]bool
}

func (s *fakeStation) GetCandidates(_ context.Context, _ int, seeds []track.Track, exclude map[string]bool) ([]track.Track, error) {
	s.seeds = append(s.seeds, ids(seeds))
	s.excludes = append(s.excludes, exclude)
	if len(s.batches) == 0 {
		return nil, errors.New("station exhausted")
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

// rejectIDs is an Admitter turning away the listed IDs.
type rejectIDs map[string]bool

func (r rejectIDs) Admit(_ context.Context, tracks []track.Track, _ filter.Origin) ([]track.Track, []filter.Rejection) {
	var accepted []track.Track
	var rejected []filter.Rejection
	for _, t := range tracks {
		if r[t.ID] {
			rejected = append(rejected, filter.Rejection{Track: t, Code: "blocked"})
			continue
		}
		accepted = append(accepted, t)
	}
	return accepted, rejected
}

func trk(id string) track.Track {
	return track.Track{ID: id, Name: "Song " + id, Artists: []string{"Artist"}, Duration: time.Minute}
}

func trks(idList ...string) []track.Track {
	out := make([]track.Track, len(idList))
	for i, id := range idList {
		out[i] = trk(id)
	}
	return out
}

func ids(tracks []track.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.ID
	}
	return out
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *fakeEngine, *fakeResolver) {
	t.Helper()
	q := queue.New(queue.WithRand(rand.New(rand.NewSource(7))))
	engine := &fakeEngine{}
	resolver := &fakeResolver{fail: map[string]bool{}}
	c := NewController(q, engine, resolver, Config{NoMoreMessage: "No more songs!"}, opts...)
	t.Cleanup(c.Close)
	return c, engine, resolver
}

// drain returns the events emitted so far.
func drain(c *Controller) []Event {
	var out []Event
	for {
		select {
		case e, ok := <-c.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func currentID(t *testing.T, c *Controller) string {
	t.Helper()
	st := c.Status()
	if st.Track == nil {
		return ""
	}
	return st.Track.ID
}

func TestController_PlayTracksStartsFirst(t *testing.T) {
	c, engine, _ := newTestController(t)

	rejected, err := c.PlayTracks(context.Background(), trks("a", "b", "c"))
	require.NoError(t, err)
	assert.Empty(t, rejected)

	assert.Equal(t, "stream://a", engine.current())
	st := c.Status()
	assert.Equal(t, StatePlaying, st.State)
	assert.Equal(t, 0, st.Position)
	assert.Equal(t, 3, st.Length)
	assert.Equal(t, time.Second, st.Elapsed)
	assert.Equal(t, "a", st.Track.ID)

	events := drain(c)
	assert.Equal(t, []EventType{EventQueueReplaced, EventTrackStarted}, types(events))
	assert.Equal(t, "a", events[1].Track.ID)
	assert.Equal(t, []string{"a", "b", "c"}, ids(c.Queue().Tracks))
}

func TestController_NaturalEndAdvances(t *testing.T) {
	c, engine, _ := newTestController(t)
	_, err := c.PlayTracks(context.Background(), trks("a", "b"))
	require.NoError(t, err)
	drain(c)

	engine.finish(t)
	assert.Equal(t, "stream://b", engine.current())
	assert.Equal(t, []EventType{EventTrackEnded, EventTrackStarted}, types(drain(c)))
}

func TestController_NaturalEndOfQueueStops(t *testing.T) {
	c, engine, _ := newTestController(t)
	_, err := c.PlayTracks(context.Background(), trks("a"))
	require.NoError(t, err)
	drain(c)

	engine.finish(t)

	assert.Empty(t, engine.current())
	assert.Equal(t, StateIdle, c.Status().State)
	events := drain(c)
	assert.Equal(t, []EventType{EventTrackEnded, EventStateChanged, EventQueueEnded}, types(events))
	assert.Equal(t, "No more songs!", events[2].Message)
	assert.Equal(t, "a", currentID(t, c), "position stays on the last track")
}

func TestController_NaturalEndFollowsMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  queue.LoopMode
		plays []string
	}{
		{"repeat all wraps", queue.RepeatAll, []string{"stream://a", "stream://b", "stream://a"}},
		{"repeat one replays", queue.RepeatOne, []string{"stream://a", "stream://a", "stream://a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, engine, _ := newTestController(t)
			c.SetMode(tt.mode)
			_, err := c.PlayTracks(context.Background(), trks("a", "b"))
			require.NoError(t, err)

			engine.finish(t)
			engine.finish(t)
			assert.Equal(t, tt.plays, engine.plays)
			assert.Equal(t, StatePlaying, c.Status().State)
		})
	}
}

func TestController_ManualNavigationAtEdges(t *testing.T) {
	c, engine, _ := newTestController(t)
	ctx := context.Background()
	_, err := c.PlayTracks(ctx, trks("a", "b"))
	require.NoError(t, err)

	assert.ErrorIs(t, c.Previous(ctx), ErrNoMoreTracks)
	assert.Equal(t, "stream://a", engine.current())

	require.NoError(t, c.Next(ctx))
	assert.Equal(t, "stream://b", engine.current())
	drain(c)

	assert.ErrorIs(t, c.Next(ctx), ErrNoMoreTracks)
	assert.Equal(t, "stream://b", engine.current(), "current track keeps playing")
	assert.Equal(t, "b", currentID(t, c))

	events := drain(c)
	require.Len(t, events, 1)
	assert.Equal(t, EventQueueEnded, events[0].Type)
	assert.Equal(t, "No more songs!", events[0].Message)

	require.NoError(t, c.Previous(ctx))
	assert.Equal(t, "stream://a", engine.current())
}

func TestController_EmptyQueue(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.Next(ctx), ErrQueueEmpty)
	assert.ErrorIs(t, c.Previous(ctx), ErrQueueEmpty)
	assert.ErrorIs(t, c.Resume(ctx), ErrQueueEmpty)
	assert.ErrorIs(t, c.Pause(), ErrNotPlaying)
	assert.NoError(t, c.Stop())

	st := c.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Nil(t, st.Track)
	assert.Equal(t, -1, st.Position)
}

func TestController_StaleEndCallbackIgnored(t *testing.T) {
	c, engine, _ := newTestController(t)
	ctx := context.Background()
	_, err := c.PlayTracks(ctx, trks("a", "b", "c"))
	require.NoError(t, err)

	staleEnd := engine.endCallback()
	require.NoError(t, c.Next(ctx))
	drain(c)

	staleEnd()
	assert.Equal(t, "b", currentID(t, c))
	assert.Equal(t, []string{"stream://a", "stream://b"}, engine.plays)
	assert.Empty(t, drain(c))
}

func TestController_StopAndResume(t *testing.T) {
	c, engine, _ := newTestController(t)
	ctx := context.Background()
	_, err := c.PlayTracks(ctx, trks("a", "b"))
	require.NoError(t, err)
	staleEnd := engine.endCallback()

	require.NoError(t, c.Stop())
	assert.Equal(t, StateIdle, c.Status().State)
	assert.Equal(t, 1, engine.stops)

	staleEnd()
	assert.Equal(t, "a", currentID(t, c))
	assert.Len(t, engine.plays, 1)

	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, StatePlaying, c.Status().State)
	assert.Equal(t, []string{"stream://a", "stream://a"}, engine.plays)
}

func TestController_PauseResume(t *testing.T) {
	c, engine, _ := newTestController(t)
	ctx := context.Background()
	_, err := c.PlayTracks(ctx, trks("a"))
	require.NoError(t, err)
	drain(c)

	require.NoError(t, c.Pause())
	assert.True(t, engine.paused)
	assert.Equal(t, StatePaused, c.Status().State)
	assert.ErrorIs(t, c.Pause(), ErrNotPlaying)

	require.NoError(t, c.Resume(ctx))
	assert.False(t, engine.paused)
	assert.Equal(t, StatePlaying, c.Status().State)
	assert.ErrorIs(t, c.Resume(ctx), ErrNotPaused)

	events := drain(c)
	require.Len(t, events, 2)
	assert.Equal(t, StatePaused, events[0].State)
	assert.Equal(t, StatePlaying, events[1].State)
}

func TestController_PlayNext(t *testing.T) {
	c, engine, _ := newTestController(t)
	ctx := context.Background()
	_, err := c.PlayTracks(ctx, trks("a", "b"))
	require.NoError(t, err)

	require.NoError(t, c.PlayNext(ctx, trk("x")))
	assert.Equal(t, "stream://x", engine.current())
	assert.Equal(t, []string{"a", "x", "b"}, ids(c.Queue().Tracks))

	// already queued: selected, not duplicated
	require.NoError(t, c.PlayNext(ctx, trk("a")))
	assert.Equal(t, "stream://a", engine.current())
	assert.Equal(t, []string{"a", "x", "b"}, ids(c.Queue().Tracks))

	require.NoError(t, c.Next(ctx))
	assert.Equal(t, "x", currentID(t, c))
}

func TestController_PlayNextIntoEmptyQueue(t *testing.T) {
	c, engine, _ := newTestController(t)

	require.NoError(t, c.PlayNext(context.Background(), trk("solo")))
	assert.Equal(t, "stream://solo", engine.current())
	assert.Equal(t, 0, c.Status().Position)
}

func TestController_Filters(t *testing.T) {
	c, _, _ := newTestController(t, WithFilters(rejectIDs{"bad": true, "worse": true}))
	ctx := context.Background()

	rejected, err := c.PlayTracks(ctx, trks("a", "bad", "b"))
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "bad", rejected[0].Track.ID)
	assert.Equal(t, []string{"a", "b"}, ids(c.Queue().Tracks))

	rejected, err = c.PlayTracks(ctx, trks("bad", "worse"))
	assert.ErrorIs(t, err, ErrNothingAdmitted)
	assert.Len(t, rejected, 2)
	assert.Equal(t, []string{"a", "b"}, ids(c.Queue().Tracks), "queue untouched when nothing is admitted")

	err = c.PlayNext(ctx, trk("bad"))
	var rejErr *RejectedError
	require.ErrorAs(t, err, &rejErr)
	assert.Equal(t, "bad", rejErr.TrackID)
	assert.Equal(t, "blocked", rejErr.Code)
}

func TestController_SetMode(t *testing.T) {
	store := &fakeModeStore{}
	c, _, _ := newTestController(t, WithModeStore(store))
	ctx := context.Background()
	_, err := c.PlayTracks(ctx, trks("a", "b", "c", "d", "e"))
	require.NoError(t, err)
	require.NoError(t, c.Next(ctx))
	drain(c)

	c.SetMode(queue.Shuffle)
	assert.Equal(t, "b", currentID(t, c), "playing track survives the reshuffle")
	assert.Equal(t, queue.Shuffle, c.Status().Mode)

	c.SetMode(queue.Shuffle)
	assert.Equal(t, []queue.LoopMode{queue.Shuffle}, store.saved, "same mode is not saved again")

	events := drain(c)
	require.Len(t, events, 1)
	assert.Equal(t, EventModeChanged, events[0].Type)
	assert.Equal(t, queue.Shuffle, events[0].Mode)

	c.SetMode(queue.RepeatAll)
	assert.Equal(t, "b", currentID(t, c), "leaving shuffle keeps the current track")
	assert.Equal(t, []queue.LoopMode{queue.Shuffle, queue.RepeatAll}, store.saved)
}

func TestController_ShuffleVisitsEveryTrackOnce(t *testing.T) {
	c, engine, _ := newTestController(t)
	c.SetMode(queue.Shuffle)
	_, err := c.PlayTracks(context.Background(), trks("a", "b", "c", "d"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		engine.finish(t)
	}
	assert.Len(t, engine.plays, 4)
	assert.ElementsMatch(t, []string{"stream://a", "stream://b", "stream://c", "stream://d"}, engine.plays)

	engine.finish(t)
	assert.Equal(t, StateIdle, c.Status().State, "shuffle does not wrap")
}

func TestController_Radio(t *testing.T) {
	station := &fakeStation{batches: [][]track.Track{trks("r1", "r2"), trks("r3")}}
	c, engine, _ := newTestController(t, WithStation(station))
	ctx := context.Background()

	_, err := c.PlayTracks(ctx, trks("a", "b", "c"))
	require.NoError(t, err)
	require.NoError(t, c.Next(ctx))

	require.NoError(t, c.StartRadio(ctx))
	assert.True(t, c.Status().Radio)
	assert.Equal(t, "stream://r1", engine.current())
	assert.Equal(t, []string{"b", "a"}, station.seeds[0])
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, station.excludes[0])

	engine.finish(t)
	assert.Equal(t, "stream://r2", engine.current())

	// radio refills when it runs out
	engine.finish(t)
	assert.Equal(t, "stream://r3", engine.current())
	assert.Equal(t, []string{"r2", "r1"}, station.seeds[1])
	assert.Equal(t, []string{"r3"}, ids(c.Queue().Tracks))

	// station exhausted: playback ends
	engine.finish(t)
	assert.Equal(t, StateIdle, c.Status().State)

	// a user queue ends the radio session
	_, err = c.PlayTracks(ctx, trks("z"))
	require.NoError(t, err)
	assert.False(t, c.Status().Radio)
}

func TestController_RadioWithoutStation(t *testing.T) {
	c, _, _ := newTestController(t)
	assert.ErrorIs(t, c.StartRadio(context.Background()), ErrNoStation)
}

func TestController_RadioFailureKeepsSession(t *testing.T) {
	c, engine, _ := newTestController(t, WithStation(&fakeStation{}))
	ctx := context.Background()
	_, err := c.PlayTracks(ctx, trks("a"))
	require.NoError(t, err)

	assert.Error(t, c.StartRadio(ctx))
	assert.False(t, c.Status().Radio)
	assert.Equal(t, "stream://a", engine.current())
}

func TestController_ResolveFailure(t *testing.T) {
	c, engine, resolver := newTestController(t)
	resolver.fail["b"] = true
	ctx := context.Background()

	_, err := c.PlayTracks(ctx, trks("a", "b"))
	require.NoError(t, err)

	assert.Error(t, c.Next(ctx))
	assert.Equal(t, StateIdle, c.Status().State)
	assert.Empty(t, engine.current())
}

func TestController_NaturalEndSkipsUnplayable(t *testing.T) {
	c, engine, resolver := newTestController(t)
	resolver.fail["b"] = true

	_, err := c.PlayTracks(context.Background(), trks("a", "b", "c"))
	require.NoError(t, err)
	drain(c)

	engine.finish(t)

	assert.Equal(t, "stream://c", engine.current())
	assert.Equal(t, StatePlaying, c.Status().State)
	events := drain(c)
	assert.Equal(t, []EventType{EventTrackEnded, EventTrackStarted}, types(events))
	assert.Equal(t, "c", events[1].Track.ID)
}

func TestController_NaturalEndWithNothingPlayable(t *testing.T) {
	tests := []struct {
		name string
		mode queue.LoopMode
	}{
		{"end of queue", queue.Off},
		{"repeat all gives up", queue.RepeatAll},
		{"repeat one gives up", queue.RepeatOne},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, engine, resolver := newTestController(t)
			c.SetMode(tt.mode)
			_, err := c.PlayTracks(context.Background(), trks("a", "b"))
			require.NoError(t, err)
			drain(c)

			resolver.fail["a"] = true
			resolver.fail["b"] = true
			engine.finish(t)

			assert.Empty(t, engine.current())
			assert.Equal(t, StateIdle, c.Status().State)
			events := drain(c)
			assert.Equal(t, []EventType{EventTrackEnded, EventStateChanged, EventQueueEnded}, types(events))
			assert.Equal(t, StateIdle, events[1].State)
		})
	}
}

func TestController_Close(t *testing.T) {
	c, _, _ := newTestController(t)
	_, err := c.PlayTracks(context.Background(), trks("a"))
	require.NoError(t, err)

	c.Close()
	c.Close()

	drain(c)
	_, ok := <-c.Events()
	assert.False(t, ok, "event channel is closed")

	_, err = c.PlayTracks(context.Background(), trks("b"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "track_started", EventTrackStarted.String())
	assert.Equal(t, "queue_ended", EventQueueEnded.String())
	assert.Equal(t, "unknown", EventType(99).String())
	assert.Equal(t, "paused", StatePaused.String())
}
