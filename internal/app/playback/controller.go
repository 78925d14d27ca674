package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/tunedeck/internal/app/filter"
	"github.com/osa030/tunedeck/internal/domain/queue"
	"github.com/osa030/tunedeck/internal/domain/track"
)

// Errors
var (
	ErrQueueEmpty      = errors.New("queue is empty")
	ErrNoMoreTracks    = errors.New("no more tracks")
	ErrNotPlaying      = errors.New("not playing")
	ErrNotPaused       = errors.New("not paused")
	ErrNothingAdmitted = errors.New("no track passed the filters")
	ErrNoStation       = errors.New("radio is not configured")
	ErrClosed          = errors.New("controller is closed")
)

// RejectedError reports a track turned away by a filter.
type RejectedError struct {
	TrackID string
	Code    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("track %s rejected: %s", e.TrackID, e.Code)
}

// Engine renders a playable URI.
type Engine interface {
	// Play starts uri; onEnd is called once when it finishes on its own.
	Play(ctx context.Context, uri string, duration time.Duration, onEnd func()) error
	Pause() error
	Resume() error
	Stop() error
	// Progress returns the current uri, elapsed and total time.
	Progress() (string, time.Duration, time.Duration)
}

// Resolver turns a track into a playable URL.
type Resolver interface {
	ResolveStreamURL(ctx context.Context, t track.Track) (string, error)
}

// ModeStore persists the loop mode preference.
type ModeStore interface {
	SaveMode(mode queue.LoopMode) error
}

// Station supplies tracks for radio sessions.
type Station interface {
	GetCandidates(ctx context.Context, count int, seeds []track.Track, exclude map[string]bool) ([]track.Track, error)
}

// Admitter screens tracks before they enter the queue.
type Admitter interface {
	Admit(ctx context.Context, tracks []track.Track, origin filter.Origin) ([]track.Track, []filter.Rejection)
}

// Config holds controller configuration.
type Config struct {
	NoMoreMessage  string // Message carried by EventQueueEnded
	RadioBatchSize int    // Tracks fetched per radio refill
	RadioSeeds     int    // Recently played tracks used as radio seeds
}

// Option configures optional collaborators.
type Option func(*Controller)

// WithFilters screens every track through a.
func WithFilters(a Admitter) Option {
	return func(c *Controller) { c.filters = a }
}

// WithStation enables radio sessions backed by s.
func WithStation(s Station) Option {
	return func(c *Controller) { c.station = s }
}

// WithModeStore persists mode changes to s.
func WithModeStore(s ModeStore) Option {
	return func(c *Controller) { c.modes = s }
}

// Controller sequences playback: it owns the queue's transport state and
// starts whatever track the queue selects.
type Controller struct {
	mu sync.Mutex

	queue    *queue.Queue
	engine   Engine
	resolver Resolver
	filters  Admitter
	station  Station
	modes    ModeStore
	config   Config

	state State
	radio bool // a radio session owns the queue

	// Incremented for every started or stopped track; end callbacks
	// carrying an older value are ignored.
	playbackID uint64

	eventCh chan Event
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a new playback controller.
func NewController(q *queue.Queue, engine Engine, resolver Resolver, config Config, opts ...Option) *Controller {
	if config.RadioBatchSize <= 0 {
		config.RadioBatchSize = 20
	}
	if config.RadioSeeds <= 0 {
		config.RadioSeeds = 3
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		queue:    q,
		engine:   engine,
		resolver: resolver,
		config:   config,
		state:    StateIdle,
		eventCh:  make(chan Event, 32),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// PlayTracks replaces the queue with the admitted tracks and starts the
// first one. Tracks turned away by the filters are returned.
func (c *Controller) PlayTracks(ctx context.Context, tracks []track.Track) ([]filter.Rejection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	accepted, rejected := c.admitLocked(ctx, tracks, filter.OriginUser)
	if len(accepted) == 0 {
		return rejected, ErrNothingAdmitted
	}

	c.radio = false
	c.queue.ReplaceAll(accepted)
	c.sendEventLocked(Event{Type: EventQueueReplaced, State: c.state})
	zlog.Info().Msgf("playback: queue replaced tracks=%d rejected=%d", c.queue.Len(), len(rejected))

	return rejected, c.startCurrentLocked(ctx)
}

// PlayNext puts t right after the current track and plays it. A track that
// is already queued is selected instead of being added again.
func (c *Controller) PlayNext(ctx context.Context, t track.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	accepted, rejected := c.admitLocked(ctx, []track.Track{t}, filter.OriginUser)
	if len(accepted) == 0 {
		return &RejectedError{TrackID: t.ID, Code: rejected[0].Code}
	}

	c.queue.InsertAfterCurrent(accepted[0])
	c.sendEventLocked(Event{Type: EventQueueReplaced, State: c.state})
	return c.startCurrentLocked(ctx)
}

// Next moves forward according to the loop mode. At the end of the queue
// the current track keeps playing, EventQueueEnded is emitted and
// ErrNoMoreTracks returned. A radio session is refilled instead.
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.Len() == 0 {
		return ErrQueueEmpty
	}

	t, ok := c.queue.Next()
	if !ok {
		if c.radio {
			return c.refillLocked(ctx)
		}
		c.queueEndedLocked()
		return ErrNoMoreTracks
	}
	return c.startLocked(ctx, t)
}

// Previous moves backward according to the loop mode. At the start of the
// queue it behaves like Next does at the end.
func (c *Controller) Previous(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.Len() == 0 {
		return ErrQueueEmpty
	}

	t, ok := c.queue.Previous()
	if !ok {
		c.queueEndedLocked()
		return ErrNoMoreTracks
	}
	return c.startLocked(ctx, t)
}

// Pause pauses the current track.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePlaying {
		return ErrNotPlaying
	}
	if err := c.engine.Pause(); err != nil {
		return errors.Wrap(err, "failed to pause engine")
	}

	c.state = StatePaused
	c.sendEventLocked(Event{Type: EventStateChanged, Track: c.currentLocked(), State: c.state})
	return nil
}

// Resume continues a paused track. When stopped, the current track of the
// queue is started from the beginning.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StatePaused:
		if err := c.engine.Resume(); err != nil {
			return errors.Wrap(err, "failed to resume engine")
		}
		c.state = StatePlaying
		c.sendEventLocked(Event{Type: EventStateChanged, Track: c.currentLocked(), State: c.state})
		return nil
	case StateIdle:
		if c.queue.Len() == 0 {
			return ErrQueueEmpty
		}
		return c.startCurrentLocked(ctx)
	default:
		return ErrNotPaused
	}
}

// Stop ends playback. The queue and its position are kept.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle {
		return nil
	}
	if err := c.stopLocked(); err != nil {
		return err
	}
	c.sendEventLocked(Event{Type: EventStateChanged, Track: c.currentLocked(), State: c.state})
	return nil
}

// SetMode changes the loop mode and persists it. A failure to persist is
// logged; the mode still applies.
func (c *Controller) SetMode(mode queue.LoopMode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.Mode() == mode {
		return
	}

	c.queue.SetMode(mode)
	zlog.Info().Msgf("playback: mode changed to %s", mode)

	if c.modes != nil {
		if err := c.modes.SaveMode(mode); err != nil {
			zlog.Warn().Msgf("playback: failed to save mode: %v", err)
		}
	}
	c.sendEventLocked(Event{Type: EventModeChanged, Track: c.currentLocked(), State: c.state})
}

// StartRadio replaces the queue with a radio batch seeded by the current
// track. The session refills itself whenever it runs out.
func (c *Controller) StartRadio(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.station == nil {
		return ErrNoStation
	}

	c.radio = true
	if err := c.refillLocked(ctx); err != nil {
		c.radio = false
		return err
	}
	return nil
}

// Status returns a snapshot of the player.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.queue.Snapshot()
	st := Status{
		State:    c.state,
		Mode:     snap.Mode,
		Radio:    c.radio,
		Position: snap.CurrentIndex,
		Length:   len(snap.Tracks),
		Track:    c.currentLocked(),
	}
	if c.state != StateIdle {
		_, st.Elapsed, st.Duration = c.engine.Progress()
	}
	return st
}

// Queue returns the queue as listed, in insertion order.
func (c *Controller) Queue() queue.Snapshot {
	return c.queue.Snapshot()
}

// Close stops playback and closes the event channel.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.cancel()
	_ = c.stopLocked()
	c.closed = true
	close(c.eventCh)
}

// onTrackEnd advances after a track finished on its own.
func (c *Controller) onTrackEnd(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || id != c.playbackID || c.state != StatePlaying {
		zlog.Debug().Msgf("playback: ignoring stale track end id=%d current=%d", id, c.playbackID)
		return
	}

	c.sendEventLocked(Event{Type: EventTrackEnded, Track: c.currentLocked(), State: c.state})

	if c.advanceLocked() {
		return
	}

	if c.radio {
		err := c.refillLocked(c.ctx)
		if err == nil {
			return
		}
		zlog.Warn().Msgf("playback: radio refill failed: %v", err)
	}

	zlog.Info().Msg("playback: reached the end of the queue")
	_ = c.stopLocked()
	c.sendEventLocked(Event{Type: EventStateChanged, Track: c.currentLocked(), State: c.state})
	c.queueEndedLocked()
}

// advanceLocked starts the next track the queue selects, skipping tracks
// that fail to start. It gives up after one attempt per queued track.
func (c *Controller) advanceLocked() bool {
	for attempts := c.queue.Len(); attempts > 0; attempts-- {
		t, ok := c.queue.Next()
		if !ok {
			return false
		}
		err := c.startLocked(c.ctx, t)
		if err == nil {
			return true
		}
		zlog.Error().Msgf("playback: skipping track: %v", err)
	}
	return false
}

// refillLocked replaces the queue with a fresh radio batch and plays it.
func (c *Controller) refillLocked(ctx context.Context) error {
	seeds := c.seedsLocked()
	exclude := lo.SliceToMap(c.queue.Tracks(), func(t track.Track) (string, bool) {
		return t.ID, true
	})

	candidates, err := c.station.GetCandidates(ctx, c.config.RadioBatchSize, seeds, exclude)
	if err != nil {
		return errors.Wrap(err, "failed to get radio tracks")
	}

	accepted, rejected := c.admitLocked(ctx, candidates, filter.OriginRadio)
	if len(accepted) == 0 {
		return errors.Wrapf(ErrNothingAdmitted, "%d radio candidates rejected", len(rejected))
	}

	c.queue.ReplaceAll(accepted)
	c.sendEventLocked(Event{Type: EventQueueReplaced, State: c.state})
	zlog.Info().Msgf("playback: radio refilled tracks=%d rejected=%d", len(accepted), len(rejected))

	return c.startCurrentLocked(ctx)
}

// seedsLocked returns the current track and the ones listed before it,
// most recent first.
func (c *Controller) seedsLocked() []track.Track {
	tracks := c.queue.Tracks()
	idx := c.queue.CurrentIndex()
	if idx < 0 {
		return nil
	}

	seeds := make([]track.Track, 0, c.config.RadioSeeds)
	for i := idx; i >= 0 && len(seeds) < c.config.RadioSeeds; i-- {
		seeds = append(seeds, tracks[i])
	}
	return seeds
}

func (c *Controller) admitLocked(ctx context.Context, tracks []track.Track, origin filter.Origin) ([]track.Track, []filter.Rejection) {
	if c.filters == nil {
		return tracks, nil
	}
	return c.filters.Admit(ctx, tracks, origin)
}

func (c *Controller) startCurrentLocked(ctx context.Context) error {
	t, ok := c.queue.Current()
	if !ok {
		return ErrQueueEmpty
	}
	return c.startLocked(ctx, t)
}

// startLocked resolves t and hands it to the engine.
func (c *Controller) startLocked(ctx context.Context, t track.Track) error {
	if c.closed {
		return ErrClosed
	}

	url, err := c.resolver.ResolveStreamURL(ctx, t)
	if err != nil {
		_ = c.stopLocked()
		return errors.Wrapf(err, "failed to resolve track %s", t.ID)
	}

	c.playbackID++
	id := c.playbackID
	if err := c.engine.Play(ctx, url, t.Duration, func() { c.onTrackEnd(id) }); err != nil {
		_ = c.stopLocked()
		return errors.Wrapf(err, "failed to play track %s", t.ID)
	}

	c.state = StatePlaying
	c.queue.SetPlaying(true)
	zlog.Info().Msgf("playback: started track=%s name=%q artists=%q", t.ID, t.Name, t.ArtistLine())
	c.sendEventLocked(Event{Type: EventTrackStarted, Track: &t, State: c.state})
	return nil
}

func (c *Controller) stopLocked() error {
	c.playbackID++
	c.state = StateIdle
	c.queue.SetPlaying(false)
	if err := c.engine.Stop(); err != nil {
		return errors.Wrap(err, "failed to stop engine")
	}
	return nil
}

func (c *Controller) queueEndedLocked() {
	c.sendEventLocked(Event{
		Type:    EventQueueEnded,
		Track:   c.currentLocked(),
		State:   c.state,
		Message: c.config.NoMoreMessage,
	})
}

func (c *Controller) currentLocked() *track.Track {
	if t, ok := c.queue.Current(); ok {
		return &t
	}
	return nil
}

func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	e.Mode = c.queue.Mode()
	select {
	case c.eventCh <- e:
	default:
		zlog.Warn().Msgf("playback: event channel full, dropping %s", e.Type)
	}
}
