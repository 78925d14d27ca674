// Package queue provides the playback queue: the ordered track list, the
// cursor into it and the loop mode that decides which track plays next.
//
// A Queue is pure in-memory state. Absence of a track (empty queue, end of
// list) is reported with a false second return value, never an error.
package queue

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// Queue is the playback queue. All methods are safe for concurrent use.
//
// Tracks are kept once, in insertion order. While the mode is Shuffle an
// index permutation over that list is the active list; in every other mode
// the ordered list itself is active. The position always indexes the active
// list and is valid whenever the queue is non-empty.
type Queue struct {
	mu sync.Mutex

	tracks  []track.Track // insertion order, unique by ID
	order   []int         // permutation of indexes into tracks, only in Shuffle
	mode    LoopMode
	playing bool
	pos     int

	rng *rand.Rand
}

// Option configures a Queue.
type Option func(*Queue)

// WithRand sets the random source used for shuffling.
func WithRand(rng *rand.Rand) Option {
	return func(q *Queue) {
		q.rng = rng
	}
}

// WithMode sets the initial loop mode.
func WithMode(mode LoopMode) Option {
	return func(q *Queue) {
		q.mode = mode
	}
}

// Snapshot is a consistent copy of the queue state.
type Snapshot struct {
	Tracks       []track.Track // Ordered list
	Mode         LoopMode
	Position     int  // Raw index into the active list
	CurrentIndex int  // Index of the current track in Tracks, -1 if none
	Playing      bool // Whether playback is active
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		tracks: make([]track.Track, 0),
		mode:   Off,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.rng == nil {
		q.rng = newRand()
	}
	if q.mode == Shuffle {
		q.order = make([]int, 0)
	}
	return q
}

// Current returns the track at the current position.
func (q *Queue) Current() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.validLocked(q.pos) {
		return track.Track{}, false
	}
	return q.activeLocked(q.pos), true
}

// InsertAfterCurrent queues t to play next and makes it current.
//
// A track that is already queued (by ID) is not duplicated: it is selected
// as current where it stands and the list order is left untouched.
func (q *Queue) InsertAfterCurrent(t track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tracks) == 0 {
		q.tracks = append(q.tracks, t)
		if q.mode == Shuffle {
			q.order = []int{0}
		}
		q.pos = 0
		return
	}

	if idx := q.indexOfLocked(t.ID); idx >= 0 {
		if q.mode == Shuffle {
			q.pos = slices.Index(q.order, idx)
		} else {
			q.pos = idx
		}
		return
	}

	if q.mode != Shuffle {
		q.tracks = slices.Insert(q.tracks, q.pos+1, t)
		q.pos++
		return
	}

	// Insert right after the current track in the ordered list, and right
	// after the current slot in the shuffled order. pos indexes the shuffled
	// order, so pos+1 would land next to an unrelated track when listed.
	at := q.order[q.pos] + 1
	q.tracks = slices.Insert(q.tracks, at, t)
	for i, idx := range q.order {
		if idx >= at {
			q.order[i] = idx + 1
		}
	}
	q.order = slices.Insert(q.order, q.pos+1, at)
	q.pos++
}

// ReplaceAll discards the queue contents and loads tracks in their given
// order. Later duplicates of an ID are dropped. In Shuffle mode the whole
// list is reshuffled. The position is reset to the first track.
func (q *Queue) ReplaceAll(tracks []track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tracks = lo.UniqBy(tracks, func(t track.Track) string {
		return t.ID
	})
	q.order = nil
	if q.mode == Shuffle {
		q.order = q.rng.Perm(len(q.tracks))
	}
	q.pos = 0
}

// SetMode changes the loop mode.
//
// Entering Shuffle builds a new random order and moves the position to its
// head; while playing, the current track is pinned at the head so playback
// continues uninterrupted. Leaving Shuffle moves the position to the
// current track's place in the ordered list.
func (q *Queue) SetMode(mode LoopMode) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if mode == q.mode {
		return
	}

	switch {
	case mode == Shuffle:
		q.order = q.shuffledOrderLocked()
		q.pos = 0
	case q.mode == Shuffle:
		if q.validLocked(q.pos) {
			q.pos = q.order[q.pos]
		} else {
			q.pos = 0
		}
		q.order = nil
	}
	q.mode = mode
}

// Next advances according to the loop mode and returns the new current
// track. It returns false when there is nothing to advance to; the
// position is then left unchanged.
func (q *Queue) Next() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.tracks)
	if n == 0 {
		return track.Track{}, false
	}

	switch q.mode {
	case RepeatOne:
	case RepeatAll:
		if q.pos+1 < n {
			q.pos++
		} else {
			q.pos = 0
		}
	default:
		if q.pos+1 >= n {
			return track.Track{}, false
		}
		q.pos++
	}
	return q.activeLocked(q.pos), true
}

// Previous moves backward according to the loop mode and returns the new
// current track. It returns false when there is nothing to go back to.
func (q *Queue) Previous() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.tracks)
	if n == 0 {
		return track.Track{}, false
	}

	switch q.mode {
	case RepeatOne:
	case RepeatAll:
		if q.pos > 0 {
			q.pos--
		} else {
			q.pos = n - 1
		}
	default:
		if q.pos == 0 {
			return track.Track{}, false
		}
		q.pos--
	}
	return q.activeLocked(q.pos), true
}

// SetPlaying records whether playback is active.
func (q *Queue) SetPlaying(playing bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.playing = playing
}

// Playing reports whether playback is active.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Mode returns the current loop mode.
func (q *Queue) Mode() LoopMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.mode
}

// Tracks returns a copy of the ordered list. The shuffled order is never
// exposed.
func (q *Queue) Tracks() []track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]track.Track, len(q.tracks))
	copy(result, q.tracks)
	return result
}

// Position returns the raw index into the active list.
func (q *Queue) Position() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pos
}

// CurrentIndex returns the index of the current track in the ordered list,
// or -1 if there is none.
func (q *Queue) CurrentIndex() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentIndexLocked()
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracks)
}

// Snapshot returns a consistent copy of the queue state.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	tracks := make([]track.Track, len(q.tracks))
	copy(tracks, q.tracks)
	return Snapshot{
		Tracks:       tracks,
		Mode:         q.mode,
		Position:     q.pos,
		CurrentIndex: q.currentIndexLocked(),
		Playing:      q.playing,
	}
}

func (q *Queue) validLocked(i int) bool {
	return 0 <= i && i < len(q.tracks)
}

// activeLocked returns the track at index i of the active list.
func (q *Queue) activeLocked(i int) track.Track {
	if q.mode == Shuffle {
		return q.tracks[q.order[i]]
	}
	return q.tracks[i]
}

func (q *Queue) currentIndexLocked() int {
	if !q.validLocked(q.pos) {
		return -1
	}
	if q.mode == Shuffle {
		return q.order[q.pos]
	}
	return q.pos
}

func (q *Queue) indexOfLocked(id string) int {
	return slices.IndexFunc(q.tracks, func(t track.Track) bool {
		return t.ID == id
	})
}

// shuffledOrderLocked builds a random order over the ordered list. While
// playing, the track at the current (ordered) position stays first.
func (q *Queue) shuffledOrderLocked() []int {
	n := len(q.tracks)
	if n == 0 {
		return make([]int, 0)
	}
	if !q.playing || !q.validLocked(q.pos) {
		return q.rng.Perm(n)
	}

	rest := make([]int, 0, n-1)
	for i := 0; i < n; i++ {
		if i != q.pos {
			rest = append(rest, i)
		}
	}
	q.rng.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
	return append([]int{q.pos}, rest...)
}

// newRand returns a random source seeded from crypto/rand, falling back to
// the clock.
func newRand() *rand.Rand {
	var seed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
