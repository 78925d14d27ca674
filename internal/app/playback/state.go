// Package playback drives the play queue from transport events and hands
// the selected track to the playback engine.
package playback

import (
	"time"

	"github.com/osa030/tunedeck/internal/domain/queue"
	"github.com/osa030/tunedeck/internal/domain/track"
)

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // No track loaded (queue empty or stopped)
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the player.
type Status struct {
	State    State
	Mode     queue.LoopMode
	Radio    bool
	Track    *track.Track
	Elapsed  time.Duration
	Duration time.Duration
	Position int // index of the current track in the queue as listed; -1 if none
	Length   int
}
