package playback

import (
	"github.com/osa030/tunedeck/internal/domain/queue"
	"github.com/osa030/tunedeck/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted  EventType = iota // Track started playing
	EventTrackEnded                     // Track finished playing on its own
	EventStateChanged                   // Transport state changed (pause/resume/stop)
	EventQueueEnded                     // Navigation ran past the end of the queue
	EventModeChanged                    // Loop mode changed
	EventQueueReplaced                  // Queue contents replaced or extended
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventStateChanged:
		return "state_changed"
	case EventQueueEnded:
		return "queue_ended"
	case EventModeChanged:
		return "mode_changed"
	case EventQueueReplaced:
		return "queue_replaced"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type    EventType
	Track   *track.Track // Current track (nil for some events)
	State   State        // Current playback state
	Mode    queue.LoopMode
	Message string // Set for EventQueueEnded
}
