package notification

import (
	"time"

	"github.com/osa030/tunedeck/internal/app/playback"
	"github.com/osa030/tunedeck/internal/domain/track"
)

// TrackInfo is the listener-facing view of a track.
type TrackInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []string `json:"artists"`
	Album       string   `json:"album,omitempty"`
	AlbumArtURL string   `json:"album_art_url,omitempty"`
	URL         string   `json:"url,omitempty"`
	DurationMs  int64    `json:"duration_ms"`
}

// NewTrackInfo converts a track for display.
func NewTrackInfo(t track.Track) TrackInfo {
	return TrackInfo{
		ID:          t.ID,
		Name:        t.Name,
		Artists:     t.Artists,
		Album:       t.Album,
		AlbumArtURL: t.AlbumArtURL,
		URL:         t.URL,
		DurationMs:  t.Duration.Milliseconds(),
	}
}

// Notification is one message pushed to subscribers.
type Notification struct {
	SequenceNo uint64     `json:"sequence_no"`
	Type       string     `json:"type"`
	Track      *TrackInfo `json:"track,omitempty"`
	State      string     `json:"state"`
	Mode       string     `json:"mode"`
	Message    string     `json:"message,omitempty"`
	At         time.Time  `json:"at"`
}

// FromEvent builds a notification for a playback event.
func FromEvent(e playback.Event, at time.Time) *Notification {
	n := &Notification{
		Type:    e.Type.String(),
		State:   e.State.String(),
		Mode:    e.Mode.String(),
		Message: e.Message,
		At:      at,
	}
	if e.Track != nil {
		info := NewTrackInfo(*e.Track)
		n.Track = &info
	}
	return n
}
