// Package playlist provides the Playlist domain entity.
package playlist

import (
	"time"

	"github.com/samber/lo"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// Kind is where a track collection came from.
type Kind string

const (
	KindPlaylist Kind = "playlist"
	KindAlbum    Kind = "album"
	KindRadio    Kind = "radio"
	KindTracks   Kind = "tracks"
)

// Playlist is an ordered collection of tracks the user can start playing
// as a whole: a catalog playlist, an album, a radio batch or an ad-hoc list.
type Playlist struct {
	ID          string        // Catalog ID (empty for ad-hoc lists)
	Kind        Kind          // Source of the collection
	Name        string        // Display name
	Description string        // Description
	URL         string        // Catalog URL
	CoverURL    string        // Cover art URL
	Tracks      []track.Track // Tracks in order
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	return lo.Map(p.Tracks, func(t track.Track, _ int) string {
		return t.ID
	})
}

// TotalDuration returns the total duration of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	return lo.SumBy(p.Tracks, func(t track.Track) time.Duration {
		return t.Duration
	})
}

// Len returns the number of tracks.
func (p *Playlist) Len() int {
	return len(p.Tracks)
}
