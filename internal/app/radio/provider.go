// Package radio provides endless track sources used to fill the queue when
// a radio session is active.
package radio

import (
	"context"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// Provider is the interface for radio track providers.
type Provider interface {
	// GetCandidates retrieves up to count tracks.
	// seeds: recently played tracks that can be used as hints
	// exclude: track IDs already in the queue
	GetCandidates(ctx context.Context, count int, seeds []track.Track, exclude map[string]bool) ([]track.Track, error)

	// Name returns the provider type (used in config).
	Name() string
}

// SpotifyClient defines the catalog operations needed by radio providers.
type SpotifyClient interface {
	GetPlaylistTracksRandom(ctx context.Context, playlistURL string, count int) ([]track.Track, error)
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
	GetTrack(ctx context.Context, trackID string) (*track.Track, error)
}
