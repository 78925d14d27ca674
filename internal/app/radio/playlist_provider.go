package radio

import (
	"context"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/tunedeck/internal/domain/track"
)

type PlaylistProviderConfig struct {
	PlaylistURL string `yaml:"playlist_url" mapstructure:"playlist_url" validate:"required"`
}

// PlaylistProvider provides tracks by randomly sampling a configured playlist.
// Surplus tracks from a sample are kept for the next request.
type PlaylistProvider struct {
	spotify   SpotifyClient
	batchSize int
	config    *PlaylistProviderConfig

	mu    sync.Mutex
	cache []track.Track
}

// NewPlaylistProvider creates a new PlaylistProvider.
func NewPlaylistProvider(spotify SpotifyClient, batchSize int, settings map[string]any) (*PlaylistProvider, error) {
	if spotify == nil {
		return nil, errors.New("spotify client is required")
	}

	var config PlaylistProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	zlog.Debug().Msgf("playlist provider config: %+v", config)

	return &PlaylistProvider{
		spotify:   spotify,
		batchSize: batchSize,
		config:    &config,
	}, nil
}

// GetCandidates returns random tracks from the configured playlist.
func (p *PlaylistProvider) GetCandidates(ctx context.Context, count int, seeds []track.Track, exclude map[string]bool) ([]track.Track, error) {
	if count <= 0 {
		return []track.Track{}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	available := lo.Reject(p.cache, func(t track.Track, _ int) bool {
		return exclude[t.ID]
	})

	if len(available) < count {
		needed := max(p.batchSize, count) - len(available)
		fetched, err := p.spotify.GetPlaylistTracksRandom(ctx, p.config.PlaylistURL, needed)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get random tracks from playlist")
		}
		for _, t := range fetched {
			if !exclude[t.ID] {
				available = append(available, t)
			}
		}
		available = lo.UniqBy(available, func(t track.Track) string { return t.ID })
	}

	n := min(count, len(available))
	result := slices.Clone(available[:n])
	p.cache = available[n:]
	return result, nil
}

// Name returns the provider name.
func (p *PlaylistProvider) Name() string {
	return "playlist"
}
