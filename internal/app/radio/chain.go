package radio

import (
	"context"
	"maps"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// ErrNoCandidates is returned when no provider produced a track.
var ErrNoCandidates = errors.New("all providers failed to return candidates")

// Source wraps a provider with the name shown to listeners.
type Source struct {
	Provider    Provider
	DisplayName string
}

// Chain asks every provider in order and pools their tracks.
type Chain struct {
	sources []Source
}

// NewChain creates a new provider chain.
func NewChain(sources []Source) *Chain {
	return &Chain{sources: sources}
}

// GetCandidates pools tracks from all providers until count is reached.
// A failing provider is skipped. Track IDs are unique in the result.
func (c *Chain) GetCandidates(ctx context.Context, count int, seeds []track.Track, exclude map[string]bool) ([]track.Track, error) {
	var all []track.Track
	seen := maps.Clone(exclude)
	if seen == nil {
		seen = make(map[string]bool)
	}

	for i, s := range c.sources {
		if len(all) >= count {
			break
		}
		zlog.Debug().Msgf("radio: trying provider index=%d total=%d name=%s type=%s",
			i+1, len(c.sources), s.DisplayName, s.Provider.Name())

		candidates, err := s.Provider.GetCandidates(ctx, count-len(all), seeds, seen)
		if err != nil {
			zlog.Warn().Msgf("radio: provider failed, trying next: provider=%s error=%v", s.DisplayName, err)
			continue
		}

		added := 0
		for _, t := range candidates {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			all = append(all, t)
			added++
		}
		zlog.Info().Msgf("radio: provider returned candidates: provider=%s count=%d total_so_far=%d",
			s.DisplayName, added, len(all))
	}

	if len(all) == 0 {
		return nil, ErrNoCandidates
	}
	return all, nil
}

// Len returns the number of configured providers.
func (c *Chain) Len() int {
	return len(c.sources)
}
