package filter

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/tunedeck/internal/domain/track"
	"github.com/osa030/tunedeck/internal/infra/config"
)

// Rejection records a track turned away by the chain.
type Rejection struct {
	Track track.Track
	Code  string
}

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewChainFromConfig builds the chain: the market filter first, then every
// registered filter enabled in cfg, in name order.
func NewChainFromConfig(cfg *config.Config) (*Chain, error) {
	c := NewChain()
	c.Add(NewMarketFilter(cfg.Spotify.Market))

	names := lo.Keys(registry)
	slices.Sort(names)
	for _, name := range names {
		if !cfg.IsFilterEnabled(name) {
			continue
		}
		f := registry[name]()
		if err := f.ValidateConfig(cfg.Filters[name].Settings); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for filter %s", name)
		}
		c.Add(f)
		zlog.Info().Msgf("enabled filter: %s", name)
	}

	for name := range cfg.Filters {
		if _, ok := registry[name]; !ok && name != marketFilterName {
			zlog.Warn().Msgf("unknown filter in config: %s", name)
		}
	}

	return c, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters that apply to origin in sequence.
// Returns immediately if any filter rejects the track.
func (c *Chain) Execute(ctx context.Context, t track.Track, origin Origin) Result {
	for _, f := range c.filters {
		if !f.AppliesTo(origin) {
			continue
		}

		result := f.Check(ctx, t)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Admit splits tracks into the accepted ones, in order, and the rejections.
func (c *Chain) Admit(ctx context.Context, tracks []track.Track, origin Origin) ([]track.Track, []Rejection) {
	accepted := make([]track.Track, 0, len(tracks))
	var rejected []Rejection
	for _, t := range tracks {
		if r := c.Execute(ctx, t, origin); !r.Accepted {
			zlog.Debug().Msgf("filter: rejected track=%s origin=%s code=%s", t.ID, origin, r.Code)
			rejected = append(rejected, Rejection{Track: t, Code: r.Code})
			continue
		}
		accepted = append(accepted, t)
	}
	return accepted, rejected
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
