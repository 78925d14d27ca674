package filter

import (
	"context"

	"github.com/osa030/tunedeck/internal/domain/track"
)

const (
	marketFilterName = "market_filter"

	codeMarket      = "market_restriction"
	codeNotPlayable = "not_playable"
)

// MarketFilter turns away tracks the account cannot stream. It is always
// first in the chain and is not part of the registry.
type MarketFilter struct {
	market string
}

// NewMarketFilter creates a filter for market. An empty market disables it.
func NewMarketFilter(market string) *MarketFilter {
	return &MarketFilter{market: market}
}

func (f *MarketFilter) Name() string { return marketFilterName }

func (f *MarketFilter) Description() string {
	return "Rejects tracks that cannot be streamed in the configured market"
}

func (f *MarketFilter) ReturnCodes() []string {
	return []string{codeMarket, codeNotPlayable}
}

func (f *MarketFilter) ValidateConfig(map[string]any) error { return nil }

func (f *MarketFilter) AppliesTo(Origin) bool { return true }

// Check trusts the catalog's relinking verdict when one is present and
// falls back to the market list otherwise.
func (f *MarketFilter) Check(ctx context.Context, t track.Track) Result {
	switch {
	case f.market == "":
		return Accept()
	case t.IsPlayable != nil && !*t.IsPlayable:
		return Reject(codeNotPlayable)
	case !t.IsAvailableInMarket(f.market):
		return Reject(codeMarket)
	}
	return Accept()
}
