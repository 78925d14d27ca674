package radio

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/infra/config"
)

// NewChainFromConfig creates a provider chain from configuration.
func NewChainFromConfig(cfg *config.Config, spotify SpotifyClient) (*Chain, error) {
	if len(cfg.Radio.Providers) == 0 {
		return nil, errors.New("no radio providers configured")
	}

	var sources []Source
	for i, pcfg := range cfg.Radio.Providers {
		var provider Provider
		var err error

		switch pcfg.Type {
		case "playlist":
			provider, err = NewPlaylistProvider(spotify, cfg.Radio.BatchSize, pcfg.Settings)
		case "lastfm":
			provider, err = NewLastFmProvider(spotify, pcfg.Settings)
		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		sources = append(sources, Source{Provider: provider, DisplayName: pcfg.DisplayName})
		zlog.Info().Msgf("registered radio provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return NewChain(sources), nil
}
