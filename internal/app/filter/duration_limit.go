package filter

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/domain/track"
)

const (
	codeTooShort = "track_too_short"
	codeTooLong  = "track_too_long"
)

// DurationLimitConfig bounds track length. Max 0 means no upper bound.
type DurationLimitConfig struct {
	Min      time.Duration `yaml:"min" mapstructure:"min" default:"30s" validate:"gte=0s"`
	Max      time.Duration `yaml:"max" mapstructure:"max" validate:"gte=0s"`
	UserOnly bool          `yaml:"user_only" mapstructure:"user_only"`
}

// DurationLimitFilter keeps jingles, skits and hour-long mixes out of the
// queue.
type DurationLimitFilter struct {
	config *DurationLimitConfig
}

// NewDurationLimitFilter creates an unconfigured filter that accepts
// everything until ValidateConfig is called.
func NewDurationLimitFilter() *DurationLimitFilter {
	return &DurationLimitFilter{}
}

func (f *DurationLimitFilter) Name() string {
	return "duration_limit_filter"
}

func (f *DurationLimitFilter) Description() string {
	return "Rejects tracks shorter than min or longer than max"
}

func (f *DurationLimitFilter) ReturnCodes() []string {
	return []string{codeTooShort, codeTooLong}
}

func (f *DurationLimitFilter) ValidateConfig(settings map[string]any) error {
	var config DurationLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	if config.Max > 0 && config.Min > config.Max {
		return errors.Newf("min (%v) cannot be greater than max (%v)", config.Min, config.Max)
	}

	f.config = &config
	zlog.Info().Msgf("duration limit filter: min=%v max=%v user_only=%v", config.Min, config.Max, config.UserOnly)
	return nil
}

// AppliesTo screens radio tracks too unless user_only is set.
func (f *DurationLimitFilter) AppliesTo(origin Origin) bool {
	if f.config != nil && f.config.UserOnly {
		return origin == OriginUser
	}
	return true
}

func (f *DurationLimitFilter) Check(ctx context.Context, t track.Track) Result {
	if f.config == nil {
		return Accept()
	}

	switch {
	case t.Duration < f.config.Min:
		return Reject(codeTooShort)
	case f.config.Max > 0 && t.Duration > f.config.Max:
		return Reject(codeTooLong)
	}
	return Accept()
}

func init() {
	Register("duration_limit_filter", func() Filter {
		return NewDurationLimitFilter()
	})
}
