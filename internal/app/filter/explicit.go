package filter

import (
	"context"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// ExplicitConfig represents the configuration for ExplicitFilter.
type ExplicitConfig struct {
	// AllowUser lets listener picks through and only screens radio tracks.
	AllowUser bool `yaml:"allow_user" mapstructure:"allow_user" default:"false"`
}

// ExplicitFilter rejects tracks flagged as explicit.
type ExplicitFilter struct {
	config ExplicitConfig
}

// NewExplicitFilter creates a new explicit content filter.
func NewExplicitFilter() *ExplicitFilter {
	return &ExplicitFilter{}
}

func (f *ExplicitFilter) Name() string {
	return "explicit_filter"
}

func (f *ExplicitFilter) Description() string {
	return "Rejects tracks marked as explicit"
}

func (f *ExplicitFilter) ReturnCodes() []string {
	return []string{"explicit_content"}
}

func (f *ExplicitFilter) ValidateConfig(settings map[string]any) error {
	var config ExplicitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = config
	return nil
}

func (f *ExplicitFilter) AppliesTo(origin Origin) bool {
	return origin == OriginRadio || !f.config.AllowUser
}

func (f *ExplicitFilter) Check(ctx context.Context, t track.Track) Result {
	if t.Explicit {
		return Reject("explicit_content")
	}
	return Accept()
}

func init() {
	Register("explicit_filter", func() Filter {
		return NewExplicitFilter()
	})
}
