// Package filter provides the admission checks a track passes before it
// enters the queue.
package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// Origin tells where a track came from.
type Origin int

const (
	OriginUser  Origin = iota // picked by the listener
	OriginRadio               // supplied by a radio provider
)

func (o Origin) String() string {
	switch o {
	case OriginUser:
		return "user"
	case OriginRadio:
		return "radio"
	default:
		return "unknown"
	}
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "market_restriction", "explicit_content"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for admission filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should check tracks of the given origin.
	AppliesTo(origin Origin) bool
	// Check performs the filter check.
	Check(ctx context.Context, t track.Track) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}

// decodeSettings fills out from a filter's settings map. Durations may be
// given as strings such as "90s" or "12m". Defaults are applied before
// validation.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		TagName:    "mapstructure",
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
