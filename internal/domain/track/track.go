// Package track provides the Track domain entity.
package track

import (
	"strings"
	"time"
)

// Track represents one playable item from the catalog.
//
// ID is the identity of a track: two values with the same ID are the same
// track even when their metadata differs (for example a resolved StreamURL
// present on one and not the other). Use SameAs for every "already queued"
// comparison, never struct equality.
type Track struct {
	ID          string        // Catalog track ID
	Name        string        // Track name
	Artists     []string      // Artist names
	Album       string        // Album name
	AlbumArtURL string        // Album art URL
	Duration    time.Duration // Track duration
	URL         string        // Catalog page URL
	StreamURL   string        // Resolved playable URL (may be empty until resolved)
	Explicit    bool          // Explicit content flag
	Markets     []string      // Available markets
	IsPlayable  *bool         // Playable in the requested market (nil if market not specified)
}

// SameAs reports whether t and other are the same track.
func (t Track) SameAs(other Track) bool {
	return t.ID == other.ID
}

// ArtistLine returns the artists joined for display.
func (t Track) ArtistLine() string {
	return strings.Join(t.Artists, ", ")
}

// IsAvailableInMarket checks if the track is available in the specified market.
func (t *Track) IsAvailableInMarket(market string) bool {
	// Relinked tracks report playability directly
	if t.IsPlayable != nil {
		return *t.IsPlayable
	}

	for _, m := range t.Markets {
		if m == market {
			return true
		}
	}
	return false
}
