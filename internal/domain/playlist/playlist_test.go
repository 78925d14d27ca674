package playlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/tunedeck/internal/domain/track"
)

func TestPlaylist_TrackIDs(t *testing.T) {
	tests := []struct {
		name     string
		tracks   []track.Track
		expected []string
	}{
		{
			name:     "empty playlist",
			tracks:   []track.Track{},
			expected: []string{},
		},
		{
			name:     "single track",
			tracks:   []track.Track{{ID: "track-1"}},
			expected: []string{"track-1"},
		},
		{
			name: "multiple tracks",
			tracks: []track.Track{
				{ID: "track-1"},
				{ID: "track-2"},
				{ID: "track-3"},
			},
			expected: []string{"track-1", "track-2", "track-3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Playlist{ID: "playlist-1", Kind: KindPlaylist, Tracks: tt.tracks}
			assert.Equal(t, tt.expected, p.TrackIDs())
		})
	}
}

func TestPlaylist_TotalDuration(t *testing.T) {
	tests := []struct {
		name     string
		tracks   []track.Track
		expected time.Duration
	}{
		{
			name:     "empty playlist",
			tracks:   nil,
			expected: 0,
		},
		{
			name: "multiple tracks",
			tracks: []track.Track{
				{ID: "track-1", Duration: 2 * time.Minute},
				{ID: "track-2", Duration: 3*time.Minute + 30*time.Second},
				{ID: "track-3", Duration: 4 * time.Minute},
			},
			expected: 9*time.Minute + 30*time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Playlist{Kind: KindAlbum, Tracks: tt.tracks}
			assert.Equal(t, tt.expected, p.TotalDuration())
			assert.Equal(t, len(tt.tracks), p.Len())
		})
	}
}
