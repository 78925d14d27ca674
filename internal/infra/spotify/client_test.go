package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"

	"github.com/osa030/tunedeck/internal/domain/track"
)

func TestExtractID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		kind     string
		expected string
	}{
		{
			name:     "Spotify URI format",
			input:    "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M",
			kind:     "playlist",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Spotify URL format",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			kind:     "playlist",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Spotify URL with query params",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=abc123",
			kind:     "playlist",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Plain playlist ID",
			input:    "37i9dQZF1DXcBWIGoYBM5M",
			kind:     "playlist",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Empty string",
			input:    "",
			kind:     "playlist",
			expected: "",
		},
		{
			name:     "HTTP URL (not HTTPS)",
			input:    "http://open.spotify.com/playlist/testID",
			kind:     "playlist",
			expected: "testID",
		},
		{
			name:     "Track URI",
			input:    "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			kind:     "track",
			expected: "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "Localized album URL",
			input:    "https://open.spotify.com/intl-ja/album/1DFixLWuPkv3KT3TnV35m3?si=x",
			kind:     "album",
			expected: "1DFixLWuPkv3KT3TnV35m3",
		},
		{
			name:     "Whitespace is trimmed",
			input:    "  abc  ",
			kind:     "track",
			expected: "abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractID(tt.input, tt.kind)
			assert.Equal(t, tt.expected, result,
				"extractID(%s, %s) should return %s", tt.input, tt.kind, tt.expected)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "rate limit error with 429",
			err:      errors.New("Error 429: rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error 500",
			err:      errors.New("Error 500: internal server error"),
			expected: true,
		},
		{
			name:     "server error 503",
			err:      errors.New("503 Service Unavailable"),
			expected: true,
		},
		{
			name:     "client error 400",
			err:      errors.New("400 Bad Request"),
			expected: false,
		},
		{
			name:     "not found error",
			err:      errors.New("404 not found"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryable(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

const fullTrackJSON = `{
	"id": "t1",
	"name": "Song",
	"artists": [{"name": "Artist"}],
	"duration_ms": 180000,
	"preview_url": %q,
	"explicit": true,
	"album": {"name": "Album", "images": [{"url": "https://img/1.jpg"}]}
}`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := newWithClient(spotify.New(server.Client(), spotify.WithBaseURL(server.URL+"/")), "JP")
	c.retryDelay = time.Millisecond
	return c
}

func TestClient_GetTrack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tracks/t1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "JP", r.URL.Query().Get("market"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, fullTrackJSON, "https://p/t1.mp3")
	})
	c := newTestClient(t, mux)

	got, err := c.GetTrack(context.Background(), "spotify:track:t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, "Song", got.Name)
	assert.Equal(t, []string{"Artist"}, got.Artists)
	assert.Equal(t, "Album", got.Album)
	assert.Equal(t, "https://img/1.jpg", got.AlbumArtURL)
	assert.Equal(t, 3*time.Minute, got.Duration)
	assert.Equal(t, "https://p/t1.mp3", got.StreamURL)
	assert.Equal(t, "https://open.spotify.com/track/t1", got.URL)
	assert.True(t, got.Explicit)
	assert.Equal(t, []string{"JP"}, got.Markets)
}

func TestClient_GetTrackRequiresID(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	_, err := c.GetTrack(context.Background(), "")
	assert.Error(t, err)
}

func TestClient_ResolveStreamURL(t *testing.T) {
	var fetches int
	preview := "https://p/t1.mp3"
	mux := http.NewServeMux()
	mux.HandleFunc("/tracks/t1", func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, fullTrackJSON, preview)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	t.Run("carried url wins", func(t *testing.T) {
		url, err := c.ResolveStreamURL(ctx, track.Track{ID: "t1", StreamURL: "https://cdn/x.mp3"})
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/x.mp3", url)
		assert.Equal(t, 0, fetches)
	})

	t.Run("fetched once then cached", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			url, err := c.ResolveStreamURL(ctx, track.Track{ID: "t1"})
			require.NoError(t, err)
			assert.Equal(t, preview, url)
		}
		assert.Equal(t, 1, fetches)
	})
}

func TestClient_ResolveStreamURLNotStreamable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tracks/t1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, fullTrackJSON, "")
	})
	c := newTestClient(t, mux)

	_, err := c.ResolveStreamURL(context.Background(), track.Track{ID: "t1"})
	assert.ErrorIs(t, err, ErrNotStreamable)
}

func TestClient_GetAlbumFollowsPages(t *testing.T) {
	var serverURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/albums/al1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"id": "al1",
			"name": "Record",
			"artists": [{"name": "Band"}],
			"images": [{"url": "https://img/al1.jpg"}],
			"tracks": {
				"items": [{"id": "a", "name": "One", "duration_ms": 1000, "artists": [{"name": "Band"}]}],
				"next": %q
			}
		}`, serverURL+"/albums/al1/tracks?offset=1")
	})
	mux.HandleFunc("/albums/al1/tracks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"items": [{"id": "b", "name": "Two", "duration_ms": 2000, "artists": []}],
			"next": ""
		}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	serverURL = server.URL

	c := newWithClient(spotify.New(server.Client(), spotify.WithBaseURL(server.URL+"/")), "JP")

	album, err := c.GetAlbum(context.Background(), "https://open.spotify.com/album/al1")
	require.NoError(t, err)
	assert.Equal(t, "Record", album.Name)
	assert.Equal(t, "https://img/al1.jpg", album.CoverURL)
	require.Len(t, album.Tracks, 2)
	assert.Equal(t, []string{"a", "b"}, album.TrackIDs())
	assert.Equal(t, []string{"Band"}, album.Tracks[1].Artists, "album artists fill in missing track artists")
	assert.Equal(t, "Record", album.Tracks[1].Album)
	assert.Equal(t, 3*time.Second, album.TotalDuration())
}

func TestClient_SearchValidatesQuery(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	_, err := c.Search(context.Background(), "", 10)
	assert.Error(t, err)
}
