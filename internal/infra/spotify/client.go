// Package spotify provides the catalog client backed by the Spotify Web API.
package spotify

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/tunedeck/internal/domain/playlist"
	"github.com/osa030/tunedeck/internal/domain/track"
)

// ErrNotStreamable is returned when no playable URL exists for a track.
var ErrNotStreamable = errors.New("track has no playable url")

// Scopes requested by the auth tool and the player.
var Scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopeUserLibraryRead,
}

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration

	// Resolved stream URLs by track ID
	streamCache   map[string]string
	streamCacheMu sync.RWMutex
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(Scopes...),
	)

	// The HTTP client refreshes the access token on its own
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}
	httpClient := auth.Client(ctx, token)

	return newWithClient(spotify.New(httpClient), cfg.Market), nil
}

func newWithClient(client *spotify.Client, market string) *Client {
	if market == "" {
		market = "JP"
	}
	return &Client{
		client:      client,
		market:      market,
		maxRetries:  3,
		retryDelay:  time.Second,
		streamCache: make(map[string]string),
	}
}

// Market returns the market used for catalog requests.
func (c *Client) Market() string {
	return c.market
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*track.Track, error) {
	id := extractID(trackID, "track")
	if id == "" {
		return nil, errors.New("track id is required")
	}

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get track %s", id)
	}

	return c.convertTrack(result), nil
}

// Search searches for tracks.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	var result *spotify.SearchResult
	err := c.retry(ctx, func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	if result.Tracks == nil {
		return []track.Track{}, nil
	}
	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, *c.convertTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

// GetPlaylist retrieves a playlist with all of its tracks.
func (c *Client) GetPlaylist(ctx context.Context, playlistURL string) (*playlist.Playlist, error) {
	playlistID := extractID(playlistURL, "playlist")
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	var full *spotify.FullPlaylist
	err := c.retry(ctx, func() error {
		p, err := c.client.GetPlaylist(ctx, spotify.ID(playlistID),
			spotify.Fields("id,name,description,images,external_urls"),
		)
		if err != nil {
			return err
		}
		full = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get playlist")
	}

	tracks, err := c.GetPlaylistTracks(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	var cover string
	if len(full.Images) > 0 {
		cover = full.Images[0].URL
	}

	return &playlist.Playlist{
		ID:          playlistID,
		Kind:        playlist.KindPlaylist,
		Name:        full.Name,
		Description: full.Description,
		URL:         c.GetPlaylistURL(playlistID),
		CoverURL:    cover,
		Tracks:      tracks,
	}, nil
}

// GetPlaylistTracks retrieves all tracks from a playlist.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistURL string) ([]track.Track, error) {
	playlistID := extractID(playlistURL, "playlist")
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	var tracks []track.Track
	offset := 0
	limit := 100

	for {
		page, err := c.playlistPage(ctx, playlistID, limit, offset)
		if err != nil {
			return nil, err
		}

		tracks = append(tracks, c.pageTracks(page)...)

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	return tracks, nil
}

// GetPlaylistTracksRandom retrieves a random sample of tracks from a
// playlist: one random page, shuffled, cut to count.
func (c *Client) GetPlaylistTracksRandom(ctx context.Context, playlistURL string, count int) ([]track.Track, error) {
	playlistID := extractID(playlistURL, "playlist")
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	firstPage, err := c.playlistPage(ctx, playlistID, 1, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get playlist info")
	}

	totalTracks := int(firstPage.Total)
	if totalTracks == 0 {
		return []track.Track{}, nil
	}

	limit := 100
	maxOffset := totalTracks - limit
	if maxOffset < 0 {
		maxOffset = 0
	}

	rng := newRand()
	offset := 0
	if maxOffset > 0 {
		offset = rng.Intn(maxOffset + 1)
	}

	page, err := c.playlistPage(ctx, playlistID, limit, offset)
	if err != nil {
		return nil, err
	}

	tracks := c.pageTracks(page)
	if len(tracks) > count {
		rng.Shuffle(len(tracks), func(i, j int) {
			tracks[i], tracks[j] = tracks[j], tracks[i]
		})
		tracks = tracks[:count]
	}

	return tracks, nil
}

// CheckPlaylistExists checks if a playlist exists without fetching all tracks.
func (c *Client) CheckPlaylistExists(ctx context.Context, playlistURL string) error {
	playlistID := extractID(playlistURL, "playlist")
	if playlistID == "" {
		return errors.New("invalid playlist URL")
	}

	if _, err := c.playlistPage(ctx, playlistID, 1, 0); err != nil {
		return errors.Wrap(err, "playlist does not exist or is not accessible")
	}
	return nil
}

// GetAlbum retrieves an album with all of its tracks.
func (c *Client) GetAlbum(ctx context.Context, albumURL string) (*playlist.Playlist, error) {
	albumID := extractID(albumURL, "album")
	if albumID == "" {
		return nil, errors.New("invalid album URL")
	}

	var album *spotify.FullAlbum
	err := c.retry(ctx, func() error {
		a, err := c.client.GetAlbum(ctx, spotify.ID(albumID), spotify.Market(c.market))
		if err != nil {
			return err
		}
		album = a
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get album")
	}

	var cover string
	if len(album.Images) > 0 {
		cover = album.Images[0].URL
	}

	artists := make([]string, len(album.Artists))
	for i, a := range album.Artists {
		artists[i] = a.Name
	}

	page := &album.Tracks
	var tracks []track.Track
	for {
		for i := range page.Tracks {
			t := c.convertSimpleTrack(&page.Tracks[i], album.Name, cover)
			if len(t.Artists) == 0 {
				t.Artists = artists
			}
			tracks = append(tracks, t)
		}

		err := c.retry(ctx, func() error {
			return c.client.NextPage(ctx, page)
		})
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to get album tracks")
		}
	}

	return &playlist.Playlist{
		ID:       albumID,
		Kind:     playlist.KindAlbum,
		Name:     album.Name,
		URL:      fmt.Sprintf("https://open.spotify.com/album/%s", albumID),
		CoverURL: cover,
		Tracks:   tracks,
	}, nil
}

// ResolveStreamURL returns a playable URL for t. The preview URL carried by
// the track is used when present; otherwise the track is fetched again.
func (c *Client) ResolveStreamURL(ctx context.Context, t track.Track) (string, error) {
	if t.StreamURL != "" {
		return t.StreamURL, nil
	}

	c.streamCacheMu.RLock()
	cached, ok := c.streamCache[t.ID]
	c.streamCacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	full, err := c.GetTrack(ctx, t.ID)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve stream url")
	}
	if full.StreamURL == "" {
		return "", errors.Wrapf(ErrNotStreamable, "track %s", t.ID)
	}

	c.streamCacheMu.Lock()
	c.streamCache[t.ID] = full.StreamURL
	c.streamCacheMu.Unlock()
	zlog.Debug().Msgf("spotify: resolved stream url for track=%s", t.ID)

	return full.StreamURL, nil
}

// GetPlaylistURL returns the Spotify URL for a playlist.
func (c *Client) GetPlaylistURL(playlistID string) string {
	return fmt.Sprintf("https://open.spotify.com/playlist/%s", playlistID)
}

// GetTrackURL returns the Spotify URL for a track.
func (c *Client) GetTrackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

func (c *Client) playlistPage(ctx context.Context, playlistID string, limit, offset int) (*spotify.PlaylistItemPage, error) {
	var page *spotify.PlaylistItemPage
	err := c.retry(ctx, func() error {
		p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(limit),
			spotify.Offset(offset),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get playlist items")
	}
	return page, nil
}

// pageTracks converts playlist items, skipping episodes and local files.
func (c *Client) pageTracks(page *spotify.PlaylistItemPage) []track.Track {
	tracks := make([]track.Track, 0, len(page.Items))
	for _, item := range page.Items {
		if item.Track.Track != nil && item.Track.Track.ID != "" {
			tracks = append(tracks, *c.convertTrack(item.Track.Track))
		}
	}
	return tracks
}

// convertTrack converts a Spotify FullTrack to domain Track.
func (c *Client) convertTrack(t *spotify.FullTrack) *track.Track {
	var albumArt string
	if len(t.Album.Images) > 0 {
		albumArt = t.Album.Images[0].URL
	}

	converted := c.convertSimpleTrack(&t.SimpleTrack, t.Album.Name, albumArt)
	converted.IsPlayable = t.IsPlayable
	return &converted
}

func (c *Client) convertSimpleTrack(t *spotify.SimpleTrack, albumName, albumArt string) track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	markets := make([]string, len(t.AvailableMarkets))
	for i, m := range t.AvailableMarkets {
		markets[i] = string(m)
	}

	// Requests carry the market, so an empty list means "available here"
	if len(markets) == 0 && c.market != "" {
		markets = append(markets, c.market)
	}

	return track.Track{
		ID:          string(t.ID),
		Name:        t.Name,
		Artists:     artists,
		Album:       albumName,
		AlbumArtURL: albumArt,
		Duration:    time.Duration(t.Duration) * time.Millisecond,
		URL:         c.GetTrackURL(string(t.ID)),
		StreamURL:   t.PreviewURL,
		Explicit:    t.Explicit,
		Markets:     markets,
	}
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry cancelled")
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractID extracts a catalog ID of the given kind ("track", "album",
// "playlist") from a Spotify URL, URI or bare ID.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)

	// spotify:<kind>:<id>
	if prefix := "spotify:" + kind + ":"; strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	// https://open.spotify.com/<kind>/<id> or https://open.spotify.com/intl-xx/<kind>/<id>
	if sep := "/" + kind + "/"; strings.Contains(input, "open.spotify.com") && strings.Contains(input, sep) {
		parts := strings.Split(input, sep)
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return input
}

// newRand returns a random source seeded from crypto/rand.
func newRand() *rand.Rand {
	var seed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
