// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// Tag lookups by "tracktag:<artist>:<track>" and "tagtracks:<tag>"
	cache   map[string]any
	cacheMu sync.RWMutex
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey string
}

// SimilarTrack represents a similar track from Last.fm.
type SimilarTrack struct {
	Name   string
	Artist string
}

// Tag represents a Last.fm tag.
type Tag struct {
	Name  string
	Count int
}

// TopTrack represents a top track for a tag or chart.
type TopTrack struct {
	Name   string
	Artist string
}

type trackList struct {
	Track []struct {
		Name   string `json:"name"`
		Artist struct {
			Name string `json:"name"`
		} `json:"artist"`
	} `json:"track"`
}

func (l trackList) pairs() []TopTrack {
	out := make([]TopTrack, 0, len(l.Track))
	for _, t := range l.Track {
		out = append(out, TopTrack{Name: t.Name, Artist: t.Artist.Name})
	}
	return out
}

type similarResponse struct {
	SimilarTracks trackList `json:"similartracks"`
}

type topTagsResponse struct {
	TopTags struct {
		Tag []struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		} `json:"tag"`
	} `json:"toptags"`
}

type topTracksResponse struct {
	Tracks trackList `json:"tracks"`
}

// APIError is an error reported in a Last.fm response body.
type APIError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("last.fm API error %d: %s", e.Code, e.Message)
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    "https://ws.audioscrobbler.com/2.0/",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      make(map[string]any),
	}, nil
}

// GetSimilarTracks retrieves similar tracks based on track name and artist.
// Reference: https://www.last.fm/api/show/track.getSimilar
func (c *Client) GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]SimilarTrack, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}

	params := url.Values{}
	params.Set("method", "track.getSimilar")
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))
	params.Set("autocorrect", "1")

	var response similarResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}

	similar := make([]SimilarTrack, 0, len(response.SimilarTracks.Track))
	for _, t := range response.SimilarTracks.pairs() {
		similar = append(similar, SimilarTrack(t))
	}
	return similar, nil
}

// GetTopTags retrieves top tags for a track.
// Reference: https://www.last.fm/api/show/track.getTopTags
func (c *Client) GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]Tag, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}
	limit = clampLimit(limit, 10)

	cacheKey := fmt.Sprintf("tracktag:%s:%s", artistName, trackName)
	if tags, ok := cached[[]Tag](c, cacheKey); ok {
		zlog.Debug().Msgf("lastfm: using cached tags for track: %s - %s", artistName, trackName)
		return tags, nil
	}

	params := url.Values{}
	params.Set("method", "track.getTopTags")
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("autocorrect", "1")

	var response topTagsResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}

	tags := make([]Tag, 0, len(response.TopTags.Tag))
	for i, t := range response.TopTags.Tag {
		if i >= limit {
			break
		}
		tags = append(tags, Tag{Name: t.Name, Count: t.Count})
	}

	c.store(cacheKey, tags)
	zlog.Debug().Msgf("lastfm: cached tags for track: %s - %s (count: %d)", artistName, trackName, len(tags))
	return tags, nil
}

// GetTopTracks retrieves top tracks for a tag.
// Reference: https://www.last.fm/api/show/tag.getTopTracks
func (c *Client) GetTopTracks(ctx context.Context, tagName string, limit int) ([]TopTrack, error) {
	if tagName == "" {
		return nil, errors.New("tag name is required")
	}

	cacheKey := fmt.Sprintf("tagtracks:%s", tagName)
	if tracks, ok := cached[[]TopTrack](c, cacheKey); ok {
		zlog.Debug().Msgf("lastfm: using cached top tracks for tag: %s", tagName)
		return tracks, nil
	}

	params := url.Values{}
	params.Set("method", "tag.getTopTracks")
	params.Set("tag", tagName)
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))

	var response topTracksResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}

	tracks := response.Tracks.pairs()
	c.store(cacheKey, tracks)
	zlog.Debug().Msgf("lastfm: cached top tracks for tag: %s (count: %d)", tagName, len(tracks))
	return tracks, nil
}

// GetChartTopTracks retrieves global top tracks from Last.fm charts.
// Reference: https://www.last.fm/api/show/chart.getTopTracks
func (c *Client) GetChartTopTracks(ctx context.Context, limit int) ([]TopTrack, error) {
	params := url.Values{}
	params.Set("method", "chart.getTopTracks")
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))

	var response topTracksResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}
	return response.Tracks.pairs(), nil
}

// call performs a GET for params and decodes the JSON body into out.
// Errors carried in the body are returned as *APIError.
func (c *Client) call(ctx context.Context, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		return &apiErr
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("last.fm returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func cached[T any](c *Client, key string) (T, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	v, ok := c.cache[key].(T)
	return v, ok
}

func (c *Client) store(key string, v any) {
	c.cacheMu.Lock()
	c.cache[key] = v
	c.cacheMu.Unlock()
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 100 {
		return 100
	}
	return limit
}
