package radio

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/tunedeck/internal/domain/track"
	"github.com/osa030/tunedeck/internal/infra/lastfm"
)

// LastFmClient defines the interface for Last.fm operations.
type LastFmClient interface {
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.SimilarTrack, error)
	GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.Tag, error)
	GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.TopTrack, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.TopTrack, error)
}

type LastFmProviderConfig struct {
	APIKey        string  `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	SeedCount     int     `yaml:"seed_count" mapstructure:"seed_count" default:"3" validate:"gte=1"`
	TagCount      int     `yaml:"tag_count" mapstructure:"tag_count" default:"5" validate:"gte=1"`
	TagWeight     float64 `yaml:"tag_weight" mapstructure:"tag_weight" default:"0.4" validate:"gte=0,lte=1"`
	SimilarWeight float64 `yaml:"similar_weight" mapstructure:"similar_weight" default:"0.6" validate:"gte=0,lte=1"`
}

// LastFmProvider finds tracks related to the seeds through Last.fm and
// resolves them to catalog tracks by search. Tracks reached both by tag and
// by similarity score higher.
type LastFmProvider struct {
	lastfm  LastFmClient
	spotify SpotifyClient
	config  *LastFmProviderConfig

	// Search results by "name:artist"; nil marks a miss
	searchCache map[string]*track.Track
	cacheMu     sync.RWMutex

	rngMu sync.Mutex
	rng   *rand.Rand
}

type scoredTrack struct {
	track track.Track
	score float64
}

// NewLastFmProvider creates a new LastFmProvider.
func NewLastFmProvider(spotify SpotifyClient, settings map[string]any) (*LastFmProvider, error) {
	if spotify == nil {
		return nil, errors.New("spotify client is required")
	}
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}

	var config LastFmProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	if math.Abs(config.TagWeight+config.SimilarWeight-1.0) > 1e-9 {
		return nil, errors.New("tag weight and similar weight must sum to 1.0")
	}

	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}

	return newLastFmProvider(spotify, client, &config), nil
}

func newLastFmProvider(spotify SpotifyClient, client LastFmClient, config *LastFmProviderConfig) *LastFmProvider {
	var seed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}

	return &LastFmProvider{
		lastfm:      client,
		spotify:     spotify,
		config:      config,
		searchCache: make(map[string]*track.Track),
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// GetCandidates retrieves tracks related to seeds. Without seeds the global
// chart is used.
func (p *LastFmProvider) GetCandidates(ctx context.Context, count int, seeds []track.Track, exclude map[string]bool) ([]track.Track, error) {
	if count <= 0 {
		return []track.Track{}, nil
	}

	seeds = lo.Filter(seeds, func(t track.Track, _ int) bool { return len(t.Artists) > 0 })
	if len(seeds) > p.config.SeedCount {
		seeds = seeds[:p.config.SeedCount]
	}
	if len(seeds) == 0 {
		return p.chartCandidates(ctx, count, exclude)
	}

	var tagged, similar []track.Track
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tagged = p.tagCandidates(ctx, seeds, exclude)
	}()
	go func() {
		defer wg.Done()
		similar = p.similarCandidates(ctx, seeds, exclude)
	}()
	wg.Wait()

	scored := p.score(tagged, similar)
	if len(scored) == 0 {
		return []track.Track{}, nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	// Pick randomly among the best 2*count for variety
	pool := scored[:min(count*2, len(scored))]
	p.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	result := make([]track.Track, 0, count)
	for i := 0; i < count && i < len(pool); i++ {
		result = append(result, pool[i].track)
	}
	return result, nil
}

// Name returns the provider name.
func (p *LastFmProvider) Name() string {
	return "lastfm"
}

func (p *LastFmProvider) tagCandidates(ctx context.Context, seeds []track.Track, exclude map[string]bool) []track.Track {
	tagCounts := make(map[string]int)
	for _, seed := range seeds {
		tags, err := p.lastfm.GetTopTags(ctx, seed.Name, seed.Artists[0], 10)
		if err != nil {
			zlog.Debug().Msgf("lastfm provider: tags lookup failed for %s: %v", seed.Name, err)
			continue
		}
		for _, tag := range tags {
			tagCounts[tag.Name] += tag.Count
		}
	}

	var pairs []lastfm.TopTrack
	for _, tag := range topTags(tagCounts, p.config.TagCount) {
		tracks, err := p.lastfm.GetTopTracks(ctx, tag, 20)
		if err != nil {
			continue
		}
		pairs = append(pairs, tracks...)
	}
	return p.resolveAll(ctx, pairs, exclude)
}

func (p *LastFmProvider) similarCandidates(ctx context.Context, seeds []track.Track, exclude map[string]bool) []track.Track {
	var pairs []lastfm.TopTrack
	for _, seed := range seeds {
		similar, err := p.lastfm.GetSimilarTracks(ctx, seed.Name, seed.Artists[0], 10)
		if err != nil {
			zlog.Debug().Msgf("lastfm provider: similar lookup failed for %s: %v", seed.Name, err)
			continue
		}
		for _, s := range similar {
			pairs = append(pairs, lastfm.TopTrack(s))
		}
	}
	return p.resolveAll(ctx, pairs, exclude)
}

// chartCandidates is the fallback when there is nothing to seed from.
func (p *LastFmProvider) chartCandidates(ctx context.Context, count int, exclude map[string]bool) ([]track.Track, error) {
	chart, err := p.lastfm.GetChartTopTracks(ctx, 50)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chart")
	}

	p.shuffle(len(chart), func(i, j int) { chart[i], chart[j] = chart[j], chart[i] })

	var candidates []track.Track
	for _, c := range chart {
		if t := p.searchOnSpotify(ctx, c.Name, c.Artist); t != nil && !exclude[t.ID] {
			candidates = append(candidates, *t)
		}
		if len(candidates) >= count {
			break
		}
	}
	return lo.UniqBy(candidates, func(t track.Track) string { return t.ID }), nil
}

func (p *LastFmProvider) score(tagged, similar []track.Track) []scoredTrack {
	byID := make(map[string]*scoredTrack)
	var order []string

	add := func(tracks []track.Track, weight float64) {
		for _, t := range tracks {
			if s, ok := byID[t.ID]; ok {
				s.score += weight
				continue
			}
			byID[t.ID] = &scoredTrack{track: t, score: weight}
			order = append(order, t.ID)
		}
	}
	add(tagged, p.config.TagWeight)
	add(similar, p.config.SimilarWeight)

	return lo.Map(order, func(id string, _ int) scoredTrack { return *byID[id] })
}

func (p *LastFmProvider) resolveAll(ctx context.Context, pairs []lastfm.TopTrack, exclude map[string]bool) []track.Track {
	var out []track.Track
	for _, pair := range pairs {
		if t := p.searchOnSpotify(ctx, pair.Name, pair.Artist); t != nil && !exclude[t.ID] {
			out = append(out, *t)
		}
	}
	return lo.UniqBy(out, func(t track.Track) string { return t.ID })
}

// searchOnSpotify finds the catalog track for a name/artist pair. Search
// results lack market data, so the hit is fetched in full.
func (p *LastFmProvider) searchOnSpotify(ctx context.Context, name, artist string) *track.Track {
	key := fmt.Sprintf("%s:%s", name, artist)

	p.cacheMu.RLock()
	cached, ok := p.searchCache[key]
	p.cacheMu.RUnlock()
	if ok {
		return cached
	}

	var found *track.Track
	results, err := p.spotify.Search(ctx, fmt.Sprintf("track:%s artist:%s", name, artist), 1)
	if err == nil && len(results) > 0 {
		if full, err := p.spotify.GetTrack(ctx, results[0].ID); err == nil {
			found = full
		}
	}

	p.cacheMu.Lock()
	p.searchCache[key] = found
	p.cacheMu.Unlock()
	return found
}

func (p *LastFmProvider) shuffle(n int, swap func(i, j int)) {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	p.rng.Shuffle(n, swap)
}

// topTags returns the n tag names with the highest counts.
func topTags(counts map[string]int, n int) []string {
	names := lo.Keys(counts)
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}
