// Package recommend suggests songs to a user from the document index.
//
// A user whose playlists hold at least one song takes the similarity path: songs sharing artist
// terms with the user's history are pooled, then split into one bucket per (artist, genre) pair
// seen in that history, each bucket contributing an equal quota. Everyone else gets a cold-start
// draw from the popular neighborhood of the catalog, shuffled per call.
package recommend

import (
	"cmp"
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/patrickmn/go-cache"

	"github.com/desertthunder/tunedex/internal/index"
	"github.com/desertthunder/tunedex/internal/metrics"
	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

const neighborhoodKey = "neighborhood"

// Path names the branch a recommendation took.
type Path string

const (
	HasHistory Path = "history"
	NoHistory  Path = "cold_start"
)

// Request asks for up to Size songs for one user.
type Request struct {
	UserID int64
	Size   int            // <= 0 uses the engine default
	Filter *models.Filter // optional exact-match restriction
	Sort   models.SortField
}

// Result holds recommended songs in rank order.
type Result struct {
	Path  Path
	Songs []models.SongDoc
}

// Neighborhood is the popular slice of the catalog used for cold starts.
type Neighborhood struct {
	Genres  []string
	Artists []string
}

// Options configures an [Engine]. Zero values take the defaults noted per field.
type Options struct {
	PoolSize        int           // similarity candidates considered, default 50
	DefaultSize     int           // songs returned when a request has no size, default 10
	MaxQueryTerms   int           // similarity query terms, default 6
	PopularGenres   int           // genres in the neighborhood, default 10
	PopularArtists  int           // artists in the neighborhood, default 10
	MinGenreSongs   int           // songs a genre needs to count as popular, default 10
	NeighborhoodTTL time.Duration // 0 recomputes the neighborhood on every cold start
	Seed            func() int64  // random score seed per cold start, default math/rand
	Logger          *log.Logger
}

func (o *Options) defaults() {
	if o.PoolSize <= 0 {
		o.PoolSize = 50
	}
	if o.DefaultSize <= 0 {
		o.DefaultSize = 10
	}
	if o.MaxQueryTerms <= 0 {
		o.MaxQueryTerms = 6
	}
	if o.PopularGenres <= 0 {
		o.PopularGenres = 10
	}
	if o.PopularArtists <= 0 {
		o.PopularArtists = 10
	}
	if o.MinGenreSongs <= 0 {
		o.MinGenreSongs = 10
	}
	if o.Seed == nil {
		o.Seed = rand.Int64
	}
	if o.Logger == nil {
		o.Logger = shared.NewLogger(nil)
	}
}

// Engine answers recommendation requests. It is safe for concurrent use.
type Engine struct {
	index  index.Index
	opts   Options
	cache  *cache.Cache
	logger *log.Logger
}

// New creates an [Engine] reading from idx.
func New(idx index.Index, opts Options) *Engine {
	opts.defaults()
	e := &Engine{
		index:  idx,
		opts:   opts,
		logger: shared.WithLogger(opts.Logger, "component", "recommend"),
	}
	if opts.NeighborhoodTTL > 0 {
		e.cache = cache.New(opts.NeighborhoodTTL, 2*opts.NeighborhoodTTL)
	}
	return e
}

// Recommend returns songs for req.UserID.
//
// It fails with [shared.ErrNotFound] when the user has no document and with
// [shared.ErrNoSongsToRecommend] when the user has history but none of it passes the filter.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Result, error) {
	if req.Size <= 0 {
		req.Size = e.opts.DefaultSize
	}

	user, err := e.index.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	var result *Result
	if user.HasHistory() {
		result, err = e.similar(ctx, user, req)
	} else {
		result, err = e.coldStart(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	metrics.RecommendationsServed.WithLabelValues(string(result.Path)).Inc()
	e.logger.Debug("recommended", "user_id", req.UserID, "path", result.Path, "songs", len(result.Songs))
	return result, nil
}

type pair struct {
	artist string
	genre  string
}

func (e *Engine) similar(ctx context.Context, user *models.UserDoc, req Request) (*Result, error) {
	var (
		seeds []int64
		pairs []pair
	)
	seen := make(map[int64]bool)
	for _, p := range user.Playlists {
		for _, s := range p.Songs {
			if !req.Filter.MatchEntry(s) {
				continue
			}
			if !seen[s.SongID] {
				seen[s.SongID] = true
				seeds = append(seeds, s.SongID)
			}
			if pr := (pair{s.ArtistName, s.GenreName}); !slices.Contains(pairs, pr) {
				pairs = append(pairs, pr)
			}
		}
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: user %d", shared.ErrNoSongsToRecommend, user.UserID)
	}

	quota := req.Size / len(pairs)

	pool, err := e.index.Search(ctx, index.SearchRequest{
		Query: index.Bool{Must: []index.Clause{index.MoreLikeThis{
			Fields:        []index.Field{index.FieldArtistName},
			Like:          seeds,
			MinTermFreq:   1,
			MaxQueryTerms: e.opts.MaxQueryTerms,
			MinDocFreq:    1,
		}}},
		Size: e.opts.PoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	songs := make([]models.SongDoc, 0, req.Size)
	picked := make(map[int64]bool)
	for _, pr := range pairs {
		for _, h := range bucket(pool, pr, req.Sort, quota) {
			if picked[h.Doc.SongID] || !req.Filter.MatchDoc(h.Doc) {
				continue
			}
			picked[h.Doc.SongID] = true
			songs = append(songs, h.Doc)
		}
	}
	return &Result{Path: HasHistory, Songs: songs}, nil
}

// bucket keeps the pool hits of one (artist, genre) pair, ordered by sort, cut to quota.
func bucket(pool []index.Hit, pr pair, sort models.SortField, quota int) []index.Hit {
	var hits []index.Hit
	for _, h := range pool {
		if h.Doc.ArtistName == pr.artist && h.Doc.GenreName == pr.genre {
			hits = append(hits, h)
		}
	}

	switch sort {
	case models.SortRating:
		slices.SortStableFunc(hits, func(a, b index.Hit) int { return cmp.Compare(b.Doc.Rating, a.Doc.Rating) })
	case models.SortRecommendationCount:
		slices.SortStableFunc(hits, func(a, b index.Hit) int {
			return cmp.Compare(b.Doc.RecommendationCount, a.Doc.RecommendationCount)
		})
	}
	return hits[:min(quota, len(hits))]
}

func (e *Engine) coldStart(ctx context.Context, req Request) (*Result, error) {
	n, err := e.Neighborhood(ctx)
	if err != nil {
		return nil, err
	}

	hits, err := e.index.Search(ctx, index.SearchRequest{
		Query: index.Bool{
			Should: []index.Clause{
				index.Terms{Field: index.FieldGenreName, Values: n.Genres},
				index.Terms{Field: index.FieldArtistName, Values: n.Artists},
			},
			MinimumShouldMatch: 2,
		},
		Size:        req.Size,
		RandomScore: &index.RandomScore{Seed: e.opts.Seed()},
	})
	if err != nil {
		return nil, fmt.Errorf("cold start query: %w", err)
	}

	songs := make([]models.SongDoc, 0, len(hits))
	picked := make(map[int64]bool)
	for _, h := range hits {
		if picked[h.Doc.SongID] || !req.Filter.MatchDoc(h.Doc) {
			continue
		}
		picked[h.Doc.SongID] = true
		songs = append(songs, h.Doc)
	}
	return &Result{Path: NoHistory, Songs: songs}, nil
}

// Neighborhood returns the most common genres (with enough songs) and artists in the index.
//
// Results are cached for the configured TTL.
func (e *Engine) Neighborhood(ctx context.Context) (*Neighborhood, error) {
	if e.cache != nil {
		if n, ok := e.cache.Get(neighborhoodKey); ok {
			return n.(*Neighborhood), nil
		}
	}

	genres, err := e.index.Terms(ctx, index.TermsAggregation{
		Field:       index.FieldGenreName,
		Size:        e.opts.PopularGenres,
		MinDocCount: e.opts.MinGenreSongs,
	})
	if err != nil {
		return nil, fmt.Errorf("popular genres: %w", err)
	}
	artists, err := e.index.Terms(ctx, index.TermsAggregation{
		Field: index.FieldArtistName,
		Size:  e.opts.PopularArtists,
	})
	if err != nil {
		return nil, fmt.Errorf("popular artists: %w", err)
	}

	n := &Neighborhood{Genres: keys(genres), Artists: keys(artists)}
	if e.cache != nil {
		e.cache.SetDefault(neighborhoodKey, n)
	}
	return n, nil
}

// Invalidate drops the cached neighborhood.
func (e *Engine) Invalidate() {
	if e.cache != nil {
		e.cache.Delete(neighborhoodKey)
	}
}

func keys(buckets []index.Bucket) []string {
	out := make([]string, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b.Key)
	}
	return out
}
