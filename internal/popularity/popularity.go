// Package popularity answers read-only chart queries over song documents.
package popularity

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/tunedex/internal/index"
	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

// perGenre is how many songs each genre contributes to a grouped chart.
const perGenre = 2

// DefaultSearchSize bounds [Aggregator.SearchTitle] when no size is given.
const DefaultSearchSize = 10

// Aggregator builds charts from an [index.Index].
type Aggregator struct {
	index index.Index
}

// New creates an [Aggregator].
func New(idx index.Index) *Aggregator {
	return &Aggregator{index: idx}
}

// TopRated returns up to two songs per genre for the n largest genres, best rated first within each genre.
//
// n bounds the genre fan-out, so the result holds at most 2n songs.
func (a *Aggregator) TopRated(ctx context.Context, n int) ([]models.SongDoc, error) {
	return a.perGenre(ctx, n, index.FieldRating)
}

// TopRecommended is [Aggregator.TopRated] ordered by recommendation count.
func (a *Aggregator) TopRecommended(ctx context.Context, n int) ([]models.SongDoc, error) {
	return a.perGenre(ctx, n, index.FieldRecommendationCount)
}

func (a *Aggregator) perGenre(ctx context.Context, n int, by index.Field) ([]models.SongDoc, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: chart size must be positive, got %d", shared.ErrInvalidArgument, n)
	}

	buckets, err := a.index.TopHits(ctx, index.TopHitsAggregation{
		TermsAggregation: index.TermsAggregation{Field: index.FieldGenreName, Size: n},
		PerBucket:        perGenre,
		Sort:             []index.SortSpec{{Field: by, Desc: true}},
	})
	if err != nil {
		return nil, err
	}

	var hits []index.Hit
	for _, b := range buckets {
		hits = append(hits, b.Hits...)
	}
	return unique(hits), nil
}

// Trending returns the n songs with the most recommendations.
func (a *Aggregator) Trending(ctx context.Context, n int) ([]models.SongDoc, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: chart size must be positive, got %d", shared.ErrInvalidArgument, n)
	}

	hits, err := a.index.Search(ctx, index.SearchRequest{
		Size: n,
		Sort: []index.SortSpec{{Field: index.FieldRecommendationCount, Desc: true}},
	})
	if err != nil {
		return nil, err
	}
	return unique(hits), nil
}

// SearchTitle finds songs whose title shares a word with text, most relevant first.
func (a *Aggregator) SearchTitle(ctx context.Context, text string, size int) ([]models.SongDoc, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: search text", shared.ErrMissingArgument)
	}
	if size <= 0 {
		size = DefaultSearchSize
	}

	hits, err := a.index.Search(ctx, index.SearchRequest{
		Query: index.Bool{Must: []index.Clause{index.Match{Field: index.FieldTitle, Text: text}}},
		Size:  size,
	})
	if err != nil {
		return nil, err
	}
	return index.Docs(hits), nil
}

func unique(hits []index.Hit) []models.SongDoc {
	seen := make(map[int64]bool, len(hits))
	out := make([]models.SongDoc, 0, len(hits))
	for _, h := range hits {
		if !seen[h.Doc.SongID] {
			seen[h.Doc.SongID] = true
			out = append(out, h.Doc)
		}
	}
	return out
}
