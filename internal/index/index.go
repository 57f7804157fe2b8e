// Package index defines the document index contract with an Elasticsearch client ([Elastic])
// and an embedded SQLite backend ([SQLite]).
//
// The index holds denormalized [models.SongDoc] and [models.UserDoc] bodies derived from the
// catalog. It is a rebuildable cache: nothing in it is authoritative.
//
// Queries follow a boolean shape ([Bool]) over clauses ([Term], [Terms], [Match], [MoreLikeThis]).
// Aggregations group songs by a keyword field ([TermsAggregation], [TopHitsAggregation]).
// Every ordering breaks ties by song id ascending.
package index

import (
	"context"
	"fmt"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

// Index is the document store consumed by the projector, the recommendation engine and the popularity aggregator.
type Index interface {
	UpsertSong(ctx context.Context, doc models.SongDoc) error
	// PatchSong applies a partial update. Returns [shared.ErrNotFound] when the document is absent.
	PatchSong(ctx context.Context, songID int64, patch SongPatch) error
	DeleteSong(ctx context.Context, songID int64) error
	GetSong(ctx context.Context, songID int64) (*models.SongDoc, error)

	UpsertUser(ctx context.Context, doc models.UserDoc) error
	DeleteUser(ctx context.Context, userID int64) error
	GetUser(ctx context.Context, userID int64) (*models.UserDoc, error)

	Search(ctx context.Context, req SearchRequest) ([]Hit, error)
	Terms(ctx context.Context, agg TermsAggregation) ([]Bucket, error)
	TopHits(ctx context.Context, agg TopHitsAggregation) ([]BucketHits, error)

	Stats(ctx context.Context) (Stats, error)
	// DocumentIDs lists every stored song and user id in ascending order.
	DocumentIDs(ctx context.Context) (DocumentIDs, error)
	Close() error
}

// Field names a song document attribute.
type Field string

const (
	FieldTitle               Field = "title"
	FieldArtistName          Field = "artist_name"
	FieldAlbumTitle          Field = "album_title"
	FieldGenreName           Field = "genre_name"
	FieldRating              Field = "rating"
	FieldRecommendationCount Field = "recommendation_count"
	FieldSongID              Field = "song_id"
)

// Keyword reports whether f is a string field usable in term, match and aggregation clauses.
func (f Field) Keyword() bool {
	switch f {
	case FieldTitle, FieldArtistName, FieldAlbumTitle, FieldGenreName:
		return true
	}
	return false
}

// Numeric reports whether f is sortable as a number.
func (f Field) Numeric() bool {
	switch f {
	case FieldRating, FieldRecommendationCount, FieldSongID:
		return true
	}
	return false
}

func (f Field) validateKeyword() error {
	if !f.Keyword() {
		return fmt.Errorf("%w: %q is not a keyword field", shared.ErrInvalidInput, f)
	}
	return nil
}

func keyword(d models.SongDoc, f Field) string {
	switch f {
	case FieldTitle:
		return d.Title
	case FieldArtistName:
		return d.ArtistName
	case FieldAlbumTitle:
		return d.AlbumTitle
	case FieldGenreName:
		return d.GenreName
	}
	return ""
}

func numeric(d models.SongDoc, f Field) float64 {
	switch f {
	case FieldRating:
		return d.Rating
	case FieldRecommendationCount:
		return float64(d.RecommendationCount)
	case FieldSongID:
		return float64(d.SongID)
	}
	return 0
}

// FilterField maps a validated recommendation filter field onto its index field.
func FilterField(f models.FilterField) Field {
	return Field(f)
}

// SongPatch carries the song fields that can change without a full re-projection. Nil fields are left alone.
type SongPatch struct {
	Rating              *float64
	RecommendationCount *int
}

// Empty reports whether the patch changes nothing.
func (p SongPatch) Empty() bool {
	return p.Rating == nil && p.RecommendationCount == nil
}

func (p SongPatch) apply(d *models.SongDoc) {
	if p.Rating != nil {
		d.Rating = *p.Rating
	}
	if p.RecommendationCount != nil {
		d.RecommendationCount = *p.RecommendationCount
	}
}

// SortSpec orders hits by a numeric field.
type SortSpec struct {
	Field Field
	Desc  bool
}

// RandomScore replaces relevance with a pseudo-random value derived from Seed and the song id.
type RandomScore struct {
	Seed int64
}

// SearchRequest is a boolean query with paging, sorting and optional score replacement.
//
// Size <= 0 returns every match. With no Sort, hits are ordered by score descending.
type SearchRequest struct {
	Query       Bool
	Size        int
	Sort        []SortSpec
	RandomScore *RandomScore
}

// Hit is a matched song document and its score.
type Hit struct {
	Doc   models.SongDoc
	Score float64
}

// Docs strips scores from hits.
func Docs(hits []Hit) []models.SongDoc {
	docs := make([]models.SongDoc, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, h.Doc)
	}
	return docs
}

// TermsAggregation groups matching songs by a keyword field.
//
// Buckets are ordered by doc count descending, then key ascending. MinDocCount defaults to 1.
type TermsAggregation struct {
	Field       Field
	Size        int
	MinDocCount int
	Query       Bool
}

// Bucket is one group of a terms aggregation.
type Bucket struct {
	Key      string
	DocCount int
}

// TopHitsAggregation is a terms aggregation that also returns the best PerBucket hits of each bucket.
type TopHitsAggregation struct {
	TermsAggregation
	PerBucket int
	Sort      []SortSpec
}

// BucketHits is a bucket with its top hits.
type BucketHits struct {
	Bucket
	Hits []Hit
}

// Stats counts stored documents.
type Stats struct {
	Songs int
	Users int
}

// DocumentIDs are the ids of the stored documents.
type DocumentIDs struct {
	Songs []int64
	Users []int64
}

// New opens the backend named by cfg.Backend.
func New(ctx context.Context, cfg shared.IndexConfig) (Index, error) {
	switch cfg.Backend {
	case shared.IndexBackendElasticsearch:
		es := cfg.Elasticsearch
		return OpenElastic(ctx, ElasticOptions{
			Addresses: es.Addresses,
			Username:  es.Username,
			Password:  es.Password,
			SongIndex: es.SongIndex,
			UserIndex: es.UserIndex,
			Refresh:   es.Refresh,
		})
	case shared.IndexBackendSQLite, "":
		return Open(cfg.Path)
	}
	return nil, fmt.Errorf("%w: unknown index backend %q", shared.ErrInvalidConfig, cfg.Backend)
}
