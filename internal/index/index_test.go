package index

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

func openTestIndex(t *testing.T) *SQLite {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func song(id int64, title, artist, genre string, rating float64, recs int) models.SongDoc {
	return models.SongDoc{
		SongID:              id,
		Title:               title,
		ArtistName:          artist,
		AlbumTitle:          title + " LP",
		GenreName:           genre,
		Rating:              rating,
		RecommendationCount: recs,
	}
}

func seedIndex(t *testing.T, idx Index, docs ...models.SongDoc) {
	t.Helper()
	for _, d := range docs {
		require.NoError(t, idx.UpsertSong(context.Background(), d))
	}
}

func ids(hits []Hit) []int64 {
	out := make([]int64, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Doc.SongID)
	}
	return out
}

func TestSQLiteDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("song upsert, patch and delete", func(t *testing.T) {
		idx := openTestIndex(t)
		seedIndex(t, idx, song(1, "Hey", "Pixies", "Rock", 0, 0))

		rating, count := 4.5, 3
		require.NoError(t, idx.PatchSong(ctx, 1, SongPatch{Rating: &rating}))
		require.NoError(t, idx.PatchSong(ctx, 1, SongPatch{RecommendationCount: &count}))

		got, err := idx.GetSong(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 4.5, got.Rating)
		assert.Equal(t, 3, got.RecommendationCount)
		assert.Equal(t, "Hey", got.Title)

		require.NoError(t, idx.DeleteSong(ctx, 1))
		_, err = idx.GetSong(ctx, 1)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("patch of missing song", func(t *testing.T) {
		idx := openTestIndex(t)
		rating := 1.0
		err := idx.PatchSong(ctx, 9, SongPatch{Rating: &rating})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("user round trip", func(t *testing.T) {
		idx := openTestIndex(t)
		doc := models.UserDoc{UserID: 7, Username: "ana", Playlists: []models.PlaylistDoc{{
			PlaylistID: 1, Name: "mix", Visibility: models.Public,
			Songs: []models.SongEntry{{SongID: 1, Title: "Hey", ArtistName: "Pixies", GenreName: "Rock"}},
		}}}
		require.NoError(t, idx.UpsertUser(ctx, doc))

		got, err := idx.GetUser(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, doc, *got)

		st, err := idx.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Songs: 0, Users: 1}, st)

		require.NoError(t, idx.DeleteUser(ctx, 7))
		_, err = idx.GetUser(ctx, 7)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)
	seedIndex(t, idx,
		song(1, "Hey", "Pixies", "Rock", 4, 1),
		song(2, "Debaser", "Pixies", "Rock", 5, 7),
		song(3, "So What", "Miles Davis", "Jazz", 3, 2),
		song(4, "Blue in Green", "Miles Davis", "Jazz", 5, 0),
		song(5, "Teen Spirit", "Nirvana", "Rock", 2, 9),
	)

	t.Run("empty bool matches all", func(t *testing.T) {
		hits, err := idx.Search(ctx, SearchRequest{})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(hits))
	})

	t.Run("term filter and sort", func(t *testing.T) {
		hits, err := idx.Search(ctx, SearchRequest{
			Query: Bool{Filter: []Clause{Term{Field: FieldGenreName, Value: "Rock"}}},
			Sort:  []SortSpec{{Field: FieldRecommendationCount, Desc: true}},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{5, 2, 1}, ids(hits))
	})

	t.Run("term is exact", func(t *testing.T) {
		hits, err := idx.Search(ctx, SearchRequest{
			Query: Bool{Filter: []Clause{Term{Field: FieldGenreName, Value: "rock"}}},
		})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("size limits hits", func(t *testing.T) {
		hits, err := idx.Search(ctx, SearchRequest{Size: 2, Sort: []SortSpec{{Field: FieldRating, Desc: true}}})
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 4}, ids(hits))
	})

	t.Run("match is tokenized", func(t *testing.T) {
		hits, err := idx.Search(ctx, SearchRequest{Query: Bool{Must: []Clause{Match{Field: FieldTitle, Text: "blue SPIRIT"}}}})
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{4, 5}, ids(hits))
	})

	t.Run("minimum should match", func(t *testing.T) {
		hits, err := idx.Search(ctx, SearchRequest{Query: Bool{
			Should: []Clause{
				Terms{Field: FieldGenreName, Values: []string{"Rock"}},
				Terms{Field: FieldArtistName, Values: []string{"Pixies", "Miles Davis"}},
			},
			MinimumShouldMatch: 2,
		}})
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{1, 2}, ids(hits))
	})

	t.Run("random score is seeded", func(t *testing.T) {
		req := SearchRequest{RandomScore: &RandomScore{Seed: 42}}
		a, err := idx.Search(ctx, req)
		require.NoError(t, err)
		b, err := idx.Search(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, ids(a), ids(b))
		for _, h := range a {
			assert.GreaterOrEqual(t, h.Score, 0.0)
			assert.Less(t, h.Score, 1.0)
		}
	})

	t.Run("sorting on keyword field fails", func(t *testing.T) {
		_, err := idx.Search(ctx, SearchRequest{Sort: []SortSpec{{Field: FieldTitle}}})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("term on numeric field fails", func(t *testing.T) {
		_, err := idx.Search(ctx, SearchRequest{Query: Bool{Must: []Clause{Term{Field: FieldRating, Value: "5"}}}})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestMoreLikeThis(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)
	seedIndex(t, idx,
		song(1, "Hey", "Pixies", "Rock", 0, 0),
		song(2, "Debaser", "Pixies", "Rock", 0, 0),
		song(3, "Wave of Mutilation", "Pixies", "Rock", 0, 0),
		song(4, "So What", "Miles Davis", "Jazz", 0, 0),
		song(5, "Davis Cup", "Ray Davis", "Pop", 0, 0),
		song(6, "Teen Spirit", "Nirvana", "Rock", 0, 0),
	)

	t.Run("shares artist terms and excludes seeds", func(t *testing.T) {
		hits, err := idx.Search(ctx, SearchRequest{Query: Bool{Must: []Clause{MoreLikeThis{
			Fields: []Field{FieldArtistName}, Like: []int64{1}, MinTermFreq: 1, MaxQueryTerms: 6, MinDocFreq: 1,
		}}}})
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 3}, ids(hits))
	})

	t.Run("multi token artist", func(t *testing.T) {
		hits, err := idx.Search(ctx, SearchRequest{Query: Bool{Must: []Clause{MoreLikeThis{
			Fields: []Field{FieldArtistName}, Like: []int64{4}, MaxQueryTerms: 6,
		}}}})
		require.NoError(t, err)
		assert.Equal(t, []int64{5}, ids(hits))
	})

	t.Run("max query terms bounds the query", func(t *testing.T) {
		q := MoreLikeThis{Fields: []Field{FieldArtistName}, Like: []int64{1, 4, 6}, MaxQueryTerms: 1}
		c, err := idx.load(ctx)
		require.NoError(t, err)
		assert.Len(t, q.selectTerms(c), 1)
	})

	t.Run("requires a field", func(t *testing.T) {
		_, err := idx.Search(ctx, SearchRequest{Query: Bool{Must: []Clause{MoreLikeThis{Like: []int64{1}}}}})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestAggregations(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)
	seedIndex(t, idx,
		song(1, "A", "X", "Rock", 3, 1),
		song(2, "B", "X", "Rock", 5, 2),
		song(3, "C", "Y", "Rock", 4, 8),
		song(4, "D", "Y", "Jazz", 1, 5),
		song(5, "E", "Z", "Jazz", 2, 0),
		song(6, "F", "Z", "Pop", 5, 3),
	)

	t.Run("terms ordered by count then key", func(t *testing.T) {
		buckets, err := idx.Terms(ctx, TermsAggregation{Field: FieldGenreName, Size: 10})
		require.NoError(t, err)
		assert.Equal(t, []Bucket{{"Rock", 3}, {"Jazz", 2}, {"Pop", 1}}, buckets)
	})

	t.Run("min doc count", func(t *testing.T) {
		buckets, err := idx.Terms(ctx, TermsAggregation{Field: FieldGenreName, Size: 10, MinDocCount: 2})
		require.NoError(t, err)
		assert.Equal(t, []Bucket{{"Rock", 3}, {"Jazz", 2}}, buckets)
	})

	t.Run("size bounds buckets", func(t *testing.T) {
		buckets, err := idx.Terms(ctx, TermsAggregation{Field: FieldArtistName, Size: 2})
		require.NoError(t, err)
		assert.Equal(t, []Bucket{{"X", 2}, {"Y", 2}}, buckets)
	})

	t.Run("top hits per bucket", func(t *testing.T) {
		groups, err := idx.TopHits(ctx, TopHitsAggregation{
			TermsAggregation: TermsAggregation{Field: FieldGenreName, Size: 2},
			PerBucket:        2,
			Sort:             []SortSpec{{Field: FieldRating, Desc: true}},
		})
		require.NoError(t, err)
		require.Len(t, groups, 2)
		assert.Equal(t, "Rock", groups[0].Key)
		assert.Equal(t, []int64{2, 3}, ids(groups[0].Hits))
		assert.Equal(t, "Jazz", groups[1].Key)
		assert.Equal(t, []int64{5, 4}, ids(groups[1].Hits))
	})
}

// flakyIndex fails the first n calls of every method with a transient error.
type flakyIndex struct {
	*SQLite
	failures int
	calls    int
	err      error
}

func (f *flakyIndex) UpsertSong(ctx context.Context, doc models.SongDoc) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return f.SQLite.UpsertSong(ctx, doc)
}

func (f *flakyIndex) GetSong(ctx context.Context, id int64) (*models.SongDoc, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.SQLite.GetSong(ctx, id)
}

func TestResilient(t *testing.T) {
	ctx := context.Background()
	policy := shared.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

	t.Run("retries transient failures", func(t *testing.T) {
		flaky := &flakyIndex{SQLite: openTestIndex(t), failures: 2, err: errors.New("database is locked")}
		r := NewResilient(flaky, ResilientOptions{Policy: policy, Logger: shared.NewLogger(nil)})

		require.NoError(t, r.UpsertSong(ctx, song(1, "A", "X", "Rock", 0, 0)))
		assert.Equal(t, 3, flaky.calls)
	})

	t.Run("exhausted retries are unavailable", func(t *testing.T) {
		flaky := &flakyIndex{SQLite: openTestIndex(t), failures: 10, err: errors.New("disk I/O error")}
		r := NewResilient(flaky, ResilientOptions{Policy: policy})

		err := r.UpsertSong(ctx, song(1, "A", "X", "Rock", 0, 0))
		assert.ErrorIs(t, err, shared.ErrIndexUnavailable)
		assert.Equal(t, 3, flaky.calls)
	})

	t.Run("not found is not retried", func(t *testing.T) {
		flaky := &flakyIndex{SQLite: openTestIndex(t)}
		r := NewResilient(flaky, ResilientOptions{Policy: policy})

		_, err := r.GetSong(ctx, 99)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NotErrorIs(t, err, shared.ErrIndexUnavailable)
		assert.Equal(t, 1, flaky.calls)
	})
}

func TestSQLiteDocumentIDs(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	empty, err := idx.DocumentIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Songs)
	assert.Empty(t, empty.Users)

	seedIndex(t, idx, song(7, "A", "X", "Rock", 0, 0), song(2, "B", "Y", "Jazz", 0, 0))
	require.NoError(t, idx.UpsertUser(ctx, models.UserDoc{UserID: 4, Username: "ana"}))

	got, err := idx.DocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, DocumentIDs{Songs: []int64{2, 7}, Users: []int64{4}}, got)
}
