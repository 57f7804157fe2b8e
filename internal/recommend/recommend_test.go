package recommend

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/tunedex/internal/index"
	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
	tu "github.com/desertthunder/tunedex/internal/testing"
)

type library struct {
	t      *testing.T
	idx    *index.SQLite
	nextID int64
	docs   map[int64]models.SongDoc
}

func newLibrary(t *testing.T) *library {
	return &library{t: t, idx: tu.NewIndex(t), docs: make(map[int64]models.SongDoc)}
}

func (l *library) song(title, artist, genre string) models.SongDoc {
	l.t.Helper()
	l.nextID++
	doc := models.SongDoc{SongID: l.nextID, Title: title, ArtistName: artist, AlbumTitle: artist + " LP", GenreName: genre}
	require.NoError(l.t, l.idx.UpsertSong(context.Background(), doc))
	l.docs[doc.SongID] = doc
	return doc
}

func (l *library) songs(n int, artist, genre string) []models.SongDoc {
	out := make([]models.SongDoc, 0, n)
	for i := range n {
		out = append(out, l.song(fmt.Sprintf("%s %d", artist, i), artist, genre))
	}
	return out
}

func (l *library) user(id int64, playlists ...[]models.SongDoc) {
	l.t.Helper()
	doc := models.UserDoc{UserID: id, Username: fmt.Sprintf("user%d", id), Playlists: []models.PlaylistDoc{}}
	for i, songs := range playlists {
		p := models.PlaylistDoc{PlaylistID: int64(i + 1), Name: fmt.Sprintf("p%d", i+1), Visibility: models.Public, Songs: []models.SongEntry{}}
		for _, s := range songs {
			p.Songs = append(p.Songs, models.SongEntry{
				SongID: s.SongID, Title: s.Title, GenreName: s.GenreName, ArtistName: s.ArtistName, AlbumTitle: s.AlbumTitle,
			})
		}
		doc.Playlists = append(doc.Playlists, p)
	}
	require.NoError(l.t, l.idx.UpsertUser(context.Background(), doc))
}

func ids(songs []models.SongDoc) []int64 {
	out := make([]int64, 0, len(songs))
	for _, s := range songs {
		out = append(out, s.SongID)
	}
	return out
}

func TestRecommendHistory(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)

	pixies := lib.songs(6, "Pixies", "Rock")
	miles := lib.songs(6, "Miles Davis", "Jazz")
	bjork := lib.songs(6, "Bjork", "Electronic")
	lib.songs(6, "Slayer", "Metal")
	lib.user(1, []models.SongDoc{pixies[0], miles[0]}, []models.SongDoc{bjork[0], pixies[1]})

	engine := New(lib.idx, Options{})

	t.Run("quota per pair", func(t *testing.T) {
		res, err := engine.Recommend(ctx, Request{UserID: 1, Size: 10})
		require.NoError(t, err)
		assert.Equal(t, HasHistory, res.Path)

		perPair := map[string]int{}
		for _, s := range res.Songs {
			perPair[s.ArtistName+"/"+s.GenreName]++
		}
		assert.Equal(t, map[string]int{"Pixies/Rock": 3, "Miles Davis/Jazz": 3, "Bjork/Electronic": 3}, perPair)

		got := ids(res.Songs)
		assert.Len(t, got, 9)
		slices.Sort(got)
		assert.Equal(t, len(got), len(slices.Compact(got)), "no duplicates")
	})

	t.Run("seeds are never recommended", func(t *testing.T) {
		res, err := engine.Recommend(ctx, Request{UserID: 1, Size: 30})
		require.NoError(t, err)
		for _, seed := range []int64{pixies[0].SongID, pixies[1].SongID, miles[0].SongID, bjork[0].SongID} {
			assert.NotContains(t, ids(res.Songs), seed)
		}
		assert.Len(t, res.Songs, 4+5+5)
	})

	t.Run("filter narrows the seeds and the pairs", func(t *testing.T) {
		f, err := models.ParseFilter("genre_name", "Jazz")
		require.NoError(t, err)

		res, err := engine.Recommend(ctx, Request{UserID: 1, Size: 4, Filter: f})
		require.NoError(t, err)
		require.Len(t, res.Songs, 4)
		for _, s := range res.Songs {
			assert.Equal(t, "Miles Davis", s.ArtistName)
		}
	})

	t.Run("size smaller than pair count", func(t *testing.T) {
		res, err := engine.Recommend(ctx, Request{UserID: 1, Size: 2})
		require.NoError(t, err)
		assert.Empty(t, res.Songs)
	})

	t.Run("filter excludes every seed", func(t *testing.T) {
		f, err := models.ParseFilter("artist_name", "Slayer")
		require.NoError(t, err)

		_, err = engine.Recommend(ctx, Request{UserID: 1, Filter: f})
		assert.ErrorIs(t, err, shared.ErrNoSongsToRecommend)
	})

	t.Run("sort by recommendation count inside buckets", func(t *testing.T) {
		top := miles[4]
		top.RecommendationCount = 9
		require.NoError(t, lib.idx.UpsertSong(ctx, top))

		f, _ := models.ParseFilter("genre_name", "Jazz")
		res, err := engine.Recommend(ctx, Request{UserID: 1, Size: 1, Filter: f, Sort: models.SortRecommendationCount})
		require.NoError(t, err)
		require.Len(t, res.Songs, 1)
		assert.Equal(t, top.SongID, res.Songs[0].SongID)
	})
}

func TestRecommendColdStart(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)

	lib.songs(4, "Pixies", "Rock")
	lib.songs(3, "Breeders", "Rock")
	lib.songs(3, "Miles Davis", "Jazz")
	lib.song("Lonely", "Nobody", "Polka")
	lib.user(1)
	lib.user(2, []models.SongDoc{})

	var seed int64
	engine := New(lib.idx, Options{
		MinGenreSongs:  3,
		PopularGenres:  1,
		PopularArtists: 2,
		Seed:           func() int64 { seed++; return seed },
	})

	n, err := engine.Neighborhood(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Rock"}, n.Genres)
	assert.Equal(t, []string{"Pixies", "Breeders"}, n.Artists)

	t.Run("every song matches both popular clauses", func(t *testing.T) {
		for _, user := range []int64{1, 2} {
			res, err := engine.Recommend(ctx, Request{UserID: user, Size: 5})
			require.NoError(t, err)
			assert.Equal(t, NoHistory, res.Path)
			assert.LessOrEqual(t, len(res.Songs), 5)
			for _, s := range res.Songs {
				assert.Contains(t, n.Genres, s.GenreName)
				assert.Contains(t, n.Artists, s.ArtistName)
			}
		}
	})

	t.Run("draws vary between calls", func(t *testing.T) {
		orders := map[string]bool{}
		for range 20 {
			res, err := engine.Recommend(ctx, Request{UserID: 1, Size: 7})
			require.NoError(t, err)
			require.Len(t, res.Songs, 7)
			orders[fmt.Sprint(ids(res.Songs))] = true
		}
		assert.Greater(t, len(orders), 1)
	})

	t.Run("filter applies after the draw", func(t *testing.T) {
		f, _ := models.ParseFilter("artist_name", "Breeders")
		res, err := engine.Recommend(ctx, Request{UserID: 1, Size: 7, Filter: f})
		require.NoError(t, err)
		assert.Len(t, res.Songs, 3)
		for _, s := range res.Songs {
			assert.True(t, strings.HasPrefix(s.Title, "Breeders"))
		}
	})
}

func TestNeighborhoodCache(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	lib.songs(2, "Pixies", "Rock")

	cached := New(lib.idx, Options{MinGenreSongs: 1, NeighborhoodTTL: time.Minute})
	uncached := New(lib.idx, Options{MinGenreSongs: 1})

	_, err := cached.Neighborhood(ctx)
	require.NoError(t, err)

	lib.songs(3, "Miles Davis", "Jazz")

	n, err := cached.Neighborhood(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Rock"}, n.Genres)

	n, err = uncached.Neighborhood(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Jazz", "Rock"}, n.Genres)

	cached.Invalidate()
	n, err = cached.Neighborhood(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Jazz", "Rock"}, n.Genres)
}

func TestRecommendUnknownUser(t *testing.T) {
	engine := New(newLibrary(t).idx, Options{})
	_, err := engine.Recommend(context.Background(), Request{UserID: 42})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
