package projector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/tunedex/internal/index"
	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/repositories"
	"github.com/desertthunder/tunedex/internal/shared"
	tu "github.com/desertthunder/tunedex/internal/testing"
)

func indexAll() index.SearchRequest {
	return index.SearchRequest{}
}

func TestProjectAllSongs(t *testing.T) {
	ctx := context.Background()
	catalog := tu.NewCatalog(t)
	idx := tu.NewIndex(t)
	seed := tu.NewSeed(t, catalog)
	p := New(catalog, idx, Options{Workers: 2})

	a := seed.Song("Hey", "Pixies", "Doolittle", "Rock")
	b := seed.Song("So What", "Miles Davis", "Kind of Blue", "Jazz")
	orphan := seed.OrphanSong("Lost")
	u := seed.User("ana")
	seed.Rate(u, a, 3)

	report, err := p.ProjectAllSongs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Projected)
	assert.Equal(t, 1, report.Skipped)

	t.Run("complete songs are indexed with their rating", func(t *testing.T) {
		doc, err := idx.GetSong(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, models.SongDoc{
			SongID: a, Title: "Hey", ArtistName: "Pixies", AlbumTitle: "Doolittle", GenreName: "Rock", Rating: 3,
		}, *doc)

		doc, err = idx.GetSong(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, 0.0, doc.Rating)
	})

	t.Run("incomplete songs have no document", func(t *testing.T) {
		_, err := idx.GetSong(ctx, orphan)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("idempotent", func(t *testing.T) {
		before, err := idx.Search(ctx, indexAll())
		require.NoError(t, err)

		_, err = p.ProjectAllSongs(ctx)
		require.NoError(t, err)

		after, err := idx.Search(ctx, indexAll())
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestProjectSong(t *testing.T) {
	ctx := context.Background()
	catalog := tu.NewCatalog(t)
	idx := tu.NewIndex(t)
	seed := tu.NewSeed(t, catalog)
	p := New(catalog, idx, Options{})

	song := seed.Song("Hey", "Pixies", "Doolittle", "Rock")
	u := seed.User("ana")

	t.Run("missing document falls back to full projection", func(t *testing.T) {
		seed.Rate(u, song, 4)
		report, err := p.ProjectSong(ctx, song, models.ChangeRating)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Projected)

		doc, err := idx.GetSong(ctx, song)
		require.NoError(t, err)
		assert.Equal(t, 4.0, doc.Rating)
		assert.Equal(t, "Pixies", doc.ArtistName)
	})

	t.Run("first rating sets the mean exactly", func(t *testing.T) {
		fresh := seed.Song("Debaser", "Pixies", "Doolittle", "Rock")
		_, err := p.ProjectSongFull(ctx, fresh)
		require.NoError(t, err)

		seed.Rate(u, fresh, 5)
		_, err = p.ProjectSong(ctx, fresh, models.ChangeRating)
		require.NoError(t, err)

		doc, err := idx.GetSong(ctx, fresh)
		require.NoError(t, err)
		assert.Equal(t, 5.0, doc.Rating)
	})

	t.Run("recommendation count patch", func(t *testing.T) {
		err := catalog.Tx(ctx, func(s *repositories.Session) error {
			_, err := s.Songs.IncrementRecommendations(ctx, models.TargetSong, song)
			return err
		})
		require.NoError(t, err)

		_, err = p.ProjectSong(ctx, song, models.ChangeRecommendationCount)
		require.NoError(t, err)

		doc, err := idx.GetSong(ctx, song)
		require.NoError(t, err)
		assert.Equal(t, 1, doc.RecommendationCount)
		assert.Equal(t, 4.0, doc.Rating)
	})

	t.Run("absent song is removed", func(t *testing.T) {
		report, err := p.ProjectSongFull(ctx, 9999)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Deleted)
	})
}

func TestProjectUser(t *testing.T) {
	ctx := context.Background()
	catalog := tu.NewCatalog(t)
	idx := tu.NewIndex(t)
	seed := tu.NewSeed(t, catalog)
	p := New(catalog, idx, Options{Workers: 3})

	a := seed.Song("Hey", "Pixies", "Doolittle", "Rock")
	b := seed.Song("So What", "Miles Davis", "Kind of Blue", "Jazz")
	orphan := seed.OrphanSong("Lost")

	ana := seed.User("ana")
	seed.Playlist(ana, "mix", b, orphan, a)
	seed.Playlist(ana, "empty")
	bo := seed.User("bo")

	report, err := p.ProjectAllUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Projected)
	assert.Equal(t, 1, report.Skipped)

	t.Run("playlist order kept and unresolved entries skipped", func(t *testing.T) {
		doc, err := idx.GetUser(ctx, ana)
		require.NoError(t, err)
		require.Len(t, doc.Playlists, 2)

		mix := doc.Playlists[0]
		assert.Equal(t, "mix", mix.Name)
		require.Len(t, mix.Songs, 2)
		assert.Equal(t, b, mix.Songs[0].SongID)
		assert.Equal(t, "Jazz", mix.Songs[0].GenreName)
		assert.Equal(t, a, mix.Songs[1].SongID)

		assert.Empty(t, doc.Playlists[1].Songs)
		assert.True(t, doc.HasHistory())
	})

	t.Run("user without playlists has no history", func(t *testing.T) {
		doc, err := idx.GetUser(ctx, bo)
		require.NoError(t, err)
		assert.False(t, doc.HasHistory())
		assert.NotNil(t, doc.Playlists)
	})

	t.Run("idempotent", func(t *testing.T) {
		before, err := idx.GetUser(ctx, ana)
		require.NoError(t, err)
		_, err = p.ProjectAllUsers(ctx)
		require.NoError(t, err)
		after, err := idx.GetUser(ctx, ana)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("deleted user document is removed", func(t *testing.T) {
		err := catalog.Tx(ctx, func(s *repositories.Session) error {
			return s.Users.Delete(ctx, bo)
		})
		require.NoError(t, err)

		report, err := p.ProjectUser(ctx, bo)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Deleted)

		_, err = idx.GetUser(ctx, bo)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestPruneOrphans(t *testing.T) {
	ctx := context.Background()
	catalog := tu.NewCatalog(t)
	idx := tu.NewIndex(t)
	seed := tu.NewSeed(t, catalog)
	p := New(catalog, idx, Options{Workers: 2})

	a := seed.Song("Hey", "Pixies", "Doolittle", "Rock")
	ana := seed.User("ana")

	require.NoError(t, idx.UpsertSong(ctx, models.SongDoc{SongID: 999, Title: "Ghost", GenreName: "Rock"}))
	require.NoError(t, idx.UpsertUser(ctx, models.UserDoc{UserID: 777, Username: "ghost"}))

	t.Run("full song projection drops unknown ids", func(t *testing.T) {
		report, err := p.ProjectAllSongs(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Projected)
		assert.Equal(t, 1, report.Deleted)

		_, err = idx.GetSong(ctx, 999)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		_, err = idx.GetSong(ctx, a)
		assert.NoError(t, err)
	})

	t.Run("full user projection drops unknown ids", func(t *testing.T) {
		report, err := p.ProjectAllUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Projected)
		assert.Equal(t, 1, report.Deleted)

		ids, err := idx.DocumentIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{ana}, ids.Users)
	})

	t.Run("nothing to prune", func(t *testing.T) {
		n, err := p.PruneSongs(ctx, []int64{a})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
