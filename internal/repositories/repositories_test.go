package repositories

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

// setupTestDB creates a migrated SQLite database in a temp directory
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// seedSong creates artist, album, genre and song rows in one go
func seedSong(t *testing.T, s *Session, title, artist, album, genre string) *models.Song {
	t.Helper()
	ctx := context.Background()

	ar, err := s.Reference.Artist(ctx, artist)
	if err != nil {
		t.Fatalf("failed to create artist: %v", err)
	}
	al, err := s.Reference.Album(ctx, album, ar.ID)
	if err != nil {
		t.Fatalf("failed to create album: %v", err)
	}
	g, err := s.Reference.Genre(ctx, genre)
	if err != nil {
		t.Fatalf("failed to create genre: %v", err)
	}

	song := &models.Song{Title: title, ArtistID: ar.ID, AlbumID: al.ID, GenreID: g.ID}
	if err := s.Songs.Create(ctx, song); err != nil {
		t.Fatalf("failed to create song: %v", err)
	}
	return song
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create and Get", func(t *testing.T) {
		s := NewSession(setupTestDB(t))
		user := &models.User{Username: "ana", CredentialHash: "h"}

		if err := s.Users.Create(ctx, user); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
		if user.ID == 0 {
			t.Fatal("user ID should be set after creation")
		}

		got, err := s.Users.Get(ctx, user.ID)
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if got.Username != "ana" || got.CredentialHash != "h" {
			t.Errorf("unexpected user: %+v", got)
		}
	})

	t.Run("Create validates", func(t *testing.T) {
		s := NewSession(setupTestDB(t))
		err := s.Users.Create(ctx, &models.User{})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Delete hides user", func(t *testing.T) {
		s := NewSession(setupTestDB(t))
		user := &models.User{Username: "bo"}
		if err := s.Users.Create(ctx, user); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		if err := s.Users.Delete(ctx, user.ID); err != nil {
			t.Fatalf("failed to delete user: %v", err)
		}
		if _, err := s.Users.Get(ctx, user.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := s.Users.Delete(ctx, user.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}

		users, err := s.Users.List(ctx)
		if err != nil {
			t.Fatalf("failed to list users: %v", err)
		}
		if len(users) != 0 {
			t.Errorf("expected no live users, got %d", len(users))
		}
	})

	t.Run("GetByUsername", func(t *testing.T) {
		s := NewSession(setupTestDB(t))
		if err := s.Users.Create(ctx, &models.User{Username: "cy"}); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
		if _, err := s.Users.GetByUsername(ctx, "cy"); err != nil {
			t.Errorf("expected user, got %v", err)
		}
		if _, err := s.Users.GetByUsername(ctx, "nobody"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSongRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Row joins relations and mean rating", func(t *testing.T) {
		db := setupTestDB(t)
		s := NewSession(db)
		song := seedSong(t, s, "Blue", "Joni", "Blue", "Folk")

		for i, v := range []int{4, 5} {
			user := &models.User{Username: []string{"a", "b"}[i]}
			if err := s.Users.Create(ctx, user); err != nil {
				t.Fatalf("failed to create user: %v", err)
			}
			if err := s.Ratings.Upsert(ctx, &models.Rating{UserID: user.ID, SongID: song.ID, Value: v}); err != nil {
				t.Fatalf("failed to rate: %v", err)
			}
		}

		row, err := s.Songs.Row(ctx, song.ID)
		if err != nil {
			t.Fatalf("failed to get row: %v", err)
		}
		if !row.Complete() {
			t.Fatalf("expected complete row, missing %v", row.Missing)
		}
		if row.ArtistName != "Joni" || row.AlbumTitle != "Blue" || row.GenreName != "Folk" {
			t.Errorf("unexpected relations: %+v", row.SongDetail)
		}
		if row.Rating != 4.5 {
			t.Errorf("expected mean 4.5, got %v", row.Rating)
		}
	})

	t.Run("Row reports missing relations", func(t *testing.T) {
		s := NewSession(setupTestDB(t))
		song := &models.Song{Title: "Orphan", ArtistID: 99, AlbumID: 98, GenreID: 97}
		if err := s.Songs.Create(ctx, song); err != nil {
			t.Fatalf("failed to create song: %v", err)
		}

		row, err := s.Songs.Row(ctx, song.ID)
		if err != nil {
			t.Fatalf("failed to get row: %v", err)
		}
		if row.Complete() {
			t.Fatal("expected incomplete row")
		}
		if !errors.Is(row.Err(), shared.ErrIncompleteRelation) {
			t.Errorf("expected ErrIncompleteRelation, got %v", row.Err())
		}
		if len(row.Missing) != 3 {
			t.Errorf("expected 3 missing relations, got %v", row.Missing)
		}
	})

	t.Run("Row of unknown song", func(t *testing.T) {
		s := NewSession(setupTestDB(t))
		if _, err := s.Songs.Row(ctx, 42); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("IncrementRecommendations by genre", func(t *testing.T) {
		s := NewSession(setupTestDB(t))
		a := seedSong(t, s, "One", "A", "X", "Rock")
		b := seedSong(t, s, "Two", "B", "Y", "Rock")
		c := seedSong(t, s, "Three", "C", "Z", "Jazz")

		n, err := s.Songs.IncrementRecommendations(ctx, models.TargetGenre, a.GenreID)
		if err != nil {
			t.Fatalf("failed to increment: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 songs changed, got %d", n)
		}

		for id, want := range map[int64]int{a.ID: 1, b.ID: 1, c.ID: 0} {
			got, err := s.Songs.RecommendationCount(ctx, id)
			if err != nil {
				t.Fatalf("failed to read count: %v", err)
			}
			if got != want {
				t.Errorf("song %d: expected %d, got %d", id, want, got)
			}
		}

		ids, err := s.Songs.IDsForTarget(ctx, models.TargetGenre, a.GenreID)
		if err != nil {
			t.Fatalf("failed to list target songs: %v", err)
		}
		if len(ids) != 2 || ids[0] != a.ID || ids[1] != b.ID {
			t.Errorf("unexpected target songs: %v", ids)
		}
	})

	t.Run("IDsByTitles matches every song with a listed title", func(t *testing.T) {
		s := NewSession(setupTestDB(t))
		a := seedSong(t, s, "One", "A", "X", "Rock")
		b := seedSong(t, s, "Two", "A", "X", "Rock")
		seedSong(t, s, "Three", "A", "X", "Rock")
		c := seedSong(t, s, "Two", "B", "Y", "Jazz")

		ids, err := s.Songs.IDsByTitles(ctx, []string{"Two", "Nope", "One"})
		if err != nil {
			t.Fatalf("failed to resolve titles: %v", err)
		}
		want := []int64{a.ID, b.ID, c.ID}
		if len(ids) != len(want) {
			t.Fatalf("expected %v, got %v", want, ids)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Errorf("position %d: expected %d, got %d", i, want[i], ids[i])
			}
		}
	})

	t.Run("invalid target", func(t *testing.T) {
		s := NewSession(setupTestDB(t))
		if _, err := s.Songs.IDsForTarget(ctx, models.TargetType("label"), 1); !errors.Is(err, shared.ErrInvalidTarget) {
			t.Errorf("expected ErrInvalidTarget, got %v", err)
		}
	})
}

func TestReferenceRepository(t *testing.T) {
	ctx := context.Background()
	s := NewSession(setupTestDB(t))

	first, err := s.Reference.Artist(ctx, "Nina")
	if err != nil {
		t.Fatalf("failed to create artist: %v", err)
	}
	second, err := s.Reference.Artist(ctx, "Nina")
	if err != nil {
		t.Fatalf("failed to find artist: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected find-or-create to reuse id %d, got %d", first.ID, second.ID)
	}

	ok, err := s.Reference.Exists(ctx, models.TargetArtist, first.ID)
	if err != nil || !ok {
		t.Errorf("expected artist to exist, got %v %v", ok, err)
	}
	ok, err = s.Reference.Exists(ctx, models.TargetAlbum, 12345)
	if err != nil || ok {
		t.Errorf("expected album to be absent, got %v %v", ok, err)
	}
}

func TestPlaylistRepository(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Session, *models.User) {
		s := NewSession(setupTestDB(t))
		user := &models.User{Username: "pl"}
		if err := s.Users.Create(ctx, user); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
		return s, user
	}

	t.Run("Create keeps song order", func(t *testing.T) {
		s, user := setup(t)
		p := &models.Playlist{Name: "mix", OwnerID: user.ID, SongIDs: []int64{3, 1, 2}}
		if err := s.Playlists.Create(ctx, p); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if p.Visibility != models.Public {
			t.Errorf("expected default visibility public, got %s", p.Visibility)
		}

		got, err := s.Playlists.GetByName(ctx, user.ID, "mix")
		if err != nil {
			t.Fatalf("failed to get playlist: %v", err)
		}
		want := []int64{3, 1, 2}
		if len(got.SongIDs) != len(want) {
			t.Fatalf("expected %v, got %v", want, got.SongIDs)
		}
		for i := range want {
			if got.SongIDs[i] != want[i] {
				t.Errorf("position %d: expected %d, got %d", i, want[i], got.SongIDs[i])
			}
		}
	})

	t.Run("Update and Delete", func(t *testing.T) {
		s, user := setup(t)
		p := &models.Playlist{Name: "mix", OwnerID: user.ID}
		if err := s.Playlists.Create(ctx, p); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}

		p.SongIDs = []int64{7}
		p.Visibility = models.Private
		if err := s.Playlists.Update(ctx, p); err != nil {
			t.Fatalf("failed to update playlist: %v", err)
		}

		got, err := s.Playlists.Get(ctx, p.ID)
		if err != nil {
			t.Fatalf("failed to get playlist: %v", err)
		}
		if got.Visibility != models.Private || len(got.SongIDs) != 1 {
			t.Errorf("update not persisted: %+v", got)
		}

		if err := s.Playlists.Delete(ctx, p.ID); err != nil {
			t.Fatalf("failed to delete playlist: %v", err)
		}
		if _, err := s.Playlists.Get(ctx, p.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}

		// Name is free again once the old playlist is soft-deleted.
		again := &models.Playlist{Name: "mix", OwnerID: user.ID}
		if err := s.Playlists.Create(ctx, again); err != nil {
			t.Errorf("expected name reuse after delete, got %v", err)
		}
	})

	t.Run("ListByOwner and OwnersOfSong", func(t *testing.T) {
		s, user := setup(t)
		for _, name := range []string{"a", "b"} {
			p := &models.Playlist{Name: name, OwnerID: user.ID, SongIDs: []int64{5}}
			if err := s.Playlists.Create(ctx, p); err != nil {
				t.Fatalf("failed to create playlist: %v", err)
			}
		}

		lists, err := s.Playlists.ListByOwner(ctx, user.ID)
		if err != nil {
			t.Fatalf("failed to list playlists: %v", err)
		}
		if len(lists) != 2 || lists[0].Name != "a" {
			t.Errorf("unexpected playlists: %+v", lists)
		}

		owners, err := s.Playlists.OwnersOfSong(ctx, 5)
		if err != nil {
			t.Fatalf("failed to list owners: %v", err)
		}
		if len(owners) != 1 || owners[0] != user.ID {
			t.Errorf("expected [%d], got %v", user.ID, owners)
		}
	})
}

func TestRatingRepository(t *testing.T) {
	ctx := context.Background()
	s := NewSession(setupTestDB(t))
	song := seedSong(t, s, "Song", "A", "B", "C")

	mean, err := s.Ratings.Mean(ctx, song.ID)
	if err != nil {
		t.Fatalf("failed to compute mean: %v", err)
	}
	if mean != 0 {
		t.Errorf("expected 0 for unrated song, got %v", mean)
	}

	user := &models.User{Username: "r"}
	if err := s.Users.Create(ctx, user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	for _, v := range []int{2, 5} {
		if err := s.Ratings.Upsert(ctx, &models.Rating{UserID: user.ID, SongID: song.ID, Value: v}); err != nil {
			t.Fatalf("failed to rate: %v", err)
		}
	}

	mean, err = s.Ratings.Mean(ctx, song.ID)
	if err != nil {
		t.Fatalf("failed to compute mean: %v", err)
	}
	if mean != 5 {
		t.Errorf("expected re-rating to replace the value, got mean %v", mean)
	}

	if err := s.Ratings.Upsert(ctx, &models.Rating{UserID: user.ID, SongID: song.ID, Value: 6}); !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestShareRepository(t *testing.T) {
	ctx := context.Background()
	s := NewSession(setupTestDB(t))

	share := &models.Share{SenderID: 1, ReceiverID: 2, TargetType: models.TargetGenre, TargetID: 3}
	if err := s.Shares.Create(ctx, share); err != nil {
		t.Fatalf("failed to create share: %v", err)
	}

	shares, err := s.Shares.List(ctx)
	if err != nil {
		t.Fatalf("failed to list shares: %v", err)
	}
	if len(shares) != 1 || shares[0].TargetType != models.TargetGenre || shares[0].ID != share.ID {
		t.Errorf("unexpected shares: %+v", shares)
	}
}

func TestOutboxRepository(t *testing.T) {
	ctx := context.Background()
	s := NewSession(setupTestDB(t))

	a := models.SongChange(1, models.ChangeRating)
	b := models.UserChange(2)
	if err := s.Outbox.Enqueue(ctx, &a, &b); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}
	if a.ID == "" || b.ID == "" {
		t.Fatal("expected ids to be assigned")
	}

	pending, err := s.Outbox.Pending(ctx, 0)
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}

	if err := s.Outbox.MarkFailed(ctx, errors.New("index down"), a.ID); err != nil {
		t.Fatalf("failed to mark failed: %v", err)
	}
	if err := s.Outbox.MarkProcessed(ctx, b.ID); err != nil {
		t.Fatalf("failed to mark processed: %v", err)
	}

	pending, err = s.Outbox.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Fatalf("expected only %s pending, got %+v", a.ID, pending)
	}
	if pending[0].Attempts != 1 || pending[0].LastError != "index down" {
		t.Errorf("failure not recorded: %+v", pending[0])
	}

	n, err := s.Outbox.CountPending(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pending, got %d", n)
	}
}

func TestCatalogTx(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(setupTestDB(t), CatalogOptions{})

	boom := errors.New("boom")
	err := catalog.Tx(ctx, func(s *Session) error {
		if err := s.Users.Create(ctx, &models.User{Username: "rolled-back"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	err = catalog.Session(ctx, func(s *Session) error {
		_, err := s.Users.GetByUsername(ctx, "rolled-back")
		return err
	})
	if !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected rollback to discard the user, got %v", err)
	}
}

func TestCatalogRead(t *testing.T) {
	ctx := context.Background()
	policy := shared.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	catalog := NewCatalog(setupTestDB(t), CatalogOptions{Policy: policy})

	if err := catalog.Tx(ctx, func(s *Session) error {
		return s.Users.Create(ctx, &models.User{Username: "ana", CredentialHash: "h"})
	}); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	t.Run("transient failures are retried", func(t *testing.T) {
		attempts := 0
		var users []*models.User
		err := catalog.Read(ctx, func(s *Session) (err error) {
			attempts++
			if attempts < 3 {
				return errors.New("database is locked")
			}
			users, err = s.Users.List(ctx)
			return err
		})
		if err != nil {
			t.Fatalf("expected read to recover, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", attempts)
		}
		if len(users) != 1 || users[0].Username != "ana" {
			t.Errorf("unexpected users %+v", users)
		}
	})

	t.Run("not found is returned at once", func(t *testing.T) {
		attempts := 0
		err := catalog.Read(ctx, func(s *Session) error {
			attempts++
			_, err := s.Users.GetByUsername(ctx, "nobody")
			return err
		})
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if attempts != 1 {
			t.Errorf("expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("gives up after the policy", func(t *testing.T) {
		attempts := 0
		ioErr := errors.New("disk I/O error")
		err := catalog.Read(ctx, func(*Session) error {
			attempts++
			return ioErr
		})
		if !errors.Is(err, ioErr) {
			t.Fatalf("expected the last error, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", attempts)
		}
	})
}
