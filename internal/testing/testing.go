// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertthunder/tunedex/internal/index"
	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/repositories"
	"github.com/desertthunder/tunedex/internal/shared"
)

// NewDatabasePath returns a catalog path inside a per-test temp directory
func NewDatabasePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "catalog.db")
}

// NewCatalog opens a migrated catalog in a temp directory, closed on cleanup
func NewCatalog(t *testing.T) *repositories.Catalog {
	t.Helper()

	db, err := shared.NewDatabase(shared.DSN(NewDatabasePath(t), 5000))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return repositories.NewCatalog(db, repositories.CatalogOptions{})
}

// NewIndex opens an empty index in a temp directory, closed on cleanup
func NewIndex(t *testing.T) *index.SQLite {
	t.Helper()

	idx, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("failed to open test index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

// Seed writes catalog fixtures directly, bypassing the outbox.
type Seed struct {
	t       *testing.T
	catalog *repositories.Catalog
}

// NewSeed creates a [Seed] over catalog
func NewSeed(t *testing.T, catalog *repositories.Catalog) *Seed {
	return &Seed{t: t, catalog: catalog}
}

func (s *Seed) tx(fn func(ctx context.Context, r *repositories.Session) error) {
	s.t.Helper()
	ctx := context.Background()
	if err := s.catalog.Tx(ctx, func(r *repositories.Session) error { return fn(ctx, r) }); err != nil {
		s.t.Fatalf("seed failed: %v", err)
	}
}

// User creates a user and returns its id
func (s *Seed) User(username string) int64 {
	s.t.Helper()
	user := &models.User{Username: username, CredentialHash: "hash:" + username}
	s.tx(func(ctx context.Context, r *repositories.Session) error {
		return r.Users.Create(ctx, user)
	})
	return user.ID
}

// Song creates a song, finding or creating its artist, album and genre by name
func (s *Seed) Song(title, artist, album, genre string) int64 {
	s.t.Helper()
	var id int64
	s.tx(func(ctx context.Context, r *repositories.Session) error {
		ar, err := r.Reference.Artist(ctx, artist)
		if err != nil {
			return err
		}
		al, err := r.Reference.Album(ctx, album, ar.ID)
		if err != nil {
			return err
		}
		g, err := r.Reference.Genre(ctx, genre)
		if err != nil {
			return err
		}
		song := &models.Song{Title: title, ArtistID: ar.ID, AlbumID: al.ID, GenreID: g.ID}
		if err := r.Songs.Create(ctx, song); err != nil {
			return err
		}
		id = song.ID
		return nil
	})
	return id
}

// OrphanSong creates a song whose artist, album and genre ids resolve to nothing
func (s *Seed) OrphanSong(title string) int64 {
	s.t.Helper()
	song := &models.Song{Title: title, ArtistID: 1 << 40, AlbumID: 1 << 40, GenreID: 1 << 40}
	s.tx(func(ctx context.Context, r *repositories.Session) error {
		return r.Songs.Create(ctx, song)
	})
	return song.ID
}

// Playlist creates a public playlist holding songIDs in order
func (s *Seed) Playlist(ownerID int64, name string, songIDs ...int64) int64 {
	s.t.Helper()
	if songIDs == nil {
		songIDs = []int64{}
	}
	p := &models.Playlist{Name: name, OwnerID: ownerID, SongIDs: songIDs, Visibility: models.Public}
	s.tx(func(ctx context.Context, r *repositories.Session) error {
		return r.Playlists.Create(ctx, p)
	})
	return p.ID
}

// Rate stores a rating
func (s *Seed) Rate(userID, songID int64, value int) {
	s.t.Helper()
	s.tx(func(ctx context.Context, r *repositories.Session) error {
		return r.Ratings.Upsert(ctx, &models.Rating{UserID: userID, SongID: songID, Value: value})
	})
}

// Artist returns the id of an artist by name, creating it if needed
func (s *Seed) Artist(name string) int64 {
	s.t.Helper()
	var id int64
	s.tx(func(ctx context.Context, r *repositories.Session) error {
		a, err := r.Reference.Artist(ctx, name)
		if err != nil {
			return err
		}
		id = a.ID
		return nil
	})
	return id
}

// Genre returns the id of a genre by name, creating it if needed
func (s *Seed) Genre(name string) int64 {
	s.t.Helper()
	var id int64
	s.tx(func(ctx context.Context, r *repositories.Session) error {
		g, err := r.Reference.Genre(ctx, name)
		if err != nil {
			return err
		}
		id = g.ID
		return nil
	})
	return id
}

// RecommendationCount reads the stored counter of a song
func (s *Seed) RecommendationCount(songID int64) int {
	s.t.Helper()
	var n int
	s.tx(func(ctx context.Context, r *repositories.Session) (err error) {
		n, err = r.Songs.RecommendationCount(ctx, songID)
		return err
	})
	return n
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}
