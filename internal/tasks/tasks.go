package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tunedex/internal/hooks"
	"github.com/desertthunder/tunedex/internal/index"
	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/projector"
	"github.com/desertthunder/tunedex/internal/repositories"
	"github.com/desertthunder/tunedex/internal/shared"
)

// autoPlaylistPairSize bounds the index hits taken per artist × genre pair.
const autoPlaylistPairSize = 10

// Outcome reports what happened on the index side of a committed mutation.
type Outcome struct {
	Dispatch hooks.Result
	IndexErr error // non-nil when projection failed; the catalog write still stands
}

// Degraded reports whether the index may not reflect the mutation yet.
func (o Outcome) Degraded() bool { return o.IndexErr != nil }

// Library performs catalog mutations and keeps the index in step with them.
type Library struct {
	catalog   *repositories.Catalog
	index     index.Index
	projector *projector.Projector
	hooks     *hooks.Dispatcher
	onSongs   func()
	logger    *log.Logger
}

// Options configures a [Library].
type Options struct {
	Logger *log.Logger
	// SongsChanged runs after an operation that may add or remove song documents,
	// such as [Library.AddSong] and [Library.Rebuild]. Cached aggregates over songs hook in here.
	SongsChanged func()
}

// NewLibrary creates a [Library].
func NewLibrary(catalog *repositories.Catalog, idx index.Index, p *projector.Projector, d *hooks.Dispatcher, opts Options) *Library {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Library{
		catalog:   catalog,
		index:     idx,
		projector: p,
		hooks:     d,
		onSongs:   opts.SongsChanged,
		logger:    shared.WithLogger(opts.Logger, "component", "library"),
	}
}

func (l *Library) songsChanged() {
	if l.onSongs != nil {
		l.onSongs()
	}
}

// mutate runs fn in a transaction, then dispatches whatever changes fn enqueued.
func (l *Library) mutate(ctx context.Context, op string, fn func(s *repositories.Session) ([]*models.Change, error)) (Outcome, error) {
	var changes []*models.Change
	err := l.catalog.Tx(ctx, func(s *repositories.Session) error {
		var err error
		changes, err = fn(s)
		if err != nil {
			return err
		}
		return s.Outbox.Enqueue(ctx, changes...)
	})
	if err != nil {
		return Outcome{}, err
	}

	res, err := l.hooks.Dispatch(ctx, changes)
	if err != nil {
		l.logger.Warn("index is behind the catalog", "op", op, "error", err)
	}
	return Outcome{Dispatch: res, IndexErr: err}, nil
}

// RateSong stores a user's rating of a song and refreshes the song's mean rating.
func (l *Library) RateSong(ctx context.Context, userID, songID int64, value int) (Outcome, error) {
	return l.mutate(ctx, "rate", func(s *repositories.Session) ([]*models.Change, error) {
		if _, err := s.Users.Get(ctx, userID); err != nil {
			return nil, err
		}
		if _, err := s.Songs.Get(ctx, songID); err != nil {
			return nil, err
		}
		if err := s.Ratings.Upsert(ctx, &models.Rating{UserID: userID, SongID: songID, Value: value}); err != nil {
			return nil, err
		}

		change := models.SongChange(songID, models.ChangeRating)
		return []*models.Change{&change}, nil
	})
}

// SavePlaylistInput describes a playlist to create or replace.
//
// Titles resolve to every song carrying one of them; unknown titles are ignored. SongIDs must exist.
type SavePlaylistInput struct {
	OwnerID    int64
	Name       string
	Titles     []string
	SongIDs    []int64
	Visibility models.Visibility
}

// SavePlaylist creates the owner's playlist called Name, or replaces its songs and visibility if it exists.
func (l *Library) SavePlaylist(ctx context.Context, in SavePlaylistInput) (*models.Playlist, Outcome, error) {
	var saved *models.Playlist
	out, err := l.mutate(ctx, "save_playlist", func(s *repositories.Session) ([]*models.Change, error) {
		if _, err := s.Users.Get(ctx, in.OwnerID); err != nil {
			return nil, err
		}

		byTitle, err := s.Songs.IDsByTitles(ctx, in.Titles)
		if err != nil {
			return nil, err
		}
		for _, id := range in.SongIDs {
			if _, err := s.Songs.Get(ctx, id); err != nil {
				return nil, err
			}
		}

		saved, err = upsertPlaylist(ctx, s, in.OwnerID, in.Name, in.Visibility, dedupe(append(byTitle, in.SongIDs...)))
		if err != nil {
			return nil, err
		}

		change := models.UserChange(in.OwnerID)
		return []*models.Change{&change}, nil
	})
	return saved, out, err
}

// EditAction selects what [Library.EditPlaylist] does.
type EditAction string

const (
	EditAdd    EditAction = "add"
	EditRemove EditAction = "remove"
)

// ParseEditAction accepts "add" or "remove".
func ParseEditAction(s string) (EditAction, error) {
	switch EditAction(strings.ToLower(strings.TrimSpace(s))) {
	case EditAdd:
		return EditAdd, nil
	case EditRemove:
		return EditRemove, nil
	default:
		return "", fmt.Errorf("%w: action %q (want add or remove)", shared.ErrInvalidArgument, s)
	}
}

// EditPlaylistInput names songs to add to or remove from an existing playlist, by id or title.
type EditPlaylistInput struct {
	OwnerID int64
	Name    string
	Action  EditAction
	Titles  []string
	SongIDs []int64
}

// EditPlaylist adds songs that are not in the playlist yet, or removes songs from it.
//
// Removing a song the playlist does not hold fails with [shared.ErrSongNotInPlaylist] and changes nothing.
func (l *Library) EditPlaylist(ctx context.Context, in EditPlaylistInput) (*models.Playlist, Outcome, error) {
	var edited *models.Playlist
	out, err := l.mutate(ctx, "edit_playlist", func(s *repositories.Session) ([]*models.Change, error) {
		p, err := s.Playlists.GetByName(ctx, in.OwnerID, in.Name)
		if err != nil {
			return nil, err
		}

		byTitle, err := s.Songs.IDsByTitles(ctx, in.Titles)
		if err != nil {
			return nil, err
		}
		targets := dedupe(append(byTitle, in.SongIDs...))

		switch in.Action {
		case EditAdd:
			for _, id := range targets {
				if _, err := s.Songs.Get(ctx, id); err != nil {
					return nil, err
				}
				if !slices.Contains(p.SongIDs, id) {
					p.SongIDs = append(p.SongIDs, id)
				}
			}
		case EditRemove:
			for _, id := range targets {
				i := slices.Index(p.SongIDs, id)
				if i < 0 {
					return nil, fmt.Errorf("%w: song %d in %q", shared.ErrSongNotInPlaylist, id, p.Name)
				}
				p.SongIDs = slices.Delete(p.SongIDs, i, i+1)
			}
		default:
			return nil, fmt.Errorf("%w: action %q", shared.ErrInvalidArgument, in.Action)
		}

		if err := s.Playlists.Update(ctx, p); err != nil {
			return nil, err
		}
		edited = p

		change := models.UserChange(in.OwnerID)
		return []*models.Change{&change}, nil
	})
	return edited, out, err
}

// DeletePlaylist soft-deletes the owner's playlist called name.
func (l *Library) DeletePlaylist(ctx context.Context, ownerID int64, name string) (Outcome, error) {
	return l.mutate(ctx, "delete_playlist", func(s *repositories.Session) ([]*models.Change, error) {
		p, err := s.Playlists.GetByName(ctx, ownerID, name)
		if err != nil {
			return nil, err
		}
		if err := s.Playlists.Delete(ctx, p.ID); err != nil {
			return nil, err
		}

		change := models.UserChange(ownerID)
		return []*models.Change{&change}, nil
	})
}

// AutoPlaylistInput asks for a playlist of songs matching every artist × genre pair.
type AutoPlaylistInput struct {
	OwnerID    int64
	Name       string
	Visibility models.Visibility
	Artists    []string
	Genres     []string
}

// AutoPlaylist searches the index for each artist × genre pair, keeps unique song ids in pair order,
// and saves them as the owner's playlist called Name.
func (l *Library) AutoPlaylist(ctx context.Context, in AutoPlaylistInput) (*models.Playlist, Outcome, error) {
	var ids []int64
	for _, artist := range in.Artists {
		for _, genre := range in.Genres {
			hits, err := l.index.Search(ctx, index.SearchRequest{
				Query: index.Bool{Must: []index.Clause{
					index.Match{Field: index.FieldArtistName, Text: artist},
					index.Match{Field: index.FieldGenreName, Text: genre},
				}},
				Size: autoPlaylistPairSize,
			})
			if err != nil {
				return nil, Outcome{}, fmt.Errorf("search %s × %s: %w", artist, genre, err)
			}
			for _, h := range hits {
				ids = append(ids, h.Doc.SongID)
			}
		}
	}

	return l.SavePlaylist(ctx, SavePlaylistInput{
		OwnerID:    in.OwnerID,
		Name:       in.Name,
		SongIDs:    dedupe(ids),
		Visibility: in.Visibility,
	})
}

// ShareResult is a recorded share and the songs whose counters moved.
type ShareResult struct {
	Share   *models.Share
	SongIDs []int64
	Outcome Outcome
}

// RecordShare appends a share and increments recommendation_count on every song under the target.
//
// A missing target fails with [shared.ErrNotFound] and leaves every counter untouched. A target with
// no songs still records the share.
func (l *Library) RecordShare(ctx context.Context, senderID, receiverID int64, target models.TargetType, targetID int64) (*ShareResult, error) {
	result := &ShareResult{}
	out, err := l.mutate(ctx, "share", func(s *repositories.Session) ([]*models.Change, error) {
		ok, err := s.Reference.Exists(ctx, target, targetID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s %d", shared.ErrNotFound, target, targetID)
		}

		songIDs, err := s.Songs.IDsForTarget(ctx, target, targetID)
		if err != nil {
			return nil, err
		}
		if _, err := s.Songs.IncrementRecommendations(ctx, target, targetID); err != nil {
			return nil, err
		}

		share := &models.Share{SenderID: senderID, ReceiverID: receiverID, TargetType: target, TargetID: targetID}
		if err := s.Shares.Create(ctx, share); err != nil {
			return nil, err
		}
		result.Share = share
		result.SongIDs = songIDs

		changes := make([]*models.Change, 0, len(songIDs))
		for _, id := range songIDs {
			change := models.SongChange(id, models.ChangeRecommendationCount)
			changes = append(changes, &change)
		}
		return changes, nil
	})
	if err != nil {
		return nil, err
	}
	result.Outcome = out
	return result, nil
}

// AddSongInput names a song and its relations. Relations are found or created by name.
type AddSongInput struct {
	Title  string
	Artist string
	Album  string
	Genre  string
}

// AddSong inserts a song into the catalog and projects it.
func (l *Library) AddSong(ctx context.Context, in AddSongInput) (*models.Song, Outcome, error) {
	var song *models.Song
	out, err := l.mutate(ctx, "add_song", func(s *repositories.Session) ([]*models.Change, error) {
		artist, err := s.Reference.Artist(ctx, in.Artist)
		if err != nil {
			return nil, err
		}
		album, err := s.Reference.Album(ctx, in.Album, artist.ID)
		if err != nil {
			return nil, err
		}
		genre, err := s.Reference.Genre(ctx, in.Genre)
		if err != nil {
			return nil, err
		}

		song = &models.Song{Title: in.Title, ArtistID: artist.ID, AlbumID: album.ID, GenreID: genre.ID}
		if err := s.Songs.Create(ctx, song); err != nil {
			return nil, err
		}

		change := models.SongChange(song.ID, models.ChangeFull)
		return []*models.Change{&change}, nil
	})
	if err == nil {
		l.songsChanged()
	}
	return song, out, err
}

// AddUser inserts a user with an already-issued credential hash and projects an empty history.
func (l *Library) AddUser(ctx context.Context, username, credentialHash string) (*models.User, Outcome, error) {
	user := &models.User{Username: username, CredentialHash: credentialHash}
	out, err := l.mutate(ctx, "add_user", func(s *repositories.Session) ([]*models.Change, error) {
		if err := s.Users.Create(ctx, user); err != nil {
			return nil, err
		}
		change := models.UserChange(user.ID)
		return []*models.Change{&change}, nil
	})
	if err != nil {
		return nil, Outcome{}, err
	}
	return user, out, nil
}

// DeleteUser soft-deletes a user and removes their document.
func (l *Library) DeleteUser(ctx context.Context, userID int64) (Outcome, error) {
	return l.mutate(ctx, "delete_user", func(s *repositories.Session) ([]*models.Change, error) {
		if err := s.Users.Delete(ctx, userID); err != nil {
			return nil, err
		}
		change := models.UserChange(userID)
		return []*models.Change{&change}, nil
	})
}

// GetUserDoc returns the projected document of a user.
func (l *Library) GetUserDoc(ctx context.Context, userID int64) (*models.UserDoc, error) {
	return l.index.GetUser(ctx, userID)
}

// LookupUser resolves a user by username.
func (l *Library) LookupUser(ctx context.Context, username string) (*models.User, error) {
	var user *models.User
	err := l.catalog.Read(ctx, func(s *repositories.Session) (err error) {
		user, err = s.Users.GetByUsername(ctx, username)
		return err
	})
	return user, err
}

func upsertPlaylist(ctx context.Context, s *repositories.Session, ownerID int64, name string, vis models.Visibility, songIDs []int64) (*models.Playlist, error) {
	if vis == "" {
		vis = models.Public
	}

	existing, err := s.Playlists.GetByName(ctx, ownerID, name)
	switch {
	case err == nil:
		existing.SongIDs = songIDs
		existing.Visibility = vis
		if err := s.Playlists.Update(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case errors.Is(err, shared.ErrNotFound):
		p := &models.Playlist{Name: name, OwnerID: ownerID, SongIDs: songIDs, Visibility: vis}
		if err := s.Playlists.Create(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, err
	}
}

// dedupe keeps the first occurrence of every id. The result is never nil.
func dedupe(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
