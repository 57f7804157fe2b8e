// package models defines the data model for the tunedex catalog and search index
package models

import (
	"fmt"
	"strings"
	"time"
)

// Model defines the base interface for catalog entities that can be validated before persistence.
type Model interface {
	Validate() error // Validate checks if the model's data is valid and returns an error if not
}

// Visibility of a playlist.
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// ParseVisibility maps "public"/"private" (case-insensitive) to a [Visibility].
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(strings.ToLower(strings.TrimSpace(s))) {
	case Public:
		return Public, nil
	case Private:
		return Private, nil
	default:
		return "", fmt.Errorf("unknown visibility %q", s)
	}
}

// TargetType is the kind of catalog entity a [Share] points at.
type TargetType string

const (
	TargetSong   TargetType = "song"
	TargetArtist TargetType = "artist"
	TargetAlbum  TargetType = "album"
	TargetGenre  TargetType = "genre"
)

// ParseTargetType maps a share target name to a [TargetType].
func ParseTargetType(s string) (TargetType, error) {
	switch TargetType(strings.ToLower(strings.TrimSpace(s))) {
	case TargetSong:
		return TargetSong, nil
	case TargetArtist:
		return TargetArtist, nil
	case TargetAlbum:
		return TargetAlbum, nil
	case TargetGenre:
		return TargetGenre, nil
	default:
		return "", fmt.Errorf("unknown share target %q", s)
	}
}

// User is an account owning playlists.
type User struct {
	ID             int64
	Username       string
	CredentialHash string
	CreatedAt      time.Time
	DeletedAt      *time.Time
}

func (u *User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

// Artist is reference data.
type Artist struct {
	ID   int64
	Name string
}

// Album is reference data owned by an artist.
type Album struct {
	ID       int64
	Title    string
	ArtistID int64
}

// Genre is reference data.
type Genre struct {
	ID   int64
	Name string
}

// Song references its artist, album and genre by id. Any of the references may dangle.
type Song struct {
	ID                  int64
	Title               string
	ArtistID            int64
	AlbumID             int64
	GenreID             int64
	RecommendationCount int
}

func (s *Song) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("song title is required")
	}
	if s.RecommendationCount < 0 {
		return fmt.Errorf("recommendation count must be >= 0")
	}
	return nil
}

// SongDetail is a song joined with its artist, album and genre names.
type SongDetail struct {
	Song
	ArtistName string
	AlbumTitle string
	GenreName  string
}

// Playlist holds song ids in insertion order.
type Playlist struct {
	ID         int64
	Name       string
	OwnerID    int64
	SongIDs    []int64
	Visibility Visibility
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

func (p *Playlist) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("playlist name is required")
	}
	if p.OwnerID == 0 {
		return fmt.Errorf("playlist owner is required")
	}
	if _, err := ParseVisibility(string(p.Visibility)); err != nil {
		return err
	}
	return nil
}

// Rating is a single user's 1..5 score for a song.
type Rating struct {
	UserID int64
	SongID int64
	Value  int
}

const (
	MinRating = 1
	MaxRating = 5
)

func (r *Rating) Validate() error {
	if r.Value < MinRating || r.Value > MaxRating {
		return fmt.Errorf("rating must be between %d and %d, got %d", MinRating, MaxRating, r.Value)
	}
	return nil
}

// Share is an immutable recommendation event.
type Share struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	TargetType TargetType
	TargetID   int64
	CreatedAt  time.Time
}

func (s *Share) Validate() error {
	if _, err := ParseTargetType(string(s.TargetType)); err != nil {
		return err
	}
	if s.TargetID == 0 {
		return fmt.Errorf("share target id is required")
	}
	return nil
}
