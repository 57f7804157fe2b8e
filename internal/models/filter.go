package models

import (
	"fmt"
	"strings"

	"github.com/desertthunder/tunedex/internal/shared"
)

// FilterField enumerates the song attributes a caller may filter recommendations on.
type FilterField string

const (
	FieldTitle      FilterField = "title"
	FieldArtistName FilterField = "artist_name"
	FieldAlbumTitle FilterField = "album_title"
	FieldGenreName  FilterField = "genre_name"
)

// FilterFields lists every accepted [FilterField].
var FilterFields = []FilterField{FieldTitle, FieldArtistName, FieldAlbumTitle, FieldGenreName}

// Filter is an exact-match predicate on one [FilterField].
type Filter struct {
	Field FilterField
	Value string
}

// ParseFilter validates a (field, value) pair.
//
// Unknown fields fail with [shared.ErrInvalidFilter].
func ParseFilter(field, value string) (*Filter, error) {
	f := FilterField(strings.ToLower(strings.TrimSpace(field)))
	for _, known := range FilterFields {
		if f == known {
			return &Filter{Field: f, Value: value}, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown field %q (want one of title, artist_name, album_title, genre_name)", shared.ErrInvalidFilter, field)
}

// MatchDoc reports whether the song document satisfies the filter. A nil filter matches everything.
func (f *Filter) MatchDoc(d SongDoc) bool {
	if f == nil {
		return true
	}
	return f.Value == d.field(f.Field)
}

// MatchEntry reports whether the playlist entry satisfies the filter. A nil filter matches everything.
func (f *Filter) MatchEntry(e SongEntry) bool {
	if f == nil {
		return true
	}
	switch f.Field {
	case FieldTitle:
		return e.Title == f.Value
	case FieldArtistName:
		return e.ArtistName == f.Value
	case FieldAlbumTitle:
		return e.AlbumTitle == f.Value
	case FieldGenreName:
		return e.GenreName == f.Value
	}
	return false
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%s=%s", f.Field, f.Value)
}

func (d SongDoc) field(f FilterField) string {
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

// SortField orders candidate songs inside a recommendation bucket.
type SortField string

const (
	SortRelevance           SortField = "relevance"
	SortRating              SortField = "rating"
	SortRecommendationCount SortField = "recommendation_count"
)

// ParseSort accepts relevance, rating or recommendation_count. Empty means relevance.
func ParseSort(s string) (SortField, error) {
	switch SortField(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortRelevance:
		return SortRelevance, nil
	case SortRating:
		return SortRating, nil
	case SortRecommendationCount:
		return SortRecommendationCount, nil
	default:
		return "", fmt.Errorf("%w: %q", shared.ErrInvalidSort, s)
	}
}
