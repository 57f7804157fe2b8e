package models

// SongDoc is the searchable projection of a complete song.
type SongDoc struct {
	SongID              int64   `json:"song_id"`
	Title               string  `json:"title"`
	ArtistName          string  `json:"artist_name"`
	AlbumTitle          string  `json:"album_title"`
	GenreName           string  `json:"genre_name"`
	Rating              float64 `json:"rating"`
	RecommendationCount int     `json:"recommendation_count"`
}

// SongEntry is the nested song shape stored inside a [PlaylistDoc].
type SongEntry struct {
	SongID     int64  `json:"song_id"`
	Title      string `json:"title"`
	GenreName  string `json:"genre_name"`
	ArtistName string `json:"artist_name"`
	AlbumTitle string `json:"album_title"`
}

// PlaylistDoc is a playlist with its resolvable songs in playlist order.
type PlaylistDoc struct {
	PlaylistID int64       `json:"playlist_id"`
	Name       string      `json:"name"`
	Visibility Visibility  `json:"visibility"`
	Songs      []SongEntry `json:"songs"`
}

// UserDoc is the denormalized listening history of one user.
type UserDoc struct {
	UserID         int64         `json:"user_id"`
	Username       string        `json:"username"`
	CredentialHash string        `json:"credential_hash"`
	Playlists      []PlaylistDoc `json:"playlists"`
}

// NewSongDoc flattens a joined song row.
func NewSongDoc(d SongDetail, rating float64) SongDoc {
	return SongDoc{
		SongID:              d.ID,
		Title:               d.Title,
		ArtistName:          d.ArtistName,
		AlbumTitle:          d.AlbumTitle,
		GenreName:           d.GenreName,
		Rating:              rating,
		RecommendationCount: d.RecommendationCount,
	}
}

// NewSongEntry flattens a joined song row into a playlist entry.
func NewSongEntry(d SongDetail) SongEntry {
	return SongEntry{
		SongID:     d.ID,
		Title:      d.Title,
		GenreName:  d.GenreName,
		ArtistName: d.ArtistName,
		AlbumTitle: d.AlbumTitle,
	}
}

// HasHistory reports whether any playlist holds at least one song.
func (u *UserDoc) HasHistory() bool {
	for _, p := range u.Playlists {
		if len(p.Songs) > 0 {
			return true
		}
	}
	return false
}
