package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Catalog errors
	ErrNotFound           = fmt.Errorf("not found")
	ErrIncompleteRelation = fmt.Errorf("song has an unresolved artist, album or genre")
	ErrSongNotInPlaylist  = fmt.Errorf("song does not exist in the playlist")

	// Index errors
	ErrIndexUnavailable = fmt.Errorf("document index unavailable")

	// Recommendation errors
	ErrNoSongsToRecommend = fmt.Errorf("no songs to recommend from")
	ErrInvalidFilter      = fmt.Errorf("invalid filter")
	ErrInvalidSort        = fmt.Errorf("invalid sort field")
	ErrInvalidTarget      = fmt.Errorf("invalid share target")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
