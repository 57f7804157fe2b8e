package models

import (
	"strconv"
	"time"
)

// ChangeKind names the document family an outbox entry refreshes.
type ChangeKind string

const (
	ChangeSong ChangeKind = "song"
	ChangeUser ChangeKind = "user"
)

// ChangeField narrows a song change to the fields that must be re-derived.
type ChangeField string

const (
	ChangeFull                ChangeField = "full"
	ChangeRating              ChangeField = "rating"
	ChangeRecommendationCount ChangeField = "recommendation_count"
)

// Change is one outbox entry: a catalog write whose projection has not been confirmed yet.
type Change struct {
	ID          string
	Kind        ChangeKind
	EntityID    int64
	Field       ChangeField
	CreatedAt   time.Time
	Attempts    int
	LastError   string
	ProcessedAt *time.Time
}

// Key identifies the projection work a change asks for. Changes with equal keys are redundant.
func (c Change) Key() string {
	return string(c.Kind) + ":" + string(c.Field) + ":" + strconv.FormatInt(c.EntityID, 10)
}

// SongChange builds a pending change for a song field.
func SongChange(songID int64, field ChangeField) Change {
	return Change{Kind: ChangeSong, EntityID: songID, Field: field}
}

// UserChange builds a pending full re-projection of a user.
func UserChange(userID int64) Change {
	return Change{Kind: ChangeUser, EntityID: userID, Field: ChangeFull}
}
