// Package models defines the catalog entities and the denormalized search documents for tunedex.
//
// The package contains two categories of types:
//
// 1. Catalog entities: normalized rows owned by the catalog store
//   - [User] : account with a credential hash, owns playlists
//   - [Song] : track referencing one [Artist], [Album] and [Genre]
//   - [Playlist] : ordered list of song ids with a [Visibility]
//   - [Rating] : one 1..5 score per (user, song)
//   - [Share] : append-only recommendation event aimed at a [TargetType]
//
// 2. Documents: denormalized projections owned by the document index
//   - [SongDoc] : one per complete song, keyed by song id
//   - [UserDoc] : one per user with nested [PlaylistDoc] and [SongEntry] lists
//
// Documents are never edited by hand. The projector derives them from catalog rows.
//
// [Filter] and [SortField] are the closed vocabularies accepted by the recommendation engine.
package models
