// Package repositories implements the SQLite catalog store for all tunedex entities.
//
// Each repository wraps a [shared.DBTX], so the same code runs against the pool, a single
// acquired connection, or a transaction.
//
// Key Implementations:
//   - [UserRepository] : accounts with soft deletes
//   - [SongRepository] : songs, relation joins and recommendation counters
//   - [ReferenceRepository] : artists, albums and genres (find-or-create, existence checks)
//   - [PlaylistRepository] : playlists with ordered song id lists stored as JSON arrays
//   - [RatingRepository] : one rating per (user, song) and the live mean per song
//   - [ShareRepository] : append-only share events
//   - [OutboxRepository] : change queue between the catalog and the document index
//
// [Catalog] hands out a [Session] per operation: [Catalog.Session] pins one pooled connection,
// [Catalog.Tx] runs the callback inside a transaction. Both release on every exit path.
package repositories
