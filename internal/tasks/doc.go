// Package tasks is the mutation layer of the catalog: every write that can change an index document goes through it.
//
// # Mutations
//
// [Library] writes catalog changes and their outbox entries in one transaction, commits, then
// dispatches the entries synchronously through [hooks.Dispatcher] so the next read sees the write:
//
//   - [Library.RateSong] : upsert a (user, song) rating, refresh the song's rating
//   - [Library.SavePlaylist] : create or replace a playlist by (owner, name)
//   - [Library.EditPlaylist] : add or remove songs in an existing playlist
//   - [Library.DeletePlaylist] : soft-delete a playlist
//   - [Library.AutoPlaylist] : build a playlist from artist × genre matches in the index
//   - [Library.RecordShare] : append a share and bump recommendation counts under the target
//   - [Library.AddSong], [Library.AddUser], [Library.DeleteUser] : catalog entry
//
// An index failure after commit never undoes the catalog write. It is reported on [Outcome.IndexErr]
// and the outbox keeps the entries for a later drain.
//
// # Rebuild
//
// [Library.Rebuild] re-projects every song and user through a rate-limited worker pool and then
// drains the outbox.
//
// # Progress Reporting
//
// Long-running operations report [ProgressUpdate] values on a caller-supplied channel.
// Updates use select with default so a slow reader never blocks the work.
package tasks
