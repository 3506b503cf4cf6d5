// Package kvstore is a cache-backed personal note store. Each namespace is a
// Store: an in-memory mirror of a durable backend that serves every read,
// with all mutations serialized through one write section.
//
// Components:
//   - Backend: durable record storage (SQLite, Redis, a framed file, or bigcache for scratch use).
//   - Store: the cache and mutation coordinator. Writes go to the backend first,
//     then the cache is swapped and the version bumped.
//   - Search: fuzzy ranking over keys and tags, memory only.
//   - recent.Tracker: bounded most-recently-used key list, persisted as a log.
//   - version.Counter: snapshot version, local or shared through Redis.
//
// Polling pattern:
//
//	snap := store.Snapshot()
//	// later
//	if next, changed := store.Poll(snap.Version); changed {
//	    snap = next
//	}
package kvstore
