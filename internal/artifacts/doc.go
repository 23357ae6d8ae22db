// Package artifacts stores step outputs as files under per-episode
// directories and tracks them in the episode database.
//
// Writes are atomic: the producer streams into a temp file next to the final
// path, the file is fsynced and hashed, and only then renamed into place and
// staged in the index. Readers never observe partial content because they
// resolve artifacts through published index rows, and rows are published only
// after the producing step records success.
//
// A per-(episode, artifact) guard made of an in-process mutex plus a flock
// sidecar file keeps concurrent publishes out; the loser fails fast instead
// of waiting.
package artifacts
