// Package store persists episodes, their processing history, and the
// artifact index in SQLite.
//
// The Store manages database connections, schema initialization, optimistic
// episode claims, heartbeat tracking, stale-claim recovery, and the
// append-only processing history. History rows are never updated in place;
// every attempt of every step appends its own records.
//
// Artifact index rows move from staged to published only inside
// CompleteStep, in the same transaction that appends the step's success
// record. A crash between a file landing on disk and CompleteStep leaves the
// row staged, which readers treat as absent, so the step simply runs again.
//
// Treat this package as the single source of truth for episode semantics;
// when you add new statuses or columns, update schema.sql and add a
// migration.
package store
