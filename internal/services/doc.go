// Package services defines shared utilities consumed by pipeline steps and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp episode IDs, step names, and correlation
//     identifiers for logging and tracing.
//   - The typed error taxonomy (missing input, transient, permanent,
//     concurrent write, not found) plus the Wrap helper and Kind classifier
//     that the runner uses for retry-vs-halt decisions and history records.
//
// Use these helpers when wiring new step logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
