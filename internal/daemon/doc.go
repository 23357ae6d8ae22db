// Package daemon coordinates the long-running process: it enforces
// single-instance execution with a lock file, owns the workflow manager's
// lifecycle, and serves the read-only HTTP status API when one is configured.
package daemon
