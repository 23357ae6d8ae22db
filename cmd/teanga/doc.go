// Package main hosts the teanga CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into episode
// database queries, feed ingestion, direct pipeline runs, and configuration
// scaffolding. It centralizes configuration resolution and store access so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
