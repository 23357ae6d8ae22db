// Package preflight verifies the environment before the daemon or CLI starts
// real work: directory access, free disk space, required binaries, LLM API
// reachability, and configured feeds.
package preflight
