// Package rss fetches and parses podcast feeds into pipeline entries.
//
// Entries carry only values derived from feed content, never fetch-time
// state, so serializing the same feed entry twice yields identical bytes.
package rss
