// Package subtitles renders transcription segments as WebVTT and inspects
// generated cue files. Cue text and timings come straight from the
// transcription step; this package only handles formatting and bounds.
package subtitles
