// Package language provides unified language code normalization and mapping.
//
// All language-related conversions (ISO 639-1, ISO 639-2, display names,
// tag extraction) are consolidated here so the feed, transcription, and
// material-generation packages agree on codes. Celtic languages get full
// word-form coverage because feed metadata spells them inconsistently.
package language
