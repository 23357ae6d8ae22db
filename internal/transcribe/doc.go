// Package transcribe implements the transcription step: running speech
// recognition over the normalized audio and producing the raw transcript
// plus WebVTT subtitles. A detected language that differs from the feed's
// expectation is recorded on the episode, never treated as a failure;
// RnaG shows mix Irish and English segments routinely.
package transcribe
