// Package whisper runs WhisperX over converted episode audio via uvx and
// parses the JSON it writes. The command runner is injectable so tests can
// fake the transcription binary. Run failures classify as transient because
// uvx failures are dominated by package resolution and GPU contention; a
// successful run that yields no usable segments is permanent.
package whisper
