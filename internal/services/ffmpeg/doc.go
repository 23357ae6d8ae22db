// Package ffmpeg converts downloaded episode audio into the mono 16 kHz
// PCM WAV layout the transcription stage expects. Conversion streams ffmpeg
// stdout straight into the artifact writer so no intermediate file is
// needed. Failures are permanent unless the run was cancelled or timed out.
package ffmpeg
