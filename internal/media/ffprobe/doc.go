// Package ffprobe wraps ffprobe JSON inspection for downloaded episode
// audio. It shells out to the configured binary, decodes the stream and
// format sections, and exposes small accessors for the fields the pipeline
// cares about (audio streams, duration, sample rate, embedded cover art).
package ffprobe
