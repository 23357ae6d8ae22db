// Package convert implements the normalization step: probing the downloaded
// audio, rejecting unusable containers, and transcoding to the mono 16 kHz
// WAV contract the transcription stage expects.
package convert
