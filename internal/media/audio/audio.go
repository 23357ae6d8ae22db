package audio

import (
	"fmt"
	"strings"

	"teanga/internal/language"
	"teanga/internal/media/ffprobe"
	"teanga/internal/services"
)

// Summary condenses an ffprobe inspection into the fields worth logging and
// recording alongside a downloaded episode.
type Summary struct {
	Codec      string  `json:"codec,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	Duration   float64 `json:"duration_seconds,omitempty"`
	BitRate    int64   `json:"bit_rate,omitempty"`
	Language   string  `json:"language,omitempty"`
	CoverArt   bool    `json:"cover_art,omitempty"`
}

// Summarize extracts summary fields from a probe result. Missing fields stay
// at their zero values; Check decides whether the audio is actually usable.
func Summarize(result ffprobe.Result) Summary {
	summary := Summary{
		Duration: result.DurationSeconds(),
		BitRate:  result.BitRate(),
		CoverArt: result.HasCoverArt(),
	}
	stream, ok := result.FirstAudioStream()
	if !ok {
		return summary
	}
	summary.Codec = stream.CodecName
	summary.SampleRate = stream.SampleRateHz()
	summary.Channels = stream.Channels
	if summary.Duration == 0 {
		summary.Duration = stream.DurationSeconds()
	}
	summary.Language = tagLanguage(stream.Tags, result.Format.Tags)
	return summary
}

// Check confirms the container holds playable speech audio: at least one
// audio stream with a nonzero duration. Failures are permanent because a
// corrupt or silent download does not improve on retry.
func Check(result ffprobe.Result) error {
	stream, ok := result.FirstAudioStream()
	if !ok {
		return services.Wrap(services.ErrPermanent, "", "audio check", "container has no audio streams", nil)
	}
	if result.DurationSeconds() <= 0 && stream.DurationSeconds() <= 0 {
		return services.Wrap(services.ErrPermanent, "", "audio check", "container reports zero duration", nil)
	}
	if stream.Channels < 0 {
		return services.Wrap(services.ErrPermanent, "", "audio check",
			fmt.Sprintf("audio stream reports invalid channel count %d", stream.Channels), nil)
	}
	return nil
}

// String renders a compact single-line description for log output, for
// example "mp3 44100Hz stereo 1770s Irish".
func (s Summary) String() string {
	parts := make([]string, 0, 5)
	if s.Codec != "" {
		parts = append(parts, s.Codec)
	}
	if s.SampleRate > 0 {
		parts = append(parts, fmt.Sprintf("%dHz", s.SampleRate))
	}
	switch {
	case s.Channels == 1:
		parts = append(parts, "mono")
	case s.Channels == 2:
		parts = append(parts, "stereo")
	case s.Channels > 2:
		parts = append(parts, fmt.Sprintf("%dch", s.Channels))
	}
	if s.Duration > 0 {
		parts = append(parts, fmt.Sprintf("%.0fs", s.Duration))
	}
	if s.Language != "" {
		parts = append(parts, language.DisplayName(s.Language))
	}
	if len(parts) == 0 {
		return "unknown audio"
	}
	return strings.Join(parts, " ")
}

// tagLanguage prefers the stream-level language tag over the container's and
// normalizes to ISO 639-1 when the code is recognized.
func tagLanguage(streamTags, formatTags map[string]string) string {
	raw := language.ExtractFromTags(streamTags)
	if raw == "" {
		raw = language.ExtractFromTags(formatTags)
	}
	if raw == "" {
		return ""
	}
	if mapped := language.ToISO2(raw); mapped != "" {
		return mapped
	}
	return raw
}
