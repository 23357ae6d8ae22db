package artifacts

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

// Well-known artifact names. Steps declare inputs and outputs with these
// names; the paths under the episode directory follow from them.
const (
	FeedEntry            = "feed_entry"
	OriginalAudio        = "original_audio"
	NormalizedAudio      = "normalized_audio"
	RawTranscript        = "raw_transcript"
	NormalizedTranscript = "normalized_transcript"
	Subtitles            = "subtitles"
	Glosses              = "glosses"
	Exercises            = "exercises"
	DialectCard          = "dialect_card"
)

// Paths relative to the episode directory. OriginalAudio's entry is the
// default for an enclosure whose extension cannot be determined; the real
// path preserves the source extension and is recorded per episode in the
// index (see OriginalAudioPath).
var rolePaths = map[string]string{
	FeedEntry:            "feed_entry.json",
	OriginalAudio:        "media/original_audio.mp3",
	NormalizedAudio:      "media/normalized_audio.wav",
	RawTranscript:        "transcripts/raw_transcript.json",
	NormalizedTranscript: "transcripts/normalized_transcript.json",
	Subtitles:            "transcripts/subtitles.vtt",
	Glosses:              "glosses/glosses.json",
	Exercises:            "exercises/exercises.json",
	DialectCard:          "analysis/dialect_card.json",
}

// OriginalAudioPath returns the episode-relative path for the downloaded
// enclosure, keeping the source file extension so the bytes on disk never
// masquerade as a different container. Unknown or absent extensions fall
// back to .mp3, by far the most common enclosure format.
func OriginalAudioPath(enclosureURL string) string {
	ext := ".mp3"
	if u, err := url.Parse(enclosureURL); err == nil {
		if candidate := strings.ToLower(path.Ext(u.Path)); validAudioExt(candidate) {
			ext = candidate
		}
	}
	return "media/original_audio" + ext
}

// validAudioExt accepts a short alphanumeric extension like .mp3 or .m4a.
func validAudioExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 5 || ext[0] != '.' {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// KnownRole reports whether name is a recognized artifact name.
func KnownRole(name string) bool {
	_, ok := rolePaths[name]
	return ok
}

// RolePath returns the path of an artifact relative to its episode directory.
func RolePath(name string) (string, bool) {
	path, ok := rolePaths[name]
	return path, ok
}

// Roles returns the sorted list of known artifact names.
func Roles() []string {
	names := make([]string, 0, len(rolePaths))
	for name := range rolePaths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
