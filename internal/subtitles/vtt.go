package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// minCueSeconds pads zero-length cues so players keep them visible.
const minCueSeconds = 0.5

// Cue is a single timed caption. Start and End are seconds from the start of
// the audio.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// WriteVTT renders cues as a WebVTT document. Cues with empty text are
// dropped; zero-length cues are padded to a minimum duration. Writing zero
// usable cues is an error so an empty subtitle artifact can never publish.
func WriteVTT(w io.Writer, cues []Cue) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("WEBVTT\n"); err != nil {
		return fmt.Errorf("write vtt header: %w", err)
	}

	written := 0
	for _, cue := range cues {
		text := cleanCueText(cue.Text)
		if text == "" {
			continue
		}
		start := cue.Start
		if start < 0 {
			start = 0
		}
		end := cue.End
		if end <= start {
			end = start + minCueSeconds
		}
		if _, err := fmt.Fprintf(bw, "\n%s --> %s\n%s\n", formatTimestamp(start), formatTimestamp(end), text); err != nil {
			return fmt.Errorf("write vtt cue: %w", err)
		}
		written++
	}
	if written == 0 {
		return fmt.Errorf("write vtt: no usable cues")
	}
	return bw.Flush()
}

// Stats summarizes a WebVTT document.
type Stats struct {
	Cues       int
	FirstStart float64
	LastEnd    float64
}

// ReadStats scans a WebVTT document and reports cue count and time bounds.
func ReadStats(r io.Reader) (Stats, error) {
	stats := Stats{FirstStart: math.Inf(1)}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "-->") {
			continue
		}
		parts := strings.SplitN(line, "-->", 2)
		if len(parts) != 2 {
			continue
		}
		endFields := strings.Fields(parts[1])
		if len(endFields) == 0 {
			continue
		}
		start, errStart := parseTimestamp(strings.TrimSpace(parts[0]))
		end, errEnd := parseTimestamp(endFields[0])
		if errStart != nil || errEnd != nil {
			continue
		}
		stats.Cues++
		if start < stats.FirstStart {
			stats.FirstStart = start
		}
		if end > stats.LastEnd {
			stats.LastEnd = end
		}
	}
	if err := scanner.Err(); err != nil {
		return Stats{}, fmt.Errorf("read vtt: %w", err)
	}
	if stats.Cues == 0 {
		stats.FirstStart = 0
	}
	return stats, nil
}

// Validate inspects a rendered document against the audio duration. It
// returns the list of issues found; an empty slice means the document is
// sound. Timing drift beyond 10% of the audio length is flagged because it
// usually means the wrong audio was transcribed.
func Validate(stats Stats, audioSeconds float64) []string {
	var issues []string
	if stats.Cues == 0 {
		issues = append(issues, "empty_subtitle_file")
		return issues
	}
	if stats.LastEnd <= 0 {
		issues = append(issues, "no_valid_timestamps")
	}
	if audioSeconds > 0 {
		delta := math.Abs(audioSeconds - stats.LastEnd)
		if delta > audioSeconds/10 {
			issues = append(issues, fmt.Sprintf("duration_mismatch: delta=%.1fs", delta))
		}
	}
	return issues
}

// cleanCueText flattens whitespace so cue bodies cannot contain the blank
// lines that terminate a VTT cue block.
func cleanCueText(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cleaned := strings.Join(fields, " ")
	// A literal arrow inside cue text would be parsed as a timing line.
	return strings.ReplaceAll(cleaned, "-->", "→")
}

// formatTimestamp renders seconds as HH:MM:SS.mmm.
func formatTimestamp(seconds float64) string {
	totalMillis := int64(math.Round(seconds * 1000))
	if totalMillis < 0 {
		totalMillis = 0
	}
	hours := totalMillis / 3_600_000
	minutes := (totalMillis % 3_600_000) / 60_000
	secs := (totalMillis % 60_000) / 1000
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, millis)
}

// parseTimestamp accepts HH:MM:SS.mmm and the short MM:SS.mmm form WebVTT
// permits.
func parseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	base, millisText, found := strings.Cut(value, ".")
	millis := 0
	if found {
		parsed, err := strconv.Atoi(millisText)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		millis = parsed
	}
	parts := strings.Split(base, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		total = total*60 + n
	}
	return float64(total) + float64(millis)/1000, nil
}
