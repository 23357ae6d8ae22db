// Package episodeid derives stable episode identifiers from feed metadata.
//
// Identifiers follow {source}_{show}_{YYYYMMDD}_{HHMM} with both key components
// slug-folded, so "Barrscéalta" becomes barrscealta and the same broadcast
// always maps to the same key regardless of feed cosmetics. IDs are treated
// as opaque strings everywhere else in the system.
package episodeid

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// MakeID builds the canonical episode identifier for a broadcast. The
// publication time is normalized to UTC so the same entry yields the same
// identifier on every host.
func MakeID(source, show string, pubDate time.Time) string {
	utc := pubDate.UTC()
	return Slug(source) + "_" + Slug(show) + "_" + utc.Format("20060102") + "_" + utc.Format("1504")
}

// Slug folds diacritics and lowers the input, collapsing every non-alphanumeric
// run to a single underscore: "An tArdtráthnóna" -> "an_tardtrathnona".
func Slug(value string) string {
	folded, _, err := transform.String(foldTransformer, value)
	if err != nil {
		folded = value
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	pendingSep := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return b.String()
}

// DisplayTitle renders a slugged show key for human-facing surfaces:
// "an_tardtrathnona" -> "An Tardtrathnona".
func DisplayTitle(show string) string {
	cleaned := strings.ReplaceAll(strings.TrimSpace(show), "_", " ")
	if cleaned == "" {
		return "Unknown Show"
	}
	return cases.Title(language.Und).String(cleaned)
}
