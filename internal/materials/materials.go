package materials

import (
	"context"
	"fmt"
	"strings"

	"teanga/internal/artifacts"
	"teanga/internal/normalize"
	"teanga/internal/services"
)

// Completer is the LLM capability all material steps share.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// promptTranscriptLimit caps how much transcript text travels in one prompt.
// An hour of radio is ~9k words; the material steps work from the opening
// stretch rather than splitting requests, because glosses and exercises do
// not need full coverage the way normalization does.
const promptTranscriptLimit = 12000

func transcriptPrompt(ctx context.Context, arts *artifacts.Store, episodeID, stepName string) (string, error) {
	doc, err := normalize.ReadDocument(ctx, arts, episodeID)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return "", services.Wrap(services.ErrPermanent, stepName, "load transcript",
			"normalized transcript is empty", nil)
	}
	if len(text) > promptTranscriptLimit {
		cut := strings.LastIndex(text[:promptTranscriptLimit], " ")
		if cut <= 0 {
			cut = promptTranscriptLimit
		}
		text = text[:cut]
	}
	return fmt.Sprintf("Transcript (Irish, %q):\n\n%s", doc.Language, text), nil
}
