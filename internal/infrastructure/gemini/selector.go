package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/seo401b/new-Allert/internal/domain"
)

// Selector asks the model for the candidate image closest to the source image.
// Candidates are listed as URLs in the prompt; only the source image is attached.
type Selector struct {
	gen Generator
}

// NewSelector creates a candidate selector backed by gen
func NewSelector(gen Generator) *Selector {
	return &Selector{gen: gen}
}

// SelectBest returns the URL the model picked, or "" when it declined to pick
func (s *Selector) SelectBest(ctx context.Context, base domain.SourceImage, candidateURLs []string) (string, error) {
	reply, err := s.gen.GenerateContent(ctx, []Part{
		TextPart(selectPrompt(candidateURLs)),
		ImagePart(base),
	})
	if err != nil {
		return "", err
	}

	var choice struct {
		SelectedURL json.RawMessage `json:"selectedUrl"`
	}
	if err := DecodeJSON(reply, &choice); err != nil {
		return "", err
	}
	if len(choice.SelectedURL) == 0 {
		return "", fmt.Errorf("%w: selectedUrl missing", domain.ErrMalformedResponse)
	}
	if string(choice.SelectedURL) == "null" {
		return "", nil
	}

	var url string
	if err := json.Unmarshal(choice.SelectedURL, &url); err != nil {
		return "", fmt.Errorf("%w: selectedUrl is not a string", domain.ErrMalformedResponse)
	}
	return strings.TrimSpace(url), nil
}
