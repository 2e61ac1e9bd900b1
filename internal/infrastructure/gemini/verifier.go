package gemini

import (
	"context"
	"fmt"

	"github.com/seo401b/new-Allert/internal/domain"
)

// ImageSource loads a candidate image by URL
type ImageSource interface {
	Fetch(ctx context.Context, url string) (domain.SourceImage, error)
}

// Verifier asks the model whether two images show the same product
type Verifier struct {
	gen    Generator
	images ImageSource
}

// NewVerifier creates a pair verifier that loads candidate images from images
func NewVerifier(gen Generator, images ImageSource) *Verifier {
	return &Verifier{gen: gen, images: images}
}

// SameProduct compares base with the image at candidateURL
func (v *Verifier) SameProduct(ctx context.Context, base domain.SourceImage, candidateURL string) (bool, error) {
	candidate, err := v.images.Fetch(ctx, candidateURL)
	if err != nil {
		return false, err
	}

	reply, err := v.gen.GenerateContent(ctx, []Part{
		TextPart(verifyPrompt),
		ImagePart(base),
		ImagePart(candidate),
	})
	if err != nil {
		return false, err
	}

	var verdict struct {
		SameProduct *bool `json:"sameProduct"`
	}
	if err := DecodeJSON(reply, &verdict); err != nil {
		return false, err
	}
	if verdict.SameProduct == nil {
		return false, fmt.Errorf("%w: sameProduct missing", domain.ErrMalformedResponse)
	}

	return *verdict.SameProduct, nil
}
