package gemini

import (
	"context"
	"strings"
)

// Refiner asks the model to narrow candidate names semantically
type Refiner struct {
	gen Generator
}

// NewRefiner creates a text refiner backed by gen
func NewRefiner(gen Generator) *Refiner {
	return &Refiner{gen: gen}
}

// Refine returns the model's picks among names, most likely first.
// The reply is not checked against names; callers filter it.
func (r *Refiner) Refine(ctx context.Context, query string, names []string, desired int) ([]string, error) {
	reply, err := r.gen.GenerateContent(ctx, []Part{TextPart(refinePrompt(query, names, desired))})
	if err != nil {
		return nil, err
	}

	var picked []string
	if err := DecodeJSON(reply, &picked); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(picked))
	for _, p := range picked {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
