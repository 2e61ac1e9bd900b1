package domain

import (
	"context"
	"time"
)

// VisionExtractor finds the products pictured in an image.
// Detections are returned in the order the extractor reported them.
type VisionExtractor interface {
	Extract(ctx context.Context, image SourceImage) ([]Detection, error)
}

// CatalogSource loads the reference catalog snapshot
type CatalogSource interface {
	Load(ctx context.Context) ([]CatalogRow, error)
}

// TextRefiner semantically narrows a list of candidate names for a query.
// Implementations return ErrMalformedResponse when the reply cannot be decoded.
type TextRefiner interface {
	Refine(ctx context.Context, query string, names []string, desired int) ([]string, error)
}

// PairVerifier judges whether a candidate image shows the same product as the source image
type PairVerifier interface {
	SameProduct(ctx context.Context, base SourceImage, candidateURL string) (bool, error)
}

// CandidateSelector picks the most likely candidate image when verification was inconclusive.
// An empty string means no candidate was chosen.
type CandidateSelector interface {
	SelectBest(ctx context.Context, base SourceImage, candidateURLs []string) (string, error)
}

// ImageCache stores fetched image payloads
type ImageCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ResolutionObserver receives pipeline events for monitoring
type ResolutionObserver interface {
	ObserveDetection(method ResolutionMethod)
	ObserveCollaborator(collaborator, outcome string)
	ObserveStage(stage string, elapsed time.Duration)
}
