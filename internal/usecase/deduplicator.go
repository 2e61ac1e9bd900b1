package usecase

import "github.com/seo401b/new-Allert/internal/domain"

// DedupeByImage keeps the first candidate for each canonical image URL.
// Candidates whose image reference normalizes to nothing carry no identity
// and are all kept.
func DedupeByImage(candidates []domain.Candidate) []domain.Candidate {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]domain.Candidate, 0, len(candidates))

	for _, c := range candidates {
		key := NormalizeImageURL(c.Row.ImageReference)
		if key == "" {
			unique = append(unique, c)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, c)
	}

	return unique
}
