package domain

// CatalogRow represents one record of the reference product catalog.
// Rows are immutable once a catalog snapshot has been loaded.
type CatalogRow struct {
	Position       int               `json:"position"`       // Index within the loaded snapshot
	Name           string            `json:"name"`           // Display product name
	ImageReference string            `json:"imageReference"` // Raw image URL as stored, may be empty or malformed
	Fields         map[string]string `json:"fields,omitempty"`
}

// HasImageReference reports whether the row carries any image reference at all.
func (r CatalogRow) HasImageReference() bool {
	return r.ImageReference != ""
}

// Detection is one product found in the source image by the vision extractor
type Detection struct {
	Key            string `json:"key"`
	LocalName      string `json:"localName"`
	TranslatedName string `json:"translatedName"`
}

// QueryName returns the name used for catalog lookup.
// The catalog is keyed by local-language names, so the translation is only a fallback.
func (d Detection) QueryName() string {
	if d.LocalName != "" {
		return d.LocalName
	}
	return d.TranslatedName
}

// Candidate pairs a catalog row with its lexical similarity to a query
type Candidate struct {
	Score float64    `json:"score"` // Similarity 0-1
	Name  string     `json:"name"`  // Catalog name the score was computed against
	Row   CatalogRow `json:"row"`
}

// SourceImage is the photograph a resolution run works from
type SourceImage struct {
	Data     []byte
	MIMEType string
}

// ResolutionMethod describes how a detection reached its terminal state
type ResolutionMethod string

const (
	MethodVerified ResolutionMethod = "verified" // A pairwise verification returned true
	MethodFallback ResolutionMethod = "fallback" // The candidate selector picked the match
	MethodNone     ResolutionMethod = "none"     // No confident match
	MethodFailed   ResolutionMethod = "failed"   // The detection's pipeline aborted
)

// ResolutionResult is the terminal outcome for one detection
type ResolutionResult struct {
	Detection       Detection        `json:"inputName"`
	Match           *CatalogRow      `json:"match"`
	MatchedImageURL string           `json:"matchedImageUrl,omitempty"`
	Method          ResolutionMethod `json:"method"`
	Error           string           `json:"error,omitempty"`
}

// Matched reports whether the detection resolved to a catalog row
func (r ResolutionResult) Matched() bool {
	return r.Match != nil
}
