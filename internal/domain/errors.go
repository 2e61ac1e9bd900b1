package domain

import "errors"

var (
	// ErrExtractionFailure is returned when products cannot be extracted from the source image
	ErrExtractionFailure = errors.New("product extraction failed")

	// ErrCatalogLoadFailure is returned when the reference catalog cannot be loaded
	ErrCatalogLoadFailure = errors.New("catalog load failed")

	// ErrRefinementParse is returned when the text refiner never produced a decodable list
	ErrRefinementParse = errors.New("refinement response could not be parsed")

	// ErrVerificationAmbiguous marks a pairwise verification that yielded no usable verdict
	ErrVerificationAmbiguous = errors.New("verification ambiguous")

	// ErrSelectionExhausted is returned when the candidate selector ran out of attempts
	ErrSelectionExhausted = errors.New("candidate selection exhausted")

	// ErrMalformedResponse is returned when model output cannot be decoded into the expected shape
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrModelAPIFailure is returned when a request to the model API fails
	ErrModelAPIFailure = errors.New("model API request failed")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)
