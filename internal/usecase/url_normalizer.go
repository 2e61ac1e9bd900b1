package usecase

import (
	"strings"
	"unicode"
)

const defaultImageScheme = "https://"

// imageHostTypos maps known misspellings found in catalog image references to their fix
var imageHostTypos = strings.NewReplacer(
	"hacccp.or.kr", "haccp.or.kr",
	".krr", ".kr",
)

// NormalizeImageURL canonicalizes a catalog image reference for comparison.
// It removes whitespace and control characters, repairs known host typos and
// forces the https scheme, so plain-http and scheme-less references to the same
// image compare equal. Blank input, or a bare scheme with nothing after it, yields "".
// The result is stable: normalizing it again returns the same string.
func NormalizeImageURL(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)
	if cleaned == "" {
		return ""
	}

	// Repeat until nothing changes so overlapping typos like ".krrr" collapse fully
	for {
		fixed := imageHostTypos.Replace(cleaned)
		if fixed == cleaned {
			break
		}
		cleaned = fixed
	}

	rest := trimHTTPScheme(cleaned)
	if rest == "" {
		return ""
	}
	return defaultImageScheme + rest
}

func trimHTTPScheme(s string) string {
	for _, scheme := range []string{"https://", "http://"} {
		if len(s) >= len(scheme) && strings.EqualFold(s[:len(scheme)], scheme) {
			return s[len(scheme):]
		}
	}
	return s
}
