package usecase

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/seo401b/new-Allert/internal/domain"
)

// DefaultTopN bounds how many lexical candidates reach the external stages
const DefaultTopN = 30

// RankCandidates scores every catalog name against query and returns the best topN.
// Ties keep catalog order. Candidates whose row has no image reference are dropped
// after truncation, so the result may be shorter than topN.
func RankCandidates(query string, index *CatalogIndex, topN int) []domain.Candidate {
	if topN <= 0 {
		topN = DefaultTopN
	}

	names := index.Names()
	foldedQuery := foldForComparison(query)

	candidates := make([]domain.Candidate, 0, len(names))
	for _, name := range names {
		row, _ := index.Lookup(name)
		candidates = append(candidates, domain.Candidate{
			Score: diceCoefficient(foldedQuery, foldForComparison(name)),
			Name:  name,
			Row:   row,
		})
	}

	slices.SortStableFunc(candidates, func(a, b domain.Candidate) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	return slices.DeleteFunc(candidates, func(c domain.Candidate) bool {
		return !c.Row.HasImageReference()
	})
}

// NameSimilarity returns the similarity of two product names in [0,1]
func NameSimilarity(a, b string) float64 {
	return diceCoefficient(foldForComparison(a), foldForComparison(b))
}

// foldForComparison composes Hangul jamo, lowercases and drops whitespace,
// so "초코 파이" and "초코파이" compare equal.
func foldForComparison(s string) string {
	s = norm.NFC.String(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// diceCoefficient computes the Sørensen–Dice coefficient over character bigrams
func diceCoefficient(a, b string) float64 {
	if a == b {
		return 1
	}

	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	bigrams := make(map[[2]rune]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		bigrams[[2]rune{ra[i], ra[i+1]}]++
	}

	overlap := 0
	for i := 0; i < len(rb)-1; i++ {
		bg := [2]rune{rb[i], rb[i+1]}
		if n := bigrams[bg]; n > 0 {
			bigrams[bg] = n - 1
			overlap++
		}
	}

	return 2 * float64(overlap) / float64(len(ra)+len(rb)-2)
}
