// Package similarity provides text similarity utilities for sample selection.
package similarity

import (
	"github.com/scopelabs/scopeintel/pkg/textutil"
)

// Jaccard calculates the Jaccard similarity between two token sets.
// Returns a value between 0 (no overlap) and 1 (identical).
func Jaccard(set1, set2 map[string]bool) float64 {
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	intersection := 0
	for term := range set1 {
		if set2[term] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// TextSimilarity tokenizes both texts and returns their Jaccard similarity.
func TextSimilarity(a, b string) float64 {
	return Jaccard(textutil.TokenSet(a), textutil.TokenSet(b))
}

// IsSimilarToAny reports whether the token set is similar to any of the
// existing sets at or above the threshold.
func IsSimilarToAny(set map[string]bool, existing []map[string]bool, threshold float64) bool {
	if len(set) == 0 {
		return false
	}
	for _, other := range existing {
		if Jaccard(set, other) >= threshold {
			return true
		}
	}
	return false
}
