// Package stats turns raw tickets plus cluster labels into the descriptive
// metrics bundle attached to every group: frequency tables, temporal
// insights, and representative text samples.
package stats

import (
	"sort"

	"github.com/scopelabs/scopeintel/pkg/similarity"
	"github.com/scopelabs/scopeintel/pkg/textutil"
)

// topKeywordCount bounds the per-cluster keyword list used both for sample
// scoring and for prompt context.
const topKeywordCount = 15

// sampleDedupeThreshold is the Jaccard similarity above which a candidate
// sample counts as a rewording of one already picked.
const sampleDedupeThreshold = 0.9

// SmartSamples picks up to n texts that best represent a cluster, plus the
// cluster's top keywords. Each text is scored by how many of the cluster's
// most frequent tokens it contains, which keeps outlier or empty tickets from
// becoming the group's face. Near-duplicate texts are passed over so the
// samples show distinct wordings, falling back to duplicates only when the
// cluster has nothing else. Ties keep input order; when every score is zero
// the first n texts are returned as-is.
func SmartSamples(texts []string, n int) ([]string, []string) {
	if len(texts) == 0 || n <= 0 {
		return nil, nil
	}

	counts := make(map[string]int)
	sets := make([]map[string]bool, len(texts))
	for i, t := range texts {
		tokens := textutil.Tokenize(t)
		set := make(map[string]bool, len(tokens))
		for _, w := range tokens {
			counts[w]++
			set[w] = true
		}
		sets[i] = set
	}

	keywords := TopKeywords(counts, topKeywordCount)

	scored := make([]int, len(texts))
	for i, set := range sets {
		for _, kw := range keywords {
			if set[kw] {
				scored[i]++
			}
		}
	}

	order := make([]int, len(texts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scored[order[a]] > scored[order[b]]
	})

	if n > len(texts) {
		n = len(texts)
	}
	samples := make([]string, 0, n)
	picked := make([]map[string]bool, 0, n)
	var skipped []int
	for _, idx := range order {
		if len(samples) == n {
			break
		}
		if similarity.IsSimilarToAny(sets[idx], picked, sampleDedupeThreshold) {
			skipped = append(skipped, idx)
			continue
		}
		samples = append(samples, texts[idx])
		picked = append(picked, sets[idx])
	}
	// Not enough distinct texts: fill with the skipped ones in score order.
	for _, idx := range skipped {
		if len(samples) == n {
			break
		}
		samples = append(samples, texts[idx])
	}
	return samples, keywords
}

// TopKeywords ranks a token frequency table and returns the n most frequent
// tokens, ties broken alphabetically for stable output.
func TopKeywords(counts map[string]int, n int) []string {
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(a, b int) bool {
		if counts[words[a]] == counts[words[b]] {
			return words[a] < words[b]
		}
		return counts[words[a]] > counts[words[b]]
	})
	if n < len(words) {
		words = words[:n]
	}
	return words
}
