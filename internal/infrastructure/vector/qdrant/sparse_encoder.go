package qdrant

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
)

type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	docBM25K1      = 1.2
	queryBM25K     = 1.2
	titleBoost     = 1.5
	maxSparseTerms = 256
)

var sparseStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {}, "for": {},
	"from": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {},
	"this": {}, "to": {}, "was": {}, "were": {}, "what": {}, "which": {}, "with": {},
}

// encodeSparseDocument weights chunk terms with BM25 term-frequency saturation.
// Document-frequency weighting is left to the collection's IDF modifier.
func encodeSparseDocument(text string, title string) sparseVector {
	termFreq := make(map[uint32]float64, 64)
	addTerms(termFreq, sparseTokens(text), 1.0)
	addTerms(termFreq, sparseTokens(title), titleBoost)
	return termFreqToSparse(termFreq, docBM25K1)
}

func encodeSparseQuery(query string) sparseVector {
	termFreq := make(map[uint32]float64, 32)
	addTerms(termFreq, sparseTokens(query), 1.0)
	return termFreqToSparse(termFreq, queryBM25K)
}

func addTerms(dst map[uint32]float64, tokens []string, weight float64) {
	for _, token := range tokens {
		dst[hashToken(token)] += weight
	}
}

// termFreqToSparse keeps the maxSparseTerms heaviest terms, ordered by index.
func termFreqToSparse(tf map[uint32]float64, k float64) sparseVector {
	if len(tf) == 0 {
		return sparseVector{}
	}
	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	if len(indices) > maxSparseTerms {
		sort.Slice(indices, func(i, j int) bool {
			if tf[indices[i]] != tf[indices[j]] {
				return tf[indices[i]] > tf[indices[j]]
			}
			return indices[i] < indices[j]
		})
		indices = indices[:maxSparseTerms]
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		freq := tf[idx]
		weight := freq * (k + 1) / (freq + k)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values[i] = float32(weight)
	}
	return sparseVector{Indices: indices, Values: values}
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	if sum := h.Sum32(); sum != 0 {
		return sum
	}
	return 1
}

// sparseTokens lowercases s, splits it on anything but ASCII letters and
// digits, and drops stopwords. "item" followed by a number also yields a
// joined token ("item 1a" -> "item1a") so section references match as a unit.
func sparseTokens(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})

	out := make([]string, 0, len(words)+2)
	for i, word := range words {
		if _, stop := sparseStopwords[word]; stop {
			continue
		}
		out = append(out, word)
		if word == "item" && i+1 < len(words) && startsWithDigit(words[i+1]) {
			out = append(out, word+words[i+1])
		}
	}
	return out
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
