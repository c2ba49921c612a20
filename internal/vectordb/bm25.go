package vectordb

import (
	"math"
	"regexp"
	"strings"
)

// tokenPattern splits on Unicode word boundaries: runs of letters/digits
// are tokens, everything else is a separator.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// stopWords is the standard English stop-word list used to filter tokens
// before BM25 scoring. Kept small and fixed, matching the spec's Non-goal
// of excluding full inverted-index infrastructure — this is term filtering,
// not a language-aware tokenizer.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "if": {}, "in": {}, "into": {}, "is": {},
	"it": {}, "no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "such": {},
	"that": {}, "the": {}, "their": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "to": {}, "was": {}, "will": {}, "with": {},
}

// rawTokenize lowercases text and splits it into word tokens without
// filtering stop words.
func rawTokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// FilterStopWords drops tokens present in the standard English stop-word
// list.
func FilterStopWords(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := stopWords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Tokenize lowercases text, splits on Unicode word boundaries, and drops
// stop words. Used to index document chunks for BM25 scoring.
func Tokenize(text string) []string {
	return FilterStopWords(rawTokenize(text))
}

// TokenizeQuery tokenizes a hybrid-search text filter, honoring
// includeStopWords per SPEC_FULL.md §4.9.3 step 1: stop words are kept only
// when the caller explicitly asks for them.
func TokenizeQuery(text string, includeStopWords bool) []string {
	tokens := rawTokenize(text)
	if includeStopWords {
		return tokens
	}
	return FilterStopWords(tokens)
}

// SparseVector is a BM25-weighted term vector, indexed by term, suitable
// for a SparseFloatVector field.
type SparseVector map[string]float32

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Corpus accumulates document frequency and average length statistics
// needed to score new documents against previously indexed ones.
type Corpus struct {
	docFreq   map[string]int
	totalDocs int
	totalLen  int
}

// NewCorpus creates an empty BM25 corpus.
func NewCorpus() *Corpus {
	return &Corpus{docFreq: make(map[string]int)}
}

// Add indexes a document's tokens into the corpus statistics.
func (c *Corpus) Add(tokens []string) {
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; !ok {
			c.docFreq[t]++
			seen[t] = struct{}{}
		}
	}
	c.totalDocs++
	c.totalLen += len(tokens)
}

func (c *Corpus) avgDocLen() float64 {
	if c.totalDocs == 0 {
		return 0
	}
	return float64(c.totalLen) / float64(c.totalDocs)
}

// idf computes the BM25 inverse document frequency for a term.
func (c *Corpus) idf(term string) float64 {
	n := float64(c.totalDocs)
	df := float64(c.docFreq[term])
	if n == 0 {
		return 0
	}
	// Classic BM25 idf with a floor at a small positive value to avoid
	// negative weights for very common terms.
	v := math.Log((n-df+0.5)/(df+0.5) + 1)
	if v < 0.01 {
		return 0.01
	}
	return v
}

// Score computes the BM25 sparse vector for a document's tokens against
// the corpus's accumulated statistics.
func (c *Corpus) Score(tokens []string) SparseVector {
	termFreq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		termFreq[t]++
	}

	docLen := float64(len(tokens))
	avgLen := c.avgDocLen()
	if avgLen == 0 {
		avgLen = docLen
	}

	sv := make(SparseVector, len(termFreq))
	for term, freq := range termFreq {
		tf := float64(freq)
		idf := c.idf(term)
		denom := tf + bm25K1*(1-bm25B+bm25B*docLen/avgLen)
		sv[term] = float32(idf * (tf * (bm25K1 + 1) / denom))
	}
	return sv
}
