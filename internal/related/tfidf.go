// Package related ranks posts by textual similarity so each post can link
// to the handful of posts closest to it.
package related

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	urlRE = regexp.MustCompile(`https?://\S+`)
	// nonWordRE strips everything but word characters and Hangul.
	nonWordRE = regexp.MustCompile(`[^a-zA-Z0-9가-힣\s]`)
)

// Tokenize lowercases text, drops URLs and punctuation and splits on
// whitespace. Single-character tokens carry no signal and are dropped.
func Tokenize(text string) []string {
	text = urlRE.ReplaceAllString(text, " ")
	text = nonWordRE.ReplaceAllString(text, " ")
	text = strings.ToLower(text)

	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// BagOfWords maps a term to its occurrence count within one document.
type BagOfWords map[string]int

// NewBag counts token occurrences.
func NewBag(tokens []string) BagOfWords {
	bag := make(BagOfWords, len(tokens))
	for _, tok := range tokens {
		bag[tok]++
	}
	return bag
}

// Corpus tracks document frequencies across all documents.
type Corpus struct {
	docs int
	df   map[string]int
}

// NewCorpus creates an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{df: make(map[string]int)}
}

// Add registers one document's bag in the corpus.
func (c *Corpus) Add(bag BagOfWords) {
	c.docs++
	for term := range bag {
		c.df[term]++
	}
}

// TFIDF scores a term within a document against the corpus. The idf is
// smoothed so terms present in every document keep a nonzero weight.
func (c *Corpus) TFIDF(term string, bag BagOfWords) float64 {
	tf := float64(bag[term])
	if tf == 0 || c.docs == 0 {
		return 0
	}
	idf := math.Log(float64(1+c.docs)/float64(1+c.df[term])) + 1
	return tf * idf
}

// TermWeight pairs a term with its TF-IDF weight.
type TermWeight struct {
	Term   string
	Weight float64
}

// TopTerms returns the n highest weighted terms of a document, ordered by
// weight descending with ties broken by term for determinism.
func (c *Corpus) TopTerms(bag BagOfWords, n int) []TermWeight {
	weights := make([]TermWeight, 0, len(bag))
	for term := range bag {
		if w := c.TFIDF(term, bag); w > 0 {
			weights = append(weights, TermWeight{Term: term, Weight: w})
		}
	}
	sort.Slice(weights, func(i, j int) bool {
		if weights[i].Weight != weights[j].Weight {
			return weights[i].Weight > weights[j].Weight
		}
		return weights[i].Term < weights[j].Term
	})
	if len(weights) > n {
		weights = weights[:n]
	}
	return weights
}

// Vector is a sparse term-weight vector.
type Vector map[string]float64

// NewVector converts ranked terms into a sparse vector.
func NewVector(terms []TermWeight) Vector {
	v := make(Vector, len(terms))
	for _, tw := range terms {
		v[tw.Term] = tw.Weight
	}
	return v
}

// Cosine computes cosine similarity over the union of both vectors' terms.
func Cosine(a, b Vector) float64 {
	var dot, normA, normB float64
	for term, wa := range a {
		normA += wa * wa
		if wb, ok := b[term]; ok {
			dot += wa * wb
		}
	}
	for _, wb := range b {
		normB += wb * wb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
