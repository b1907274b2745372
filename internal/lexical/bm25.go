// Package lexical implements the BM25 (Okapi) sidecar used for hybrid
// rescoring: a lazily-built index over tokenized passage text, stored
// alongside the graph so a hybrid query doesn't re-tokenize the whole
// corpus every time (§4.5).
package lexical

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

const (
	// k1 controls term-frequency saturation; b controls document-length
	// normalization strength. Both are the standard Okapi BM25 defaults.
	k1 = 1.2
	b  = 0.75
)

type posting struct {
	Node uint32 `json:"node"`
	Freq int    `json:"freq"`
}

// Index is a BM25 postings list over a fixed passage corpus.
type Index struct {
	Tokenizer string               `json:"tokenizer"`
	N         int                  `json:"n"`
	DocLen    []int                `json:"doc_len"`
	AvgDocLen float64              `json:"avg_doc_len"`
	Postings  map[string][]posting `json:"postings"`
}

// Build tokenizes every passage text (indexed by dense node index) and
// assembles the postings list and per-document lengths.
func Build(texts []string) *Index {
	idx := &Index{
		Tokenizer: TokenizerID,
		N:         len(texts),
		DocLen:    make([]int, len(texts)),
		Postings:  make(map[string][]posting),
	}

	termFreqPerDoc := make([]map[string]int, len(texts))
	var totalLen int
	for node, text := range texts {
		tokens := Tokenize(text)
		idx.DocLen[node] = len(tokens)
		totalLen += len(tokens)

		freq := make(map[string]int, len(tokens))
		for _, t := range tokens {
			freq[t]++
		}
		termFreqPerDoc[node] = freq
	}
	if len(texts) > 0 {
		idx.AvgDocLen = float64(totalLen) / float64(len(texts))
	}

	for node, freq := range termFreqPerDoc {
		for term, f := range freq {
			idx.Postings[term] = append(idx.Postings[term], posting{Node: uint32(node), Freq: f})
		}
	}

	return idx
}

// Score computes the BM25 score of every document containing at least
// one query term, returning node -> score. Documents matching none of
// the query terms are absent (score 0), matching the hybrid rescorer's
// expectation that an absent key means "no lexical signal" (§4.4 step 4).
func (idx *Index) Score(queryText string) map[uint32]float64 {
	terms := Tokenize(queryText)
	scores := make(map[uint32]float64)
	if idx.N == 0 {
		return scores
	}

	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true

		postings, ok := idx.Postings[term]
		if !ok {
			continue
		}
		df := len(postings)
		idf := math.Log(1 + (float64(idx.N)-float64(df)+0.5)/(float64(df)+0.5))

		for _, p := range postings {
			docLen := float64(idx.DocLen[p.Node])
			tf := float64(p.Freq)
			denom := tf + k1*(1-b+b*docLen/idx.AvgDocLen)
			scores[p.Node] += idf * (tf * (k1 + 1)) / denom
		}
	}
	return scores
}

func path(dir, name string) string {
	return filepath.Join(dir, name+".bm25")
}

// Save atomically writes the index to <dir>/<name>.bm25.
func (idx *Index) Save(dir, name string) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("lexical: marshal index: %w", err)
	}

	p := path(dir, name)
	tmpPath := p + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("lexical: write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return fmt.Errorf("lexical: rename %s -> %s: %w", tmpPath, p, err)
	}
	return nil
}

// Load reads a previously-saved index. ErrTokenizerMismatch is returned
// if its tokenizer id doesn't match this build's TokenizerID, signaling
// the caller should rebuild via Build instead of trusting the sidecar.
func Load(dir, name string) (*Index, error) {
	data, err := os.ReadFile(path(dir, name))
	if err != nil {
		return nil, fmt.Errorf("lexical: read %s: %w", path(dir, name), err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("lexical: decode %s: %w", path(dir, name), err)
	}
	if idx.Tokenizer != TokenizerID {
		return nil, fmt.Errorf("%w: sidecar built with %q, engine uses %q", ErrTokenizerMismatch, idx.Tokenizer, TokenizerID)
	}
	return &idx, nil
}

// Exists reports whether a sidecar file is present for name in dir.
func Exists(dir, name string) bool {
	_, err := os.Stat(path(dir, name))
	return err == nil
}

// ErrTokenizerMismatch flags a sidecar built with a different tokenizer
// version than the running engine.
var ErrTokenizerMismatch = fmt.Errorf("lexical: tokenizer mismatch")
