// Package search orchestrates a single query end to end: embed the
// query text, decide a filter strategy, expand candidates through a
// graph backend with a caching expander, optionally rescore against the
// lexical sidecar, and assemble results (§4.4).
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/ngmks/leann/internal/embed"
	"github.com/ngmks/leann/internal/filter"
	"github.com/ngmks/leann/internal/graph"
	"github.com/ngmks/leann/internal/lexical"
	"github.com/ngmks/leann/internal/passage"
)

// bruteForceSelectivity is the default selectivity threshold below
// which the searcher skips the graph entirely and brute-force-scans
// every passage that passes the filter (§4.4 step 2).
const bruteForceSelectivity = 0.02

// Params configures one Search call.
type Params struct {
	QueryText           string
	K                   int
	Ef                  int
	Filter              filter.Filter
	HybridAlpha         float64 // 0 disables lexical rescoring; in (0,1] blends BM25 in
	SortByDateDesc      bool
	SortByDateAsc       bool
	BruteForceThreshold float64 // 0 uses bruteForceSelectivity
}

// Result is one scored hit.
type Result struct {
	Node     uint32
	Passage  passage.Passage
	Distance float32
	Score    float32
}

// Response is the outcome of a Search call.
type Response struct {
	Results []Result
	Partial bool
	Reason  string
}

// Searcher ties a passage store, a graph backend, an embedding provider,
// and an optional lexical sidecar together to answer queries.
type Searcher struct {
	Passages *passage.Store
	Backend  graph.Backend
	Dist     graph.DistanceFunc
	Provider embed.Provider
	Cache    *embed.Cache
	Retry    embed.RetryPolicy
	OnRetry  embed.OnRetry
	Lexical  *lexical.Index // nil until built lazily by EnsureLexical

	// Expander, if set, replaces the provider-backed caching expander
	// entirely — used for non-recompute indexes, where vectors come
	// straight out of a memory-mapped embedding blob and recomputation
	// never happens.
	Expander graph.Expander
}

// EnsureLexical builds the BM25 sidecar from the passage store if it
// hasn't been built yet, so the first hybrid query pays the tokenize
// cost once (§4.5).
func (s *Searcher) EnsureLexical() {
	if s.Lexical != nil {
		return
	}
	texts := make([]string, s.Passages.N())
	s.Passages.Iter(func(node int, p passage.Passage) bool {
		texts[node] = p.Text
		return true
	})
	s.Lexical = lexical.Build(texts)
}

// Search answers one query.
func (s *Searcher) Search(ctx context.Context, p Params) (*Response, error) {
	if p.K <= 0 {
		return &Response{}, nil
	}

	if p.QueryText == "" {
		if p.HybridAlpha != 1 {
			return nil, fmt.Errorf("search: empty query text requires hybrid alpha=1 (lexical-only ranking)")
		}
		s.EnsureLexical()
		if len(s.Lexical.Postings) == 0 {
			return nil, fmt.Errorf("search: empty query text with no lexical tokens indexed")
		}
	}

	qvecs, err := embed.EncodeWithRetry(ctx, s.Retry, s.OnRetry, func(ctx context.Context) ([][]float32, error) {
		return s.Provider.Encode(ctx, []string{p.QueryText}, embed.KindQuery)
	})
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	qvec := qvecs[0]

	ef := p.Ef
	if ef < p.K {
		ef = p.K
	}

	var candidates []graph.Candidate
	degraded := new(bool)

	if p.Filter != nil {
		threshold := p.BruteForceThreshold
		if threshold <= 0 {
			threshold = bruteForceSelectivity
		}
		if p.Filter.EstimateSelectivity() <= threshold {
			candidates, err = s.bruteForce(ctx, qvec, p.K, p.Filter, degraded)
		} else {
			accept, buildErr := s.materializeFilter(p.Filter)
			if buildErr != nil {
				return nil, fmt.Errorf("search: materialize filter: %w", buildErr)
			}
			candidates, err = s.expandSearch(ctx, qvec, p.K, ef, accept, degraded)
		}
	} else {
		candidates, err = s.expandSearch(ctx, qvec, p.K, ef, nil, degraded)
	}
	if err != nil {
		return nil, fmt.Errorf("search: candidate expansion: %w", err)
	}

	partial := *degraded
	reason := ""
	if partial {
		reason = "embedding provider failed for some candidates; results may be incomplete"
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		ps, getErr := s.Passages.GetByNode(int(c.Node))
		if getErr != nil {
			continue
		}
		results = append(results, Result{Node: c.Node, Passage: ps, Distance: c.Distance, Score: -c.Distance})
	}

	if p.HybridAlpha > 0 && len(results) > 1 {
		s.EnsureLexical()
		s.rescoreHybrid(results, p.QueryText, p.HybridAlpha)
	}

	if p.SortByDateDesc || p.SortByDateAsc {
		sortByDate(results, p.SortByDateAsc)
	} else {
		sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	}

	if len(results) > p.K {
		results = results[:p.K]
	}

	return &Response{Results: results, Partial: partial, Reason: reason}, nil
}

// expandSearch wraps the backend's candidate expansion with the
// searcher's caching Expander. degraded is set to true if recompute
// ultimately failed for any node visited during the search (§4.4, S4).
func (s *Searcher) expandSearch(ctx context.Context, qvec []float32, k, ef int, accept graph.AcceptFunc, degraded *bool) ([]graph.Candidate, error) {
	return s.Backend.Search(ctx, qvec, k, ef, s.expander(degraded), s.Dist, accept)
}

// expander returns the embedding-blob expander if one is configured,
// otherwise the recompute-mode caching, provider-backed expander.
func (s *Searcher) expander(degraded *bool) graph.Expander {
	if s.Expander != nil {
		return s.Expander
	}
	return s.cachingExpander(degraded)
}

// sentinelDistance is substituted for a node's vector when the
// embedding provider exhausts retries recomputing it. A vector this far
// from any real query embedding sinks the node to the bottom of the
// ranking rather than aborting the whole search (S4: a provider outage
// degrades results instead of failing them outright).
const sentinelDistance = float32(1e30)

// cachingExpander fetches passage text for uncached nodes, embeds it
// through the provider with retry, and fills the cache — so a node
// visited more than once across a search (or across searches, for a
// long-lived Searcher) is recomputed at most once per cache eviction.
// Nodes whose recompute ultimately fails get a sentinel vector instead
// of aborting the call, and set *degraded so the caller can flag the
// response as partial.
func (s *Searcher) cachingExpander(degraded *bool) graph.Expander {
	return func(ctx context.Context, nodes []uint32) ([][]float32, error) {
		out := make([][]float32, len(nodes))
		var missNodes []uint32
		var missTexts []string
		missPos := make([]int, 0, len(nodes))

		for i, n := range nodes {
			if v, ok := s.Cache.Get(n); ok {
				out[i] = v
				continue
			}
			ps, err := s.Passages.GetByNode(int(n))
			if err != nil {
				return nil, err
			}
			missNodes = append(missNodes, n)
			missTexts = append(missTexts, ps.Text)
			missPos = append(missPos, i)
		}

		if len(missTexts) == 0 {
			return out, nil
		}

		vecs, err := embed.EncodeWithRetry(ctx, s.Retry, s.OnRetry, func(ctx context.Context) ([][]float32, error) {
			return s.Provider.Encode(ctx, missTexts, embed.KindDocument)
		})
		if err != nil {
			*degraded = true
			sentinel := make([]float32, s.Provider.Dimension())
			for i := range sentinel {
				sentinel[i] = sentinelDistance
			}
			for _, pos := range missPos {
				out[pos] = sentinel
			}
			return out, nil
		}

		for i, pos := range missPos {
			out[pos] = vecs[i]
			s.Cache.Put(missNodes[i], vecs[i])
		}
		return out, nil
	}
}

// materializeFilter evaluates the filter over every passage once,
// producing a bitset-backed AcceptFunc (used whenever the filter is not
// selective enough for bruteForce) so graph
// traversal doesn't re-evaluate the predicate, or re-fetch passage
// metadata, on every visit to the same node (§4.4 step 2).
func (s *Searcher) materializeFilter(f filter.Filter) (graph.AcceptFunc, error) {
	set := filter.NewNodeSet(s.Passages.N())
	s.Passages.Iter(func(node int, p passage.Passage) bool {
		if f.Matches(p.Metadata) {
			set.Set(node)
		}
		return true
	})
	return func(node uint32) bool { return set.Test(int(node)) }, nil
}

// bruteForce scans every passage passing f, scoring each against qvec
// directly — used when f is selective enough that a full graph
// traversal (paying the per-visit expand cost) would be slower than a
// linear scan (§4.4 step 2).
func (s *Searcher) bruteForce(ctx context.Context, qvec []float32, k int, f filter.Filter, degraded *bool) ([]graph.Candidate, error) {
	var matching []uint32
	s.Passages.Iter(func(node int, p passage.Passage) bool {
		if f.Matches(p.Metadata) {
			matching = append(matching, uint32(node))
		}
		return true
	})
	if len(matching) == 0 {
		return nil, nil
	}

	vecs, err := s.expander(degraded)(ctx, matching)
	if err != nil {
		return nil, err
	}

	candidates := make([]graph.Candidate, len(matching))
	for i, node := range matching {
		candidates[i] = graph.Candidate{Node: node, Distance: s.Dist(qvec, vecs[i])}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Distance < candidates[j].Distance })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// rescoreHybrid blends each result's vector-distance score with its
// BM25 score via min-max normalization and a convex combination: alpha
// weights the lexical term, (1-alpha) the vector term (§4.4 step 4).
func (s *Searcher) rescoreHybrid(results []Result, queryText string, alpha float64) {
	bm25 := s.Lexical.Score(queryText)

	minVec, maxVec := results[0].Score, results[0].Score
	for _, r := range results {
		if r.Score < minVec {
			minVec = r.Score
		}
		if r.Score > maxVec {
			maxVec = r.Score
		}
	}
	vecRange := maxVec - minVec

	var minLex, maxLex float64
	first := true
	for _, v := range bm25 {
		if first {
			minLex, maxLex = v, v
			first = false
			continue
		}
		if v < minLex {
			minLex = v
		}
		if v > maxLex {
			maxLex = v
		}
	}
	lexRange := maxLex - minLex

	for i := range results {
		vecNorm := 0.5
		if vecRange > 0 {
			vecNorm = float64((results[i].Score - minVec) / vecRange)
		}

		lexScore, ok := bm25[results[i].Node]
		lexNorm := 0.0
		if ok {
			if lexRange > 0 {
				lexNorm = (lexScore - minLex) / lexRange
			} else {
				lexNorm = 1.0
			}
		}

		results[i].Score = float32((1-alpha)*vecNorm + alpha*lexNorm)
	}
}
