package leann

import "time"

// Passage is the atom of retrieval: stable id, UTF-8 text, and a
// free-form metadata map (§3). Metadata may carry an ISO-8601
// "timestamp" key used by time filters and date-based post-sort.
type Passage struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Document is the builder's ingest-time input: text plus optional caller
// id and metadata (§4.6 phase 1).
type Document struct {
	ID       string
	Text     string
	Metadata map[string]interface{}
}

// Result is a single search hit: the retrieved passage, its raw vector
// distance, and its final (possibly hybrid-rescored) score (§4.4).
type Result struct {
	Passage    Passage
	Distance   float32
	Score      float32
	NodeIndex  uint32
}

// SearchResponse is the Searcher's return value (§6, "Search API").
// Partial is set when the embedding provider exhausted its retries for
// some candidates and the result was degraded instead of aborted. An
// expired deadline is not tolerated this way: Search returns a
// KindDeadlineExceeded error instead.
type SearchResponse struct {
	Results []Result
	Partial bool
	Reason  string
}

// Backend selects the ANN graph algorithm a build uses (§4.2).
type Backend string

const (
	BackendHNSW    Backend = "hnsw"
	BackendVamana  Backend = "vamana"
)

// Metric is the distance metric recorded in the manifest (§6).
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

// SortBy controls the Searcher's optional post-sort step (§4.4 step 5).
// A date sort reorders only the k hits the relevance search returned;
// it never searches by date, so recall of the most recent passages is
// bounded by k.
type SortBy string

const (
	SortByRelevance SortBy = "relevance"
	SortByDateDesc  SortBy = "date_desc"
	SortByDateAsc   SortBy = "date_asc"
)

// IDStrategy selects how a Document without a caller-supplied id is
// assigned one during ingest (§4.6 phase 1).
type IDStrategy int

const (
	// IDContentHash derives the passage id as sha256(text) — the
	// default, and the strategy required for law L2 (idempotent
	// rebuild): re-ingesting identical text in a different order still
	// yields the same ids.
	IDContentHash IDStrategy = iota
	// IDUUID assigns a random UUID per document. Incompatible with
	// idempotent rebuilds; offered because the pack's UUID library is a
	// legitimate alternative id source for callers that pre-dedupe.
	IDUUID
)

// timestampOf extracts and parses the "timestamp" metadata key, used by
// date-based post-sort. Returns the zero time if absent or unparseable.
func timestampOf(metadata map[string]interface{}) time.Time {
	raw, ok := metadata["timestamp"]
	if !ok {
		return time.Time{}
	}
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
