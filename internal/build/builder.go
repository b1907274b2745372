// Package build orchestrates the five-phase index build: ingest
// passages, embed them in worker-pool batches, pipe vectors to a graph
// backend, optionally compact/prune, and atomically finalize the
// manifest (§4.6). A build that dies mid-way leaves no new manifest
// (ManifestExists reports whether one is present); the next Build
// garbage-collects stale temp files by age and rewrites every artifact
// from scratch.
package build

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ngmks/leann/internal/embed"
	"github.com/ngmks/leann/internal/graph"
	"github.com/ngmks/leann/internal/lexical"
	"github.com/ngmks/leann/internal/meta"
	"github.com/ngmks/leann/internal/obs"
	"github.com/ngmks/leann/internal/passage"
	"github.com/ngmks/leann/internal/util"
)

// IDStrategy selects how a document without a caller-supplied id is
// assigned one. Defined locally (rather than reusing the public
// package's enum) because the public package imports this one.
type IDStrategy int

const (
	IDContentHash IDStrategy = iota
	IDUUID
)

// Document is one unit of ingest input.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]interface{}
}

// Params configures one Build call.
type Params struct {
	Dir         string
	IndexName   string
	Backend     graph.Backend
	BackendName string // "hnsw" or "vamana", recorded in the manifest
	Provider    embed.Provider
	Metric      string // recorded in the manifest; distance math lives with the caller's DistanceFunc
	Dist        graph.DistanceFunc

	IDStrategy       IDStrategy
	Recompute        bool // true: vectors are never persisted to a blob, only used transiently during graph build
	Compact          bool // true: run backend-specific compaction after build, if supported
	PruneAlpha       float32
	StrictDuplicates bool // true: abort the build on a duplicate id instead of skipping it (§7 DuplicateId policy)

	BatchSize int
	Workers   int
	Retry     embed.RetryPolicy

	HNSWParams   *meta.HNSWParams
	VamanaParams *meta.VamanaParams
	ExtraParams  map[string]string // merged into the build fingerprint's param set

	Progress func(phase string, done, total int)
	Metrics  *obs.Metrics
	Log      zerolog.Logger
}

const (
	defaultBatchSize = 32
	defaultWorkers   = 4
	// staleTempAge is how long a leftover *.tmp file from a crashed build
	// is tolerated before Build treats it as garbage and removes it.
	staleTempAge = time.Hour
)

func (p Params) withDefaults() Params {
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}
	if p.Workers <= 0 {
		p.Workers = defaultWorkers
	}
	if p.IndexName == "" {
		p.IndexName = "index"
	}
	return p
}

// Result summarizes a completed build.
type Result struct {
	NumPassages int
	Manifest    *meta.Manifest
}

// Build runs the full five-phase pipeline over documents, producing a
// manifest in Dir.
func Build(ctx context.Context, p Params, documents []Document) (*Result, error) {
	p = p.withDefaults()
	log := obs.Component(p.Log, "build")

	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("build: create dir %s: %w", p.Dir, err)
	}

	unlock, err := acquireLock(p.Dir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	gcStaleTempFiles(p.Dir, staleTempAge)

	p.Metrics.IncBuildsStarted()
	result, err := runPhases(ctx, p, documents, log)
	if err != nil {
		p.Metrics.IncBuildsFailed()
		return nil, err
	}
	return result, nil
}

func runPhases(ctx context.Context, p Params, documents []Document, log zerolog.Logger) (*Result, error) {
	// Phase 1: ingest. Documents are sorted by id before being appended,
	// so the node index a passage ends up with depends only on its id,
	// never on the order the caller happened to supply documents in —
	// the precondition for law L2 (idempotent rebuild) to also hold at
	// the graph-file level, not just the build fingerprint.
	builder, err := passage.NewBuilder(p.Dir, p.IndexName)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	ordered := make([]Document, len(documents))
	copy(ordered, documents)
	for i := range ordered {
		if ordered[i].ID == "" {
			ordered[i].ID = assignID(ordered[i].Text, p.IDStrategy)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	texts := make([]string, 0, len(ordered))
	ids := make([]string, 0, len(ordered))
	metadatas := make([]map[string]interface{}, 0, len(ordered))
	skipped := 0
	for _, doc := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := builder.Append(doc.ID, doc.Text, doc.Metadata); err != nil {
			if err == passage.ErrDuplicateID {
				if p.StrictDuplicates {
					return nil, fmt.Errorf("build: duplicate passage id %q: %w", doc.ID, passage.ErrDuplicateID)
				}
				skipped++
				p.Metrics.IncPassagesSkipped()
				log.Debug().Str("id", doc.ID).Msg("skipping duplicate passage id")
				continue
			}
			return nil, fmt.Errorf("build: ingest %q: %w", doc.ID, err)
		}
		texts = append(texts, doc.Text)
		ids = append(ids, doc.ID)
		metadatas = append(metadatas, doc.Metadata)
		p.Metrics.IncPassagesIngested()
	}
	if err := builder.Finalize(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	if p.Progress != nil {
		p.Progress("ingest", len(texts), len(texts))
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("build: cannot build an index from an empty corpus")
	}

	// Phase 2: embed, in worker-pool batches. Vectors either stream into
	// a transient buffer (recompute mode, only the graph build needs
	// them) or are accumulated for a persisted embedding blob (the
	// non-recompute searcher's source of truth).
	n := len(texts)
	dim := p.Provider.Dimension()
	vectors := make([][]float32, n)

	batches := (n + p.BatchSize - 1) / p.BatchSize
	embedErr := util.RunBatched(ctx, p.Workers, batches, func(ctx context.Context, batch int) error {
		start := batch * p.BatchSize
		end := start + p.BatchSize
		if end > n {
			end = n
		}
		vecs, err := embed.EncodeWithRetry(ctx, p.Retry, func(attempt int, err error) {
			p.Metrics.IncProviderRetry()
		}, func(ctx context.Context) ([][]float32, error) {
			return p.Provider.Encode(ctx, texts[start:end], embed.KindDocument)
		})
		if err != nil {
			return fmt.Errorf("build: embed batch [%d,%d): %w", start, end, err)
		}
		copy(vectors[start:end], vecs)
		return nil
	})
	if embedErr != nil {
		return nil, embedErr
	}
	if p.Progress != nil {
		p.Progress("embed", n, n)
	}

	// Phase 3: graph build. The backend only ever sees vectors through
	// this in-memory expander, regardless of whether they'll ultimately
	// be persisted to the blob or discarded after build (recompute).
	expand := func(ctx context.Context, nodes []uint32) ([][]float32, error) {
		out := make([][]float32, len(nodes))
		for i, node := range nodes {
			if int(node) >= len(vectors) {
				return nil, fmt.Errorf("build: node %d out of range", node)
			}
			out[i] = vectors[node]
		}
		return out, nil
	}
	progress := func(done, total int) {
		if p.Progress != nil {
			p.Progress("graph", done, total)
		}
	}
	if err := p.Backend.Build(ctx, n, expand, p.Dist, progress); err != nil {
		return nil, fmt.Errorf("build: graph build: %w", err)
	}

	// Phase 4: optional compact/prune.
	if p.Compact {
		if compactor, ok := p.Backend.(interface {
			Compact(ctx context.Context) ([]uint32, error)
		}); ok {
			oldToNew, err := compactor.Compact(ctx)
			if err != nil {
				return nil, fmt.Errorf("build: compact: %w", err)
			}
			vectors = applyPermutation(vectors, oldToNew)
			ids = applyStringPermutation(ids, oldToNew)
			texts = applyStringPermutation(texts, oldToNew)
			metadatas = applyMetadataPermutation(metadatas, oldToNew)
			// Compaction reorders dense node indices after the passage
			// store was already finalized in phase 1, so the store must
			// be rewritten under the same permutation or GetByNode(n)
			// disagrees with the graph's own node n (§4.2.3).
			if err := rewritePassageStore(p.Dir, p.IndexName, ids, texts, metadatas); err != nil {
				return nil, fmt.Errorf("build: rewrite passage store after compact: %w", err)
			}
			if p.Progress != nil {
				p.Progress("compact", n, n)
			}
		}
	}
	if p.PruneAlpha > 0 {
		if pruner, ok := p.Backend.(interface {
			Prune(ctx context.Context, threshold float32, expand graph.Expander, dist graph.DistanceFunc) error
		}); ok {
			if err := pruner.Prune(ctx, p.PruneAlpha, expand, p.Dist); err != nil {
				return nil, fmt.Errorf("build: prune: %w", err)
			}
			if p.Progress != nil {
				p.Progress("prune", n, n)
			}
		}
	}

	graphFile := p.IndexName
	if err := p.Backend.Save(p.Dir, graphFile); err != nil {
		return nil, fmt.Errorf("build: save graph: %w", err)
	}

	var lexicalFile string
	// Lexical sidecar is built lazily by the searcher on first hybrid
	// query (§4.5); the builder doesn't pre-populate it.

	var embeddingsFile string
	if !p.Recompute {
		if err := embed.WriteBlob(p.Dir, p.IndexName, dim, vectors); err != nil {
			return nil, fmt.Errorf("build: write embedding blob: %w", err)
		}
		embeddingsFile = p.IndexName
	}

	// Phase 5: finalize — atomically write the manifest with a build
	// fingerprint independent of ingestion order (law L2).
	params := map[string]string{}
	for k, v := range p.ExtraParams {
		params[k] = v
	}
	if p.HNSWParams != nil {
		params["hnsw.M"] = strconv.Itoa(p.HNSWParams.M)
		params["hnsw.ef_construction"] = strconv.Itoa(p.HNSWParams.EfConstruction)
	}
	if p.VamanaParams != nil {
		params["vamana.R"] = strconv.Itoa(p.VamanaParams.R)
		params["vamana.L"] = strconv.Itoa(p.VamanaParams.L)
	}

	fingerprint := meta.BuildFingerprint(p.Provider.ModelID(), dim, len(ids), params, ids)

	files := meta.Files{Passages: p.IndexName, Graph: graphFile, Embeddings: embeddingsFile, Lexical: lexicalFile}
	m := &meta.Manifest{
		Backend:          p.BackendName,
		NumPassages:      len(ids),
		Dimension:        dim,
		Metric:           p.Metric,
		ModelID:          p.Provider.ModelID(),
		Normalized:       p.Provider.Normalized(),
		Recompute:        p.Recompute,
		Compact:          p.Compact,
		HNSW:             p.HNSWParams,
		Vamana:           p.VamanaParams,
		Files:            files,
		Tokenizer:        lexical.TokenizerID,
		BuildFingerprint: fingerprint,
	}
	if err := m.Save(p.Dir); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	if p.Progress != nil {
		p.Progress("finalize", len(ids), len(ids))
	}

	log.Info().Int("passages", len(ids)).Int("skipped", skipped).Str("fingerprint", fingerprint).Msg("build complete")
	return &Result{NumPassages: len(ids), Manifest: m}, nil
}

func assignID(text string, strategy IDStrategy) string {
	switch strategy {
	case IDUUID:
		return uuid.NewString()
	default:
		sum := sha256.Sum256([]byte(text))
		return hex.EncodeToString(sum[:])
	}
}

func applyPermutation(vectors [][]float32, oldToNew []uint32) [][]float32 {
	out := make([][]float32, len(vectors))
	for old, nw := range oldToNew {
		out[nw] = vectors[old]
	}
	return out
}

func applyStringPermutation(ids []string, oldToNew []uint32) []string {
	out := make([]string, len(ids))
	for old, nw := range oldToNew {
		out[nw] = ids[old]
	}
	return out
}

func applyMetadataPermutation(metadatas []map[string]interface{}, oldToNew []uint32) []map[string]interface{} {
	out := make([]map[string]interface{}, len(metadatas))
	for old, nw := range oldToNew {
		out[nw] = metadatas[old]
	}
	return out
}

// rewritePassageStore replaces the on-disk passage store with ids/texts/
// metadatas in their current (already-permuted) order, so node index i
// in the store matches node index i in the compacted graph.
func rewritePassageStore(dir, name string, ids, texts []string, metadatas []map[string]interface{}) error {
	b, err := passage.NewBuilder(dir, name)
	if err != nil {
		return err
	}
	for i, id := range ids {
		if _, err := b.Append(id, texts[i], metadatas[i]); err != nil {
			return fmt.Errorf("re-append %q: %w", id, err)
		}
	}
	return b.Finalize()
}

func lockPath(dir string) string { return filepath.Join(dir, ".leann.lock") }

// acquireLock guards against concurrent writers to the same index
// directory (§3, "a lock file in the directory guards concurrent
// writers"). It is exclusive-create, not a stale-lock-aware flock: a
// crashed builder's lock file must be removed by an operator (or a
// future build pointed at a fresh directory) before another build of
// the same directory can proceed.
func acquireLock(dir string) (release func(), err error) {
	path := lockPath(dir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("build: index directory %s is locked by another build (remove %s if that build crashed)", dir, path)
		}
		return nil, fmt.Errorf("build: create lock %s: %w", path, err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return func() { os.Remove(path) }, nil
}

// gcStaleTempFiles removes leftover *.tmp files older than maxAge, the
// residue of a build that died between writing a temp file and
// renaming it into place (§4.6: "partial temp files are
// garbage-collected on open by age").
func gcStaleTempFiles(dir string, maxAge time.Duration) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".tmp" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}

// ManifestExists reports whether dir holds a usable manifest already,
// the signal a caller uses to distinguish "fresh build" from "crashed
// build, restart" (§4.6).
func ManifestExists(dir string) bool {
	_, err := os.Stat(meta.Path(dir))
	return err == nil
}
