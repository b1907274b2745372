// Package meta reads and writes the build manifest (meta.json): the
// single file that ties a passage store, graph file, and optional
// lexical sidecar together into one addressable index (§3, §6).
package meta

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	manifestVersion = 1
	manifestName    = "meta.json"
)

// HNSWParams is the manifest's backend-specific parameter block for the
// HNSW graph (§4.2).
type HNSWParams struct {
	M              int `json:"M"`
	EfConstruction int `json:"ef_construction"`
	EfSearch       int `json:"ef_search"`
}

// VamanaParams is the manifest's backend-specific parameter block for
// the Vamana graph (§4.2.5).
type VamanaParams struct {
	R     int     `json:"R"`
	L     int     `json:"L"`
	Alpha float32 `json:"alpha"`
}

// Files records the on-disk artifact names relative to the index
// directory, so the directory can be relocated as a unit.
type Files struct {
	Passages   string `json:"passages"`
	Graph      string `json:"graph"`
	Embeddings string `json:"embeddings,omitempty"`
	Lexical    string `json:"lexical,omitempty"`
}

// Manifest is the decoded form of meta.json. Extra carries any keys this
// build of the engine doesn't recognize, so round-tripping a manifest
// written by a newer version never silently drops data.
type Manifest struct {
	Version      int      `json:"version"`
	Backend      string   `json:"backend"`
	NumPassages  int      `json:"num_passages"`
	Dimension    int      `json:"dimension"`
	Metric       string   `json:"metric"`
	ModelID      string   `json:"model_id"`
	Normalized   bool     `json:"normalized"`
	Recompute    bool     `json:"recompute"`
	Compact      bool     `json:"compact"`
	HNSW         *HNSWParams   `json:"hnsw,omitempty"`
	Vamana       *VamanaParams `json:"vamana,omitempty"`
	Files        Files    `json:"files"`
	Tokenizer    string   `json:"tokenizer,omitempty"`
	BuildFingerprint     string `json:"build_fingerprint"`
	QueryPromptTemplate    string `json:"query_prompt_template,omitempty"`
	DocumentPromptTemplate string `json:"document_prompt_template,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Path returns the meta.json path for an index directory.
func Path(dir string) string {
	return filepath.Join(dir, manifestName)
}

// Load reads and decodes meta.json from dir.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		return nil, fmt.Errorf("meta: read %s: %w", Path(dir), err)
	}
	return decode(data)
}

func decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("meta: decode manifest: %w", err)
	}

	// Capture unknown top-level keys so they survive a re-save by a build
	// that doesn't recognize them.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("meta: decode manifest keys: %w", err)
	}
	for _, known := range knownKeys {
		delete(raw, known)
	}
	m.Extra = raw
	return &m, nil
}

var knownKeys = []string{
	"version", "backend", "num_passages", "dimension", "metric", "model_id",
	"normalized", "recompute", "compact", "hnsw", "vamana", "files",
	"tokenizer", "build_fingerprint", "query_prompt_template", "document_prompt_template",
}

// Save atomically writes the manifest to dir (temp file + rename, same
// discipline as the passage index — §3's "writer writes them atomically").
func (m *Manifest) Save(dir string) error {
	if m.Version == 0 {
		m.Version = manifestVersion
	}

	known, err := json.Marshal(*m)
	if err != nil {
		return fmt.Errorf("meta: marshal manifest: %w", err)
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return fmt.Errorf("meta: remarshal manifest: %w", err)
	}
	for k, v := range m.Extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}

	out, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("meta: marshal merged manifest: %w", err)
	}

	path := Path(dir)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, out, 0o644); err != nil {
		return fmt.Errorf("meta: write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("meta: rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}

// BuildFingerprint computes the idempotent-rebuild fingerprint: a sha256
// over the embedding model id, dimension, passage count, sorted
// parameter key=value pairs, and sorted passage ids (law L2: rebuilding
// from the same inputs in a different ingest order yields the same
// fingerprint).
func BuildFingerprint(modelID string, dimension, numPassages int, params map[string]string, passageIDs []string) string {
	h := sha256.New()
	fmt.Fprintf(h, "model_id=%s\n", modelID)
	fmt.Fprintf(h, "dimension=%d\n", dimension)
	fmt.Fprintf(h, "num_passages=%d\n", numPassages)

	paramKeys := make([]string, 0, len(params))
	for k := range params {
		paramKeys = append(paramKeys, k)
	}
	sort.Strings(paramKeys)
	for _, k := range paramKeys {
		fmt.Fprintf(h, "param:%s=%s\n", k, params[k])
	}

	ids := append([]string(nil), passageIDs...)
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(h, "id:%s\n", id)
	}

	return hex.EncodeToString(h.Sum(nil))
}
