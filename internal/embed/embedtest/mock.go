// Package embedtest provides a deterministic embed.Provider for engine
// tests: no network calls, reproducible vectors, and optional failure
// injection for exercising retry and partial-result paths.
package embedtest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ngmks/leann/internal/embed"
)

// Provider is a deterministic, in-memory embed.Provider. For a text
// registered via Seed it returns exactly that vector, so exact-match and
// recompute-parity tests can assert on precise distances; any other text
// gets a stable hash-derived vector.
type Provider struct {
	modelID    string
	dimension  int
	normalized bool

	mu      sync.Mutex
	vecByText map[string][]float32

	calls int64

	// FailAfter, if > 0, causes every call at or past this count to fail
	// with embed.FailureTransient. FailPermanentAfter takes priority if
	// also set and reached.
	FailAfter         int64
	FailPermanentAfter int64
}

// New constructs a mock provider with the given model id and dimension.
func New(modelID string, dimension int) *Provider {
	return &Provider{
		modelID:   modelID,
		dimension: dimension,
		vecByText: make(map[string][]float32),
	}
}

// Seed registers the exact vector to return for a given text, letting
// tests construct known geometric configurations.
func (p *Provider) Seed(text string, vec []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vecByText[text] = vec
}

// SetNormalized marks vectors returned by this provider as pre-normalized.
func (p *Provider) SetNormalized(v bool) { p.normalized = v }

func (p *Provider) ModelID() string { return p.modelID }
func (p *Provider) Dimension() int  { return p.dimension }
func (p *Provider) Normalized() bool { return p.normalized }

// Calls returns the number of Encode invocations made so far.
func (p *Provider) Calls() int64 { return atomic.LoadInt64(&p.calls) }

func (p *Provider) Encode(ctx context.Context, texts []string, kind embed.Kind) ([][]float32, error) {
	n := atomic.AddInt64(&p.calls, 1)

	if p.FailPermanentAfter > 0 && n >= p.FailPermanentAfter {
		return nil, &embed.Error{Mode: embed.FailurePermanent, Message: "mock: permanent failure injected"}
	}
	if p.FailAfter > 0 && n >= p.FailAfter {
		return nil, &embed.Error{Mode: embed.FailureTransient, Message: "mock: transient failure injected"}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := p.vecByText[t]; ok {
			out[i] = v
			continue
		}
		out[i] = p.hashVector(t)
	}
	return out, nil
}

// hashVector derives a stable pseudo-random vector from text so
// unseeded calls are still deterministic across runs.
func (p *Provider) hashVector(text string) []float32 {
	var h uint32 = 2166136261
	for i := 0; i < len(text); i++ {
		h ^= uint32(text[i])
		h *= 16777619
	}
	vec := make([]float32, p.dimension)
	for d := range vec {
		h ^= uint32(d) * 2654435761
		h *= 16777619
		vec[d] = float32(h%2000)/1000 - 1 // in [-1, 1)
	}
	return vec
}

var _ embed.Provider = (*Provider)(nil)
