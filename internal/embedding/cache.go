// Caching/coalescing decorator over an EmbeddingEngine: looks entries up
// by content_hash in a backing Cache (the SQLite-backed embedding cache,
// §4.10) before calling the underlying engine, and coalesces concurrent
// identical requests with golang.org/x/sync/singleflight the way the
// teacher coalesces concurrent duplicate work in its vector store lookups.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/her-retrieval/her/internal/hierarchy"
	"github.com/her-retrieval/her/internal/logging"
	"golang.org/x/sync/singleflight"
)

// Cache is the persistence boundary the embedding cache (§4.10)
// satisfies; kept minimal so this package doesn't import internal/store.
type Cache interface {
	Get(contentHash, modelName string) ([]float32, bool)
	Put(contentHash, modelName string, vector []float32)
}

// CacheObserver is notified of each cache lookup outcome. Kept as a
// one-method interface (rather than importing internal/metrics directly)
// so this package never depends on the metrics stack; internal/pipeline
// adapts a *metrics.Recorder to it when wiring an Orchestrator.
type CacheObserver interface {
	Observe(hit bool)
}

// CachingEngine wraps an EmbeddingEngine with a persistent cache and
// in-flight request coalescing.
type CachingEngine struct {
	inner    EmbeddingEngine
	cache    Cache
	observer CacheObserver
	group    singleflight.Group
}

// NewCachingEngine wraps inner with cache-then-compute semantics.
func NewCachingEngine(inner EmbeddingEngine, cache Cache) *CachingEngine {
	return &CachingEngine{inner: inner, cache: cache}
}

// WithObserver attaches a cache-hit/miss observer (e.g. metrics
// counters) and returns the same engine for chaining.
func (c *CachingEngine) WithObserver(observer CacheObserver) *CachingEngine {
	c.observer = observer
	return c
}

func (c *CachingEngine) notify(hit bool) {
	if c.observer != nil {
		c.observer.Observe(hit)
	}
}

func (c *CachingEngine) Dimensions() int { return c.inner.Dimensions() }
func (c *CachingEngine) Name() string    { return c.inner.Name() }

// Embed returns the cached vector for text's content hash if present,
// else computes, stores, and returns it. Concurrent calls for the same
// text share one underlying compute.
func (c *CachingEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := ContentHash(text)
	if vec, ok := c.cache.Get(hash, c.inner.Name()); ok {
		logging.EmbeddingDebug("cache hit content_hash=%s model=%s", hash, c.inner.Name())
		c.notify(true)
		return vec, nil
	}
	c.notify(false)

	v, err, _ := c.group.Do(hash+"|"+c.inner.Name(), func() (interface{}, error) {
		vec, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.cache.Put(hash, c.inner.Name(), vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// EmbedBatch embeds each text through the cache-then-compute path,
// grouping only the uncached misses into one underlying batch call.
func (c *CachingEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, t := range texts {
		hash := ContentHash(t)
		if vec, ok := c.cache.Get(hash, c.inner.Name()); ok {
			out[i] = vec
			c.notify(true)
			continue
		}
		c.notify(false)
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	computed, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = computed[j]
		c.cache.Put(ContentHash(texts[idx]), c.inner.Name(), computed[j])
	}
	return out, nil
}

// ContentHash is the stable cache key for a piece of text/HTML content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// TextRepresentation builds the per-node text representation used by the
// MiniLM shortlist stage (§4.6): inner text, optionally prefixed by the
// hierarchy path.
func TextRepresentation(innerText string, hierarchyPath []string) string {
	if len(hierarchyPath) == 0 {
		return innerText
	}
	prefix := ""
	for i, tag := range hierarchyPath {
		if i > 0 {
			prefix += " > "
		}
		prefix += tag
	}
	return prefix + " :: " + innerText
}

// SyntheticQueryWrapper builds the HTML-space query wrapper of §4.6 so
// the query embedding lives in the same distribution as element
// embeddings: "<button>", `<input placeholder=…>`, "<select>", or a
// "<div>" default. The actual markup assembly lives in internal/hierarchy
// (goquery-based), alongside the rest of this package's HTML-fragment
// construction.
func SyntheticQueryWrapper(action string, query string) string {
	return hierarchy.QueryWrapper(action, query)
}
