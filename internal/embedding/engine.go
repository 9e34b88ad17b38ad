// Package embedding generates vector embeddings for text and HTML
// fragments, for both the MiniLM-style shortlist stage and the
// MarkupLM-style rerank stage of §4.6. The EmbeddingEngine interface,
// NewEngine factory, CosineSimilarity, and FindTopK are adapted nearly
// verbatim from the teacher's internal/embedding/engine.go, which
// defines the same shape for its Ollama/GenAI backends; this package
// swaps in a deterministic local backend (offline/test default) beside
// the GenAI backend.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/her-retrieval/her/internal/logging"
)

// EmbeddingEngine generates vector embeddings for text.
type EmbeddingEngine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// Config mirrors §6's embedding configuration surface.
type Config struct {
	Provider    string // "genai" or "deterministic"
	GenAIAPIKey string
	TextModel   string // minilm-style, 384-d
	HTMLModel   string // markuplm-style, 768-d
}

// Kind selects which of the two parallel spaces (§4.5) an engine serves.
type Kind string

const (
	KindText Kind = "mini" // 384-d
	KindHTML Kind = "html" // 768-d
)

const (
	textDimensions = 384
	htmlDimensions = 768
)

// NewEngine creates the text (mini) and html embedding engines for cfg.
func NewEngine(cfg Config, kind Kind) (EmbeddingEngine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	dims := textDimensions
	model := cfg.TextModel
	if kind == KindHTML {
		dims = htmlDimensions
		model = cfg.HTMLModel
	}

	logging.Embedding("creating embedding engine provider=%s kind=%s model=%s", cfg.Provider, kind, model)

	switch cfg.Provider {
	case "genai":
		engine, err := NewGenAIEngine(cfg.GenAIAPIKey, model, dims)
		if err != nil {
			logging.Get(logging.CategoryEmbedding).Error("failed to create genai engine: %v", err)
			return nil, err
		}
		return engine, nil
	case "deterministic", "":
		return NewDeterministicEngine(model, dims), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// CosineSimilarity computes cosine similarity between two equal-length
// vectors; 1 is identical, 0 orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}
	var dot, am, bm float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		am += float64(a[i]) * float64(a[i])
		bm += float64(b[i]) * float64(b[i])
	}
	if am == 0 || bm == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(am) * math.Sqrt(bm)), nil
}

// SimilarityResult is one scored corpus entry returned by FindTopK.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK returns the indices of the k vectors in corpus most similar
// to query by cosine similarity, descending.
func FindTopK(query []float32, corpus [][]float32, k int) ([]SimilarityResult, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "FindTopK")
	defer timer.Stop()

	if k <= 0 {
		k = 10
	}

	results := make([]SimilarityResult, 0, len(corpus))
	for i, vec := range corpus {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Normalize L2-normalises v in place, matching §4.5's "vectors stored
// L2-normalised so cosine is an inner product" invariant.
func Normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
