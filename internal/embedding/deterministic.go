// Deterministic local embedding backend: used as the default engine and
// in tests, so the retrieval pipeline works end-to-end with no network
// or model assets. It hashes n-grams of the input into a fixed-size
// vector (a feature-hashing / "hashing trick" encoder), which is
// deterministic, offline, and stable across runs — unlike the teacher's
// Ollama/GenAI backends it has no learned semantics, so callers that need
// real recall should configure provider=genai.
package embedding

import (
	"context"
	"hash/fnv"
	"strings"
)

// DeterministicEngine embeds text via feature hashing into a fixed-size,
// L2-normalised vector.
type DeterministicEngine struct {
	model string
	dims  int
}

// NewDeterministicEngine constructs the fallback/offline embedding engine.
func NewDeterministicEngine(model string, dims int) *DeterministicEngine {
	if dims <= 0 {
		dims = textDimensions
	}
	return &DeterministicEngine{model: model, dims: dims}
}

func (e *DeterministicEngine) Dimensions() int { return e.dims }
func (e *DeterministicEngine) Name() string    { return "deterministic:" + e.model }

func (e *DeterministicEngine) Embed(_ context.Context, text string) ([]float32, error) {
	return hashEmbed(text, e.dims), nil
}

func (e *DeterministicEngine) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t, e.dims)
	}
	return out, nil
}

// hashEmbed hashes each token (and adjacent token bigram) of text into a
// bucket of a dims-length vector, signed by a second hash so cancellation
// happens the way random-projection hashing would, then L2-normalises.
func hashEmbed(text string, dims int) []float32 {
	vec := make([]float32, dims)
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return vec
	}

	feed := func(s string) {
		h := fnv.New32a()
		h.Write([]byte(s))
		bucket := int(h.Sum32() % uint32(dims))

		sign := fnv.New32a()
		sign.Write([]byte(s + "#sign"))
		if sign.Sum32()%2 == 0 {
			vec[bucket] += 1.0
		} else {
			vec[bucket] -= 1.0
		}
	}

	for _, tok := range tokens {
		feed(tok)
	}
	for i := 0; i+1 < len(tokens); i++ {
		feed(tokens[i] + "_" + tokens[i+1])
	}

	Normalize(vec)
	return vec
}
