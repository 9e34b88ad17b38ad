package embedding

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineDeterministicDefault(t *testing.T) {
	eng, err := NewEngine(Config{Provider: "deterministic", TextModel: "minilm-local"}, KindText)
	require.NoError(t, err)
	assert.Equal(t, textDimensions, eng.Dimensions())
}

func TestNewEngineHTMLDimensions(t *testing.T) {
	eng, err := NewEngine(Config{Provider: "deterministic", HTMLModel: "markuplm-local"}, KindHTML)
	require.NoError(t, err)
	assert.Equal(t, htmlDimensions, eng.Dimensions())
}

func TestNewEngineUnsupportedProvider(t *testing.T) {
	_, err := NewEngine(Config{Provider: "bogus"}, KindText)
	assert.Error(t, err)
}

func TestDeterministicEmbedIsStable(t *testing.T) {
	eng := NewDeterministicEngine("minilm-local", 384)
	a, err := eng.Embed(context.Background(), "Submit the form")
	require.NoError(t, err)
	b, err := eng.Embed(context.Background(), "Submit the form")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeterministicEmbedDistinctTextsDiffer(t *testing.T) {
	eng := NewDeterministicEngine("minilm-local", 384)
	a, _ := eng.Embed(context.Background(), "Submit the form")
	b, _ := eng.Embed(context.Background(), "Cancel the request")
	assert.NotEqual(t, a, b)
}

func TestCosineSimilarityIdentical(t *testing.T) {
	eng := NewDeterministicEngine("minilm-local", 384)
	v, _ := eng.Embed(context.Background(), "hello world")
	sim, err := CosineSimilarity(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 0.0001)
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	assert.Error(t, err)
}

func TestFindTopKOrdersBySimilarity(t *testing.T) {
	eng := NewDeterministicEngine("minilm-local", 384)
	query, _ := eng.Embed(context.Background(), "Submit")
	same, _ := eng.Embed(context.Background(), "Submit")
	other, _ := eng.Embed(context.Background(), "Totally different phrase here")

	results, err := FindTopK(query, [][]float32{other, same}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Index)
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]float32
	gets int
	puts int
}

func newMemCache() *memCache { return &memCache{data: map[string][]float32{}} }

func (m *memCache) Get(contentHash, modelName string) ([]float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.data[contentHash+"|"+modelName]
	return v, ok
}

func (m *memCache) Put(contentHash, modelName string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.data[contentHash+"|"+modelName] = vector
}

func TestCachingEngineCachesAcrossCalls(t *testing.T) {
	inner := NewDeterministicEngine("minilm-local", 384)
	cache := newMemCache()
	ce := NewCachingEngine(inner, cache)

	v1, err := ce.Embed(context.Background(), "Submit")
	require.NoError(t, err)
	v2, err := ce.Embed(context.Background(), "Submit")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, cache.puts)
}

func TestCachingEngineBatchOnlyMissesCompute(t *testing.T) {
	inner := NewDeterministicEngine("minilm-local", 384)
	cache := newMemCache()
	ce := NewCachingEngine(inner, cache)

	_, err := ce.Embed(context.Background(), "Submit")
	require.NoError(t, err)

	out, err := ce.EmbedBatch(context.Background(), []string{"Submit", "Cancel"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 2, cache.puts) // one from Embed, one from the Cancel miss
}

func TestContentHashStable(t *testing.T) {
	assert.Equal(t, ContentHash("abc"), ContentHash("abc"))
	assert.NotEqual(t, ContentHash("abc"), ContentHash("abd"))
}

func TestTextRepresentationPrefixesHierarchy(t *testing.T) {
	rep := TextRepresentation("Submit", []string{"html", "body", "form"})
	assert.Equal(t, "html > body > form :: Submit", rep)
}

func TestSyntheticQueryWrapperPerAction(t *testing.T) {
	assert.Equal(t, "<button>Submit</button>", SyntheticQueryWrapper("click", "Submit"))
	assert.Equal(t, `<input placeholder="Username">`, SyntheticQueryWrapper("type", "Username"))
	assert.Equal(t, "<div>Welcome</div>", SyntheticQueryWrapper("validate", "Welcome"))
}
