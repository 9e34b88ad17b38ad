package store

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/her-retrieval/her/internal/logging"
)

// EmbeddingCache adapts Store to the embedding.Cache interface (§4.10),
// serialising vectors as little-endian float32 blobs the way the
// teacher's vector_store.go persists embeddings (binary, not JSON, to
// keep large vectors compact).
type EmbeddingCache struct {
	store *Store
}

// NewEmbeddingCache wraps store for use as an embedding.Cache.
func NewEmbeddingCache(store *Store) *EmbeddingCache {
	return &EmbeddingCache{store: store}
}

// Get returns the cached vector for (contentHash, modelName), incrementing
// its hit counter on success.
func (c *EmbeddingCache) Get(contentHash, modelName string) ([]float32, bool) {
	c.store.mu.RLock()
	row := c.store.db.QueryRow(`
		SELECT vector, dim FROM embeddings WHERE content_hash = ? AND model_name = ?`, contentHash, modelName)

	var blob []byte
	var dim int
	err := row.Scan(&blob, &dim)
	c.store.mu.RUnlock()

	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logging.Get(logging.CategoryStore).Warn("embedding cache get failed: %v", err)
		}
		return nil, false
	}

	vec, err := decodeVector(blob, dim)
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("embedding cache decode failed: %v", err)
		return nil, false
	}

	c.store.mu.Lock()
	_, _ = c.store.db.Exec(`UPDATE embeddings SET hits = hits + 1 WHERE content_hash = ? AND model_name = ?`, contentHash, modelName)
	c.store.mu.Unlock()

	return vec, true
}

// Put stores (or replaces) vector for (contentHash, modelName).
func (c *EmbeddingCache) Put(contentHash, modelName string, vector []float32) {
	blob := encodeVector(vector)

	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	_, err := c.store.db.Exec(`
		INSERT INTO embeddings (content_hash, model_name, vector, dim, hits, updated_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(content_hash, model_name) DO UPDATE SET
			vector = excluded.vector, dim = excluded.dim, updated_at = excluded.updated_at`,
		contentHash, modelName, blob, len(vector), nowUnix())
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("embedding cache put failed: %v", err)
	}
}

func encodeVector(vec []float32) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(len(vec) * 4)
	for _, v := range vec {
		_ = binary.Write(buf, binary.LittleEndian, math.Float32bits(v))
	}
	return buf.Bytes()
}

func decodeVector(blob []byte, dim int) ([]float32, error) {
	if len(blob) != dim*4 {
		return nil, fmt.Errorf("embedding blob length %d does not match dim %d", len(blob), dim)
	}
	out := make([]float32, dim)
	for i := 0; i < dim; i++ {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
