// Package vectorindex holds the per-frame, in-memory "mini"/"html"
// vector indices of §4.5: brute-force cosine search over small
// candidate sets, with an LRU cap on how many frame indices are kept
// resident. Grounded on the teacher's in-process store locking discipline
// (internal/store/local_vector.go guards its in-memory state with a
// sync.RWMutex the same way), adapted from a keyword-LIKE fallback into
// the spec's actual brute-force cosine search.
package vectorindex

import (
	"container/list"
	"sync"

	"github.com/her-retrieval/her/internal/embedding"
	"github.com/her-retrieval/her/internal/logging"
)

// Meta is the metadata attached to one upserted vector: enough to map a
// search hit back to its originating node.
type Meta struct {
	BackendNodeID string
	Signature     string
}

// Entry is one upserted (vector, meta) pair.
type Entry struct {
	Vector []float32
	Meta   Meta
}

// frameStore holds the two parallel spaces for one frame_hash.
type frameStore struct {
	mini []Entry
	html []Entry
}

// Manager is the LRU-bounded collection of per-frame indices (§4.5:
// "an LRU governs how many frame indices are retained").
type Manager struct {
	mu       sync.Mutex
	maxFrame int
	order    *list.List
	elems    map[string]*list.Element
	stores   map[string]*frameStore
}

// NewManager constructs a Manager capped at maxFrames resident frame
// indices (default 10, per §3/§5).
func NewManager(maxFrames int) *Manager {
	if maxFrames <= 0 {
		maxFrames = 10
	}
	return &Manager{
		maxFrame: maxFrames,
		order:    list.New(),
		elems:    make(map[string]*list.Element),
		stores:   make(map[string]*frameStore),
	}
}

// Upsert appends vector/meta to frameHash's kind-space. It never dedups
// (§4.5: "indices do not resize to dedup").
func (m *Manager) Upsert(frameHash string, kind embedding.Kind, vector []float32, meta Meta) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fs := m.touch(frameHash)
	entry := Entry{Vector: vector, Meta: meta}
	switch kind {
	case embedding.KindHTML:
		fs.html = append(fs.html, entry)
	default:
		fs.mini = append(fs.mini, entry)
	}
	logging.VectorIndexDebug("upsert frame=%s kind=%s backend_node_id=%s", frameHash, kind, meta.BackendNodeID)
}

// Search returns the top-k nearest entries in frameHash's kind-space to
// query, by cosine similarity (§4.5).
func (m *Manager) Search(frameHash string, kind embedding.Kind, query []float32, k int) ([]Entry, error) {
	timer := logging.StartTimer(logging.CategoryVectorIndex, "Search")
	defer timer.Stop()

	m.mu.Lock()
	fs, ok := m.stores[frameHash]
	if ok {
		m.touch(frameHash)
	}
	var space []Entry
	if ok {
		if kind == embedding.KindHTML {
			space = append([]Entry(nil), fs.html...)
		} else {
			space = append([]Entry(nil), fs.mini...)
		}
	}
	m.mu.Unlock()

	if len(space) == 0 {
		return nil, nil
	}

	corpus := make([][]float32, len(space))
	for i, e := range space {
		corpus[i] = e.Vector
	}
	results, err := embedding.FindTopK(query, corpus, k)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, len(results))
	for i, r := range results {
		out[i] = space[r.Index]
	}
	return out, nil
}

// Count returns how many entries frameHash's kind-space holds.
func (m *Manager) Count(frameHash string, kind embedding.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	fs, ok := m.stores[frameHash]
	if !ok {
		return 0
	}
	if kind == embedding.KindHTML {
		return len(fs.html)
	}
	return len(fs.mini)
}

// touch marks frameHash as most-recently-used, creating its store if
// absent and evicting the least-recently-used frame if the cap is
// exceeded. Caller must hold m.mu.
func (m *Manager) touch(frameHash string) *frameStore {
	if elem, ok := m.elems[frameHash]; ok {
		m.order.MoveToFront(elem)
		return m.stores[frameHash]
	}

	fs := &frameStore{}
	m.stores[frameHash] = fs
	m.elems[frameHash] = m.order.PushFront(frameHash)

	if m.order.Len() > m.maxFrame {
		oldest := m.order.Back()
		if oldest != nil {
			evicted := oldest.Value.(string)
			m.order.Remove(oldest)
			delete(m.elems, evicted)
			delete(m.stores, evicted)
			logging.VectorIndexDebug("evicted frame=%s (LRU cap=%d)", evicted, m.maxFrame)
		}
	}
	return fs
}
