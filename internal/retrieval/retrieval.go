// Package retrieval implements the two-stage hybrid retriever of §4.6: a
// cheap MiniLM-style shortlist over raw node text, followed by a
// MarkupLM-style rerank over bounded hierarchical HTML context (§4.3),
// fused with the intent-aware heuristics of internal/rerank. This is the
// "semantic" mode; internal/matcher implements the deterministic
// "no-semantic" mode the orchestrator falls back to.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/her-retrieval/her/internal/embedding"
	"github.com/her-retrieval/her/internal/hierarchy"
	"github.com/her-retrieval/her/internal/logging"
	"github.com/her-retrieval/her/internal/model"
	"github.com/her-retrieval/her/internal/rerank"
	"github.com/her-retrieval/her/internal/vectorindex"
)

const (
	minShortlist           = 20
	shortlistMultiplier    = 3
	maxRerankCandidates    = 5
	nonInteractiveFallback = 5
	rerankMargin           = 0.1
)

// Retriever runs the shortlist-then-rerank pipeline for one frame.
type Retriever struct {
	mini  embedding.EmbeddingEngine
	html  embedding.EmbeddingEngine
	index *vectorindex.Manager
}

// New builds a Retriever over the given mini (shortlist-stage) and html
// (rerank-stage) embedding engines, sharing one per-frame vector index.
func New(mini, html embedding.EmbeddingEngine, index *vectorindex.Manager) *Retriever {
	return &Retriever{mini: mini, html: html, index: index}
}

// IndexFrame embeds every node's text representation into the per-frame
// mini vector index so Retrieve can search it. Call once per snapshot;
// vectorindex.Manager.Upsert never dedups, so indexing the same frame hash
// twice duplicates entries.
func (r *Retriever) IndexFrame(ctx context.Context, frameHash string, nodes []model.CanonicalNode) error {
	timer := logging.StartTimer(logging.CategoryRetrieval, "IndexFrame")
	defer timer.Stop()

	for _, n := range nodes {
		text := embedding.TextRepresentation(textOf(n), hierarchyOf(n))
		vec, err := r.mini.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("failed to embed node for mini index: %w", err)
		}
		r.index.Upsert(frameHash, embedding.KindText, vec, vectorindex.Meta{
			BackendNodeID: n.BackendNodeID,
			Signature:     n.Signature,
		})
	}
	return nil
}

// Retrieve runs the shortlist+rerank pipeline for one parsed intent over
// one snapshot's canonical nodes, returning candidates ranked by the
// intent-aware heuristics in internal/rerank.
func (r *Retriever) Retrieve(ctx context.Context, intent model.ParsedIntent, frameHash string, nodes []model.CanonicalNode, topK int) ([]model.Candidate, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Retrieve")
	defer timer.Stop()

	if topK <= 0 {
		topK = 1
	}
	k1 := minShortlist
	if v := shortlistMultiplier * topK; v > k1 {
		k1 = v
	}

	byID := make(map[string]model.CanonicalNode, len(nodes))
	for _, n := range nodes {
		byID[n.BackendNodeID] = n
	}

	queryText := embedding.SyntheticQueryWrapper(string(intent.Action), intent.Target)
	queryVec, err := r.mini.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	shortlist, err := r.shortlist(frameHash, queryVec, byID, intent.Action, k1)
	if err != nil {
		return nil, err
	}
	if len(shortlist) == 0 {
		return nil, model.NewError("Retrieve", model.KindElementNotFound, "no candidates in shortlist")
	}

	candidates, err := r.rerankWithHTML(ctx, intent, shortlist)
	if err != nil {
		return nil, err
	}

	final := rerank.Apply(candidates, intent.Action, intent.Target)
	logging.RetrievalDebug("retrieved %d candidates (shortlist=%d) for target %q", len(final), len(shortlist), intent.Target)
	return final, nil
}

// shortlist searches the mini index for the k1 nearest nodes to queryVec.
// For click intents it favors interactive nodes, padding with at most
// nonInteractiveFallback non-interactive nodes so a click never starves on
// a page where nothing nearby is tagged interactive (§4.6).
func (r *Retriever) shortlist(frameHash string, queryVec []float32, byID map[string]model.CanonicalNode, action model.Action, k1 int) ([]model.CanonicalNode, error) {
	entries, err := r.index.Search(frameHash, embedding.KindText, queryVec, k1)
	if err != nil {
		return nil, fmt.Errorf("failed to search mini index: %w", err)
	}

	var interactive, nonInteractive []model.CanonicalNode
	for _, e := range entries {
		n, ok := byID[e.Meta.BackendNodeID]
		if !ok {
			continue
		}
		if n.IsInteractive {
			interactive = append(interactive, n)
		} else {
			nonInteractive = append(nonInteractive, n)
		}
	}

	if action != model.ActionClick {
		return append(interactive, nonInteractive...), nil
	}
	if len(nonInteractive) > nonInteractiveFallback {
		nonInteractive = nonInteractive[:nonInteractiveFallback]
	}
	return append(interactive, nonInteractive...), nil
}

// rerankWithHTML caps shortlist to maxRerankCandidates *before* running any
// html-stage embed calls (§4.6 step 2: "hard cap to respect the HTML
// scorer's input budget" — the cap bounds the expensive embed_html calls
// themselves, not just the candidates returned from scoring them), then
// embeds each survivor's bounded hierarchical HTML context (§4.3) with the
// html-stage engine and scores it against the same intent wrapped as an
// html-stage query.
func (r *Retriever) rerankWithHTML(ctx context.Context, intent model.ParsedIntent, shortlist []model.CanonicalNode) ([]model.Candidate, error) {
	if len(shortlist) > maxRerankCandidates {
		shortlist = shortlist[:maxRerankCandidates]
	}

	queryText := embedding.SyntheticQueryWrapper(string(intent.Action), intent.Target)
	queryVec, err := r.html.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed html query: %w", err)
	}

	type scored struct {
		node  model.CanonicalNode
		score float64
	}
	results := make([]scored, 0, len(shortlist))
	for _, n := range shortlist {
		fragment := hierarchy.Build(n, shortlist)
		vec, err := r.html.Embed(ctx, fragment)
		if err != nil {
			return nil, fmt.Errorf("failed to embed hierarchy context: %w", err)
		}
		sim, err := embedding.CosineSimilarity(queryVec, vec)
		if err != nil {
			return nil, fmt.Errorf("failed to score hierarchy context: %w", err)
		}
		results = append(results, scored{node: n, score: sim})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })

	candidates := make([]model.Candidate, len(results))
	for i, s := range results {
		candidates[i] = model.Candidate{
			Node:    s.node,
			Base:    s.score,
			Score:   s.score,
			Reasons: []string{fmt.Sprintf("html-rerank-similarity=%.3f", s.score)},
		}
	}
	return candidates, nil
}

// Trusted reports whether the top candidate's margin over the runner-up
// clears the confidence gate that lets the orchestrator act without
// falling back (§4.6).
func Trusted(candidates []model.Candidate) bool {
	return rerank.TrustRerankOrdering(candidates, rerankMargin)
}

func textOf(n model.CanonicalNode) string {
	if n.InnerText != "" {
		return n.InnerText
	}
	for _, v := range []string{n.AriaLabel, n.Title, n.Placeholder, n.Name} {
		if v != "" {
			return v
		}
	}
	return n.Tag
}

func hierarchyOf(n model.CanonicalNode) []string {
	if len(n.Raw.Hierarchy) > 0 {
		return n.Raw.Hierarchy
	}
	if n.ParentTag != "" {
		return []string{n.ParentTag}
	}
	return nil
}
