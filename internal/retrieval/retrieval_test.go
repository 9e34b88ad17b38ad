package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/her-retrieval/her/internal/embedding"
	"github.com/her-retrieval/her/internal/model"
	"github.com/her-retrieval/her/internal/vectorindex"
)

func testRetriever() *Retriever {
	mini := embedding.NewDeterministicEngine("test-mini", 32)
	html := embedding.NewDeterministicEngine("test-html", 32)
	return New(mini, html, vectorindex.NewManager(10))
}

func node(id, text, parentTag string, interactive bool) model.CanonicalNode {
	return model.CanonicalNode{
		Tag:           "BUTTON",
		InnerText:     text,
		BackendNodeID: id,
		Signature:     id + "-sig",
		IsInteractive: interactive,
		ParentTag:     parentTag,
	}
}

func TestIndexAndRetrieveFindsClosestNode(t *testing.T) {
	ctx := context.Background()
	r := testRetriever()

	nodes := []model.CanonicalNode{
		node("n1", "Submit Order", "FORM", true),
		node("n2", "Cancel", "FORM", true),
		node("n3", "Unrelated filler copy", "DIV", false),
	}

	require.NoError(t, r.IndexFrame(ctx, "frame1", nodes))

	intent := model.ParsedIntent{Action: model.ActionClick, Target: "Submit Order"}
	candidates, err := r.Retrieve(ctx, intent, "frame1", nodes, 3)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	assert.Equal(t, "n1", candidates[0].Node.BackendNodeID)
}

func TestRetrieveEmptyFrameReturnsElementNotFound(t *testing.T) {
	ctx := context.Background()
	r := testRetriever()

	intent := model.ParsedIntent{Action: model.ActionClick, Target: "Submit"}
	_, err := r.Retrieve(ctx, intent, "unknown-frame", nil, 3)
	require.Error(t, err)

	kind, ok := model.AsKind(err)
	require.True(t, ok)
	assert.Equal(t, model.KindElementNotFound, kind)
}

func TestShortlistPadsNonInteractiveForClickCappedAtFive(t *testing.T) {
	r := testRetriever()

	byID := map[string]model.CanonicalNode{}
	for i := 0; i < 8; i++ {
		id := "ni" + string(rune('a'+i))
		byID[id] = node(id, "filler", "DIV", false)
	}

	// exercise the partition logic directly through shortlist (not the
	// public Retrieve path) by indexing only non-interactive nodes and
	// confirming the shortlist caps at nonInteractiveFallback entries.
	ctx := context.Background()
	nodes := make([]model.CanonicalNode, 0, len(byID))
	for _, n := range byID {
		nodes = append(nodes, n)
	}
	require.NoError(t, r.IndexFrame(ctx, "frame2", nodes))

	shortlisted, err := r.shortlist("frame2", mustEmbed(t, r, "click target"), byID, model.ActionClick, 20)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(shortlisted), nonInteractiveFallback)
}

func mustEmbed(t *testing.T, r *Retriever, text string) []float32 {
	t.Helper()
	vec, err := r.mini.Embed(context.Background(), text)
	require.NoError(t, err)
	return vec
}

func TestTrustedRequiresMargin(t *testing.T) {
	high := []model.Candidate{{Score: 0.9}, {Score: 0.5}}
	assert.True(t, Trusted(high))

	narrow := []model.Candidate{{Score: 0.51}, {Score: 0.50}}
	assert.False(t, Trusted(narrow))
}

func TestTextOfFallsBackToAttributes(t *testing.T) {
	n := model.CanonicalNode{AriaLabel: "Close dialog"}
	assert.Equal(t, "Close dialog", textOf(n))
}

func TestHierarchyOfPrefersRawHierarchy(t *testing.T) {
	n := model.CanonicalNode{
		ParentTag: "FORM",
		Raw:       model.RawNode{Hierarchy: []string{"HTML", "BODY", "FORM"}},
	}
	assert.Equal(t, []string{"HTML", "BODY", "FORM"}, hierarchyOf(n))
}
