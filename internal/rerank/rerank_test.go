package rerank

import (
	"testing"

	"github.com/her-retrieval/her/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(tag string, interactive bool, text string, base float64) model.Candidate {
	return model.Candidate{
		Node: model.CanonicalNode{
			Tag:           tag,
			IsInteractive: interactive,
			InnerText:     text,
			Raw:           model.RawNode{Visible: true},
		},
		Base: base,
	}
}

func TestApplyClickBonusesButtonBeatsDiv(t *testing.T) {
	button := cand("BUTTON", true, "Submit", 0.5)
	div := cand("DIV", false, "Submit", 0.5)
	out := Apply([]model.Candidate{div, button}, model.ActionClick, "Submit")
	require.Len(t, out, 2)
	assert.Equal(t, "BUTTON", out[0].Node.Tag)
}

func TestApplyClipsScoreToUnitRange(t *testing.T) {
	c := cand("BUTTON", true, "Submit", 0.9)
	out := Apply([]model.Candidate{c}, model.ActionClick, "Submit")
	assert.LessOrEqual(t, out[0].Score, 1.0)
	assert.GreaterOrEqual(t, out[0].Score, 0.0)
}

func TestApplyPenalizesTextNode(t *testing.T) {
	c := cand("#TEXT", false, "Submit", 0.3)
	out := Apply([]model.Candidate{c}, model.ActionClick, "Submit")
	assert.Equal(t, 0.0, out[0].Score)
}

func TestApplyNotVisiblePenalty(t *testing.T) {
	c := cand("SPAN", false, "Submit", 0.3)
	c.Node.Raw.Visible = false
	out := Apply([]model.Candidate{c}, model.ActionClick, "Submit")
	visibleCand := cand("SPAN", false, "Submit", 0.3)
	outVisible := Apply([]model.Candidate{visibleCand}, model.ActionClick, "Submit")
	assert.Less(t, out[0].Score, outVisible[0].Score)
}

func TestApplyDeprioritizesChromeText(t *testing.T) {
	c := cand("A", true, "Main navigation menu", 0.5)
	out := Apply([]model.Candidate{c}, model.ActionClick, "Main navigation menu")
	assert.Contains(t, out[0].Reasons, "-chrome_text=0.10")
}

func TestTieBreakOrderInteractiveBeforeNonInteractive(t *testing.T) {
	a := model.Candidate{Score: 0.5, Base: 0.5, Node: model.CanonicalNode{IsInteractive: false, Depth: 2, BackendNodeID: "a"}}
	b := model.Candidate{Score: 0.5, Base: 0.5, Node: model.CanonicalNode{IsInteractive: true, Depth: 2, BackendNodeID: "b"}}
	candidates := []model.Candidate{a, b}
	assert.True(t, less(b, a))
	assert.False(t, less(a, b))
	_ = candidates
}

func TestTrustRerankOrderingMargin(t *testing.T) {
	sorted := []model.Candidate{{Score: 0.9}, {Score: 0.75}}
	assert.True(t, TrustRerankOrdering(sorted, 0.1))

	close := []model.Candidate{{Score: 0.9}, {Score: 0.85}}
	assert.False(t, TrustRerankOrdering(close, 0.1))
}

func TestTrustRerankOrderingSingleCandidate(t *testing.T) {
	assert.True(t, TrustRerankOrdering([]model.Candidate{{Score: 0.5}}, 0.1))
}
