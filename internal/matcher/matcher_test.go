package matcher

import (
	"testing"

	"github.com/her-retrieval/her/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func visibleNode(tag string, attrs map[string]string, text string) model.CanonicalNode {
	n := model.CanonicalNode{
		Tag:           tag,
		InnerText:     text,
		ID:            attrs["id"],
		Name:          attrs["name"],
		AriaLabel:     attrs["aria-label"],
		Title:         attrs["title"],
		Placeholder:   attrs["placeholder"],
		DataTestID:    attrs["data-testid"],
		BackendNodeID: attrs["id"] + tag,
		IsInteractive: tag == "BUTTON" || tag == "A" || tag == "INPUT",
		Raw: model.RawNode{
			Tag:        tag,
			Attributes: attrs,
			Visible:    true,
		},
	}
	return n
}

func TestMatchExact(t *testing.T) {
	nodes := []model.CanonicalNode{visibleNode("BUTTON", nil, "Submit")}
	cands, err := Match("Submit", model.ActionClick, nodes, false)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, 1.0, cands[0].Score)
}

func TestMatchSubstring(t *testing.T) {
	nodes := []model.CanonicalNode{visibleNode("BUTTON", nil, "Submit now")}
	cands, err := Match("Submit", model.ActionClick, nodes, false)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Less(t, cands[0].Score, 1.0)
	assert.Greater(t, cands[0].Score, 0.0)
}

func TestMatchWordSubset(t *testing.T) {
	nodes := []model.CanonicalNode{visibleNode("BUTTON", nil, "application submit now")}
	cands, err := Match("submit application", model.ActionClick, nodes, false)
	require.NoError(t, err)
	require.Len(t, cands, 1)
}

func TestMatchBelowThresholdRejected(t *testing.T) {
	nodes := []model.CanonicalNode{visibleNode("BUTTON", nil, "a completely unrelated label about something else entirely")}
	_, err := Match("submit", model.ActionClick, nodes, false)
	require.Error(t, err)
	kind, ok := model.AsKind(err)
	require.True(t, ok)
	assert.Equal(t, model.KindElementNotFound, kind)
}

func TestMatchDedupesByBackendID(t *testing.T) {
	n := visibleNode("BUTTON", map[string]string{"id": "x"}, "Submit")
	n.AriaLabel = "Submit"
	nodes := []model.CanonicalNode{n}
	cands, err := Match("Submit", model.ActionClick, nodes, false)
	require.NoError(t, err)
	assert.Len(t, cands, 1)
}

func TestMatchInvisibleNodesExcluded(t *testing.T) {
	n := visibleNode("BUTTON", nil, "Submit")
	n.Raw.Visible = false
	_, err := Match("Submit", model.ActionClick, []model.CanonicalNode{n}, false)
	require.Error(t, err)
}

func TestMatchAccessibilityFallback(t *testing.T) {
	n := visibleNode("DIV", map[string]string{"aria-label": "Close"}, "")
	n.AriaLabel = "Close"
	cands, err := Match("Close", model.ActionValidate, []model.CanonicalNode{n}, false)
	require.NoError(t, err)
	require.Len(t, cands, 1)
}

func TestMatchInteractivityGatingClick(t *testing.T) {
	n := visibleNode("P", nil, "Submit")
	_, err := Match("Submit", model.ActionClick, []model.CanonicalNode{n}, false)
	require.Error(t, err)
}

func TestSuggestionsOnFailure(t *testing.T) {
	nodes := []model.CanonicalNode{
		visibleNode("BUTTON", nil, "Submit application"),
		visibleNode("BUTTON", nil, "Cancel request"),
	}
	suggestions := Suggestions("Submit the application form", nodes, model.ActionClick, false)
	assert.NotEmpty(t, suggestions)
	assert.LessOrEqual(t, len(suggestions), maxSuggestions)
}
