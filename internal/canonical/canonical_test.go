package canonical

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/her-retrieval/her/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(tag string, attrs map[string]string, text string) model.RawNode {
	return model.RawNode{Tag: tag, Attributes: attrs, Text: text, Visible: true, BackendNodeID: tag + "-id"}
}

func TestBuildUppercasesTagAndExtractsAttributes(t *testing.T) {
	n := Build(node("button", map[string]string{"id": "submit-btn", "role": "button"}, "  Submit   Now "), "frame1")
	assert.Equal(t, "BUTTON", n.Tag)
	assert.Equal(t, "submit-btn", n.ID)
	assert.Equal(t, "Submit Now", n.InnerText)
	assert.True(t, n.IsInteractive)
}

func TestBuildAccessibilityFallbackForText(t *testing.T) {
	raw := node("div", map[string]string{}, "")
	raw.Accessibility = &model.AccessibilityInfo{Role: "button", Name: "Close dialog"}
	n := Build(raw, "frame1")
	assert.Equal(t, "button", n.Role)
	assert.Equal(t, "Close dialog", n.InnerText)
	assert.True(t, n.IsInteractive)
}

func TestIsInteractiveHiddenInputExcluded(t *testing.T) {
	n := Build(node("input", map[string]string{"type": "hidden"}, ""), "frame1")
	assert.False(t, n.IsInteractive)
}

func TestIsInteractiveViaAttribute(t *testing.T) {
	n := Build(node("span", map[string]string{"onclick": "doThing()"}, "Go"), "frame1")
	assert.True(t, n.IsInteractive)
}

func TestIsInteractiveViaRole(t *testing.T) {
	n := Build(node("div", map[string]string{"role": "checkbox"}, ""), "frame1")
	assert.True(t, n.IsInteractive)
}

func TestIsTextNode(t *testing.T) {
	assert.True(t, IsTextNode("#text"))
	assert.False(t, IsTextNode("div"))
}

func TestSignatureStableAndDistinct(t *testing.T) {
	a := Build(node("button", map[string]string{"id": "x"}, "Go"), "f1")
	b := Build(node("button", map[string]string{"id": "x"}, "Go"), "f1")
	c := Build(node("button", map[string]string{"id": "y"}, "Go"), "f1")

	assert.Equal(t, a.Signature, b.Signature)
	assert.NotEqual(t, a.Signature, c.Signature)
	assert.Len(t, a.Signature, 16)
}

func TestParentContextFromHierarchy(t *testing.T) {
	raw := node("input", map[string]string{}, "")
	raw.Hierarchy = []string{"html", "body", "form"}
	n := Build(raw, "f1")
	assert.Equal(t, "FORM", n.ParentTag)
}

func TestParentContextFromXPathHint(t *testing.T) {
	raw := node("input", map[string]string{}, "")
	raw.XPathHint = "/html/body/form[1]/input[2]"
	n := Build(raw, "f1")
	assert.Equal(t, "FORM", n.ParentTag)
}

func TestBuildAllComputesSiblingCounts(t *testing.T) {
	snap := model.Snapshot{FrameHash: "f1"}
	mk := func(tag string, hierarchy []string) model.RawNode {
		r := node(tag, map[string]string{}, "")
		r.Hierarchy = hierarchy
		return r
	}
	snap.Elements = []model.RawNode{
		mk("li", []string{"html", "body", "ul"}),
		mk("li", []string{"html", "body", "ul"}),
		mk("li", []string{"html", "body", "ul"}),
		mk("p", []string{"html", "body"}),
	}

	nodes := BuildAll(snap)
	require.Len(t, nodes, 4)
	assert.Equal(t, 3, nodes[0].SiblingsCount)
	assert.Equal(t, 3, nodes[1].SiblingsCount)
	assert.Equal(t, 1, nodes[3].SiblingsCount)
}

func TestBuildAllRecursesIntoShadowRoots(t *testing.T) {
	inner := node("button", map[string]string{"id": "shadow-btn"}, "Click")
	outer := node("div", map[string]string{"id": "host"}, "")
	outer.ShadowRoots = []model.RawNode{inner}

	snap := model.Snapshot{FrameHash: "f1", Elements: []model.RawNode{outer}}
	nodes := BuildAll(snap)
	require.Len(t, nodes, 2)
	assert.Equal(t, "DIV", nodes[0].Tag)
	assert.Equal(t, "BUTTON", nodes[1].Tag)
}

// TestBuildAllIsDeterministic asserts the §4.2 invariant that canonicalising
// the same snapshot twice produces byte-for-byte identical results (the
// matcher and xpath synthesiser both assume this when comparing
// signatures across runs). cmp.Diff pinpoints exactly which field drifted
// instead of just reporting "not equal".
func TestBuildAllIsDeterministic(t *testing.T) {
	raw := node("button", map[string]string{"id": "submit-btn", "role": "button"}, "Submit")
	raw.Accessibility = &model.AccessibilityInfo{Role: "button", Name: "Submit"}
	raw.Hierarchy = []string{"html", "body", "form"}
	snap := model.Snapshot{FrameHash: "frame1", Elements: []model.RawNode{raw}}

	first := BuildAll(snap)
	second := BuildAll(snap)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("BuildAll is not deterministic (-first +second):\n%s", diff)
	}
}
