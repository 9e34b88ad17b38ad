package hierarchy

import (
	"strings"
	"testing"

	"github.com/her-retrieval/her/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryWrapperPerAction(t *testing.T) {
	assert.Equal(t, "<button>Submit</button>", QueryWrapper("click", "Submit"))
	assert.Equal(t, `<input placeholder="Username">`, QueryWrapper("type", "Username"))
	assert.Equal(t, "<div>Welcome</div>", QueryWrapper("validate", "Welcome"))
}

func TestQueryWrapperEscapesAttributeValue(t *testing.T) {
	assert.Equal(t, `<input placeholder="a &amp; b">`, QueryWrapper("type", "a & b"))
}

func mkNode(tag string, hierarchy []string, id, text string) model.CanonicalNode {
	n := model.CanonicalNode{
		Tag:       strings.ToUpper(tag),
		ID:        id,
		InnerText: text,
		Raw:       model.RawNode{Tag: tag, Hierarchy: hierarchy},
	}
	n.Signature = id + "|" + tag + "|" + strings.Join(hierarchy, ">")
	return n
}

func TestBuildIncludesTargetInFull(t *testing.T) {
	target := mkNode("button", []string{"html", "body", "form"}, "submit-btn", "Submit the form now")
	fragment := Build(target, []model.CanonicalNode{target})
	assert.Contains(t, fragment, `id="submit-btn"`)
	assert.Contains(t, fragment, "Submit the form now")
}

func TestBuildWrapsAncestorsRootFirst(t *testing.T) {
	target := mkNode("input", []string{"html", "body", "form"}, "field1", "")
	fragment := Build(target, []model.CanonicalNode{target})

	htmlIdx := strings.Index(fragment, "<html>")
	bodyIdx := strings.Index(fragment, "<body>")
	formIdx := strings.Index(fragment, "<form>")
	require.True(t, htmlIdx >= 0 && bodyIdx >= 0 && formIdx >= 0)
	assert.True(t, htmlIdx < bodyIdx)
	assert.True(t, bodyIdx < formIdx)
	assert.True(t, strings.LastIndex(fragment, "</html>") > strings.LastIndex(fragment, "</form>"))
}

func TestBuildCollectsSiblingsSharingParentPath(t *testing.T) {
	parent := []string{"html", "body", "ul"}
	target := mkNode("li", parent, "item-2", "Second item")
	sib1 := mkNode("li", parent, "item-1", "First item")
	sib2 := mkNode("li", parent, "item-3", "Third item")
	other := mkNode("li", []string{"html", "body", "nav"}, "item-4", "Unrelated")

	fragment := Build(target, []model.CanonicalNode{sib1, target, sib2, other})
	assert.Contains(t, fragment, "sibling-context")
	assert.Contains(t, fragment, "First item")
	assert.Contains(t, fragment, "Third item")
	assert.NotContains(t, fragment, "Unrelated")
}

func TestBuildTruncatesSiblingTextTo50Chars(t *testing.T) {
	parent := []string{"html", "body", "ul"}
	longText := strings.Repeat("x", 100)
	target := mkNode("li", parent, "item-target", "target text")
	sib := mkNode("li", parent, "item-long", longText)

	fragment := Build(target, []model.CanonicalNode{target, sib})
	assert.Contains(t, fragment, strings.Repeat("x", 50))
	assert.NotContains(t, fragment, strings.Repeat("x", 51))
}

func TestBuildRespectsMaxDepthAncestors(t *testing.T) {
	hierarchy := []string{"a", "b", "c", "d", "e", "f", "g"}
	target := mkNode("span", hierarchy, "deep", "leaf")
	fragment := Build(target, []model.CanonicalNode{target})

	assert.NotContains(t, fragment, "<a>")
	assert.Contains(t, fragment, "<c>")
	assert.Contains(t, fragment, "<g>")
}

func TestBuildEscapesAttributeValues(t *testing.T) {
	target := mkNode("div", nil, `"><script>`, "text")
	fragment := Build(target, []model.CanonicalNode{target})
	assert.NotContains(t, fragment, "<script>")
}
