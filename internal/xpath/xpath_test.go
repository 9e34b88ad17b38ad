package xpath

import (
	"strings"
	"testing"

	"github.com/her-retrieval/her/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTextBased(t *testing.T) {
	node := model.CanonicalNode{Tag: "BUTTON", InnerText: "Submit"}
	xp, err := Build(node)
	require.NoError(t, err)
	assert.Equal(t, `//button[normalize-space()='Submit']`, xp)
}

func TestBuildStableAttribute(t *testing.T) {
	node := model.CanonicalNode{Tag: "INPUT", ID: "username"}
	xp, err := Build(node)
	require.NoError(t, err)
	assert.Equal(t, `//input[@id='username']`, xp)
}

func TestBuildRejectsUnstableID(t *testing.T) {
	node := model.CanonicalNode{Tag: "DIV", ID: "react-482910"}
	xp, err := Build(node)
	require.NoError(t, err)
	assert.NotContains(t, xp, "react-482910")
	assert.Contains(t, xp, "div")
}

func TestBuildPositionalFallback(t *testing.T) {
	node := model.CanonicalNode{Tag: "LI", ParentTag: "UL", SiblingsCount: 3}
	xp, err := Build(node)
	require.NoError(t, err)
	assert.Equal(t, "//ul/li[3]", xp)
}

func TestBuildPrefersTextOverHybrid(t *testing.T) {
	node := model.CanonicalNode{Tag: "BUTTON", InnerText: "Save", ID: "save-btn"}
	xp, err := Build(node)
	require.NoError(t, err)
	assert.Equal(t, `//button[normalize-space()='Save']`, xp)
}

func TestEscapeLiteralBothQuotes(t *testing.T) {
	lit := escapeLiteral(`it's "quoted"`)
	assert.True(t, strings.HasPrefix(lit, "concat("))
}

func TestValidateRejectsMalformed(t *testing.T) {
	assert.False(t, Validate("button[@id='x']"))
	assert.False(t, Validate("//div[@id='x'"))
	assert.False(t, Validate("//div[//span]"))
	assert.True(t, Validate("//div[@id='x']"))
}

func TestAlternativesReturnsDistinctCandidates(t *testing.T) {
	node := model.CanonicalNode{Tag: "BUTTON", InnerText: "Save", ID: "save-btn", ParentTag: "FORM", SiblingsCount: 2}
	alts := Alternatives(node, 3)
	require.NotEmpty(t, alts)
	seen := map[string]bool{}
	for _, a := range alts {
		assert.False(t, seen[a])
		seen[a] = true
		assert.True(t, Validate(a))
	}
}

func TestBuildFallsBackToWildcardPositionalWithoutTagOrText(t *testing.T) {
	node := model.CanonicalNode{Tag: ""}
	xp, err := Build(node)
	assert.NoError(t, err)
	assert.Equal(t, "//*/*[1]", xp)
}
