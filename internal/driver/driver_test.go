package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCapturedNodesDecodesFields(t *testing.T) {
	raw := []byte(`[
		{"tag":"BUTTON","text":"Submit","attrs":{"id":"go"},"visible":true,"interactive":true,"backend_node_id":"id:go","hierarchy":["HTML","BODY","FORM"]},
		{"tag":"DIV","text":"","attrs":{},"visible":false,"interactive":false,"backend_node_id":"idx:1","hierarchy":["HTML","BODY"]}
	]`)

	nodes, err := parseCapturedNodes(raw)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	assert.Equal(t, "BUTTON", nodes[0].Tag)
	assert.Equal(t, "Submit", nodes[0].Text)
	assert.Equal(t, "go", nodes[0].Attributes["id"])
	assert.True(t, nodes[0].Visible)
	assert.True(t, nodes[0].Interactive)
	assert.Equal(t, "id:go", nodes[0].BackendNodeID)
	assert.Equal(t, []string{"HTML", "BODY", "FORM"}, nodes[0].Hierarchy)

	assert.False(t, nodes[1].Visible)
}

func TestParseCapturedNodesEmptyArray(t *testing.T) {
	nodes, err := parseCapturedNodes([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestParseCapturedNodesInvalidJSON(t *testing.T) {
	_, err := parseCapturedNodes([]byte(`not json`))
	assert.Error(t, err)
}

func TestNamedKeysCoverCommonControlKeys(t *testing.T) {
	for _, name := range []string{"Enter", "Tab", "Escape", "Backspace", "ArrowDown", "ArrowUp"} {
		_, ok := namedKeys[name]
		assert.True(t, ok, "expected namedKeys to contain %s", name)
	}
}

func TestCaptureScriptEmbedsNodeLimit(t *testing.T) {
	assert.Contains(t, captureScript, "%d")
	assert.Equal(t, 5000, maxCapturedNodes)
}

func TestDriverSatisfiesInterface(t *testing.T) {
	var _ Driver = (*RodDriver)(nil)
}

func TestDOMHashStableAndDistinct(t *testing.T) {
	a := domHash([]byte(`[{"tag":"BUTTON"}]`))
	b := domHash([]byte(`[{"tag":"BUTTON"}]`))
	c := domHash([]byte(`[{"tag":"DIV"}]`))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
