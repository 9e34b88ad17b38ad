package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/her-retrieval/her/internal/intent"
	"github.com/her-retrieval/her/internal/model"
)

func TestRunResilienceChainFallsBackToLooseContains(t *testing.T) {
	drv := newFakeDriver(submitSnapshot())
	o := testOrchestrator(t, drv)
	o.cfg.UseSemanticSearch = false

	nodes := []model.CanonicalNode{
		{InnerText: "Proceed to Submit Order Confirmation", BackendNodeID: "n1", Signature: "sig1"},
	}
	parsed := intent.Parse(`click "submit order"`)
	require.True(t, parsed.Valid)

	xp, stage, err := runResilienceChain(context.Background(), o, parsed, "frame-x", nodes)
	require.NoError(t, err)
	assert.Equal(t, "Synth", stage)
	assert.NotEmpty(t, xp)
}

func TestRunResilienceChainReturnsElementNotFoundWhenNothingMatches(t *testing.T) {
	drv := newFakeDriver(submitSnapshot())
	o := testOrchestrator(t, drv)
	o.cfg.UseSemanticSearch = false

	parsed := intent.Parse(`click "a button that does not exist anywhere"`)
	require.True(t, parsed.Valid)

	_, _, err := runResilienceChain(context.Background(), o, parsed, "frame-x", nil)
	require.Error(t, err)
	kind, ok := model.AsKind(err)
	require.True(t, ok)
	assert.Equal(t, model.KindElementNotFound, kind)
}

func TestRunBatchDrivesEachTargetIndependently(t *testing.T) {
	drvA := newFakeDriver(submitSnapshot())
	drvB := newFakeDriver(submitSnapshot())
	oA := testOrchestrator(t, drvA)
	oB := testOrchestrator(t, drvB)

	results := RunBatch(context.Background(), []BatchTarget{
		{Orchestrator: oA, Steps: []string{`click "Submit Order"`}},
		{Orchestrator: oB, Steps: []string{`click "Cancel"`}},
	})

	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Len(t, drvA.clicked, 1)
	assert.Len(t, drvB.clicked, 1)
}
