// Resilience fallback chain (§4.11 "resilience chain on hybrid failure",
// supplemented from original_source's resilient_pipeline.py /
// enhanced_no_semantic.py per SPEC_FULL.md §4): an ordered list of
// MatchStrategy values, each independently testable, tried in order
// until one produces a valid xpath. This mirrors §9's design note on the
// heuristic bonus table being declared as enumerable static
// configuration rather than buried in control flow.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/her-retrieval/her/internal/logging"
	"github.com/her-retrieval/her/internal/matcher"
	"github.com/her-retrieval/her/internal/model"
	"github.com/her-retrieval/her/internal/retrieval"
	"github.com/her-retrieval/her/internal/xpath"
)

// MatchStrategy resolves parsed into a single xpath over nodes, or
// reports that it could not. Each rung of the resilience chain is one of
// these; the orchestrator tries them in order.
type MatchStrategy func(ctx context.Context, o *Orchestrator, parsed model.ParsedIntent, frameHash string, nodes []model.CanonicalNode) (string, bool)

// resilienceChain is the ordered fallback ladder: hybrid semantic
// retrieval, then the deterministic exact matcher (which already folds
// in its own accessibility-only retry, §4.4), then a last-resort loose
// substring scan, before giving up with ElementNotFound.
var resilienceChain = []struct {
	name     string
	strategy MatchStrategy
}{
	{"hybrid", hybridStrategy},
	{"exact", exactStrategy},
	{"loose-contains", looseContainsStrategy},
}

// runResilienceChain tries each rung in order and returns the first
// xpath produced, or an ElementNotFound error if every rung declines.
func runResilienceChain(ctx context.Context, o *Orchestrator, parsed model.ParsedIntent, frameHash string, nodes []model.CanonicalNode) (string, string, error) {
	for _, rung := range resilienceChain {
		if rung.name == "hybrid" && !(o.cfg.UseSemanticSearch && !o.cfg.DisableHeuristics) {
			continue
		}
		if xp, ok := rung.strategy(ctx, o, parsed, frameHash, nodes); ok {
			logging.PipelineDebug("resilience rung %q resolved target=%q", rung.name, parsed.Target)
			return xp, stageFor(rung.name), nil
		}
	}
	return "", "Match", model.NewError("Match", model.KindElementNotFound, fmt.Sprintf("no element matched %q", parsed.Target))
}

func stageFor(rung string) string {
	if rung == "hybrid" {
		return "Match"
	}
	return "Synth"
}

// hybridStrategy runs the two-stage MiniLM/MarkupLM retriever (§4.6) and
// trusts the result only if it clears the rerank confidence margin.
func hybridStrategy(ctx context.Context, o *Orchestrator, parsed model.ParsedIntent, frameHash string, nodes []model.CanonicalNode) (string, bool) {
	if err := o.retriever.IndexFrame(ctx, frameHash, nodes); err != nil {
		return "", false
	}
	candidates, err := o.retriever.Retrieve(ctx, parsed, frameHash, nodes, 5)
	o.metrics.RecordShortlistSize(ctx, len(candidates))
	if err != nil || !retrieval.Trusted(candidates) {
		return "", false
	}
	xp, err := xpath.Build(candidates[0].Node)
	return xp, err == nil
}

// exactStrategy runs the deterministic no-semantic matcher (§4.4),
// which itself retries against an accessibility-derived synthetic set
// before giving up.
func exactStrategy(_ context.Context, _ *Orchestrator, parsed model.ParsedIntent, _ string, nodes []model.CanonicalNode) (string, bool) {
	candidates, err := matcher.Match(parsed.Target, parsed.Action, nodes, false)
	if err != nil || len(candidates) == 0 {
		return "", false
	}
	xp, err := xpath.Build(candidates[0].Node)
	return xp, err == nil
}

// looseContainsStrategy is the final rung: any node not marked
// hidden="true" whose text
// or common attributes contain target as a case-insensitive substring,
// ignoring the action-specific interactivity gate entirely.
func looseContainsStrategy(_ context.Context, _ *Orchestrator, parsed model.ParsedIntent, _ string, nodes []model.CanonicalNode) (string, bool) {
	node, ok := looseSubstringMatch(parsed.Target, nodes)
	if !ok {
		return "", false
	}
	xp, err := xpath.Build(node)
	return xp, err == nil
}

// looseSubstringMatch scans the text/attributes of every node not marked
// hidden="true" (Raw.Visible is not consulted) for a case-insensitive
// substring match against target, ignoring interactivity gating (the
// last-resort tier of the resilience chain).
func looseSubstringMatch(target string, nodes []model.CanonicalNode) (model.CanonicalNode, bool) {
	needle := strings.ToLower(strings.TrimSpace(target))
	if needle == "" {
		return model.CanonicalNode{}, false
	}
	for _, n := range nodes {
		if strings.EqualFold(n.Raw.Attributes["hidden"], "true") {
			continue
		}
		for _, v := range []string{n.InnerText, n.AriaLabel, n.Title, n.Placeholder, n.Name, n.ID} {
			if v == "" {
				continue
			}
			if strings.Contains(strings.ToLower(v), needle) {
				return n, true
			}
		}
	}
	return model.CanonicalNode{}, false
}
