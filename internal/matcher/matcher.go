// Package matcher implements the exact (no-semantic) target matcher of
// §4.4: binding a target string to CanonicalNodes without any learned
// model. Grounded on the teacher's attribute-priority DOM fact matching
// in internal/browser/session_manager.go, generalised from a single
// "find by text" helper into the full attribute-priority/score-threshold
// routine the spec describes.
package matcher

import (
	"sort"
	"strings"

	"github.com/her-retrieval/her/internal/canonical"
	"github.com/her-retrieval/her/internal/logging"
	"github.com/her-retrieval/her/internal/model"
)

// matchAttrs is the fixed priority order of §4.4.
var matchAttrs = []string{"innerText", "aria-label", "title", "placeholder", "id", "name", "value", "data-testid", "alt"}

const acceptThreshold = 0.5
const accessibilityPenalty = 0.8
const maxSuggestions = 5

// Match binds target against nodes for the given action, following §4.4's
// normalise/score/threshold/dedup routine, with an accessibility-derived
// retry when the DOM yields zero matches.
func Match(target string, action model.Action, nodes []model.CanonicalNode, caseSensitive bool) ([]model.Candidate, error) {
	timer := logging.StartTimer(logging.CategoryMatcher, "Match")
	defer timer.Stop()

	visible := filterVisible(nodes)
	gated := filterInteractivity(visible, action)

	candidates := matchAgainst(target, gated, caseSensitive, 1.0)
	if len(candidates) == 0 {
		synthetic := accessibilitySynthetic(gated)
		candidates = matchAgainst(target, synthetic, caseSensitive, accessibilityPenalty)
		if len(candidates) > 0 {
			logging.Matcher("matched via accessibility-derived synthetic set for target=%q", target)
		}
	}

	if len(candidates) == 0 {
		suggestions := suggest(target, gated, caseSensitive)
		logging.Matcher("no match for target=%q action=%s; suggestions=%v", target, action, suggestions)
		return nil, &model.Error{
			Stage:   "Match",
			Kind:    model.KindElementNotFound,
			Message: "no element matched target " + quote(target),
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	return candidates, nil
}

// Suggestions exposes the did-you-mean list independent of the main Match
// call, for callers that want suggestions even when Match already failed
// with a typed error.
func Suggestions(target string, nodes []model.CanonicalNode, action model.Action, caseSensitive bool) []string {
	gated := filterInteractivity(filterVisible(nodes), action)
	return suggest(target, gated, caseSensitive)
}

func filterVisible(nodes []model.CanonicalNode) []model.CanonicalNode {
	out := make([]model.CanonicalNode, 0, len(nodes))
	for _, n := range nodes {
		if !n.Raw.Visible {
			continue
		}
		if disabled, ok := n.Raw.Attributes["disabled"]; ok && disabled != "" && disabled != "false" {
			continue
		}
		if hidden, ok := n.Raw.Attributes["hidden"]; ok && hidden != "" && hidden != "false" {
			continue
		}
		out = append(out, n)
	}
	return out
}

// filterInteractivity applies the §4.4 per-intent gating rules.
func filterInteractivity(nodes []model.CanonicalNode, action model.Action) []model.CanonicalNode {
	out := make([]model.CanonicalNode, 0, len(nodes))
	for _, n := range nodes {
		if gateAllows(n, action) {
			out = append(out, n)
		}
	}
	return out
}

func gateAllows(n model.CanonicalNode, action model.Action) bool {
	tag := n.Tag
	switch action {
	case model.ActionClick:
		if tag == "A" || tag == "BUTTON" {
			return true
		}
		if n.IsInteractive {
			return true
		}
		if (tag == "SPAN" || tag == "DIV") && (strings.EqualFold(n.Role, "button") || n.Raw.Attributes["onclick"] != "") {
			return true
		}
		return false
	case model.ActionType:
		if tag == "INPUT" || tag == "TEXTAREA" || tag == "SELECT" || tag == "BUTTON" {
			return true
		}
		return strings.EqualFold(n.Raw.Attributes["contenteditable"], "true")
	case model.ActionValidate:
		return n.Raw.Visible
	default:
		// model.Action has no select/navigate/wait-specific gate: navigate
		// and wait never reach filterInteractivity (runNavigate/runWait
		// bypass matching entirely), so this branch is unreached in
		// practice and passes every node through unfiltered.
		return true
	}
}

// matchAgainst scores every node against target across matchAttrs,
// keeping only scores >= acceptThreshold, deduplicated by backend id,
// and scaled by penalty (1.0 for the primary DOM pass, 0.8 for the
// accessibility-derived retry).
func matchAgainst(target string, nodes []model.CanonicalNode, caseSensitive bool, penalty float64) []model.Candidate {
	normTarget := normalise(target, caseSensitive)
	targetTokens := tokenize(normTarget)

	best := make(map[string]model.Candidate)
	for _, n := range nodes {
		if canonical.IsTextNode(n.Tag) {
			continue
		}
		for _, attr := range matchAttrs {
			val := attrValue(n, attr)
			if val == "" {
				continue
			}
			normVal := normalise(val, caseSensitive)
			score, reason := scoreAgainst(normTarget, targetTokens, normVal)
			if score < acceptThreshold {
				continue
			}
			score *= penalty

			key := n.BackendNodeID
			if key == "" {
				key = n.Signature
			}
			if existing, ok := best[key]; !ok || score > existing.Score {
				best[key] = model.Candidate{
					Node:    n,
					Score:   score,
					Base:    score,
					Reasons: []string{reason + "=" + attr},
				}
			}
		}
	}

	out := make([]model.Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	return out
}

func attrValue(n model.CanonicalNode, attr string) string {
	switch attr {
	case "innerText":
		return n.InnerText
	case "aria-label":
		return n.AriaLabel
	case "title":
		return n.Title
	case "placeholder":
		return n.Placeholder
	case "id":
		return n.ID
	case "name":
		return n.Name
	case "value":
		return n.Raw.Attributes["value"]
	case "data-testid":
		return n.DataTestID
	case "alt":
		return n.Raw.Attributes["alt"]
	default:
		return ""
	}
}

// scoreAgainst applies §4.4's exact/substring/word-subset scoring ladder.
func scoreAgainst(normTarget string, targetTokens []string, normVal string) (float64, string) {
	if normTarget == normVal {
		return 1.0, "exact"
	}
	if normTarget != "" && strings.Contains(normVal, normTarget) {
		return float64(len(normTarget)) / float64(len(normVal)), "substring"
	}
	valTokens := tokenize(normVal)
	if len(targetTokens) > 0 && len(valTokens) > 0 && isSubset(targetTokens, valTokens) {
		return (float64(len(targetTokens)) / float64(len(valTokens))) * 0.8, "word_subset"
	}
	return 0, ""
}

func isSubset(sub, super []string) bool {
	set := make(map[string]bool, len(super))
	for _, t := range super {
		set[t] = true
	}
	for _, t := range sub {
		if !set[t] {
			return false
		}
	}
	return true
}

func normalise(s string, caseSensitive bool) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimSpace(s)
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}

func tokenize(s string) []string {
	return strings.Fields(s)
}

// accessibilitySynthetic builds the synthetic element set of §4.4:
// {aria-label|title|alt, role} only.
func accessibilitySynthetic(nodes []model.CanonicalNode) []model.CanonicalNode {
	out := make([]model.CanonicalNode, 0, len(nodes))
	for _, n := range nodes {
		label := firstNonEmpty(n.AriaLabel, n.Title, n.Raw.Attributes["alt"])
		if label == "" {
			continue
		}
		synthetic := n
		synthetic.InnerText = ""
		synthetic.Title = ""
		synthetic.Placeholder = ""
		synthetic.ID = ""
		synthetic.Name = ""
		synthetic.DataTestID = ""
		synthetic.AriaLabel = label
		out = append(out, synthetic)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// suggest returns up to maxSuggestions closest non-matching attribute
// values, for the ElementNotFound "did-you-mean" list (§4.4).
func suggest(target string, nodes []model.CanonicalNode, caseSensitive bool) []string {
	normTarget := normalise(target, caseSensitive)
	type scored struct {
		val   string
		score float64
	}
	var all []scored
	seen := map[string]bool{}
	for _, n := range nodes {
		for _, attr := range matchAttrs {
			val := attrValue(n, attr)
			if val == "" || seen[val] {
				continue
			}
			seen[val] = true
			all = append(all, scored{val: val, score: similarity(normTarget, normalise(val, caseSensitive))})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	out := make([]string, 0, maxSuggestions)
	for i := 0; i < len(all) && i < maxSuggestions; i++ {
		out = append(out, all[i].val)
	}
	return out
}

// similarity is a lightweight closeness measure for suggestions only,
// not used for the accept/reject scoring path.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	aTok, bTok := tokenize(a), tokenize(b)
	common := 0
	bSet := make(map[string]bool, len(bTok))
	for _, t := range bTok {
		bSet[t] = true
	}
	for _, t := range aTok {
		if bSet[t] {
			common++
		}
	}
	if common > 0 {
		return float64(common) / float64(max(len(aTok), len(bTok)))
	}
	if strings.Contains(b, a) || strings.Contains(a, b) {
		return 0.3
	}
	return 0
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func quote(s string) string { return `"` + s + `"` }
