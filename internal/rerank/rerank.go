// Package rerank applies the intent-aware heuristic bonuses/penalties of
// §4.7 on top of a candidate's base score (MarkupLM cosine in hybrid
// mode, textual-match score in exact mode). The enumerable bonus/penalty
// tables and tie-break order are grounded on the teacher's scoring-pass
// shape in internal/retrieval/tiered_context.go, which layers a similar
// static bonus table over a base similarity score before sorting.
package rerank

import (
	"sort"
	"strings"

	"github.com/her-retrieval/her/internal/logging"
	"github.com/her-retrieval/her/internal/model"
)

var deprioritizedTextMarkers = []string{"navigation", "nav", "header", "footer", "menu", "sidebar", "breadcrumb"}

// Apply adds deterministic bonuses/penalties to each candidate's Score
// for the given action and target, clips to [0,1], and sorts with the
// §4.7 tie-break order. candidates' Base must already hold the
// pre-heuristic score; Score is overwritten.
func Apply(candidates []model.Candidate, action model.Action, target string) []model.Candidate {
	timer := logging.StartTimer(logging.CategoryRerank, "Apply")
	defer timer.Stop()

	normTarget := strings.ToLower(strings.TrimSpace(target))

	for i := range candidates {
		c := &candidates[i]
		score := c.Base
		var reasons []string

		bonus, r := actionBonus(action, c.Node)
		score += bonus
		reasons = append(reasons, r...)

		bonus, r = universalModifiers(c.Node, normTarget)
		score += bonus
		reasons = append(reasons, r...)

		score = clip01(score)
		c.Score = score
		c.Reasons = append(c.Reasons, reasons...)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return less(candidates[i], candidates[j]) })

	logging.RerankDebug("reranked %d candidates for action=%s", len(candidates), action)
	return candidates
}

func actionBonus(action model.Action, n model.CanonicalNode) (float64, []string) {
	var score float64
	var reasons []string
	add := func(v float64, tag string) {
		score += v
		reasons = append(reasons, tag)
	}

	switch action {
	case model.ActionClick:
		if n.IsInteractive {
			add(0.50, "+interactive=0.50")
		}
		if isOneOf(n.Tag, "BUTTON", "A", "INPUT", "SELECT", "OPTION") {
			add(0.30, "+clickable_tag=0.30")
		}
		if n.Tag == "#TEXT" {
			add(-1.00, "-text_node=1.00")
		}
		switch n.Tag {
		case "BUTTON":
			add(0.20, "+button=0.20")
		case "A":
			add(0.10, "+link=0.10")
		case "INPUT":
			if strings.EqualFold(n.Type, "radio") {
				add(0.30, "+radio=0.30")
			} else {
				add(0.20, "+other_input=0.20")
			}
		}
	case model.ActionType:
		if isOneOf(n.Tag, "INPUT", "TEXTAREA") {
			add(0.30, "+typeable_tag=0.30")
		}
		if strings.EqualFold(n.Raw.Attributes["contenteditable"], "true") {
			add(0.20, "+contenteditable=0.20")
		}
		if n.Placeholder != "" {
			add(0.10, "+placeholder=0.10")
		}
	case model.ActionValidate:
		if isOneOf(n.Tag, "LABEL", "SPAN", "DIV", "P") {
			add(0.20, "+validatable_tag=0.20")
		}
		if n.AriaLabel != "" {
			add(0.10, "+aria_label=0.10")
		}
	}
	return score, reasons
}

func universalModifiers(n model.CanonicalNode, normTarget string) (float64, []string) {
	var score float64
	var reasons []string
	add := func(v float64, tag string) {
		score += v
		reasons = append(reasons, tag)
	}

	if !n.Raw.Visible {
		add(-0.30, "-not_visible=0.30")
	}
	if isBelowFold(n) {
		add(-0.20, "-below_fold=0.20")
	}
	if containsDeprioritizedMarker(n.InnerText) {
		add(-0.10, "-chrome_text=0.10")
	}

	normText := strings.ToLower(strings.TrimSpace(n.InnerText))
	switch {
	case normTarget != "" && normText == normTarget:
		add(0.50, "+exact_text=0.50")
	case normTarget != "" && strings.Contains(normText, normTarget):
		add(0.30, "+substring_text=0.30")
	case tokenOverlap(normText, normTarget):
		add(0.10, "+token_overlap=0.10")
	}

	if n.AriaLabel != "" || n.Raw.Attributes["aria-labelledby"] != "" {
		add(0.10, "+aria_label_present=0.10")
	}
	return score, reasons
}

func isBelowFold(n model.CanonicalNode) bool {
	return strings.EqualFold(n.Raw.Attributes["data-below-fold"], "true")
}

func containsDeprioritizedMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range deprioritizedTextMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func tokenOverlap(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	bSet := make(map[string]bool)
	for _, t := range strings.Fields(b) {
		bSet[t] = true
	}
	for _, t := range strings.Fields(a) {
		if bSet[t] {
			return true
		}
	}
	return false
}

func isOneOf(tag string, options ...string) bool {
	for _, o := range options {
		if tag == o {
			return true
		}
	}
	return false
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// less implements the §4.7 tie-break order after sorting by final score.
func less(a, b model.Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Base != b.Base {
		return a.Base > b.Base
	}
	if a.Node.IsInteractive != b.Node.IsInteractive {
		return a.Node.IsInteractive
	}
	if a.Node.Depth != b.Node.Depth {
		return a.Node.Depth < b.Node.Depth
	}
	return a.Node.BackendNodeID < b.Node.BackendNodeID
}

// TrustRerankOrdering reports whether the top-1 minus top-2 rerank
// scores clears the §4.6 margin, meaning the caller should trust the
// rerank ordering as-is instead of falling through to heuristics.
func TrustRerankOrdering(sorted []model.Candidate, margin float64) bool {
	if len(sorted) < 2 {
		return true
	}
	return sorted[0].Score-sorted[1].Score >= margin
}
