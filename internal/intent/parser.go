// Package intent parses a natural-language test step into a ParsedIntent
// (§4.1). Grammar matching is deterministic regex, tried in a fixed order,
// with a keyword-based fallback — no LLM involved, matching the spec's
// "deterministic element-retrieval engine" framing and the teacher's own
// stated preference for deterministic control over free-form NL (compare
// _examples/other_examples natural_language.go's "no LLM is used for
// control decisions").
package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/her-retrieval/her/internal/logging"
	"github.com/her-retrieval/her/internal/model"
)

const stageName = "Parse"

// grammarRule is one recognised canonical form, tried in order (§4.1).
type grammarRule struct {
	action  model.Action
	pattern *regexp.Regexp
	build   func(m []string) model.ParsedIntent
}

var clickVerbs = `click|tap|press|hit|open|choose|select|pick`
var typeVerbs = `type|enter|fill|input|write|set`
var validateVerbs = `validate|check|verify|confirm|assert`
var navigateVerbs = `open|go|navigate|visit`
var waitVerbs = `wait|pause|sleep`

var rules = []grammarRule{
	{
		action:  model.ActionType,
		pattern: regexp.MustCompile(`(?i)^(?:` + typeVerbs + `)\s+\$?"([^"]*)"\s+into\s+"([^"]*)"\s*$`),
		build: func(m []string) model.ParsedIntent {
			return model.ParsedIntent{Action: model.ActionType, Value: m[1], Target: m[2]}
		},
	},
	{
		action:  model.ActionClick,
		pattern: regexp.MustCompile(`(?i)^(?:` + clickVerbs + `)\s+"([^"]*)"\s*$`),
		build: func(m []string) model.ParsedIntent {
			return model.ParsedIntent{Action: model.ActionClick, Target: m[1]}
		},
	},
	{
		action:  model.ActionValidate,
		pattern: regexp.MustCompile(`(?i)^(?:` + validateVerbs + `)\s+"([^"]*)"\s*$`),
		build: func(m []string) model.ParsedIntent {
			return model.ParsedIntent{Action: model.ActionValidate, Target: m[1]}
		},
	},
	{
		action:  model.ActionNavigate,
		pattern: regexp.MustCompile(`(?i)^(?:` + navigateVerbs + `)\s+(\S+)\s*$`),
		build: func(m []string) model.ParsedIntent {
			return model.ParsedIntent{Action: model.ActionNavigate, Target: m[1]}
		},
	},
	{
		action:  model.ActionWait,
		pattern: regexp.MustCompile(`(?i)^(?:` + waitVerbs + `)\s+(?:for\s+)?([0-9.]+)\s*(s|ms|seconds)?\s*$`),
		build: func(m []string) model.ParsedIntent {
			unit := strings.ToLower(m[2])
			value := m[1]
			if unit == "" {
				unit = "s"
			}
			return model.ParsedIntent{Action: model.ActionWait, Value: value + unit}
		},
	},
}

var punctuationStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Parse recognises the grammar of §4.1's table, falling back to a
// keyword-based guess (default action click, confidence 0.6) when no rule
// matches. Validation issues are returned on the intent, not as an error —
// per §4.1 "Validation rules... emit issues, not exceptions".
func Parse(step string) model.ParsedIntent {
	timer := logging.StartTimer(logging.CategoryIntent, "Parse")
	defer timer.Stop()

	trimmed := strings.TrimSpace(step)
	logging.IntentDebug("parsing step: %q", trimmed)

	for _, rule := range rules {
		m := rule.pattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		pi := rule.build(m)
		pi.Confidence = 0.95
		finishIntent(&pi)
		logging.Intent("matched grammar rule action=%s target=%q confidence=%.2f", pi.Action, pi.Target, pi.Confidence)
		return pi
	}

	pi := fallbackGuess(trimmed)
	finishIntent(&pi)
	logging.Intent("fell back to keyword guess action=%s target=%q confidence=%.2f", pi.Action, pi.Target, pi.Confidence)
	return pi
}

// fallbackGuess applies a keyword-based heuristic when no grammar rule
// matches (§4.1): default action click, confidence 0.6.
func fallbackGuess(step string) model.ParsedIntent {
	lower := strings.ToLower(step)
	action := model.ActionClick
	target := step

	switch {
	case containsAny(lower, "type", "enter", "fill", "input", "write"):
		action = model.ActionType
		if idx := strings.Index(lower, "into"); idx >= 0 {
			target = strings.TrimSpace(step[idx+len("into"):])
		}
	case containsAny(lower, "validate", "verify", "check", "confirm", "assert"):
		action = model.ActionValidate
	case containsAny(lower, "navigate", "visit", "goto"):
		action = model.ActionNavigate
	case containsAny(lower, "wait", "pause", "sleep"):
		action = model.ActionWait
	}

	target = strings.Trim(target, `"' `)
	return model.ParsedIntent{Action: action, Target: target, Confidence: 0.6}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// finishIntent derives LabelTokens and applies the §4.1 validation rules.
func finishIntent(pi *model.ParsedIntent) {
	pi.LabelTokens = LabelTokens(pi.Target)

	var issues []string
	switch pi.Action {
	case model.ActionClick, model.ActionValidate:
		if strings.TrimSpace(pi.Target) == "" {
			issues = append(issues, "target must not be empty for action "+string(pi.Action))
		}
	case model.ActionType:
		if strings.TrimSpace(pi.Value) == "" {
			issues = append(issues, "value must not be empty for action type")
		}
		if strings.TrimSpace(pi.Target) == "" {
			issues = append(issues, "target must not be empty for action type")
		}
	}
	if pi.Confidence < 0.5 {
		issues = append(issues, "confidence below minimum threshold 0.5")
	}

	pi.Issues = issues
	pi.Valid = len(issues) == 0
}

// LabelTokens derives lower-cased, punctuation-stripped tokens of length
// >= 2 from target, used only for promotion keying (§4.1: "not for
// matching").
func LabelTokens(target string) []string {
	lower := strings.ToLower(target)
	fields := strings.Fields(punctuationStrip.ReplaceAllString(lower, " "))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// ParseWaitDuration parses a wait intent's Value ("5s", "500ms", "2
// seconds") into seconds as a float, for callers (e.g. the orchestrator's
// wait action) that need a numeric duration instead of the raw string.
func ParseWaitDuration(value string) (seconds float64, ok bool) {
	value = strings.TrimSpace(strings.ToLower(value))
	switch {
	case strings.HasSuffix(value, "ms"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(value, "ms"), 64)
		if err != nil {
			return 0, false
		}
		return n / 1000.0, true
	case strings.HasSuffix(value, "seconds"):
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(value, "seconds")), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case strings.HasSuffix(value, "s"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(value, "s"), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
}

// StageName exposes the stage name used when wrapping errors upstream.
func StageName() string { return stageName }
