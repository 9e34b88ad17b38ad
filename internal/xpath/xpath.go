// Package xpath synthesises a robust relative XPath for a CanonicalNode
// (§4.8). Strategy ordering, stability heuristics, and escaping follow
// the selector-synthesis approach in the teacher's session_manager.go
// (it too tries a stable-attribute selector before falling back to a
// positional one), adapted from CSS-selector output to XPath.
package xpath

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/her-retrieval/her/internal/logging"
	"github.com/her-retrieval/her/internal/model"
)

const maxTextLength = 100
const defaultAlternatives = 3

var stableAttrOrder = []string{"id", "data-testid", "name", "aria-label", "title"}

var unstablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{13,}`),
	regexp.MustCompile(`[a-f0-9]{8,}`),
	regexp.MustCompile(`react-\d+`),
	regexp.MustCompile(`__.+__`),
}

// Build produces the single best XPath for node, trying strategies in
// order and returning the first that validates (§4.8).
func Build(node model.CanonicalNode) (string, error) {
	timer := logging.StartTimer(logging.CategoryXPath, "Build")
	defer timer.Stop()

	for _, strategy := range strategies {
		if xp, ok := strategy(node); ok && Validate(xp) {
			logging.XPathDebug("synthesised xpath=%s for tag=%s", xp, node.Tag)
			return xp, nil
		}
	}
	return "", &model.Error{
		Stage:   "Synthesize",
		Kind:    model.KindXPathGeneration,
		Message: "no xpath strategy produced a valid result for tag " + node.Tag,
	}
}

// Alternatives returns up to max distinct candidate xpaths (not just the
// first valid one), so the orchestrator can retry on execution failure.
func Alternatives(node model.CanonicalNode, max int) []string {
	if max <= 0 {
		max = defaultAlternatives
	}
	seen := map[string]bool{}
	var out []string
	for _, strategy := range strategies {
		xp, ok := strategy(node)
		if !ok || !Validate(xp) || seen[xp] {
			continue
		}
		seen[xp] = true
		out = append(out, xp)
		if len(out) >= max {
			break
		}
	}
	return out
}

var strategies = []func(model.CanonicalNode) (string, bool){
	textBased,
	stableAttribute,
	hybrid,
	positionalFallback,
}

func textBased(node model.CanonicalNode) (string, bool) {
	text := strings.TrimSpace(node.InnerText)
	if text == "" || len(text) > maxTextLength {
		return "", false
	}
	tag := tagSelector(node.Tag)
	return fmt.Sprintf("//%s[normalize-space()=%s]", tag, escapeLiteral(text)), true
}

func stableAttribute(node model.CanonicalNode) (string, bool) {
	attr, val, ok := firstStableAttr(node)
	if !ok {
		return "", false
	}
	tag := tagSelector(node.Tag)
	return fmt.Sprintf("//%s[@%s=%s]", tag, attr, escapeLiteral(val)), true
}

func hybrid(node model.CanonicalNode) (string, bool) {
	text := strings.TrimSpace(node.InnerText)
	attr, val, attrOK := firstStableAttr(node)
	if text == "" || len(text) > maxTextLength || !attrOK {
		return "", false
	}
	tag := tagSelector(node.Tag)
	return fmt.Sprintf("//%s[normalize-space()=%s and @%s=%s]", tag, escapeLiteral(text), attr, escapeLiteral(val)), true
}

func positionalFallback(node model.CanonicalNode) (string, bool) {
	tag := tagSelector(node.Tag)
	parent := tagSelector(node.ParentTag)
	index := 1
	if node.SiblingsCount > 0 {
		index = node.SiblingsCount
	}
	return fmt.Sprintf("//%s/%s[%d]", parent, tag, index), true
}

func firstStableAttr(node model.CanonicalNode) (attr, val string, ok bool) {
	values := map[string]string{
		"id":          node.ID,
		"data-testid": node.DataTestID,
		"name":        node.Name,
		"aria-label":  node.AriaLabel,
		"title":       node.Title,
	}
	for _, a := range stableAttrOrder {
		v := values[a]
		if v == "" || !isStable(v) {
			continue
		}
		return a, v, true
	}
	return "", "", false
}

// isStable rejects values that look machine-generated / dynamic (§4.8).
func isStable(v string) bool {
	for _, re := range unstablePatterns {
		if re.MatchString(v) {
			return false
		}
	}
	return true
}

func tagSelector(tag string) string {
	if tag == "" {
		return "*"
	}
	return strings.ToLower(tag)
}

// escapeLiteral quotes value for XPath. When it contains both a single
// and double quote, it switches to concat() (§4.8).
func escapeLiteral(value string) string {
	hasSingle := strings.Contains(value, "'")
	hasDouble := strings.Contains(value, `"`)
	switch {
	case hasSingle && hasDouble:
		return concatEscape(value)
	case hasSingle:
		return `"` + value + `"`
	default:
		return `'` + value + `'`
	}
}

func concatEscape(value string) string {
	var parts []string
	var current strings.Builder
	for _, r := range value {
		if r == '\'' {
			if current.Len() > 0 {
				parts = append(parts, `'`+current.String()+`'`)
				current.Reset()
			}
			parts = append(parts, `"'"`)
			continue
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		parts = append(parts, `'`+current.String()+`'`)
	}
	return "concat(" + strings.Join(parts, ", ") + ")"
}

// Validate performs the basic syntax check of §4.8: starts with //,
// balanced [] and (), no inner //.
func Validate(xp string) bool {
	if !strings.HasPrefix(xp, "//") {
		return false
	}
	if strings.Contains(xp[2:], "//") {
		return false
	}
	return balanced(xp, '[', ']') && balanced(xp, '(', ')')
}

func balanced(s string, open, close rune) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case open:
			depth++
		case close:
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// IndexSuffix renders an integer index as the [N] XPath predicate suffix,
// used by callers that need to compose a positional predicate manually.
func IndexSuffix(n int) string {
	return "[" + strconv.Itoa(n) + "]"
}
