// Package hierarchy builds the bounded HTML context fragment of §4.3,
// used by the HTML-aware reranker stage and by debug output. Fragment
// assembly is hand-rolled (ancestor/sibling shape is too small to need a
// full DOM tree), but attribute sanitisation is delegated to bluemonday
// the way the teacher's retrieval layer sanitises captured markup before
// it is embedded or logged, and the final escaping follows the
// attribute-whitelist cleanup pattern in _examples/smilemakc-mbflow's
// html_clean.go (strip everything but a named attribute allowlist).
package hierarchy

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/her-retrieval/her/internal/logging"
	"github.com/her-retrieval/her/internal/model"
	"github.com/microcosm-cc/bluemonday"
)

const (
	MaxDepth    = 5
	MaxSiblings = 5
	MaxTokens   = 512
)

var whitelistedAttrs = []string{"class", "id", "role", "type", "name", "aria-label", "data-testid"}

// sanitizer strips any markup the fragment builder didn't itself emit
// (e.g. stray angle brackets surviving in captured inner text), leaving
// element tags and the whitelisted attributes untouched.
var sanitizer = newSanitizer()

func newSanitizer() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("div", "span")
	for _, attr := range whitelistedAttrs {
		p.AllowAttrs(attr).Globally()
	}
	p.AllowElements(
		"a", "button", "input", "select", "option", "textarea", "label",
		"form", "ul", "li", "table", "tr", "td", "th", "p", "h1", "h2", "h3",
		"img", "section", "nav", "header", "footer", "main", "article",
	)
	// Ancestor tags are whatever the captured page used (html, body,
	// custom elements), often with no attributes; keep every plain tag
	// name, with or without attributes, so the ancestor chain survives.
	p.AllowNoAttrs().OnElementsMatching(regexp.MustCompile(`^[a-z][a-z0-9-]*$`))
	return p
}

// Build renders the bounded context fragment for target, given the full
// set of sibling-candidate nodes captured in the same snapshot (§4.3).
func Build(target model.CanonicalNode, allNodes []model.CanonicalNode) string {
	timer := logging.StartTimer(logging.CategoryHierarchy, "Build")
	defer timer.Stop()

	ancestors := nearestAncestors(target, MaxDepth)
	siblings := siblingsOf(target, allNodes, MaxSiblings)

	fragment := render(ancestors, siblings, target)
	for countTokens(fragment) > MaxTokens && (len(ancestors) > 0 || len(siblings) > 0) {
		switch {
		case len(ancestors) > 0:
			ancestors = ancestors[1:] // discard outermost first
		case len(siblings) > 0:
			siblings = siblings[:len(siblings)-1]
		}
		fragment = render(ancestors, siblings, target)
	}

	logging.HierarchyDebug("built fragment for tag=%s tokens=%d ancestors=%d siblings=%d", target.Tag, countTokens(fragment), len(ancestors), len(siblings))
	return sanitizer.Sanitize(fragment)
}

// nearestAncestors returns up to maxDepth ancestor tag names, root-first,
// nearest the target (§4.3 step 1).
func nearestAncestors(target model.CanonicalNode, maxDepth int) []string {
	h := target.Raw.Hierarchy
	if len(h) <= maxDepth {
		return append([]string(nil), h...)
	}
	return append([]string(nil), h[len(h)-maxDepth:]...)
}

// siblingsOf returns up to max CanonicalNodes sharing target's parent
// path, excluding target itself (§4.3 step 2).
func siblingsOf(target model.CanonicalNode, allNodes []model.CanonicalNode, max int) []model.CanonicalNode {
	key := strings.Join(target.Raw.Hierarchy, ">")
	var out []model.CanonicalNode
	for _, n := range allNodes {
		if n.Signature == target.Signature {
			continue
		}
		if strings.Join(n.Raw.Hierarchy, ">") != key {
			continue
		}
		out = append(out, n)
		if len(out) >= max {
			break
		}
	}
	return out
}

func render(ancestors []string, siblings []model.CanonicalNode, target model.CanonicalNode) string {
	var b strings.Builder
	for _, tag := range ancestors {
		fmt.Fprintf(&b, "<%s>", strings.ToLower(tag))
	}

	if len(siblings) > 0 {
		b.WriteString(`<div class="sibling-context">`)
		for _, s := range siblings {
			b.WriteString(renderElement(s, 50))
		}
		b.WriteString("</div>")
	}

	b.WriteString(renderElement(target, -1))

	for i := len(ancestors) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "</%s>", strings.ToLower(ancestors[i]))
	}
	return b.String()
}

// renderElement renders one node as a self-describing tag with
// whitelisted attributes, in fixed order (§4.3 step 4). truncateTo <= 0
// means no truncation.
func renderElement(n model.CanonicalNode, truncateTo int) string {
	tag := strings.ToLower(n.Tag)
	if tag == "" {
		tag = "span"
	}

	var attrs strings.Builder
	writeAttr(&attrs, "class", n.Class)
	writeAttr(&attrs, "id", n.ID)
	writeAttr(&attrs, "role", n.Role)
	writeAttr(&attrs, "type", n.Type)
	writeAttr(&attrs, "name", n.Name)
	writeAttr(&attrs, "aria-label", n.AriaLabel)
	writeAttr(&attrs, "data-testid", n.DataTestID)

	text := n.InnerText
	if truncateTo > 0 && len(text) > truncateTo {
		text = text[:truncateTo]
	}

	return fmt.Sprintf("<%s%s>%s</%s>", tag, attrs.String(), html.EscapeString(text), tag)
}

func writeAttr(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, ` %s="%s"`, name, html.EscapeString(value))
}

func countTokens(fragment string) int {
	return len(strings.Fields(fragment))
}

// querySkeletons maps an intent action onto the bare tag goquery parses
// and fills in below (§4.6's synthetic query wrapper: the query text must
// live inside the same element shape the embedder sees real elements in).
// "type" is handled separately: input is a void element and x/net/html's
// renderer (which goquery.OuterHtml calls through to) self-closes void
// elements, which would change the wrapper's shape from the rest of the
// corpus's plain "<input placeholder=...>" convention.
var querySkeletons = map[string]string{
	"click":  "<button></button>",
	"select": "<select></select>",
}

// QueryWrapper renders query inside the HTML element shape that action
// would act on, so the query embedding in §4.6's rerank stage lives in the
// same distribution as element embeddings. Parsing the skeleton through
// goquery (rather than concatenating strings, as the rest of this package
// does for the larger context fragment) keeps content escaping off this
// package's hands for every shape except the void "input" element.
func QueryWrapper(action, query string) string {
	if action == "type" {
		return fmt.Sprintf(`<input placeholder="%s">`, html.EscapeString(query))
	}

	skeleton, ok := querySkeletons[action]
	if !ok {
		skeleton = "<div></div>"
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(skeleton))
	if err != nil {
		return skeleton
	}
	sel := doc.Find("body").Children().First()
	if sel.Length() == 0 {
		return skeleton
	}
	sel.SetText(query)

	out, err := goquery.OuterHtml(sel)
	if err != nil {
		return skeleton
	}
	return out
}
