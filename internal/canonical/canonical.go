// Package canonical converts captured RawNode values into CanonicalNode
// descriptors (§4.2): stable, equality-friendly shapes that the matcher,
// reranker, and XPath synthesiser all operate on instead of raw DOM
// attributes. Grounded on the teacher's DOM-fact capture conventions in
// internal/browser/session_manager.go's captureDOMFacts, adapted from a
// driver-side snapshotting helper into a pure, driver-agnostic transform.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/her-retrieval/her/internal/logging"
	"github.com/her-retrieval/her/internal/model"
)

var interactiveTags = map[string]bool{
	"A": true, "BUTTON": true, "INPUT": true, "SELECT": true, "OPTION": true,
	"TEXTAREA": true, "LABEL": true, "SUMMARY": true,
}

var interactiveRoles = map[string]bool{
	"button": true, "link": true, "checkbox": true, "radio": true,
	"combobox": true, "listbox": true, "option": true, "menuitem": true,
	"tab": true, "switch": true, "slider": true, "textbox": true,
}

var interactiveAttrs = []string{"onclick", "href", "tabindex", "data-click", "data-action"}

// Build converts one RawNode into a CanonicalNode (§4.2). frameHash is the
// owning frame's hash, forwarded onto the descriptor for index partitioning.
func Build(raw model.RawNode, frameHash string) model.CanonicalNode {
	tag := strings.ToUpper(strings.TrimSpace(raw.Tag))
	attrs := raw.Attributes

	role := attrs["role"]
	if role == "" && raw.Accessibility != nil {
		role = raw.Accessibility.Role
	}

	innerText := collapseWhitespace(raw.Text)
	if innerText == "" && raw.Accessibility != nil {
		innerText = collapseWhitespace(raw.Accessibility.Name)
	}

	parentTag, siblings := parentContext(raw)

	node := model.CanonicalNode{
		Tag:           tag,
		Role:          role,
		InnerText:     innerText,
		ID:            attrs["id"],
		Name:          attrs["name"],
		AriaLabel:     attrs["aria-label"],
		Title:         attrs["title"],
		Placeholder:   attrs["placeholder"],
		DataTestID:    attrs["data-testid"],
		Class:         attrs["class"],
		Type:          attrs["type"],
		Href:          attrs["href"],
		ParentTag:     parentTag,
		SiblingsCount: siblings,
		FrameHash:     frameHash,
		BackendNodeID: raw.BackendNodeID,
		Depth:         len(raw.Hierarchy),
		Raw:           raw,
	}
	node.IsInteractive = isInteractive(tag, role, attrs)
	node.Signature = Signature(node)

	logging.CanonicalDebug("built descriptor tag=%s role=%s interactive=%v sig=%s", node.Tag, node.Role, node.IsInteractive, node.Signature)
	return node
}

// BuildAll converts a Snapshot's elements, recursing into shadow roots
// (supplemented feature, §4 SPEC_FULL) so shadow-DOM content participates
// in matching like any other descendant, and fills in SiblingsCount from
// sibling grouping by parent path (the parent-context-per-node
// information Build alone, working one node at a time, cannot see).
func BuildAll(snap model.Snapshot) []model.CanonicalNode {
	var flat []model.RawNode
	var walk func(nodes []model.RawNode)
	walk = func(nodes []model.RawNode) {
		for _, n := range nodes {
			flat = append(flat, n)
			if len(n.ShadowRoots) > 0 {
				walk(n.ShadowRoots)
			}
		}
	}
	walk(snap.Elements)

	siblingCounts := make(map[string]int, len(flat))
	parentKeys := make([]string, len(flat))
	for i, n := range flat {
		key := strings.Join(n.Hierarchy, ">")
		parentKeys[i] = key
		siblingCounts[key]++
	}

	out := make([]model.CanonicalNode, 0, len(flat))
	for i, n := range flat {
		frameHash := n.FrameHash
		if frameHash == "" {
			frameHash = snap.FrameHash
		}
		node := Build(n, frameHash)
		if count, ok := siblingCounts[parentKeys[i]]; ok {
			node.SiblingsCount = count
			node.Signature = Signature(node)
		}
		out = append(out, node)
	}
	return out
}

// IsTextNode reports whether tag denotes a text node, excluded from the
// interactive candidate set but retained for fallback text matching
// (§4.2: "drop text nodes from interactive candidate set but retain for
// fallback text matching").
func IsTextNode(tag string) bool {
	return strings.ToUpper(strings.TrimSpace(tag)) == "#TEXT"
}

func isInteractive(tag, role string, attrs map[string]string) bool {
	if interactiveTags[tag] {
		if tag == "INPUT" && strings.EqualFold(attrs["type"], "hidden") {
			return false
		}
		return true
	}
	if interactiveRoles[strings.ToLower(role)] {
		return true
	}
	for _, a := range interactiveAttrs {
		if _, ok := attrs[a]; ok {
			return true
		}
	}
	return false
}

// parentContext derives the parent tag and sibling count from the
// hierarchy path when present, else falls back to the XPath hint (§4.2:
// "derived from hierarchy path when present, else by XPath-prefix
// inspection").
func parentContext(raw model.RawNode) (parentTag string, siblingsCount int) {
	if len(raw.Hierarchy) > 0 {
		parentTag = strings.ToUpper(raw.Hierarchy[len(raw.Hierarchy)-1])
		return parentTag, siblingsCount
	}
	if raw.XPathHint != "" {
		segments := strings.Split(strings.Trim(raw.XPathHint, "/"), "/")
		if len(segments) >= 2 {
			parent := segments[len(segments)-2]
			parentTag = strings.ToUpper(stripPredicate(parent))
		}
	}
	return parentTag, siblingsCount
}

func stripPredicate(segment string) string {
	if idx := strings.Index(segment, "["); idx >= 0 {
		return segment[:idx]
	}
	return segment
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Signature builds the deterministic 16-hex-char digest of §4.2: the
// first non-empty of id/name/aria-label/title/placeholder, then
// tag/role/text[:50]/parent/siblings/backend, joined with "|" in a fixed
// order and hashed. Different attribute orderings of the same node never
// change the digest because extraction order is fixed here, not driven by
// map iteration.
func Signature(n model.CanonicalNode) string {
	primary := firstNonEmpty(n.ID, n.Name, n.AriaLabel, n.Title, n.Placeholder)
	text := n.InnerText
	if len(text) > 50 {
		text = text[:50]
	}
	parts := []string{
		primary,
		n.Tag,
		n.Role,
		text,
		n.ParentTag,
		strconv.Itoa(n.SiblingsCount),
		n.BackendNodeID,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
