// Package model defines the shared data types that flow through the
// retrieval pipeline: Snapshot/RawNode (input), CanonicalNode (derived
// descriptor), ParsedIntent, Candidate, and the promotion/embedding-cache
// entry shapes (§3 of the specification).
package model

import "time"

// Action is the verb a parsed step resolves to (§3 ParsedIntent).
type Action string

const (
	ActionClick    Action = "click"
	ActionType     Action = "type"
	ActionValidate Action = "validate"
	ActionNavigate Action = "navigate"
	ActionWait     Action = "wait"
)

// Snapshot is the immutable input to one step: a captured DOM.
type Snapshot struct {
	URL       string
	DOMHash   string
	FrameHash string
	Elements  []RawNode // ordered, DOM pre-order
}

// RawNode is one captured DOM node, as delivered by the driver.
type RawNode struct {
	Tag            string // upper-cased by the canonical builder; as-captured here
	Text           string
	Attributes     map[string]string
	Visible        bool
	Interactive    bool
	BackendNodeID  string // opaque; synthesised if empty
	FrameHash      string
	Hierarchy      []string // ancestor tag tokens, root-first; optional
	XPathHint      string
	Accessibility  *AccessibilityInfo // optional a11y sub-object
	ShadowRoots    []RawNode          // nodes inside an open shadow root, recursively (supplemented; §4 SPEC_FULL)
}

// AccessibilityInfo carries the optional accessibility name/role used when
// RawNode.Attributes lacks a role or when inner text is empty (§4.2).
type AccessibilityInfo struct {
	Role string
	Name string
}

// CanonicalNode is the derived, equality-stable descriptor used throughout
// matching and ranking (§3).
type CanonicalNode struct {
	Tag            string
	Role           string
	InnerText      string
	ID             string
	Name           string
	AriaLabel      string
	Title          string
	Placeholder    string
	DataTestID     string
	Class          string
	Type           string
	Href           string
	ParentTag      string
	SiblingsCount  int
	IsInteractive  bool
	FrameHash      string
	BackendNodeID  string
	Depth          int // DOM depth, used for tie-breaking (§4.7)
	Signature      string

	// Raw is retained so downstream stages (hierarchy builder, XPath
	// synthesiser) can recover attributes/hierarchy the canonical shape
	// doesn't carry verbatim.
	Raw RawNode
}

// ParsedIntent is the output of the intent parser (§4.1).
type ParsedIntent struct {
	Action      Action
	Target      string
	Value       string // required iff Action == ActionType
	LabelTokens []string
	Confidence  float64
	Valid       bool
	Issues      []string
}

// Candidate is a scored CanonicalNode plus observability reasons (§3).
type Candidate struct {
	Node    CanonicalNode
	Score   float64
	Base    float64 // pre-heuristic score, used for tie-breaking (§4.7)
	Reasons []string
}

// PromotionEntry is one row of the persistent promotion store (§3, §4.9).
type PromotionEntry struct {
	PageSig             string
	FrameHash           string
	LabelKey            string
	Selector            string
	SuccessCount        int
	FailureCount        int
	ConsecutiveFailures int // resets to 0 on success; drives Demote's decay (§4 SPEC_FULL)
	UpdatedAt           time.Time
}

// EmbeddingCacheEntry is one row of the persistent embedding cache (§3, §4.10).
type EmbeddingCacheEntry struct {
	ContentHash string
	ModelName   string
	Vector      []float32
	Dim         int
	Hits        int
	Timestamp   time.Time
}

// Result is the caller-facing outcome of one step (§7: "a single step
// returns ok=false with a one-line reason").
type Result struct {
	OK          bool
	Action      Action
	XPath       string
	Value       string
	Stage       string
	Kind        Kind
	Message     string
	Suggestions []string

	// SessionID identifies the Orchestrator that ran this step and StepID
	// identifies this particular Step call, both UUIDs, so multiple
	// RunBatch targets' interleaved log lines can be attributed back to
	// their step.
	SessionID string
	StepID    string
}
