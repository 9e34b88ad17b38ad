// Package driver defines the §6 Driver capability set consumed by the
// orchestrator, and a go-rod-backed implementation. RodDriver.Navigate/
// Click/Type and the JS-evaluation DOM capture are adapted from the
// teacher's internal/browser/session_manager.go (Navigate/Click/Type/
// captureDOMFacts), trading its mangle-fact sink for a direct
// model.Snapshot return and adding the query/press/fill operations §6
// requires that the teacher didn't need.
package driver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/her-retrieval/her/internal/logging"
	"github.com/her-retrieval/her/internal/model"
)

// namedKeys maps the §6 Press key names (loosely following common
// browser-automation key names: "Enter", "Tab", "Escape", "ArrowDown", ...)
// onto go-rod's input.Key constants. A name not present here is sent as
// its literal rune sequence instead (e.g. pressing a single letter).
var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"ArrowDown":  input.ArrowDown,
	"ArrowUp":    input.ArrowUp,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
	"Space":      input.Space,
}

// Driver is the capability set the orchestrator drives a page through
// (§6).
type Driver interface {
	Goto(ctx context.Context, url string, timeout time.Duration) error
	Snapshot(ctx context.Context) (model.Snapshot, error)
	Query(ctx context.Context, xpath string) (count int, err error)
	Click(ctx context.Context, xpath string, timeout time.Duration) error
	Fill(ctx context.Context, xpath, text string, timeout time.Duration, clear bool) error
	Press(ctx context.Context, xpath, key string, timeout time.Duration) error
	Close() error
}

// Config configures a RodDriver (§6 browser surface).
type Config struct {
	Headless bool
}

// RodDriver drives one browser page via go-rod.
type RodDriver struct {
	browser *rod.Browser
	page    *rod.Page
}

// New launches a browser and opens a blank page.
func New(cfg Config) (*RodDriver, error) {
	timer := logging.StartTimer(logging.CategoryDriver, "New")
	defer timer.Stop()

	url, err := launcher.New().Headless(cfg.Headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	logging.Driver("rod driver started headless=%v", cfg.Headless)
	return &RodDriver{browser: browser, page: page}, nil
}

// Goto navigates the page to url within timeout.
func (d *RodDriver) Goto(ctx context.Context, url string, timeout time.Duration) error {
	timer := logging.StartTimer(logging.CategoryDriver, "Goto")
	defer timer.Stop()
	return d.page.Context(ctx).Timeout(timeout).Navigate(url)
}

// Query returns how many elements match xpath.
func (d *RodDriver) Query(ctx context.Context, xpath string) (int, error) {
	els, err := d.page.Context(ctx).ElementsX(xpath)
	if err != nil {
		return 0, nil
	}
	return len(els), nil
}

// Click clicks the first element matching xpath.
func (d *RodDriver) Click(ctx context.Context, xpath string, timeout time.Duration) error {
	timer := logging.StartTimer(logging.CategoryDriver, "Click")
	defer timer.Stop()

	el, err := d.page.Context(ctx).Timeout(timeout).ElementX(xpath)
	if err != nil {
		return &model.Error{Stage: "Execute", Kind: model.KindElementNotFound, Message: "element not found for xpath " + xpath, Err: err}
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return &model.Error{Stage: "Execute", Kind: model.KindExecution, Message: "click failed", Err: err}
	}
	return nil
}

// Fill types text into the first element matching xpath, optionally
// clearing its current value first.
func (d *RodDriver) Fill(ctx context.Context, xpath, text string, timeout time.Duration, clear bool) error {
	timer := logging.StartTimer(logging.CategoryDriver, "Fill")
	defer timer.Stop()

	el, err := d.page.Context(ctx).Timeout(timeout).ElementX(xpath)
	if err != nil {
		return &model.Error{Stage: "Execute", Kind: model.KindElementNotFound, Message: "element not found for xpath " + xpath, Err: err}
	}
	if clear {
		if err := el.SelectAllText(); err != nil {
			return &model.Error{Stage: "Execute", Kind: model.KindExecution, Message: "clear failed", Err: err}
		}
	}
	if err := el.Input(text); err != nil {
		return &model.Error{Stage: "Execute", Kind: model.KindExecution, Message: "fill failed", Err: err}
	}
	return nil
}

// Press sends a single key to the first element matching xpath.
func (d *RodDriver) Press(ctx context.Context, xpath, key string, timeout time.Duration) error {
	timer := logging.StartTimer(logging.CategoryDriver, "Press")
	defer timer.Stop()

	el, err := d.page.Context(ctx).Timeout(timeout).ElementX(xpath)
	if err != nil {
		return &model.Error{Stage: "Execute", Kind: model.KindElementNotFound, Message: "element not found for xpath " + xpath, Err: err}
	}
	if k, ok := namedKeys[key]; ok {
		if err := el.Type(k); err != nil {
			return &model.Error{Stage: "Execute", Kind: model.KindExecution, Message: "press failed", Err: err}
		}
		return nil
	}
	for _, r := range key {
		if err := el.Type(input.Key(r)); err != nil {
			return &model.Error{Stage: "Execute", Kind: model.KindExecution, Message: "press failed", Err: err}
		}
	}
	return nil
}

// Close shuts down the browser.
func (d *RodDriver) Close() error {
	return d.browser.Close()
}

const maxCapturedNodes = 5000

// captureScript mirrors the teacher's captureDOMFacts JS shape: walk
// every element, collect attributes/text/visibility, but also emit the
// ancestor tag chain and an xpath hint (§4.2 inputs) and shadow-root
// children (supplemented feature), which the teacher's fact-only capture
// didn't need.
const captureScript = `
() => {
	const out = [];
	function visit(el, hierarchy) {
		if (out.length >= %d) return;
		const attrs = {};
		for (const { name, value } of Array.from(el.attributes || [])) {
			attrs[name] = value;
		}
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		const visible = style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0' && rect.width > 0 && rect.height > 0;

		out.push({
			tag: el.tagName,
			text: (el.innerText || el.value || '').slice(0, 512),
			attrs,
			visible,
			interactive: !!(el.onclick || attrs.href || attrs.tabindex),
			backend_node_id: attrs.id ? ('id:' + attrs.id) : ('idx:' + out.length),
			hierarchy: hierarchy,
		});

		for (const child of Array.from(el.children || [])) {
			visit(child, hierarchy.concat([el.tagName]));
		}
		if (el.shadowRoot) {
			for (const child of Array.from(el.shadowRoot.children || [])) {
				visit(child, hierarchy.concat([el.tagName]));
			}
		}
	}
	visit(document.documentElement, []);
	return out;
}
`

type capturedNode struct {
	Tag           string            `json:"tag"`
	Text          string            `json:"text"`
	Attrs         map[string]string `json:"attrs"`
	Visible       bool              `json:"visible"`
	Interactive   bool              `json:"interactive"`
	BackendNodeID string            `json:"backend_node_id"`
	Hierarchy     []string          `json:"hierarchy"`
}

// Snapshot captures the current DOM into a model.Snapshot (§3, §6).
func (d *RodDriver) Snapshot(ctx context.Context) (model.Snapshot, error) {
	timer := logging.StartTimer(logging.CategoryDriver, "Snapshot")
	defer timer.Stop()

	script := fmt.Sprintf(captureScript, maxCapturedNodes)
	res, err := d.page.Context(ctx).Evaluate(&rod.EvalOptions{JS: script, ByValue: true, AwaitPromise: true})
	if err != nil {
		return model.Snapshot{}, &model.Error{Stage: "Snapshot", Kind: model.KindExecution, Message: "dom capture failed", Err: err}
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return model.Snapshot{}, &model.Error{Stage: "Snapshot", Kind: model.KindExecution, Message: "dom capture decode failed", Err: err}
	}

	elements, err := parseCapturedNodes(raw)
	if err != nil {
		return model.Snapshot{}, &model.Error{Stage: "Snapshot", Kind: model.KindExecution, Message: "dom capture unmarshal failed", Err: err}
	}

	info := d.page.MustInfo()
	snap := model.Snapshot{URL: info.URL, DOMHash: domHash(raw), Elements: elements}
	logging.DriverDebug("captured %d nodes from %s", len(snap.Elements), snap.URL)
	return snap, nil
}

// domHash hashes the raw captured-node JSON so callers can detect a DOM
// change on a SPA page that never updates its URL (§4.11's page_sig is
// sha(url|dom_hash), not sha(url) alone).
func domHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}

// parseCapturedNodes decodes the JSON array produced by captureScript into
// model.RawNode values. Split out from Snapshot so the decoding logic can
// be tested without a live browser.
func parseCapturedNodes(raw []byte) ([]model.RawNode, error) {
	var nodes []capturedNode
	if err := json.Unmarshal(raw, &nodes); err != nil {
		return nil, err
	}

	elements := make([]model.RawNode, len(nodes))
	for i, n := range nodes {
		elements[i] = model.RawNode{
			Tag:           n.Tag,
			Text:          n.Text,
			Attributes:    n.Attrs,
			Visible:       n.Visible,
			Interactive:   n.Interactive,
			BackendNodeID: n.BackendNodeID,
			Hierarchy:     n.Hierarchy,
		}
	}
	return elements, nil
}

