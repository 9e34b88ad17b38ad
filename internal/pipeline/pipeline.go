// Package pipeline wires intent parsing, promotion lookup, matching,
// reranking, xpath synthesis, execution, and promotion recording into the
// single Parse -> CheckPromotion -> Match -> Rerank -> Synth -> Execute ->
// Record state machine of §4.11, including the resilience fallback chain
// (hybrid -> exact -> loose-substring -> ElementNotFound) and the
// per-frame vector index lifecycle.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/her-retrieval/her/internal/canonical"
	"github.com/her-retrieval/her/internal/config"
	"github.com/her-retrieval/her/internal/driver"
	"github.com/her-retrieval/her/internal/embedding"
	"github.com/her-retrieval/her/internal/intent"
	"github.com/her-retrieval/her/internal/logging"
	"github.com/her-retrieval/her/internal/matcher"
	"github.com/her-retrieval/her/internal/metrics"
	"github.com/her-retrieval/her/internal/model"
	"github.com/her-retrieval/her/internal/retrieval"
	"github.com/her-retrieval/her/internal/store"
	"github.com/her-retrieval/her/internal/vectorindex"
)

// Orchestrator runs one or more steps against a single driven page.
type Orchestrator struct {
	cfg       *config.Config
	drv       driver.Driver
	st        *store.Store
	retriever *retrieval.Retriever
	metrics   *metrics.Recorder
	watcher   *embedding.ModelsWatcher
	sessionID string
}

// cacheObserver adapts a *metrics.Recorder to embedding.CacheObserver
// without embedding needing to import the metrics package.
type cacheObserver struct{ m *metrics.Recorder }

func (o cacheObserver) Observe(hit bool) { o.m.RecordCache(context.Background(), hit) }

// New wires an Orchestrator from a loaded config, a driver, and a store.
// The mini/html embedding engines are constructed here from cfg.Embedding
// so callers never have to know which backend is active. rec may be nil,
// in which case metrics collection is a no-op (every Recorder method
// tolerates a nil receiver).
func New(cfg *config.Config, drv driver.Driver, st *store.Store, rec *metrics.Recorder) (*Orchestrator, error) {
	miniCfg := embedding.Config{Provider: cfg.Embedding.Provider, GenAIAPIKey: cfg.Embedding.GenAIAPIKey, TextModel: cfg.Embedding.TextModel, HTMLModel: cfg.Embedding.HTMLModel}
	mini, err := embedding.NewEngine(miniCfg, embedding.KindText)
	if err != nil {
		return nil, fmt.Errorf("failed to build mini embedding engine: %w", err)
	}
	html, err := embedding.NewEngine(miniCfg, embedding.KindHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to build html embedding engine: %w", err)
	}

	cache := store.NewEmbeddingCache(st)
	mini = embedding.NewCachingEngine(mini, cache).WithObserver(cacheObserver{m: rec})
	html = embedding.NewCachingEngine(html, cache).WithObserver(cacheObserver{m: rec})

	maxFrames := cfg.Limits.MaxFrameIndices
	if maxFrames <= 0 {
		maxFrames = 10
	}
	retriever := retrieval.New(mini, html, vectorindex.NewManager(maxFrames))

	watcher, err := embedding.NewModelsWatcher(cfg.ModelsDir)
	if err != nil {
		logging.PipelineDebug("failed to start models_dir watcher: %v", err)
	}
	watcher.Start(context.Background())

	return &Orchestrator{cfg: cfg, drv: drv, st: st, retriever: retriever, metrics: rec, watcher: watcher, sessionID: uuid.NewString()}, nil
}

// Close releases resources New started that outlive a single Step call
// (currently, the models_dir watcher). It does not close the driver or
// store passed into New -- those are owned by the caller.
func (o *Orchestrator) Close() {
	o.watcher.Stop()
}

// Step runs the full state machine for one natural-language step. The
// returned Result carries the Orchestrator's session id and a fresh step
// id (so every step is independently addressable in logs and RunBatch
// output) regardless of which stage it failed at.
func (o *Orchestrator) Step(ctx context.Context, step string) model.Result {
	timer := logging.StartTimer(logging.CategoryPipeline, "Step")
	stepID := uuid.NewString()
	defer func() {
		o.metrics.RecordStageDuration(ctx, "Step", timer.Stop().Seconds())
	}()

	result := o.step(ctx, step)
	result.SessionID = o.sessionID
	result.StepID = stepID
	return result
}

func (o *Orchestrator) step(ctx context.Context, step string) model.Result {
	parsed := intent.Parse(step)
	if !parsed.Valid {
		return model.Result{OK: false, Action: parsed.Action, Stage: "Parse", Kind: model.KindInvalidIntent, Message: strings.Join(parsed.Issues, "; ")}
	}

	switch parsed.Action {
	case model.ActionNavigate:
		return o.runNavigate(ctx, parsed)
	case model.ActionWait:
		return o.runWait(ctx, parsed)
	default:
		return o.runElementAction(ctx, parsed)
	}
}

func (o *Orchestrator) runNavigate(ctx context.Context, parsed model.ParsedIntent) model.Result {
	timeout := o.cfg.Browser.NavigationTimeout()
	if err := o.drv.Goto(ctx, parsed.Target, timeout); err != nil {
		return model.Result{OK: false, Action: parsed.Action, Stage: "Execute", Kind: kindOf(err, model.KindExecution), Message: err.Error()}
	}
	return model.Result{OK: true, Action: parsed.Action, Value: parsed.Target, Stage: "Execute"}
}

func (o *Orchestrator) runWait(ctx context.Context, parsed model.ParsedIntent) model.Result {
	seconds, ok := intent.ParseWaitDuration(parsed.Value)
	if !ok {
		seconds = 1
	}
	d := time.Duration(seconds * float64(time.Second))
	select {
	case <-time.After(d):
	case <-ctx.Done():
		return model.Result{OK: false, Action: parsed.Action, Stage: "Execute", Kind: model.KindTimeout, Message: ctx.Err().Error()}
	}
	return model.Result{OK: true, Action: parsed.Action, Stage: "Execute"}
}

// runElementAction covers click/type/validate: it snapshots the page,
// locates a candidate through the resilience chain, synthesises an
// xpath, executes, and records the outcome in the promotion store.
func (o *Orchestrator) runElementAction(ctx context.Context, parsed model.ParsedIntent) model.Result {
	snap, err := o.drv.Snapshot(ctx)
	if err != nil {
		return model.Result{OK: false, Action: parsed.Action, Stage: "Snapshot", Kind: kindOf(err, model.KindExecution), Message: err.Error()}
	}
	nodes := canonical.BuildAll(snap)
	if max := o.cfg.Limits.MaxElements; max > 0 && len(nodes) > max {
		nodes = nodes[:max]
	}

	pageSig := pageSignature(snap.URL, snap.DOMHash)
	frameHash := snap.FrameHash
	if frameHash == "" {
		frameHash = pageSig
	}
	labelKey := store.ScopeLabelKey(strings.Join(parsed.LabelTokens, " "), o.cfg.UseSemanticSearch)

	if xp, ok := o.checkPromotion(ctx, pageSig, frameHash, labelKey); ok {
		result := o.execute(ctx, parsed, xp)
		o.record(pageSig, frameHash, labelKey, xp, result.OK)
		return result
	}

	xp, stage, err := runResilienceChain(ctx, o, parsed, frameHash, nodes)
	if err != nil {
		kind, _ := model.AsKind(err)
		return model.Result{OK: false, Action: parsed.Action, Stage: stage, Kind: kind, Message: err.Error(), Suggestions: matcher.Suggestions(parsed.Target, nodes, parsed.Action, false)}
	}

	result := o.execute(ctx, parsed, xp)
	o.record(pageSig, frameHash, labelKey, xp, result.OK)
	return result
}

// checkPromotion looks up a previously successful selector and confirms
// it still resolves on the current page before trusting it, so a stale
// promotion entry falls through to the full match chain instead of
// silently failing (§4.9).
func (o *Orchestrator) checkPromotion(ctx context.Context, pageSig, frameHash, labelKey string) (string, bool) {
	selector, ok, err := o.st.Lookup(pageSig, frameHash, labelKey)
	if err != nil || !ok {
		o.metrics.RecordPromotion(ctx, false)
		return "", false
	}
	count, err := o.drv.Query(ctx, selector)
	if err != nil || count == 0 {
		if err == nil && count == 0 {
			if demoteErr := o.st.Demote(pageSig, frameHash, labelKey, selector); demoteErr != nil {
				logging.PipelineDebug("failed to demote stale promotion selector=%s: %v", selector, demoteErr)
			}
		}
		o.metrics.RecordPromotion(ctx, false)
		return "", false
	}
	o.metrics.RecordPromotion(ctx, true)
	logging.PipelineDebug("promotion hit for label_key=%s selector=%s", labelKey, selector)
	return selector, true
}

func (o *Orchestrator) execute(ctx context.Context, parsed model.ParsedIntent, xp string) model.Result {
	timeout := o.cfg.Browser.ActionTimeout()

	switch parsed.Action {
	case model.ActionClick:
		if err := o.drv.Click(ctx, xp, timeout); err != nil {
			return model.Result{OK: false, Action: parsed.Action, XPath: xp, Stage: "Execute", Kind: kindOf(err, model.KindExecution), Message: err.Error()}
		}
	case model.ActionType:
		if err := o.drv.Fill(ctx, xp, parsed.Value, timeout, true); err != nil {
			return model.Result{OK: false, Action: parsed.Action, XPath: xp, Stage: "Execute", Kind: kindOf(err, model.KindExecution), Message: err.Error()}
		}
	case model.ActionValidate:
		count, err := o.drv.Query(ctx, xp)
		if err != nil || count == 0 {
			return model.Result{OK: false, Action: parsed.Action, XPath: xp, Stage: "Execute", Kind: model.KindElementNotFound, Message: "element did not validate"}
		}
	}

	return model.Result{OK: true, Action: parsed.Action, XPath: xp, Value: parsed.Value, Stage: "Execute"}
}

func (o *Orchestrator) record(pageSig, frameHash, labelKey, selector string, success bool) {
	if err := o.st.Record(pageSig, frameHash, labelKey, selector, success); err != nil {
		logging.PipelineDebug("failed to record promotion outcome: %v", err)
	}
}

func kindOf(err error, fallback model.Kind) model.Kind {
	if k, ok := model.AsKind(err); ok {
		return k
	}
	return fallback
}

// pageSignature derives a stable page identity from a URL and its DOM
// hash the same way canonical.Signature derives node identity: a
// truncated sha256 hex digest, so promotion rows stay short and
// comparable (§4.11: page_sig = sha(url|dom_hash)). Folding in domHash
// means a SPA that mutates its DOM without changing the URL still gets
// a fresh page_sig, so stale promotion entries don't leak across
// unrelated page states.
func pageSignature(url, domHash string) string {
	sum := sha256.Sum256([]byte(url + "|" + domHash))
	return hex.EncodeToString(sum[:])[:16]
}

// BatchTarget pairs one Orchestrator (and the driven session it owns) with
// the natural-language steps to run against it. RunBatch drives every
// target's steps independently and concurrently, since two Orchestrators
// never share a driver session or vector index.
type BatchTarget struct {
	Orchestrator *Orchestrator
	Steps        []string
}

// BatchResult carries one target's results back in submission order.
type BatchResult struct {
	Results []model.Result
	Err     error
}

// RunBatch drives each target's steps to completion concurrently with
// golang.org/x/sync/errgroup, stopping early on ctx cancellation but never
// letting one target's driver error cancel another's run -- each target's
// failure is reported in its own BatchResult.Err instead of aborting the
// group, so a crashed browser session for one target doesn't lose the
// results already collected for the others.
func RunBatch(ctx context.Context, targets []BatchTarget) []BatchResult {
	results := make([]BatchResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			results[i] = runTarget(gctx, target)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runTarget(ctx context.Context, target BatchTarget) BatchResult {
	out := make([]model.Result, 0, len(target.Steps))
	for _, step := range target.Steps {
		if err := ctx.Err(); err != nil {
			return BatchResult{Results: out, Err: err}
		}
		result := target.Orchestrator.Step(ctx, step)
		out = append(out, result)
		if !result.OK {
			return BatchResult{Results: out, Err: fmt.Errorf("step %q failed: %s", step, result.Message)}
		}
	}
	return BatchResult{Results: out}
}
