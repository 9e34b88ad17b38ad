// Package metrics records per-stage timings and the counters of §4 SPEC_FULL
// "Metrics & Fallback chain" (promotion hit-rate, shortlist size
// distribution, embedder cache hit-rate) using OpenTelemetry's metric SDK,
// the way _examples/WessleyAI-wessley-mvp wires otel into its HTTP
// middleware (pkg/mid/chain.go) for the same "don't hand-roll
// instrumentation" reason. Unlike that teacher's request-tracing use, her
// has no collector endpoint to export to, so the provider is built over an
// in-process sdkmetric.ManualReader and Snapshot renders a point-in-time
// summary for the `her inspect` CLI subcommand.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Recorder is the metrics surface the pipeline orchestrator is
// constructed with. Every method is safe to call with a nil *Recorder
// (as a no-op), so wiring metrics is never a prerequisite for running a
// step.
type Recorder struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader

	stageDuration   otelmetric.Float64Histogram
	shortlistSize   otelmetric.Int64Histogram
	promotionHits   otelmetric.Int64Counter
	promotionMisses otelmetric.Int64Counter
	cacheHits       otelmetric.Int64Counter
	cacheMisses     otelmetric.Int64Counter
}

// New builds a Recorder with an in-process reader; nothing is exported
// over the network. Call Snapshot to pull current values.
func New() (*Recorder, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("github.com/her-retrieval/her")

	stageDuration, err := meter.Float64Histogram(
		"her.pipeline.stage_duration_seconds",
		otelmetric.WithDescription("wall-clock duration of one pipeline stage"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage duration histogram: %w", err)
	}

	shortlistSize, err := meter.Int64Histogram(
		"her.retrieval.shortlist_size",
		otelmetric.WithDescription("number of candidates surviving the MiniLM shortlist stage"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create shortlist size histogram: %w", err)
	}

	promotionHits, err := meter.Int64Counter("her.promotion.hits", otelmetric.WithDescription("promotion store lookups resolved without a fresh match"))
	if err != nil {
		return nil, fmt.Errorf("failed to create promotion hits counter: %w", err)
	}
	promotionMisses, err := meter.Int64Counter("her.promotion.misses", otelmetric.WithDescription("promotion store lookups that fell through to matching"))
	if err != nil {
		return nil, fmt.Errorf("failed to create promotion misses counter: %w", err)
	}
	cacheHits, err := meter.Int64Counter("her.embedding_cache.hits", otelmetric.WithDescription("embedding cache lookups served from the SQLite cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache hits counter: %w", err)
	}
	cacheMisses, err := meter.Int64Counter("her.embedding_cache.misses", otelmetric.WithDescription("embedding cache lookups requiring a fresh embed call"))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache misses counter: %w", err)
	}

	return &Recorder{
		provider:        provider,
		reader:          reader,
		stageDuration:   stageDuration,
		shortlistSize:   shortlistSize,
		promotionHits:   promotionHits,
		promotionMisses: promotionMisses,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}, nil
}

func (r *Recorder) RecordStageDuration(ctx context.Context, stage string, seconds float64) {
	if r == nil {
		return
	}
	r.stageDuration.Record(ctx, seconds, otelmetric.WithAttributes(attribute.String("stage", stage)))
}

func (r *Recorder) RecordShortlistSize(ctx context.Context, n int) {
	if r == nil {
		return
	}
	r.shortlistSize.Record(ctx, int64(n))
}

func (r *Recorder) RecordPromotion(ctx context.Context, hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.promotionHits.Add(ctx, 1)
	} else {
		r.promotionMisses.Add(ctx, 1)
	}
}

func (r *Recorder) RecordCache(ctx context.Context, hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.cacheHits.Add(ctx, 1)
	} else {
		r.cacheMisses.Add(ctx, 1)
	}
}

// Shutdown flushes and releases the underlying meter provider.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}

// Snapshot renders the current counters/histograms as human-readable
// lines (byte/count formatting via go-humanize, as the teacher's store
// layer formats sizes in its maintenance logs) for `her inspect metrics`.
func (r *Recorder) Snapshot(ctx context.Context) (string, error) {
	if r == nil {
		return "(metrics disabled)\n", nil
	}
	var data metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &data); err != nil {
		return "", fmt.Errorf("failed to collect metrics: %w", err)
	}

	var b strings.Builder
	for _, sm := range data.ScopeMetrics {
		names := make([]string, 0, len(sm.Metrics))
		byName := make(map[string]metricdata.Metrics, len(sm.Metrics))
		for _, m := range sm.Metrics {
			names = append(names, m.Name)
			byName[m.Name] = m
		}
		sort.Strings(names)
		for _, name := range names {
			writeMetricLine(&b, byName[name])
		}
	}
	return b.String(), nil
}

func writeMetricLine(b *strings.Builder, m metricdata.Metrics) {
	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		for _, dp := range data.DataPoints {
			fmt.Fprintf(b, "%s%s = %s\n", m.Name, attrString(dp.Attributes), humanize.Comma(dp.Value))
		}
	case metricdata.Histogram[int64]:
		for _, dp := range data.DataPoints {
			fmt.Fprintf(b, "%s%s count=%s sum=%s\n", m.Name, attrString(dp.Attributes), humanize.Comma(int64(dp.Count)), humanize.Comma(dp.Sum))
		}
	case metricdata.Histogram[float64]:
		for _, dp := range data.DataPoints {
			fmt.Fprintf(b, "%s%s count=%s sum=%.3fs\n", m.Name, attrString(dp.Attributes), humanize.Comma(int64(dp.Count)), dp.Sum)
		}
	}
}

func attrString(set attribute.Set) string {
	if set.Len() == 0 {
		return ""
	}
	var parts []string
	iter := set.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		parts = append(parts, fmt.Sprintf("%s=%s", kv.Key, kv.Value.Emit()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
