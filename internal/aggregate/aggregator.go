// Package aggregate fans a research question out to every evidence source
// adapter concurrently and merges the results into one ranked,
// deduplicated evidence set.
package aggregate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/udaysk3/smart-research-assistant/internal/model"
	"github.com/udaysk3/smart-research-assistant/internal/source"
)

// Config tunes evidence gathering.
type Config struct {
	// PerSourceLimit caps how many items each adapter may contribute.
	PerSourceLimit int
	// MaxEvidence caps the merged evidence set, bounding synthesis input.
	MaxEvidence int
	// DedupThreshold is the snippet similarity above which two items
	// collapse to one.
	DedupThreshold float64
	// SourceTimeout applies to the document and live feed adapters.
	SourceTimeout time.Duration
	// WebSearchTimeout applies to the web adapter; shorter, since it is
	// the least trusted for latency.
	WebSearchTimeout time.Duration
}

// DefaultConfig returns sensible aggregation defaults.
func DefaultConfig() Config {
	return Config{
		PerSourceLimit:   5,
		MaxEvidence:      12,
		DedupThreshold:   0.85,
		SourceTimeout:    10 * time.Second,
		WebSearchTimeout: 5 * time.Second,
	}
}

// Result is the outcome of one gathering pass. Degraded records adapters
// that contributed nothing because they failed or timed out; the error
// text is kept for the orchestrator's logs, not surfaced to users.
type Result struct {
	Items    []model.EvidenceItem
	Degraded map[model.SourceKind]string
}

// Aggregator merges evidence from the registered adapters.
type Aggregator struct {
	registry *source.Registry
	cfg      Config
}

// New creates an aggregator over the given adapter registry.
func New(registry *source.Registry, cfg Config) *Aggregator {
	if cfg.PerSourceLimit <= 0 {
		cfg.PerSourceLimit = 5
	}
	if cfg.MaxEvidence <= 0 {
		cfg.MaxEvidence = 12
	}
	if cfg.DedupThreshold <= 0 {
		cfg.DedupThreshold = 0.85
	}
	return &Aggregator{registry: registry, cfg: cfg}
}

// Gather queries every adapter concurrently, each under its own timeout,
// and returns the merged, deduplicated, capped evidence set. A failing or
// timed-out adapter degrades to an empty contribution; Gather itself only
// fails on context cancellation. The "no usable evidence at all" policy
// belongs to the orchestrator, which inspects an empty Result.
func (a *Aggregator) Gather(ctx context.Context, query string) (*Result, error) {
	adapters := a.registry.All()

	result := &Result{
		Degraded: make(map[model.SourceKind]string),
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)

	for _, adapter := range adapters {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gCtx, a.timeoutFor(adapter.Kind()))
			defer cancel()

			start := time.Now()
			items, err := adapter.Search(callCtx, query, a.cfg.PerSourceLimit)
			elapsed := time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Degrade, don't fail: the request proceeds on whatever
				// sources succeeded.
				zap.L().Warn("aggregate: source degraded",
					zap.String("source", string(adapter.Kind())),
					zap.Duration("elapsed", elapsed),
					zap.Error(err),
				)
				result.Degraded[adapter.Kind()] = err.Error()
				return nil
			}
			zap.L().Debug("aggregate: source returned",
				zap.String("source", string(adapter.Kind())),
				zap.Int("items", len(items)),
				zap.Duration("elapsed", elapsed),
			)
			result.Items = append(result.Items, items...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	model.SortEvidence(result.Items)
	result.Items = Dedup(result.Items, a.cfg.DedupThreshold)
	if len(result.Items) > a.cfg.MaxEvidence {
		result.Items = result.Items[:a.cfg.MaxEvidence]
	}
	return result, nil
}

func (a *Aggregator) timeoutFor(kind model.SourceKind) time.Duration {
	if kind == model.SourceWeb && a.cfg.WebSearchTimeout > 0 {
		return a.cfg.WebSearchTimeout
	}
	if a.cfg.SourceTimeout > 0 {
		return a.cfg.SourceTimeout
	}
	return 10 * time.Second
}
