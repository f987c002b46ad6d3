package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/udaysk3/smart-research-assistant/internal/aggregate"
	"github.com/udaysk3/smart-research-assistant/internal/feedcache"
	"github.com/udaysk3/smart-research-assistant/internal/ledger"
	"github.com/udaysk3/smart-research-assistant/internal/research"
	"github.com/udaysk3/smart-research-assistant/internal/resilience"
	"github.com/udaysk3/smart-research-assistant/internal/source"
	"github.com/udaysk3/smart-research-assistant/internal/store"
	anthropicpkg "github.com/udaysk3/smart-research-assistant/pkg/anthropic"
	"github.com/udaysk3/smart-research-assistant/pkg/serpapi"
	"github.com/udaysk3/smart-research-assistant/pkg/vectorindex"
)

// appEnv holds the initialized store, services, and clients shared by the
// serve/research/feeds/credits commands.
type appEnv struct {
	Store        store.Store
	Ledger       *ledger.Service
	Cache        *feedcache.Cache
	Refresher    *feedcache.Refresher
	Orchestrator *research.Orchestrator
	Breakers     *resilience.ServiceBreakers
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv sets up the store, ledger, feed cache, adapters, and
// orchestrator. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	ledgerSvc := ledger.New(st, cfg.Credits.SignupGrant)

	feeds, err := feedcache.LoadFeeds(cfg.Feeds.ConfigPath)
	if err != nil {
		zap.L().Warn("feed config not loaded, live feed source will be empty",
			zap.String("path", cfg.Feeds.ConfigPath),
			zap.Error(err),
		)
		feeds = nil
	}
	fetcher := feedcache.NewHTTPFetcher(time.Duration(cfg.Feeds.FetchTimeoutSecs) * time.Second)
	cache := feedcache.New(st, fetcher, feeds, feedcache.Config{
		Retention:  cfg.Feeds.Retention(),
		MaxPerFeed: cfg.Feeds.MaxItemsPerFeed,
	})
	refresher := feedcache.NewRefresher(cache, cfg.Feeds.RefreshInterval())

	breakers := resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())

	serpClient := serpapi.NewClient(cfg.SerpAPI.Key,
		serpapi.WithBaseURL(cfg.SerpAPI.BaseURL),
		serpapi.WithEngine(cfg.SerpAPI.Engine),
		serpapi.WithRateLimit(cfg.SerpAPI.RequestsPerSec),
	)
	indexClient := vectorindex.NewClient(cfg.VectorIndex.BaseURL, cfg.VectorIndex.Key)
	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	halfLife := time.Duration(cfg.Feeds.RecencyHalfLifeHours) * time.Hour
	adapters := func(userID string) *source.Registry {
		r := source.NewRegistry()
		r.Register(source.NewDocumentAdapter(indexClient, userID))
		r.Register(source.NewLiveFeedAdapter(cache, halfLife))
		if cfg.SerpAPI.Key != "" {
			r.Register(source.NewWebSearchAdapter(serpClient).WithBreaker(breakers.Get("serpapi")))
		}
		return r
	}

	synth := research.NewAnthropicSynthesizer(anthropicClient, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	orch := research.New(st, ledgerSvc, adapters, synth, research.Config{
		CreditCost:            cfg.Credits.CostPerReport,
		SynthesisTimeout:      cfg.Research.SynthesisTimeout(),
		AllowGeneralSynthesis: cfg.Research.AllowGeneralSynthesis,
		Aggregate: aggregate.Config{
			PerSourceLimit:   cfg.Research.PerSourceLimit,
			MaxEvidence:      cfg.Research.MaxEvidence,
			DedupThreshold:   cfg.Research.DedupThreshold,
			SourceTimeout:    cfg.Research.SourceTimeout(),
			WebSearchTimeout: cfg.Research.WebSearchTimeout(),
		},
	})

	if cfg.SerpAPI.Key == "" {
		zap.L().Warn("RESEARCH_SERPAPI_KEY not set, web search source disabled")
	}

	return &appEnv{
		Store:        st,
		Ledger:       ledgerSvc,
		Cache:        cache,
		Refresher:    refresher,
		Orchestrator: orch,
		Breakers:     breakers,
	}, nil
}
