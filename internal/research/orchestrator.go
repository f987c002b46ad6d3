package research

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/udaysk3/smart-research-assistant/internal/aggregate"
	"github.com/udaysk3/smart-research-assistant/internal/citation"
	"github.com/udaysk3/smart-research-assistant/internal/ledger"
	"github.com/udaysk3/smart-research-assistant/internal/model"
	"github.com/udaysk3/smart-research-assistant/internal/source"
	"github.com/udaysk3/smart-research-assistant/internal/store"
)

// AdapterFactory builds the adapter registry for one user. The document
// adapter is scoped to the requesting user, so the registry is
// per-request.
type AdapterFactory func(userID string) *source.Registry

// Options toggles optional evidence sources for one request.
type Options struct {
	IncludeWebSearch bool
	IncludeLiveData  bool
}

// DefaultOptions enables every source.
func DefaultOptions() Options {
	return Options{IncludeWebSearch: true, IncludeLiveData: true}
}

// Config tunes the orchestrator.
type Config struct {
	// CreditCost is charged per successful report.
	CreditCost int
	// SynthesisTimeout is the hard timeout on the synthesis call.
	SynthesisTimeout time.Duration
	// AllowGeneralSynthesis permits answering from general knowledge when
	// every evidence source degraded. Off by default: zero evidence fails
	// the request.
	AllowGeneralSynthesis bool
	// Aggregate tunes evidence gathering.
	Aggregate aggregate.Config
}

// Orchestrator runs the research state machine:
//
//	Received → Reserved → EvidenceGathered → Synthesized → Committed
//
// with Failed reachable from any state. Every path out of Reserved ends in
// exactly one ledger commit or rollback.
type Orchestrator struct {
	store    store.Store
	ledger   *ledger.Service
	adapters AdapterFactory
	synth    Synthesizer
	cfg      Config
	now      func() time.Time
}

// New creates an orchestrator.
func New(st store.Store, ledgerSvc *ledger.Service, adapters AdapterFactory, synth Synthesizer, cfg Config) *Orchestrator {
	if cfg.CreditCost <= 0 {
		cfg.CreditCost = 1
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = 60 * time.Second
	}
	return &Orchestrator{
		store:    st,
		ledger:   ledgerSvc,
		adapters: adapters,
		synth:    synth,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (o *Orchestrator) WithNow(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// SubmitResearch runs one research request end to end and returns the
// persisted report. On any failure after the credit reservation the
// reservation is rolled back exactly once, so a failed request never
// charges credits.
func (o *Orchestrator) SubmitResearch(ctx context.Context, userID, question string, opts Options) (*model.ResearchReport, error) {
	if question == "" {
		return nil, eris.New("research: question is empty")
	}
	log := zap.L().With(zap.String("user_id", userID))
	log.Info("research: request received", zap.Int("credit_cost", o.cfg.CreditCost))

	// Received → Reserved
	correlationID, err := o.ledger.Reserve(ctx, userID, o.cfg.CreditCost)
	if err != nil {
		if errors.Is(err, model.ErrInsufficientCredits) {
			log.Info("research: rejected, insufficient credits")
		}
		return nil, err
	}
	log = log.With(zap.String("correlation_id", correlationID))

	// fail rolls back the reservation exactly once and surfaces the error.
	// The rollback runs on a context detached from the request: a client
	// disconnect or request deadline must not strand the reservation with
	// the user's credits still held.
	fail := func(state model.ReportStatus, cause error) error {
		log.Warn("research: request failed",
			zap.String("state", string(state)),
			zap.Error(cause),
		)
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if rbErr := o.ledger.Rollback(rbCtx, correlationID); rbErr != nil {
			// A rollback failure is a ledger invariant problem; report it
			// alongside the original cause rather than guessing a balance.
			log.Error("research: rollback failed", zap.Error(rbErr))
			return eris.Wrapf(model.ErrLedgerInconsistency,
				"rollback after failure: %v (original: %v)", rbErr, cause)
		}
		return cause
	}

	// Reserved → EvidenceGathered
	registry := o.registryFor(userID, opts)
	aggregator := aggregate.New(registry, o.cfg.Aggregate)
	gathered, err := aggregator.Gather(ctx, question)
	if err != nil {
		return nil, fail(model.ReportStatusReserved, eris.Wrap(err, "research: gather evidence"))
	}
	if len(gathered.Items) == 0 && !o.cfg.AllowGeneralSynthesis {
		return nil, fail(model.ReportStatusReserved,
			eris.Wrapf(model.ErrNoUsableEvidence, "all %d sources degraded", len(gathered.Degraded)))
	}
	log.Info("research: evidence gathered",
		zap.Int("items", len(gathered.Items)),
		zap.Int("degraded_sources", len(gathered.Degraded)),
	)

	// EvidenceGathered → Synthesized
	synthCtx, cancel := context.WithTimeout(ctx, o.cfg.SynthesisTimeout)
	answer, err := o.synth.Synthesize(synthCtx, question, gathered.Items)
	cancel()
	if err != nil {
		if !errors.Is(err, model.ErrSynthesisFailure) {
			err = eris.Wrap(model.ErrSynthesisFailure, err.Error())
		}
		return nil, fail(model.ReportStatusEvidenceGathered, err)
	}

	// Synthesized → Committed
	assembly := citation.Assemble(gathered.Items)
	report := &model.ResearchReport{
		ID:          uuid.New().String(),
		UserID:      userID,
		Question:    question,
		Answer:      assembly.RewriteMarkers(answer),
		Citations:   assembly.Citations,
		SourcesUsed: model.SourcesUsed(gathered.Items),
		Status:      model.ReportStatusCommitted,
		CreditCost:  o.cfg.CreditCost,
		CreatedAt:   o.now().UTC(),
	}
	if err := o.store.CreateReport(ctx, report); err != nil {
		return nil, fail(model.ReportStatusSynthesized, eris.Wrap(err, "research: persist report"))
	}
	if err := o.ledger.Commit(ctx, correlationID); err != nil {
		// The report row exists but the charge did not land; refund so the
		// caller is never silently charged, and flag the anomaly.
		log.Error("research: commit failed after report persisted",
			zap.String("report_id", report.ID),
			zap.Error(err),
		)
		return nil, fail(model.ReportStatusSynthesized, err)
	}

	log.Info("research: request committed",
		zap.String("report_id", report.ID),
		zap.Int("citations", len(report.Citations)),
	)
	return report, nil
}

// registryFor narrows the user's registry to the sources enabled by opts.
func (o *Orchestrator) registryFor(userID string, opts Options) *source.Registry {
	full := o.adapters(userID)
	filtered := source.NewRegistry()
	for _, adapter := range full.All() {
		switch adapter.Kind() {
		case model.SourceWeb:
			if !opts.IncludeWebSearch {
				continue
			}
		case model.SourceLiveFeed:
			if !opts.IncludeLiveData {
				continue
			}
		}
		filtered.Register(adapter)
	}
	return filtered
}
