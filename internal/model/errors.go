package model

import "github.com/rotisserie/eris"

// Failure taxonomy for the research pipeline. Callers classify with
// errors.Is; wrapping layers use eris so the chain keeps its sentinel.
var (
	// ErrInsufficientCredits means the user's available balance cannot
	// cover the requested reservation. No ledger entries are appended.
	ErrInsufficientCredits = eris.New("insufficient credits")

	// ErrSourceUnavailable is a per-adapter transport/auth failure. The
	// aggregator absorbs it by degrading that source to an empty result.
	ErrSourceUnavailable = eris.New("evidence source unavailable")

	// ErrNoUsableEvidence means every source degraded and the configured
	// policy forbids synthesizing from general knowledge alone.
	ErrNoUsableEvidence = eris.New("no usable evidence")

	// ErrSynthesisFailure is an error or timeout from the external text
	// generation capability.
	ErrSynthesisFailure = eris.New("synthesis failure")

	// ErrLedgerInconsistency indicates a violated ledger invariant. It is
	// fatal for the affected operation and never silently retried.
	ErrLedgerInconsistency = eris.New("ledger inconsistency")
)
