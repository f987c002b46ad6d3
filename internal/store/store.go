package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/udaysk3/smart-research-assistant/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// ReportFilter specifies criteria for listing research reports.
type ReportFilter struct {
	UserID string `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the research pipeline.
type Store interface {
	// Reports
	CreateReport(ctx context.Context, report *model.ResearchReport) error
	GetReport(ctx context.Context, reportID string) (*model.ResearchReport, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]model.ResearchReport, error)

	// Credit ledger. AppendLedgerEntry inserts the entry and updates the
	// cached user balance to entry.BalanceAfter in one transaction.
	AppendLedgerEntry(ctx context.Context, entry model.CreditLedgerEntry) error
	LedgerEntriesByCorrelation(ctx context.Context, correlationID string) ([]model.CreditLedgerEntry, error)
	LedgerEntriesByUser(ctx context.Context, userID string, limit int) ([]model.CreditLedgerEntry, error)
	LedgerSum(ctx context.Context, userID string) (int, error)
	GetBalance(ctx context.Context, userID string) (*model.UserBalance, error)

	// Live feed cache. InsertFeedItem reports false when an item with the
	// same id is already present.
	InsertFeedItem(ctx context.Context, item model.LiveFeedItem) (bool, error)
	SearchFeedItems(ctx context.Context, terms []string, limit int) ([]model.LiveFeedItem, error)
	EvictFeedItemsBefore(ctx context.Context, cutoff time.Time) (int, error)
	CountFeedItems(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
