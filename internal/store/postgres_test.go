package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udaysk3/smart-research-assistant/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

// anyArgs returns n pgxmock.AnyArg matchers, for expectations that do not
// constrain the statement arguments.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_GetReport_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, user_id, question, answer, citations, sources_used, status, credit_cost, created_at`).
		WithArgs("missing-report").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetReport(context.Background(), "missing-report")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetReport_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"id", "user_id", "question", "answer", "citations", "sources_used", "status", "credit_cost", "created_at",
	}).AddRow(
		"r1", "alice", "question?", "answer [1]",
		[]byte(`[{"index":1,"title":"T","snippet":"S","source_label":"Web Search","location":"https://example.com"}]`),
		[]byte(`["web"]`), "committed", 1, created,
	)
	mock.ExpectQuery(`SELECT id, user_id, question, answer, citations, sources_used, status, credit_cost, created_at`).
		WithArgs("r1").
		WillReturnRows(rows)

	report, err := s.GetReport(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "alice", report.UserID)
	assert.Equal(t, model.ReportStatusCommitted, report.Status)
	require.Len(t, report.Citations, 1)
	assert.Equal(t, 1, report.Citations[0].Index)
	assert.Equal(t, []model.SourceKind{model.SourceWeb}, report.SourcesUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO reports`).
		WithArgs(anyArgs(9)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	report := &model.ResearchReport{
		ID: "r1", UserID: "alice", Question: "q", Answer: "a",
		Status: model.ReportStatusCommitted, CreditCost: 1,
		CreatedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.CreateReport(context.Background(), report))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendLedgerEntry_Transactional(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO user_balances`).
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	entry := model.CreditLedgerEntry{
		EntryID: "e1", UserID: "alice", Delta: -1,
		Reason: model.ReasonReservation, BalanceAfter: 9,
		CorrelationID: "corr-1",
		CreatedAt:     time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.AppendLedgerEntry(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendLedgerEntry_RollbackOnFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WithArgs(anyArgs(7)...).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	entry := model.CreditLedgerEntry{
		EntryID: "e1", UserID: "alice", Delta: -1,
		Reason: model.ReasonReservation, BalanceAfter: 9,
		CreatedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
	}
	err := s.AppendLedgerEntry(context.Background(), entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert ledger entry")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBalance_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT user_id, available, updated_at FROM user_balances`).
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetBalance(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LedgerSum(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(delta\), 0\) FROM ledger_entries`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(7))

	sum, err := s.LedgerSum(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 7, sum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertFeedItem_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO feed_items`).
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	isNew, err := s.InsertFeedItem(context.Background(), model.LiveFeedItem{
		ItemID: "f1", FeedName: "bbc-tech", Title: "t", Summary: "s",
		URL:         "https://example.com/f1",
		PublishedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		IngestedAt:  time.Date(2026, 8, 25, 10, 1, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EvictFeedItemsBefore(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM feed_items WHERE published_at`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	evicted, err := s.EvictFeedItemsBefore(context.Background(), time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 3, evicted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
