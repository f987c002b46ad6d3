package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/udaysk3/smart-research-assistant/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	question     TEXT NOT NULL,
	answer       TEXT NOT NULL,
	citations    TEXT NOT NULL DEFAULT '[]',
	sources_used TEXT NOT NULL DEFAULT '[]',
	status       TEXT NOT NULL,
	credit_cost  INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	delta          INTEGER NOT NULL,
	reason         TEXT NOT NULL,
	balance_after  INTEGER NOT NULL,
	correlation_id TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS user_balances (
	user_id    TEXT PRIMARY KEY,
	available  INTEGER NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS feed_items (
	id           TEXT PRIMARY KEY,
	feed_name    TEXT NOT NULL,
	title        TEXT NOT NULL,
	summary      TEXT NOT NULL,
	url          TEXT NOT NULL,
	published_at DATETIME NOT NULL,
	ingested_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_user_id ON reports(user_id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_id ON ledger_entries(user_id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_correlation_id ON ledger_entries(correlation_id);
CREATE INDEX IF NOT EXISTS idx_feed_items_published_at ON feed_items(published_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateReport(ctx context.Context, report *model.ResearchReport) error {
	citationsJSON, err := json.Marshal(report.Citations)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal citations")
	}
	sourcesJSON, err := json.Marshal(report.SourcesUsed)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sources")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, user_id, question, answer, citations, sources_used, status, credit_cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.UserID, report.Question, report.Answer,
		string(citationsJSON), string(sourcesJSON), string(report.Status),
		report.CreditCost, report.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert report")
}

func (s *SQLiteStore) GetReport(ctx context.Context, reportID string) (*model.ResearchReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, question, answer, citations, sources_used, status, credit_cost, created_at
		 FROM reports WHERE id = ?`,
		reportID,
	)
	report, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: report %s", reportID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report %s", reportID)
	}
	return report, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.ResearchReport, error) {
	query := `SELECT id, user_id, question, answer, citations, sources_used, status, credit_cost, created_at FROM reports`
	var args []any
	if filter.UserID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	var reports []model.ResearchReport
	for rows.Next() {
		report, scanErr := scanReport(rows)
		if scanErr != nil {
			return nil, eris.Wrap(scanErr, "sqlite: scan report")
		}
		reports = append(reports, *report)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: iterate reports")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*model.ResearchReport, error) {
	var report model.ResearchReport
	var citationsJSON, sourcesJSON, status string
	if err := row.Scan(
		&report.ID, &report.UserID, &report.Question, &report.Answer,
		&citationsJSON, &sourcesJSON, &status, &report.CreditCost, &report.CreatedAt,
	); err != nil {
		return nil, err
	}
	report.Status = model.ReportStatus(status)
	if err := json.Unmarshal([]byte(citationsJSON), &report.Citations); err != nil {
		return nil, eris.Wrap(err, "unmarshal citations")
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &report.SourcesUsed); err != nil {
		return nil, eris.Wrap(err, "unmarshal sources")
	}
	return &report, nil
}

func (s *SQLiteStore) AppendLedgerEntry(ctx context.Context, entry model.CreditLedgerEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin ledger tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, user_id, delta, reason, balance_after, correlation_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.EntryID, entry.UserID, entry.Delta, string(entry.Reason),
		entry.BalanceAfter, nullString(entry.CorrelationID), entry.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert ledger entry")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_balances (user_id, available, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET available = excluded.available, updated_at = excluded.updated_at`,
		entry.UserID, entry.BalanceAfter, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert balance")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit ledger tx")
}

func (s *SQLiteStore) LedgerEntriesByCorrelation(ctx context.Context, correlationID string) ([]model.CreditLedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, delta, reason, balance_after, correlation_id, created_at
		 FROM ledger_entries WHERE correlation_id = ? ORDER BY created_at ASC, id ASC`,
		correlationID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: ledger entries by correlation %s", correlationID)
	}
	defer rows.Close()
	return scanLedgerEntries(rows)
}

func (s *SQLiteStore) LedgerEntriesByUser(ctx context.Context, userID string, limit int) ([]model.CreditLedgerEntry, error) {
	query := `SELECT id, user_id, delta, reason, balance_after, correlation_id, created_at
		 FROM ledger_entries WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: ledger entries for user %s", userID)
	}
	defer rows.Close()
	return scanLedgerEntries(rows)
}

func scanLedgerEntries(rows *sql.Rows) ([]model.CreditLedgerEntry, error) {
	var entries []model.CreditLedgerEntry
	for rows.Next() {
		var entry model.CreditLedgerEntry
		var reason string
		var correlationID sql.NullString
		if err := rows.Scan(
			&entry.EntryID, &entry.UserID, &entry.Delta, &reason,
			&entry.BalanceAfter, &correlationID, &entry.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "scan ledger entry")
		}
		entry.Reason = model.EntryReason(reason)
		entry.CorrelationID = correlationID.String
		entries = append(entries, entry)
	}
	return entries, eris.Wrap(rows.Err(), "iterate ledger entries")
}

func (s *SQLiteStore) LedgerSum(ctx context.Context, userID string) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE user_id = ?`,
		userID,
	).Scan(&sum)
	return sum, eris.Wrapf(err, "sqlite: ledger sum for user %s", userID)
}

func (s *SQLiteStore) GetBalance(ctx context.Context, userID string) (*model.UserBalance, error) {
	var balance model.UserBalance
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, available, updated_at FROM user_balances WHERE user_id = ?`,
		userID,
	).Scan(&balance.UserID, &balance.Available, &balance.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: balance for user %s", userID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get balance for user %s", userID)
	}
	return &balance, nil
}

func (s *SQLiteStore) InsertFeedItem(ctx context.Context, item model.LiveFeedItem) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO feed_items (id, feed_name, title, summary, url, published_at, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ItemID, item.FeedName, item.Title, item.Summary, item.URL,
		item.PublishedAt.UTC(), item.IngestedAt.UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert feed item")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: feed item rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) SearchFeedItems(ctx context.Context, terms []string, limit int) ([]model.LiveFeedItem, error) {
	query := `SELECT id, feed_name, title, summary, url, published_at, ingested_at FROM feed_items`
	var args []any
	if len(terms) > 0 {
		var clauses []string
		for _, term := range terms {
			clauses = append(clauses, `(LOWER(title) LIKE ? OR LOWER(summary) LIKE ?)`)
			pattern := "%" + strings.ToLower(term) + "%"
			args = append(args, pattern, pattern)
		}
		query += ` WHERE ` + strings.Join(clauses, " OR ")
	}
	query += ` ORDER BY published_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search feed items")
	}
	defer rows.Close()

	var items []model.LiveFeedItem
	for rows.Next() {
		var item model.LiveFeedItem
		if err := rows.Scan(
			&item.ItemID, &item.FeedName, &item.Title, &item.Summary,
			&item.URL, &item.PublishedAt, &item.IngestedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feed item")
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: iterate feed items")
}

func (s *SQLiteStore) EvictFeedItemsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM feed_items WHERE published_at < ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: evict feed items")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: evict rows affected")
}

func (s *SQLiteStore) CountFeedItems(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feed_items`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count feed items")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
