package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/udaysk3/smart-research-assistant/internal/db"
	"github.com/udaysk3/smart-research-assistant/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	question     TEXT NOT NULL,
	answer       TEXT NOT NULL,
	citations    JSONB NOT NULL DEFAULT '[]',
	sources_used JSONB NOT NULL DEFAULT '[]',
	status       TEXT NOT NULL,
	credit_cost  INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	delta          INTEGER NOT NULL,
	reason         TEXT NOT NULL,
	balance_after  INTEGER NOT NULL,
	correlation_id TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_balances (
	user_id    TEXT PRIMARY KEY,
	available  INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS feed_items (
	id           TEXT PRIMARY KEY,
	feed_name    TEXT NOT NULL,
	title        TEXT NOT NULL,
	summary      TEXT NOT NULL,
	url          TEXT NOT NULL,
	published_at TIMESTAMPTZ NOT NULL,
	ingested_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_user_id ON reports(user_id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_id ON ledger_entries(user_id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_correlation_id ON ledger_entries(correlation_id);
CREATE INDEX IF NOT EXISTS idx_feed_items_published_at ON feed_items(published_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateReport(ctx context.Context, report *model.ResearchReport) error {
	citationsJSON, err := json.Marshal(report.Citations)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal citations")
	}
	sourcesJSON, err := json.Marshal(report.SourcesUsed)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sources")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (id, user_id, question, answer, citations, sources_used, status, credit_cost, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		report.ID, report.UserID, report.Question, report.Answer,
		citationsJSON, sourcesJSON, string(report.Status),
		report.CreditCost, report.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert report")
}

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (*model.ResearchReport, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, question, answer, citations, sources_used, status, credit_cost, created_at
		 FROM reports WHERE id = $1`,
		reportID,
	)
	report, err := scanPgReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: report %s", reportID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %s", reportID)
	}
	return report, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.ResearchReport, error) {
	query := `SELECT id, user_id, question, answer, citations, sources_used, status, credit_cost, created_at FROM reports`
	var args []any
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(` WHERE user_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var reports []model.ResearchReport
	for rows.Next() {
		report, scanErr := scanPgReport(rows)
		if scanErr != nil {
			return nil, eris.Wrap(scanErr, "postgres: scan report")
		}
		reports = append(reports, *report)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: iterate reports")
}

func scanPgReport(row pgx.Row) (*model.ResearchReport, error) {
	var report model.ResearchReport
	var citationsJSON, sourcesJSON []byte
	var status string
	if err := row.Scan(
		&report.ID, &report.UserID, &report.Question, &report.Answer,
		&citationsJSON, &sourcesJSON, &status, &report.CreditCost, &report.CreatedAt,
	); err != nil {
		return nil, err
	}
	report.Status = model.ReportStatus(status)
	if err := json.Unmarshal(citationsJSON, &report.Citations); err != nil {
		return nil, eris.Wrap(err, "unmarshal citations")
	}
	if err := json.Unmarshal(sourcesJSON, &report.SourcesUsed); err != nil {
		return nil, eris.Wrap(err, "unmarshal sources")
	}
	return &report, nil
}

func (s *PostgresStore) AppendLedgerEntry(ctx context.Context, entry model.CreditLedgerEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin ledger tx")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, user_id, delta, reason, balance_after, correlation_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.EntryID, entry.UserID, entry.Delta, string(entry.Reason),
		entry.BalanceAfter, nullString(entry.CorrelationID), entry.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert ledger entry")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO user_balances (user_id, available, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET available = excluded.available, updated_at = excluded.updated_at`,
		entry.UserID, entry.BalanceAfter, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert balance")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit ledger tx")
}

func (s *PostgresStore) LedgerEntriesByCorrelation(ctx context.Context, correlationID string) ([]model.CreditLedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, delta, reason, balance_after, correlation_id, created_at
		 FROM ledger_entries WHERE correlation_id = $1 ORDER BY created_at ASC, id ASC`,
		correlationID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ledger entries by correlation %s", correlationID)
	}
	defer rows.Close()
	return scanPgLedgerEntries(rows)
}

func (s *PostgresStore) LedgerEntriesByUser(ctx context.Context, userID string, limit int) ([]model.CreditLedgerEntry, error) {
	query := `SELECT id, user_id, delta, reason, balance_after, correlation_id, created_at
		 FROM ledger_entries WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ledger entries for user %s", userID)
	}
	defer rows.Close()
	return scanPgLedgerEntries(rows)
}

func scanPgLedgerEntries(rows pgx.Rows) ([]model.CreditLedgerEntry, error) {
	var entries []model.CreditLedgerEntry
	for rows.Next() {
		var entry model.CreditLedgerEntry
		var reason string
		var correlationID *string
		if err := rows.Scan(
			&entry.EntryID, &entry.UserID, &entry.Delta, &reason,
			&entry.BalanceAfter, &correlationID, &entry.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "scan ledger entry")
		}
		entry.Reason = model.EntryReason(reason)
		if correlationID != nil {
			entry.CorrelationID = *correlationID
		}
		entries = append(entries, entry)
	}
	return entries, eris.Wrap(rows.Err(), "iterate ledger entries")
}

func (s *PostgresStore) LedgerSum(ctx context.Context, userID string) (int, error) {
	var sum int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE user_id = $1`,
		userID,
	).Scan(&sum)
	return sum, eris.Wrapf(err, "postgres: ledger sum for user %s", userID)
}

func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (*model.UserBalance, error) {
	var balance model.UserBalance
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, available, updated_at FROM user_balances WHERE user_id = $1`,
		userID,
	).Scan(&balance.UserID, &balance.Available, &balance.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: balance for user %s", userID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get balance for user %s", userID)
	}
	return &balance, nil
}

func (s *PostgresStore) InsertFeedItem(ctx context.Context, item model.LiveFeedItem) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO feed_items (id, feed_name, title, summary, url, published_at, ingested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
		item.ItemID, item.FeedName, item.Title, item.Summary, item.URL,
		item.PublishedAt.UTC(), item.IngestedAt.UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert feed item")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SearchFeedItems(ctx context.Context, terms []string, limit int) ([]model.LiveFeedItem, error) {
	query := `SELECT id, feed_name, title, summary, url, published_at, ingested_at FROM feed_items`
	var args []any
	if len(terms) > 0 {
		var clauses []string
		for _, term := range terms {
			args = append(args, "%"+strings.ToLower(term)+"%")
			clauses = append(clauses, fmt.Sprintf(`(LOWER(title) LIKE $%d OR LOWER(summary) LIKE $%d)`, len(args), len(args)))
		}
		query += ` WHERE ` + strings.Join(clauses, " OR ")
	}
	query += ` ORDER BY published_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search feed items")
	}
	defer rows.Close()

	var items []model.LiveFeedItem
	for rows.Next() {
		var item model.LiveFeedItem
		if err := rows.Scan(
			&item.ItemID, &item.FeedName, &item.Title, &item.Summary,
			&item.URL, &item.PublishedAt, &item.IngestedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feed item")
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: iterate feed items")
}

func (s *PostgresStore) EvictFeedItemsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM feed_items WHERE published_at < $1`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: evict feed items")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountFeedItems(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM feed_items`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count feed items")
}
