package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ecom-insights/backend/internal/storage/models"
	"github.com/ecom-insights/backend/internal/table"
	"github.com/ecom-insights/backend/pkg/logger"
)

// Client owns two pools on the same file: a single writer connection for
// loading and history, and a query_only pool for generated SQL.
type Client struct {
	db   *sql.DB
	ro   *sql.DB
	path string
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	ro, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_query_only=true", dbPath))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open read-only database: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db, ro: ro, path: dbPath}, nil
}

func (c *Client) Close() error {
	roErr := c.ro.Close()
	if err := c.db.Close(); err != nil {
		return err
	}
	return roErr
}

func (c *Client) Ping(ctx context.Context) error {
	return c.ro.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		sql_text TEXT,
		answer TEXT,
		chart_kind TEXT,
		row_count INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		helpful INTEGER NOT NULL,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (query_id) REFERENCES query_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_query ON feedback(query_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// HasTables reports whether every named table exists and holds at least
// one row.
func (c *Client) HasTables(ctx context.Context, names ...string) (bool, error) {
	for _, name := range names {
		var n int
		err := c.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
		if err != nil {
			return false, fmt.Errorf("failed to inspect table %s: %w", name, err)
		}
		if n == 0 {
			return false, nil
		}
		var rows int
		if err := c.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, name)).Scan(&rows); err != nil {
			return false, fmt.Errorf("failed to count rows in %s: %w", name, err)
		}
		if rows == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (c *Client) DropTables(ctx context.Context, names ...string) error {
	for _, name := range names {
		if _, err := c.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, name)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", name, err)
		}
	}
	return nil
}

func (c *Client) CreateTable(ctx context.Context, ddl string) error {
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// InsertRows appends rows in one transaction.
func (c *Client) InsertRows(ctx context.Context, tableName string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, errors.New("no columns to insert")
	}
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = fmt.Sprintf("%q", col)
	}
	query := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
		tableName, strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	var n int64
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("failed to insert row %d: %w", n+1, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rows: %w", err)
	}
	return n, nil
}

// Query runs a generated statement on the read-only pool.
func (c *Client) Query(ctx context.Context, query string) (*table.Result, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}

	rows, err := c.ro.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}
	names := make([]string, len(colTypes))
	types := make([]table.ColumnType, len(colTypes))
	for i, ct := range colTypes {
		names[i] = ct.Name()
		types[i] = table.ParseDeclaredType(ct.DatabaseTypeName())
	}

	var data [][]any
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return table.FromRows(names, types, data)
}

func (c *Client) InsertQueryRecord(ctx context.Context, record *models.QueryRecord) error {
	query := `
		INSERT INTO query_history (id, question, sql_text, answer, chart_kind, row_count, status, error, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx,
		query,
		record.ID,
		record.Question,
		record.SQL,
		record.Answer,
		record.ChartKind,
		record.RowCount,
		string(record.Status),
		record.Error,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	logger.Debug("Query recorded",
		zap.String("query_id", record.ID),
		zap.String("status", string(record.Status)),
	)

	return nil
}

const historyColumns = `id, question, sql_text, answer, chart_kind, row_count, status, error, latency_ms, created_at`

func (c *Client) GetQueryRecord(ctx context.Context, id string) (*models.QueryRecord, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM query_history WHERE id = ?`, id)
	record, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get query record: %w", err)
	}
	return record, nil
}

func (c *Client) GetQueryHistory(ctx context.Context, limit int) ([]models.QueryRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM query_history ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.QueryRecord, error) {
	var (
		r                      models.QueryRecord
		sqlText, answer, chart sql.NullString
		errText, status        sql.NullString
		latency                sql.NullInt64
		createdAt              int64
	)
	if err := s.Scan(&r.ID, &r.Question, &sqlText, &answer, &chart, &r.RowCount, &status, &errText, &latency, &createdAt); err != nil {
		return nil, err
	}
	r.SQL = sqlText.String
	r.Answer = answer.String
	r.ChartKind = chart.String
	r.Status = models.QueryStatus(status.String)
	r.Error = errText.String
	r.LatencyMS = latency.Int64
	r.CreatedAt = time.Unix(createdAt, 0)
	return &r, nil
}

func (c *Client) InsertFeedback(ctx context.Context, fb *models.Feedback) error {
	helpful := 0
	if fb.Helpful {
		helpful = 1
	}
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO feedback (query_id, helpful, comment, created_at) VALUES (?, ?, ?, ?)`,
		fb.QueryID, helpful, fb.Comment, fb.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		fb.ID = id
	}
	return nil
}

func (c *Client) GetFeedbackStats(ctx context.Context) (*models.FeedbackStats, error) {
	var stats models.FeedbackStats
	var helpful sql.NullInt64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(helpful) FROM feedback`).Scan(&stats.Total, &helpful)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback stats: %w", err)
	}
	stats.Helpful = int(helpful.Int64)
	return &stats, nil
}
