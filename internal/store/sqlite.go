package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/persona-predict/internal/domain"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		referrer TEXT,
		utm TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		industry TEXT,
		businesProblem TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS tampering (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		industry TEXT,
		businesProblem TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		industry TEXT,
		businesProblem TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		industry TEXT,
		businesProblem TEXT,
		error TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

// Columns added after the first release. Older databases pick them up on boot.
var alterStatements = []string{
	`ALTER TABLE sessions ADD COLUMN utm TEXT`,
	`ALTER TABLE errors ADD COLUMN error TEXT`,
}

var logQueries = map[string]string{
	"unique_sessions_per_day": `SELECT DATE(timestamp) AS day, COUNT(DISTINCT session_id) AS count
		FROM sessions GROUP BY day ORDER BY day`,
	"unique_referrers": `SELECT referrer, COUNT(DISTINCT session_id) AS count
		FROM sessions GROUP BY referrer ORDER BY count DESC`,
	"industry_counts": `SELECT industry, COUNT(*) AS count
		FROM requests GROUP BY industry ORDER BY count DESC`,
	"business_problem_counts": `SELECT businesProblem, COUNT(*) AS count
		FROM requests GROUP BY businesProblem ORDER BY count DESC`,
	"unique_requests_per_day": `SELECT DATE(timestamp) AS day, COUNT(DISTINCT session_id) AS count
		FROM requests GROUP BY day ORDER BY day`,
	"request_counts": `SELECT industry, businesProblem, COUNT(*) AS count
		FROM requests GROUP BY industry, businesProblem ORDER BY count DESC`,
	"tampering": `SELECT DATE(timestamp) AS day, industry, businesProblem, COUNT(*) AS count
		FROM tampering GROUP BY day, industry, businesProblem ORDER BY day`,
	"download_counts": `SELECT industry, businesProblem, COUNT(*) AS count
		FROM downloads GROUP BY industry, businesProblem ORDER BY count DESC`,
	"errors": `SELECT DATE(timestamp) AS day, industry, businesProblem, error
		FROM errors ORDER BY timestamp, id`,
}

// ReportNames returns the names FetchLogs always populates.
func ReportNames() []string {
	names := make([]string, 0, len(logQueries))
	for name := range logQueries {
		names = append(names, name)
	}
	return names
}

// SQLiteStore implements AuditLog using SQLite.
type SQLiteStore struct {
	db             *sql.DB
	retryAttempts  int
	retryBaseDelay time.Duration
}

// NewSQLite opens the database at dbPath and ensures the schema exists.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(db)
	if err := s.InitSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// New wraps an open database handle without touching the schema.
func New(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:             db,
		retryAttempts:  3,
		retryBaseDelay: 50 * time.Millisecond,
	}
}

// InitSchema creates missing tables and applies additive alterations.
// It is safe to run on every boot.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	for _, stmt := range alterStatements {
		_, err := s.db.ExecContext(ctx, stmt)
		switch {
		case err == nil:
			slog.Info("Schema alteration applied", "statement", stmt)
		case isDuplicateColumnError(err):
			slog.Debug("Schema alteration already applied", "statement", stmt)
		default:
			slog.Warn("Non critical migration issue", "statement", stmt, "error", err)
		}
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// LogSession records a landing-page visit.
func (s *SQLiteStore) LogSession(ctx context.Context, visit domain.SessionVisit) {
	utm := make(map[string]*string, len(domain.UTMKeys))
	for _, key := range domain.UTMKeys {
		utm[key] = nil
		if v, ok := visit.UTM[key]; ok && v != "" {
			utm[key] = &v
		}
	}
	utmJSON, err := json.Marshal(utm)
	if err != nil {
		slog.Error("Failed to encode utm parameters", "error", err)
		utmJSON = []byte("{}")
	}
	s.insert(ctx, domain.EventSession,
		`INSERT INTO sessions (session_id, referrer, utm) VALUES (?, ?, ?)`,
		nullIfEmpty(visit.SessionID), nullIfEmpty(visit.Referrer), string(utmJSON))
}

// LogRequest records a successful prediction.
func (s *SQLiteStore) LogRequest(ctx context.Context, sessionID string, p domain.Persona) {
	s.insert(ctx, domain.EventRequest,
		`INSERT INTO requests (session_id, industry, businesProblem) VALUES (?, ?, ?)`,
		nullIfEmpty(sessionID), p.Industry, p.BusinesProblem)
}

// LogTampering records a rejected persona.
func (s *SQLiteStore) LogTampering(ctx context.Context, sessionID string, p domain.Persona) {
	s.insert(ctx, domain.EventTampering,
		`INSERT INTO tampering (session_id, industry, businesProblem) VALUES (?, ?, ?)`,
		nullIfEmpty(sessionID), p.Industry, p.BusinesProblem)
}

// LogDownload records a download click with the session's last persona.
func (s *SQLiteStore) LogDownload(ctx context.Context, sessionID string, p domain.Persona) {
	s.insert(ctx, domain.EventDownload,
		`INSERT INTO downloads (session_id, industry, businesProblem) VALUES (?, ?, ?)`,
		nullIfEmpty(sessionID), nullIfEmpty(p.Industry), nullIfEmpty(p.BusinesProblem))
}

// LogError records a backend failure. Missing persona fields are stored as "unknown".
func (s *SQLiteStore) LogError(ctx context.Context, sessionID, errText string, p domain.Persona) {
	s.insert(ctx, domain.EventError,
		`INSERT INTO errors (session_id, industry, businesProblem, error) VALUES (?, ?, ?, ?)`,
		nullIfEmpty(sessionID), orUnknown(p.Industry), orUnknown(p.BusinesProblem), errText)
}

// insert runs one autocommitted statement, retrying lock conflicts with
// exponential backoff. Failures are logged and swallowed.
func (s *SQLiteStore) insert(ctx context.Context, kind domain.EventKind, query string, args ...any) {
	attempts := max(s.retryAttempts, 1)
	for i := 0; i < attempts; i++ {
		_, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return
		}

		if isConflictError(err) && i < attempts-1 {
			delay := s.retryBaseDelay * time.Duration(1<<i)
			slog.Debug("Database locked during audit insert, retrying",
				"kind", kind,
				"attempt", i+1,
				"delay", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				err = ctx.Err()
			}
		}

		slog.Error("Database write failed", "kind", kind, "attempts", i+1, "error", err)
		return
	}
}

// FetchLogs runs every named analytics query concurrently.
func (s *SQLiteStore) FetchLogs(ctx context.Context) (Reports, error) {
	var mu sync.Mutex
	reports := make(Reports, len(logQueries))

	g, ctx := errgroup.WithContext(ctx)
	for name, query := range logQueries {
		g.Go(func() error {
			report, err := s.fetchAll(ctx, query)
			if err != nil {
				return fmt.Errorf("report %s: %w", name, err)
			}
			mu.Lock()
			reports[name] = report
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (s *SQLiteStore) fetchAll(ctx context.Context, query string) (Report, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return Report{}, fmt.Errorf("query: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close report rows", "error", closeErr)
		}
	}()

	cols, err := rows.Columns()
	if err != nil {
		return Report{}, fmt.Errorf("columns: %w", err)
	}

	report := Report{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Report{}, fmt.Errorf("scan: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		report.Rows = append(report.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return Report{}, fmt.Errorf("iterate: %w", err)
	}
	return report, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
