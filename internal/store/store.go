// Package store provides the append-only audit log and its analytics queries.
package store

import (
	"context"

	"github.com/ashureev/persona-predict/internal/domain"
)

// AuditLog records analytics and security events.
//
// Write methods are best-effort: storage failures are logged and swallowed so
// that audit logging never aborts a user-facing request.
type AuditLog interface {
	// LogSession records a landing-page visit with its referrer and UTM parameters.
	LogSession(ctx context.Context, visit domain.SessionVisit)

	// LogRequest records a successful prediction.
	LogRequest(ctx context.Context, sessionID string, p domain.Persona)

	// LogTampering records a persona payload that failed whitelist validation.
	LogTampering(ctx context.Context, sessionID string, p domain.Persona)

	// LogDownload records a click on the download link.
	LogDownload(ctx context.Context, sessionID string, p domain.Persona)

	// LogError records a backend failure with its persona context.
	LogError(ctx context.Context, sessionID, errText string, p domain.Persona)

	// FetchLogs runs every named analytics query.
	FetchLogs(ctx context.Context) (Reports, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Report is the tabular result of one analytics query.
type Report struct {
	Columns []string `yaml:"columns" json:"columns"`
	Rows    [][]any  `yaml:"rows" json:"rows"`
}

// Reports maps report names to their results.
type Reports map[string]Report

// Counts folds a grouped report into keyColumn -> count.
// Rows whose key is NULL are reported under "".
func (r Report) Counts(keyColumn string) map[string]int64 {
	keyIdx, countIdx := -1, -1
	for i, c := range r.Columns {
		switch c {
		case keyColumn:
			keyIdx = i
		case "count":
			countIdx = i
		}
	}
	out := make(map[string]int64)
	if keyIdx < 0 || countIdx < 0 {
		return out
	}
	for _, row := range r.Rows {
		key, _ := row[keyIdx].(string)
		n, _ := row[countIdx].(int64)
		out[key] += n
	}
	return out
}
