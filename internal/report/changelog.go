// Package report persists detected changes to a SQLite change log and
// writes per-cycle JSON report artifacts.
package report

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/raysh454/vigil/internal/logging"
	"github.com/raysh454/vigil/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

// ChangeRow is one persisted change-log entry.
type ChangeRow struct {
	ID          string    `json:"id"`
	CycleID     string    `json:"cycle_id"`
	URL         string    `json:"url"`
	DetectedAt  time.Time `json:"detected_at"`
	ChangeTypes []string  `json:"change_types"`
	Summary     string    `json:"summary"`
	MaxSeverity string    `json:"max_severity"`
	PolicyAlert bool      `json:"policy_alert"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	FinalURL    string    `json:"final_url"`
	Source      string    `json:"source"`
	Priority    string    `json:"priority"`
}

// ChangeLog records detected changes, stealth alerts and cycle stats
// in SQLite.
type ChangeLog struct {
	db     *sql.DB
	logger logging.Logger
}

// OpenChangeLog opens (creating if needed) the change log database at
// path and applies the schema.
func OpenChangeLog(path string, logger logging.Logger) (*ChangeLog, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create changelog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open changelog database: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply changelog schema: %w", err)
	}

	return &ChangeLog{
		db:     db,
		logger: logger.With(logging.Field{Key: "component", Value: "changelog"}),
	}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// LogChange records one detected change set as a single row plus one
// row per stealth alert.
func (l *ChangeLog) LogChange(ctx context.Context, cycleID string, change *model.DetectedChange) error {
	if change == nil {
		return errors.New("nil change")
	}

	types := make([]string, 0, len(change.Changes))
	for _, c := range change.Changes {
		types = append(types, c.ChangeType)
	}

	detailsJSON, err := json.Marshal(change.Changes)
	if err != nil {
		return fmt.Errorf("marshal change details: %w", err)
	}

	var statusCode int
	var contentType, finalURL string
	if change.Metadata != nil {
		statusCode = change.Metadata.StatusCode
		contentType = change.Metadata.Header("Content-Type")
		finalURL = change.Metadata.FinalURL
	}
	if finalURL == "" {
		finalURL = change.URL
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			l.logger.Warn("rollback failed", logging.Field{Key: "error", Value: rbErr.Error()})
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO changes (id, cycle_id, url, detected_at, change_types, summary, max_severity, policy_alert, status_code, content_type, final_url, source, priority, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), cycleID, change.URL, change.Timestamp.Unix(),
		strings.Join(types, ","), Summarize(change), change.MaxSeverity(),
		boolToInt(change.HasPolicyAlert()), statusCode, contentType, finalURL,
		change.ChangeSource, change.Priority, string(detailsJSON))
	if err != nil {
		return fmt.Errorf("insert change: %w", err)
	}

	for _, alert := range change.StealthAlerts {
		alertJSON, err := json.Marshal(alert.Details)
		if err != nil {
			return fmt.Errorf("marshal alert details: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stealth_alerts (id, cycle_id, url, detected_at, alert_type, severity, message, details_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, uuid.New().String(), cycleID, change.URL, alert.Timestamp.Unix(),
			alert.AlertType, alert.Severity, alert.Message, string(alertJSON))
		if err != nil {
			return fmt.Errorf("insert stealth alert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	l.logger.Debug("change logged",
		logging.Field{Key: "url", Value: change.URL},
		logging.Field{Key: "types", Value: types})
	return nil
}

// LogCycle records the stats of a completed monitoring cycle.
func (l *ChangeLog) LogCycle(ctx context.Context, stats *model.CycleStats) error {
	if stats == nil {
		return errors.New("nil stats")
	}

	var endedAt any
	if stats.EndTime != nil {
		endedAt = stats.EndTime.Unix()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cycles (id, started_at, ended_at, urls_checked, changes_detected, stealth_alerts, errors, first_run, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, stats.CycleID, stats.StartTime.Unix(), endedAt, stats.URLsChecked,
		stats.ChangesDetected, stats.StealthAlerts, stats.Errors,
		boolToInt(stats.FirstRun), stats.DurationSeconds)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

// RecentChanges returns the newest change rows, newest first.
func (l *ChangeLog) RecentChanges(ctx context.Context, limit int) ([]ChangeRow, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, cycle_id, url, detected_at, change_types, summary, max_severity, policy_alert, status_code, content_type, final_url, source, priority
		FROM changes
		ORDER BY detected_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var out []ChangeRow
	for rows.Next() {
		var r ChangeRow
		var detectedAt int64
		var types string
		var policyAlert int
		var statusCode sql.NullInt64
		var contentType, finalURL, priority sql.NullString

		if err := rows.Scan(&r.ID, &r.CycleID, &r.URL, &detectedAt, &types, &r.Summary,
			&r.MaxSeverity, &policyAlert, &statusCode, &contentType, &finalURL,
			&r.Source, &priority); err != nil {
			return nil, fmt.Errorf("scan change row: %w", err)
		}
		r.DetectedAt = time.Unix(detectedAt, 0).UTC()
		if types != "" {
			r.ChangeTypes = strings.Split(types, ",")
		}
		r.PolicyAlert = policyAlert != 0
		r.StatusCode = int(statusCode.Int64)
		r.ContentType = contentType.String
		r.FinalURL = finalURL.String
		r.Priority = priority.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change rows: %w", err)
	}
	return out, nil
}

// Close releases the database handle.
func (l *ChangeLog) Close() error {
	return l.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
