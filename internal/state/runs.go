package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/fractal/pkg/models"
)

// RunFilter narrows ListRuns.
type RunFilter struct {
	// SessionID restricts results to one session when set.
	SessionID string
	// Limit caps the number of runs. Zero or less returns all.
	Limit int
}

// SaveRun stores a finished run and its log entries in one transaction.
func (db *DB) SaveRun(ctx context.Context, r *models.RunRecord) error {
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (
				id, session_id, query, goal, depth, width, policy, quantum_runs,
				total_possible_agents, executed_agents, delegated, final_answer,
				started_at, completed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			r.ID, nullString(r.SessionID), r.Query, r.Goal, r.Depth, r.Width, r.Policy, r.QuantumRuns,
			r.TotalPossibleAgents, r.ExecutedAgents, r.Delegated, r.FinalAnswer,
			formatTime(r.StartedAt), formatTime(r.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO run_entries (
				run_id, run, seq, layer, position, role, path, task, focus,
				response, delegated, at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare entry insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range r.Entries {
			path, err := json.Marshal(e.Path)
			if err != nil {
				return fmt.Errorf("marshal path: %w", err)
			}
			if _, err := stmt.ExecContext(ctx,
				r.ID, e.Run, e.Seq, e.Layer, e.Position, string(e.Role), string(path),
				e.Task, e.Focus, e.Response, e.Delegated, formatTime(e.At),
			); err != nil {
				return fmt.Errorf("insert entry %d/%d: %w", e.Run, e.Seq, err)
			}
		}
		return nil
	})
}

// GetRun retrieves a run with its entries. Returns nil, nil if not found.
// A unique prefix of the run ID is accepted.
func (db *DB) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\' LIMIT 2`,
		id, escapeLike(id)+"%")
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	var matches []*models.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		matches = append(matches, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	var run *models.RunRecord
	for _, m := range matches {
		if m.ID == id {
			run = m
		}
	}
	if run == nil {
		switch len(matches) {
		case 0:
			return nil, nil
		case 1:
			run = matches[0]
		default:
			return nil, fmt.Errorf("%w: %q", ErrAmbiguousID, id)
		}
	}

	entries, err := db.runEntries(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.Entries = entries
	return run, nil
}

// ListRuns returns runs newest first, without their entries.
func (db *DB) ListRuns(ctx context.Context, filter RunFilter) ([]models.RunRecord, error) {
	var where string
	args := []any{}
	if filter.SessionID != "" {
		where = "WHERE session_id = ?"
		args = append(args, filter.SessionID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs `+where+` ORDER BY started_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recent run of a session, or nil if it has none.
func (db *DB) LatestRun(ctx context.Context, sessionID string) (*models.RunRecord, error) {
	runs, err := db.ListRuns(ctx, RunFilter{SessionID: sessionID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// ErrAmbiguousID is returned when a run ID prefix matches several runs.
var ErrAmbiguousID = errors.New("ambiguous run id")

const runColumns = `id, session_id, query, goal, depth, width, policy, quantum_runs,
	total_possible_agents, executed_agents, delegated, final_answer, started_at, completed_at`

func scanRun(row scanner) (*models.RunRecord, error) {
	var r models.RunRecord
	var sessionID sql.NullString
	var startedAt, completedAt string
	if err := row.Scan(
		&r.ID, &sessionID, &r.Query, &r.Goal, &r.Depth, &r.Width, &r.Policy, &r.QuantumRuns,
		&r.TotalPossibleAgents, &r.ExecutedAgents, &r.Delegated, &r.FinalAnswer,
		&startedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	r.SessionID = sessionID.String

	var err error
	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if r.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	return &r, nil
}

func (db *DB) runEntries(ctx context.Context, runID string) ([]models.RunEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT run, seq, layer, position, role, path, task, focus, response, delegated, at
		FROM run_entries WHERE run_id = ?
		ORDER BY run, seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list entries of %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []models.RunEntry
	for rows.Next() {
		var e models.RunEntry
		var role, path, at string
		if err := rows.Scan(&e.Run, &e.Seq, &e.Layer, &e.Position, &role, &path,
			&e.Task, &e.Focus, &e.Response, &e.Delegated, &at); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Role = models.Role(role)
		if err := json.Unmarshal([]byte(path), &e.Path); err != nil {
			return nil, fmt.Errorf("unmarshal path: %w", err)
		}
		if e.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parse at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
