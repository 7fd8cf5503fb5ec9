// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit persists finished runs and their gateway call records
// to a local SQLite database, and reads them back for rlm history.
//
// A Store implements task.Recorder. Each run is written in one
// IMMEDIATE transaction: the run row, then one row per SubcallRecord in
// issue order. Result values are stored as compressed CBOR blobs (see
// lib/codec), so partial results of any shape survive the round trip.
// Model responses are stored compressed; prompts and chunk digests are
// stored as text so they stay queryable with the sqlite3 shell.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/rlm/lib/codec"
	"github.com/bureau-foundation/rlm/lib/gateway"
	"github.com/bureau-foundation/rlm/lib/llm"
	"github.com/bureau-foundation/rlm/lib/navigator"
	"github.com/bureau-foundation/rlm/lib/sqlitepool"
	"github.com/bureau-foundation/rlm/lib/task"
)

var (
	// ErrNotFound is returned when no run matches an ID or prefix.
	ErrNotFound = errors.New("audit: run not found")

	// ErrAmbiguous is returned when an ID prefix matches several runs.
	ErrAmbiguous = errors.New("audit: run ID prefix is ambiguous")
)

var migrations = []string{
	`CREATE TABLE runs (
		id                TEXT PRIMARY KEY,
		task              TEXT NOT NULL,
		status            TEXT NOT NULL,
		error             TEXT NOT NULL DEFAULT '',
		limit_kind        TEXT NOT NULL DEFAULT '',
		model             TEXT NOT NULL DEFAULT '',
		started_at        INTEGER NOT NULL,
		elapsed_seconds   REAL NOT NULL,
		total_cost_usd    REAL NOT NULL,
		cost_budget_usd   REAL NOT NULL,
		overage_cost_usd  REAL NOT NULL DEFAULT 0,
		total_calls       INTEGER NOT NULL,
		input_tokens      INTEGER NOT NULL,
		output_tokens     INTEGER NOT NULL,
		result            BLOB,
		access            BLOB
	);
	CREATE INDEX runs_started_at ON runs (started_at DESC);

	CREATE TABLE subcalls (
		run_id            TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
		sequence          INTEGER NOT NULL,
		depth             INTEGER NOT NULL,
		prompt            TEXT NOT NULL,
		chunk_hash        TEXT NOT NULL,
		chunk_length      INTEGER NOT NULL,
		response          BLOB,
		estimated_tokens  INTEGER NOT NULL,
		input_tokens      INTEGER NOT NULL,
		output_tokens     INTEGER NOT NULL,
		usage_estimated   INTEGER NOT NULL,
		cost_usd          REAL NOT NULL,
		outcome           TEXT NOT NULL,
		error             TEXT NOT NULL DEFAULT '',
		started_at        INTEGER NOT NULL,
		duration_ns       INTEGER NOT NULL,
		PRIMARY KEY (run_id, sequence)
	);`,
}

// Config configures a Store.
type Config struct {
	// Path is the database file.
	Path string

	// Compression applies to result blobs and responses. Defaults to
	// zstd.
	Compression *codec.Compression

	Logger *slog.Logger
}

// Store is the audit database.
type Store struct {
	pool        *sqlitepool.Pool
	compression codec.Compression
	logger      *slog.Logger
}

// Open opens or creates the database at config.Path.
func Open(ctx context.Context, config Config) (*Store, error) {
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	compression := codec.CompressionZstd
	if config.Compression != nil {
		compression = *config.Compression
	}
	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:       config.Path,
		Migrations: migrations,
		Logger:     config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	return &Store{pool: pool, compression: compression, logger: config.Logger}, nil
}

// Close closes the database.
func (store *Store) Close() error {
	return store.pool.Close()
}

// RecordRun stores result and its subcalls. Recording the same run ID
// twice is an error.
func (store *Store) RecordRun(ctx context.Context, result *task.Result) (err error) {
	value := result.Value
	if result.Status == task.StatusError {
		value = nil
	}
	resultBlob, err := codec.EncodeBlob(value, store.compression)
	if err != nil {
		return fmt.Errorf("audit: encoding result of run %s: %w", result.RunID, err)
	}
	accessBlob, err := codec.EncodeBlob(result.AccessSummary, codec.CompressionNone)
	if err != nil {
		return fmt.Errorf("audit: encoding access summary of run %s: %w", result.RunID, err)
	}

	conn, err := store.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("audit: recording run %s: %w", result.RunID, err)
	}
	defer store.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("audit: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	budget := result.BudgetSummary
	err = sqlitex.Execute(conn, `INSERT INTO runs
		(id, task, status, error, limit_kind, model, started_at, elapsed_seconds,
		 total_cost_usd, cost_budget_usd, overage_cost_usd, total_calls,
		 input_tokens, output_tokens, result, access)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			result.RunID,
			result.Task,
			string(result.Status),
			result.Error,
			result.Limit,
			budget.Model,
			result.StartedAt.UnixNano(),
			budget.ElapsedSeconds,
			budget.TotalCostUSD,
			budget.CostBudgetUSD,
			budget.OverageCostUSD,
			budget.TotalCalls,
			budget.TotalInputTokens,
			budget.TotalOutputTokens,
			resultBlob,
			accessBlob,
		}})
	if err != nil {
		return fmt.Errorf("audit: inserting run %s: %w", result.RunID, err)
	}

	for _, record := range result.Subcalls {
		if err := store.insertSubcall(conn, result.RunID, record); err != nil {
			return err
		}
	}

	store.logger.Debug("run recorded",
		"run_id", result.RunID,
		"status", result.Status,
		"subcalls", len(result.Subcalls),
	)
	return nil
}

func (store *Store) insertSubcall(conn *sqlite.Conn, runID string, record gateway.SubcallRecord) error {
	response, err := codec.PackBlob([]byte(record.Response), store.compression)
	if err != nil {
		return fmt.Errorf("audit: packing response %d of run %s: %w", record.Sequence, runID, err)
	}
	estimated := 0
	if record.UsageEstimated {
		estimated = 1
	}
	err = sqlitex.Execute(conn, `INSERT INTO subcalls
		(run_id, sequence, depth, prompt, chunk_hash, chunk_length, response,
		 estimated_tokens, input_tokens, output_tokens, usage_estimated,
		 cost_usd, outcome, error, started_at, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			runID,
			record.Sequence,
			record.Depth,
			record.Prompt,
			record.ChunkHash,
			record.ChunkLength,
			response,
			record.EstimatedTokens,
			record.Usage.InputTokens,
			record.Usage.OutputTokens,
			estimated,
			record.CostUSD,
			string(record.Outcome),
			record.Error,
			record.StartedAt.UnixNano(),
			int64(record.Duration),
		}})
	if err != nil {
		return fmt.Errorf("audit: inserting subcall %d of run %s: %w", record.Sequence, runID, err)
	}
	return nil
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID             string    `json:"run_id"`
	Task           string    `json:"task"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	Limit          string    `json:"limit,omitempty"`
	Model          string    `json:"model"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	TotalCostUSD   float64   `json:"total_cost_usd"`
	CostBudgetUSD  float64   `json:"cost_budget_usd"`
	OverageCostUSD float64   `json:"overage_cost_usd,omitempty"`
	TotalCalls     int       `json:"total_calls"`
	InputTokens    int64     `json:"total_input_tokens"`
	OutputTokens   int64     `json:"total_output_tokens"`
}

// RunRecord is a stored run with its decoded result.
type RunRecord struct {
	RunSummary
	Value         any                     `json:"result"`
	AccessSummary navigator.AccessSummary `json:"access_summary"`
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Task   string
	Status string

	// Limit defaults to 20.
	Limit int
}

const summaryColumns = `id, task, status, error, limit_kind, model, started_at, elapsed_seconds,
	total_cost_usd, cost_budget_usd, overage_cost_usd, total_calls, input_tokens, output_tokens`

// ListRuns returns matching runs, newest first.
func (store *Store) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	var runs []RunSummary
	err := store.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+summaryColumns+` FROM runs
			WHERE (?1 = '' OR task = ?1) AND (?2 = '' OR status = ?2)
			ORDER BY started_at DESC, id LIMIT ?3`,
			&sqlitex.ExecOptions{
				Args: []any{filter.Task, filter.Status, filter.Limit},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					runs = append(runs, scanSummary(stmt))
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("audit: listing runs: %w", err)
	}
	return runs, nil
}

func scanSummary(stmt *sqlite.Stmt) RunSummary {
	// Columns follow summaryColumns.
	return RunSummary{
		ID:             stmt.ColumnText(0),
		Task:           stmt.ColumnText(1),
		Status:         stmt.ColumnText(2),
		Error:          stmt.ColumnText(3),
		Limit:          stmt.ColumnText(4),
		Model:          stmt.ColumnText(5),
		StartedAt:      time.Unix(0, stmt.ColumnInt64(6)).UTC(),
		ElapsedSeconds: stmt.ColumnFloat(7),
		TotalCostUSD:   stmt.ColumnFloat(8),
		CostBudgetUSD:  stmt.ColumnFloat(9),
		OverageCostUSD: stmt.ColumnFloat(10),
		TotalCalls:     stmt.ColumnInt(11),
		InputTokens:    stmt.ColumnInt64(12),
		OutputTokens:   stmt.ColumnInt64(13),
	}
}

// Run loads one run by full ID or unique prefix.
func (store *Store) Run(ctx context.Context, idOrPrefix string) (*RunRecord, error) {
	var records []*RunRecord
	err := store.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+summaryColumns+`, result, access FROM runs
			WHERE id = ?1 OR id LIKE ?1 || '%' ESCAPE '\'
			ORDER BY id = ?1 DESC LIMIT 2`,
			&sqlitex.ExecOptions{
				Args: []any{escapeLike(idOrPrefix)},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					record := &RunRecord{RunSummary: scanSummary(stmt)}
					if err := codec.DecodeBlob(columnBlob(stmt, 14), &record.Value); err != nil {
						return fmt.Errorf("result of run %s: %w", record.ID, err)
					}
					if err := codec.DecodeBlob(columnBlob(stmt, 15), &record.AccessSummary); err != nil {
						return fmt.Errorf("access summary of run %s: %w", record.ID, err)
					}
					records = append(records, record)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("audit: loading run %q: %w", idOrPrefix, err)
	}
	switch {
	case len(records) == 0:
		return nil, fmt.Errorf("%w: %q", ErrNotFound, idOrPrefix)
	case records[0].ID == idOrPrefix || len(records) == 1:
		return records[0], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrAmbiguous, idOrPrefix)
	}
}

// escapeLike escapes LIKE wildcards so a prefix matches literally. A
// full ID never contains them, so the equality branch is unaffected.
func escapeLike(text string) string {
	escaped := make([]rune, 0, len(text))
	for _, character := range text {
		if character == '%' || character == '_' || character == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, character)
	}
	return string(escaped)
}

// Subcalls returns the call records of a run in issue order.
func (store *Store) Subcalls(ctx context.Context, runID string) ([]gateway.SubcallRecord, error) {
	var records []gateway.SubcallRecord
	err := store.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT sequence, depth, prompt, chunk_hash, chunk_length,
			response, estimated_tokens, input_tokens, output_tokens, usage_estimated,
			cost_usd, outcome, error, started_at, duration_ns
			FROM subcalls WHERE run_id = ? ORDER BY sequence`,
			&sqlitex.ExecOptions{
				Args: []any{runID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					response, err := codec.UnpackBlob(columnBlob(stmt, 5))
					if err != nil {
						return fmt.Errorf("response %d: %w", stmt.ColumnInt(0), err)
					}
					records = append(records, gateway.SubcallRecord{
						Sequence:        stmt.ColumnInt(0),
						Depth:           stmt.ColumnInt(1),
						Prompt:          stmt.ColumnText(2),
						ChunkHash:       stmt.ColumnText(3),
						ChunkLength:     stmt.ColumnInt(4),
						Response:        string(response),
						EstimatedTokens: stmt.ColumnInt(6),
						Usage: llm.Usage{
							InputTokens:  stmt.ColumnInt64(7),
							OutputTokens: stmt.ColumnInt64(8),
						},
						UsageEstimated: stmt.ColumnInt(9) != 0,
						CostUSD:        stmt.ColumnFloat(10),
						Outcome:        gateway.Outcome(stmt.ColumnText(11)),
						Error:          stmt.ColumnText(12),
						StartedAt:      time.Unix(0, stmt.ColumnInt64(13)).UTC(),
						Duration:       time.Duration(stmt.ColumnInt64(14)),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("audit: loading subcalls of run %s: %w", runID, err)
	}
	return records, nil
}

// Delete removes runs started before cutoff, with their subcalls, and
// returns how many were removed.
func (store *Store) Delete(ctx context.Context, cutoff time.Time) (int, error) {
	var removed int
	err := store.pool.With(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, "DELETE FROM runs WHERE started_at < ?",
			&sqlitex.ExecOptions{Args: []any{cutoff.UnixNano()}}); err != nil {
			return err
		}
		removed = conn.Changes()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("audit: deleting runs: %w", err)
	}
	return removed, nil
}

func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	blob := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, blob)
	return blob
}
