// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"database/sql"
	stderrors "errors"

	_ "modernc.org/sqlite"

	"github.com/jllopis/opsagent/pkg/config"
	"github.com/jllopis/opsagent/pkg/errors"
)

// SQLiteStore persists audit events in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed audit store and ensures the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, stderrors.New("db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Record stores a single audit event.
func (s *SQLiteStore) Record(ctx context.Context, event Event) error {
	detail, err := encodeDetail(event.Detail)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			run_id, step, kind, instruction, tool, input, status, code, detail_json, at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.RunID,
		event.Step,
		string(event.Kind),
		event.Instruction,
		event.Tool,
		event.Input,
		event.Status,
		event.Code,
		string(detail),
		normalizeTime(event.At),
	)
	return err
}

// List returns audit events matching the filter, oldest first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT run_id, step, kind, instruction, tool, input, status, code, detail_json, at
		FROM audit_events
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.RunID != "" {
		addFilter("run_id = ?", filter.RunID)
	}
	if filter.Kind != "" {
		addFilter("kind = ?", string(filter.Kind))
	}
	if filter.Tool != "" {
		addFilter("tool = ?", filter.Tool)
	}
	if filter.Status != "" {
		addFilter("status = ?", filter.Status)
	}
	query += where + " ORDER BY at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event      Event
			kind       string
			detailJSON sql.NullString
			at         sql.NullTime
		)
		if err := rows.Scan(
			&event.RunID,
			&event.Step,
			&kind,
			&event.Instruction,
			&event.Tool,
			&event.Input,
			&event.Status,
			&event.Code,
			&detailJSON,
			&at,
		); err != nil {
			return nil, err
		}
		event.Kind = Kind(kind)
		if detailJSON.Valid && detailJSON.String != "" {
			if detail, err := decodeDetail([]byte(detailJSON.String)); err == nil {
				event.Detail = detail
			}
		}
		if at.Valid {
			event.At = at.Time
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			kind TEXT NOT NULL,
			instruction TEXT NOT NULL DEFAULT '',
			tool TEXT NOT NULL DEFAULT '',
			input TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			code TEXT NOT NULL DEFAULT '',
			detail_json TEXT,
			at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_audit_run ON audit_events(run_id);
		CREATE INDEX IF NOT EXISTS idx_audit_kind ON audit_events(kind);
		CREATE INDEX IF NOT EXISTS idx_audit_tool ON audit_events(tool);
	`)
	return err
}

// Open builds the store selected by the audit config section. The returned
// close function is never nil.
func Open(cfg config.AuditConfig) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), noop, nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.Path)
		if err != nil {
			return nil, noop, errors.New(errors.CodeInvalidInput, "open audit database", err).
				WithContext("path", cfg.Path)
		}
		store, err := NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, noop, errors.New(errors.CodeInternal, "prepare audit schema", err)
		}
		return store, store.Close, nil
	}
	return nil, noop, errors.New(errors.CodeInvalidInput, "unknown audit backend", nil).
		WithContext("backend", cfg.Backend)
}
