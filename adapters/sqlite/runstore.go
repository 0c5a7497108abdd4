package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/amodule/domain/run"
	"github.com/artpar/amodule/ports"
)

// RunStore implements ports.RunStore using SQLite.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new SQLite run store.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

const runColumns = `id, method, status, source, outputs, error, started_at, duration_ns`

// Save stores a run.
func (s *RunStore) Save(ctx context.Context, r run.Run) error {
	outputs, err := json.Marshal(r.Outputs)
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}
	if r.Outputs == nil {
		outputs = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Method, string(r.Status), r.Source, string(outputs), r.Error,
		r.StartedAt.UTC().UnixNano(), int64(r.Duration))
	return err
}

// Get retrieves a run by ID.
func (s *RunStore) Get(ctx context.Context, id string) (run.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return run.Run{}, ports.ErrNotFound
	}
	return r, err
}

// Recent returns up to limit runs, newest first.
func (s *RunStore) Recent(ctx context.Context, limit int) ([]run.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Since returns runs started at or after t, oldest first.
func (s *RunStore) Since(ctx context.Context, t time.Time) ([]run.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE started_at >= ?
		ORDER BY started_at, rowid
	`, t.UTC().UnixNano())
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Prune deletes runs started before t and returns how many were removed.
func (s *RunStore) Prune(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, t.UTC().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (run.Run, error) {
	var (
		r        run.Run
		status   string
		outputs  string
		started  int64
		duration int64
	)
	if err := row.Scan(&r.ID, &r.Method, &status, &r.Source, &outputs, &r.Error, &started, &duration); err != nil {
		return run.Run{}, err
	}
	r.Status = run.Status(status)
	r.StartedAt = time.Unix(0, started).UTC()
	r.Duration = time.Duration(duration)

	out, err := decodeOutputs(outputs)
	if err != nil {
		return run.Run{}, fmt.Errorf("run %s: %w", r.ID, err)
	}
	r.Outputs = out
	return r, nil
}

func collect(rows *sql.Rows) ([]run.Run, error) {
	defer rows.Close()

	var runs []run.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// decodeOutputs restores integer outputs as int64 and others as float64.
func decodeOutputs(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode outputs: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	out := make(map[string]any, len(raw))
	for k, v := range raw {
		n, ok := v.(json.Number)
		if !ok {
			out[k] = v
			continue
		}
		if i, err := n.Int64(); err == nil {
			out[k] = i
		} else if f, err := n.Float64(); err == nil {
			out[k] = f
		} else {
			out[k] = n.String()
		}
	}
	return out, nil
}

var _ ports.RunStore = (*RunStore)(nil)
