// Package store persists committed dashboard specifications in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/dashspec-cli/internal/dashboard"
)

var (
	// ErrNotFound is returned when no dashboard has the requested ID.
	ErrNotFound = errors.New("dashboard not found")
	// ErrInvalidSpecification is returned by Save for a specification that
	// does not validate cleanly against its columns.
	ErrInvalidSpecification = errors.New("specification has validation errors")
)

// Dashboard is one committed specification plus the column metadata it was
// validated against.
type Dashboard struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	DatasetName string                    `json:"dataset_name,omitempty"`
	Strategy    dashboard.Strategy        `json:"strategy,omitempty"`
	Columns     []dashboard.ColumnProfile `json:"columns"`
	Spec        *dashboard.Specification  `json:"specification"`
	Warnings    []string                  `json:"warnings,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// FromResult builds a Dashboard from a compile result.
func FromResult(name string, req dashboard.Request, res dashboard.Result) Dashboard {
	if name == "" {
		name = req.DatasetName
	}
	return Dashboard{
		Name:        name,
		DatasetName: req.DatasetName,
		Strategy:    res.Strategy,
		Columns:     req.Columns,
		Spec:        res.Spec(),
		Warnings:    res.Validation.Warnings,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS dashboards (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	dataset_name TEXT NOT NULL DEFAULT '',
	strategy     TEXT NOT NULL DEFAULT '',
	columns      TEXT NOT NULL,
	spec         TEXT NOT NULL,
	warnings     TEXT NOT NULL DEFAULT '[]',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
)`

// Store is a SQLite-backed dashboard repository.
type Store struct {
	db        *sql.DB
	validator *dashboard.Validator
	now       func() time.Time
}

// Open opens (creating if needed) the database at path. ":memory:" is
// accepted for tests. rules drives the commit-time revalidation; nil means
// DefaultRules.
func Open(ctx context.Context, path string, rules *dashboard.Rules) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create dashboards table: %w", err)
	}
	return &Store{db: db, validator: dashboard.NewValidator(rules), now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Save revalidates d.Spec against d.Columns and upserts the repaired
// specification. A specification with validation errors is refused with
// ErrInvalidSpecification. Warnings from compilation are kept and any new
// ones from the revalidation are appended. A new ID is assigned when d.ID is
// empty.
func (s *Store) Save(ctx context.Context, d *Dashboard) error {
	if d.Spec == nil {
		return fmt.Errorf("%w: missing specification", ErrInvalidSpecification)
	}
	vr := s.validator.ValidateDataset(d.DatasetName, d.Spec, d.Columns)
	if len(vr.Errors) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSpecification, strings.Join(vr.Errors, "; "))
	}
	d.Spec = vr.Spec
	for _, w := range vr.Warnings {
		if !slices.Contains(d.Warnings, w) {
			d.Warnings = append(d.Warnings, w)
		}
	}

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if strings.TrimSpace(d.Name) == "" {
		d.Name = d.ID
	}
	now := s.now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	cols, err := json.Marshal(d.Columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}
	spec, err := json.Marshal(d.Spec)
	if err != nil {
		return fmt.Errorf("encode specification: %w", err)
	}
	warnings, err := json.Marshal(nonNil(d.Warnings))
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO dashboards (id, name, dataset_name, strategy, columns, spec, warnings, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	dataset_name = excluded.dataset_name,
	strategy = excluded.strategy,
	columns = excluded.columns,
	spec = excluded.spec,
	warnings = excluded.warnings,
	updated_at = excluded.updated_at`,
		d.ID, d.Name, d.DatasetName, string(d.Strategy), string(cols), string(spec), string(warnings),
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save dashboard %s: %w", d.ID, err)
	}
	return nil
}

const selectColumns = `SELECT id, name, dataset_name, strategy, columns, spec, warnings, created_at, updated_at FROM dashboards`

// Get loads one dashboard.
func (s *Store) Get(ctx context.Context, id string) (*Dashboard, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	d, err := scanDashboard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// List returns every dashboard, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Dashboard, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list dashboards: %w", err)
	}
	defer rows.Close()
	out := []Dashboard{}
	for rows.Next() {
		d, err := scanDashboard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Delete removes one dashboard.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dashboards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete dashboard %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete dashboard %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDashboard(sc scanner) (*Dashboard, error) {
	var (
		d                    Dashboard
		strategy             string
		cols, spec, warnings string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&d.ID, &d.Name, &d.DatasetName, &strategy, &cols, &spec, &warnings, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Strategy = dashboard.Strategy(strategy)
	if err := json.Unmarshal([]byte(cols), &d.Columns); err != nil {
		return nil, fmt.Errorf("decode columns of %s: %w", d.ID, err)
	}
	d.Spec = &dashboard.Specification{}
	if err := json.Unmarshal([]byte(spec), d.Spec); err != nil {
		return nil, fmt.Errorf("decode specification of %s: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(warnings), &d.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings of %s: %w", d.ID, err)
	}
	var err error
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// Timestamps are stored as RFC3339Nano TEXT so they round-trip exactly.
func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
