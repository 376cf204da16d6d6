package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanschultz/kanmetrics/internal/app"
	"github.com/evanschultz/kanmetrics/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName is the database/sql name registered by modernc.org/sqlite.
const driverName = "sqlite"

// Repository persists work items and their status journals.
type Repository struct {
	db *sql.DB
}

// Open opens or creates the database file at path and applies the schema.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a shared in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// The shared cache lives as long as one connection stays open.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS work_items (
			id INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			project TEXT NOT NULL DEFAULT '',
			done_ratio INTEGER NOT NULL DEFAULT 0,
			fixed_version TEXT NOT NULL DEFAULT '',
			priority INTEGER NOT NULL DEFAULT 0,
			complexity TEXT NOT NULL DEFAULT '',
			parent_id INTEGER NOT NULL DEFAULT 0,
			relations_json TEXT NOT NULL DEFAULT '[]'
		);`,
		`CREATE TABLE IF NOT EXISTS journal_entries (
			item_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			date TEXT NOT NULL,
			old_value TEXT NOT NULL,
			new_value TEXT NOT NULL,
			PRIMARY KEY(item_id, seq),
			FOREIGN KEY(item_id) REFERENCES work_items(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_parent ON work_items(parent_id);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// SaveWorkItems upserts items and replaces their journals in one transaction.
func (r *Repository) SaveWorkItems(ctx context.Context, items []*domain.WorkItem) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, item := range items {
		if item == nil {
			continue
		}
		relations, marshalErr := json.Marshal(relationsOrEmpty(item.Relations))
		if marshalErr != nil {
			return fmt.Errorf("encode relations of work item %d: %w", item.ID, marshalErr)
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO work_items(id, kind, subject, project, done_ratio, fixed_version, priority, complexity, parent_id, relations_json)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind,
				subject = excluded.subject,
				project = excluded.project,
				done_ratio = excluded.done_ratio,
				fixed_version = excluded.fixed_version,
				priority = excluded.priority,
				complexity = excluded.complexity,
				parent_id = excluded.parent_id,
				relations_json = excluded.relations_json
		`,
			item.ID,
			string(item.Kind),
			item.Subject,
			item.Project,
			item.DoneRatio,
			item.FixedVersion,
			item.Priority,
			string(item.Complexity),
			item.ParentID,
			string(relations),
		); err != nil {
			return fmt.Errorf("upsert work item %d: %w", item.ID, err)
		}

		if _, err = tx.ExecContext(ctx, `DELETE FROM journal_entries WHERE item_id = ?`, item.ID); err != nil {
			return fmt.Errorf("clear journal of work item %d: %w", item.ID, err)
		}
		for seq, entry := range item.Journal() {
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO journal_entries(item_id, seq, date, old_value, new_value)
				VALUES(?, ?, ?, ?, ?)
			`, item.ID, seq, ts(entry.Date), string(entry.OldValue), string(entry.NewValue)); err != nil {
				return fmt.Errorf("insert journal of work item %d: %w", item.ID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListWorkItems loads every item ordered by id.
func (r *Repository) ListWorkItems(ctx context.Context) ([]*domain.WorkItem, error) {
	journals, err := r.listJournals(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, subject, project, done_ratio, fixed_version, priority, complexity, parent_id, relations_json
		FROM work_items
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inputs := make([]domain.WorkItemInput, 0)
	for rows.Next() {
		in, scanErr := scanWorkItem(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		inputs = append(inputs, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*domain.WorkItem, 0, len(inputs))
	for _, in := range inputs {
		item, restoreErr := domain.Restore(in, journals[in.ID])
		if restoreErr != nil {
			return nil, restoreErr
		}
		out = append(out, item)
	}
	return out, nil
}

// GetWorkItem loads one item, returning app.ErrNotFound when it is absent.
func (r *Repository) GetWorkItem(ctx context.Context, id int) (*domain.WorkItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, kind, subject, project, done_ratio, fixed_version, priority, complexity, parent_id, relations_json
		FROM work_items
		WHERE id = ?
	`, id)
	in, err := scanWorkItem(row)
	if err != nil {
		return nil, err
	}
	journal, err := r.journalOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.Restore(in, journal)
}

func (r *Repository) listJournals(ctx context.Context) (map[int][]domain.JournalEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id, date, old_value, new_value
		FROM journal_entries
		ORDER BY item_id ASC, seq ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int][]domain.JournalEntry{}
	for rows.Next() {
		var itemID int
		entry, scanErr := scanJournalEntry(rows, &itemID)
		if scanErr != nil {
			return nil, scanErr
		}
		out[itemID] = append(out[itemID], entry)
	}
	return out, rows.Err()
}

func (r *Repository) journalOf(ctx context.Context, id int) ([]domain.JournalEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id, date, old_value, new_value
		FROM journal_entries
		WHERE item_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.JournalEntry, 0)
	for rows.Next() {
		var itemID int
		entry, scanErr := scanJournalEntry(rows, &itemID)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkItem(s scanner) (domain.WorkItemInput, error) {
	var (
		in            domain.WorkItemInput
		kind          string
		complexity    string
		relationsJSON string
	)
	if err := s.Scan(
		&in.ID,
		&kind,
		&in.Subject,
		&in.Project,
		&in.DoneRatio,
		&in.FixedVersion,
		&in.Priority,
		&complexity,
		&in.ParentID,
		&relationsJSON,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WorkItemInput{}, app.ErrNotFound
		}
		return domain.WorkItemInput{}, err
	}
	in.Kind = domain.Kind(kind)
	in.Complexity = domain.Complexity(complexity)
	if err := json.Unmarshal([]byte(relationsJSON), &in.Relations); err != nil {
		return domain.WorkItemInput{}, fmt.Errorf("decode relations of work item %d: %w", in.ID, err)
	}
	return in, nil
}

func scanJournalEntry(s scanner, itemID *int) (domain.JournalEntry, error) {
	var dateRaw, oldValue, newValue string
	if err := s.Scan(itemID, &dateRaw, &oldValue, &newValue); err != nil {
		return domain.JournalEntry{}, err
	}
	date, err := parseTS(dateRaw)
	if err != nil {
		return domain.JournalEntry{}, fmt.Errorf("journal of work item %d: %w", *itemID, err)
	}
	return domain.JournalEntry{
		Date:     date,
		OldValue: domain.Status(oldValue),
		NewValue: domain.Status(newValue),
	}, nil
}

func relationsOrEmpty(in []int) []int {
	if in == nil {
		return []int{}
	}
	return in
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t.UTC(), nil
}
