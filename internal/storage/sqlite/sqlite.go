package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS contact_records (
	id TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	url TEXT NOT NULL,
	state TEXT NOT NULL,
	has_contact BOOLEAN NOT NULL,
	contact TEXT NOT NULL,
	run_id TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS contact_records_domain ON contact_records (domain);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the read-merge-write in Save relies on it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, rec *storage.Record) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored, err := get(ctx, tx, rec.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	out := storage.Upsert(stored, rec)

	doc, err := json.Marshal(out.Contact)
	if err != nil {
		return fmt.Errorf("encode contact: %w", err)
	}

	query := `
	INSERT INTO contact_records (id, domain, url, state, has_contact, contact, run_id, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		domain = excluded.domain,
		url = excluded.url,
		state = excluded.state,
		has_contact = excluded.has_contact,
		contact = excluded.contact,
		run_id = excluded.run_id,
		updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(ctx, query,
		out.ID,
		out.Domain,
		out.URL,
		out.State,
		out.Contact.HasContact(),
		string(doc),
		out.RunID,
		out.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Get(ctx context.Context, id string) (*storage.Record, error) {
	return get(ctx, b.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const columns = `id, domain, url, state, contact, run_id, updated_at`

func get(ctx context.Context, q querier, id string) (*storage.Record, error) {
	row := q.QueryRowContext(ctx, `SELECT `+columns+` FROM contact_records WHERE id = ?`, id)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*storage.Record, error) {
	var r storage.Record
	var doc string
	if err := s.Scan(&r.ID, &r.Domain, &r.URL, &r.State, &doc, &r.RunID, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Contact = &contact.ContactInfo{}
	if err := json.Unmarshal([]byte(doc), r.Contact); err != nil {
		return nil, fmt.Errorf("decode contact %s: %w", r.ID, err)
	}
	return &r, nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	query := `SELECT ` + columns + ` FROM contact_records WHERE 1=1`
	args := []any{}

	if filter.Domain != "" {
		query += ` AND domain = ?`
		args = append(args, filter.Domain)
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	if filter.HasContact != nil {
		query += ` AND has_contact = ?`
		args = append(args, *filter.HasContact)
	}
	if filter.Since != nil {
		query += ` AND updated_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY updated_at DESC, id`

	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var results []*storage.Record
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
