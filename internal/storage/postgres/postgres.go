package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

// The contact column holds the canonical ContactInfo document.
const schema = `
CREATE TABLE IF NOT EXISTS contact_records (
	id TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	url TEXT NOT NULL,
	state TEXT NOT NULL,
	contact JSONB NOT NULL,
	run_id TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS contact_records_domain ON contact_records (domain);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	_, err = pool.Exec(ctx, schema)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

// Save locks the existing row, merges and writes back in one transaction so
// concurrent workers saving the same id do not lose each other's contacts.
func (b *postgresBackend) Save(ctx context.Context, rec *storage.Record) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stored, err := get(ctx, tx, rec.ID, " FOR UPDATE")
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	out := storage.Upsert(stored, rec)

	doc, err := json.Marshal(out.Contact)
	if err != nil {
		return fmt.Errorf("encode contact: %w", err)
	}

	query := `
	INSERT INTO contact_records (id, domain, url, state, contact, run_id, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		domain = EXCLUDED.domain,
		url = EXCLUDED.url,
		state = EXCLUDED.state,
		contact = EXCLUDED.contact,
		run_id = EXCLUDED.run_id,
		updated_at = EXCLUDED.updated_at
	`
	_, err = tx.Exec(ctx, query,
		out.ID,
		out.Domain,
		out.URL,
		out.State,
		doc,
		out.RunID,
		out.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", rec.ID, err)
	}

	return tx.Commit(ctx)
}

func (b *postgresBackend) Get(ctx context.Context, id string) (*storage.Record, error) {
	return get(ctx, b.pool, id, "")
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const columns = `id, domain, url, state, contact, run_id, updated_at`

func get(ctx context.Context, q querier, id, suffix string) (*storage.Record, error) {
	rec, err := scan(q.QueryRow(ctx, `SELECT `+columns+` FROM contact_records WHERE id = $1`+suffix, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return rec, nil
}

func scan(row pgx.Row) (*storage.Record, error) {
	var r storage.Record
	var doc []byte
	if err := row.Scan(&r.ID, &r.Domain, &r.URL, &r.State, &doc, &r.RunID, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Contact = &contact.ContactInfo{}
	if err := json.Unmarshal(doc, r.Contact); err != nil {
		return nil, fmt.Errorf("decode contact %s: %w", r.ID, err)
	}
	return &r, nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	query := `SELECT ` + columns + ` FROM contact_records WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Domain != "" {
		query += fmt.Sprintf(` AND domain = $%d`, paramCount)
		args = append(args, filter.Domain)
		paramCount++
	}
	if filter.State != "" {
		query += fmt.Sprintf(` AND state = $%d`, paramCount)
		args = append(args, filter.State)
		paramCount++
	}
	if filter.HasContact != nil {
		cond := `(jsonb_array_length(contact->'emails') + jsonb_array_length(contact->'socialProfiles') +
			jsonb_array_length(contact->'contactForms') + jsonb_array_length(contact->'phoneNumbers')) > 0`
		if !*filter.HasContact {
			cond = `NOT ` + cond
		}
		query += ` AND ` + cond
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND updated_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY updated_at DESC, id`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
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

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
