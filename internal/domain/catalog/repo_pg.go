package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/medcoding/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const entryCols = `code, description, category, chapter, system_uri`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	if err := row.Scan(&e.Code, &e.Description, &e.Category, &e.Chapter, &e.SystemURI); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repoPG) List(ctx context.Context) ([]*Entry, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+entryCols+` FROM catalog_entry ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("catalog list: %w", err)
	}
	defer rows.Close()
	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Entry, error) {
	e, err := scanEntry(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+entryCols+` FROM catalog_entry WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog get: %w", err)
	}
	return e, nil
}

func (r *repoPG) Search(ctx context.Context, query string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + query + "%"
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+entryCols+` FROM catalog_entry
		 WHERE code ILIKE $1 OR description ILIKE $1 OR category ILIKE $1
		 ORDER BY code LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	defer rows.Close()
	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repoPG) Upsert(ctx context.Context, e *Entry) error {
	if e.SystemURI == "" {
		e.SystemURI = DefaultSystemURI
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO catalog_entry (code, description, category, chapter, system_uri)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			chapter = EXCLUDED.chapter,
			system_uri = EXCLUDED.system_uri`,
		e.Code, e.Description, e.Category, e.Chapter, e.SystemURI)
	if err != nil {
		return fmt.Errorf("catalog upsert %s: %w", e.Code, err)
	}
	return nil
}
