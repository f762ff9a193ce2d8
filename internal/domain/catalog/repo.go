package catalog

import "context"

// Repository provides access to the stored catalog.
type Repository interface {
	List(ctx context.Context) ([]*Entry, error)
	GetByCode(ctx context.Context, code string) (*Entry, error)
	Search(ctx context.Context, query string, limit int) ([]*Entry, error)
	Upsert(ctx context.Context, e *Entry) error
}
