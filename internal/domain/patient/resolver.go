package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/medcoding/internal/platform/db"
)

var ErrUnknownPatient = errors.New("unknown patient")

// Resolver checks that a patient identifier refers to a registered patient.
type Resolver interface {
	Resolve(ctx context.Context, patientID string) (string, error)
}

type resolverPG struct{ pool *pgxpool.Pool }

func NewResolverPG(pool *pgxpool.Pool) Resolver { return &resolverPG{pool: pool} }

// Resolve returns the canonical id, or ErrUnknownPatient.
func (r *resolverPG) Resolve(ctx context.Context, patientID string) (string, error) {
	id := strings.TrimSpace(patientID)
	if id == "" {
		return "", ErrUnknownPatient
	}
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patient WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("resolve patient: %w", err)
	}
	if !exists {
		return "", ErrUnknownPatient
	}
	return id, nil
}

// StaticResolver accepts a fixed set of ids.
type StaticResolver map[string]bool

func (s StaticResolver) Resolve(_ context.Context, patientID string) (string, error) {
	id := strings.TrimSpace(patientID)
	if !s[id] {
		return "", ErrUnknownPatient
	}
	return id, nil
}
