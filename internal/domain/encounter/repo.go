package encounter

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("encounter not found")

type Repository interface {
	Create(ctx context.Context, enc *Encounter) error
	GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error)
	List(ctx context.Context, limit, offset int) ([]*Encounter, int, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Encounter, int, error)
	// AppendCode adds code to the encounter's assigned codes unless present.
	AppendCode(ctx context.Context, id uuid.UUID, code string) error
}
