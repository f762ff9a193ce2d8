package review

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("review task not found")
	// ErrInvalidStateTransition is returned for any lifecycle operation on a
	// task that is not in the state the operation requires.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrStaleTask means the task changed after it was read.
	ErrStaleTask = errors.New("review task was modified concurrently")
)

type Repository interface {
	Create(ctx context.Context, t *ReviewTask) error
	GetByID(ctx context.Context, id uuid.UUID) (*ReviewTask, error)
	// ListByStatus orders by creation time ascending, then insertion sequence.
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*ReviewTask, int, error)
	ListByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*ReviewTask, error)
	// UpdatePending writes the editable fields of t only if the stored task is
	// still pending and still at t.Version. A terminal task yields
	// ErrInvalidStateTransition, a newer version ErrStaleTask. On success
	// t.Version holds the new version.
	UpdatePending(ctx context.Context, t *ReviewTask) error
	// Transition moves a pending task to a terminal status. A task that is no
	// longer pending yields ErrInvalidStateTransition.
	Transition(ctx context.Context, id uuid.UUID, to Status, decidedBy string, at time.Time) (*ReviewTask, error)
}
