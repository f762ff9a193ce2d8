package review

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// Unassigned marks a task no coder has been given yet.
const Unassigned = "unassigned"

// Assigner picks the coder for a new task.
type Assigner interface {
	Assign(ctx context.Context, encounterID uuid.UUID, code string) string
}

// FixedAssigner gives every task to one coder.
type FixedAssigner string

func (f FixedAssigner) Assign(context.Context, uuid.UUID, string) string {
	if f == "" {
		return Unassigned
	}
	return string(f)
}

// RoundRobinAssigner cycles through a coder pool.
type RoundRobinAssigner struct {
	coders []string
	next   atomic.Uint64
}

func NewRoundRobinAssigner(coders []string) *RoundRobinAssigner {
	return &RoundRobinAssigner{coders: append([]string(nil), coders...)}
}

func (r *RoundRobinAssigner) Assign(context.Context, uuid.UUID, string) string {
	if len(r.coders) == 0 {
		return Unassigned
	}
	n := r.next.Add(1) - 1
	return r.coders[n%uint64(len(r.coders))]
}

// NewAssigner picks a strategy for pool: none or one coder is fixed, more
// rotate.
func NewAssigner(pool []string) Assigner {
	switch len(pool) {
	case 0:
		return FixedAssigner(Unassigned)
	case 1:
		return FixedAssigner(pool[0])
	default:
		return NewRoundRobinAssigner(pool)
	}
}
