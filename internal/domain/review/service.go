package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CodeRecorder receives the code of every approved task.
type CodeRecorder interface {
	RecordCode(ctx context.Context, encounterID uuid.UUID, code string) error
}

// Observer is told the outcome of each lifecycle operation.
type Observer interface {
	ReviewTransition(action, result string)
}

type Service struct {
	repo     Repository
	recorder CodeRecorder
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithCodeRecorder(r CodeRecorder) Option { return func(s *Service) { s.recorder = r } }
func WithObserver(o Observer) Option         { return func(s *Service) { s.observer = o } }
func WithClock(now func() time.Time) Option  { return func(s *Service) { s.now = now } }

func NewService(repo Repository, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, logger: logger, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create stores a new task. New tasks always start pending.
func (s *Service) Create(ctx context.Context, t *ReviewTask) error {
	t.SecondaryDiagnoses = compact(t.SecondaryDiagnoses)
	t.Procedures = compact(t.Procedures)
	if err := t.validate(); err != nil {
		return err
	}
	t.Status = StatusPending
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	return s.repo.Create(ctx, t)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ReviewTask, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*ReviewTask, int, error) {
	if !validStatuses[status] {
		return nil, 0, invalidf("invalid status: %s", status)
	}
	return s.repo.ListByStatus(ctx, status, limit, offset)
}

func (s *Service) ListByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*ReviewTask, error) {
	return s.repo.ListByEncounter(ctx, encounterID)
}

// Edit applies e to a pending task and returns the updated copy. Either every
// supplied field is stored or none is; a failed edit leaves previously
// returned tasks untouched.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, e Edit) (*ReviewTask, error) {
	t, err := s.edit(ctx, id, e)
	s.observe("edit", err)
	return t, err
}

// maxEditAttempts bounds how often an edit is re-applied to a task that
// another coder changed in between.
const maxEditAttempts = 3

func (s *Service) edit(ctx context.Context, id uuid.UUID, e Edit) (*ReviewTask, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		cur, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur.Status != StatusPending {
			return nil, fmt.Errorf("edit %s task: %w", cur.Status, ErrInvalidStateTransition)
		}

		next := cur.Clone()
		e.apply(next)
		err = s.repo.UpdatePending(ctx, next)
		switch {
		case err == nil:
			return next, nil
		case errors.Is(err, ErrStaleTask) && attempt < maxEditAttempts:
			continue
		case errors.Is(err, ErrInvalidStateTransition), errors.Is(err, ErrStaleTask):
			return nil, fmt.Errorf("edit task: %w", err)
		default:
			return nil, err
		}
	}
}

// Approve finalizes a pending task. Approving an approved task is a no-op.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, coderID string) (*ReviewTask, error) {
	t, err := s.transition(ctx, id, StatusApproved, coderID)
	s.observe("approve", err)
	if err != nil || s.recorder == nil {
		return t, err
	}
	// the coder may have corrected the principal diagnosis during review
	if rerr := s.recorder.RecordCode(ctx, t.EncounterID, t.PrincipalDiagnosis); rerr != nil {
		s.logger.Warn().Err(rerr).
			Str("task_id", t.ID.String()).
			Str("encounter_id", t.EncounterID.String()).
			Str("code", t.PrincipalDiagnosis).
			Msg("failed to record approved code on encounter")
	}
	return t, nil
}

// Reject finalizes a pending task. Rejecting a rejected task is a no-op.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, coderID string) (*ReviewTask, error) {
	t, err := s.transition(ctx, id, StatusRejected, coderID)
	s.observe("reject", err)
	return t, err
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, coderID string) (*ReviewTask, error) {
	t, err := s.repo.Transition(ctx, id, to, coderID, s.now())
	if err == nil {
		s.logger.Info().
			Str("task_id", id.String()).
			Str("status", string(to)).
			Str("coder_id", coderID).
			Msg("review task decided")
		return t, nil
	}
	if !errors.Is(err, ErrInvalidStateTransition) {
		return nil, err
	}

	// The task left pending before us; repeating the same decision succeeds.
	cur, gerr := s.repo.GetByID(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	if cur.Status == to {
		return cur, nil
	}
	return nil, fmt.Errorf("%s task is %s: %w", to, cur.Status, ErrInvalidStateTransition)
}

func (s *Service) observe(action string, err error) {
	if s.observer == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, ErrInvalidStateTransition), errors.Is(err, ErrStaleTask):
		result = "conflict"
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	s.observer.ReviewTransition(action, result)
}
