package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/medcoding/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const taskCols = `id, seq, version, encounter_id, coder_id, code, description, confidence,
	prediction_source, status, notes, principal_diagnosis, secondary_diagnoses, procedures,
	drg, relative_weight, weighted_los, adjusted_relative_weight, length_of_stay,
	decided_by, decided_at, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, t *ReviewTask) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.SecondaryDiagnoses == nil {
		t.SecondaryDiagnoses = []string{}
	}
	if t.Procedures == nil {
		t.Procedures = []string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO review_task (
			id, encounter_id, coder_id, code, description, confidence,
			prediction_source, status, notes, principal_diagnosis,
			secondary_diagnoses, procedures, drg, relative_weight, weighted_los,
			adjusted_relative_weight, length_of_stay, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$18)
		RETURNING seq, version, updated_at`,
		t.ID, t.EncounterID, t.CoderID, t.Code, t.Description, t.Confidence,
		t.PredictionSource, string(t.Status), t.Notes, t.PrincipalDiagnosis,
		t.SecondaryDiagnoses, t.Procedures, t.DRG, t.RelativeWeight, t.WeightedLOS,
		t.AdjustedRelativeWeight, t.LengthOfStay, t.CreatedAt,
	).Scan(&t.Seq, &t.Version, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert review task: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ReviewTask, error) {
	t, err := scanTask(r.conn(ctx).QueryRow(ctx, `SELECT `+taskCols+` FROM review_task WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *repoPG) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*ReviewTask, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM review_task WHERE status = $1`, string(status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+taskCols+` FROM review_task
		WHERE status = $1 ORDER BY created_at ASC, seq ASC LIMIT $2 OFFSET $3`,
		string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) ListByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*ReviewTask, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+taskCols+` FROM review_task
		WHERE encounter_id = $1 ORDER BY created_at ASC, seq ASC`, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *repoPG) UpdatePending(ctx context.Context, t *ReviewTask) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE review_task SET
			notes=$2, principal_diagnosis=$3, secondary_diagnoses=$4, procedures=$5,
			drg=$6, relative_weight=$7, weighted_los=$8, adjusted_relative_weight=$9,
			length_of_stay=$10, version=version+1, updated_at=NOW()
		WHERE id = $1 AND status = 'pending' AND version = $11
		RETURNING version, updated_at`,
		t.ID, t.Notes, t.PrincipalDiagnosis, t.SecondaryDiagnoses, t.Procedures,
		t.DRG, t.RelativeWeight, t.WeightedLOS, t.AdjustedRelativeWeight, t.LengthOfStay,
		t.Version,
	).Scan(&t.Version, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.missOrConflict(ctx, t.ID)
	}
	if err != nil {
		return fmt.Errorf("update review task: %w", err)
	}
	return nil
}

func (r *repoPG) Transition(ctx context.Context, id uuid.UUID, to Status, decidedBy string, at time.Time) (*ReviewTask, error) {
	t, err := scanTask(r.conn(ctx).QueryRow(ctx, `
		UPDATE review_task SET status=$2, decided_by=$3, decided_at=$4, updated_at=$4,
			version=version+1
		WHERE id = $1 AND status = 'pending'
		RETURNING `+taskCols, id, string(to), decidedBy, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missOrConflict(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("transition review task: %w", err)
	}
	return t, nil
}

// missOrConflict explains why a guarded update touched no row.
func (r *repoPG) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var status string
	err := r.conn(ctx).QueryRow(ctx, `SELECT status FROM review_task WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if Status(status) != StatusPending {
		return ErrInvalidStateTransition
	}
	return ErrStaleTask
}

func collect(rows pgx.Rows) ([]*ReviewTask, error) {
	var items []*ReviewTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func scanTask(row pgx.Row) (*ReviewTask, error) {
	var t ReviewTask
	var status string
	err := row.Scan(&t.ID, &t.Seq, &t.Version, &t.EncounterID, &t.CoderID, &t.Code, &t.Description, &t.Confidence,
		&t.PredictionSource, &status, &t.Notes, &t.PrincipalDiagnosis, &t.SecondaryDiagnoses, &t.Procedures,
		&t.DRG, &t.RelativeWeight, &t.WeightedLOS, &t.AdjustedRelativeWeight, &t.LengthOfStay,
		&t.DecidedBy, &t.DecidedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	return &t, nil
}
