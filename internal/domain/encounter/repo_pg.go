package encounter

import (
	"context"
	"errors"
	"fmt"

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

const encCols = `id, patient_id, clinician_id, visit_date,
	chief_complaint, present_illness, past_history, family_history, examination,
	diagnosis, reason_for_admit, treatment_plan, notes, symptoms, medications,
	temperature, pulse_rate, respiratory_rate, blood_pressure, oxygen_saturation,
	age, gender, assigned_codes, created_at`

func (r *repoPG) Create(ctx context.Context, enc *Encounter) error {
	if enc.ID == uuid.Nil {
		enc.ID = uuid.New()
	}
	if enc.Symptoms == nil {
		enc.Symptoms = []string{}
	}
	if enc.Medications == nil {
		enc.Medications = []string{}
	}
	if enc.AssignedCodes == nil {
		enc.AssignedCodes = []string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO encounter (
			id, patient_id, clinician_id, visit_date,
			chief_complaint, present_illness, past_history, family_history, examination,
			diagnosis, reason_for_admit, treatment_plan, notes, symptoms, medications,
			temperature, pulse_rate, respiratory_rate, blood_pressure, oxygen_saturation,
			age, gender, assigned_codes
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,
			$16,$17,$18,$19,$20,$21,$22,$23
		) RETURNING created_at`,
		enc.ID, enc.PatientID, enc.ClinicianID, enc.VisitDate,
		enc.ChiefComplaint, enc.PresentIllness, enc.PastHistory, enc.FamilyHistory, enc.Examination,
		enc.Diagnosis, enc.ReasonForAdmit, enc.TreatmentPlan, enc.Notes, enc.Symptoms, enc.Medications,
		enc.Vitals.Temperature, enc.Vitals.PulseRate, enc.Vitals.RespiratoryRate,
		enc.Vitals.BloodPressure, enc.Vitals.OxygenSaturation,
		enc.Age, enc.Gender, enc.AssignedCodes,
	).Scan(&enc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert encounter: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	enc, err := scanEnc(r.conn(ctx).QueryRow(ctx, `SELECT `+encCols+` FROM encounter WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return enc, err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Encounter, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM encounter`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+encCols+` FROM encounter ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Encounter, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM encounter WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+encCols+` FROM encounter WHERE patient_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) AppendCode(ctx context.Context, id uuid.UUID, code string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE encounter
		SET assigned_codes = CASE WHEN $2::text = ANY(assigned_codes) THEN assigned_codes
		                          ELSE array_append(assigned_codes, $2::text) END
		WHERE id = $1`, id, code)
	if err != nil {
		return fmt.Errorf("append assigned code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collect(rows pgx.Rows) ([]*Encounter, error) {
	var items []*Encounter
	for rows.Next() {
		enc, err := scanEnc(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, enc)
	}
	return items, rows.Err()
}

func scanEnc(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(&e.ID, &e.PatientID, &e.ClinicianID, &e.VisitDate,
		&e.ChiefComplaint, &e.PresentIllness, &e.PastHistory, &e.FamilyHistory, &e.Examination,
		&e.Diagnosis, &e.ReasonForAdmit, &e.TreatmentPlan, &e.Notes, &e.Symptoms, &e.Medications,
		&e.Vitals.Temperature, &e.Vitals.PulseRate, &e.Vitals.RespiratoryRate,
		&e.Vitals.BloodPressure, &e.Vitals.OxygenSaturation,
		&e.Age, &e.Gender, &e.AssignedCodes, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
