package encounter

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and persists enc. It is the only write path for an
// encounter's clinical content.
func (s *Service) Create(ctx context.Context, enc *Encounter) error {
	if strings.TrimSpace(enc.ClinicianID) == "" {
		return fmt.Errorf("clinician_id is required")
	}
	if strings.TrimSpace(enc.PatientID) == "" {
		return fmt.Errorf("patient_id is required")
	}
	if enc.VisitDate.IsZero() {
		return fmt.Errorf("visit_date is required")
	}
	return s.repo.Create(ctx, enc)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Encounter, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Encounter, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// RecordCode appends an approved code to the encounter.
func (s *Service) RecordCode(ctx context.Context, id uuid.UUID, code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("code is required")
	}
	return s.repo.AppendCode(ctx, id, code)
}
