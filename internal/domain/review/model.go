package review

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var validStatuses = map[Status]bool{
	StatusPending:  true,
	StatusApproved: true,
	StatusRejected: true,
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !validStatuses[st] {
		return "", fmt.Errorf("invalid status: %s", s)
	}
	return st, nil
}

// ErrValidation marks a task or edit rejected before reaching storage.
var ErrValidation = errors.New("validation failed")

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

const (
	MaxSecondaryDiagnoses = 12
	MaxProcedures         = 20
)

// ReviewTask pairs an encounter with one candidate code awaiting a coder's
// decision.
type ReviewTask struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Seq              int64     `db:"seq" json:"-"`
	// Version increases with every stored change; edits are applied against
	// the version they were read at.
	Version int64 `db:"version" json:"version"`
	EncounterID      uuid.UUID `db:"encounter_id" json:"encounter_id"`
	CoderID          string    `db:"coder_id" json:"coder_id"`
	Code             string    `db:"code" json:"code"`
	Description      string    `db:"description" json:"description"`
	Confidence       float64   `db:"confidence" json:"confidence"`
	PredictionSource string    `db:"prediction_source" json:"prediction_source"`
	Status           Status    `db:"status" json:"status"`
	Notes            string    `db:"notes" json:"notes"`

	PrincipalDiagnosis string   `db:"principal_diagnosis" json:"principal_diagnosis"`
	SecondaryDiagnoses []string `db:"secondary_diagnoses" json:"secondary_diagnoses"`
	Procedures         []string `db:"procedures" json:"procedures"`

	DRG                    *string  `db:"drg" json:"drg,omitempty"`
	RelativeWeight         *float64 `db:"relative_weight" json:"relative_weight,omitempty"`
	WeightedLOS            *float64 `db:"weighted_los" json:"weighted_los,omitempty"`
	AdjustedRelativeWeight *float64 `db:"adjusted_relative_weight" json:"adjusted_relative_weight,omitempty"`
	LengthOfStay           *int     `db:"length_of_stay" json:"length_of_stay,omitempty"`

	DecidedBy *string    `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt *time.Time `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy of t.
func (t *ReviewTask) Clone() *ReviewTask {
	cp := *t
	cp.SecondaryDiagnoses = slices.Clone(t.SecondaryDiagnoses)
	cp.Procedures = slices.Clone(t.Procedures)
	cp.DRG = clonePtr(t.DRG)
	cp.RelativeWeight = clonePtr(t.RelativeWeight)
	cp.WeightedLOS = clonePtr(t.WeightedLOS)
	cp.AdjustedRelativeWeight = clonePtr(t.AdjustedRelativeWeight)
	cp.LengthOfStay = clonePtr(t.LengthOfStay)
	cp.DecidedBy = clonePtr(t.DecidedBy)
	cp.DecidedAt = clonePtr(t.DecidedAt)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (t *ReviewTask) validate() error {
	if t.EncounterID == uuid.Nil {
		return invalidf("encounter_id is required")
	}
	if strings.TrimSpace(t.Code) == "" {
		return invalidf("code is required")
	}
	if strings.TrimSpace(t.PrincipalDiagnosis) == "" {
		return invalidf("principal_diagnosis is required")
	}
	if len(t.SecondaryDiagnoses) > MaxSecondaryDiagnoses {
		return invalidf("at most %d secondary diagnoses allowed", MaxSecondaryDiagnoses)
	}
	if len(t.Procedures) > MaxProcedures {
		return invalidf("at most %d procedures allowed", MaxProcedures)
	}
	return nil
}

// Edit is a partial update of a pending task. Nil fields are left as they are.
type Edit struct {
	PrincipalDiagnosis     *string   `json:"principal_diagnosis,omitempty"`
	SecondaryDiagnoses     *[]string `json:"secondary_diagnoses,omitempty"`
	Procedures             *[]string `json:"procedures,omitempty"`
	DRG                    *string   `json:"drg,omitempty"`
	RelativeWeight         *float64  `json:"relative_weight,omitempty"`
	WeightedLOS            *float64  `json:"weighted_los,omitempty"`
	AdjustedRelativeWeight *float64  `json:"adjusted_relative_weight,omitempty"`
	LengthOfStay           *int      `json:"length_of_stay,omitempty"`
	Notes                  *string   `json:"notes,omitempty"`
}

// Validate checks the edit on its own, before any task is touched.
func (e Edit) Validate() error {
	if e.PrincipalDiagnosis != nil && strings.TrimSpace(*e.PrincipalDiagnosis) == "" {
		return invalidf("principal_diagnosis cannot be cleared")
	}
	if e.SecondaryDiagnoses != nil && len(compact(*e.SecondaryDiagnoses)) > MaxSecondaryDiagnoses {
		return invalidf("at most %d secondary diagnoses allowed", MaxSecondaryDiagnoses)
	}
	if e.Procedures != nil && len(compact(*e.Procedures)) > MaxProcedures {
		return invalidf("at most %d procedures allowed", MaxProcedures)
	}
	for name, v := range map[string]*float64{
		"relative_weight":          e.RelativeWeight,
		"weighted_los":             e.WeightedLOS,
		"adjusted_relative_weight": e.AdjustedRelativeWeight,
	} {
		if v != nil && *v < 0 {
			return invalidf("%s must not be negative", name)
		}
	}
	if e.LengthOfStay != nil && *e.LengthOfStay < 0 {
		return invalidf("length_of_stay must not be negative")
	}
	return nil
}

func (e Edit) apply(t *ReviewTask) {
	if e.PrincipalDiagnosis != nil {
		t.PrincipalDiagnosis = strings.TrimSpace(*e.PrincipalDiagnosis)
	}
	if e.SecondaryDiagnoses != nil {
		t.SecondaryDiagnoses = compact(*e.SecondaryDiagnoses)
	}
	if e.Procedures != nil {
		t.Procedures = compact(*e.Procedures)
	}
	if e.DRG != nil {
		t.DRG = clonePtr(e.DRG)
	}
	if e.RelativeWeight != nil {
		t.RelativeWeight = clonePtr(e.RelativeWeight)
	}
	if e.WeightedLOS != nil {
		t.WeightedLOS = clonePtr(e.WeightedLOS)
	}
	if e.AdjustedRelativeWeight != nil {
		t.AdjustedRelativeWeight = clonePtr(e.AdjustedRelativeWeight)
	}
	if e.LengthOfStay != nil {
		t.LengthOfStay = clonePtr(e.LengthOfStay)
	}
	if e.Notes != nil {
		t.Notes = *e.Notes
	}
}

// compact trims slot values and drops blanks.
func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
