package submission

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medcoding/internal/domain/prediction"
)

// Numeric holds a form value that should be a number. It accepts JSON numbers
// and strings and never fails to decode.
type Numeric string

func (n *Numeric) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*n = Numeric(s)
		return nil
	}
	*n = Numeric(b)
	return nil
}

// Float parses n; invalid, missing or non-finite values read as 0.
func (n Numeric) Float() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Draft is an encounter as submitted by a clinician, before validation.
type Draft struct {
	PatientID   string `json:"patient_id"`
	ClinicianID string `json:"-"`
	VisitDate   string `json:"visit_date"`

	ChiefComplaint string   `json:"chief_complaint"`
	PresentIllness string   `json:"present_illness"`
	PastHistory    string   `json:"past_history"`
	FamilyHistory  string   `json:"family_history"`
	Examination    string   `json:"examination"`
	Diagnosis      string   `json:"diagnosis"`
	ReasonForAdmit string   `json:"reason_for_admit"`
	TreatmentPlan  string   `json:"treatment_plan"`
	Notes          string   `json:"notes"`
	Symptoms       []string `json:"symptoms"`
	Medications    []string `json:"medications"`

	Temperature      Numeric `json:"temperature"`
	PulseRate        Numeric `json:"pulse_rate"`
	RespiratoryRate  Numeric `json:"respiratory_rate"`
	BloodPressure    string  `json:"blood_pressure"`
	OxygenSaturation Numeric `json:"oxygen_saturation"`
	Age              Numeric `json:"age"`
	Gender           string  `json:"gender"`
}

var visitDateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

func parseVisitDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range visitDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type Status string

const (
	StatusCompleted                Status = "completed"
	StatusReviewTaskPersistPartial Status = "review_task_persist_partial"
	StatusEncounterPersistFailed   Status = "encounter_persist_failed"
)

// Outcome reports what a submission produced.
type Outcome struct {
	Status              Status            `json:"status"`
	EncounterID         *uuid.UUID        `json:"encounter_id,omitempty"`
	ReviewTasksCreated  int               `json:"review_tasks_created"`
	ReviewTasksIntended int               `json:"review_tasks_intended"`
	ReviewTaskIDs       []uuid.UUID       `json:"review_task_ids"`
	PredictionSource    prediction.Source `json:"prediction_source,omitempty"`
	AIAssisted          bool              `json:"ai_assisted"`
	Message             string            `json:"message"`
}
