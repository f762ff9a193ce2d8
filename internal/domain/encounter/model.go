package encounter

import (
	"time"

	"github.com/google/uuid"
)

type Vitals struct {
	Temperature      float64 `db:"temperature" json:"temperature"`
	PulseRate        float64 `db:"pulse_rate" json:"pulse_rate"`
	RespiratoryRate  float64 `db:"respiratory_rate" json:"respiratory_rate"`
	BloodPressure    string  `db:"blood_pressure" json:"blood_pressure"`
	OxygenSaturation float64 `db:"oxygen_saturation" json:"oxygen_saturation"`
}

// Encounter is one clinical visit. It is written once; afterwards only
// AssignedCodes grows.
type Encounter struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PatientID      string    `db:"patient_id" json:"patient_id"`
	ClinicianID    string    `db:"clinician_id" json:"clinician_id"`
	VisitDate      time.Time `db:"visit_date" json:"visit_date"`
	ChiefComplaint string    `db:"chief_complaint" json:"chief_complaint,omitempty"`
	PresentIllness string    `db:"present_illness" json:"present_illness,omitempty"`
	PastHistory    string    `db:"past_history" json:"past_history,omitempty"`
	FamilyHistory  string    `db:"family_history" json:"family_history,omitempty"`
	Examination    string    `db:"examination" json:"examination,omitempty"`
	Diagnosis      string    `db:"diagnosis" json:"diagnosis"`
	ReasonForAdmit string    `db:"reason_for_admit" json:"reason_for_admit,omitempty"`
	TreatmentPlan  string    `db:"treatment_plan" json:"treatment_plan,omitempty"`
	Notes          string    `db:"notes" json:"notes,omitempty"`
	Symptoms       []string  `db:"symptoms" json:"symptoms"`
	Medications    []string  `db:"medications" json:"medications"`
	Vitals         Vitals    `json:"vitals"`
	Age            float64   `db:"age" json:"age"`
	Gender         string    `db:"gender" json:"gender"`
	AssignedCodes  []string  `db:"assigned_codes" json:"assigned_codes"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
