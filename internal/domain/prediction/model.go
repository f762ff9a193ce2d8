package prediction

// Source tags where a Result came from.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Prediction is one candidate diagnosis code. Confidence is in [0,1].
type Prediction struct {
	Code        string  `json:"code"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Result is an ordered prediction list, highest confidence first.
type Result struct {
	Predictions []Prediction `json:"predictions"`
	Source      Source       `json:"source"`
}

type Vitals struct {
	Temperature      float64 `json:"temperature"`
	PulseRate        float64 `json:"pulse_rate"`
	RespiratoryRate  float64 `json:"respiratory_rate"`
	BloodPressure    string  `json:"blood_pressure"`
	OxygenSaturation float64 `json:"oxygen_saturation"`
}

// Features is the structured payload sent to the inference service.
type Features struct {
	Diagnosis   string   `json:"diagnosis"`
	Symptoms    []string `json:"symptoms"`
	Medications []string `json:"medications"`
	Notes       string   `json:"notes"`
	Age         float64  `json:"patient_age"`
	Gender      string   `json:"patient_gender"`
	Vitals      Vitals   `json:"vitals"`
	TopK        int      `json:"top_k"`
}
