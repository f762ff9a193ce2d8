package prediction

import "strings"

type rule struct {
	keywords    []string
	predictions []Prediction
}

// rules is checked in order; the first rule with a matching keyword wins.
var rules = []rule{
	{
		keywords: []string{"hypertension", "high blood pressure"},
		predictions: []Prediction{
			{Code: "I10", Description: "Essential (primary) hypertension", Confidence: 0.95},
			{Code: "I11.9", Description: "Hypertensive heart disease without heart failure", Confidence: 0.62},
		},
	},
	{
		keywords: []string{"diabetes", "hyperglycemia"},
		predictions: []Prediction{
			{Code: "E11.9", Description: "Type 2 diabetes mellitus without complications", Confidence: 0.92},
			{Code: "E11.65", Description: "Type 2 diabetes mellitus with hyperglycemia", Confidence: 0.71},
			{Code: "E10.9", Description: "Type 1 diabetes mellitus without complications", Confidence: 0.40},
		},
	},
	{
		keywords: []string{"migraine"},
		predictions: []Prediction{
			{Code: "G43.909", Description: "Migraine, unspecified, not intractable, without status migrainosus", Confidence: 0.90},
			{Code: "G43.009", Description: "Migraine without aura, not intractable, without status migrainosus", Confidence: 0.64},
		},
	},
	{
		keywords: []string{"pneumonia"},
		predictions: []Prediction{
			{Code: "J18.9", Description: "Pneumonia, unspecified organism", Confidence: 0.91},
			{Code: "J06.9", Description: "Acute upper respiratory infection, unspecified", Confidence: 0.35},
		},
	},
	{
		keywords: []string{"asthma", "wheez"},
		predictions: []Prediction{
			{Code: "J45.909", Description: "Unspecified asthma, uncomplicated", Confidence: 0.89},
			{Code: "J45.901", Description: "Unspecified asthma with (acute) exacerbation", Confidence: 0.58},
		},
	},
	{
		keywords: []string{"copd", "chronic obstructive"},
		predictions: []Prediction{
			{Code: "J44.9", Description: "Chronic obstructive pulmonary disease, unspecified", Confidence: 0.88},
		},
	},
	{
		keywords: []string{"myocardial infarction", "heart attack"},
		predictions: []Prediction{
			{Code: "I21.9", Description: "Acute myocardial infarction, unspecified", Confidence: 0.87},
			{Code: "R07.9", Description: "Chest pain, unspecified", Confidence: 0.45},
		},
	},
	{
		keywords: []string{"appendicitis"},
		predictions: []Prediction{
			{Code: "K35.80", Description: "Unspecified acute appendicitis", Confidence: 0.86},
		},
	},
	{
		keywords: []string{"urinary tract infection"},
		predictions: []Prediction{
			{Code: "N39.0", Description: "Urinary tract infection, site not specified", Confidence: 0.85},
		},
	},
	{
		keywords: []string{"gastroenteritis", "diarrhea", "diarrhoea"},
		predictions: []Prediction{
			{Code: "A09", Description: "Infectious gastroenteritis and colitis, unspecified", Confidence: 0.80},
		},
	},
	{
		keywords: []string{"chest pain"},
		predictions: []Prediction{
			{Code: "R07.9", Description: "Chest pain, unspecified", Confidence: 0.75},
		},
	},
	{
		keywords: []string{"fever", "pyrexia"},
		predictions: []Prediction{
			{Code: "R50.9", Description: "Fever, unspecified", Confidence: 0.70},
		},
	},
	{
		keywords: []string{"headache"},
		predictions: []Prediction{
			{Code: "R51.9", Description: "Headache, unspecified", Confidence: 0.68},
		},
	},
}

// Generic is returned when no keyword matches.
var Generic = Prediction{Code: "R69", Description: "Illness, unspecified", Confidence: 0.50}

// FallbackEngine is a deterministic keyword predictor. It does no I/O and is
// safe for concurrent use.
type FallbackEngine struct{}

func NewFallbackEngine() *FallbackEngine {
	return &FallbackEngine{}
}

// Predict always returns a non-empty Result with SourceFallback.
func (f *FallbackEngine) Predict(diagnosis string) Result {
	text := strings.ToLower(diagnosis)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				out := make([]Prediction, len(r.predictions))
				copy(out, r.predictions)
				return Result{Predictions: out, Source: SourceFallback}
			}
		}
	}
	return Result{Predictions: []Prediction{Generic}, Source: SourceFallback}
}
