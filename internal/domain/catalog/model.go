package catalog

// DefaultSystemURI identifies ICD-10-CM, the vocabulary the catalog is seeded with.
const DefaultSystemURI = "http://hl7.org/fhir/sid/icd-10-cm"

// Entry is one code in the controlled diagnosis vocabulary.
type Entry struct {
	Code        string `db:"code" json:"code"`
	Description string `db:"description" json:"description"`
	Category    string `db:"category" json:"category,omitempty"`
	Chapter     string `db:"chapter" json:"chapter,omitempty"`
	SystemURI   string `db:"system_uri" json:"system"`
}
