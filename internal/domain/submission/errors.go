package submission

import (
	"errors"
	"fmt"
)

// Kind classifies failures in the submission workflow.
type Kind string

const (
	KindEncounterPersistFailed   Kind = "encounter_persist_failed"
	KindPredictionUnavailable    Kind = "prediction_unavailable"
	KindCatalogCodeUnmatched     Kind = "catalog_code_unmatched"
	KindReviewTaskPersistPartial Kind = "review_task_persist_partial"
	KindCatalogEmpty             Kind = "catalog_empty"
)

// ErrInvalidDraft is returned before anything is written.
var ErrInvalidDraft = errors.New("invalid encounter draft")

// Error is a classified submission failure. Unwrap returns the original
// cause unchanged.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, or "" if none.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
