package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/medcoding/internal/domain/catalog"
	"github.com/ehr/medcoding/internal/domain/encounter"
	"github.com/ehr/medcoding/internal/domain/patient"
	"github.com/ehr/medcoding/internal/domain/prediction"
	"github.com/ehr/medcoding/internal/domain/review"
)

const manualCodingNote = "No predicted code matched the catalog; requires full manual coding"

type EncounterStore interface {
	Create(ctx context.Context, enc *encounter.Encounter) error
}

type PredictionRequester interface {
	RequestPredictions(ctx context.Context, f prediction.Features) prediction.Result
}

type TaskCreator interface {
	Create(ctx context.Context, t *review.ReviewTask) error
}

// Metrics receives per-submission counters.
type Metrics interface {
	SubmissionCompleted(status, source string)
	ReviewTasksCreated(n int)
	CatalogUnmatched(n int)
}

type Config struct {
	// FallbackCode is the catalog code used for the default task.
	FallbackCode string
	// TopK is the result-count hint sent to the inference service.
	TopK int
}

type Deps struct {
	Patients   patient.Resolver
	Encounters EncounterStore
	Predictor  PredictionRequester
	Catalog    *catalog.Catalog
	Tasks      TaskCreator
	Assigner   review.Assigner
	Metrics    Metrics
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Service runs the encounter-to-review workflow. Steps of one submission run
// in order; separate submissions share only the catalog and the stores.
type Service struct {
	deps   Deps
	cfg    Config
	tracer trace.Tracer
}

func NewService(deps Deps, cfg Config) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Assigner == nil {
		deps.Assigner = review.FixedAssigner(review.Unassigned)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Service{
		deps:   deps,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/ehr/medcoding/internal/domain/submission"),
	}
}

// Submit persists the encounter, predicts codes, reconciles them against the
// catalog and creates one pending review task per match.
//
// A failed encounter write returns an *Error of KindEncounterPersistFailed
// together with an Outcome; nothing else is attempted. Failed task writes
// are reported in the Outcome and are not an error.
func (s *Service) Submit(ctx context.Context, d Draft) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "submission.Submit")
	defer span.End()

	enc, err := s.buildEncounter(ctx, d)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Step 1: durable.
	if err := s.persistEncounter(ctx, enc); err != nil {
		s.deps.Logger.Error().Err(err).
			Str("patient_id", enc.PatientID).
			Str("clinician_id", enc.ClinicianID).
			Msg("encounter persist failed")
		span.SetStatus(codes.Error, string(KindEncounterPersistFailed))
		s.record(StatusEncounterPersistFailed, "", 0, 0)
		return &Outcome{
			Status:        StatusEncounterPersistFailed,
			ReviewTaskIDs: []uuid.UUID{},
			Message:       "The encounter could not be saved. No coding tasks were created; please resubmit.",
		}, &Error{Kind: KindEncounterPersistFailed, Err: err}
	}
	// The encounter exists now; finish the remaining writes even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)
	log := s.deps.Logger.With().Str("encounter_id", enc.ID.String()).Logger()
	span.SetAttributes(attribute.String("encounter.id", enc.ID.String()))

	// Step 2: best effort, never fails.
	res := s.predict(ctx, enc)
	span.SetAttributes(attribute.String("prediction.source", string(res.Source)))

	// Step 3.
	tasks, unmatched := s.reconcile(ctx, enc, res)
	if unmatched > 0 {
		log.Info().Int("dropped", unmatched).Str("kind", string(KindCatalogCodeUnmatched)).
			Msg("predicted codes not in catalog")
	}
	// Step 4.
	matched := len(tasks) > 0
	intended := len(tasks)
	if !matched {
		intended = 1
		if t, ok := s.defaultTask(ctx, enc, res.Source); ok {
			tasks = []*review.ReviewTask{t}
		} else {
			log.Error().Str("kind", string(KindCatalogEmpty)).
				Msg("catalog is empty; no default review task can be created")
			span.AddEvent(string(KindCatalogEmpty))
		}
	}

	// Step 5.
	out := &Outcome{
		EncounterID:         &enc.ID,
		ReviewTasksIntended: intended,
		ReviewTaskIDs:       []uuid.UUID{},
		PredictionSource:    res.Source,
	}
	s.persistTasks(ctx, log, tasks, out)

	out.AIAssisted = res.Source == prediction.SourceRemote && matched && out.ReviewTasksCreated > 0
	out.Status = StatusCompleted
	if out.ReviewTasksCreated < out.ReviewTasksIntended {
		out.Status = StatusReviewTaskPersistPartial
		span.SetStatus(codes.Error, string(KindReviewTaskPersistPartial))
	}
	out.Message = message(out, matched, len(tasks) == 0)

	log.Info().
		Str("prediction_source", string(res.Source)).
		Int("review_tasks_created", out.ReviewTasksCreated).
		Int("review_tasks_intended", out.ReviewTasksIntended).
		Str("status", string(out.Status)).
		Msg("submission processed")
	s.record(out.Status, res.Source, out.ReviewTasksCreated, unmatched)
	return out, nil
}

func (s *Service) buildEncounter(ctx context.Context, d Draft) (*encounter.Encounter, error) {
	clinicianID := strings.TrimSpace(d.ClinicianID)
	if clinicianID == "" {
		return nil, fmt.Errorf("%w: clinician id is required", ErrInvalidDraft)
	}
	if s.deps.Patients == nil {
		return nil, fmt.Errorf("%w: no patient resolver configured", ErrInvalidDraft)
	}
	patientID, err := s.deps.Patients.Resolve(ctx, d.PatientID)
	if errors.Is(err, patient.ErrUnknownPatient) {
		return nil, fmt.Errorf("%w: patient %q cannot be resolved", ErrInvalidDraft, d.PatientID)
	}
	if err != nil {
		return nil, err
	}

	visit, ok := parseVisitDate(d.VisitDate)
	if !ok {
		visit = s.deps.Now()
	}

	return &encounter.Encounter{
		ID:             uuid.New(),
		PatientID:      patientID,
		ClinicianID:    clinicianID,
		VisitDate:      visit,
		ChiefComplaint: d.ChiefComplaint,
		PresentIllness: d.PresentIllness,
		PastHistory:    d.PastHistory,
		FamilyHistory:  d.FamilyHistory,
		Examination:    d.Examination,
		Diagnosis:      d.Diagnosis,
		ReasonForAdmit: d.ReasonForAdmit,
		TreatmentPlan:  d.TreatmentPlan,
		Notes:          d.Notes,
		Symptoms:       compact(d.Symptoms),
		Medications:    compact(d.Medications),
		Vitals: encounter.Vitals{
			Temperature:      d.Temperature.Float(),
			PulseRate:        d.PulseRate.Float(),
			RespiratoryRate:  d.RespiratoryRate.Float(),
			BloodPressure:    strings.TrimSpace(d.BloodPressure),
			OxygenSaturation: d.OxygenSaturation.Float(),
		},
		Age:           d.Age.Float(),
		Gender:        d.Gender,
		AssignedCodes: []string{},
	}, nil
}

func (s *Service) persistEncounter(ctx context.Context, enc *encounter.Encounter) error {
	ctx, span := s.tracer.Start(ctx, "submission.PersistEncounter")
	defer span.End()
	if err := s.deps.Encounters.Create(ctx, enc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Service) predict(ctx context.Context, enc *encounter.Encounter) prediction.Result {
	ctx, span := s.tracer.Start(ctx, "submission.Predict")
	defer span.End()

	diagnosis := enc.Diagnosis
	if strings.TrimSpace(diagnosis) == "" {
		diagnosis = enc.ChiefComplaint
	}
	res := s.deps.Predictor.RequestPredictions(ctx, prediction.Features{
		Diagnosis:   diagnosis,
		Symptoms:    enc.Symptoms,
		Medications: enc.Medications,
		Notes:       enc.Notes,
		Age:         enc.Age,
		Gender:      enc.Gender,
		Vitals: prediction.Vitals{
			Temperature:      enc.Vitals.Temperature,
			PulseRate:        enc.Vitals.PulseRate,
			RespiratoryRate:  enc.Vitals.RespiratoryRate,
			BloodPressure:    enc.Vitals.BloodPressure,
			OxygenSaturation: enc.Vitals.OxygenSaturation,
		},
		TopK: s.cfg.TopK,
	})
	if res.Source == prediction.SourceFallback {
		span.AddEvent(string(KindPredictionUnavailable))
	}
	span.SetAttributes(
		attribute.String("prediction.source", string(res.Source)),
		attribute.Int("prediction.count", len(res.Predictions)),
	)
	return res
}

// reconcile builds tasks in prediction order for codes the catalog holds and
// counts the predictions it dropped.
func (s *Service) reconcile(ctx context.Context, enc *encounter.Encounter, res prediction.Result) ([]*review.ReviewTask, int) {
	ctx, span := s.tracer.Start(ctx, "submission.Reconcile")
	defer span.End()

	var tasks []*review.ReviewTask
	unmatched := 0
	for _, p := range res.Predictions {
		entry, ok := s.deps.Catalog.Lookup(p.Code)
		if !ok {
			unmatched++
			continue
		}
		tasks = append(tasks, s.newTask(ctx, enc, entry, p.Confidence, res.Source,
			fmt.Sprintf("Predicted by %s, confidence %.1f%%", sourceLabel(res.Source), p.Confidence*100)))
	}
	span.SetAttributes(attribute.Int("catalog.unmatched", unmatched))
	return tasks, unmatched
}

// defaultTask is created when no prediction reconciles. It reports false
// when the catalog has no entry to attach it to.
func (s *Service) defaultTask(ctx context.Context, enc *encounter.Encounter, src prediction.Source) (*review.ReviewTask, bool) {
	entry, ok := s.deps.Catalog.Designated(s.cfg.FallbackCode)
	if !ok {
		return nil, false
	}
	note := fmt.Sprintf("%s. Predicted by %s, confidence 0.0%%", manualCodingNote, sourceLabel(src))
	return s.newTask(ctx, enc, entry, 0, src, note), true
}

func (s *Service) newTask(ctx context.Context, enc *encounter.Encounter, entry catalog.Entry, confidence float64, src prediction.Source, note string) *review.ReviewTask {
	return &review.ReviewTask{
		ID:                 uuid.New(),
		EncounterID:        enc.ID,
		CoderID:            s.deps.Assigner.Assign(ctx, enc.ID, entry.Code),
		Code:               entry.Code,
		Description:        entry.Description,
		Confidence:         confidence,
		PredictionSource:   string(src),
		Status:             review.StatusPending,
		Notes:              note,
		PrincipalDiagnosis: entry.Code,
		SecondaryDiagnoses: []string{},
		Procedures:         []string{},
	}
}

// persistTasks writes every task, continuing past failures. Tasks already
// written are kept.
func (s *Service) persistTasks(ctx context.Context, log zerolog.Logger, tasks []*review.ReviewTask, out *Outcome) {
	ctx, span := s.tracer.Start(ctx, "submission.PersistReviewTasks")
	defer span.End()

	for _, t := range tasks {
		t.CreatedAt = s.deps.Now()
		if err := s.deps.Tasks.Create(ctx, t); err != nil {
			span.RecordError(err)
			log.Warn().Err(err).Str("code", t.Code).Msg("review task persist failed")
			continue
		}
		out.ReviewTasksCreated++
		out.ReviewTaskIDs = append(out.ReviewTaskIDs, t.ID)
	}
	span.SetAttributes(
		attribute.Int("review_tasks.intended", len(tasks)),
		attribute.Int("review_tasks.created", out.ReviewTasksCreated),
	)
}

func (s *Service) record(status Status, src prediction.Source, created, unmatched int) {
	if s.deps.Metrics == nil {
		return
	}
	s.deps.Metrics.SubmissionCompleted(string(status), string(src))
	if created > 0 {
		s.deps.Metrics.ReviewTasksCreated(created)
	}
	if unmatched > 0 {
		s.deps.Metrics.CatalogUnmatched(unmatched)
	}
}

func sourceLabel(src prediction.Source) string {
	if src == prediction.SourceRemote {
		return "AI model"
	}
	return "local fallback rules"
}

func message(out *Outcome, matched, catalogEmpty bool) string {
	var b strings.Builder
	switch {
	case catalogEmpty:
		return "No predicted code matched the catalog and the catalog is empty, so no review task was created. " +
			"Load the catalog and code this encounter manually."
	case !matched:
		b.WriteString("No predicted code matched the catalog; a default task was created for full manual coding.")
	case out.PredictionSource == prediction.SourceRemote:
		fmt.Fprintf(&b, "AI-assisted coding suggested %d code(s) for review.", out.ReviewTasksIntended)
	default:
		fmt.Fprintf(&b, "The prediction service was unavailable; %d code(s) were suggested by local fallback rules.", out.ReviewTasksIntended)
	}
	if out.Status == StatusReviewTaskPersistPartial {
		fmt.Fprintf(&b, " Only %d of %d review tasks were saved; the rest need manual creation.",
			out.ReviewTasksCreated, out.ReviewTasksIntended)
	}
	return b.String()
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
