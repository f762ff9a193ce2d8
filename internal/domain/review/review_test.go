package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCode struct {
	encounterID uuid.UUID
	code        string
}

type fakeRecorder struct {
	mu    sync.Mutex
	codes []recordedCode
	err   error
}

func (f *fakeRecorder) RecordCode(_ context.Context, encounterID uuid.UUID, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, recordedCode{encounterID, code})
	return f.err
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ReviewTransition(action, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[action+"/"+result]++
}

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func newTestService(repo Repository, opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	return NewService(repo, zerolog.Nop(), opts...)
}

func newPendingTask(t *testing.T, svc *Service, createdAt time.Time) *ReviewTask {
	t.Helper()
	task := &ReviewTask{
		EncounterID:        uuid.New(),
		CoderID:            "coder-a",
		Code:               "I10",
		Description:        "Essential (primary) hypertension",
		Confidence:         0.95,
		PredictionSource:   "fallback",
		PrincipalDiagnosis: "I10",
		CreatedAt:          createdAt,
	}
	require.NoError(t, svc.Create(context.Background(), task))
	return task
}

func strPtr(s string) *string { return &s }

func TestStatus(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())

	st, err := ParseStatus(" Pending ")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st)

	_, err = ParseStatus("archived")
	assert.Error(t, err)
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService(NewMemoryRepo())
	ctx := context.Background()

	tests := []struct {
		name string
		task ReviewTask
	}{
		{"missing encounter", ReviewTask{Code: "I10", PrincipalDiagnosis: "I10"}},
		{"missing code", ReviewTask{EncounterID: uuid.New(), PrincipalDiagnosis: "I10"}},
		{"missing principal", ReviewTask{EncounterID: uuid.New(), Code: "I10", PrincipalDiagnosis: " "}},
		{"too many secondary", ReviewTask{EncounterID: uuid.New(), Code: "I10", PrincipalDiagnosis: "I10",
			SecondaryDiagnoses: make13()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := tt.task
			err := svc.Create(ctx, &task)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func make13() []string {
	out := make([]string, 13)
	for i := range out {
		out[i] = "E11.9"
	}
	return out
}

func TestCreate_StartsPending(t *testing.T) {
	svc := newTestService(NewMemoryRepo())
	task := &ReviewTask{
		EncounterID:        uuid.New(),
		Code:               "I10",
		PrincipalDiagnosis: "I10",
		Status:             StatusApproved,
	}
	require.NoError(t, svc.Create(context.Background(), task))
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, t0, task.CreatedAt)
}

func TestEdit_WhilePending(t *testing.T) {
	svc := newTestService(NewMemoryRepo())
	ctx := context.Background()
	task := newPendingTask(t, svc, t0)

	drg := "DRG-194"
	rw := 1.2
	los := 4
	secondary := []string{"E11.9", " ", "J45.909"}
	got, err := svc.Edit(ctx, task.ID, Edit{
		SecondaryDiagnoses: &secondary,
		DRG:                &drg,
		RelativeWeight:     &rw,
		LengthOfStay:       &los,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"E11.9", "J45.909"}, got.SecondaryDiagnoses)

	got, err = svc.Edit(ctx, task.ID, Edit{Notes: strPtr("checked against discharge summary")})
	require.NoError(t, err)

	stored, err := svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "checked against discharge summary", stored.Notes)
	assert.Equal(t, "DRG-194", *stored.DRG)
	assert.Equal(t, 1.2, *stored.RelativeWeight)
	assert.Equal(t, 4, *stored.LengthOfStay)
	assert.Equal(t, []string{"E11.9", "J45.909"}, stored.SecondaryDiagnoses)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, got.Notes, stored.Notes)
}

func TestEdit_InvalidFieldsWriteNothing(t *testing.T) {
	svc := newTestService(NewMemoryRepo())
	ctx := context.Background()
	task := newPendingTask(t, svc, t0)

	procs := make([]string, MaxProcedures+1)
	for i := range procs {
		procs[i] = "99.04"
	}
	_, err := svc.Edit(ctx, task.ID, Edit{Notes: strPtr("x"), Procedures: &procs})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Edit(ctx, task.ID, Edit{Notes: strPtr("x"), PrincipalDiagnosis: strPtr("")})
	require.ErrorIs(t, err, ErrValidation)

	stored, err := svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Notes)
	assert.Equal(t, "I10", stored.PrincipalDiagnosis)
}

func TestEdit_StoreFailureLeavesViewUnchanged(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	task := newPendingTask(t, svc, t0)

	view, err := svc.Get(ctx, task.ID)
	require.NoError(t, err)

	repo.FailUpdate = errors.New("connection reset")
	drg := "DRG-100"
	_, err = svc.Edit(ctx, task.ID, Edit{Notes: strPtr("new"), DRG: &drg})
	require.Error(t, err)

	assert.Empty(t, view.Notes)
	assert.Nil(t, view.DRG)

	stored, err := svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Notes)
	assert.Nil(t, stored.DRG)
}

func TestEdit_AfterTerminalFails(t *testing.T) {
	for _, decide := range []string{"approve", "reject"} {
		t.Run(decide, func(t *testing.T) {
			svc := newTestService(NewMemoryRepo())
			ctx := context.Background()
			task := newPendingTask(t, svc, t0)

			var err error
			if decide == "approve" {
				_, err = svc.Approve(ctx, task.ID, "coder-a")
			} else {
				_, err = svc.Reject(ctx, task.ID, "coder-a")
			}
			require.NoError(t, err)
			before, err := svc.Get(ctx, task.ID)
			require.NoError(t, err)

			_, err = svc.Edit(ctx, task.ID, Edit{Notes: strPtr("late"), PrincipalDiagnosis: strPtr("E11.9")})
			assert.ErrorIs(t, err, ErrInvalidStateTransition)

			after, err := svc.Get(ctx, task.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

// interleavingRepo runs between before delegating UpdatePending, standing in
// for a second coder whose write lands after this one read the task.
type interleavingRepo struct {
	Repository
	between func()
	every   bool

	mu      sync.Mutex
	updates int
}

func (r *interleavingRepo) UpdatePending(ctx context.Context, t *ReviewTask) error {
	r.mu.Lock()
	r.updates++
	run := r.every || r.updates == 1
	r.mu.Unlock()
	if run {
		r.between()
	}
	return r.Repository.UpdatePending(ctx, t)
}

func TestEdit_InterleavedEditsKeepBothFields(t *testing.T) {
	inner := NewMemoryRepo()
	other := newTestService(inner)
	ctx := context.Background()
	task := newPendingTask(t, other, t0)

	repo := &interleavingRepo{Repository: inner}
	repo.between = func() {
		_, err := other.Edit(ctx, task.ID, Edit{Notes: strPtr("documented CKD stage 3")})
		require.NoError(t, err)
	}
	obs := &countingObserver{}
	svc := newTestService(repo, WithObserver(obs))

	drg := "DRG-193"
	got, err := svc.Edit(ctx, task.ID, Edit{DRG: &drg})
	require.NoError(t, err)
	require.NotNil(t, got.DRG)
	assert.Equal(t, "DRG-193", *got.DRG)
	assert.Equal(t, "documented CKD stage 3", got.Notes)
	assert.Equal(t, 2, repo.updates)

	stored, err := inner.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DRG)
	assert.Equal(t, "DRG-193", *stored.DRG)
	assert.Equal(t, "documented CKD stage 3", stored.Notes)
	assert.Equal(t, int64(3), stored.Version)
	assert.Equal(t, 1, obs.counts["edit/ok"])
}

func TestEdit_StaleAfterRetriesIsConflict(t *testing.T) {
	inner := NewMemoryRepo()
	other := newTestService(inner)
	ctx := context.Background()
	task := newPendingTask(t, other, t0)

	n := 0
	repo := &interleavingRepo{Repository: inner, every: true}
	repo.between = func() {
		n++
		_, err := other.Edit(ctx, task.ID, Edit{Notes: strPtr(fmt.Sprintf("rev %d", n))})
		require.NoError(t, err)
	}
	obs := &countingObserver{}
	svc := newTestService(repo, WithObserver(obs))

	drg := "DRG-193"
	_, err := svc.Edit(ctx, task.ID, Edit{DRG: &drg})
	assert.ErrorIs(t, err, ErrStaleTask)
	assert.Equal(t, maxEditAttempts, repo.updates)
	assert.Equal(t, 1, obs.counts["edit/conflict"])

	stored, err := inner.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.DRG)
	assert.Equal(t, fmt.Sprintf("rev %d", maxEditAttempts), stored.Notes)
}

func TestMemoryRepo_UpdatePendingRejectsOldVersion(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	task := newPendingTask(t, svc, t0)
	assert.Equal(t, int64(1), task.Version)

	stale, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	fresh, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)

	fresh.Notes = "first"
	require.NoError(t, repo.UpdatePending(ctx, fresh))
	assert.Equal(t, int64(2), fresh.Version)

	stale.Notes = "second"
	assert.ErrorIs(t, repo.UpdatePending(ctx, stale), ErrStaleTask)

	decided, err := repo.Transition(ctx, task.ID, StatusApproved, "coder-a", t0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), decided.Version)
	assert.Equal(t, "first", decided.Notes)
}

func TestApprove_Idempotent(t *testing.T) {
	rec := &fakeRecorder{}
	svc := newTestService(NewMemoryRepo(), WithCodeRecorder(rec))
	ctx := context.Background()
	task := newPendingTask(t, svc, t0)

	first, err := svc.Approve(ctx, task.ID, "coder-a")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, first.Status)
	require.NotNil(t, first.DecidedBy)
	assert.Equal(t, "coder-a", *first.DecidedBy)

	second, err := svc.Approve(ctx, task.ID, "coder-b")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, second.Status)
	assert.Equal(t, "coder-a", *second.DecidedBy, "repeat does not change the decision")

	require.NotEmpty(t, rec.codes)
	assert.Equal(t, task.EncounterID, rec.codes[0].encounterID)
	assert.Equal(t, "I10", rec.codes[0].code)
}

func TestApprove_RecordsEditedPrincipal(t *testing.T) {
	rec := &fakeRecorder{}
	svc := newTestService(NewMemoryRepo(), WithCodeRecorder(rec))
	ctx := context.Background()
	task := newPendingTask(t, svc, t0)

	_, err := svc.Edit(ctx, task.ID, Edit{PrincipalDiagnosis: strPtr("I11.9")})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, task.ID, "coder-a")
	require.NoError(t, err)

	require.Len(t, rec.codes, 1)
	assert.Equal(t, "I11.9", rec.codes[0].code)
}

func TestApproveThenReject_Fails(t *testing.T) {
	svc := newTestService(NewMemoryRepo())
	ctx := context.Background()
	task := newPendingTask(t, svc, t0)

	_, err := svc.Approve(ctx, task.ID, "coder-a")
	require.NoError(t, err)

	_, err = svc.Reject(ctx, task.ID, "coder-a")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	stored, err := svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)
}

func TestReject_Idempotent(t *testing.T) {
	svc := newTestService(NewMemoryRepo())
	ctx := context.Background()
	task := newPendingTask(t, svc, t0)

	_, err := svc.Reject(ctx, task.ID, "coder-a")
	require.NoError(t, err)
	_, err = svc.Reject(ctx, task.ID, "coder-a")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, task.ID, "coder-a")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestApprove_RecorderFailureIsNotFatal(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("encounter store down")}
	svc := newTestService(NewMemoryRepo(), WithCodeRecorder(rec))
	task := newPendingTask(t, svc, t0)

	got, err := svc.Approve(context.Background(), task.ID, "coder-a")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
}

func TestTransition_NotFound(t *testing.T) {
	svc := newTestService(NewMemoryRepo())
	_, err := svc.Approve(context.Background(), uuid.New(), "coder-a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentApproveReject(t *testing.T) {
	for i := 0; i < 50; i++ {
		obs := &countingObserver{}
		svc := newTestService(NewMemoryRepo(), WithObserver(obs))
		ctx := context.Background()
		task := newPendingTask(t, svc, t0)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = svc.Approve(ctx, task.ID, "coder-a")
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = svc.Reject(ctx, task.ID, "coder-b")
		}()
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, ErrInvalidStateTransition)
			}
		}
		require.Equal(t, 1, winners)

		stored, err := svc.Get(ctx, task.ID)
		require.NoError(t, err)
		if errs[0] == nil {
			assert.Equal(t, StatusApproved, stored.Status)
		} else {
			assert.Equal(t, StatusRejected, stored.Status)
		}
		assert.Equal(t, 1, obs.counts["approve/conflict"]+obs.counts["reject/conflict"])
	}
}

func TestListByStatus_OrderedByCreation(t *testing.T) {
	svc := newTestService(NewMemoryRepo())
	ctx := context.Background()

	t1, t2, t3 := t0, t0.Add(time.Minute), t0.Add(2*time.Minute)
	third := newPendingTask(t, svc, t3)
	first := newPendingTask(t, svc, t1)
	second := newPendingTask(t, svc, t2)
	decided := newPendingTask(t, svc, t0.Add(-time.Hour))
	_, err := svc.Approve(ctx, decided.ID, "coder-a")
	require.NoError(t, err)

	items, total, err := svc.ListByStatus(ctx, StatusPending, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 3)
	assert.Equal(t, first.ID, items[0].ID)
	assert.Equal(t, second.ID, items[1].ID)
	assert.Equal(t, third.ID, items[2].ID)

	approved, _, err := svc.ListByStatus(ctx, StatusApproved, 20, 0)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, decided.ID, approved[0].ID)
}

func TestListByStatus_TiesKeepInsertionOrder(t *testing.T) {
	svc := newTestService(NewMemoryRepo())
	a := newPendingTask(t, svc, t0)
	b := newPendingTask(t, svc, t0)

	items, _, err := svc.ListByStatus(context.Background(), StatusPending, 20, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].ID)
	assert.Equal(t, b.ID, items[1].ID)
}

func TestListByStatus_Invalid(t *testing.T) {
	svc := newTestService(NewMemoryRepo())
	_, _, err := svc.ListByStatus(context.Background(), Status("archived"), 20, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAssigners(t *testing.T) {
	ctx := context.Background()
	enc := uuid.New()

	assert.Equal(t, Unassigned, NewAssigner(nil).Assign(ctx, enc, "I10"))
	assert.Equal(t, "coder-a", NewAssigner([]string{"coder-a"}).Assign(ctx, enc, "I10"))
	assert.Equal(t, Unassigned, FixedAssigner("").Assign(ctx, enc, "I10"))

	rr := NewAssigner([]string{"coder-a", "coder-b", "coder-c"})
	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, rr.Assign(ctx, enc, "I10"))
	}
	assert.Equal(t, []string{"coder-a", "coder-b", "coder-c", "coder-a"}, got)
}

func TestListByStatus_Pages(t *testing.T) {
	svc := newTestService(NewMemoryRepo())
	ctx := context.Background()
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		ids = append(ids, newPendingTask(t, svc, t0.Add(time.Duration(i)*time.Minute)).ID)
	}

	page, total, err := svc.ListByStatus(ctx, StatusPending, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	tail, total, err := svc.ListByStatus(ctx, StatusPending, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, tail, 1)
	assert.Equal(t, ids[4], tail[0].ID)

	past, total, err := svc.ListByStatus(ctx, StatusPending, 2, 9)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, past)
}
