package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/rbac"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/pkg/database"
)

func openTestDB(t *testing.T) (*sql.DB, *sqlite.DB) {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations())
	return db.DB, sqlite.NewDB(db.DB, logger)
}

var testTime = time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)

func newClaim(id, owner string) *entity.Submission {
	return &entity.Submission{
		ID:      id,
		Kind:    entity.KindClaim,
		OwnerID: owner,
		Status:  workflow.StateDraft,
		Claim: &entity.ClaimDetails{
			ClaimDate:         time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
			Description:       "client visit",
			CalculatedMileage: decimal.RequireFromString("100.5"),
			Items: []entity.ExpenseItem{
				{Category: entity.CategoryToll, Amount: decimal.RequireFromString("12.50")},
			},
		},
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
}

func TestSubmissionRepository_CreateAndGet(t *testing.T) {
	db, _ := openTestDB(t)
	repo := NewSubmissionRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newClaim("c1", "alice")))

	got, err := repo.GetByID(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.KindClaim, got.Kind)
	assert.Equal(t, workflow.StateDraft, got.Status)
	assert.Nil(t, got.Total)
	assert.Nil(t, got.ReviewedAt)
	assert.True(t, testTime.Equal(got.CreatedAt))
	require.NotNil(t, got.Claim)
	assert.True(t, got.Claim.CalculatedMileage.Equal(decimal.RequireFromString("100.5")))
	require.Len(t, got.Claim.Items, 1)
	assert.True(t, got.Claim.Items[0].Amount.Equal(decimal.RequireFromString("12.50")))

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSubmissionRepository_OvertimeRoundTrip(t *testing.T) {
	db, _ := openTestDB(t)
	repo := NewSubmissionRepository(db, zap.NewNop())
	ctx := context.Background()

	sub := &entity.Submission{
		ID:          "o1",
		Kind:        entity.KindOvertime,
		OwnerID:     "alice",
		Status:      workflow.StateSubmitted,
		SubmittedAt: &testTime,
		Overtime: &entity.OvertimeDetails{
			StartTime: testTime,
			EndTime:   testTime.Add(150 * time.Minute),
			Reason:    "release",
			DayType:   entity.DayTypeWeekend,
			WorkDate:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
	require.NoError(t, repo.Create(ctx, sub))

	got, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	require.NotNil(t, got.Overtime)
	assert.Equal(t, entity.DayTypeWeekend, got.Overtime.DayType)
	assert.Equal(t, "2.5", got.Overtime.Hours().String())
	assert.True(t, sub.Overtime.WorkDate.Equal(got.ReferenceDate()))
	require.NotNil(t, got.SubmittedAt)
	assert.True(t, testTime.Equal(*got.SubmittedAt))
}

func TestSubmissionRepository_CompareAndSwap(t *testing.T) {
	db, _ := openTestDB(t)
	repo := NewSubmissionRepository(db, zap.NewNop())
	ctx := context.Background()

	sub := newClaim("c1", "alice")
	sub.Status = workflow.StateSubmitted
	require.NoError(t, repo.Create(ctx, sub))

	approved := sub.Clone()
	approved.Status = workflow.StateApproved
	approved.ReviewerID = "bob"
	approved.ReviewedAt = &testTime
	total := decimal.RequireFromString("67.78")
	approved.Total = &total

	require.NoError(t, repo.CompareAndSwap(ctx, approved, workflow.StateSubmitted))

	// stale expected status loses
	rejected := sub.Clone()
	rejected.Status = workflow.StateRejected
	err := repo.CompareAndSwap(ctx, rejected, workflow.StateSubmitted)
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)

	got, err := repo.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, got.Status)
	assert.Equal(t, "bob", got.ReviewerID)
	require.NotNil(t, got.Total)
	assert.Equal(t, "67.78", got.Total.StringFixed(2))
}

func TestSubmissionRepository_ConcurrentCompareAndSwap(t *testing.T) {
	db, txm := openTestDB(t)
	repo := NewSubmissionRepository(db, zap.NewNop())
	ctx := context.Background()

	sub := newClaim("c1", "alice")
	sub.Status = workflow.StateSubmitted
	require.NoError(t, repo.Create(ctx, sub))

	const workers = 4
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := sub.Clone()
			next.Status = workflow.StateApproved
			errs[i] = txm.WithTransaction(ctx, func(txCtx context.Context) error {
				return repo.CompareAndSwap(txCtx, next, workflow.StateSubmitted)
			})
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)
}

func TestSubmissionRepository_List(t *testing.T) {
	db, _ := openTestDB(t)
	repo := NewSubmissionRepository(db, zap.NewNop())
	ctx := context.Background()

	for i, owner := range []string{"alice", "alice", "bob"} {
		sub := newClaim(string(rune('a'+i)), owner)
		sub.CreatedAt = testTime.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, sub))
	}

	all, err := repo.List(ctx, entity.SubmissionFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")

	mine, err := repo.List(ctx, entity.SubmissionFilter{OwnerID: "alice", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	page, err := repo.List(ctx, entity.SubmissionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)

	none, err := repo.List(ctx, entity.SubmissionFilter{Status: workflow.StatePaid, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSubmissionRepository_ListByStatus(t *testing.T) {
	db, _ := openTestDB(t)
	repo := NewSubmissionRepository(db, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		sub := newClaim(fmt.Sprintf("c%03d", i), "alice")
		sub.Status = workflow.StateApproved
		sub.CreatedAt = testTime.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, sub))
	}
	draft := newClaim("d1", "alice")
	require.NoError(t, repo.Create(ctx, draft))

	approved, err := repo.ListByStatus(ctx, workflow.StateApproved)
	require.NoError(t, err)
	require.Len(t, approved, 250)
	assert.Equal(t, "c000", approved[0].ID, "oldest first")
	assert.Equal(t, "c249", approved[249].ID)

	paid, err := repo.ListByStatus(ctx, workflow.StatePaid)
	require.NoError(t, err)
	assert.Empty(t, paid)
}

func TestTransactionRollback(t *testing.T) {
	db, txm := openTestDB(t)
	subs := NewSubmissionRepository(db, zap.NewNop())
	audit := NewAuditRepository(db, zap.NewNop())
	ctx := context.Background()

	err := txm.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := subs.Create(txCtx, newClaim("c1", "alice")); err != nil {
			return err
		}
		if err := audit.Append(txCtx, &entity.AuditEntry{
			ID: "a1", ActorID: "alice", Action: "claim.create",
			Target:    entity.AuditTarget{Collection: "claims", DocumentID: "c1"},
			Timestamp: testTime,
		}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	got, err := subs.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)

	entries, err := audit.List(ctx, entity.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRateConfigRepository(t *testing.T) {
	db, _ := openTestDB(t)
	repo := NewRateConfigRepository(db, zap.NewNop())
	ctx := context.Background()

	mileage := &entity.RateConfig{
		Kind:          entity.RateKindMileage,
		Value:         decimal.RequireFromString("0.55"),
		EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		CreatedBy:     "ada",
		CreatedAt:     testTime,
	}
	multiplier := &entity.RateConfig{
		Kind:          entity.RateKindOvertimeMultiplier,
		Value:         decimal.RequireFromString("1.5"),
		Condition:     &entity.RateCondition{DayType: entity.DayTypeWeekday, Designation: "engineer"},
		EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		CreatedBy:     "ada",
		CreatedAt:     testTime,
	}
	require.NoError(t, repo.Create(ctx, mileage))
	require.NoError(t, repo.Create(ctx, multiplier))
	assert.NotZero(t, mileage.ID)
	assert.Greater(t, multiplier.ID, mileage.ID)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	assert.Nil(t, all[0].Condition)
	assert.True(t, all[0].Value.Equal(decimal.RequireFromString("0.55")))
	assert.True(t, mileage.EffectiveDate.Equal(all[0].EffectiveDate))

	require.NotNil(t, all[1].Condition)
	assert.Equal(t, "engineer", all[1].Condition.Designation)
	assert.True(t, all[1].Condition.Matches(entity.DayTypeWeekday, "engineer"))
}

func TestAuditRepository(t *testing.T) {
	db, _ := openTestDB(t)
	repo := NewAuditRepository(db, zap.NewNop())
	ctx := context.Background()

	entries := []*entity.AuditEntry{
		{ID: "a1", ActorID: "bob", Action: "claim.approve", Target: entity.AuditTarget{Collection: "claims", DocumentID: "c1"},
			Details: map[string]interface{}{"total": "76.25"}, Timestamp: testTime},
		{ID: "a2", ActorID: "fran", Action: "claim.pay", Target: entity.AuditTarget{Collection: "claims", DocumentID: "c1"},
			Timestamp: testTime.Add(time.Minute)},
		{ID: "a3", ActorID: "bob", Action: "overtime.approve", Target: entity.AuditTarget{Collection: "overtime", DocumentID: "o1"},
			Timestamp: testTime.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, repo.Append(ctx, e))
	}

	// ids are unique; entries cannot be overwritten
	assert.Error(t, repo.Append(ctx, entries[0]))

	byTarget, err := repo.List(ctx, entity.AuditFilter{Collection: "claims", DocumentID: "c1"})
	require.NoError(t, err)
	require.Len(t, byTarget, 2)
	assert.Equal(t, "claim.approve", byTarget[0].Action)
	assert.Equal(t, "76.25", byTarget[0].Details["total"])
	assert.Nil(t, byTarget[1].Details)

	byActor, err := repo.List(ctx, entity.AuditFilter{ActorID: "bob", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, "a1", byActor[0].ID)
}

func TestProfileRepository(t *testing.T) {
	db, _ := openTestDB(t)
	repo := NewProfileRepository(db, zap.NewNop())
	ctx := context.Background()

	missing, err := repo.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Upsert(ctx, &entity.Profile{
		SubjectID: "alice", HourlyRate: decimal.RequireFromString("20.00"), Designation: "engineer", UpdatedAt: testTime,
	}))
	require.NoError(t, repo.Upsert(ctx, &entity.Profile{
		SubjectID: "alice", HourlyRate: decimal.RequireFromString("22.50"), Designation: "senior", UpdatedAt: testTime,
	}))

	got, err := repo.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "22.50", got.HourlyRate.StringFixed(2))
	assert.Equal(t, "senior", got.Designation)
}

func TestRoleRepository(t *testing.T) {
	db, _ := openTestDB(t)
	repo := NewRoleRepository(db, zap.NewNop())
	ctx := context.Background()

	roles, err := repo.GetRoles(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, roles.IsEmpty())

	set := rbac.NewRoleSet(rbac.RoleStaff, rbac.RoleFinance)
	require.NoError(t, repo.SetRoles(ctx, &entity.RoleAssignment{SubjectID: "alice", Roles: set, UpdatedBy: "ada", UpdatedAt: testTime}))

	roles, err = repo.GetRoles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, set, roles)

	require.NoError(t, repo.SetRoles(ctx, &entity.RoleAssignment{SubjectID: "alice", UpdatedBy: "ada", UpdatedAt: testTime}))
	roles, err = repo.GetRoles(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, roles.IsEmpty())

	_, err = db.Exec(`UPDATE user_roles SET roles = 'staff,owner' WHERE subject_id = 'alice'`)
	require.NoError(t, err)
	_, err = repo.GetRoles(ctx, "alice")
	assert.Error(t, err)
}
