package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/rate"
	"github.com/garyjia/expense-approval/internal/domain/rbac"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

func newSubmissionEnv(opts ...SubmissionOption) (SubmissionService, *memStore) {
	store := newMemStore()
	store.addRate(entity.RateKindMileage, "0.55", "2024-01-01", nil)
	store.addRate(entity.RateKindOvertimeMultiplier, "1.5", "2024-01-01",
		&entity.RateCondition{DayType: entity.DayTypeWeekday, Designation: "engineer"})

	calc := rate.NewCalculator(memRates{store: store}, memProfiles{store: store})
	recorder := NewAuditRecorder(memAudit{store: store}, &mockLogger{})
	svc := NewSubmissionService(
		memSubmissions{store: store},
		approval.NewMachine(calc),
		recorder,
		memTx{store: store},
		&mockLogger{},
		opts...,
	)
	return svc, store
}

func claimInput() ClaimInput {
	return ClaimInput{
		ClaimDate:         time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
		Description:       "client visit",
		CalculatedMileage: decimal.NewFromInt(100),
		Items: []ExpenseItemInput{
			{Category: entity.CategoryToll, Amount: decimal.RequireFromString("12.50")},
			{Category: entity.CategoryParking, Amount: decimal.RequireFromString("8.75")},
		},
	}
}

func overtimeInput() OvertimeInput {
	return OvertimeInput{
		StartTime: time.Date(2024, 6, 14, 18, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 6, 14, 21, 30, 0, 0, time.UTC),
		Reason:    "release",
		DayType:   entity.DayTypeWeekday,
	}
}

func TestSubmissionService_CreateClaim(t *testing.T) {
	tests := []struct {
		name      string
		principal rbac.Principal
		input     func() ClaimInput
		wantErr   error
	}{
		{
			name:      "staff creates draft",
			principal: alice,
			input:     claimInput,
		},
		{
			name:      "no roles",
			principal: nobody,
			input:     claimInput,
			wantErr:   apperr.ErrForbidden,
		},
		{
			name:      "unauthenticated",
			principal: rbac.Principal{},
			input:     claimInput,
			wantErr:   apperr.ErrUnauthenticated,
		},
		{
			name:      "missing claim date",
			principal: alice,
			input: func() ClaimInput {
				in := claimInput()
				in.ClaimDate = time.Time{}
				return in
			},
			wantErr: apperr.ErrValidationFailed,
		},
		{
			name:      "non-positive item amount",
			principal: alice,
			input: func() ClaimInput {
				in := claimInput()
				in.Items[0].Amount = decimal.Zero
				return in
			},
			wantErr: apperr.ErrValidationFailed,
		},
		{
			name:      "negative mileage",
			principal: alice,
			input: func() ClaimInput {
				in := claimInput()
				in.CalculatedMileage = decimal.NewFromInt(-1)
				return in
			},
			wantErr: apperr.ErrValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newSubmissionEnv()

			sub, err := svc.CreateClaim(context.Background(), tt.principal, tt.input())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CreateClaim() error = %v, want %v", err, tt.wantErr)
				}
				if n := len(store.auditActions()); n != 0 {
					t.Errorf("audit entries = %d, want 0", n)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateClaim() unexpected error: %v", err)
			}
			if sub.Status != workflow.StateDraft {
				t.Errorf("Status = %s, want draft", sub.Status)
			}
			if sub.OwnerID != tt.principal.SubjectID {
				t.Errorf("OwnerID = %s, want %s", sub.OwnerID, tt.principal.SubjectID)
			}
			if sub.Total != nil {
				t.Errorf("Total = %v, want nil before approval", sub.Total)
			}
			if got := store.countAction(entity.ActionClaimCreate); got != 1 {
				t.Errorf("claim.create entries = %d, want 1", got)
			}
		})
	}
}

func TestSubmissionService_CreateOvertimeStartsSubmitted(t *testing.T) {
	svc, store := newSubmissionEnv()

	sub, err := svc.CreateOvertime(context.Background(), alice, overtimeInput())
	if err != nil {
		t.Fatalf("CreateOvertime() error: %v", err)
	}
	if sub.Status != workflow.StateSubmitted {
		t.Errorf("Status = %s, want submitted", sub.Status)
	}
	if sub.SubmittedAt == nil {
		t.Error("SubmittedAt should be set")
	}
	if store.status(sub.ID) != workflow.StateSubmitted {
		t.Errorf("stored status = %s", store.status(sub.ID))
	}

	in := overtimeInput()
	in.EndTime = in.StartTime.Add(25 * time.Hour)
	if _, err := svc.CreateOvertime(context.Background(), alice, in); !errors.Is(err, apperr.ErrValidationFailed) {
		t.Errorf("25h overtime error = %v, want ValidationFailed", err)
	}
}

func TestSubmissionService_ClaimLifecycle(t *testing.T) {
	svc, store := newSubmissionEnv()
	ctx := context.Background()

	sub, err := svc.CreateClaim(ctx, alice, claimInput())
	if err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}

	steps := []struct {
		principal rbac.Principal
		target    workflow.State
		remarks   string
	}{
		{alice, workflow.StateSubmitted, ""},
		{bob, workflow.StateApproved, "ok"},
		{fran, workflow.StatePaid, ""},
	}
	for _, step := range steps {
		sub, err = svc.Transition(ctx, sub.ID, TransitionRequest{
			Target:   step.target,
			Reviewer: step.principal,
			Remarks:  step.remarks,
		})
		if err != nil {
			t.Fatalf("Transition(%s) error: %v", step.target, err)
		}
		if sub.Status != step.target {
			t.Fatalf("Status = %s, want %s", sub.Status, step.target)
		}
	}

	if sub.Total == nil || sub.Total.StringFixed(2) != "76.25" {
		t.Errorf("Total = %v, want 76.25", sub.Total)
	}
	if sub.ReviewerID != "bob" {
		t.Errorf("ReviewerID = %s, want bob", sub.ReviewerID)
	}
	if sub.PaidBy != "fran" || sub.PaidAt == nil {
		t.Errorf("PaidBy = %s, PaidAt = %v", sub.PaidBy, sub.PaidAt)
	}

	want := []string{"claim.create", "claim.submit", "claim.approve", "claim.pay"}
	got := store.auditActions()
	if len(got) != len(want) {
		t.Fatalf("audit actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("audit[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	store.mu.Lock()
	approve := store.audit[2]
	store.mu.Unlock()
	if approve.ActorID != "bob" {
		t.Errorf("approve actor = %s, want bob", approve.ActorID)
	}
	if approve.Details["total"] != "76.25" || approve.Details["from"] != "submitted" || approve.Details["to"] != "approved" {
		t.Errorf("approve details = %v", approve.Details)
	}
}

func TestSubmissionService_OvertimeApproval(t *testing.T) {
	svc, store := newSubmissionEnv()
	store.setProfile("alice", "20.00", "engineer")
	ctx := context.Background()

	sub, err := svc.CreateOvertime(ctx, alice, overtimeInput())
	if err != nil {
		t.Fatalf("CreateOvertime() error: %v", err)
	}

	sub, err = svc.Transition(ctx, sub.ID, TransitionRequest{Target: workflow.StateApproved, Reviewer: bob})
	if err != nil {
		t.Fatalf("Transition() error: %v", err)
	}
	// 3.5h * 20.00 * 1.5
	if sub.Total.StringFixed(2) != "105.00" {
		t.Errorf("Total = %s, want 105.00", sub.Total.StringFixed(2))
	}

	// later profile changes never touch a fixed total
	store.setProfile("alice", "99.00", "engineer")
	got, err := svc.Get(ctx, alice, sub.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Total.StringFixed(2) != "105.00" {
		t.Errorf("stored Total = %s, want 105.00", got.Total.StringFixed(2))
	}
}

func TestSubmissionService_OvertimePricedOnLocalWorkDate(t *testing.T) {
	svc, store := newSubmissionEnv()
	store.addRate(entity.RateKindOvertimeMultiplier, "2.0", "2024-06-01",
		&entity.RateCondition{DayType: entity.DayTypeWeekday, Designation: "engineer"})
	store.setProfile("alice", "20.00", "engineer")
	ctx := context.Background()

	// 07:00 on June 1st at +08:00 is still May 31st in UTC
	zone := time.FixedZone("UTC+8", 8*60*60)
	sub, err := svc.CreateOvertime(ctx, alice, OvertimeInput{
		StartTime: time.Date(2024, 6, 1, 7, 0, 0, 0, zone),
		EndTime:   time.Date(2024, 6, 1, 9, 0, 0, 0, zone),
		Reason:    "cutover",
		DayType:   entity.DayTypeWeekday,
	})
	if err != nil {
		t.Fatalf("CreateOvertime() error: %v", err)
	}

	wantDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if !sub.Overtime.WorkDate.Equal(wantDate) {
		t.Errorf("WorkDate = %v, want %v", sub.Overtime.WorkDate, wantDate)
	}
	if !sub.ReferenceDate().Equal(wantDate) {
		t.Errorf("ReferenceDate() = %v, want %v", sub.ReferenceDate(), wantDate)
	}
	if sub.Overtime.StartTime.Location() != time.UTC {
		t.Errorf("StartTime location = %v, want UTC", sub.Overtime.StartTime.Location())
	}

	sub, err = svc.Transition(ctx, sub.ID, TransitionRequest{Target: workflow.StateApproved, Reviewer: bob})
	if err != nil {
		t.Fatalf("Transition() error: %v", err)
	}
	// 2h * 20.00 * 2.0
	if sub.Total.StringFixed(2) != "80.00" {
		t.Errorf("Total = %s, want 80.00", sub.Total.StringFixed(2))
	}
}

func TestSubmissionService_ClaimTotalFixedAfterRateChange(t *testing.T) {
	svc, store := newSubmissionEnv()
	ctx := context.Background()

	sub, err := svc.CreateClaim(ctx, alice, claimInput())
	if err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}
	if _, err := svc.Transition(ctx, sub.ID, TransitionRequest{Target: workflow.StateSubmitted, Reviewer: alice}); err != nil {
		t.Fatalf("submit error: %v", err)
	}
	if _, err := svc.Transition(ctx, sub.ID, TransitionRequest{Target: workflow.StateApproved, Reviewer: bob}); err != nil {
		t.Fatalf("approve error: %v", err)
	}

	// a newer entry effective before the claim date would now apply
	store.addRate(entity.RateKindMileage, "0.90", "2024-06-01", nil)

	got, err := svc.Get(ctx, alice, sub.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Total.StringFixed(2) != "76.25" {
		t.Errorf("stored Total = %s, want 76.25", got.Total.StringFixed(2))
	}

	_, err = svc.Transition(ctx, sub.ID, TransitionRequest{Target: workflow.StateApproved, Reviewer: bob})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("replayed approve error = %v, want Conflict", err)
	}

	got, err = svc.Get(ctx, alice, sub.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Total.StringFixed(2) != "76.25" {
		t.Errorf("Total after replay = %s, want 76.25", got.Total.StringFixed(2))
	}
	if n := store.countAction("claim.approve"); n != 1 {
		t.Errorf("claim.approve entries = %d, want 1", n)
	}
}

func TestSubmissionService_TransitionErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   []workflow.State
		req     TransitionRequest
		id      string
		wantErr error
	}{
		{
			name:    "replay of submit",
			setup:   []workflow.State{workflow.StateSubmitted},
			req:     TransitionRequest{Target: workflow.StateSubmitted, Reviewer: alice},
			wantErr: apperr.ErrConflict,
		},
		{
			name:    "approve from draft",
			req:     TransitionRequest{Target: workflow.StateApproved, Reviewer: bob},
			wantErr: apperr.ErrInvalidTransition,
		},
		{
			name:    "submit by non-owner",
			req:     TransitionRequest{Target: workflow.StateSubmitted, Reviewer: bob},
			wantErr: apperr.ErrForbidden,
		},
		{
			name:    "staff cannot approve",
			setup:   []workflow.State{workflow.StateSubmitted},
			req:     TransitionRequest{Target: workflow.StateApproved, Reviewer: rbac.Principal{SubjectID: "carol", Roles: rbac.NewRoleSet(rbac.RoleStaff)}},
			wantErr: apperr.ErrForbidden,
		},
		{
			name:    "reject without remarks",
			setup:   []workflow.State{workflow.StateSubmitted},
			req:     TransitionRequest{Target: workflow.StateRejected, Reviewer: bob, Remarks: "   "},
			wantErr: apperr.ErrValidationFailed,
		},
		{
			name:    "manager cannot pay",
			setup:   []workflow.State{workflow.StateSubmitted, workflow.StateApproved},
			req:     TransitionRequest{Target: workflow.StatePaid, Reviewer: bob},
			wantErr: apperr.ErrForbidden,
		},
		{
			name:    "paid is terminal",
			setup:   []workflow.State{workflow.StateSubmitted, workflow.StateApproved, workflow.StatePaid},
			req:     TransitionRequest{Target: workflow.StateRejected, Reviewer: bob, Remarks: "late"},
			wantErr: apperr.ErrInvalidTransition,
		},
		{
			name:    "stale expected status",
			setup:   []workflow.State{workflow.StateSubmitted},
			req:     TransitionRequest{Target: workflow.StateApproved, Reviewer: bob, ExpectedStatus: workflow.StateDraft},
			wantErr: apperr.ErrConflict,
		},
		{
			name:    "unknown submission",
			id:      "missing",
			req:     TransitionRequest{Target: workflow.StateSubmitted, Reviewer: alice},
			wantErr: apperr.ErrNotFound,
		},
		{
			name:    "unauthenticated",
			req:     TransitionRequest{Target: workflow.StateSubmitted},
			wantErr: apperr.ErrUnauthenticated,
		},
	}

	actors := map[workflow.State]rbac.Principal{
		workflow.StateSubmitted: alice,
		workflow.StateApproved:  bob,
		workflow.StatePaid:      fran,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newSubmissionEnv()
			ctx := context.Background()

			sub, err := svc.CreateClaim(ctx, alice, claimInput())
			if err != nil {
				t.Fatalf("CreateClaim() error: %v", err)
			}
			for _, target := range tt.setup {
				if _, err := svc.Transition(ctx, sub.ID, TransitionRequest{Target: target, Reviewer: actors[target]}); err != nil {
					t.Fatalf("setup Transition(%s) error: %v", target, err)
				}
			}

			id := sub.ID
			if tt.id != "" {
				id = tt.id
			}
			before := len(store.auditActions())
			statusBefore := store.status(sub.ID)

			_, err = svc.Transition(ctx, id, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Transition() error = %v, want %v", err, tt.wantErr)
			}
			if after := len(store.auditActions()); after != before {
				t.Errorf("audit entries grew from %d to %d on a failed transition", before, after)
			}
			if store.status(sub.ID) != statusBefore {
				t.Errorf("status changed to %s on a failed transition", store.status(sub.ID))
			}
		})
	}
}

func TestSubmissionService_ForbiddenMessageIsGeneric(t *testing.T) {
	svc, _ := newSubmissionEnv()
	ctx := context.Background()

	sub, _ := svc.CreateOvertime(ctx, alice, overtimeInput())
	_, err := svc.Transition(ctx, sub.ID, TransitionRequest{
		Target:   workflow.StateApproved,
		Reviewer: rbac.Principal{SubjectID: "carol", Roles: rbac.NewRoleSet(rbac.RoleStaff)},
	})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("error = %v, want Forbidden", err)
	}
	for _, leak := range []string{"manager", "finance", "admin", "overtime:approve"} {
		if containsFold(err.Error(), leak) {
			t.Errorf("error %q names %q", err.Error(), leak)
		}
	}
}

func TestSubmissionService_SelfApprovalForbidden(t *testing.T) {
	svc, store := newSubmissionEnv()
	store.setProfile("root", "50.00", "engineer")
	ctx := context.Background()

	sub, err := svc.CreateOvertime(ctx, root, overtimeInput())
	if err != nil {
		t.Fatalf("CreateOvertime() error: %v", err)
	}
	_, err = svc.Transition(ctx, sub.ID, TransitionRequest{Target: workflow.StateApproved, Reviewer: root})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("self approval error = %v, want Forbidden", err)
	}
}

func TestSubmissionService_NotConfigured(t *testing.T) {
	svc, store := newSubmissionEnv()
	ctx := context.Background()

	// no pay profile for alice
	sub, err := svc.CreateOvertime(ctx, alice, overtimeInput())
	if err != nil {
		t.Fatalf("CreateOvertime() error: %v", err)
	}
	_, err = svc.Transition(ctx, sub.ID, TransitionRequest{Target: workflow.StateApproved, Reviewer: bob})
	if !errors.Is(err, apperr.ErrNotConfigured) {
		t.Fatalf("error = %v, want NotConfigured", err)
	}
	if store.status(sub.ID) != workflow.StateSubmitted {
		t.Errorf("status = %s, want submitted", store.status(sub.ID))
	}
}

func TestSubmissionService_ConcurrentApprove(t *testing.T) {
	svc, store := newSubmissionEnv()
	store.setProfile("alice", "20.00", "engineer")
	ctx := context.Background()

	sub, err := svc.CreateOvertime(ctx, alice, overtimeInput())
	if err != nil {
		t.Fatalf("CreateOvertime() error: %v", err)
	}

	reviewers := []rbac.Principal{bob, fran}
	errs := make([]error, len(reviewers))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, r := range reviewers {
		wg.Add(1)
		go func(i int, r rbac.Principal) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Transition(ctx, sub.ID, TransitionRequest{Target: workflow.StateApproved, Reviewer: r})
		}(i, r)
	}
	close(start)
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
	if ok != 1 || conflicts != 1 {
		t.Errorf("successes = %d, conflicts = %d, want 1 and 1", ok, conflicts)
	}
	if n := store.countAction("overtime.approve"); n != 1 {
		t.Errorf("overtime.approve entries = %d, want 1", n)
	}
}

func TestSubmissionService_AuditFailureFailsTransition(t *testing.T) {
	svc, store := newSubmissionEnv()
	ctx := context.Background()

	sub, err := svc.CreateClaim(ctx, alice, claimInput())
	if err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}

	store.mu.Lock()
	store.appendErr = errors.New("disk full")
	store.mu.Unlock()

	_, err = svc.Transition(ctx, sub.ID, TransitionRequest{Target: workflow.StateSubmitted, Reviewer: alice})
	if err == nil {
		t.Fatal("Transition() should fail when the audit entry cannot be written")
	}
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Errorf("KindOf() = %s, want internal", apperr.KindOf(err))
	}
	if store.status(sub.ID) != workflow.StateDraft {
		t.Errorf("status = %s, want draft after rollback", store.status(sub.ID))
	}
}

func TestSubmissionService_GetAndList(t *testing.T) {
	svc, _ := newSubmissionEnv()
	ctx := context.Background()

	mine, err := svc.CreateClaim(ctx, alice, claimInput())
	if err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}
	carol := rbac.Principal{SubjectID: "carol", Roles: rbac.NewRoleSet(rbac.RoleStaff)}
	if _, err := svc.CreateClaim(ctx, carol, claimInput()); err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}

	if _, err := svc.Get(ctx, carol, mine.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("Get() by other staff error = %v, want Forbidden", err)
	}
	if _, err := svc.Get(ctx, bob, mine.ID); err != nil {
		t.Errorf("Get() by manager error = %v", err)
	}
	if _, err := svc.Get(ctx, alice, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get() missing error = %v, want NotFound", err)
	}

	own, err := svc.List(ctx, alice, entity.SubmissionFilter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(own) != 1 || own[0].OwnerID != "alice" {
		t.Errorf("staff List() = %d items, want only their own", len(own))
	}

	all, err := svc.List(ctx, bob, entity.SubmissionFilter{Kind: entity.KindClaim})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("manager List() = %d items, want 2", len(all))
	}

	if _, err := svc.List(ctx, bob, entity.SubmissionFilter{Status: "archived"}); !errors.Is(err, apperr.ErrValidationFailed) {
		t.Errorf("List() bad status error = %v, want ValidationFailed", err)
	}
}

func TestSubmissionService_PublishesStatusChange(t *testing.T) {
	d := dispatcher.NewDispatcher()
	svc, store := newSubmissionEnv(WithDispatcher(d))
	NewStatusSyncService(NewAuditRecorder(memAudit{store: store}, &mockLogger{}), &mockLogger{}).Register(d)
	ctx := context.Background()

	sub, err := svc.CreateClaim(ctx, alice, claimInput())
	if err != nil {
		t.Fatalf("CreateClaim() error: %v", err)
	}
	if _, err := svc.Transition(ctx, sub.ID, TransitionRequest{Target: workflow.StateSubmitted, Reviewer: alice}); err != nil {
		t.Fatalf("Transition() error: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if n := store.countAction(entity.ActionSubmissionSync); n != 1 {
		t.Fatalf("submission.synced entries = %d, want 1", n)
	}
	last := store.lastAudit()
	if last.ActorID != SystemActor || last.Details["to"] != "submitted" {
		t.Errorf("sync entry = %+v", last)
	}
}
