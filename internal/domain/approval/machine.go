// Package approval wires the submission transition table on top of the
// generic workflow state machine. It holds no state between calls: every
// transition receives the current submission and returns an updated copy.
package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/rate"
	"github.com/garyjia/expense-approval/internal/domain/rbac"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// PayoutQuoter prices a submission when it is approved
type PayoutQuoter interface {
	Quote(ctx context.Context, sub *entity.Submission) (*rate.Quote, error)
}

// Request asks to move a submission to Target on behalf of Reviewer
type Request struct {
	Target   workflow.State
	Reviewer rbac.Principal
	Remarks  string
}

// Outcome is the result of an applied transition
type Outcome struct {
	Submission *entity.Submission
	From       workflow.State
	To         workflow.State
	Trigger    workflow.Trigger
	Quote      *rate.Quote
}

// Machine applies transition requests to submissions
type Machine struct {
	payout PayoutQuoter
	now    func() time.Time
}

// Option configures the machine
type Option func(*Machine)

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// NewMachine creates an approval machine
func NewMachine(payout PayoutQuoter, opts ...Option) *Machine {
	m := &Machine{
		payout: payout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var triggerFor = map[workflow.State]workflow.Trigger{
	workflow.StateSubmitted: workflow.TriggerSubmit,
	workflow.StateApproved:  workflow.TriggerApprove,
	workflow.StateRejected:  workflow.TriggerReject,
	workflow.StatePaid:      workflow.TriggerPay,
}

var reviewerRoles = []rbac.Requirement{rbac.RoleManager, rbac.RoleFinance, rbac.RoleAdmin}

// decidePermission is the permission a reviewer needs, on top of a reviewer
// role, to approve or reject a submission of each kind
var decidePermission = map[entity.SubmissionKind]rbac.Permission{
	entity.KindClaim:    rbac.PermClaimsApprove,
	entity.KindOvertime: rbac.PermOvertimeApprove,
}

// TriggerFor returns the trigger that moves a submission into target
func TriggerFor(target workflow.State) (workflow.Trigger, bool) {
	t, ok := triggerFor[target]
	return t, ok
}

// Transition validates req against the current status of sub and, when
// permitted, returns the updated submission. sub itself is never modified.
func (m *Machine) Transition(ctx context.Context, sub *entity.Submission, req Request) (*Outcome, error) {
	if !req.Reviewer.IsAuthenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	if !sub.Status.IsValid() {
		return nil, fmt.Errorf("submission %s has unknown status %q", sub.ID, sub.Status)
	}

	trigger, ok := triggerFor[req.Target]
	if !ok {
		return nil, fmt.Errorf("%w: cannot move a submission in status %s to %s", apperr.ErrInvalidTransition, sub.Status, req.Target)
	}

	out := &Outcome{
		Submission: sub.Clone(),
		From:       sub.Status,
		Trigger:    trigger,
	}

	sm := m.build(out, req).Build(sub.Status)
	if !sm.CanFire(trigger) {
		if sub.Status == req.Target {
			return nil, fmt.Errorf("%w: submission %s is already %s", apperr.ErrConflict, sub.ID, sub.Status)
		}
		return nil, fmt.Errorf("%w: cannot %s a submission in status %s", apperr.ErrInvalidTransition, trigger, sub.Status)
	}

	if err := sm.Fire(ctx, trigger); err != nil {
		return nil, err
	}

	out.To = sm.State()
	out.Submission.Status = out.To
	out.Submission.UpdatedAt = m.now()
	return out, nil
}

// build configures the transition table for one request. Guards and effects
// close over the outcome so effects can fill in derived fields.
func (m *Machine) build(out *Outcome, req Request) workflow.StateMachineBuilder {
	sub := out.Submission
	b := workflow.NewBuilder()

	if sub.Kind == entity.KindClaim {
		b.Configure(workflow.StateDraft).
			PermitIf(workflow.TriggerSubmit, workflow.StateSubmitted, ownerOnly(sub, req.Reviewer)).
			OnTransition(workflow.TriggerSubmit, func(context.Context) error {
				now := m.now()
				sub.SubmittedAt = &now
				return nil
			})
	}

	b.Configure(workflow.StateSubmitted).
		PermitIf(workflow.TriggerApprove, workflow.StateApproved,
			reviewer(sub, req.Reviewer), notOwner(sub, req.Reviewer)).
		OnTransition(workflow.TriggerApprove, func(ctx context.Context) error {
			quote, err := m.payout.Quote(ctx, sub)
			if err != nil {
				return fmt.Errorf("price %s %s: %w", sub.Kind, sub.ID, err)
			}
			total := quote.Total
			out.Quote = quote
			sub.Total = &total
			m.stampReview(sub, req)
			return nil
		}).
		PermitIf(workflow.TriggerReject, workflow.StateRejected,
			reviewer(sub, req.Reviewer), notOwner(sub, req.Reviewer), remarksRequired(req.Remarks)).
		OnTransition(workflow.TriggerReject, func(context.Context) error {
			m.stampReview(sub, req)
			return nil
		})

	b.Configure(workflow.StateApproved).
		PermitIf(workflow.TriggerPay, workflow.StatePaid, requires(req.Reviewer, rbac.PermPayoutsIssue)).
		OnTransition(workflow.TriggerPay, func(context.Context) error {
			now := m.now()
			sub.PaidBy = req.Reviewer.SubjectID
			sub.PaidAt = &now
			return nil
		})

	return b
}

func (m *Machine) stampReview(sub *entity.Submission, req Request) {
	now := m.now()
	sub.ReviewerID = req.Reviewer.SubjectID
	sub.ReviewedAt = &now
	sub.Remarks = strings.TrimSpace(req.Remarks)
}

func ownerOnly(sub *entity.Submission, p rbac.Principal) workflow.GuardFunc {
	return func(context.Context) error {
		if p.SubjectID != sub.OwnerID {
			return fmt.Errorf("%w: only the owner may submit", apperr.ErrForbidden)
		}
		return nil
	}
}

func reviewer(sub *entity.Submission, p rbac.Principal) workflow.GuardFunc {
	return func(context.Context) error {
		perm, ok := decidePermission[sub.Kind]
		if !ok || !rbac.EvaluateAny(p.Roles, reviewerRoles...) || !rbac.Evaluate(p.Roles, perm) {
			return fmt.Errorf("%w: insufficient permissions", apperr.ErrForbidden)
		}
		return nil
	}
}

func notOwner(sub *entity.Submission, p rbac.Principal) workflow.GuardFunc {
	return func(context.Context) error {
		if p.SubjectID == sub.OwnerID {
			return fmt.Errorf("%w: reviewers cannot decide their own submission", apperr.ErrForbidden)
		}
		return nil
	}
}

func remarksRequired(remarks string) workflow.GuardFunc {
	return func(context.Context) error {
		if strings.TrimSpace(remarks) == "" {
			return fmt.Errorf("%w: remarks are required when rejecting", apperr.ErrValidationFailed)
		}
		return nil
	}
}

func requires(p rbac.Principal, req rbac.Requirement) workflow.GuardFunc {
	return func(context.Context) error {
		if !rbac.Evaluate(p.Roles, req) {
			return fmt.Errorf("%w: insufficient permissions", apperr.ErrForbidden)
		}
		return nil
	}
}
