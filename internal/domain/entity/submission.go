package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// SubmissionKind distinguishes expense claims from overtime requests
type SubmissionKind string

const (
	KindClaim    SubmissionKind = "claim"
	KindOvertime SubmissionKind = "overtime"
)

// IsValid returns true for a known submission kind
func (k SubmissionKind) IsValid() bool {
	return k == KindClaim || k == KindOvertime
}

// Collection returns the audit collection name for the kind
func (k SubmissionKind) Collection() string {
	if k == KindOvertime {
		return CollectionOvertime
	}
	return CollectionClaims
}

// InitialState returns the state a new submission of this kind starts in
func (k SubmissionKind) InitialState() workflow.State {
	if k == KindOvertime {
		return workflow.StateSubmitted
	}
	return workflow.StateDraft
}

// Submission is a reviewable claim or overtime request. Total stays nil
// until the submission is approved and never changes afterwards.
type Submission struct {
	ID          string           `json:"id"`
	Kind        SubmissionKind   `json:"kind"`
	OwnerID     string           `json:"owner_id"`
	Status      workflow.State   `json:"status"`
	ReviewerID  string           `json:"reviewer_id,omitempty"`
	ReviewedAt  *time.Time       `json:"reviewed_at,omitempty"`
	Remarks     string           `json:"remarks,omitempty"`
	Total       *decimal.Decimal `json:"total,omitempty"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
	PaidBy      string           `json:"paid_by,omitempty"`
	PaidAt      *time.Time       `json:"paid_at,omitempty"`
	Claim       *ClaimDetails    `json:"claim,omitempty"`
	Overtime    *OvertimeDetails `json:"overtime,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ClaimDetails is the payload of an expense claim
type ClaimDetails struct {
	ClaimDate         time.Time       `json:"claim_date"`
	Description       string          `json:"description,omitempty"`
	CalculatedMileage decimal.Decimal `json:"calculated_mileage"`
	Items             []ExpenseItem   `json:"items,omitempty"`
}

// ExpenseItem is one itemized non-mileage expense
type ExpenseItem struct {
	Category    ExpenseCategory `json:"category"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

// OvertimeDetails is the payload of an overtime request
type OvertimeDetails struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason"`
	DayType   DayType   `json:"day_type"`

	// WorkDate is the calendar day the shift starts on in the submitter's
	// own offset, stored as midnight UTC
	WorkDate time.Time `json:"work_date"`
}

// Hours returns the worked duration in hours at minute precision
func (o OvertimeDetails) Hours() decimal.Decimal {
	minutes := int64(o.EndTime.Sub(o.StartTime) / time.Minute)
	if minutes <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(minutes).Div(decimal.NewFromInt(60))
}

// ReferenceDate is the calendar date rate resolution is pinned to: the
// claim date for claims and the work date for overtime.
func (s *Submission) ReferenceDate() time.Time {
	switch {
	case s.Claim != nil:
		return s.Claim.ClaimDate
	case s.Overtime != nil:
		if !s.Overtime.WorkDate.IsZero() {
			return s.Overtime.WorkDate
		}
		y, m, d := s.Overtime.StartTime.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	default:
		return s.CreatedAt
	}
}

// Collection returns the audit collection name for the submission
func (s *Submission) Collection() string {
	return s.Kind.Collection()
}

// Clone returns a deep copy of the submission
func (s *Submission) Clone() *Submission {
	c := *s
	c.ReviewedAt = cloneTime(s.ReviewedAt)
	c.SubmittedAt = cloneTime(s.SubmittedAt)
	c.PaidAt = cloneTime(s.PaidAt)
	if s.Total != nil {
		total := *s.Total
		c.Total = &total
	}
	if s.Claim != nil {
		claim := *s.Claim
		claim.Items = append([]ExpenseItem(nil), s.Claim.Items...)
		c.Claim = &claim
	}
	if s.Overtime != nil {
		overtime := *s.Overtime
		c.Overtime = &overtime
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SubmissionFilter narrows submission listings
type SubmissionFilter struct {
	OwnerID string
	Kind    SubmissionKind
	Status  workflow.State
	Limit   int
	Offset  int
}
