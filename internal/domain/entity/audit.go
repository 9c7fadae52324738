package entity

import "time"

// AuditTarget identifies the entity an audit entry refers to
type AuditTarget struct {
	Collection string `json:"collection_name"`
	DocumentID string `json:"document_id"`
}

// AuditEntry is an immutable record of who did what to which entity, and when
type AuditEntry struct {
	ID        string                 `json:"id"`
	ActorID   string                 `json:"actor_id"`
	Action    string                 `json:"action"`
	Target    AuditTarget            `json:"target"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// AuditFilter narrows audit listings. Empty fields match everything.
type AuditFilter struct {
	ActorID    string
	Collection string
	DocumentID string
	Limit      int
	Offset     int
}

// Audit actions
const (
	ActionClaimCreate     = "claim.create"
	ActionOvertimeCreate  = "overtime.create"
	ActionSubmissionSync  = "submission.synced"
	ActionRateCreate      = "rate.create"
	ActionRateSync        = "rate.synced"
	ActionRolesUpdate     = "roles.update"
	ActionRolesSync       = "roles.synced"
	ActionProfileUpsert   = "profile.upsert"
	ActionPayoutsExported = "payouts.exported"
)

// TransitionAction returns the audit verb for a status change, e.g. "claim.approve"
func TransitionAction(kind SubmissionKind, trigger string) string {
	return string(kind) + "." + trigger
}
