package service

import (
	"context"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Subscription names of the sync handlers
const (
	StatusSyncHandlerName = "status-sync"
	RateSyncHandlerName   = "rate-sync"
	RolesSyncHandlerName  = "roles-sync"
)

// StatusSyncService follows committed changes outside the request
type StatusSyncService interface {
	HandleStatusChanged(ctx context.Context, evt *event.Event) error
	HandleConfigChanged(ctx context.Context, evt *event.Event) error
	Register(d dispatcher.Dispatcher)
}

var configSyncActions = map[event.Type]string{
	event.TypeRateCreated:  entity.ActionRateSync,
	event.TypeRolesChanged: entity.ActionRolesSync,
}

type statusSyncServiceImpl struct {
	recorder AuditRecorder
	logger   Logger
}

// NewStatusSyncService creates a new StatusSyncService
func NewStatusSyncService(recorder AuditRecorder, logger Logger) StatusSyncService {
	return &statusSyncServiceImpl{
		recorder: recorder,
		logger:   logger,
	}
}

// Register subscribes the handlers to status, rate and role events
func (s *statusSyncServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeStatusChanged, StatusSyncHandlerName, s.HandleStatusChanged)
	d.SubscribeNamed(event.TypeRateCreated, RateSyncHandlerName, s.HandleConfigChanged)
	d.SubscribeNamed(event.TypeRolesChanged, RolesSyncHandlerName, s.HandleConfigChanged)
}

// HandleStatusChanged records a best-effort sync entry. It never fails
// the event, so later handlers still run.
func (s *statusSyncServiceImpl) HandleStatusChanged(ctx context.Context, evt *event.Event) error {
	from := evt.GetPayloadString("from")
	to := evt.GetPayloadString("to")

	s.recorder.BestEffortRecord(ctx, SystemActor, entity.ActionSubmissionSync,
		entity.AuditTarget{Collection: evt.Collection, DocumentID: evt.DocumentID},
		map[string]interface{}{
			"event_id": evt.ID,
			"from":     from,
			"to":       to,
			"actor_id": evt.ActorID,
		})

	s.logger.Info("Submission status synced",
		"event_id", evt.ID,
		"collection", evt.Collection,
		"document_id", evt.DocumentID,
		"from", from,
		"to", to,
	)
	return nil
}

// HandleConfigChanged records a best-effort sync entry for a new rate or
// a role change. Other event types are ignored.
func (s *statusSyncServiceImpl) HandleConfigChanged(ctx context.Context, evt *event.Event) error {
	action, ok := configSyncActions[evt.Type]
	if !ok {
		return nil
	}

	details := make(map[string]interface{}, len(evt.Payload)+2)
	for k, v := range evt.Payload {
		details[k] = v
	}
	details["event_id"] = evt.ID
	details["actor_id"] = evt.ActorID
	s.recorder.BestEffortRecord(ctx, SystemActor, action,
		entity.AuditTarget{Collection: evt.Collection, DocumentID: evt.DocumentID}, details)

	s.logger.Info("Configuration change synced",
		"event_id", evt.ID,
		"type", string(evt.Type),
		"document_id", evt.DocumentID,
	)
	return nil
}
