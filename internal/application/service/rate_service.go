package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/rate"
	"github.com/garyjia/expense-approval/internal/domain/rbac"
)

// ResolveQuery selects the rate applicable on a date
type ResolveQuery struct {
	Kind        entity.RateKind
	Date        time.Time
	DayType     entity.DayType
	Designation string
}

// RateService manages the append-only RateConfig table
type RateService interface {
	Create(ctx context.Context, principal rbac.Principal, input RateInput) (*entity.RateConfig, error)
	List(ctx context.Context, principal rbac.Principal, kind entity.RateKind) ([]entity.RateConfig, error)
	Resolve(ctx context.Context, principal rbac.Principal, q ResolveQuery) (*entity.RateConfig, error)

	// Snapshot returns every entry, served from the cache when possible
	Snapshot(ctx context.Context) ([]entity.RateConfig, error)
}

type rateServiceImpl struct {
	rateRepo   port.RateConfigRepository
	cache      port.RateSnapshotCache
	recorder   AuditRecorder
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time
}

// NewRateService creates a new RateService. cache and d may be nil.
func NewRateService(
	rateRepo port.RateConfigRepository,
	cache port.RateSnapshotCache,
	recorder AuditRecorder,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
) RateService {
	return &rateServiceImpl{
		rateRepo:   rateRepo,
		cache:      cache,
		recorder:   recorder,
		txManager:  txManager,
		dispatcher: d,
		logger:     logger,
		now:        time.Now,
	}
}

// Create appends a new entry. Existing entries are never edited; a later
// entry with the same key supersedes them from its effective date on.
func (s *rateServiceImpl) Create(ctx context.Context, principal rbac.Principal, input RateInput) (*entity.RateConfig, error) {
	if err := authorize(principal, rbac.PermRatesManage); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	cfg := &entity.RateConfig{
		Kind:          input.Kind,
		Value:         input.Value,
		EffectiveDate: dateOnly(input.EffectiveDate),
		CreatedBy:     principal.SubjectID,
		CreatedAt:     s.now().UTC(),
	}
	if input.Condition != nil {
		cfg.Condition = &entity.RateCondition{
			DayType:     input.Condition.DayType,
			Designation: strings.TrimSpace(input.Condition.Designation),
		}
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.rateRepo.Create(txCtx, cfg); err != nil {
			return fmt.Errorf("create rate config: %w", err)
		}
		details := map[string]interface{}{
			"kind":           string(cfg.Kind),
			"value":          cfg.Value.String(),
			"effective_date": cfg.EffectiveDate.Format(time.DateOnly),
		}
		if cfg.Condition != nil {
			details["day_type"] = string(cfg.Condition.DayType)
			details["designation"] = cfg.Condition.Designation
		}
		target := entity.AuditTarget{Collection: entity.CollectionRateConfigs, DocumentID: strconv.FormatInt(cfg.ID, 10)}
		_, err := s.recorder.MustRecord(txCtx, principal.SubjectID, entity.ActionRateCreate, target, details)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to create rate config", "error", err, "kind", cfg.Kind)
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("Rate config created", "id", cfg.ID, "kind", cfg.Kind, "effective_date", cfg.EffectiveDate)

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeRateCreated,
			entity.CollectionRateConfigs, strconv.FormatInt(cfg.ID, 10), principal.SubjectID,
			map[string]interface{}{"kind": string(cfg.Kind)}))
	}
	return cfg, nil
}

// List returns all entries, optionally of one kind
func (s *rateServiceImpl) List(ctx context.Context, principal rbac.Principal, kind entity.RateKind) ([]entity.RateConfig, error) {
	if err := authorize(principal, rbac.PermRatesRead); err != nil {
		return nil, err
	}
	if kind != "" && !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown rate kind %q", apperr.ErrValidationFailed, kind)
	}

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		return snapshot, nil
	}

	out := make([]entity.RateConfig, 0, len(snapshot))
	for _, cfg := range snapshot {
		if cfg.Kind == kind {
			out = append(out, cfg)
		}
	}
	return out, nil
}

// Resolve returns the entry that would price a submission dated q.Date
func (s *rateServiceImpl) Resolve(ctx context.Context, principal rbac.Principal, q ResolveQuery) (*entity.RateConfig, error) {
	if err := authorize(principal, rbac.PermRatesRead); err != nil {
		return nil, err
	}
	if q.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", apperr.ErrValidationFailed)
	}

	var cond *entity.RateCondition
	if q.Kind == entity.RateKindOvertimeMultiplier {
		cond = &entity.RateCondition{DayType: q.DayType, Designation: strings.TrimSpace(q.Designation)}
	}

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return rate.NewResolver(snapshot).Resolve(q.Kind, dateOnly(q.Date), cond)
}

// Snapshot implements rate.SnapshotSource. Cache failures fall through to
// the repository.
func (s *rateServiceImpl) Snapshot(ctx context.Context) ([]entity.RateConfig, error) {
	if s.cache != nil {
		snapshot, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Error("Rate cache read failed", "error", err)
		} else if ok {
			return snapshot, nil
		}
	}

	snapshot, err := s.rateRepo.ListAll(ctx)
	if err != nil {
		s.logger.Error("Failed to load rate configs", "error", err)
		return nil, fmt.Errorf("load rate configs: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, snapshot); err != nil {
			s.logger.Error("Rate cache write failed", "error", err)
		}
	}
	return snapshot, nil
}

func (s *rateServiceImpl) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Error("Rate cache invalidation failed", "error", err)
	}
}
