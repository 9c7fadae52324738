package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/rbac"
)

// AccessService resolves principals and manages roles and pay profiles
type AccessService interface {
	// Principal loads the current role set of an authenticated subject
	Principal(ctx context.Context, subjectID string) (rbac.Principal, error)
	CheckPermission(principal rbac.Principal, permission string) (bool, error)

	AssignRoles(ctx context.Context, actor rbac.Principal, subjectID string, roles rbac.RoleSet) (*entity.RoleAssignment, error)
	UpsertProfile(ctx context.Context, actor rbac.Principal, subjectID string, input ProfileInput) (*entity.Profile, error)
	GetProfile(ctx context.Context, actor rbac.Principal, subjectID string) (*entity.Profile, error)

	// Bootstrap grants superadmin to the configured subjects that lack it
	Bootstrap(ctx context.Context, subjectIDs []string) error
}

type accessServiceImpl struct {
	roleRepo    port.RoleRepository
	profileRepo port.ProfileRepository
	recorder    AuditRecorder
	txManager   port.TransactionManager
	dispatcher  dispatcher.Dispatcher
	logger      Logger
	now         func() time.Time
}

// NewAccessService creates a new AccessService. d may be nil.
func NewAccessService(
	roleRepo port.RoleRepository,
	profileRepo port.ProfileRepository,
	recorder AuditRecorder,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
) AccessService {
	return &accessServiceImpl{
		roleRepo:    roleRepo,
		profileRepo: profileRepo,
		recorder:    recorder,
		txManager:   txManager,
		dispatcher:  d,
		logger:      logger,
		now:         time.Now,
	}
}

// Principal loads roles for subjectID. An unknown subject gets the empty set.
func (s *accessServiceImpl) Principal(ctx context.Context, subjectID string) (rbac.Principal, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return rbac.Principal{}, apperr.ErrUnauthenticated
	}

	roles, err := s.roleRepo.GetRoles(ctx, subjectID)
	if err != nil {
		s.logger.Error("Failed to load roles", "error", err, "subject_id", subjectID)
		return rbac.Principal{}, fmt.Errorf("load roles: %w", err)
	}
	return rbac.Principal{SubjectID: subjectID, Roles: roles}, nil
}

// CheckPermission reports whether principal holds permission. Unknown
// permission keys are denied except for superadmin.
func (s *accessServiceImpl) CheckPermission(principal rbac.Principal, permission string) (bool, error) {
	if !principal.IsAuthenticated() {
		return false, apperr.ErrUnauthenticated
	}
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return false, fmt.Errorf("%w: permission is required", apperr.ErrValidationFailed)
	}
	return principal.Can(rbac.Permission(permission)), nil
}

// AssignRoles replaces the role set of subjectID. Changing superadmin
// membership in either direction requires the actor to be superadmin.
func (s *accessServiceImpl) AssignRoles(ctx context.Context, actor rbac.Principal, subjectID string, roles rbac.RoleSet) (*entity.RoleAssignment, error) {
	if err := authorize(actor, rbac.PermRolesManage); err != nil {
		return nil, err
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject id is required", apperr.ErrValidationFailed)
	}

	var assignment *entity.RoleAssignment
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		before, err := s.roleRepo.GetRoles(txCtx, subjectID)
		if err != nil {
			return fmt.Errorf("load roles: %w", err)
		}
		if before.Has(rbac.RoleSuperAdmin) != roles.Has(rbac.RoleSuperAdmin) && !actor.IsSuperAdmin() {
			return fmt.Errorf("%w: insufficient permissions", apperr.ErrForbidden)
		}

		assignment = &entity.RoleAssignment{
			SubjectID: subjectID,
			Roles:     roles,
			UpdatedBy: actor.SubjectID,
			UpdatedAt: s.now().UTC(),
		}
		if err := s.roleRepo.SetRoles(txCtx, assignment); err != nil {
			return fmt.Errorf("store roles: %w", err)
		}

		target := entity.AuditTarget{Collection: entity.CollectionUserRoles, DocumentID: subjectID}
		_, err = s.recorder.MustRecord(txCtx, actor.SubjectID, entity.ActionRolesUpdate, target, map[string]interface{}{
			"before": before.Names(),
			"after":  roles.Names(),
		})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to assign roles", "error", err, "subject_id", subjectID, "actor_id", actor.SubjectID)
		return nil, err
	}

	s.logger.Info("Roles assigned", "subject_id", subjectID, "roles", roles.String(), "actor_id", actor.SubjectID)
	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeRolesChanged,
			entity.CollectionUserRoles, subjectID, actor.SubjectID,
			map[string]interface{}{"roles": roles.String()}))
	}
	return assignment, nil
}

// UpsertProfile stores the pay profile of subjectID
func (s *accessServiceImpl) UpsertProfile(ctx context.Context, actor rbac.Principal, subjectID string, input ProfileInput) (*entity.Profile, error) {
	if err := authorize(actor, rbac.PermProfilesManage); err != nil {
		return nil, err
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject id is required", apperr.ErrValidationFailed)
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	profile := &entity.Profile{
		SubjectID:   subjectID,
		HourlyRate:  input.HourlyRate,
		Designation: strings.TrimSpace(input.Designation),
		UpdatedAt:   s.now().UTC(),
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.profileRepo.Upsert(txCtx, profile); err != nil {
			return fmt.Errorf("store profile: %w", err)
		}
		target := entity.AuditTarget{Collection: entity.CollectionProfiles, DocumentID: subjectID}
		_, err := s.recorder.MustRecord(txCtx, actor.SubjectID, entity.ActionProfileUpsert, target, map[string]interface{}{
			"hourly_rate": profile.HourlyRate.String(),
			"designation": profile.Designation,
		})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to upsert profile", "error", err, "subject_id", subjectID)
		return nil, err
	}

	s.logger.Info("Profile updated", "subject_id", subjectID, "designation", profile.Designation)
	return profile, nil
}

// GetProfile returns the pay profile of subjectID. Subjects may read their
// own; others need profiles:manage.
func (s *accessServiceImpl) GetProfile(ctx context.Context, actor rbac.Principal, subjectID string) (*entity.Profile, error) {
	if !actor.IsAuthenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	if actor.SubjectID != subjectID {
		if err := authorize(actor, rbac.PermProfilesManage); err != nil {
			return nil, err
		}
	}

	profile, err := s.profileRepo.GetProfile(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: profile %s", apperr.ErrNotFound, subjectID)
	}
	return profile, nil
}

// Bootstrap runs at start-up with the system actor
func (s *accessServiceImpl) Bootstrap(ctx context.Context, subjectIDs []string) error {
	for _, id := range subjectIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}

		err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			roles, err := s.roleRepo.GetRoles(txCtx, id)
			if err != nil {
				return fmt.Errorf("load roles: %w", err)
			}
			if roles.Has(rbac.RoleSuperAdmin) {
				return nil
			}

			granted := roles.With(rbac.RoleSuperAdmin)
			if err := s.roleRepo.SetRoles(txCtx, &entity.RoleAssignment{
				SubjectID: id,
				Roles:     granted,
				UpdatedBy: SystemActor,
				UpdatedAt: s.now().UTC(),
			}); err != nil {
				return fmt.Errorf("store roles: %w", err)
			}

			target := entity.AuditTarget{Collection: entity.CollectionUserRoles, DocumentID: id}
			_, err = s.recorder.MustRecord(txCtx, SystemActor, entity.ActionRolesUpdate, target, map[string]interface{}{
				"before": roles.Names(),
				"after":  granted.Names(),
			})
			if err == nil {
				s.logger.Info("Bootstrap superadmin granted", "subject_id", id)
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", id, err)
		}
	}
	return nil
}
