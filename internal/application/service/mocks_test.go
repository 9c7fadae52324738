package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/rbac"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// memStore backs every fake repository. Transactions are serialized and
// roll back the whole store on error.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	submissions map[string]*entity.Submission
	audit       []*entity.AuditEntry
	rates       []entity.RateConfig
	profiles    map[string]*entity.Profile
	roles       map[string]rbac.RoleSet
	nextRateID  int64

	appendErr error
	listErr   error

	listByStatusCalls int
}

func newMemStore() *memStore {
	return &memStore{
		submissions: make(map[string]*entity.Submission),
		profiles:    make(map[string]*entity.Profile),
		roles:       make(map[string]rbac.RoleSet),
	}
}

type memState struct {
	submissions map[string]*entity.Submission
	audit       []*entity.AuditEntry
	rates       []entity.RateConfig
	profiles    map[string]*entity.Profile
	roles       map[string]rbac.RoleSet
	nextRateID  int64
}

func (s *memStore) save() memState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := memState{
		submissions: make(map[string]*entity.Submission, len(s.submissions)),
		audit:       append([]*entity.AuditEntry(nil), s.audit...),
		rates:       append([]entity.RateConfig(nil), s.rates...),
		profiles:    make(map[string]*entity.Profile, len(s.profiles)),
		roles:       make(map[string]rbac.RoleSet, len(s.roles)),
		nextRateID:  s.nextRateID,
	}
	for k, v := range s.submissions {
		st.submissions[k] = v.Clone()
	}
	for k, v := range s.profiles {
		p := *v
		st.profiles[k] = &p
	}
	for k, v := range s.roles {
		st.roles[k] = v
	}
	return st
}

func (s *memStore) restore(st memState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.submissions = st.submissions
	s.audit = st.audit
	s.rates = st.rates
	s.profiles = st.profiles
	s.roles = st.roles
	s.nextRateID = st.nextRateID
}

func (s *memStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.audit))
	for _, e := range s.audit {
		out = append(out, e.Action)
	}
	return out
}

func (s *memStore) countAction(action string) int {
	n := 0
	for _, a := range s.auditActions() {
		if a == action {
			n++
		}
	}
	return n
}

func (s *memStore) lastAudit() *entity.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.audit) == 0 {
		return nil
	}
	return s.audit[len(s.audit)-1]
}

func (s *memStore) status(id string) workflow.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.submissions[id]; ok {
		return sub.Status
	}
	return ""
}

func (s *memStore) addRate(kind entity.RateKind, value string, effective string, cond *entity.RateCondition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRateID++
	d, _ := time.Parse(time.DateOnly, effective)
	s.rates = append(s.rates, entity.RateConfig{
		ID:            s.nextRateID,
		Kind:          kind,
		Value:         decimal.RequireFromString(value),
		Condition:     cond,
		EffectiveDate: d,
		CreatedBy:     "seed",
		CreatedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
}

func (s *memStore) setProfile(subjectID, hourlyRate, designation string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[subjectID] = &entity.Profile{
		SubjectID:   subjectID,
		HourlyRate:  decimal.RequireFromString(hourlyRate),
		Designation: designation,
	}
}

// memTx implements port.TransactionManager
type memTx struct{ store *memStore }

func (m memTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	st := m.store.save()
	if err := fn(ctx); err != nil {
		m.store.restore(st)
		return err
	}
	return nil
}

// memSubmissions implements port.SubmissionRepository
type memSubmissions struct{ store *memStore }

func (r memSubmissions) Create(ctx context.Context, sub *entity.Submission) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.submissions[sub.ID]; ok {
		return fmt.Errorf("duplicate id %s", sub.ID)
	}
	r.store.submissions[sub.ID] = sub.Clone()
	return nil
}

func (r memSubmissions) GetByID(ctx context.Context, id string) (*entity.Submission, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sub, ok := r.store.submissions[id]
	if !ok {
		return nil, nil
	}
	return sub.Clone(), nil
}

func (r memSubmissions) List(ctx context.Context, filter entity.SubmissionFilter) ([]*entity.Submission, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.listErr != nil {
		return nil, r.store.listErr
	}

	var out []*entity.Submission
	for _, sub := range r.store.submissions {
		if filter.OwnerID != "" && sub.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Kind != "" && sub.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		out = append(out, sub.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r memSubmissions) ListByStatus(ctx context.Context, status workflow.State) ([]*entity.Submission, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.listByStatusCalls++
	if r.store.listErr != nil {
		return nil, r.store.listErr
	}

	var out []*entity.Submission
	for _, sub := range r.store.submissions {
		if sub.Status == status {
			out = append(out, sub.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memSubmissions) CompareAndSwap(ctx context.Context, sub *entity.Submission, expected workflow.State) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	cur, ok := r.store.submissions[sub.ID]
	if !ok || cur.Status != expected {
		return fmt.Errorf("%w: submission %s changed concurrently", apperr.ErrConflict, sub.ID)
	}
	r.store.submissions[sub.ID] = sub.Clone()
	return nil
}

// memAudit implements port.AuditRepository
type memAudit struct{ store *memStore }

func (r memAudit) Append(ctx context.Context, entry *entity.AuditEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.appendErr != nil {
		return r.store.appendErr
	}
	r.store.audit = append(r.store.audit, entry)
	return nil
}

func (r memAudit) List(ctx context.Context, filter entity.AuditFilter) ([]*entity.AuditEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*entity.AuditEntry
	for _, e := range r.store.audit {
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		if filter.Collection != "" && e.Target.Collection != filter.Collection {
			continue
		}
		if filter.DocumentID != "" && e.Target.DocumentID != filter.DocumentID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// memRates implements port.RateConfigRepository and rate.SnapshotSource
type memRates struct {
	store *memStore
	loads *int
}

func (r memRates) Create(ctx context.Context, cfg *entity.RateConfig) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.nextRateID++
	cfg.ID = r.store.nextRateID
	r.store.rates = append(r.store.rates, *cfg)
	return nil
}

func (r memRates) ListAll(ctx context.Context) ([]entity.RateConfig, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.loads != nil {
		*r.loads++
	}
	return append([]entity.RateConfig(nil), r.store.rates...), nil
}

func (r memRates) Snapshot(ctx context.Context) ([]entity.RateConfig, error) {
	return r.ListAll(ctx)
}

// memProfiles implements port.ProfileRepository
type memProfiles struct{ store *memStore }

func (r memProfiles) Upsert(ctx context.Context, profile *entity.Profile) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	p := *profile
	r.store.profiles[profile.SubjectID] = &p
	return nil
}

func (r memProfiles) GetProfile(ctx context.Context, subjectID string) (*entity.Profile, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	p, ok := r.store.profiles[subjectID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// memRoles implements port.RoleRepository
type memRoles struct{ store *memStore }

func (r memRoles) GetRoles(ctx context.Context, subjectID string) (rbac.RoleSet, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.roles[subjectID], nil
}

func (r memRoles) SetRoles(ctx context.Context, assignment *entity.RoleAssignment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.roles[assignment.SubjectID] = assignment.Roles
	return nil
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// recordingLogger keeps error messages for assertions
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *recordingLogger) Error(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

var (
	alice  = rbac.Principal{SubjectID: "alice", Roles: rbac.NewRoleSet(rbac.RoleStaff)}
	bob    = rbac.Principal{SubjectID: "bob", Roles: rbac.NewRoleSet(rbac.RoleManager)}
	fran   = rbac.Principal{SubjectID: "fran", Roles: rbac.NewRoleSet(rbac.RoleFinance)}
	ada    = rbac.Principal{SubjectID: "ada", Roles: rbac.NewRoleSet(rbac.RoleAdmin)}
	root   = rbac.Principal{SubjectID: "root", Roles: rbac.NewRoleSet(rbac.RoleSuperAdmin)}
	nobody = rbac.Principal{SubjectID: "nobody"}
)
