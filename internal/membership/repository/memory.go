package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/yonathanth/Workline-backend/internal/membership/domain"
)

// WriteOp names a write passed to a MemoryStore write hook.
type WriteOp string

const (
	OpCreate WriteOp = "create"
	OpUpdate WriteOp = "update"
	OpDelete WriteOp = "delete"
)

// MemoryStore is an in-process Store. Transactions stage their writes and apply them
// under a single lock on commit; organization locks are per-org RW mutexes.
type MemoryStore struct {
	mu    sync.RWMutex
	rows  map[string]*domain.Membership
	orgs  map[string]bool
	hook  func(op WriteOp, m domain.Membership) error
	locks sync.Map // orgID -> *sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory membership store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[string]*domain.Membership),
		orgs: make(map[string]bool),
	}
}

// AddOrganization registers orgID so WithinOrgTx can lock it.
func (s *MemoryStore) AddOrganization(orgID string) {
	s.mu.Lock()
	s.orgs[orgID] = true
	s.mu.Unlock()
}

// RemoveOrganization drops the organization and cascades its memberships.
func (s *MemoryStore) RemoveOrganization(orgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orgs, orgID)
	for id, m := range s.rows {
		if m.OrgID == orgID {
			delete(s.rows, id)
		}
	}
}

// SetWriteHook installs fn to run before every write; a non-nil error fails that write.
// Used to simulate store failures part way through a transaction.
func (s *MemoryStore) SetWriteHook(fn func(op WriteOp, m domain.Membership) error) {
	s.mu.Lock()
	s.hook = fn
	s.mu.Unlock()
}

func (s *MemoryStore) runHook(op WriteOp, m domain.Membership) error {
	s.mu.RLock()
	hook := s.hook
	s.mu.RUnlock()
	if hook == nil {
		return nil
	}
	return hook(op, m)
}

func (s *MemoryStore) orgLock(orgID string) *sync.RWMutex {
	l, _ := s.locks.LoadOrStore(orgID, &sync.RWMutex{})
	return l.(*sync.RWMutex)
}

func (s *MemoryStore) GetMembershipByID(_ context.Context, id string) (*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.rows[id]; ok {
		c := *m
		return &c, nil
	}
	return nil, nil
}

func (s *MemoryStore) GetMembershipByUserAndOrg(_ context.Context, userID, orgID string) (*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.rows {
		if m.UserID == userID && m.OrgID == orgID {
			c := *m
			return &c, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListMembershipsByOrg(_ context.Context, orgID string) ([]*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterSorted(s.rows, func(m *domain.Membership) bool { return m.OrgID == orgID }), nil
}

func (s *MemoryStore) ListOwnersByOrg(_ context.Context, orgID string) ([]*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterSorted(s.rows, func(m *domain.Membership) bool {
		return m.OrgID == orgID && m.Role == domain.RoleOwner
	}), nil
}

func (s *MemoryStore) CreateMembership(_ context.Context, m *domain.Membership) error {
	if err := s.runHook(OpCreate, *m); err != nil {
		return err
	}
	return s.apply([]stagedWrite{{op: OpCreate, m: *m}})
}

func (s *MemoryStore) UpdateRole(ctx context.Context, membershipID string, role domain.Role) (*domain.Membership, error) {
	cur, err := s.GetMembershipByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, domain.ErrMemberNotFound
	}
	cur.Role = role
	if err := s.runHook(OpUpdate, *cur); err != nil {
		return nil, err
	}
	if err := s.apply([]stagedWrite{{op: OpUpdate, m: *cur}}); err != nil {
		return nil, err
	}
	return cur, nil
}

func (s *MemoryStore) DeleteMembership(ctx context.Context, membershipID string) error {
	cur, err := s.GetMembershipByID(ctx, membershipID)
	if err != nil {
		return err
	}
	if cur == nil {
		return domain.ErrMemberNotFound
	}
	if err := s.runHook(OpDelete, *cur); err != nil {
		return err
	}
	return s.apply([]stagedWrite{{op: OpDelete, m: *cur}})
}

// WithinOrgTx holds the org lock for the duration of fn and commits staged writes atomically.
func (s *MemoryStore) WithinOrgTx(ctx context.Context, orgID string, mode LockMode, fn func(ctx context.Context, r Repository) error) error {
	lock := s.orgLock(orgID)
	if mode == LockExclusive {
		lock.Lock()
		defer lock.Unlock()
	} else {
		lock.RLock()
		defer lock.RUnlock()
	}
	s.mu.RLock()
	exists := s.orgs[orgID]
	s.mu.RUnlock()
	if !exists {
		return domain.ErrOrganizationNotFound
	}
	tx := &memoryTx{store: s, overlay: make(map[string]*domain.Membership)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.apply(tx.writes)
}

func (s *MemoryStore) OwnerCountViolations(_ context.Context) ([]OwnerCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.orgs))
	for id := range s.orgs {
		counts[id] = 0
	}
	for _, m := range s.rows {
		if m.Role == domain.RoleOwner {
			counts[m.OrgID]++
		}
	}
	var out []OwnerCount
	for id, n := range counts {
		if n != 1 {
			out = append(out, OwnerCount{OrgID: id, Owners: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrgID < out[j].OrgID })
	return out, nil
}

type stagedWrite struct {
	op WriteOp
	m  domain.Membership
}

// apply validates every write against the committed rows plus earlier writes in the batch,
// then applies all of them or none.
func (s *MemoryStore) apply(writes []stagedWrite) error {
	if len(writes) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]*domain.Membership, len(s.rows))
	for id, m := range s.rows {
		next[id] = m
	}
	for _, w := range writes {
		m := w.m
		switch w.op {
		case OpCreate:
			if !s.orgs[m.OrgID] {
				return domain.ErrOrganizationNotFound
			}
			for _, existing := range next {
				if existing.UserID == m.UserID && existing.OrgID == m.OrgID {
					return domain.ErrDuplicateMembership
				}
			}
			next[m.ID] = &m
		case OpUpdate:
			if _, ok := next[m.ID]; !ok {
				return domain.ErrMemberNotFound
			}
			next[m.ID] = &m
		case OpDelete:
			if _, ok := next[m.ID]; !ok {
				return domain.ErrMemberNotFound
			}
			delete(next, m.ID)
		}
		if m.Role == domain.RoleOwner && w.op != OpDelete {
			for _, other := range next {
				if other.OrgID == m.OrgID && other.Role == domain.RoleOwner && other.ID != m.ID {
					return &domain.InvariantError{OrgID: m.OrgID, Owners: []string{other.UserID, m.UserID}}
				}
			}
		}
	}
	s.rows = next
	return nil
}

// memoryTx overlays staged writes on the committed rows. A nil overlay entry is a staged delete.
type memoryTx struct {
	store   *MemoryStore
	overlay map[string]*domain.Membership
	writes  []stagedWrite
}

func (t *memoryTx) view() map[string]*domain.Membership {
	t.store.mu.RLock()
	out := make(map[string]*domain.Membership, len(t.store.rows))
	for id, m := range t.store.rows {
		out[id] = m
	}
	t.store.mu.RUnlock()
	for id, m := range t.overlay {
		if m == nil {
			delete(out, id)
		} else {
			out[id] = m
		}
	}
	return out
}

func (t *memoryTx) GetMembershipByID(_ context.Context, id string) (*domain.Membership, error) {
	if m, ok := t.view()[id]; ok {
		c := *m
		return &c, nil
	}
	return nil, nil
}

func (t *memoryTx) GetMembershipByUserAndOrg(_ context.Context, userID, orgID string) (*domain.Membership, error) {
	for _, m := range t.view() {
		if m.UserID == userID && m.OrgID == orgID {
			c := *m
			return &c, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) ListMembershipsByOrg(_ context.Context, orgID string) ([]*domain.Membership, error) {
	return filterSorted(t.view(), func(m *domain.Membership) bool { return m.OrgID == orgID }), nil
}

func (t *memoryTx) ListOwnersByOrg(_ context.Context, orgID string) ([]*domain.Membership, error) {
	return filterSorted(t.view(), func(m *domain.Membership) bool {
		return m.OrgID == orgID && m.Role == domain.RoleOwner
	}), nil
}

func (t *memoryTx) CreateMembership(ctx context.Context, m *domain.Membership) error {
	if existing, _ := t.GetMembershipByUserAndOrg(ctx, m.UserID, m.OrgID); existing != nil {
		return domain.ErrDuplicateMembership
	}
	return t.stage(OpCreate, *m)
}

func (t *memoryTx) UpdateRole(ctx context.Context, membershipID string, role domain.Role) (*domain.Membership, error) {
	cur, _ := t.GetMembershipByID(ctx, membershipID)
	if cur == nil {
		return nil, domain.ErrMemberNotFound
	}
	cur.Role = role
	if err := t.stage(OpUpdate, *cur); err != nil {
		return nil, err
	}
	return cur, nil
}

func (t *memoryTx) DeleteMembership(ctx context.Context, membershipID string) error {
	cur, _ := t.GetMembershipByID(ctx, membershipID)
	if cur == nil {
		return domain.ErrMemberNotFound
	}
	return t.stage(OpDelete, *cur)
}

func (t *memoryTx) stage(op WriteOp, m domain.Membership) error {
	if err := t.store.runHook(op, m); err != nil {
		return err
	}
	if op == OpDelete {
		t.overlay[m.ID] = nil
	} else {
		c := m
		t.overlay[m.ID] = &c
	}
	t.writes = append(t.writes, stagedWrite{op: op, m: m})
	return nil
}

func filterSorted(rows map[string]*domain.Membership, keep func(*domain.Membership) bool) []*domain.Membership {
	var out []*domain.Membership
	for _, m := range rows {
		if keep(m) {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
