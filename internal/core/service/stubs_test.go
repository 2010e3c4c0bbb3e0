package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

type stubCredentialRepo struct {
	mu          sync.Mutex
	seq         int
	users       map[string]*domain.User
	tenants     map[string]*domain.Tenant
	memberships []domain.Membership
}

func newStubCredentialRepo() *stubCredentialRepo {
	return &stubCredentialRepo{
		users:   make(map[string]*domain.User),
		tenants: make(map[string]*domain.Tenant),
	}
}

func (r *stubCredentialRepo) nextID(prefix string) string {
	r.seq++
	return fmt.Sprintf("%s_%d", prefix, r.seq)
}

func (r *stubCredentialRepo) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubCredentialRepo) FindUserByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (r *stubCredentialRepo) FindTenantBySlug(_ context.Context, slug string) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.Slug == slug {
			c := *t
			return &c, nil
		}
	}
	return nil, domain.ErrTenantNotFound
}

func (r *stubCredentialRepo) FindTenantByID(_ context.Context, id string) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	c := *t
	return &c, nil
}

func (r *stubCredentialRepo) ListMemberships(_ context.Context, userID string) ([]domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Membership
	for _, m := range r.memberships {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *stubCredentialRepo) FindMembership(_ context.Context, userID, tenantID string) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.memberships {
		if m.UserID == userID && m.TenantID == tenantID {
			c := m
			return &c, nil
		}
	}
	return nil, domain.ErrMembershipNotFound
}

func (r *stubCredentialRepo) CreateAccount(_ context.Context, acc ports.NewAccount) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == acc.User.Email {
			return nil, domain.ErrEmailTaken
		}
	}
	for _, t := range r.tenants {
		if t.Slug == acc.Tenant.Slug {
			return nil, domain.ErrSlugTaken
		}
	}
	acc.User.ID = r.nextID("usr")
	acc.Tenant.ID = r.nextID("ten")
	u, t := *acc.User, *acc.Tenant
	r.users[u.ID] = &u
	r.tenants[t.ID] = &t
	m := domain.Membership{
		ID:        r.nextID("mem"),
		UserID:    u.ID,
		TenantID:  t.ID,
		Role:      domain.RoleOwner,
		CreatedAt: acc.User.CreatedAt,
	}
	r.memberships = append(r.memberships, m)
	return &m, nil
}

func (r *stubCredentialRepo) SetUserActive(_ context.Context, userID string, active bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Active = active
	u.UpdatedAt = at
	return nil
}

// addMember adds userID to tenantID with role, for multi-tenant scenarios.
func (r *stubCredentialRepo) addMember(userID, tenantID string, role domain.Role, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberships = append(r.memberships, domain.Membership{
		ID: r.nextID("mem"), UserID: userID, TenantID: tenantID, Role: role, CreatedAt: at,
	})
}

func (r *stubCredentialRepo) removeMember(userID, tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.memberships[:0]
	for _, m := range r.memberships {
		if m.UserID != userID || m.TenantID != tenantID {
			kept = append(kept, m)
		}
	}
	r.memberships = kept
}

// stubTokenRepo mirrors the conditional revoke of the real stores under a mutex.
type stubTokenRepo struct {
	mu      sync.Mutex
	seq     int
	records map[string]*domain.RefreshToken
}

func newStubTokenRepo() *stubTokenRepo {
	return &stubTokenRepo{records: make(map[string]*domain.RefreshToken)}
}

func (r *stubTokenRepo) Create(_ context.Context, in ports.NewRefreshToken) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	rec := &domain.RefreshToken{
		ID:        fmt.Sprintf("rt_%d", r.seq),
		UserID:    in.UserID,
		TenantID:  in.TenantID,
		IssuedAt:  in.IssuedAt,
		ExpiresAt: in.ExpiresAt,
		UserAgent: in.Client.UserAgent,
		IPAddress: in.Client.IPAddress,
	}
	r.records[rec.ID] = rec
	c := *rec
	return &c, nil
}

func (r *stubTokenRepo) Find(_ context.Context, id string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, domain.ErrRefreshTokenNotFound
	}
	c := *rec
	return &c, nil
}

func (r *stubTokenRepo) Revoke(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return false, domain.ErrRefreshTokenNotFound
	}
	if rec.RevokedAt != nil {
		return false, nil
	}
	rec.RevokedAt = &at
	return true, nil
}

func (r *stubTokenRepo) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rec := range r.records {
		if rec.UserID == userID && rec.RevokedAt == nil {
			rec.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (r *stubTokenRepo) DeleteInactive(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.records {
		if rec.StateAt(now) != domain.RefreshTokenActive {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *stubTokenRepo) expire(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id].ExpiresAt = at
}

// plainHasher skips the key derivation; the service only needs the contract.
type plainHasher struct {
	mu       sync.Mutex
	verified []string
}

func (h *plainHasher) Hash(pw string) (string, error) { return "plain$" + pw, nil }

func (h *plainHasher) Verify(hash, pw string) bool {
	h.mu.Lock()
	h.verified = append(h.verified, hash)
	h.mu.Unlock()
	return strings.HasPrefix(hash, "plain$") && strings.TrimPrefix(hash, "plain$") == pw
}

type recordingAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *recordingAudit) Record(_ context.Context, ev domain.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *recordingAudit) count(t domain.AuditEventType) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, ev := range a.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
