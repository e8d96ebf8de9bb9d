package policy

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizzq/backend/core/usage"
)

type fakeStore struct {
	mu       sync.Mutex
	counters map[string]usage.Counter
}

func (s *fakeStore) GetUsage(_ context.Context, id string) (usage.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[id], nil
}

func (s *fakeStore) ConsumeUsage(_ context.Context, id string, w usage.Window, lim usage.Limit) (usage.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counters[id].Normalize(w)
	if lim.Exceeded(c) {
		return usage.Counter{}, usage.ErrLimitExceeded
	}
	c = c.Increment(w)
	s.counters[id] = c
	return c, nil
}

func (s *fakeStore) ResetUsage(_ context.Context, id string, w usage.Window) (usage.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := usage.Counter{Lifetime: s.counters[id].Lifetime, LastReset: w.Now}
	s.counters[id] = c
	return c, nil
}

func newGate() (*Gate, *fakeStore) {
	store := &fakeStore{counters: make(map[string]usage.Counter)}
	return NewGate(usage.NewMeter(store, usage.DefaultPolicy, nil)), store
}

func TestCanAccessTenant(t *testing.T) {
	teacherA := Principal{ID: "t1", Role: RoleTeacher, TenantID: "A"}
	superAdmin := Principal{ID: "s1", Role: RoleSuperAdmin}
	orphan := Principal{ID: "m1", Role: RoleMember}

	assert.True(t, CanAccessTenant(teacherA, "A"))
	assert.False(t, CanAccessTenant(teacherA, "B"))
	assert.False(t, CanAccessTenant(teacherA, ""))
	assert.True(t, CanAccessTenant(superAdmin, "A"))
	assert.True(t, CanAccessTenant(superAdmin, "B"))
	assert.True(t, CanAccessTenant(superAdmin, ""))
	assert.False(t, CanAccessTenant(orphan, ""))
	assert.False(t, CanAccessTenant(orphan, "A"))

	mixedCase := Principal{ID: "s2", Role: " SuperAdmin "}
	assert.True(t, mixedCase.IsSuperAdmin())
	assert.True(t, CanAccessTenant(mixedCase, "B"))
	assert.False(t, CanAccessTenant(Principal{ID: "t2", Role: "Teacher", TenantID: "A"}, "B"))
}

func TestGate_Authorize(t *testing.T) {
	gate, _ := newGate()

	student := &Principal{ID: "u1", Role: RoleStudent, TenantID: "A"}
	schoolAdmin := &Principal{ID: "u2", Role: RoleSchoolAdmin, TenantID: "A"}
	superAdmin := &Principal{ID: "u3", Role: RoleSuperAdmin}

	tests := []struct {
		name     string
		p        *Principal
		required Role
		tenant   []string
		want     Decision
	}{
		{name: "no session", required: RoleMember, want: deny(ReasonNoSession)},
		{name: "empty principal", p: &Principal{}, required: RoleMember, want: deny(ReasonNoSession)},
		{name: "insufficient role", p: student, required: RoleTeacher, want: deny(ReasonInsufficientRole)},
		{name: "role check comes before tenant", p: student, required: RoleTeacher, tenant: []string{"B"}, want: deny(ReasonInsufficientRole)},
		{name: "same role", p: student, required: RoleStudent, want: allow},
		{name: "own tenant", p: schoolAdmin, required: RoleTeacher, tenant: []string{"A"}, want: allow},
		{name: "other tenant", p: schoolAdmin, required: RoleTeacher, tenant: []string{"B"}, want: deny(ReasonWrongTenant)},
		{name: "resource without tenant", p: schoolAdmin, required: RoleTeacher, tenant: []string{""}, want: deny(ReasonWrongTenant)},
		{name: "superadmin any tenant", p: superAdmin, required: RoleSchoolAdmin, tenant: []string{"B"}, want: allow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gate.Authorize(tt.p, tt.required, tt.tenant...)
			assert.Equal(t, tt.want, got)
			if got.Allowed {
				assert.NoError(t, got.Err())
			} else {
				dErr, ok := IsDenied(errors.Wrap(got.Err(), "wrapped"))
				require.True(t, ok)
				assert.Equal(t, tt.want.Reason, dErr.Reason)
			}
		})
	}
}

func TestGate_AuthorizeOwned(t *testing.T) {
	gate, _ := newGate()

	owner := &Principal{ID: "t1", Role: RoleTeacher, TenantID: "A"}
	colleague := &Principal{ID: "t2", Role: RoleTeacher, TenantID: "A"}
	schoolAdmin := &Principal{ID: "a1", Role: RoleSchoolAdmin, TenantID: "A"}
	otherAdmin := &Principal{ID: "a2", Role: RoleSchoolAdmin, TenantID: "B"}
	class := Scope{TenantID: "A", OwnerID: "t1"}

	assert.Equal(t, allow, gate.AuthorizeOwned(owner, RoleTeacher, RoleSchoolAdmin, class))
	assert.Equal(t, deny(ReasonInsufficientRole), gate.AuthorizeOwned(colleague, RoleTeacher, RoleSchoolAdmin, class))
	assert.Equal(t, allow, gate.AuthorizeOwned(schoolAdmin, RoleTeacher, RoleSchoolAdmin, class))
	assert.Equal(t, deny(ReasonWrongTenant), gate.AuthorizeOwned(otherAdmin, RoleTeacher, RoleSchoolAdmin, class))
}

func TestGate_Metered(t *testing.T) {
	ctx := context.Background()
	gate, store := newGate()
	student := &Principal{ID: "u1", Role: RoleStudent, TenantID: "A", Tier: usage.TierFree}

	// a failing call is free
	boom := errors.New("llm down")
	_, err := gate.Metered(ctx, student, func(context.Context) error { return boom })
	assert.Equal(t, boom, err)
	assert.Equal(t, 0, store.counters["u1"].Daily)

	for i := 0; i < 10; i++ {
		_, err = gate.Metered(ctx, student, func(context.Context) error { return nil })
		require.NoError(t, err)
	}

	var called bool
	_, err = gate.Metered(ctx, student, func(context.Context) error { called = true; return nil })
	dErr, ok := IsDenied(err)
	require.True(t, ok)
	assert.False(t, called, "pre-check must deny before the call")
	assert.Equal(t, ReasonUsageLimitExceeded, dErr.Reason)
	require.NotNil(t, dErr.Usage)
	assert.Equal(t, 10, dErr.Usage.Daily)
	assert.Contains(t, dErr.UpgradePrompt(), "Upgrade to Pro")
	assert.Equal(t, 10, store.counters["u1"].Daily)
}

func TestGate_MeteredQuotaExhaustedDuringCall(t *testing.T) {
	ctx := context.Background()
	gate, store := newGate()
	student := &Principal{ID: "u1", Role: RoleStudent, Tier: usage.TierFree}

	for i := 0; i < 9; i++ {
		_, err := gate.ConsumeUsage(ctx, student)
		require.NoError(t, err)
	}

	_, err := gate.Metered(ctx, student, func(ctx context.Context) error {
		// a concurrent request takes the last use
		_, err := gate.ConsumeUsage(ctx, student)
		return err
	})
	dErr, ok := IsDenied(err)
	require.True(t, ok)
	assert.Equal(t, ReasonUsageLimitExceeded, dErr.Reason)
	assert.Equal(t, 10, store.counters["u1"].Daily)
}

func TestGate_Usage(t *testing.T) {
	gate, _ := newGate()
	_, err := gate.Usage(context.Background(), nil)
	dErr, ok := IsDenied(err)
	require.True(t, ok)
	assert.Equal(t, ReasonNoSession, dErr.Reason)

	r, err := gate.Usage(context.Background(), &Principal{ID: "u1", Tier: usage.TierPro})
	require.NoError(t, err)
	assert.Equal(t, 1000, r.Remaining)
}
