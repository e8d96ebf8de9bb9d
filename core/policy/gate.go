package policy

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/quizzq/backend/core/usage"
)

// Reason explains a denial.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonNoSession          Reason = "no_session"
	ReasonInsufficientRole   Reason = "insufficient_role"
	ReasonWrongTenant        Reason = "wrong_tenant"
	ReasonUsageLimitExceeded Reason = "usage_limit_exceeded"
)

var reasonMessages = map[Reason]string{
	ReasonNoSession:          "user not authenticated",
	ReasonInsufficientRole:   "permission denied",
	ReasonWrongTenant:        "permission denied",
	ReasonUsageLimitExceeded: "usage limit reached",
}

// Decision is the outcome of a gate evaluation.
type Decision struct {
	Allowed bool
	Reason  Reason
}

var allow = Decision{Allowed: true}

func deny(r Reason) Decision { return Decision{Reason: r} }

// Err returns nil when allowed, a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

// DeniedError carries a gate denial up to the transport layer.
type DeniedError struct {
	Reason Reason
	Usage  *usage.Report // set on usage denials
}

func (err DeniedError) Error() string {
	if msg, ok := reasonMessages[err.Reason]; ok {
		return msg
	}
	return "permission denied"
}

// UpgradePrompt tells a principal who hit their cap how to get more.
func (err DeniedError) UpgradePrompt() string {
	if err.Usage == nil {
		return ""
	}
	switch err.Usage.Tier {
	case usage.TierPro:
		return fmt.Sprintf(
			"You have used all %d AI requests of your Pro plan this month. Upgrade to Forever for unlimited access.",
			err.Usage.Limit.Max)
	default:
		return fmt.Sprintf(
			"You have used all %d free AI requests for today. Upgrade to Pro for more.",
			err.Usage.Limit.Max)
	}
}

// IsDenied returns the *DeniedError err wraps, if any.
func IsDenied(err error) (*DeniedError, bool) {
	dErr, ok := errors.Cause(err).(*DeniedError)
	return dErr, ok
}

// Gate is the single entry point for access decisions.
type Gate struct {
	meter *usage.Meter
}

func NewGate(meter *usage.Meter) *Gate {
	return &Gate{meter: meter}
}

// Authorize checks that p is authenticated, holds at least the required role and,
// when a resource tenant is given, belongs to that tenant.
func (g *Gate) Authorize(p *Principal, required Role, tenantID ...string) Decision {
	if p == nil || p.ID == "" {
		return deny(ReasonNoSession)
	}
	if !p.Role.IsAuthorized(required) {
		return deny(ReasonInsufficientRole)
	}
	if len(tenantID) > 0 && !CanAccessTenant(*p, tenantID[0]) {
		return deny(ReasonWrongTenant)
	}
	return allow
}

// AuthorizeOwned lets through the owner of scope holding the required role, and anybody of the
// scope's tenant holding the elevated role.
func (g *Gate) AuthorizeOwned(p *Principal, required, elevated Role, scope Scope) Decision {
	if d := g.Authorize(p, required, scope.TenantID); !d.Allowed {
		return d
	}
	if p.Role.IsAuthorized(elevated) || scope.IsOwner(*p) {
		return allow
	}
	return deny(ReasonInsufficientRole)
}

// CheckUsage denies when p has no AI usage left. It mutates nothing.
func (g *Gate) CheckUsage(ctx context.Context, p *Principal) (usage.Report, error) {
	if p == nil || p.ID == "" {
		return usage.Report{}, deny(ReasonNoSession).Err()
	}
	r, err := g.meter.Check(ctx, p.ID, p.Tier)
	if err != nil {
		if errors.Cause(err) == usage.ErrLimitExceeded {
			return r, &DeniedError{Reason: ReasonUsageLimitExceeded, Usage: &r}
		}
		return r, errors.Wrap(err, "checking usage")
	}
	return r, nil
}

// ConsumeUsage atomically records one AI use for p, denying when the tier limit is reached.
func (g *Gate) ConsumeUsage(ctx context.Context, p *Principal) (usage.Report, error) {
	if p == nil || p.ID == "" {
		return usage.Report{}, deny(ReasonNoSession).Err()
	}
	r, err := g.meter.Consume(ctx, p.ID, p.Tier)
	if err != nil {
		if errors.Cause(err) == usage.ErrLimitExceeded {
			return r, &DeniedError{Reason: ReasonUsageLimitExceeded, Usage: &r}
		}
		return r, errors.Wrap(err, "consuming usage")
	}
	return r, nil
}

// Metered runs fn on behalf of p and charges one use once fn succeeds.
// A failing fn costs nothing. If the quota ran out while fn was running, the use is denied
// and the caller must discard what fn produced.
func (g *Gate) Metered(ctx context.Context, p *Principal, fn func(ctx context.Context) error) (usage.Report, error) {
	if _, err := g.CheckUsage(ctx, p); err != nil {
		return usage.Report{}, err
	}
	if err := fn(ctx); err != nil {
		return usage.Report{}, err
	}
	return g.ConsumeUsage(ctx, p)
}

// Usage reports p's current usage.
func (g *Gate) Usage(ctx context.Context, p *Principal) (usage.Report, error) {
	if p == nil || p.ID == "" {
		return usage.Report{}, deny(ReasonNoSession).Err()
	}
	return g.meter.Report(ctx, p.ID, p.Tier)
}
