package usage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// errors
	ErrLimitExceeded     = errors.New("usage limit exceeded")
	ErrPrincipalNotFound = errors.New("principal not found")

	nowFunc = time.Now // mockable
)

// Store persists usage counters.
//
// ConsumeUsage must be atomic: normalize the stored counter for w, compare it against lim
// and increment it in one step. When the limit is reached it returns ErrLimitExceeded and
// leaves the counter untouched. Concurrent calls for the same principal must never both pass
// the check on the same pre-increment value.
type Store interface {
	GetUsage(ctx context.Context, principalID string) (Counter, error)
	ConsumeUsage(ctx context.Context, principalID string, w Window, lim Limit) (Counter, error)
	ResetUsage(ctx context.Context, principalID string, w Window) (Counter, error)
}

// Report is the usage state of a principal as seen at a given instant.
type Report struct {
	Tier Tier `json:"subscription_tier"`
	Counter
	Limit     Limit      `json:"limit"`
	Remaining int        `json:"remaining"` // -1 when unlimited
	ResetAt   *time.Time `json:"reset_at,omitempty"`
}

// Meter gates AI feature consumption by subscription tier.
type Meter struct {
	store  Store
	policy Policy
	loc    *time.Location
}

func NewMeter(store Store, policy Policy, loc *time.Location) *Meter {
	if loc == nil {
		loc = time.UTC
	}
	return &Meter{store: store, policy: policy, loc: loc}
}

func (m *Meter) window() Window {
	return NewWindow(nowFunc(), m.loc)
}

func (m *Meter) Limit(tier Tier) Limit {
	return m.policy.LimitFor(tier)
}

func (m *Meter) report(tier Tier, c Counter, w Window) Report {
	lim := m.Limit(tier)
	r := Report{
		Tier:      tier,
		Counter:   c,
		Limit:     lim,
		Remaining: lim.Remaining(c),
	}
	if at := lim.ResetAt(w); !at.IsZero() {
		r.ResetAt = &at
	}
	return r
}

// Report returns the current usage of principalID, with the calendar resets due now already applied.
func (m *Meter) Report(ctx context.Context, principalID string, tier Tier) (Report, error) {
	c, err := m.store.GetUsage(ctx, principalID)
	if err != nil {
		return Report{}, errors.Wrap(err, "getting usage")
	}
	w := m.window()
	return m.report(tier, c.Normalize(w), w), nil
}

// Check returns ErrLimitExceeded when principalID cannot consume one more use. It never mutates.
// A passing Check does not reserve anything: Consume may still fail under concurrency.
func (m *Meter) Check(ctx context.Context, principalID string, tier Tier) (Report, error) {
	r, err := m.Report(ctx, principalID, tier)
	if err != nil {
		return Report{}, err
	}
	if r.Limit.Exceeded(r.Counter) {
		return r, ErrLimitExceeded
	}
	return r, nil
}

// Consume atomically checks the tier limit and records one use.
func (m *Meter) Consume(ctx context.Context, principalID string, tier Tier) (Report, error) {
	w := m.window()
	lim := m.Limit(tier)
	c, err := m.store.ConsumeUsage(ctx, principalID, w, lim)
	if err != nil {
		if errors.Cause(err) == ErrLimitExceeded {
			r, rErr := m.Report(ctx, principalID, tier)
			if rErr != nil {
				return Report{Tier: tier, Limit: lim}, ErrLimitExceeded
			}
			return r, ErrLimitExceeded
		}
		return Report{}, errors.Wrap(err, "consuming usage")
	}
	return m.report(tier, c, w), nil
}

// Reset zeroes the daily and monthly counters of principalID. The lifetime count is kept.
func (m *Meter) Reset(ctx context.Context, principalID string, tier Tier) (Report, error) {
	w := m.window()
	c, err := m.store.ResetUsage(ctx, principalID, w)
	if err != nil {
		return Report{}, errors.Wrap(err, "resetting usage")
	}
	return m.report(tier, c, w), nil
}
