package usage

import "time"

// Period is the calendar period a limit is counted over.
type Period string

const (
	PeriodNone  Period = ""
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// Counter is the persisted usage state of one principal.
type Counter struct {
	Daily     int       `json:"daily_usage"`
	Monthly   int       `json:"monthly_usage"`
	Lifetime  int64     `json:"lifetime_usage"`
	LastReset time.Time `json:"last_usage_reset"` // zero when never used
}

// Window holds the calendar boundaries of `Now` in the business timezone, expressed in UTC.
type Window struct {
	Now        time.Time
	DayStart   time.Time
	DayEnd     time.Time // exclusive
	MonthStart time.Time
	MonthEnd   time.Time // exclusive
}

// NewWindow computes the day and month containing now, in loc.
func NewWindow(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return Window{
		Now:        now.UTC(),
		DayStart:   dayStart.UTC(),
		DayEnd:     dayStart.AddDate(0, 0, 1).UTC(),
		MonthStart: monthStart.UTC(),
		MonthEnd:   monthStart.AddDate(0, 1, 0).UTC(),
	}
}

func within(t, start, end time.Time) bool {
	return !t.IsZero() && !t.Before(start) && t.Before(end)
}

func (w Window) SameDay(t time.Time) bool   { return within(t, w.DayStart, w.DayEnd) }
func (w Window) SameMonth(t time.Time) bool { return within(t, w.MonthStart, w.MonthEnd) }

// Normalize applies the calendar resets due in w: the daily count restarts on a new day,
// the monthly count on a new month. Lifetime is never touched.
func (c Counter) Normalize(w Window) Counter {
	if !w.SameDay(c.LastReset) {
		c.Daily = 0
	}
	if !w.SameMonth(c.LastReset) {
		c.Monthly = 0
	}
	return c
}

// Increment records one use at w.Now. c must be normalized for w.
func (c Counter) Increment(w Window) Counter {
	c.Daily++
	c.Monthly++
	c.Lifetime++
	c.LastReset = w.Now
	return c
}

// Limit is the cap a tier enforces. A limit with PeriodNone is unlimited.
type Limit struct {
	Period Period `json:"period,omitempty"`
	Max    int    `json:"max,omitempty"`
}

func (l Limit) Unlimited() bool { return l.Period == PeriodNone }

// Used returns the part of the normalized counter the limit applies to.
func (l Limit) Used(c Counter) int {
	switch l.Period {
	case PeriodDay:
		return c.Daily
	case PeriodMonth:
		return c.Monthly
	}
	return 0
}

// Exceeded reports whether one more use would go over the limit. c must be normalized.
func (l Limit) Exceeded(c Counter) bool {
	if l.Unlimited() {
		return false
	}
	return l.Used(c) >= l.Max
}

// Remaining returns the uses left, or -1 when unlimited.
func (l Limit) Remaining(c Counter) int {
	if l.Unlimited() {
		return -1
	}
	if rem := l.Max - l.Used(c); rem > 0 {
		return rem
	}
	return 0
}

// ResetAt returns when the limit's period next restarts, or the zero time when unlimited.
func (l Limit) ResetAt(w Window) time.Time {
	switch l.Period {
	case PeriodDay:
		return w.DayEnd
	case PeriodMonth:
		return w.MonthEnd
	}
	return time.Time{}
}

// Policy binds each tier to its limit.
type Policy struct {
	FreeDailyLimit  int
	ProMonthlyLimit int
}

var DefaultPolicy = Policy{FreeDailyLimit: 10, ProMonthlyLimit: 1000}

func (p Policy) LimitFor(tier Tier) Limit {
	switch tier {
	case TierForever:
		return Limit{}
	case TierPro:
		return Limit{Period: PeriodMonth, Max: p.ProMonthlyLimit}
	default:
		return Limit{Period: PeriodDay, Max: p.FreeDailyLimit}
	}
}
