package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/quizzq/backend/core/usage"
)

const usageColumns = "daily_usage, monthly_usage, lifetime_usage, last_usage_reset"

type usageRow struct {
	DailyUsage     int       `db:"daily_usage"`
	MonthlyUsage   int       `db:"monthly_usage"`
	LifetimeUsage  int64     `db:"lifetime_usage"`
	LastUsageReset null.Time `db:"last_usage_reset"`
}

func (row usageRow) counter() usage.Counter {
	c := usage.Counter{Daily: row.DailyUsage, Monthly: row.MonthlyUsage, Lifetime: row.LifetimeUsage}
	if row.LastUsageReset.Valid {
		c.LastReset = row.LastUsageReset.Time.UTC()
	}
	return c
}

// counts as of the window: a count last touched in an earlier period is worth 0.
const (
	sameDayDaily     = "(CASE WHEN last_usage_reset >= $2 AND last_usage_reset < $3 THEN daily_usage ELSE 0 END)"
	sameMonthMonthly = "(CASE WHEN last_usage_reset >= $4 AND last_usage_reset < $5 THEN monthly_usage ELSE 0 END)"
)

// consumeQuery normalizes, checks and increments the counters in a single statement,
// so that concurrent consumers are serialized on the row lock.
func consumeQuery(lim usage.Limit) string {
	q := `UPDATE "user" SET
			daily_usage = ` + sameDayDaily + ` + 1,
			monthly_usage = ` + sameMonthMonthly + ` + 1,
			lifetime_usage = lifetime_usage + 1,
			last_usage_reset = $6
		WHERE id = $1`
	switch lim.Period {
	case usage.PeriodDay:
		q += " AND " + sameDayDaily + " < $7"
	case usage.PeriodMonth:
		q += " AND " + sameMonthMonthly + " < $7"
	}
	return q + " RETURNING " + usageColumns
}

func (repo *userRepository) usage(ctx context.Context, query string, args ...interface{}) (usage.Counter, bool, error) {
	var rows []usageRow
	if err := selectInto(ctx, repo.db, &rows, query, args...); err != nil {
		return usage.Counter{}, false, err
	}
	if len(rows) == 0 {
		return usage.Counter{}, false, nil
	}
	return rows[0].counter(), true, nil
}

func (repo *userRepository) GetUsage(ctx context.Context, principalID string) (usage.Counter, error) {
	if _, err := uuid.Parse(principalID); err != nil {
		return usage.Counter{}, usage.ErrPrincipalNotFound
	}
	c, found, err := repo.usage(ctx, `SELECT `+usageColumns+` FROM "user" WHERE id = $1`, principalID)
	if err != nil {
		return usage.Counter{}, errors.Wrap(err, "getting usage")
	}
	if !found {
		return usage.Counter{}, usage.ErrPrincipalNotFound
	}
	return c, nil
}

func (repo *userRepository) ConsumeUsage(ctx context.Context, principalID string, w usage.Window, lim usage.Limit) (usage.Counter, error) {
	if _, err := uuid.Parse(principalID); err != nil {
		return usage.Counter{}, usage.ErrPrincipalNotFound
	}
	args := []interface{}{principalID, w.DayStart, w.DayEnd, w.MonthStart, w.MonthEnd, w.Now}
	if !lim.Unlimited() {
		args = append(args, lim.Max)
	}

	c, found, err := repo.usage(ctx, consumeQuery(lim), args...)
	if err != nil {
		return usage.Counter{}, errors.Wrap(err, "consuming usage")
	}
	if found {
		return c, nil
	}

	// nothing updated: either the limit is reached or there is no such principal
	var exists bool
	err = repo.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM "user" WHERE id = $1)`, principalID).Scan(&exists)
	if err != nil {
		return usage.Counter{}, trapNoRowsErr(err, "checking principal")
	}
	if !exists {
		return usage.Counter{}, usage.ErrPrincipalNotFound
	}
	return usage.Counter{}, usage.ErrLimitExceeded
}

func (repo *userRepository) ResetUsage(ctx context.Context, principalID string, w usage.Window) (usage.Counter, error) {
	if _, err := uuid.Parse(principalID); err != nil {
		return usage.Counter{}, usage.ErrPrincipalNotFound
	}
	q := fmt.Sprintf(`UPDATE "user" SET daily_usage = 0, monthly_usage = 0, last_usage_reset = $2 WHERE id = $1 RETURNING %s`, usageColumns)
	c, found, err := repo.usage(ctx, q, principalID, w.Now)
	if err != nil {
		return usage.Counter{}, errors.Wrap(err, "resetting usage")
	}
	if !found {
		return usage.Counter{}, usage.ErrPrincipalNotFound
	}
	return c, nil
}

// trapNoRowsErr maps "no rows" to usage.ErrPrincipalNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return usage.ErrPrincipalNotFound
	}
	return errors.Wrap(err, msg)
}
