// Package sqlxrepos implements the repositories on PostgreSQL through sqlx.
package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/quizzq/backend/core"
)

// selectInto runs query on exec and scans every row into dest, a pointer to a slice of structs.
func selectInto(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	return sqlx.StructScan(rows, dest)
}

// where joins conds with AND and expands slice args, returning a postgres query.
func where(base string, conds []string, args []interface{}, suffix ...string) (string, []interface{}, error) {
	q := base
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	if len(suffix) > 0 {
		q += " " + strings.Join(suffix, " ")
	}
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.DOLLAR, q), args, nil
}

// orderBy renders ordering as an ORDER BY clause, keeping only the fields in allowed.
// allowed maps API field names to column names.
func orderBy(ordering []core.DBOrdering, allowed map[string]string, fallback string) string {
	terms := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		terms = append(terms, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(terms) == 0 {
		return "ORDER BY " + fallback
	}
	return "ORDER BY " + strings.Join(terms, ", ")
}
