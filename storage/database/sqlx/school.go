package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/school"
)

const (
	schoolColumns = "id, name, is_active, created_at, updated_at"
	classColumns  = "id, school_id, teacher_id, name, created_at"
)

var schoolOrderingFields = map[string]string{
	"name":       "name",
	"is_active":  "is_active",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

type schoolRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row schoolRow) school() school.School {
	return school.School{
		ID:        row.ID,
		Name:      row.Name,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type classRow struct {
	ID        string      `db:"id"`
	SchoolID  string      `db:"school_id"`
	TeacherID null.String `db:"teacher_id"`
	Name      string      `db:"name"`
	CreatedAt time.Time   `db:"created_at"`
}

func (row classRow) class() school.Class {
	return school.Class{
		ID:        row.ID,
		SchoolID:  row.SchoolID,
		TeacherID: row.TeacherID.String,
		Name:      row.Name,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

func isUUID(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

type schoolRepository struct {
	db core.DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db core.DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) oneSchool(ctx context.Context, query string, args ...interface{}) (school.School, error) {
	var rows []schoolRow
	if err := selectInto(ctx, repo.db, &rows, query, args...); err != nil {
		return school.School{}, err
	}
	if len(rows) == 0 {
		return school.School{}, school.ErrNotFound
	}
	return rows[0].school(), nil
}

func (repo *schoolRepository) oneClass(ctx context.Context, query string, args ...interface{}) (school.Class, error) {
	var rows []classRow
	if err := selectInto(ctx, repo.db, &rows, query, args...); err != nil {
		return school.Class{}, err
	}
	if len(rows) == 0 {
		return school.Class{}, school.ErrClassNotFound
	}
	return rows[0].class(), nil
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, s school.School) (school.School, error) {
	s.ID = uuid.New().String()
	q := `INSERT INTO school (` + schoolColumns + `) VALUES ($1, $2, $3, $4, $5) RETURNING ` + schoolColumns
	created, err := repo.oneSchool(ctx, q, s.ID, s.Name, s.IsActive, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return created, nil
}

func (repo *schoolRepository) QuerySchools(ctx context.Context, filter *school.QueryFilter, ordering []core.DBOrdering) ([]school.School, error) {
	var conds []string
	var args []interface{}

	if filter != nil {
		if filter.Search != "" {
			conds = append(conds, "name ILIKE ?")
			args = append(args, "%"+filter.Search+"%")
		}
		if filter.IsActive != nil {
			conds = append(conds, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
		if filter.IDs != nil {
			if len(filter.IDs) == 0 || !isUUID(filter.IDs...) {
				return []school.School{}, nil
			}
			conds = append(conds, "id IN (?)")
			args = append(args, filter.IDs)
		}
	}

	q, args, err := where(`SELECT `+schoolColumns+` FROM school`, conds, args, orderBy(ordering, schoolOrderingFields, "name ASC"))
	if err != nil {
		return nil, errors.Wrap(err, "building schools query")
	}
	var rows []schoolRow
	if err = selectInto(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	schools := make([]school.School, 0, len(rows))
	for _, row := range rows {
		schools = append(schools, row.school())
	}
	return schools, nil
}

func (repo *schoolRepository) GetSchool(ctx context.Context, id string) (school.School, error) {
	if !isUUID(id) {
		return school.School{}, school.ErrNotFound
	}
	s, err := repo.oneSchool(ctx, `SELECT `+schoolColumns+` FROM school WHERE id = $1`, id)
	if err != nil && err != school.ErrNotFound {
		return school.School{}, errors.Wrap(err, "finding school")
	}
	return s, err
}

func (repo *schoolRepository) UpdateSchool(ctx context.Context, s school.School) (school.School, error) {
	if !isUUID(s.ID) {
		return school.School{}, school.ErrNotFound
	}
	q := `UPDATE school SET name = $2, is_active = $3, updated_at = $4 WHERE id = $1 RETURNING ` + schoolColumns
	updated, err := repo.oneSchool(ctx, q, s.ID, s.Name, s.IsActive, s.UpdatedAt.UTC())
	if err != nil && err != school.ErrNotFound {
		return school.School{}, errors.Wrap(err, "updating school")
	}
	return updated, err
}

func (repo *schoolRepository) DeleteSchool(ctx context.Context, id string) error {
	if !isUUID(id) {
		return school.ErrNotFound
	}
	return core.RunInTx(ctx, repo.db, func(tx core.DBExecutor) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM class WHERE school_id = $1`, id); err != nil {
			return errors.Wrap(err, "deleting classes")
		}
		if _, err := tx.ExecContext(ctx, `UPDATE "user" SET school_id = NULL, updated_at = $2 WHERE school_id = $1`, id, time.Now().UTC()); err != nil {
			return errors.Wrap(err, "detaching users")
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM school WHERE id = $1`, id)
		if err != nil {
			return errors.Wrap(err, "deleting school")
		}
		cnt, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "counting deleted schools")
		}
		if cnt == 0 {
			return school.ErrNotFound
		}
		return nil
	})
}

func (repo *schoolRepository) CreateClass(ctx context.Context, c school.Class) (school.Class, error) {
	c.ID = uuid.New().String()
	q := `INSERT INTO class (` + classColumns + `) VALUES ($1, $2, $3, $4, $5) RETURNING ` + classColumns
	created, err := repo.oneClass(ctx, q, c.ID, c.SchoolID, null.NewString(c.TeacherID, c.TeacherID != ""), c.Name, c.CreatedAt.UTC())
	if err != nil {
		return school.Class{}, errors.Wrap(err, "inserting class")
	}
	return created, nil
}

func (repo *schoolRepository) QueryClasses(ctx context.Context, schoolID string) ([]school.Class, error) {
	if !isUUID(schoolID) {
		return []school.Class{}, nil
	}
	var rows []classRow
	err := selectInto(ctx, repo.db, &rows, `SELECT `+classColumns+` FROM class WHERE school_id = $1 ORDER BY name ASC`, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]school.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.class())
	}
	return classes, nil
}

func (repo *schoolRepository) GetClass(ctx context.Context, schoolID, id string) (school.Class, error) {
	if !isUUID(schoolID, id) {
		return school.Class{}, school.ErrClassNotFound
	}
	c, err := repo.oneClass(ctx, `SELECT `+classColumns+` FROM class WHERE id = $1 AND school_id = $2`, id, schoolID)
	if err != nil && err != school.ErrClassNotFound {
		return school.Class{}, errors.Wrap(err, "finding class")
	}
	return c, err
}

func (repo *schoolRepository) DeleteClass(ctx context.Context, schoolID, id string) error {
	if !isUUID(schoolID, id) {
		return school.ErrClassNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM class WHERE id = $1 AND school_id = $2`, id, schoolID)
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting deleted classes")
	}
	if cnt == 0 {
		return school.ErrClassNotFound
	}
	return nil
}
