package school

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/quizzq/backend/core"
)

var (
	// errors
	ErrNotFound      = errors.New("school not found")
	ErrClassNotFound = errors.New("class not found")
)

type (
	Repository interface {
		CreateSchool(ctx context.Context, s School) (School, error)
		QuerySchools(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]School, error)
		GetSchool(ctx context.Context, id string) (School, error)
		UpdateSchool(ctx context.Context, s School) (School, error)
		// DeleteSchool deletes the school and its classes and detaches its users, all or nothing.
		DeleteSchool(ctx context.Context, id string) error

		CreateClass(ctx context.Context, c Class) (Class, error)
		QueryClasses(ctx context.Context, schoolID string) ([]Class, error)
		GetClass(ctx context.Context, schoolID, id string) (Class, error)
		DeleteClass(ctx context.Context, schoolID, id string) error
	}

	Service interface {
		Create(ctx context.Context, ns NewSchool) (School, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]School, error)
		GetByID(ctx context.Context, id string) (School, error)
		Update(ctx context.Context, s School, us UpdateSchool) (School, error)
		Delete(ctx context.Context, id string) error

		CreateClass(ctx context.Context, schoolID string, nc NewClass) (Class, error)
		QueryClasses(ctx context.Context, schoolID string) ([]Class, error)
		GetClass(ctx context.Context, schoolID, id string) (Class, error)
		DeleteClass(ctx context.Context, c Class) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, ns NewSchool) (School, error) {
	now := time.Now().UTC()
	return svc.repo.CreateSchool(ctx, School{
		Name:      ns.Name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]School, error) {
	if filter != nil {
		filter.Search = core.CleanString(filter.Search)
		if filter.IDs != nil && len(filter.IDs) == 0 {
			return []School{}, nil
		}
	}
	return svc.repo.QuerySchools(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchool(ctx, core.CleanString(id, true /* lower */))
}

func (svc *service) Update(ctx context.Context, s School, us UpdateSchool) (School, error) {
	s.Name = us.Name
	if us.IsActive != nil {
		s.IsActive = *us.IsActive
	}
	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSchool(ctx, s)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteSchool(ctx, id)
}

func (svc *service) CreateClass(ctx context.Context, schoolID string, nc NewClass) (Class, error) {
	return svc.repo.CreateClass(ctx, Class{
		SchoolID:  schoolID,
		TeacherID: nc.TeacherID,
		Name:      nc.Name,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *service) QueryClasses(ctx context.Context, schoolID string) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, schoolID)
}

func (svc *service) GetClass(ctx context.Context, schoolID, id string) (Class, error) {
	return svc.repo.GetClass(ctx, schoolID, core.CleanString(id, true /* lower */))
}

func (svc *service) DeleteClass(ctx context.Context, c Class) error {
	return svc.repo.DeleteClass(ctx, c.SchoolID, c.ID)
}
