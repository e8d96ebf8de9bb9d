package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateSchool(_ context.Context, s school.School) (school.School, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s.ID = uuid.New().String()
	repo.db.schools[s.ID] = &s
	return s, nil
}

func (repo *schoolRepository) QuerySchools(_ context.Context, filter *school.QueryFilter, ordering []core.DBOrdering) ([]school.School, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var ids map[string]bool
	if filter != nil && filter.IDs != nil {
		ids = make(map[string]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}

	schools := make([]school.School, 0, len(repo.db.schools))
	for _, s := range repo.db.schools {
		if filter != nil {
			if filter.Search != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(filter.Search)) {
				continue
			}
			if filter.IsActive != nil && s.IsActive != *filter.IsActive {
				continue
			}
			if ids != nil && !ids[s.ID] {
				continue
			}
		}
		schools = append(schools, *s)
	}

	desc := false
	for _, ord := range ordering {
		if ord.Field == "name" {
			desc = !ord.Ascending
			break
		}
	}
	sort.Slice(schools, func(i, j int) bool {
		if schools[i].Name == schools[j].Name {
			return schools[i].ID < schools[j].ID
		}
		return (schools[i].Name < schools[j].Name) != desc
	})
	return schools, nil
}

func (repo *schoolRepository) GetSchool(_ context.Context, id string) (school.School, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.schools[id]; ok {
		return *s, nil
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) UpdateSchool(_ context.Context, s school.School) (school.School, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.schools[s.ID]
	if !ok {
		return school.School{}, school.ErrNotFound
	}
	s.CreatedAt = orig.CreatedAt
	repo.db.schools[s.ID] = &s
	return s, nil
}

func (repo *schoolRepository) DeleteSchool(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.schools[id]; !ok {
		return school.ErrNotFound
	}
	for cid, c := range repo.db.classes {
		if c.SchoolID == id {
			delete(repo.db.classes, cid)
		}
	}
	now := time.Now().UTC()
	for _, usr := range repo.db.users {
		if usr.SchoolID == id {
			usr.SchoolID = ""
			usr.UpdatedAt = now
		}
	}
	delete(repo.db.schools, id)
	return nil
}

func (repo *schoolRepository) CreateClass(_ context.Context, c school.Class) (school.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.schools[c.SchoolID]; !ok {
		return school.Class{}, school.ErrNotFound
	}
	c.ID = uuid.New().String()
	repo.db.classes[c.ID] = &c
	return c, nil
}

func (repo *schoolRepository) QueryClasses(_ context.Context, schoolID string) ([]school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	classes := make([]school.Class, 0)
	for _, c := range repo.db.classes {
		if c.SchoolID == schoolID {
			classes = append(classes, *c)
		}
	}
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].Name == classes[j].Name {
			return classes[i].ID < classes[j].ID
		}
		return classes[i].Name < classes[j].Name
	})
	return classes, nil
}

func (repo *schoolRepository) GetClass(_ context.Context, schoolID, id string) (school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.classes[id]; ok && c.SchoolID == schoolID {
		return *c, nil
	}
	return school.Class{}, school.ErrClassNotFound
}

func (repo *schoolRepository) DeleteClass(_ context.Context, schoolID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if c, ok := repo.db.classes[id]; !ok || c.SchoolID != schoolID {
		return school.ErrClassNotFound
	}
	delete(repo.db.classes, id)
	return nil
}
