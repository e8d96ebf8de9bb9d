package school_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/school"
	inmemdb "github.com/quizzq/backend/storage/database/inmem"
)

func newValidator() *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	return validate
}

func TestService(t *testing.T) {
	ctx := context.Background()
	validate := newValidator()
	svc := school.NewService(inmemdb.NewSchoolRepository(inmemdb.Open()))

	ns := school.NewSchool{Name: "  Lycée Wima "}
	require.NoError(t, ns.Validate(validate))
	wima, err := svc.Create(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, "Lycée Wima", wima.Name)
	assert.True(t, wima.IsActive)

	assert.Error(t, (&school.NewSchool{Name: "   "}).Validate(validate))

	inactive := false
	us := school.UpdateSchool{IsActive: &inactive}
	require.NoError(t, us.Validate(wima, validate))
	wima, err = svc.Update(ctx, wima, us)
	require.NoError(t, err)
	assert.Equal(t, "Lycée Wima", wima.Name, "name is kept when not provided")
	assert.False(t, wima.IsActive)

	boboto, err := svc.Create(ctx, school.NewSchool{Name: "Collège Boboto"})
	require.NoError(t, err)

	schools, err := svc.Query(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []school.School{boboto, wima}, schools)

	schools, err = svc.Query(ctx, &school.QueryFilter{IDs: []string{wima.ID}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []school.School{wima}, schools)

	schools, err = svc.Query(ctx, &school.QueryFilter{IDs: []string{}}, nil)
	require.NoError(t, err)
	assert.Empty(t, schools, "an empty ID list means no school")

	nc := school.NewClass{Name: " 6e A ", TeacherID: "not-a-uuid"}
	assert.Error(t, nc.Validate(validate))
	nc.TeacherID = ""
	require.NoError(t, nc.Validate(validate))
	class, err := svc.CreateClass(ctx, wima.ID, nc)
	require.NoError(t, err)
	assert.Equal(t, "6e A", class.Name)
	assert.Equal(t, wima.ID, class.Scope().TenantID)

	got, err := svc.GetClass(ctx, wima.ID, class.ID)
	require.NoError(t, err)
	assert.Equal(t, class, got)
	require.NoError(t, svc.DeleteClass(ctx, class))

	require.NoError(t, svc.Delete(ctx, wima.ID))
	_, err = svc.GetByID(ctx, wima.ID)
	assert.Equal(t, school.ErrNotFound, err)
}
