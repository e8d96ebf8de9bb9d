package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/school"
	"github.com/quizzq/backend/core/user"
	testutil "github.com/quizzq/backend/tests"
)

func Test_schoolApi(t *testing.T) {
	a := setup(t)
	w := seed(t, a)
	rootToken := a.getToken(t, w.superadmin)
	adminToken := a.getToken(t, w.adminA)
	schoolPath := "/v1/schools/" + w.schoolA.ID

	runHTTPTests(t, a, []httpTest{
		{name: "auth required", path: "/v1/schools", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "superadmin lists all", path: "/v1/schools?ordering=name", token: rootToken, wantCode: http.StatusOK, wantData: marchallList(t, w.schoolB, w.schoolA)},
		{name: "others list their own", path: "/v1/schools", token: a.getToken(t, w.studentA), wantCode: http.StatusOK, wantData: marchallList(t, w.schoolA)},
		{name: "school-less member lists none", path: "/v1/schools", token: a.getToken(t, w.member), wantCode: http.StatusOK, wantData: marchallList(t)},
		{name: "own school", path: schoolPath, token: a.getToken(t, w.studentA), wantCode: http.StatusOK, wantData: marchallObj(t, w.schoolA)},
		{
			name: "another school", path: schoolPath, token: a.getToken(t, w.studentB),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "unknown school", path: "/v1/schools/ghost", token: rootToken, wantCode: http.StatusNotFound},
		{
			name: "only superadmins create", method: http.MethodPost, path: "/v1/schools", token: adminToken,
			body: marchallObj(t, map[string]string{"name": "Institut Gombe"}), wantCode: http.StatusForbidden,
		},
		{
			name: "name required", method: http.MethodPost, path: "/v1/schools", token: rootToken,
			body: marchallObj(t, map[string]string{"name": "  "}), wantCode: http.StatusBadRequest,
		},
		{
			name: "teachers cannot rename", method: http.MethodPut, path: schoolPath, token: a.getToken(t, w.teacherA),
			body: marchallObj(t, map[string]string{"name": "Lycée X"}), wantCode: http.StatusForbidden,
		},
		{
			name: "school admins cannot deactivate", method: http.MethodPut, path: schoolPath, token: adminToken,
			body: marchallObj(t, map[string]bool{"is_active": false}), wantCode: http.StatusForbidden,
		},
		{name: "only superadmins delete", method: http.MethodDelete, path: schoolPath, token: adminToken, wantCode: http.StatusForbidden},
	})

	t.Run("create", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/v1/schools", rootToken, marchallObj(t, map[string]string{"name": " Institut Gombe "}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var s school.School
		unmarshal(t, rec, &s)
		assert.Equal(t, "Institut Gombe", s.Name)
		assert.True(t, s.IsActive)
	})

	t.Run("school admin renames", func(t *testing.T) {
		rec := a.do(http.MethodPut, schoolPath, adminToken, marchallObj(t, map[string]string{"name": "Lycée Wima II"}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var s school.School
		unmarshal(t, rec, &s)
		assert.Equal(t, "Lycée Wima II", s.Name)
	})

	t.Run("delete detaches users", func(t *testing.T) {
		testutil.CreateClass(t, a.schoolRepo, w.schoolB.ID, "", "6e B")
		rec := a.do(http.MethodDelete, "/v1/schools/"+w.schoolB.ID, rootToken)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		usr, err := a.usrRepo.GetUser(context.Background(), user.GetFilter{ID: w.studentB.ID})
		require.NoError(t, err)
		assert.Empty(t, usr.SchoolID)
		classes, err := a.schoolRepo.QueryClasses(context.Background(), w.schoolB.ID)
		require.NoError(t, err)
		assert.Empty(t, classes)
	})
}

func Test_schoolApi_classes(t *testing.T) {
	a := setup(t)
	w := seed(t, a)
	classesPath := "/v1/schools/" + w.schoolA.ID + "/classes"
	teacherToken := a.getToken(t, w.teacherA)
	otherTeacher := testutil.CreateUser(t, a.usrRepo, testutil.UserFixture{
		Name: "Teacher A2", Username: "teachera2", Role: policy.RoleTeacher, SchoolID: w.schoolA.ID,
	})
	teacherB := testutil.CreateUser(t, a.usrRepo, testutil.UserFixture{
		Name: "Teacher B", Username: "teacherb", Role: policy.RoleTeacher, SchoolID: w.schoolB.ID,
	})

	var class school.Class
	t.Run("a teacher opens a class for themselves", func(t *testing.T) {
		rec := a.do(http.MethodPost, classesPath, teacherToken, marchallObj(t, map[string]string{"name": "6e A"}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &class)
		assert.Equal(t, w.teacherA.ID, class.TeacherID)
		assert.Equal(t, w.schoolA.ID, class.SchoolID)
	})

	otherClass := testutil.CreateClass(t, a.schoolRepo, w.schoolA.ID, otherTeacher.ID, "5e A")
	classPath := func(c school.Class) string { return classesPath + "/" + c.ID }

	runHTTPTests(t, a, []httpTest{
		{
			name: "students cannot open classes", method: http.MethodPost, path: classesPath, token: a.getToken(t, w.studentA),
			body: marchallObj(t, map[string]string{"name": "4e A"}), wantCode: http.StatusForbidden,
		},
		{
			name: "teachers do not open classes for others", method: http.MethodPost, path: classesPath, token: teacherToken,
			body: marchallObj(t, map[string]string{"name": "4e A", "teacher_id": otherTeacher.ID}), wantCode: http.StatusForbidden,
		},
		{
			name: "teacher of another school", method: http.MethodPost, path: classesPath, token: a.getToken(t, w.adminA),
			body: marchallObj(t, map[string]string{"name": "4e A", "teacher_id": teacherB.ID}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"teacher_id": "must be a teacher of this school"}),
		},
		{
			name: "students list classes", path: classesPath, token: a.getToken(t, w.studentA),
			wantCode: http.StatusOK, wantData: marchallList(t, otherClass, class),
		},
		{name: "members do not", path: classesPath, token: a.getToken(t, w.member), wantCode: http.StatusForbidden},
		{name: "nor other schools", path: classesPath, token: a.getToken(t, w.studentB), wantCode: http.StatusForbidden},
		{
			name: "a teacher cannot delete another's class", method: http.MethodDelete, path: classPath(otherClass), token: teacherToken,
			wantCode: http.StatusForbidden,
		},
		{name: "unknown class", method: http.MethodDelete, path: classesPath + "/ghost", token: teacherToken, wantCode: http.StatusNotFound},
		{name: "the owner deletes their class", method: http.MethodDelete, path: classPath(class), token: teacherToken, wantCode: http.StatusNoContent},
		{name: "a school admin deletes any class", method: http.MethodDelete, path: classPath(otherClass), token: a.getToken(t, w.adminA), wantCode: http.StatusNoContent},
	})
}
