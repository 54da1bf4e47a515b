package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/dashboard"
	"github.com/trezcool/shule/core/preference"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/testutil"
)

func Test_dashboardApi(t *testing.T) {
	env := setup(t)
	main := testutil.CreateBranch(t, env.branchRepo, "Main", "MAIN")
	annex := testutil.CreateBranch(t, env.branchRepo, "Annex", "ANX")

	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateBranchUser(t, env.usrRepo, main.ID, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	parent := testutil.CreateUser(t, env.usrRepo, "Parent", "parent", "parent@test.cd", "", []string{user.RoleParent}, true)

	testutil.CreateStudent(t, env.studentRepo, main.ID, "M-001", "Ada", "Doe", "P1", testutil.WithGuardian("Parent", parent.Email, parent.ID))
	testutil.CreateStudent(t, env.studentRepo, main.ID, "M-002", "Bob", "Doe", "P2")
	testutil.CreateStudent(t, env.studentRepo, annex.ID, "A-001", "Cy", "Roe", "P1", testutil.WithStatus(student.StatusGraduated))

	adminToken := getToken(t, admin)

	widget := func(t *testing.T, path, token string, dest interface{}) {
		t.Helper()
		rec := env.do(t, httpTest{path: path, token: token, wantCode: http.StatusOK})
		var data dashboard.Data
		unmarshal(t, rec, &data)
		require.NoError(t, json.Unmarshal(data.Data, dest))
	}

	t.Run("layout", func(t *testing.T) {
		rec := env.do(t, httpTest{path: "/v1/dashboard/widgets", token: getToken(t, teacher), wantCode: http.StatusOK})
		var layout dashboard.Layout
		unmarshal(t, rec, &layout)
		assert.Equal(t, user.DashboardTeacher, layout.Role)
		assert.Len(t, layout.Widgets, 3)
		assert.Equal(t, dashboard.WidgetHomeworkGrading, layout.Widgets[0].Name)

		prefs := preference.DashboardPreferences{Widgets: []preference.WidgetPref{
			{Name: dashboard.WidgetExamPerformance, Visible: true, Position: 0},
			{Name: dashboard.WidgetStudentCount, Visible: false, Position: 1},
		}}
		env.do(t, httpTest{
			method: http.MethodPut, path: "/v1/preferences/" + preference.DashboardKey(user.DashboardAdmin),
			body: marshalObj(t, prefs), token: adminToken, wantCode: http.StatusOK,
		})
		rec = env.do(t, httpTest{path: "/v1/dashboard/widgets", token: adminToken, wantCode: http.StatusOK})
		unmarshal(t, rec, &layout)
		assert.Equal(t, user.DashboardAdmin, layout.Role)
		require.Len(t, layout.Widgets, 5)
		assert.Equal(t, dashboard.WidgetExamPerformance, layout.Widgets[0].Name)
		for _, w := range layout.Widgets {
			assert.NotEqual(t, dashboard.WidgetStudentCount, w.Name)
		}
	})

	t.Run("widget access", func(t *testing.T) {
		env.do(t, httpTest{path: "/v1/dashboard/widgets/nope", token: adminToken, wantCode: http.StatusNotFound})
		env.do(t, httpTest{
			path: "/v1/dashboard/widgets/" + dashboard.WidgetStudentCount, token: getToken(t, teacher), wantCode: http.StatusForbidden,
		})
		env.do(t, httpTest{
			path: "/v1/dashboard/widgets/" + dashboard.WidgetPaymentSummary, token: getToken(t, parent), wantCode: http.StatusForbidden,
		})
	})

	t.Run("student count", func(t *testing.T) {
		path := "/v1/dashboard/widgets/" + dashboard.WidgetStudentCount

		var sc dashboard.StudentCount
		widget(t, path, adminToken, &sc)
		assert.Equal(t, 3, sc.Total)
		assert.Equal(t, 2, sc.Active)
		assert.Equal(t, 1, sc.ByStatus[student.StatusGraduated])
		assert.Equal(t, map[string]int{"P1": 1, "P2": 1}, sc.ByClass)

		widget(t, path+"?branch_id="+annex.ID, adminToken, &sc)
		assert.Equal(t, 1, sc.Total)
		assert.Equal(t, 0, sc.Active)

		// served from cache until a mutation goes through the API
		testutil.CreateStudent(t, env.studentRepo, main.ID, "M-003", "Dan", "Doe", "P2")
		widget(t, path, adminToken, &sc)
		assert.Equal(t, 3, sc.Total)

		env.do(t, httpTest{
			method: http.MethodPost, path: "/v1/branches", token: adminToken, wantCode: http.StatusCreated,
			body: marshalObj(t, map[string]string{"name": "Hill", "code": "HIL"}),
		})
		widget(t, path, adminToken, &sc)
		assert.Equal(t, 4, sc.Total)
	})

	t.Run("my results", func(t *testing.T) {
		var results []dashboard.StudentResults
		widget(t, "/v1/dashboard/widgets/"+dashboard.WidgetMyResults, getToken(t, parent), &results)
		require.Len(t, results, 1)
		assert.Equal(t, "Ada Doe", results[0].StudentName)
		assert.Empty(t, results[0].Results)
	})
}
