package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/dashboard"
	"github.com/trezcool/shule/core/preference"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/testutil"
)

func Test_preferenceApi(t *testing.T) {
	env := setup(t)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	other := testutil.CreateUser(t, env.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleTeacher}, true)
	token := getToken(t, teacher)

	t.Run("set & get", func(t *testing.T) {
		tests := []httpTest{
			{name: "invalid json", method: http.MethodPut, path: "/v1/preferences/theme", body: []byte(`{dark`), wantCode: http.StatusBadRequest,
				wantData: marshalObj(t, map[string]string{"value": preference.ErrInvalidValue.Error()})},
			{name: "empty value", method: http.MethodPut, path: "/v1/preferences/theme", wantCode: http.StatusBadRequest},
			{name: "invalid key", method: http.MethodPut, path: "/v1/preferences/bad%20key", body: []byte(`1`), wantCode: http.StatusBadRequest,
				wantData: marshalObj(t, map[string]string{"key": preference.ErrInvalidKey.Error()})},
			{name: "reserved key", method: http.MethodPut, path: "/v1/preferences/" + preference.KeySystemSettings, body: []byte(`{}`), wantCode: http.StatusBadRequest},
			{name: "bad selected branch", method: http.MethodPut, path: "/v1/preferences/" + preference.KeySelectedBranch, body: []byte(`42`), wantCode: http.StatusBadRequest},
			{name: "ok", method: http.MethodPut, path: "/v1/preferences/theme", body: []byte(` {"mode": "dark"} `), wantCode: http.StatusOK,
				wantData: []byte(`{"key": "theme", "value": {"mode": "dark"}}`)},
			{name: "get", path: "/v1/preferences/theme", wantCode: http.StatusOK, wantData: []byte(`{"key": "theme", "value": {"mode": "dark"}}`)},
			{name: "missing", path: "/v1/preferences/lang", wantCode: http.StatusNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.token = token
				env.do(t, tt)
			})
		}

		// preferences are per user
		env.do(t, httpTest{path: "/v1/preferences/theme", token: getToken(t, other), wantCode: http.StatusNotFound})
	})

	t.Run("dashboard", func(t *testing.T) {
		key := preference.DashboardKey(user.DashboardTeacher)

		// the role defaults until a layout is stored
		rec := env.do(t, httpTest{path: "/v1/preferences/" + key, token: token, wantCode: http.StatusOK})
		var pref struct {
			Key   string                          `json:"key"`
			Value preference.DashboardPreferences `json:"value"`
		}
		unmarshal(t, rec, &pref)
		assert.Equal(t, key, pref.Key)
		require.Len(t, pref.Value.Widgets, 3)
		assert.Equal(t, preference.WidgetPref{Name: dashboard.WidgetHomeworkGrading, Visible: true, Position: 0}, pref.Value.Widgets[0])

		env.do(t, httpTest{
			method: http.MethodPut, path: "/v1/preferences/" + key, token: token, wantCode: http.StatusBadRequest,
			body:     []byte(`{"widgets": [{"name": "` + dashboard.WidgetStudentCount + `", "visible": true, "position": 0}]}`),
			wantData: marshalObj(t, map[string]string{"widgets": preference.ErrUnknownWidget.Error() + " " + dashboard.WidgetStudentCount}),
		})
		env.do(t, httpTest{
			method: http.MethodPut, path: "/v1/preferences/" + preference.DashboardKey("janitor"), token: token, wantCode: http.StatusBadRequest,
			body: []byte(`{"widgets": []}`),
		})

		env.do(t, httpTest{
			method: http.MethodPut, path: "/v1/preferences/" + key, token: token, wantCode: http.StatusOK,
			body: []byte(`{"widgets": [{"name": "` + dashboard.WidgetExamPerformance + `", "visible": false, "position": 4}]}`),
		})
		rec = env.do(t, httpTest{path: "/v1/preferences/" + key, token: token, wantCode: http.StatusOK})
		unmarshal(t, rec, &pref)
		assert.Equal(t, []preference.WidgetPref{
			{Name: dashboard.WidgetExamPerformance, Visible: false, Position: 0},
			{Name: dashboard.WidgetHomeworkGrading, Visible: true, Position: 1},
			{Name: dashboard.WidgetAttendanceToday, Visible: true, Position: 2},
		}, pref.Value.Widgets)
	})

	t.Run("query & delete", func(t *testing.T) {
		rec := env.do(t, httpTest{path: "/v1/preferences", token: token, wantCode: http.StatusOK})
		var prefs []preference.Preference
		unmarshal(t, rec, &prefs)
		require.Len(t, prefs, 2)
		assert.Equal(t, preference.DashboardKey(user.DashboardTeacher), prefs[0].Key)
		assert.Equal(t, "theme", prefs[1].Key)

		env.do(t, httpTest{method: http.MethodDelete, path: "/v1/preferences/theme", token: token, wantCode: http.StatusNoContent})
		env.do(t, httpTest{path: "/v1/preferences/theme", token: token, wantCode: http.StatusNotFound})
		env.do(t, httpTest{method: http.MethodDelete, path: "/v1/preferences/theme", token: token, wantCode: http.StatusNotFound})
	})

	t.Run("system settings", func(t *testing.T) {
		admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
		path := "/v1/settings/system"

		rec := env.do(t, httpTest{path: path, token: token, wantCode: http.StatusOK})
		var settings preference.SystemSettings
		unmarshal(t, rec, &settings)
		assert.Equal(t, preference.DefaultSystemSettings(), settings)
		assert.Equal(t, core.Conf.PassMarkPercent, settings.PassMarkPercent)

		want := preference.SystemSettings{
			SchoolName: " Shule Academy ", Currency: "cdf", AcademicYear: "2024-2025", Term: "Term 1",
			PassMarkPercent: 60, Timezone: "UTC",
		}
		env.do(t, httpTest{method: http.MethodPut, path: path, body: marshalObj(t, want), token: token, wantCode: http.StatusForbidden})

		bad := want
		bad.PassMarkPercent = 120
		env.do(t, httpTest{method: http.MethodPut, path: path, body: marshalObj(t, bad), token: getToken(t, admin), wantCode: http.StatusBadRequest})
		bad = want
		bad.Timezone = "Mars/Olympus"
		env.do(t, httpTest{method: http.MethodPut, path: path, body: marshalObj(t, bad), token: getToken(t, admin), wantCode: http.StatusBadRequest})

		env.do(t, httpTest{method: http.MethodPut, path: path, body: marshalObj(t, want), token: getToken(t, admin), wantCode: http.StatusOK})
		rec = env.do(t, httpTest{path: path, token: token, wantCode: http.StatusOK})
		unmarshal(t, rec, &settings)
		assert.Equal(t, "Shule Academy", settings.SchoolName)
		assert.Equal(t, "CDF", settings.Currency)
		assert.Equal(t, 60.0, settings.PassMarkPercent)
	})
}
