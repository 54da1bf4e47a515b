package echoapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/discipline"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/testutil"
)

func Test_disciplineApi(t *testing.T) {
	env := setup(t)
	main := testutil.CreateBranch(t, env.branchRepo, "Main", "MAIN")
	annex := testutil.CreateBranch(t, env.branchRepo, "Annex", "ANX")

	parent := testutil.CreateUser(t, env.usrRepo, "Parent", "parent", "parent@test.cd", "", []string{user.RoleParent}, true)
	teacher := testutil.CreateBranchUser(t, env.usrRepo, main.ID, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	counselor := testutil.CreateUser(t, env.usrRepo, "Counselor", "counselor", "counselor@test.cd", "", []string{user.RoleAdminCounselor}, true)
	stranger := testutil.CreateUser(t, env.usrRepo, "Stranger", "stranger", "stranger@test.cd", "", []string{user.RoleParent}, true)

	st := testutil.CreateStudent(t, env.studentRepo, main.ID, "M-001", "Ada", "Doe", "P1",
		testutil.WithGuardian("Parent", "parent@test.cd", parent.ID))
	other := testutil.CreateStudent(t, env.studentRepo, annex.ID, "A-001", "Bob", "Roe", "P1")

	teacherToken := getToken(t, teacher)
	counselorToken := getToken(t, counselor)

	var incident discipline.Incident

	t.Run("incidents", func(t *testing.T) {
		newIncident := func(studentID string) []byte {
			return marshalObj(t, discipline.NewIncident{
				StudentID: studentID, Title: "Fight at recess", Category: "Violence", Severity: "Major",
				IncidentDate: core.Today(), NotifyParent: true,
			})
		}

		env.do(t, httpTest{
			method: http.MethodPost, path: "/v1/incidents", body: newIncident(other.ID), token: teacherToken,
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"student_id": discipline.ErrUnknownStudent.Error()}),
		})
		env.do(t, httpTest{
			method: http.MethodPost, path: "/v1/incidents", body: newIncident(st.ID), token: getToken(t, parent),
			wantCode: http.StatusForbidden,
		})

		rec := env.do(t, httpTest{
			method: http.MethodPost, path: "/v1/incidents", body: newIncident(st.ID), token: teacherToken,
			wantCode: http.StatusCreated,
		})
		unmarshal(t, rec, &incident)
		assert.Equal(t, main.ID, incident.BranchID)
		assert.Equal(t, teacher.ID, incident.ReportedBy)
		assert.Equal(t, discipline.IncidentOpen, incident.Status)
		assert.Equal(t, "violence", incident.Category)
		assert.True(t, incident.ParentNotified)

		sent := emailsvc.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "incident_notification", sent[0].TemplateName)
		assert.Equal(t, "parent@test.cd", sent[0].To[0].Address)

		rec = env.do(t, httpTest{
			method: http.MethodPut, path: "/v1/incidents/" + incident.ID, body: []byte(`{"status":"Resolved"}`),
			token: teacherToken, wantCode: http.StatusOK,
		})
		unmarshal(t, rec, &incident)
		assert.Equal(t, discipline.IncidentResolved, incident.Status)
		assert.False(t, incident.ResolvedAt.IsZero())

		rec = env.do(t, httpTest{path: "/v1/incidents?class_name=P1", token: teacherToken, wantCode: http.StatusOK})
		assert.Equal(t, []string{incident.ID}, responseIDs(t, rec))
		env.do(t, httpTest{path: "/v1/incidents?class_name=P6", token: teacherToken, wantCode: http.StatusOK, wantData: []byte(`[]`)})
		env.do(t, httpTest{path: "/v1/incidents/lol", token: teacherToken, wantCode: http.StatusNotFound})
		env.do(t, httpTest{method: http.MethodDelete, path: "/v1/incidents/" + incident.ID, token: teacherToken, wantCode: http.StatusForbidden})
	})

	t.Run("points & rewards", func(t *testing.T) {
		for _, pts := range []int{10, -3} {
			env.do(t, httpTest{
				method: http.MethodPost, path: "/v1/behavior-points", token: teacherToken, wantCode: http.StatusCreated,
				body: marshalObj(t, discipline.NewBehaviorPoint{StudentID: st.ID, Points: pts, Reason: "conduct"}),
			})
		}
		env.do(t, httpTest{
			method: http.MethodPost, path: "/v1/behavior-points", token: teacherToken, wantCode: http.StatusBadRequest,
			body: marshalObj(t, discipline.NewBehaviorPoint{StudentID: st.ID, Reason: "nothing"}),
		})

		reward := marshalObj(t, discipline.NewReward{StudentID: st.ID, Title: "Library pass", Type: "privilege", PointsCost: 5})
		env.do(t, httpTest{method: http.MethodPost, path: "/v1/rewards", body: reward, token: teacherToken, wantCode: http.StatusForbidden})
		env.do(t, httpTest{method: http.MethodPost, path: "/v1/rewards", body: reward, token: counselorToken, wantCode: http.StatusCreated})
		// 10 - 3 - 5 left
		env.do(t, httpTest{
			method: http.MethodPost, path: "/v1/rewards", body: reward, token: counselorToken, wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"points_cost": discipline.ErrNotEnoughPoints.Error()}),
		})
		for _, cost := range []int{101, 150} {
			env.do(t, httpTest{
				method: http.MethodPost, path: "/v1/rewards", token: counselorToken, wantCode: http.StatusBadRequest,
				body: marshalObj(t, discipline.NewReward{StudentID: st.ID, Title: "Trip", Type: "prize", PointsCost: cost}),
			})
		}
	})

	t.Run("contracts & sessions", func(t *testing.T) {
		today := core.Today()
		contract := discipline.NewContract{
			StudentID: st.ID, Title: "Conduct", Goals: []string{"  no fights ", ""},
			StartDate: today, EndDate: today.AddDays(-1),
		}
		env.do(t, httpTest{
			method: http.MethodPost, path: "/v1/contracts", body: marshalObj(t, contract), token: counselorToken,
			wantCode: http.StatusBadRequest,
		})
		contract.EndDate = today.AddDays(30)
		rec := env.do(t, httpTest{
			method: http.MethodPost, path: "/v1/contracts", body: marshalObj(t, contract), token: counselorToken,
			wantCode: http.StatusCreated,
		})
		var c discipline.Contract
		unmarshal(t, rec, &c)
		assert.Equal(t, []string{"no fights"}, c.Goals)
		assert.Equal(t, discipline.ContractActive, c.Status)

		rec = env.do(t, httpTest{
			method: http.MethodPost, path: "/v1/counseling-sessions", token: counselorToken, wantCode: http.StatusCreated,
			body: marshalObj(t, discipline.NewSession{StudentID: st.ID, SessionDate: time.Now().Add(24 * time.Hour), Topic: "Anger"}),
		})
		var sess discipline.CounselingSession
		unmarshal(t, rec, &sess)
		assert.Equal(t, counselor.ID, sess.CounselorID)
		assert.Equal(t, discipline.SessionScheduled, sess.Status)
	})

	t.Run("stats", func(t *testing.T) {
		rec := env.do(t, httpTest{path: "/v1/discipline/stats", token: counselorToken, wantCode: http.StatusOK})
		var stats discipline.Stats
		unmarshal(t, rec, &stats)
		assert.Equal(t, 1, stats.Incidents.Total)
		assert.Equal(t, 1, stats.Incidents.Resolved)
		assert.Equal(t, 10, stats.Points.Positive)
		assert.Equal(t, 2, stats.Points.Net)
		assert.Equal(t, 1, stats.RewardsCount)
		assert.Equal(t, 1, stats.ActiveContracts)
		assert.Equal(t, 1, stats.UpcomingSessions)

		rec = env.do(t, httpTest{path: "/v1/discipline/stats?class_name=P6", token: counselorToken, wantCode: http.StatusOK})
		stats = discipline.Stats{}
		unmarshal(t, rec, &stats)
		assert.Zero(t, stats.Incidents.Total)
		assert.Zero(t, stats.Points.Net)
	})

	t.Run("student summary", func(t *testing.T) {
		path := "/v1/students/" + st.ID + "/discipline"
		env.do(t, httpTest{path: path, token: getToken(t, stranger), wantCode: http.StatusNotFound})

		rec := env.do(t, httpTest{path: path, token: getToken(t, parent), wantCode: http.StatusOK})
		var summary discipline.StudentSummary
		unmarshal(t, rec, &summary)
		assert.Equal(t, st.ID, summary.StudentID)
		assert.Equal(t, 1, summary.IncidentCount)
		assert.Zero(t, summary.OpenIncidents)
		assert.Equal(t, 2, summary.Points.Net)
		assert.Len(t, summary.Rewards, 1)
	})

	t.Run("delete", func(t *testing.T) {
		env.do(t, httpTest{method: http.MethodDelete, path: "/v1/incidents/" + incident.ID, token: counselorToken, wantCode: http.StatusNoContent})
		env.do(t, httpTest{path: "/v1/incidents/" + incident.ID, token: counselorToken, wantCode: http.StatusNotFound})
	})
}
