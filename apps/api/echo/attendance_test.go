package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/testutil"
)

func Test_attendanceApi(t *testing.T) {
	env := setup(t)
	main := testutil.CreateBranch(t, env.branchRepo, "Main", "MAIN")
	annex := testutil.CreateBranch(t, env.branchRepo, "Annex", "ANX")
	st1 := testutil.CreateStudent(t, env.studentRepo, main.ID, "M-001", "Ada", "Doe", "P1")
	st2 := testutil.CreateStudent(t, env.studentRepo, main.ID, "M-002", "Bob", "Doe", "P1")
	st3 := testutil.CreateStudent(t, env.studentRepo, main.ID, "M-003", "Cy", "Doe", "P2")
	outsider := testutil.CreateStudent(t, env.studentRepo, annex.ID, "A-001", "Dan", "Roe", "P1")

	teacher := testutil.CreateBranchUser(t, env.usrRepo, main.ID, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	accountant := testutil.CreateUser(t, env.usrRepo, "Acc", "acc", "acc@test.cd", "", []string{user.RoleAdminAccountant}, true)
	kid := testutil.CreateUser(t, env.usrRepo, "Kid", "kid", "kid@test.cd", "", []string{user.RoleStudent}, true)
	token := getToken(t, teacher)

	today := core.Today()
	yesterday := today.AddDays(-1)

	mark := func(date core.Date, entries ...attendance.MarkEntry) []byte {
		return marshalObj(t, attendance.MarkAttendance{Date: date, Entries: entries})
	}

	t.Run("permissions", func(t *testing.T) {
		env.do(t, httpTest{path: "/v1/attendance", token: getToken(t, kid), wantCode: http.StatusForbidden})
		env.do(t, httpTest{path: "/v1/attendance", token: getToken(t, accountant), wantCode: http.StatusOK})
		env.do(t, httpTest{
			method: http.MethodPost, path: "/v1/attendance/mark", token: getToken(t, accountant), wantCode: http.StatusForbidden,
			body: mark(today, attendance.MarkEntry{StudentID: st1.ID, Status: "present"}),
		})
	})

	t.Run("mark", func(t *testing.T) {
		tests := []httpTest{
			{name: "no entries", body: mark(today), wantCode: http.StatusBadRequest},
			{name: "future", body: mark(today.AddDays(1), attendance.MarkEntry{StudentID: st1.ID, Status: "present"}), wantCode: http.StatusBadRequest},
			{name: "bad status", body: mark(today, attendance.MarkEntry{StudentID: st1.ID, Status: "asleep"}), wantCode: http.StatusBadRequest},
			{
				name: "duplicates", wantCode: http.StatusBadRequest,
				body: mark(today, attendance.MarkEntry{StudentID: st1.ID, Status: "present"}, attendance.MarkEntry{StudentID: st1.ID, Status: "late"}),
			},
			{
				name: "other branch", wantCode: http.StatusBadRequest,
				body:     mark(today, attendance.MarkEntry{StudentID: outsider.ID, Status: "present"}),
				wantData: marshalObj(t, map[string]string{"entries": "unknown student " + outsider.ID}),
			},
			{
				name: "yesterday", wantCode: http.StatusOK,
				body: mark(yesterday,
					attendance.MarkEntry{StudentID: st1.ID, Status: "present"},
					attendance.MarkEntry{StudentID: st2.ID, Status: "absent"},
				),
			},
			{
				name: "today", wantCode: http.StatusOK,
				body: mark(today,
					attendance.MarkEntry{StudentID: st1.ID, Status: "Late"},
					attendance.MarkEntry{StudentID: st2.ID, Status: "absent"},
					attendance.MarkEntry{StudentID: st3.ID, Status: "excused", Remarks: " sick "},
				),
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.method, tt.path, tt.token = http.MethodPost, "/v1/attendance/mark", token
				env.do(t, tt)
			})
		}
	})

	var record attendance.Record

	t.Run("create upserts", func(t *testing.T) {
		body := marshalObj(t, NewAttendanceRecord{Date: today, MarkEntry: attendance.MarkEntry{StudentID: st2.ID, Status: "present"}})
		rec := env.do(t, httpTest{method: http.MethodPost, path: "/v1/attendance", body: body, token: token, wantCode: http.StatusCreated})
		unmarshal(t, rec, &record)
		assert.Equal(t, attendance.StatusPresent, record.Status)
		assert.Equal(t, today, record.Date)

		rec = env.do(t, httpTest{path: "/v1/attendance?date_from=" + today.String(), token: token, wantCode: http.StatusOK})
		assert.Len(t, responseIDs(t, rec), 3)
	})

	t.Run("query", func(t *testing.T) {
		rec := env.do(t, httpTest{path: "/v1/attendance?class_name=P2", token: token, wantCode: http.StatusOK})
		require.Len(t, responseIDs(t, rec), 1)

		rec = env.do(t, httpTest{path: "/v1/attendance?class_name=P9", token: token, wantCode: http.StatusOK})
		assert.Empty(t, responseIDs(t, rec))

		rec = env.do(t, httpTest{path: "/v1/attendance?status=absent", token: token, wantCode: http.StatusOK})
		assert.Len(t, responseIDs(t, rec), 1)

		env.do(t, httpTest{path: "/v1/attendance?date_from=yesterday", token: token, wantCode: http.StatusBadRequest})
	})

	t.Run("stats", func(t *testing.T) {
		rec := env.do(t, httpTest{path: "/v1/attendance/stats?class_name=P1", token: token, wantCode: http.StatusOK})
		var s attendance.Summary
		unmarshal(t, rec, &s)
		// yesterday: present, absent; today: late, present
		assert.Equal(t, attendance.Summary{Total: 4, Present: 2, Absent: 1, Late: 1, AttendanceRate: 75}, s)

		rec = env.do(t, httpTest{path: "/v1/attendance/daily", token: token, wantCode: http.StatusOK})
		var days []attendance.DailySummary
		unmarshal(t, rec, &days)
		require.Len(t, days, 2)
		assert.Equal(t, yesterday, days[0].Date)
		assert.Equal(t, 2, days[0].Total)
		assert.Equal(t, today, days[1].Date)
		assert.Equal(t, 1, days[1].Excused)

		rec = env.do(t, httpTest{path: "/v1/students/" + st1.ID + "/attendance?date_from=" + today.String(), token: token, wantCode: http.StatusOK})
		s = attendance.Summary{}
		unmarshal(t, rec, &s)
		assert.Equal(t, 1, s.Late)
		assert.Equal(t, 1, s.Total)
	})

	t.Run("update & delete", func(t *testing.T) {
		path := "/v1/attendance/" + record.ID
		env.do(t, httpTest{method: http.MethodPut, path: path, body: []byte(`{"status":"gone"}`), token: token, wantCode: http.StatusBadRequest})

		rec := env.do(t, httpTest{method: http.MethodPut, path: path, body: []byte(`{"status":"Excused","remarks":"note"}`), token: token, wantCode: http.StatusOK})
		var r attendance.Record
		unmarshal(t, rec, &r)
		assert.Equal(t, attendance.StatusExcused, r.Status)
		assert.Equal(t, "note", r.Remarks)

		env.do(t, httpTest{method: http.MethodDelete, path: path, token: token, wantCode: http.StatusNoContent})
		env.do(t, httpTest{path: path, token: token, wantCode: http.StatusNotFound})
	})
}
