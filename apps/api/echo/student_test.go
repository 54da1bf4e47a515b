package echoapi

import (
	"bytes"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/reportcard"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/services/spreadsheet"
	"github.com/trezcool/shule/testutil"
)

func Test_studentApi(t *testing.T) {
	env := setup(t)
	main := testutil.CreateBranch(t, env.branchRepo, "Main", "MAIN")
	annex := testutil.CreateBranch(t, env.branchRepo, "Annex", "ANX")

	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	mainAdmin := testutil.CreateBranchUser(t, env.usrRepo, main.ID, "Main Admin", "madmin", "madmin@test.cd", "", []string{user.RoleAdminPrincipal}, true)
	teacher := testutil.CreateBranchUser(t, env.usrRepo, main.ID, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	parent := testutil.CreateUser(t, env.usrRepo, "Parent", "parent", "parent@test.cd", "", []string{user.RoleParent}, true)
	stranger := testutil.CreateUser(t, env.usrRepo, "Stranger", "stranger", "stranger@test.cd", "", []string{user.RoleParent}, true)

	adminToken := getToken(t, admin)
	mainToken := getToken(t, mainAdmin)

	ada := testutil.CreateStudent(t, env.studentRepo, main.ID, "M-001", "Ada", "Lovelace", "P1",
		testutil.WithGuardian("Parent", "parent@test.cd", parent.ID))
	bob := testutil.CreateStudent(t, env.studentRepo, main.ID, "M-002", "Bob", "Marley", "P1")
	cy := testutil.CreateStudent(t, env.studentRepo, annex.ID, "A-001", "Cy", "Young", "P2", testutil.WithStatus(student.StatusInactive))

	t.Run("query", func(t *testing.T) {
		env.do(t, httpTest{path: "/v1/students", token: getToken(t, parent), wantCode: http.StatusForbidden})

		tests := []struct {
			name    string
			query   string
			token   string
			wantIDs []string
		}{
			{name: "all branches", query: "", token: adminToken, wantIDs: []string{ada.ID, bob.ID, cy.ID}},
			{name: "branch param", query: "?branch_id=" + annex.ID, token: adminToken, wantIDs: []string{cy.ID}},
			{name: "confined", query: "?branch_id=" + annex.ID, token: getToken(t, teacher), wantIDs: []string{ada.ID, bob.ID}},
			{name: "search", query: "?search=marl", token: adminToken, wantIDs: []string{bob.ID}},
			{name: "status", query: "?status=inactive,graduated", token: adminToken, wantIDs: []string{cy.ID}},
			{name: "class", query: "?class_name=P1&ordering=-admission_no", token: adminToken, wantIDs: []string{bob.ID, ada.ID}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := env.do(t, httpTest{path: "/v1/students" + tt.query, token: tt.token, wantCode: http.StatusOK})
				assert.Equal(t, tt.wantIDs, responseIDs(t, rec))
			})
		}

		rec := env.do(t, httpTest{path: "/v1/students?page=2&page_size=2", token: adminToken, wantCode: http.StatusOK})
		var page core.Page
		unmarshal(t, rec, &page)
		assert.Equal(t, 3, page.TotalRows)
		assert.Equal(t, []string{cy.ID}, responseIDs(t, rec))
	})

	t.Run("retrieve", func(t *testing.T) {
		path := "/v1/students/" + ada.ID
		env.do(t, httpTest{path: path, token: getToken(t, teacher), wantCode: http.StatusOK})
		env.do(t, httpTest{path: path, token: getToken(t, parent), wantCode: http.StatusOK})
		env.do(t, httpTest{path: path, token: getToken(t, stranger), wantCode: http.StatusNotFound})
		env.do(t, httpTest{path: "/v1/students/" + cy.ID, token: mainToken, wantCode: http.StatusNotFound})
		env.do(t, httpTest{path: "/v1/students/not-an-id", token: adminToken, wantCode: http.StatusNotFound})
	})

	var dan student.Student

	t.Run("create", func(t *testing.T) {
		ns := student.NewStudent{
			AdmissionNo: " M-003 ", FirstName: "Dan", LastName: "Brown", Gender: "Male", ClassName: "P2",
			GuardianEmail: "Guardian@Test.CD",
		}
		env.do(t, httpTest{method: http.MethodPost, path: "/v1/students", body: marshalObj(t, ns), token: getToken(t, teacher), wantCode: http.StatusForbidden})
		// a branch is required when none is selected
		env.do(t, httpTest{method: http.MethodPost, path: "/v1/students", body: marshalObj(t, ns), token: adminToken, wantCode: http.StatusBadRequest})

		other := ns
		other.BranchID = annex.ID
		env.do(t, httpTest{method: http.MethodPost, path: "/v1/students", body: marshalObj(t, other), token: mainToken, wantCode: http.StatusForbidden})

		dup := ns
		dup.AdmissionNo = "M-001"
		env.do(t, httpTest{method: http.MethodPost, path: "/v1/students", body: marshalObj(t, dup), token: mainToken, wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"admission_no": student.ErrAdmissionNoExists.Error()})})

		bad := ns
		bad.Gender = "robot"
		env.do(t, httpTest{method: http.MethodPost, path: "/v1/students", body: marshalObj(t, bad), token: mainToken, wantCode: http.StatusBadRequest})

		rec := env.do(t, httpTest{method: http.MethodPost, path: "/v1/students", body: marshalObj(t, ns), token: mainToken, wantCode: http.StatusCreated})
		unmarshal(t, rec, &dan)
		assert.Equal(t, main.ID, dan.BranchID)
		assert.Equal(t, "M-003", dan.AdmissionNo)
		assert.Equal(t, student.GenderMale, dan.Gender)
		assert.Equal(t, "guardian@test.cd", dan.GuardianEmail)
		assert.Equal(t, student.StatusActive, dan.Status)
	})

	t.Run("update", func(t *testing.T) {
		path := "/v1/students/" + dan.ID
		env.do(t, httpTest{method: http.MethodPut, path: path, body: []byte(`{"first_name": " "}`), token: mainToken, wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"first_name": "this field cannot be blank"})})
		env.do(t, httpTest{method: http.MethodPut, path: path, body: []byte(`{"status": "expelled"}`), token: mainToken, wantCode: http.StatusBadRequest})
		env.do(t, httpTest{method: http.MethodPut, path: path, body: []byte(`{"admission_no": "M-002"}`), token: mainToken, wantCode: http.StatusBadRequest})

		rec := env.do(t, httpTest{
			method: http.MethodPut, path: path, token: mainToken, wantCode: http.StatusOK,
			body: marshalObj(t, map[string]string{"class_name": "P1", "status": "Inactive", "guardian_user_id": parent.ID}),
		})
		var updated student.Student
		unmarshal(t, rec, &updated)
		assert.Equal(t, "P1", updated.ClassName)
		assert.Equal(t, student.StatusInactive, updated.Status)
		assert.Equal(t, parent.ID, updated.GuardianUserID)
		assert.Equal(t, "Dan", updated.FirstName)

		env.do(t, httpTest{path: path, token: getToken(t, parent), wantCode: http.StatusOK})
	})

	t.Run("import xlsx", func(t *testing.T) {
		var buf bytes.Buffer
		err := sheetsvc.NewExcelService().Write(&buf, "Students", []string{"Admission No", "First Name", "Last Name", "Class Name", "Gender"}, [][]interface{}{
			{"M-001", "Ada", "Lovelace", "P2", "female"}, // update
			{"M-010", "Eve", "Adams", "P1", ""},
			{"M-011", "Fay", "", "P1", ""},
			{"M-012", "Gus", "Hill", "P1", "other"},
		})
		require.NoError(t, err)

		body, ct := multipartBody(t, "students.xlsx", buf.Bytes(), nil)
		env.do(t, httpTest{
			method: http.MethodPost, path: "/v1/students/import", body: body, contentType: ct, token: adminToken, wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"branch_id": "this field is required"}),
		})
		body, ct = multipartBody(t, "students.xlsx", buf.Bytes(), map[string]string{"branch_id": annex.ID})
		env.do(t, httpTest{method: http.MethodPost, path: "/v1/students/import", body: body, contentType: ct, token: mainToken, wantCode: http.StatusForbidden})
		body, ct = multipartBody(t, "students.txt", []byte("not a workbook"), nil)
		env.do(t, httpTest{method: http.MethodPost, path: "/v1/students/import", body: body, contentType: ct, token: mainToken, wantCode: http.StatusBadRequest})

		body, ct = multipartBody(t, "students.xlsx", buf.Bytes(), map[string]string{"branch_id": main.ID})
		rec := env.do(t, httpTest{method: http.MethodPost, path: "/v1/students/import", body: body, contentType: ct, token: adminToken, wantCode: http.StatusOK})
		var report student.ImportReport
		unmarshal(t, rec, &report)
		assert.Equal(t, 1, report.Created)
		assert.Equal(t, 1, report.Updated)
		assert.Equal(t, 2, report.Skipped)
		assert.Equal(t, []student.ImportError{
			{Row: 4, Error: "missing last_name"},
			{Row: 5, Error: `invalid gender "other"`},
		}, report.Errors)

		rec = env.do(t, httpTest{path: "/v1/students/" + ada.ID, token: mainToken, wantCode: http.StatusOK})
		var updated student.Student
		unmarshal(t, rec, &updated)
		assert.Equal(t, "P2", updated.ClassName)
		assert.Equal(t, student.GenderFemale, updated.Gender)

		// back to P1 for the report cards
		env.do(t, httpTest{method: http.MethodPut, path: "/v1/students/" + ada.ID, body: []byte(`{"class_name": "P1"}`), token: mainToken, wantCode: http.StatusOK})
	})

	t.Run("report cards", func(t *testing.T) {
		teacherToken := getToken(t, teacher)
		period := reportcard.Period{Term: "Term 1", AcademicYear: "2024-2025"}

		var ex exam.Exam
		rec := env.do(t, httpTest{
			method: http.MethodPost, path: "/v1/exams", token: teacherToken, wantCode: http.StatusCreated,
			body: marshalObj(t, exam.NewExam{
				Title: "Final", Subject: "Maths", ClassName: "P1", Term: period.Term, AcademicYear: period.AcademicYear,
				ExamDate: core.Today(), MaxScore: 50,
			}),
		})
		unmarshal(t, rec, &ex)
		env.do(t, httpTest{
			method: http.MethodPut, path: "/v1/exams/" + ex.ID + "/results", token: teacherToken, wantCode: http.StatusOK,
			body: marshalObj(t, exam.SaveResults{Results: []exam.ResultEntry{{StudentID: ada.ID, Score: 40}, {StudentID: bob.ID, Score: 45}}}),
		})

		q := url.Values{"term": {period.Term}, "academic_year": {period.AcademicYear}}
		cardPath := "/v1/students/" + ada.ID + "/report-card?" + q.Encode()

		// scheduled exams are left out
		rec = env.do(t, httpTest{path: cardPath, token: getToken(t, parent), wantCode: http.StatusOK})
		var card reportcard.ReportCard
		unmarshal(t, rec, &card)
		assert.Empty(t, card.Subjects)

		env.do(t, httpTest{method: http.MethodPut, path: "/v1/exams/" + ex.ID, body: []byte(`{"status":"completed"}`), token: teacherToken, wantCode: http.StatusOK})

		rec = env.do(t, httpTest{path: cardPath, token: getToken(t, parent), wantCode: http.StatusOK})
		unmarshal(t, rec, &card)
		require.Len(t, card.Subjects, 1)
		assert.Equal(t, 80.0, card.AveragePercent)
		assert.Equal(t, 2, card.Position)
		assert.Equal(t, 3, card.ClassSize) // with the imported student; dan is inactive

		env.do(t, httpTest{path: "/v1/students/" + ada.ID + "/report-card", token: getToken(t, parent), wantCode: http.StatusBadRequest})
		env.do(t, httpTest{path: cardPath, token: getToken(t, stranger), wantCode: http.StatusNotFound})

		gen := reportcard.GenerateRequest{Period: period, ClassName: "P1", Notify: true}
		env.do(t, httpTest{method: http.MethodPost, path: "/v1/report-cards/generate", body: marshalObj(t, gen), token: getToken(t, parent), wantCode: http.StatusForbidden})

		emailsvc.ResetSentMessages()
		rec = env.do(t, httpTest{method: http.MethodPost, path: "/v1/report-cards/generate", body: marshalObj(t, gen), token: teacherToken, wantCode: http.StatusOK})
		var report reportcard.GenerateReport
		unmarshal(t, rec, &report)
		require.Len(t, report.Cards, 3)
		assert.Equal(t, bob.ID, report.Cards[0].Student.ID)
		assert.Equal(t, 1, report.Cards[0].Position)
		assert.Equal(t, 1, report.Notified) // only ada has a guardian email
		sent := emailsvc.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "report_card", sent[0].TemplateName)
	})

	t.Run("summaries", func(t *testing.T) {
		env.do(t, httpTest{path: "/v1/students/" + ada.ID + "/discipline", token: getToken(t, parent), wantCode: http.StatusOK})
		env.do(t, httpTest{path: "/v1/students/" + ada.ID + "/attendance?date_from=2024-01-01", token: getToken(t, parent), wantCode: http.StatusOK})
		env.do(t, httpTest{path: "/v1/students/" + ada.ID + "/attendance?date_from=01/01/2024", token: getToken(t, parent), wantCode: http.StatusBadRequest})
	})

	t.Run("destroy", func(t *testing.T) {
		env.do(t, httpTest{method: http.MethodDelete, path: "/v1/students/" + dan.ID, token: getToken(t, teacher), wantCode: http.StatusForbidden})
		env.do(t, httpTest{method: http.MethodDelete, path: "/v1/students?id=" + bob.ID + "," + cy.ID, token: mainToken, wantCode: http.StatusForbidden})
		env.do(t, httpTest{method: http.MethodDelete, path: "/v1/students/" + dan.ID, token: mainToken, wantCode: http.StatusNoContent})
		env.do(t, httpTest{method: http.MethodDelete, path: "/v1/students?id=" + bob.ID + "&id=" + cy.ID, token: adminToken, wantCode: http.StatusNoContent})

		rec := env.do(t, httpTest{path: "/v1/students", token: adminToken, wantCode: http.StatusOK})
		assert.Len(t, responseIDs(t, rec), 2) // ada & the imported student
	})
}
