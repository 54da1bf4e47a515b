package echoapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/branch"
	"github.com/trezcool/shule/core/dashboard"
	"github.com/trezcool/shule/core/discipline"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/homework"
	"github.com/trezcool/shule/core/payment"
	"github.com/trezcool/shule/core/preference"
	"github.com/trezcool/shule/core/reportcard"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/services/cache"
	"github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/services/spreadsheet"
	"github.com/trezcool/shule/storage/database/inmem"
)

var missingTokenResp = httpErr{Error: "missing or malformed jwt"}

// testEnv is a Server backed by a fresh in-memory database.
type testEnv struct {
	srv *Server

	usrRepo     user.Repository
	branchRepo  branch.Repository
	studentRepo student.Repository

	students *student.Service
	payments *payment.Service
	exams    *exam.Service
	homework *homework.Service

	cache core.Cache
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	emailsvc.ResetSentMessages()

	// set up DB & repos
	db := inmemdb.Open()
	env := &testEnv{
		usrRepo:     inmemdb.NewUserRepository(db),
		branchRepo:  inmemdb.NewBranchRepository(db),
		studentRepo: inmemdb.NewStudentRepository(db),
		cache:       cachesvc.NewMemoryCache(),
	}

	// set up services
	logger := logsvc.NewRollbarLogger(zaptest.NewLogger(t), core.Conf)
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	mailSvc := emailsvc.NewConsoleServiceMock()
	sheets := sheetsvc.NewExcelService()

	usrSvc := user.NewService(env.usrRepo, mailSvc)
	branchSvc := branch.NewService(env.branchRepo)
	env.students = student.NewService(env.studentRepo, branchSvc, sheets)
	env.payments = payment.NewService(inmemdb.NewPaymentRepository(db), env.students, sheets)
	attSvc := attendance.NewService(inmemdb.NewAttendanceRepository(db), env.students)
	env.exams = exam.NewService(inmemdb.NewExamRepository(db), branchSvc, env.students, sheets)
	discSvc := discipline.NewService(inmemdb.NewDisciplineRepository(db), env.students, mailSvc)
	env.homework = homework.NewService(inmemdb.NewHomeworkRepository(db), branchSvc, env.students)
	prefSvc := preference.NewService(inmemdb.NewPreferenceRepository(db), dashboard.Catalog{}, validate)
	dashSvc := dashboard.NewService(dashboard.Services{
		Students:    env.students,
		Payments:    env.payments,
		Attendance:  attSvc,
		Exams:       env.exams,
		Discipline:  discSvc,
		Homework:    env.homework,
		Preferences: prefSvc,
	}, env.cache, logger)

	// set up server
	env.srv = NewServer(ServerDeps{
		Conf:           core.Conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		BranchSvc:      branchSvc,
		StudentSvc:     env.students,
		PaymentSvc:     env.payments,
		AttendanceSvc:  attSvc,
		ExamSvc:        env.exams,
		ReportCardSvc:  reportcard.NewService(env.students, env.exams, attSvc, discSvc, mailSvc),
		DisciplineSvc:  discSvc,
		HomeworkSvc:    env.homework,
		PreferenceSvc:  prefSvc,
		DashboardSvc:   dashSvc,
	})
	return env
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name        string
	method      string
	path        string
	body        []byte
	contentType string // defaults to JSON
	token       string
	wantCode    int
	wantData    []byte
}

// do runs a request against the server and checks its outcome; an empty wantData is not checked.
func (env *testEnv) do(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	if tt.contentType != "" {
		req.Header.Set("Content-Type", tt.contentType)
	}
	env.srv.ServeHTTP(rec, req)
	if tt.wantCode != 0 && rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData != nil {
		checkData(t, tt.wantData, rec)
	}
	return rec
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, usr user.User) string {
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func marshalList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	return marshalObj(t, objs)
}

// unmarshal decodes the response body into dest.
func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkData(t *testing.T, want []byte, rec *httptest.ResponseRecorder) {
	t.Helper()
	ok, err := jsonBytesEqual(rec.Body.Bytes(), want)
	if assert.NoError(t, err, "jsonBytesEqual() failed to compare") && !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(want))
	}
}

// responseIDs decodes a JSON list (or page) body and returns the `id` of each item.
func responseIDs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	type item struct {
		ID string `json:"id"`
	}
	var items []item
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		var page struct {
			Data []item `json:"data"`
		}
		unmarshal(t, rec, &page)
		items = page.Data
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

// multipartBody builds a form uploading content as `file`, along with the extra fields.
func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() failed: %v", err)
		}
	}
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() failed: %v", err)
	}
	if _, err = fw.Write(content); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err = w.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	return buf.Bytes(), w.FormDataContentType()
}
