package dashboard

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/discipline"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/homework"
	"github.com/trezcool/shule/core/payment"
	"github.com/trezcool/shule/core/preference"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

// CachePrefix prefixes every cached widget.
const CachePrefix = "dashboard:"

const listSize = 5

var (
	// errors
	ErrUnknownWidget = core.NewNotFoundError("widget not found")
	ErrForbidden     = errors.New("widget is not available on this dashboard")
)

type (
	// Data is a computed widget.
	Data struct {
		Name        string          `json:"name"`
		Data        json.RawMessage `json:"data"`
		GeneratedAt time.Time       `json:"generated_at"`
	}

	// Layout is the ordered list of widgets a viewer sees.
	Layout struct {
		Role    string                  `json:"role"`
		Widgets []preference.WidgetPref `json:"widgets"`
	}

	// Services holds everything the widgets are computed from.
	Services struct {
		Students    *student.Service
		Payments    *payment.Service
		Attendance  *attendance.Service
		Exams       *exam.Service
		Discipline  *discipline.Service
		Homework    *homework.Service
		Preferences *preference.Service
	}

	Service struct {
		Services
		catalog      Catalog
		cache        core.Cache
		logger       core.Logger
		liveTTL      time.Duration
		aggregateTTL time.Duration
	}
)

func NewService(deps Services, cache core.Cache, logger core.Logger) *Service {
	return &Service{
		Services:     deps,
		cache:        cache,
		logger:       logger,
		liveTTL:      core.Conf.Cache.LiveTTL,
		aggregateTTL: core.Conf.Cache.AggregateTTL,
	}
}

func (svc *Service) Catalog() Catalog { return svc.catalog }

// Layout returns the visible widgets of the viewer's dashboard, in their preferred order.
func (svc *Service) Layout(ctx context.Context, viewer user.User) (Layout, error) {
	role := viewer.DashboardRole()
	prefs, err := svc.Preferences.Dashboard(ctx, viewer.ID, role)
	if err != nil {
		return Layout{}, errors.Wrap(err, "loading dashboard preferences")
	}
	layout := Layout{Role: role, Widgets: make([]preference.WidgetPref, 0, len(prefs.Widgets))}
	for _, w := range prefs.Widgets {
		if w.Visible {
			layout.Widgets = append(layout.Widgets, w)
		}
	}
	return layout, nil
}

// Widget computes (or reads from cache) the data of a widget of the viewer's dashboard, scoped to
// branchID ("" meaning every branch).
func (svc *Service) Widget(ctx context.Context, name string, viewer user.User, branchID string) (Data, error) {
	if _, ok := computers[name]; !ok {
		return Data{}, ErrUnknownWidget
	}
	if !svc.catalog.Allowed(viewer.DashboardRole(), name) {
		return Data{}, ErrForbidden
	}

	key := cacheKey(name, viewer.ID, branchID)
	var cached Data
	found, err := svc.cache.Get(ctx, key, &cached)
	if err != nil {
		svc.logger.Warn("dashboard: reading cache", err, map[string]interface{}{"key": key})
	} else if found {
		return cached, nil
	}

	val, err := computers[name](ctx, svc, viewer, branchID)
	if err != nil {
		return Data{}, errors.Wrapf(err, "computing widget %s", name)
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return Data{}, errors.Wrapf(err, "encoding widget %s", name)
	}
	data := Data{Name: name, Data: raw, GeneratedAt: core.NowFunc()}

	if err = svc.cache.Set(ctx, key, data, svc.ttl(name)); err != nil {
		svc.logger.Warn("dashboard: writing cache", err, map[string]interface{}{"key": key})
	}
	return data, nil
}

// Invalidate drops every cached widget.
func (svc *Service) Invalidate(ctx context.Context) error {
	return svc.cache.DeletePrefix(ctx, CachePrefix)
}

func (svc *Service) ttl(name string) time.Duration {
	if core.StringInSlice(name, liveWidgets) {
		return svc.liveTTL
	}
	return svc.aggregateTTL
}

func cacheKey(name, viewerID, branchID string) string {
	if branchID == "" {
		branchID = "all"
	}
	parts := []string{strings.TrimSuffix(CachePrefix, ":"), name, branchID}
	if core.StringInSlice(name, personalWidgets) {
		parts = append(parts, viewerID)
	}
	return strings.Join(parts, ":")
}

type computeFunc func(ctx context.Context, svc *Service, viewer user.User, branchID string) (interface{}, error)

var computers map[string]computeFunc

func init() {
	computers = map[string]computeFunc{
		WidgetStudentCount:         studentCount,
		WidgetPaymentSummary:       paymentSummary,
		WidgetRegistrationPayments: registrationPayments,
		WidgetAttendanceToday:      attendanceToday,
		WidgetExamPerformance:      examPerformance,
		WidgetDisciplineOverview:   disciplineOverview,
		WidgetRecentIncidents:      recentIncidents,
		WidgetUpcomingSessions:     upcomingSessions,
		WidgetHomeworkGrading:      homeworkGrading,
		WidgetMyAttendance:         myAttendance,
		WidgetMyResults:            myResults,
		WidgetMyBehavior:           myBehavior,
	}
}

// StudentCount is the student-count widget.
type StudentCount struct {
	Total    int            `json:"total"`
	Active   int            `json:"active"`
	ByStatus map[string]int `json:"by_status"`
	ByClass  map[string]int `json:"by_class"` // active students only
	ByGender map[string]int `json:"by_gender"`
}

func studentCount(ctx context.Context, svc *Service, _ user.User, branchID string) (interface{}, error) {
	students, err := svc.Students.All(ctx, &student.QueryFilter{BranchID: branchID})
	if err != nil {
		return nil, err
	}
	sc := StudentCount{
		Total:    len(students),
		ByStatus: make(map[string]int, len(student.Statuses)),
		ByClass:  make(map[string]int),
		ByGender: make(map[string]int),
	}
	for _, status := range student.Statuses {
		sc.ByStatus[status] = 0
	}
	for _, st := range students {
		sc.ByStatus[st.Status]++
		if st.IsActive() {
			sc.Active++
			sc.ByClass[st.ClassName]++
			if st.Gender != "" {
				sc.ByGender[st.Gender]++
			}
		}
	}
	return sc, nil
}

func paymentSummary(ctx context.Context, svc *Service, _ user.User, branchID string) (interface{}, error) {
	return svc.Payments.Stats(ctx, &payment.QueryFilter{BranchID: branchID}, payment.DefaultStatsMonths)
}

func registrationPayments(ctx context.Context, svc *Service, _ user.User, branchID string) (interface{}, error) {
	payments, _, err := svc.Payments.RegistrationPayments(ctx, &payment.QueryFilter{BranchID: branchID}, nil, core.Pagination{})
	if err != nil {
		return nil, err
	}
	return payment.Aggregate(payments, core.NowFunc(), payment.DefaultStatsMonths), nil
}

// AttendanceToday is the attendance-today widget.
type AttendanceToday struct {
	Date core.Date `json:"date"`
	attendance.Summary
	ActiveStudents int `json:"active_students"`
	Unmarked       int `json:"unmarked"`
}

func attendanceToday(ctx context.Context, svc *Service, _ user.User, branchID string) (interface{}, error) {
	today := core.Today()
	summary, err := svc.Attendance.Stats(ctx, &attendance.QueryFilter{BranchID: branchID, DateFrom: today, DateTo: today})
	if err != nil {
		return nil, err
	}
	active, err := svc.Students.Count(ctx, &student.QueryFilter{BranchID: branchID, Statuses: []string{student.StatusActive}})
	if err != nil {
		return nil, err
	}
	at := AttendanceToday{Date: today, Summary: summary, ActiveStudents: active}
	if active > summary.Total {
		at.Unmarked = active - summary.Total
	}
	return at, nil
}

// ExamPerformance is a recent exam with its statistics.
type ExamPerformance struct {
	Exam  exam.Exam  `json:"exam"`
	Stats exam.Stats `json:"stats"`
}

func examPerformance(ctx context.Context, svc *Service, _ user.User, branchID string) (interface{}, error) {
	exams, _, err := svc.Exams.Query(ctx, &exam.QueryFilter{
		BranchID: branchID,
		Statuses: []string{exam.StatusCompleted, exam.StatusPublished},
	}, []core.DBOrdering{{Field: "exam_date"}}, core.Pagination{Page: 1, PageSize: listSize})
	if err != nil {
		return nil, err
	}
	out := make([]ExamPerformance, 0, len(exams))
	for _, e := range exams {
		stats, err := svc.Exams.Stats(ctx, e)
		if err != nil {
			return nil, err
		}
		out = append(out, ExamPerformance{Exam: e, Stats: stats})
	}
	return out, nil
}

func disciplineOverview(ctx context.Context, svc *Service, _ user.User, branchID string) (interface{}, error) {
	return svc.Discipline.Stats(ctx, &discipline.QueryFilter{BranchID: branchID})
}

func recentIncidents(ctx context.Context, svc *Service, _ user.User, branchID string) (interface{}, error) {
	incidents, _, err := svc.Discipline.QueryIncidents(ctx,
		&discipline.QueryFilter{BranchID: branchID},
		[]core.DBOrdering{{Field: "incident_date"}, {Field: "created_at"}},
		core.Pagination{Page: 1, PageSize: listSize},
	)
	return incidents, err
}

// upcomingSessions lists the viewer's next scheduled counseling sessions.
func upcomingSessions(ctx context.Context, svc *Service, viewer user.User, branchID string) (interface{}, error) {
	sessions, _, err := svc.Discipline.QuerySessions(ctx,
		&discipline.QueryFilter{
			BranchID:    branchID,
			CounselorID: viewer.ID,
			Statuses:    []string{discipline.SessionScheduled},
			DateFrom:    core.Today(),
		},
		[]core.DBOrdering{{Field: "session_date", Ascending: true}},
		core.Pagination{Page: 1, PageSize: listSize},
	)
	return sessions, err
}

func homeworkGrading(ctx context.Context, svc *Service, viewer user.User, branchID string) (interface{}, error) {
	return svc.Homework.TeacherGradingStats(ctx, viewer.ID, branchID)
}

// linkedStudents are the students a student/parent account may see.
func (svc *Service) linkedStudents(ctx context.Context, viewer user.User) ([]student.Student, error) {
	filter := &student.QueryFilter{UserID: viewer.ID}
	if viewer.IsParent() {
		filter = &student.QueryFilter{GuardianUserID: viewer.ID}
	}
	students, err := svc.Students.All(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying linked students")
	}
	sort.Slice(students, func(i, j int) bool { return students[i].FullName() < students[j].FullName() })
	return students, nil
}

// StudentAttendance is an entry of the my-attendance widget.
type StudentAttendance struct {
	StudentID   string              `json:"student_id"`
	StudentName string              `json:"student_name"`
	Summary     attendance.Summary  `json:"summary"`
	Recent      []attendance.Record `json:"recent"`
}

func myAttendance(ctx context.Context, svc *Service, viewer user.User, _ string) (interface{}, error) {
	students, err := svc.linkedStudents(ctx, viewer)
	if err != nil {
		return nil, err
	}
	out := make([]StudentAttendance, 0, len(students))
	for _, st := range students {
		summary, err := svc.Attendance.StudentSummary(ctx, st.ID, core.Date{}, core.Date{})
		if err != nil {
			return nil, err
		}
		recent, _, err := svc.Attendance.Query(ctx, &attendance.QueryFilter{StudentID: st.ID},
			[]core.DBOrdering{{Field: "date"}}, core.Pagination{Page: 1, PageSize: listSize})
		if err != nil {
			return nil, err
		}
		out = append(out, StudentAttendance{StudentID: st.ID, StudentName: st.FullName(), Summary: summary, Recent: recent})
	}
	return out, nil
}

type (
	// StudentResults is an entry of the my-results widget; only published exams are shown.
	StudentResults struct {
		StudentID      string       `json:"student_id"`
		StudentName    string       `json:"student_name"`
		AveragePercent float64      `json:"average_percent"`
		Results        []ExamResult `json:"results"`
	}

	ExamResult struct {
		ExamID     string    `json:"exam_id"`
		Title      string    `json:"title"`
		Subject    string    `json:"subject"`
		ExamDate   core.Date `json:"exam_date"`
		Score      float64   `json:"score"`
		MaxScore   float64   `json:"max_score"`
		Percentage float64   `json:"percentage"`
		Grade      string    `json:"grade"`
		Passed     bool      `json:"passed"`
	}
)

func myResults(ctx context.Context, svc *Service, viewer user.User, _ string) (interface{}, error) {
	students, err := svc.linkedStudents(ctx, viewer)
	if err != nil {
		return nil, err
	}
	out := make([]StudentResults, 0, len(students))
	if len(students) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	results, err := svc.Exams.QueryResults(ctx, exam.ResultFilter{StudentIDs: ids})
	if err != nil {
		return nil, err
	}
	examIDs := make([]string, 0, len(results))
	for _, r := range results {
		examIDs = append(examIDs, r.ExamID)
	}
	exams := make(map[string]exam.Exam)
	if len(examIDs) > 0 {
		published, err := svc.Exams.All(ctx, &exam.QueryFilter{IDs: examIDs, Statuses: []string{exam.StatusPublished}})
		if err != nil {
			return nil, err
		}
		for _, e := range published {
			exams[e.ID] = e
		}
	}

	byStudent := make(map[string][]ExamResult)
	for _, r := range results {
		e, ok := exams[r.ExamID]
		if !ok {
			continue
		}
		pct := e.Percentage(r.Score)
		byStudent[r.StudentID] = append(byStudent[r.StudentID], ExamResult{
			ExamID:     e.ID,
			Title:      e.Title,
			Subject:    e.Subject,
			ExamDate:   e.ExamDate,
			Score:      r.Score,
			MaxScore:   e.MaxScore,
			Percentage: pct,
			Grade:      r.Grade,
			Passed:     e.Passed(r.Score),
		})
	}
	for _, st := range students {
		sr := StudentResults{StudentID: st.ID, StudentName: st.FullName(), Results: byStudent[st.ID]}
		if sr.Results == nil {
			sr.Results = []ExamResult{}
		}
		sort.Slice(sr.Results, func(i, j int) bool { return sr.Results[i].ExamDate.After(sr.Results[j].ExamDate) })
		var sum float64
		for _, r := range sr.Results {
			sum += r.Percentage
		}
		if len(sr.Results) > 0 {
			sr.AveragePercent = core.Round2(sum / float64(len(sr.Results)))
		}
		out = append(out, sr)
	}
	return out, nil
}

// StudentBehavior is an entry of the my-behavior widget.
type StudentBehavior struct {
	StudentID       string                `json:"student_id"`
	StudentName     string                `json:"student_name"`
	Points          discipline.PointStats `json:"points"`
	IncidentCount   int                   `json:"incident_count"`
	OpenIncidents   int                   `json:"open_incidents"`
	RewardsCount    int                   `json:"rewards_count"`
	ActiveContracts int                   `json:"active_contracts"`
	RecentRewards   []discipline.Reward   `json:"recent_rewards"`
}

func myBehavior(ctx context.Context, svc *Service, viewer user.User, _ string) (interface{}, error) {
	students, err := svc.linkedStudents(ctx, viewer)
	if err != nil {
		return nil, err
	}
	out := make([]StudentBehavior, 0, len(students))
	for _, st := range students {
		sum, err := svc.Discipline.StudentSummary(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		recent := sum.Rewards
		if len(recent) > listSize {
			recent = recent[:listSize]
		}
		out = append(out, StudentBehavior{
			StudentID:       st.ID,
			StudentName:     st.FullName(),
			Points:          sum.Points,
			IncidentCount:   sum.IncidentCount,
			OpenIncidents:   sum.OpenIncidents,
			RewardsCount:    sum.RewardsCount,
			ActiveContracts: sum.ActiveContracts,
			RecentRewards:   recent,
		})
	}
	return out, nil
}
