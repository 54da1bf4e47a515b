// Package reportcard builds the end-of-term report cards of students from their exam results,
// attendance & disciplinary records.
package reportcard

import (
	"context"
	"net/mail"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/discipline"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/student"
)

type (
	ReportCard struct {
		Student        student.Student    `json:"student"`
		Term           string             `json:"term"`
		AcademicYear   string             `json:"academic_year"`
		Subjects       []SubjectResult    `json:"subjects"`
		AveragePercent float64            `json:"average_percent"`
		OverallGrade   string             `json:"overall_grade"`
		Attendance     attendance.Summary `json:"attendance"`
		BehaviorPoints int                `json:"behavior_points"`
		IncidentCount  int                `json:"incident_count"`
		Position       int                `json:"position"`
		ClassSize      int                `json:"class_size"`
		GeneratedAt    time.Time          `json:"generated_at"`
	}

	SubjectResult struct {
		ExamID     string  `json:"exam_id"`
		Title      string  `json:"title"`
		Subject    string  `json:"subject"`
		Score      float64 `json:"score"`
		MaxScore   float64 `json:"max_score"`
		Percentage float64 `json:"percentage"`
		Grade      string  `json:"grade"`
		Passed     bool    `json:"passed"`
		Remarks    string  `json:"remarks"`
	}

	// Period selects the exams (term & year) and the attendance/discipline records (date range) of a report.
	Period struct {
		Term         string    `json:"term" query:"term" validate:"required,max=32"`
		AcademicYear string    `json:"academic_year" query:"academic_year" validate:"required,max=16"`
		DateFrom     core.Date `json:"date_from" query:"date_from"`
		DateTo       core.Date `json:"date_to" query:"date_to"`
	}

	GenerateRequest struct {
		Period
		BranchID  string `json:"branch_id" validate:"required,uuid"`
		ClassName string `json:"class_name" validate:"required,max=32"`
		Notify    bool   `json:"notify"`
	}

	GenerateReport struct {
		Cards    []ReportCard `json:"cards"`
		Notified int          `json:"notified"`
	}
)

func (p *Period) Validate(validate *validator.Validate) error {
	p.Term = core.CleanString(p.Term)
	p.AcademicYear = core.CleanString(p.AcademicYear)
	if err := validate.Struct(p); err != nil {
		return err
	}
	if !p.DateFrom.IsZero() && !p.DateTo.IsZero() && p.DateTo.Before(p.DateFrom) {
		return core.NewFieldValidationError("date_to", "date_to must not be before date_from")
	}
	return nil
}

func (gr *GenerateRequest) Validate(validate *validator.Validate) error {
	gr.ClassName = core.CleanString(gr.ClassName)
	if err := gr.Period.Validate(validate); err != nil {
		return err
	}
	return validate.Struct(gr)
}

type Service struct {
	students   *student.Service
	exams      *exam.Service
	attendance *attendance.Service
	discipline *discipline.Service
	mailSvc    core.EmailService
}

func NewService(
	students *student.Service,
	exams *exam.Service,
	att *attendance.Service,
	disc *discipline.Service,
	mailSvc core.EmailService,
) *Service {
	return &Service{students: students, exams: exams, attendance: att, discipline: disc, mailSvc: mailSvc}
}

// ForStudent builds the report card of a single student; position & class size are computed against
// the active students of the student's class.
func (svc *Service) ForStudent(ctx context.Context, st student.Student, period Period) (ReportCard, error) {
	classmates, err := svc.students.All(ctx, &student.QueryFilter{
		BranchID:  st.BranchID,
		ClassName: st.ClassName,
		Statuses:  []string{student.StatusActive},
	})
	if err != nil {
		return ReportCard{}, errors.Wrap(err, "querying classmates")
	}

	inClass := false
	for _, mate := range classmates {
		if mate.ID == st.ID {
			inClass = true
			break
		}
	}
	if !inClass {
		classmates = append(classmates, st)
	}

	cards, err := svc.build(ctx, st.BranchID, st.ClassName, classmates, period)
	if err != nil {
		return ReportCard{}, err
	}
	for _, card := range cards {
		if card.Student.ID == st.ID {
			if !inClass {
				card.Position, card.ClassSize = 0, len(classmates)-1
			}
			return card, nil
		}
	}
	return ReportCard{}, student.ErrNotFound
}

// GenerateForClass builds the ranked report cards of every active student of a class and optionally
// emails them to the guardians.
func (svc *Service) GenerateForClass(ctx context.Context, req GenerateRequest) (GenerateReport, error) {
	students, err := svc.students.All(ctx, &student.QueryFilter{
		BranchID:  req.BranchID,
		ClassName: req.ClassName,
		Statuses:  []string{student.StatusActive},
	})
	if err != nil {
		return GenerateReport{}, errors.Wrap(err, "querying students")
	}

	cards, err := svc.build(ctx, req.BranchID, req.ClassName, students, req.Period)
	if err != nil {
		return GenerateReport{}, err
	}
	report := GenerateReport{Cards: cards}
	if req.Notify {
		report.Notified = svc.notifyGuardians(cards)
	}
	return report, nil
}

func (svc *Service) build(ctx context.Context, branchID, className string, students []student.Student, period Period) ([]ReportCard, error) {
	if len(students) == 0 {
		return []ReportCard{}, nil
	}
	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}

	exams, err := svc.exams.All(ctx, &exam.QueryFilter{
		BranchID:     branchID,
		ClassName:    className,
		Term:         period.Term,
		AcademicYear: period.AcademicYear,
		Statuses:     []string{exam.StatusCompleted, exam.StatusPublished},
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying exams")
	}
	sort.Slice(exams, func(i, j int) bool {
		if exams[i].Subject != exams[j].Subject {
			return exams[i].Subject < exams[j].Subject
		}
		return exams[i].ExamDate.Before(exams[j].ExamDate)
	})

	results := make(map[string]map[string]exam.Result) // {studentID: {examID: result}}
	if len(exams) > 0 {
		examIDs := make([]string, 0, len(exams))
		for _, e := range exams {
			examIDs = append(examIDs, e.ID)
		}
		res, err := svc.exams.QueryResults(ctx, exam.ResultFilter{ExamIDs: examIDs, StudentIDs: ids})
		if err != nil {
			return nil, errors.Wrap(err, "querying results")
		}
		for _, r := range res {
			if results[r.StudentID] == nil {
				results[r.StudentID] = make(map[string]exam.Result)
			}
			results[r.StudentID][r.ExamID] = r
		}
	}

	records, _, err := svc.attendance.Query(ctx, &attendance.QueryFilter{
		StudentIDs: ids,
		DateFrom:   period.DateFrom,
		DateTo:     period.DateTo,
	}, nil, core.Pagination{})
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	recordsByStudent := make(map[string][]attendance.Record)
	for _, r := range records {
		recordsByStudent[r.StudentID] = append(recordsByStudent[r.StudentID], r)
	}

	discFilter := &discipline.QueryFilter{StudentIDs: ids, DateFrom: period.DateFrom, DateTo: period.DateTo}
	points, _, err := svc.discipline.QueryPoints(ctx, discFilter, nil, core.Pagination{})
	if err != nil {
		return nil, errors.Wrap(err, "querying behavior points")
	}
	incidents, _, err := svc.discipline.QueryIncidents(ctx, discFilter, nil, core.Pagination{})
	if err != nil {
		return nil, errors.Wrap(err, "querying incidents")
	}
	netPoints := make(map[string]int)
	for _, p := range points {
		netPoints[p.StudentID] += p.Points
	}
	incidentCounts := make(map[string]int)
	for _, inc := range incidents {
		incidentCounts[inc.StudentID]++
	}

	now := core.NowFunc()
	cards := make([]ReportCard, 0, len(students))
	for _, st := range students {
		card := ReportCard{
			Student:        st,
			Term:           period.Term,
			AcademicYear:   period.AcademicYear,
			Subjects:       []SubjectResult{},
			Attendance:     attendance.Summarize(recordsByStudent[st.ID]),
			BehaviorPoints: netPoints[st.ID],
			IncidentCount:  incidentCounts[st.ID],
			ClassSize:      len(students),
			GeneratedAt:    now,
		}
		var pctSum float64 // exact percentages
		for _, e := range exams {
			r, ok := results[st.ID][e.ID]
			if !ok {
				continue
			}
			pct := e.Percentage(r.Score)
			pctSum += r.Score / e.MaxScore * 100
			card.Subjects = append(card.Subjects, SubjectResult{
				ExamID:     e.ID,
				Title:      e.Title,
				Subject:    e.Subject,
				Score:      r.Score,
				MaxScore:   e.MaxScore,
				Percentage: pct,
				Grade:      e.Grade(r.Score),
				Passed:     e.Passed(r.Score),
				Remarks:    r.Remarks,
			})
		}
		if n := len(card.Subjects); n > 0 {
			avg := pctSum / float64(n)
			card.AveragePercent = core.Round2(avg)
			card.OverallGrade = exam.Grade(avg)
		}
		cards = append(cards, card)
	}

	Rank(cards)
	return cards, nil
}

// Rank orders cards by average (best first) and assigns competition positions: equal averages share
// a position and the next one skips accordingly (1, 2, 2, 4).
func Rank(cards []ReportCard) {
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].AveragePercent != cards[j].AveragePercent {
			return cards[i].AveragePercent > cards[j].AveragePercent
		}
		return cards[i].Student.FullName() < cards[j].Student.FullName()
	})
	for i := range cards {
		if i > 0 && cards[i].AveragePercent == cards[i-1].AveragePercent {
			cards[i].Position = cards[i-1].Position
		} else {
			cards[i].Position = i + 1
		}
	}
}

func (svc *Service) notifyGuardians(cards []ReportCard) int {
	messages := make([]*core.EmailMessage, 0, len(cards))
	for _, card := range cards {
		st := card.Student
		if st.GuardianEmail == "" {
			continue
		}
		name := st.GuardianName
		if name == "" {
			name = "Parent/Guardian"
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: st.GuardianName, Address: st.GuardianEmail}},
			Subject:      "Report card: " + st.FullName(),
			TemplateName: "report_card",
			TemplateData: map[string]interface{}{
				"GuardianName":   name,
				"StudentName":    st.FullName(),
				"StudentID":      st.ID,
				"Term":           card.Term,
				"AcademicYear":   card.AcademicYear,
				"AveragePercent": card.AveragePercent,
				"OverallGrade":   overallGradeText(card.OverallGrade),
				"Position":       card.Position,
				"ClassSize":      card.ClassSize,
				"AttendanceRate": card.Attendance.AttendanceRate,
			},
		})
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
	return len(messages)
}

func overallGradeText(grade string) string {
	if grade == "" {
		return "no results"
	}
	return grade
}
