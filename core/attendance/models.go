package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Statuses
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
	StatusExcused = "excused"
)

var (
	Statuses = []string{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

	// OrderingFields are the fields an attendance listing can be ordered by.
	OrderingFields = []string{"date", "status", "created_at"}
)

type Record struct {
	ID         string    `json:"id"`
	BranchID   string    `json:"branch_id"`
	StudentID  string    `json:"student_id"`
	Date       core.Date `json:"date"`
	Status     string    `json:"status"`
	Remarks    string    `json:"remarks"`
	RecordedBy string    `json:"recorded_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Attended counts late arrivals as attendance.
func (r Record) Attended() bool {
	return r.Status == StatusPresent || r.Status == StatusLate
}

// MarkAttendance records the attendance of many students on one day.
type MarkAttendance struct {
	Date    core.Date   `json:"date" validate:"required,notfuture"`
	Entries []MarkEntry `json:"entries" validate:"required,min=1,dive"`
}

type MarkEntry struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Status    string `json:"status" validate:"required,oneof=present absent late excused"`
	Remarks   string `json:"remarks" validate:"max=255"`
}

func (ma *MarkAttendance) Validate(validate *validator.Validate) error {
	seen := make(map[string]bool, len(ma.Entries))
	for i := range ma.Entries {
		e := &ma.Entries[i]
		e.Status = core.CleanString(e.Status, true /* lower */)
		e.Remarks = core.CleanString(e.Remarks)
		if seen[e.StudentID] {
			return core.NewFieldValidationError("entries", "duplicate student "+e.StudentID)
		}
		seen[e.StudentID] = true
	}
	return validate.Struct(ma)
}

type UpdateRecord struct {
	Status  *string `json:"status" validate:"omitempty,oneof=present absent late excused"`
	Remarks *string `json:"remarks" validate:"omitempty,max=255"`
}

func (ur *UpdateRecord) Validate(validate *validator.Validate) error {
	if ur.Status != nil {
		status := core.CleanString(*ur.Status, true /* lower */)
		ur.Status = &status
	}
	return validate.Struct(ur)
}

type QueryFilter struct {
	BranchID   string
	StudentID  string
	StudentIDs []string
	ClassName  string // resolved to StudentIDs by the Service
	DateFrom   core.Date
	DateTo     core.Date
	Statuses   []string
}

// Summary aggregates attendance records.
type Summary struct {
	Total          int     `json:"total"`
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	Late           int     `json:"late"`
	Excused        int     `json:"excused"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// DailySummary is the Summary of a single day.
type DailySummary struct {
	Date core.Date `json:"date"`
	Summary
}

// Summarize counts records by status; the rate is (present+late)/total in percent.
func Summarize(records []Record) Summary {
	var s Summary
	for _, r := range records {
		s.Total++
		switch r.Status {
		case StatusPresent:
			s.Present++
		case StatusAbsent:
			s.Absent++
		case StatusLate:
			s.Late++
		case StatusExcused:
			s.Excused++
		}
	}
	s.AttendanceRate = core.Percent(float64(s.Present+s.Late), float64(s.Total))
	return s
}
