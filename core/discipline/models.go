package discipline

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Incident severities
const (
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeverityMajor    = "major"
	SeveritySevere   = "severe"
)

// Incident statuses
const (
	IncidentOpen          = "open"
	IncidentInvestigating = "investigating"
	IncidentResolved      = "resolved"
	IncidentEscalated     = "escalated"
)

// Reward types
const (
	RewardCertificate = "certificate"
	RewardPrivilege   = "privilege"
	RewardPrize       = "prize"
	RewardRecognition = "recognition"
)

// Contract statuses
const (
	ContractActive    = "active"
	ContractCompleted = "completed"
	ContractBreached  = "breached"
	ContractCancelled = "cancelled"
)

// Counseling session statuses
const (
	SessionScheduled = "scheduled"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

const maxPoints = 100

var (
	Severities       = []string{SeverityMinor, SeverityModerate, SeverityMajor, SeveritySevere}
	IncidentStatuses = []string{IncidentOpen, IncidentInvestigating, IncidentResolved, IncidentEscalated}
	RewardTypes      = []string{RewardCertificate, RewardPrivilege, RewardPrize, RewardRecognition}
	ContractStatuses = []string{ContractActive, ContractCompleted, ContractBreached, ContractCancelled}
	SessionStatuses  = []string{SessionScheduled, SessionCompleted, SessionCancelled}

	// OrderingFields per listing
	IncidentOrderingFields = []string{"incident_date", "severity", "status", "category", "created_at"}
	PointOrderingFields    = []string{"awarded_at", "points", "category"}
	RewardOrderingFields   = []string{"awarded_at", "points_cost", "type"}
	ContractOrderingFields = []string{"start_date", "end_date", "status", "created_at"}
	SessionOrderingFields  = []string{"session_date", "follow_up_date", "status", "created_at"}
)

// Incident

type Incident struct {
	ID             string    `json:"id"`
	BranchID       string    `json:"branch_id"`
	StudentID      string    `json:"student_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	Severity       string    `json:"severity"`
	Status         string    `json:"status"`
	IncidentDate   core.Date `json:"incident_date"`
	Location       string    `json:"location"`
	ActionTaken    string    `json:"action_taken"`
	ReportedBy     string    `json:"reported_by"`
	ParentNotified bool      `json:"parent_notified"`
	ResolvedAt     time.Time `json:"resolved_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (i Incident) IsOpen() bool {
	return i.Status == IncidentOpen || i.Status == IncidentInvestigating || i.Status == IncidentEscalated
}

type NewIncident struct {
	StudentID    string    `json:"student_id" validate:"required,uuid"`
	Title        string    `json:"title" validate:"required,max=128"`
	Description  string    `json:"description" validate:"max=2000"`
	Category     string    `json:"category" validate:"required,max=64"`
	Severity     string    `json:"severity" validate:"required,oneof=minor moderate major severe"`
	IncidentDate core.Date `json:"incident_date" validate:"required,notfuture"`
	Location     string    `json:"location" validate:"max=128"`
	ActionTaken  string    `json:"action_taken" validate:"max=2000"`
	NotifyParent bool      `json:"notify_parent"`
}

func (ni *NewIncident) Validate(validate *validator.Validate) error {
	ni.Title = core.CleanString(ni.Title)
	ni.Description = core.CleanString(ni.Description)
	ni.Category = core.CleanString(ni.Category, true /* lower */)
	ni.Severity = core.CleanString(ni.Severity, true /* lower */)
	ni.Location = core.CleanString(ni.Location)
	ni.ActionTaken = core.CleanString(ni.ActionTaken)
	return validate.Struct(ni)
}

type UpdateIncident struct {
	Title        *string    `json:"title" validate:"omitempty,max=128"`
	Description  *string    `json:"description" validate:"omitempty,max=2000"`
	Category     *string    `json:"category" validate:"omitempty,max=64"`
	Severity     *string    `json:"severity" validate:"omitempty,oneof=minor moderate major severe"`
	Status       *string    `json:"status" validate:"omitempty,oneof=open investigating resolved escalated"`
	IncidentDate *core.Date `json:"incident_date" validate:"omitempty,notfuture"`
	Location     *string    `json:"location" validate:"omitempty,max=128"`
	ActionTaken  *string    `json:"action_taken" validate:"omitempty,max=2000"`
}

func (ui *UpdateIncident) Validate(validate *validator.Validate) error {
	lower := func(s *string) {
		if s != nil {
			*s = core.CleanString(*s, true /* lower */)
		}
	}
	lower(ui.Category)
	lower(ui.Severity)
	lower(ui.Status)
	return validate.Struct(ui)
}

// BehaviorPoint: positive points are awards, negative ones deductions.

type BehaviorPoint struct {
	ID        string    `json:"id"`
	BranchID  string    `json:"branch_id"`
	StudentID string    `json:"student_id"`
	Points    int       `json:"points"`
	Reason    string    `json:"reason"`
	Category  string    `json:"category"`
	AwardedBy string    `json:"awarded_by"`
	AwardedAt time.Time `json:"awarded_at"`
}

type NewBehaviorPoint struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Points    int    `json:"points" validate:"ne=0,min=-100,max=100"`
	Reason    string `json:"reason" validate:"required,max=255"`
	Category  string `json:"category" validate:"max=64"`
}

func (nb *NewBehaviorPoint) Validate(validate *validator.Validate) error {
	nb.Reason = core.CleanString(nb.Reason)
	nb.Category = core.CleanString(nb.Category, true /* lower */)
	return validate.Struct(nb)
}

type UpdateBehaviorPoint struct {
	Points   *int    `json:"points" validate:"omitempty,ne=0,min=-100,max=100"`
	Reason   *string `json:"reason" validate:"omitempty,max=255"`
	Category *string `json:"category" validate:"omitempty,max=64"`
}

func (ub *UpdateBehaviorPoint) Validate(validate *validator.Validate) error {
	if ub.Points != nil && *ub.Points == 0 {
		return core.NewFieldValidationError("points", "points cannot be zero")
	}
	return validate.Struct(ub)
}

// Reward

type Reward struct {
	ID          string    `json:"id"`
	BranchID    string    `json:"branch_id"`
	StudentID   string    `json:"student_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	PointsCost  int       `json:"points_cost"`
	AwardedBy   string    `json:"awarded_by"`
	AwardedAt   time.Time `json:"awarded_at"`
}

type NewReward struct {
	StudentID   string `json:"student_id" validate:"required,uuid"`
	Title       string `json:"title" validate:"required,max=128"`
	Description string `json:"description" validate:"max=2000"`
	Type        string `json:"type" validate:"required,oneof=certificate privilege prize recognition"`
	PointsCost  int    `json:"points_cost" validate:"gte=0,max=100"` // redeemed as a single behavior point
}

func (nr *NewReward) Validate(validate *validator.Validate) error {
	nr.Title = core.CleanString(nr.Title)
	nr.Description = core.CleanString(nr.Description)
	nr.Type = core.CleanString(nr.Type, true /* lower */)
	return validate.Struct(nr)
}

type UpdateReward struct {
	Title       *string `json:"title" validate:"omitempty,max=128"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Type        *string `json:"type" validate:"omitempty,oneof=certificate privilege prize recognition"`
}

func (ur *UpdateReward) Validate(validate *validator.Validate) error { return validate.Struct(ur) }

// Contract is a behavior contract agreed with a student.

type Contract struct {
	ID           string    `json:"id"`
	BranchID     string    `json:"branch_id"`
	StudentID    string    `json:"student_id"`
	Title        string    `json:"title"`
	Goals        []string  `json:"goals"`
	Consequences string    `json:"consequences"`
	StartDate    core.Date `json:"start_date"`
	EndDate      core.Date `json:"end_date"`
	Status       string    `json:"status"`
	ReviewNotes  string    `json:"review_notes"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type NewContract struct {
	StudentID    string    `json:"student_id" validate:"required,uuid"`
	Title        string    `json:"title" validate:"required,max=128"`
	Goals        []string  `json:"goals" validate:"required,min=1,dive,required,max=255"`
	Consequences string    `json:"consequences" validate:"max=2000"`
	StartDate    core.Date `json:"start_date" validate:"required"`
	EndDate      core.Date `json:"end_date" validate:"required"`
}

func (nc *NewContract) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Consequences = core.CleanString(nc.Consequences)
	nc.Goals = cleanGoals(nc.Goals)
	if err := validate.Struct(nc); err != nil {
		return err
	}
	if !nc.EndDate.After(nc.StartDate) {
		return core.NewFieldValidationError("end_date", "end date must be after start date")
	}
	return nil
}

type UpdateContract struct {
	Title        *string    `json:"title" validate:"omitempty,max=128"`
	Goals        []string   `json:"goals" validate:"omitempty,min=1,dive,required,max=255"`
	Consequences *string    `json:"consequences" validate:"omitempty,max=2000"`
	StartDate    *core.Date `json:"start_date"`
	EndDate      *core.Date `json:"end_date"`
	Status       *string    `json:"status" validate:"omitempty,oneof=active completed breached cancelled"`
	ReviewNotes  *string    `json:"review_notes" validate:"omitempty,max=2000"`
}

func (uc *UpdateContract) Validate(orig Contract, validate *validator.Validate) error {
	if uc.Goals != nil {
		uc.Goals = cleanGoals(uc.Goals)
		if len(uc.Goals) == 0 {
			return core.NewFieldValidationError("goals", "at least one goal is required")
		}
	}
	if err := validate.Struct(uc); err != nil {
		return err
	}
	start, end := orig.StartDate, orig.EndDate
	if uc.StartDate != nil {
		start = *uc.StartDate
	}
	if uc.EndDate != nil {
		end = *uc.EndDate
	}
	if !end.After(start) {
		return core.NewFieldValidationError("end_date", "end date must be after start date")
	}
	return nil
}

func cleanGoals(goals []string) []string {
	out := make([]string, 0, len(goals))
	for _, g := range goals {
		if g = core.CleanString(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

// CounselingSession

type CounselingSession struct {
	ID           string    `json:"id"`
	BranchID     string    `json:"branch_id"`
	StudentID    string    `json:"student_id"`
	CounselorID  string    `json:"counselor_id"`
	SessionDate  time.Time `json:"session_date"`
	Topic        string    `json:"topic"`
	Notes        string    `json:"notes"`
	FollowUpDate core.Date `json:"follow_up_date"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type NewSession struct {
	StudentID    string    `json:"student_id" validate:"required,uuid"`
	CounselorID  string    `json:"counselor_id" validate:"omitempty,uuid"`
	SessionDate  time.Time `json:"session_date" validate:"required"`
	Topic        string    `json:"topic" validate:"required,max=128"`
	Notes        string    `json:"notes" validate:"max=5000"`
	FollowUpDate core.Date `json:"follow_up_date"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.Topic = core.CleanString(ns.Topic)
	ns.Notes = core.CleanString(ns.Notes)
	if err := validate.Struct(ns); err != nil {
		return err
	}
	if !ns.FollowUpDate.IsZero() && ns.FollowUpDate.Before(core.DateOf(ns.SessionDate)) {
		return core.NewFieldValidationError("follow_up_date", "follow-up date cannot be before the session")
	}
	return nil
}

type UpdateSession struct {
	SessionDate  *time.Time `json:"session_date"`
	Topic        *string    `json:"topic" validate:"omitempty,max=128"`
	Notes        *string    `json:"notes" validate:"omitempty,max=5000"`
	FollowUpDate *core.Date `json:"follow_up_date"`
	Status       *string    `json:"status" validate:"omitempty,oneof=scheduled completed cancelled"`
}

func (us *UpdateSession) Validate(validate *validator.Validate) error { return validate.Struct(us) }

// QueryFilter is shared by every disciplinary listing; fields a listing has no use for are ignored.
type QueryFilter struct {
	BranchID    string
	StudentID   string
	StudentIDs  []string
	Statuses    []string
	Severities  []string
	Category    string
	Type        string
	CounselorID string
	DateFrom    core.Date
	DateTo      core.Date
}

func (qf *QueryFilter) Clean() {
	qf.Category = core.CleanString(qf.Category, true /* lower */)
	qf.Type = core.CleanString(qf.Type, true /* lower */)
}
