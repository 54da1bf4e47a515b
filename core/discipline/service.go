package discipline

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

var (
	// errors
	ErrIncidentNotFound = core.NewNotFoundError("incident not found")
	ErrPointNotFound    = core.NewNotFoundError("behavior point not found")
	ErrRewardNotFound   = core.NewNotFoundError("reward not found")
	ErrContractNotFound = core.NewNotFoundError("behavior contract not found")
	ErrSessionNotFound  = core.NewNotFoundError("counseling session not found")

	ErrNotEnoughPoints = errors.New("student does not have enough points for this reward")
	ErrUnknownStudent  = errors.New("student does not exist")
)

type (
	Repository interface {
		CreateIncident(ctx context.Context, inc Incident) (Incident, error)
		QueryIncidents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Incident, int, error)
		GetIncident(ctx context.Context, id string) (Incident, error)
		UpdateIncident(ctx context.Context, inc Incident) (Incident, error)
		DeleteIncident(ctx context.Context, id string) error

		CreatePoint(ctx context.Context, bp BehaviorPoint) (BehaviorPoint, error)
		QueryPoints(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]BehaviorPoint, int, error)
		GetPoint(ctx context.Context, id string) (BehaviorPoint, error)
		UpdatePoint(ctx context.Context, bp BehaviorPoint) (BehaviorPoint, error)
		DeletePoint(ctx context.Context, id string) error

		// CreateReward stores the reward and, when set, the redemption deducting its cost, atomically.
		CreateReward(ctx context.Context, rw Reward, redemption *BehaviorPoint) (Reward, error)
		QueryRewards(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Reward, int, error)
		GetReward(ctx context.Context, id string) (Reward, error)
		UpdateReward(ctx context.Context, rw Reward) (Reward, error)
		DeleteReward(ctx context.Context, id string) error

		CreateContract(ctx context.Context, c Contract) (Contract, error)
		QueryContracts(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Contract, int, error)
		GetContract(ctx context.Context, id string) (Contract, error)
		UpdateContract(ctx context.Context, c Contract) (Contract, error)
		DeleteContract(ctx context.Context, id string) error

		CreateSession(ctx context.Context, s CounselingSession) (CounselingSession, error)
		QuerySessions(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]CounselingSession, int, error)
		GetSession(ctx context.Context, id string) (CounselingSession, error)
		UpdateSession(ctx context.Context, s CounselingSession) (CounselingSession, error)
		DeleteSession(ctx context.Context, id string) error
	}

	Service struct {
		repo     Repository
		students *student.Service
		mailSvc  core.EmailService
	}
)

func NewService(repo Repository, students *student.Service, mailSvc core.EmailService) *Service {
	return &Service{repo: repo, students: students, mailSvc: mailSvc}
}

// student finds the record's student; when branchID is set the student must belong to it.
func (svc *Service) student(ctx context.Context, id, branchID string) (student.Student, error) {
	st, err := svc.students.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return student.Student{}, core.NewFieldValidationError("student_id", ErrUnknownStudent.Error())
		}
		return student.Student{}, errors.Wrap(err, "finding student")
	}
	if branchID != "" && st.BranchID != branchID {
		return student.Student{}, core.NewFieldValidationError("student_id", ErrUnknownStudent.Error())
	}
	return st, nil
}

func parseID(id string, notFound error) error {
	if _, err := uuid.Parse(id); err != nil {
		return notFound
	}
	return nil
}

// Incidents

// CreateIncident emails the guardian when asked to and the student has a guardian email.
func (svc *Service) CreateIncident(ctx context.Context, ni NewIncident, branchID, reportedBy string) (Incident, error) {
	st, err := svc.student(ctx, ni.StudentID, branchID)
	if err != nil {
		return Incident{}, err
	}

	now := core.NowFunc()
	inc := Incident{
		ID:           uuid.NewString(),
		BranchID:     st.BranchID,
		StudentID:    st.ID,
		Title:        ni.Title,
		Description:  ni.Description,
		Category:     ni.Category,
		Severity:     ni.Severity,
		Status:       IncidentOpen,
		IncidentDate: ni.IncidentDate,
		Location:     ni.Location,
		ActionTaken:  ni.ActionTaken,
		ReportedBy:   reportedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	notify := ni.NotifyParent && st.GuardianEmail != ""
	inc.ParentNotified = notify

	inc, err = svc.repo.CreateIncident(ctx, inc)
	if err != nil {
		return Incident{}, err
	}
	if notify {
		svc.notifyGuardian(st, inc)
	}
	return inc, nil
}

func (svc *Service) notifyGuardian(st student.Student, inc Incident) {
	name := st.GuardianName
	if name == "" {
		name = "Parent/Guardian"
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: st.GuardianName, Address: st.GuardianEmail}},
		Subject:      "Disciplinary incident: " + st.FullName(),
		TemplateName: "incident_notification",
		TemplateData: map[string]string{
			"GuardianName": name,
			"StudentName":  st.FullName(),
			"Date":         inc.IncidentDate.String(),
			"Title":        inc.Title,
			"Severity":     inc.Severity,
			"ActionTaken":  inc.ActionTaken,
		},
	})
}

func (svc *Service) QueryIncidents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Incident, int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.QueryIncidents(ctx, filter, ordering, page.Normalize())
}

func (svc *Service) GetIncident(ctx context.Context, id string) (Incident, error) {
	if err := parseID(id, ErrIncidentNotFound); err != nil {
		return Incident{}, err
	}
	return svc.repo.GetIncident(ctx, id)
}

// UpdateIncident sets ResolvedAt when the incident gets resolved and clears it when re-opened.
func (svc *Service) UpdateIncident(ctx context.Context, inc Incident, ui UpdateIncident) (Incident, error) {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = core.CleanString(*src)
		}
	}
	setStr(&inc.Title, ui.Title)
	setStr(&inc.Description, ui.Description)
	setStr(&inc.Category, ui.Category)
	setStr(&inc.Severity, ui.Severity)
	setStr(&inc.Location, ui.Location)
	setStr(&inc.ActionTaken, ui.ActionTaken)
	if ui.IncidentDate != nil {
		inc.IncidentDate = *ui.IncidentDate
	}

	now := core.NowFunc()
	if ui.Status != nil && *ui.Status != inc.Status {
		inc.Status = *ui.Status
		if inc.Status == IncidentResolved {
			inc.ResolvedAt = now
		} else {
			inc.ResolvedAt = time.Time{}
		}
	}
	inc.UpdatedAt = now
	return svc.repo.UpdateIncident(ctx, inc)
}

func (svc *Service) DeleteIncident(ctx context.Context, id string) error {
	return svc.repo.DeleteIncident(ctx, id)
}

// Behavior points

func (svc *Service) CreatePoint(ctx context.Context, nb NewBehaviorPoint, branchID, awardedBy string) (BehaviorPoint, error) {
	st, err := svc.student(ctx, nb.StudentID, branchID)
	if err != nil {
		return BehaviorPoint{}, err
	}
	return svc.repo.CreatePoint(ctx, BehaviorPoint{
		ID:        uuid.NewString(),
		BranchID:  st.BranchID,
		StudentID: st.ID,
		Points:    nb.Points,
		Reason:    nb.Reason,
		Category:  nb.Category,
		AwardedBy: awardedBy,
		AwardedAt: core.NowFunc(),
	})
}

func (svc *Service) QueryPoints(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]BehaviorPoint, int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.QueryPoints(ctx, filter, ordering, page.Normalize())
}

func (svc *Service) GetPoint(ctx context.Context, id string) (BehaviorPoint, error) {
	if err := parseID(id, ErrPointNotFound); err != nil {
		return BehaviorPoint{}, err
	}
	return svc.repo.GetPoint(ctx, id)
}

func (svc *Service) UpdatePoint(ctx context.Context, bp BehaviorPoint, ub UpdateBehaviorPoint) (BehaviorPoint, error) {
	if ub.Points != nil {
		bp.Points = *ub.Points
	}
	if ub.Reason != nil {
		bp.Reason = core.CleanString(*ub.Reason)
	}
	if ub.Category != nil {
		bp.Category = core.CleanString(*ub.Category, true /* lower */)
	}
	return svc.repo.UpdatePoint(ctx, bp)
}

func (svc *Service) DeletePoint(ctx context.Context, id string) error {
	return svc.repo.DeletePoint(ctx, id)
}

// NetPoints sums every behavior point of the student, redemptions included.
func (svc *Service) NetPoints(ctx context.Context, studentID string) (int, error) {
	points, _, err := svc.repo.QueryPoints(ctx, &QueryFilter{StudentID: studentID}, nil, core.Pagination{})
	if err != nil {
		return 0, err
	}
	var net int
	for _, p := range points {
		net += p.Points
	}
	return net, nil
}

// Rewards

// CreateReward redeems the reward's PointsCost from the student's net points.
func (svc *Service) CreateReward(ctx context.Context, nr NewReward, branchID, awardedBy string) (Reward, error) {
	st, err := svc.student(ctx, nr.StudentID, branchID)
	if err != nil {
		return Reward{}, err
	}

	now := core.NowFunc()
	rw := Reward{
		ID:          uuid.NewString(),
		BranchID:    st.BranchID,
		StudentID:   st.ID,
		Title:       nr.Title,
		Description: nr.Description,
		Type:        nr.Type,
		PointsCost:  nr.PointsCost,
		AwardedBy:   awardedBy,
		AwardedAt:   now,
	}

	var redemption *BehaviorPoint
	if nr.PointsCost > 0 {
		net, err := svc.NetPoints(ctx, st.ID)
		if err != nil {
			return Reward{}, errors.Wrap(err, "computing net points")
		}
		if net < nr.PointsCost {
			return Reward{}, core.NewFieldValidationError("points_cost", ErrNotEnoughPoints.Error())
		}
		redemption = &BehaviorPoint{
			ID:        uuid.NewString(),
			BranchID:  st.BranchID,
			StudentID: st.ID,
			Points:    -nr.PointsCost,
			Reason:    "Redeemed: " + nr.Title,
			Category:  "redemption",
			AwardedBy: awardedBy,
			AwardedAt: now,
		}
	}
	return svc.repo.CreateReward(ctx, rw, redemption)
}

func (svc *Service) QueryRewards(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Reward, int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.QueryRewards(ctx, filter, ordering, page.Normalize())
}

func (svc *Service) GetReward(ctx context.Context, id string) (Reward, error) {
	if err := parseID(id, ErrRewardNotFound); err != nil {
		return Reward{}, err
	}
	return svc.repo.GetReward(ctx, id)
}

func (svc *Service) UpdateReward(ctx context.Context, rw Reward, ur UpdateReward) (Reward, error) {
	if ur.Title != nil {
		rw.Title = core.CleanString(*ur.Title)
	}
	if ur.Description != nil {
		rw.Description = core.CleanString(*ur.Description)
	}
	if ur.Type != nil {
		rw.Type = *ur.Type
	}
	return svc.repo.UpdateReward(ctx, rw)
}

func (svc *Service) DeleteReward(ctx context.Context, id string) error {
	return svc.repo.DeleteReward(ctx, id)
}

// Contracts

func (svc *Service) CreateContract(ctx context.Context, nc NewContract, branchID, createdBy string) (Contract, error) {
	st, err := svc.student(ctx, nc.StudentID, branchID)
	if err != nil {
		return Contract{}, err
	}
	now := core.NowFunc()
	return svc.repo.CreateContract(ctx, Contract{
		ID:           uuid.NewString(),
		BranchID:     st.BranchID,
		StudentID:    st.ID,
		Title:        nc.Title,
		Goals:        nc.Goals,
		Consequences: nc.Consequences,
		StartDate:    nc.StartDate,
		EndDate:      nc.EndDate,
		Status:       ContractActive,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *Service) QueryContracts(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Contract, int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.QueryContracts(ctx, filter, ordering, page.Normalize())
}

func (svc *Service) GetContract(ctx context.Context, id string) (Contract, error) {
	if err := parseID(id, ErrContractNotFound); err != nil {
		return Contract{}, err
	}
	return svc.repo.GetContract(ctx, id)
}

func (svc *Service) UpdateContract(ctx context.Context, c Contract, uc UpdateContract) (Contract, error) {
	if uc.Title != nil {
		c.Title = core.CleanString(*uc.Title)
	}
	if uc.Goals != nil {
		c.Goals = uc.Goals
	}
	if uc.Consequences != nil {
		c.Consequences = core.CleanString(*uc.Consequences)
	}
	if uc.StartDate != nil {
		c.StartDate = *uc.StartDate
	}
	if uc.EndDate != nil {
		c.EndDate = *uc.EndDate
	}
	if uc.Status != nil {
		c.Status = *uc.Status
	}
	if uc.ReviewNotes != nil {
		c.ReviewNotes = core.CleanString(*uc.ReviewNotes)
	}
	c.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateContract(ctx, c)
}

func (svc *Service) DeleteContract(ctx context.Context, id string) error {
	return svc.repo.DeleteContract(ctx, id)
}

// Counseling sessions

// CreateSession defaults the counselor to the user creating the session.
func (svc *Service) CreateSession(ctx context.Context, ns NewSession, branchID, createdBy string) (CounselingSession, error) {
	st, err := svc.student(ctx, ns.StudentID, branchID)
	if err != nil {
		return CounselingSession{}, err
	}
	counselor := ns.CounselorID
	if counselor == "" {
		counselor = createdBy
	}
	now := core.NowFunc()
	return svc.repo.CreateSession(ctx, CounselingSession{
		ID:           uuid.NewString(),
		BranchID:     st.BranchID,
		StudentID:    st.ID,
		CounselorID:  counselor,
		SessionDate:  ns.SessionDate.UTC(),
		Topic:        ns.Topic,
		Notes:        ns.Notes,
		FollowUpDate: ns.FollowUpDate,
		Status:       SessionScheduled,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *Service) QuerySessions(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]CounselingSession, int, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.QuerySessions(ctx, filter, ordering, page.Normalize())
}

func (svc *Service) GetSession(ctx context.Context, id string) (CounselingSession, error) {
	if err := parseID(id, ErrSessionNotFound); err != nil {
		return CounselingSession{}, err
	}
	return svc.repo.GetSession(ctx, id)
}

func (svc *Service) UpdateSession(ctx context.Context, s CounselingSession, us UpdateSession) (CounselingSession, error) {
	if us.SessionDate != nil {
		s.SessionDate = us.SessionDate.UTC()
	}
	if us.Topic != nil {
		s.Topic = core.CleanString(*us.Topic)
	}
	if us.Notes != nil {
		s.Notes = core.CleanString(*us.Notes)
	}
	if us.FollowUpDate != nil {
		s.FollowUpDate = *us.FollowUpDate
	}
	if us.Status != nil {
		s.Status = *us.Status
	}
	if !s.FollowUpDate.IsZero() && s.FollowUpDate.Before(core.DateOf(s.SessionDate)) {
		return CounselingSession{}, core.NewFieldValidationError("follow_up_date", "follow-up date cannot be before the session")
	}
	s.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateSession(ctx, s)
}

func (svc *Service) DeleteSession(ctx context.Context, id string) error {
	return svc.repo.DeleteSession(ctx, id)
}
