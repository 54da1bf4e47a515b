package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/discipline"
)

var (
	incidentTable = table{
		name: "incidents",
		columns: []string{
			"id", "branch_id", "student_id", "title", "description", "category", "severity", "status", "incident_date",
			"location", "action_taken", "reported_by", "parent_notified", "resolved_at", "created_at", "updated_at",
		},
		insertOnly: []string{"branch_id", "student_id", "reported_by", "created_at"},
		notFound:   discipline.ErrIncidentNotFound,
	}
	pointTable = table{
		name:       "behavior_points",
		columns:    []string{"id", "branch_id", "student_id", "points", "reason", "category", "awarded_by", "awarded_at"},
		insertOnly: []string{"branch_id", "student_id", "awarded_by", "awarded_at"},
		notFound:   discipline.ErrPointNotFound,
	}
	rewardTable = table{
		name:       "rewards",
		columns:    []string{"id", "branch_id", "student_id", "title", "description", "type", "points_cost", "awarded_by", "awarded_at"},
		insertOnly: []string{"branch_id", "student_id", "points_cost", "awarded_by", "awarded_at"},
		notFound:   discipline.ErrRewardNotFound,
	}
	contractTable = table{
		name: "contracts",
		columns: []string{
			"id", "branch_id", "student_id", "title", "goals", "consequences", "start_date", "end_date",
			"status", "review_notes", "created_by", "created_at", "updated_at",
		},
		insertOnly: []string{"branch_id", "student_id", "created_by", "created_at"},
		notFound:   discipline.ErrContractNotFound,
	}
	sessionTable = table{
		name: "counseling_sessions",
		columns: []string{
			"id", "branch_id", "student_id", "counselor_id", "session_date", "topic", "notes",
			"follow_up_date", "status", "created_at", "updated_at",
		},
		insertOnly: []string{"branch_id", "student_id", "created_at"},
		notFound:   discipline.ErrSessionNotFound,
	}
)

type disciplineRepository struct {
	db *sqlx.DB
}

var _ discipline.Repository = (*disciplineRepository)(nil)

func NewDisciplineRepository(db *sqlx.DB) discipline.Repository {
	return &disciplineRepository{db: db}
}

// disciplineWhere holds the conditions shared by every disciplinary listing.
func disciplineWhere(filter *discipline.QueryFilter) *where {
	w := new(where)
	w.idEq("branch_id", filter.BranchID)
	w.idEq("student_id", filter.StudentID)
	w.inIDs("student_id", filter.StudentIDs)
	return w
}

// Incidents

type incidentRow struct {
	ID             string      `db:"id"`
	BranchID       string      `db:"branch_id"`
	StudentID      string      `db:"student_id"`
	Title          string      `db:"title"`
	Description    string      `db:"description"`
	Category       string      `db:"category"`
	Severity       string      `db:"severity"`
	Status         string      `db:"status"`
	IncidentDate   core.Date   `db:"incident_date"`
	Location       string      `db:"location"`
	ActionTaken    string      `db:"action_taken"`
	ReportedBy     null.String `db:"reported_by"`
	ParentNotified bool        `db:"parent_notified"`
	ResolvedAt     null.Time   `db:"resolved_at"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func toIncidentRow(i discipline.Incident) incidentRow {
	return incidentRow{
		ID:             i.ID,
		BranchID:       i.BranchID,
		StudentID:      i.StudentID,
		Title:          i.Title,
		Description:    i.Description,
		Category:       i.Category,
		Severity:       i.Severity,
		Status:         i.Status,
		IncidentDate:   i.IncidentDate,
		Location:       i.Location,
		ActionTaken:    i.ActionTaken,
		ReportedBy:     nullString(i.ReportedBy),
		ParentNotified: i.ParentNotified,
		ResolvedAt:     nullTime(i.ResolvedAt),
		CreatedAt:      i.CreatedAt.UTC(),
		UpdatedAt:      i.UpdatedAt.UTC(),
	}
}

func (row incidentRow) incident() discipline.Incident {
	return discipline.Incident{
		ID:             row.ID,
		BranchID:       row.BranchID,
		StudentID:      row.StudentID,
		Title:          row.Title,
		Description:    row.Description,
		Category:       row.Category,
		Severity:       row.Severity,
		Status:         row.Status,
		IncidentDate:   row.IncidentDate,
		Location:       row.Location,
		ActionTaken:    row.ActionTaken,
		ReportedBy:     row.ReportedBy.String,
		ParentNotified: row.ParentNotified,
		ResolvedAt:     fromNullTime(row.ResolvedAt),
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func (repo *disciplineRepository) CreateIncident(ctx context.Context, inc discipline.Incident) (discipline.Incident, error) {
	row := toIncidentRow(inc)
	if err := incidentTable.create(ctx, repo.db, row); err != nil {
		return discipline.Incident{}, err
	}
	return row.incident(), nil
}

func (repo *disciplineRepository) QueryIncidents(ctx context.Context, filter *discipline.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]discipline.Incident, int, error) {
	if filter == nil {
		filter = new(discipline.QueryFilter)
	}
	w := disciplineWhere(filter)
	w.in("status", filter.Statuses)
	w.in("severity", filter.Severities)
	w.eq("category", filter.Category)
	w.dateRange("incident_date", filter.DateFrom, filter.DateTo)
	order := orderBy(ordering, discipline.IncidentOrderingFields, core.DBOrdering{Field: "incident_date"}, core.DBOrdering{Field: "created_at"})

	rows, total, err := queryRows[incidentRow](ctx, repo.db, incidentTable, w, order, page)
	if err != nil {
		return nil, 0, err
	}
	return mapRows(rows, incidentRow.incident), total, nil
}

func (repo *disciplineRepository) GetIncident(ctx context.Context, id string) (discipline.Incident, error) {
	row, err := getRow[incidentRow](ctx, repo.db, incidentTable, id)
	if err != nil {
		return discipline.Incident{}, err
	}
	return row.incident(), nil
}

func (repo *disciplineRepository) UpdateIncident(ctx context.Context, inc discipline.Incident) (discipline.Incident, error) {
	row := toIncidentRow(inc)
	if err := incidentTable.update(ctx, repo.db, inc.ID, row); err != nil {
		return discipline.Incident{}, err
	}
	return row.incident(), nil
}

func (repo *disciplineRepository) DeleteIncident(ctx context.Context, id string) error {
	return incidentTable.delete(ctx, repo.db, id)
}

// Behavior points

type pointRow struct {
	ID        string      `db:"id"`
	BranchID  string      `db:"branch_id"`
	StudentID string      `db:"student_id"`
	Points    int         `db:"points"`
	Reason    string      `db:"reason"`
	Category  string      `db:"category"`
	AwardedBy null.String `db:"awarded_by"`
	AwardedAt time.Time   `db:"awarded_at"`
}

func toPointRow(bp discipline.BehaviorPoint) pointRow {
	return pointRow{
		ID:        bp.ID,
		BranchID:  bp.BranchID,
		StudentID: bp.StudentID,
		Points:    bp.Points,
		Reason:    bp.Reason,
		Category:  bp.Category,
		AwardedBy: nullString(bp.AwardedBy),
		AwardedAt: bp.AwardedAt.UTC(),
	}
}

func (row pointRow) point() discipline.BehaviorPoint {
	return discipline.BehaviorPoint{
		ID:        row.ID,
		BranchID:  row.BranchID,
		StudentID: row.StudentID,
		Points:    row.Points,
		Reason:    row.Reason,
		Category:  row.Category,
		AwardedBy: row.AwardedBy.String,
		AwardedAt: row.AwardedAt.UTC(),
	}
}

func (repo *disciplineRepository) CreatePoint(ctx context.Context, bp discipline.BehaviorPoint) (discipline.BehaviorPoint, error) {
	row := toPointRow(bp)
	if err := pointTable.create(ctx, repo.db, row); err != nil {
		return discipline.BehaviorPoint{}, err
	}
	return row.point(), nil
}

func (repo *disciplineRepository) QueryPoints(ctx context.Context, filter *discipline.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]discipline.BehaviorPoint, int, error) {
	if filter == nil {
		filter = new(discipline.QueryFilter)
	}
	w := disciplineWhere(filter)
	w.eq("category", filter.Category)
	w.timeRange("awarded_at", filter.DateFrom, filter.DateTo)
	order := orderBy(ordering, discipline.PointOrderingFields, core.DBOrdering{Field: "awarded_at"})

	rows, total, err := queryRows[pointRow](ctx, repo.db, pointTable, w, order, page)
	if err != nil {
		return nil, 0, err
	}
	return mapRows(rows, pointRow.point), total, nil
}

func (repo *disciplineRepository) GetPoint(ctx context.Context, id string) (discipline.BehaviorPoint, error) {
	row, err := getRow[pointRow](ctx, repo.db, pointTable, id)
	if err != nil {
		return discipline.BehaviorPoint{}, err
	}
	return row.point(), nil
}

func (repo *disciplineRepository) UpdatePoint(ctx context.Context, bp discipline.BehaviorPoint) (discipline.BehaviorPoint, error) {
	row := toPointRow(bp)
	if err := pointTable.update(ctx, repo.db, bp.ID, row); err != nil {
		return discipline.BehaviorPoint{}, err
	}
	return row.point(), nil
}

func (repo *disciplineRepository) DeletePoint(ctx context.Context, id string) error {
	return pointTable.delete(ctx, repo.db, id)
}

// Rewards

type rewardRow struct {
	ID          string      `db:"id"`
	BranchID    string      `db:"branch_id"`
	StudentID   string      `db:"student_id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	Type        string      `db:"type"`
	PointsCost  int         `db:"points_cost"`
	AwardedBy   null.String `db:"awarded_by"`
	AwardedAt   time.Time   `db:"awarded_at"`
}

func toRewardRow(rw discipline.Reward) rewardRow {
	return rewardRow{
		ID:          rw.ID,
		BranchID:    rw.BranchID,
		StudentID:   rw.StudentID,
		Title:       rw.Title,
		Description: rw.Description,
		Type:        rw.Type,
		PointsCost:  rw.PointsCost,
		AwardedBy:   nullString(rw.AwardedBy),
		AwardedAt:   rw.AwardedAt.UTC(),
	}
}

func (row rewardRow) reward() discipline.Reward {
	return discipline.Reward{
		ID:          row.ID,
		BranchID:    row.BranchID,
		StudentID:   row.StudentID,
		Title:       row.Title,
		Description: row.Description,
		Type:        row.Type,
		PointsCost:  row.PointsCost,
		AwardedBy:   row.AwardedBy.String,
		AwardedAt:   row.AwardedAt.UTC(),
	}
}

// CreateReward stores the reward and its points redemption together.
func (repo *disciplineRepository) CreateReward(ctx context.Context, rw discipline.Reward, redemption *discipline.BehaviorPoint) (discipline.Reward, error) {
	row := toRewardRow(rw)
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if redemption != nil {
			if err := pointTable.create(ctx, tx, toPointRow(*redemption)); err != nil {
				return err
			}
		}
		return rewardTable.create(ctx, tx, row)
	})
	if err != nil {
		return discipline.Reward{}, err
	}
	return row.reward(), nil
}

func (repo *disciplineRepository) QueryRewards(ctx context.Context, filter *discipline.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]discipline.Reward, int, error) {
	if filter == nil {
		filter = new(discipline.QueryFilter)
	}
	w := disciplineWhere(filter)
	w.eq("type", filter.Type)
	w.timeRange("awarded_at", filter.DateFrom, filter.DateTo)
	order := orderBy(ordering, discipline.RewardOrderingFields, core.DBOrdering{Field: "awarded_at"})

	rows, total, err := queryRows[rewardRow](ctx, repo.db, rewardTable, w, order, page)
	if err != nil {
		return nil, 0, err
	}
	return mapRows(rows, rewardRow.reward), total, nil
}

func (repo *disciplineRepository) GetReward(ctx context.Context, id string) (discipline.Reward, error) {
	row, err := getRow[rewardRow](ctx, repo.db, rewardTable, id)
	if err != nil {
		return discipline.Reward{}, err
	}
	return row.reward(), nil
}

func (repo *disciplineRepository) UpdateReward(ctx context.Context, rw discipline.Reward) (discipline.Reward, error) {
	row := toRewardRow(rw)
	if err := rewardTable.update(ctx, repo.db, rw.ID, row); err != nil {
		return discipline.Reward{}, err
	}
	return row.reward(), nil
}

func (repo *disciplineRepository) DeleteReward(ctx context.Context, id string) error {
	return rewardTable.delete(ctx, repo.db, id)
}

// Contracts

type contractRow struct {
	ID           string         `db:"id"`
	BranchID     string         `db:"branch_id"`
	StudentID    string         `db:"student_id"`
	Title        string         `db:"title"`
	Goals        pq.StringArray `db:"goals"`
	Consequences string         `db:"consequences"`
	StartDate    core.Date      `db:"start_date"`
	EndDate      core.Date      `db:"end_date"`
	Status       string         `db:"status"`
	ReviewNotes  string         `db:"review_notes"`
	CreatedBy    null.String    `db:"created_by"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func toContractRow(c discipline.Contract) contractRow {
	goals := c.Goals
	if goals == nil {
		goals = []string{}
	}
	return contractRow{
		ID:           c.ID,
		BranchID:     c.BranchID,
		StudentID:    c.StudentID,
		Title:        c.Title,
		Goals:        goals,
		Consequences: c.Consequences,
		StartDate:    c.StartDate,
		EndDate:      c.EndDate,
		Status:       c.Status,
		ReviewNotes:  c.ReviewNotes,
		CreatedBy:    nullString(c.CreatedBy),
		CreatedAt:    c.CreatedAt.UTC(),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
}

func (row contractRow) contract() discipline.Contract {
	goals := []string(row.Goals)
	if goals == nil {
		goals = []string{}
	}
	return discipline.Contract{
		ID:           row.ID,
		BranchID:     row.BranchID,
		StudentID:    row.StudentID,
		Title:        row.Title,
		Goals:        goals,
		Consequences: row.Consequences,
		StartDate:    row.StartDate,
		EndDate:      row.EndDate,
		Status:       row.Status,
		ReviewNotes:  row.ReviewNotes,
		CreatedBy:    row.CreatedBy.String,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

func (repo *disciplineRepository) CreateContract(ctx context.Context, c discipline.Contract) (discipline.Contract, error) {
	row := toContractRow(c)
	if err := contractTable.create(ctx, repo.db, row); err != nil {
		return discipline.Contract{}, err
	}
	return row.contract(), nil
}

func (repo *disciplineRepository) QueryContracts(ctx context.Context, filter *discipline.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]discipline.Contract, int, error) {
	if filter == nil {
		filter = new(discipline.QueryFilter)
	}
	w := disciplineWhere(filter)
	w.in("status", filter.Statuses)
	w.dateRange("start_date", filter.DateFrom, filter.DateTo)
	order := orderBy(ordering, discipline.ContractOrderingFields, core.DBOrdering{Field: "start_date"}, core.DBOrdering{Field: "created_at"})

	rows, total, err := queryRows[contractRow](ctx, repo.db, contractTable, w, order, page)
	if err != nil {
		return nil, 0, err
	}
	return mapRows(rows, contractRow.contract), total, nil
}

func (repo *disciplineRepository) GetContract(ctx context.Context, id string) (discipline.Contract, error) {
	row, err := getRow[contractRow](ctx, repo.db, contractTable, id)
	if err != nil {
		return discipline.Contract{}, err
	}
	return row.contract(), nil
}

func (repo *disciplineRepository) UpdateContract(ctx context.Context, c discipline.Contract) (discipline.Contract, error) {
	row := toContractRow(c)
	if err := contractTable.update(ctx, repo.db, c.ID, row); err != nil {
		return discipline.Contract{}, err
	}
	return row.contract(), nil
}

func (repo *disciplineRepository) DeleteContract(ctx context.Context, id string) error {
	return contractTable.delete(ctx, repo.db, id)
}

// Counseling sessions

type sessionRow struct {
	ID           string      `db:"id"`
	BranchID     string      `db:"branch_id"`
	StudentID    string      `db:"student_id"`
	CounselorID  null.String `db:"counselor_id"`
	SessionDate  time.Time   `db:"session_date"`
	Topic        string      `db:"topic"`
	Notes        string      `db:"notes"`
	FollowUpDate core.Date   `db:"follow_up_date"`
	Status       string      `db:"status"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func toSessionRow(s discipline.CounselingSession) sessionRow {
	return sessionRow{
		ID:           s.ID,
		BranchID:     s.BranchID,
		StudentID:    s.StudentID,
		CounselorID:  nullString(s.CounselorID),
		SessionDate:  s.SessionDate.UTC(),
		Topic:        s.Topic,
		Notes:        s.Notes,
		FollowUpDate: s.FollowUpDate,
		Status:       s.Status,
		CreatedAt:    s.CreatedAt.UTC(),
		UpdatedAt:    s.UpdatedAt.UTC(),
	}
}

func (row sessionRow) session() discipline.CounselingSession {
	return discipline.CounselingSession{
		ID:           row.ID,
		BranchID:     row.BranchID,
		StudentID:    row.StudentID,
		CounselorID:  row.CounselorID.String,
		SessionDate:  row.SessionDate.UTC(),
		Topic:        row.Topic,
		Notes:        row.Notes,
		FollowUpDate: row.FollowUpDate,
		Status:       row.Status,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

func (repo *disciplineRepository) CreateSession(ctx context.Context, s discipline.CounselingSession) (discipline.CounselingSession, error) {
	row := toSessionRow(s)
	if err := sessionTable.create(ctx, repo.db, row); err != nil {
		return discipline.CounselingSession{}, err
	}
	return row.session(), nil
}

func (repo *disciplineRepository) QuerySessions(ctx context.Context, filter *discipline.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]discipline.CounselingSession, int, error) {
	if filter == nil {
		filter = new(discipline.QueryFilter)
	}
	w := disciplineWhere(filter)
	w.idEq("counselor_id", filter.CounselorID)
	w.in("status", filter.Statuses)
	w.timeRange("session_date", filter.DateFrom, filter.DateTo)
	order := orderBy(ordering, discipline.SessionOrderingFields, core.DBOrdering{Field: "session_date"})

	rows, total, err := queryRows[sessionRow](ctx, repo.db, sessionTable, w, order, page)
	if err != nil {
		return nil, 0, err
	}
	return mapRows(rows, sessionRow.session), total, nil
}

func (repo *disciplineRepository) GetSession(ctx context.Context, id string) (discipline.CounselingSession, error) {
	row, err := getRow[sessionRow](ctx, repo.db, sessionTable, id)
	if err != nil {
		return discipline.CounselingSession{}, err
	}
	return row.session(), nil
}

func (repo *disciplineRepository) UpdateSession(ctx context.Context, s discipline.CounselingSession) (discipline.CounselingSession, error) {
	row := toSessionRow(s)
	if err := sessionTable.update(ctx, repo.db, s.ID, row); err != nil {
		return discipline.CounselingSession{}, err
	}
	return row.session(), nil
}

func (repo *disciplineRepository) DeleteSession(ctx context.Context, id string) error {
	return sessionTable.delete(ctx, repo.db, id)
}
