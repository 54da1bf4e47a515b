package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/discipline"
)

type disciplineRepository struct {
	root      *DB
	incidents *table[discipline.Incident]
	points    *table[discipline.BehaviorPoint]
	rewards   *table[discipline.Reward]
	contracts *table[discipline.Contract]
	sessions  *table[discipline.CounselingSession]
}

func NewDisciplineRepository(db *DB) discipline.Repository {
	return &disciplineRepository{
		root:      db,
		incidents: db.incident,
		points:    db.point,
		rewards:   db.reward,
		contracts: db.contract,
		sessions:  db.session,
	}
}

// create, get, update & remove are shared by every disciplinary table.

func create[T any](t *table[T], id string, row T) T {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.rows[id] = &row
	return row
}

func get[T any](t *table[T], id string, notFound error) (T, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if row, ok := t.rows[id]; ok {
		return *row, nil
	}
	var zero T
	return zero, notFound
}

func update[T any](t *table[T], id string, row T, notFound error) (T, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if _, ok := t.rows[id]; !ok {
		var zero T
		return zero, notFound
	}
	t.rows[id] = &row
	return row, nil
}

func remove[T any](t *table[T], id string, notFound error) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if _, ok := t.rows[id]; !ok {
		return notFound
	}
	delete(t.rows, id)
	return nil
}

func query[T any](t *table[T], keep func(T) bool, get fieldGetter[T], ordering []core.DBOrdering, page core.Pagination, defaults ...core.DBOrdering) ([]T, int) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	rows := t.all(keep)
	sortRows(rows, get, ordering, defaults...)
	return paginate(rows, page)
}

func forStudent(filter *discipline.QueryFilter, branchID, studentID string) bool {
	return matches(filter.BranchID, branchID) &&
		matches(filter.StudentID, studentID) &&
		inSlice(studentID, filter.StudentIDs)
}

// Incidents

func incidentField(i discipline.Incident, field string) interface{} {
	switch field {
	case "incident_date":
		return i.IncidentDate
	case "severity":
		return i.Severity
	case "status":
		return i.Status
	case "category":
		return i.Category
	default:
		return i.CreatedAt
	}
}

func (repo *disciplineRepository) CreateIncident(_ context.Context, inc discipline.Incident) (discipline.Incident, error) {
	return create(repo.incidents, inc.ID, inc), nil
}

func (repo *disciplineRepository) QueryIncidents(_ context.Context, filter *discipline.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]discipline.Incident, int, error) {
	if filter == nil {
		filter = new(discipline.QueryFilter)
	}
	rows, total := query(repo.incidents, func(i discipline.Incident) bool {
		return forStudent(filter, i.BranchID, i.StudentID) &&
			inSlice(i.Status, filter.Statuses) &&
			inSlice(i.Severity, filter.Severities) &&
			matches(filter.Category, i.Category) &&
			withinDate(i.IncidentDate, filter.DateFrom, filter.DateTo)
	}, incidentField, ordering, page, core.DBOrdering{Field: "incident_date"}, core.DBOrdering{Field: "created_at"})
	return rows, total, nil
}

func (repo *disciplineRepository) GetIncident(_ context.Context, id string) (discipline.Incident, error) {
	return get(repo.incidents, id, discipline.ErrIncidentNotFound)
}

func (repo *disciplineRepository) UpdateIncident(_ context.Context, inc discipline.Incident) (discipline.Incident, error) {
	return update(repo.incidents, inc.ID, inc, discipline.ErrIncidentNotFound)
}

func (repo *disciplineRepository) DeleteIncident(_ context.Context, id string) error {
	return remove(repo.incidents, id, discipline.ErrIncidentNotFound)
}

// Behavior points

func pointField(p discipline.BehaviorPoint, field string) interface{} {
	switch field {
	case "points":
		return p.Points
	case "category":
		return p.Category
	default:
		return p.AwardedAt
	}
}

func (repo *disciplineRepository) pointMatches(filter *discipline.QueryFilter) func(discipline.BehaviorPoint) bool {
	return func(p discipline.BehaviorPoint) bool {
		return forStudent(filter, p.BranchID, p.StudentID) &&
			matches(filter.Category, p.Category) &&
			withinTime(p.AwardedAt, filter.DateFrom, filter.DateTo)
	}
}

func (repo *disciplineRepository) CreatePoint(_ context.Context, bp discipline.BehaviorPoint) (discipline.BehaviorPoint, error) {
	repo.root.mutex.Lock()
	defer repo.root.mutex.Unlock()
	return create(repo.points, bp.ID, bp), nil
}

func (repo *disciplineRepository) QueryPoints(_ context.Context, filter *discipline.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]discipline.BehaviorPoint, int, error) {
	if filter == nil {
		filter = new(discipline.QueryFilter)
	}
	rows, total := query(repo.points, repo.pointMatches(filter), pointField, ordering, page, core.DBOrdering{Field: "awarded_at"})
	return rows, total, nil
}

func (repo *disciplineRepository) GetPoint(_ context.Context, id string) (discipline.BehaviorPoint, error) {
	return get(repo.points, id, discipline.ErrPointNotFound)
}

func (repo *disciplineRepository) UpdatePoint(_ context.Context, bp discipline.BehaviorPoint) (discipline.BehaviorPoint, error) {
	return update(repo.points, bp.ID, bp, discipline.ErrPointNotFound)
}

func (repo *disciplineRepository) DeletePoint(_ context.Context, id string) error {
	return remove(repo.points, id, discipline.ErrPointNotFound)
}

// Rewards

func rewardField(r discipline.Reward, field string) interface{} {
	switch field {
	case "points_cost":
		return r.PointsCost
	case "type":
		return r.Type
	default:
		return r.AwardedAt
	}
}

func (repo *disciplineRepository) CreateReward(_ context.Context, rw discipline.Reward, redemption *discipline.BehaviorPoint) (discipline.Reward, error) {
	repo.root.mutex.Lock()
	defer repo.root.mutex.Unlock()

	if redemption != nil {
		create(repo.points, redemption.ID, *redemption)
	}
	return create(repo.rewards, rw.ID, rw), nil
}

func (repo *disciplineRepository) QueryRewards(_ context.Context, filter *discipline.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]discipline.Reward, int, error) {
	if filter == nil {
		filter = new(discipline.QueryFilter)
	}
	rows, total := query(repo.rewards, func(r discipline.Reward) bool {
		return forStudent(filter, r.BranchID, r.StudentID) &&
			matches(filter.Type, r.Type) &&
			withinTime(r.AwardedAt, filter.DateFrom, filter.DateTo)
	}, rewardField, ordering, page, core.DBOrdering{Field: "awarded_at"})
	return rows, total, nil
}

func (repo *disciplineRepository) GetReward(_ context.Context, id string) (discipline.Reward, error) {
	return get(repo.rewards, id, discipline.ErrRewardNotFound)
}

func (repo *disciplineRepository) UpdateReward(_ context.Context, rw discipline.Reward) (discipline.Reward, error) {
	return update(repo.rewards, rw.ID, rw, discipline.ErrRewardNotFound)
}

func (repo *disciplineRepository) DeleteReward(_ context.Context, id string) error {
	return remove(repo.rewards, id, discipline.ErrRewardNotFound)
}

// Contracts

func contractField(c discipline.Contract, field string) interface{} {
	switch field {
	case "start_date":
		return c.StartDate
	case "end_date":
		return c.EndDate
	case "status":
		return c.Status
	default:
		return c.CreatedAt
	}
}

func (repo *disciplineRepository) CreateContract(_ context.Context, c discipline.Contract) (discipline.Contract, error) {
	c.Goals = append([]string(nil), c.Goals...)
	return create(repo.contracts, c.ID, c), nil
}

func (repo *disciplineRepository) QueryContracts(_ context.Context, filter *discipline.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]discipline.Contract, int, error) {
	if filter == nil {
		filter = new(discipline.QueryFilter)
	}
	rows, total := query(repo.contracts, func(c discipline.Contract) bool {
		return forStudent(filter, c.BranchID, c.StudentID) &&
			inSlice(c.Status, filter.Statuses) &&
			withinDate(c.StartDate, filter.DateFrom, filter.DateTo)
	}, contractField, ordering, page, core.DBOrdering{Field: "start_date"}, core.DBOrdering{Field: "created_at"})
	return rows, total, nil
}

func (repo *disciplineRepository) GetContract(_ context.Context, id string) (discipline.Contract, error) {
	return get(repo.contracts, id, discipline.ErrContractNotFound)
}

func (repo *disciplineRepository) UpdateContract(_ context.Context, c discipline.Contract) (discipline.Contract, error) {
	c.Goals = append([]string(nil), c.Goals...)
	return update(repo.contracts, c.ID, c, discipline.ErrContractNotFound)
}

func (repo *disciplineRepository) DeleteContract(_ context.Context, id string) error {
	return remove(repo.contracts, id, discipline.ErrContractNotFound)
}

// Counseling sessions

func sessionField(s discipline.CounselingSession, field string) interface{} {
	switch field {
	case "session_date":
		return s.SessionDate
	case "follow_up_date":
		return s.FollowUpDate
	case "status":
		return s.Status
	default:
		return s.CreatedAt
	}
}

func (repo *disciplineRepository) CreateSession(_ context.Context, s discipline.CounselingSession) (discipline.CounselingSession, error) {
	return create(repo.sessions, s.ID, s), nil
}

func (repo *disciplineRepository) QuerySessions(_ context.Context, filter *discipline.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]discipline.CounselingSession, int, error) {
	if filter == nil {
		filter = new(discipline.QueryFilter)
	}
	rows, total := query(repo.sessions, func(s discipline.CounselingSession) bool {
		return forStudent(filter, s.BranchID, s.StudentID) &&
			matches(filter.CounselorID, s.CounselorID) &&
			inSlice(s.Status, filter.Statuses) &&
			withinTime(s.SessionDate, filter.DateFrom, filter.DateTo)
	}, sessionField, ordering, page, core.DBOrdering{Field: "session_date"})
	return rows, total, nil
}

func (repo *disciplineRepository) GetSession(_ context.Context, id string) (discipline.CounselingSession, error) {
	return get(repo.sessions, id, discipline.ErrSessionNotFound)
}

func (repo *disciplineRepository) UpdateSession(_ context.Context, s discipline.CounselingSession) (discipline.CounselingSession, error) {
	return update(repo.sessions, s.ID, s, discipline.ErrSessionNotFound)
}

func (repo *disciplineRepository) DeleteSession(_ context.Context, id string) error {
	return remove(repo.sessions, id, discipline.ErrSessionNotFound)
}
