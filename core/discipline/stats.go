package discipline

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

const topStudentsSize = 5

type (
	Stats struct {
		Incidents        IncidentStats  `json:"incidents"`
		Points           PointStats     `json:"points"`
		RewardsCount     int            `json:"rewards_count"`
		ActiveContracts  int            `json:"active_contracts"`
		UpcomingSessions int            `json:"upcoming_sessions"`
		TopStudents      []StudentNet   `json:"top_students"`
		MostIncidents    []StudentCount `json:"most_incidents"`
	}

	IncidentStats struct {
		Total          int            `json:"total"`
		Open           int            `json:"open"`
		Resolved       int            `json:"resolved"`
		ResolutionRate float64        `json:"resolution_rate"`
		BySeverity     map[string]int `json:"by_severity"`
		ByStatus       map[string]int `json:"by_status"`
		ByCategory     map[string]int `json:"by_category"`
	}

	PointStats struct {
		Positive   int `json:"positive"`
		Negative   int `json:"negative"` // sum of deductions, as a negative number
		Net        int `json:"net"`
		Awards     int `json:"awards"`
		Deductions int `json:"deductions"`
	}

	StudentNet struct {
		StudentID string `json:"student_id"`
		NetPoints int    `json:"net_points"`
	}

	StudentCount struct {
		StudentID string `json:"student_id"`
		Count     int    `json:"count"`
	}

	// StudentSummary is the disciplinary record of a single student.
	StudentSummary struct {
		StudentID       string              `json:"student_id"`
		Points          PointStats          `json:"points"`
		IncidentCount   int                 `json:"incident_count"`
		OpenIncidents   int                 `json:"open_incidents"`
		RewardsCount    int                 `json:"rewards_count"`
		ActiveContracts int                 `json:"active_contracts"`
		Incidents       []Incident          `json:"incidents"`
		Rewards         []Reward            `json:"rewards"`
		Contracts       []Contract          `json:"contracts"`
		Sessions        []CounselingSession `json:"sessions"`
	}
)

// Stats aggregates the disciplinary records matching filter. The date range applies to incident dates,
// point & reward award dates; contracts & sessions are counted as of today.
func (svc *Service) Stats(ctx context.Context, filter *QueryFilter) (Stats, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	all := core.Pagination{}

	incidents, _, err := svc.repo.QueryIncidents(ctx, filter, nil, all)
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying incidents")
	}
	points, _, err := svc.repo.QueryPoints(ctx, filter, nil, all)
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying behavior points")
	}
	rewards, _, err := svc.repo.QueryRewards(ctx, filter, nil, all)
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying rewards")
	}

	current := &QueryFilter{BranchID: filter.BranchID, StudentID: filter.StudentID, StudentIDs: filter.StudentIDs}
	contracts, _, err := svc.repo.QueryContracts(ctx, current, nil, all)
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying contracts")
	}
	sessions, _, err := svc.repo.QuerySessions(ctx, current, nil, all)
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying counseling sessions")
	}

	s := Stats{
		Incidents:        summarizeIncidents(incidents),
		Points:           summarizePoints(points),
		RewardsCount:     len(rewards),
		ActiveContracts:  countActiveContracts(contracts),
		UpcomingSessions: countUpcomingSessions(sessions),
		TopStudents:      []StudentNet{},
		MostIncidents:    []StudentCount{},
	}

	nets := make(map[string]int)
	for _, p := range points {
		nets[p.StudentID] += p.Points
	}
	for id, net := range nets {
		s.TopStudents = append(s.TopStudents, StudentNet{StudentID: id, NetPoints: net})
	}
	sort.Slice(s.TopStudents, func(i, j int) bool {
		a, b := s.TopStudents[i], s.TopStudents[j]
		if a.NetPoints != b.NetPoints {
			return a.NetPoints > b.NetPoints
		}
		return a.StudentID < b.StudentID
	})
	if len(s.TopStudents) > topStudentsSize {
		s.TopStudents = s.TopStudents[:topStudentsSize]
	}

	counts := make(map[string]int)
	for _, inc := range incidents {
		counts[inc.StudentID]++
	}
	for id, n := range counts {
		s.MostIncidents = append(s.MostIncidents, StudentCount{StudentID: id, Count: n})
	}
	sort.Slice(s.MostIncidents, func(i, j int) bool {
		a, b := s.MostIncidents[i], s.MostIncidents[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.StudentID < b.StudentID
	})
	if len(s.MostIncidents) > topStudentsSize {
		s.MostIncidents = s.MostIncidents[:topStudentsSize]
	}
	return s, nil
}

// StudentSummary gathers every disciplinary record of the student, most recent first.
func (svc *Service) StudentSummary(ctx context.Context, studentID string) (StudentSummary, error) {
	filter := &QueryFilter{StudentID: studentID}
	all := core.Pagination{}

	incidents, _, err := svc.repo.QueryIncidents(ctx, filter, []core.DBOrdering{{Field: "incident_date"}}, all)
	if err != nil {
		return StudentSummary{}, errors.Wrap(err, "querying incidents")
	}
	points, _, err := svc.repo.QueryPoints(ctx, filter, nil, all)
	if err != nil {
		return StudentSummary{}, errors.Wrap(err, "querying behavior points")
	}
	rewards, _, err := svc.repo.QueryRewards(ctx, filter, []core.DBOrdering{{Field: "awarded_at"}}, all)
	if err != nil {
		return StudentSummary{}, errors.Wrap(err, "querying rewards")
	}
	contracts, _, err := svc.repo.QueryContracts(ctx, filter, []core.DBOrdering{{Field: "start_date"}}, all)
	if err != nil {
		return StudentSummary{}, errors.Wrap(err, "querying contracts")
	}
	sessions, _, err := svc.repo.QuerySessions(ctx, filter, []core.DBOrdering{{Field: "session_date"}}, all)
	if err != nil {
		return StudentSummary{}, errors.Wrap(err, "querying counseling sessions")
	}

	inc := summarizeIncidents(incidents)
	return StudentSummary{
		StudentID:       studentID,
		Points:          summarizePoints(points),
		IncidentCount:   inc.Total,
		OpenIncidents:   inc.Open,
		RewardsCount:    len(rewards),
		ActiveContracts: countActiveContracts(contracts),
		Incidents:       incidents,
		Rewards:         rewards,
		Contracts:       contracts,
		Sessions:        sessions,
	}, nil
}

func summarizeIncidents(incidents []Incident) IncidentStats {
	s := IncidentStats{
		Total:      len(incidents),
		BySeverity: make(map[string]int, len(Severities)),
		ByStatus:   make(map[string]int, len(IncidentStatuses)),
		ByCategory: make(map[string]int),
	}
	for _, sev := range Severities {
		s.BySeverity[sev] = 0
	}
	for _, st := range IncidentStatuses {
		s.ByStatus[st] = 0
	}
	for _, inc := range incidents {
		s.BySeverity[inc.Severity]++
		s.ByStatus[inc.Status]++
		if inc.Category != "" {
			s.ByCategory[inc.Category]++
		}
		if inc.Status == IncidentResolved {
			s.Resolved++
		} else if inc.IsOpen() {
			s.Open++
		}
	}
	s.ResolutionRate = core.Percent(float64(s.Resolved), float64(s.Total))
	return s
}

func summarizePoints(points []BehaviorPoint) PointStats {
	var s PointStats
	for _, p := range points {
		if p.Points > 0 {
			s.Positive += p.Points
			s.Awards++
		} else {
			s.Negative += p.Points
			s.Deductions++
		}
	}
	s.Net = s.Positive + s.Negative
	return s
}

func countActiveContracts(contracts []Contract) int {
	today := core.Today()
	var n int
	for _, c := range contracts {
		if c.Status == ContractActive && !c.EndDate.Before(today) {
			n++
		}
	}
	return n
}

func countUpcomingSessions(sessions []CounselingSession) int {
	now := core.NowFunc()
	var n int
	for _, s := range sessions {
		if s.Status == SessionScheduled && !s.SessionDate.Before(now) {
			n++
		}
	}
	return n
}
