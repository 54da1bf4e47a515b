package discipline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/shule/core"
)

func Test_summarizeIncidents(t *testing.T) {
	s := summarizeIncidents([]Incident{
		{Severity: SeverityMinor, Status: IncidentOpen, Category: "bullying"},
		{Severity: SeverityMinor, Status: IncidentResolved, Category: "bullying"},
		{Severity: SeverityMajor, Status: IncidentEscalated},
		{Severity: SeveritySevere, Status: IncidentInvestigating, Category: "truancy"},
	})
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Open)
	assert.Equal(t, 1, s.Resolved)
	assert.Equal(t, 25.0, s.ResolutionRate)
	assert.Equal(t, map[string]int{SeverityMinor: 2, SeverityModerate: 0, SeverityMajor: 1, SeveritySevere: 1}, s.BySeverity)
	assert.Equal(t, map[string]int{
		IncidentOpen: 1, IncidentInvestigating: 1, IncidentResolved: 1, IncidentEscalated: 1,
	}, s.ByStatus)
	assert.Equal(t, map[string]int{"bullying": 2, "truancy": 1}, s.ByCategory)

	empty := summarizeIncidents(nil)
	assert.Zero(t, empty.ResolutionRate)
	assert.Empty(t, empty.ByCategory)
}

func Test_summarizePoints(t *testing.T) {
	s := summarizePoints([]BehaviorPoint{{Points: 5}, {Points: 10}, {Points: -3}, {Points: -20}})
	assert.Equal(t, PointStats{Positive: 15, Negative: -23, Net: -8, Awards: 2, Deductions: 2}, s)
}

func Test_countActiveAndUpcoming(t *testing.T) {
	now := time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = func() time.Time { return time.Now().UTC() } })
	today := core.DateOf(now)

	contracts := []Contract{
		{Status: ContractActive, EndDate: today},
		{Status: ContractActive, EndDate: today.AddDays(30)},
		{Status: ContractActive, EndDate: today.AddDays(-1)},
		{Status: ContractCompleted, EndDate: today.AddDays(30)},
	}
	assert.Equal(t, 2, countActiveContracts(contracts))

	sessions := []CounselingSession{
		{Status: SessionScheduled, SessionDate: now.Add(time.Hour)},
		{Status: SessionScheduled, SessionDate: now},
		{Status: SessionScheduled, SessionDate: now.Add(-time.Hour)},
		{Status: SessionCancelled, SessionDate: now.Add(time.Hour)},
	}
	assert.Equal(t, 2, countUpcomingSessions(sessions))
}
