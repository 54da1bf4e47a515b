package exam

import (
	"sort"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

type Stats struct {
	Count             int            `json:"count"`
	Average           float64        `json:"average"`
	Highest           float64        `json:"highest"`
	Lowest            float64        `json:"lowest"`
	Median            float64        `json:"median"`
	Passed            int            `json:"passed"`
	Failed            int            `json:"failed"`
	PassRate          float64        `json:"pass_rate"`
	AveragePercent    float64        `json:"average_percent"`
	GradeDistribution map[string]int `json:"grade_distribution"`
}

// ComputeStats aggregates exam results; an empty set yields zeros.
func ComputeStats(e Exam, results []Result) Stats {
	s := Stats{GradeDistribution: make(map[string]int, len(Grades))}
	for _, g := range Grades {
		s.GradeDistribution[g] = 0
	}
	if len(results) == 0 {
		return s
	}

	scores := make([]float64, 0, len(results))
	var sum float64
	for _, r := range results {
		scores = append(scores, r.Score)
		sum += r.Score
		if e.Passed(r.Score) {
			s.Passed++
		} else {
			s.Failed++
		}
		s.GradeDistribution[e.Grade(r.Score)]++
	}
	sort.Float64s(scores)

	n := len(scores)
	s.Count = n
	s.Average = core.Round2(sum / float64(n))
	s.Lowest = scores[0]
	s.Highest = scores[n-1]
	if n%2 == 1 {
		s.Median = scores[n/2]
	} else {
		s.Median = core.Round2((scores[n/2-1] + scores[n/2]) / 2)
	}
	s.PassRate = core.Percent(float64(s.Passed), float64(n))
	s.AveragePercent = core.Percent(sum/float64(n), e.MaxScore)
	return s
}

// sortResultsByStudent orders results by admission number, then student ID.
func sortResultsByStudent(results []Result, students map[string]student.Student) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := students[results[i].StudentID].AdmissionNo, students[results[j].StudentID].AdmissionNo
		if a != b {
			return a < b
		}
		return results[i].StudentID < results[j].StudentID
	})
}
