package exam

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/shule/core/student"
)

func TestGrade(t *testing.T) {
	tests := []struct {
		percent float64
		want    string
	}{
		{100, "A"}, {80, "A"}, {79.99, "B"}, {70, "B"}, {65, "C"}, {50, "D"}, {40, "E"}, {39.99, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Grade(tt.percent), "Grade(%v)", tt.percent)
	}
}

func TestExam_Grade(t *testing.T) {
	e := Exam{MaxScore: 25000}
	assert.InDelta(t, 79.996, 19999/e.MaxScore*100, 1e-9)
	assert.Equal(t, 80.0, e.Percentage(19999))
	assert.Equal(t, "B", e.Grade(19999))
	assert.Equal(t, "A", e.Grade(20000))
}

func TestExam_IsFinal(t *testing.T) {
	assert.False(t, Exam{Status: StatusScheduled}.IsFinal())
	assert.True(t, Exam{Status: StatusCompleted}.IsFinal())
	assert.True(t, Exam{Status: StatusPublished}.IsFinal())
}

func TestComputeStats(t *testing.T) {
	e := Exam{MaxScore: 20, PassScore: 10}

	t.Run("no results", func(t *testing.T) {
		s := ComputeStats(e, nil)
		assert.Zero(t, s.Count)
		assert.Zero(t, s.PassRate)
		assert.Len(t, s.GradeDistribution, len(Grades))
	})

	t.Run("odd count", func(t *testing.T) {
		s := ComputeStats(e, []Result{{Score: 18}, {Score: 9}, {Score: 12}})
		assert.Equal(t, 3, s.Count)
		assert.Equal(t, 13.0, s.Average)
		assert.Equal(t, 18.0, s.Highest)
		assert.Equal(t, 9.0, s.Lowest)
		assert.Equal(t, 12.0, s.Median)
		assert.Equal(t, 2, s.Passed)
		assert.Equal(t, 1, s.Failed)
		assert.Equal(t, 66.67, s.PassRate)
		assert.Equal(t, 65.0, s.AveragePercent)
		assert.Equal(t, map[string]int{"A": 1, "B": 0, "C": 1, "D": 0, "E": 1, "F": 0}, s.GradeDistribution)
	})

	t.Run("even count", func(t *testing.T) {
		s := ComputeStats(e, []Result{{Score: 10}, {Score: 15}, {Score: 5}, {Score: 20}})
		assert.Equal(t, 12.5, s.Median)
		assert.Equal(t, 12.5, s.Average)
		assert.Equal(t, 75.0, s.PassRate)
	})
}

func Test_sortResultsByStudent(t *testing.T) {
	students := map[string]student.Student{
		"s1": {ID: "s1", AdmissionNo: "B-2"},
		"s2": {ID: "s2", AdmissionNo: "A-9"},
		"s3": {ID: "s3", AdmissionNo: "B-2"},
	}
	results := []Result{{StudentID: "s3"}, {StudentID: "s1"}, {StudentID: "s2"}}
	sortResultsByStudent(results, students)
	assert.Equal(t, []Result{{StudentID: "s2"}, {StudentID: "s1"}, {StudentID: "s3"}}, results)
}
