package reportcard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/shule/core/student"
)

func TestRank(t *testing.T) {
	card := func(first string, avg float64) ReportCard {
		return ReportCard{Student: student.Student{FirstName: first, LastName: "Doe"}, AveragePercent: avg}
	}
	cards := []ReportCard{card("Dan", 55), card("Bob", 72.5), card("Ada", 72.5), card("Cy", 90), card("Eve", 0)}
	Rank(cards)

	type pos struct {
		name     string
		position int
	}
	got := make([]pos, 0, len(cards))
	for _, c := range cards {
		got = append(got, pos{c.Student.FirstName, c.Position})
	}
	assert.Equal(t, []pos{{"Cy", 1}, {"Ada", 2}, {"Bob", 2}, {"Dan", 4}, {"Eve", 5}}, got)

	Rank(nil)
}

func Test_overallGradeText(t *testing.T) {
	assert.Equal(t, "no results", overallGradeText(""))
	assert.Equal(t, "B", overallGradeText("B"))
}
