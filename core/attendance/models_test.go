package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
		want    Summary
	}{
		{name: "empty", want: Summary{}},
		{
			name: "late counts as attended",
			records: []Record{
				{Status: StatusPresent}, {Status: StatusPresent}, {Status: StatusLate},
				{Status: StatusAbsent}, {Status: StatusExcused}, {Status: StatusAbsent},
			},
			want: Summary{Total: 6, Present: 2, Absent: 2, Late: 1, Excused: 1, AttendanceRate: 50},
		},
		{
			name:    "rounded rate",
			records: []Record{{Status: StatusPresent}, {Status: StatusAbsent}, {Status: StatusExcused}},
			want:    Summary{Total: 3, Present: 1, Absent: 1, Excused: 1, AttendanceRate: 33.33},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.records))
		})
	}
}

func TestRecord_Attended(t *testing.T) {
	for status, want := range map[string]bool{
		StatusPresent: true, StatusLate: true, StatusAbsent: false, StatusExcused: false,
	} {
		assert.Equal(t, want, Record{Status: status}.Attended(), status)
	}
}

func Test_intersect(t *testing.T) {
	assert.Equal(t, []string{"b", "c"}, intersect([]string{"a", "b", "c"}, []string{"c", "b", "d"}))
	assert.Equal(t, []string{}, intersect([]string{"a"}, nil))
}
