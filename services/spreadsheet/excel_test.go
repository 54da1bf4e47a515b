package sheetsvc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExcelService_RoundTrip(t *testing.T) {
	svc := NewExcelService()

	var buf bytes.Buffer
	err := svc.Write(&buf, "Students", []string{"admission_no", "first_name", "score"}, [][]interface{}{
		{"ADM-1", "Jane", 87.5},
		{"ADM-2", "John", 40},
	})
	require.NoError(t, err)

	rows, err := svc.ReadRows(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"admission_no", "first_name", "score"}, rows[0])
	assert.Equal(t, []string{"ADM-1", "Jane", "87.5"}, rows[1])
	assert.Equal(t, []string{"ADM-2", "John", "40"}, rows[2])
}

func TestExcelService_ReadRows_invalid(t *testing.T) {
	_, err := NewExcelService().ReadRows(strings.NewReader("not,a,workbook"))
	assert.Error(t, err)
}
