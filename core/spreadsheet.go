package core

import "io"

// Spreadsheet reads and writes tabular workbooks (first sheet only on read).
type Spreadsheet interface {
	ReadRows(r io.Reader) ([][]string, error)
	Write(w io.Writer, sheet string, header []string, rows [][]interface{}) error
}
