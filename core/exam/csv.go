package exam

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

// ImportCSV upserts the exam results found in a CSV file.
// The header must hold `score` and one of `student_id` or `admission_no`; `remarks` is optional.
// Column names are case-insensitive and may come in any order. Invalid rows are skipped and reported.
func (svc *Service) ImportCSV(ctx context.Context, e Exam, r io.Reader) (ImportReport, error) {
	report := ImportReport{Errors: []ImportError{}}
	if e.Status == StatusPublished {
		return report, core.NewValidationError(ErrPublished)
	}

	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = -1
	rdr.TrimLeadingSpace = true

	header, err := rdr.Read()
	if err == io.EOF {
		return report, core.NewValidationError(errors.New("csv file is empty"))
	} else if err != nil {
		return report, core.NewValidationError(errors.Wrap(err, "invalid csv"))
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff") // excel BOM
		cols[core.CleanString(name, true /* lower */)] = i
	}
	_, hasID := cols["student_id"]
	_, hasAdmNo := cols["admission_no"]
	if _, ok := cols["score"]; !ok || !(hasID || hasAdmNo) {
		return report, core.NewValidationError(errors.New("csv header must contain score and student_id or admission_no"))
	}

	cell := func(rec []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return core.CleanString(rec[i])
	}
	skip := func(row int, msg string) {
		report.Skipped++
		report.Errors = append(report.Errors, ImportError{Row: row, Error: msg})
	}

	branchStudents, err := svc.students.All(ctx, &student.QueryFilter{BranchID: e.BranchID})
	if err != nil {
		return report, errors.Wrap(err, "finding branch students")
	}
	byID := make(map[string]student.Student, len(branchStudents))
	byAdmNo := make(map[string]student.Student, len(branchStudents))
	for _, st := range branchStudents {
		byID[st.ID] = st
		byAdmNo[strings.ToLower(st.AdmissionNo)] = st
	}

	entries := make(map[string]ResultEntry) // by student; the last row wins
	order := make([]string, 0)
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return report, errors.Wrap(err, "reading csv")
			}
			skip(perr.StartLine, perr.Err.Error())
			continue
		}
		row, _ := rdr.FieldPos(0) // file line, blank lines included

		var (
			st    student.Student
			found bool
		)
		if id := cell(rec, "student_id"); id != "" {
			st, found = byID[id]
		} else if admNo := cell(rec, "admission_no"); admNo != "" {
			st, found = byAdmNo[strings.ToLower(admNo)]
		} else {
			skip(row, "missing student")
			continue
		}
		if !found {
			skip(row, "unknown student")
			continue
		}

		score, err := strconv.ParseFloat(cell(rec, "score"), 64)
		if err != nil {
			skip(row, fmt.Sprintf("invalid score %q", cell(rec, "score")))
			continue
		}
		if math.IsNaN(score) || math.IsInf(score, 0) {
			skip(row, fmt.Sprintf("invalid score %q", cell(rec, "score")))
			continue
		}
		if score < 0 || score > e.MaxScore {
			skip(row, fmt.Sprintf("score must be between 0 and %v", e.MaxScore))
			continue
		}

		if _, dup := entries[st.ID]; !dup {
			order = append(order, st.ID)
		}
		entries[st.ID] = ResultEntry{StudentID: st.ID, Score: core.Round2(score), Remarks: cell(rec, "remarks")}
	}

	if len(order) == 0 {
		return report, nil
	}
	results := make([]Result, 0, len(order))
	for _, id := range order {
		results = append(results, svc.newResult(e, entries[id]))
	}
	if _, err = svc.repo.UpsertResults(ctx, results); err != nil {
		return report, errors.Wrap(err, "saving results")
	}
	report.Imported = len(results)
	return report, nil
}

// ExportCSV writes the exam results to w.
func (svc *Service) ExportCSV(ctx context.Context, e Exam, w io.Writer) error {
	rows, err := svc.exportRows(ctx, e)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err = cw.Write(exportHeader); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for _, row := range rows {
		rec := make([]string, 0, len(row))
		for _, v := range row {
			switch val := v.(type) {
			case float64:
				rec = append(rec, strconv.FormatFloat(val, 'f', -1, 64))
			default:
				rec = append(rec, fmt.Sprint(val))
			}
		}
		if err = cw.Write(rec); err != nil {
			return errors.Wrap(err, "writing row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}
