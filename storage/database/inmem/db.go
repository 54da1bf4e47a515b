// Package inmemdb implements every repository in memory. It backs the tests and DATABASE_ENGINE=inmem.
package inmemdb

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/branch"
	"github.com/trezcool/shule/core/discipline"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/homework"
	"github.com/trezcool/shule/core/payment"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type (
	table[T any] struct {
		rows  map[string]*T
		mutex sync.RWMutex
	}

	DB struct {
		user       *table[user.User]
		branch     *table[branch.Branch]
		student    *table[student.Student]
		payment    *table[payment.Payment]
		attendance *table[attendance.Record]
		exam       *table[exam.Exam]
		result     *table[exam.Result]
		incident   *table[discipline.Incident]
		point      *table[discipline.BehaviorPoint]
		reward     *table[discipline.Reward]
		contract   *table[discipline.Contract]
		session    *table[discipline.CounselingSession]
		homework   *table[homework.Homework]
		submission *table[homework.Submission]
		preference *table[json.RawMessage] // keyed by userID + "/" + key
		setting    *table[json.RawMessage]

		// mutex serializes operations spanning several tables
		mutex sync.Mutex
	}
)

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]*T)}
}

// all returns copies of the rows matching keep; callers hold the lock.
func (t *table[T]) all(keep func(T) bool) []T {
	out := make([]T, 0, len(t.rows))
	for _, row := range t.rows {
		if keep == nil || keep(*row) {
			out = append(out, *row)
		}
	}
	return out
}

func Open() *DB {
	return &DB{
		user:       newTable[user.User](),
		branch:     newTable[branch.Branch](),
		student:    newTable[student.Student](),
		payment:    newTable[payment.Payment](),
		attendance: newTable[attendance.Record](),
		exam:       newTable[exam.Exam](),
		result:     newTable[exam.Result](),
		incident:   newTable[discipline.Incident](),
		point:      newTable[discipline.BehaviorPoint](),
		reward:     newTable[discipline.Reward](),
		contract:   newTable[discipline.Contract](),
		session:    newTable[discipline.CounselingSession](),
		homework:   newTable[homework.Homework](),
		submission: newTable[homework.Submission](),
		preference: newTable[json.RawMessage](),
		setting:    newTable[json.RawMessage](),
	}
}

// deleteWhere removes the rows matching drop.
func deleteWhere[T any](t *table[T], drop func(T) bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for id, row := range t.rows {
		if drop(*row) {
			delete(t.rows, id)
		}
	}
}

// deleteStudentRecords cascades the deletion of students to their records.
func (db *DB) deleteStudentRecords(ids map[string]bool) {
	deleteWhere(db.payment, func(p payment.Payment) bool { return ids[p.StudentID] })
	deleteWhere(db.attendance, func(r attendance.Record) bool { return ids[r.StudentID] })
	deleteWhere(db.result, func(r exam.Result) bool { return ids[r.StudentID] })
	deleteWhere(db.incident, func(i discipline.Incident) bool { return ids[i.StudentID] })
	deleteWhere(db.point, func(p discipline.BehaviorPoint) bool { return ids[p.StudentID] })
	deleteWhere(db.reward, func(r discipline.Reward) bool { return ids[r.StudentID] })
	deleteWhere(db.contract, func(c discipline.Contract) bool { return ids[c.StudentID] })
	deleteWhere(db.session, func(s discipline.CounselingSession) bool { return ids[s.StudentID] })
	deleteWhere(db.submission, func(s homework.Submission) bool { return ids[s.StudentID] })
}

// fieldGetter returns the value of a row's column, by column name.
type fieldGetter[T any] func(row T, field string) interface{}

// sortRows orders rows by `ordering` then by `defaults`.
func sortRows[T any](rows []T, get fieldGetter[T], ordering []core.DBOrdering, defaults ...core.DBOrdering) {
	ords := append(append([]core.DBOrdering{}, ordering...), defaults...)
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ords {
			c := compare(get(rows[i], ord.Field), get(rows[j], ord.Field))
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

// paginate returns the requested page of rows along with the total number of rows.
func paginate[T any](rows []T, page core.Pagination) ([]T, int) {
	start, end := page.Bounds(len(rows))
	return rows[start:end], len(rows)
}

func compare(a, b interface{}) int {
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		return strings.Compare(strings.ToLower(x), strings.ToLower(y))
	case int:
		y, _ := b.(int)
		return cmpOrdered(x, y)
	case float64:
		y, _ := b.(float64)
		return cmpOrdered(x, y)
	case bool:
		y, _ := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	case core.Date:
		y, _ := b.(core.Date)
		return x.Time.Compare(y.Time)
	default:
		return 0
	}
}

func cmpOrdered[T int | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func inSlice(s string, vals []string) bool {
	return len(vals) == 0 || core.StringInSlice(s, vals)
}

func matches(filterVal, val string) bool {
	return filterVal == "" || filterVal == val
}

func withinTime(t time.Time, from, to core.Date) bool {
	if t.IsZero() {
		return from.IsZero() && to.IsZero()
	}
	return core.DateOf(t).Within(from, to)
}

func withinDate(d, from, to core.Date) bool {
	if d.IsZero() {
		return from.IsZero() && to.IsZero()
	}
	return d.Within(from, to)
}
