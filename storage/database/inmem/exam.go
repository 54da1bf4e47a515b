package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/exam"
)

type examRepository struct {
	db      *table[exam.Exam]
	results *table[exam.Result]
}

func NewExamRepository(db *DB) exam.Repository {
	return &examRepository{db: db.exam, results: db.result}
}

func examField(e exam.Exam, field string) interface{} {
	switch field {
	case "title":
		return e.Title
	case "subject":
		return e.Subject
	case "class_name":
		return e.ClassName
	case "term":
		return e.Term
	case "academic_year":
		return e.AcademicYear
	case "exam_date":
		return e.ExamDate
	case "status":
		return e.Status
	default:
		return e.CreatedAt
	}
}

func (repo *examRepository) CreateExam(_ context.Context, e exam.Exam) (exam.Exam, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.rows[e.ID] = &e
	return e, nil
}

func (repo *examRepository) QueryExams(_ context.Context, filter *exam.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]exam.Exam, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter == nil {
		filter = new(exam.QueryFilter)
	}
	exams := repo.db.all(func(e exam.Exam) bool {
		if filter.Search != "" && !(containsFold(e.Title, filter.Search) || containsFold(e.Subject, filter.Search)) {
			return false
		}
		return matches(filter.BranchID, e.BranchID) &&
			matches(filter.ClassName, e.ClassName) &&
			matches(filter.Subject, e.Subject) &&
			matches(filter.Term, e.Term) &&
			matches(filter.AcademicYear, e.AcademicYear) &&
			inSlice(e.Status, filter.Statuses) &&
			inSlice(e.ID, filter.IDs)
	})
	sortRows(exams, examField, ordering, core.DBOrdering{Field: "exam_date"}, core.DBOrdering{Field: "created_at"})
	exams, total := paginate(exams, page)
	return exams, total, nil
}

func (repo *examRepository) GetExam(_ context.Context, id string) (exam.Exam, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.db.rows[id]; ok {
		return *e, nil
	}
	return exam.Exam{}, exam.ErrNotFound
}

func (repo *examRepository) UpdateExam(_ context.Context, e exam.Exam) (exam.Exam, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[e.ID]; !ok {
		return exam.Exam{}, exam.ErrNotFound
	}
	repo.db.rows[e.ID] = &e
	return e, nil
}

func (repo *examRepository) DeleteExam(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return exam.ErrNotFound
	}
	delete(repo.db.rows, id)
	deleteWhere(repo.results, func(r exam.Result) bool { return r.ExamID == id })
	return nil
}

func (repo *examRepository) UpsertResults(_ context.Context, results []exam.Result) ([]exam.Result, error) {
	repo.results.mutex.Lock()
	defer repo.results.mutex.Unlock()

	existing := make(map[string]*exam.Result, len(repo.results.rows))
	for _, r := range repo.results.rows {
		existing[r.ExamID+"/"+r.StudentID] = r
	}

	out := make([]exam.Result, 0, len(results))
	for _, r := range results {
		if old, ok := existing[r.ExamID+"/"+r.StudentID]; ok {
			old.Score = r.Score
			old.Grade = r.Grade
			old.Remarks = r.Remarks
			old.UpdatedAt = r.UpdatedAt
			out = append(out, *old)
			continue
		}
		res := r
		repo.results.rows[res.ID] = &res
		existing[res.ExamID+"/"+res.StudentID] = &res
		out = append(out, res)
	}
	return out, nil
}

func (repo *examRepository) QueryResults(_ context.Context, filter exam.ResultFilter) ([]exam.Result, error) {
	repo.results.mutex.RLock()
	defer repo.results.mutex.RUnlock()

	results := repo.results.all(func(r exam.Result) bool {
		return inSlice(r.ExamID, filter.ExamIDs) && inSlice(r.StudentID, filter.StudentIDs)
	})
	sortRows(results, func(r exam.Result, field string) interface{} {
		if field == "score" {
			return r.Score
		}
		return r.StudentID
	}, []core.DBOrdering{{Field: "score"}, {Field: "student_id", Ascending: true}})
	return results, nil
}

func (repo *examRepository) GetResult(_ context.Context, id string) (exam.Result, error) {
	repo.results.mutex.RLock()
	defer repo.results.mutex.RUnlock()

	if r, ok := repo.results.rows[id]; ok {
		return *r, nil
	}
	return exam.Result{}, exam.ErrResultNotFound
}

func (repo *examRepository) DeleteResult(_ context.Context, id string) error {
	repo.results.mutex.Lock()
	defer repo.results.mutex.Unlock()

	if _, ok := repo.results.rows[id]; !ok {
		return exam.ErrResultNotFound
	}
	delete(repo.results.rows, id)
	return nil
}
