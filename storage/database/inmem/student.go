package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

type studentRepository struct {
	db   *table[student.Student]
	root *DB
}

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db.student, root: db}
}

func studentField(st student.Student, field string) interface{} {
	switch field {
	case "admission_no":
		return st.AdmissionNo
	case "first_name":
		return st.FirstName
	case "last_name":
		return st.LastName
	case "class_name":
		return st.ClassName
	case "status":
		return st.Status
	case "date_of_birth":
		return st.DateOfBirth
	case "enrolled_at":
		return st.EnrolledAt
	case "updated_at":
		return st.UpdatedAt
	default:
		return st.CreatedAt
	}
}

func studentMatches(filter *student.QueryFilter) func(student.Student) bool {
	return func(st student.Student) bool {
		if filter.Search != "" && !(containsFold(st.AdmissionNo, filter.Search) ||
			containsFold(st.FirstName, filter.Search) || containsFold(st.LastName, filter.Search) ||
			containsFold(st.FullName(), filter.Search)) {
			return false
		}
		return matches(filter.BranchID, st.BranchID) &&
			matches(filter.ClassName, st.ClassName) &&
			matches(filter.UserID, st.UserID) &&
			matches(filter.GuardianUserID, st.GuardianUserID) &&
			inSlice(st.Status, filter.Statuses) &&
			inSlice(st.ID, filter.IDs)
	}
}

func (repo *studentRepository) CreateStudent(_ context.Context, st student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, other := range repo.db.rows {
		if other.BranchID == st.BranchID && other.AdmissionNo == st.AdmissionNo {
			return student.Student{}, student.ErrAdmissionNoExists
		}
	}
	repo.db.rows[st.ID] = &st
	return st, nil
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter *student.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]student.Student, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter == nil {
		filter = new(student.QueryFilter)
	}
	students := repo.db.all(studentMatches(filter))
	sortRows(students, studentField, ordering,
		core.DBOrdering{Field: "last_name", Ascending: true},
		core.DBOrdering{Field: "first_name", Ascending: true},
		core.DBOrdering{Field: "admission_no", Ascending: true},
	)
	students, total := paginate(students, page)
	return students, total, nil
}

func (repo *studentRepository) CountStudents(_ context.Context, filter *student.QueryFilter) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter == nil {
		filter = new(student.QueryFilter)
	}
	return len(repo.db.all(studentMatches(filter))), nil
}

func (repo *studentRepository) GetStudent(_ context.Context, filter student.GetFilter) (student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if st, ok := repo.db.rows[filter.ID]; ok {
			return *st, nil
		}
		return student.Student{}, student.ErrNotFound
	}
	for _, st := range repo.db.rows {
		if st.BranchID == filter.BranchID && st.AdmissionNo == filter.AdmissionNo {
			return *st, nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) UpdateStudent(_ context.Context, st student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[st.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	for _, other := range repo.db.rows {
		if other.ID != st.ID && other.BranchID == st.BranchID && other.AdmissionNo == st.AdmissionNo {
			return student.Student{}, student.ErrAdmissionNoExists
		}
	}
	repo.db.rows[st.ID] = &st
	return st, nil
}

func (repo *studentRepository) DeleteStudentsByID(_ context.Context, ids ...string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	deleted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := repo.db.rows[id]; ok {
			delete(repo.db.rows, id)
			deleted[id] = true
		}
	}
	if len(deleted) > 0 {
		repo.root.deleteStudentRecords(deleted)
	}
	return len(deleted), nil
}
