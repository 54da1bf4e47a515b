package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

const studentColumns = "id, branch_id, admission_no, first_name, last_name, gender, date_of_birth, class_name, " +
	"guardian_name, guardian_email, guardian_phone, status, user_id, guardian_user_id, enrolled_at, created_at, updated_at"

var studentWriteColumns = []string{
	"branch_id", "admission_no", "first_name", "last_name", "gender", "date_of_birth", "class_name",
	"guardian_name", "guardian_email", "guardian_phone", "status", "user_id", "guardian_user_id", "enrolled_at", "updated_at",
}

type studentRow struct {
	ID             string      `db:"id"`
	BranchID       string      `db:"branch_id"`
	AdmissionNo    string      `db:"admission_no"`
	FirstName      string      `db:"first_name"`
	LastName       string      `db:"last_name"`
	Gender         string      `db:"gender"`
	DateOfBirth    core.Date   `db:"date_of_birth"`
	ClassName      string      `db:"class_name"`
	GuardianName   string      `db:"guardian_name"`
	GuardianEmail  string      `db:"guardian_email"`
	GuardianPhone  string      `db:"guardian_phone"`
	Status         string      `db:"status"`
	UserID         null.String `db:"user_id"`
	GuardianUserID null.String `db:"guardian_user_id"`
	EnrolledAt     core.Date   `db:"enrolled_at"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func toStudentRow(st student.Student) studentRow {
	return studentRow{
		ID:             st.ID,
		BranchID:       st.BranchID,
		AdmissionNo:    st.AdmissionNo,
		FirstName:      st.FirstName,
		LastName:       st.LastName,
		Gender:         st.Gender,
		DateOfBirth:    st.DateOfBirth,
		ClassName:      st.ClassName,
		GuardianName:   st.GuardianName,
		GuardianEmail:  st.GuardianEmail,
		GuardianPhone:  st.GuardianPhone,
		Status:         st.Status,
		UserID:         nullString(st.UserID),
		GuardianUserID: nullString(st.GuardianUserID),
		EnrolledAt:     st.EnrolledAt,
		CreatedAt:      st.CreatedAt.UTC(),
		UpdatedAt:      st.UpdatedAt.UTC(),
	}
}

func (row studentRow) student() student.Student {
	return student.Student{
		ID:             row.ID,
		BranchID:       row.BranchID,
		AdmissionNo:    row.AdmissionNo,
		FirstName:      row.FirstName,
		LastName:       row.LastName,
		Gender:         row.Gender,
		DateOfBirth:    row.DateOfBirth,
		ClassName:      row.ClassName,
		GuardianName:   row.GuardianName,
		GuardianEmail:  row.GuardianEmail,
		GuardianPhone:  row.GuardianPhone,
		Status:         row.Status,
		UserID:         row.UserID.String,
		GuardianUserID: row.GuardianUserID.String,
		EnrolledAt:     row.EnrolledAt,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *sqlx.DB) student.Repository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) writeErr(err error, msg string) error {
	if isUniqueViolation(err, "students_branch_id_admission_no_key") {
		return student.ErrAdmissionNoExists
	}
	return errors.Wrap(err, msg)
}

func studentWhere(filter *student.QueryFilter) *where {
	w := new(where)
	if filter == nil {
		return w
	}
	w.search(filter.Search, "admission_no", "first_name", "last_name", "first_name || ' ' || last_name")
	w.idEq("branch_id", filter.BranchID)
	w.eq("class_name", filter.ClassName)
	w.in("status", filter.Statuses)
	w.inIDs("id", filter.IDs)
	w.idEq("user_id", filter.UserID)
	w.idEq("guardian_user_id", filter.GuardianUserID)
	return w
}

func (repo *studentRepository) CreateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	row := toStudentRow(st)
	if err := insert(ctx, repo.db, "students", append([]string{"id", "created_at"}, studentWriteColumns...), row); err != nil {
		return student.Student{}, repo.writeErr(err, "inserting student")
	}
	return row.student(), nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]student.Student, int, error) {
	order := orderBy(ordering, student.OrderingFields,
		core.DBOrdering{Field: "last_name", Ascending: true},
		core.DBOrdering{Field: "first_name", Ascending: true},
		core.DBOrdering{Field: "admission_no", Ascending: true},
	)
	rows, total, err := selectPage[studentRow](ctx, repo.db, studentColumns, "students", studentWhere(filter), order, page)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.student())
	}
	return students, total, nil
}

func (repo *studentRepository) CountStudents(ctx context.Context, filter *student.QueryFilter) (int, error) {
	w := studentWhere(filter)
	var n int
	if err := repo.db.GetContext(ctx, &n, repo.db.Rebind("SELECT COUNT(*) FROM students"+w.String()), w.args...); err != nil {
		return 0, errors.Wrap(err, "counting students")
	}
	return n, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, filter student.GetFilter) (student.Student, error) {
	var (
		cond string
		args []interface{}
	)
	if filter.ID != "" {
		if !validID(filter.ID) {
			return student.Student{}, student.ErrNotFound
		}
		cond, args = "id = ?", []interface{}{filter.ID}
	} else {
		if !validID(filter.BranchID) {
			return student.Student{}, student.ErrNotFound
		}
		cond, args = "branch_id = ? AND admission_no = ?", []interface{}{filter.BranchID, filter.AdmissionNo}
	}

	var row studentRow
	if err := getOne(ctx, repo.db, &row, student.ErrNotFound, "SELECT "+studentColumns+" FROM students WHERE "+cond, args...); err != nil {
		return student.Student{}, err
	}
	return row.student(), nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	if !validID(st.ID) {
		return student.Student{}, student.ErrNotFound
	}
	row := toStudentRow(st)
	if err := updateByID(ctx, repo.db, "students", studentWriteColumns, row, student.ErrNotFound); err != nil {
		if err == student.ErrNotFound {
			return student.Student{}, err
		}
		return student.Student{}, repo.writeErr(err, "updating student")
	}
	return row.student(), nil
}

// DeleteStudentsByID relies on ON DELETE CASCADE to drop the students' records.
func (repo *studentRepository) DeleteStudentsByID(ctx context.Context, ids ...string) (int, error) {
	return deleteByIDs(ctx, repo.db, "students", validIDs(ids))
}
