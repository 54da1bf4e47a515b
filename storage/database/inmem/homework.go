package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/homework"
)

type homeworkRepository struct {
	db          *table[homework.Homework]
	submissions *table[homework.Submission]
}

func NewHomeworkRepository(db *DB) homework.Repository {
	return &homeworkRepository{db: db.homework, submissions: db.submission}
}

func homeworkField(hw homework.Homework, field string) interface{} {
	switch field {
	case "title":
		return hw.Title
	case "subject":
		return hw.Subject
	case "class_name":
		return hw.ClassName
	case "due_date":
		return hw.DueDate
	default:
		return hw.CreatedAt
	}
}

func (repo *homeworkRepository) CreateHomework(_ context.Context, hw homework.Homework) (homework.Homework, error) {
	return create(repo.db, hw.ID, hw), nil
}

func (repo *homeworkRepository) QueryHomework(_ context.Context, filter *homework.QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]homework.Homework, int, error) {
	if filter == nil {
		filter = new(homework.QueryFilter)
	}
	rows, total := query(repo.db, func(hw homework.Homework) bool {
		if filter.Search != "" && !(containsFold(hw.Title, filter.Search) || containsFold(hw.Subject, filter.Search)) {
			return false
		}
		return matches(filter.BranchID, hw.BranchID) &&
			matches(filter.TeacherID, hw.TeacherID) &&
			matches(filter.ClassName, hw.ClassName) &&
			matches(filter.Subject, hw.Subject) &&
			inSlice(hw.ID, filter.HomeworkIDs) &&
			withinDate(hw.DueDate, filter.DueFrom, filter.DueTo)
	}, homeworkField, ordering, page, core.DBOrdering{Field: "due_date"}, core.DBOrdering{Field: "created_at"})
	return rows, total, nil
}

func (repo *homeworkRepository) GetHomework(_ context.Context, id string) (homework.Homework, error) {
	return get(repo.db, id, homework.ErrNotFound)
}

func (repo *homeworkRepository) UpdateHomework(_ context.Context, hw homework.Homework) (homework.Homework, error) {
	return update(repo.db, hw.ID, hw, homework.ErrNotFound)
}

func (repo *homeworkRepository) DeleteHomework(_ context.Context, id string) error {
	if err := remove(repo.db, id, homework.ErrNotFound); err != nil {
		return err
	}
	deleteWhere(repo.submissions, func(s homework.Submission) bool { return s.HomeworkID == id })
	return nil
}

func (repo *homeworkRepository) CreateSubmission(_ context.Context, s homework.Submission) (homework.Submission, error) {
	return create(repo.submissions, s.ID, s), nil
}

func (repo *homeworkRepository) QuerySubmissions(_ context.Context, filter homework.SubmissionFilter) ([]homework.Submission, error) {
	rows, _ := query(repo.submissions, func(s homework.Submission) bool {
		if filter.Graded != nil && s.IsGraded() != *filter.Graded {
			return false
		}
		return inSlice(s.HomeworkID, filter.HomeworkIDs) && inSlice(s.StudentID, filter.StudentIDs)
	}, func(s homework.Submission, _ string) interface{} {
		return s.SubmittedAt
	}, []core.DBOrdering{{Field: "submitted_at", Ascending: true}}, core.Pagination{})
	return rows, nil
}

func (repo *homeworkRepository) GetSubmission(_ context.Context, id string) (homework.Submission, error) {
	return get(repo.submissions, id, homework.ErrSubmissionNotFound)
}

func (repo *homeworkRepository) GetStudentSubmission(_ context.Context, homeworkID, studentID string) (homework.Submission, error) {
	repo.submissions.mutex.RLock()
	defer repo.submissions.mutex.RUnlock()

	for _, s := range repo.submissions.rows {
		if s.HomeworkID == homeworkID && s.StudentID == studentID {
			return *s, nil
		}
	}
	return homework.Submission{}, homework.ErrSubmissionNotFound
}

func (repo *homeworkRepository) UpdateSubmission(_ context.Context, s homework.Submission) (homework.Submission, error) {
	if s.Score != nil {
		score := *s.Score
		s.Score = &score
	}
	return update(repo.submissions, s.ID, s, homework.ErrSubmissionNotFound)
}
