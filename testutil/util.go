// Package testutil creates fixtures straight through the repositories.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/branch"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	return CreateBranchUser(t, repo, "", name, uname, email, pwd, roles, isActive, createdAt...)
}

// CreateBranchUser creates a user confined to branchID.
func CreateBranchUser(
	t *testing.T,
	repo user.Repository,
	branchID, name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if roles == nil {
		roles = []string{}
	}
	usr := user.User{
		ID:        uuid.NewString(),
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		BranchID:  branchID,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateBranch(t *testing.T, repo branch.Repository, name, code string) branch.Branch {
	t.Helper()
	now := time.Now().UTC()
	br, err := repo.CreateBranch(context.Background(), branch.Branch{
		ID:        uuid.NewString(),
		Name:      name,
		Code:      code,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createBranch() failed: %v", err)
	}
	return br
}

// StudentOption tweaks a student before it is stored.
type StudentOption func(*student.Student)

func WithGuardian(name, email, userID string) StudentOption {
	return func(st *student.Student) {
		st.GuardianName = name
		st.GuardianEmail = email
		st.GuardianUserID = userID
	}
}

func WithUser(userID string) StudentOption {
	return func(st *student.Student) { st.UserID = userID }
}

func WithStatus(status string) StudentOption {
	return func(st *student.Student) { st.Status = status }
}

func CreateStudent(
	t *testing.T,
	repo student.Repository,
	branchID, admissionNo, firstName, lastName, className string,
	opts ...StudentOption,
) student.Student {
	t.Helper()
	now := time.Now().UTC()
	st := student.Student{
		ID:          uuid.NewString(),
		BranchID:    branchID,
		AdmissionNo: admissionNo,
		FirstName:   firstName,
		LastName:    lastName,
		ClassName:   className,
		Status:      student.StatusActive,
		EnrolledAt:  core.Today(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, opt := range opts {
		opt(&st)
	}
	st, err := repo.CreateStudent(context.Background(), st)
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return st
}
