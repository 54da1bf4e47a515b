package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/branch"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	sheetsvc "github.com/trezcool/shule/services/spreadsheet"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	"github.com/trezcool/shule/testutil"
)

type testEnv struct {
	cli         *commandLine
	usrRepo     user.Repository
	branchRepo  branch.Repository
	studentRepo student.Repository
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db := inmemdb.Open()
	env := &testEnv{
		usrRepo:     inmemdb.NewUserRepository(db),
		branchRepo:  inmemdb.NewBranchRepository(db),
		studentRepo: inmemdb.NewStudentRepository(db),
	}
	branchSvc := branch.NewService(env.branchRepo)
	env.cli = &commandLine{
		usrRepo:  env.usrRepo,
		branches: branchSvc,
		students: student.NewService(env.studentRepo, branchSvc, sheetsvc.NewExcelService()),
	}
	return env
}

// mockPassword makes the password prompt answer pwd.
func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

func Test_commandLine_migrate(t *testing.T) {
	env := setup(t)

	var gotCommand string
	var gotArgs []string
	orig := runMigrationsFunc
	runMigrationsFunc = func(db *sql.DB, command string, args ...string) error {
		gotCommand, gotArgs = command, args
		switch command {
		case "up", "down", "redo", "reset", "status", "version":
			return nil
		case "up-to", "down-to":
			if len(args) == 0 {
				return errors.Errorf("%s must be of form: %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return errors.Errorf("version must be a number (got '%s')", args[0])
			}
			return nil
		default:
			return errors.Errorf("%q: no such command", command)
		}
	}
	t.Cleanup(func() { runMigrationsFunc = orig })

	tests := []struct {
		name        string
		args        []string
		wantErr     string
		wantCommand string
		wantArgs    []string
	}{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: "requires at least 1 arg(s), only received 0"},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErr: `"lol": no such command`},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}, wantCommand: "up", wantArgs: []string{}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}, wantCommand: "up-to", wantArgs: []string{"2"}},
		{name: "status", args: []string{"migrate", "status"}, wantCommand: "status", wantArgs: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotCommand, gotArgs = "", nil
			err := env.cli.run(tt.args)
			if tt.wantErr != "" {
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCommand, gotCommand)
			assert.Equal(t, tt.wantArgs, gotArgs)
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	env := setup(t)
	br := testutil.CreateBranch(t, env.branchRepo, "Main", "MAIN")
	testutil.CreateUser(t, env.usrRepo, "Taken", "taken", "taken@test.cd", "", nil, true)
	ctx := context.Background()

	t.Run("validation", func(t *testing.T) {
		mockPassword(t, "Sup3r-S3cret!")
		assert.Error(t, env.cli.run([]string{"adduser"}), "username is required")
		assert.EqualError(t, env.cli.run([]string{"adduser", "-u", "bob", "-r", "admin:janitor"}), `unknown role "admin:janitor"`)
		assert.Equal(t, branch.ErrNotFound, errors.Cause(env.cli.run([]string{"adduser", "-u", "bob", "-b", "NOPE"})))
		assert.Equal(t, user.ErrEmailExists, errors.Cause(env.cli.run([]string{"adduser", "-u", "bob", "-e", "taken@test.cd"})))

		mockPassword(t, "")
		assert.Equal(t, errEmptyPassword, env.cli.run([]string{"adduser", "-u", "bob"}))
	})

	t.Run("create then update", func(t *testing.T) {
		mockPassword(t, "Sup3r-S3cret!")
		err := env.cli.run([]string{
			"adduser", "-u", " Bob ", "-e", "Bob@Test.CD", "--name", "Bob Marley", "-r", user.RoleTeacher, "-b", "main",
		})
		require.NoError(t, err)

		usr, err := env.usrRepo.GetUser(ctx, user.GetFilter{Username: "bob"})
		require.NoError(t, err)
		assert.Equal(t, "Bob Marley", usr.Name)
		assert.Equal(t, "bob@test.cd", usr.Email)
		assert.Equal(t, []string{user.RoleTeacher}, usr.Roles)
		assert.Equal(t, br.ID, usr.BranchID)
		assert.True(t, usr.IsActive)
		assert.NoError(t, usr.CheckPassword("Sup3r-S3cret!"))

		mockPassword(t, "An0ther-S3cret!")
		require.NoError(t, env.cli.run([]string{"adduser", "-u", "bob@test.cd", "--owner"}))
		updated, err := env.usrRepo.GetUser(ctx, user.GetFilter{ID: usr.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{user.RoleAdminOwner}, updated.Roles)
		assert.Equal(t, br.ID, updated.BranchID)
		assert.Equal(t, "Bob Marley", updated.Name)
		assert.NoError(t, updated.CheckPassword("An0ther-S3cret!"))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	env := setup(t)
	usr := testutil.CreateUser(t, env.usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	tests := []struct {
		name    string
		args    []string
		pwd     string
		wantErr error
	}{
		{name: "no password", args: []string{"resetpassword", "-u", usr.Username}, wantErr: errEmptyPassword},
		{name: "user not found", args: []string{"resetpassword", "-u", "lol"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-u", usr.Username}, pwd: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "--username", "AWE@test.cd"}, pwd: "lmao"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			err := env.cli.run(tt.args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			refreshed, err := env.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(tt.pwd))
		})
	}
}

func Test_commandLine_importStudents(t *testing.T) {
	env := setup(t)
	br := testutil.CreateBranch(t, env.branchRepo, "Main", "MAIN")

	var buf bytes.Buffer
	err := sheetsvc.NewExcelService().Write(&buf, "Students", []string{"admission_no", "first_name", "last_name", "class_name"}, [][]interface{}{
		{"M-001", "Ada", "Lovelace", "P1"},
		{"M-002", "Bob", "", "P1"},
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "students.xlsx")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	assert.Error(t, env.cli.run([]string{"importstudents", "-b", "MAIN"}), "file is required")
	assert.Error(t, env.cli.run([]string{"importstudents", "-b", "MAIN", "-f", filepath.Join(t.TempDir(), "missing.xlsx")}))

	var out bytes.Buffer
	root := env.cli.rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"importstudents", "-b", br.ID, "-f", path})
	require.NoError(t, root.Execute())
	assert.Equal(t, "MAIN: 1 created, 0 updated, 1 skipped\n  row 3: missing last_name\n", out.String())

	st, err := env.studentRepo.GetStudent(context.Background(), student.GetFilter{BranchID: br.ID, AdmissionNo: "M-001"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", st.FirstName)
}
