package echoapi

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/testutil"
)

const testPwd = "Sup3r-S3cret!"

func TestHome(t *testing.T) {
	env := setup(t)
	req, rec := newAuthRequest(http.MethodGet, "/", "")
	env.srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "API!")
}

func Test_userApi_login(t *testing.T) {
	env := setup(t)
	testutil.CreateUser(t, env.usrRepo, "Kid", "kid", "kid@test.cd", testPwd, []string{user.RoleStudent}, true)
	testutil.CreateUser(t, env.usrRepo, "N Dog", "ndog", "ndog@test.cd", testPwd, []string{user.RoleStudent}, false)

	body := func(uname, pwd string) []byte {
		return marshalObj(t, LoginRequest{Username: uname, Password: pwd})
	}

	tests := []httpTest{
		{name: "missing fields", body: body("", ""), wantCode: http.StatusBadRequest},
		{
			name: "wrong password", body: body("kid", "lol"), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "unknown user", body: body("ghost", testPwd), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", body: body("ndog", testPwd), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "by username", body: body("KID", testPwd), wantCode: http.StatusOK},
		{name: "by email", body: body("kid@test.cd", testPwd), wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodPost, "/v1/users/login"
			rec := env.do(t, tt)

			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				unmarshal(t, rec, &resp)
				claims, err := parseToken(resp.Token)
				require.NoError(t, err)
				assert.Equal(t, "kid", claims.Username)
				assert.True(t, claims.IsStudent)
			}
		})
	}
}

func Test_userApi_query(t *testing.T) {
	env := setup(t)
	br := testutil.CreateBranch(t, env.branchRepo, "Main", "MAIN")

	now := time.Now()
	usr1 := testutil.CreateUser(t, env.usrRepo, "User", "awe", "awe@test.cd", "", nil, true, now.Add(time.Hour))
	kid := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "user3@test.cd", "", []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true, now.Add(2*time.Hour))
	teacher := testutil.CreateBranchUser(t, env.usrRepo, br.ID, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true, now.Add(3*time.Hour))
	naughty := testutil.CreateUser(t, env.usrRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleStudent}, false)
	branchAdmin := testutil.CreateBranchUser(t, env.usrRepo, br.ID, "Branch Admin", "badmin", "badmin@test.cd", "", []string{user.RoleAdminPrincipal}, true)

	adminToken := getToken(t, admin)
	path := func(v url.Values) string { return "/v1/users?" + v.Encode() }

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, missingTokenResp)},
		{
			name: "Admin required", path: "/v1/users", token: getToken(t, kid), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "invalid token", path: "/v1/users", token: "lol", wantCode: http.StatusUnauthorized,
			wantData: marshalObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{name: "search", path: path(url.Values{"search": {"USE"}, "ordering": {"name"}}), token: adminToken, wantData: marshalList(t, kid, usr1)},
		{name: "roles", path: path(url.Values{"role": {user.RoleTeacher}}), token: adminToken, wantData: marshalList(t, teacher)},
		{
			name: "is_active=false", path: path(url.Values{"is_active": {"false"}}),
			token: adminToken, wantData: marshalList(t, naughty),
		},
		{name: "is_active=lol", path: path(url.Values{"is_active": {"lol"}}), token: adminToken, wantCode: http.StatusBadRequest},
		{
			name: "created range", path: path(url.Values{
				"created_from": {now.Add(30 * time.Minute).Format(time.RFC3339)},
				"created_to":   {now.Add(150 * time.Minute).Format(time.RFC3339)},
				"ordering":     {"created_at"},
			}),
			token: adminToken, wantData: marshalList(t, usr1, admin),
		},
		{
			name: "branch admins only see their branch", path: path(url.Values{"ordering": {"name"}}),
			token: getToken(t, branchAdmin), wantData: marshalList(t, branchAdmin, teacher),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantCode == 0 {
				tt.wantCode = http.StatusOK
			}
			env.do(t, tt)
		})
	}
}

func Test_userApi_create(t *testing.T) {
	env := setup(t)
	br := testutil.CreateBranch(t, env.branchRepo, "Main", "MAIN")
	other := testutil.CreateBranch(t, env.branchRepo, "Annex", "ANX")
	admin := testutil.CreateUser(t, env.usrRepo, "Principal", "principal", "principal@test.cd", "", []string{user.RoleAdminPrincipal}, true)
	branchAdmin := testutil.CreateBranchUser(t, env.usrRepo, br.ID, "Branch Admin", "badmin", "badmin@test.cd", "", []string{user.RoleAdmin}, true)

	newUser := func(uname string, roles []string, branchID string) []byte {
		return marshalObj(t, user.NewUser{
			Name: "New " + uname, Username: uname, Email: uname + "@test.cd",
			Password: testPwd, PasswordConfirm: testPwd, Roles: roles, BranchID: branchID,
		})
	}

	tests := []struct {
		httpTest
		wantBranch string
	}{
		{httpTest: httpTest{name: "invalid", body: []byte(`{}`), token: getToken(t, admin), wantCode: http.StatusBadRequest}},
		{httpTest: httpTest{
			name: "role above own", body: newUser("boss", []string{user.RoleAdminOwner}, ""),
			token: getToken(t, admin), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"roles": errNoPermsToSetRoles}),
		}},
		{httpTest: httpTest{
			name: "other branch", body: newUser("intruder", []string{user.RoleTeacher}, other.ID),
			token: getToken(t, branchAdmin), wantCode: http.StatusForbidden,
		}},
		{
			httpTest: httpTest{
				name: "branch admin", body: newUser("teach", []string{user.RoleTeacher}, ""),
				token: getToken(t, branchAdmin), wantCode: http.StatusCreated,
			},
			wantBranch: br.ID,
		},
		{
			httpTest: httpTest{
				name: "admin", body: newUser("accountant", []string{user.RoleAdminAccountant}, other.ID),
				token: getToken(t, admin), wantCode: http.StatusCreated,
			},
			wantBranch: other.ID,
		},
		{httpTest: httpTest{
			name: "duplicate username", body: newUser("teach", []string{user.RoleTeacher}, ""),
			token: getToken(t, admin), wantCode: http.StatusBadRequest,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodPost, "/v1/users/register"
			rec := env.do(t, tt.httpTest)

			if tt.wantCode == http.StatusCreated {
				var usr user.User
				unmarshal(t, rec, &usr)
				assert.NotEmpty(t, usr.ID)
				assert.Equal(t, tt.wantBranch, usr.BranchID)
				assert.True(t, usr.IsActive)
			}
		})
	}
}

func Test_userApi_me(t *testing.T) {
	env := setup(t)
	br := testutil.CreateBranch(t, env.branchRepo, "Main", "MAIN")
	parent := testutil.CreateUser(t, env.usrRepo, "Parent", "parent", "parent@test.cd", "", []string{user.RoleParent}, true)
	kid1 := testutil.CreateStudent(t, env.studentRepo, br.ID, "A-001", "Ada", "Doe", "P1", testutil.WithGuardian("Parent", "parent@test.cd", parent.ID))
	kid2 := testutil.CreateStudent(t, env.studentRepo, br.ID, "A-002", "Bob", "Doe", "P3", testutil.WithGuardian("Parent", "parent@test.cd", parent.ID))
	testutil.CreateStudent(t, env.studentRepo, br.ID, "A-003", "Cy", "Roe", "P3")

	rec := env.do(t, httpTest{path: "/v1/users/me", token: getToken(t, parent), wantCode: http.StatusOK})

	var resp struct {
		User          user.User `json:"user"`
		DashboardRole string    `json:"dashboard_role"`
		Students      []struct {
			ID string `json:"id"`
		} `json:"students"`
	}
	unmarshal(t, rec, &resp)
	assert.Equal(t, parent.ID, resp.User.ID)
	assert.Equal(t, user.DashboardParent, resp.DashboardRole)
	ids := []string{}
	for _, st := range resp.Students {
		ids = append(ids, st.ID)
	}
	assert.ElementsMatch(t, []string{kid1.ID, kid2.ID}, ids)
}

func Test_userApi_update(t *testing.T) {
	env := setup(t)
	kid := testutil.CreateUser(t, env.usrRepo, "Kid", "kid", "kid@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, env.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	kidToken := getToken(t, kid)
	path := func(id string) string { return "/v1/users/" + id }

	tests := []httpTest{
		{name: "someone else", path: path(other.ID), body: []byte(`{"name":"Hacked"}`), token: kidToken, wantCode: http.StatusNotFound},
		{name: "own roles", path: path(kid.ID), body: []byte(`{"roles":["admin:"]}`), token: kidToken, wantCode: http.StatusForbidden},
		{name: "own name", path: path(kid.ID), body: []byte(`{"name":"Kiddo"}`), token: kidToken, wantCode: http.StatusOK},
		{name: "admin deactivates", path: path(other.ID), body: []byte(`{"is_active":false}`), token: getToken(t, admin), wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodPut
			env.do(t, tt)
		})
	}

	// deactivated users lose access at once
	env.do(t, httpTest{path: "/v1/users/me", token: getToken(t, other), wantCode: http.StatusForbidden})

	rec := env.do(t, httpTest{path: path(kid.ID), token: kidToken, wantCode: http.StatusOK})
	var usr user.User
	unmarshal(t, rec, &usr)
	assert.Equal(t, "Kiddo", usr.Name)
}

func Test_userApi_destroy(t *testing.T) {
	env := setup(t)
	owner := testutil.CreateUser(t, env.usrRepo, "Owner", "owner", "owner@test.cd", "", []string{user.RoleAdminOwner}, true)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	kid1 := testutil.CreateUser(t, env.usrRepo, "Kid", "kid1", "kid1@test.cd", "", []string{user.RoleStudent}, true)
	kid2 := testutil.CreateUser(t, env.usrRepo, "Kid", "kid2", "kid2@test.cd", "", []string{user.RoleStudent}, true)
	kid3 := testutil.CreateUser(t, env.usrRepo, "Kid", "kid3", "kid3@test.cd", "", []string{user.RoleStudent}, true)

	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "self", path: "/v1/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "higher role", path: "/v1/users/" + owner.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "non admin", path: "/v1/users/" + kid1.ID, token: getToken(t, kid1), wantCode: http.StatusForbidden},
		{name: "one", path: "/v1/users/" + kid1.ID, token: adminToken, wantCode: http.StatusNoContent},
		{name: "many with self", path: "/v1/users?id=" + kid2.ID + "," + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "many", path: "/v1/users?id=" + kid2.ID + "&id=" + kid3.ID, token: adminToken, wantCode: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodDelete
			env.do(t, tt)
		})
	}

	env.do(t, httpTest{
		path: "/v1/users?ordering=username", token: adminToken, wantCode: http.StatusOK,
		wantData: marshalList(t, admin, owner),
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	env := setup(t)
	usr := testutil.CreateUser(t, env.usrRepo, "Kid", "kid", "kid@test.cd", "old-Pa55word!", []string{user.RoleStudent}, true)

	// unknown emails get the same answer
	env.do(t, httpTest{
		method: http.MethodPost, path: "/v1/users/password-reset", body: []byte(`{"email":"ghost@test.cd"}`),
		wantCode: http.StatusOK,
	})
	assert.Empty(t, emailsvc.Sent())

	env.do(t, httpTest{
		method: http.MethodPost, path: "/v1/users/password-reset", body: []byte(`{"email":"KID@test.cd"}`),
		wantCode: http.StatusOK,
	})
	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	data, ok := sent[0].TemplateData.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, user.EncodeUID(usr), data["UID"])

	reset := func(token string) []byte {
		return marshalObj(t, user.ResetUserPassword{Token: token, UID: data["UID"], Password: testPwd, PasswordConfirm: testPwd})
	}
	env.do(t, httpTest{
		method: http.MethodPost, path: "/v1/users/password-reset-confirm", body: reset("lol-token"),
		wantCode: http.StatusBadRequest,
	})
	env.do(t, httpTest{
		method: http.MethodPost, path: "/v1/users/password-reset-confirm", body: reset(data["Token"]),
		wantCode: http.StatusOK,
	})
	env.do(t, httpTest{
		method: http.MethodPost, path: "/v1/users/login", body: marshalObj(t, LoginRequest{Username: "kid", Password: testPwd}),
		wantCode: http.StatusOK,
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	env := setup(t)
	usr := testutil.CreateUser(t, env.usrRepo, "Kid", "kid", "kid@test.cd", "", []string{user.RoleStudent}, true)

	origIat := time.Now().Add(-time.Hour).Unix()
	token, err := GenerateToken(GetUserClaims(usr, origIat))
	require.NoError(t, err)

	rec := env.do(t, httpTest{method: http.MethodPost, path: "/v1/users/token-refresh", token: token, wantCode: http.StatusOK})
	var resp LoginResponse
	unmarshal(t, rec, &resp)
	claims, err := parseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, origIat, claims.OrigIssuedAt)

	// refresh window is over
	expired, err := GenerateToken(GetUserClaims(usr, time.Now().Add(-30*24*time.Hour).Unix()))
	require.NoError(t, err)
	env.do(t, httpTest{
		method: http.MethodPost, path: "/v1/users/token-refresh", token: expired, wantCode: http.StatusForbidden,
		wantData: marshalObj(t, httpErr{Error: "refresh has expired"}),
	})
}
