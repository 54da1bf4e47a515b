package user

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

func TestResetToken(t *testing.T) {
	core.Conf.SecretKey = "secret"
	core.Conf.PasswordResetTimeoutDelta = 3 * 24 * time.Hour

	now := time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC)
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = func() time.Time { return time.Now().UTC() } })

	usr := User{
		ID:        "0b6e9f4e-6bd4-4c6a-9f33-3f1f4b3f2a10",
		Name:      "T",
		Username:  "t",
		Email:     "t@test.test",
		IsActive:  true,
		LastLogin: now.Add(-time.Hour),
	}
	require.NoError(t, usr.SetPassword("pwd"))

	validToken := newResetToken(usr)
	expiredToken := signResetToken(usr, now.Add(-time.Second).Unix())
	stretched := signResetToken(usr, now.Add(30*24*time.Hour).Unix())
	_, forgedSig, _ := strings.Cut(validToken, ".")
	forgedExp, _, _ := strings.Cut(stretched, ".")

	changedPwd := usr
	require.NoError(t, changedPwd.SetPassword("new-pwd"))
	changedEmail := usr
	changedEmail.Email = "new@test.test"
	loggedIn := usr
	loggedIn.LastLogin = now

	tests := []struct {
		name    string
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", usr: usr, wantErr: errInvalidResetToken},
		{name: "no separator", usr: usr, token: "lmaooolol", wantErr: errInvalidResetToken},
		{name: "invalid expiry", usr: usr, token: "!!.c2ln", wantErr: errInvalidResetToken},
		{name: "invalid signature encoding", usr: usr, token: "zz.%%%", wantErr: errInvalidResetToken},
		{name: "wrong signature", usr: usr, token: "zz.c2ln", wantErr: errInvalidResetToken},
		{name: "extended expiry", usr: usr, token: forgedExp + "." + forgedSig, wantErr: errInvalidResetToken},
		{name: "expired token", usr: usr, token: expiredToken, wantErr: errResetTokenExpired},
		{name: "password changed", usr: changedPwd, token: validToken, wantErr: errInvalidResetToken},
		{name: "email changed", usr: changedEmail, token: validToken, wantErr: errInvalidResetToken},
		{name: "logged in since", usr: loggedIn, token: validToken, wantErr: errInvalidResetToken},
		{name: "valid token", usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, checkResetToken(tt.usr, tt.token))
		})
	}

	t.Run("valid until the deadline", func(t *testing.T) {
		core.NowFunc = func() time.Time { return now.Add(core.Conf.PasswordResetTimeoutDelta) }
		assert.NoError(t, checkResetToken(usr, validToken))
		core.NowFunc = func() time.Time { return now.Add(core.Conf.PasswordResetTimeoutDelta + time.Second) }
		assert.Equal(t, errResetTokenExpired, checkResetToken(usr, validToken))
	})
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "0b6e9f4e-6bd4-4c6a-9f33-3f1f4b3f2a10"}
	id, err := decodeUID(EncodeUID(usr))
	require.NoError(t, err)
	assert.Equal(t, usr.ID, id)

	_, err = decodeUID("not base64!")
	assert.Error(t, err)
}
