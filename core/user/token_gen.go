package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	resetTokenPurpose = "shule/password-reset:"

	// errors
	errInvalidResetToken = errors.New("invalid token")
	errResetTokenExpired = errors.New("token expired")
)

// EncodeUID is the URL-safe form of the user ID carried by password reset links.
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

// newResetToken returns `<expiry>.<mac>`, the expiry being a base36 unix time.
func newResetToken(usr User) string {
	return signResetToken(usr, core.NowFunc().Add(core.Conf.PasswordResetTimeoutDelta).Unix())
}

func signResetToken(usr User, expiry int64) string {
	exp := strconv.FormatInt(expiry, 36)
	return exp + "." + base64.RawURLEncoding.EncodeToString(resetMAC(usr, exp))
}

func checkResetToken(usr User, token string) error {
	exp, sig, ok := strings.Cut(token, ".")
	if !ok {
		return errInvalidResetToken
	}
	expiry, err := strconv.ParseInt(exp, 36, 64)
	if err != nil {
		return errInvalidResetToken
	}
	mac, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(mac, resetMAC(usr, exp)) {
		return errInvalidResetToken
	}
	if core.NowFunc().Unix() > expiry {
		return errResetTokenExpired
	}
	return nil
}

// resetMAC changes with the user's email, password and last login: a used or stale link stops working.
func resetMAC(usr User, exp string) []byte {
	key := sha256.Sum256([]byte(resetTokenPurpose + core.Conf.SecretKey))
	h := hmac.New(sha256.New, key[:])

	var lastLogin string
	if !usr.LastLogin.IsZero() {
		lastLogin = usr.LastLogin.UTC().Format(time.RFC3339Nano)
	}
	for _, part := range [][]byte{
		[]byte(usr.ID),
		[]byte(strings.ToLower(usr.Email)),
		usr.PasswordHash,
		[]byte(lastLogin),
		[]byte(exp),
	} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return h.Sum(nil)
}
