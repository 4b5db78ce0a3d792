package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/lost-found/backend/internal/models"
)

const secret = "s3cret"

func sign(t *testing.T, key string, claims *models.JwtCustomClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return tok
}

func validClaims(userID string) *models.JwtCustomClaims {
	return &models.JwtCustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

// run passes req through mw and reports the status and the user id seen by
// the handler.
func run(mw echo.MiddlewareFunc, req *http.Request) (int, string) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	err := mw(func(c echo.Context) error {
		seen, _ = c.Get(ContextUserID).(string)
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		he, ok := err.(*echo.HTTPError)
		if !ok {
			return http.StatusInternalServerError, ""
		}
		return he.Code, ""
	}
	return rec.Code, seen
}

func TestJWTAuthMiddleware(t *testing.T) {
	mw := JWTAuthMiddleware(secret)
	expired := validClaims("u1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	tests := []struct {
		name     string
		header   string
		query    string
		wantCode int
		wantUser string
	}{
		{name: "bearer header", header: "Bearer " + sign(t, secret, validClaims("u1")), wantCode: http.StatusOK, wantUser: "u1"},
		{name: "query token", query: sign(t, secret, validClaims("u2")), wantCode: http.StatusOK, wantUser: "u2"},
		{name: "missing", wantCode: http.StatusUnauthorized},
		{name: "bad scheme", header: "Token abc", wantCode: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + sign(t, "other", validClaims("u1")), wantCode: http.StatusUnauthorized},
		{name: "no user id", header: "Bearer " + sign(t, secret, validClaims("")), wantCode: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + sign(t, secret, expired), wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/"
			if tt.query != "" {
				target = "/?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			code, user := run(mw, req)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantUser, user)
		})
	}
}

func TestAdminTokenMiddleware(t *testing.T) {
	req := func(tok string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)
		if tok != "" {
			r.Header.Set("X-Admin-Token", tok)
		}
		return r
	}

	code, _ := run(AdminTokenMiddleware(""), req("anything"))
	assert.Equal(t, http.StatusForbidden, code)

	mw := AdminTokenMiddleware("ops")
	code, _ = run(mw, req(""))
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = run(mw, req("nope"))
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = run(mw, req("ops"))
	assert.Equal(t, http.StatusOK, code)
}
