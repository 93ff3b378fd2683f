package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marioschiavon/uplink/internal/middleware/auth"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func runMiddleware(t *testing.T, cfg auth.JWTConfig, authorization string) (*httptest.ResponseRecorder, *auth.AuthUser) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var captured *auth.AuthUser
	handler := auth.JWTMiddleware(cfg)(func(c echo.Context) error {
		captured, _ = auth.GetUserFromContext(c)
		return c.NoContent(http.StatusOK)
	})

	require.NoError(t, handler(c))
	return rec, captured
}

func TestJWTMiddleware(t *testing.T) {
	logger := zap.NewNop()
	orgID := uuid.New()

	t.Run("valid token populates the user", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"org_id": orgID.String(),
			"email":  "user@acme.test",
			"role":   "admin",
			"exp":    time.Now().Add(time.Hour).Unix(),
		}, testSecret)

		rec, user := runMiddleware(t, auth.JWTConfig{Secret: testSecret, Logger: logger}, "Bearer "+token)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, user)
		assert.Equal(t, orgID, user.OrganizationID)
		assert.Equal(t, "user@acme.test", user.Email)
		assert.True(t, user.IsAdmin())
	})

	t.Run("missing role defaults to member", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"org_id": orgID.String(),
			"exp":    time.Now().Add(time.Hour).Unix(),
		}, testSecret)

		rec, user := runMiddleware(t, auth.JWTConfig{Secret: testSecret, Logger: logger}, "Bearer "+token)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, user)
		assert.Equal(t, auth.RoleMember, user.Role)
		assert.False(t, user.IsAdmin())
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		rec, _ := runMiddleware(t, auth.JWTConfig{Secret: testSecret, Logger: logger}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		rec, _ := runMiddleware(t, auth.JWTConfig{Secret: testSecret, Logger: logger}, "Token abc")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong signature is rejected", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"org_id": orgID.String(),
			"exp":    time.Now().Add(time.Hour).Unix(),
		}, "other-secret")

		rec, _ := runMiddleware(t, auth.JWTConfig{Secret: testSecret, Logger: logger}, "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"org_id": orgID.String(),
			"exp":    time.Now().Add(-time.Hour).Unix(),
		}, testSecret)

		rec, _ := runMiddleware(t, auth.JWTConfig{Secret: testSecret, Logger: logger}, "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token without org_id is rejected", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"email": "user@acme.test",
			"exp":   time.Now().Add(time.Hour).Unix(),
		}, testSecret)

		rec, _ := runMiddleware(t, auth.JWTConfig{Secret: testSecret, Logger: logger}, "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("skip paths bypass validation", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		handler := auth.JWTMiddleware(auth.JWTConfig{
			Secret:    testSecret,
			Logger:    logger,
			SkipPaths: []string{"/api/v1/plans"},
		})(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})

		require.NoError(t, handler(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	logger := zap.NewNop()
	orgID := uuid.New()

	run := func(t *testing.T, role string) *httptest.ResponseRecorder {
		token := signToken(t, jwt.MapClaims{
			"org_id": orgID.String(),
			"role":   role,
			"exp":    time.Now().Add(time.Hour).Unix(),
		}, testSecret)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/monitoring/tasks", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		handler := auth.JWTMiddleware(auth.JWTConfig{Secret: testSecret, Logger: logger})(
			auth.RequireRole(auth.RoleAdmin, logger)(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			}))

		require.NoError(t, handler(c))
		return rec
	}

	t.Run("admin passes", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, run(t, auth.RoleAdmin).Code)
	})

	t.Run("member is forbidden", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, run(t, auth.RoleMember).Code)
	})
}
