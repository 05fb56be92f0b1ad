package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaveflow/apperr"
	"leaveflow/authz"
	"leaveflow/models"
)

type users map[uint]*models.User

func (u users) User(_ context.Context, id uint) (*models.User, error) {
	user, ok := u[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	return user, nil
}

type allowList map[uint]bool

func (a allowList) Authorize(_ context.Context, actorID uint, _ authz.Permission, _ *authz.Resource) bool {
	return a[actorID]
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	w.Header().Set("X-User", user.Username)
	w.WriteHeader(http.StatusOK)
}

func TestAuthMiddleware(t *testing.T) {
	alice := &models.User{ID: 1, Username: "alice", Role: models.RoleEmployee}
	auth := NewAuth("secret", time.Hour, users{1: alice})
	handler := auth.Middleware(http.HandlerFunc(okHandler))

	token, err := auth.GenerateToken(alice)
	require.NoError(t, err)

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/requests/mine", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", rec.Header().Get("X-User"))
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/requests/mine", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "authentication required")
	})

	t.Run("wrong secret", func(t *testing.T) {
		forged, err := NewAuth("other", time.Hour, nil).GenerateToken(alice)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+forged)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired", func(t *testing.T) {
		stale := NewAuth("secret", time.Hour, nil)
		stale.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		expired, err := stale.GenerateToken(alice)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+expired)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("deleted user", func(t *testing.T) {
		ghost, err := auth.GenerateToken(&models.User{ID: 2, Username: "ghost"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+ghost)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestTokenClaims(t *testing.T) {
	auth := NewAuth("secret", time.Hour, nil)
	first, err := auth.GenerateToken(&models.User{ID: 3, Username: "hr", Role: models.RoleHR})
	require.NoError(t, err)
	second, err := auth.GenerateToken(&models.User{ID: 3, Username: "hr", Role: models.RoleHR})
	require.NoError(t, err)

	a, err := auth.ValidateToken(first)
	require.NoError(t, err)
	b, err := auth.ValidateToken(second)
	require.NoError(t, err)
	assert.Equal(t, uint(3), a.UserID)
	assert.Equal(t, models.RoleHR, a.Role)
	assert.NotEqual(t, a.ID, b.ID)
}

func withUser(r *http.Request, user *models.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), UserContextKey, user))
}

func TestRequirePermission(t *testing.T) {
	handler := RequirePermission(allowList{1: true}, authz.PermManageUsers)(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPut, "/users/5/role", nil), &models.User{ID: 1, Username: "admin"}))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPut, "/users/5/role", nil), &models.User{ID: 2, Username: "bob"}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/users/5/role", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequirePasswordChange(t *testing.T) {
	handler := RequirePasswordChange("/password")(http.HandlerFunc(okHandler))
	fresh := &models.User{ID: 1, Username: "admin", MustChangePassword: true}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/requests/mine", nil), fresh))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPut, "/password", nil), fresh))
	assert.Equal(t, http.StatusOK, rec.Code)
}
