package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserAdminFlow(t *testing.T) {
	r := newTestRouter(t, "secret", nil)

	// Create
	body := `{"email":"ann@example.com","username":"ann","password":"hunter2hunter2"}`
	w, resp := do(t, r, http.MethodPost, "/api/v1/admin/users", body, testSecret)
	require.Equal(t, http.StatusCreated, w.Code)
	user := dataField(t, resp, "user").(map[string]any)
	id, ok := user["id"].(string)
	require.True(t, ok)
	assert.Equal(t, "ann", user["username"])
	// The hash never leaves the server.
	assert.NotContains(t, user, "password_hash")

	// List
	w, resp = do(t, r, http.MethodGet, "/api/v1/admin/users", "", testSecret)
	require.Equal(t, http.StatusOK, w.Code)
	users := dataField(t, resp, "users").([]any)
	require.Len(t, users, 1)
	listed := users[0].(map[string]any)
	assert.Equal(t, "ann@example.com", listed["email"])
	assert.NotContains(t, listed, "password_hash")
	assert.Equal(t, false, listed["admin"])

	// Promote
	w, _ = do(t, r, http.MethodPatch, "/api/v1/admin/users/"+id+"/admin-status", `{"admin":true}`, testSecret)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = do(t, r, http.MethodGet, "/api/v1/admin/users", "", testSecret)
	require.Equal(t, http.StatusOK, w.Code)
	listed = dataField(t, resp, "users").([]any)[0].(map[string]any)
	assert.Equal(t, true, listed["admin"])

	// Soft delete, then the tombstone rejects further writes.
	w, _ = do(t, r, http.MethodDelete, "/api/v1/admin/users/"+id, "", testSecret)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodDelete, "/api/v1/admin/users/"+id, "", testSecret)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, r, http.MethodPatch, "/api/v1/admin/users/"+id+"/admin-status", `{"admin":false}`, testSecret)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp = do(t, r, http.MethodGet, "/api/v1/admin/users", "", testSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, dataField(t, resp, "users"))
}

func TestUserCreateValidation(t *testing.T) {
	r := newTestRouter(t, "secret", nil)

	// Short password
	w, _ := do(t, r, http.MethodPost, "/api/v1/admin/users", `{"email":"a@b.com","username":"a","password":"short"}`, testSecret)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Bad email
	w, _ = do(t, r, http.MethodPost, "/api/v1/admin/users", `{"email":"nope","username":"a","password":"hunter2hunter2"}`, testSecret)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutesRequireAuthentication(t *testing.T) {
	// oidc mode without a token: BearerAuth passes the request through but
	// the admin group requires an authenticated caller.
	r := newTestRouter(t, "oidc", &stubVerifier{})

	w, _ := do(t, r, http.MethodGet, "/api/v1/admin/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserUpdateAdminStatusValidation(t *testing.T) {
	r := newTestRouter(t, "secret", nil)

	// The admin field is required, not defaulted.
	w, _ := do(t, r, http.MethodPatch, "/api/v1/admin/users/some-id/admin-status", `{}`, testSecret)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
