package services

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/osiprototype/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findCookie(rec interface{ Result() *http.Response }, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/register/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="confirm"`)

	rec = env.postForm(t, "/register/", url.Values{
		"username": {"newagent"},
		"email":    {"newagent@example.com"},
		"password": {"secret1"},
		"confirm":  {"secret1"},
		"role":     {"agent"},
	}, nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login/", rec.Header().Get("Location"))
	assert.Equal(t, []Flash{{Category: "success", Message: "Thank you for registering. You can now log in."}}, env.popFlashes(t))

	user, err := env.users.GetUserByUsername(context.Background(), "newagent")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, models.RoleAgent, user.Role)
	assert.True(t, user.Active)
	assert.NotEqual(t, "secret1", user.Password)
}

func TestRegister_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		form    url.Values
		message string
	}{
		{
			name:    "duplicate username",
			form:    url.Values{"username": {"parent1"}, "email": {"other@example.com"}, "password": {"secret1"}, "confirm": {"secret1"}},
			message: "Username already registered",
		},
		{
			name:    "duplicate email",
			form:    url.Values{"username": {"other"}, "email": {"parent1@example.com"}, "password": {"secret1"}, "confirm": {"secret1"}},
			message: "Email already registered",
		},
		{
			name:    "password mismatch",
			form:    url.Values{"username": {"other"}, "email": {"other@example.com"}, "password": {"secret1"}, "confirm": {"secret2"}},
			message: "Passwords must match",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.createUser(t, "parent1", models.RoleParent)

			rec := env.postForm(t, "/register/", tt.form, nil)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)

			count, err := env.users.CountUsers(context.Background())
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})
	}
}

func TestRegister_UniqueIndexRace(t *testing.T) {
	tests := []struct {
		name    string
		form    url.Values
		misses  int
		message string
	}{
		{
			name:    "username taken after the check",
			form:    url.Values{"username": {"parent1"}, "email": {"other@example.com"}, "password": {"secret1"}, "confirm": {"secret1"}},
			misses:  2,
			message: "Username already registered",
		},
		{
			name:    "email taken after the check",
			form:    url.Values{"username": {"other"}, "email": {"parent1@example.com"}, "password": {"secret1"}, "confirm": {"secret1"}},
			misses:  2,
			message: "Email already registered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.createUser(t, "parent1", models.RoleParent)
			env.server.lookup = &staleLookup{users: env.users, misses: tt.misses}

			rec := env.postForm(t, "/register/", tt.form, nil)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
			assert.Empty(t, env.popFlashes(t))

			count, err := env.users.CountUsers(context.Background())
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name         string
		form         url.Values
		next         string
		wantCode     int
		wantLocation string
		wantBody     string
	}{
		{
			name:         "valid credentials",
			form:         url.Values{"username": {"parent1"}, "password": {testPassword}},
			wantCode:     http.StatusFound,
			wantLocation: "/profile/",
		},
		{
			name:         "honours local next",
			form:         url.Values{"username": {"parent1"}, "password": {testPassword}},
			next:         "/messages/",
			wantCode:     http.StatusFound,
			wantLocation: "/messages/",
		},
		{
			name:         "ignores external next",
			form:         url.Values{"username": {"parent1"}, "password": {testPassword}},
			next:         "//evil.example/",
			wantCode:     http.StatusFound,
			wantLocation: "/profile/",
		},
		{
			name:     "unknown username",
			form:     url.Values{"username": {"ghost"}, "password": {testPassword}},
			wantCode: http.StatusOK,
			wantBody: "Unknown username",
		},
		{
			name:     "wrong password",
			form:     url.Values{"username": {"parent1"}, "password": {"nope"}},
			wantCode: http.StatusOK,
			wantBody: "Invalid password",
		},
		{
			name:     "missing password",
			form:     url.Values{"username": {"parent1"}},
			wantCode: http.StatusOK,
			wantBody: "This field is required.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.createUser(t, "parent1", models.RoleParent)

			path := "/login/"
			if tt.next != "" {
				path += "?next=" + url.QueryEscape(tt.next)
			}
			rec := env.postForm(t, path, tt.form, nil)

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
				require.NotNil(t, findCookie(rec, accessCookieName))
				require.NotNil(t, findCookie(rec, refreshCookieName))
				assert.True(t, findCookie(rec, accessCookieName).HttpOnly)
			}
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
				assert.Nil(t, findCookie(rec, accessCookieName))
			}
		})
	}
}

func TestLogin_InactiveUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "parent1", models.RoleParent)
	require.NoError(t, env.users.UpdateUserFields(context.Background(), user, map[string]interface{}{"active": false}))

	rec := env.postForm(t, "/login/", url.Values{"username": {"parent1"}, "password": {testPassword}}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "User not activated")
}

func TestLogin_AlreadyAuthenticatedRedirects(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "parent1", models.RoleParent)

	rec := env.get(t, "/login/", env.login(t, user))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/profile/", rec.Header().Get("Location"))
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "parent1", models.RoleParent)
	cookies := env.login(t, user)

	rec := env.postForm(t, "/logout/", url.Values{}, cookies)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login/", rec.Header().Get("Location"))
	cleared := findCookie(rec, accessCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	// the old refresh cookie no longer opens a session
	rec = env.get(t, "/profile/", []*http.Cookie{cookies[1]})
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestMiddleware_RefreshCookieFallback(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "parent1", models.RoleParent)
	cookies := env.login(t, user)

	rec := env.get(t, "/profile/", []*http.Cookie{
		{Name: accessCookieName, Value: "garbage"},
		cookies[1],
	})

	require.Equal(t, http.StatusOK, rec.Code)
	renewed := findCookie(rec, accessCookieName)
	require.NotNil(t, renewed)
	assert.NotEmpty(t, renewed.Value)

	verified, err := env.server.authService.VerifyAccessToken(context.Background(), renewed.Value)
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.ID)
}

func TestMiddleware_ExpiredRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "parent1", models.RoleParent)
	env.server.authService.refreshExpiry = -time.Minute
	cookies := env.login(t, user)

	rec := env.get(t, "/messages/", []*http.Cookie{cookies[1]})

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login/?next=%2Fmessages%2F", rec.Header().Get("Location"))
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/messages/agent1", safeNext("/messages/agent1"))
	assert.Equal(t, "/profile/", safeNext(""))
	assert.Equal(t, "/profile/", safeNext("https://evil.example"))
	assert.Equal(t, "/profile/", safeNext("//evil.example"))
	assert.Equal(t, "/profile/", safeNext(`/\evil.example`))
}

func TestRoot_RedirectsToProfile(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/profile/", rec.Header().Get("Location"))
}
