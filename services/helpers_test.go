package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/osiprototype/backend/models"
	"github.com/osiprototype/backend/repository"
	"github.com/osiprototype/backend/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testOrigin   = "http://localhost:8080"
	testPassword = "secret1"
)

type testEnv struct {
	server  *Server
	handler http.Handler
	db      *repository.Database
	users   *repository.GORMRepository
	conv    *repository.ConversationRepository
	flashes *MemoryFlashStore
	flashID string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.OpenTestDB(t)
	cfg := &Config{
		Server:    ServerConfig{Port: "0", Environment: "test"},
		JWT:       JWTConfig{Secret: "test-secret"},
		Uploads:   UploadsConfig{Dir: t.TempDir(), MaxSize: 1 << 20},
		CSRF:      CSRFConfig{AllowedOrigins: testOrigin},
		WebSocket: WebSocketConfig{AllowedOrigins: testOrigin},
	}
	flashes := NewMemoryFlashStore()

	server, err := NewServer(cfg, db, flashes)
	require.NoError(t, err)
	server.authService.bcryptCost = bcrypt.MinCost

	return &testEnv{
		server:  server,
		handler: server.SetupRoutes(),
		db:      db,
		users:   server.users,
		conv:    server.conversations,
		flashes: flashes,
		flashID: uuid.NewString(),
	}
}

func (e *testEnv) createUser(t *testing.T, username, role string) *models.User {
	t.Helper()
	return testutil.CreateUser(t, e.users, username, username+"@example.com", role, testPassword)
}

// login returns the auth cookies of a fresh session for user.
func (e *testEnv) login(t *testing.T, user *models.User) []*http.Cookie {
	t.Helper()
	session, err := e.server.authService.Login(context.Background(), user.Username, testPassword)
	require.NoError(t, err)
	return []*http.Cookie{
		{Name: accessCookieName, Value: session.AccessToken},
		{Name: refreshCookieName, Value: session.RefreshToken},
	}
}

// do sends a request from a same-origin browser carrying the env's flash session.
func (e *testEnv) do(t *testing.T, req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("Origin", testOrigin)
	req.AddCookie(&http.Cookie{Name: flashCookieName, Value: e.flashID})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, httptest.NewRequest(http.MethodGet, path, nil), cookies)
}

func (e *testEnv) postForm(t *testing.T, path string, values url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(t, req, cookies)
}

func (e *testEnv) popFlashes(t *testing.T) []Flash {
	t.Helper()
	flashes, err := e.flashes.Pop(context.Background(), e.flashID)
	require.NoError(t, err)
	return flashes
}

func (e *testEnv) countMessages(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.DB.Model(&models.Message{}).Count(&count).Error)
	return count
}

// staleLookup misses its first n lookups, like a check that ran just before a
// concurrent write landed.
type staleLookup struct {
	users  *repository.GORMRepository
	misses int
}

func (l *staleLookup) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if l.misses > 0 {
		l.misses--
		return nil, nil
	}
	return l.users.GetUserByUsername(ctx, username)
}

func (l *staleLookup) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if l.misses > 0 {
		l.misses--
		return nil, nil
	}
	return l.users.GetUserByEmail(ctx, email)
}

func readBody(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}
