package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name           string
		allowedOrigins string
		requestOrigin  string
		expected       bool
	}{
		{
			name:           "Allowed origin - exact match",
			allowedOrigins: "http://localhost,http://example.com",
			requestOrigin:  "http://localhost",
			expected:       true,
		},
		{
			name:           "Allowed origin - second in list",
			allowedOrigins: "http://localhost,http://example.com",
			requestOrigin:  "http://example.com",
			expected:       true,
		},
		{
			name:           "Disallowed origin",
			allowedOrigins: "http://localhost,http://example.com",
			requestOrigin:  "http://malicious.com",
			expected:       false,
		},
		{
			name:           "Empty allowed origins - deny all",
			allowedOrigins: "",
			requestOrigin:  "http://localhost",
			expected:       false,
		},
		{
			name:           "Origin with whitespace in config",
			allowedOrigins: "http://localhost, http://example.com",
			requestOrigin:  "http://example.com",
			expected:       true,
		},
		{
			name:           "Port mismatch - deny",
			allowedOrigins: "http://localhost:5173",
			requestOrigin:  "http://localhost:8080",
			expected:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.Header.Set("Origin", tt.requestOrigin)

			assert.Equal(t, tt.expected, CheckOrigin(req, tt.allowedOrigins))
		})
	}
}

func TestHealth_Postgres(t *testing.T) {
	tests := []struct {
		name     string
		pingErr  error
		expected healthResponse
	}{
		{name: "up", expected: healthResponse{Status: "ok", Database: "up"}},
		{name: "down", pingErr: errors.New("connection refused"), expected: healthResponse{Status: "degraded", Database: "down"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			ping := mock.ExpectPing()
			if tt.pingErr != nil {
				ping.WillReturnError(tt.pingErr)
			}

			s := &Server{db: mock}
			rec := httptest.NewRecorder()
			s.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			var got healthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.expected, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHealth_SQLite(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":"up"}`, rec.Body.String())
}

func TestNewServer_RequiresSecret(t *testing.T) {
	_, err := NewServer(&Config{}, nil, NewMemoryFlashStore())
	assert.Error(t, err)
}

func TestCSRF(t *testing.T) {
	allowed := []string{"https://localhost:8443", "https://admin.example.com"}

	tests := []struct {
		name       string
		method     string
		origin     string
		referer    string
		wantStatus int
	}{
		{name: "GET passes without headers", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "HEAD passes without headers", method: http.MethodHead, wantStatus: http.StatusOK},
		{name: "OPTIONS passes without headers", method: http.MethodOptions, wantStatus: http.StatusOK},
		{name: "POST with valid origin", method: http.MethodPost, origin: "https://localhost:8443", wantStatus: http.StatusOK},
		{name: "POST with trailing slash origin", method: http.MethodPost, origin: "https://localhost:8443/", wantStatus: http.StatusOK},
		{name: "POST with upper case origin", method: http.MethodPost, origin: "HTTPS://LOCALHOST:8443", wantStatus: http.StatusOK},
		{name: "POST with invalid origin", method: http.MethodPost, origin: "https://evil.com", wantStatus: http.StatusForbidden},
		{name: "POST with valid referer", method: http.MethodPost, referer: "https://admin.example.com/profile/", wantStatus: http.StatusOK},
		{name: "POST with invalid referer", method: http.MethodPost, referer: "https://evil.com/page", wantStatus: http.StatusForbidden},
		{name: "origin wins over referer", method: http.MethodPost, origin: "https://evil.com", referer: "https://localhost:8443/", wantStatus: http.StatusForbidden},
		{name: "POST without origin or referer", method: http.MethodPost, wantStatus: http.StatusForbidden},
		{name: "DELETE with invalid origin", method: http.MethodDelete, origin: "https://evil.com", wantStatus: http.StatusForbidden},
	}

	handler := CSRF(allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/profile/edit", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestCSRF_AppliedToRoutes(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/login/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExtractOrigin(t *testing.T) {
	assert.Equal(t, "https://example.com:8443", extractOrigin("https://example.com:8443/path?q=1"))
	assert.Equal(t, "", extractOrigin("not a url"))
	assert.Equal(t, []string{"a", "b"}, splitOrigins(" a, ,b "))
}
