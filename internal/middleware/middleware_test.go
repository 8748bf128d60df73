package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var secret = []byte("test-secret")

func principalEcho(t *testing.T, got **Principal) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticate(t *testing.T) {
	log := zaptest.NewLogger(t)
	now := time.Now()

	valid, err := IssueToken(secret, Principal{ID: "u-1", Email: "ada@example.com", FirstName: "Ada"}, time.Hour, now)
	require.NoError(t, err)
	expired, err := IssueToken(secret, Principal{ID: "u-1"}, time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	otherKey, err := IssueToken([]byte("other"), Principal{ID: "u-1"}, time.Hour, now)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{name: "anonymous passes", wantStatus: http.StatusNoContent},
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusNoContent, wantUser: "u-1"},
		{name: "lowercase scheme", header: "bearer " + valid, wantStatus: http.StatusNoContent, wantUser: "u-1"},
		{name: "expired", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + otherKey, wantStatus: http.StatusUnauthorized},
		{name: "malformed header", header: "Token abc", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Principal
			h := Authenticate(secret, log)(principalEcho(t, &got))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantUser == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantUser, got.ID)
			assert.Equal(t, "ada@example.com", got.Email)
			assert.Equal(t, "Ada", got.FirstName)
		})
	}
}

func TestRequireUserAndAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name       string
		principal  *Principal
		handler    http.Handler
		wantStatus int
	}{
		{"user anonymous", nil, RequireUser(ok), http.StatusUnauthorized},
		{"user present", &Principal{ID: "u-1"}, RequireUser(ok), http.StatusOK},
		{"admin anonymous", nil, RequireAdmin(ok), http.StatusUnauthorized},
		{"admin as customer", &Principal{ID: "u-1"}, RequireAdmin(ok), http.StatusForbidden},
		{"admin", &Principal{ID: "a-1", Role: RoleAdmin}, RequireAdmin(ok), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tt.principal))
			}
			rr := httptest.NewRecorder()
			tt.handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestCorrelationID(t *testing.T) {
	var seen string
	h := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderCorrelationID, "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rr.Header().Get(HeaderCorrelationID))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "abc-123", seen)
	assert.Equal(t, seen, rr.Header().Get(HeaderCorrelationID))
}

func TestRecover(t *testing.T) {
	h := CorrelationID(Recover(zaptest.NewLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "internal server error")
	assert.Contains(t, rr.Body.String(), rr.Header().Get(HeaderCorrelationID))
}
