package grantkit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiddlewareEnv(t *testing.T) (*testEnv, *Middleware) {
	t.Helper()
	env := newTestEnv(t, "admin", "registrar", "alice")
	env.assign("admin", "System Administrator")
	env.assign("registrar", "Registrar")
	env.assign("alice", "Student")
	mw := NewMiddleware(env.service, WithPrincipalIDExtractor(PrincipalFromHeader("X-Principal-ID")))
	return env, mw
}

func serve(h http.Handler, principal, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if principal != "" {
		req.Header.Set("X-Principal-ID", principal)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRequirePermission(t *testing.T) {
	_, mw := newMiddlewareEnv(t)

	var seen *Checker
	h := mw.RequirePermission("records.write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetChecker(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	assert.Equal(t, http.StatusUnauthorized, serve(h, "", "/").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, "alice", "/").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, "stranger", "/").Code, "unknown principals are forbidden")

	assert.Equal(t, http.StatusOK, serve(h, "registrar", "/").Code)
	require.NotNil(t, seen)
	assert.Equal(t, "registrar", seen.PrincipalID())

	either := mw.RequireAnyPermission("grades.write", "transcripts.read")(http.HandlerFunc(okHandler))
	assert.Equal(t, http.StatusOK, serve(either, "alice", "/").Code)
	assert.Equal(t, http.StatusForbidden, serve(either, "registrar", "/").Code)
}

func TestRequireManage(t *testing.T) {
	_, mw := newMiddlewareEnv(t)

	r := chi.NewRouter()
	r.With(mw.RequireManage(TargetFromParam("id"))).Get("/principals/{id}", okHandler)
	r.With(mw.RequireManage(TargetFromQuery("principal"))).Get("/lookup", okHandler)

	assert.Equal(t, http.StatusOK, serve(r, "registrar", "/principals/alice").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, "alice", "/principals/registrar").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, "registrar", "/principals/registrar").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, "admin", "/principals/ghost").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "", "/principals/alice").Code)

	assert.Equal(t, http.StatusOK, serve(r, "admin", "/lookup?principal=registrar").Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, "admin", "/lookup").Code)
}

func TestTargetFromParamStdlibPattern(t *testing.T) {
	mux := http.NewServeMux()
	var got string
	mux.HandleFunc("GET /principals/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, _ = TargetFromParam("id")(r)
	})
	serve(mux, "", "/principals/bob")
	assert.Equal(t, "bob", got)

	_, err := TargetFromParam("id")(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLoadChecker(t *testing.T) {
	_, mw := newMiddlewareEnv(t)

	var checker *Checker
	h := mw.LoadChecker()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checker = GetChecker(r.Context())
	}))

	serve(h, "alice", "/")
	require.NotNil(t, checker)
	assert.True(t, checker.HasPermission("courses.read"))

	checker = nil
	serve(h, "", "/")
	assert.Nil(t, checker)

	serve(h, "stranger", "/")
	assert.Nil(t, checker, "lookup failures pass through without a checker")
}

func TestInjectAuditContext(t *testing.T) {
	_, mw := newMiddlewareEnv(t)

	var got AuditContext
	var principal string
	h := mw.InjectAuditContext()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetAuditContext(r.Context())
		principal = GetPrincipalID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Principal-ID", "registrar")
	req.Header.Set("X-Request-ID", "req-42")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("User-Agent", "grant-test/1.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, AuditContext{
		ActorID:   "registrar",
		IPAddress: "203.0.113.9",
		UserAgent: "grant-test/1.0",
		RequestID: "req-42",
	}, got)
	assert.Equal(t, "registrar", principal)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.2"}, "10.0.0.2:1234", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.2:1234", "198.51.100.7"},
		{"remote addr", nil, "192.0.2.5:5555", "192.0.2.5"},
		{"bare remote", nil, "192.0.2.5", "192.0.2.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

func TestDefaultPrincipalExtractor(t *testing.T) {
	env, _ := newMiddlewareEnv(t)
	mw := NewMiddleware(env.service)

	h := mw.RequirePermission("courses.read")(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipalID(context.Background(), "alice"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDefaultErrorHandler(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNoPrincipalID, http.StatusUnauthorized},
		{NewError(ErrForbidden, "no"), http.StatusForbidden},
		{NewError(ErrNotFound, "gone"), http.StatusNotFound},
		{NewError(ErrInvalidWindow, "bad"), http.StatusBadRequest},
		{NewError(ErrStorageUnavailable, "down"), http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		defaultErrorHandler(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}
}

func TestCustomErrorHandler(t *testing.T) {
	env, _ := newMiddlewareEnv(t)
	var captured error
	mw := NewMiddleware(env.service,
		WithPrincipalIDExtractor(PrincipalFromHeader("X-Principal-ID")),
		WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			captured = err
			w.WriteHeader(http.StatusTeapot)
		}),
	)
	h := mw.RequirePermission("roles.manage")(http.HandlerFunc(okHandler))
	assert.Equal(t, http.StatusTeapot, serve(h, "alice", "/").Code)
	assert.True(t, IsForbidden(captured))
}
