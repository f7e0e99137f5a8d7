package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "/"},
		{"/", "/"},
		{"/api/todos/42", "/api/todos/:param"},
		{"/api/users/6f1c2a4e-7d7b-4d1e-9a43-9f0e8c1d2b3a", "/api/users/:param"},
		{"/api/zero/pull?x=1", "/api/zero/pull"},
		{"/api/users/me/state", "/api/users/me/state"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizePath(c.in), c.in)
	}
}

func TestRegisterAndMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := Register(reg)
	require.NoError(t, err)

	wrapped := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/todos/7", nil))
	RecordMutation("todo.insert", "applied")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `http_requests_total{method="GET",path="/api/todos/:param",status="418"} 1`), body)
	assert.True(t, strings.Contains(body, `sync_mutations_total{name="todo.insert",result="applied"} 1`), body)
}
