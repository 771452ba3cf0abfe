package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping/:id", func(c echo.Context) error { return SuccessResponse(c, c.Param("id")) })
	e.GET("/boom", func(echo.Context) error { panic("boom") })
	e.GET("/missing", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundErrorf("rule %s not found", "r1"))
	})
}

func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := NewServer(WithMetrics(reg, reg, "/metrics"))
	s.Register(pingHandler{})
	return s, reg
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestServerEnvelopeAndMetrics(t *testing.T) {
	s, reg := newTestServer(t)

	rec := serve(s, http.MethodGet, "/ping/42")
	require.Equal(t, http.StatusOK, rec.Code)
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 200, body.Status)
	assert.Equal(t, "42", body.Data)

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() != "pairpulse_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "route" && lp.GetValue() == "/ping/:id" {
					found = true
				}
			}
		}
	}
	assert.True(t, found, "expected route template label")

	rec = serve(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pairpulse_http_request_duration_seconds"))
}

func TestServerRecoversPanics(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(s, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAppErrorResponseUsesStatus(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(s, http.MethodGet, "/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Status int         `json:"status"`
		Data   []*AppError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ERR_NOT_FOUND", body.Data[0].Code)
	assert.Equal(t, "rule r1 not found", body.Data[0].Message)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(s, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
