package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qlf-monitor-api/internal/models"
	"github.com/noah-isme/qlf-monitor-api/internal/service"
	appErrors "github.com/noah-isme/qlf-monitor-api/pkg/errors"
)

type tokenStub struct {
	claims *models.JWTClaims
	err    error
	got    string
}

func (s *tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	s.got = token
	return s.claims, s.err
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/history/grids/:id", func(c *gin.Context) {
		claims, _ := c.Get(ContextUserKey)
		if claims == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.String(http.StatusOK, claims.(*models.JWTClaims).UserID)
	})
	return r
}

func TestJWTAcceptsBearerToken(t *testing.T) {
	tokens := &tokenStub{claims: &models.JWTClaims{UserID: "op-1"}}
	r := newRouter(JWT(tokens))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/history/grids/abc", nil)
	req.Header.Set("Authorization", "bearer  token-value")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "op-1", w.Body.String())
	assert.Equal(t, "token-value", tokens.got)
}

func TestJWTRejectsMissingOrInvalidTokens(t *testing.T) {
	cases := map[string]struct {
		header string
		err    error
	}{
		"missing":   {header: ""},
		"malformed": {header: "Token abc"},
		"invalid":   {header: "Bearer abc", err: appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")},
		"internal":  {header: "Bearer abc", err: errors.New("boom")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := newRouter(JWT(&tokenStub{err: tc.err}))
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/history/grids/abc", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.NotEqual(t, http.StatusOK, w.Code)
			assert.NotEqual(t, http.StatusNoContent, w.Code)
		})
	}
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	metrics := service.NewMetricsService()
	r := newRouter(Metrics(metrics))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/grids/abc", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" && label.GetValue() == "/history/grids/:id" {
					found = true
				}
			}
		}
	}
	assert.True(t, found, "request should be labelled with the route pattern")
}

func TestRequireRoles(t *testing.T) {
	withClaims := func(claims *models.JWTClaims) gin.HandlerFunc {
		return func(c *gin.Context) {
			if claims != nil {
				c.Set(ContextUserKey, claims)
			}
			c.Next()
		}
	}
	cases := map[string]struct {
		claims *models.JWTClaims
		want   int
	}{
		"operator":  {claims: &models.JWTClaims{UserID: "op-1", Role: models.RoleOperator}, want: http.StatusOK},
		"viewer":    {claims: &models.JWTClaims{UserID: "v-1", Role: models.RoleViewer}, want: http.StatusForbidden},
		"anonymous": {want: http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := newRouter(withClaims(tc.claims), RequireRoles(models.RoleAdmin, models.RoleOperator))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/grids/abc", nil))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestMetricsFoldsUnmatchedAndSkipsProbes(t *testing.T) {
	metrics := service.NewMetricsService()
	r := newRouter(Metrics(metrics, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/exports/tok-1", "/exports/tok-2", "/health"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	paths := map[string]bool{}
	for _, family := range families {
		if family.GetName() != "http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" {
					paths[label.GetValue()] = true
				}
			}
		}
	}
	assert.Equal(t, map[string]bool{"unmatched": true}, paths)
}
