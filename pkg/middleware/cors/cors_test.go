package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(allowed []string, method, origin string, preflight bool) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(allowed))
	r.GET("/history/grids/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(method, "/history/grids/g1", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListedOriginGetsCredentials(t *testing.T) {
	w := serve([]string{"https://qlf.example/"}, http.MethodGet, "https://QLF.example", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://QLF.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestOpenPolicyNeverAllowsCredentials(t *testing.T) {
	w := serve(nil, http.MethodGet, "https://anywhere.example", false)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestPreflight(t *testing.T) {
	w := serve([]string{"https://qlf.example"}, http.MethodOptions, "https://qlf.example", true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)

	w = serve([]string{"https://qlf.example"}, http.MethodOptions, "https://evil.example", true)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUnlistedOriginPassesWithoutHeaders(t *testing.T) {
	w := serve([]string{"https://qlf.example"}, http.MethodGet, "https://evil.example", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = serve([]string{"https://qlf.example"}, http.MethodGet, "", false)
	assert.Equal(t, http.StatusOK, w.Code)
}
