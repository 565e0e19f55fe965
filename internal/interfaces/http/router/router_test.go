package router

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/licensehub/backend/internal/interfaces/http/handler"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/test/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup_MiddlewareIsScoped(t *testing.T) {
	engine := gin.New()
	var calls []string
	mark := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) {
			calls = append(calls, name)
			c.Next()
		}
	}
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	outer := NewDomainGroup("outer", "/outer").Use(mark("outer"))
	outer.GET("/a", ok)
	outer.Group("inner", "/inner").Use(mark("inner")).DELETE("/b", ok)
	other := NewDomainGroup("other", "/other")
	other.POST("/c", ok)

	NewRouter(engine).Register(outer, other).Setup()

	serve := func(method, path string) int {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve(http.MethodDelete, "/api/v1/outer/inner/b"))
	assert.Equal(t, []string{"outer", "inner"}, calls)

	calls = nil
	assert.Equal(t, http.StatusOK, serve(http.MethodPost, "/api/v1/other/c"))
	assert.Empty(t, calls)
}

func TestAPI_Surface(t *testing.T) {
	engine := gin.New()
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) }
	h := Handlers{
		License:    handler.NewLicenseHandler(nil),
		ProductKey: handler.NewProductKeyHandler(nil),
		Usage:      handler.NewUsageHandler(nil, nil),
		Activity:   handler.NewActivityHandler(nil),
		Product:    handler.NewProductHandler(),
		Admin:      handler.NewAdminHandler(nil, nil, nil, nil, nil),
	}
	NewRouter(engine).Register(API(h, Guards{
		Session: []gin.HandlerFunc{deny},
		Product: []gin.HandlerFunc{deny},
	})...).Setup()

	var routes []string
	for _, r := range engine.Routes() {
		routes = append(routes, r.Method+" "+r.Path)
	}
	for _, want := range []string{
		"GET /api/v1/license",
		"GET /api/v1/product-keys",
		"POST /api/v1/product-keys",
		"DELETE /api/v1/product-keys/:product",
		"POST /api/v1/product-keys/:product/regenerate",
		"GET /api/v1/usage",
		"GET /api/v1/conversations",
		"GET /api/v1/leads",
		"GET /api/v1/campaign-stats",
		"POST /api/v1/product/validate",
		"POST /api/v1/admin/licenses",
		"GET /api/v1/admin/licenses",
		"GET /api/v1/admin/licenses/:key",
		"POST /api/v1/admin/licenses/:key/activate",
		"POST /api/v1/admin/licenses/:key/suspend",
		"POST /api/v1/admin/licenses/:key/revoke",
		"POST /api/v1/admin/licenses/:key/impersonate",
		"POST /api/v1/admin/licenses/:key/products",
		"POST /api/v1/admin/migrations/legacy-credentials",
		"GET /api/v1/admin/audit",
		"POST /api/v1/admin/audit/archive",
	} {
		assert.True(t, slices.Contains(routes, want), "missing route %s", want)
	}

	// every route sits behind a guard
	for _, r := range engine.Routes() {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(r.Method, r.Path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", r.Method, r.Path)
	}
}
