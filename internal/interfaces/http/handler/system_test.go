package handler

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/interfaces/http/dto"
	"github.com/licensehub/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	t.Run("store reachable", func(t *testing.T) {
		h := NewHealthHandler(stubPinger{}, "1.2.3")
		router := newRouter(nil, func(r gin.IRoutes) { r.GET("/health", h.Health) })

		w := do(router, http.MethodGet, "/health", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var got HealthResponse
		decode(t, w, &got)
		assert.Equal(t, "ok", got.Status)
		assert.Equal(t, "1.2.3", got.Version)
	})

	t.Run("store down", func(t *testing.T) {
		h := NewHealthHandler(stubPinger{err: errors.New("connection refused")}, "1.2.3")
		router := newRouter(nil, func(r gin.IRoutes) { r.GET("/health", h.Health) })

		w := do(router, http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, dto.RetryAfterSeconds, w.Header().Get("Retry-After"))
		var got HealthResponse
		decode(t, w, &got)
		assert.Equal(t, "unavailable", got.Store)
		assert.NotContains(t, w.Body.String(), "refused")
	})
}

func TestProductHandler_Validate(t *testing.T) {
	h := NewProductHandler()
	router := gin.New()
	router.Use(middleware.RequestID())
	router.POST("/with", func(c *gin.Context) {
		c.Set(middleware.ResolutionKey, licensing.Resolution{
			LicenseKey: tenantKey,
			Product:    licensing.ProductOutreach,
			KeyStatus:  licensing.KeyStatusActive,
			License:    licensing.LicenseStatusActive,
			Plan:       licensing.PlanPro,
		})
	}, h.Validate)
	router.POST("/without", h.Validate)

	w := do(router, http.MethodPost, "/with", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got ValidateResponse
	decode(t, w, &got)
	assert.True(t, got.Valid)
	assert.Equal(t, "outreach", got.Product)
	assert.Equal(t, "pro", got.Plan)

	w = do(router, http.MethodPost, "/without", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeAccessDenied, errorCode(t, w))
}

func TestLicenseHandler_Get(t *testing.T) {
	licenses := new(mockLicenseManager)
	licenses.On("Get", mock.Anything, tenantActor, tenantKey).Return(sampleLicense(licensing.LicenseStatusActive), nil)
	h := NewLicenseHandler(licenses)
	router := newRouter(&tenantActor, func(r gin.IRoutes) { r.GET("/license", h.Get) })

	w := do(router, http.MethodGet, "/license", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]any
	decode(t, w, &got)
	assert.Equal(t, tenantKey, got["key"])
	assert.NotContains(t, got, "legacy_credential")
}
