package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/licensehub/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockKeyValidator struct {
	mock.Mock
}

func (m *mockKeyValidator) ValidateKey(ctx context.Context, rawKey, ip string) (licensing.Resolution, error) {
	args := m.Called(ctx, rawKey, ip)
	return args.Get(0).(licensing.Resolution), args.Error(1)
}

func activeResolution() licensing.Resolution {
	return licensing.Resolution{
		LicenseKey: tenantKey,
		Product:    licensing.ProductChatbot,
		KeyStatus:  licensing.KeyStatusActive,
		License:    licensing.LicenseStatusActive,
		Plan:       licensing.PlanFree,
	}
}

func newProductRouter(v KeyValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), ProductKeyAuth(v, nil))
	router.POST("/product/validate", func(c *gin.Context) {
		res, _ := GetResolution(c)
		actor, _ := GetActor(c)
		c.JSON(http.StatusOK, gin.H{"license_key": res.LicenseKey, "actor_id": actor.ActorID})
	})
	return router
}

func postWithKey(router http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/product/validate", nil)
	if key != "" {
		req.Header.Set(ProductKeyHeader, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestProductKeyAuth_Active(t *testing.T) {
	v := new(mockKeyValidator)
	v.On("ValidateKey", mock.Anything, "cb_valid", mock.Anything).Return(activeResolution(), nil)

	w := postWithKey(newProductRouter(v), "cb_valid")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), tenantKey)
	assert.Contains(t, w.Body.String(), "product:chatbot")
	assert.NotContains(t, w.Body.String(), "cb_valid")
	v.AssertExpectations(t)
}

func TestProductKeyAuth_DenialsAreIndistinguishable(t *testing.T) {
	revoked := activeResolution()
	revoked.KeyStatus = licensing.KeyStatusInactive
	suspended := activeResolution()
	suspended.License = licensing.LicenseStatusSuspended

	tests := []struct {
		name string
		res  licensing.Resolution
		err  error
	}{
		{"unknown key", licensing.Resolution{}, licensing.ErrProductKeyNotFound},
		{"revoked key", revoked, licensing.ErrProductKeyNotFound},
		{"suspended license", suspended, licensing.ErrProductKeyNotFound},
		{"invalid state", activeResolution(), licensing.ErrLicenseNotActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := new(mockKeyValidator)
			v.On("ValidateKey", mock.Anything, "cb_x", mock.Anything).Return(tt.res, tt.err)

			w := postWithKey(newProductRouter(v), "cb_x")

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, dto.ErrCodeAccessDenied, errorCode(t, w))
			assert.NotContains(t, w.Body.String(), tenantKey)
		})
	}
}

func TestProductKeyAuth_MissingHeader(t *testing.T) {
	v := new(mockKeyValidator)
	w := postWithKey(newProductRouter(v), "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeAccessDenied, errorCode(t, w))
	v.AssertNotCalled(t, "ValidateKey", mock.Anything, mock.Anything, mock.Anything)
}

func TestProductKeyAuth_StoreUnavailable(t *testing.T) {
	v := new(mockKeyValidator)
	v.On("ValidateKey", mock.Anything, "cb_x", mock.Anything).
		Return(licensing.Resolution{}, shared.ErrStoreUnavailable.WithCause(errors.New("dial tcp: refused")))

	w := postWithKey(newProductRouter(v), "cb_x")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, dto.RetryAfterSeconds, w.Header().Get("Retry-After"))
	assert.Equal(t, dto.ErrCodeStoreUnavailable, errorCode(t, w))
	assert.NotContains(t, w.Body.String(), "dial tcp")
}
