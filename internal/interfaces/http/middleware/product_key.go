package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/licensehub/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Product key context keys
const (
	ProductKeyHeader = "X-Product-Key"
	ResolutionKey    = "product_resolution"
)

// KeyValidator resolves a raw product key presented by a product instance
type KeyValidator interface {
	ValidateKey(ctx context.Context, rawKey, ip string) (licensing.Resolution, error)
}

// ProductKeyAuth authenticates a product instance by its X-Product-Key
// header. Unknown, inactive and unentitled keys all receive the same 401 so
// a caller cannot probe which keys or licenses exist; the reason is logged.
func ProductKeyAuth(validator KeyValidator, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		raw := c.GetHeader(ProductKeyHeader)
		if raw == "" {
			denyProductKey(c)
			return
		}

		res, err := validator.ValidateKey(c.Request.Context(), raw, c.ClientIP())
		if err != nil {
			switch {
			case shared.IsAccessDenial(err):
				log.Info("Product key rejected",
					zap.String("license_key", res.LicenseKey.String()),
					zap.String("key_status", string(res.KeyStatus)),
					zap.String("license_status", string(res.License)),
					zap.String("client_ip", c.ClientIP()))
				denyProductKey(c)
			case errors.Is(err, shared.ErrStoreUnavailable):
				log.Error("Credential store unavailable during product key validation", zap.Error(err))
				c.Header("Retry-After", dto.RetryAfterSeconds)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.NewErrorResponseWithRequestID(
					dto.ErrCodeStoreUnavailable, "Service temporarily unavailable", GetRequestID(c)))
			default:
				log.Error("Product key validation failed", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
					dto.ErrCodeInternal, "An unexpected error occurred", GetRequestID(c)))
			}
			return
		}

		c.Set(ResolutionKey, res)
		setActor(c, licensing.Actor{
			LicenseKey: res.LicenseKey,
			ActorID:    "product:" + string(res.Product),
			IP:         c.ClientIP(),
		})
		c.Next()
	}
}

func denyProductKey(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeAccessDenied, "Access denied", GetRequestID(c)))
}

// GetResolution returns the resolution stored by ProductKeyAuth
func GetResolution(c *gin.Context) (licensing.Resolution, bool) {
	v, ok := c.Get(ResolutionKey)
	if !ok {
		return licensing.Resolution{}, false
	}
	res, ok := v.(licensing.Resolution)
	return res, ok
}
