package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/infrastructure/auth"
	"github.com/licensehub/backend/internal/infrastructure/logger"
	"github.com/licensehub/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Session context keys
const (
	ActorKey      = "actor"
	ClaimsKey     = "session_claims"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// SessionValidator validates session tokens and maps them to actors
type SessionValidator interface {
	Validate(token string) (*auth.Claims, error)
	Actor(claims *auth.Claims, ip string) licensing.Actor
}

// InvalidationChecker reports whether a license's sessions were invalidated
// after the token was issued
type InvalidationChecker interface {
	IsInvalidated(ctx context.Context, key licensing.LicenseKey, issuedAt time.Time) (bool, error)
}

// SessionConfig holds configuration for the session middleware
type SessionConfig struct {
	Validator SessionValidator
	// Blacklist is optional; without it suspended licenses keep their sessions until expiry
	Blacklist InvalidationChecker
	Logger    *zap.Logger
}

// SessionAuth authenticates the bearer session token and stores the
// resulting actor in the gin and request contexts.
func SessionAuth(cfg SessionConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			abortSession(c, log, auth.ErrInvalidToken, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(header, BearerPrefix) {
			abortSession(c, log, auth.ErrInvalidToken, "Invalid authorization header format")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
		if token == "" {
			abortSession(c, log, auth.ErrInvalidToken, "Missing token")
			return
		}

		claims, err := cfg.Validator.Validate(token)
		if err != nil {
			abortSession(c, log, err, "Token validation failed")
			return
		}

		if cfg.Blacklist != nil {
			invalidated, err := cfg.Blacklist.IsInvalidated(c.Request.Context(), licensing.LicenseKey(claims.LicenseKey), claims.IssuedAtTime())
			if err != nil {
				// fail open: the license status check in the services still applies
				log.Error("Failed to check session invalidation",
					zap.String("license_key", claims.LicenseKey),
					zap.Error(err))
			} else if invalidated {
				abortSession(c, log, auth.ErrTokenRevoked, "Session invalidated")
				return
			}
		}

		actor := cfg.Validator.Actor(claims, c.ClientIP())
		setActor(c, actor)
		c.Set(ClaimsKey, claims)

		log.Debug("Session authenticated",
			zap.String("license_key", actor.LicenseKey.String()),
			zap.String("actor_id", actor.ActorID),
			zap.Bool("impersonated", actor.ImpersonatedBy != ""))
		c.Next()
	}
}

func abortSession(c *gin.Context, log *zap.Logger, err error, reason string) {
	log.Warn("Session authentication failed",
		zap.Error(err),
		zap.String("reason", reason),
		zap.String("path", c.Request.URL.Path))

	code, message := dto.ErrCodeUnauthorized, "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, message = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrTokenRevoked):
		code, message = dto.ErrCodeTokenRevoked, "Session has been invalidated"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidClaims),
		errors.Is(err, auth.ErrInvalidTokenType), errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingLicenseKey):
		code, message = dto.ErrCodeTokenInvalid, "Invalid token"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}

// RequireMaster rejects actors that are not the master license. Place it
// after SessionAuth.
func RequireMaster() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized, "Authentication required", GetRequestID(c)))
			return
		}
		if !actor.IsMaster {
			c.AbortWithStatusJSON(http.StatusForbidden,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeForbidden, "Master license required", GetRequestID(c)))
			return
		}
		c.Next()
	}
}

func setActor(c *gin.Context, actor licensing.Actor) {
	c.Set(ActorKey, actor)
	ctx := logger.WithLicenseKey(c.Request.Context(), actor.LicenseKey.String())
	ctx = logger.WithActorID(ctx, actor.ActorID)
	c.Request = c.Request.WithContext(ctx)
}

// GetActor returns the authenticated actor
func GetActor(c *gin.Context) (licensing.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return licensing.Actor{}, false
	}
	actor, ok := v.(licensing.Actor)
	return actor, ok
}

// GetClaims returns the session claims, or nil for product-key requests
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(ClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}
