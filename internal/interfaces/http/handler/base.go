// Package handler implements the HTTP handlers of the licensing API.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/licensehub/backend/internal/infrastructure/logger"
	"github.com/licensehub/backend/internal/interfaces/http/dto"
	"github.com/licensehub/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// actor returns the authenticated caller. Routes are mounted behind
// SessionAuth, so a missing actor is a wiring bug answered with 401.
func (h *BaseHandler) actor(c *gin.Context) (licensing.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		h.Unauthorized(c, "Authentication required")
	}
	return actor, ok
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Paginated sends a paginated result with its meta
func Paginated[T any](h *BaseHandler, c *gin.Context, p shared.Paginated[T]) {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	h.SuccessWithMeta(c, items, p.Total, p.Page, p.PageSize)
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// BindJSON binds the request body and answers validation failures itself.
// It reports whether the handler may continue.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// BindQuery binds query parameters the same way BindJSON binds bodies
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// HandleError converts an application error into an HTTP response.
// Domain errors map through their code; input errors wrapping validator
// failures carry field details; a store outage asks the client to retry.
// Anything else is logged and answered with an opaque 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := middleware.GetRequestID(c)

	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		logger.L(c.Request.Context()).Error("Unhandled error", zap.Error(err))
		h.InternalError(c, "An unexpected error occurred")
		return
	}

	var verrs validator.ValidationErrors
	if domainErr.Code == shared.CodeInvalidInput && errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, middleware.FormatValidationErrors(verrs, requestID))
		return
	}

	code := dto.NormalizeErrorCode(domainErr.Code)
	if code == dto.ErrCodeStoreUnavailable {
		logger.L(c.Request.Context()).Error("Store unavailable", zap.Error(err))
		c.Header("Retry-After", dto.RetryAfterSeconds)
	}
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, domainErr.Message, requestID))
}
