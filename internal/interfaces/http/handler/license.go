package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	licensingapp "github.com/licensehub/backend/internal/application/licensing"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
)

// LicenseManager is the slice of the license service used by handlers
type LicenseManager interface {
	Provision(ctx context.Context, actor licensing.Actor, in licensingapp.ProvisionLicenseInput) (*licensing.License, error)
	Get(ctx context.Context, actor licensing.Actor, licenseKey string) (*licensing.License, error)
	List(ctx context.Context, actor licensing.Actor, in licensingapp.ListLicensesInput) (shared.Paginated[licensing.License], error)
	Activate(ctx context.Context, actor licensing.Actor, licenseKey string) (*licensing.License, error)
	Suspend(ctx context.Context, actor licensing.Actor, licenseKey string) (*licensing.License, error)
	Expire(ctx context.Context, actor licensing.Actor, licenseKey string) (*licensing.License, error)
	SetProducts(ctx context.Context, actor licensing.Actor, licenseKey string, enable, disable []string) (*licensing.License, error)
	Impersonate(ctx context.Context, actor licensing.Actor, licenseKey string) (*licensingapp.ImpersonationSession, error)
}

// LicenseHandler serves the caller's own license
type LicenseHandler struct {
	BaseHandler
	licenses LicenseManager
}

// NewLicenseHandler creates a new LicenseHandler
func NewLicenseHandler(licenses LicenseManager) *LicenseHandler {
	return &LicenseHandler{licenses: licenses}
}

// Get godoc
// @ID           getOwnLicense
// @Summary      Get own license
// @Description  Return the license of the authenticated session
// @Tags         license
// @Produce      json
// @Success      200 {object} APIResponse[licensingapp.LicenseDTO]
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /license [get]
func (h *LicenseHandler) Get(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	license, err := h.licenses.Get(c.Request.Context(), actor, actor.LicenseKey.String())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, licensingapp.ToLicenseDTO(license))
}
