package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	appaudit "github.com/licensehub/backend/internal/application/audit"
	licensingapp "github.com/licensehub/backend/internal/application/licensing"
	"github.com/licensehub/backend/internal/domain/audit"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
)

// TenantRevoker revokes a whole license
type TenantRevoker interface {
	RevokeTenant(ctx context.Context, actor licensing.Actor, licenseKey string) error
}

// LegacyMigrator runs the legacy credential back-fill
type LegacyMigrator interface {
	MigrateLegacyCredentials(ctx context.Context, actor licensing.Actor) (licensingapp.MigrationReport, error)
}

// AuditReader lists audit entries
type AuditReader interface {
	List(ctx context.Context, filter audit.Filter) (shared.Paginated[audit.Entry], error)
}

// AuditArchiver writes one day of the audit trail to object storage
type AuditArchiver interface {
	Archive(ctx context.Context, actor licensing.Actor, day time.Time) (appaudit.ArchiveResult, error)
}

var (
	_ AuditReader   = (*appaudit.Recorder)(nil)
	_ AuditArchiver = (*appaudit.Archiver)(nil)
)

// AdminHandler serves the master-only license administration endpoints.
// Routes are mounted behind RequireMaster; the services check again.
type AdminHandler struct {
	BaseHandler
	licenses LicenseManager
	revoker  TenantRevoker
	keys     KeyManager
	migrator LegacyMigrator
	audit    AuditReader
	archiver AuditArchiver
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(licenses LicenseManager, revoker TenantRevoker, keys KeyManager, migrator LegacyMigrator, auditLog AuditReader) *AdminHandler {
	return &AdminHandler{
		licenses: licenses,
		revoker:  revoker,
		keys:     keys,
		migrator: migrator,
		audit:    auditLog,
	}
}

// WithArchiver enables POST /admin/audit/archive
func (h *AdminHandler) WithArchiver(a AuditArchiver) *AdminHandler {
	h.archiver = a
	return h
}

// ProvisionLicenseRequest is the body of POST /admin/licenses
// @Description Request body for provisioning a license
type ProvisionLicenseRequest struct {
	Email                  string   `json:"email" binding:"required,email,max=200" example:"owner@acme.com"`
	Name                   string   `json:"name" binding:"required,max=200" example:"Acme Corp"`
	Plan                   string   `json:"plan" binding:"required,plan" example:"starter"`
	Products               []string `json:"products" binding:"omitempty,dive,product" example:"chatbot,outreach"`
	LegacyCredential       string   `json:"legacy_credential" binding:"omitempty,min=6,max=128,printascii"`
	ExternalSubscriptionID string   `json:"external_subscription_id" binding:"omitempty,max=100" example:"sub_1234"`
	Activate               bool     `json:"activate" example:"true"`
}

// ListLicensesQuery holds the query parameters of GET /admin/licenses
type ListLicensesQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status   string `form:"status" binding:"omitempty,oneof=pending active suspended expired revoked"`
	Plan     string `form:"plan" binding:"omitempty,plan"`
	Product  string `form:"product" binding:"omitempty,product"`
	Search   string `form:"search" binding:"omitempty,max=100"`
}

// ArchiveAuditQuery holds the query parameters of POST /admin/audit/archive
type ArchiveAuditQuery struct {
	Day string `form:"day" binding:"omitempty,datetime=2006-01-02"`
}

// SetProductsRequest is the body of POST /admin/licenses/{key}/products
// @Description Products to enable and disable on a license
type SetProductsRequest struct {
	Enable  []string `json:"enable" binding:"omitempty,dive,product" example:"setup"`
	Disable []string `json:"disable" binding:"omitempty,dive,product" example:"outreach"`
}

// AuditQuery holds the query parameters of GET /admin/audit
type AuditQuery struct {
	Page       int        `form:"page" binding:"omitempty,min=1"`
	PageSize   int        `form:"page_size" binding:"omitempty,min=1,max=100"`
	LicenseKey string     `form:"license_key" binding:"omitempty,license_key"`
	ActorID    string     `form:"actor_id" binding:"omitempty,max=200"`
	Action     string     `form:"action" binding:"omitempty,max=50"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ProvisionLicense godoc
// @ID           provisionLicense
// @Summary      Provision a license
// @Description  Create a license with a generated license key
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request body ProvisionLicenseRequest true "License"
// @Success      201 {object} APIResponse[licensingapp.LicenseDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/licenses [post]
func (h *AdminHandler) ProvisionLicense(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req ProvisionLicenseRequest
	if !h.BindJSON(c, &req) {
		return
	}
	license, err := h.licenses.Provision(c.Request.Context(), actor, licensingapp.ProvisionLicenseInput{
		Email:                  req.Email,
		Name:                   req.Name,
		Plan:                   req.Plan,
		Products:               req.Products,
		LegacyCredential:       req.LegacyCredential,
		ExternalSubscriptionID: req.ExternalSubscriptionID,
		Activate:               req.Activate,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, licensingapp.ToLicenseDTO(license))
}

// ListLicenses godoc
// @ID           listLicenses
// @Summary      List licenses
// @Tags         admin
// @Produce      json
// @Param        page      query int    false "Page"
// @Param        page_size query int    false "Page size"
// @Param        status    query string false "Status"
// @Param        plan      query string false "Plan"
// @Param        product   query string false "Enabled product"
// @Param        search    query string false "Search email, name or key"
// @Success      200 {object} APIResponse[[]licensingapp.LicenseDTO]
// @Failure      403 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/licenses [get]
func (h *AdminHandler) ListLicenses(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var q ListLicensesQuery
	if !h.BindQuery(c, &q) {
		return
	}
	page, err := h.licenses.List(c.Request.Context(), actor, licensingapp.ListLicensesInput(q))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	dtos := make([]licensingapp.LicenseDTO, len(page.Items))
	for i := range page.Items {
		dtos[i] = licensingapp.ToLicenseDTO(&page.Items[i])
	}
	h.SuccessWithMeta(c, dtos, page.Total, page.Page, page.PageSize)
}

// GetLicense godoc
// @ID           getLicense
// @Summary      Get a license
// @Tags         admin
// @Produce      json
// @Param        key path string true "License key"
// @Success      200 {object} APIResponse[licensingapp.LicenseDTO]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/licenses/{key} [get]
func (h *AdminHandler) GetLicense(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	license, err := h.licenses.Get(c.Request.Context(), actor, c.Param("key"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, licensingapp.ToLicenseDTO(license))
}

// ActivateLicense godoc
// @ID           activateLicense
// @Summary      Activate a license
// @Tags         admin
// @Produce      json
// @Param        key path string true "License key"
// @Success      200 {object} APIResponse[licensingapp.LicenseDTO]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/licenses/{key}/activate [post]
func (h *AdminHandler) ActivateLicense(c *gin.Context) {
	h.transition(c, h.licenses.Activate)
}

// SuspendLicense godoc
// @ID           suspendLicense
// @Summary      Suspend a license
// @Description  Suspended licenses fail key resolution until reactivated
// @Tags         admin
// @Produce      json
// @Param        key path string true "License key"
// @Success      200 {object} APIResponse[licensingapp.LicenseDTO]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/licenses/{key}/suspend [post]
func (h *AdminHandler) SuspendLicense(c *gin.Context) {
	h.transition(c, h.licenses.Suspend)
}

// ExpireLicense godoc
// @ID           expireLicense
// @Summary      Expire a license
// @Tags         admin
// @Produce      json
// @Param        key path string true "License key"
// @Success      200 {object} APIResponse[licensingapp.LicenseDTO]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/licenses/{key}/expire [post]
func (h *AdminHandler) ExpireLicense(c *gin.Context) {
	h.transition(c, h.licenses.Expire)
}

func (h *AdminHandler) transition(c *gin.Context, op func(context.Context, licensing.Actor, string) (*licensing.License, error)) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	license, err := op(c.Request.Context(), actor, c.Param("key"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, licensingapp.ToLicenseDTO(license))
}

// RevokeLicense godoc
// @ID           revokeLicense
// @Summary      Revoke a license
// @Description  Permanently revoke a license. Its keys stop resolving and its sessions are invalidated.
// @Tags         admin
// @Produce      json
// @Param        key path string true "License key"
// @Success      200 {object} APIResponse[licensingapp.LicenseDTO]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/licenses/{key}/revoke [post]
func (h *AdminHandler) RevokeLicense(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.revoker.RevokeTenant(ctx, actor, c.Param("key")); err != nil {
		h.HandleError(c, err)
		return
	}
	license, err := h.licenses.Get(ctx, actor, c.Param("key"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, licensingapp.ToLicenseDTO(license))
}

// Impersonate godoc
// @ID           impersonateLicense
// @Summary      Impersonate a license
// @Description  Mint a short-lived session acting as the target license. The session never carries master rights.
// @Tags         admin
// @Produce      json
// @Param        key path string true "License key"
// @Success      200 {object} APIResponse[licensingapp.ImpersonationSession]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/licenses/{key}/impersonate [post]
func (h *AdminHandler) Impersonate(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	session, err := h.licenses.Impersonate(c.Request.Context(), actor, c.Param("key"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, session)
}

// SetProducts godoc
// @ID           setLicenseProducts
// @Summary      Enable or disable products
// @Description  Disabling a product deactivates its keys
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        key     path string             true "License key"
// @Param        request body SetProductsRequest true "Products"
// @Success      200 {object} APIResponse[licensingapp.LicenseDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/licenses/{key}/products [post]
func (h *AdminHandler) SetProducts(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req SetProductsRequest
	if !h.BindJSON(c, &req) {
		return
	}
	license, err := h.licenses.SetProducts(c.Request.Context(), actor, c.Param("key"), req.Enable, req.Disable)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, licensingapp.ToLicenseDTO(license))
}

// ListLicenseKeys godoc
// @ID           listLicenseKeys
// @Summary      List a license's product keys
// @Tags         admin
// @Produce      json
// @Param        key path string true "License key"
// @Success      200 {object} APIResponse[[]licensingapp.ProductKeyDTO]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/licenses/{key}/product-keys [get]
func (h *AdminHandler) ListLicenseKeys(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	keys, err := h.keys.ListKeys(c.Request.Context(), actor, c.Param("key"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, licensingapp.ToProductKeyDTOs(keys))
}

// IssueLicenseKey godoc
// @ID           issueLicenseKey
// @Summary      Issue a product key for a license
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        key     path string          true "License key"
// @Param        request body IssueKeyRequest true "Product"
// @Success      200 {object} APIResponse[licensingapp.ProductKeyDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/licenses/{key}/product-keys [post]
func (h *AdminHandler) IssueLicenseKey(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req IssueKeyRequest
	if !h.BindJSON(c, &req) {
		return
	}
	key, err := h.keys.IssueKey(c.Request.Context(), actor, licensingapp.KeyInput{
		LicenseKey: c.Param("key"),
		Product:    req.Product,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, licensingapp.ToProductKeyDTO(key))
}

// MigrateLegacyCredentials godoc
// @ID           migrateLegacyCredentials
// @Summary      Migrate legacy credentials
// @Description  Back-fill product keys from legacy single credentials. Safe to run repeatedly.
// @Tags         admin
// @Produce      json
// @Success      200 {object} APIResponse[licensingapp.MigrationReport]
// @Failure      403 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/migrations/legacy-credentials [post]
func (h *AdminHandler) MigrateLegacyCredentials(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	report, err := h.migrator.MigrateLegacyCredentials(c.Request.Context(), actor)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// ListAudit godoc
// @ID           listAudit
// @Summary      List audit entries
// @Tags         admin
// @Produce      json
// @Param        page        query int    false "Page"
// @Param        page_size   query int    false "Page size"
// @Param        license_key query string false "License key"
// @Param        actor_id    query string false "Actor"
// @Param        action      query string false "Action"
// @Param        from        query string false "From (RFC 3339)"
// @Param        to          query string false "To (RFC 3339)"
// @Success      200 {object} APIResponse[[]audit.Entry]
// @Failure      403 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/audit [get]
func (h *AdminHandler) ListAudit(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if !actor.IsMaster {
		h.HandleError(c, shared.ErrForbidden.WithMessage("Only the master license may read the audit trail"))
		return
	}
	q := AuditQuery{Page: 1}
	if !h.BindQuery(c, &q) {
		return
	}
	page, err := h.audit.List(c.Request.Context(), audit.Filter{
		Filter:     shared.Filter{Page: q.Page, PageSize: q.PageSize},
		LicenseKey: q.LicenseKey,
		ActorID:    q.ActorID,
		Action:     audit.Action(q.Action),
		From:       q.From,
		To:         q.To,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// ArchiveAudit godoc
// @ID           archiveAudit
// @Summary      Archive one day of the audit trail
// @Description  Writes the entries of a UTC day to the archive bucket as JSON Lines. Defaults to yesterday.
// @Tags         admin
// @Produce      json
// @Param        day query string false "Day (YYYY-MM-DD)"
// @Success      200 {object} APIResponse[appaudit.ArchiveResult]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/audit/archive [post]
func (h *AdminHandler) ArchiveAudit(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if h.archiver == nil {
		h.HandleError(c, shared.ErrInvalidState.WithMessage("Audit archiving is not enabled"))
		return
	}
	var q ArchiveAuditQuery
	if !h.BindQuery(c, &q) {
		return
	}
	day := time.Now().UTC().AddDate(0, 0, -1)
	if q.Day != "" {
		parsed, err := time.Parse(time.DateOnly, q.Day)
		if err != nil {
			h.HandleError(c, shared.ErrInvalidInput.WithMessage("day must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}
	res, err := h.archiver.Archive(c.Request.Context(), actor, day)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, res)
}
