package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	licensingapp "github.com/licensehub/backend/internal/application/licensing"
	"github.com/licensehub/backend/internal/domain/licensing"
)

// KeyManager is the slice of the entitlement service used by key handlers
type KeyManager interface {
	IssueKey(ctx context.Context, actor licensing.Actor, in licensingapp.KeyInput) (*licensing.ProductKey, error)
	RevokeKey(ctx context.Context, actor licensing.Actor, in licensingapp.KeyInput) (int64, error)
	ResetProduct(ctx context.Context, actor licensing.Actor, in licensingapp.KeyInput) (int64, error)
	RegenerateKey(ctx context.Context, actor licensing.Actor, in licensingapp.KeyInput) (*licensing.ProductKey, error)
	ListKeys(ctx context.Context, actor licensing.Actor, licenseKey string) ([]licensing.ProductKey, error)
}

// ProductKeyHandler serves a tenant's own product keys
type ProductKeyHandler struct {
	BaseHandler
	keys KeyManager
}

// NewProductKeyHandler creates a new ProductKeyHandler
func NewProductKeyHandler(keys KeyManager) *ProductKeyHandler {
	return &ProductKeyHandler{keys: keys}
}

// IssueKeyRequest is the body of POST /product-keys
// @Description Request body for issuing a product key
type IssueKeyRequest struct {
	Product string `json:"product" binding:"required,product" example:"chatbot"`
}

// List godoc
// @ID           listProductKeys
// @Summary      List product keys
// @Description  List every product key of the caller's license, active and inactive
// @Tags         product-keys
// @Produce      json
// @Success      200 {object} APIResponse[[]licensingapp.ProductKeyDTO]
// @Failure      401 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /product-keys [get]
func (h *ProductKeyHandler) List(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	keys, err := h.keys.ListKeys(c.Request.Context(), actor, actor.LicenseKey.String())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, licensingapp.ToProductKeyDTOs(keys))
}

// Issue godoc
// @ID           issueProductKey
// @Summary      Issue a product key
// @Description  Return the active key for a product, generating one if none exists. Idempotent.
// @Tags         product-keys
// @Accept       json
// @Produce      json
// @Param        request body IssueKeyRequest true "Product"
// @Success      200 {object} APIResponse[licensingapp.ProductKeyDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /product-keys [post]
func (h *ProductKeyHandler) Issue(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req IssueKeyRequest
	if !h.BindJSON(c, &req) {
		return
	}
	key, err := h.keys.IssueKey(c.Request.Context(), actor, licensingapp.KeyInput{
		LicenseKey: actor.LicenseKey.String(),
		Product:    req.Product,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, licensingapp.ToProductKeyDTO(key))
}

// Revoke godoc
// @ID           revokeProductKey
// @Summary      Revoke product keys
// @Description  Deactivate every key of the caller's license for a product. Revoking twice changes nothing.
// @Tags         product-keys
// @Produce      json
// @Param        product path string true "Product" Enums(chatbot, outreach, setup)
// @Success      200 {object} APIResponse[CountData]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /product-keys/{product} [delete]
func (h *ProductKeyHandler) Revoke(c *gin.Context) {
	h.deactivate(c, h.keys.RevokeKey)
}

// Reset godoc
// @ID           resetProduct
// @Summary      Reset a product
// @Description  Reset a product's configuration by deactivating its keys
// @Tags         product-keys
// @Produce      json
// @Param        product path string true "Product" Enums(chatbot, outreach, setup)
// @Success      200 {object} APIResponse[CountData]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /product-keys/{product}/reset [post]
func (h *ProductKeyHandler) Reset(c *gin.Context) {
	h.deactivate(c, h.keys.ResetProduct)
}

func (h *ProductKeyHandler) deactivate(c *gin.Context, op func(context.Context, licensing.Actor, licensingapp.KeyInput) (int64, error)) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	count, err := op(c.Request.Context(), actor, licensingapp.KeyInput{
		LicenseKey: actor.LicenseKey.String(),
		Product:    c.Param("product"),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CountData{Count: count})
}

// Regenerate godoc
// @ID           regenerateProductKey
// @Summary      Regenerate a product key
// @Description  Deactivate the current keys of a product and issue a fresh one
// @Tags         product-keys
// @Produce      json
// @Param        product path string true "Product" Enums(chatbot, outreach, setup)
// @Success      200 {object} APIResponse[licensingapp.ProductKeyDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /product-keys/{product}/regenerate [post]
func (h *ProductKeyHandler) Regenerate(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	key, err := h.keys.RegenerateKey(c.Request.Context(), actor, licensingapp.KeyInput{
		LicenseKey: actor.LicenseKey.String(),
		Product:    c.Param("product"),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, licensingapp.ToProductKeyDTO(key))
}
