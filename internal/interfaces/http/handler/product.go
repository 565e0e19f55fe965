package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/licensehub/backend/internal/interfaces/http/dto"
	"github.com/licensehub/backend/internal/interfaces/http/middleware"
)

// ProductHandler serves the endpoints called by product instances. They
// sit behind ProductKeyAuth, which has already resolved the key.
type ProductHandler struct {
	BaseHandler
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler() *ProductHandler {
	return &ProductHandler{}
}

// ValidateResponse is the body of POST /product/validate
// @Description Entitlement of a product key
type ValidateResponse struct {
	Valid      bool   `json:"valid" example:"true"`
	LicenseKey string `json:"license_key" example:"ABCD-EFGH-JKLM-NPQR"`
	Product    string `json:"product" example:"chatbot"`
	Plan       string `json:"plan" example:"starter"`
}

// Validate godoc
// @ID           validateProductKey
// @Summary      Validate a product key
// @Description  Resolve the X-Product-Key header to its license. Every failure is the same 401.
// @Tags         product
// @Produce      json
// @Param        X-Product-Key header string true "Product key"
// @Success      200 {object} APIResponse[ValidateResponse]
// @Failure      401 {object} ErrorResponse
// @Failure      429 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /product/validate [post]
func (h *ProductHandler) Validate(c *gin.Context) {
	res, ok := middleware.GetResolution(c)
	if !ok {
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeAccessDenied, "Access denied")
		return
	}
	h.Success(c, ValidateResponse{
		Valid:      true,
		LicenseKey: res.LicenseKey.String(),
		Product:    string(res.Product),
		Plan:       string(res.Plan),
	})
}
