package router

import (
	"github.com/gin-gonic/gin"
	"github.com/licensehub/backend/internal/interfaces/http/handler"
)

// Handlers bundles the API handlers
type Handlers struct {
	License    *handler.LicenseHandler
	ProductKey *handler.ProductKeyHandler
	Usage      *handler.UsageHandler
	Activity   *handler.ActivityHandler
	Product    *handler.ProductHandler
	Admin      *handler.AdminHandler
}

// Guards holds the middleware chains placed in front of each audience.
// Session authenticates a tenant JWT; Master additionally requires the
// master license; Product authenticates and meters an X-Product-Key.
type Guards struct {
	Session []gin.HandlerFunc
	Master  []gin.HandlerFunc
	Product []gin.HandlerFunc
}

// API returns the route groups of the licensing API
func API(h Handlers, g Guards) []RouteRegistrar {
	tenant := NewDomainGroup("tenant", "").Use(g.Session...)
	tenant.GET("/license", h.License.Get)
	tenant.GET("/usage", h.Usage.Summary)
	tenant.GET("/conversations", h.Activity.Conversations)
	tenant.GET("/leads", h.Activity.Leads)
	tenant.GET("/campaign-stats", h.Activity.CampaignStats)

	keys := tenant.Group("product-keys", "/product-keys")
	keys.GET("", h.ProductKey.List)
	keys.POST("", h.ProductKey.Issue)
	keys.DELETE("/:product", h.ProductKey.Revoke)
	keys.POST("/:product/reset", h.ProductKey.Reset)
	keys.POST("/:product/regenerate", h.ProductKey.Regenerate)

	product := NewDomainGroup("product", "/product").Use(g.Product...)
	product.POST("/validate", h.Product.Validate)

	admin := NewDomainGroup("admin", "/admin").Use(g.Session...).Use(g.Master...)
	licenses := admin.Group("licenses", "/licenses")
	licenses.POST("", h.Admin.ProvisionLicense)
	licenses.GET("", h.Admin.ListLicenses)
	licenses.GET("/:key", h.Admin.GetLicense)
	licenses.POST("/:key/activate", h.Admin.ActivateLicense)
	licenses.POST("/:key/suspend", h.Admin.SuspendLicense)
	licenses.POST("/:key/expire", h.Admin.ExpireLicense)
	licenses.POST("/:key/revoke", h.Admin.RevokeLicense)
	licenses.POST("/:key/impersonate", h.Admin.Impersonate)
	licenses.POST("/:key/products", h.Admin.SetProducts)
	licenses.GET("/:key/product-keys", h.Admin.ListLicenseKeys)
	licenses.POST("/:key/product-keys", h.Admin.IssueLicenseKey)
	admin.POST("/migrations/legacy-credentials", h.Admin.MigrateLegacyCredentials)
	admin.GET("/audit", h.Admin.ListAudit)
	admin.POST("/audit/archive", h.Admin.ArchiveAudit)

	return []RouteRegistrar{tenant, product, admin}
}
