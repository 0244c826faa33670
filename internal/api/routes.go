package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"infrasite/internal/api/middleware"
	"infrasite/internal/auth"
	"infrasite/internal/checkout"
	"infrasite/internal/config"
	"infrasite/internal/database"
	"infrasite/internal/events"
	"infrasite/internal/quote"
)

// objectStore is what the media and invoice endpoints need from storage.Client.
type objectStore interface {
	mediaStorage
	invoiceLinker
}

// Dependencies are the shared services the routes are built from.
type Dependencies struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    redisKV
	Auth     *auth.AuthService
	Storage  objectStore
	Checkout *checkout.Service
	Catalogs *quote.Registry
	Feed     events.Feed
	Logger   *slog.Logger
}

// RegisterRoutes mounts the public, auth and admin API under /v1.
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	cache := newPublicCache(deps.Redis, cfg.API.CacheTTL, deps.Logger)

	cms := NewCMSHandler(deps.DB, cache)
	quotes := NewQuoteHandler(deps.Catalogs)
	orders := NewOrderHandler(deps.DB, deps.Checkout, deps.Redis, deps.Storage, cfg.Checkout)
	media := NewMediaHandler(deps.DB, deps.Storage, cfg.Clamd.Addr)
	authHandler := NewAuthHandler(deps.DB, deps.Auth, deps.Redis, cfg.Auth)
	ws := NewWsHandler(deps.Feed, deps.Auth, deps.Logger, cfg.API.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(deps.Auth)
	adminOnly := middleware.RequireRole(database.RoleAdmin)

	v1 := router.Group("/v1")

	v1.GET("/catalogs", quotes.ListCatalogs)
	v1.GET("/catalogs/:service", quotes.GetCatalog)
	v1.POST("/quotes/:service", quotes.Quote)

	v1.GET("/articles", cms.Articles.PublicList)
	v1.GET("/articles/:slug", cms.ArticleBySlug)
	v1.GET("/services", cms.Services.PublicList)
	v1.GET("/testimonials", cms.Testimonials.PublicList)
	v1.GET("/equipment", cms.Equipment.PublicList)
	v1.GET("/pages/:page", cms.PageSections)
	v1.GET("/menus/:location", cms.MenuTree)
	v1.GET("/settings", cms.PublicSettings)

	v1.POST("/orders", orders.PlaceOrder)
	v1.GET("/orders/:ref", orders.GetByReference)
	v1.GET("/orders/:ref/invoice", orders.InvoiceURL)

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/me", authMiddleware, authHandler.Me)
		authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
	}

	// The dashboard socket authenticates with its first message.
	v1.GET("/admin/ws", ws.HandleConnection)

	admin := v1.Group("/admin")
	admin.Use(
		authMiddleware,
		middleware.RequirePasswordChangeCompletedMiddleware(),
		middleware.RequireRole(database.RoleAdmin, database.RoleEditor),
	)
	{
		cms.Articles.Register(admin)
		cms.Services.Register(admin)
		cms.Testimonials.Register(admin)
		cms.PageContents.Register(admin)
		cms.Equipment.Register(admin)
		cms.Menus.Register(admin, adminOnly)
		cms.MenuItems.Register(admin, adminOnly)
		cms.SiteSettings.Register(admin, adminOnly)

		mediaGroup := admin.Group("/media")
		mediaGroup.POST("", media.Upload)
		mediaGroup.GET("", media.List)
		mediaGroup.GET("/:id", media.Get)
		mediaGroup.PATCH("/:id", media.Update)
		mediaGroup.DELETE("/:id", media.Delete)

		admin.GET("/orders", orders.AdminList)
		admin.GET("/orders/:id", orders.AdminGet)
	}
}
