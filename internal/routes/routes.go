package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/config"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type Handlers struct {
	Auth       *handlers.AuthHandler
	Credit     *handlers.CreditHandler
	Audit      *handlers.AuditHandler
	Blockchain *handlers.BlockchainHandler
	Health     *handlers.HealthHandler
}

func rateLimit(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               max,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	})
}

func Setup(app *fiber.App, cfg *config.Config, h Handlers, users middleware.UserLoader) {
	if cfg.MetricsEnabled {
		app.Get("/metrics", metrics.Handler())
	}

	api := app.Group("/api")
	if cfg.RateLimit > 0 {
		api.Use(rateLimit(cfg.RateLimit))
	}

	api.Get("/health", h.Health.Check)

	// Stricter per-IP limit on credential endpoints
	auth := api.Group("/auth")
	if cfg.AuthRateLimit > 0 {
		auth.Use(rateLimit(cfg.AuthRateLimit))
	}
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/refresh", h.Auth.Refresh)

	authed := []fiber.Handler{middleware.JWTProtected(cfg), middleware.LoadUser(users)}
	regulator := middleware.RequireRoles(models.RoleRegulator)

	// Account routes share the /auth prefix with the public ones, so the JWT
	// chain is attached per route rather than to a group.
	protected := func(hs ...fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, authed...), hs...)
	}
	api.Post("/auth/logout", protected(h.Auth.Logout)...)
	api.Get("/auth/me", protected(h.Auth.Me)...)
	api.Put("/auth/profile", protected(h.Auth.UpdateProfile)...)
	api.Post("/auth/change-password", protected(h.Auth.ChangePassword)...)
	api.Get("/auth/users", protected(regulator, h.Auth.ListUsers)...)
	api.Get("/auth/users/:role", protected(h.Auth.ListUsersByRole)...)
	api.Patch("/auth/users/:id/status", protected(regulator, h.Auth.SetUserStatus)...)

	// Fixed paths must be registered before /:id
	credits := api.Group("/credits", authed...)
	credits.Post("/issue", middleware.RequireRoles(models.RoleCertifier), h.Credit.Issue)
	credits.Post("/transfer", h.Credit.Transfer)
	credits.Post("/retire", middleware.RequireRoles(models.RoleConsumer), h.Credit.Retire)
	credits.Get("/my-credits", h.Credit.MyCredits)
	credits.Get("/produced-credits", middleware.RequireRoles(models.RoleProducer), h.Credit.ProducedCredits)
	credits.Get("/statistics", h.Credit.Statistics)
	credits.Get("/:id", h.Credit.Get)
	credits.Get("/:id/history", h.Credit.History)

	audit := api.Group("/audit", protected(middleware.RequireRoles(models.RoleRegulator, models.RoleCertifier))...)
	audit.Get("/credits", h.Audit.Credits)
	audit.Get("/credits/:id", h.Audit.Credit)
	audit.Post("/verify/:id", h.Audit.Verify)
	audit.Get("/statistics", h.Audit.Statistics)
	audit.Get("/blockchain-events", h.Audit.BlockchainEvents)
	audit.Get("/users", regulator, h.Audit.Users)
	audit.Get("/operations", regulator, h.Audit.Operations)

	chain := api.Group("/blockchain", authed...)
	chain.Get("/network", h.Blockchain.Network)
	chain.Get("/transaction/:txHash", h.Blockchain.Transaction)
	chain.Get("/credit/:creditId", h.Blockchain.Credit)
	chain.Get("/balance/:address/:creditId", h.Blockchain.Balance)
	chain.Get("/total-credits", h.Blockchain.TotalCredits)
	chain.Get("/user-credits/:address", h.Blockchain.UserCredits)
	chain.Get("/role/:address/:role", h.Blockchain.Role)
	chain.Get("/events", h.Blockchain.Events)
	chain.Post("/verify", h.Blockchain.Verify)
}
