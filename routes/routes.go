package routes

import (
	"time"

	"esign-backend/controllers"
	"esign-backend/middlewares"
	"esign-backend/notify"
	"esign-backend/signature"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	DB            *gorm.DB
	Logger        *zap.Logger
	Signatures    *signature.Service
	Notifications *notify.Store
	StaffSecret   string
	StaffTTL      time.Duration
	LinkHits      int
	LinkWindow    time.Duration
}

// Register wires all HTTP routes.
func Register(app *fiber.App, d Deps) {
	api := app.Group("/api")

	// Signer endpoints: capability token in the path, no session.
	signer := controllers.NewSignerController(d.Signatures)
	sign := api.Group("/sign", limiter.New(limiter.Config{
		Max:               d.LinkHits,
		Expiration:        d.LinkWindow,
		LimiterMiddleware: limiter.SlidingWindow{},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests, try again later")
		},
	}))
	sign.Get("/:token", signer.View)
	sign.Post("/:token/request-otp", signer.RequestOTP)
	sign.Post("/:token/verify", signer.Verify)
	sign.Post("/:token/decline", signer.Decline)

	// Public auth endpoints
	auth := controllers.NewAuthController(d.DB, d.StaffSecret, d.StaffTTL, d.Logger)
	api.Post("/registration", auth.Register)
	api.Post("/login", auth.Login)

	// Protected endpoints (JWT auth)
	protected := api.Group("", middlewares.StaffAuth(d.StaffSecret))

	requests := controllers.NewSignatureRequestController(d.Signatures)
	protected.Post("/signature-requests", middlewares.Idempotency(d.DB, d.Logger), requests.Create)
	protected.Get("/signature-requests", requests.List)
	protected.Get("/signature-requests/:id", requests.Get)
	protected.Get("/signature-requests/:id/audit", requests.Audit)
	protected.Post("/signature-requests/:id/cancel", requests.Cancel)
	protected.Post("/signature-requests/:id/resend", requests.Resend)

	notifications := controllers.NewNotificationController(d.Notifications)
	protected.Get("/notifications", notifications.List)
	protected.Post("/notifications/:id/read", notifications.MarkRead)

	// Customers run in a per-request tenant transaction.
	idempotent := middlewares.Idempotency(d.DB, d.Logger)
	tenantTx := middlewares.TenantTx(d.DB)
	customers := controllers.NewCustomerController(d.Logger)
	protected.Post("/customer", idempotent, tenantTx, customers.CreateCustomer)
	protected.Get("/customers", tenantTx, customers.GetCustomers)
	protected.Get("/customer/:id", tenantTx, customers.GetCustomer)
	protected.Put("/customer/:id", idempotent, tenantTx, customers.UpdateCustomer)
}
