package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"esign-backend/captoken"
	"esign-backend/config"
	"esign-backend/database"
	"esign-backend/logger"
	"esign-backend/mailer"
	"esign-backend/middlewares"
	"esign-backend/notify"
	"esign-backend/ratelimit"
	"esign-backend/routes"
	"esign-backend/signature"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	// ---- Database (public)
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}
	if err := database.MigratePublic(db); err != nil {
		log.Fatal("database migration failed", zap.Error(err))
	}

	// ---- Collaborators of the signature workflow
	var sender mailer.Sender = mailer.NewLogSender(log)
	if cfg.SMTP.Enabled() {
		sender = mailer.NewSMTPSender(cfg.SMTP, log)
	} else {
		log.Warn("SMTP_HOST not set, emails are logged instead of delivered")
	}

	var otpLimiter ratelimit.Limiter = ratelimit.NewMemory()
	if cfg.Limits.Backend == "database" {
		otpLimiter = ratelimit.NewStore(db, log)
	}

	inbox := notify.NewStore(db, log)
	notifier := notify.NewAsync(inbox, log)

	signatures := signature.New(db,
		captoken.New(cfg.Signing.TokenSecret, cfg.Signing.LinkTTL),
		sender, notifier, otpLimiter,
		signature.Config{
			PublicBaseURL: cfg.PublicBaseURL,
			RequestTTL:    cfg.Signing.RequestTTL,
			Limits: signature.Limits{
				OtpIssue:  cfg.Limits.OtpIssue,
				OtpVerify: cfg.Limits.OtpVerify,
				Window:    cfg.Limits.Window,
			},
		},
		signature.WithLogger(log),
	)

	// ---- Fiber app with global error handler + body limit
	app := fiber.New(fiber.Config{
		ErrorHandler:          middlewares.ErrorHandler(log),
		BodyLimit:             cfg.BodyLimitBytes,
		DisableStartupMessage: cfg.IsProduction(),
	})
	app.Use(recover.New())
	app.Use(middlewares.RequestLogger(log))

	// ---- CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowCredentials: false, // using Bearer tokens, not cookies
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key, X-Request-ID",
	}))

	// ---- Global rate limiter (applies to all routes; tune via env)
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Limits.GlobalMax,
		Expiration: cfg.Limits.GlobalWindow,
	}))

	// ---- Routes
	routes.Register(app, routes.Deps{
		DB:            db,
		Logger:        log,
		Signatures:    signatures,
		Notifications: inbox,
		StaffSecret:   cfg.Auth.StaffSecret,
		StaffTTL:      cfg.Auth.StaffTTL,
		LinkHits:      cfg.Limits.LinkHits,
		LinkWindow:    cfg.Limits.Window,
	})

	// ---- Start
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("shutdown failed", zap.Error(err))
		}
	}()

	log.Info("API server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
	notifier.Wait()
}
