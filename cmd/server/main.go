package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"sportsreg_app/internal/config"
	"sportsreg_app/internal/gateway"
	"sportsreg_app/internal/handlers"
	"sportsreg_app/internal/metrics"
	appmiddleware "sportsreg_app/internal/middleware"
	"sportsreg_app/internal/notify"
	"sportsreg_app/internal/pricing"
	"sportsreg_app/internal/repository"
	"sportsreg_app/internal/services"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	db, err := services.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	if err := services.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("database migration failed")
	}
	store := repository.NewStore(db)

	cache, err := services.NewRedisCache(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, running without cache and locks")
		cache = nil
	}

	var notifier notify.Notifier
	if cfg.SMTPHost != "" {
		notifier = notify.NewEmailNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	} else {
		log.Warn("SMTP not configured, notifications go to the log")
		notifier = &notify.LogNotifier{Log: log}
	}

	m := metrics.New()
	midtrans := gateway.NewMidtransGateway(cfg.MidtransServerKey, cfg.MidtransClientKey, cfg.MidtransIsProduction)

	pricingSvc := services.NewPricingService(store, pricing.Policy{}, m, log)
	orchestrator := services.NewPaymentOrchestrator(store, midtrans, cfg.Currency, m, log)
	reconciler := services.NewReconciler(store, cache, notifier, m, log,
		time.Duration(cfg.ReminderWindowDays)*24*time.Hour)

	orderHandler := handlers.NewOrderHandler(pricingSvc, store)
	paymentHandler := handlers.NewPaymentHandler(orchestrator)
	webhookHandler := handlers.NewWebhookHandler(midtrans, reconciler, store, log)
	catalogHandler := handlers.NewCatalogHandler(store, cache, log)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = appmiddleware.ErrorHandler(log)
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())

	// Public surface: catalog, webhook, health, metrics.
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/classes", catalogHandler.ListClasses)
	e.GET("/classes/:id", catalogHandler.GetClass)
	e.POST("/webhooks/midtrans", webhookHandler.HandleMidtrans)

	api := e.Group("/api")
	api.Use(appmiddleware.RequireAuth(cfg.JWTSecret))
	api.POST("/orders/calculate", orderHandler.Calculate)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders", orderHandler.List)
	api.GET("/orders/:uuid", orderHandler.Get)
	api.POST("/orders/:uuid/cancel", orderHandler.Cancel)
	api.POST("/orders/:uuid/pay", paymentHandler.PayOneTime)
	api.POST("/orders/:uuid/installment-plans", paymentHandler.CreatePlan)
	api.POST("/installment-plans/:id/cancel", paymentHandler.CancelPlan)
	api.POST("/discount-codes/validate", orderHandler.ValidateCode)
	api.GET("/enrollments", catalogHandler.ListEnrollments)

	admin := api.Group("/admin")
	admin.Use(appmiddleware.RequireAdmin())
	admin.POST("/payments/:id/refund", paymentHandler.Refund)

	go func() {
		log.WithField("port", cfg.Port).Info("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	if cache != nil {
		_ = cache.Close()
	}
}
