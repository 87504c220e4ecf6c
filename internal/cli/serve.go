package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"holidaysync/config"
	"holidaysync/internal/api"
	"holidaysync/internal/auth"
	"holidaysync/internal/broker"
	"holidaysync/internal/notify"
	"holidaysync/internal/payment"
	"holidaysync/internal/planner"
	"holidaysync/internal/redisclient"
	"holidaysync/internal/service"
	"holidaysync/internal/store"
	"holidaysync/internal/util"
	"holidaysync/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	c := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(config.Load(), migrate)
		},
	}
	c.Flags().BoolVar(&migrate, "migrate", false, "apply migrations before serving")
	return c
}

func serve(cfg *config.Config, migrate bool) error {
	if err := payment.CheckCurrency(cfg.Business.Currency); err != nil {
		return fmt.Errorf("PAYMENT_CURRENCY: %w", err)
	}
	if err := util.InitLogger(cfg.Server.Env); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting holidaysync", zap.String("version", Version), zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(util.TracingOptions{
		ServiceName: "holidaysync",
		Version:     Version,
		Environment: cfg.Server.Env,
		Endpoint:    cfg.Observ.JaegerEndpoint,
		SampleRatio: cfg.Observ.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("Database connected")

	if migrate {
		if err := db.Migrate(context.Background(), cfg.Business.GuestUserID); err != nil {
			return err
		}
	}

	// Redis only backs rate limiting and the sweep lock, so the service runs
	// without it.
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, using in-process rate limits", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		logger.Info("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicBooking))

	eventPublisher := broker.NewEventPublisher(producer)

	bookingService := service.NewBookingService(db, service.NewSlotLedger(), eventPublisher, service.BookingPolicy{
		MaxParticipants: cfg.Business.MaxParticipants,
		GuestUserID:     cfg.Business.GuestUserID,
	})
	reconciler := service.NewReconciler(db, eventPublisher)

	var (
		stripeGateway *payment.StripeGateway
		stripeForPay  service.StripeGateway
		webhookParser api.WebhookParser
		paypalForPay  service.PayPalGateway
	)
	if cfg.Stripe.SecretKey != "" {
		stripeGateway = payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
		stripeForPay = stripeGateway
		if cfg.Stripe.WebhookSecret != "" {
			webhookParser = stripeGateway
		} else {
			logger.Warn("STRIPE_WEBHOOK_SECRET not set, Stripe webhooks are disabled")
		}
	}
	if cfg.PayPal.ClientID != "" && cfg.PayPal.ClientSecret != "" {
		paypalClient, err := payment.NewPayPalClient(cfg.PayPal.BaseURL, cfg.PayPal.ClientID, cfg.PayPal.ClientSecret)
		if err != nil {
			return err
		}
		paypalForPay = paypalClient
	}
	paymentService := service.NewPaymentService(db, stripeForPay, paypalForPay, reconciler,
		cfg.Business.Currency, cfg.Business.GuestUserID)

	var tripPlanner *planner.Planner
	if cfg.AI.GeminiAPIKey != "" {
		model, err := planner.NewGeminiModel(context.Background(), cfg.AI.GeminiAPIKey, cfg.AI.Model)
		if err != nil {
			logger.Warn("Trip planner disabled", zap.Error(err))
		} else {
			defer model.Close()
			tripPlanner = planner.New(model)
		}
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.Mail.ResendAPIKey != "" {
		notifier = notify.NewResendNotifier(cfg.Mail.ResendAPIKey, cfg.Mail.From)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	notificationConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking, cfg.Kafka.NotificationGroup)
	notificationWorker := worker.NewNotificationWorker(notificationConsumer, notifier)
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Notification worker error", zap.Error(err))
		}
	}()

	if cfg.Business.PendingTTLSeconds > 0 {
		var locker worker.Locker
		if redisClient != nil {
			locker = redisClient
		}
		expiryWorker := worker.NewExpiryWorker(bookingService, locker,
			time.Duration(cfg.Business.PendingTTLSeconds)*time.Second,
			time.Duration(cfg.Business.ExpirySweepSeconds)*time.Second)
		go func() {
			if err := expiryWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Expiry worker error", zap.Error(err))
			}
		}()
	}

	var bookingLimiter, webhookLimiter api.Limiter
	if redisClient != nil {
		bookingLimiter = api.NewRedisLimiter(redisClient, cfg.RateLimit.BookingPerMinute)
		webhookLimiter = api.NewRedisLimiter(redisClient, cfg.RateLimit.WebhookPerMinute)
	} else {
		bookingLimiter = api.NewLocalLimiter(cfg.RateLimit.BookingPerMinute)
		webhookLimiter = api.NewLocalLimiter(cfg.RateLimit.WebhookPerMinute)
	}

	checks := map[string]api.ReadinessCheck{"database": db.Ping}
	if redisClient != nil {
		checks["redis"] = redisClient.Ping
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Dependencies{
		Bookings:       bookingService,
		Payments:       paymentService,
		Reconciler:     reconciler,
		Reviews:        service.NewReviewService(db),
		Catalog:        service.NewCatalogService(db),
		Planner:        tripPlanner,
		Stripe:         webhookParser,
		Tokens:         auth.NewTokens(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour),
		BookingLimiter: bookingLimiter,
		WebhookLimiter: webhookLimiter,
		AllowAnonymous: cfg.Auth.AllowAnonymous,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Checks:         checks,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.Observ.PrometheusPort != "" && cfg.Observ.PrometheusPort != cfg.Server.Port {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: fmt.Sprintf(":%s", cfg.Observ.PrometheusPort), Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	workerCancel()
	if err := notificationWorker.Stop(); err != nil {
		logger.Warn("Failed to stop notification worker", zap.Error(err))
	}

	logger.Info("Server exited")
	return nil
}
