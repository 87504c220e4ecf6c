package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"holidaysync/internal/models"
	"holidaysync/internal/payment"
	"holidaysync/internal/planner"
	"holidaysync/internal/service"
	"holidaysync/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Stripe documents 64KB as the webhook payload ceiling.
const maxWebhookBody = 65536

// WebhookParser authenticates and decodes a provider webhook
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*models.PaymentEvent, error)
}

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Dependencies are the collaborators the HTTP layer needs. Stripe and Planner
// may be nil when their providers are not configured.
type Dependencies struct {
	Bookings       *service.BookingService
	Payments       *service.PaymentService
	Reconciler     *service.Reconciler
	Reviews        *service.ReviewService
	Catalog        *service.CatalogService
	Planner        *planner.Planner
	Stripe         WebhookParser
	Tokens         TokenParser
	BookingLimiter Limiter
	WebhookLimiter Limiter
	AllowAnonymous bool
	AllowedOrigins []string
	Checks         map[string]ReadinessCheck
}

// Handler contains HTTP handlers
type Handler struct {
	deps Dependencies
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger())
	if len(h.deps.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     h.deps.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "Idempotency-Key"},
			ExposeHeaders:    []string{"Content-Length", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/api/webhooks/stripe", rateLimit(h.deps.WebhookLimiter, "webhook"), h.stripeWebhook)

	v1 := router.Group("/api/v1")
	v1.Use(optionalAuth(h.deps.Tokens))
	{
		v1.POST("/bookings", rateLimit(h.deps.BookingLimiter, "booking"), h.createBooking)
		v1.GET("/bookings", h.listBookings)
		v1.GET("/bookings/:id", h.getBooking)
		v1.POST("/bookings/:id/cancel", h.cancelBooking)

		v1.POST("/payments/stripe/intent", h.startStripePayment)
		v1.POST("/payments/paypal/orders", h.startPayPalOrder)
		v1.POST("/payments/paypal/capture", h.capturePayPalOrder)

		v1.POST("/activities/:id/reviews", h.submitReview)

		v1.POST("/planner/itinerary", h.generateItinerary)
		v1.POST("/planner/chat", h.plannerChat)
	}

	admin := v1.Group("/admin")
	{
		admin.GET("/bookings", h.adminListBookings)
		admin.PATCH("/bookings/:id/status", h.adminUpdateStatus)
		admin.PATCH("/activities/:id/price", h.adminUpdatePrice)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.deps.Checks {
		if err := check(ctx); err != nil {
			util.GetLogger().Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = "unavailable"
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "not ready",
			"dependencies": failed,
			"time":         time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createBooking handles booking creation
func (h *Handler) createBooking(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	caller := callerFrom(c)
	if caller == nil && !h.deps.AllowAnonymous {
		abortWithError(c, http.StatusUnauthorized, string(service.CodeUnauthenticated), "authentication required")
		return
	}

	resp, err := h.deps.Bookings.CreateBooking(c.Request.Context(), caller, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) listBookings(c *gin.Context) {
	bookings, err := h.deps.Bookings.ListForUser(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (h *Handler) getBooking(c *gin.Context) {
	booking, err := h.deps.Bookings.Get(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) cancelBooking(c *gin.Context) {
	booking, err := h.deps.Bookings.Cancel(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

type paymentRequest struct {
	BookingID string `json:"bookingId"`
	OrderID   string `json:"orderId"`
}

func (h *Handler) startStripePayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	resp, err := h.deps.Payments.StartStripePayment(c.Request.Context(), callerFrom(c), req.BookingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) startPayPalOrder(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	resp, err := h.deps.Payments.StartPayPalOrder(c.Request.Context(), callerFrom(c), req.BookingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) capturePayPalOrder(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	resp, err := h.deps.Payments.CapturePayPalOrder(c.Request.Context(), callerFrom(c), req.BookingID, req.OrderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// stripeWebhook verifies the signature before anything is read from the
// event. A 2xx tells Stripe to stop redelivering.
func (h *Handler) stripeWebhook(c *gin.Context) {
	if h.deps.Stripe == nil {
		abortWithError(c, http.StatusServiceUnavailable, string(service.CodeUnavailable), "card payments are not configured")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			util.WebhookEventsTotal.WithLabelValues("stripe", "too_large").Inc()
			abortWithError(c, http.StatusRequestEntityTooLarge, string(service.CodeValidation), "request body too large")
			return
		}
		badRequest(c, "failed to read request body")
		return
	}

	event, err := h.deps.Stripe.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			util.WebhookEventsTotal.WithLabelValues("stripe", "invalid_signature").Inc()
			util.GetLogger().Warn("Rejected Stripe webhook", zap.Error(err))
			badRequest(c, "invalid signature")
			return
		}
		util.GetLogger().Warn("Malformed Stripe webhook", zap.Error(err))
		badRequest(c, "malformed event")
		return
	}
	if event == nil {
		c.JSON(http.StatusOK, gin.H{"received": true, "outcome": service.OutcomeIgnored})
		return
	}

	outcome, err := h.deps.Reconciler.HandleEvent(c.Request.Context(), *event)
	if err != nil {
		if service.ErrorCode(err) == service.CodeValidation {
			respondError(c, err)
			return
		}
		util.GetLogger().Error("Failed to reconcile Stripe event",
			zap.String("event_id", event.EventID), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, string(service.CodeInternal), "internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
}

func (h *Handler) submitReview(c *gin.Context) {
	var req service.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	review, err := h.deps.Reviews.Submit(c.Request.Context(), callerFrom(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (h *Handler) plannerAvailable(c *gin.Context) bool {
	if h.deps.Planner == nil {
		abortWithError(c, http.StatusServiceUnavailable, string(service.CodeUnavailable), "the trip planner is not configured")
		return false
	}
	return true
}

func (h *Handler) generateItinerary(c *gin.Context) {
	if !h.plannerAvailable(c) {
		return
	}
	var req planner.ItineraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	itinerary, err := h.deps.Planner.GenerateItinerary(c.Request.Context(), &req)
	if err != nil {
		respondPlannerError(c, err)
		return
	}
	c.JSON(http.StatusOK, itinerary)
}

type chatRequest struct {
	Message string            `json:"message"`
	History []planner.Message `json:"history"`
}

func (h *Handler) plannerChat(c *gin.Context) {
	if !h.plannerAvailable(c) {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	answer, err := h.deps.Planner.Chat(c.Request.Context(), req.Message, req.History)
	if err != nil {
		respondPlannerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": answer})
}

func (h *Handler) adminListBookings(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		badRequest(c, "limit must be a number")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		badRequest(c, "offset must be a number")
		return
	}

	bookings, err := h.deps.Bookings.ListAll(c.Request.Context(), callerFrom(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

type statusRequest struct {
	Status   models.BookingStatus `json:"status"`
	Override bool                 `json:"override"`
}

func (h *Handler) adminUpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	booking, err := h.deps.Bookings.UpdateStatus(c.Request.Context(), callerFrom(c), c.Param("id"), req.Status, req.Override)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

type priceRequest struct {
	PriceCents int64 `json:"priceCents"`
}

func (h *Handler) adminUpdatePrice(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	if err := h.deps.Catalog.UpdatePrice(c.Request.Context(), callerFrom(c), c.Param("id"), req.PriceCents); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activityId": c.Param("id"), "priceCents": req.PriceCents})
}
