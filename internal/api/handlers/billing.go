package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gary-ai/backend/internal/services"
	"github.com/gary-ai/backend/pkg/utils"
)

// webhookBodyLimit bounds webhook payload reads. Stripe events are a few
// KB; anything near the limit is not a legitimate delivery.
const webhookBodyLimit = 1 << 20

type BillingHandler struct {
	stripe *services.StripeService
	logger *logrus.Logger
}

func NewBillingHandler(stripe *services.StripeService, logger *logrus.Logger) *BillingHandler {
	return &BillingHandler{
		stripe: stripe,
		logger: logger,
	}
}

// CreateCheckoutSession opens a Stripe checkout for the posted user.
func (h *BillingHandler) CreateCheckoutSession(c *gin.Context) {
	var req services.CheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	resp, err := h.stripe.CreateCheckoutSession(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, utils.ErrInvalidInput) {
			utils.SendValidationError(c, "Invalid checkout request", err.Error())
			return
		}
		h.logger.WithField("error", err.Error()).Error("Checkout session creation failed")
		utils.SendUpstreamError(c, "Failed to create checkout session", err.Error())
		return
	}

	// The front end consumes this body directly, not the standard envelope.
	c.JSON(http.StatusOK, resp)
}

// HandleWebhook receives Stripe event deliveries. The raw body is required
// for signature verification, so this handler must run without any
// body-parsing middleware.
func (h *BillingHandler) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		utils.SendBadRequest(c, "Failed to read webhook payload")
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	err = h.stripe.HandleWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrWebhookSignature):
			utils.SendError(c, http.StatusBadRequest, utils.NewAppError(utils.ErrCodeWebhookSignature, "Webhook signature verification failed"))
		case errors.Is(err, utils.ErrNotFound):
			utils.SendNotFound(c, err.Error())
		case errors.Is(err, utils.ErrInvalidInput):
			utils.SendBadRequest(c, err.Error())
		default:
			h.logger.WithField("error", err.Error()).Error("Webhook processing failed")
			utils.SendInternalError(c, "Webhook processing failed")
		}
		return
	}

	utils.SendSuccess(c, gin.H{"received": true})
}

// GetSubscription returns the subscription state for a user.
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		utils.SendValidationError(c, "Invalid user ID", "Expected a UUID")
		return
	}

	view, err := h.stripe.GetSubscription(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			utils.SendNotFound(c, "User not found")
			return
		}
		h.logger.WithField("error", err.Error()).Error("Subscription lookup failed")
		utils.SendInternalError(c, "Subscription lookup failed")
		return
	}

	utils.SendSuccess(c, view)
}

// CancelSubscription sets the user's subscription to end at period close.
func (h *BillingHandler) CancelSubscription(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		utils.SendValidationError(c, "Invalid user ID", "Expected a UUID")
		return
	}

	view, err := h.stripe.CancelSubscription(c.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrNotFound):
			utils.SendNotFound(c, "User not found")
		case errors.Is(err, utils.ErrInvalidInput):
			utils.SendValidationError(c, "Nothing to cancel", err.Error())
		case errors.Is(err, utils.ErrUpstreamFailure):
			utils.SendUpstreamError(c, "Payment provider rejected the cancellation", err.Error())
		default:
			h.logger.WithField("error", err.Error()).Error("Cancellation failed")
			utils.SendInternalError(c, "Cancellation failed")
		}
		return
	}

	utils.SendSuccess(c, view)
}
