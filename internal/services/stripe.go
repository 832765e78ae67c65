package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/subscription"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/datatypes"

	"github.com/gary-ai/backend/internal/models"
	"github.com/gary-ai/backend/pkg/config"
	"github.com/gary-ai/backend/pkg/database"
	"github.com/gary-ai/backend/pkg/metrics"
	"github.com/gary-ai/backend/pkg/utils"
)

// ErrWebhookSignature marks a webhook payload that failed signature
// verification. Handlers reject these with 400 and Stripe does not retry.
var ErrWebhookSignature = errors.New("webhook signature verification failed")

const webhookProviderStripe = "stripe"

// CheckoutSessionRequest is the create-checkout-session body. UIMode
// "embedded" returns a client secret instead of a redirect URL.
type CheckoutSessionRequest struct {
	PriceID    string `json:"priceId"`
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
	UIMode     string `json:"uiMode"`
}

// CheckoutSessionResponse carries either the hosted-checkout id and URL or
// the embedded-mode client secret, never both.
type CheckoutSessionResponse struct {
	ID           string `json:"id,omitempty"`
	URL          string `json:"url,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

// SubscriptionView is the subscription state served to the front end.
type SubscriptionView struct {
	Active            bool       `json:"active"`
	Status            string     `json:"status"`
	Tier              string     `json:"tier"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
}

// StripeService forwards checkout and subscription operations to Stripe and
// keeps the users table's shadow subscription fields in sync via webhooks.
type StripeService struct {
	db     *database.DB
	config *config.Config
	logger *logrus.Logger
}

func NewStripeService(db *database.DB, cfg *config.Config, log *logrus.Logger) *StripeService {
	stripe.Key = cfg.StripeSecretKey
	return &StripeService{
		db:     db,
		config: cfg,
		logger: log,
	}
}

// CreateCheckoutSession opens a subscription checkout for a user. The user
// id rides along as client_reference_id so the completion webhook can find
// the account even when the checkout email differs.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSessionResponse, error) {
	if req.UserID == "" || req.Email == "" {
		return nil, fmt.Errorf("%w: userId and email are required", utils.ErrInvalidInput)
	}

	priceID := req.PriceID
	if priceID == "" {
		priceID = s.config.StripePriceID
	}
	if priceID == "" {
		return nil, fmt.Errorf("%w: no price configured", utils.ErrInvalidInput)
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = s.config.CheckoutSuccessURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = s.config.CheckoutCancelURL
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(req.UserID),
		CustomerEmail:     stripe.String(req.Email),
	}
	if strings.EqualFold(req.UIMode, "embedded") {
		params.UIMode = stripe.String("embedded")
		params.ReturnURL = stripe.String(successURL)
	} else {
		params.SuccessURL = stripe.String(successURL)
		params.CancelURL = stripe.String(cancelURL)
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrUpstreamFailure, err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"user_id":    req.UserID,
	}).Info("Created checkout session")

	if strings.EqualFold(req.UIMode, "embedded") {
		return &CheckoutSessionResponse{ClientSecret: sess.ClientSecret}, nil
	}
	return &CheckoutSessionResponse{ID: sess.ID, URL: sess.URL}, nil
}

// HandleWebhook verifies, de-duplicates and dispatches one webhook
// delivery. Replayed event ids are acknowledged without touching user
// state. The returned error keeps its class: ErrWebhookSignature maps to
// 400, utils.ErrNotFound to 404, anything else to 500.
func (s *StripeService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.config.StripeWebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "signature_invalid").Inc()
		return fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}

	eventType := string(event.Type)
	log := s.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": eventType,
	})

	processed, err := models.HasProcessedWebhookEvent(s.db, webhookProviderStripe, event.ID)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Webhook dedup check failed, processing anyway")
	}
	if processed {
		metrics.WebhookEvents.WithLabelValues(eventType, "duplicate").Inc()
		log.Info("Duplicate webhook delivery, acknowledging without reprocessing")
		return nil
	}

	handled, dispatchErr := s.dispatchEvent(event)

	record := &models.WebhookEvent{
		Provider:       webhookProviderStripe,
		EventID:        event.ID,
		EventType:      eventType,
		SignatureValid: true,
		Payload:        datatypes.JSON(payload),
	}
	if dispatchErr == nil {
		now := time.Now().UTC()
		record.ProcessedAt = &now
	} else {
		record.ProcessingError = dispatchErr.Error()
	}
	if err := models.RecordWebhookEvent(s.db, record); err != nil {
		log.WithField("error", err.Error()).Warn("Failed to record webhook event")
	}

	switch {
	case dispatchErr != nil:
		metrics.WebhookEvents.WithLabelValues(eventType, "failed").Inc()
		return dispatchErr
	case handled:
		metrics.WebhookEvents.WithLabelValues(eventType, "processed").Inc()
	default:
		metrics.WebhookEvents.WithLabelValues(eventType, "ignored").Inc()
		log.Debug("Ignoring unhandled webhook event type")
	}
	return nil
}

func (s *StripeService) dispatchEvent(event stripe.Event) (bool, error) {
	switch string(event.Type) {
	case "checkout.session.completed":
		return true, s.handleCheckoutCompleted(event)
	case "customer.subscription.updated":
		return true, s.handleSubscriptionUpdated(event)
	case "customer.subscription.deleted":
		return true, s.handleSubscriptionDeleted(event)
	default:
		return false, nil
	}
}

// handleCheckoutCompleted flips the purchasing user to the pro plan. The
// user resolves by client_reference_id first, then by checkout email.
func (s *StripeService) handleCheckoutCompleted(event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	user, err := s.findCheckoutUser(&sess)
	if err != nil {
		return err
	}

	user.Plan = models.PlanPro
	user.SubscriptionStatus = models.SubscriptionStatusActive
	user.CancelAtPeriodEnd = false
	if sess.Customer != nil && sess.Customer.ID != "" {
		user.StripeCustomerID = &sess.Customer.ID
	}
	if sess.Subscription != nil && sess.Subscription.ID != "" {
		user.StripeSubscriptionID = &sess.Subscription.ID
	}

	if err := s.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user subscription: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("Subscription activated from checkout")
	return nil
}

// findCheckoutUser resolves the account a checkout belongs to.
func (s *StripeService) findCheckoutUser(sess *stripe.CheckoutSession) (*models.User, error) {
	if sess.ClientReferenceID != "" {
		if userID, err := uuid.Parse(sess.ClientReferenceID); err == nil {
			if user, err := models.GetUserByID(s.db, userID); err == nil {
				return user, nil
			}
		}
	}

	email := sess.CustomerEmail
	if email == "" && sess.CustomerDetails != nil {
		email = sess.CustomerDetails.Email
	}
	if email != "" {
		if user, err := models.GetUserByEmail(s.db, email); err == nil {
			return user, nil
		}
	}

	return nil, fmt.Errorf("%w: no user for checkout session %s", utils.ErrNotFound, sess.ID)
}

func (s *StripeService) handleSubscriptionUpdated(event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return fmt.Errorf("%w: subscription event carries no customer", utils.ErrInvalidInput)
	}

	user, err := models.GetUserByStripeCustomerID(s.db, sub.Customer.ID)
	if err != nil {
		return fmt.Errorf("%w: no user for customer %s", utils.ErrNotFound, sub.Customer.ID)
	}

	user.SubscriptionStatus = subscriptionStatusFromStripe(sub.Status)
	user.StripeSubscriptionID = &sub.ID
	user.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if sub.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		user.CurrentPeriodEnd = &periodEnd
	}
	if user.SubscriptionStatus == models.SubscriptionStatusCanceled {
		user.Plan = models.PlanFree
	}

	if err := s.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user subscription: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"status":  user.SubscriptionStatus,
	}).Info("Subscription status updated")
	return nil
}

// handleSubscriptionDeleted downgrades the matching user. An unknown
// customer id is a hard not-found: nothing is mutated.
func (s *StripeService) handleSubscriptionDeleted(event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return fmt.Errorf("%w: subscription event carries no customer", utils.ErrInvalidInput)
	}

	user, err := models.GetUserByStripeCustomerID(s.db, sub.Customer.ID)
	if err != nil {
		return fmt.Errorf("%w: no user for customer %s", utils.ErrNotFound, sub.Customer.ID)
	}

	user.Plan = models.PlanFree
	user.SubscriptionStatus = models.SubscriptionStatusCanceled
	user.StripeSubscriptionID = nil
	user.CancelAtPeriodEnd = false

	if err := s.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to downgrade user: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("Subscription deleted, user downgraded to free")
	return nil
}

// subscriptionStatusFromStripe maps Stripe's status vocabulary onto the
// three states the application distinguishes.
func subscriptionStatusFromStripe(status stripe.SubscriptionStatus) string {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return models.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue:
		return models.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncompleteExpired:
		return models.SubscriptionStatusCanceled
	default:
		return models.SubscriptionStatusNone
	}
}

// GetSubscription serves a user's subscription state. When the user has a
// live Stripe subscription the provider is consulted and the shadow copy
// refreshed; on provider failure the shadow copy answers.
func (s *StripeService) GetSubscription(ctx context.Context, userID uuid.UUID) (*SubscriptionView, error) {
	user, err := models.GetUserByID(s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: user %s", utils.ErrNotFound, userID)
	}

	if user.StripeSubscriptionID != nil && *user.StripeSubscriptionID != "" {
		params := &stripe.SubscriptionParams{}
		params.Context = ctx
		sub, err := subscription.Get(*user.StripeSubscriptionID, params)
		if err == nil {
			user.SubscriptionStatus = subscriptionStatusFromStripe(sub.Status)
			user.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
			if sub.CurrentPeriodEnd > 0 {
				periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
				user.CurrentPeriodEnd = &periodEnd
			}
			if user.SubscriptionStatus == models.SubscriptionStatusCanceled {
				user.Plan = models.PlanFree
			}
			if saveErr := s.db.Save(user).Error; saveErr != nil {
				s.logger.WithField("error", saveErr.Error()).Warn("Failed to refresh shadow subscription state")
			}
		} else {
			s.logger.WithFields(logrus.Fields{
				"user_id": user.ID,
				"error":   err.Error(),
			}).Warn("Subscription lookup failed, serving shadow state")
		}
	}

	return &SubscriptionView{
		Active:            user.IsSubscriptionActive(),
		Status:            user.SubscriptionStatus,
		Tier:              user.Plan,
		CurrentPeriodEnd:  user.CurrentPeriodEnd,
		CancelAtPeriodEnd: user.CancelAtPeriodEnd,
	}, nil
}

// CancelSubscription flags the user's subscription to end at period close.
// Access continues until then, matching Stripe's default proration story.
func (s *StripeService) CancelSubscription(ctx context.Context, userID uuid.UUID) (*SubscriptionView, error) {
	user, err := models.GetUserByID(s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: user %s", utils.ErrNotFound, userID)
	}
	if user.StripeSubscriptionID == nil || *user.StripeSubscriptionID == "" {
		return nil, fmt.Errorf("%w: user has no subscription to cancel", utils.ErrInvalidInput)
	}

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	sub, err := subscription.Update(*user.StripeSubscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrUpstreamFailure, err)
	}

	user.CancelAtPeriodEnd = true
	if sub.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		user.CurrentPeriodEnd = &periodEnd
	}
	if err := s.db.Save(user).Error; err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
	}).Info("Subscription set to cancel at period end")

	return &SubscriptionView{
		Active:            user.IsSubscriptionActive(),
		Status:            user.SubscriptionStatus,
		Tier:              user.Plan,
		CurrentPeriodEnd:  user.CurrentPeriodEnd,
		CancelAtPeriodEnd: user.CancelAtPeriodEnd,
	}, nil
}
