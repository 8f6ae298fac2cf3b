package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/HanabLabs/FocusDock/internal/config"
	"github.com/HanabLabs/FocusDock/internal/metrics"
	"github.com/HanabLabs/FocusDock/internal/model"
	"github.com/HanabLabs/FocusDock/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	paymentintentpkg "github.com/stripe/stripe-go/v82/paymentintent"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

const webhookProviderStripe = "stripe"

// PaymentIntentResult is returned to the client to drive payment
// confirmation in the browser.
type PaymentIntentResult struct {
	ClientSecret   string
	SubscriptionID string
}

// StripeService owns the Stripe integration: customer management, payment
// intent creation, and the webhook gateway that feeds the entitlement state
// machine.
type StripeService struct {
	cfg         *config.Config
	userRepo    repository.UserRepository
	webhookRepo repository.WebhookEventRepository
	entitlement EntitlementService
	recorder    metrics.Recorder
	logger      zerolog.Logger
}

// NewStripeService initializes the Stripe API key and returns the service
// with a scoped logger.
func NewStripeService(
	cfg *config.Config,
	userRepo repository.UserRepository,
	webhookRepo repository.WebhookEventRepository,
	entitlement EntitlementService,
	recorder metrics.Recorder,
	logger zerolog.Logger,
) *StripeService {
	stripe.Key = cfg.StripeSecretKey
	return &StripeService{
		cfg:         cfg,
		userRepo:    userRepo,
		webhookRepo: webhookRepo,
		entitlement: entitlement,
		recorder:    recorder,
		logger:      logger.With().Str("service", "StripeService").Logger(),
	}
}

// GetOrCreateCustomer returns the user's Stripe customer ID, creating the
// customer on first use.
func (s *StripeService) GetOrCreateCustomer(ctx context.Context, user *model.UserProfile) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	return s.CreateCustomer(ctx, user)
}

// CreateCustomer creates a Stripe customer tagged with the Supabase user ID
// and stores the customer ID on the profile.
func (s *StripeService) CreateCustomer(ctx context.Context, user *model.UserProfile) (string, error) {
	params := &stripe.CustomerParams{
		Email:    stripe.String(user.Email),
		Metadata: map[string]string{"supabase_user_id": user.UserID},
	}
	cust, err := customerpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to create Stripe customer")
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.userRepo.UpdateStripeCustomerID(ctx, user.UserID, cust.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to store stripe customer id")
		return "", fmt.Errorf("store stripe customer id: %w", err)
	}
	return cust.ID, nil
}

// CreatePaymentIntent starts a purchase after checking the admission rules.
// Monthly plans become an incomplete Stripe subscription whose first invoice
// carries the payment intent to confirm; lifetime and donate are one-time
// payment intents. amount is in the smallest currency unit and only applies
// to one-time payments.
func (s *StripeService) CreatePaymentIntent(ctx context.Context, userID, planType string, amount int64) (*PaymentIntentResult, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if err := s.entitlement.AdmitPurchase(user, planType); err != nil {
		return nil, err
	}

	customerID, err := s.GetOrCreateCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	if planType == "lifetime" {
		// A lifetime purchase on top of a running monthly subscription would
		// double-bill; the subscription has to be cancelled first.
		active, err := s.hasActiveSubscription(customerID)
		if err != nil {
			return nil, err
		}
		if active {
			return nil, ErrActiveSubscription
		}
	}

	if planType == "monthly" {
		return s.createSubscription(userID, customerID)
	}
	return s.createOneTimeIntent(userID, customerID, planType, amount)
}

func (s *StripeService) createSubscription(userID, customerID string) (*PaymentIntentResult, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(s.cfg.StripeMonthlyPriceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
		Metadata: map[string]string{
			"supabase_user_id": userID,
			"plan_type":        "monthly",
		},
	}
	params.AddExpand("latest_invoice.confirmation_secret")

	sub, err := subscriptionpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create Stripe subscription")
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	if sub.LatestInvoice == nil || sub.LatestInvoice.ConfirmationSecret == nil {
		return nil, errors.New("subscription has no payable invoice")
	}
	return &PaymentIntentResult{
		ClientSecret:   sub.LatestInvoice.ConfirmationSecret.ClientSecret,
		SubscriptionID: sub.ID,
	}, nil
}

func (s *StripeService) createOneTimeIntent(userID, customerID, planType string, amount int64) (*PaymentIntentResult, error) {
	params := &stripe.PaymentIntentParams{
		Customer: stripe.String(customerID),
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"supabase_user_id": userID,
			"plan_type":        planType,
		},
	}
	pi, err := paymentintentpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("plan_type", planType).Msg("Failed to create payment intent")
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &PaymentIntentResult{ClientSecret: pi.ClientSecret}, nil
}

func (s *StripeService) hasActiveSubscription(customerID string) (bool, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Limit = stripe.Int64(1)
	it := subscriptionpkg.List(params)
	for it.Next() {
		return true, nil
	}
	if err := it.Err(); err != nil {
		return false, fmt.Errorf("list subscriptions: %w", err)
	}
	return false, nil
}

// HandleWebhook is the Stripe webhook gateway. It verifies the signature,
// deduplicates by event ID, and dispatches billing events to the entitlement
// state machine. Unknown event types are acknowledged so Stripe stops
// redelivering them.
func (s *StripeService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	// The endpoint's API version is pinned in the Stripe dashboard, not in
	// this binary; a version drift must not silently drop billing events.
	event, err := webhook.ConstructEventWithOptions(payload, sig, s.cfg.StripeWebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		s.recorder.RecordWebhookEvent("unknown", "rejected")
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	eventType := string(event.Type)
	s.logger.Info().Str("event_type", eventType).Str("event_id", event.ID).Msg("Stripe webhook received")

	first, err := s.webhookRepo.Record(ctx, webhookProviderStripe, event.ID, eventType)
	if err != nil {
		s.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to record webhook event")
		http.Error(w, "failed to record event", http.StatusInternalServerError)
		return
	}
	if !first {
		s.logger.Info().Str("event_id", event.ID).Msg("Duplicate webhook delivery; skipping")
		s.recorder.RecordWebhookEvent(eventType, "duplicate")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.dispatchEvent(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("event_id", event.ID).Msg("Failed to process webhook event")
		s.recorder.RecordWebhookEvent(eventType, "failed")
		// Clear the dedup record so the redelivery is not treated as a
		// duplicate no-op.
		if fErr := s.webhookRepo.Forget(ctx, webhookProviderStripe, event.ID); fErr != nil {
			s.logger.Error().Err(fErr).Str("event_id", event.ID).Msg("Failed to clear webhook dedup record")
		}
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}

	s.recorder.RecordWebhookEvent(eventType, "processed")
	w.WriteHeader(http.StatusOK)
}

func (s *StripeService) dispatchEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "payment_intent.succeeded":
		return s.handlePaymentIntentSucceeded(ctx, event)
	case "invoice.payment_succeeded":
		return s.handleInvoicePaymentSucceeded(ctx, event)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	default:
		s.logger.Debug().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
		return nil
	}
}

// handlePaymentIntentSucceeded grants lifetime on one-time lifetime
// purchases. Donation intents change nothing, and monthly payments are
// granted through the invoice event instead.
func (s *StripeService) handlePaymentIntentSucceeded(ctx context.Context, event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("invalid payment_intent payload: %w", err)
	}
	if pi.Metadata["plan_type"] != "lifetime" {
		return nil
	}
	userID, err := s.userIDFromEvent(ctx, pi.Metadata, customerIDOf(pi.Customer))
	if err != nil {
		return err
	}
	return s.entitlement.ApplyLifetimePurchase(ctx, userID)
}

// handleInvoicePaymentSucceeded grants (or renews) monthly on subscription
// invoices. One-time invoices carry no subscription and are skipped.
func (s *StripeService) handleInvoicePaymentSucceeded(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("invalid invoice payload: %w", err)
	}

	var subID string
	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			if line.Subscription != nil && line.Subscription.ID != "" {
				subID = line.Subscription.ID
				break
			}
		}
	}
	if subID == "" {
		s.logger.Info().Str("invoice_id", invoice.ID).Msg("Invoice has no subscription; skipping")
		return nil
	}

	sub, err := subscriptionpkg.Get(subID, nil)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", subID, err)
	}
	userID, err := s.userIDFromEvent(ctx, sub.Metadata, customerIDOf(sub.Customer))
	if err != nil {
		return err
	}
	return s.entitlement.ApplyMonthlyPayment(ctx, userID)
}

func (s *StripeService) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("invalid subscription payload: %w", err)
	}
	if sub.Status != stripe.SubscriptionStatusActive {
		// Lapsed and incomplete states resolve through their own deleted or
		// invoice events.
		return nil
	}
	userID, err := s.userIDFromEvent(ctx, sub.Metadata, customerIDOf(sub.Customer))
	if err != nil {
		return err
	}
	return s.entitlement.ApplySubscriptionActive(ctx, userID)
}

func (s *StripeService) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("invalid subscription payload: %w", err)
	}
	userID, err := s.userIDFromEvent(ctx, sub.Metadata, customerIDOf(sub.Customer))
	if err != nil {
		return err
	}
	return s.entitlement.ApplyCancellation(ctx, userID)
}

// userIDFromEvent resolves the profile ID from event metadata, falling back
// to a customer-ID lookup for events created outside this service.
func (s *StripeService) userIDFromEvent(ctx context.Context, metadata map[string]string, customerID string) (string, error) {
	if userID := metadata["supabase_user_id"]; userID != "" {
		return userID, nil
	}
	if customerID == "" {
		return "", errors.New("cannot determine user: missing metadata and customer id")
	}
	s.logger.Warn().Str("stripe_customer_id", customerID).Msg("Missing supabase_user_id metadata; looking up user by customer ID")
	u, err := s.userRepo.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("lookup user by stripe customer: %w", err)
	}
	if u == nil {
		return "", fmt.Errorf("no user found for customer %s", customerID)
	}
	return u.UserID, nil
}

func customerIDOf(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
