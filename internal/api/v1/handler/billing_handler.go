package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/HanabLabs/FocusDock/internal/api/v1/dto"
	"github.com/HanabLabs/FocusDock/internal/middleware"
	"github.com/HanabLabs/FocusDock/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// BillingHandler handles purchases and the Stripe webhook.
type BillingHandler struct {
	stripeSvc *service.StripeService
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(stripeSvc *service.StripeService, validate *validator.Validate, logger zerolog.Logger) *BillingHandler {
	return &BillingHandler{stripeSvc: stripeSvc, validate: validate, logger: logger}
}

// RegisterRoutes registers the billing endpoints. The webhook is
// authenticated by its Stripe signature, not a bearer token.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware func(http.Handler) http.Handler) {
	mux.Handle("POST /billing/payment-intent", authMiddleware(http.HandlerFunc(h.CreatePaymentIntent)))
	mux.HandleFunc("POST /webhooks/stripe", h.stripeSvc.HandleWebhook)
}

// CreatePaymentIntent starts a purchase for the authenticated user.
func (h *BillingHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req dto.PaymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.stripeSvc.CreatePaymentIntent(r.Context(), userID, req.PlanType, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateEntitlement):
			http.Error(w, "plan already active", http.StatusConflict)
		case errors.Is(err, service.ErrActiveSubscription):
			http.Error(w, "cancel the active subscription first", http.StatusConflict)
		case errors.Is(err, service.ErrUserNotFound):
			http.Error(w, "user not found", http.StatusNotFound)
		default:
			h.logger.Error().Err(err).Str("plan_type", req.PlanType).Msg("failed to create payment intent")
			http.Error(w, "failed to create payment intent", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(dto.PaymentIntentResponse{
		ClientSecret:   result.ClientSecret,
		SubscriptionID: result.SubscriptionID,
	}); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
	}
}
