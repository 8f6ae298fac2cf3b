package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/HanabLabs/FocusDock/internal/api/v1/dto"
	"github.com/HanabLabs/FocusDock/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// AuthHandler handles the verification-code signup endpoints. These are the
// only unauthenticated endpoints besides the Stripe webhook.
type AuthHandler struct {
	signupSvc service.SignupService
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(signupSvc service.SignupService, validate *validator.Validate, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{signupSvc: signupSvc, validate: validate, logger: logger}
}

// RegisterRoutes registers the signup endpoints.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/signup", h.Signup)
	mux.HandleFunc("POST /auth/verify", h.Verify)
}

// Signup issues a verification code for a new email address.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req dto.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.signupSvc.Issue(r.Context(), req.Email, req.Password); err != nil {
		if errors.Is(err, service.ErrEmailAlreadyRegistered) {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		h.logger.Error().Err(err).Msg("failed to issue verification code")
		http.Error(w, "failed to start signup", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Verify redeems a verification code and creates the account.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	userID, err := h.signupSvc.Redeem(r.Context(), req.Email, req.Code)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrExpiredCode) {
			http.Error(w, "invalid or expired verification code", http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Msg("failed to redeem verification code")
		http.Error(w, "failed to complete signup", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(dto.VerifyResponse{UserID: userID}); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
	}
}
