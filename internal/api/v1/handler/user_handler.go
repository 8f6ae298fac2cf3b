package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/HanabLabs/FocusDock/internal/api/v1/dto"
	"github.com/HanabLabs/FocusDock/internal/middleware"
	"github.com/HanabLabs/FocusDock/internal/repository"
	"github.com/HanabLabs/FocusDock/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// UserHandler handles profile reads and dashboard activity endpoints.
type UserHandler struct {
	userRepo    repository.UserRepository
	activitySvc *service.ActivityService
	validate    *validator.Validate
	logger      zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userRepo repository.UserRepository, activitySvc *service.ActivityService, validate *validator.Validate, logger zerolog.Logger) *UserHandler {
	return &UserHandler{userRepo: userRepo, activitySvc: activitySvc, validate: validate, logger: logger}
}

// RegisterRoutes registers the user-facing read and activity endpoints.
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware func(http.Handler) http.Handler) {
	mux.Handle("GET /users/me", authMiddleware(http.HandlerFunc(h.Me)))
	mux.Handle("GET /github/recent-commits", authMiddleware(http.HandlerFunc(h.RecentCommits)))
	mux.Handle("POST /work-sessions", authMiddleware(http.HandlerFunc(h.SaveWorkSession)))
}

// Me returns the authenticated user's profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	user, err := h.userRepo.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to fetch profile")
		http.Error(w, "failed to fetch profile", http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, dto.NewUserProfileResponse(user))
}

// RecentCommits returns the dashboard's recent-commit feed.
func (h *UserHandler) RecentCommits(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	commits, err := h.activitySvc.RecentCommits(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to fetch recent commits")
		http.Error(w, "failed to fetch recent commits", http.StatusInternalServerError)
		return
	}
	out := make([]dto.RecentCommitResponse, 0, len(commits))
	for _, c := range commits {
		out = append(out, dto.RecentCommitResponse{Repository: c.Repository, Message: c.Message, Date: c.Date})
	}
	h.writeJSON(w, out)
}

// SaveWorkSession stores a completed focus-timer session.
func (h *UserHandler) SaveWorkSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req dto.WorkSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := h.activitySvc.SaveWorkSession(r.Context(), userID, req.StartedAt, req.EndedAt, req.DurationMinutes)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSession) {
			http.Error(w, "invalid work session", http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to save work session")
		http.Error(w, "failed to save work session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *UserHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
	}
}
