package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/HanabLabs/FocusDock/internal/api/v1/dto"
	"github.com/HanabLabs/FocusDock/internal/middleware"
	"github.com/HanabLabs/FocusDock/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// syncer runs one provider sync for one user.
type syncer interface {
	Sync(ctx context.Context, userID string) (int, error)
}

// IntegrationHandler handles the OAuth lifecycle and manual sync endpoints
// for the GitHub and Spotify connections.
type IntegrationHandler struct {
	integrationSvc *service.IntegrationService
	githubSync     syncer
	spotifySync    syncer
	validate       *validator.Validate
	logger         zerolog.Logger
}

// NewIntegrationHandler creates a new IntegrationHandler.
func NewIntegrationHandler(
	integrationSvc *service.IntegrationService,
	githubSync, spotifySync syncer,
	validate *validator.Validate,
	logger zerolog.Logger,
) *IntegrationHandler {
	return &IntegrationHandler{
		integrationSvc: integrationSvc,
		githubSync:     githubSync,
		spotifySync:    spotifySync,
		validate:       validate,
		logger:         logger,
	}
}

// RegisterRoutes registers the integration endpoints.
func (h *IntegrationHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware func(http.Handler) http.Handler) {
	mux.Handle("GET /integrations/github/auth-url", authMiddleware(http.HandlerFunc(h.GitHubAuthURL)))
	mux.Handle("POST /integrations/github/connect", authMiddleware(http.HandlerFunc(h.ConnectGitHub)))
	mux.Handle("POST /integrations/github/disconnect", authMiddleware(http.HandlerFunc(h.DisconnectGitHub)))
	mux.Handle("GET /integrations/spotify/auth-url", authMiddleware(http.HandlerFunc(h.SpotifyAuthURL)))
	mux.Handle("POST /integrations/spotify/connect", authMiddleware(http.HandlerFunc(h.ConnectSpotify)))
	mux.Handle("POST /integrations/spotify/disconnect", authMiddleware(http.HandlerFunc(h.DisconnectSpotify)))
	mux.Handle("POST /sync/github", authMiddleware(http.HandlerFunc(h.SyncGitHub)))
	mux.Handle("POST /sync/spotify", authMiddleware(http.HandlerFunc(h.SyncSpotify)))
}

func (h *IntegrationHandler) GitHubAuthURL(w http.ResponseWriter, r *http.Request) {
	url, state := h.integrationSvc.GitHubAuthURL()
	h.writeJSON(w, dto.AuthURLResponse{URL: url, State: state})
}

func (h *IntegrationHandler) SpotifyAuthURL(w http.ResponseWriter, r *http.Request) {
	url, state := h.integrationSvc.SpotifyAuthURL()
	h.writeJSON(w, dto.AuthURLResponse{URL: url, State: state})
}

func (h *IntegrationHandler) ConnectGitHub(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := h.connectRequest(w, r)
	if !ok {
		return
	}
	if err := h.integrationSvc.ConnectGitHub(r.Context(), userID, req.Code); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to connect github")
		http.Error(w, "failed to connect github", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *IntegrationHandler) ConnectSpotify(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := h.connectRequest(w, r)
	if !ok {
		return
	}
	if err := h.integrationSvc.ConnectSpotify(r.Context(), userID, req.Code); err != nil {
		if errors.Is(err, service.ErrPaidTierRequired) {
			http.Error(w, "paid subscription required", http.StatusForbidden)
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to connect spotify")
		http.Error(w, "failed to connect spotify", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *IntegrationHandler) DisconnectGitHub(w http.ResponseWriter, r *http.Request) {
	h.disconnect(w, r, h.integrationSvc.DisconnectGitHub)
}

func (h *IntegrationHandler) DisconnectSpotify(w http.ResponseWriter, r *http.Request) {
	h.disconnect(w, r, h.integrationSvc.DisconnectSpotify)
}

func (h *IntegrationHandler) SyncGitHub(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, h.githubSync, "github")
}

func (h *IntegrationHandler) SyncSpotify(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, h.spotifySync, "spotify")
}

func (h *IntegrationHandler) connectRequest(w http.ResponseWriter, r *http.Request) (string, dto.ConnectRequest, bool) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", dto.ConnectRequest{}, false
	}
	var req dto.ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return "", dto.ConnectRequest{}, false
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return "", dto.ConnectRequest{}, false
	}
	return userID, req, true
}

func (h *IntegrationHandler) disconnect(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := fn(r.Context(), userID); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to disconnect provider")
		http.Error(w, "failed to disconnect", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *IntegrationHandler) runSync(w http.ResponseWriter, r *http.Request, s syncer, provider string) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	n, err := s.Sync(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotConnected):
			http.Error(w, provider+" not connected", http.StatusConflict)
		case errors.Is(err, service.ErrTokenRefresh):
			http.Error(w, provider+" authorization expired; reconnect required", http.StatusUnauthorized)
		default:
			h.logger.Error().Err(err).Str("user_id", userID).Str("provider", provider).Msg("sync failed")
			http.Error(w, "sync failed", http.StatusBadGateway)
		}
		return
	}
	h.writeJSON(w, dto.SyncResponse{Synced: n})
}

func (h *IntegrationHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
	}
}
