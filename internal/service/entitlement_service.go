package service

import (
	"context"
	"errors"

	"github.com/HanabLabs/FocusDock/internal/model"
	"github.com/HanabLabs/FocusDock/internal/repository"

	"github.com/rs/zerolog"
)

var (
	// ErrUserNotFound means no profile matched the lookup key.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateEntitlement means the user already holds the plan (or a
	// higher one) they are trying to buy.
	ErrDuplicateEntitlement = errors.New("plan already active for user")
	// ErrActiveSubscription means a lifetime purchase was attempted while a
	// monthly Stripe subscription is still active; it must be cancelled
	// first so the user is not double-billed.
	ErrActiveSubscription = errors.New("active subscription must be cancelled first")
)

// EntitlementService derives the authoritative subscription tier from
// billing events. Webhooks arrive out of order and are redelivered, so every
// transition is an idempotent guarded update: lifetime is a one-way
// absorbing state, monthly never overwrites lifetime, and cancellation
// always wins. Applying any event twice, or two events in either order,
// converges to the tier the true chronological order would produce.
type EntitlementService interface {
	ApplyLifetimePurchase(ctx context.Context, userID string) error
	ApplyMonthlyPayment(ctx context.Context, userID string) error
	ApplySubscriptionActive(ctx context.Context, userID string) error
	ApplyCancellation(ctx context.Context, userID string) error

	// AdmitPurchase enforces the purchase admission rules before a new
	// payment intent is created.
	AdmitPurchase(profile *model.UserProfile, planType string) error
}

type entitlementService struct {
	userRepo repository.UserRepository
	logger   zerolog.Logger
}

// NewEntitlementService creates an EntitlementService with a scoped logger.
func NewEntitlementService(userRepo repository.UserRepository, logger zerolog.Logger) EntitlementService {
	return &entitlementService{
		userRepo: userRepo,
		logger:   logger.With().Str("service", "EntitlementService").Logger(),
	}
}

func (s *entitlementService) ApplyLifetimePurchase(ctx context.Context, userID string) error {
	updated, err := s.userRepo.SetTierLifetime(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to apply lifetime purchase")
		return err
	}
	if !updated {
		// Redelivered webhook or concurrent delivery: already lifetime.
		s.logger.Info().Str("user_id", userID).Msg("Lifetime purchase already applied; skipping")
	}
	return nil
}

func (s *entitlementService) ApplyMonthlyPayment(ctx context.Context, userID string) error {
	updated, err := s.userRepo.SetTierMonthlyUnlessLifetime(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to apply monthly payment")
		return err
	}
	if !updated {
		s.logger.Info().Str("user_id", userID).Msg("Monthly payment did not change tier (lifetime holds)")
	}
	return nil
}

func (s *entitlementService) ApplySubscriptionActive(ctx context.Context, userID string) error {
	// Reaffirms monthly without requiring a separate invoice event; the same
	// lifetime guard applies.
	_, err := s.userRepo.SetTierMonthlyUnlessLifetime(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to reaffirm monthly tier")
	}
	return err
}

func (s *entitlementService) ApplyCancellation(ctx context.Context, userID string) error {
	if err := s.userRepo.SetTierFree(ctx, userID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to apply cancellation")
		return err
	}
	return nil
}

func (s *entitlementService) AdmitPurchase(profile *model.UserProfile, planType string) error {
	switch planType {
	case "monthly":
		if profile.SubscriptionTier == model.TierMonthly || profile.SubscriptionTier == model.TierLifetime {
			return ErrDuplicateEntitlement
		}
	case "lifetime":
		if profile.SubscriptionTier == model.TierLifetime {
			return ErrDuplicateEntitlement
		}
	case "donate":
		// Donations are always admitted and never change the tier.
	default:
		return errors.New("unknown plan type: " + planType)
	}
	return nil
}
