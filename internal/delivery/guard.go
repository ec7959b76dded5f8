package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/google/uuid"
)

// Guard owns the IDLE -> OVERDUE_PENDING -> TRIGGERED transition. The store's
// conditional update is the only serialisation point; the guard holds no
// in-process lock.
type Guard struct {
	store Store
}

func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// TryClaim validates the recipients the scan saw and then attempts the atomic
// claim. It returns false with ErrNoRecipients or ErrInvalidSettings when the
// episode cannot be delivered, and false with a nil error when another caller
// already holds the claim or the user checked in meanwhile.
func (g *Guard) TryClaim(ctx context.Context, settings *models.CheckInSettings, episodeID uuid.UUID, now time.Time) (Claim, bool, error) {
	if err := ValidateSettings(settings); err != nil {
		return Claim{}, false, err
	}
	if settings.LastCheckIn == nil {
		return Claim{}, false, ErrNoCheckIn
	}

	claim := Claim{
		UserID:      settings.UserID,
		LastCheckIn: *settings.LastCheckIn,
		EpisodeID:   episodeID,
		At:          now,
	}
	won, err := g.store.ClaimDelivery(ctx, claim)
	if err != nil {
		return claim, false, fmt.Errorf("claim delivery: %w", err)
	}
	return claim, won, nil
}

// Release hands an episode back when nothing was sent. Calling it after any
// send attempt would break at-most-once delivery.
func (g *Guard) Release(ctx context.Context, claim Claim) error {
	if _, err := g.store.ReleaseDelivery(ctx, claim); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}
