package ports

import (
	"context"

	"github.com/google/uuid"
)

// EligibilityChecker is the business gate in front of push alerting;
// it is backed by plan/billing state that lives outside this core.
// "Not eligible" is an outcome, not an error.
type EligibilityChecker interface {
	IsEligibleForNotifications(ctx context.Context, userID uuid.UUID) (bool, error)
}
