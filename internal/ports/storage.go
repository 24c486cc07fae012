package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/alerttrail/alerttrail/internal/domain"
)

// Storage defines the persistence contract for the alerting core. The
// notification preference, state and queue rows are owned exclusively by
// the dispatcher; no other component mutates them.
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// Notification preferences: one row per user, lazily created with
	// defaults (cooldown 10 min, no quiet hours, push enabled).
	GetOrCreatePreference(ctx context.Context, userID uuid.UUID) (*domain.NotificationPreference, error)
	UpdatePreference(ctx context.Context, pref *domain.NotificationPreference) error

	// Delivery state: one row per user, lazily created empty.
	GetOrCreateState(ctx context.Context, userID uuid.UUID) (*domain.NotificationState, error)

	// Notification queue, scoped to one user, ordered by creation time.
	AppendQueueItem(ctx context.Context, item *domain.NotificationQueueItem) error
	ListQueueItems(ctx context.Context, userID uuid.UUID) ([]domain.NotificationQueueItem, error)

	// CompleteFlush removes the delivered queue rows and advances
	// last_push_at in a single transaction, so a crash can never lose the
	// "delivered" half of a flush.
	CompleteFlush(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID, pushedAt time.Time) error

	// ListQueuedUsers returns the users that currently have queued items,
	// for the periodic reconciliation poll.
	ListQueuedUsers(ctx context.Context) ([]uuid.UUID, error)

	// Push subscriptions: upsert keyed on (user, endpoint); Get returns
	// nil without error when the user has none.
	SaveSubscription(ctx context.Context, sub *domain.PushSubscription) error
	GetSubscription(ctx context.Context, userID uuid.UUID) (*domain.PushSubscription, error)

	// Mail accounts and alerts
	CreateMailAccount(ctx context.Context, acct *domain.MailAccount) error
	ListMailAccounts(ctx context.Context) ([]domain.MailAccount, error)
	CreateMailAlert(ctx context.Context, alert *domain.MailAlert) error
	ListMailAlerts(ctx context.Context, userID uuid.UUID, limit int) ([]domain.MailAlert, error)

	// GetMailAlertByUID returns the user's alert for one message UID, or
	// nil without error when none exists. Re-scanned messages dedup on it.
	GetMailAlertByUID(ctx context.Context, userID uuid.UUID, msgUID string) (*domain.MailAlert, error)

	// Lifecycle
	Close() error
}
