package ports

import (
	"context"

	"github.com/alerttrail/alerttrail/internal/domain"
)

// PushGateway delivers one payload to one subscription. Implementations
// must bound their latency; a timeout is a delivery failure, never a
// success. The dispatcher treats any returned error as "not delivered"
// and keeps the queue intact.
type PushGateway interface {
	Deliver(ctx context.Context, sub *domain.PushSubscription, payload domain.PushPayload) error
}
