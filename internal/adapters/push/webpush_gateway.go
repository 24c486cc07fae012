package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/alerttrail/alerttrail/internal/domain"
)

// WebPushGateway implements ports.PushGateway over the Web Push protocol
// with VAPID authentication. Every delivery attempt is bounded by the
// configured timeout; a timeout counts as a failed delivery.
type WebPushGateway struct {
	vapidPublicKey  string
	vapidPrivateKey string
	subscriber      string
	timeout         time.Duration
}

// NewWebPushGateway builds the gateway. subscriber is the VAPID contact,
// e.g. "mailto:admin@alerttrail.com".
func NewWebPushGateway(vapidPublicKey, vapidPrivateKey, subscriber string, timeout time.Duration) *WebPushGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebPushGateway{
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
		subscriber:      subscriber,
		timeout:         timeout,
	}
}

// Deliver sends one payload to one subscription.
func (g *WebPushGateway) Deliver(ctx context.Context, sub *domain.PushSubscription, payload domain.PushPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}

	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, body, target, &webpush.Options{
		Subscriber:      g.subscriber,
		VAPIDPublicKey:  g.vapidPublicKey,
		VAPIDPrivateKey: g.vapidPrivateKey,
		TTL:             60,
	})
	if err != nil {
		return fmt.Errorf("send web push: %w", err)
	}
	defer resp.Body.Close()

	// 404/410 mean the subscription is gone; everything >= 400 is a
	// failed delivery either way and the queue stays put.
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
